//go:build cgo

package ffi

/*
#cgo pkg-config: libffi
#cgo linux LDFLAGS: -ldl
#include <ffi.h>
#include <dlfcn.h>
#include <stdint.h>
#include <stdlib.h>

// Taking the code address as an integer keeps cgo away from
// function-pointer types at the call site.
static void vb_ffi_call(ffi_cif* cif, uintptr_t fn, void* rvalue, void** avalue) {
	ffi_call(cif, (void (*)(void))fn, rvalue, avalue);
}

static ffi_cif* vb_alloc_cif(void) {
	return (ffi_cif*)malloc(sizeof(ffi_cif));
}

// Kinds follow schema.PrimitiveType: 0 void, 1 int32, 2 pointer, 3 cstring.
static ffi_type* vb_type(int kind) {
	switch (kind) {
	case 1:
		return &ffi_type_sint32;
	case 2:
	case 3:
		return &ffi_type_pointer;
	default:
		return &ffi_type_void;
	}
}

static int vb_prep_cif(ffi_cif* cif, unsigned int nargs, int ret, ffi_type** atypes) {
	return ffi_prep_cif(cif, FFI_DEFAULT_ABI, nargs, vb_type(ret), atypes);
}

static void* vb_dlopen(const char* path) {
	return dlopen(path, RTLD_NOW | RTLD_LOCAL);
}

static const char* vb_dlerror(void) {
	return dlerror();
}

// Clear dlerror, call dlsym, and report the error (if any) with the symbol.
static void* vb_dlsym(void* h, const char* name, const char** err) {
	dlerror();
	void* p = dlsym(h, name);
	const char* e = dlerror();
	*err = e;
	return e ? NULL : p;
}

static int vb_dlclose(void* h) {
	return dlclose(h);
}
*/
import "C"

import (
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/tliron/commonlog"

	"github.com/chazu/viable/marshal"
	"github.com/chazu/viable/schema"
)

var log = commonlog.GetLogger("viable.ffi")

const ptrSize = C.size_t(unsafe.Sizeof(uintptr(0)))

// cifEntry is a prepared call interface. Both allocations live on the C
// heap because libffi reads the type vector on every call.
type cifEntry struct {
	cif   *C.ffi_cif
	types unsafe.Pointer
}

// Caller calls native code addresses with libffi. Call interfaces are
// prepared once per signature shape and reused. Safe for concurrent use.
type Caller struct {
	// calls is read-held for the whole of each Call.
	calls sync.RWMutex
	mu    sync.Mutex
	cifs  map[string]*cifEntry
}

// NewCaller creates a caller with an empty call interface cache.
func NewCaller() *Caller {
	return &Caller{cifs: make(map[string]*cifEntry)}
}

func signatureKey(f *marshal.Frame) string {
	var b strings.Builder
	for _, t := range f.Types() {
		b.WriteByte('0' + byte(t))
	}
	b.WriteByte(':')
	b.WriteByte('0' + byte(f.Returns))
	return b.String()
}

func (c *Caller) prepared(f *marshal.Frame) (*cifEntry, error) {
	key := signatureKey(f)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cifs == nil {
		return nil, fmt.Errorf("ffi: caller is closed")
	}
	if e, ok := c.cifs[key]; ok {
		return e, nil
	}

	n := len(f.Args)
	var types unsafe.Pointer
	if n > 0 {
		types = C.malloc(C.size_t(n) * ptrSize)
		if types == nil {
			return nil, fmt.Errorf("ffi: prep cif: OOM")
		}
		vec := unsafe.Slice((**C.ffi_type)(types), n)
		for i, a := range f.Args {
			vec[i] = C.vb_type(C.int(a.Type))
		}
	}
	cif := C.vb_alloc_cif()
	if cif == nil {
		C.free(types)
		return nil, fmt.Errorf("ffi: prep cif: OOM")
	}
	if st := C.vb_prep_cif(cif, C.uint(n), C.int(f.Returns), (**C.ffi_type)(types)); st != C.FFI_OK {
		C.free(unsafe.Pointer(cif))
		C.free(types)
		return nil, fmt.Errorf("ffi: ffi_prep_cif failed: %d", int(st))
	}

	e := &cifEntry{cif: cif, types: types}
	c.cifs[key] = e
	log.Debugf("prepared call interface %s", key)
	return e, nil
}

// Call invokes the code at fn with the frame's arguments, in order, and
// returns the raw return register.
func (c *Caller) Call(fn uintptr, f *marshal.Frame) (uint64, error) {
	if fn == 0 {
		return 0, fmt.Errorf("ffi: call through null code address")
	}
	c.calls.RLock()
	defer c.calls.RUnlock()

	e, err := c.prepared(f)
	if err != nil {
		return 0, err
	}

	n := len(f.Args)
	// One extra element keeps malloc away from zero-sized requests.
	argv := C.malloc(C.size_t(n+1) * ptrSize)
	vals := C.malloc(C.size_t(n+1) * 8)
	rv := C.malloc(16)
	if argv == nil || vals == nil || rv == nil {
		C.free(argv)
		C.free(vals)
		C.free(rv)
		return 0, fmt.Errorf("ffi: call: OOM")
	}
	defer C.free(argv)
	defer C.free(vals)
	defer C.free(rv)

	avalue := unsafe.Slice((*unsafe.Pointer)(argv), n+1)
	slots := unsafe.Slice((*C.uint64_t)(vals), n+1)
	for i, a := range f.Args {
		p := unsafe.Pointer(&slots[i])
		switch a.Type {
		case schema.Int32:
			*(*C.int32_t)(p) = C.int32_t(a.Int32())
		default:
			*(*C.uintptr_t)(p) = C.uintptr_t(a.Word)
		}
		avalue[i] = p
	}

	C.vb_ffi_call(e.cif, C.uintptr_t(fn), rv, (*unsafe.Pointer)(argv))

	switch f.Returns {
	case schema.Int32:
		// Integral returns narrower than a register are widened to ffi_arg.
		return uint64(uint32(int32(*(*C.ffi_sarg)(rv)))), nil
	case schema.Pointer, schema.CString:
		return uint64(*(*C.uintptr_t)(rv)), nil
	default:
		return 0, nil
	}
}

// Close releases all prepared call interfaces. It waits for calls already
// in flight to return; calls after Close fail.
func (c *Caller) Close() {
	c.calls.Lock()
	defer c.calls.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.cifs {
		C.free(unsafe.Pointer(e.cif))
		C.free(e.types)
	}
	c.cifs = nil
}

// Library is a dlopen'ed shared object.
type Library struct {
	Path string
	h    unsafe.Pointer
}

// Open loads a shared library. An empty path opens the running program.
func Open(path string) (*Library, error) {
	var cs *C.char
	if path != "" {
		cs = C.CString(path)
		defer C.free(unsafe.Pointer(cs))
	}
	h := C.vb_dlopen(cs)
	if h == nil {
		return nil, fmt.Errorf("dlopen(%q) failed: %s", path, dlerr())
	}
	log.Infof("opened library %q", path)
	return &Library{Path: path, h: h}, nil
}

func dlerr() string {
	if e := C.vb_dlerror(); e != nil {
		return C.GoString(e)
	}
	return "unknown dlerror"
}

// Symbol resolves a C-linkage symbol to its code address.
func (l *Library) Symbol(name string) (uintptr, error) {
	cs := C.CString(name)
	defer C.free(unsafe.Pointer(cs))
	var cerr *C.char
	p := C.vb_dlsym(l.h, cs, &cerr)
	if cerr != nil {
		return 0, fmt.Errorf("dlsym(%q) failed: %s", name, C.GoString(cerr))
	}
	if p == nil {
		return 0, fmt.Errorf("dlsym(%q): null symbol", name)
	}
	return uintptr(p), nil
}

// Close unloads the library. Objects created by it must not be used after.
func (l *Library) Close() error {
	if l.h == nil {
		return nil
	}
	if C.vb_dlclose(l.h) != 0 {
		return fmt.Errorf("dlclose(%q) failed: %s", l.Path, dlerr())
	}
	l.h = nil
	return nil
}

// CString copies s to the C heap. The returned function frees it.
func CString(s string) (unsafe.Pointer, func()) {
	p := unsafe.Pointer(C.CString(s))
	return p, func() { C.free(p) }
}

// GoString copies a NUL-terminated C string into Go memory.
func GoString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	return C.GoString((*C.char)(p))
}
