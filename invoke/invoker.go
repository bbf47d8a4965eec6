// Package invoke calls virtual methods on native objects through their
// vtables, using schemas in place of compiler-generated glue.
package invoke

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/tliron/commonlog"

	"github.com/chazu/viable/marshal"
	"github.com/chazu/viable/schema"
	"github.com/chazu/viable/vtable"
)

var log = commonlog.GetLogger("viable.invoke")

// Call-time failures. Native faults (wrong schema for the runtime type, a
// freed object) are not detected and are not among them.
var (
	ErrNullReceiver = errors.New("null receiver")
	ErrNoVTable     = errors.New("object has no vtable")
	ErrNotAncestor  = errors.New("schema is not an ancestor")
)

// Caller performs a native call of the code at fn.
type Caller interface {
	Call(fn uintptr, f *marshal.Frame) (uint64, error)
}

// Invoker resolves and performs virtual calls. It holds no per-call state
// and is safe for concurrent use as long as the Caller is.
type Invoker struct {
	caller   Caller
	conv     marshal.Convention
	resolver *vtable.Resolver
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithConvention selects the calling convention. The default is
// marshal.Host().
func WithConvention(c marshal.Convention) Option {
	return func(inv *Invoker) { inv.conv = c }
}

// WithResolver shares a layout cache between invokers.
func WithResolver(r *vtable.Resolver) Option {
	return func(inv *Invoker) { inv.resolver = r }
}

// New creates an invoker that performs calls through caller.
func New(caller Caller, opts ...Option) *Invoker {
	inv := &Invoker{caller: caller, conv: marshal.Host()}
	for _, opt := range opts {
		opt(inv)
	}
	if inv.resolver == nil {
		inv.resolver = vtable.NewResolver()
	}
	return inv
}

// Convention returns the calling convention in use.
func (inv *Invoker) Convention() marshal.Convention { return inv.conv }

// Resolver returns the layout cache.
func (inv *Invoker) Resolver() *vtable.Resolver { return inv.resolver }

func readWord(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}

// CodeAddress returns the function pointer stored in the object's vtable
// for method, without calling it.
func (inv *Invoker) CodeAddress(h *Handle, method string) (uintptr, error) {
	if h.State() != Bound {
		return 0, fmt.Errorf("%w: %s", ErrNullReceiver, method)
	}
	slot, err := inv.resolver.Resolve(h.schema, method)
	if err != nil {
		return 0, err
	}
	return inv.slotAddress(h, slot.Index)
}

// slotAddress reads the object's vtable pointer and indexes it. This
// assumes single inheritance without virtual bases.
func (inv *Invoker) slotAddress(h *Handle, index int) (uintptr, error) {
	vptr := readWord(uintptr(h.ptr) + inv.conv.VPtrOffset())
	if vptr == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoVTable, h)
	}
	fn := readWord(vptr + uintptr(index)*vtable.PtrSize)
	if fn == 0 {
		return 0, fmt.Errorf("%w: %s: slot %d is empty", ErrNoVTable, h, index)
	}
	return fn, nil
}

// Invoke calls method on the object behind h with args and returns the
// decoded result. Resolution uses h's schema, so the schema must be the
// object's runtime type or an ancestor it was laid out from.
func (inv *Invoker) Invoke(h *Handle, method string, args ...marshal.Value) (marshal.Value, error) {
	if h.State() != Bound {
		return marshal.Value{}, fmt.Errorf("%w: %s", ErrNullReceiver, method)
	}
	slot, err := inv.resolver.Resolve(h.schema, method)
	if err != nil {
		return marshal.Value{}, err
	}
	frame, err := marshal.EncodeArguments(inv.conv, slot.Method, h.ptr, args)
	if err != nil {
		return marshal.Value{}, err
	}
	fn, err := inv.slotAddress(h, slot.Index)
	if err != nil {
		return marshal.Value{}, err
	}

	log.Debugf("%s.%s: slot %d, %d native args", h, method, slot.Index, len(frame.Args))
	word, err := inv.caller.Call(fn, frame)
	if err != nil {
		return marshal.Value{}, fmt.Errorf("%s.%s: %w", h.schema.Name, method, err)
	}
	return marshal.DecodeResult(slot.Method.Returns, word), nil
}

// Field reads a data member declared in h's schema chain.
func (inv *Invoker) Field(h *Handle, name string) (marshal.Value, error) {
	if h.State() != Bound {
		return marshal.Value{}, fmt.Errorf("%w: field %s", ErrNullReceiver, name)
	}
	fl, err := inv.resolver.Fields(h.schema, inv.conv.ReuseTailPadding())
	if err != nil {
		return marshal.Value{}, err
	}
	fs, err := fl.Field(name)
	if err != nil {
		return marshal.Value{}, err
	}

	p := unsafe.Add(h.ptr, fs.Offset)
	switch fs.Field.Type {
	case schema.Int32:
		return marshal.Int32(*(*int32)(p)), nil
	case schema.CString:
		return marshal.CString(*(*unsafe.Pointer)(p)), nil
	default:
		return marshal.Pointer(*(*unsafe.Pointer)(p)), nil
	}
}

// Construct calls the factory at fn and binds the returned object to the
// factory's type schema.
func (inv *Invoker) Construct(fn uintptr, f *schema.Factory, args ...marshal.Value) (*Handle, error) {
	frame, err := marshal.EncodeCall(f.Params, schema.Pointer, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Symbol, err)
	}
	word, err := inv.caller.Call(fn, frame)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Symbol, err)
	}
	h, err := Bind(unsafe.Pointer(uintptr(word)), f.Type)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Symbol, err)
	}
	log.Infof("%s constructed %s", f.Symbol, h)
	return h, nil
}
