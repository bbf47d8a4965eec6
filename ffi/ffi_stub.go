//go:build !cgo

package ffi

import (
	"unsafe"

	"github.com/chazu/viable/marshal"
)

// Caller is unavailable without cgo.
type Caller struct{}

// NewCaller returns a caller whose calls fail with ErrUnavailable.
func NewCaller() *Caller { return &Caller{} }

// Call always fails with ErrUnavailable.
func (c *Caller) Call(fn uintptr, f *marshal.Frame) (uint64, error) {
	return 0, ErrUnavailable
}

// Close is a no-op.
func (c *Caller) Close() {}

// Library is unavailable without cgo.
type Library struct {
	Path string
}

// Open always fails with ErrUnavailable.
func Open(path string) (*Library, error) {
	return nil, ErrUnavailable
}

// Symbol always fails with ErrUnavailable.
func (l *Library) Symbol(name string) (uintptr, error) {
	return 0, ErrUnavailable
}

// Close is a no-op.
func (l *Library) Close() error { return nil }

// CString returns a NUL-terminated copy of s in Go memory.
func CString(s string) (unsafe.Pointer, func()) {
	buf := append([]byte(s), 0)
	return unsafe.Pointer(&buf[0]), func() {}
}

// GoString copies a NUL-terminated string.
func GoString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(p), n))
}
