// Package marshal converts typed values to and from native call frames.
package marshal

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/chazu/viable/schema"
)

// ErrArgumentTypeMismatch is returned when call arguments do not match
// the signature.
var ErrArgumentTypeMismatch = errors.New("argument type mismatch")

// Arg is one register-sized native argument.
type Arg struct {
	Type schema.PrimitiveType
	Word uint64
}

// Int32 returns the argument as a 32-bit integer.
func (a Arg) Int32() int32 { return int32(uint32(a.Word)) }

// Addr returns the argument as an address.
func (a Arg) Addr() uintptr { return uintptr(a.Word) }

// Frame is the native argument layout of one call.
type Frame struct {
	Args    []Arg
	Returns schema.PrimitiveType
}

// Types returns the argument types in native order.
func (f *Frame) Types() []schema.PrimitiveType {
	types := make([]schema.PrimitiveType, len(f.Args))
	for i, a := range f.Args {
		types[i] = a.Type
	}
	return types
}

// EncodeArguments builds the frame for a virtual call of sig on receiver.
// The receiver is placed by conv ahead of the explicit arguments.
func EncodeArguments(conv Convention, sig *schema.Method, receiver unsafe.Pointer, values []Value) (*Frame, error) {
	args, err := encode(sig.Params, values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", sig.Name, err)
	}
	recv := Arg{Type: schema.Pointer, Word: uint64(uintptr(receiver))}
	return &Frame{Args: conv.Arrange(recv, args), Returns: sig.Returns}, nil
}

// EncodeCall builds the frame for a plain C call, such as a factory.
func EncodeCall(params []schema.PrimitiveType, returns schema.PrimitiveType, values []Value) (*Frame, error) {
	args, err := encode(params, values)
	if err != nil {
		return nil, err
	}
	return &Frame{Args: args, Returns: returns}, nil
}

func encode(params []schema.PrimitiveType, values []Value) ([]Arg, error) {
	if len(values) != len(params) {
		return nil, fmt.Errorf("%w: want %d arguments, got %d", ErrArgumentTypeMismatch, len(params), len(values))
	}
	args := make([]Arg, len(params))
	for i, p := range params {
		if values[i].typ != p {
			return nil, fmt.Errorf("%w: argument %d: want %s, got %s", ErrArgumentTypeMismatch, i, p, values[i].typ)
		}
		args[i] = Arg{Type: p, Word: values[i].word()}
	}
	return args, nil
}

// DecodeResult converts a native return register to a typed value.
func DecodeResult(returns schema.PrimitiveType, word uint64) Value {
	switch returns {
	case schema.Int32:
		return Int32(int32(uint32(word)))
	case schema.Pointer:
		return Pointer(unsafe.Pointer(uintptr(word)))
	case schema.CString:
		return CString(unsafe.Pointer(uintptr(word)))
	default:
		return Unit()
	}
}
