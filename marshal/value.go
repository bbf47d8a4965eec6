package marshal

import (
	"fmt"
	"strconv"
	"unsafe"

	"github.com/chazu/viable/schema"
)

// Value is a typed argument or result of a native call.
// Address-typed values carry the address itself; the pointee is never
// copied or owned. Addresses typed in by a user are kept as integers so
// the garbage collector never sees them as pointers.
type Value struct {
	typ schema.PrimitiveType
	i   int32
	p   unsafe.Pointer
	a   uintptr
}

// Int32 wraps a 32-bit integer.
func Int32(v int32) Value { return Value{typ: schema.Int32, i: v} }

// Pointer wraps an untyped address.
func Pointer(p unsafe.Pointer) Value { return Value{typ: schema.Pointer, p: p} }

// Address wraps a pointer given only as an integer, such as one read from
// the command line. Its Pointer is nil; use Addr.
func Address(a uintptr) Value { return Value{typ: schema.Pointer, a: a} }

// CString wraps the address of a NUL-terminated string.
func CString(p unsafe.Pointer) Value { return Value{typ: schema.CString, p: p} }

// Unit is the result of a void call.
func Unit() Value { return Value{typ: schema.Void} }

// Type returns the primitive type of v.
func (v Value) Type() schema.PrimitiveType { return v.typ }

// Int32 returns the integer payload; zero for other types.
func (v Value) Int32() int32 { return v.i }

// Pointer returns the address payload of a pointer or cstring value.
// It is nil for values built by Address.
func (v Value) Pointer() unsafe.Pointer { return v.p }

// Addr returns the address payload as an integer.
func (v Value) Addr() uintptr {
	if v.p != nil {
		return uintptr(v.p)
	}
	return v.a
}

// IsUnit reports whether v is the void result.
func (v Value) IsUnit() bool { return v.typ == schema.Void }

// IsNull reports whether v is an address-typed value holding nil.
func (v Value) IsNull() bool { return v.typ.IsAddress() && v.Addr() == 0 }

func (v Value) String() string {
	switch v.typ {
	case schema.Int32:
		return strconv.FormatInt(int64(v.i), 10)
	case schema.Pointer, schema.CString:
		return fmt.Sprintf("%s(%#x)", v.typ, v.Addr())
	default:
		return "()"
	}
}

// word is the register-sized encoding of v.
func (v Value) word() uint64 {
	if v.typ == schema.Int32 {
		return uint64(uint32(v.i))
	}
	return uint64(v.Addr())
}

// ParseValue converts command-line text to a value of type t. Integers
// accept Go literal syntax; pointers accept "null" or an integer address.
// Strings need native memory and are converted by the caller.
func ParseValue(t schema.PrimitiveType, text string) (Value, error) {
	switch t {
	case schema.Int32:
		n, err := strconv.ParseInt(text, 0, 32)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not an int32", ErrArgumentTypeMismatch, text)
		}
		return Int32(int32(n)), nil
	case schema.Pointer:
		if text == "null" || text == "nil" {
			return Pointer(nil), nil
		}
		n, err := strconv.ParseUint(text, 0, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not an address", ErrArgumentTypeMismatch, text)
		}
		return Address(uintptr(n)), nil
	default:
		return Value{}, fmt.Errorf("%w: cannot parse %s from text", ErrArgumentTypeMismatch, t)
	}
}
