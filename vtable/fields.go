package vtable

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/chazu/viable/schema"
)

// ErrUnknownField is returned when a data member is not part of a layout.
var ErrUnknownField = errors.New("unknown field")

// PtrSize is the size of the vtable pointer and of address-typed fields.
const PtrSize = unsafe.Sizeof(uintptr(0))

// FieldSlot is a data member with its byte offset inside the object.
type FieldSlot struct {
	Field  *schema.Field
	Offset uintptr
	Owner  *schema.Interface
}

// FieldLayout places data members after the vtable pointer.
type FieldLayout struct {
	Interface *schema.Interface
	Fields    []FieldSlot
	Size      uintptr

	index map[string]int
}

func sizeOf(t schema.PrimitiveType) uintptr {
	if t == schema.Int32 {
		return 4
	}
	return PtrSize
}

func alignUp(x, a uintptr) uintptr {
	return (x + a - 1) &^ (a - 1)
}

// BuildFields lays out the data members of iface root first, each with
// natural alignment. When reuseTailPadding is set, a derived level's first
// member may sit in its base's tail padding, as the Itanium ABI does for
// non-POD bases; otherwise each level starts at its base's aligned size.
func BuildFields(iface *schema.Interface, reuseTailPadding bool) (*FieldLayout, error) {
	if iface == nil {
		return nil, fmt.Errorf("%w: nil interface", schema.ErrInvalidSchema)
	}
	chain, err := iface.Chain()
	if err != nil {
		return nil, err
	}

	fl := &FieldLayout{Interface: iface, index: make(map[string]int)}
	offset, maxAlign := PtrSize, PtrSize
	for depth, level := range chain {
		if depth > 0 && !reuseTailPadding {
			offset = alignUp(offset, maxAlign)
		}
		for k := range level.Fields {
			f := &level.Fields[k]
			size := sizeOf(f.Type)
			offset = alignUp(offset, size)
			fl.index[f.Name] = len(fl.Fields)
			fl.Fields = append(fl.Fields, FieldSlot{Field: f, Offset: offset, Owner: level})
			offset += size
			if size > maxAlign {
				maxAlign = size
			}
		}
	}
	fl.Size = alignUp(offset, maxAlign)
	return fl, nil
}

// Field finds a data member by name.
func (fl *FieldLayout) Field(name string) (FieldSlot, error) {
	idx, ok := fl.index[name]
	if !ok {
		return FieldSlot{}, fmt.Errorf("%w: %s has no field %q", ErrUnknownField, fl.Interface.Name, name)
	}
	return fl.Fields[idx], nil
}
