// Package schema describes the virtual method contracts of native classes.
//
// An Interface lists the virtual methods one class level declares, in
// declaration order, and links to the interface it inherits from. Schemas
// are built by a Registry from decoded Documents and are immutable once
// registered, so they can be shared across goroutines without locking.
package schema

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Load-time failures.
var (
	ErrInvalidSchema   = errors.New("invalid schema")
	ErrUnsupportedType = errors.New("unsupported type")
)

// NoSlot marks a method whose slot index is not pinned by its declaration.
const NoSlot = -1

// Method is one virtual method signature.
type Method struct {
	Name    string
	Params  []PrimitiveType
	Returns PrimitiveType

	// Skip reserves unnamed slots ahead of this method, for virtuals the
	// document does not describe (destructors, private hooks).
	Skip int

	// Slot is the absolute slot index the declaration expects, or NoSlot.
	Slot int
}

// SameSignature reports whether m and other take and return the same types.
func (m *Method) SameSignature(other *Method) bool {
	return m.Returns == other.Returns && slices.Equal(m.Params, other.Params)
}

func (m *Method) String() string {
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("%s(%s) %s", m.Name, strings.Join(params, ", "), m.Returns)
}

// Field is a data member stored after the vtable pointer.
type Field struct {
	Name string
	Type PrimitiveType
}

// Interface is one level of a class's virtual method contract.
type Interface struct {
	Name    string
	Parent  *Interface
	Methods []Method
	Fields  []Field

	// NoVTable records a __declspec(novtable) declaration: the compiler
	// may skip initializing the vtable pointer for this type itself.
	NoVTable bool
}

// maxDepth bounds chain walks over interfaces built outside a Registry.
const maxDepth = 1 << 12

// Chain returns the inheritance chain root first, ending with i.
// A chain that revisits an interface fails with ErrInvalidSchema.
func (i *Interface) Chain() ([]*Interface, error) {
	var chain []*Interface
	seen := make(map[*Interface]bool)
	for cur := i; cur != nil; cur = cur.Parent {
		if seen[cur] || len(chain) >= maxDepth {
			return nil, fmt.Errorf("%w: %s: inheritance cycle through %s", ErrInvalidSchema, i.Name, cur.Name)
		}
		seen[cur] = true
		chain = append(chain, cur)
	}
	slices.Reverse(chain)
	return chain, nil
}

// IsA reports whether i is other or inherits from it.
func (i *Interface) IsA(other *Interface) bool {
	depth := 0
	for cur := i; cur != nil && depth < maxDepth; cur = cur.Parent {
		if cur == other {
			return true
		}
		depth++
	}
	return false
}

// Method finds a method declared directly on i (not on its ancestors).
func (i *Interface) Method(name string) (*Method, bool) {
	for k := range i.Methods {
		if i.Methods[k].Name == name {
			return &i.Methods[k], true
		}
	}
	return nil, false
}

func (i *Interface) String() string {
	return i.Name
}

// Factory is the C-linkage constructor for a concrete type.
type Factory struct {
	Symbol string
	Type   *Interface
	Params []PrimitiveType
}
