// Package vtable computes virtual table layouts from interface schemas.
//
// A layout is the root-first concatenation of every level's virtual
// methods. Slot indices come from declaration order: a derived level that
// redeclares an inherited method does not get a new slot, it reuses the
// root-most one, because the compiled vtable overwrites that entry in
// place. Which code runs for the slot is decided by the object itself.
package vtable

import (
	"errors"
	"fmt"

	"github.com/chazu/viable/schema"
)

// ErrUnknownMethod is returned when a method is not part of a layout.
var ErrUnknownMethod = errors.New("unknown method")

// Slot is one entry in a resolved vtable layout.
type Slot struct {
	Index int

	// Method is nil for slots reserved by a Skip declaration.
	Method *schema.Method

	// DeclaredBy is the root-most interface declaring the method; it
	// fixes the index. Implementer is the most-derived redeclaration.
	DeclaredBy  *schema.Interface
	Implementer *schema.Interface
}

// Reserved reports whether the slot holds an undescribed virtual.
func (s Slot) Reserved() bool {
	return s.Method == nil
}

// Layout is the resolved vtable layout of one interface.
type Layout struct {
	Interface *schema.Interface
	Slots     []Slot

	index map[string]int
}

// Build resolves the layout of iface. Methods declared below iface in the
// hierarchy are not part of it.
func Build(iface *schema.Interface) (*Layout, error) {
	if iface == nil {
		return nil, fmt.Errorf("%w: nil interface", schema.ErrInvalidSchema)
	}
	chain, err := iface.Chain()
	if err != nil {
		return nil, err
	}

	l := &Layout{Interface: iface, index: make(map[string]int)}
	for _, level := range chain {
		for k := range level.Methods {
			m := &level.Methods[k]

			if idx, ok := l.index[m.Name]; ok {
				// Override: the entry is replaced in place.
				if m.Slot != schema.NoSlot && m.Slot != idx {
					return nil, pinError(level, m, idx)
				}
				if m.Skip != 0 {
					return nil, fmt.Errorf("%w: %s.%s overrides slot %d and cannot skip slots",
						schema.ErrInvalidSchema, level.Name, m.Name, idx)
				}
				l.Slots[idx].Implementer = level
				continue
			}

			for s := 0; s < m.Skip; s++ {
				l.Slots = append(l.Slots, Slot{Index: len(l.Slots)})
			}
			idx := len(l.Slots)
			if m.Slot != schema.NoSlot && m.Slot != idx {
				return nil, pinError(level, m, idx)
			}
			l.Slots = append(l.Slots, Slot{Index: idx, Method: m, DeclaredBy: level, Implementer: level})
			l.index[m.Name] = idx
		}
	}
	return l, nil
}

func pinError(level *schema.Interface, m *schema.Method, idx int) error {
	return fmt.Errorf("%w: %s.%s declared at slot %d but resolves to slot %d",
		schema.ErrInvalidSchema, level.Name, m.Name, m.Slot, idx)
}

// Len returns the number of slots, reserved ones included.
func (l *Layout) Len() int {
	return len(l.Slots)
}

// Slot finds the slot of a method by name.
func (l *Layout) Slot(name string) (Slot, error) {
	idx, ok := l.index[name]
	if !ok {
		return Slot{}, fmt.Errorf("%w: %s has no method %q", ErrUnknownMethod, l.Interface.Name, name)
	}
	return l.Slots[idx], nil
}

// Names returns the method names in slot order.
func (l *Layout) Names() []string {
	names := make([]string, 0, len(l.index))
	for _, s := range l.Slots {
		if !s.Reserved() {
			names = append(names, s.Method.Name)
		}
	}
	return names
}

// ResolveSlot returns the slot index of method in iface's layout without
// caching.
func ResolveSlot(iface *schema.Interface, method string) (int, error) {
	l, err := Build(iface)
	if err != nil {
		return -1, err
	}
	s, err := l.Slot(method)
	if err != nil {
		return -1, err
	}
	return s.Index, nil
}

// Check validates that iface has a consistent layout. It is meant to be
// passed to schema.NewRegistry so pinned slots fail at load time.
func Check(iface *schema.Interface) error {
	_, err := Build(iface)
	return err
}
