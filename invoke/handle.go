package invoke

import (
	"fmt"
	"unsafe"

	"github.com/google/uuid"

	"github.com/chazu/viable/schema"
)

// State is the lifecycle state of a Handle.
type State uint8

const (
	// Unbound handles have no object yet; the zero Handle is Unbound.
	Unbound State = iota
	// Bound handles carry an object pointer and its schema.
	Bound
)

func (s State) String() string {
	if s == Bound {
		return "bound"
	}
	return "unbound"
}

// Handle tags a native object pointer with the schema used to call it.
//
// The handle never owns the object: only the native side may free it, and
// using a handle after that is undefined behavior the handle cannot
// detect. Calls through one handle are not serialized; callers must do so
// unless the object's methods are known to be reentrant.
type Handle struct {
	// ID identifies the object in logs without printing its address.
	ID uuid.UUID

	ptr    unsafe.Pointer
	schema *schema.Interface
}

// Bind wraps a pointer returned by a factory.
func Bind(ptr unsafe.Pointer, iface *schema.Interface) (*Handle, error) {
	if ptr == nil {
		return nil, fmt.Errorf("%w: bind", ErrNullReceiver)
	}
	if iface == nil {
		return nil, fmt.Errorf("%w: bind without schema", schema.ErrInvalidSchema)
	}
	return &Handle{ID: uuid.New(), ptr: ptr, schema: iface}, nil
}

// State reports whether the handle can be invoked.
func (h *Handle) State() State {
	if h == nil || h.ptr == nil || h.schema == nil {
		return Unbound
	}
	return Bound
}

// Pointer returns the raw object address.
func (h *Handle) Pointer() unsafe.Pointer {
	if h == nil {
		return nil
	}
	return h.ptr
}

// Schema returns the schema calls are resolved against.
func (h *Handle) Schema() *schema.Interface {
	if h == nil {
		return nil
	}
	return h.schema
}

// As returns a handle for the same object viewed through an ancestor
// interface. Methods declared below that ancestor become unreachable.
func (h *Handle) As(iface *schema.Interface) (*Handle, error) {
	if h.State() != Bound {
		return nil, ErrNullReceiver
	}
	if iface == nil || !h.schema.IsA(iface) {
		return nil, fmt.Errorf("%w: %s is not a %s", ErrNotAncestor, h.schema, iface)
	}
	return &Handle{ID: h.ID, ptr: h.ptr, schema: iface}, nil
}

func (h *Handle) String() string {
	if h.State() != Bound {
		return "Handle(unbound)"
	}
	return fmt.Sprintf("Handle(%s %s)", h.schema.Name, h.ID)
}
