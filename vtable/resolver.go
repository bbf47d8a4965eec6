package vtable

import (
	"sync"
	"sync/atomic"

	"github.com/tliron/commonlog"

	"github.com/chazu/viable/schema"
)

var log = commonlog.GetLogger("viable.vtable")

type fieldKey struct {
	iface *schema.Interface
	reuse bool
}

// Resolver caches layouts per interface. Schemas are immutable once
// registered, so cached layouts never go stale. Safe for concurrent use.
type Resolver struct {
	mu      sync.RWMutex
	layouts map[*schema.Interface]*Layout
	fields  map[fieldKey]*FieldLayout

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewResolver creates a resolver with an empty cache.
func NewResolver() *Resolver {
	return &Resolver{
		layouts: make(map[*schema.Interface]*Layout),
		fields:  make(map[fieldKey]*FieldLayout),
	}
}

// Layout returns the cached layout of iface, building it on first use.
func (r *Resolver) Layout(iface *schema.Interface) (*Layout, error) {
	r.mu.RLock()
	l, ok := r.layouts[iface]
	r.mu.RUnlock()
	if ok {
		r.hits.Add(1)
		return l, nil
	}

	r.misses.Add(1)
	l, err := Build(iface)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if cached, ok := r.layouts[iface]; ok {
		l = cached
	} else {
		r.layouts[iface] = l
		log.Debugf("cached layout for %s (%d slots)", iface.Name, l.Len())
	}
	r.mu.Unlock()
	return l, nil
}

// Resolve returns the slot of method in iface's layout.
func (r *Resolver) Resolve(iface *schema.Interface, method string) (Slot, error) {
	l, err := r.Layout(iface)
	if err != nil {
		return Slot{}, err
	}
	return l.Slot(method)
}

// ResolveSlot returns the slot index of method in iface's layout.
func (r *Resolver) ResolveSlot(iface *schema.Interface, method string) (int, error) {
	s, err := r.Resolve(iface, method)
	if err != nil {
		return -1, err
	}
	return s.Index, nil
}

// Fields returns the cached field layout of iface.
func (r *Resolver) Fields(iface *schema.Interface, reuseTailPadding bool) (*FieldLayout, error) {
	key := fieldKey{iface, reuseTailPadding}
	r.mu.RLock()
	fl, ok := r.fields[key]
	r.mu.RUnlock()
	if ok {
		return fl, nil
	}

	fl, err := BuildFields(iface, reuseTailPadding)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if cached, ok := r.fields[key]; ok {
		fl = cached
	} else {
		r.fields[key] = fl
	}
	r.mu.Unlock()
	return fl, nil
}

// Stats returns layout cache hits and misses.
func (r *Resolver) Stats() (hits, misses uint64) {
	return r.hits.Load(), r.misses.Load()
}
