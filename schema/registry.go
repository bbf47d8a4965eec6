package schema

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("viable.schema")

// Check is an extra load-time validation run on every interface before it
// is registered. The vtable package supplies one for pinned slots.
type Check func(*Interface) error

// Registry owns the loaded interfaces and factories.
// Thread-safe for concurrent loading and lookup.
type Registry struct {
	mu         sync.RWMutex
	interfaces map[string]*Interface
	factories  map[string]*Factory
	byType     map[string]*Factory
	order      []string
	checks     []Check
}

// NewRegistry creates an empty registry. The checks run on every load.
func NewRegistry(checks ...Check) *Registry {
	return &Registry{
		interfaces: make(map[string]*Interface),
		factories:  make(map[string]*Factory),
		byType:     make(map[string]*Factory),
		checks:     checks,
	}
}

// Lookup returns the interface registered under name.
func (r *Registry) Lookup(name string) (*Interface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.interfaces[name]
	return i, ok
}

// Factory returns the factory registered under its C symbol.
func (r *Registry) Factory(symbol string) (*Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[symbol]
	return f, ok
}

// FactoryFor returns the factory that constructs the named type.
func (r *Registry) FactoryFor(typeName string) (*Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byType[typeName]
	return f, ok
}

// Names returns registered interface names in load order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Load validates doc and registers its declarations.
//
// A document that fails structural validation is rejected as a whole.
// Otherwise each interface is validated on its own: an invalid interface
// (and anything inheriting from it) is skipped, the rest are registered,
// and the per-interface errors are returned joined.
func (r *Registry) Load(doc *Document) error {
	if err := Validate(doc); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	l := &loader{
		reg:   r,
		decls: make(map[string]*InterfaceDecl, len(doc.Interfaces)),
		state: make(map[string]buildState, len(doc.Interfaces)),
		built: make(map[string]*Interface, len(doc.Interfaces)),
		errs:  make(map[string]error),
	}

	var errs []error
	for k := range doc.Interfaces {
		decl := &doc.Interfaces[k]
		switch {
		case l.decls[decl.Name] != nil:
			errs = append(errs, fmt.Errorf("%w: %s: declared twice", ErrInvalidSchema, decl.Name))
			l.state[decl.Name] = stateFailed
		case r.interfaces[decl.Name] != nil:
			errs = append(errs, fmt.Errorf("%w: %s: already registered", ErrInvalidSchema, decl.Name))
			l.state[decl.Name] = stateFailed
		default:
			l.decls[decl.Name] = decl
		}
	}

	for _, decl := range doc.Interfaces {
		if l.decls[decl.Name] == nil || l.state[decl.Name] != stateNew {
			continue
		}
		l.build(decl.Name)
	}
	for _, decl := range doc.Interfaces {
		if err := l.errs[decl.Name]; err != nil {
			errs = append(errs, err)
		}
	}

	for _, decl := range doc.Interfaces {
		iface := l.built[decl.Name]
		if iface == nil || r.interfaces[decl.Name] != nil {
			continue
		}
		r.interfaces[decl.Name] = iface
		r.order = append(r.order, decl.Name)
		log.Debugf("registered %s (%d methods, parent %q)", iface.Name, len(iface.Methods), decl.Parent)
	}

	for _, fd := range doc.Factories {
		f, err := r.buildFactory(fd)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r.factories[f.Symbol] = f
		r.byType[f.Type.Name] = f
	}

	if len(errs) > 0 {
		log.Warningf("schema load rejected %d declaration(s)", len(errs))
	}
	return errors.Join(errs...)
}

func (r *Registry) buildFactory(fd FactoryDecl) (*Factory, error) {
	if _, dup := r.factories[fd.Symbol]; dup {
		return nil, fmt.Errorf("%w: factory %s: declared twice", ErrInvalidSchema, fd.Symbol)
	}
	t, ok := r.interfaces[fd.Type]
	if !ok {
		return nil, fmt.Errorf("%w: factory %s: unknown type %q", ErrInvalidSchema, fd.Symbol, fd.Type)
	}
	if other, dup := r.byType[fd.Type]; dup {
		return nil, fmt.Errorf("%w: factory %s: %s is already constructed by %s", ErrInvalidSchema, fd.Symbol, fd.Type, other.Symbol)
	}
	f := &Factory{Symbol: fd.Symbol, Type: t}
	for i, p := range fd.Params {
		pt, err := parseValueType(p)
		if err != nil {
			return nil, fmt.Errorf("factory %s: param %d: %w", fd.Symbol, i, err)
		}
		f.Params = append(f.Params, pt)
	}
	return f, nil
}

// Document exports the registered declarations in load order.
func (r *Registry) Document() *Document {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc := &Document{}
	for _, name := range r.order {
		doc.Interfaces = append(doc.Interfaces, declFor(r.interfaces[name]))
	}
	symbols := make([]string, 0, len(r.factories))
	for s := range r.factories {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, s := range symbols {
		f := r.factories[s]
		fd := FactoryDecl{Symbol: f.Symbol, Type: f.Type.Name}
		for _, p := range f.Params {
			fd.Params = append(fd.Params, p.String())
		}
		doc.Factories = append(doc.Factories, fd)
	}
	return doc
}

func declFor(i *Interface) InterfaceDecl {
	decl := InterfaceDecl{Name: i.Name, NoVTable: i.NoVTable}
	if i.Parent != nil {
		decl.Parent = i.Parent.Name
	}
	for _, f := range i.Fields {
		decl.Fields = append(decl.Fields, FieldDecl{Name: f.Name, Type: f.Type.String()})
	}
	for _, m := range i.Methods {
		md := MethodDecl{Name: m.Name, Returns: m.Returns.String(), Skip: m.Skip}
		for _, p := range m.Params {
			md.Params = append(md.Params, p.String())
		}
		if m.Slot != NoSlot {
			slot := m.Slot
			md.Slot = &slot
		}
		decl.Methods = append(decl.Methods, md)
	}
	return decl
}

type buildState uint8

const (
	stateNew buildState = iota
	stateBuilding
	stateDone
	stateFailed
)

// loader builds the interfaces of one document. Parents are built before
// children; a parent that is still being built means the chain cycles.
type loader struct {
	reg   *Registry
	decls map[string]*InterfaceDecl
	state map[string]buildState
	built map[string]*Interface
	errs  map[string]error
}

func (l *loader) fail(name string, err error) (*Interface, error) {
	l.state[name] = stateFailed
	l.errs[name] = err
	return nil, err
}

func (l *loader) build(name string) (*Interface, error) {
	if iface, ok := l.reg.interfaces[name]; ok {
		return iface, nil
	}
	decl := l.decls[name]
	if decl == nil {
		return nil, fmt.Errorf("%w: unknown interface %q", ErrInvalidSchema, name)
	}

	switch l.state[name] {
	case stateDone:
		return l.built[name], nil
	case stateFailed:
		return nil, fmt.Errorf("%w: %s is invalid", ErrInvalidSchema, name)
	case stateBuilding:
		return l.fail(name, fmt.Errorf("%w: %s: inheritance cycle", ErrInvalidSchema, name))
	}
	l.state[name] = stateBuilding

	iface := &Interface{Name: decl.Name, NoVTable: decl.NoVTable}
	if decl.Parent != "" {
		if decl.Parent == decl.Name {
			return l.fail(name, fmt.Errorf("%w: %s inherits from itself", ErrInvalidSchema, name))
		}
		parent, err := l.build(decl.Parent)
		if err != nil {
			if l.state[name] == stateFailed {
				return nil, l.errs[name]
			}
			return l.fail(name, fmt.Errorf("%w: %s: parent %s: %v", ErrInvalidSchema, name, decl.Parent, unwrapReason(err)))
		}
		iface.Parent = parent
	}

	if err := l.fillMembers(iface, decl); err != nil {
		return l.fail(name, err)
	}
	for _, check := range l.reg.checks {
		if err := check(iface); err != nil {
			return l.fail(name, err)
		}
	}

	l.state[name] = stateDone
	l.built[name] = iface
	return iface, nil
}

func (l *loader) fillMembers(iface *Interface, decl *InterfaceDecl) error {
	seen := make(map[string]bool, len(decl.Methods))
	for _, md := range decl.Methods {
		if seen[md.Name] {
			return fmt.Errorf("%w: %s: method %s declared twice", ErrInvalidSchema, iface.Name, md.Name)
		}
		seen[md.Name] = true

		m := Method{Name: md.Name, Skip: md.Skip, Slot: NoSlot}
		if md.Slot != nil {
			m.Slot = *md.Slot
		}
		for i, p := range md.Params {
			pt, err := parseValueType(p)
			if err != nil {
				return fmt.Errorf("%s.%s: param %d: %w", iface.Name, md.Name, i, err)
			}
			m.Params = append(m.Params, pt)
		}
		rt, err := parseReturnType(md.Returns)
		if err != nil {
			return fmt.Errorf("%s.%s: return: %w", iface.Name, md.Name, err)
		}
		m.Returns = rt

		if base, owner := inherited(iface.Parent, m.Name); base != nil && !base.SameSignature(&m) {
			return fmt.Errorf("%w: %s.%s overrides %s.%s with a different signature (%s vs %s)",
				ErrInvalidSchema, iface.Name, m.Name, owner.Name, base.Name, &m, base)
		}
		iface.Methods = append(iface.Methods, m)
	}

	fieldSeen := make(map[string]bool)
	for p := iface.Parent; p != nil; p = p.Parent {
		for _, f := range p.Fields {
			fieldSeen[f.Name] = true
		}
	}
	for _, fd := range decl.Fields {
		if fieldSeen[fd.Name] {
			return fmt.Errorf("%w: %s: field %s declared twice", ErrInvalidSchema, iface.Name, fd.Name)
		}
		fieldSeen[fd.Name] = true
		ft, err := parseValueType(fd.Type)
		if err != nil {
			return fmt.Errorf("%s.%s: field: %w", iface.Name, fd.Name, err)
		}
		iface.Fields = append(iface.Fields, Field{Name: fd.Name, Type: ft})
	}
	return nil
}

// inherited finds the root-most ancestor declaration of a method.
func inherited(parent *Interface, name string) (*Method, *Interface) {
	var found *Method
	var owner *Interface
	for p := parent; p != nil; p = p.Parent {
		if m, ok := p.Method(name); ok {
			found, owner = m, p
		}
	}
	return found, owner
}

// unwrapReason strips the ErrInvalidSchema prefix from a nested error so
// messages for descendants do not repeat it.
func unwrapReason(err error) string {
	msg := err.Error()
	prefix := ErrInvalidSchema.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}
