// Package bridge wires a project together: it reads the manifest, loads
// schemas from packs, the project and the cache, opens the native library
// and hands out an invoker for it.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/viable/ffi"
	"github.com/chazu/viable/invoke"
	"github.com/chazu/viable/manifest"
	"github.com/chazu/viable/marshal"
	"github.com/chazu/viable/schema"
	"github.com/chazu/viable/store"
	"github.com/chazu/viable/vtable"
)

var log = commonlog.GetLogger("viable.bridge")

// ErrNoFactory is returned when a type has no declared factory.
var ErrNoFactory = errors.New("no factory")

// Bridge is an opened project.
type Bridge struct {
	manifest *manifest.Manifest
	reg      *schema.Registry
	conv     marshal.Convention
	caller   *ffi.Caller
	inv      *invoke.Invoker
	cache    *store.Store
	extra    []*schema.Document
	problems error

	mu      sync.Mutex
	lib     *ffi.Library
	symbols map[string]uintptr
}

// Option configures Open.
type Option func(*Bridge)

// WithConvention overrides the manifest's [abi] convention.
func WithConvention(c marshal.Convention) Option {
	return func(b *Bridge) { b.conv = c }
}

// WithDocument loads doc along with the project's schema files.
func WithDocument(doc *schema.Document) Option {
	return func(b *Bridge) { b.extra = append(b.extra, doc) }
}

// Open builds a bridge for m. Dependencies are resolved first, so git
// packs may be fetched. The native library is opened on first use.
func Open(ctx context.Context, m *manifest.Manifest, opts ...Option) (*Bridge, error) {
	b := &Bridge{
		manifest: m,
		reg:      schema.NewRegistry(vtable.Check),
		symbols:  make(map[string]uintptr),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.conv == nil {
		conv, err := marshal.ConventionByName(m.ABI.Convention)
		if err != nil {
			return nil, err
		}
		b.conv = conv
	}

	if path := m.CachePath(); path != "" {
		cache, err := store.Open(path)
		if err != nil {
			return nil, err
		}
		b.cache = cache
	}

	if err := b.loadSchemas(ctx); err != nil {
		if !errors.Is(err, schema.ErrInvalidSchema) && !errors.Is(err, schema.ErrUnsupportedType) {
			b.Close()
			return nil, err
		}
		// Invalid interfaces are skipped; the rest stay usable.
		log.Warningf("%s", err)
		b.problems = err
	}

	b.caller = ffi.NewCaller()
	b.inv = invoke.New(b.caller, invoke.WithConvention(b.conv))
	log.Infof("opened %s: %d interfaces, %s convention", m.Dir, len(b.reg.Names()), b.conv.Name())
	return b, nil
}

// sources returns every schema document of the project keyed by a stable
// name: packs first, then the project's own directories.
func (b *Bridge) sources() ([]string, []*schema.Document, error) {
	var (
		names []string
		docs  []*schema.Document
	)

	deps, err := manifest.NewResolver(b.manifest).Resolve()
	if err != nil {
		return nil, nil, err
	}
	for _, dep := range deps {
		pack := &schema.Document{}
		for _, dir := range dep.SchemaDirs() {
			doc, err := schema.LoadDir(dir)
			if err != nil {
				return nil, nil, fmt.Errorf("pack %s: %w", dep.Name, err)
			}
			pack.Merge(doc)
		}
		names = append(names, "pack/"+dep.Name)
		docs = append(docs, pack.Qualify(dep.Namespace))
	}

	for _, dir := range b.manifest.SchemaDirPaths() {
		doc, err := schema.LoadDir(dir)
		if err != nil {
			return nil, nil, err
		}
		rel, err := filepath.Rel(b.manifest.Dir, dir)
		if err != nil {
			rel = dir
		}
		names = append(names, "schemas/"+filepath.ToSlash(rel))
		docs = append(docs, doc)
	}

	for i, doc := range b.extra {
		names = append(names, fmt.Sprintf("extra/%d", i))
		docs = append(docs, doc)
	}
	return names, docs, nil
}

// loadSchemas loads every source in one pass so parents may come from any
// of them. With a cache the sources are refreshed into it first and the
// registry is loaded from the cache, which also holds imported documents.
func (b *Bridge) loadSchemas(ctx context.Context) error {
	names, docs, err := b.sources()
	if err != nil {
		return err
	}

	if b.cache == nil {
		merged := &schema.Document{}
		for _, doc := range docs {
			merged.Merge(doc)
		}
		return b.reg.Load(merged)
	}

	current := make(map[string]bool, len(names))
	for i, doc := range docs {
		current[names[i]] = true
		if _, err := b.cache.Put(ctx, names[i], doc); err != nil {
			return err
		}
	}
	if err := b.pruneCache(ctx, current); err != nil {
		return err
	}
	return b.cache.LoadInto(ctx, b.reg)
}

// pruneCache drops cached project and pack documents that no longer have a
// source, such as a renamed schema directory or a removed dependency.
// Imported documents are kept.
func (b *Bridge) pruneCache(ctx context.Context, current map[string]bool) error {
	entries, err := b.cache.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if current[e.Name] || !generated(e.Name) {
			continue
		}
		if err := b.cache.Delete(ctx, e.Name); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		log.Infof("dropped stale %s from cache", e.Name)
	}
	return nil
}

func generated(name string) bool {
	for _, prefix := range []string{"pack/", "schemas/", "extra/"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Import stores doc in the cache under name so later opens load it. It
// fails when the project has no cache configured.
func (b *Bridge) Import(ctx context.Context, name string, doc *schema.Document) (bool, error) {
	if b.cache == nil {
		return false, errors.New("no [cache] path configured")
	}
	if err := schema.Validate(doc); err != nil {
		return false, err
	}
	return b.cache.Put(ctx, "import/"+name, doc)
}

// Problems returns the schema errors found while opening, joined, or nil.
// Interfaces named in them are not registered.
func (b *Bridge) Problems() error { return b.problems }

// Manifest returns the project manifest.
func (b *Bridge) Manifest() *manifest.Manifest { return b.manifest }

// Registry returns the loaded schemas.
func (b *Bridge) Registry() *schema.Registry { return b.reg }

// Invoker returns the invoker used for calls.
func (b *Bridge) Invoker() *invoke.Invoker { return b.inv }

// Convention returns the calling convention in use.
func (b *Bridge) Convention() marshal.Convention { return b.conv }

// Provide registers the address of a factory linked into the process,
// taking precedence over the library.
func (b *Bridge) Provide(symbol string, addr uintptr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.symbols[symbol] = addr
}

func (b *Bridge) symbol(name string) (uintptr, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if addr, ok := b.symbols[name]; ok {
		return addr, nil
	}
	if b.lib == nil {
		lib, err := ffi.Open(b.manifest.LibraryPath())
		if err != nil {
			return 0, err
		}
		b.lib = lib
	}
	addr, err := b.lib.Symbol(name)
	if err != nil {
		return 0, err
	}
	b.symbols[name] = addr
	return addr, nil
}

// Lookup returns the schema registered as name.
func (b *Bridge) Lookup(name string) (*schema.Interface, error) {
	iface, ok := b.reg.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not registered", schema.ErrInvalidSchema, name)
	}
	return iface, nil
}

// New constructs an object of typeName through its declared factory.
func (b *Bridge) New(typeName string, args ...marshal.Value) (*invoke.Handle, error) {
	f, ok := b.reg.FactoryFor(typeName)
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoFactory, typeName)
	}
	fn, err := b.symbol(f.Symbol)
	if err != nil {
		return nil, err
	}
	return b.inv.Construct(fn, f, args...)
}

// Call invokes method on h.
func (b *Bridge) Call(h *invoke.Handle, method string, args ...marshal.Value) (marshal.Value, error) {
	return b.inv.Invoke(h, method, args...)
}

// Field reads a data member of h.
func (b *Bridge) Field(h *invoke.Handle, name string) (marshal.Value, error) {
	return b.inv.Field(h, name)
}

// Layout returns the vtable layout of typeName.
func (b *Bridge) Layout(typeName string) (*vtable.Layout, error) {
	iface, err := b.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	return b.inv.Resolver().Layout(iface)
}

// Fields returns the data member layout of typeName under the bridge's
// convention.
func (b *Bridge) Fields(typeName string) (*vtable.FieldLayout, error) {
	iface, err := b.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	return b.inv.Resolver().Fields(iface, b.conv.ReuseTailPadding())
}

// ParseArgs converts command-line text to values of the given types.
// Strings are copied to native memory; the returned func frees them and
// must only be called once the call using them has returned.
func ParseArgs(types []schema.PrimitiveType, texts []string) ([]marshal.Value, func(), error) {
	if len(types) != len(texts) {
		return nil, func() {}, fmt.Errorf("%w: want %d arguments, got %d", marshal.ErrArgumentTypeMismatch, len(types), len(texts))
	}
	var frees []func()
	free := func() {
		for _, f := range frees {
			f()
		}
	}

	values := make([]marshal.Value, len(types))
	for i, t := range types {
		if t == schema.CString {
			p, f := ffi.CString(texts[i])
			frees = append(frees, f)
			values[i] = marshal.CString(p)
			continue
		}
		v, err := marshal.ParseValue(t, texts[i])
		if err != nil {
			free()
			return nil, func() {}, fmt.Errorf("argument %d: %w", i, err)
		}
		values[i] = v
	}
	return values, free, nil
}

// Format renders v for display, reading strings through their address.
func Format(v marshal.Value) string {
	if v.Type() == schema.CString && !v.IsNull() {
		return fmt.Sprintf("%q", ffi.GoString(v.Pointer()))
	}
	return v.String()
}

// Close releases the caller, the library and the cache. Objects created
// through the bridge are not freed.
func (b *Bridge) Close() error {
	var errs []error
	if b.caller != nil {
		b.caller.Close()
	}
	b.mu.Lock()
	if b.lib != nil {
		errs = append(errs, b.lib.Close())
		b.lib = nil
	}
	b.mu.Unlock()
	if b.cache != nil {
		errs = append(errs, b.cache.Close())
	}
	return errors.Join(errs...)
}
