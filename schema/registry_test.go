package schema

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/chazu/viable/internal/testschema"
)

func loadFixtures(t *testing.T) *Registry {
	t.Helper()
	doc, err := DecodeTOML(testschema.FixturesTOML)
	if err != nil {
		t.Fatalf("DecodeTOML: %v", err)
	}
	r := NewRegistry()
	if err := r.Load(doc); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return r
}

func TestLoadFixtures(t *testing.T) {
	r := loadFixtures(t)

	want := []string{"MathEngine", "MyEngine", "Pet", "Dog", "Pug"}
	got := r.Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	pug, ok := r.Lookup("Pug")
	if !ok {
		t.Fatal("Pug not registered")
	}
	dog, _ := r.Lookup("Dog")
	pet, _ := r.Lookup("Pet")
	if pug.Parent != dog || dog.Parent != pet || pet.Parent != nil {
		t.Error("Pug -> Dog -> Pet chain not linked")
	}
	if !pug.IsA(pet) || pet.IsA(pug) {
		t.Error("IsA should follow parent links upward only")
	}
	if !dog.NoVTable || pug.NoVTable {
		t.Error("novtable flag not carried")
	}

	age, ok := pug.Method("age")
	if !ok {
		t.Fatal("Pug.age missing")
	}
	if age.Returns != Int32 || len(age.Params) != 0 || age.Slot != NoSlot {
		t.Errorf("Pug.age = %s slot %d", age, age.Slot)
	}

	engine, _ := r.Lookup("MathEngine")
	add2, _ := engine.Method("add2")
	if add2.Slot != 1 {
		t.Errorf("add2 slot = %d, want 1", add2.Slot)
	}

	f, ok := r.FactoryFor("Pug")
	if !ok || f.Symbol != "getPug" {
		t.Fatalf("FactoryFor(Pug) = %v", f)
	}
	if len(f.Params) != 2 || f.Params[0] != CString || f.Params[1] != Int32 {
		t.Errorf("getPug params = %v", f.Params)
	}
	if _, ok := r.Factory("getMath"); !ok {
		t.Error("getMath not registered")
	}
}

func TestChainRootFirst(t *testing.T) {
	r := loadFixtures(t)
	pug, _ := r.Lookup("Pug")

	chain, err := pug.Chain()
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	var names []string
	for _, i := range chain {
		names = append(names, i.Name)
	}
	if strings.Join(names, ">") != "Pet>Dog>Pug" {
		t.Errorf("chain = %v", names)
	}
}

func TestChainDetectsHandBuiltCycle(t *testing.T) {
	a := &Interface{Name: "A"}
	b := &Interface{Name: "B", Parent: a}
	a.Parent = b

	if _, err := a.Chain(); !errors.Is(err, ErrInvalidSchema) {
		t.Fatalf("Chain on cycle: err = %v, want ErrInvalidSchema", err)
	}
	if a.IsA(&Interface{Name: "C"}) {
		t.Error("IsA on cycle should terminate and report false")
	}
}

func TestLoadRejectsCycles(t *testing.T) {
	tests := []struct {
		name string
		doc  *Document
	}{
		{
			name: "self parent",
			doc: &Document{Interfaces: []InterfaceDecl{
				{Name: "Loop", Parent: "Loop"},
			}},
		},
		{
			name: "two step",
			doc: &Document{Interfaces: []InterfaceDecl{
				{Name: "A", Parent: "B"},
				{Name: "B", Parent: "A"},
			}},
		},
		{
			name: "three step",
			doc: &Document{Interfaces: []InterfaceDecl{
				{Name: "A", Parent: "C"},
				{Name: "B", Parent: "A"},
				{Name: "C", Parent: "B"},
			}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRegistry()
			err := r.Load(tc.doc)
			if !errors.Is(err, ErrInvalidSchema) {
				t.Fatalf("err = %v, want ErrInvalidSchema", err)
			}
			if n := len(r.Names()); n != 0 {
				t.Errorf("registered %d interfaces from a cyclic document", n)
			}
		})
	}
}

func TestLoadIsolatesInvalidSchemas(t *testing.T) {
	doc := &Document{Interfaces: []InterfaceDecl{
		{Name: "Good", Methods: []MethodDecl{{Name: "ok", Returns: "int32"}}},
		{Name: "Bad", Methods: []MethodDecl{{Name: "f", Params: []string{"double"}}}},
		{Name: "BadChild", Parent: "Bad"},
		{Name: "GoodChild", Parent: "Good"},
	}}

	r := NewRegistry()
	err := r.Load(doc)
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("err = %v, want ErrUnsupportedType", err)
	}
	if !errors.Is(err, ErrInvalidSchema) {
		t.Errorf("err = %v, want ErrInvalidSchema for BadChild", err)
	}
	for _, name := range []string{"Good", "GoodChild"} {
		if _, ok := r.Lookup(name); !ok {
			t.Errorf("%s should be registered", name)
		}
	}
	for _, name := range []string{"Bad", "BadChild"} {
		if _, ok := r.Lookup(name); ok {
			t.Errorf("%s should not be registered", name)
		}
	}
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  *Document
		want error
	}{
		{
			name: "unknown parent",
			doc:  &Document{Interfaces: []InterfaceDecl{{Name: "A", Parent: "Missing"}}},
			want: ErrInvalidSchema,
		},
		{
			name: "duplicate method",
			doc: &Document{Interfaces: []InterfaceDecl{{Name: "A", Methods: []MethodDecl{
				{Name: "f"}, {Name: "f"},
			}}}},
			want: ErrInvalidSchema,
		},
		{
			name: "override changes signature",
			doc: &Document{Interfaces: []InterfaceDecl{
				{Name: "Base", Methods: []MethodDecl{{Name: "f", Returns: "int32"}}},
				{Name: "Derived", Parent: "Base", Methods: []MethodDecl{{Name: "f", Returns: "cstring"}}},
			}},
			want: ErrInvalidSchema,
		},
		{
			name: "void parameter",
			doc: &Document{Interfaces: []InterfaceDecl{{Name: "A", Methods: []MethodDecl{
				{Name: "f", Params: []string{"void"}},
			}}}},
			want: ErrUnsupportedType,
		},
		{
			name: "unsupported return",
			doc: &Document{Interfaces: []InterfaceDecl{{Name: "A", Methods: []MethodDecl{
				{Name: "f", Returns: "float"},
			}}}},
			want: ErrUnsupportedType,
		},
		{
			name: "unsupported field",
			doc: &Document{Interfaces: []InterfaceDecl{{Name: "A", Fields: []FieldDecl{
				{Name: "x", Type: "int64"},
			}}}},
			want: ErrUnsupportedType,
		},
		{
			name: "field shadows ancestor",
			doc: &Document{Interfaces: []InterfaceDecl{
				{Name: "Base", Fields: []FieldDecl{{Name: "x", Type: "int32"}}},
				{Name: "Derived", Parent: "Base", Fields: []FieldDecl{{Name: "x", Type: "int32"}}},
			}},
			want: ErrInvalidSchema,
		},
		{
			name: "bad identifier",
			doc:  &Document{Interfaces: []InterfaceDecl{{Name: "not a name"}}},
			want: ErrInvalidSchema,
		},
		{
			name: "negative skip",
			doc: &Document{Interfaces: []InterfaceDecl{{Name: "A", Methods: []MethodDecl{
				{Name: "f", Skip: -1},
			}}}},
			want: ErrInvalidSchema,
		},
		{
			name: "factory for unknown type",
			doc:  &Document{Factories: []FactoryDecl{{Symbol: "getX", Type: "X"}}},
			want: ErrInvalidSchema,
		},
		{
			name: "second factory for a type",
			doc: &Document{
				Interfaces: []InterfaceDecl{{Name: "T", Methods: []MethodDecl{{Name: "f"}}}},
				Factories: []FactoryDecl{
					{Symbol: "getT", Type: "T", Params: []string{"int32"}},
					{Symbol: "makeT", Type: "T"},
				},
			},
			want: ErrInvalidSchema,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := NewRegistry().Load(tc.doc)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestFactoryForIsStable(t *testing.T) {
	reg := NewRegistry()
	err := reg.Load(&Document{
		Interfaces: []InterfaceDecl{{Name: "T", Methods: []MethodDecl{{Name: "f"}}}},
		Factories: []FactoryDecl{
			{Symbol: "getT", Type: "T", Params: []string{"int32"}},
			{Symbol: "makeT", Type: "T"},
		},
	})
	if !errors.Is(err, ErrInvalidSchema) {
		t.Fatalf("Load err = %v, want ErrInvalidSchema", err)
	}
	if _, ok := reg.Factory("makeT"); ok {
		t.Error("rejected factory was registered")
	}
	for i := 0; i < 50; i++ {
		f, ok := reg.FactoryFor("T")
		if !ok || f.Symbol != "getT" {
			t.Fatalf("FactoryFor(T) = %v, %v; want getT", f, ok)
		}
	}
}

func TestLoadAcrossDocuments(t *testing.T) {
	r := NewRegistry()
	base := &Document{Interfaces: []InterfaceDecl{{Name: "Pet", Methods: []MethodDecl{{Name: "name", Returns: "cstring"}}}}}
	if err := r.Load(base); err != nil {
		t.Fatalf("Load base: %v", err)
	}
	derived := &Document{Interfaces: []InterfaceDecl{{Name: "Cat", Parent: "Pet"}}}
	if err := r.Load(derived); err != nil {
		t.Fatalf("Load derived: %v", err)
	}
	cat, _ := r.Lookup("Cat")
	pet, _ := r.Lookup("Pet")
	if cat.Parent != pet {
		t.Error("Cat should link to the already registered Pet")
	}

	if err := r.Load(base); !errors.Is(err, ErrInvalidSchema) {
		t.Errorf("reloading Pet: err = %v, want ErrInvalidSchema", err)
	}
}

func TestCheckHookRejects(t *testing.T) {
	sentinel := errors.New("rejected")
	r := NewRegistry(func(i *Interface) error {
		if i.Name == "No" {
			return sentinel
		}
		return nil
	})
	err := r.Load(&Document{Interfaces: []InterfaceDecl{{Name: "Yes"}, {Name: "No"}}})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want hook error", err)
	}
	if _, ok := r.Lookup("Yes"); !ok {
		t.Error("Yes should be registered")
	}
}

func TestDocumentExportReloads(t *testing.T) {
	r := loadFixtures(t)
	doc := r.Document()

	again := NewRegistry()
	if err := again.Load(doc); err != nil {
		t.Fatalf("reloading exported document: %v", err)
	}
	if strings.Join(again.Names(), ",") != strings.Join(r.Names(), ",") {
		t.Errorf("names differ: %v vs %v", again.Names(), r.Names())
	}
	if _, ok := again.Factory("getPug"); !ok {
		t.Error("getPug lost on export")
	}
}

func TestQualify(t *testing.T) {
	doc := &Document{
		Interfaces: []InterfaceDecl{
			{Name: "Dog", Parent: "Pet"},
			{Name: "Pug", Parent: "Dog"},
		},
		Factories: []FactoryDecl{{Symbol: "getPug", Type: "Pug"}},
	}
	q := doc.Qualify("Zoo")

	if q.Interfaces[0].Name != "Zoo::Dog" || q.Interfaces[0].Parent != "Pet" {
		t.Errorf("Dog qualified to %+v", q.Interfaces[0])
	}
	if q.Interfaces[1].Parent != "Zoo::Dog" {
		t.Errorf("Pug parent = %q", q.Interfaces[1].Parent)
	}
	if q.Factories[0].Type != "Zoo::Pug" || q.Factories[0].Symbol != "getPug" {
		t.Errorf("factory = %+v", q.Factories[0])
	}
	if doc.Interfaces[0].Name != "Dog" {
		t.Error("Qualify must not modify the receiver")
	}

	r := NewRegistry()
	if err := r.Load(&Document{Interfaces: []InterfaceDecl{{Name: "Pet"}}}); err != nil {
		t.Fatal(err)
	}
	if err := r.Load(q); err != nil {
		t.Fatalf("loading qualified doc: %v", err)
	}
}

func TestConcurrentLookup(t *testing.T) {
	r := loadFixtures(t)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, ok := r.Lookup("Pug"); !ok {
					t.Error("Pug missing")
					return
				}
			}
		}()
	}
	wg.Wait()
}
