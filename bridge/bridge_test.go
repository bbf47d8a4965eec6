package bridge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/viable/internal/testschema"
	"github.com/chazu/viable/manifest"
	"github.com/chazu/viable/marshal"
	"github.com/chazu/viable/schema"
	"github.com/chazu/viable/vtable"
)

const catTOML = `
[[interface]]
name = "Cat"
parent = "Pet"
methods = [
	{ name = "name", returns = "cstring" },
	{ name = "purr", params = ["int32"], returns = "void" },
]

[[factory]]
symbol = "getCat"
type = "Cat"
`

const petAndDogTOML = `
[[interface]]
name = "Pet"
novtable = true
methods = [{ name = "name", returns = "cstring" }]

[[interface]]
name = "Dog"
parent = "Pet"
novtable = true
methods = [{ name = "speak", returns = "cstring" }]
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// project lays out a project using the fixture schemas and an "animals"
// pack, and returns its manifest.
func project(t *testing.T, extra string) *manifest.Manifest {
	t.Helper()
	root := t.TempDir()
	app := filepath.Join(root, "app")

	writeFile(t, filepath.Join(app, manifest.FileName), `
[project]
name = "app"

[abi]
convention = "itanium"

[dependencies]
animals = { path = "../animals" }
`+extra)
	writeFile(t, filepath.Join(app, "schemas", "fixtures.toml"), string(testschema.FixturesTOML))
	writeFile(t, filepath.Join(root, "animals", "cat.toml"), catTOML)

	m, err := manifest.Load(app)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestOpenLoadsProjectAndPacks(t *testing.T) {
	b, err := Open(context.Background(), project(t, ""))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()

	if b.Problems() != nil {
		t.Errorf("Problems() = %v", b.Problems())
	}
	if b.Convention() != marshal.Itanium {
		t.Errorf("convention = %s", b.Convention().Name())
	}

	cat, err := b.Lookup("Animals::Cat")
	if err != nil {
		t.Fatal(err)
	}
	pet, _ := b.Lookup("Pet")
	if !cat.IsA(pet) {
		t.Error("pack interface should extend the project's Pet")
	}
	if _, ok := b.Registry().Factory("getCat"); !ok {
		t.Error("pack factory symbol should not be qualified")
	}

	l, err := b.Layout("Pug")
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := l.Slot("age"); s.Index != 2 {
		t.Errorf("Pug.age slot = %d, want 2", s.Index)
	}
	fl, err := b.Fields("Pug")
	if err != nil {
		t.Fatal(err)
	}
	if f, _ := fl.Field("theage"); f.Offset != 2*vtable.PtrSize {
		t.Errorf("theage offset = %d", f.Offset)
	}
	if _, err := b.Layout("Nope"); !errors.Is(err, schema.ErrInvalidSchema) {
		t.Errorf("unknown type err = %v", err)
	}
}

func TestOpenWithCache(t *testing.T) {
	ctx := context.Background()
	m := project(t, `
[cache]
path = ".viable/cache.db"
`)

	b, err := Open(ctx, m)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	imported := &schema.Document{Interfaces: []schema.InterfaceDecl{{
		Name:   "Husky",
		Parent: "Dog",
		Methods: []schema.MethodDecl{
			{Name: "speak", Returns: "cstring"},
			{Name: "howl", Returns: "void"},
		},
	}}}
	changed, err := b.Import(ctx, "husky", imported)
	if err != nil || !changed {
		t.Fatalf("Import = %v, %v", changed, err)
	}
	b.Close()

	b, err = Open(ctx, m)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()
	if _, err := b.Lookup("Husky"); err != nil {
		t.Errorf("imported schema not loaded from cache: %v", err)
	}
	if _, err := b.Lookup("Animals::Cat"); err != nil {
		t.Errorf("pack schema not loaded through cache: %v", err)
	}
}

func TestReopenDropsStaleSources(t *testing.T) {
	ctx := context.Background()
	m := project(t, `
[cache]
path = ".viable/cache.db"
`)
	b, err := Open(ctx, m)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := b.Import(ctx, "husky", &schema.Document{Interfaces: []schema.InterfaceDecl{{
		Name:    "Husky",
		Parent:  "Dog",
		Methods: []schema.MethodDecl{{Name: "howl", Returns: "void"}},
	}}}); err != nil {
		t.Fatal(err)
	}
	b.Close()

	// Rename schemas/ to contracts/.
	if err := os.Rename(filepath.Join(m.Dir, "schemas"), filepath.Join(m.Dir, "contracts")); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(m.Dir, manifest.FileName), `
[project]
name = "app"

[abi]
convention = "itanium"

[schemas]
dirs = ["contracts"]

[dependencies]
animals = { path = "../animals" }

[cache]
path = ".viable/cache.db"
`)
	renamed, err := manifest.Load(m.Dir)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		schemas string
		pug     bool
	}{
		{name: "renamed directory", schemas: string(testschema.FixturesTOML), pug: true},
		{name: "removed interface", schemas: petAndDogTOML, pug: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeFile(t, filepath.Join(m.Dir, "contracts", "fixtures.toml"), tt.schemas)

			b, err := Open(ctx, renamed)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer b.Close()

			if b.Problems() != nil {
				t.Errorf("Problems() = %v", b.Problems())
			}
			if _, err := b.Lookup("Pug"); (err == nil) != tt.pug {
				t.Errorf("Lookup(Pug) err = %v, want registered = %v", err, tt.pug)
			}
			if _, err := b.Lookup("Husky"); err != nil {
				t.Errorf("imported schema dropped: %v", err)
			}
			if _, err := b.Lookup("Animals::Cat"); err != nil {
				t.Errorf("pack schema dropped: %v", err)
			}
		})
	}
}

func TestImportWithoutCache(t *testing.T) {
	b, err := Open(context.Background(), project(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if _, err := b.Import(context.Background(), "x", &schema.Document{}); err == nil {
		t.Error("Import without a cache should fail")
	}
}

func TestOpenKeepsValidSchemas(t *testing.T) {
	bad := &schema.Document{Interfaces: []schema.InterfaceDecl{{
		Name:    "Broken",
		Parent:  "Missing",
		Methods: []schema.MethodDecl{{Name: "f"}},
	}}}
	b, err := Open(context.Background(), project(t, ""), WithDocument(bad))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()

	if !errors.Is(b.Problems(), schema.ErrInvalidSchema) {
		t.Errorf("Problems() = %v, want ErrInvalidSchema", b.Problems())
	}
	if _, err := b.Lookup("Broken"); err == nil {
		t.Error("invalid schema should not be registered")
	}
	if _, err := b.Lookup("Pug"); err != nil {
		t.Errorf("valid schemas should survive: %v", err)
	}
}

func TestNewWithoutFactory(t *testing.T) {
	b, err := Open(context.Background(), project(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if _, err := b.New("Dog"); !errors.Is(err, ErrNoFactory) {
		t.Errorf("err = %v, want ErrNoFactory", err)
	}
}

func TestParseArgs(t *testing.T) {
	types := []schema.PrimitiveType{schema.CString, schema.Int32, schema.Pointer}
	values, free, err := ParseArgs(types, []string{"Rex", "4", "null"})
	if err != nil {
		t.Fatal(err)
	}
	defer free()

	if Format(values[0]) != `"Rex"` {
		t.Errorf("values[0] = %s", Format(values[0]))
	}
	if values[1].Int32() != 4 || !values[2].IsNull() {
		t.Errorf("values = %v", values)
	}

	if _, _, err := ParseArgs(types, []string{"Rex"}); !errors.Is(err, marshal.ErrArgumentTypeMismatch) {
		t.Errorf("arity err = %v", err)
	}
	if _, _, err := ParseArgs(types[1:2], []string{"four"}); !errors.Is(err, marshal.ErrArgumentTypeMismatch) {
		t.Errorf("parse err = %v", err)
	}
}

func TestBadConvention(t *testing.T) {
	m := project(t, "")
	m.ABI.Convention = "pascal"
	if _, err := Open(context.Background(), m); err == nil {
		t.Error("unknown convention should fail")
	}
}
