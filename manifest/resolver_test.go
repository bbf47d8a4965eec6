package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveNamespace(t *testing.T) {
	tests := []struct {
		name        string
		depName     string
		dep         Dependency
		depManifest *Manifest
		wantNS      string
		wantErr     bool
	}{
		{
			name:    "consumer override wins",
			depName: "animals",
			dep:     Dependency{Path: "../a", Namespace: "Zoo"},
			depManifest: &Manifest{
				Project: Project{Namespace: "Animals"},
			},
			wantNS: "Zoo",
		},
		{
			name:    "producer namespace when no consumer override",
			depName: "animals",
			dep:     Dependency{Path: "../a"},
			depManifest: &Manifest{
				Project: Project{Namespace: "Animals"},
			},
			wantNS: "Animals",
		},
		{
			name:        "PascalCase fallback when no manifest",
			depName:     "math-engines",
			dep:         Dependency{Path: "../m"},
			depManifest: nil,
			wantNS:      "MathEngines",
		},
		{
			name:        "reserved namespace rejected",
			depName:     "stl",
			dep:         Dependency{Path: "../stl", Namespace: "std"},
			depManifest: nil,
			wantErr:     true,
		},
		{
			name:        "invalid namespace rejected",
			depName:     "odd",
			dep:         Dependency{Path: "../odd", Namespace: "Odd Name"},
			depManifest: nil,
			wantErr:     true,
		},
		{
			name:        "multi-segment with non-reserved root is OK",
			depName:     "tp",
			dep:         Dependency{Path: "../tp", Namespace: "Vendor::Pets"},
			depManifest: nil,
			wantNS:      "Vendor::Pets",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ns, err := resolveNamespace(tc.depName, tc.dep, tc.depManifest)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got namespace %q", ns)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ns != tc.wantNS {
				t.Errorf("namespace = %q, want %q", ns, tc.wantNS)
			}
		})
	}
}

func TestResolveLocalPacks(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "app")
	pets := filepath.Join(root, "pets")
	base := filepath.Join(root, "base")

	writeManifest(t, app, `
[project]
name = "app"

[dependencies]
pets = { path = "../pets" }
`)
	writeManifest(t, pets, `
[project]
name = "pets"
namespace = "Pets"

[schemas]
dirs = ["contracts"]

[dependencies]
base = { path = "../base" }
`)
	// A pack without a manifest is a bare schema directory.
	if err := os.MkdirAll(base, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := Load(app)
	if err != nil {
		t.Fatal(err)
	}
	deps, err := NewResolver(m).Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(deps) != 2 {
		t.Fatalf("resolved %d deps, want 2", len(deps))
	}
	if deps[0].Name != "base" || deps[1].Name != "pets" {
		t.Errorf("order = %s, %s; want base before pets", deps[0].Name, deps[1].Name)
	}
	if deps[0].Namespace != "Base" || deps[1].Namespace != "Pets" {
		t.Errorf("namespaces = %s, %s", deps[0].Namespace, deps[1].Namespace)
	}
	if dirs := deps[0].SchemaDirs(); len(dirs) != 1 || dirs[0] != base {
		t.Errorf("base schema dirs = %v", dirs)
	}
	if dirs := deps[1].SchemaDirs(); len(dirs) != 1 || dirs[0] != filepath.Join(pets, "contracts") {
		t.Errorf("pets schema dirs = %v", dirs)
	}

	lock, err := ReadLock(m.LockFilePath())
	if err != nil || lock == nil {
		t.Fatalf("ReadLock = %v, %v", lock, err)
	}
	if d := lock.FindLockedDep("pets"); d == nil || d.Path != "../pets" {
		t.Errorf("locked pets = %+v", d)
	}
	if d := lock.FindLockedDep("base"); d == nil || d.Path != base {
		t.Errorf("locked base = %+v", d)
	}
}

func TestResolveMissingPath(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[dependencies]
gone = { path = "./gone" }
`)
	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewResolver(m).Resolve(); err == nil {
		t.Error("missing local pack should fail")
	}
}

func TestManifestNamespaceField(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "test"

[dependencies]
pets = { path = "../p", namespace = "Vendor::Pets" }
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	dep, ok := m.Dependencies["pets"]
	if !ok {
		t.Fatal("missing pets dependency")
	}
	if dep.Namespace != "Vendor::Pets" {
		t.Errorf("dep.Namespace = %q, want %q", dep.Namespace, "Vendor::Pets")
	}
}
