package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("viable.manifest")

// ResolvedDep is a schema pack that has been resolved to a local path.
type ResolvedDep struct {
	Name      string    // dependency name
	LocalPath string    // local filesystem path
	Namespace string    // prefix for the pack's interfaces
	Manifest  *Manifest // the pack's own manifest (may be nil)
}

// SchemaDirs returns the directories holding the pack's schema files:
// those named by its manifest, or the pack root when it has none.
func (rd *ResolvedDep) SchemaDirs() []string {
	if rd.Manifest == nil {
		return []string{rd.LocalPath}
	}
	return rd.Manifest.SchemaDirPaths()
}

// Resolver manages dependency resolution.
type Resolver struct {
	manifest *Manifest
	lock     *LockFile
}

// NewResolver creates a new dependency resolver.
func NewResolver(m *Manifest) *Resolver {
	return &Resolver{manifest: m}
}

// Resolve resolves all dependencies and returns them in load order
// (dependencies before dependents), then rewrites the lock file.
func (r *Resolver) Resolve() ([]ResolvedDep, error) {
	lock, err := ReadLock(r.manifest.LockFilePath())
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	r.lock = lock

	if len(r.manifest.Dependencies) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(r.manifest.DepsDir(), 0755); err != nil {
		return nil, fmt.Errorf("creating deps dir: %w", err)
	}

	resolved := make(map[string]*ResolvedDep)
	order, err := r.resolveAll(r.manifest.Dependencies, resolved)
	if err != nil {
		return nil, err
	}

	if err := r.writeLock(resolved); err != nil {
		return nil, fmt.Errorf("writing lock file: %w", err)
	}
	return order, nil
}

// resolveAll resolves deps in name order, recursing into each pack's own
// dependencies. A name already resolved is skipped, which also ends cycles.
func (r *Resolver) resolveAll(deps map[string]Dependency, resolved map[string]*ResolvedDep) ([]ResolvedDep, error) {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	var order []ResolvedDep
	for _, name := range names {
		if _, ok := resolved[name]; ok {
			continue
		}

		rd, err := r.resolveOne(name, deps[name])
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}
		resolved[name] = rd

		if rd.Manifest != nil && len(rd.Manifest.Dependencies) > 0 {
			transitive, err := r.resolveAll(rd.Manifest.Dependencies, resolved)
			if err != nil {
				return nil, err
			}
			order = append(order, transitive...)
		}
		order = append(order, *rd)
	}
	return order, nil
}

// resolveNamespace determines the effective namespace for a dependency:
//  1. Consumer override (dep.Namespace)
//  2. Producer manifest (depManifest.Project.Namespace)
//  3. PascalCase fallback (ToPascalCase(name))
func resolveNamespace(name string, dep Dependency, depManifest *Manifest) (string, error) {
	var ns string
	switch {
	case dep.Namespace != "":
		ns = dep.Namespace
	case depManifest != nil && depManifest.Project.Namespace != "":
		ns = depManifest.Project.Namespace
	default:
		ns = ToPascalCase(name)
	}

	if !ValidNamespace(ns) {
		return "", fmt.Errorf("dependency %q resolves to invalid namespace %q; add namespace = \"...\" in [dependencies]", name, ns)
	}
	if IsReservedNamespace(ns) {
		return "", fmt.Errorf("dependency %q resolves to reserved namespace %q; add namespace = \"...\" in [dependencies]", name, ns)
	}
	return ns, nil
}

func (r *Resolver) resolveOne(name string, dep Dependency) (*ResolvedDep, error) {
	var localPath string
	switch {
	case dep.Path != "":
		p, err := filepath.Abs(r.manifest.abs(dep.Path))
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", dep.Path, err)
		}
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("local dependency %q not found at %s: %w", name, p, err)
		}
		localPath = p

	case dep.Git != "":
		localPath = filepath.Join(r.manifest.DepsDir(), name)
		if err := r.fetch(name, dep, localPath); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("dependency %q has no git or path specified", name)
	}

	// A pack without a manifest is just a directory of schema files.
	depManifest, _ := Load(localPath)

	ns, err := resolveNamespace(name, dep, depManifest)
	if err != nil {
		return nil, err
	}
	log.Debugf("resolved %s at %s as %s", name, localPath, ns)
	return &ResolvedDep{
		Name:      name,
		LocalPath: localPath,
		Namespace: ns,
		Manifest:  depManifest,
	}, nil
}

// fetch clones or updates a git pack and checks out its tag.
func (r *Resolver) fetch(name string, dep Dependency, dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		log.Infof("cloning %s from %s", name, dep.Git)
		if err := gitClone(dep.Git, dir); err != nil {
			return err
		}
	} else if locked := r.lock.FindLockedDep(name); locked == nil || locked.Tag != dep.Tag {
		log.Infof("fetching %s", name)
		if err := gitFetch(dir); err != nil {
			return err
		}
	}

	if dep.Tag != "" {
		if err := gitCheckout(dir, dep.Tag); err != nil {
			return err
		}
	}
	if clean, err := gitIsClean(dir); err == nil && !clean {
		log.Warningf("%s has local changes in %s", name, dir)
	}
	return nil
}

func (r *Resolver) writeLock(resolved map[string]*ResolvedDep) error {
	lf := &LockFile{}
	for _, rd := range resolved {
		ld := LockedDep{Name: rd.Name}

		dep, direct := r.manifest.Dependencies[rd.Name]
		switch {
		case !direct:
			ld.Path = rd.LocalPath
		case dep.Git != "":
			ld.Git = dep.Git
			ld.Tag = dep.Tag
			if commit, err := gitCurrentCommit(rd.LocalPath); err == nil {
				ld.Commit = commit
			}
		default:
			ld.Path = dep.Path
		}
		lf.Deps = append(lf.Deps, ld)
	}

	if err := os.MkdirAll(filepath.Dir(r.manifest.LockFilePath()), 0755); err != nil {
		return err
	}
	return WriteLock(r.manifest.LockFilePath(), lf)
}
