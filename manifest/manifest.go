// Package manifest handles viable.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the project manifest file name.
const FileName = "viable.toml"

// Manifest represents a viable.toml project configuration.
type Manifest struct {
	Project      Project               `toml:"project"`
	Library      Library               `toml:"library"`
	Schemas      Schemas               `toml:"schemas"`
	ABI          ABI                   `toml:"abi"`
	Cache        Cache                 `toml:"cache"`
	Log          Log                   `toml:"log"`
	Dependencies map[string]Dependency `toml:"dependencies"`

	// Dir is the directory containing the viable.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata. A schema pack's Namespace is the
// default prefix consumers see its interfaces under.
type Project struct {
	Name      string `toml:"name"`
	Namespace string `toml:"namespace"`
	Version   string `toml:"version"`
}

// Library names the shared object holding the factories. An empty path
// means the running process.
type Library struct {
	Path string `toml:"path"`
}

// Schemas configures schema file locations.
type Schemas struct {
	Dirs []string `toml:"dirs"`
}

// ABI selects the calling convention by name; see marshal.ConventionByName.
type ABI struct {
	Convention string `toml:"convention"`
}

// Cache configures the SQLite schema cache. An empty path disables it.
type Cache struct {
	Path string `toml:"path"`
}

// Log configures logging for the CLI.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Dependency is a schema pack, from a local path or a git repository.
type Dependency struct {
	Git       string `toml:"git"`
	Tag       string `toml:"tag"`
	Path      string `toml:"path"`
	Namespace string `toml:"namespace"`
}

// Load parses a viable.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Schemas.Dirs) == 0 {
		m.Schemas.Dirs = []string{"schemas"}
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a viable.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) abs(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// SchemaDirPaths returns absolute paths for the configured schema directories.
func (m *Manifest) SchemaDirPaths() []string {
	var paths []string
	for _, d := range m.Schemas.Dirs {
		paths = append(paths, m.abs(d))
	}
	return paths
}

// LibraryPath returns the absolute library path, or "" for the process itself.
func (m *Manifest) LibraryPath() string {
	return m.abs(m.Library.Path)
}

// CachePath returns the absolute cache path, or "" when caching is off.
func (m *Manifest) CachePath() string {
	return m.abs(m.Cache.Path)
}

// LogPath returns the absolute log file path, or "" for stderr.
func (m *Manifest) LogPath() string {
	return m.abs(m.Log.File)
}

// DepsDir returns the path to the .viable/deps directory.
func (m *Manifest) DepsDir() string {
	return filepath.Join(m.Dir, ".viable", "deps")
}

// LockFilePath returns the path to .viable/lock.toml.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, ".viable", "lock.toml")
}
