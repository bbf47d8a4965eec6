// Package store caches schema documents in SQLite so a project can reload
// its registry without reparsing every TOML file.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/viable/schema"
)

var log = commonlog.GetLogger("viable.store")

// ErrNotFound indicates the requested document is not cached.
var ErrNotFound = errors.New("schema document not found")

// Entry describes one cached document.
type Entry struct {
	Name      string
	Digest    [sha256.Size]byte
	UpdatedAt time.Time
}

// Store is a SQLite-backed document cache. Bodies are canonical CBOR
// snapshots, so equal documents have equal digests.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the cache at path. Parent directories are created
// as needed; ":memory:" opens a private in-memory cache.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps ":memory:" databases from splitting per conn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS schema_documents (
		name TEXT PRIMARY KEY,
		digest BLOB NOT NULL,
		body BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put stores doc under name, replacing any previous version. It reports
// whether the stored body changed.
func (s *Store) Put(ctx context.Context, name string, doc *schema.Document) (bool, error) {
	body, err := schema.MarshalDocument(doc)
	if err != nil {
		return false, err
	}
	digest := sha256.Sum256(body)

	s.mu.Lock()
	defer s.mu.Unlock()

	var old []byte
	err = s.db.QueryRowContext(ctx, "SELECT digest FROM schema_documents WHERE name = ?", name).Scan(&old)
	switch {
	case err == nil && string(old) == string(digest[:]):
		log.Debugf("%s unchanged", name)
		return false, nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("querying document: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO schema_documents (name, digest, body, updated_at) VALUES (?, ?, ?, ?)",
		name, digest[:], body, time.Now().UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("saving document: %w", err)
	}
	log.Infof("cached %s (%d bytes)", name, len(body))
	return true, nil
}

// Get loads the document stored under name.
func (s *Store) Get(ctx context.Context, name string) (*schema.Document, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, "SELECT body FROM schema_documents WHERE name = ?", name).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("querying document: %w", err)
	}
	return schema.UnmarshalDocument(body)
}

// List returns the cached documents ordered by name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, digest, updated_at FROM schema_documents ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			digest []byte
			nanos  int64
		)
		if err := rows.Scan(&e.Name, &digest, &nanos); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		copy(e.Digest[:], digest)
		e.UpdatedAt = time.Unix(0, nanos)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes the document stored under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM schema_documents WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// LoadInto merges every cached document, in name order, and loads the
// result into reg.
func (s *Store) LoadInto(ctx context.Context, reg *schema.Registry) error {
	entries, err := s.List(ctx)
	if err != nil {
		return err
	}
	merged := &schema.Document{}
	for _, e := range entries {
		doc, err := s.Get(ctx, e.Name)
		if err != nil {
			return fmt.Errorf("%s: %w", e.Name, err)
		}
		merged.Merge(doc)
	}
	return reg.Load(merged)
}
