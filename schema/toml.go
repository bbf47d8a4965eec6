package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// FileExt is the extension of schema files inside schema directories.
const FileExt = ".toml"

// DecodeTOML parses a schema document.
//
//	[[interface]]
//	name = "Dog"
//	parent = "Pet"
//	methods = [{ name = "speak", returns = "cstring" }]
//
//	[[factory]]
//	symbol = "getPug"
//	type = "Pug"
//	params = ["cstring", "int32"]
func DecodeTOML(data []byte) (*Document, error) {
	var doc Document
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown key %s", ErrInvalidSchema, undecoded[0])
	}
	return &doc, nil
}

// LoadFile reads and decodes one schema file.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	doc, err := DecodeTOML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// LoadDir decodes every schema file in dir (not recursive), in name order,
// merged into one document so parents may live in other files.
func LoadDir(dir string) (*Document, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+FileExt))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	merged := &Document{}
	for _, path := range matches {
		doc, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		merged.Merge(doc)
	}
	return merged, nil
}
