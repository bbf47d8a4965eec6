package schema

import "strings"

// Document is the decoded input form of a schema file. Types are kept as
// their spelled names; a Registry turns them into PrimitiveTypes on load.
type Document struct {
	Interfaces []InterfaceDecl `toml:"interface" json:"interfaces,omitempty" cbor:"1,keyasint,omitempty"`
	Factories  []FactoryDecl   `toml:"factory" json:"factories,omitempty" cbor:"2,keyasint,omitempty"`
}

// InterfaceDecl declares one interface or concrete class level.
type InterfaceDecl struct {
	Name     string       `toml:"name" json:"name" cbor:"1,keyasint"`
	Parent   string       `toml:"parent" json:"parent,omitempty" cbor:"2,keyasint,omitempty"`
	NoVTable bool         `toml:"novtable" json:"novtable,omitempty" cbor:"3,keyasint,omitempty"`
	Fields   []FieldDecl  `toml:"fields" json:"fields,omitempty" cbor:"4,keyasint,omitempty"`
	Methods  []MethodDecl `toml:"methods" json:"methods,omitempty" cbor:"5,keyasint,omitempty"`
}

// MethodDecl declares a virtual method.
type MethodDecl struct {
	Name    string   `toml:"name" json:"name" cbor:"1,keyasint"`
	Params  []string `toml:"params" json:"params,omitempty" cbor:"2,keyasint,omitempty"`
	Returns string   `toml:"returns" json:"returns,omitempty" cbor:"3,keyasint,omitempty"`
	Skip    int      `toml:"skip" json:"skip,omitempty" cbor:"4,keyasint,omitempty"`
	Slot    *int     `toml:"slot" json:"slot,omitempty" cbor:"5,keyasint,omitempty"`
}

// FieldDecl declares a data member.
type FieldDecl struct {
	Name string `toml:"name" json:"name" cbor:"1,keyasint"`
	Type string `toml:"type" json:"type" cbor:"2,keyasint"`
}

// FactoryDecl declares the get<Type> constructor of a concrete type.
type FactoryDecl struct {
	Symbol string   `toml:"symbol" json:"symbol" cbor:"1,keyasint"`
	Type   string   `toml:"type" json:"type" cbor:"2,keyasint"`
	Params []string `toml:"params" json:"params,omitempty" cbor:"3,keyasint,omitempty"`
}

// Merge appends the declarations of other to d.
func (d *Document) Merge(other *Document) {
	d.Interfaces = append(d.Interfaces, other.Interfaces...)
	d.Factories = append(d.Factories, other.Factories...)
}

// Qualify returns a copy of d with every interface declared in it renamed
// to ns::Name. Parent references to interfaces declared elsewhere are kept.
// Factory symbols are C-linkage names and are never qualified.
func (d *Document) Qualify(ns string) *Document {
	if ns == "" {
		return d
	}
	local := make(map[string]bool, len(d.Interfaces))
	for _, decl := range d.Interfaces {
		local[decl.Name] = true
	}
	qualify := func(name string) string {
		if local[name] && !strings.Contains(name, "::") {
			return ns + "::" + name
		}
		return name
	}

	out := &Document{
		Interfaces: make([]InterfaceDecl, len(d.Interfaces)),
		Factories:  make([]FactoryDecl, len(d.Factories)),
	}
	for i, decl := range d.Interfaces {
		decl.Name = qualify(decl.Name)
		decl.Parent = qualify(decl.Parent)
		out.Interfaces[i] = decl
	}
	for i, f := range d.Factories {
		f.Type = qualify(f.Type)
		out.Factories[i] = f
	}
	return out
}
