package schema

import (
	"fmt"
	"strings"
)

// PrimitiveType is the closed set of types a virtual method signature may use.
type PrimitiveType uint8

const (
	Void PrimitiveType = iota
	Int32
	Pointer
	CString
)

var typeNames = [...]string{
	Void:    "void",
	Int32:   "int32",
	Pointer: "pointer",
	CString: "cstring",
}

// typeAliases maps accepted spellings to their primitive type.
// C spellings are accepted so documents can be written from headers.
var typeAliases = map[string]PrimitiveType{
	"void":        Void,
	"int32":       Int32,
	"int":         Int32,
	"i32":         Int32,
	"pointer":     Pointer,
	"ptr":         Pointer,
	"void*":       Pointer,
	"cstring":     CString,
	"char*":       CString,
	"const char*": CString,
}

func (t PrimitiveType) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("PrimitiveType(%d)", uint8(t))
}

// IsAddress reports whether values of t travel as raw addresses.
func (t PrimitiveType) IsAddress() bool {
	return t == Pointer || t == CString
}

// ParseType resolves a type name. Unknown names fail with ErrUnsupportedType.
func ParseType(name string) (PrimitiveType, error) {
	key := strings.Join(strings.Fields(name), " ")
	key = strings.ReplaceAll(key, " *", "*")
	if t, ok := typeAliases[key]; ok {
		return t, nil
	}
	return Void, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
}

// parseValueType is ParseType restricted to types that can hold a value.
func parseValueType(name string) (PrimitiveType, error) {
	t, err := ParseType(name)
	if err != nil {
		return t, err
	}
	if t == Void {
		return t, fmt.Errorf("%w: void is only valid as a return type", ErrUnsupportedType)
	}
	return t, nil
}

// parseReturnType treats an empty name as void.
func parseReturnType(name string) (PrimitiveType, error) {
	if strings.TrimSpace(name) == "" {
		return Void, nil
	}
	return ParseType(name)
}
