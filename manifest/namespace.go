package manifest

import "strings"

// ToPascalCase converts a dependency name to a namespace segment.
// "my-app" -> "MyApp", "models" -> "Models", "myApp" -> "MyApp"
func ToPascalCase(s string) string {
	var words []string
	current := ""
	for i, r := range s {
		if r == '-' || r == '_' {
			if current != "" {
				words = append(words, current)
				current = ""
			}
			continue
		}
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := rune(s[i-1])
			if prev >= 'a' && prev <= 'z' {
				words = append(words, current)
				current = ""
			}
		}
		current += string(r)
	}
	if current != "" {
		words = append(words, current)
	}

	var result string
	for _, w := range words {
		if w == "" {
			continue
		}
		result += strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return result
}

// reservedNamespaces lists C++ runtime namespaces. Schema pack
// interfaces qualified under them would shadow the standard library's own
// classes in layouts and logs.
var reservedNamespaces = map[string]bool{
	"std":        true,
	"__gnu_cxx":  true,
	"__cxxabiv1": true,
	"Platform":   true,
	"Windows":    true,
}

// IsReservedNamespace reports whether the root segment of name is a C++
// runtime namespace. Only the root segment is checked: "Vendor::std" is
// fine because the root is "Vendor".
func IsReservedNamespace(name string) bool {
	root := name
	if idx := strings.Index(name, "::"); idx >= 0 {
		root = name[:idx]
	}
	return reservedNamespaces[root]
}

// ValidNamespace reports whether every "::" segment of ns is a C++
// identifier.
func ValidNamespace(ns string) bool {
	if ns == "" {
		return false
	}
	for _, seg := range strings.Split(ns, "::") {
		if seg == "" {
			return false
		}
		for i, r := range seg {
			switch {
			case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			case i > 0 && r >= '0' && r <= '9':
			default:
				return false
			}
		}
	}
	return true
}
