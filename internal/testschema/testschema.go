// Package testschema embeds the schema documents describing the C++
// fixture classes, for tests that must not depend on cgo.
package testschema

import _ "embed"

//go:embed fixtures.toml
var FixturesTOML []byte
