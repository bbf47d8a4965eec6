// Package ffi performs native calls through libffi and loads shared
// libraries with dlopen. Builds without cgo get a stub whose calls fail
// with ErrUnavailable.
package ffi

import "errors"

// ErrUnavailable is returned when the binary was built without cgo.
var ErrUnavailable = errors.New("ffi: native calls unavailable (built without cgo)")
