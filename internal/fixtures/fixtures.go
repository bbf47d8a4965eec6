//go:build cgo

// Package fixtures builds small C++ classes with virtual methods and
// exposes their extern "C" factories for tests.
//
// MyEngine implements MathEngine{add, add2}; Pug implements Dog{speak},
// which extends Pet{name}, and adds age() outside any interface.
package fixtures

/*
#cgo CXXFLAGS: -std=c++11 -Wno-non-virtual-dtor
#cgo LDFLAGS: -lstdc++
#include <stdint.h>

void* getMath(int b);
void* getPug(const char* name, int age);

static uintptr_t fixtures_get_math(void) { return (uintptr_t)&getMath; }
static uintptr_t fixtures_get_pug(void) { return (uintptr_t)&getPug; }
*/
import "C"

// Factory symbols and their code addresses.
const (
	GetMath = "getMath"
	GetPug  = "getPug"
)

// Symbols maps each factory symbol to its code address.
func Symbols() map[string]uintptr {
	return map[string]uintptr{
		GetMath: uintptr(C.fixtures_get_math()),
		GetPug:  uintptr(C.fixtures_get_pug()),
	}
}
