package marshal

import (
	"fmt"
	"runtime"
	"strings"
)

// Convention is the platform policy for virtual calls. Everything that
// differs between C++ ABIs lives behind it.
type Convention interface {
	Name() string

	// VPtrOffset is the byte offset of the vtable pointer in an object.
	VPtrOffset() uintptr

	// ReuseTailPadding reports whether derived data members may occupy a
	// base class's tail padding.
	ReuseTailPadding() bool

	// Arrange places the receiver among the explicit arguments.
	Arrange(receiver Arg, args []Arg) []Arg
}

// receiverFirst passes this as the first integer argument. Both the
// Itanium ABI (SysV x86-64, AArch64) and MSVC x64 do so.
func receiverFirst(receiver Arg, args []Arg) []Arg {
	out := make([]Arg, 0, len(args)+1)
	out = append(out, receiver)
	return append(out, args...)
}

type itanium struct{}

func (itanium) Name() string                       { return "itanium" }
func (itanium) VPtrOffset() uintptr                { return 0 }
func (itanium) ReuseTailPadding() bool             { return true }
func (itanium) Arrange(recv Arg, args []Arg) []Arg { return receiverFirst(recv, args) }

type msvc struct{}

func (msvc) Name() string                       { return "msvc" }
func (msvc) VPtrOffset() uintptr                { return 0 }
func (msvc) ReuseTailPadding() bool             { return false }
func (msvc) Arrange(recv Arg, args []Arg) []Arg { return receiverFirst(recv, args) }

var (
	// Itanium is the GCC/Clang C++ ABI.
	Itanium Convention = itanium{}

	// MSVC is the Microsoft x64 C++ ABI.
	MSVC Convention = msvc{}
)

// Host returns the convention native code on this platform uses.
func Host() Convention {
	if runtime.GOOS == "windows" {
		return MSVC
	}
	return Itanium
}

// ConventionByName looks up a convention. An empty name or "host" selects
// Host().
func ConventionByName(name string) (Convention, error) {
	switch strings.ToLower(name) {
	case "", "host":
		return Host(), nil
	case "itanium", "sysv", "gcc", "clang":
		return Itanium, nil
	case "msvc", "win64":
		return MSVC, nil
	}
	return nil, fmt.Errorf("unknown calling convention %q", name)
}
