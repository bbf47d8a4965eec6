//go:build cgo

package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/chazu/viable/ffi"
	"github.com/chazu/viable/internal/fixtures"
	"github.com/chazu/viable/marshal"
	"github.com/chazu/viable/vtable"
)

func openNative(t *testing.T) *Bridge {
	t.Helper()
	b, err := Open(context.Background(), project(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })
	for sym, addr := range fixtures.Symbols() {
		b.Provide(sym, addr)
	}
	return b
}

func TestNativeNewAndCall(t *testing.T) {
	b := openNative(t)

	engine, err := b.New("MyEngine", marshal.Int32(5))
	if err != nil {
		t.Fatalf("New(MyEngine): %v", err)
	}
	if v, err := b.Call(engine, "add", marshal.Int32(2), marshal.Int32(3)); err != nil || v.Int32() != 5 {
		t.Errorf("add(2,3) = %v, %v", v, err)
	}
	if v, err := b.Call(engine, "add2", marshal.Int32(2), marshal.Int32(3)); err != nil || v.Int32() != 10 {
		t.Errorf("add2(2,3) = %v, %v", v, err)
	}
	if v, err := b.Field(engine, "mynum"); err != nil || v.Int32() != 5 {
		t.Errorf("mynum = %v, %v", v, err)
	}
}

func TestNativePugThroughBridge(t *testing.T) {
	b := openNative(t)

	f, _ := b.Registry().FactoryFor("Pug")
	args, free, err := ParseArgs(f.Params, []string{"Rex", "4"})
	if err != nil {
		t.Fatal(err)
	}
	defer free()

	pug, err := b.New("Pug", args...)
	if err != nil {
		t.Fatalf("New(Pug): %v", err)
	}
	name, err := b.Call(pug, "name")
	if err != nil {
		t.Fatal(err)
	}
	if name.Pointer() != args[0].Pointer() {
		t.Errorf("name() = %p, want %p", name.Pointer(), args[0].Pointer())
	}
	if Format(name) != `"Rex"` {
		t.Errorf("name() = %s", Format(name))
	}
	if v, err := b.Call(pug, "speak"); err != nil || ffi.GoString(v.Pointer()) != "bark" {
		t.Errorf("speak() = %v, %v", v, err)
	}
	if v, err := b.Call(pug, "age"); err != nil || v.Int32() != 4 {
		t.Errorf("age() = %v, %v", v, err)
	}

	dogSchema, _ := b.Lookup("Dog")
	dog, err := pug.As(dogSchema)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Call(dog, "age"); !errors.Is(err, vtable.ErrUnknownMethod) {
		t.Errorf("Dog.age err = %v, want ErrUnknownMethod", err)
	}
}
