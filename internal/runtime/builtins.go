// Package runtime binds intrinsic functions to their opcodes. Plugins
// register from init; the compiler then turns calls to an unshadowed global
// of the same name into the opcode.
package runtime

import (
	"fmt"

	"github.com/xirelogy/go-lunar/internal/token"
	"github.com/xirelogy/go-lunar/internal/vm"
)

// Spec describes an intrinsic: the global name it shadows, its opcode and
// the minimum number of arguments it accepts.
type Spec struct {
	Name    string
	Opcode  byte
	MinArgs int
	Handler vm.BuiltinHandler
}

var opcodes = map[string]byte{}

// Register installs an intrinsic. Names must be unique identifiers; the
// opcode range is checked when the handler reaches the VM.
func Register(spec Spec) {
	switch {
	case spec.Handler == nil:
		panic(fmt.Sprintf("intrinsic %s has nil handler", spec.Name))
	case spec.Name == "" || token.IsKeyword(spec.Name):
		panic(fmt.Sprintf("intrinsic name %q is not an identifier", spec.Name))
	case spec.MinArgs < 0:
		panic(fmt.Sprintf("intrinsic %s: negative argument count", spec.Name))
	}
	if _, exists := opcodes[spec.Name]; exists {
		panic(fmt.Sprintf("intrinsic %s already registered", spec.Name))
	}
	vm.RegisterBuiltin(spec.Name, spec.Opcode, spec.MinArgs, spec.Handler)
	opcodes[spec.Name] = spec.Opcode
}

// Opcode returns the opcode bound to name.
func Opcode(name string) (byte, bool) {
	op, ok := opcodes[name]
	return op, ok
}
