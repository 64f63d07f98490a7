package vm

import (
	"fmt"

	"github.com/xirelogy/go-lunar/internal/bytecode"
)

// BuiltinHandler implements an intrinsic. It receives the flattened call
// arguments and returns its results.
type BuiltinHandler func(vm *VM, args []Value) ([]Value, error)

type builtinEntry struct {
	name    string
	opcode  byte
	minArgs int
	handler BuiltinHandler
}

var builtinRegistry = map[byte]builtinEntry{}

// RegisterBuiltin installs a handler for a builtin opcode. Every VM created
// afterwards also exposes it as a global function.
func RegisterBuiltin(name string, opcode byte, minArgs int, handler BuiltinHandler) {
	if handler == nil {
		panic("nil builtin handler")
	}
	if _, exists := builtinRegistry[opcode]; exists {
		panic(fmt.Sprintf("builtin opcode 0x%X already registered", opcode))
	}
	bytecode.RegisterIntrinsic(name, opcode, minArgs)
	builtinRegistry[opcode] = builtinEntry{
		name:    name,
		opcode:  opcode,
		minArgs: minArgs,
		handler: handler,
	}
}

func lookupBuiltin(op byte) (builtinEntry, bool) {
	entry, ok := builtinRegistry[op]
	return entry, ok
}
