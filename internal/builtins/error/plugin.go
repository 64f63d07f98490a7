package errorbuiltin

import (
	"github.com/xirelogy/go-lunar/internal/runtime"
	"github.com/xirelogy/go-lunar/internal/vm"
)

const opcode byte = 0x81

func init() {
	runtime.Register(runtime.Spec{
		Name:    "error",
		Opcode:  opcode,
		MinArgs: 0,
		Handler: runError,
	})
}

// runError raises its first argument. The optional level selects which
// frame's position prefixes a string message: 1 (default) the caller of
// error, 2 the caller's caller, 0 none.
func runError(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	level, err := vm.OptInteger(args, 1, "error", 1)
	if err != nil {
		return nil, err
	}
	return nil, vm.NewError(vm.Arg(args, 0), level)
}
