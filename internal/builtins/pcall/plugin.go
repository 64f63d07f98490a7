package pcall

import (
	"github.com/xirelogy/go-lunar/internal/runtime"
	"github.com/xirelogy/go-lunar/internal/vm"
)

const opcode byte = 0x82

func init() {
	runtime.Register(runtime.Spec{
		Name:    "pcall",
		Opcode:  opcode,
		MinArgs: 1,
		Handler: runPcall,
	})
}

// runPcall calls its first argument in protected mode. Termination and
// instruction-limit faults are not caught.
func runPcall(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	res, err := rt.Call(args[0], args[1:]...)
	if err != nil {
		if vm.IsFatal(err) {
			return nil, err
		}
		return []vm.Value{vm.Bool(false), vm.ErrorValue(err)}, nil
	}
	out := make([]vm.Value, 0, len(res)+1)
	out = append(out, vm.Bool(true))
	return append(out, res...), nil
}
