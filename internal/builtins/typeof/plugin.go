package typeof

import (
	"github.com/xirelogy/go-lunar/internal/runtime"
	"github.com/xirelogy/go-lunar/internal/vm"
)

const opcode byte = 0x80

func init() {
	runtime.Register(runtime.Spec{
		Name:    "type",
		Opcode:  opcode,
		MinArgs: 1,
		Handler: runType,
	})
}

func runType(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	return []vm.Value{vm.String(args[0].TypeName())}, nil
}
