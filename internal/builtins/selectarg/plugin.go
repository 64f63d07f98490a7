package selectarg

import (
	"github.com/xirelogy/go-lunar/internal/runtime"
	"github.com/xirelogy/go-lunar/internal/vm"
)

const opcode byte = 0x87

func init() {
	runtime.Register(runtime.Spec{
		Name:    "select",
		Opcode:  opcode,
		MinArgs: 1,
		Handler: runSelect,
	})
}

func runSelect(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	rest := args[1:]
	if sel := args[0]; sel.Kind == vm.KindString && sel.Str == "#" {
		return []vm.Value{vm.Number(float64(len(rest)))}, nil
	}
	n, err := vm.CheckInteger(args, 0, "select")
	if err != nil {
		return nil, err
	}
	switch {
	case n < 0:
		n = len(rest) + n
		if n < 0 {
			return nil, vm.ArgError(1, "select", "index out of range")
		}
	case n == 0:
		return nil, vm.ArgError(1, "select", "index out of range")
	default:
		n--
	}
	if n >= len(rest) {
		return nil, nil
	}
	return rest[n:], nil
}
