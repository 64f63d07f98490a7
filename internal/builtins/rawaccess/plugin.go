// Package rawaccess provides the intrinsics that bypass metamethods.
package rawaccess

import (
	"github.com/xirelogy/go-lunar/internal/runtime"
	"github.com/xirelogy/go-lunar/internal/vm"
)

const (
	opRawGet   byte = 0x83
	opRawSet   byte = 0x84
	opRawEqual byte = 0x85
	opRawLen   byte = 0x86
)

func init() {
	runtime.Register(runtime.Spec{Name: "rawget", Opcode: opRawGet, MinArgs: 2, Handler: runRawGet})
	runtime.Register(runtime.Spec{Name: "rawset", Opcode: opRawSet, MinArgs: 3, Handler: runRawSet})
	runtime.Register(runtime.Spec{Name: "rawequal", Opcode: opRawEqual, MinArgs: 2, Handler: runRawEqual})
	runtime.Register(runtime.Spec{Name: "rawlen", Opcode: opRawLen, MinArgs: 1, Handler: runRawLen})
}

func runRawGet(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	t, err := vm.CheckTable(args, 0, "rawget")
	if err != nil {
		return nil, err
	}
	return []vm.Value{t.Get(args[1])}, nil
}

func runRawSet(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	t, err := vm.CheckTable(args, 0, "rawset")
	if err != nil {
		return nil, err
	}
	if err := t.Set(args[1], args[2]); err != nil {
		return nil, err
	}
	return []vm.Value{args[0]}, nil
}

func runRawEqual(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	return []vm.Value{vm.Bool(vm.RawEqual(args[0], args[1]))}, nil
}

func runRawLen(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	switch v := args[0]; v.Kind {
	case vm.KindTable:
		return []vm.Value{vm.Number(float64(v.Tab.Len()))}, nil
	case vm.KindString:
		return []vm.Value{vm.Number(float64(len(v.Str)))}, nil
	}
	return nil, vm.ArgError(1, "rawlen", "table or string expected")
}
