package metatable

import (
	"github.com/xirelogy/go-lunar/internal/runtime"
	"github.com/xirelogy/go-lunar/internal/vm"
)

const (
	opSetMetatable byte = 0x88
	opGetMetatable byte = 0x89
)

func init() {
	runtime.Register(runtime.Spec{Name: "setmetatable", Opcode: opSetMetatable, MinArgs: 2, Handler: runSetMetatable})
	runtime.Register(runtime.Spec{Name: "getmetatable", Opcode: opGetMetatable, MinArgs: 1, Handler: runGetMetatable})
}

func runSetMetatable(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	t, err := vm.CheckTable(args, 0, "setmetatable")
	if err != nil {
		return nil, err
	}
	mt := args[1]
	if mt.Kind != vm.KindNil && mt.Kind != vm.KindTable {
		return nil, vm.ArgError(2, "setmetatable", "nil or table expected")
	}
	if cur := t.Metatable(); cur != nil && !cur.GetString("__metatable").IsNil() {
		return nil, &vm.TypeError{Message: "cannot change a protected metatable"}
	}
	t.SetMetatable(mt.Tab)
	return []vm.Value{args[0]}, nil
}

// runGetMetatable honors the __metatable field of protected metatables.
func runGetMetatable(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	mt := rt.Metatable(args[0])
	if mt == nil {
		return []vm.Value{vm.Nil()}, nil
	}
	if guard := mt.GetString("__metatable"); !guard.IsNil() {
		return []vm.Value{guard}, nil
	}
	return []vm.Value{vm.TableValue(mt)}, nil
}
