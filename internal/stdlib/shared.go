package stdlib

import (
	"github.com/xirelogy/go-lunar/internal/store"
	"github.com/xirelogy/go-lunar/internal/vm"
)

// openShared exposes the shared store. Values cross the store as copies, so
// a table read from it is private to the reading VM.
func openShared(rt *vm.VM, opts Options) error {
	s := opts.Store
	register(rt, "shared", map[string]vm.NativeFunc{
		"get": func(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
			name, err := vm.CheckString(args, 0, "get")
			if err != nil {
				return nil, err
			}
			v, _, err := s.Get(name)
			if err != nil {
				return nil, err
			}
			return one(v), nil
		},
		"set": func(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
			name, err := vm.CheckString(args, 0, "set")
			if err != nil {
				return nil, err
			}
			return nil, s.Set(rt.Context(), name, vm.Arg(args, 1))
		},
		"delete": func(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
			name, err := vm.CheckString(args, 0, "delete")
			if err != nil {
				return nil, err
			}
			return nil, s.Delete(rt.Context(), name)
		},
		"incr": func(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
			name, err := vm.CheckString(args, 0, "incr")
			if err != nil {
				return nil, err
			}
			delta, err := vm.OptNumber(args, 1, "incr", 1)
			if err != nil {
				return nil, err
			}
			n, err := s.Incr(rt.Context(), name, delta)
			if err != nil {
				return nil, err
			}
			return one(vm.Number(n)), nil
		},
		"keys": func(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
			return one(vm.TableValue(keysTable(s))), nil
		},
	})
	return nil
}

func keysTable(s *store.Store) *vm.Table {
	keys := s.Keys()
	t := vm.NewTable(len(keys), 0)
	for _, k := range keys {
		t.Append(vm.String(k))
	}
	return t
}
