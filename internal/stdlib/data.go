package stdlib

import (
	"github.com/xirelogy/go-lunar/internal/serial"
	"github.com/xirelogy/go-lunar/internal/vm"
)

// openJSON installs json.encode(v [, indent]) and json.decode(s).
func openJSON(rt *vm.VM, opts Options) error {
	register(rt, "json", map[string]vm.NativeFunc{
		"encode": func(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
			v, err := vm.CheckAny(args, 0, "encode")
			if err != nil {
				return nil, err
			}
			s, err := serial.ToJSON(v, vm.Truthy(vm.Arg(args, 1)))
			if err != nil {
				return nil, err
			}
			return one(vm.String(s)), nil
		},
		"decode": func(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
			s, err := vm.CheckString(args, 0, "decode")
			if err != nil {
				return nil, err
			}
			v, err := serial.FromJSON(s)
			if err != nil {
				return nil, err
			}
			return one(v), nil
		},
	})
	return nil
}

func openYAML(rt *vm.VM, opts Options) error {
	register(rt, "yaml", map[string]vm.NativeFunc{
		"encode": func(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
			v, err := vm.CheckAny(args, 0, "encode")
			if err != nil {
				return nil, err
			}
			s, err := serial.ToYAML(v)
			if err != nil {
				return nil, err
			}
			return one(vm.String(s)), nil
		},
		"decode": func(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
			s, err := vm.CheckString(args, 0, "decode")
			if err != nil {
				return nil, err
			}
			v, err := serial.FromYAML(s)
			if err != nil {
				return nil, err
			}
			return one(v), nil
		},
	})
	return nil
}
