package stdlib

import (
	"math"

	"github.com/xirelogy/go-lunar/internal/vm"
)

func openMath(rt *vm.VM, opts Options) error {
	lib := register(rt, "math", map[string]vm.NativeFunc{
		"abs":   unary("abs", math.Abs),
		"ceil":  unary("ceil", math.Ceil),
		"floor": unary("floor", math.Floor),
		"sqrt":  unary("sqrt", math.Sqrt),
		"exp":   unary("exp", math.Exp),
		"max":   extremum("max", func(a, b float64) bool { return a > b }),
		"min":   extremum("min", func(a, b float64) bool { return a < b }),
		"fmod":  mathFmod,
		"modf":  mathModf,
		"log":   mathLog,
		"pow":   mathPow,
	})
	lib.SetString("huge", vm.Number(math.Inf(1)))
	lib.SetString("pi", vm.Number(math.Pi))
	return nil
}

func unary(name string, fn func(float64) float64) vm.NativeFunc {
	return func(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
		x, err := vm.CheckNumber(args, 0, name)
		if err != nil {
			return nil, err
		}
		return one(vm.Number(fn(x))), nil
	}
}

func extremum(name string, better func(a, b float64) bool) vm.NativeFunc {
	return func(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
		best, err := vm.CheckNumber(args, 0, name)
		if err != nil {
			return nil, err
		}
		for i := 1; i < len(args); i++ {
			x, err := vm.CheckNumber(args, i, name)
			if err != nil {
				return nil, err
			}
			if better(x, best) {
				best = x
			}
		}
		return one(vm.Number(best)), nil
	}
}

func mathFmod(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	a, err := vm.CheckNumber(args, 0, "fmod")
	if err != nil {
		return nil, err
	}
	b, err := vm.CheckNumber(args, 1, "fmod")
	if err != nil {
		return nil, err
	}
	return one(vm.Number(math.Mod(a, b))), nil
}

func mathModf(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	x, err := vm.CheckNumber(args, 0, "modf")
	if err != nil {
		return nil, err
	}
	if math.IsInf(x, 0) {
		return []vm.Value{vm.Number(x), vm.Number(0)}, nil
	}
	ip, frac := math.Modf(x)
	return []vm.Value{vm.Number(ip), vm.Number(frac)}, nil
}

func mathLog(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	x, err := vm.CheckNumber(args, 0, "log")
	if err != nil {
		return nil, err
	}
	if vm.Arg(args, 1).IsNil() {
		return one(vm.Number(math.Log(x))), nil
	}
	base, err := vm.CheckNumber(args, 1, "log")
	if err != nil {
		return nil, err
	}
	switch base {
	case 2:
		return one(vm.Number(math.Log2(x))), nil
	case 10:
		return one(vm.Number(math.Log10(x))), nil
	}
	return one(vm.Number(math.Log(x) / math.Log(base))), nil
}

func mathPow(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	x, err := vm.CheckNumber(args, 0, "pow")
	if err != nil {
		return nil, err
	}
	y, err := vm.CheckNumber(args, 1, "pow")
	if err != nil {
		return nil, err
	}
	return one(vm.Number(math.Pow(x, y))), nil
}
