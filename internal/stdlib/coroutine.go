package stdlib

import (
	"github.com/xirelogy/go-lunar/internal/vm"
)

func openCoroutine(rt *vm.VM, opts Options) error {
	register(rt, "coroutine", map[string]vm.NativeFunc{
		"create":      coCreate,
		"resume":      coResume,
		"yield":       coYield,
		"status":      coStatus,
		"wrap":        coWrap,
		"running":     coRunning,
		"isyieldable": coIsYieldable,
	})
	return nil
}

func checkCoroutine(args []vm.Value, i int, fname string) (*vm.Coroutine, error) {
	v := vm.Arg(args, i)
	if v.Kind != vm.KindCoroutine {
		got := "no value"
		if i < len(args) {
			got = v.TypeName()
		}
		return nil, vm.ArgError(i+1, fname, "coroutine expected, got "+got)
	}
	return v.Co, nil
}

func coCreate(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	fn, err := vm.CheckFunction(args, 0, "create")
	if err != nil {
		return nil, err
	}
	co, err := vm.NewCoroutine(fn)
	if err != nil {
		return nil, err
	}
	return one(vm.CoroutineValue(co)), nil
}

// coResume reports faults inside the coroutine as false plus the payload.
// Termination still propagates.
func coResume(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	co, err := checkCoroutine(args, 0, "resume")
	if err != nil {
		return nil, err
	}
	res, err := rt.Resume(co, args[1:])
	if err != nil {
		if vm.IsFatal(err) {
			return nil, err
		}
		return []vm.Value{vm.Bool(false), vm.ErrorValue(err)}, nil
	}
	return append([]vm.Value{vm.Bool(true)}, res...), nil
}

func coYield(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	return nil, rt.Yield(args)
}

func coStatus(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	co, err := checkCoroutine(args, 0, "status")
	if err != nil {
		return nil, err
	}
	return one(vm.String(co.Status().String())), nil
}

// coWrap returns a function that resumes the coroutine and raises its
// faults instead of returning them.
func coWrap(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	fn, err := vm.CheckFunction(args, 0, "wrap")
	if err != nil {
		return nil, err
	}
	co, err := vm.NewCoroutine(fn)
	if err != nil {
		return nil, err
	}
	return one(vm.NewNative("wrap", func(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
		return rt.Resume(co, args)
	})), nil
}

func coRunning(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	co := rt.RunningCoroutine()
	if co == nil {
		return one(vm.Nil()), nil
	}
	return one(vm.CoroutineValue(co)), nil
}

func coIsYieldable(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	return one(vm.Bool(rt.IsYieldable())), nil
}
