package vm

import (
	"github.com/xirelogy/go-lunar/internal/bytecode"
)

// resolveCallable turns callee into a function, following __call and host
// Caller descriptors.
func (vm *VM) resolveCallable(callee Value, args []Value) (*Function, []Value, error) {
	callee = callee.First()
	switch callee.Kind {
	case KindFunction:
		return callee.Func, args, nil
	case KindUserData:
		if mm := vm.metamethod(callee, "__call"); mm.Kind == KindFunction {
			return mm.Func, prepend(callee, args), nil
		}
		if c, ok := callee.UD.Desc.(Caller); ok && callee.UD.Desc != nil {
			ud := callee.UD
			return &Function{
				Name: ud.Desc.Name(),
				Native: func(vm *VM, args []Value) ([]Value, error) {
					return c.Call(vm, ud, args)
				},
			}, args, nil
		}
	default:
		if mm := vm.metamethod(callee, "__call"); mm.Kind == KindFunction {
			return mm.Func, prepend(callee, args), nil
		}
	}
	return nil, nil, typeErrorf("attempt to call a %s value", callee.TypeName())
}

func prepend(v Value, args []Value) []Value {
	out := make([]Value, 0, len(args)+1)
	out = append(out, v)
	return append(out, args...)
}

// call dispatches a call issued by an instruction. Script functions get a
// new frame on th; natives run immediately and push their results.
func (vm *VM) call(th *thread, callee Value, args []Value, want byte) error {
	fn, args, err := vm.resolveCallable(callee, args)
	if err != nil {
		return err
	}
	if fn.Native == nil {
		return vm.pushFrame(th, fn, args, want)
	}
	res, err := vm.callNative(fn, args)
	if err == errYield {
		th.yieldWant = want
		return errYield
	}
	if err != nil {
		return err
	}
	vm.pushResults(th, res, want)
	return nil
}

func (vm *VM) pushFrame(th *thread, fn *Function, args []Value, want byte) error {
	if len(th.frames) >= vm.maxFrames {
		return typeErrorf("stack overflow")
	}
	proto := fn.Proto
	fr := &frame{
		fn:     fn,
		lastOp: -1,
		locals: make([]Value, fn.maxLocals()),
		base:   len(th.stack),
		want:   want,
	}
	n := proto.NumParams
	for i := 0; i < n && i < len(args); i++ {
		fr.locals[i] = args[i].First()
	}
	if proto.IsVararg && len(args) > n {
		fr.varargs = append([]Value(nil), args[n:]...)
	}
	th.frames = append(th.frames, fr)
	return nil
}

// returnFrom pops fr. When the frame count reaches stop the results are
// handed back to the Go caller; otherwise they go to the calling frame.
func (vm *VM) returnFrom(th *thread, fr *frame, results []Value, stop int) ([]Value, bool) {
	th.closeUpvalues(fr, 0)
	th.frames[len(th.frames)-1] = nil
	th.frames = th.frames[:len(th.frames)-1]
	th.truncate(fr.base)
	if len(th.frames) <= stop {
		return results, true
	}
	vm.pushResults(th, results, fr.want)
	return nil, false
}

// pushResults adjusts res to want values, or one tuple for WantMulti.
func (vm *VM) pushResults(th *thread, res []Value, want byte) {
	if want == bytecode.WantMulti {
		flat := make([]Value, 0, len(res))
		for _, v := range res {
			if v.Kind == KindTuple {
				flat = append(flat, v.Tup...)
				continue
			}
			flat = append(flat, v)
		}
		th.push(Tuple(flat...))
		return
	}
	for i := 0; i < int(want); i++ {
		if i < len(res) {
			th.push(res[i].First())
		} else {
			th.push(Nil())
		}
	}
}

func (vm *VM) runBuiltin(th *thread, fr *frame, op byte) error {
	argc := int(readU8(fr))
	want := readU8(fr)
	multi := readU8(fr)
	args := th.popArgs(argc, multi)
	entry, ok := lookupBuiltin(op)
	if !ok {
		return typeErrorf("unknown builtin opcode 0x%02X", op)
	}
	if len(args) < entry.minArgs {
		return ArgError(len(args)+1, entry.name, "value expected")
	}
	res, err := vm.callNative(&Function{Name: entry.name, Native: NativeFunc(entry.handler)}, args)
	if err != nil {
		return err
	}
	vm.pushResults(th, res, want)
	return nil
}
