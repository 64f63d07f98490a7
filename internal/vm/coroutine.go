package vm

import "github.com/xirelogy/go-lunar/internal/bytecode"

type CoStatus int

const (
	CoSuspended CoStatus = iota
	CoRunning
	CoNormal
	CoDead
)

func (s CoStatus) String() string {
	switch s {
	case CoSuspended:
		return "suspended"
	case CoRunning:
		return "running"
	case CoNormal:
		return "normal"
	default:
		return "dead"
	}
}

// Coroutine is a cooperatively scheduled thread with its own stack. It runs
// on the goroutine that resumes it.
type Coroutine struct {
	fn      *Function
	th      *thread
	status  CoStatus
	started bool
}

// NewCoroutine creates a suspended coroutine around a function value.
func NewCoroutine(fn Value) (*Coroutine, error) {
	fn = fn.First()
	if fn.Kind != KindFunction {
		return nil, typeErrorf("bad argument #1 to 'create' (function expected)")
	}
	co := &Coroutine{fn: fn.Func, status: CoSuspended}
	co.th = &thread{stack: make([]Value, 0, 16), co: co}
	return co, nil
}

func (co *Coroutine) Status() CoStatus { return co.status }

// Resume runs co until it yields, returns or faults. Yielded or returned
// values are the results; a fault kills the coroutine.
func (vm *VM) Resume(co *Coroutine, args []Value) ([]Value, error) {
	switch co.status {
	case CoDead:
		return nil, typeErrorf("cannot resume dead coroutine")
	case CoRunning, CoNormal:
		return nil, typeErrorf("cannot resume non-suspended coroutine")
	}
	prev := vm.cur
	if prev != nil && prev.co != nil {
		prev.co.status = CoNormal
	}
	co.status = CoRunning
	vm.cur = co.th
	defer func() {
		vm.cur = prev
		if prev != nil && prev.co != nil {
			prev.co.status = CoRunning
		}
	}()

	th := co.th
	if !co.started {
		co.started = true
		if co.fn.Native != nil {
			th.hostDepth = 1
			res, err := vm.callNative(co.fn, args)
			co.status = CoDead
			return res, err
		}
		if err := vm.pushFrame(th, co.fn, args, bytecode.WantMulti); err != nil {
			co.status = CoDead
			return nil, err
		}
	} else {
		vm.pushResults(th, args, th.yieldWant)
	}
	res, err := vm.execute(th, 0)
	if err == errYield {
		co.status = CoSuspended
		out := th.yielded
		th.yielded = nil
		return out, nil
	}
	co.status = CoDead
	return res, err
}

// Yield suspends the running coroutine. The returned error must be passed
// straight back to the VM by the calling native.
func (vm *VM) Yield(args []Value) error {
	th := vm.cur
	if th == nil || th.co == nil {
		return typeErrorf("attempt to yield from outside a coroutine")
	}
	if th.hostDepth > 0 {
		return typeErrorf("attempt to yield across a host-call boundary")
	}
	th.yielded = append([]Value(nil), args...)
	return errYield
}

// RunningCoroutine returns the running coroutine, or nil on the main thread.
func (vm *VM) RunningCoroutine() *Coroutine {
	if vm.cur == nil {
		return nil
	}
	return vm.cur.co
}

// IsYieldable reports whether Yield would succeed.
func (vm *VM) IsYieldable() bool {
	return vm.cur != nil && vm.cur.co != nil && vm.cur.hostDepth == 0
}
