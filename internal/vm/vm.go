package vm

import (
	"context"
	"io"
	"os"

	"github.com/xirelogy/go-lunar/internal/bytecode"
)

// Prototype is a compiled function body.
type Prototype = bytecode.Prototype

type frame struct {
	fn      *Function
	ip      int
	lastOp  int
	locals  []Value
	varargs []Value
	base    int
	want    byte
}

// thread is one call stack: the main run or a coroutine.
type thread struct {
	stack  []Value
	frames []*frame
	open   []*upvalue
	co     *Coroutine
	// hostDepth counts host calls (natives re-entering the VM) active on
	// this thread; yielding is only possible when it is zero.
	hostDepth int
	yieldWant byte
	yielded   []Value
}

// VM is a stack-based bytecode interpreter. A VM runs one script at a time;
// several VMs may run concurrently on separate goroutines.
type VM struct {
	globals    *Table
	stringMeta *Table
	cur        *thread
	ctx        context.Context
	done       <-chan struct{}
	maxFrames  int
	traceHook  TraceHook
	instLimit  int
	instCount  int
	stdout     io.Writer
}

const (
	defaultMaxFrames = 200
	maxMetaChain     = 100
)

// New constructs a VM whose globals hold the registered intrinsics.
func New() *VM {
	vm := &VM{
		globals:   NewTable(0, 64),
		maxFrames: defaultMaxFrames,
		stdout:    os.Stdout,
	}
	vm.globals.SetString("_G", TableValue(vm.globals))
	for _, entry := range builtinRegistry {
		vm.globals.SetString(entry.name, NewNative(entry.name, NativeFunc(entry.handler)))
	}
	return vm
}

// SetTraceHook registers a callback for instruction-level tracing.
func (vm *VM) SetTraceHook(h TraceHook) {
	vm.traceHook = h
}

// SetInstructionLimit caps the number of instructions executed per Run (0 for unlimited).
func (vm *VM) SetInstructionLimit(limit int) {
	if limit < 0 {
		limit = 0
	}
	vm.instLimit = limit
}

// SetMaxCallDepth caps the number of nested script frames.
func (vm *VM) SetMaxCallDepth(depth int) {
	if depth <= 0 {
		depth = defaultMaxFrames
	}
	vm.maxFrames = depth
}

// SetStdout redirects print and friends.
func (vm *VM) SetStdout(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	vm.stdout = w
}

func (vm *VM) Stdout() io.Writer { return vm.stdout }

// Globals returns the global environment table.
func (vm *VM) Globals() *Table { return vm.globals }

// SetGlobal binds a value into the global environment.
func (vm *VM) SetGlobal(name string, v Value) {
	vm.globals.SetString(name, v)
}

// GetGlobal reads a global without metamethods.
func (vm *VM) GetGlobal(name string) Value {
	return vm.globals.GetString(name)
}

// SetStringMetatable installs the metatable shared by all strings.
func (vm *VM) SetStringMetatable(t *Table) {
	vm.stringMeta = t
}

// Running reports whether a run is in progress.
func (vm *VM) Running() bool {
	return vm.cur != nil
}

// Load wraps a compiled main prototype as a callable function value.
func Load(proto *Prototype) Value {
	return FunctionValue(&Function{
		Proto:    proto,
		Name:     proto.Name,
		Upvalues: make([]*upvalue, len(proto.Upvalues)),
	})
}

// Run calls callee on a fresh stack. The context is checked before every
// instruction and around every host call.
func (vm *VM) Run(ctx context.Context, callee Value, args []Value) ([]Value, error) {
	if vm.cur != nil {
		return nil, ErrBusy
	}
	if ctx == nil {
		ctx = context.Background()
	}
	vm.ctx = ctx
	vm.done = ctx.Done()
	vm.instCount = 0
	th := &thread{stack: make([]Value, 0, 64)}
	vm.cur = th
	defer func() {
		vm.cur = nil
		vm.ctx = nil
		vm.done = nil
	}()
	if err := vm.checkCancel(); err != nil {
		return nil, err
	}
	res, err := vm.callOn(th, callee, args)
	if err == errYield {
		return nil, vm.decorate(th, nil, typeErrorf("attempt to yield from outside a coroutine"))
	}
	return res, err
}

// Call invokes callee. From inside a running native it re-enters the
// current thread; otherwise it starts a new run without a deadline.
func (vm *VM) Call(callee Value, args ...Value) ([]Value, error) {
	if vm.cur == nil {
		return vm.Run(context.Background(), callee, args)
	}
	return vm.callOn(vm.cur, callee, args)
}

// Context returns the context of the active run.
func (vm *VM) Context() context.Context {
	if vm.ctx == nil {
		return context.Background()
	}
	return vm.ctx
}

func (vm *VM) checkCancel() error {
	if vm.done == nil {
		return nil
	}
	select {
	case <-vm.done:
		return &terminationError{cause: vm.ctx.Err()}
	default:
		return nil
	}
}

// callOn performs a host-initiated call on th and waits for its results.
func (vm *VM) callOn(th *thread, callee Value, args []Value) ([]Value, error) {
	fn, args, err := vm.resolveCallable(callee, args)
	if err != nil {
		return nil, err
	}
	if th.hostDepth >= vm.maxFrames {
		return nil, typeErrorf("stack overflow")
	}
	th.hostDepth++
	defer func() { th.hostDepth-- }()
	if fn.Native != nil {
		return vm.callNative(fn, args)
	}
	depth := len(th.frames)
	if err := vm.pushFrame(th, fn, args, bytecode.WantMulti); err != nil {
		return nil, err
	}
	return vm.execute(th, depth)
}

func (vm *VM) callNative(fn *Function, args []Value) (res []Value, err error) {
	if err := vm.checkCancel(); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, nativePanic(fn.Name, r)
		}
	}()
	res, err = fn.Native(vm, args)
	if err != nil {
		return nil, err
	}
	if err := vm.checkCancel(); err != nil {
		return nil, err
	}
	return res, nil
}

func (vm *VM) step(fr *frame, op byte) error {
	if err := vm.checkCancel(); err != nil {
		return err
	}
	vm.instCount++
	if vm.instLimit > 0 && vm.instCount > vm.instLimit {
		return ErrInstructionLimit
	}
	vm.trace(fr, op)
	return nil
}

// execute runs th until the frame count drops back to stop and returns the
// results of the frame that was on top at entry.
func (vm *VM) execute(th *thread, stop int) ([]Value, error) {
	for {
		fr := th.frames[len(th.frames)-1]
		chunk := fr.fn.Proto.Chunk
		code := chunk.Code
		if fr.ip >= len(code) {
			if res, done := vm.returnFrom(th, fr, nil, stop); done {
				return res, nil
			}
			continue
		}
		fr.lastOp = fr.ip
		op := code[fr.ip]
		fr.ip++
		if err := vm.step(fr, op); err != nil {
			return nil, vm.fail(th, fr, stop, err)
		}

		var err error
		if op >= bytecode.OP_BUILTIN_FIRST && op <= bytecode.OP_BUILTIN_LAST {
			err = vm.runBuiltin(th, fr, op)
			if err != nil {
				return nil, vm.fail(th, fr, stop, err)
			}
			continue
		}

		switch op {
		case bytecode.OP_NOP:
		case bytecode.OP_CONST:
			th.push(constToValue(chunk.Consts[readU16(fr)]))
		case bytecode.OP_NIL:
			th.push(Nil())
		case bytecode.OP_TRUE:
			th.push(Bool(true))
		case bytecode.OP_FALSE:
			th.push(Bool(false))
		case bytecode.OP_POP:
			th.pop()
		case bytecode.OP_VARARG:
			want := readU8(fr)
			vm.pushResults(th, fr.varargs, want)
		case bytecode.OP_ADD, bytecode.OP_SUB, bytecode.OP_MUL, bytecode.OP_DIV,
			bytecode.OP_MOD, bytecode.OP_POW:
			b := th.pop()
			a := th.pop()
			var res Value
			if res, err = vm.arith(op, a, b); err == nil {
				th.push(res)
			}
		case bytecode.OP_NEG:
			var res Value
			if res, err = vm.negate(th.pop()); err == nil {
				th.push(res)
			}
		case bytecode.OP_NOT:
			th.push(Bool(!Truthy(th.pop())))
		case bytecode.OP_EQ, bytecode.OP_NEQ:
			b := th.pop()
			a := th.pop()
			var eq bool
			if eq, err = vm.Equal(a, b); err == nil {
				th.push(Bool(eq == (op == bytecode.OP_EQ)))
			}
		case bytecode.OP_LT, bytecode.OP_LTE, bytecode.OP_GT, bytecode.OP_GTE:
			b := th.pop()
			a := th.pop()
			var res bool
			switch op {
			case bytecode.OP_LT:
				res, err = vm.LessThan(a, b)
			case bytecode.OP_LTE:
				res, err = vm.LessEqual(a, b)
			case bytecode.OP_GT:
				res, err = vm.LessThan(b, a)
			default:
				res, err = vm.LessEqual(b, a)
			}
			if err == nil {
				th.push(Bool(res))
			}
		case bytecode.OP_CONCAT:
			b := th.pop()
			a := th.pop()
			var res Value
			if res, err = vm.concat(a, b); err == nil {
				th.push(res)
			}
		case bytecode.OP_LEN:
			var res Value
			if res, err = vm.Length(th.pop()); err == nil {
				th.push(res)
			}
		case bytecode.OP_GET_GLOBAL:
			name := chunk.Consts[readU16(fr)].(string)
			var v Value
			if v, err = vm.getGlobal(name); err == nil {
				th.push(v)
			}
		case bytecode.OP_SET_GLOBAL:
			name := chunk.Consts[readU16(fr)].(string)
			err = vm.setGlobal(name, th.pop())
		case bytecode.OP_GET_LOCAL:
			th.push(fr.locals[readU8(fr)])
		case bytecode.OP_SET_LOCAL:
			fr.locals[readU8(fr)] = th.pop().First()
		case bytecode.OP_GET_UPVALUE:
			th.push(fr.fn.Upvalues[readU8(fr)].get())
		case bytecode.OP_SET_UPVALUE:
			fr.fn.Upvalues[readU8(fr)].set(th.pop().First())
		case bytecode.OP_CLOSE:
			th.closeUpvalues(fr, int(readU8(fr)))
		case bytecode.OP_NEW_TABLE:
			narr := readU16(fr)
			nhash := readU16(fr)
			th.push(TableValue(NewTable(narr, nhash)))
		case bytecode.OP_SET_LIST:
			start := readU16(fr)
			count := int(readU8(fr))
			multi := readU8(fr)
			vals := th.popArgs(count, multi)
			tbl := th.peek().Tab
			for i, v := range vals {
				if err = tbl.Set(Number(float64(start+i)), v); err != nil {
					break
				}
			}
		case bytecode.OP_TABLE_SET:
			v := th.pop()
			k := th.pop()
			err = th.peek().Tab.Set(k, v)
		case bytecode.OP_INDEX_GET:
			k := th.pop()
			o := th.pop()
			var v Value
			if v, err = vm.Index(o, k); err == nil {
				th.push(v)
			}
		case bytecode.OP_INDEX_SET:
			v := th.pop()
			k := th.pop()
			o := th.pop()
			err = vm.SetIndex(o, k, v)
		case bytecode.OP_GET_FIELD:
			name := chunk.Consts[readU16(fr)].(string)
			o := th.pop()
			var v Value
			if v, err = vm.Index(o, String(name)); err == nil {
				th.push(v)
			}
		case bytecode.OP_SET_FIELD:
			name := chunk.Consts[readU16(fr)].(string)
			v := th.pop()
			o := th.pop()
			err = vm.SetIndex(o, String(name), v)
		case bytecode.OP_SELF:
			name := chunk.Consts[readU16(fr)].(string)
			o := th.pop()
			var m Value
			if m, err = vm.Index(o, String(name)); err == nil {
				th.push(m)
				th.push(o)
			}
		case bytecode.OP_JUMP:
			fr.ip = readU16(fr)
		case bytecode.OP_JUMP_IF_FALSE:
			target := readU16(fr)
			if !Truthy(th.pop()) {
				fr.ip = target
			}
		case bytecode.OP_JUMP_IF_TRUE:
			target := readU16(fr)
			if Truthy(th.pop()) {
				fr.ip = target
			}
		case bytecode.OP_AND:
			target := readU16(fr)
			if !Truthy(th.peek()) {
				fr.ip = target
			} else {
				th.pop()
			}
		case bytecode.OP_OR:
			target := readU16(fr)
			if Truthy(th.peek()) {
				fr.ip = target
			} else {
				th.pop()
			}
		case bytecode.OP_MULTI_GET:
			keys := th.popArgs(int(readU8(fr)), 0)
			o := th.pop()
			var v Value
			if v, err = vm.MultiIndex(o, keys); err == nil {
				th.push(v)
			}
		case bytecode.OP_MULTI_SET:
			n := int(readU8(fr))
			v := th.pop()
			keys := th.popArgs(n, 0)
			o := th.pop()
			err = vm.SetMultiIndex(o, keys, v)
		case bytecode.OP_CALL:
			argc := int(readU8(fr))
			want := readU8(fr)
			multi := readU8(fr)
			args := th.popArgs(argc, multi)
			callee := th.pop()
			err = vm.call(th, callee, args, want)
			if err == errYield {
				return nil, errYield
			}
		case bytecode.OP_RETURN:
			count := int(readU8(fr))
			multi := readU8(fr)
			results := th.popArgs(count, multi)
			if res, done := vm.returnFrom(th, fr, results, stop); done {
				return res, nil
			}
		case bytecode.OP_CLOSURE:
			idx := readU16(fr)
			upcount := int(readU8(fr))
			proto := fr.fn.Proto.Protos[idx]
			closure := &Function{
				Proto:    proto,
				Name:     proto.Name,
				Upvalues: make([]*upvalue, upcount),
			}
			for i := 0; i < upcount; i++ {
				isLocal := readU8(fr)
				slot := int(readU8(fr))
				if isLocal == 1 {
					closure.Upvalues[i] = th.captureUpvalue(fr, slot)
				} else {
					closure.Upvalues[i] = fr.fn.Upvalues[slot]
				}
			}
			th.push(FunctionValue(closure))
		case bytecode.OP_FOR_PREP:
			base := int(readU8(fr))
			exit := readU16(fr)
			var enter bool
			if enter, err = forPrep(fr.locals[base : base+4]); err == nil && !enter {
				fr.ip = exit
			}
		case bytecode.OP_FOR_LOOP:
			base := int(readU8(fr))
			body := readU16(fr)
			l := fr.locals[base : base+4]
			idx := l[0].Num + l[2].Num
			if forContinues(idx, l[1].Num, l[2].Num) {
				l[0] = Number(idx)
				l[3] = Number(idx)
				fr.ip = body
			}
		case bytecode.OP_TFOR_PREP:
			base := int(readU8(fr))
			err = vm.tforPrep(fr.locals[base : base+3])
		case bytecode.OP_TFOR_LOOP:
			base := int(readU8(fr))
			exit := readU16(fr)
			if v := fr.locals[base+3]; v.IsNil() {
				fr.ip = exit
			} else {
				fr.locals[base+2] = v
			}
		default:
			err = typeErrorf("unknown opcode 0x%02X", op)
		}
		if err != nil {
			return nil, vm.fail(th, fr, stop, err)
		}
	}
}

// fail decorates err at fr and unwinds th down to stop.
func (vm *VM) fail(th *thread, fr *frame, stop int, err error) error {
	err = vm.decorate(th, fr, err)
	if stop < len(th.frames) {
		base := th.frames[stop].base
		for i := len(th.frames) - 1; i >= stop; i-- {
			th.closeUpvalues(th.frames[i], 0)
			th.frames[i] = nil
		}
		th.frames = th.frames[:stop]
		th.truncate(base)
	}
	return err
}

func forPrep(l []Value) (bool, error) {
	names := [3]string{"initial value", "limit", "step"}
	for i := 0; i < 3; i++ {
		n, ok := ToNumber(l[i])
		if !ok {
			return false, typeErrorf("'for' %s must be a number", names[i])
		}
		l[i] = Number(n)
	}
	if l[2].Num == 0 {
		return false, typeErrorf("'for' step is zero")
	}
	if !forContinues(l[0].Num, l[1].Num, l[2].Num) {
		return false, nil
	}
	l[3] = l[0]
	return true, nil
}

func forContinues(idx, limit, step float64) bool {
	if step > 0 {
		return idx <= limit
	}
	return idx >= limit
}

func (vm *VM) tforPrep(l []Value) error {
	ud := l[0]
	if ud.Kind != KindUserData || ud.UD.Desc == nil {
		return nil
	}
	it, ok := ud.UD.Desc.(Iterable)
	if !ok {
		return nil
	}
	fn, state, control, err := it.Iterate(vm, ud.UD)
	if err != nil {
		return err
	}
	l[0], l[1], l[2] = fn, state, control
	return nil
}

func (vm *VM) getGlobal(name string) (Value, error) {
	if vm.globals.meta == nil {
		return vm.globals.GetString(name), nil
	}
	return vm.Index(TableValue(vm.globals), String(name))
}

func (vm *VM) setGlobal(name string, v Value) error {
	if vm.globals.meta == nil {
		vm.globals.SetString(name, v)
		return nil
	}
	return vm.SetIndex(TableValue(vm.globals), String(name), v)
}

func (th *thread) push(v Value) {
	th.stack = append(th.stack, v)
}

func (th *thread) pop() Value {
	if len(th.stack) == 0 {
		return Nil()
	}
	v := th.stack[len(th.stack)-1]
	th.stack[len(th.stack)-1] = Value{}
	th.stack = th.stack[:len(th.stack)-1]
	return v
}

func (th *thread) peek() Value {
	if len(th.stack) == 0 {
		return Nil()
	}
	return th.stack[len(th.stack)-1]
}

func (th *thread) truncate(n int) {
	for i := n; i < len(th.stack); i++ {
		th.stack[i] = Value{}
	}
	th.stack = th.stack[:n]
}

// popArgs removes n values, expanding the last one when multi is set.
func (th *thread) popArgs(n int, multi byte) []Value {
	start := len(th.stack) - n
	out := make([]Value, 0, n)
	for i, v := range th.stack[start:] {
		if multi == 1 && i == n-1 && v.Kind == KindTuple {
			out = append(out, v.Tup...)
			continue
		}
		out = append(out, v)
	}
	th.truncate(start)
	return out
}

func readU16(fr *frame) int {
	code := fr.fn.Proto.Chunk.Code
	v := int(code[fr.ip])<<8 | int(code[fr.ip+1])
	fr.ip += 2
	return v
}

func readU8(fr *frame) byte {
	b := fr.fn.Proto.Chunk.Code[fr.ip]
	fr.ip++
	return b
}
