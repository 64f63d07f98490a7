package vm

// Duplicate returns a new VM with deep-copied globals and the same
// configuration. Tables and closures reachable from the globals are cloned
// preserving sharing; host userdata and coroutines are shared.
func (vm *VM) Duplicate() *VM {
	if vm == nil {
		return nil
	}
	dup := New()
	dup.maxFrames = vm.maxFrames
	dup.traceHook = vm.traceHook
	dup.instLimit = vm.instLimit
	dup.stdout = vm.stdout

	clone := newCloneState()
	dup.globals = clone.cloneTable(vm.globals)
	dup.stringMeta = clone.cloneTable(vm.stringMeta)
	return dup
}

type cloneState struct {
	tables    map[*Table]*Table
	functions map[*Function]*Function
	upvalues  map[*upvalue]*upvalue
}

func newCloneState() *cloneState {
	return &cloneState{
		tables:    make(map[*Table]*Table),
		functions: make(map[*Function]*Function),
		upvalues:  make(map[*upvalue]*upvalue),
	}
}

func (cs *cloneState) cloneValue(v Value) Value {
	switch v.Kind {
	case KindTable:
		return TableValue(cs.cloneTable(v.Tab))
	case KindFunction:
		return FunctionValue(cs.cloneFunction(v.Func))
	case KindTuple:
		out := make([]Value, len(v.Tup))
		for i := range v.Tup {
			out[i] = cs.cloneValue(v.Tup[i])
		}
		return Tuple(out...)
	default:
		return v
	}
}

func (cs *cloneState) cloneTable(t *Table) *Table {
	if t == nil {
		return nil
	}
	if cloned, ok := cs.tables[t]; ok {
		return cloned
	}
	out := NewTable(len(t.arr), t.HashLen())
	cs.tables[t] = out
	for _, v := range t.arr {
		out.arr = append(out.arr, cs.cloneValue(v))
	}
	for _, e := range t.entries {
		if e.live {
			out.setHash(cs.cloneValue(e.key), cs.cloneValue(e.val))
		}
	}
	out.meta = cs.cloneTable(t.meta)
	return out
}

func (cs *cloneState) cloneFunction(fn *Function) *Function {
	if fn == nil {
		return nil
	}
	if cloned, ok := cs.functions[fn]; ok {
		return cloned
	}
	out := &Function{
		Proto:  fn.Proto,
		Native: fn.Native,
		Name:   fn.Name,
	}
	cs.functions[fn] = out
	if fn.Upvalues != nil {
		out.Upvalues = make([]*upvalue, len(fn.Upvalues))
		for i, uv := range fn.Upvalues {
			out.Upvalues[i] = cs.cloneUpvalue(uv)
		}
	}
	return out
}

func (cs *cloneState) cloneUpvalue(uv *upvalue) *upvalue {
	if uv == nil {
		return nil
	}
	if cloned, ok := cs.upvalues[uv]; ok {
		return cloned
	}
	out := &upvalue{}
	cs.upvalues[uv] = out
	out.closed = cs.cloneValue(uv.get())
	return out
}
