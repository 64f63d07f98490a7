package vm

import (
	"math"

	"github.com/xirelogy/go-lunar/internal/bytecode"
)

func (vm *VM) metaOf(v Value) *Table {
	switch v.Kind {
	case KindTable:
		return v.Tab.meta
	case KindUserData:
		return v.UD.Meta
	case KindString:
		return vm.stringMeta
	}
	return nil
}

// Metatable returns the metatable of v, or nil.
func (vm *VM) Metatable(v Value) *Table {
	return vm.metaOf(v.First())
}

func (vm *VM) metamethod(v Value, event string) Value {
	m := vm.metaOf(v)
	if m == nil {
		return Nil()
	}
	return m.GetString(event)
}

func (vm *VM) callMeta(h Value, args ...Value) (Value, error) {
	res, err := vm.Call(h, args...)
	if err != nil {
		return Nil(), err
	}
	if len(res) == 0 {
		return Nil(), nil
	}
	return res[0].First(), nil
}

// Index reads o[k], honoring __index.
func (vm *VM) Index(o, k Value) (Value, error) {
	o, k = o.First(), k.First()
	for i := 0; i < maxMetaChain; i++ {
		var h Value
		switch o.Kind {
		case KindTable:
			if v := o.Tab.Get(k); !v.IsNil() {
				return v, nil
			}
			h = o.Tab.metamethod("__index")
			if h.IsNil() {
				return Nil(), nil
			}
		case KindUserData:
			if o.UD.Desc != nil {
				return o.UD.Desc.Index(vm, o.UD, k)
			}
			h = vm.metamethod(o, "__index")
		default:
			h = vm.metamethod(o, "__index")
		}
		if h.IsNil() {
			return Nil(), typeErrorf("attempt to index a %s value", o.TypeName())
		}
		if h.Kind == KindFunction {
			return vm.callMeta(h, o, k)
		}
		o = h
	}
	return Nil(), typeErrorf("'__index' chain too long; possible loop")
}

// SetIndex writes o[k] = v, honoring __newindex.
func (vm *VM) SetIndex(o, k, v Value) error {
	o, k, v = o.First(), k.First(), v.First()
	for i := 0; i < maxMetaChain; i++ {
		var h Value
		switch o.Kind {
		case KindTable:
			h = o.Tab.metamethod("__newindex")
			if h.IsNil() || !o.Tab.Get(k).IsNil() {
				return o.Tab.Set(k, v)
			}
		case KindUserData:
			if o.UD.Desc != nil {
				return o.UD.Desc.SetIndex(vm, o.UD, k, v)
			}
			h = vm.metamethod(o, "__newindex")
		default:
			h = vm.metamethod(o, "__newindex")
		}
		if h.IsNil() {
			return typeErrorf("attempt to index a %s value", o.TypeName())
		}
		if h.Kind == KindFunction {
			_, err := vm.Call(h, o, k, v)
			return err
		}
		o = h
	}
	return typeErrorf("'__newindex' chain too long; possible loop")
}

// MultiIndex reads o[k1, k2, ...] from a host indexer.
func (vm *VM) MultiIndex(o Value, keys []Value) (Value, error) {
	o = o.First()
	if len(keys) == 1 {
		return vm.Index(o, keys[0])
	}
	if o.Kind == KindUserData {
		if mi, ok := o.UD.Desc.(MultiIndexer); ok && o.UD.Desc != nil {
			return mi.MultiIndex(vm, o.UD, keys)
		}
	}
	return Nil(), typeErrorf("attempt to multi-index a %s value", o.TypeName())
}

// SetMultiIndex writes o[k1, k2, ...] = v through a host indexer.
func (vm *VM) SetMultiIndex(o Value, keys []Value, v Value) error {
	o = o.First()
	if len(keys) == 1 {
		return vm.SetIndex(o, keys[0], v)
	}
	if o.Kind == KindUserData {
		if mi, ok := o.UD.Desc.(MultiIndexer); ok && o.UD.Desc != nil {
			return mi.SetMultiIndex(vm, o.UD, keys, v.First())
		}
	}
	return typeErrorf("attempt to multi-index a %s value", o.TypeName())
}

var arithEvents = map[byte]string{
	bytecode.OP_ADD: "__add",
	bytecode.OP_SUB: "__sub",
	bytecode.OP_MUL: "__mul",
	bytecode.OP_DIV: "__div",
	bytecode.OP_MOD: "__mod",
	bytecode.OP_POW: "__pow",
}

func arithNumbers(op byte, a, b float64) float64 {
	switch op {
	case bytecode.OP_ADD:
		return a + b
	case bytecode.OP_SUB:
		return a - b
	case bytecode.OP_MUL:
		return a * b
	case bytecode.OP_DIV:
		return a / b
	case bytecode.OP_MOD:
		return a - math.Floor(a/b)*b
	default:
		return math.Pow(a, b)
	}
}

func (vm *VM) arith(op byte, a, b Value) (Value, error) {
	a, b = a.First(), b.First()
	na, okA := ToNumber(a)
	nb, okB := ToNumber(b)
	if okA && okB {
		return Number(arithNumbers(op, na, nb)), nil
	}
	event := arithEvents[op]
	h := vm.metamethod(a, event)
	if h.IsNil() {
		h = vm.metamethod(b, event)
	}
	if !h.IsNil() {
		return vm.callMeta(h, a, b)
	}
	bad := a
	if okA {
		bad = b
	}
	return Nil(), typeErrorf("attempt to perform arithmetic on a %s value", bad.TypeName())
}

// Arith applies a binary arithmetic opcode, honoring metamethods.
func (vm *VM) Arith(op byte, a, b Value) (Value, error) {
	return vm.arith(op, a, b)
}

func (vm *VM) negate(a Value) (Value, error) {
	a = a.First()
	if n, ok := ToNumber(a); ok {
		return Number(-n), nil
	}
	if h := vm.metamethod(a, "__unm"); !h.IsNil() {
		return vm.callMeta(h, a, a)
	}
	return Nil(), typeErrorf("attempt to perform arithmetic on a %s value", a.TypeName())
}

func concatenable(v Value) bool {
	return v.Kind == KindString || v.Kind == KindNumber
}

func (vm *VM) concat(a, b Value) (Value, error) {
	a, b = a.First(), b.First()
	if concatenable(a) && concatenable(b) {
		return String(RawString(a) + RawString(b)), nil
	}
	h := vm.metamethod(a, "__concat")
	if h.IsNil() {
		h = vm.metamethod(b, "__concat")
	}
	if !h.IsNil() {
		return vm.callMeta(h, a, b)
	}
	bad := a
	if concatenable(a) {
		bad = b
	}
	return Nil(), typeErrorf("attempt to concatenate a %s value", bad.TypeName())
}

// Length implements the # operator.
func (vm *VM) Length(v Value) (Value, error) {
	v = v.First()
	switch v.Kind {
	case KindString:
		return Number(float64(len(v.Str))), nil
	case KindTable:
		if h := v.Tab.metamethod("__len"); !h.IsNil() {
			return vm.callMeta(h, v)
		}
		return Number(float64(v.Tab.Len())), nil
	case KindUserData:
		if l, ok := v.UD.Desc.(Lengther); ok && v.UD.Desc != nil {
			n, err := l.Len(vm, v.UD)
			return Number(float64(n)), err
		}
	}
	if h := vm.metamethod(v, "__len"); !h.IsNil() {
		return vm.callMeta(h, v)
	}
	return Nil(), typeErrorf("attempt to get length of a %s value", v.TypeName())
}

// Equal compares with __eq for tables and userdata.
func (vm *VM) Equal(a, b Value) (bool, error) {
	a, b = a.First(), b.First()
	if RawEqual(a, b) {
		return true, nil
	}
	if a.Kind != b.Kind || (a.Kind != KindTable && a.Kind != KindUserData) {
		return false, nil
	}
	h := vm.metamethod(a, "__eq")
	if h.IsNil() {
		h = vm.metamethod(b, "__eq")
	}
	if h.IsNil() {
		return false, nil
	}
	res, err := vm.callMeta(h, a, b)
	return Truthy(res), err
}

func compareError(a, b Value) error {
	ta, tb := a.TypeName(), b.TypeName()
	if ta == tb {
		return typeErrorf("attempt to compare two %s values", ta)
	}
	return typeErrorf("attempt to compare %s with %s", ta, tb)
}

// LessThan implements a < b.
func (vm *VM) LessThan(a, b Value) (bool, error) {
	a, b = a.First(), b.First()
	switch {
	case a.Kind == KindNumber && b.Kind == KindNumber:
		return a.Num < b.Num, nil
	case a.Kind == KindString && b.Kind == KindString:
		return a.Str < b.Str, nil
	}
	h := vm.metamethod(a, "__lt")
	if h.IsNil() {
		h = vm.metamethod(b, "__lt")
	}
	if h.IsNil() {
		return false, compareError(a, b)
	}
	res, err := vm.callMeta(h, a, b)
	return Truthy(res), err
}

// LessEqual implements a <= b, falling back to not (b < a) through __lt.
func (vm *VM) LessEqual(a, b Value) (bool, error) {
	a, b = a.First(), b.First()
	switch {
	case a.Kind == KindNumber && b.Kind == KindNumber:
		return a.Num <= b.Num, nil
	case a.Kind == KindString && b.Kind == KindString:
		return a.Str <= b.Str, nil
	}
	h := vm.metamethod(a, "__le")
	if h.IsNil() {
		h = vm.metamethod(b, "__le")
	}
	if !h.IsNil() {
		res, err := vm.callMeta(h, a, b)
		return Truthy(res), err
	}
	h = vm.metamethod(b, "__lt")
	if h.IsNil() {
		h = vm.metamethod(a, "__lt")
	}
	if h.IsNil() {
		return false, compareError(a, b)
	}
	res, err := vm.callMeta(h, b, a)
	return !Truthy(res), err
}

// ToString renders v, honoring __tostring.
func (vm *VM) ToString(v Value) (string, error) {
	v = v.First()
	if h := vm.metamethod(v, "__tostring"); !h.IsNil() {
		res, err := vm.callMeta(h, v)
		if err != nil {
			return "", err
		}
		if res.Kind != KindString && res.Kind != KindNumber {
			return "", typeErrorf("'__tostring' must return a string")
		}
		return RawString(res), nil
	}
	return RawString(v), nil
}
