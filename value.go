package lunar

import (
	"context"
	"errors"
	"fmt"

	"github.com/xirelogy/go-lunar/internal/interop"
	"github.com/xirelogy/go-lunar/internal/vm"
)

// Value is a script value handed across the API. Values that reference
// functions stay tied to the VM that produced them.
type Value struct {
	v     vm.Value
	owner *VM
}

// Nil is the script nil value.
var Nil = Value{}

// Marshaler allows custom control over Go to script conversion.
type Marshaler interface {
	MarshalLunar() (Value, error)
}

// Unmarshaler allows custom control over script to Go conversion in Unmarshal.
type Unmarshaler interface {
	UnmarshalLunar(Value) error
}

// ValueKind mirrors the runtime kinds for convenient inspection.
type ValueKind int

const (
	ValueNil ValueKind = iota
	ValueBool
	ValueNumber
	ValueString
	ValueTable
	ValueFunction
	ValueUserData
	ValueCoroutine
)

func (k ValueKind) String() string {
	switch k {
	case ValueNil:
		return "nil"
	case ValueBool:
		return "boolean"
	case ValueNumber:
		return "number"
	case ValueString:
		return "string"
	case ValueTable:
		return "table"
	case ValueFunction:
		return "function"
	case ValueUserData:
		return "userdata"
	case ValueCoroutine:
		return "thread"
	default:
		return "unknown"
	}
}

// ToValue converts a Go value. Scalars become script values, functions
// become callable script functions, and slices, maps, structs and pointers
// are exposed as userdata sharing the host object.
func ToValue(x any) (Value, error) {
	v, err := toVM(x)
	if err != nil {
		return Value{}, err
	}
	return Value{v: v}, nil
}

// MustValue returns ToValue or panics on error (convenience).
func MustValue(x any) Value {
	v, err := ToValue(x)
	if err != nil {
		panic(err)
	}
	return v
}

// ToTable deep-copies host data into plain script tables instead of
// wrapping it: slices become sequences, maps and structs keyed tables.
func ToTable(x any) (Value, error) {
	if m, ok := x.(Marshaler); ok {
		return m.MarshalLunar()
	}
	v, err := interop.ToTable(x)
	if err != nil {
		return Value{}, err
	}
	return Value{v: v}, nil
}

func toVM(x any) (vm.Value, error) {
	switch val := x.(type) {
	case Value:
		return val.v, nil
	case *Value:
		if val == nil {
			return vm.Nil(), nil
		}
		return val.v, nil
	case Marshaler:
		out, err := val.MarshalLunar()
		if err != nil {
			return vm.Nil(), err
		}
		return out.v, nil
	}
	return interop.ToValue(x)
}

func toVMArgs(args []any) ([]vm.Value, error) {
	out := make([]vm.Value, len(args))
	for i, a := range args {
		v, err := toVM(a)
		if err != nil {
			return nil, fmt.Errorf("argument #%d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

func (l *VM) wrapValues(vals []vm.Value) []Value {
	out := make([]Value, len(vals))
	for i, v := range vals {
		out[i] = Value{v: v, owner: l}
	}
	return out
}

// Kind reports the underlying value kind.
func (v Value) Kind() ValueKind {
	switch v.v.Kind {
	case vm.KindBool:
		return ValueBool
	case vm.KindNumber:
		return ValueNumber
	case vm.KindString:
		return ValueString
	case vm.KindTable:
		return ValueTable
	case vm.KindFunction:
		return ValueFunction
	case vm.KindUserData:
		return ValueUserData
	case vm.KindCoroutine:
		return ValueCoroutine
	}
	return ValueNil
}

// TypeName returns the script-visible type name.
func (v Value) TypeName() string { return v.v.TypeName() }

// IsNil reports whether the value is nil.
func (v Value) IsNil() bool { return v.v.IsNil() }

// Truthy applies script truthiness: only nil and false are false.
func (v Value) Truthy() bool { return vm.Truthy(v.v) }

// Bool returns the boolean value when the kind matches.
func (v Value) Bool() (bool, bool) {
	if v.v.Kind != vm.KindBool {
		return false, false
	}
	return v.v.B, true
}

// Number returns the numeric value when the kind matches.
func (v Value) Number() (float64, bool) {
	if v.v.Kind != vm.KindNumber {
		return 0, false
	}
	return v.v.Num, true
}

// String returns the string value when the kind matches.
func (v Value) String() (string, bool) {
	if v.v.Kind != vm.KindString {
		return "", false
	}
	return v.v.Str, true
}

// Text renders the value the way tostring would, ignoring metamethods.
func (v Value) Text() string { return vm.RawString(v.v) }

// Len returns the length of a string or the sequence length of a table.
func (v Value) Len() int {
	switch v.v.Kind {
	case vm.KindString:
		return len(v.v.Str)
	case vm.KindTable:
		return v.v.Tab.Len()
	}
	return 0
}

// Field reads a string key from a table without metamethods.
func (v Value) Field(name string) Value {
	if v.v.Kind != vm.KindTable {
		return Value{}
	}
	return Value{v: v.v.Tab.GetString(name), owner: v.owner}
}

// Index reads a 1-based positional entry from a table without metamethods.
func (v Value) Index(i int) Value {
	if v.v.Kind != vm.KindTable {
		return Value{}
	}
	return Value{v: v.v.Tab.Get(vm.Number(float64(i))), owner: v.owner}
}

// Array unwraps the sequence part of a table when the kind matches.
func (v Value) Array() ([]Value, bool) {
	if v.v.Kind != vm.KindTable {
		return nil, false
	}
	arr := v.v.Tab.ArrayPart()
	out := make([]Value, len(arr))
	for i, el := range arr {
		out[i] = Value{v: el, owner: v.owner}
	}
	return out, true
}

// Object unwraps the string-keyed entries of a table when the kind matches.
func (v Value) Object() (map[string]Value, bool) {
	if v.v.Kind != vm.KindTable {
		return nil, false
	}
	out := make(map[string]Value, v.v.Tab.HashLen())
	v.v.Tab.ForEach(func(k, el vm.Value) bool {
		if k.Kind == vm.KindString {
			out[k.Str] = Value{v: el, owner: v.owner}
		}
		return true
	})
	return out, true
}

// Host returns the Go object behind a userdata value.
func (v Value) Host() (any, bool) {
	if v.v.Kind != vm.KindUserData {
		return nil, false
	}
	return v.v.UD.Object, true
}

// Raw returns a Go representation of the value: nil, bool, float64, string,
// []any, map[string]any or the wrapped host object. Functions and
// coroutines are not convertible.
func (v Value) Raw() (any, error) {
	switch v.v.Kind {
	case vm.KindFunction:
		return nil, errors.New("Raw() not supported on function values; use AsFunction")
	case vm.KindCoroutine:
		return nil, errors.New("Raw() not supported on coroutine values")
	}
	return interop.ToPlain(v.v)
}

// MustRaw returns Raw() or panics on error (convenience).
func (v Value) MustRaw() any {
	val, err := v.Raw()
	if err != nil {
		panic(err)
	}
	return val
}

// AsFunction extracts a callable handle when the value is a function.
func (v Value) AsFunction() (*FunctionHandle, bool) {
	if v.v.Kind != vm.KindFunction {
		return nil, false
	}
	return &FunctionHandle{owner: v.owner, fn: v}, true
}

// FunctionHandle is a script function returned from a VM.
type FunctionHandle struct {
	owner *VM
	fn    Value
}

// Call invokes the function on its owning VM.
func (h *FunctionHandle) Call(ctx context.Context, args ...any) ([]Value, error) {
	if h == nil {
		return nil, errors.New("nil function handle")
	}
	if h.owner == nil {
		return nil, errors.New("function handle missing VM owner")
	}
	return h.owner.Call(ctx, h.fn, args...)
}
