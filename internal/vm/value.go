package vm

import (
	"fmt"
	"math"
	"strconv"

	"github.com/xirelogy/go-lunar/internal/lexer"
)

type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindString
	KindTable
	KindFunction
	KindUserData
	KindCoroutine
	// KindTuple only exists transiently on the operand stack while multiple
	// results travel from a call to the instruction that consumes them.
	KindTuple
)

// Value is the tagged dynamic value. Nil, booleans and numbers are stored
// inline; the remaining kinds share the referenced object.
type Value struct {
	Kind Kind
	B    bool
	Num  float64
	Str  string
	Tab  *Table
	Func *Function
	UD   *UserData
	Co   *Coroutine
	Tup  []Value
}

func Nil() Value { return Value{} }
func Bool(b bool) Value {
	return Value{Kind: KindBool, B: b}
}
func Number(n float64) Value {
	return Value{Kind: KindNumber, Num: n}
}
func String(s string) Value {
	return Value{Kind: KindString, Str: s}
}
func TableValue(t *Table) Value {
	if t == nil {
		return Nil()
	}
	return Value{Kind: KindTable, Tab: t}
}
func FunctionValue(fn *Function) Value {
	if fn == nil {
		return Nil()
	}
	return Value{Kind: KindFunction, Func: fn}
}
func UserDataValue(ud *UserData) Value {
	if ud == nil {
		return Nil()
	}
	return Value{Kind: KindUserData, UD: ud}
}
func CoroutineValue(co *Coroutine) Value {
	if co == nil {
		return Nil()
	}
	return Value{Kind: KindCoroutine, Co: co}
}

// Tuple wraps several values as one transient stack value.
func Tuple(vals ...Value) Value {
	return Value{Kind: KindTuple, Tup: vals}
}

// NativeFunc is a host-provided callable. It receives flattened arguments
// and returns any number of results.
type NativeFunc func(vm *VM, args []Value) ([]Value, error)

// NewNative wraps a Go function as a script function value.
func NewNative(name string, fn NativeFunc) Value {
	return FunctionValue(&Function{Name: name, Native: fn})
}

// Function is either a closure over a compiled prototype or a native.
type Function struct {
	Proto    *Prototype
	Upvalues []*upvalue
	Native   NativeFunc
	Name     string
}

func (fn *Function) maxLocals() int {
	if fn.Proto == nil {
		return 0
	}
	if fn.Proto.MaxLocals > fn.Proto.NumParams {
		return fn.Proto.MaxLocals
	}
	return fn.Proto.NumParams
}

func (v Value) IsNil() bool { return v.Kind == KindNil }

// First flattens a tuple to its first element.
func (v Value) First() Value {
	if v.Kind != KindTuple {
		return v
	}
	if len(v.Tup) == 0 {
		return Nil()
	}
	return v.Tup[0].First()
}

// Expand returns the values carried by v: the elements of a tuple or v itself.
func (v Value) Expand() []Value {
	if v.Kind == KindTuple {
		return v.Tup
	}
	return []Value{v}
}

// TypeName returns the script-visible type name.
func (v Value) TypeName() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindTable:
		return "table"
	case KindFunction:
		return "function"
	case KindUserData:
		return "userdata"
	case KindCoroutine:
		return "thread"
	case KindTuple:
		return v.First().TypeName()
	default:
		return "unknown"
	}
}

func Truthy(v Value) bool {
	switch v.Kind {
	case KindNil:
		return false
	case KindBool:
		return v.B
	case KindTuple:
		return Truthy(v.First())
	default:
		return true
	}
}

// RawEqual compares without metamethods: numbers numerically, strings by
// content and everything else by identity.
func RawEqual(a, b Value) bool {
	a, b = a.First(), b.First()
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNil:
		return true
	case KindBool:
		return a.B == b.B
	case KindNumber:
		return a.Num == b.Num
	case KindString:
		return a.Str == b.Str
	case KindTable:
		return a.Tab == b.Tab
	case KindFunction:
		return a.Func == b.Func
	case KindUserData:
		return a.UD == b.UD || a.UD.identity() == b.UD.identity()
	case KindCoroutine:
		return a.Co == b.Co
	default:
		return false
	}
}

// FormatNumber renders a number the way tostring does.
func FormatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "nan"
	case math.IsInf(n, 1):
		return "inf"
	case math.IsInf(n, -1):
		return "-inf"
	}
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', 14, 64)
}

// ToNumber converts numbers and numeric strings.
func ToNumber(v Value) (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindString:
		return lexer.ParseNumber(v.Str)
	case KindTuple:
		return ToNumber(v.First())
	}
	return 0, false
}

// ToInteger converts v to an integral number.
func ToInteger(v Value) (int64, bool) {
	n, ok := ToNumber(v)
	if !ok || n != math.Trunc(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return int64(n), true
}

// RawString renders v without consulting __tostring.
func RawString(v Value) string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.B {
			return "true"
		}
		return "false"
	case KindNumber:
		return FormatNumber(v.Num)
	case KindString:
		return v.Str
	case KindTable:
		return fmt.Sprintf("table: %p", v.Tab)
	case KindFunction:
		if v.Func.Native != nil {
			return fmt.Sprintf("function: builtin: %p", v.Func)
		}
		return fmt.Sprintf("function: %p", v.Func)
	case KindUserData:
		if s, ok := v.UD.Object.(fmt.Stringer); ok {
			return s.String()
		}
		return fmt.Sprintf("userdata: %p", v.UD)
	case KindCoroutine:
		return fmt.Sprintf("thread: %p", v.Co)
	case KindTuple:
		return RawString(v.First())
	}
	return "?"
}

func (v Value) String() string {
	if v.Kind == KindString {
		return strconv.Quote(v.Str)
	}
	return RawString(v)
}

func constToValue(c interface{}) Value {
	switch val := c.(type) {
	case float64:
		return Number(val)
	case string:
		return String(val)
	case bool:
		return Bool(val)
	default:
		return Nil()
	}
}
