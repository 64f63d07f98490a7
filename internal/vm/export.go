package vm

import (
	"fmt"
	"math"
)

// Arg returns args[i], or nil when the argument is absent.
func Arg(args []Value, i int) Value {
	if i < len(args) {
		return args[i].First()
	}
	return Nil()
}

func argTypeError(args []Value, i int, fname, expected string) error {
	got := "no value"
	if i < len(args) {
		got = args[i].TypeName()
	}
	return ArgError(i+1, fname, fmt.Sprintf("%s expected, got %s", expected, got))
}

// CheckTable returns argument i as a table.
func CheckTable(args []Value, i int, fname string) (*Table, error) {
	v := Arg(args, i)
	if v.Kind != KindTable {
		return nil, argTypeError(args, i, fname, "table")
	}
	return v.Tab, nil
}

// CheckNumber returns argument i as a number, converting numeric strings.
func CheckNumber(args []Value, i int, fname string) (float64, error) {
	n, ok := ToNumber(Arg(args, i))
	if !ok {
		return 0, argTypeError(args, i, fname, "number")
	}
	return n, nil
}

// MaxIntegerArg bounds the integers CheckInteger hands to natives.
const MaxIntegerArg = math.MaxInt32

// CheckInteger returns argument i truncated to an int. Values beyond
// ±MaxIntegerArg, infinities included, are clamped; NaN is rejected.
func CheckInteger(args []Value, i int, fname string) (int, error) {
	n, err := CheckNumber(args, i, fname)
	if err != nil {
		return 0, err
	}
	switch {
	case math.IsNaN(n):
		return 0, ArgError(i+1, fname, "number has no integer representation")
	case n > MaxIntegerArg:
		return MaxIntegerArg, nil
	case n < -MaxIntegerArg:
		return -MaxIntegerArg, nil
	}
	return int(n), nil
}

// CheckString returns argument i as a string; numbers are formatted.
func CheckString(args []Value, i int, fname string) (string, error) {
	v := Arg(args, i)
	switch v.Kind {
	case KindString:
		return v.Str, nil
	case KindNumber:
		return FormatNumber(v.Num), nil
	}
	return "", argTypeError(args, i, fname, "string")
}

// CheckFunction returns argument i when it is a function.
func CheckFunction(args []Value, i int, fname string) (Value, error) {
	v := Arg(args, i)
	if v.Kind != KindFunction {
		return Nil(), argTypeError(args, i, fname, "function")
	}
	return v, nil
}

// CheckAny fails when argument i is absent.
func CheckAny(args []Value, i int, fname string) (Value, error) {
	if i >= len(args) {
		return Nil(), ArgError(i+1, fname, "value expected")
	}
	return args[i].First(), nil
}

// OptNumber returns argument i as a number, or def when it is nil.
func OptNumber(args []Value, i int, fname string, def float64) (float64, error) {
	if Arg(args, i).IsNil() {
		return def, nil
	}
	return CheckNumber(args, i, fname)
}

// OptInteger returns argument i as an int, or def when it is nil.
func OptInteger(args []Value, i int, fname string, def int) (int, error) {
	if Arg(args, i).IsNil() {
		return def, nil
	}
	return CheckInteger(args, i, fname)
}

// OptString returns argument i as a string, or def when it is nil.
func OptString(args []Value, i int, fname, def string) (string, error) {
	if Arg(args, i).IsNil() {
		return def, nil
	}
	return CheckString(args, i, fname)
}
