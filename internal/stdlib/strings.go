package stdlib

import (
	"fmt"
	"math"
	"strings"

	"github.com/xirelogy/go-lunar/internal/serial"
	"github.com/xirelogy/go-lunar/internal/vm"
)

// openString installs the string library and makes it the __index of every
// string, so s:upper() works.
func openString(rt *vm.VM, opts Options) error {
	lib := register(rt, "string", map[string]vm.NativeFunc{
		"len":     strLen,
		"sub":     strSub,
		"upper":   strUpper,
		"lower":   strLower,
		"rep":     strRep,
		"reverse": strReverse,
		"byte":    strByte,
		"char":    strChar,
		"format":  strFormat,
		"find":    strFind,
	})
	meta := vm.NewTable(0, 1)
	meta.SetString("__index", vm.TableValue(lib))
	rt.SetStringMetatable(meta)
	return nil
}

// strRange converts 1-based, possibly negative, inclusive bounds to a Go
// slice range over a string of length n.
func strRange(i, j, n int) (int, int) {
	if i < 0 {
		i = n + i + 1
	}
	if j < 0 {
		j = n + j + 1
	}
	if i < 1 {
		i = 1
	}
	if j > n {
		j = n
	}
	if i > j {
		return 0, 0
	}
	return i - 1, j
}

func strLen(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	s, err := vm.CheckString(args, 0, "len")
	if err != nil {
		return nil, err
	}
	return one(vm.Number(float64(len(s)))), nil
}

func strSub(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	s, err := vm.CheckString(args, 0, "sub")
	if err != nil {
		return nil, err
	}
	i, err := vm.OptInteger(args, 1, "sub", 1)
	if err != nil {
		return nil, err
	}
	j, err := vm.OptInteger(args, 2, "sub", -1)
	if err != nil {
		return nil, err
	}
	lo, hi := strRange(i, j, len(s))
	return one(vm.String(s[lo:hi])), nil
}

func strUpper(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	s, err := vm.CheckString(args, 0, "upper")
	if err != nil {
		return nil, err
	}
	return one(vm.String(strings.ToUpper(s))), nil
}

func strLower(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	s, err := vm.CheckString(args, 0, "lower")
	if err != nil {
		return nil, err
	}
	return one(vm.String(strings.ToLower(s))), nil
}

// maxRepLen caps string.rep output.
const maxRepLen = 1 << 28

func strRep(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	s, err := vm.CheckString(args, 0, "rep")
	if err != nil {
		return nil, err
	}
	n, err := vm.CheckInteger(args, 1, "rep")
	if err != nil {
		return nil, err
	}
	sep, err := vm.OptString(args, 2, "rep", "")
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return one(vm.String("")), nil
	}
	unit := len(s) + len(sep)
	if unit == 0 {
		return one(vm.String("")), nil
	}
	if n > maxRepLen/unit {
		return nil, vm.ArgError(2, "rep", "resulting string too large")
	}
	parts := make([]string, n)
	for i := range parts {
		parts[i] = s
	}
	return one(vm.String(strings.Join(parts, sep))), nil
}

func strReverse(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	s, err := vm.CheckString(args, 0, "reverse")
	if err != nil {
		return nil, err
	}
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return one(vm.String(string(b))), nil
}

func strByte(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	s, err := vm.CheckString(args, 0, "byte")
	if err != nil {
		return nil, err
	}
	i, err := vm.OptInteger(args, 1, "byte", 1)
	if err != nil {
		return nil, err
	}
	j, err := vm.OptInteger(args, 2, "byte", i)
	if err != nil {
		return nil, err
	}
	lo, hi := strRange(i, j, len(s))
	out := make([]vm.Value, 0, hi-lo)
	for k := lo; k < hi; k++ {
		out = append(out, vm.Number(float64(s[k])))
	}
	return out, nil
}

func strChar(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	b := make([]byte, len(args))
	for i := range args {
		c, err := vm.CheckInteger(args, i, "char")
		if err != nil {
			return nil, err
		}
		if c < 0 || c > 255 {
			return nil, vm.ArgError(i+1, "char", "value out of range")
		}
		b[i] = byte(c)
	}
	return one(vm.String(string(b))), nil
}

// strFind searches for a plain substring; patterns are not interpreted.
func strFind(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	s, err := vm.CheckString(args, 0, "find")
	if err != nil {
		return nil, err
	}
	sub, err := vm.CheckString(args, 1, "find")
	if err != nil {
		return nil, err
	}
	init, err := vm.OptInteger(args, 2, "find", 1)
	if err != nil {
		return nil, err
	}
	if init < 0 {
		init = len(s) + init + 1
	}
	if init < 1 {
		init = 1
	}
	if init > len(s)+1 {
		return one(vm.Nil()), nil
	}
	idx := strings.Index(s[init-1:], sub)
	if idx < 0 {
		return one(vm.Nil()), nil
	}
	start := init + idx
	return []vm.Value{vm.Number(float64(start)), vm.Number(float64(start + len(sub) - 1))}, nil
}

// strFormat implements the printf-style directives c d i o u x X e E f g G
// q s and %%.
func strFormat(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	format, err := vm.CheckString(args, 0, "format")
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	arg := 1
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(format) {
			return nil, vm.ArgError(1, "format", "invalid conversion '%' to format string")
		}
		if format[i] == '%' {
			b.WriteByte('%')
			continue
		}
		start := i
		for i < len(format) && strings.IndexByte("-+ #0123456789.", format[i]) >= 0 {
			i++
		}
		if i >= len(format) {
			return nil, vm.ArgError(1, "format", "invalid conversion to format string")
		}
		spec := "%" + format[start:i]
		verb := format[i]
		if verb != 'q' && arg >= len(args) {
			return nil, vm.ArgError(arg+1, "format", "no value")
		}
		switch verb {
		case 'd', 'i', 'u', 'c', 'o', 'x', 'X':
			n, err := vm.CheckNumber(args, arg, "format")
			if err != nil {
				return nil, err
			}
			if n != math.Trunc(n) {
				return nil, vm.ArgError(arg+1, "format", "number has no integer representation")
			}
			switch verb {
			case 'c':
				b.WriteByte(byte(int64(n)))
			case 'i', 'u':
				b.WriteString(fmt.Sprintf(spec+"d", int64(n)))
			default:
				b.WriteString(fmt.Sprintf(spec+string(verb), int64(n)))
			}
		case 'e', 'E', 'f', 'F', 'g', 'G':
			n, err := vm.CheckNumber(args, arg, "format")
			if err != nil {
				return nil, err
			}
			b.WriteString(fmt.Sprintf(spec+string(verb), n))
		case 's':
			s, err := rt.ToString(args[arg])
			if err != nil {
				return nil, err
			}
			b.WriteString(fmt.Sprintf(spec+"s", s))
		case 'q':
			s, err := vm.CheckString(args, arg, "format")
			if err != nil {
				return nil, err
			}
			b.WriteString(serial.Quote(s))
		default:
			return nil, vm.ArgError(1, "format", fmt.Sprintf("invalid conversion '%%%c' to format string", verb))
		}
		arg++
	}
	return one(vm.String(b.String())), nil
}
