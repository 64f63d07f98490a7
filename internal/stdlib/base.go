package stdlib

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xirelogy/go-lunar/internal/compiler"
	"github.com/xirelogy/go-lunar/internal/parser"
	"github.com/xirelogy/go-lunar/internal/serial"
	"github.com/xirelogy/go-lunar/internal/vm"
)

// openBase installs the global functions that are not compiled intrinsics.
func openBase(rt *vm.VM, opts Options) error {
	funcs := map[string]vm.NativeFunc{
		"print":     basePrint,
		"assert":    baseAssert,
		"xpcall":    baseXpcall,
		"tostring":  baseTostring,
		"tonumber":  baseTonumber,
		"pairs":     basePairs,
		"ipairs":    baseIpairs,
		"next":      baseNext,
		"unpack":    tableUnpack,
		"serialize": baseSerialize,
		"load":      baseLoad,
	}
	for name, fn := range funcs {
		rt.SetGlobal(name, vm.NewNative(name, fn))
	}
	return nil
}

func basePrint(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	var b strings.Builder
	for i, a := range args {
		if i > 0 {
			b.WriteByte('\t')
		}
		s, err := rt.ToString(a)
		if err != nil {
			return nil, err
		}
		b.WriteString(s)
	}
	b.WriteByte('\n')
	_, err := io.WriteString(rt.Stdout(), b.String())
	return nil, err
}

func baseAssert(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	if _, err := vm.CheckAny(args, 0, "assert"); err != nil {
		return nil, err
	}
	if vm.Truthy(args[0]) {
		return args, nil
	}
	msg := vm.Arg(args, 1)
	if msg.IsNil() {
		return nil, vm.NewError(vm.String("assertion failed!"), 1)
	}
	return nil, vm.NewError(msg, 0)
}

// baseXpcall calls f in protected mode and passes a fault's payload
// through handler.
func baseXpcall(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	handler, err := vm.CheckFunction(args, 1, "xpcall")
	if err != nil {
		return nil, err
	}
	var rest []vm.Value
	if len(args) > 2 {
		rest = args[2:]
	}
	res, err := rt.Call(vm.Arg(args, 0), rest...)
	if err == nil {
		return append([]vm.Value{vm.Bool(true)}, res...), nil
	}
	if vm.IsFatal(err) {
		return nil, err
	}
	hres, herr := rt.Call(handler, vm.ErrorValue(err))
	if herr != nil {
		if vm.IsFatal(herr) {
			return nil, herr
		}
		return []vm.Value{vm.Bool(false), vm.ErrorValue(herr)}, nil
	}
	return append([]vm.Value{vm.Bool(false)}, hres...), nil
}

func baseTostring(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	v, err := vm.CheckAny(args, 0, "tostring")
	if err != nil {
		return nil, err
	}
	s, err := rt.ToString(v)
	if err != nil {
		return nil, err
	}
	return one(vm.String(s)), nil
}

func baseTonumber(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	v, err := vm.CheckAny(args, 0, "tonumber")
	if err != nil {
		return nil, err
	}
	base, err := vm.OptInteger(args, 1, "tonumber", 10)
	if err != nil {
		return nil, err
	}
	if base == 10 {
		if n, ok := vm.ToNumber(v); ok {
			return one(vm.Number(n)), nil
		}
		return one(vm.Nil()), nil
	}
	if base < 2 || base > 36 {
		return nil, vm.ArgError(2, "tonumber", "base out of range")
	}
	s, err := vm.CheckString(args, 0, "tonumber")
	if err != nil {
		return nil, err
	}
	n, perr := strconv.ParseInt(strings.ToLower(strings.TrimSpace(s)), base, 64)
	if perr != nil {
		return one(vm.Nil()), nil
	}
	return one(vm.Number(float64(n))), nil
}

func baseNext(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	t, err := vm.CheckTable(args, 0, "next")
	if err != nil {
		return nil, err
	}
	k, v, ok, err := t.Next(vm.Arg(args, 1))
	if err != nil {
		return nil, err
	}
	if !ok {
		return one(vm.Nil()), nil
	}
	return []vm.Value{k, v}, nil
}

var nextFn = vm.NewNative("next", baseNext)

func basePairs(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	t, err := vm.CheckTable(args, 0, "pairs")
	if err != nil {
		return nil, err
	}
	return []vm.Value{nextFn, vm.TableValue(t), vm.Nil()}, nil
}

// ipairsStep reads through __index so proxies iterate like plain arrays.
func ipairsStep(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	i, err := vm.CheckInteger(args, 1, "ipairs")
	if err != nil {
		return nil, err
	}
	i++
	v, err := rt.Index(vm.Arg(args, 0), vm.Number(float64(i)))
	if err != nil {
		return nil, err
	}
	if v.IsNil() {
		return one(vm.Nil()), nil
	}
	return []vm.Value{vm.Number(float64(i)), v}, nil
}

var ipairsIter = vm.NewNative("ipairs_iterator", ipairsStep)

func baseIpairs(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	v, err := vm.CheckAny(args, 0, "ipairs")
	if err != nil {
		return nil, err
	}
	if v.Kind != vm.KindTable && rt.Metatable(v) == nil {
		return nil, vm.ArgError(1, "ipairs", fmt.Sprintf("table expected, got %s", v.TypeName()))
	}
	return []vm.Value{ipairsIter, v, vm.Number(0)}, nil
}

func baseSerialize(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	v, err := vm.CheckAny(args, 0, "serialize")
	if err != nil {
		return nil, err
	}
	s, err := serial.Dump(v)
	if err != nil {
		return nil, err
	}
	return one(vm.String(s)), nil
}

// baseLoad compiles a string chunk. Syntax errors are returned as nil plus
// the message rather than raised.
func baseLoad(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	src, err := vm.CheckString(args, 0, "load")
	if err != nil {
		return nil, err
	}
	name, err := vm.OptString(args, 1, "load", "=(load)")
	if err != nil {
		return nil, err
	}
	chunk, err := parser.Parse(src, name)
	if err != nil {
		return []vm.Value{vm.Nil(), vm.String(err.Error())}, nil
	}
	proto, err := compiler.Compile(chunk)
	if err != nil {
		return []vm.Value{vm.Nil(), vm.String(err.Error())}, nil
	}
	return one(vm.Load(proto)), nil
}
