package stdlib

import (
	"sort"
	"strings"

	"github.com/xirelogy/go-lunar/internal/vm"
)

func openTable(rt *vm.VM, opts Options) error {
	register(rt, "table", map[string]vm.NativeFunc{
		"insert": tableInsert,
		"remove": tableRemove,
		"concat": tableConcat,
		"sort":   tableSort,
		"unpack": tableUnpack,
		"pack":   tablePack,
	})
	return nil
}

func tableInsert(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	t, err := vm.CheckTable(args, 0, "insert")
	if err != nil {
		return nil, err
	}
	switch len(args) {
	case 2:
		t.Append(args[1].First())
		return nil, nil
	case 3:
		pos, err := vm.CheckInteger(args, 1, "insert")
		if err != nil {
			return nil, err
		}
		if err := t.Insert(pos, args[2].First()); err != nil {
			return nil, vm.ArgError(2, "insert", err.Error())
		}
		return nil, nil
	}
	return nil, typeError("wrong number of arguments to 'insert'")
}

func tableRemove(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	t, err := vm.CheckTable(args, 0, "remove")
	if err != nil {
		return nil, err
	}
	pos, err := vm.OptInteger(args, 1, "remove", t.Len())
	if err != nil {
		return nil, err
	}
	if t.Len() == 0 && len(args) < 2 {
		return one(vm.Nil()), nil
	}
	v, err := t.Remove(pos)
	if err != nil {
		return nil, vm.ArgError(2, "remove", err.Error())
	}
	return one(v), nil
}

func tableConcat(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	t, err := vm.CheckTable(args, 0, "concat")
	if err != nil {
		return nil, err
	}
	sep, err := vm.OptString(args, 1, "concat", "")
	if err != nil {
		return nil, err
	}
	i, err := vm.OptInteger(args, 2, "concat", 1)
	if err != nil {
		return nil, err
	}
	j, err := vm.OptInteger(args, 3, "concat", t.Len())
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	for k := i; k <= j; k++ {
		v := t.Get(vm.Number(float64(k)))
		if v.Kind != vm.KindString && v.Kind != vm.KindNumber {
			return nil, typeError("invalid value (at index %d) in table for 'concat'", k)
		}
		if k > i {
			b.WriteString(sep)
		}
		b.WriteString(vm.RawString(v))
	}
	return one(vm.String(b.String())), nil
}

// tableSort sorts the sequence 1..#t in place with < or the comparator.
// The first comparison fault aborts the sort.
func tableSort(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	t, err := vm.CheckTable(args, 0, "sort")
	if err != nil {
		return nil, err
	}
	comp := vm.Arg(args, 1)
	if !comp.IsNil() && comp.Kind != vm.KindFunction {
		return nil, vm.ArgError(2, "sort", "function expected, got "+comp.TypeName())
	}
	n := t.Len()
	vals := make([]vm.Value, n)
	for i := range vals {
		vals[i] = t.Get(vm.Number(float64(i + 1)))
	}
	var sortErr error
	sort.SliceStable(vals, func(a, b int) bool {
		if sortErr != nil {
			return false
		}
		var less bool
		if comp.IsNil() {
			less, sortErr = rt.LessThan(vals[a], vals[b])
			return less
		}
		res, err := rt.Call(comp, vals[a], vals[b])
		if err != nil {
			sortErr = err
			return false
		}
		return len(res) > 0 && vm.Truthy(res[0])
	})
	if sortErr != nil {
		return nil, sortErr
	}
	for i, v := range vals {
		if err := t.Set(vm.Number(float64(i+1)), v); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func tableUnpack(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	t, err := vm.CheckTable(args, 0, "unpack")
	if err != nil {
		return nil, err
	}
	i, err := vm.OptInteger(args, 1, "unpack", 1)
	if err != nil {
		return nil, err
	}
	j, err := vm.OptInteger(args, 2, "unpack", t.Len())
	if err != nil {
		return nil, err
	}
	if i > j {
		return nil, nil
	}
	if int64(j)-int64(i) >= 1<<20 {
		return nil, typeError("too many results to unpack")
	}
	out := make([]vm.Value, 0, j-i+1)
	for k := i; k <= j; k++ {
		out = append(out, t.Get(vm.Number(float64(k))))
	}
	return out, nil
}

func tablePack(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
	t := vm.NewTable(len(args), 1)
	for i, a := range args {
		if err := t.Set(vm.Number(float64(i+1)), a.First()); err != nil {
			return nil, err
		}
	}
	t.SetString("n", vm.Number(float64(len(args))))
	return one(vm.TableValue(t)), nil
}
