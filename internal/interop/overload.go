package interop

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/xirelogy/go-lunar/internal/vm"
)

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	valueType   = reflect.TypeOf(vm.Value{})
	vmType      = reflect.TypeOf((*vm.VM)(nil))
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// Conversion scores used to rank overloads.
const (
	scoreNone    = 0
	scoreMarshal = 1
	scoreWiden   = 2
	scoreExact   = 3
)

// callable is one overload candidate. skip counts leading parameters bound
// before the script arguments (the method receiver).
type callable struct {
	name string
	fn   reflect.Value
	skip int
}

type plan struct {
	c      callable
	params []reflect.Type
	inject []reflect.Type
	score  int
}

// prepare splits the parameter list into injected host parameters (*vm.VM,
// context.Context) and script-visible ones.
func (c callable) prepare() plan {
	ft := c.fn.Type()
	p := plan{c: c}
	i := c.skip
	for ; i < ft.NumIn(); i++ {
		in := ft.In(i)
		if in != vmType && in != contextType {
			break
		}
		p.inject = append(p.inject, in)
	}
	for ; i < ft.NumIn(); i++ {
		p.params = append(p.params, ft.In(i))
	}
	return p
}

func (p plan) variadic() bool { return p.c.fn.Type().IsVariadic() }

func (p plan) paramFor(i int) reflect.Type {
	if p.variadic() && i >= len(p.params)-1 {
		return p.params[len(p.params)-1].Elem()
	}
	return p.params[i]
}

// rate scores args against the plan; scoreNone means the plan cannot accept them.
func (p plan) rate(args []vm.Value) int {
	n := len(p.params)
	if p.variadic() {
		n--
	} else if len(args) > n {
		return scoreNone
	}
	total := 0
	for i := 0; i < n || (p.variadic() && i < len(args)); i++ {
		v := vm.Nil()
		if i < len(args) {
			v = args[i]
		}
		s := scoreValue(v, p.paramFor(i))
		if s == scoreNone {
			return scoreNone
		}
		total += s
	}
	if total == 0 {
		// zero-parameter overloads still match an empty call
		total = scoreExact
	}
	return total
}

// scoreValue ranks how directly v converts to t.
func scoreValue(v vm.Value, t reflect.Type) int {
	v = v.First()
	if t == valueType {
		return scoreExact
	}
	if v.Kind == vm.KindUserData {
		ot := reflect.TypeOf(v.UD.Object)
		switch {
		case ot == t:
			return scoreExact
		case ot != nil && ot.AssignableTo(t):
			return scoreWiden
		}
	}
	if t.Kind() == reflect.Interface {
		if t.NumMethod() == 0 && v.Kind != vm.KindTuple {
			return scoreMarshal
		}
		return scoreNone
	}
	switch v.Kind {
	case vm.KindNil:
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Func:
			return scoreMarshal
		}
	case vm.KindBool:
		if t.Kind() == reflect.Bool {
			return scoreExact
		}
	case vm.KindNumber:
		switch t.Kind() {
		case reflect.Float64:
			return scoreExact
		case reflect.Float32:
			return scoreWiden
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			if v.Num == math.Trunc(v.Num) && !math.IsInf(v.Num, 0) {
				return scoreWiden
			}
		case reflect.String:
			return scoreMarshal
		}
	case vm.KindString:
		switch t.Kind() {
		case reflect.String:
			return scoreExact
		case reflect.Slice:
			if t.Elem().Kind() == reflect.Uint8 {
				return scoreWiden
			}
		case reflect.Float32, reflect.Float64, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if _, ok := vm.ToNumber(v); ok {
				return scoreMarshal
			}
		}
	case vm.KindTable:
		switch container(t).Kind() {
		case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
			return scoreMarshal
		}
	case vm.KindFunction:
		if t.Kind() == reflect.Func {
			return scoreMarshal
		}
	}
	return scoreNone
}

// resolve picks the best overload for args.
func resolve(member string, cands []callable, args []vm.Value) (plan, error) {
	var (
		best plan
		ties []plan
	)
	for _, c := range cands {
		p := c.prepare()
		p.score = p.rate(args)
		switch {
		case p.score == scoreNone:
		case p.score > best.score:
			best, ties = p, nil
		case p.score == best.score:
			ties = append(ties, p)
		}
	}
	if best.score == scoreNone {
		names := make([]string, len(args))
		for i, a := range args {
			names[i] = a.TypeName()
		}
		return plan{}, &vm.NoMatchingOverloadError{Member: member, Args: names}
	}
	if len(ties) > 0 {
		sigs := []string{signature(best.c.name, best.c.fn.Type(), best.c.skip)}
		for _, p := range ties {
			sigs = append(sigs, signature(p.c.name, p.c.fn.Type(), p.c.skip))
		}
		sort.Strings(sigs)
		return plan{}, &vm.AmbiguousOverloadError{Member: member, Candidates: sigs}
	}
	return best, nil
}

// invoke resolves an overload, converts the arguments and calls it. recv
// is passed first when valid.
func invoke(rt *vm.VM, member string, cands []callable, recv reflect.Value, args []vm.Value) ([]vm.Value, error) {
	p, err := resolve(member, cands, args)
	if err != nil {
		return nil, err
	}
	in := make([]reflect.Value, 0, p.c.skip+len(p.inject)+len(args))
	if recv.IsValid() && p.c.skip > 0 {
		in = append(in, recv)
	}
	for _, t := range p.inject {
		if t == vmType {
			in = append(in, reflect.ValueOf(rt))
		} else {
			in = append(in, reflect.ValueOf(rt.Context()))
		}
	}
	count := len(p.params)
	if p.variadic() {
		count--
		if len(args) > count {
			count = len(args)
		}
	}
	for i := 0; i < count; i++ {
		v := vm.Nil()
		if i < len(args) {
			v = args[i]
		}
		hv, err := ToHost(rt, v, p.paramFor(i))
		if err != nil {
			return nil, fmt.Errorf("bad argument #%d to '%s': %w", i+1, member, err)
		}
		in = append(in, hv)
	}
	return callHost(p.c.fn, in)
}

// callHost calls fn and converts its results. A trailing error result is
// returned as the Go error; host panics are reported as errors.
func callHost(fn reflect.Value, in []reflect.Value) (res []vm.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				res, err = nil, fmt.Errorf("host call panicked: %w", e)
				return
			}
			res, err = nil, fmt.Errorf("host call panicked: %v", r)
		}
	}()
	out := fn.Call(in)
	ft := fn.Type()
	if n := ft.NumOut(); n > 0 && ft.Out(n-1) == errorType {
		if e := out[n-1]; !e.IsNil() {
			return nil, e.Interface().(error)
		}
		out = out[:n-1]
	}
	res = make([]vm.Value, 0, len(out))
	for _, o := range out {
		v, err := toValue(o)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, nil
}

// NewFunction exposes one or more Go functions as a single script function.
// Several functions form an overload set resolved per call.
func NewFunction(name string, fns ...interface{}) (vm.Value, error) {
	if len(fns) == 0 {
		return vm.Nil(), fmt.Errorf("function %s: no implementation given", name)
	}
	cands := make([]callable, 0, len(fns))
	for _, fn := range fns {
		rv := reflect.ValueOf(fn)
		if rv.Kind() != reflect.Func || rv.IsNil() {
			return vm.Nil(), fmt.Errorf("function %s: %T is not a function", name, fn)
		}
		cands = append(cands, callable{name: name, fn: rv})
	}
	return vm.NewNative(name, func(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
		return invoke(rt, name, cands, reflect.Value{}, args)
	}), nil
}
