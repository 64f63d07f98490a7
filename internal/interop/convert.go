package interop

import (
	"fmt"
	"math"
	"reflect"

	"github.com/xirelogy/go-lunar/internal/vm"
)

// ToValue converts a host value. Scalars become script values; slices,
// maps, structs and pointers are wrapped as userdata sharing the host
// object; functions become script functions.
func ToValue(x interface{}) (vm.Value, error) {
	if v, ok := special(x); ok {
		return v, nil
	}
	return toValue(reflect.ValueOf(x))
}

func special(x interface{}) (vm.Value, bool) {
	switch v := x.(type) {
	case nil:
		return vm.Nil(), true
	case vm.Value:
		return v, true
	case *vm.Table:
		return vm.TableValue(v), true
	case *vm.UserData:
		return vm.UserDataValue(v), true
	case *vm.Function:
		return vm.FunctionValue(v), true
	case *vm.Coroutine:
		return vm.CoroutineValue(v), true
	case *Enumerator:
		return wrapEnumerator(v), true
	}
	return vm.Nil(), false
}

func toValue(rv reflect.Value) (vm.Value, error) {
	if !rv.IsValid() {
		return vm.Nil(), nil
	}
	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return vm.Nil(), nil
		}
		rv = rv.Elem()
	}
	if rv.CanInterface() {
		if v, ok := special(rv.Interface()); ok {
			return v, nil
		}
	}
	switch rv.Kind() {
	case reflect.Bool:
		return vm.Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		x := rv.Int()
		f := float64(x)
		if f < -(1<<63) || f >= 1<<63 || int64(f) != x {
			return vm.Nil(), inexactError(rv)
		}
		return vm.Number(f), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		x := rv.Uint()
		f := float64(x)
		if f >= 1<<64 || uint64(f) != x {
			return vm.Nil(), inexactError(rv)
		}
		return vm.Number(f), nil
	case reflect.Float32, reflect.Float64:
		return vm.Number(rv.Float()), nil
	case reflect.String:
		return vm.String(rv.String()), nil
	case reflect.Slice:
		if rv.IsNil() {
			return vm.Nil(), nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return vm.String(string(rv.Bytes())), nil
		}
		return wrap(rv.Interface()), nil
	case reflect.Map, reflect.Pointer:
		if rv.IsNil() {
			return vm.Nil(), nil
		}
		return wrap(rv.Interface()), nil
	case reflect.Func:
		if rv.IsNil() {
			return vm.Nil(), nil
		}
		return NewFunction(rv.Type().String(), rv.Interface())
	case reflect.Struct, reflect.Array:
		return wrap(rv.Interface()), nil
	}
	return vm.Nil(), &vm.ConversionError{From: rv.Type().String(), To: "script value"}
}

// inexactError reports an integer a script number cannot hold exactly.
func inexactError(rv reflect.Value) error {
	return &vm.ConversionError{From: rv.Type().String(), To: "number", Reason: fmt.Sprintf("%v is not exactly representable", rv.Interface())}
}

func conversionError(v vm.Value, t reflect.Type, reason string) error {
	return &vm.ConversionError{From: v.TypeName(), To: t.String(), Reason: reason}
}

// ToHost converts a script value to a host value of type t. rt is needed
// only to convert script functions into callable Go funcs.
func ToHost(rt *vm.VM, v vm.Value, t reflect.Type) (reflect.Value, error) {
	v = v.First()
	if t == valueType {
		return reflect.ValueOf(v), nil
	}
	if v.Kind == vm.KindUserData && v.UD.Object != nil {
		ov := reflect.ValueOf(v.UD.Object)
		if ov.Type().AssignableTo(t) {
			return ov, nil
		}
		if ov.Kind() == reflect.Pointer && !ov.IsNil() && ov.Elem().Type().AssignableTo(t) {
			return ov.Elem(), nil
		}
	}
	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Interface:
		if t.NumMethod() != 0 {
			break
		}
		p, err := plain(v, map[*vm.Table]bool{})
		if err != nil {
			return reflect.Value{}, err
		}
		if p == nil {
			return out, nil
		}
		return reflect.ValueOf(p), nil
	case reflect.Bool:
		if v.Kind == vm.KindBool {
			out.SetBool(v.B)
			return out, nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := vm.ToNumber(v)
		if !ok {
			break
		}
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 || out.OverflowInt(int64(n)) {
			return reflect.Value{}, conversionError(v, t, "number has no integer representation in range")
		}
		out.SetInt(int64(n))
		return out, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, ok := vm.ToNumber(v)
		if !ok {
			break
		}
		if n != math.Trunc(n) || n < 0 || n >= math.MaxUint64 || out.OverflowUint(uint64(n)) {
			return reflect.Value{}, conversionError(v, t, "number has no unsigned integer representation in range")
		}
		out.SetUint(uint64(n))
		return out, nil
	case reflect.Float32, reflect.Float64:
		n, ok := vm.ToNumber(v)
		if !ok {
			break
		}
		out.SetFloat(n)
		return out, nil
	case reflect.String:
		if v.Kind == vm.KindString || v.Kind == vm.KindNumber {
			out.SetString(vm.RawString(v))
			return out, nil
		}
	case reflect.Slice:
		switch {
		case v.Kind == vm.KindNil:
			return out, nil
		case v.Kind == vm.KindString && t.Elem().Kind() == reflect.Uint8:
			out.SetBytes([]byte(v.Str))
			return out, nil
		case v.Kind == vm.KindTable:
			arr := v.Tab.ArrayPart()
			out.Set(reflect.MakeSlice(t, len(arr), len(arr)))
			for i, elem := range arr {
				hv, err := ToHost(rt, elem, t.Elem())
				if err != nil {
					return reflect.Value{}, conversionError(v, t, fmt.Sprintf("element %d: %v", i+1, err))
				}
				out.Index(i).Set(hv)
			}
			return out, nil
		}
	case reflect.Array:
		if v.Kind != vm.KindTable {
			break
		}
		arr := v.Tab.ArrayPart()
		if len(arr) > t.Len() {
			return reflect.Value{}, conversionError(v, t, fmt.Sprintf("%d elements do not fit", len(arr)))
		}
		for i, elem := range arr {
			hv, err := ToHost(rt, elem, t.Elem())
			if err != nil {
				return reflect.Value{}, conversionError(v, t, fmt.Sprintf("element %d: %v", i+1, err))
			}
			out.Index(i).Set(hv)
		}
		return out, nil
	case reflect.Map:
		if v.Kind == vm.KindNil {
			return out, nil
		}
		if v.Kind != vm.KindTable {
			break
		}
		out.Set(reflect.MakeMapWithSize(t, v.Tab.Len()+v.Tab.HashLen()))
		var convErr error
		v.Tab.ForEach(func(k, val vm.Value) bool {
			hk, err := ToHost(rt, k, t.Key())
			if err != nil {
				convErr = conversionError(v, t, fmt.Sprintf("key %s: %v", k.String(), err))
				return false
			}
			hv, err := ToHost(rt, val, t.Elem())
			if err != nil {
				convErr = conversionError(v, t, fmt.Sprintf("value at %s: %v", k.String(), err))
				return false
			}
			out.SetMapIndex(hk, hv)
			return true
		})
		if convErr != nil {
			return reflect.Value{}, convErr
		}
		return out, nil
	case reflect.Struct:
		if v.Kind != vm.KindTable {
			break
		}
		for _, f := range reflect.VisibleFields(t) {
			if !f.IsExported() || f.Anonymous {
				continue
			}
			name := fieldName(f)
			if name == "" {
				continue
			}
			val := v.Tab.GetString(name)
			if val.IsNil() {
				val = v.Tab.GetString(lowerFirst(name))
			}
			if val.IsNil() {
				continue
			}
			hv, err := ToHost(rt, val, f.Type)
			if err != nil {
				return reflect.Value{}, conversionError(v, t, fmt.Sprintf("field %s: %v", f.Name, err))
			}
			out.FieldByIndex(f.Index).Set(hv)
		}
		return out, nil
	case reflect.Pointer:
		if v.Kind == vm.KindNil {
			return out, nil
		}
		elem, err := ToHost(rt, v, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(elem)
		return p, nil
	case reflect.Func:
		if v.Kind == vm.KindNil {
			return out, nil
		}
		if v.Kind != vm.KindFunction {
			break
		}
		if rt == nil {
			return reflect.Value{}, conversionError(v, t, "no VM to call back into")
		}
		return makeFunc(rt, v, t), nil
	}
	return reflect.Value{}, conversionError(v, t, "")
}

func fieldName(f reflect.StructField) string {
	if tag, ok := f.Tag.Lookup("lunar"); ok {
		if tag == "-" {
			return ""
		}
		if tag != "" {
			return tag
		}
	}
	return f.Name
}

// plain converts v into the generic Go shapes used for interface{} targets.
func plain(v vm.Value, seen map[*vm.Table]bool) (interface{}, error) {
	switch v.Kind {
	case vm.KindNil:
		return nil, nil
	case vm.KindBool:
		return v.B, nil
	case vm.KindNumber:
		return v.Num, nil
	case vm.KindString:
		return v.Str, nil
	case vm.KindUserData:
		return v.UD.Object, nil
	case vm.KindTable:
		if seen[v.Tab] {
			return nil, &vm.ConversionError{From: "table", To: "interface {}", Reason: "table contains a cycle"}
		}
		seen[v.Tab] = true
		defer delete(seen, v.Tab)
		t := v.Tab
		if t.HashLen() == 0 && t.Len() > 0 {
			out := make([]interface{}, 0, t.Len())
			for _, elem := range t.ArrayPart() {
				p, err := plain(elem, seen)
				if err != nil {
					return nil, err
				}
				out = append(out, p)
			}
			return out, nil
		}
		stringKeys := true
		t.ForEach(func(k, _ vm.Value) bool {
			stringKeys = k.Kind == vm.KindString
			return stringKeys
		})
		var err error
		if stringKeys {
			out := make(map[string]interface{}, t.HashLen())
			t.ForEach(func(k, val vm.Value) bool {
				out[k.Str], err = plain(val, seen)
				return err == nil
			})
			return out, err
		}
		out := make(map[interface{}]interface{}, t.Len()+t.HashLen())
		t.ForEach(func(k, val vm.Value) bool {
			var pk interface{}
			if pk, err = plain(k, seen); err != nil {
				return false
			}
			out[pk], err = plain(val, seen)
			return err == nil
		})
		return out, err
	}
	return v, nil
}

// ToPlain converts a script value to nil, bool, float64, string,
// []interface{}, map[string]interface{} or the wrapped host object.
func ToPlain(v vm.Value) (interface{}, error) {
	return plain(v.First(), map[*vm.Table]bool{})
}

// ToTable deep-copies host data into script tables: slices and arrays
// become sequences, maps and structs become keyed tables.
func ToTable(x interface{}) (vm.Value, error) {
	if v, ok := special(x); ok {
		return v, nil
	}
	return copyValue(reflect.ValueOf(x), 0)
}

const maxCopyDepth = 100

func copyValue(rv reflect.Value, depth int) (vm.Value, error) {
	if depth > maxCopyDepth {
		return vm.Nil(), &vm.ConversionError{From: rv.Type().String(), To: "table", Reason: "value nests too deeply"}
	}
	for rv.IsValid() && (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return vm.Nil(), nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return vm.Nil(), nil
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return vm.String(string(rv.Bytes())), nil
		}
		t := vm.NewTable(rv.Len(), 0)
		for i := 0; i < rv.Len(); i++ {
			elem, err := copyValue(rv.Index(i), depth+1)
			if err != nil {
				return vm.Nil(), err
			}
			if err := t.Set(vm.Number(float64(i+1)), elem); err != nil {
				return vm.Nil(), err
			}
		}
		return vm.TableValue(t), nil
	case reflect.Map:
		t := vm.NewTable(0, rv.Len())
		keys := rv.MapKeys()
		sortKeys(keys)
		for _, k := range keys {
			kv, err := toValue(k)
			if err != nil {
				return vm.Nil(), err
			}
			val, err := copyValue(rv.MapIndex(k), depth+1)
			if err != nil {
				return vm.Nil(), err
			}
			if err := t.Set(kv, val); err != nil {
				return vm.Nil(), err
			}
		}
		return vm.TableValue(t), nil
	case reflect.Struct:
		st := rv.Type()
		t := vm.NewTable(0, st.NumField())
		for _, f := range reflect.VisibleFields(st) {
			if !f.IsExported() || f.Anonymous {
				continue
			}
			name := fieldName(f)
			if name == "" {
				continue
			}
			val, err := copyValue(rv.FieldByIndex(f.Index), depth+1)
			if err != nil {
				return vm.Nil(), err
			}
			t.SetString(name, val)
		}
		return vm.TableValue(t), nil
	}
	return toValue(rv)
}

// makeFunc builds a Go func of type t that calls the script function fn
// synchronously on rt.
func makeFunc(rt *vm.VM, fn vm.Value, t reflect.Type) reflect.Value {
	hasErr := t.NumOut() > 0 && t.Out(t.NumOut()-1) == errorType
	fail := func(err error) []reflect.Value {
		if !hasErr {
			panic(err)
		}
		out := make([]reflect.Value, t.NumOut())
		for i := range out {
			out[i] = reflect.Zero(t.Out(i))
		}
		out[len(out)-1] = reflect.ValueOf(&err).Elem()
		return out
	}
	return reflect.MakeFunc(t, func(in []reflect.Value) []reflect.Value {
		args := make([]vm.Value, 0, len(in))
		for i, a := range in {
			if t.IsVariadic() && i == len(in)-1 {
				for j := 0; j < a.Len(); j++ {
					v, err := toValue(a.Index(j))
					if err != nil {
						return fail(err)
					}
					args = append(args, v)
				}
				continue
			}
			v, err := toValue(a)
			if err != nil {
				return fail(err)
			}
			args = append(args, v)
		}
		res, err := rt.Call(fn, args...)
		if err != nil {
			return fail(err)
		}
		out := make([]reflect.Value, t.NumOut())
		for i := range out {
			ot := t.Out(i)
			if hasErr && i == len(out)-1 {
				out[i] = reflect.Zero(ot)
				continue
			}
			v := vm.Nil()
			if i < len(res) {
				v = res[i]
			}
			hv, err := ToHost(rt, v, ot)
			if err != nil {
				return fail(err)
			}
			if hv.Type() != ot {
				hv = hv.Convert(ot)
			}
			out[i] = hv
		}
		return out
	})
}
