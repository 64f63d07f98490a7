package interop

import (
	"fmt"
	"math"
	"reflect"

	"github.com/xirelogy/go-lunar/internal/vm"
)

// Index implements member and element reads for host userdata.
func (d *Descriptor) Index(rt *vm.VM, ud *vm.UserData, key vm.Value) (vm.Value, error) {
	if key.Kind == vm.KindString {
		if m, ok := d.members[key.Str]; ok && m.Kind != MemberIndexer {
			return d.readMember(rt, ud, m)
		}
	}
	if d.indexed {
		return d.MultiIndex(rt, ud, []vm.Value{key})
	}
	return vm.Nil(), &vm.IndexError{Message: fmt.Sprintf("'%s' has no member %s", d.Name(), key.String())}
}

// SetIndex implements member and element writes for host userdata.
func (d *Descriptor) SetIndex(rt *vm.VM, ud *vm.UserData, key, val vm.Value) error {
	if key.Kind == vm.KindString {
		if m, ok := d.members[key.Str]; ok && m.Kind != MemberIndexer {
			return d.writeMember(rt, ud, m, val)
		}
	}
	if d.indexed {
		return d.SetMultiIndex(rt, ud, []vm.Value{key}, val)
	}
	return &vm.IndexError{Message: fmt.Sprintf("'%s' has no member %s", d.Name(), key.String())}
}

func (d *Descriptor) readMember(rt *vm.VM, ud *vm.UserData, m *Member) (vm.Value, error) {
	recv := reflect.ValueOf(ud.Object)
	switch m.Kind {
	case MemberField:
		f, err := fieldOf(recv, m.field)
		if err != nil {
			return vm.Nil(), err
		}
		return valueOfField(f)
	case MemberProperty:
		res, err := callHost(m.methods[0].Func, []reflect.Value{recv})
		if err != nil || len(res) == 0 {
			return vm.Nil(), err
		}
		return res[0], nil
	default:
		return d.boundMethod(ud, m), nil
	}
}

func (d *Descriptor) writeMember(rt *vm.VM, ud *vm.UserData, m *Member, val vm.Value) error {
	if m.Access&AccessWrite == 0 {
		return &vm.IndexError{Message: fmt.Sprintf("member '%s' of '%s' is read-only", m.Name, d.Name())}
	}
	recv := reflect.ValueOf(ud.Object)
	switch m.Kind {
	case MemberField:
		f, err := fieldOf(recv, m.field)
		if err != nil {
			return err
		}
		if !f.CanSet() {
			return &vm.IndexError{Message: fmt.Sprintf("field '%s' of '%s' is not addressable", m.Name, d.Name())}
		}
		hv, err := ToHost(rt, val, f.Type())
		if err != nil {
			return err
		}
		f.Set(hv)
		return nil
	case MemberProperty:
		hv, err := ToHost(rt, val, m.setter.Type.In(1))
		if err != nil {
			return err
		}
		_, err = callHost(m.setter.Func, []reflect.Value{recv, hv})
		return err
	}
	return &vm.IndexError{Message: fmt.Sprintf("cannot assign to method '%s' of '%s'", m.Name, d.Name())}
}

// boundMethod returns a native calling the member's overloads on ud. Both
// obj:m(...) and obj.m(...) call forms are accepted.
func (d *Descriptor) boundMethod(ud *vm.UserData, m *Member) vm.Value {
	cands := make([]callable, len(m.methods))
	for i, method := range m.methods {
		cands[i] = callable{name: method.Name, fn: method.Func, skip: 1}
	}
	self := vm.UserDataValue(ud)
	return vm.NewNative(m.Name, func(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
		if len(args) > 0 && vm.RawEqual(args[0], self) {
			args = args[1:]
		}
		return invoke(rt, m.Name, cands, reflect.ValueOf(ud.Object), args)
	})
}

func fieldOf(v reflect.Value, index []int) (reflect.Value, error) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, &vm.IndexError{Message: "attempt to access a field of a nil host pointer"}
		}
		v = v.Elem()
	}
	f, err := v.FieldByIndexErr(index)
	if err != nil {
		return reflect.Value{}, &vm.IndexError{Message: err.Error()}
	}
	return f, nil
}

// valueOfField keeps addressable arrays and structs by reference so writes
// through the returned userdata reach the host object.
func valueOfField(f reflect.Value) (vm.Value, error) {
	switch f.Kind() {
	case reflect.Array, reflect.Struct:
		if f.CanAddr() {
			return wrap(f.Addr().Interface()), nil
		}
	}
	return toValue(f)
}

func deref(v reflect.Value) (reflect.Value, error) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, &vm.IndexError{Message: "attempt to index a nil host value"}
		}
		v = v.Elem()
	}
	return v, nil
}

// hostIndex converts a script key to a 0-based host index, checking bounds
// before the host value is touched.
func hostIndex(key vm.Value, length int) (int, error) {
	n, ok := vm.ToNumber(key)
	if !ok || n != math.Trunc(n) {
		return 0, &vm.IndexError{Message: fmt.Sprintf("host index must be an integer, got %s", key.TypeName())}
	}
	if n < 0 || n >= float64(length) {
		return 0, &vm.IndexError{Message: fmt.Sprintf("index %s out of range [0, %d)", vm.FormatNumber(n), length)}
	}
	return int(n), nil
}

// locate walks all keys but the last and returns the final container.
func locate(rt *vm.VM, root reflect.Value, keys []vm.Value) (reflect.Value, error) {
	v, err := deref(root)
	if err != nil {
		return reflect.Value{}, err
	}
	for _, key := range keys {
		switch v.Kind() {
		case reflect.Slice, reflect.Array:
			i, err := hostIndex(key, v.Len())
			if err != nil {
				return reflect.Value{}, err
			}
			v = v.Index(i)
		case reflect.Map:
			k, err := ToHost(rt, key, v.Type().Key())
			if err != nil {
				return reflect.Value{}, err
			}
			elem := v.MapIndex(k)
			if !elem.IsValid() {
				return reflect.Value{}, &vm.IndexError{Message: fmt.Sprintf("key %s not present", key.String())}
			}
			v = elem
		default:
			return reflect.Value{}, &vm.IndexError{Message: fmt.Sprintf("too many indices for %s", v.Type())}
		}
		if v, err = deref(v); err != nil {
			return reflect.Value{}, err
		}
	}
	return v, nil
}

// MultiIndex reads ud[k1, ..., kn] through nested slices, arrays and maps.
func (d *Descriptor) MultiIndex(rt *vm.VM, ud *vm.UserData, keys []vm.Value) (vm.Value, error) {
	v, err := locate(rt, reflect.ValueOf(ud.Object), keys[:len(keys)-1])
	if err != nil {
		return vm.Nil(), err
	}
	last := keys[len(keys)-1]
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		i, err := hostIndex(last, v.Len())
		if err != nil {
			return vm.Nil(), err
		}
		return valueOfField(v.Index(i))
	case reflect.Map:
		k, err := ToHost(rt, last, v.Type().Key())
		if err != nil {
			return vm.Nil(), err
		}
		elem := v.MapIndex(k)
		if !elem.IsValid() {
			return vm.Nil(), nil
		}
		return toValue(elem)
	}
	return vm.Nil(), &vm.IndexError{Message: fmt.Sprintf("'%s' is not indexable", v.Type())}
}

// SetMultiIndex writes ud[k1, ..., kn] = val.
func (d *Descriptor) SetMultiIndex(rt *vm.VM, ud *vm.UserData, keys []vm.Value, val vm.Value) error {
	if d.policy.ReadOnly {
		return &vm.IndexError{Message: fmt.Sprintf("'%s' is read-only", d.Name())}
	}
	v, err := locate(rt, reflect.ValueOf(ud.Object), keys[:len(keys)-1])
	if err != nil {
		return err
	}
	last := keys[len(keys)-1]
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		i, err := hostIndex(last, v.Len())
		if err != nil {
			return err
		}
		elem := v.Index(i)
		if !elem.CanSet() {
			return &vm.IndexError{Message: fmt.Sprintf("element of %s is not addressable", v.Type())}
		}
		hv, err := ToHost(rt, val, elem.Type())
		if err != nil {
			return err
		}
		elem.Set(hv)
		return nil
	case reflect.Map:
		k, err := ToHost(rt, last, v.Type().Key())
		if err != nil {
			return err
		}
		if val.IsNil() {
			v.SetMapIndex(k, reflect.Value{})
			return nil
		}
		hv, err := ToHost(rt, val, v.Type().Elem())
		if err != nil {
			return err
		}
		v.SetMapIndex(k, hv)
		return nil
	}
	return &vm.IndexError{Message: fmt.Sprintf("'%s' is not indexable", v.Type())}
}

// Len implements # for host collections.
func (d *Descriptor) Len(rt *vm.VM, ud *vm.UserData) (int, error) {
	v, err := deref(reflect.ValueOf(ud.Object))
	if err != nil {
		return 0, err
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String, reflect.Chan:
		return v.Len(), nil
	}
	return 0, &vm.TypeError{Message: fmt.Sprintf("attempt to get length of a %s value", d.Name())}
}

// Iterate exposes host collections to generic for through an Enumerator.
func (d *Descriptor) Iterate(rt *vm.VM, ud *vm.UserData) (vm.Value, vm.Value, vm.Value, error) {
	e, err := NewEnumerator(ud.Object)
	if err != nil {
		return vm.Nil(), vm.Nil(), vm.Nil(), err
	}
	return wrapEnumerator(e), vm.Nil(), vm.Nil(), nil
}
