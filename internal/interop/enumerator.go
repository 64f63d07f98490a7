package interop

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/xirelogy/go-lunar/internal/vm"
)

// Enumerable is implemented by host types that produce their own sequence.
// Enumerate starts a fresh pass; the returned function yields pairs until ok
// is false.
type Enumerable interface {
	Enumerate() func() (key, value interface{}, ok bool)
}

type stepFunc func() (vm.Value, vm.Value, bool, error)

// Enumerator is a lazy iterator over a host collection. Once exhausted it
// stays exhausted until Reset starts a new pass.
type Enumerator struct {
	start func() stepFunc
	next  stepFunc
	done  bool
}

// NewEnumerator iterates slices and arrays (0-based index, element), maps
// (key order sorted) and Enumerable implementations.
func NewEnumerator(obj interface{}) (*Enumerator, error) {
	if en, ok := obj.(Enumerable); ok {
		return &Enumerator{start: func() stepFunc {
			next := en.Enumerate()
			return func() (vm.Value, vm.Value, bool, error) {
				k, v, ok := next()
				if !ok {
					return vm.Nil(), vm.Nil(), false, nil
				}
				kv, err := ToValue(k)
				if err != nil {
					return vm.Nil(), vm.Nil(), false, err
				}
				vv, err := ToValue(v)
				return kv, vv, err == nil, err
			}
		}}, nil
	}
	rv, err := deref(reflect.ValueOf(obj))
	if err != nil {
		return nil, err
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return &Enumerator{start: func() stepFunc {
			i := 0
			return func() (vm.Value, vm.Value, bool, error) {
				if i >= rv.Len() {
					return vm.Nil(), vm.Nil(), false, nil
				}
				v, err := valueOfField(rv.Index(i))
				k := vm.Number(float64(i))
				i++
				return k, v, err == nil, err
			}
		}}, nil
	case reflect.Map:
		return &Enumerator{start: func() stepFunc {
			var keys []reflect.Value
			i := -1
			return func() (vm.Value, vm.Value, bool, error) {
				if i < 0 {
					keys = rv.MapKeys()
					sortKeys(keys)
					i = 0
				}
				for i < len(keys) {
					k := keys[i]
					i++
					elem := rv.MapIndex(k)
					if !elem.IsValid() {
						// removed since the pass started
						continue
					}
					kv, err := toValue(k)
					if err != nil {
						return vm.Nil(), vm.Nil(), false, err
					}
					vv, err := toValue(elem)
					return kv, vv, err == nil, err
				}
				return vm.Nil(), vm.Nil(), false, nil
			}
		}}, nil
	}
	return nil, &vm.TypeError{Message: fmt.Sprintf("'%s' is not enumerable", rv.Type())}
}

// Next returns the next pair; ok is false once the sequence is exhausted.
func (e *Enumerator) Next() (key, value vm.Value, ok bool, err error) {
	if e.done {
		return vm.Nil(), vm.Nil(), false, nil
	}
	if e.next == nil {
		e.next = e.start()
	}
	key, value, ok, err = e.next()
	if !ok {
		e.done = true
	}
	return key, value, ok, err
}

// Reset rewinds the enumerator to the start of a new pass.
func (e *Enumerator) Reset() {
	e.next = nil
	e.done = false
}

func sortKeys(keys []reflect.Value) {
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		for a.Kind() == reflect.Interface && !a.IsNil() {
			a = a.Elem()
		}
		for b.Kind() == reflect.Interface && !b.IsNil() {
			b = b.Elem()
		}
		switch {
		case a.Kind() == reflect.String && b.Kind() == reflect.String:
			return a.String() < b.String()
		case a.CanInt() && b.CanInt():
			return a.Int() < b.Int()
		case a.CanUint() && b.CanUint():
			return a.Uint() < b.Uint()
		case a.CanFloat() && b.CanFloat():
			return a.Float() < b.Float()
		}
		return fmt.Sprint(a.Interface()) < fmt.Sprint(b.Interface())
	})
}

// enumDescriptor exposes an Enumerator to scripts: calling it steps the
// iteration, so it plugs directly into generic for.
type enumDescriptor struct{}

var enumDesc = enumDescriptor{}

func wrapEnumerator(e *Enumerator) vm.Value {
	return vm.UserDataValue(vm.NewUserData(e, enumDesc))
}

func (enumDescriptor) Name() string { return "enumerator" }

func (enumDescriptor) Index(rt *vm.VM, ud *vm.UserData, key vm.Value) (vm.Value, error) {
	e := ud.Object.(*Enumerator)
	if key.Kind == vm.KindString {
		switch key.Str {
		case "Reset", "reset":
			return vm.NewNative("Reset", func(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
				e.Reset()
				return nil, nil
			}), nil
		case "Next", "next":
			return vm.NewNative("Next", func(rt *vm.VM, args []vm.Value) ([]vm.Value, error) {
				return step(e)
			}), nil
		}
	}
	return vm.Nil(), &vm.IndexError{Message: fmt.Sprintf("'enumerator' has no member %s", key.String())}
}

func (enumDescriptor) SetIndex(rt *vm.VM, ud *vm.UserData, key, val vm.Value) error {
	return &vm.IndexError{Message: "'enumerator' is read-only"}
}

func (enumDescriptor) Call(rt *vm.VM, ud *vm.UserData, args []vm.Value) ([]vm.Value, error) {
	return step(ud.Object.(*Enumerator))
}

func (enumDescriptor) Iterate(rt *vm.VM, ud *vm.UserData) (vm.Value, vm.Value, vm.Value, error) {
	return vm.UserDataValue(ud), vm.Nil(), vm.Nil(), nil
}

func step(e *Enumerator) ([]vm.Value, error) {
	k, v, ok, err := e.Next()
	if err != nil {
		return nil, err
	}
	if !ok {
		return []vm.Value{vm.Nil()}, nil
	}
	return []vm.Value{k, v}, nil
}
