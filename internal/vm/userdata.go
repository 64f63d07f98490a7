package vm

import "reflect"

// UserData wraps a host object together with the descriptor that exposes
// its members to scripts.
type UserData struct {
	Object interface{}
	Desc   Descriptor
	Meta   *Table
}

func NewUserData(obj interface{}, desc Descriptor) *UserData {
	return &UserData{Object: obj, Desc: desc}
}

// Descriptor dispatches member access on a host object.
type Descriptor interface {
	Name() string
	Index(vm *VM, ud *UserData, key Value) (Value, error)
	SetIndex(vm *VM, ud *UserData, key, val Value) error
}

// MultiIndexer is implemented by descriptors supporting ud[i, j, ...].
type MultiIndexer interface {
	MultiIndex(vm *VM, ud *UserData, keys []Value) (Value, error)
	SetMultiIndex(vm *VM, ud *UserData, keys []Value, val Value) error
}

// Caller is implemented by descriptors of callable host objects.
type Caller interface {
	Call(vm *VM, ud *UserData, args []Value) ([]Value, error)
}

// Lengther is implemented by descriptors supporting the # operator.
type Lengther interface {
	Len(vm *VM, ud *UserData) (int, error)
}

// Iterable is implemented by descriptors of enumerable host objects. The
// returned triple replaces the object in a generic for loop.
type Iterable interface {
	Iterate(vm *VM, ud *UserData) (fn, state, control Value, err error)
}

// identity is what makes two userdata values the same object: the wrapper
// itself, or the host pointer when the object is a pointer.
func (ud *UserData) identity() interface{} {
	if ud == nil || ud.Object == nil {
		return ud
	}
	switch reflect.TypeOf(ud.Object).Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return objectKey{reflect.TypeOf(ud.Object), reflect.ValueOf(ud.Object).Pointer()}
	}
	return ud
}

type objectKey struct {
	t reflect.Type
	p uintptr
}
