package lunar

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/xirelogy/go-lunar/internal/interop"
	"github.com/xirelogy/go-lunar/internal/vm"
)

type (
	// AccessPolicy controls how a registered host type is exposed.
	AccessPolicy = interop.Policy
	// Descriptor is the cached description of a host type's members.
	Descriptor = interop.Descriptor
	// Member is one exposed field, property, method or indexer.
	Member = interop.Member
	// Enumerable lets a host type drive for-in loops itself.
	Enumerable = interop.Enumerable
	// Enumerator is a resettable iteration over a host collection.
	Enumerator = interop.Enumerator
)

// RegisterHostType describes the type of sample under policy. The first
// registration of a type wins; later calls return the cached descriptor.
// Unregistered types are described with the default policy on first use.
func RegisterHostType(sample any, policy AccessPolicy) (*Descriptor, error) {
	if sample == nil {
		return nil, errors.New("nil sample")
	}
	return interop.Describe(reflect.TypeOf(sample), policy), nil
}

// NewEnumerator wraps a slice, array, map or Enumerable so
// scripts can iterate it with for-in.
func NewEnumerator(obj any) (*Enumerator, error) {
	return interop.NewEnumerator(obj)
}

// FromValue converts v to a Go value of type t. Script functions convert to
// Go funcs calling back into the VM that produced v; outside a run such a
// func must not overlap other runs of that VM.
func FromValue(v Value, t reflect.Type) (any, error) {
	if t == nil {
		return nil, errors.New("nil target type")
	}
	var core *vm.VM
	if v.owner != nil {
		core = v.owner.core
	}
	out, err := interop.ToHost(core, v.v, t)
	if err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

// Unmarshal assigns v into the Go value target points to.
func Unmarshal(v Value, target any) error {
	if target == nil {
		return errors.New("nil target")
	}
	if u, ok := target.(Unmarshaler); ok {
		return u.UnmarshalLunar(v)
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("target must be non-nil pointer, got %T", target)
	}
	out, err := FromValue(v, rv.Type().Elem())
	if err != nil {
		return err
	}
	if out == nil {
		rv.Elem().SetZero()
		return nil
	}
	rv.Elem().Set(reflect.ValueOf(out))
	return nil
}
