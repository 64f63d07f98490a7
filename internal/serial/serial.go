// Package serial renders prime values as source literals and converts them
// to and from JSON, YAML and CBOR.
//
// A prime value is nil, a boolean, a number, a string, or a table without a
// metatable whose keys and values are themselves prime. Functions, userdata
// and coroutines are owned by the host or the VM and never serialized.
package serial

import (
	"fmt"
	"sort"

	"github.com/xirelogy/go-lunar/internal/vm"
)

// maxDepth bounds table nesting for every encoder.
const maxDepth = 200

// NotPrimeError reports a value that cannot be serialized.
type NotPrimeError struct {
	Path   string
	Reason string
}

func (e *NotPrimeError) Error() string {
	if e.Path == "" {
		return "cannot serialize value: " + e.Reason
	}
	return fmt.Sprintf("cannot serialize value at %s: %s", e.Path, e.Reason)
}

func notPrime(path, format string, args ...any) error {
	return &NotPrimeError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// walker tracks the tables on the current path to reject cycles.
type walker struct {
	active map[*vm.Table]bool
}

func newWalker() *walker {
	return &walker{active: map[*vm.Table]bool{}}
}

func (w *walker) enter(t *vm.Table, path string, depth int) error {
	if depth > maxDepth {
		return notPrime(path, "tables nest too deeply")
	}
	if w.active[t] {
		return notPrime(path, "table contains a cycle")
	}
	if t.Metatable() != nil {
		return notPrime(path, "table has a metatable")
	}
	w.active[t] = true
	return nil
}

func (w *walker) leave(t *vm.Table) {
	delete(w.active, t)
}

func childPath(path string, k vm.Value) string {
	if path == "" {
		path = "value"
	}
	return path + "[" + k.String() + "]"
}

// IsPrime reports whether v can be serialized.
func IsPrime(v vm.Value) bool {
	return checkPrime(newWalker(), v.First(), "", 0) == nil
}

func checkPrime(w *walker, v vm.Value, path string, depth int) error {
	switch v.Kind {
	case vm.KindNil, vm.KindBool, vm.KindNumber, vm.KindString:
		return nil
	case vm.KindTable:
		if err := w.enter(v.Tab, path, depth); err != nil {
			return err
		}
		defer w.leave(v.Tab)
		var err error
		v.Tab.ForEach(func(k, val vm.Value) bool {
			if k.Kind == vm.KindTable {
				err = notPrime(path, "table keys cannot be serialized")
				return false
			}
			if err = checkPrime(w, k, path, depth+1); err != nil {
				return false
			}
			err = checkPrime(w, val, childPath(path, k), depth+1)
			return err == nil
		})
		return err
	}
	return notPrime(path, "%s values are not serializable", v.TypeName())
}

// isSequence reports whether t holds exactly the keys 1..n.
func isSequence(t *vm.Table) bool {
	if t.HashLen() != 0 {
		return false
	}
	for _, v := range t.ArrayPart() {
		if v.IsNil() {
			return false
		}
	}
	return true
}

// keyString renders a non-string key as a map key for formats that only
// allow string keys.
func keyString(k vm.Value) string {
	if k.Kind == vm.KindString {
		return k.Str
	}
	return vm.RawString(k)
}

// ToPlain converts a prime value into nil, bool, float64, string,
// []interface{} or map[string]interface{}. Tables holding exactly the keys
// 1..n become slices; every other table, the empty one included, becomes a
// map whose non-string keys are rendered as text.
func ToPlain(v vm.Value) (interface{}, error) {
	return toPlain(newWalker(), v.First(), "", 0)
}

func toPlain(w *walker, v vm.Value, path string, depth int) (interface{}, error) {
	switch v.Kind {
	case vm.KindNil:
		return nil, nil
	case vm.KindBool:
		return v.B, nil
	case vm.KindNumber:
		return v.Num, nil
	case vm.KindString:
		return v.Str, nil
	case vm.KindTable:
		t := v.Tab
		if err := w.enter(t, path, depth); err != nil {
			return nil, err
		}
		defer w.leave(t)
		if t.Len() > 0 && isSequence(t) {
			out := make([]interface{}, 0, t.Len())
			for i, elem := range t.ArrayPart() {
				p, err := toPlain(w, elem, childPath(path, vm.Number(float64(i+1))), depth+1)
				if err != nil {
					return nil, err
				}
				out = append(out, p)
			}
			return out, nil
		}
		out := make(map[string]interface{}, t.Len()+t.HashLen())
		var err error
		t.ForEach(func(k, val vm.Value) bool {
			if k.Kind != vm.KindString && k.Kind != vm.KindNumber && k.Kind != vm.KindBool {
				err = notPrime(path, "%s keys are not serializable", k.TypeName())
				return false
			}
			var p interface{}
			if p, err = toPlain(w, val, childPath(path, k), depth+1); err != nil {
				return false
			}
			out[keyString(k)] = p
			return true
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, notPrime(path, "%s values are not serializable", v.TypeName())
}

// FromPlain converts decoded data into script values. Integers of any
// width become numbers, []byte becomes a string and maps with non-string
// keys keep their scalar keys.
func FromPlain(x interface{}) (vm.Value, error) {
	return fromPlain(x, 0)
}

func fromPlain(x interface{}, depth int) (vm.Value, error) {
	if depth > maxDepth {
		return vm.Nil(), &NotPrimeError{Reason: "data nests too deeply"}
	}
	switch v := x.(type) {
	case nil:
		return vm.Nil(), nil
	case bool:
		return vm.Bool(v), nil
	case float64:
		return vm.Number(v), nil
	case float32:
		return vm.Number(float64(v)), nil
	case int:
		return vm.Number(float64(v)), nil
	case int64:
		return vm.Number(float64(v)), nil
	case uint64:
		return vm.Number(float64(v)), nil
	case string:
		return vm.String(v), nil
	case []byte:
		return vm.String(string(v)), nil
	case []interface{}:
		t := vm.NewTable(len(v), 0)
		for i, elem := range v {
			ev, err := fromPlain(elem, depth+1)
			if err != nil {
				return vm.Nil(), err
			}
			if err := t.Set(vm.Number(float64(i+1)), ev); err != nil {
				return vm.Nil(), err
			}
		}
		return vm.TableValue(t), nil
	case map[string]interface{}:
		t := vm.NewTable(0, len(v))
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			ev, err := fromPlain(v[k], depth+1)
			if err != nil {
				return vm.Nil(), err
			}
			t.SetString(k, ev)
		}
		return vm.TableValue(t), nil
	case map[interface{}]interface{}:
		type pair struct {
			k vm.Value
			v interface{}
		}
		pairs := make([]pair, 0, len(v))
		for k, val := range v {
			kv, err := fromPlain(k, depth+1)
			if err != nil {
				return vm.Nil(), err
			}
			if kv.Kind == vm.KindTable || kv.Kind == vm.KindNil {
				return vm.Nil(), &NotPrimeError{Reason: fmt.Sprintf("unsupported map key %v", k)}
			}
			pairs = append(pairs, pair{kv, val})
		}
		sort.Slice(pairs, func(i, j int) bool { return keyLess(pairs[i].k, pairs[j].k) })
		t := vm.NewTable(0, len(v))
		for _, p := range pairs {
			ev, err := fromPlain(p.v, depth+1)
			if err != nil {
				return vm.Nil(), err
			}
			if err := t.Set(p.k, ev); err != nil {
				return vm.Nil(), err
			}
		}
		return vm.TableValue(t), nil
	}
	return vm.Nil(), &NotPrimeError{Reason: fmt.Sprintf("unsupported data type %T", x)}
}

// keyLess orders numbers before other keys.
func keyLess(a, b vm.Value) bool {
	an, bn := a.Kind == vm.KindNumber, b.Kind == vm.KindNumber
	switch {
	case an && bn:
		return a.Num < b.Num
	case an != bn:
		return an
	}
	return vm.RawString(a) < vm.RawString(b)
}
