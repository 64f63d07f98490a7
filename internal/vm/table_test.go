package vm_test

import (
	"math"
	"testing"

	"github.com/xirelogy/go-lunar/internal/vm"
)

func num(n float64) vm.Value { return vm.Number(n) }

func mustSet(t *testing.T, tbl *vm.Table, k, v vm.Value) {
	t.Helper()
	if err := tbl.Set(k, v); err != nil {
		t.Fatalf("Set(%v): %v", k, err)
	}
}

func expectParts(t *testing.T, tbl *vm.Table, arr, hash int) {
	t.Helper()
	if tbl.Len() != arr || tbl.HashLen() != hash {
		t.Fatalf("expected array %d hash %d, got array %d hash %d", arr, hash, tbl.Len(), tbl.HashLen())
	}
}

func tableKey(v vm.Value) string {
	return v.TypeName() + ":" + vm.RawString(v)
}

func TestTableMigratesIntoArray(t *testing.T) {
	tbl := vm.NewTable(0, 0)
	mustSet(t, tbl, num(2), vm.String("b"))
	mustSet(t, tbl, num(4), vm.String("d"))
	expectParts(t, tbl, 0, 2)

	mustSet(t, tbl, num(1), vm.String("a"))
	expectParts(t, tbl, 2, 1)
	mustSet(t, tbl, num(3), vm.String("c"))
	expectParts(t, tbl, 4, 0)

	for i, want := range []string{"a", "b", "c", "d"} {
		if got := tbl.Get(num(float64(i + 1))); got.Str != want {
			t.Fatalf("t[%d]: expected %q, got %v", i+1, want, got)
		}
	}
}

func TestTableDelete(t *testing.T) {
	tbl := vm.NewArray(vm.String("a"), vm.String("b"), vm.String("c"))
	mustSet(t, tbl, vm.String("x"), vm.Bool(true))
	mustSet(t, tbl, num(2.5), vm.Bool(true))
	expectParts(t, tbl, 3, 2)

	mustSet(t, tbl, num(2), vm.Nil())
	if !tbl.Get(num(2)).IsNil() {
		t.Fatalf("array key survived delete")
	}
	expectParts(t, tbl, 3, 2)

	// removing the tail also drops the hole before it
	mustSet(t, tbl, num(3), vm.Nil())
	expectParts(t, tbl, 1, 2)
	if !tbl.Get(num(3)).IsNil() || !tbl.Get(num(2)).IsNil() {
		t.Fatalf("tail keys survived trim")
	}

	mustSet(t, tbl, vm.String("x"), vm.Nil())
	mustSet(t, tbl, num(2.5), vm.Nil())
	expectParts(t, tbl, 1, 0)
	if !tbl.Get(vm.String("x")).IsNil() || !tbl.Get(num(2.5)).IsNil() {
		t.Fatalf("hash keys survived delete")
	}

	// a key re-added after deletion lives in exactly one part
	mustSet(t, tbl, num(2), vm.String("B"))
	expectParts(t, tbl, 2, 0)
}

func TestTableDeleteMigratedKey(t *testing.T) {
	tbl := vm.NewTable(0, 0)
	mustSet(t, tbl, num(3), vm.String("c"))
	mustSet(t, tbl, num(1), vm.String("a"))
	mustSet(t, tbl, num(2), vm.String("b"))
	expectParts(t, tbl, 3, 0)

	mustSet(t, tbl, num(3), vm.Nil())
	expectParts(t, tbl, 2, 0)
	if !tbl.Get(num(3)).IsNil() {
		t.Fatalf("migrated key survived delete")
	}
	n := 0
	tbl.ForEach(func(k, v vm.Value) bool {
		n++
		return true
	})
	if n != 2 {
		t.Fatalf("expected 2 live keys, got %d", n)
	}
}

func TestTableNumericKeyIdentity(t *testing.T) {
	tbl := vm.NewTable(0, 0)
	mustSet(t, tbl, num(math.Copysign(0, -1)), vm.String("zero"))
	if got := tbl.Get(num(0)); got.Str != "zero" {
		t.Fatalf("-0 and 0 differ: %v", got)
	}
	mustSet(t, tbl, num(0), vm.String("again"))
	expectParts(t, tbl, 0, 1)

	mustSet(t, tbl, num(1.0), vm.String("one"))
	if got := tbl.Get(num(1)); got.Str != "one" {
		t.Fatalf("1.0 and 1 differ: %v", got)
	}
	if !tbl.Get(vm.String("1")).IsNil() {
		t.Fatalf("string key aliases number key")
	}
	expectParts(t, tbl, 1, 1)
}

func TestTableNextVisitsEachKeyOnce(t *testing.T) {
	tbl := vm.NewArray(num(10), num(20), num(30))
	mustSet(t, tbl, num(5), vm.Bool(true))
	mustSet(t, tbl, vm.String("a"), vm.Bool(true))
	mustSet(t, tbl, vm.String("b"), vm.Bool(true))
	mustSet(t, tbl, num(-1), vm.Bool(true))
	mustSet(t, tbl, vm.String("a"), vm.Nil())

	want := map[string]bool{
		"number:1": true, "number:2": true, "number:3": true,
		"number:5": true, "string:b": true, "number:-1": true,
	}
	seen := map[string]int{}
	k := vm.Nil()
	for {
		nk, _, ok, err := tbl.Next(k)
		if err != nil {
			t.Fatalf("Next(%v): %v", k, err)
		}
		if !ok {
			break
		}
		seen[tableKey(nk)]++
		k = nk
	}
	if len(seen) != len(want) {
		t.Fatalf("expected keys %v, got %v", want, seen)
	}
	for key, n := range seen {
		if !want[key] || n != 1 {
			t.Fatalf("key %s seen %d times", key, n)
		}
	}
}

func TestTableNextWhileClearing(t *testing.T) {
	tbl := vm.NewArray(num(1), num(2), num(3))
	mustSet(t, tbl, vm.String("x"), vm.Bool(true))
	mustSet(t, tbl, vm.String("y"), vm.Bool(true))

	visited := 0
	k := vm.Nil()
	for {
		nk, _, ok, err := tbl.Next(k)
		if err != nil {
			t.Fatalf("Next(%v): %v", k, err)
		}
		if !ok {
			break
		}
		visited++
		mustSet(t, tbl, nk, vm.Nil())
		k = nk
	}
	if visited != 5 {
		t.Fatalf("expected 5 keys, visited %d", visited)
	}
	expectParts(t, tbl, 0, 0)
	if _, _, ok, _ := tbl.Next(vm.Nil()); ok {
		t.Fatalf("cleared table still has keys")
	}
}
