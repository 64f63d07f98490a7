package interop_test

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	_ "github.com/xirelogy/go-lunar/internal/builtins"
	"github.com/xirelogy/go-lunar/internal/compiler"
	"github.com/xirelogy/go-lunar/internal/interop"
	"github.com/xirelogy/go-lunar/internal/parser"
	"github.com/xirelogy/go-lunar/internal/vm"
)

type Account struct {
	Owner   string
	Balance float64
	Tags    []string
	Grid    [2][2]int
	Secret  string `lunar:"-"`
	name    string
}

func (a *Account) Deposit(n float64) float64 {
	a.Balance += n
	return a.Balance
}

func (a *Account) Name() string     { return a.name }
func (a *Account) SetName(n string) { a.name = n }

func (a *Account) Withdraw(n float64) error {
	if n > a.Balance {
		return errors.New("insufficient funds")
	}
	a.Balance -= n
	return nil
}

func runScript(t *testing.T, machine *vm.VM, src string) ([]vm.Value, error) {
	t.Helper()
	chunk, err := parser.Parse(src, "test")
	if err != nil {
		t.Fatalf("parser error: %v", err)
	}
	proto, err := compiler.Compile(chunk)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return machine.Run(context.Background(), vm.Load(proto), nil)
}

func TestDescribeIsIdempotent(t *testing.T) {
	type sample struct{ A int }
	typ := reflect.TypeOf(&sample{})
	d1 := interop.Describe(typ, interop.Policy{ReadOnly: true})
	d2 := interop.Describe(typ, interop.Policy{})
	if d1 != d2 {
		t.Fatalf("expected cached descriptor")
	}
	if !d2.Policy().ReadOnly {
		t.Fatalf("first policy should win")
	}
	if got, ok := interop.Lookup(typ); !ok || got != d1 {
		t.Fatalf("lookup did not return cached descriptor")
	}
}

func TestDescriptorMembers(t *testing.T) {
	d := interop.Describe(reflect.TypeOf(&Account{}), interop.Policy{})
	tests := []struct {
		name string
		kind interop.MemberKind
	}{
		{"Owner", interop.MemberField},
		{"owner", interop.MemberField},
		{"Deposit", interop.MemberMethod},
		{"deposit", interop.MemberMethod},
		{"Name", interop.MemberProperty},
		{"SetName", interop.MemberMethod},
	}
	for _, tt := range tests {
		m, ok := d.Member(tt.name)
		if !ok {
			t.Fatalf("member %s missing", tt.name)
		}
		if m.Kind != tt.kind {
			t.Fatalf("member %s: expected %s, got %s", tt.name, tt.kind, m.Kind)
		}
	}
	if _, ok := d.Member("Secret"); ok {
		t.Fatalf("tagged field should be hidden")
	}
	if m, _ := d.Member("Name"); m.Access&interop.AccessWrite == 0 {
		t.Fatalf("property with setter should be writable")
	}
}

func TestScriptAccessesHostObject(t *testing.T) {
	machine := vm.New()
	acct := &Account{Tags: []string{"gold", "vip"}}
	v, err := interop.ToValue(acct)
	if err != nil {
		t.Fatalf("ToValue: %v", err)
	}
	machine.SetGlobal("acct", v)
	res, err := runScript(t, machine, `
acct.Owner = "bob"
acct.Name = "Bobby"
acct:Deposit(5)
acct.deposit(2.5)
acct.Grid[1, 0] = 7
acct.Tags[1] = "platinum"
return acct.Balance, acct.Tags[0], #acct.Tags, acct.Name, acct:Withdraw(1)`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if res[0].Num != 7.5 || res[1].Str != "gold" || res[2].Num != 2 || res[3].Str != "Bobby" {
		t.Fatalf("unexpected results %v", res)
	}
	if acct.Owner != "bob" || acct.Grid[1][0] != 7 || acct.Tags[1] != "platinum" || acct.Balance != 6.5 {
		t.Fatalf("host object not updated: %+v", acct)
	}
	_, err = runScript(t, machine, `acct:Withdraw(100)`)
	if err == nil || !strings.Contains(err.Error(), "insufficient funds") {
		t.Fatalf("expected host error, got %v", err)
	}
}

func TestHostIndexBoundsFirst(t *testing.T) {
	machine := vm.New()
	acct := &Account{Tags: []string{"a"}}
	v, _ := interop.ToValue(acct)
	machine.SetGlobal("acct", v)
	tests := []string{
		`return acct.Tags[1]`,
		`return acct.Tags[-1]`,
		`return acct.Grid[2, 0]`,
		`acct.Grid[0, 5] = 1`,
	}
	for _, src := range tests {
		_, err := runScript(t, machine, src)
		var ie *vm.IndexError
		if !errors.As(err, &ie) {
			t.Fatalf("%s: expected IndexError, got %v", src, err)
		}
	}
	if acct.Grid != [2][2]int{} {
		t.Fatalf("failed writes must not touch the host array")
	}
}

func TestOverloadResolution(t *testing.T) {
	fn, err := interop.NewFunction("f",
		func(n int) string { return "int" },
		func(s string) string { return "string" },
	)
	if err != nil {
		t.Fatalf("NewFunction: %v", err)
	}
	machine := vm.New()
	res, err := machine.Call(fn, vm.Number(3))
	if err != nil || res[0].Str != "int" {
		t.Fatalf("number should select f(int), got %v %v", res, err)
	}
	res, err = machine.Call(fn, vm.String("x"))
	if err != nil || res[0].Str != "string" {
		t.Fatalf("string should select f(string), got %v %v", res, err)
	}
	_, err = machine.Call(fn, vm.Bool(true))
	var nm *vm.NoMatchingOverloadError
	if !errors.As(err, &nm) {
		t.Fatalf("expected NoMatchingOverloadError, got %v", err)
	}

	widen, _ := interop.NewFunction("g",
		func(n int32) int32 { return n },
		func(n int64) int64 { return n },
	)
	_, err = machine.Call(widen, vm.Number(1))
	var amb *vm.AmbiguousOverloadError
	if !errors.As(err, &amb) {
		t.Fatalf("expected AmbiguousOverloadError, got %v", err)
	}
	if len(amb.Candidates) != 2 {
		t.Fatalf("expected two candidates, got %v", amb.Candidates)
	}
}

func TestNumberCoercesToString(t *testing.T) {
	pick, err := interop.NewFunction("pick",
		func(n int) string { return "int" },
		func(s string) string { return "string:" + s },
	)
	if err != nil {
		t.Fatalf("NewFunction: %v", err)
	}
	machine := vm.New()
	res, err := machine.Call(pick, vm.Number(1.5))
	if err != nil || res[0].Str != "string:1.5" {
		t.Fatalf("fractional number should fall back to pick(string), got %v %v", res, err)
	}

	acct := &Account{}
	v, _ := interop.ToValue(acct)
	machine.SetGlobal("acct", v)
	if _, err := runScript(t, machine, `acct.Owner = 5`); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if acct.Owner != "5" {
		t.Fatalf("expected number formatted into string field, got %q", acct.Owner)
	}
}

func TestInjectedParameters(t *testing.T) {
	fn, _ := interop.NewFunction("h", func(ctx context.Context, rt *vm.VM, n int) (int, error) {
		if ctx == nil || rt == nil {
			return 0, errors.New("missing injection")
		}
		return n * 2, nil
	})
	res, err := vm.New().Call(fn, vm.Number(21))
	if err != nil || res[0].Num != 42 {
		t.Fatalf("unexpected %v %v", res, err)
	}
}

func TestTrivialRoundTrip(t *testing.T) {
	samples := []interface{}{true, false, 42, int8(-7), uint16(65535), float32(1.5), 3.25, "héllo", ""}
	for _, x := range samples {
		v, err := interop.ToValue(x)
		if err != nil {
			t.Fatalf("ToValue(%v): %v", x, err)
		}
		hv, err := interop.ToHost(nil, v, reflect.TypeOf(x))
		if err != nil {
			t.Fatalf("ToHost(%v): %v", x, err)
		}
		if hv.Interface() != x {
			t.Fatalf("round trip of %#v gave %#v", x, hv.Interface())
		}
	}
}

func TestLargeIntegerRoundTrip(t *testing.T) {
	tests := []struct {
		x     interface{}
		exact bool
	}{
		{int64(1 << 53), true},
		{int64(-(1 << 53)), true},
		{uint64(1 << 63), true},
		{int64(math.MinInt64), true},
		{int64(1<<53 + 1), false},
		{int64(-(1 << 53) - 3), false},
		{int64(math.MaxInt64), false},
		{uint64(1<<63 + 1), false},
		{uint64(math.MaxUint64), false},
	}
	for _, tt := range tests {
		v, err := interop.ToValue(tt.x)
		if !tt.exact {
			var ce *vm.ConversionError
			if !errors.As(err, &ce) {
				t.Fatalf("ToValue(%v): expected ConversionError, got %v", tt.x, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ToValue(%v): %v", tt.x, err)
		}
		hv, err := interop.ToHost(nil, v, reflect.TypeOf(tt.x))
		if err != nil {
			t.Fatalf("ToHost(%v): %v", tt.x, err)
		}
		if hv.Interface() != tt.x {
			t.Fatalf("round trip of %#v gave %#v", tt.x, hv.Interface())
		}
	}
}

func TestConversionErrors(t *testing.T) {
	tests := []struct {
		v   vm.Value
		typ reflect.Type
	}{
		{vm.String("abc"), reflect.TypeOf(0)},
		{vm.Number(1.5), reflect.TypeOf(0)},
		{vm.Number(300), reflect.TypeOf(int8(0))},
		{vm.Number(-1), reflect.TypeOf(uint(0))},
		{vm.Bool(true), reflect.TypeOf("")},
		{vm.NewNative("f", nil), reflect.TypeOf(func() {})},
	}
	for _, tt := range tests {
		_, err := interop.ToHost(nil, tt.v, tt.typ)
		var ce *vm.ConversionError
		if !errors.As(err, &ce) {
			t.Fatalf("%v -> %s: expected ConversionError, got %v", tt.v, tt.typ, err)
		}
	}
}

func TestTableToStruct(t *testing.T) {
	tbl := vm.NewTable(0, 4)
	tbl.SetString("Owner", vm.String("ann"))
	tbl.SetString("balance", vm.Number(12))
	tbl.SetString("Tags", vm.TableValue(vm.NewArray(vm.String("x"), vm.String("y"))))
	hv, err := interop.ToHost(nil, vm.TableValue(tbl), reflect.TypeOf(&Account{}))
	if err != nil {
		t.Fatalf("ToHost: %v", err)
	}
	acct := hv.Interface().(*Account)
	if acct.Owner != "ann" || acct.Balance != 12 || len(acct.Tags) != 2 || acct.Tags[1] != "y" {
		t.Fatalf("unexpected %+v", acct)
	}
}

func TestScriptFunctionAsCallback(t *testing.T) {
	machine := vm.New()
	res, err := runScript(t, machine, `return function(x) return x * 2 end`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	hv, err := interop.ToHost(machine, res[0], reflect.TypeOf(func(int) int { return 0 }))
	if err != nil {
		t.Fatalf("ToHost: %v", err)
	}
	double := hv.Interface().(func(int) int)
	if got := double(21); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestEnumerators(t *testing.T) {
	machine := vm.New()
	nums, _ := interop.ToValue([]int{1, 2, 3})
	ages, _ := interop.ToValue(map[string]int{"b": 2, "a": 1, "c": 3})
	machine.SetGlobal("nums", nums)
	machine.SetGlobal("ages", ages)
	res, err := runScript(t, machine, `
local s = 0
for i, v in nums do s = s + i * v end
local keys = ""
for k, v in ages do keys = keys .. k .. v end
return s, keys`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if res[0].Num != 8 || res[1].Str != "a1b2c3" {
		t.Fatalf("unexpected %v", res)
	}

	e, err := interop.NewEnumerator([]string{"x", "y"})
	if err != nil {
		t.Fatalf("NewEnumerator: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, _, ok, _ := e.Next(); !ok {
			t.Fatalf("expected element %d", i)
		}
	}
	if _, _, ok, _ := e.Next(); ok {
		t.Fatalf("expected exhaustion")
	}
	if _, _, ok, _ := e.Next(); ok {
		t.Fatalf("exhausted enumerator must stay exhausted")
	}
	e.Reset()
	k, v, ok, _ := e.Next()
	if !ok || k.Num != 0 || v.Str != "x" {
		t.Fatalf("reset should restart, got %v %v %v", k, v, ok)
	}
}

type countdown int

func (c countdown) Enumerate() func() (interface{}, interface{}, bool) {
	n := int(c)
	return func() (interface{}, interface{}, bool) {
		if n == 0 {
			return nil, nil, false
		}
		n--
		return n, "tick", true
	}
}

func TestEnumerableImplementation(t *testing.T) {
	machine := vm.New()
	machine.SetGlobal("cd", vm.UserDataValue(vm.NewUserData(countdown(3), interop.Describe(reflect.TypeOf(countdown(0)), interop.Policy{}))))
	res, err := runScript(t, machine, `
local out = ""
for n in cd do out = out .. n end
return out`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if res[0].Str != "210" {
		t.Fatalf("unexpected %v", res[0])
	}
}

func TestToTableCopiesHostData(t *testing.T) {
	v, err := interop.ToTable(map[string]interface{}{
		"name": "x",
		"list": []int{1, 2},
		"acct": Account{Owner: "o"},
	})
	if err != nil {
		t.Fatalf("ToTable: %v", err)
	}
	tbl := v.Tab
	if tbl.GetString("name").Str != "x" || tbl.GetString("list").Tab.Len() != 2 {
		t.Fatalf("unexpected table contents")
	}
	if tbl.GetString("acct").Tab.GetString("Owner").Str != "o" {
		t.Fatalf("struct should copy into a table")
	}
}
