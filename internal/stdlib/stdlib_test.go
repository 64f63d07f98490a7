package stdlib_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	_ "github.com/xirelogy/go-lunar/internal/builtins"
	"github.com/xirelogy/go-lunar/internal/compiler"
	"github.com/xirelogy/go-lunar/internal/parser"
	"github.com/xirelogy/go-lunar/internal/stdlib"
	"github.com/xirelogy/go-lunar/internal/store"
	"github.com/xirelogy/go-lunar/internal/vm"
)

func newVM(t *testing.T, opts stdlib.Options) *vm.VM {
	t.Helper()
	machine := vm.New()
	if err := stdlib.Open(machine, opts); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return machine
}

func runOn(t *testing.T, machine *vm.VM, src string) []vm.Value {
	t.Helper()
	chunk, err := parser.Parse(src, "test")
	if err != nil {
		t.Fatalf("parser error: %v", err)
	}
	proto, err := compiler.Compile(chunk)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	res, err := machine.Run(context.Background(), vm.Load(proto), nil)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	return res
}

func run(t *testing.T, src string) []vm.Value {
	t.Helper()
	return runOn(t, newVM(t, stdlib.Options{}), src)
}

func expect(t *testing.T, got []vm.Value, want ...interface{}) {
	t.Helper()
	if len(got) < len(want) {
		t.Fatalf("expected %d results, got %v", len(want), got)
	}
	for i, w := range want {
		g := got[i]
		switch w := w.(type) {
		case nil:
			if !g.IsNil() {
				t.Fatalf("result %d: expected nil, got %v", i, g)
			}
		case bool:
			if g.Kind != vm.KindBool || g.B != w {
				t.Fatalf("result %d: expected %v, got %v", i, w, g)
			}
		case float64:
			if g.Kind != vm.KindNumber || g.Num != w {
				t.Fatalf("result %d: expected %v, got %v", i, w, g)
			}
		case string:
			if g.Kind != vm.KindString || g.Str != w {
				t.Fatalf("result %d: expected %q, got %v", i, w, g)
			}
		}
	}
}

func TestPrint(t *testing.T) {
	var out bytes.Buffer
	machine := newVM(t, stdlib.Options{})
	machine.SetStdout(&out)
	runOn(t, machine, `print("a", 1, nil, true, setmetatable({}, {__tostring = function() return "obj" end}))`)
	if out.String() != "a\t1\tnil\ttrue\tobj\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestBaseFunctions(t *testing.T) {
	tests := []struct {
		src  string
		want []interface{}
	}{
		{`return tonumber("42"), tonumber("0x10"), tonumber("10", 2), tonumber("z", 36), tonumber("abc")`,
			[]interface{}{42.0, 16.0, 2.0, 35.0, nil}},
		{`return tostring(12), tostring(nil), tostring(1.5)`, []interface{}{"12", "nil", "1.5"}},
		{`local s = 0 for k, v in pairs({10, 20, x = 30}) do s = s + v end return s`, []interface{}{60.0}},
		{`local s = "" for i, v in ipairs({"a", "b", nil, "d"}) do s = s .. i .. v end return s`, []interface{}{"1a2b"}},
		{`local t = {5} local k, v = next(t) return k, v, next(t, k)`, []interface{}{1.0, 5.0, nil}},
		{`return unpack({1, 2, 3})`, []interface{}{1.0, 2.0, 3.0}},
		{`return pcall(assert, false, "custom")`, []interface{}{false, "custom"}},
		{`return assert(1, "unused")`, []interface{}{1.0, "unused"}},
		{`return xpcall(function() error("boom", 0) end, function(m) return "handled: " .. m end)`,
			[]interface{}{false, "handled: boom"}},
		{`return xpcall(function(a, b) return a + b end, print, 2, 3)`, []interface{}{true, 5.0}},
		{`return load("return 1 + 1")()`, []interface{}{2.0}},
		{`local f, err = load("return +") return f, err ~= nil`, []interface{}{nil, true}},
		{`return serialize({1, 2})`, []interface{}{"{\n\t1,\n\t2,\n}"}},
	}
	for _, tt := range tests {
		expect(t, run(t, tt.src), tt.want...)
	}
}

func TestAssertDefaultMessage(t *testing.T) {
	res := run(t, `return pcall(assert, nil)`)
	if res[0].B || !strings.Contains(res[1].Str, "assertion failed!") {
		t.Fatalf("unexpected %v", res)
	}
}

func TestIpairsHonorsIndex(t *testing.T) {
	res := run(t, `
local proxy = setmetatable({}, {__index = function(t, i) if i <= 3 then return i * 10 end end})
local s = 0
for _, v in ipairs(proxy) do s = s + v end
return s`)
	expect(t, res, 60.0)
}

func TestStringLibrary(t *testing.T) {
	tests := []struct {
		src  string
		want []interface{}
	}{
		{`return ("hello"):upper(), string.lower("ABC"), #"abc", ("abc"):len()`, []interface{}{"HELLO", "abc", 3.0, 3.0}},
		{`local s = "hello" return s:sub(2, -2), s:sub(-3), s:sub(10), s:sub(0)`, []interface{}{"ell", "llo", "", "hello"}},
		{`return string.rep("ab", 3, ","), string.rep("x", 0), ("abc"):reverse()`, []interface{}{"ab,ab,ab", "", "cba"}},
		{`local a, b = string.byte("ABC", 1, 2) return a, b, string.char(72, 105)`, []interface{}{65.0, 66.0, "Hi"}},
		{`local i, j = string.find("hello world", "o w") return i, j, string.find("a.b", ".", 1, true), string.find("abc", "z")`,
			[]interface{}{5.0, 7.0, 2.0, 2.0, nil}},
		{`return string.format("%5.2f|%d|%s|%x|%%|%q", 3.14159, 42, "hi", 255, "a\nb")`,
			[]interface{}{" 3.14|42|hi|ff|%|\"a\\nb\""}},
		{`return pcall(string.format, "%d", 1.5)`, []interface{}{false}},
	}
	for _, tt := range tests {
		expect(t, run(t, tt.src), tt.want...)
	}
}

func TestTableLibrary(t *testing.T) {
	tests := []struct {
		src  string
		want []interface{}
	}{
		{`local t = {1, 3} table.insert(t, 4) table.insert(t, 2, 2) return table.concat(t, ",")`, []interface{}{"1,2,3,4"}},
		{`local t = {1, 2, 3} local r = table.remove(t) local f = table.remove(t, 1) return r, f, #t, t[1]`,
			[]interface{}{3.0, 1.0, 1.0, 2.0}},
		{`local t = {5, 1, 4, 2} table.sort(t) return table.concat(t, " ")`, []interface{}{"1 2 4 5"}},
		{`local t = {"b", "c", "a"} table.sort(t, function(a, b) return a > b end) return table.concat(t)`, []interface{}{"cba"}},
		{`local p = table.pack(1, nil, 3) return p.n, p[3]`, []interface{}{3.0, 3.0}},
		{`return table.unpack({1, 2, 3}, 2)`, []interface{}{2.0, 3.0}},
		{`return pcall(table.sort, {1, "x"})`, []interface{}{false}},
		{`return pcall(table.concat, {1, {}})`, []interface{}{false}},
	}
	for _, tt := range tests {
		expect(t, run(t, tt.src), tt.want...)
	}
}

func TestIntegerArgumentBounds(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []interface{}
	}{
		{"rep huge count", `return pcall(string.rep, "abcdefghij", 1e18)`, []interface{}{false}},
		{"rep infinite count", `return pcall(string.rep, "ab", 1/0, ",")`, []interface{}{false}},
		{"rep negative count", `return pcall(string.rep, "x", -1e300)`, []interface{}{true, ""}},
		{"rep empty unit", `return pcall(string.rep, "", 1e300)`, []interface{}{true, ""}},
		{"rep nan count", `return pcall(string.rep, "x", 0/0)`, []interface{}{false}},
		{"unpack huge span", `return pcall(table.unpack, {}, -1e19, 1e18)`, []interface{}{false}},
		{"unpack infinite start", `return select("#", table.unpack({1, 2}, 1/0))`, []interface{}{0.0}},
		{"unpack nan bound", `return pcall(table.unpack, {1}, 1, 0/0)`, []interface{}{false}},
		{"sub huge range", `return string.sub("hello", -1e300, 1e300)`, []interface{}{"hello"}},
		{"sub infinite end", `return string.sub("hello", 2, 1/0)`, []interface{}{"ello"}},
		{"byte huge range", `return string.byte("abc", -1e300, 1e300)`, []interface{}{97.0, 98.0, 99.0}},
		{"char nan", `return pcall(string.char, 0/0)`, []interface{}{false}},
		{"insert huge position", `return pcall(table.insert, {}, 1e300, 1)`, []interface{}{false}},
		{"select huge negative", `return pcall(select, -1e300, 1, 2)`, []interface{}{false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expect(t, run(t, tt.src), tt.want...)
		})
	}
}

func TestMathLibrary(t *testing.T) {
	res := run(t, `
local ip, fp = math.modf(3.5)
return math.floor(3.7), math.ceil(3.2), math.max(1, 5, 3), math.min(4, -2), ip, fp,
  math.fmod(7, 3), math.log(8, 2), math.huge > 1e308, math.abs(-2), math.pow(2, 10), math.sqrt(16)`)
	expect(t, res, 3.0, 4.0, 5.0, -2.0, 3.0, 0.5, 1.0, 3.0, true, 2.0, 1024.0, 4.0)
}

func TestCoroutineLibrary(t *testing.T) {
	res := run(t, `
local gen = coroutine.wrap(function(n)
  for i = 1, n do coroutine.yield(i) end
  return "done"
end)
local a, b, c, d = gen(3), gen(), gen(), gen()
local co = coroutine.create(function() return coroutine.isyieldable(), coroutine.running() ~= nil end)
local ok, y, r = coroutine.resume(co)
local ok2, msg = coroutine.resume(co)
return a, b, c, d, y, r, coroutine.status(co), ok2, msg, coroutine.isyieldable(), coroutine.running()`)
	expect(t, res, 1.0, 2.0, 3.0, "done", true, true, "dead", false, "cannot resume dead coroutine", false, nil)
}

func TestCoroutineFaultIsReturned(t *testing.T) {
	res := run(t, `
local co = coroutine.create(function() error({code = 7}) end)
local ok, err = coroutine.resume(co)
return ok, err.code`)
	expect(t, res, false, 7.0)
}

func TestJSONAndYAMLModules(t *testing.T) {
	res := run(t, `
local s = json.encode({a = {1, 2}, b = "x"})
local back = json.decode(s)
local y = yaml.decode(yaml.encode({name = "n", list = {true, false}}))
return s, back.a[2], y.name, y.list[2], pcall(json.encode, {f = print})`)
	expect(t, res, `{"a":[1,2],"b":"x"}`, 2.0, "n", false, false)
}

func TestSharedLibraryAcrossVMs(t *testing.T) {
	s := store.New(nil)
	first := newVM(t, stdlib.Options{Store: s})
	second := newVM(t, stdlib.Options{Store: s})
	runOn(t, first, `shared.set("cfg", {mode = "fast"}) shared.incr("hits") shared.incr("hits", 2)`)
	res := runOn(t, second, `
local cfg = shared.get("cfg")
cfg.mode = "changed"
local keys = shared.keys()
shared.delete("cfg")
return shared.get("hits"), shared.get("cfg"), #keys, keys[1]`)
	expect(t, res, 3.0, nil, 2.0, "cfg")
}

func TestOpenSelection(t *testing.T) {
	machine := vm.New()
	if err := stdlib.Open(machine, stdlib.Options{}, "math"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if machine.GetGlobal("math").IsNil() || !machine.GetGlobal("string").IsNil() {
		t.Fatalf("only math should be installed")
	}
	if err := stdlib.Open(machine, stdlib.Options{}, "shared"); err == nil {
		t.Fatalf("shared without a store must fail")
	}
	if err := stdlib.Open(machine, stdlib.Options{}, "nope"); err == nil {
		t.Fatalf("unknown library must fail")
	}
	if !newVM(t, stdlib.Options{}).GetGlobal("shared").IsNil() {
		t.Fatalf("shared must be skipped without a store")
	}
}
