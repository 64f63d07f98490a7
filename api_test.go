package lunar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

type testCustomMarshaler struct{ V string }
type testCustomUnmarshaler struct{ V string }

var _ Marshaler = (*testCustomMarshaler)(nil)
var _ Unmarshaler = (*testCustomUnmarshaler)(nil)

func (c testCustomMarshaler) MarshalLunar() (Value, error) {
	return ToTable(map[string]any{"v": c.V})
}

func (c *testCustomUnmarshaler) UnmarshalLunar(v Value) error {
	val, ok := v.Field("v").String()
	if !ok {
		return fmt.Errorf("missing v")
	}
	c.V = val
	return nil
}

func mustCompile(t *testing.T, src string) *Script {
	t.Helper()
	script, err := Compile(src, "test")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return script
}

func number(t *testing.T, v Value) float64 {
	t.Helper()
	n, ok := v.Number()
	if !ok {
		t.Fatalf("expected number, got %s", v.TypeName())
	}
	return n
}

func TestAPIRunScript(t *testing.T) {
	vm := NewVM()
	script := mustCompile(t, `local a, b = ... return a + b, a .. b`)
	res, err := vm.Run(context.Background(), script, 2, 3)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if number(t, res[0]) != 5 {
		t.Fatalf("expected 5, got %v", res[0].Text())
	}
	if s, _ := res[1].String(); s != "23" {
		t.Fatalf("expected \"23\", got %q", s)
	}
	if script.ID() == "" || script.Name() != "test" {
		t.Fatalf("unexpected script identity %q %q", script.ID(), script.Name())
	}
}

func TestAPIScriptSharedAcrossVMs(t *testing.T) {
	script := mustCompile(t, `local n = ... local s = 0 for i = 1, n do s = s + i end return s`)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			res, err := NewVM().Run(context.Background(), script, n)
			if err != nil {
				errs <- err
				return
			}
			if got, _ := res[0].Number(); got != float64(n*(n+1)/2) {
				errs <- fmt.Errorf("n=%d: got %v", n, got)
			}
		}(100 + i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestAPIHostFunctionBinding(t *testing.T) {
	vm := NewVM()
	err := vm.SetGlobalFunction("inc", func(x float64) float64 { return x + 1 })
	if err != nil {
		t.Fatalf("set global: %v", err)
	}
	err = vm.SetGlobalFunction("describe",
		func(n int) string { return "int" },
		func(s string) string { return "string:" + s },
	)
	if err != nil {
		t.Fatalf("set overloads: %v", err)
	}
	res, err := vm.DoString(context.Background(), `return inc(4), describe(1), describe("x")`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if number(t, res[0]) != 5 {
		t.Fatalf("expected 5, got %v", res[0].Text())
	}
	if s, _ := res[1].String(); s != "int" {
		t.Fatalf("expected int overload, got %q", s)
	}
	if s, _ := res[2].String(); s != "string:x" {
		t.Fatalf("expected string overload, got %q", s)
	}
	if err := vm.SetGlobalFunction("bad", 42); err == nil {
		t.Fatalf("expected error for non-function")
	}
}

func TestAPIHasFunction(t *testing.T) {
	vm := NewVM()
	if vm.HasFunction("missing") {
		t.Fatalf("expected missing to be false")
	}
	if _, err := vm.DoString(context.Background(), `function present() end`); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !vm.HasFunction("present") {
		t.Fatalf("expected present to be true")
	}
}

func TestAPICallAsyncAndFuture(t *testing.T) {
	vm := NewVM()
	if _, err := vm.DoString(context.Background(), `function add(a, b) return a + b end`); err != nil {
		t.Fatalf("run error: %v", err)
	}
	res, err := vm.CallAsync(context.Background(), "add", 2, 3).Await(context.Background())
	if err != nil {
		t.Fatalf("call error: %v", err)
	}
	if number(t, res[0]) != 5 {
		t.Fatalf("expected 5, got %v", res[0].Text())
	}

	done := make(chan float64, 1)
	vm.CallAsync(context.Background(), "add", 10, 1).Then(func(vals []Value, err error) {
		if err != nil {
			done <- -1
			return
		}
		n, _ := vals[0].Number()
		done <- n
	})
	select {
	case n := <-done:
		if n != 11 {
			t.Fatalf("expected 11, got %v", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("callback never ran")
	}

	if _, err := vm.CallAsync(context.Background(), "nope").Await(context.Background()); err == nil {
		t.Fatalf("expected error for undefined function")
	}
}

func TestAPICallFunctionValue(t *testing.T) {
	vm := NewVM()
	res, err := vm.DoString(context.Background(), `
local count = 0
return function(step) count = count + step return count end`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	fn, ok := res[0].AsFunction()
	if !ok {
		t.Fatalf("expected function, got %s", res[0].TypeName())
	}
	for _, want := range []float64{2, 4, 6} {
		out, err := fn.Call(context.Background(), 2)
		if err != nil {
			t.Fatalf("call error: %v", err)
		}
		if number(t, out[0]) != want {
			t.Fatalf("expected %v, got %v", want, out[0].Text())
		}
	}
	if _, err := NewVM().Call(context.Background(), res[0]); err == nil {
		t.Fatalf("expected error calling a function owned by another VM")
	}
}

func TestAPIBusyAndCancellation(t *testing.T) {
	vm := NewVM()
	script := mustCompile(t, `while true do end`)
	ctx, cancel := context.WithCancel(context.Background())
	fut := vm.RunAsync(ctx, script)
	if _, err := vm.Run(context.Background(), script); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if _, err := vm.Duplicate(); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy from Duplicate, got %v", err)
	}
	cancel()
	_, err := fut.Await(context.Background())
	if !errors.Is(err, ErrTerminationRequested) {
		t.Fatalf("expected termination, got %v", err)
	}
	res, err := vm.DoString(context.Background(), `return 1`)
	if err != nil || number(t, res[0]) != 1 {
		t.Fatalf("VM should be reusable after termination: %v", err)
	}
}

func TestAPITerminationNotCatchable(t *testing.T) {
	vm := NewVM(WithTimeout(20 * time.Millisecond))
	_, err := vm.DoString(context.Background(), `
while true do
  pcall(function() while true do end end)
end`)
	if !errors.Is(err, ErrTerminationRequested) {
		t.Fatalf("expected termination, got %v", err)
	}
}

func TestAPIInstructionLimit(t *testing.T) {
	vm := NewVM(WithInstructionLimit(1000))
	_, err := vm.DoString(context.Background(), `local i = 0 while true do i = i + 1 end`)
	if !errors.Is(err, ErrInstructionLimit) {
		t.Fatalf("expected instruction limit, got %v", err)
	}
	vm.SetInstructionLimit(0)
	if _, err := vm.DoString(context.Background(), `for i = 1, 5000 do end`); err != nil {
		t.Fatalf("unexpected error after lifting limit: %v", err)
	}
}

func TestAPIRuntimeErrors(t *testing.T) {
	vm := NewVM()
	_, err := vm.DoString(context.Background(), "local x = 1\nerror(\"boom\")")
	var rte *RuntimeError
	if !errors.As(err, &rte) {
		t.Fatalf("expected RuntimeError, got %T %v", err, err)
	}
	if !strings.Contains(rte.Message, "boom") || rte.Frame.Line != 2 {
		t.Fatalf("unexpected error %q at line %d", rte.Message, rte.Frame.Line)
	}
	if !strings.Contains(rte.Traceback(), "stack traceback:") {
		t.Fatalf("expected traceback, got %q", rte.Traceback())
	}

	_, err = vm.DoString(context.Background(), `error({code = 7})`)
	if !errors.As(err, &rte) || number(t, rte.Value.Field("code")) != 7 {
		t.Fatalf("expected table payload, got %v", err)
	}

	_, err = vm.DoString(context.Background(), `return 1 + {}`)
	var te *TypeError
	if !errors.As(err, &te) {
		t.Fatalf("expected TypeError, got %T %v", err, err)
	}

	_, err = Compile("return +", "broken")
	var se *SyntaxError
	if !errors.As(err, &se) || se.Chunk != "broken" {
		t.Fatalf("expected SyntaxError, got %v", err)
	}
}

func TestAPIValueAccessors(t *testing.T) {
	vm := NewVM()
	res, err := vm.DoString(context.Background(), `return {10, 20, name = "n"}, "hi", true, nil`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	tbl := res[0]
	if tbl.Kind() != ValueTable || tbl.Len() != 2 {
		t.Fatalf("unexpected table %v len %d", tbl.Kind(), tbl.Len())
	}
	arr, _ := tbl.Array()
	if len(arr) != 2 || number(t, arr[1]) != 20 || number(t, tbl.Index(1)) != 10 {
		t.Fatalf("unexpected array part")
	}
	obj, _ := tbl.Object()
	if s, _ := obj["name"].String(); s != "n" {
		t.Fatalf("unexpected object part %v", obj)
	}
	if s, ok := res[1].String(); !ok || s != "hi" {
		t.Fatalf("expected hi")
	}
	if b, ok := res[2].Bool(); !ok || !b {
		t.Fatalf("expected true")
	}
	if !res[3].IsNil() || res[3].Truthy() {
		t.Fatalf("expected nil")
	}
	raw, err := res[1].Raw()
	if err != nil || raw != "hi" {
		t.Fatalf("unexpected raw %v %v", raw, err)
	}
}

func TestAPIMarshalers(t *testing.T) {
	vm := NewVM()
	if err := vm.SetGlobal("obj", testCustomMarshaler{V: "hello"}); err != nil {
		t.Fatalf("set global: %v", err)
	}
	res, err := vm.DoString(context.Background(), `return obj.v .. "!", {v = "back"}`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if s, _ := res[0].String(); s != "hello!" {
		t.Fatalf("expected hello!, got %q", s)
	}
	var out testCustomUnmarshaler
	if err := Unmarshal(res[1], &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.V != "back" {
		t.Fatalf("expected back, got %q", out.V)
	}
}

func TestAPIUnmarshalStruct(t *testing.T) {
	type Settings struct {
		Name    string   `lunar:"name"`
		Retries int      `lunar:"retries"`
		Tags    []string `lunar:"tags"`
	}
	vm := NewVM()
	res, err := vm.DoString(context.Background(), `return {name = "svc", retries = 3, tags = {"a", "b"}}`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	var s Settings
	if err := Unmarshal(res[0], &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := Settings{Name: "svc", Retries: 3, Tags: []string{"a", "b"}}
	if !reflect.DeepEqual(s, want) {
		t.Fatalf("expected %+v, got %+v", want, s)
	}
	if err := Unmarshal(res[0], s); err == nil {
		t.Fatalf("expected error for non-pointer target")
	}
	got, err := FromValue(MustValue(2.5), reflect.TypeOf(0))
	if err == nil {
		t.Fatalf("expected conversion error for 2.5 to int, got %v", got)
	}
	var ce *ConversionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConversionError, got %T", err)
	}
}

type testCounter struct {
	Count int
	Label string
}

func (c *testCounter) Add(n int) int {
	c.Count += n
	return c.Count
}

func TestAPIHostTypes(t *testing.T) {
	desc, err := RegisterHostType(&testCounter{}, AccessPolicy{ReadOnly: true, Hide: []string{"Label"}})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok := desc.Member("Count"); !ok {
		t.Fatalf("expected Count member")
	}
	if _, ok := desc.Member("Label"); ok {
		t.Fatalf("Label should be hidden")
	}
	if _, err := RegisterHostType(nil, AccessPolicy{}); err == nil {
		t.Fatalf("expected error for nil sample")
	}

	counter := &testCounter{}
	vm := NewVM()
	if err := vm.SetGlobal("counter", counter); err != nil {
		t.Fatalf("set global: %v", err)
	}
	res, err := vm.DoString(context.Background(), `counter:Add(2) counter:Add(3) return counter.Count`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if number(t, res[0]) != 5 || counter.Count != 5 {
		t.Fatalf("expected 5, got %v (host %d)", res[0].Text(), counter.Count)
	}
	_, err = vm.DoString(context.Background(), `counter.Count = 1`)
	var ie *IndexError
	if !errors.As(err, &ie) {
		t.Fatalf("expected IndexError for read-only write, got %v", err)
	}
}

func TestAPIEnumerator(t *testing.T) {
	vm := NewVM()
	e, err := NewEnumerator([]string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("enumerator: %v", err)
	}
	if err := vm.SetGlobal("items", e); err != nil {
		t.Fatalf("set global: %v", err)
	}
	res, err := vm.DoString(context.Background(), `local s = "" for i, v in items do s = s .. i .. v end return s`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if s, _ := res[0].String(); s != "0a1b2c" {
		t.Fatalf("expected 0a1b2c, got %q", s)
	}
}

func TestAPIDuplicate(t *testing.T) {
	vm := NewVM()
	if _, err := vm.DoString(context.Background(), `state = {n = 1}`); err != nil {
		t.Fatalf("run error: %v", err)
	}
	dup, err := vm.Duplicate()
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if _, err := dup.DoString(context.Background(), `state.n = 99`); err != nil {
		t.Fatalf("run error: %v", err)
	}
	res, err := vm.DoString(context.Background(), `return state.n`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if number(t, res[0]) != 1 {
		t.Fatalf("duplicate leaked into original: %v", res[0].Text())
	}
}

func TestAPISerialization(t *testing.T) {
	vm := NewVM()
	res, err := vm.DoString(context.Background(), `return {1, 2, name = "x"}, setmetatable({}, {})`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	src, err := Serialize(res[0])
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	back, err := vm.DoString(context.Background(), "return "+src)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if s, _ := back[0].Field("name").String(); s != "x" || number(t, back[0].Index(2)) != 2 {
		t.Fatalf("round trip lost data: %s", src)
	}
	if IsPrime(res[1]) {
		t.Fatalf("table with metatable must not be prime")
	}
	var npe *NotPrimeError
	if _, err := Serialize(res[1]); !errors.As(err, &npe) {
		t.Fatalf("expected NotPrimeError, got %v", err)
	}

	js, err := ToJSON(res[0], false)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if js != `{"1":1,"2":2,"name":"x"}` {
		t.Fatalf("unexpected json %s", js)
	}
	decoded, err := FromJSON(`{"list":[1,2,3],"ok":true}`)
	if err != nil {
		t.Fatalf("from json: %v", err)
	}
	if decoded.Field("list").Len() != 3 {
		t.Fatalf("unexpected decoded list")
	}
	y, err := ToYAML(decoded)
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	fromY, err := FromYAML(y)
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if b, _ := fromY.Field("ok").Bool(); !b {
		t.Fatalf("yaml round trip lost data: %s", y)
	}
	data, err := ToCBOR(decoded)
	if err != nil {
		t.Fatalf("cbor: %v", err)
	}
	fromC, err := FromCBOR(data)
	if err != nil || number(t, fromC.Field("list").Index(3)) != 3 {
		t.Fatalf("cbor round trip failed: %v", err)
	}
}

func TestAPISharedStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	store, err := OpenSharedStore(context.Background(), path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	first := NewVM(WithSharedStore(store))
	second := NewVM(WithSharedStore(store))
	if _, err := first.DoString(context.Background(), `shared.set("greeting", "hi") shared.incr("n", 4)`); err != nil {
		t.Fatalf("run error: %v", err)
	}
	res, err := second.DoString(context.Background(), `return shared.get("greeting"), shared.incr("n")`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if s, _ := res[0].String(); s != "hi" || number(t, res[1]) != 5 {
		t.Fatalf("unexpected shared values %v %v", res[0].Text(), res[1].Text())
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenSharedStore(context.Background(), path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	v, ok, err := reopened.Get("n")
	if err != nil || !ok || number(t, v) != 5 {
		t.Fatalf("expected persisted 5, got %v %v %v", v.Text(), ok, err)
	}
	if NewVM().GetGlobal("shared").Kind() != ValueNil {
		t.Fatalf("shared library must be absent without a store")
	}
}

func TestAPIRunLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	vm := NewVM(WithLogger(logger))
	if _, err := vm.DoString(context.Background(), `return 1`); err != nil {
		t.Fatalf("run error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"run_id"`, `"chunk":"string"`, `"msg":"run finished"`, `"duration"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %s:\n%s", want, out)
		}
	}
}

func TestAPITraceHookAndStdout(t *testing.T) {
	var out bytes.Buffer
	var steps int
	vm := NewVM(WithStdout(&out), WithTraceHook(func(info TraceInfo) {
		if info.Source == "string" {
			steps++
		}
	}))
	if _, err := vm.DoString(context.Background(), `print("traced")`); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if steps == 0 {
		t.Fatalf("expected trace events")
	}
	if out.String() != "traced\n" {
		t.Fatalf("unexpected stdout %q", out.String())
	}
}

func TestAPILibrarySelection(t *testing.T) {
	vm := NewVM(WithLibraries("base", "math"))
	res, err := vm.DoString(context.Background(), `return math.floor(2.5), string`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if number(t, res[0]) != 2 || !res[1].IsNil() {
		t.Fatalf("unexpected library set")
	}
}
