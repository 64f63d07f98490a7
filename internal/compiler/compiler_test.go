package compiler

import (
	"errors"
	"testing"

	"github.com/xirelogy/go-lunar/internal/bytecode"
	"github.com/xirelogy/go-lunar/internal/parser"
)

func compileSource(t *testing.T, src string) *Prototype {
	t.Helper()
	chunk, err := parser.Parse(src, "test")
	if err != nil {
		t.Fatalf("parser error: %v", err)
	}
	proto, err := Compile(chunk)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return proto
}

func decode(t *testing.T, proto *Prototype) []bytecode.Instruction {
	t.Helper()
	insts, err := bytecode.Decode(proto.Chunk.Code)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return insts
}

func findOp(insts []bytecode.Instruction, op byte) (bytecode.Instruction, bool) {
	for _, in := range insts {
		if in.Op == op {
			return in, true
		}
	}
	return bytecode.Instruction{}, false
}

func TestCompileLocalsAndReturn(t *testing.T) {
	proto := compileSource(t, `local a, b = 1, 2
return a + b`)
	expected := []byte{
		OP_CONST, 0x00, 0x00,
		OP_CONST, 0x00, 0x01,
		OP_SET_LOCAL, 0x01,
		OP_SET_LOCAL, 0x00,
		OP_GET_LOCAL, 0x00,
		OP_GET_LOCAL, 0x01,
		OP_ADD,
		OP_RETURN, 0x01, 0x00,
		OP_RETURN, 0x00, 0x00,
	}
	code := proto.Chunk.Code
	if len(code) != len(expected) {
		t.Fatalf("expected code length %d, got %d (%v)", len(expected), len(code), code)
	}
	for i, b := range expected {
		if code[i] != b {
			t.Fatalf("byte %d expected %02x got %02x", i, b, code[i])
		}
	}
	if proto.MaxLocals != 2 || !proto.IsVararg {
		t.Fatalf("unexpected main prototype %+v", proto)
	}
}

func TestCompileInternsConstants(t *testing.T) {
	proto := compileSource(t, `return 1, 1, "a", "a", 0, -0`)
	if n := len(proto.Chunk.Consts); n != 4 {
		t.Fatalf("expected 4 constants, got %d: %v", n, proto.Chunk.Consts)
	}
}

func TestCompileMultiReturnCall(t *testing.T) {
	proto := compileSource(t, `return f()`)
	insts := decode(t, proto)
	call, ok := findOp(insts, OP_CALL)
	if !ok {
		t.Fatalf("expected call")
	}
	if call.Operands[0] != 0 || call.Operands[1] != wantMulti || call.Operands[2] != 0 {
		t.Fatalf("unexpected call operands %v", call.Operands)
	}
	ret, _ := findOp(insts, OP_RETURN)
	if ret.Operands[0] != 1 || ret.Operands[1] != 1 {
		t.Fatalf("expected expanding return, got %v", ret.Operands)
	}
}

func TestCompileTruncatesMidListCall(t *testing.T) {
	proto := compileSource(t, `g(f(), f())`)
	var calls []bytecode.Instruction
	for _, in := range decode(t, proto) {
		if in.Op == OP_CALL {
			calls = append(calls, in)
		}
	}
	if len(calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(calls))
	}
	if calls[0].Operands[1] != 1 {
		t.Fatalf("first argument should be truncated to one value, want=%d", calls[0].Operands[1])
	}
	if calls[1].Operands[1] != wantMulti {
		t.Fatalf("last argument should expand, want=%d", calls[1].Operands[1])
	}
	if outer := calls[2].Operands; outer[0] != 2 || outer[1] != 0 || outer[2] != 1 {
		t.Fatalf("unexpected outer call operands %v", outer)
	}
}

func TestCompileClosureUpvalues(t *testing.T) {
	proto := compileSource(t, `local x = 1
local function f() x = x + 1 return x end
return f`)
	if len(proto.Protos) != 1 {
		t.Fatalf("expected one nested prototype, got %d", len(proto.Protos))
	}
	child := proto.Protos[0]
	if len(child.Upvalues) != 1 || !child.Upvalues[0].IsLocal || child.Upvalues[0].Index != 0 {
		t.Fatalf("unexpected upvalues %+v", child.Upvalues)
	}
	closure, ok := findOp(decode(t, proto), OP_CLOSURE)
	if !ok {
		t.Fatalf("expected closure instruction")
	}
	want := []byte{0, 0, 1, 1, 0}
	for i, b := range want {
		if closure.Operands[i] != b {
			t.Fatalf("closure operands expected %v, got %v", want, closure.Operands)
		}
	}
	if _, ok := findOp(decode(t, child), OP_SET_UPVALUE); !ok {
		t.Fatalf("expected upvalue store in child")
	}
}

func TestCompileClosesCapturedLoopLocals(t *testing.T) {
	proto := compileSource(t, `for i = 1, 3 do
  local f = function() return i end
end`)
	insts := decode(t, proto)
	closeOp, ok := findOp(insts, OP_CLOSE)
	if !ok {
		t.Fatalf("expected OP_CLOSE for captured loop variable")
	}
	if closeOp.Operands[0] != 3 {
		t.Fatalf("expected close from slot 3, got %d", closeOp.Operands[0])
	}
	if _, ok := findOp(insts, OP_FOR_LOOP); !ok {
		t.Fatalf("expected FOR_LOOP")
	}
}

func TestCompileBreakClosesUpvalues(t *testing.T) {
	proto := compileSource(t, `while true do
  local v = 1
  g(function() return v end)
  break
end`)
	var closes int
	for _, in := range decode(t, proto) {
		if in.Op == OP_CLOSE {
			closes++
		}
	}
	if closes != 2 {
		t.Fatalf("expected close on break and at block end, got %d", closes)
	}
}

func TestCompileTableConstructor(t *testing.T) {
	proto := compileSource(t, `return {1, 2, x = 3, f()}`)
	insts := decode(t, proto)
	newTable, _ := findOp(insts, OP_NEW_TABLE)
	if newTable.Operands[1] != 3 || newTable.Operands[3] != 1 {
		t.Fatalf("unexpected size hints %v", newTable.Operands)
	}
	var lists []bytecode.Instruction
	for _, in := range insts {
		if in.Op == OP_SET_LIST {
			lists = append(lists, in)
		}
	}
	if len(lists) != 2 {
		t.Fatalf("expected 2 SET_LIST flushes, got %d", len(lists))
	}
	// flushed before the named field, then the expanding call from index 3
	if lists[0].Operands[1] != 1 || lists[0].Operands[2] != 2 {
		t.Fatalf("unexpected first flush %v", lists[0].Operands)
	}
	if lists[1].Operands[1] != 3 || lists[1].Operands[2] != 1 || lists[1].Operands[3] != 1 {
		t.Fatalf("unexpected second flush %v", lists[1].Operands)
	}
}

func TestCompileLogicalShortCircuit(t *testing.T) {
	proto := compileSource(t, `local a, b return a and b or 1`)
	insts := decode(t, proto)
	and, ok := findOp(insts, OP_AND)
	if !ok {
		t.Fatalf("expected OP_AND")
	}
	target := int(and.Operands[0])<<8 | int(and.Operands[1])
	or, ok := findOp(insts, OP_OR)
	if !ok || target != or.Offset {
		t.Fatalf("expected and to jump to the or test at %d, got %d", or.Offset, target)
	}
}

func TestCompileSourceRefs(t *testing.T) {
	proto := compileSource(t, "local a = 1\n\nreturn a .. nil")
	insts := decode(t, proto)
	concat, ok := findOp(insts, OP_CONCAT)
	if !ok {
		t.Fatalf("expected concat")
	}
	span, ok := proto.Chunk.RefForOffset(concat.Offset)
	if !ok || span.Start.Line != 3 || span.Start.Column != 8 {
		t.Fatalf("unexpected span for concat: %v", span)
	}
}

func TestCompileTooManyArguments(t *testing.T) {
	src := "f("
	for i := 0; i < 256; i++ {
		if i > 0 {
			src += ","
		}
		src += "1"
	}
	src += ")"
	chunk, err := parser.Parse(src, "test")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err = Compile(chunk)
	var syn *parser.SyntaxError
	if !errors.As(err, &syn) || syn.Message != "too many arguments" {
		t.Fatalf("expected too many arguments error, got %v", err)
	}
}
