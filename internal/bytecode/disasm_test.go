package bytecode

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xirelogy/go-lunar/internal/token"
)

func TestDisassembleBuiltinName(t *testing.T) {
	const opcode byte = 0x9E
	if _, ok := LookupIntrinsic(opcode); !ok {
		RegisterIntrinsic("sample", opcode, 2)
	}
	proto := &Prototype{
		Name: "test",
		Chunk: &Chunk{
			Code: []byte{opcode, 2, 1, 0},
			Refs: []SourceRef{{Offset: 0, Span: token.Span{Start: token.Position{Line: 1}}}},
		},
	}
	var buf bytes.Buffer
	dis := NewDisassembler(&buf)
	if err := dis.DisassemblePrototype("test", proto); err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "OP_BUILTIN_sample") {
		t.Fatalf("expected builtin name, got:\n%s", out)
	}
	if !strings.Contains(out, "min_args=2") || !strings.Contains(out, "want=1") {
		t.Fatalf("expected call operands, got:\n%s", out)
	}
}

func TestDisassembleNestedPrototypes(t *testing.T) {
	child := &Prototype{
		Name:  "inner",
		Chunk: &Chunk{Code: []byte{OP_NIL, OP_RETURN, 1, 0}},
	}
	proto := &Prototype{
		Name:   "main",
		Chunk:  &Chunk{Code: []byte{OP_CLOSURE, 0, 0, 1, 1, 3, OP_RETURN, 0, 0}, Consts: []interface{}{}},
		Protos: []*Prototype{child},
	}
	var buf bytes.Buffer
	if err := NewDisassembler(&buf).DisassemblePrototype("", proto); err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"function main", "OP_CLOSURE", "[local 3]", "function inner", "OP_RETURN"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}
}

func TestRefForOffset(t *testing.T) {
	chunk := &Chunk{Refs: []SourceRef{
		{Offset: 0, Span: token.Span{Start: token.Position{Line: 1}}},
		{Offset: 5, Span: token.Span{Start: token.Position{Line: 3}}},
	}}
	if span, ok := chunk.RefForOffset(4); !ok || span.Start.Line != 1 {
		t.Fatalf("expected line 1, got %v %v", span, ok)
	}
	if span, ok := chunk.RefForOffset(9); !ok || span.Start.Line != 3 {
		t.Fatalf("expected line 3, got %v %v", span, ok)
	}
}

func TestDecodeClosureOperands(t *testing.T) {
	code := []byte{OP_CLOSURE, 0, 0, 2, 1, 0, 0, 1, OP_RETURN, 1, 0}
	insts, err := Decode(code)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(insts) != 2 || insts[1].Offset != 8 || insts[1].Op != OP_RETURN {
		t.Fatalf("unexpected instructions %+v", insts)
	}
	if _, err := Decode([]byte{OP_CALL, 1}); err == nil {
		t.Fatalf("expected truncated instruction error")
	}
}
