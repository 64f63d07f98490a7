package parser

import (
	"errors"
	"testing"

	"github.com/xirelogy/go-lunar/internal/ast"
	"github.com/xirelogy/go-lunar/internal/lexer"
	"github.com/xirelogy/go-lunar/internal/token"
)

func mustParse(t *testing.T, input string) *ast.Chunk {
	t.Helper()
	p := New(lexer.New(input))
	chunk, err := p.ParseChunk()
	if err != nil {
		t.Fatalf("parser errors: %v", p.Errors())
	}
	return chunk
}

func TestParseReturnAndAssign(t *testing.T) {
	chunk := mustParse(t, `a = 10 + 2
return a`)
	stmts := chunk.Func.Body.Statements
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(stmts))
	}
	assign, ok := stmts[0].(*ast.AssignStmt)
	if !ok {
		t.Fatalf("expected AssignStmt, got %T", stmts[0])
	}
	id := assign.Targets[0].(*ast.Identifier)
	if id.Ref.Kind != ast.RefGlobal {
		t.Fatalf("expected global ref, got %v", id.Ref.Kind)
	}
	if _, ok := stmts[1].(*ast.ReturnStmt); !ok {
		t.Fatalf("expected ReturnStmt, got %T", stmts[1])
	}
}

func TestParsePrecedence(t *testing.T) {
	chunk := mustParse(t, `return 1 + 2 * 3 ^ 2 ^ 2 .. "x" .. "y"`)
	ret := chunk.Func.Body.Statements[0].(*ast.ReturnStmt)
	concat, ok := ret.Values[0].(*ast.BinaryExpr)
	if !ok || concat.Operator != token.Concat {
		t.Fatalf("expected concat at top, got %#v", ret.Values[0])
	}
	// right associative: a .. (b .. c)
	if inner, ok := concat.Right.(*ast.BinaryExpr); !ok || inner.Operator != token.Concat {
		t.Fatalf("expected right-nested concat, got %#v", concat.Right)
	}
	sum := concat.Left.(*ast.BinaryExpr)
	if sum.Operator != token.Plus {
		t.Fatalf("expected plus, got %v", sum.Operator)
	}
	prod := sum.Right.(*ast.BinaryExpr)
	if prod.Operator != token.Star {
		t.Fatalf("expected star, got %v", prod.Operator)
	}
	pow := prod.Right.(*ast.BinaryExpr)
	if pow.Operator != token.Caret {
		t.Fatalf("expected caret, got %v", pow.Operator)
	}
	if _, ok := pow.Right.(*ast.BinaryExpr); !ok {
		t.Fatalf("expected right-nested power, got %T", pow.Right)
	}
}

func TestParseUnaryBindsLooserThanPower(t *testing.T) {
	chunk := mustParse(t, `local x = 2 return -x ^ 2, -3`)
	ret := chunk.Func.Body.Statements[1].(*ast.ReturnStmt)
	neg, ok := ret.Values[0].(*ast.UnaryExpr)
	if !ok || neg.Operator != token.Minus {
		t.Fatalf("expected unary minus, got %#v", ret.Values[0])
	}
	if num, ok := ret.Values[1].(*ast.NumberLiteral); !ok || num.Value != -3 {
		t.Fatalf("expected folded -3, got %#v", ret.Values[1])
	}
}

func TestScopeResolution(t *testing.T) {
	chunk := mustParse(t, `
local x = 1
local function f()
  x = x + 1
  return x
end
return f(), y`)
	body := chunk.Func.Body
	local := body.Statements[0].(*ast.LocalStmt)
	if local.Names[0].Slot != 0 || !local.Names[0].Captured {
		t.Fatalf("expected x in slot 0 and captured, got %+v", local.Names[0])
	}
	fn := body.Statements[1].(*ast.LocalFunctionStmt)
	if fn.Var.Slot != 1 {
		t.Fatalf("expected f in slot 1, got %d", fn.Var.Slot)
	}
	if len(fn.Func.Info.Upvalues) != 1 {
		t.Fatalf("expected one upvalue, got %d", len(fn.Func.Info.Upvalues))
	}
	up := fn.Func.Info.Upvalues[0]
	if !up.FromLocal || up.Index != 0 {
		t.Fatalf("unexpected upvalue %+v", up)
	}
	assign := fn.Func.Body.Statements[0].(*ast.AssignStmt)
	if ref := assign.Targets[0].(*ast.Identifier).Ref; ref.Kind != ast.RefUpvalue || ref.Index != 0 {
		t.Fatalf("expected upvalue ref, got %+v", ref)
	}
	ret := body.Statements[2].(*ast.ReturnStmt)
	if ref := ret.Values[1].(*ast.Identifier).Ref; ref.Kind != ast.RefGlobal {
		t.Fatalf("expected y to be global, got %v", ref.Kind)
	}
}

func TestLocalSeesOuterBinding(t *testing.T) {
	chunk := mustParse(t, `local x = 1 local x = x`)
	second := chunk.Func.Body.Statements[1].(*ast.LocalStmt)
	ref := second.Values[0].(*ast.Identifier).Ref
	if ref.Kind != ast.RefLocal || ref.Index != 0 {
		t.Fatalf("expected initializer to read the first x, got %+v", ref)
	}
	if second.Names[0].Slot != 1 {
		t.Fatalf("expected new x in slot 1, got %d", second.Names[0].Slot)
	}
}

func TestSlotReuseAcrossBlocks(t *testing.T) {
	chunk := mustParse(t, `
local a = 1
do local b = 2 end
do local c = 3 local d = 4 end
local e = 5`)
	stmts := chunk.Func.Body.Statements
	b := stmts[1].(*ast.DoStmt).Body.Statements[0].(*ast.LocalStmt).Names[0]
	c := stmts[2].(*ast.DoStmt).Body.Statements[0].(*ast.LocalStmt).Names[0]
	d := stmts[2].(*ast.DoStmt).Body.Statements[1].(*ast.LocalStmt).Names[0]
	e := stmts[3].(*ast.LocalStmt).Names[0]
	if b.Slot != 1 || c.Slot != 1 || d.Slot != 2 || e.Slot != 1 {
		t.Fatalf("unexpected slots b=%d c=%d d=%d e=%d", b.Slot, c.Slot, d.Slot, e.Slot)
	}
	if chunk.Func.Info.MaxSlots != 3 {
		t.Fatalf("expected 3 slots, got %d", chunk.Func.Info.MaxSlots)
	}
}

func TestParseNumericAndGenericFor(t *testing.T) {
	chunk := mustParse(t, `
local sum = 0
for i = 1, 10, 2 do sum = sum + i end
for k, v in pairs(t) do sum = sum + v end`)
	stmts := chunk.Func.Body.Statements
	nf := stmts[1].(*ast.NumericForStmt)
	if nf.BaseSlot != 1 || nf.Var.Slot != 4 || nf.Step == nil {
		t.Fatalf("unexpected numeric for layout base=%d var=%d", nf.BaseSlot, nf.Var.Slot)
	}
	gf := stmts[2].(*ast.GenericForStmt)
	if gf.BaseSlot != 1 || len(gf.Vars) != 2 || gf.Vars[1].Slot != 5 {
		t.Fatalf("unexpected generic for layout %+v", gf)
	}
}

func TestParseFunctionStatementMethod(t *testing.T) {
	chunk := mustParse(t, `function obj.inner:method(a, ...) return self, a, ... end`)
	fs := chunk.Func.Body.Statements[0].(*ast.FunctionStmt)
	if fs.Func.Name != "obj.inner:method" {
		t.Fatalf("unexpected name %q", fs.Func.Name)
	}
	if len(fs.Func.Params) != 2 || fs.Func.Params[0].Name != "self" {
		t.Fatalf("expected implicit self parameter, got %+v", fs.Func.Params)
	}
	if !fs.Func.Info.IsVararg || fs.Func.Info.NumParams != 2 {
		t.Fatalf("unexpected info %+v", fs.Func.Info)
	}
	if _, ok := fs.Target.(*ast.MemberExpr); !ok {
		t.Fatalf("expected member target, got %T", fs.Target)
	}
}

func TestParseTableConstructor(t *testing.T) {
	chunk := mustParse(t, `return { 1, 2; x = 3, ["y"] = 4, f() }`)
	tbl := chunk.Func.Body.Statements[0].(*ast.ReturnStmt).Values[0].(*ast.TableExpr)
	kinds := []ast.FieldKind{ast.FieldPositional, ast.FieldPositional, ast.FieldNamed, ast.FieldKeyed, ast.FieldPositional}
	if len(tbl.Fields) != len(kinds) {
		t.Fatalf("expected %d fields, got %d", len(kinds), len(tbl.Fields))
	}
	for i, k := range kinds {
		if tbl.Fields[i].Kind != k {
			t.Fatalf("field %d: expected kind %v, got %v", i, k, tbl.Fields[i].Kind)
		}
	}
}

func TestParseMultiIndex(t *testing.T) {
	chunk := mustParse(t, `grid[1, 2] = grid[0, 0]`)
	assign := chunk.Func.Body.Statements[0].(*ast.AssignStmt)
	if mi, ok := assign.Targets[0].(*ast.MultiIndexExpr); !ok || len(mi.Indices) != 2 {
		t.Fatalf("expected multi-index target, got %#v", assign.Targets[0])
	}
}

func TestParenOnNewLineStartsStatement(t *testing.T) {
	chunk := mustParse(t, "local a = f\n(g)()")
	if n := len(chunk.Func.Body.Statements); n != 2 {
		t.Fatalf("expected 2 statements, got %d", n)
	}
}

func TestMultipleAssignmentTemps(t *testing.T) {
	chunk := mustParse(t, `local a, b = 1, 2
a, b = b, a`)
	assign := chunk.Func.Body.Statements[1].(*ast.AssignStmt)
	if len(assign.TempSlots) != 2 || assign.TempSlots[0] != 2 || assign.TempSlots[1] != 3 {
		t.Fatalf("unexpected temp slots %v", assign.TempSlots)
	}
	if chunk.Func.Info.MaxSlots != 4 {
		t.Fatalf("expected temps to raise slot count to 4, got %d", chunk.Func.Info.MaxSlots)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		input     string
		premature bool
	}{
		{"f() = 1", false},
		{"1 + 2", false},
		{"function f(a,) end", false},
		{"function f(..., a) end", false},
		{"break", false},
		{"local function f() return ... end", false},
		{"while true do", true},
		{"if x then", true},
		{"x = ", true},
		{"s = \"open", true},
		{"t = {1, 2", true},
		{"return 1 x = 2", false},
	}
	for _, tc := range cases {
		_, err := Parse(tc.input, "test")
		if err == nil {
			t.Fatalf("%q: expected syntax error", tc.input)
		}
		var syn *SyntaxError
		if !errors.As(err, &syn) {
			t.Fatalf("%q: expected SyntaxError, got %T", tc.input, err)
		}
		if syn.Premature != tc.premature {
			t.Fatalf("%q: expected premature=%v, got %v (%v)", tc.input, tc.premature, syn.Premature, syn)
		}
	}
}

func TestUnterminatedBlockNamesOpener(t *testing.T) {
	_, err := Parse("while x do\n  y()\n", "chunk")
	var syn *SyntaxError
	if !errors.As(err, &syn) {
		t.Fatalf("expected SyntaxError, got %v", err)
	}
	want := "'end' expected (to close 'while' at line 1) near <eof>"
	if syn.Message != want {
		t.Fatalf("expected %q, got %q", want, syn.Message)
	}
}
