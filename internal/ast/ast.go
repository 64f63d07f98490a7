package ast

import "github.com/xirelogy/go-lunar/internal/token"

// Node represents any AST node.
type Node interface {
	Pos() token.Position
	Span() token.Span
}

// Statement is an executable node.
type Statement interface {
	Node
	stmtNode()
}

// Expression produces a value.
type Expression interface {
	Node
	exprNode()
}

// Chunk is the root node: the body of the implicit main function.
type Chunk struct {
	Name     string
	Func     *FuncExpr
	NodeSpan token.Span
}

func (c *Chunk) Pos() token.Position { return c.NodeSpan.Start }
func (c *Chunk) Span() token.Span    { return c.NodeSpan }

// Scope resolution

// RefKind tells where a resolved name lives.
type RefKind int

const (
	RefGlobal RefKind = iota
	RefLocal
	RefUpvalue
)

func (k RefKind) String() string {
	switch k {
	case RefLocal:
		return "local"
	case RefUpvalue:
		return "upvalue"
	default:
		return "global"
	}
}

// Ref is the resolution of an identifier. Index is the local slot or the
// upvalue index; globals are looked up by name.
type Ref struct {
	Kind  RefKind
	Index int
	Local *LocalVar
}

// LocalVar is a declared local variable bound to a stack slot.
type LocalVar struct {
	Name     string
	Slot     int
	Captured bool
	PosT     token.Position
	Sp       token.Span
}

// UpvalueDesc describes how a closure obtains one captured variable: from a
// local slot of the enclosing function or from one of its upvalues.
type UpvalueDesc struct {
	Name      string
	FromLocal bool
	Index     int
}

// FuncInfo is the per-function result of scope resolution.
type FuncInfo struct {
	NumParams int
	IsVararg  bool
	MaxSlots  int
	Upvalues  []UpvalueDesc
}

// Statements

// Block is a lexical scope. Locals declared directly in it occupy slots from
// StartSlot upwards and are released when the block ends.
type Block struct {
	Statements []Statement
	Locals     []*LocalVar
	StartSlot  int
	BlockSpan  token.Span
}

func (b *Block) Pos() token.Position { return b.BlockSpan.Start }
func (b *Block) Span() token.Span    { return b.BlockSpan }
func (b *Block) stmtNode()           {}

// HasCaptured reports whether a closure captured any local of the block.
func (b *Block) HasCaptured() bool {
	for _, l := range b.Locals {
		if l.Captured {
			return true
		}
	}
	return false
}

type LocalStmt struct {
	Names    []*LocalVar
	Values   []Expression
	PosT     token.Position
	StmtSpan token.Span
}

func (s *LocalStmt) Pos() token.Position { return s.PosT }
func (s *LocalStmt) Span() token.Span    { return s.StmtSpan }
func (s *LocalStmt) stmtNode()           {}

// AssignStmt assigns Values to Targets. With more than one target the values
// are staged in TempSlots before being stored.
type AssignStmt struct {
	Targets   []Expression
	Values    []Expression
	TempSlots []int
	PosT      token.Position
	StmtSpan  token.Span
}

func (s *AssignStmt) Pos() token.Position { return s.PosT }
func (s *AssignStmt) Span() token.Span    { return s.StmtSpan }
func (s *AssignStmt) stmtNode()           {}

type CallStmt struct {
	Call     Expression
	StmtSpan token.Span
}

func (s *CallStmt) Pos() token.Position { return s.StmtSpan.Start }
func (s *CallStmt) Span() token.Span    { return s.StmtSpan }
func (s *CallStmt) stmtNode()           {}

type DoStmt struct {
	Body     *Block
	StmtSpan token.Span
}

func (s *DoStmt) Pos() token.Position { return s.StmtSpan.Start }
func (s *DoStmt) Span() token.Span    { return s.StmtSpan }
func (s *DoStmt) stmtNode()           {}

type WhileStmt struct {
	Condition Expression
	Body      *Block
	NodeSpan  token.Span
}

func (w *WhileStmt) Pos() token.Position { return w.NodeSpan.Start }
func (w *WhileStmt) Span() token.Span    { return w.NodeSpan }
func (w *WhileStmt) stmtNode()           {}

// RepeatStmt's condition is resolved inside Body's scope.
type RepeatStmt struct {
	Body      *Block
	Condition Expression
	NodeSpan  token.Span
}

func (r *RepeatStmt) Pos() token.Position { return r.NodeSpan.Start }
func (r *RepeatStmt) Span() token.Span    { return r.NodeSpan }
func (r *RepeatStmt) stmtNode()           {}

type IfStmt struct {
	Clauses []IfClause
	Else    *Block
	IfSpan  token.Span
}

func (i *IfStmt) Pos() token.Position { return i.IfSpan.Start }
func (i *IfStmt) Span() token.Span    { return i.IfSpan }
func (i *IfStmt) stmtNode()           {}

type IfClause struct {
	Condition Expression
	Body      *Block
	Span      token.Span
}

// NumericForStmt uses three hidden slots from BaseSlot (index, limit, step);
// Var is declared inside Body.
type NumericForStmt struct {
	Var      *LocalVar
	Start    Expression
	Limit    Expression
	Step     Expression
	BaseSlot int
	Body     *Block
	NodeSpan token.Span
}

func (f *NumericForStmt) Pos() token.Position { return f.NodeSpan.Start }
func (f *NumericForStmt) Span() token.Span    { return f.NodeSpan }
func (f *NumericForStmt) stmtNode()           {}

// GenericForStmt uses three hidden slots from BaseSlot (iterator, state,
// control); Vars are declared inside Body.
type GenericForStmt struct {
	Vars     []*LocalVar
	Exprs    []Expression
	BaseSlot int
	Body     *Block
	NodeSpan token.Span
}

func (f *GenericForStmt) Pos() token.Position { return f.NodeSpan.Start }
func (f *GenericForStmt) Span() token.Span    { return f.NodeSpan }
func (f *GenericForStmt) stmtNode()           {}

// FunctionStmt is `function a.b:c() end`; Target is the assignable name path.
type FunctionStmt struct {
	Target   Expression
	Func     *FuncExpr
	NodeSpan token.Span
}

func (f *FunctionStmt) Pos() token.Position { return f.NodeSpan.Start }
func (f *FunctionStmt) Span() token.Span    { return f.NodeSpan }
func (f *FunctionStmt) stmtNode()           {}

type LocalFunctionStmt struct {
	Var      *LocalVar
	Func     *FuncExpr
	NodeSpan token.Span
}

func (f *LocalFunctionStmt) Pos() token.Position { return f.NodeSpan.Start }
func (f *LocalFunctionStmt) Span() token.Span    { return f.NodeSpan }
func (f *LocalFunctionStmt) stmtNode()           {}

type ReturnStmt struct {
	Values   []Expression
	StmtSpan token.Span
}

func (r *ReturnStmt) Pos() token.Position { return r.StmtSpan.Start }
func (r *ReturnStmt) Span() token.Span    { return r.StmtSpan }
func (r *ReturnStmt) stmtNode()           {}

// BreakStmt exits the innermost loop.
type BreakStmt struct {
	StmtSpan token.Span
}

func (b *BreakStmt) Pos() token.Position { return b.StmtSpan.Start }
func (b *BreakStmt) Span() token.Span    { return b.StmtSpan }
func (b *BreakStmt) stmtNode()           {}

// Expressions

type Identifier struct {
	Name string
	Ref  Ref
	PosT token.Position
	Sp   token.Span
}

func (i *Identifier) Pos() token.Position { return i.PosT }
func (i *Identifier) Span() token.Span    { return i.Sp }
func (i *Identifier) exprNode()           {}

type NumberLiteral struct {
	Value float64
	Raw   string
	PosT  token.Position
	Sp    token.Span
}

func (n *NumberLiteral) Pos() token.Position { return n.PosT }
func (n *NumberLiteral) Span() token.Span    { return n.Sp }
func (n *NumberLiteral) exprNode()           {}

type StringLiteral struct {
	Value string
	PosT  token.Position
	Sp    token.Span
}

func (s *StringLiteral) Pos() token.Position { return s.PosT }
func (s *StringLiteral) Span() token.Span    { return s.Sp }
func (s *StringLiteral) exprNode()           {}

type BoolLiteral struct {
	Value bool
	PosT  token.Position
	Sp    token.Span
}

func (b *BoolLiteral) Pos() token.Position { return b.PosT }
func (b *BoolLiteral) Span() token.Span    { return b.Sp }
func (b *BoolLiteral) exprNode()           {}

type NilLiteral struct {
	PosT token.Position
	Sp   token.Span
}

func (n *NilLiteral) Pos() token.Position { return n.PosT }
func (n *NilLiteral) Span() token.Span    { return n.Sp }
func (n *NilLiteral) exprNode()           {}

// VarargExpr is `...`.
type VarargExpr struct {
	PosT token.Position
	Sp   token.Span
}

func (v *VarargExpr) Pos() token.Position { return v.PosT }
func (v *VarargExpr) Span() token.Span    { return v.Sp }
func (v *VarargExpr) exprNode()           {}

// ParenExpr truncates a multi-valued expression to one value.
type ParenExpr struct {
	Inner Expression
	PosT  token.Position
	Sp    token.Span
}

func (p *ParenExpr) Pos() token.Position { return p.PosT }
func (p *ParenExpr) Span() token.Span    { return p.Sp }
func (p *ParenExpr) exprNode()           {}

type FieldKind int

const (
	FieldPositional FieldKind = iota
	FieldNamed
	FieldKeyed
)

type TableField struct {
	Kind  FieldKind
	Name  string
	Key   Expression
	Value Expression
}

type TableExpr struct {
	Fields []TableField
	PosT   token.Position
	Sp     token.Span
}

func (t *TableExpr) Pos() token.Position { return t.PosT }
func (t *TableExpr) Span() token.Span    { return t.Sp }
func (t *TableExpr) exprNode()           {}

type IndexExpr struct {
	Left  Expression
	Index Expression
	PosT  token.Position
	Sp    token.Span
}

func (i *IndexExpr) Pos() token.Position { return i.PosT }
func (i *IndexExpr) Span() token.Span    { return i.Sp }
func (i *IndexExpr) exprNode()           {}

// MultiIndexExpr is `a[i, j, ...]`, used for multi-dimensional host indexers.
type MultiIndexExpr struct {
	Left    Expression
	Indices []Expression
	PosT    token.Position
	Sp      token.Span
}

func (m *MultiIndexExpr) Pos() token.Position { return m.PosT }
func (m *MultiIndexExpr) Span() token.Span    { return m.Sp }
func (m *MultiIndexExpr) exprNode()           {}

type MemberExpr struct {
	Left     Expression
	Property string
	PosT     token.Position
	Sp       token.Span
}

func (m *MemberExpr) Pos() token.Position { return m.PosT }
func (m *MemberExpr) Span() token.Span    { return m.Sp }
func (m *MemberExpr) exprNode()           {}

type CallExpr struct {
	Callee    Expression
	Arguments []Expression
	PosT      token.Position
	Sp        token.Span
}

func (c *CallExpr) Pos() token.Position { return c.PosT }
func (c *CallExpr) Span() token.Span    { return c.Sp }
func (c *CallExpr) exprNode()           {}

// MethodCallExpr is `recv:name(args)`.
type MethodCallExpr struct {
	Receiver  Expression
	Method    string
	Arguments []Expression
	PosT      token.Position
	Sp        token.Span
}

func (m *MethodCallExpr) Pos() token.Position { return m.PosT }
func (m *MethodCallExpr) Span() token.Span    { return m.Sp }
func (m *MethodCallExpr) exprNode()           {}

type BinaryExpr struct {
	Left     Expression
	Operator token.Type
	Right    Expression
	PosT     token.Position
	Sp       token.Span
}

func (b *BinaryExpr) Pos() token.Position { return b.PosT }
func (b *BinaryExpr) Span() token.Span    { return b.Sp }
func (b *BinaryExpr) exprNode()           {}

type UnaryExpr struct {
	Operator token.Type
	Right    Expression
	PosT     token.Position
	Sp       token.Span
}

func (u *UnaryExpr) Pos() token.Position { return u.PosT }
func (u *UnaryExpr) Span() token.Span    { return u.Sp }
func (u *UnaryExpr) exprNode()           {}

type FuncExpr struct {
	Name   string
	Params []*LocalVar
	Body   *Block
	Info   *FuncInfo
	PosT   token.Position
	Sp     token.Span
}

func (f *FuncExpr) Pos() token.Position { return f.PosT }
func (f *FuncExpr) Span() token.Span    { return f.Sp }
func (f *FuncExpr) exprNode()           {}

// IsMultiValued reports whether e can produce a variable number of values.
func IsMultiValued(e Expression) bool {
	switch e.(type) {
	case *CallExpr, *MethodCallExpr, *VarargExpr:
		return true
	}
	return false
}
