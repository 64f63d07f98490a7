package compiler

import (
	"fmt"
	"math"

	"github.com/xirelogy/go-lunar/internal/ast"
	"github.com/xirelogy/go-lunar/internal/parser"
	"github.com/xirelogy/go-lunar/internal/token"
)

const (
	maxArgs        = 255
	maxConsts      = math.MaxUint16
	maxCode        = math.MaxUint16
	fieldsPerFlush = 50
)

// Compile turns a resolved chunk into the prototype of its main function.
func Compile(chunk *ast.Chunk) (proto *Prototype, err error) {
	defer func() {
		if r := recover(); r != nil {
			ce, ok := r.(*parser.SyntaxError)
			if !ok {
				panic(r)
			}
			proto, err = nil, ce
		}
	}()
	return compileFunction(chunk.Name, chunk.Func), nil
}

type loopState struct {
	breaks []int
	// depth is the index of the loop body in funcCompiler.blocks.
	depth int
}

type numKey uint64

type funcCompiler struct {
	proto  *Prototype
	chunk  *Chunk
	source string
	span   token.Span
	consts map[interface{}]uint16
	loops  []*loopState
	blocks []*ast.Block
}

func compileFunction(source string, fn *ast.FuncExpr) *Prototype {
	fc := &funcCompiler{
		chunk:  &Chunk{},
		source: source,
		span:   fn.Sp,
		consts: make(map[interface{}]uint16),
	}
	fc.proto = &Prototype{
		Name:      fn.Name,
		Source:    source,
		NumParams: fn.Info.NumParams,
		IsVararg:  fn.Info.IsVararg,
		MaxLocals: fn.Info.MaxSlots,
		Chunk:     fc.chunk,
		Span:      fn.Sp,
	}
	for _, uv := range fn.Info.Upvalues {
		fc.proto.Upvalues = append(fc.proto.Upvalues, Upvalue{Name: uv.Name, IsLocal: uv.FromLocal, Index: uint8(uv.Index)})
	}

	fc.compileBlock(fn.Body)

	// falling off the end returns nothing
	fc.span = token.Span{Start: fn.Sp.End, End: fn.Sp.End}
	fc.emitBytes(OP_RETURN, 0, 0)
	return fc.proto
}

func (fc *funcCompiler) errorf(span token.Span, format string, args ...any) {
	panic(&parser.SyntaxError{Message: fmt.Sprintf(format, args...), Chunk: fc.source, Span: span})
}

// compileBlock compiles a block and closes the upvalues its locals opened.
func (fc *funcCompiler) compileBlock(b *ast.Block) {
	fc.compileStatements(b)
	if b.HasCaptured() {
		fc.emitBytes(OP_CLOSE, byte(b.StartSlot))
	}
}

func (fc *funcCompiler) compileStatements(b *ast.Block) {
	fc.blocks = append(fc.blocks, b)
	for _, stmt := range b.Statements {
		fc.span = stmt.Span()
		fc.compileStatement(stmt)
	}
	fc.blocks = fc.blocks[:len(fc.blocks)-1]
}

func (fc *funcCompiler) compileStatement(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.LocalStmt:
		fc.compileExprN(s.Values, len(s.Names))
		for i := len(s.Names) - 1; i >= 0; i-- {
			fc.emitBytes(OP_SET_LOCAL, byte(s.Names[i].Slot))
		}
	case *ast.AssignStmt:
		fc.compileAssign(s)
	case *ast.CallStmt:
		fc.compileCall(s.Call, 0)
	case *ast.DoStmt:
		fc.compileBlock(s.Body)
	case *ast.WhileStmt:
		fc.compileWhile(s)
	case *ast.RepeatStmt:
		fc.compileRepeat(s)
	case *ast.IfStmt:
		fc.compileIf(s)
	case *ast.NumericForStmt:
		fc.compileNumericFor(s)
	case *ast.GenericForStmt:
		fc.compileGenericFor(s)
	case *ast.FunctionStmt:
		fc.compileStore(s.Target, func() { fc.compileFuncExpr(s.Func) })
	case *ast.LocalFunctionStmt:
		fc.compileFuncExpr(s.Func)
		fc.emitBytes(OP_SET_LOCAL, byte(s.Var.Slot))
	case *ast.ReturnStmt:
		count, multi := fc.compileArgs(s.Values, s.StmtSpan)
		fc.emitBytes(OP_RETURN, count, multi)
	case *ast.BreakStmt:
		fc.compileBreak(s)
	default:
		fc.errorf(stmt.Span(), "unsupported statement %T", stmt)
	}
}

func (fc *funcCompiler) compileAssign(s *ast.AssignStmt) {
	if len(s.Targets) == 1 {
		fc.compileStore(s.Targets[0], func() {
			fc.compileExprN(s.Values, 1)
		})
		return
	}
	fc.compileExprN(s.Values, len(s.Targets))
	for i := len(s.TempSlots) - 1; i >= 0; i-- {
		fc.emitBytes(OP_SET_LOCAL, byte(s.TempSlots[i]))
	}
	for i, target := range s.Targets {
		slot := byte(s.TempSlots[i])
		fc.compileStore(target, func() { fc.emitBytes(OP_GET_LOCAL, slot) })
	}
}

// compileStore emits the code to evaluate value and store it into target.
// Table operands are evaluated before the value.
func (fc *funcCompiler) compileStore(target ast.Expression, value func()) {
	switch t := target.(type) {
	case *ast.Identifier:
		value()
		switch t.Ref.Kind {
		case ast.RefLocal:
			fc.emitBytes(OP_SET_LOCAL, byte(t.Ref.Index))
		case ast.RefUpvalue:
			fc.emitBytes(OP_SET_UPVALUE, byte(t.Ref.Index))
		default:
			fc.emitU16(OP_SET_GLOBAL, fc.addConst(t.Name))
		}
	case *ast.MemberExpr:
		fc.compileExpr(t.Left)
		value()
		fc.emitU16(OP_SET_FIELD, fc.addConst(t.Property))
	case *ast.IndexExpr:
		fc.compileExpr(t.Left)
		fc.compileExpr(t.Index)
		value()
		fc.emitByte(OP_INDEX_SET)
	case *ast.MultiIndexExpr:
		fc.compileExpr(t.Left)
		for _, idx := range t.Indices {
			fc.compileExpr(idx)
		}
		value()
		fc.emitBytes(OP_MULTI_SET, byte(len(t.Indices)))
	default:
		fc.errorf(target.Span(), "cannot assign to %T", target)
	}
}

func (fc *funcCompiler) pushLoop() *loopState {
	loop := &loopState{depth: len(fc.blocks)}
	fc.loops = append(fc.loops, loop)
	return loop
}

func (fc *funcCompiler) popLoop() {
	loop := fc.loops[len(fc.loops)-1]
	fc.loops = fc.loops[:len(fc.loops)-1]
	for _, pos := range loop.breaks {
		fc.patchJump(pos)
	}
}

func (fc *funcCompiler) compileBreak(s *ast.BreakStmt) {
	if len(fc.loops) == 0 {
		fc.errorf(s.StmtSpan, "break outside a loop")
	}
	loop := fc.loops[len(fc.loops)-1]
	open := fc.blocks[loop.depth:]
	for _, b := range open {
		if b.HasCaptured() {
			fc.emitBytes(OP_CLOSE, byte(open[0].StartSlot))
			break
		}
	}
	loop.breaks = append(loop.breaks, fc.emitJump(OP_JUMP))
}

func (fc *funcCompiler) compileWhile(s *ast.WhileStmt) {
	loopStart := len(fc.chunk.Code)
	fc.compileExpr(s.Condition)
	exitJump := fc.emitJump(OP_JUMP_IF_FALSE)
	fc.pushLoop()
	fc.compileBlock(s.Body)
	fc.span = s.NodeSpan
	fc.emitLoop(loopStart)
	fc.patchJump(exitJump)
	fc.popLoop()
}

func (fc *funcCompiler) compileRepeat(s *ast.RepeatStmt) {
	loopStart := len(fc.chunk.Code)
	fc.pushLoop()
	fc.blocks = append(fc.blocks, s.Body)
	for _, stmt := range s.Body.Statements {
		fc.span = stmt.Span()
		fc.compileStatement(stmt)
	}
	// the condition still sees the body's locals
	fc.compileExpr(s.Condition)
	fc.blocks = fc.blocks[:len(fc.blocks)-1]
	fc.span = s.NodeSpan
	if s.Body.HasCaptured() {
		fc.emitBytes(OP_CLOSE, byte(s.Body.StartSlot))
	}
	fc.emitJumpTo(OP_JUMP_IF_FALSE, loopStart)
	fc.popLoop()
}

func (fc *funcCompiler) compileIf(s *ast.IfStmt) {
	var endJumps []int
	for i, clause := range s.Clauses {
		fc.span = clause.Span
		fc.compileExpr(clause.Condition)
		next := fc.emitJump(OP_JUMP_IF_FALSE)
		fc.compileBlock(clause.Body)
		if i < len(s.Clauses)-1 || s.Else != nil {
			endJumps = append(endJumps, fc.emitJump(OP_JUMP))
		}
		fc.patchJump(next)
	}
	if s.Else != nil {
		fc.compileBlock(s.Else)
	}
	for _, pos := range endJumps {
		fc.patchJump(pos)
	}
}

func (fc *funcCompiler) compileNumericFor(s *ast.NumericForStmt) {
	base := byte(s.BaseSlot)
	fc.compileExpr(s.Start)
	fc.compileExpr(s.Limit)
	if s.Step != nil {
		fc.compileExpr(s.Step)
	} else {
		fc.emitU16(OP_CONST, fc.addConst(float64(1)))
	}
	fc.span = s.NodeSpan
	fc.emitBytes(OP_SET_LOCAL, base+2)
	fc.emitBytes(OP_SET_LOCAL, base+1)
	fc.emitBytes(OP_SET_LOCAL, base)
	exitJump := fc.emitJumpWith(OP_FOR_PREP, base)
	bodyStart := len(fc.chunk.Code)

	fc.pushLoop()
	fc.compileBlock(s.Body)
	fc.span = s.NodeSpan
	fc.emitByte(OP_FOR_LOOP)
	fc.emitByte(base)
	fc.emitAddr(bodyStart)
	fc.patchJump(exitJump)
	fc.popLoop()
}

func (fc *funcCompiler) compileGenericFor(s *ast.GenericForStmt) {
	base := byte(s.BaseSlot)
	fc.compileExprN(s.Exprs, 3)
	fc.span = s.NodeSpan
	fc.emitBytes(OP_SET_LOCAL, base+2)
	fc.emitBytes(OP_SET_LOCAL, base+1)
	fc.emitBytes(OP_SET_LOCAL, base)
	fc.emitBytes(OP_TFOR_PREP, base)

	loopStart := len(fc.chunk.Code)
	fc.emitBytes(OP_GET_LOCAL, base)
	fc.emitBytes(OP_GET_LOCAL, base+1)
	fc.emitBytes(OP_GET_LOCAL, base+2)
	fc.emitBytes(OP_CALL, 2, byte(len(s.Vars)), 0)
	for i := len(s.Vars) - 1; i >= 0; i-- {
		fc.emitBytes(OP_SET_LOCAL, byte(s.Vars[i].Slot))
	}
	exitJump := fc.emitJumpWith(OP_TFOR_LOOP, base)

	fc.pushLoop()
	fc.compileBlock(s.Body)
	fc.span = s.NodeSpan
	fc.emitLoop(loopStart)
	fc.patchJump(exitJump)
	fc.popLoop()
}

// compileExprN leaves exactly n values on the stack, truncating or padding
// with nil. A trailing multi-valued expression fills the remaining slots.
func (fc *funcCompiler) compileExprN(exprs []ast.Expression, n int) {
	for i, e := range exprs {
		last := i == len(exprs)-1
		if last && ast.IsMultiValued(e) && i <= n {
			fc.compileMulti(e, byte(n-i))
			return
		}
		fc.compileExpr(e)
		if i >= n {
			fc.emitByte(OP_POP)
		}
	}
	for i := len(exprs); i < n; i++ {
		fc.emitByte(OP_NIL)
	}
}

// compileArgs pushes an argument list. When the last expression is
// multi-valued its results are left as one tuple and multi is 1.
func (fc *funcCompiler) compileArgs(exprs []ast.Expression, span token.Span) (count byte, multi byte) {
	if len(exprs) > maxArgs {
		fc.errorf(span, "too many arguments")
	}
	for i, e := range exprs {
		if i == len(exprs)-1 && ast.IsMultiValued(e) {
			fc.compileMulti(e, wantMulti)
			return byte(len(exprs)), 1
		}
		fc.compileExpr(e)
	}
	return byte(len(exprs)), 0
}

// compileMulti compiles a call or vararg asking for want results.
func (fc *funcCompiler) compileMulti(e ast.Expression, want byte) {
	switch x := e.(type) {
	case *ast.VarargExpr:
		fc.withSpan(x.Sp, func() { fc.emitBytes(OP_VARARG, want) })
	default:
		fc.compileCall(e, want)
	}
}

func (fc *funcCompiler) withSpan(span token.Span, f func()) {
	prev := fc.span
	fc.span = span
	f()
	fc.span = prev
}

func (fc *funcCompiler) compileCall(e ast.Expression, want byte) {
	prev := fc.span
	defer func() { fc.span = prev }()
	switch c := e.(type) {
	case *ast.CallExpr:
		if opcode, ok := builtinOpcode(c.Callee); ok {
			fc.span = c.Sp
			fc.emitBuiltin(opcode, c.Arguments, want, c.Sp)
			return
		}
		fc.compileExpr(c.Callee)
		argc, multi := fc.compileArgs(c.Arguments, c.Sp)
		fc.span = c.Sp
		fc.emitBytes(OP_CALL, argc, want, multi)
	case *ast.MethodCallExpr:
		fc.compileExpr(c.Receiver)
		fc.span = c.Sp
		fc.emitU16(OP_SELF, fc.addConst(c.Method))
		if len(c.Arguments) >= maxArgs {
			fc.errorf(c.Sp, "too many arguments")
		}
		argc, multi := fc.compileArgs(c.Arguments, c.Sp)
		fc.span = c.Sp
		fc.emitBytes(OP_CALL, argc+1, want, multi)
	default:
		fc.errorf(e.Span(), "not a call: %T", e)
	}
}

// compileExpr leaves exactly one value on the stack.
func (fc *funcCompiler) compileExpr(expr ast.Expression) {
	prev := fc.span
	fc.span = expr.Span()
	defer func() { fc.span = prev }()

	switch e := expr.(type) {
	case *ast.NumberLiteral:
		fc.emitU16(OP_CONST, fc.addConst(e.Value))
	case *ast.StringLiteral:
		fc.emitU16(OP_CONST, fc.addConst(e.Value))
	case *ast.BoolLiteral:
		if e.Value {
			fc.emitByte(OP_TRUE)
		} else {
			fc.emitByte(OP_FALSE)
		}
	case *ast.NilLiteral:
		fc.emitByte(OP_NIL)
	case *ast.VarargExpr:
		fc.emitBytes(OP_VARARG, 1)
	case *ast.ParenExpr:
		fc.compileExpr(e.Inner)
	case *ast.Identifier:
		switch e.Ref.Kind {
		case ast.RefLocal:
			fc.emitBytes(OP_GET_LOCAL, byte(e.Ref.Index))
		case ast.RefUpvalue:
			fc.emitBytes(OP_GET_UPVALUE, byte(e.Ref.Index))
		default:
			fc.emitU16(OP_GET_GLOBAL, fc.addConst(e.Name))
		}
	case *ast.TableExpr:
		fc.compileTable(e)
	case *ast.MemberExpr:
		fc.compileExpr(e.Left)
		fc.emitU16(OP_GET_FIELD, fc.addConst(e.Property))
	case *ast.IndexExpr:
		fc.compileExpr(e.Left)
		fc.compileExpr(e.Index)
		fc.emitByte(OP_INDEX_GET)
	case *ast.MultiIndexExpr:
		fc.compileExpr(e.Left)
		for _, idx := range e.Indices {
			fc.compileExpr(idx)
		}
		fc.emitBytes(OP_MULTI_GET, byte(len(e.Indices)))
	case *ast.CallExpr, *ast.MethodCallExpr:
		fc.compileCall(e, 1)
	case *ast.FuncExpr:
		fc.compileFuncExpr(e)
	case *ast.UnaryExpr:
		fc.compileExpr(e.Right)
		switch e.Operator {
		case token.Minus:
			fc.emitByte(OP_NEG)
		case token.Not:
			fc.emitByte(OP_NOT)
		case token.Hash:
			fc.emitByte(OP_LEN)
		default:
			fc.errorf(e.Sp, "unsupported unary operator %s", e.Operator)
		}
	case *ast.BinaryExpr:
		fc.compileBinary(e)
	default:
		fc.errorf(expr.Span(), "unsupported expression %T", expr)
	}
}

var binaryOps = map[token.Type]byte{
	token.Plus:         OP_ADD,
	token.Minus:        OP_SUB,
	token.Star:         OP_MUL,
	token.Slash:        OP_DIV,
	token.Percent:      OP_MOD,
	token.Caret:        OP_POW,
	token.Concat:       OP_CONCAT,
	token.Equal:        OP_EQ,
	token.NotEqual:     OP_NEQ,
	token.Less:         OP_LT,
	token.LessEqual:    OP_LTE,
	token.Greater:      OP_GT,
	token.GreaterEqual: OP_GTE,
}

func (fc *funcCompiler) compileBinary(e *ast.BinaryExpr) {
	switch e.Operator {
	case token.And, token.Or:
		op := byte(OP_AND)
		if e.Operator == token.Or {
			op = OP_OR
		}
		fc.compileExpr(e.Left)
		end := fc.emitJump(op)
		fc.compileExpr(e.Right)
		fc.patchJump(end)
		return
	}
	op, ok := binaryOps[e.Operator]
	if !ok {
		fc.errorf(e.Sp, "unsupported binary operator %s", e.Operator)
	}
	fc.compileExpr(e.Left)
	fc.compileExpr(e.Right)
	fc.emitByte(op)
}

// compileTable builds a constructor. Positional values are gathered on the
// stack and flushed with SET_LIST; keyed fields are stored one at a time.
func (fc *funcCompiler) compileTable(e *ast.TableExpr) {
	var narr, nhash int
	for _, f := range e.Fields {
		if f.Kind == ast.FieldPositional {
			narr++
		} else {
			nhash++
		}
	}
	fc.emitByte(OP_NEW_TABLE)
	fc.emitAddr(min(narr, math.MaxUint16))
	fc.emitAddr(min(nhash, math.MaxUint16))

	next := 1
	pending := 0
	flush := func(multi byte) {
		if pending == 0 && multi == 0 {
			return
		}
		start := next - pending
		if start > math.MaxUint16 {
			fc.errorf(e.Sp, "table constructor too large")
		}
		fc.emitByte(OP_SET_LIST)
		fc.emitAddr(start)
		fc.emitBytes(byte(pending+int(multi)), multi)
		pending = 0
	}

	for i, f := range e.Fields {
		switch f.Kind {
		case ast.FieldPositional:
			if i == len(e.Fields)-1 && ast.IsMultiValued(f.Value) {
				fc.compileMulti(f.Value, wantMulti)
				flush(1)
				continue
			}
			fc.compileExpr(f.Value)
			pending++
			next++
			if pending == fieldsPerFlush {
				flush(0)
			}
		default:
			flush(0)
			fc.compileExpr(f.Key)
			fc.compileExpr(f.Value)
			fc.emitByte(OP_TABLE_SET)
		}
	}
	flush(0)
}

func (fc *funcCompiler) compileFuncExpr(fn *ast.FuncExpr) {
	child := compileFunction(fc.source, fn)
	fc.proto.Protos = append(fc.proto.Protos, child)
	idx := len(fc.proto.Protos) - 1
	if idx > math.MaxUint16 {
		fc.errorf(fn.Sp, "too many functions")
	}
	fc.emitU16(OP_CLOSURE, uint16(idx))
	fc.emitByte(byte(len(child.Upvalues)))
	for _, uv := range child.Upvalues {
		isLocal := byte(0)
		if uv.IsLocal {
			isLocal = 1
		}
		fc.emitBytes(isLocal, uv.Index)
	}
}

// addConst interns a number or string in the constant pool. Numbers are
// keyed by their bits so 0 and -0 stay distinct.
func (fc *funcCompiler) addConst(v interface{}) uint16 {
	key := v
	if f, ok := v.(float64); ok {
		key = numKey(math.Float64bits(f))
	}
	if idx, ok := fc.consts[key]; ok {
		return idx
	}
	if len(fc.chunk.Consts) >= maxConsts {
		fc.errorf(fc.span, "too many constants")
	}
	fc.chunk.Consts = append(fc.chunk.Consts, v)
	idx := uint16(len(fc.chunk.Consts) - 1)
	fc.consts[key] = idx
	return idx
}

func (fc *funcCompiler) emitByte(b byte) {
	fc.recordRef()
	fc.chunk.Code = append(fc.chunk.Code, b)
}

func (fc *funcCompiler) emitBytes(b ...byte) {
	fc.recordRef()
	fc.chunk.Code = append(fc.chunk.Code, b...)
}

func (fc *funcCompiler) emitU16(op byte, operand uint16) {
	fc.emitBytes(op, byte(operand>>8), byte(operand))
}

func (fc *funcCompiler) emitAddr(addr int) {
	if addr > maxCode {
		fc.errorf(fc.span, "function too large")
	}
	fc.chunk.Code = append(fc.chunk.Code, byte(addr>>8), byte(addr))
}

func (fc *funcCompiler) emitJump(op byte) int {
	fc.emitByte(op)
	// placeholder for u16
	fc.chunk.Code = append(fc.chunk.Code, 0xff, 0xff)
	return len(fc.chunk.Code) - 2
}

// emitJumpWith emits a jump carrying one u8 operand before its target.
func (fc *funcCompiler) emitJumpWith(op, operand byte) int {
	fc.emitBytes(op, operand)
	fc.chunk.Code = append(fc.chunk.Code, 0xff, 0xff)
	return len(fc.chunk.Code) - 2
}

func (fc *funcCompiler) emitJumpTo(op byte, target int) {
	fc.emitByte(op)
	fc.emitAddr(target)
}

func (fc *funcCompiler) patchJump(pos int) {
	offset := len(fc.chunk.Code)
	if offset > maxCode {
		fc.errorf(fc.span, "function too large")
	}
	fc.chunk.Code[pos] = byte(offset >> 8)
	fc.chunk.Code[pos+1] = byte(offset)
}

func (fc *funcCompiler) emitLoop(start int) {
	fc.emitJumpTo(OP_JUMP, start)
}

func (fc *funcCompiler) recordRef() {
	off := len(fc.chunk.Code)
	refs := fc.chunk.Refs
	if n := len(refs); n > 0 {
		if refs[n-1].Span == fc.span {
			return
		}
		if refs[n-1].Offset == off {
			refs[n-1].Span = fc.span
			return
		}
	}
	fc.chunk.Refs = append(refs, SourceRef{Offset: off, Span: fc.span})
}
