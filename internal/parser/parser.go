package parser

import (
	"fmt"

	"github.com/xirelogy/go-lunar/internal/ast"
	"github.com/xirelogy/go-lunar/internal/lexer"
	"github.com/xirelogy/go-lunar/internal/token"
)

// SyntaxError reports a lexing or parsing failure with its source span.
type SyntaxError struct {
	Message string
	Chunk   string
	Span    token.Span
	// Premature is set when the error was caused by the input ending early,
	// so an interactive caller may ask for more lines.
	Premature bool
}

func (e *SyntaxError) Error() string {
	if e.Chunk == "" {
		return fmt.Sprintf("%d:%d: %s", e.Span.Start.Line, e.Span.Start.Column, e.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.Chunk, e.Span.Start.Line, e.Span.Start.Column, e.Message)
}

type bailout struct{}

type Parser struct {
	l         *lexer.Lexer
	chunk     string
	curToken  token.Token
	peekToken token.Token
	prevToken token.Token
	curErr    *lexer.Error
	peekErr   *lexer.Error
	fs        *funcState
	err       *SyntaxError
}

func New(l *lexer.Lexer) *Parser {
	return &Parser{l: l}
}

// Parse lexes and parses source as a chunk named chunkName.
func Parse(source, chunkName string) (*ast.Chunk, error) {
	p := New(lexer.New(source))
	p.chunk = chunkName
	return p.ParseChunk()
}

// Errors returns the formatted parse errors; parsing stops at the first one.
func (p *Parser) Errors() []string {
	if p.err == nil {
		return nil
	}
	return []string{p.err.Error()}
}

// Err returns the syntax error that stopped parsing, or nil.
func (p *Parser) Err() error {
	if p.err == nil {
		return nil
	}
	return p.err
}

// ParseChunk parses the whole input as the body of the main function.
func (p *Parser) ParseChunk() (chunk *ast.Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			chunk, err = nil, p.err
		}
	}()

	p.nextToken()
	p.nextToken()

	start := p.curToken.Pos
	p.fs = newFuncState(nil)
	p.fs.info.IsVararg = true
	body := &ast.Block{}
	p.fs.openBlock(body, false)
	p.statements(body)
	p.fs.closeBlock()
	if p.curToken.Type != token.EOF {
		p.errorf("'<eof>' expected near %s", p.describe(p.curToken))
	}
	span := token.Span{Start: start, End: p.prevToken.End}
	body.BlockSpan = span
	fn := &ast.FuncExpr{Name: "main chunk", Body: body, Info: p.fs.info, PosT: start, Sp: span}
	return &ast.Chunk{Name: p.chunk, Func: fn, NodeSpan: span}, nil
}

func (p *Parser) nextToken() {
	p.prevToken = p.curToken
	p.curToken = p.peekToken
	p.curErr = p.peekErr
	p.peekToken = p.l.NextToken()
	p.peekErr = nil
	if p.peekToken.Type == token.Illegal {
		p.peekErr = p.l.Err()
	}
	if p.curToken.Type == token.Illegal && p.curErr != nil {
		p.fail(p.curErr.Message, p.curErr.Span, p.curErr.Premature)
	}
}

func (p *Parser) fail(msg string, span token.Span, premature bool) {
	p.err = &SyntaxError{Message: msg, Chunk: p.chunk, Span: span, Premature: premature}
	panic(bailout{})
}

// errorf fails at the current token. Errors raised while looking at <eof>
// are premature.
func (p *Parser) errorf(format string, args ...any) {
	p.fail(fmt.Sprintf(format, args...), p.curToken.Span(), p.curToken.Type == token.EOF)
}

func (p *Parser) errorAt(span token.Span, format string, args ...any) {
	p.fail(fmt.Sprintf(format, args...), span, false)
}

func (p *Parser) describe(tok token.Token) string {
	if tok.Type == token.EOF {
		return "<eof>"
	}
	return fmt.Sprintf("'%s'", tok.Literal)
}

func (p *Parser) check(t token.Type) bool {
	return p.curToken.Type == t
}

func (p *Parser) accept(t token.Type) bool {
	if p.curToken.Type == t {
		p.nextToken()
		return true
	}
	return false
}

func (p *Parser) expect(t token.Type, what string) token.Token {
	if p.curToken.Type != t {
		p.errorf("'%s' expected near %s", what, p.describe(p.curToken))
	}
	tok := p.curToken
	p.nextToken()
	return tok
}

// expectMatch closes a construct opened by open, naming it in the error when
// the opener sits on another line.
func (p *Parser) expectMatch(t token.Type, what string, open token.Token) token.Token {
	if p.curToken.Type != t {
		if open.Pos.Line == p.curToken.Pos.Line {
			p.errorf("'%s' expected near %s", what, p.describe(p.curToken))
		}
		p.errorf("'%s' expected (to close '%s' at line %d) near %s", what, open.Literal, open.Pos.Line, p.describe(p.curToken))
	}
	tok := p.curToken
	p.nextToken()
	return tok
}

func (p *Parser) expectName() token.Token {
	if p.curToken.Type != token.Name {
		p.errorf("<name> expected near %s", p.describe(p.curToken))
	}
	tok := p.curToken
	p.nextToken()
	return tok
}

func (p *Parser) spanFrom(start token.Position) token.Span {
	return token.Span{Start: start, End: p.prevToken.End}
}

func blockFollow(t token.Type) bool {
	switch t {
	case token.Else, token.ElseIf, token.End, token.Until, token.EOF:
		return true
	}
	return false
}

// Statements

func (p *Parser) statements(b *ast.Block) {
	start := p.curToken.Pos
	for !blockFollow(p.curToken.Type) {
		if p.check(token.Return) {
			b.Statements = append(b.Statements, p.parseReturn())
			break
		}
		if stmt := p.parseStatement(); stmt != nil {
			b.Statements = append(b.Statements, stmt)
		}
	}
	b.BlockSpan = p.spanFrom(start)
}

// block parses a statement list in a fresh scope.
func (p *Parser) block(isLoop bool) *ast.Block {
	b := &ast.Block{}
	p.fs.openBlock(b, isLoop)
	p.statements(b)
	p.fs.closeBlock()
	return b
}

func (p *Parser) parseStatement() ast.Statement {
	switch p.curToken.Type {
	case token.Semicolon:
		p.nextToken()
		return nil
	case token.If:
		return p.parseIf()
	case token.While:
		return p.parseWhile()
	case token.Do:
		start := p.curToken
		p.nextToken()
		body := p.block(false)
		p.expectMatch(token.End, "end", start)
		return &ast.DoStmt{Body: body, StmtSpan: p.spanFrom(start.Pos)}
	case token.For:
		return p.parseFor()
	case token.Repeat:
		return p.parseRepeat()
	case token.Function:
		return p.parseFunctionStmt()
	case token.Local:
		if p.peekToken.Type == token.Function {
			return p.parseLocalFunction()
		}
		return p.parseLocal()
	case token.Break:
		tok := p.curToken
		p.nextToken()
		if !p.fs.inLoop() {
			p.errorAt(tok.Span(), "no loop to break")
		}
		return &ast.BreakStmt{StmtSpan: tok.Span()}
	default:
		return p.parseExprStatement()
	}
}

func (p *Parser) parseReturn() ast.Statement {
	start := p.curToken.Pos
	p.nextToken()
	ret := &ast.ReturnStmt{}
	if !blockFollow(p.curToken.Type) && !p.check(token.Semicolon) {
		ret.Values = p.parseExpressionList()
	}
	p.accept(token.Semicolon)
	ret.StmtSpan = p.spanFrom(start)
	if !blockFollow(p.curToken.Type) {
		p.errorf("'return' must be the last statement, found %s", p.describe(p.curToken))
	}
	return ret
}

func (p *Parser) parseIf() ast.Statement {
	open := p.curToken
	stmt := &ast.IfStmt{}
	for {
		clauseStart := p.curToken.Pos
		p.nextToken() // 'if' or 'elseif'
		cond := p.parseExpression(0)
		p.expect(token.Then, "then")
		body := p.block(false)
		stmt.Clauses = append(stmt.Clauses, ast.IfClause{Condition: cond, Body: body, Span: p.spanFrom(clauseStart)})
		if !p.check(token.ElseIf) {
			break
		}
	}
	if p.accept(token.Else) {
		stmt.Else = p.block(false)
	}
	p.expectMatch(token.End, "end", open)
	stmt.IfSpan = p.spanFrom(open.Pos)
	return stmt
}

func (p *Parser) parseWhile() ast.Statement {
	open := p.curToken
	p.nextToken()
	stmt := &ast.WhileStmt{}
	stmt.Condition = p.parseExpression(0)
	p.expect(token.Do, "do")
	stmt.Body = p.block(true)
	p.expectMatch(token.End, "end", open)
	stmt.NodeSpan = p.spanFrom(open.Pos)
	return stmt
}

func (p *Parser) parseRepeat() ast.Statement {
	open := p.curToken
	p.nextToken()
	stmt := &ast.RepeatStmt{Body: &ast.Block{}}
	p.fs.openBlock(stmt.Body, true)
	p.statements(stmt.Body)
	p.expectMatch(token.Until, "until", open)
	stmt.Condition = p.parseExpression(0)
	p.fs.closeBlock()
	stmt.NodeSpan = p.spanFrom(open.Pos)
	return stmt
}

func (p *Parser) parseFor() ast.Statement {
	open := p.curToken
	p.nextToken()
	first := p.expectName()
	switch p.curToken.Type {
	case token.Assign:
		return p.parseNumericFor(open, first)
	case token.Comma, token.In:
		return p.parseGenericFor(open, first)
	default:
		p.errorf("'=' or 'in' expected near %s", p.describe(p.curToken))
		return nil
	}
}

// declareHidden activates n internal locals used by loop bookkeeping.
func (p *Parser) declareHidden(names ...string) int {
	base := len(p.fs.actives)
	for i, name := range names {
		lv, ok := p.fs.newLocal(name, i)
		if !ok {
			p.errorf("too many local variables")
		}
		p.fs.activate(lv)
	}
	return base
}

func (p *Parser) parseNumericFor(open, name token.Token) ast.Statement {
	stmt := &ast.NumericForStmt{}
	p.nextToken() // '='
	stmt.Start = p.parseExpression(0)
	p.expect(token.Comma, ",")
	stmt.Limit = p.parseExpression(0)
	if p.accept(token.Comma) {
		stmt.Step = p.parseExpression(0)
	}
	p.expect(token.Do, "do")

	p.fs.openBlock(nil, false)
	stmt.BaseSlot = p.declareHidden("(for index)", "(for limit)", "(for step)")
	body := &ast.Block{}
	p.fs.openBlock(body, true)
	lv, ok := p.fs.newLocal(name.Literal, 0)
	if !ok {
		p.errorf("too many local variables")
	}
	lv.PosT, lv.Sp = name.Pos, name.Span()
	p.fs.activate(lv)
	stmt.Var = lv
	p.statements(body)
	p.fs.closeBlock()
	p.fs.closeBlock()
	stmt.Body = body

	p.expectMatch(token.End, "end", open)
	stmt.NodeSpan = p.spanFrom(open.Pos)
	return stmt
}

func (p *Parser) parseGenericFor(open, first token.Token) ast.Statement {
	names := []token.Token{first}
	for p.accept(token.Comma) {
		names = append(names, p.expectName())
	}
	p.expect(token.In, "in")
	stmt := &ast.GenericForStmt{}
	stmt.Exprs = p.parseExpressionList()
	p.expect(token.Do, "do")

	p.fs.openBlock(nil, false)
	stmt.BaseSlot = p.declareHidden("(for generator)", "(for state)", "(for control)")
	body := &ast.Block{}
	p.fs.openBlock(body, true)
	for i, n := range names {
		lv, ok := p.fs.newLocal(n.Literal, i)
		if !ok {
			p.errorf("too many local variables")
		}
		lv.PosT, lv.Sp = n.Pos, n.Span()
		stmt.Vars = append(stmt.Vars, lv)
	}
	p.fs.activate(stmt.Vars...)
	p.statements(body)
	p.fs.closeBlock()
	p.fs.closeBlock()
	stmt.Body = body

	p.expectMatch(token.End, "end", open)
	stmt.NodeSpan = p.spanFrom(open.Pos)
	return stmt
}

func (p *Parser) parseFunctionStmt() ast.Statement {
	open := p.curToken
	p.nextToken()
	nameTok := p.expectName()
	var target ast.Expression = p.identifier(nameTok)
	fullName := nameTok.Literal
	isMethod := false
	for p.check(token.Dot) || p.check(token.Colon) {
		isMethod = p.check(token.Colon)
		sep := p.curToken.Literal
		p.nextToken()
		field := p.expectName()
		fullName += sep + field.Literal
		target = &ast.MemberExpr{Left: target, Property: field.Literal, PosT: field.Pos, Sp: p.spanFrom(nameTok.Pos)}
		if isMethod {
			break
		}
	}
	fn := p.parseFuncBody(open, fullName, isMethod)
	return &ast.FunctionStmt{Target: target, Func: fn, NodeSpan: p.spanFrom(open.Pos)}
}

func (p *Parser) parseLocalFunction() ast.Statement {
	start := p.curToken.Pos
	p.nextToken() // 'local'
	open := p.curToken
	p.nextToken() // 'function'
	name := p.expectName()
	lv, ok := p.fs.newLocal(name.Literal, 0)
	if !ok {
		p.errorf("too many local variables")
	}
	lv.PosT, lv.Sp = name.Pos, name.Span()
	p.fs.activate(lv)
	fn := p.parseFuncBody(open, name.Literal, false)
	return &ast.LocalFunctionStmt{Var: lv, Func: fn, NodeSpan: p.spanFrom(start)}
}

func (p *Parser) parseLocal() ast.Statement {
	start := p.curToken.Pos
	p.nextToken()
	stmt := &ast.LocalStmt{PosT: start}
	for {
		name := p.expectName()
		lv, ok := p.fs.newLocal(name.Literal, len(stmt.Names))
		if !ok {
			p.errorAt(name.Span(), "too many local variables")
		}
		lv.PosT, lv.Sp = name.Pos, name.Span()
		stmt.Names = append(stmt.Names, lv)
		if !p.accept(token.Comma) {
			break
		}
	}
	if p.accept(token.Assign) {
		stmt.Values = p.parseExpressionList()
	}
	p.fs.activate(stmt.Names...)
	stmt.StmtSpan = p.spanFrom(start)
	return stmt
}

func (p *Parser) parseExprStatement() ast.Statement {
	start := p.curToken.Pos
	expr := p.parseSuffixedExpression()
	if p.check(token.Assign) || p.check(token.Comma) {
		targets := []ast.Expression{p.assignable(expr)}
		for p.accept(token.Comma) {
			targets = append(targets, p.assignable(p.parseSuffixedExpression()))
		}
		p.expect(token.Assign, "=")
		stmt := &ast.AssignStmt{Targets: targets, PosT: start}
		stmt.Values = p.parseExpressionList()
		if len(targets) > 1 {
			for i := range targets {
				slot := len(p.fs.actives) + i
				if slot >= maxLocals {
					p.errorAt(p.spanFrom(start), "too many local variables")
				}
				stmt.TempSlots = append(stmt.TempSlots, slot)
			}
			p.fs.reserve(len(targets))
		}
		stmt.StmtSpan = p.spanFrom(start)
		return stmt
	}
	switch expr.(type) {
	case *ast.CallExpr, *ast.MethodCallExpr:
		return &ast.CallStmt{Call: expr, StmtSpan: p.spanFrom(start)}
	}
	p.errorAt(expr.Span(), "syntax error near %s", p.describe(p.curToken))
	return nil
}

func (p *Parser) assignable(expr ast.Expression) ast.Expression {
	switch expr.(type) {
	case *ast.Identifier, *ast.IndexExpr, *ast.MemberExpr, *ast.MultiIndexExpr:
		return expr
	}
	p.errorAt(expr.Span(), "cannot assign to this expression")
	return nil
}

// Functions

func (p *Parser) parseFuncBody(open token.Token, name string, isMethod bool) *ast.FuncExpr {
	fn := &ast.FuncExpr{Name: name, PosT: open.Pos}
	fs := newFuncState(p.fs)
	p.fs = fs
	fn.Info = fs.info
	fn.Body = &ast.Block{}
	fs.openBlock(fn.Body, false)

	if isMethod {
		self, _ := fs.newLocal("self", 0)
		fs.activate(self)
		fn.Params = append(fn.Params, self)
	}
	p.expect(token.LParen, "(")
	p.parseParamList(fn)
	fs.info.NumParams = len(fn.Params)

	p.statements(fn.Body)
	p.expectMatch(token.End, "end", open)
	fs.closeBlock()
	p.fs = fs.enclosing
	fn.Sp = p.spanFrom(open.Pos)
	return fn
}

func (p *Parser) parseParamList(fn *ast.FuncExpr) {
	if p.accept(token.RParen) {
		return
	}
	for {
		switch p.curToken.Type {
		case token.Name:
			name := p.curToken
			p.nextToken()
			lv, ok := p.fs.newLocal(name.Literal, 0)
			if !ok {
				p.errorAt(name.Span(), "too many local variables")
			}
			lv.PosT, lv.Sp = name.Pos, name.Span()
			p.fs.activate(lv)
			fn.Params = append(fn.Params, lv)
		case token.Ellipsis:
			p.nextToken()
			p.fs.info.IsVararg = true
			if !p.check(token.RParen) {
				p.errorf("malformed parameter list: '...' must be last near %s", p.describe(p.curToken))
			}
		default:
			p.errorf("malformed parameter list near %s", p.describe(p.curToken))
		}
		if p.accept(token.RParen) {
			return
		}
		if !p.accept(token.Comma) {
			p.errorf("')' expected near %s", p.describe(p.curToken))
		}
		if p.check(token.RParen) {
			p.errorf("malformed parameter list near ')'")
		}
	}
}

// Expressions

type priority struct{ left, right int }

var binaryPriority = map[token.Type]priority{
	token.Or:           {1, 1},
	token.And:          {2, 2},
	token.Less:         {3, 3},
	token.LessEqual:    {3, 3},
	token.Greater:      {3, 3},
	token.GreaterEqual: {3, 3},
	token.Equal:        {3, 3},
	token.NotEqual:     {3, 3},
	token.Concat:       {9, 8}, // right associative
	token.Plus:         {10, 10},
	token.Minus:        {10, 10},
	token.Star:         {11, 11},
	token.Slash:        {11, 11},
	token.Percent:      {11, 11},
	token.Caret:        {14, 13}, // right associative
}

const unaryPriority = 12

func (p *Parser) parseExpressionList() []ast.Expression {
	list := []ast.Expression{p.parseExpression(0)}
	for p.accept(token.Comma) {
		list = append(list, p.parseExpression(0))
	}
	return list
}

// parseExpression climbs operator precedence: only operators binding tighter
// than limit are folded into the result.
func (p *Parser) parseExpression(limit int) ast.Expression {
	var left ast.Expression
	switch p.curToken.Type {
	case token.Not, token.Minus, token.Hash:
		op := p.curToken
		p.nextToken()
		operand := p.parseExpression(unaryPriority)
		if num, ok := operand.(*ast.NumberLiteral); ok && op.Type == token.Minus {
			left = &ast.NumberLiteral{Value: -num.Value, Raw: "-" + num.Raw, PosT: op.Pos, Sp: p.spanFrom(op.Pos)}
		} else {
			left = &ast.UnaryExpr{Operator: op.Type, Right: operand, PosT: op.Pos, Sp: p.spanFrom(op.Pos)}
		}
	default:
		left = p.parseSimpleExpression()
	}

	for {
		op := p.curToken
		prio, ok := binaryPriority[op.Type]
		if !ok || prio.left <= limit {
			return left
		}
		p.nextToken()
		right := p.parseExpression(prio.right)
		left = &ast.BinaryExpr{
			Left:     left,
			Operator: op.Type,
			Right:    right,
			PosT:     op.Pos,
			Sp:       token.Span{Start: left.Span().Start, End: right.Span().End},
		}
	}
}

func (p *Parser) parseSimpleExpression() ast.Expression {
	tok := p.curToken
	switch tok.Type {
	case token.Number:
		p.nextToken()
		v, _ := lexer.ParseNumber(tok.Literal)
		return &ast.NumberLiteral{Value: v, Raw: tok.Literal, PosT: tok.Pos, Sp: tok.Span()}
	case token.String:
		p.nextToken()
		return &ast.StringLiteral{Value: tok.Literal, PosT: tok.Pos, Sp: tok.Span()}
	case token.Nil:
		p.nextToken()
		return &ast.NilLiteral{PosT: tok.Pos, Sp: tok.Span()}
	case token.True, token.False:
		p.nextToken()
		return &ast.BoolLiteral{Value: tok.Type == token.True, PosT: tok.Pos, Sp: tok.Span()}
	case token.Ellipsis:
		if !p.fs.info.IsVararg {
			p.errorf("cannot use '...' outside a vararg function")
		}
		p.nextToken()
		return &ast.VarargExpr{PosT: tok.Pos, Sp: tok.Span()}
	case token.LBrace:
		return p.parseTable()
	case token.Function:
		p.nextToken()
		return p.parseFuncBody(tok, "anonymous", false)
	default:
		return p.parseSuffixedExpression()
	}
}

func (p *Parser) identifier(tok token.Token) *ast.Identifier {
	ref, ok := p.fs.resolve(tok.Literal)
	if !ok {
		p.errorAt(tok.Span(), "too many upvalues")
	}
	return &ast.Identifier{Name: tok.Literal, Ref: ref, PosT: tok.Pos, Sp: tok.Span()}
}

func (p *Parser) parsePrimaryExpression() ast.Expression {
	tok := p.curToken
	switch tok.Type {
	case token.Name:
		p.nextToken()
		return p.identifier(tok)
	case token.LParen:
		p.nextToken()
		inner := p.parseExpression(0)
		p.expectMatch(token.RParen, ")", tok)
		return &ast.ParenExpr{Inner: inner, PosT: tok.Pos, Sp: p.spanFrom(tok.Pos)}
	default:
		p.errorf("unexpected symbol near %s", p.describe(tok))
		return nil
	}
}

func (p *Parser) parseSuffixedExpression() ast.Expression {
	start := p.curToken.Pos
	expr := p.parsePrimaryExpression()
	for {
		tok := p.curToken
		switch tok.Type {
		case token.Dot:
			p.nextToken()
			name := p.expectName()
			expr = &ast.MemberExpr{Left: expr, Property: name.Literal, PosT: tok.Pos, Sp: p.spanFrom(start)}
		case token.LBracket:
			p.nextToken()
			indices := p.parseExpressionList()
			p.expectMatch(token.RBracket, "]", tok)
			if len(indices) == 1 {
				expr = &ast.IndexExpr{Left: expr, Index: indices[0], PosT: tok.Pos, Sp: p.spanFrom(start)}
			} else {
				expr = &ast.MultiIndexExpr{Left: expr, Indices: indices, PosT: tok.Pos, Sp: p.spanFrom(start)}
			}
		case token.Colon:
			p.nextToken()
			name := p.expectName()
			args := p.parseCallArgs()
			expr = &ast.MethodCallExpr{Receiver: expr, Method: name.Literal, Arguments: args, PosT: tok.Pos, Sp: p.spanFrom(start)}
		case token.LParen:
			// a parenthesis opening a new line starts the next statement
			if tok.Pos.Line != p.prevToken.End.Line {
				return expr
			}
			args := p.parseCallArgs()
			expr = &ast.CallExpr{Callee: expr, Arguments: args, PosT: tok.Pos, Sp: p.spanFrom(start)}
		case token.String, token.LBrace:
			args := p.parseCallArgs()
			expr = &ast.CallExpr{Callee: expr, Arguments: args, PosT: tok.Pos, Sp: p.spanFrom(start)}
		default:
			return expr
		}
	}
}

func (p *Parser) parseCallArgs() []ast.Expression {
	tok := p.curToken
	switch tok.Type {
	case token.String:
		p.nextToken()
		return []ast.Expression{&ast.StringLiteral{Value: tok.Literal, PosT: tok.Pos, Sp: tok.Span()}}
	case token.LBrace:
		return []ast.Expression{p.parseTable()}
	case token.LParen:
		p.nextToken()
		if p.accept(token.RParen) {
			return nil
		}
		args := p.parseExpressionList()
		p.expectMatch(token.RParen, ")", tok)
		return args
	default:
		p.errorf("function arguments expected near %s", p.describe(tok))
		return nil
	}
}

func (p *Parser) parseTable() ast.Expression {
	open := p.curToken
	p.nextToken()
	tbl := &ast.TableExpr{PosT: open.Pos}
	for !p.check(token.RBrace) {
		switch {
		case p.check(token.LBracket):
			p.nextToken()
			key := p.parseExpression(0)
			p.expect(token.RBracket, "]")
			p.expect(token.Assign, "=")
			tbl.Fields = append(tbl.Fields, ast.TableField{Kind: ast.FieldKeyed, Key: key, Value: p.parseExpression(0)})
		case p.check(token.Name) && p.peekToken.Type == token.Assign:
			name := p.curToken
			p.nextToken()
			p.nextToken()
			key := &ast.StringLiteral{Value: name.Literal, PosT: name.Pos, Sp: name.Span()}
			tbl.Fields = append(tbl.Fields, ast.TableField{Kind: ast.FieldNamed, Name: name.Literal, Key: key, Value: p.parseExpression(0)})
		default:
			tbl.Fields = append(tbl.Fields, ast.TableField{Kind: ast.FieldPositional, Value: p.parseExpression(0)})
		}
		if !p.accept(token.Comma) && !p.accept(token.Semicolon) {
			break
		}
	}
	p.expectMatch(token.RBrace, "}", open)
	tbl.Sp = p.spanFrom(open.Pos)
	return tbl
}
