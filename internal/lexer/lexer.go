package lexer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xirelogy/go-lunar/internal/token"
)

// Error describes a lexing failure.
type Error struct {
	Message string
	Span    token.Span
	// Premature is set when the input ended inside a token.
	Premature bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Span.Start.Line, e.Span.Start.Column, e.Message)
}

// Lexer converts source text into a stream of tokens. Tokens are produced
// lazily; all state lives in the Lexer so several can run at once.
type Lexer struct {
	input   string
	pos     int  // current position in bytes
	readPos int  // next read position
	ch      byte // current char
	line    int
	column  int
	prev    token.Position
	base    int
	err     *Error
}

// New creates a lexer for the provided source text.
func New(input string) *Lexer {
	return NewAt(input, token.Position{Line: 1, Column: 1})
}

// NewAt creates a lexer for a fragment embedded in a larger source. Positions
// are reported relative to base.
func NewAt(input string, base token.Position) *Lexer {
	if base.Line == 0 {
		base.Line = 1
	}
	if base.Column == 0 {
		base.Column = 1
	}
	l := &Lexer{
		input:  input,
		line:   base.Line,
		column: base.Column - 1,
		base:   base.Offset,
	}
	l.readChar()
	return l
}

// Err returns the error behind the last Illegal token, if any.
func (l *Lexer) Err() *Error {
	return l.err
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() token.Token {
	for {
		l.skipWhitespace()

		if l.ch == 0 && l.pos >= len(l.input) {
			tok := l.makeToken(token.EOF)
			tok.End = tok.Pos
			return tok
		}

		if l.ch == '-' && l.peekChar() == '-' {
			if tok, failed := l.skipComment(); failed {
				return tok
			}
			continue
		}

		tok := l.makeToken(token.Illegal)
		switch l.ch {
		case '=':
			return l.either('=', token.Equal, token.Assign, tok)
		case '<':
			return l.either('=', token.LessEqual, token.Less, tok)
		case '>':
			return l.either('=', token.GreaterEqual, token.Greater, tok)
		case '~', '!':
			if l.peekChar() == '=' {
				l.readChar()
				l.readChar()
				return l.finish(tok, token.NotEqual, "~=")
			}
			ch := l.ch
			l.readChar()
			return l.fail(tok, fmt.Sprintf("unexpected symbol near '%c'", ch), false)
		case '+':
			return l.single(tok, token.Plus)
		case '-':
			return l.single(tok, token.Minus)
		case '*':
			return l.single(tok, token.Star)
		case '/':
			return l.single(tok, token.Slash)
		case '%':
			return l.single(tok, token.Percent)
		case '^':
			return l.single(tok, token.Caret)
		case '#':
			return l.single(tok, token.Hash)
		case ',':
			return l.single(tok, token.Comma)
		case ';':
			return l.single(tok, token.Semicolon)
		case ':':
			return l.single(tok, token.Colon)
		case '(':
			return l.single(tok, token.LParen)
		case ')':
			return l.single(tok, token.RParen)
		case '{':
			return l.single(tok, token.LBrace)
		case '}':
			return l.single(tok, token.RBrace)
		case ']':
			return l.single(tok, token.RBracket)
		case '[':
			if level := l.longBracketLevel(); level >= 0 {
				s, ok, premature := l.readLongBracket(level)
				if !ok {
					return l.fail(tok, "unfinished long string", premature)
				}
				return l.finish(tok, token.String, s)
			}
			return l.single(tok, token.LBracket)
		case '.':
			if l.peekChar() == '.' {
				l.readChar()
				l.readChar()
				if l.ch == '.' {
					l.readChar()
					return l.finish(tok, token.Ellipsis, "...")
				}
				return l.finish(tok, token.Concat, "..")
			}
			if isDigit(l.peekChar()) {
				return l.readNumber(tok)
			}
			return l.single(tok, token.Dot)
		case '"', '\'':
			return l.readString(tok)
		default:
			if isLetter(l.ch) {
				return l.readIdentifier(tok)
			}
			if isDigit(l.ch) {
				return l.readNumber(tok)
			}
			ch := l.ch
			l.readChar()
			return l.fail(tok, fmt.Sprintf("unexpected symbol near '%c'", ch), false)
		}
	}
}

func (l *Lexer) makeToken(t token.Type) token.Token {
	return token.Token{Type: t, Pos: l.position()}
}

func (l *Lexer) position() token.Position {
	return token.Position{Offset: l.base + l.pos, Line: l.line, Column: l.column}
}

func (l *Lexer) finish(tok token.Token, t token.Type, lit string) token.Token {
	tok.Type = t
	tok.Literal = lit
	tok.End = l.prev
	return tok
}

func (l *Lexer) fail(tok token.Token, msg string, premature bool) token.Token {
	tok.Type = token.Illegal
	tok.Literal = msg
	tok.End = l.prev
	if tok.End.Offset < tok.Pos.Offset {
		tok.End = tok.Pos
	}
	l.err = &Error{Message: msg, Span: tok.Span(), Premature: premature}
	return tok
}

func (l *Lexer) single(tok token.Token, t token.Type) token.Token {
	lit := string(l.ch)
	l.readChar()
	return l.finish(tok, t, lit)
}

func (l *Lexer) either(next byte, two, one token.Type, tok token.Token) token.Token {
	first := l.ch
	if l.peekChar() == next {
		l.readChar()
		l.readChar()
		return l.finish(tok, two, string([]byte{first, next}))
	}
	return l.single(tok, one)
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\n' || l.ch == '\v' || l.ch == '\f' {
		l.readChar()
	}
}

// skipComment consumes a line or long comment starting at "--".
func (l *Lexer) skipComment() (token.Token, bool) {
	tok := l.makeToken(token.Illegal)
	l.readChar()
	l.readChar()
	if l.ch == '[' {
		if level := l.longBracketLevel(); level >= 0 {
			if _, ok, premature := l.readLongBracket(level); !ok {
				return l.fail(tok, "unfinished long comment", premature), true
			}
			return token.Token{}, false
		}
	}
	for l.ch != '\n' && !(l.ch == 0 && l.pos >= len(l.input)) {
		l.readChar()
	}
	return token.Token{}, false
}

// longBracketLevel reports the level of a long bracket opening at the
// current '[' or -1 when it is not one. Nothing is consumed.
func (l *Lexer) longBracketLevel() int {
	i := l.pos + 1
	level := 0
	for i < len(l.input) && l.input[i] == '=' {
		level++
		i++
	}
	if i < len(l.input) && l.input[i] == '[' {
		return level
	}
	return -1
}

func (l *Lexer) readLongBracket(level int) (string, bool, bool) {
	for i := 0; i < level+2; i++ {
		l.readChar()
	}
	// a newline right after the opening bracket is skipped
	if l.ch == '\r' {
		l.readChar()
	}
	if l.ch == '\n' {
		l.readChar()
	}
	var sb strings.Builder
	for {
		if l.ch == 0 && l.pos >= len(l.input) {
			return "", false, true
		}
		if l.ch == ']' && l.closesLongBracket(level) {
			for i := 0; i < level+2; i++ {
				l.readChar()
			}
			return sb.String(), true, false
		}
		sb.WriteByte(l.ch)
		l.readChar()
	}
}

func (l *Lexer) closesLongBracket(level int) bool {
	i := l.pos + 1
	for n := 0; n < level; n++ {
		if i >= len(l.input) || l.input[i] != '=' {
			return false
		}
		i++
	}
	return i < len(l.input) && l.input[i] == ']'
}

func (l *Lexer) readIdentifier(tok token.Token) token.Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	lit := l.input[start:l.pos]
	return l.finish(tok, token.LookupIdent(lit), lit)
}

func (l *Lexer) readNumber(tok token.Token) token.Token {
	start := l.pos
	exp := "Ee"
	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		exp = "Pp"
	}
	for {
		if strings.IndexByte(exp, l.ch) >= 0 && (l.peekChar() == '+' || l.peekChar() == '-') {
			l.readChar()
			l.readChar()
			continue
		}
		if isLetter(l.ch) || isDigit(l.ch) || l.ch == '.' {
			l.readChar()
			continue
		}
		break
	}
	lit := l.input[start:l.pos]
	if _, ok := ParseNumber(lit); !ok {
		return l.fail(tok, fmt.Sprintf("malformed number near '%s'", lit), false)
	}
	return l.finish(tok, token.Number, lit)
}

// ParseNumber converts a numeric literal or a numeric string using the
// language rules (decimal with optional exponent, or hexadecimal).
func ParseNumber(lit string) (float64, bool) {
	s := strings.TrimSpace(lit)
	if s == "" {
		return 0, false
	}
	neg := false
	body := s
	if body[0] == '-' || body[0] == '+' {
		neg = body[0] == '-'
		body = body[1:]
	}
	if len(body) > 2 && body[0] == '0' && (body[1] == 'x' || body[1] == 'X') {
		digits := body[2:]
		if strings.ContainsAny(digits, ".pP") {
			f, err := strconv.ParseFloat(body, 64)
			if err != nil {
				return 0, false
			}
			if neg {
				f = -f
			}
			return f, true
		}
		n, err := strconv.ParseUint(digits, 16, 64)
		if err != nil {
			return 0, false
		}
		f := float64(n)
		if neg {
			f = -f
		}
		return f, true
	}
	for i := 0; i < len(body); i++ {
		c := body[i]
		if !isDigit(c) && c != '.' && c != 'e' && c != 'E' && c != '+' && c != '-' {
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(body, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); !ok || ne.Err != strconv.ErrRange {
			return 0, false
		}
	}
	if neg {
		f = -f
	}
	return f, true
}

func (l *Lexer) readString(tok token.Token) token.Token {
	quote := l.ch
	var sb strings.Builder
	l.readChar()
	for {
		switch {
		case l.ch == 0 && l.pos >= len(l.input):
			return l.fail(tok, "unfinished string", true)
		case l.ch == '\n':
			return l.fail(tok, "unfinished string", false)
		case l.ch == quote:
			l.readChar()
			return l.finish(tok, token.String, sb.String())
		case l.ch == '\\':
			escTok := l.makeToken(token.Illegal)
			l.readChar()
			if l.ch == 0 && l.pos >= len(l.input) {
				return l.fail(tok, "unfinished string", true)
			}
			if msg := l.readEscape(&sb); msg != "" {
				bad := l.fail(escTok, msg, false)
				l.skipToQuote(quote)
				return bad
			}
		default:
			sb.WriteByte(l.ch)
			l.readChar()
		}
	}
}

// skipToQuote resynchronises after a bad escape so the token stream can
// continue past the string.
func (l *Lexer) skipToQuote(quote byte) {
	for l.ch != quote && l.ch != '\n' && !(l.ch == 0 && l.pos >= len(l.input)) {
		l.readChar()
	}
	if l.ch == quote {
		l.readChar()
	}
}

func (l *Lexer) readEscape(sb *strings.Builder) string {
	switch l.ch {
	case 'a':
		sb.WriteByte('\a')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'n':
		sb.WriteByte('\n')
	case 'r':
		sb.WriteByte('\r')
	case 't':
		sb.WriteByte('\t')
	case 'v':
		sb.WriteByte('\v')
	case '\\', '"', '\'':
		sb.WriteByte(l.ch)
	case '\n':
		sb.WriteByte('\n')
	case 'z':
		l.readChar()
		l.skipWhitespace()
		return ""
	case 'x':
		var v byte
		for i := 0; i < 2; i++ {
			l.readChar()
			d, ok := hexValue(l.ch)
			if !ok {
				return "invalid escape sequence '\\x'"
			}
			v = v<<4 | d
		}
		sb.WriteByte(v)
	case 'u':
		l.readChar()
		if l.ch != '{' {
			return "invalid escape sequence '\\u'"
		}
		var r rune
		digits := 0
		for {
			l.readChar()
			if l.ch == '}' {
				break
			}
			d, ok := hexValue(l.ch)
			if !ok || digits >= 8 {
				return "invalid escape sequence '\\u'"
			}
			r = r<<4 | rune(d)
			digits++
		}
		if digits == 0 || r > utf8.MaxRune {
			return "invalid escape sequence '\\u'"
		}
		sb.WriteRune(r)
	default:
		if isDigit(l.ch) {
			v := 0
			for i := 0; i < 3 && isDigit(l.ch); i++ {
				v = v*10 + int(l.ch-'0')
				l.readChar()
			}
			if v > 255 {
				return "decimal escape too large"
			}
			sb.WriteByte(byte(v))
			return ""
		}
		return fmt.Sprintf("invalid escape sequence '\\%c'", l.ch)
	}
	l.readChar()
	return ""
}

func hexValue(ch byte) (byte, bool) {
	switch {
	case ch >= '0' && ch <= '9':
		return ch - '0', true
	case ch >= 'a' && ch <= 'f':
		return ch - 'a' + 10, true
	case ch >= 'A' && ch <= 'F':
		return ch - 'A' + 10, true
	}
	return 0, false
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) readChar() {
	if l.readPos > 0 {
		if l.pos >= len(l.input) {
			return
		}
		l.prev = l.position()
		if l.ch == '\n' {
			l.line++
			l.column = 0
		}
	}
	if l.readPos >= len(l.input) {
		l.pos = len(l.input)
		l.readPos = len(l.input) + 1
		l.ch = 0
		l.column++
		return
	}

	l.ch = l.input[l.readPos]
	l.pos = l.readPos
	l.readPos++
	l.column++
}
