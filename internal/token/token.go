package token

import "fmt"

// Type identifies the category of a token.
type Type string

// Token carries the lexical item along with its source span.
type Token struct {
	Type    Type
	Literal string
	Pos     Position
	End     Position
}

// Span returns the source range covered by the token.
func (t Token) Span() Span {
	return Span{Start: t.Pos, End: t.End}
}

// Position describes a byte offset and 1-based line/column.
type Position struct {
	Offset int
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Span represents an inclusive start and end position for a node.
type Span struct {
	Start Position
	End   Position
}

// Merge returns a span covering both s and o.
func (s Span) Merge(o Span) Span {
	out := s
	if o.Start.Offset < out.Start.Offset {
		out.Start = o.Start
	}
	if o.End.Offset > out.End.Offset {
		out.End = o.End
	}
	return out
}

func (s Span) String() string {
	if s.Start.Line == s.End.Line {
		return fmt.Sprintf("(%d,%d-%d)", s.Start.Line, s.Start.Column, s.End.Column)
	}
	return fmt.Sprintf("(%d,%d-%d,%d)", s.Start.Line, s.Start.Column, s.End.Line, s.End.Column)
}

const (
	Illegal Type = "ILLEGAL"
	EOF     Type = "EOF"

	// identifiers and literals
	Name   Type = "NAME"
	Number Type = "NUMBER"
	String Type = "STRING"

	// keywords
	And      Type = "AND"
	Break    Type = "BREAK"
	Do       Type = "DO"
	Else     Type = "ELSE"
	ElseIf   Type = "ELSEIF"
	End      Type = "END"
	False    Type = "FALSE"
	For      Type = "FOR"
	Function Type = "FUNCTION"
	If       Type = "IF"
	In       Type = "IN"
	Local    Type = "LOCAL"
	Nil      Type = "NIL"
	Not      Type = "NOT"
	Or       Type = "OR"
	Repeat   Type = "REPEAT"
	Return   Type = "RETURN"
	Then     Type = "THEN"
	True     Type = "TRUE"
	Until    Type = "UNTIL"
	While    Type = "WHILE"

	// operators
	Assign       Type = "ASSIGN"       // =
	Plus         Type = "PLUS"         // +
	Minus        Type = "MINUS"        // -
	Star         Type = "STAR"         // *
	Slash        Type = "SLASH"        // /
	Percent      Type = "PERCENT"      // %
	Caret        Type = "CARET"        // ^
	Hash         Type = "HASH"         // #
	Equal        Type = "EQUAL"        // ==
	NotEqual     Type = "NOTEQUAL"     // ~= or !=
	Less         Type = "LESS"         // <
	LessEqual    Type = "LESSEQUAL"    // <=
	Greater      Type = "GREATER"      // >
	GreaterEqual Type = "GREATEREQUAL" // >=
	Concat       Type = "CONCAT"       // ..
	Ellipsis     Type = "ELLIPSIS"     // ...

	// delimiters
	Comma     Type = "COMMA"
	Semicolon Type = "SEMICOLON"
	Colon     Type = "COLON"
	Dot       Type = "DOT"
	LParen    Type = "LPAREN"
	RParen    Type = "RPAREN"
	LBrace    Type = "LBRACE"
	RBrace    Type = "RBRACE"
	LBracket  Type = "LBRACKET"
	RBracket  Type = "RBRACKET"
)

var keywords = map[string]Type{
	"and":      And,
	"break":    Break,
	"do":       Do,
	"else":     Else,
	"elseif":   ElseIf,
	"end":      End,
	"false":    False,
	"for":      For,
	"function": Function,
	"if":       If,
	"in":       In,
	"local":    Local,
	"nil":      Nil,
	"not":      Not,
	"or":       Or,
	"repeat":   Repeat,
	"return":   Return,
	"then":     Then,
	"true":     True,
	"until":    Until,
	"while":    While,
}

// LookupIdent returns the keyword token type or Name.
func LookupIdent(ident string) Type {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return Name
}

// IsKeyword reports whether ident is reserved.
func IsKeyword(ident string) bool {
	_, ok := keywords[ident]
	return ok
}
