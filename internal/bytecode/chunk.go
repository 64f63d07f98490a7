package bytecode

import "github.com/xirelogy/go-lunar/internal/token"

// Chunk is a compiled bytecode sequence with its constant pool.
type Chunk struct {
	Code   []byte
	Consts []interface{}
	Refs   []SourceRef
}

// Prototype represents a compiled function. Prototypes are immutable once
// compiled and may be shared by any number of VMs.
type Prototype struct {
	Name      string
	Source    string
	NumParams int
	IsVararg  bool
	MaxLocals int
	Chunk     *Chunk
	Upvalues  []Upvalue
	Protos    []*Prototype
	Span      token.Span
}

// Upvalue describes a captured variable: a local slot of the enclosing
// function (IsLocal) or one of the enclosing function's upvalues.
type Upvalue struct {
	Name    string
	IsLocal bool
	Index   uint8
}

// SourceRef maps bytecode offsets to source spans (start-inclusive).
type SourceRef struct {
	Offset int
	Span   token.Span
}

// RefForOffset returns the source span of the instruction at offset.
func (c *Chunk) RefForOffset(offset int) (token.Span, bool) {
	var (
		span  token.Span
		found bool
	)
	for _, ref := range c.Refs {
		if ref.Offset > offset {
			break
		}
		span = ref.Span
		found = true
	}
	return span, found
}
