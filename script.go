package lunar

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/xirelogy/go-lunar/internal/bytecode"
	"github.com/xirelogy/go-lunar/internal/compiler"
	"github.com/xirelogy/go-lunar/internal/parser"
)

// Script is a compiled chunk. It is immutable and may be run by any number
// of VMs, concurrently.
type Script struct {
	id    uuid.UUID
	name  string
	proto *bytecode.Prototype
}

// Compile parses and compiles source. The chunk name is used in
// diagnostics. Syntax errors are reported as *SyntaxError.
func Compile(source, chunkName string) (*Script, error) {
	chunk, err := parser.Parse(source, chunkName)
	if err != nil {
		return nil, err
	}
	proto, err := compiler.Compile(chunk)
	if err != nil {
		return nil, err
	}
	return &Script{id: uuid.New(), name: chunkName, proto: proto}, nil
}

// CompileFile compiles the file at path, using the path as chunk name.
func CompileFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return Compile(string(data), path)
}

// ID identifies this compilation; it appears in run logs.
func (s *Script) ID() string { return s.id.String() }

// Name returns the chunk name given to Compile.
func (s *Script) Name() string { return s.name }

// Disassemble writes the bytecode of the script and its nested functions.
func (s *Script) Disassemble(w io.Writer) error {
	return bytecode.NewDisassembler(w).DisassemblePrototype(s.name, s.proto)
}
