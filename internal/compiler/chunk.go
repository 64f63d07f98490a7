package compiler

import "github.com/xirelogy/go-lunar/internal/bytecode"

type Chunk = bytecode.Chunk
type Prototype = bytecode.Prototype
type Upvalue = bytecode.Upvalue
type SourceRef = bytecode.SourceRef
