package compiler

import "github.com/xirelogy/go-lunar/internal/bytecode"

const (
	OP_CONST         = bytecode.OP_CONST
	OP_NIL           = bytecode.OP_NIL
	OP_TRUE          = bytecode.OP_TRUE
	OP_FALSE         = bytecode.OP_FALSE
	OP_POP           = bytecode.OP_POP
	OP_VARARG        = bytecode.OP_VARARG
	OP_ADD           = bytecode.OP_ADD
	OP_SUB           = bytecode.OP_SUB
	OP_MUL           = bytecode.OP_MUL
	OP_DIV           = bytecode.OP_DIV
	OP_MOD           = bytecode.OP_MOD
	OP_POW           = bytecode.OP_POW
	OP_NEG           = bytecode.OP_NEG
	OP_NOT           = bytecode.OP_NOT
	OP_EQ            = bytecode.OP_EQ
	OP_NEQ           = bytecode.OP_NEQ
	OP_LT            = bytecode.OP_LT
	OP_LTE           = bytecode.OP_LTE
	OP_GT            = bytecode.OP_GT
	OP_GTE           = bytecode.OP_GTE
	OP_CONCAT        = bytecode.OP_CONCAT
	OP_LEN           = bytecode.OP_LEN
	OP_GET_GLOBAL    = bytecode.OP_GET_GLOBAL
	OP_SET_GLOBAL    = bytecode.OP_SET_GLOBAL
	OP_GET_LOCAL     = bytecode.OP_GET_LOCAL
	OP_SET_LOCAL     = bytecode.OP_SET_LOCAL
	OP_GET_UPVALUE   = bytecode.OP_GET_UPVALUE
	OP_SET_UPVALUE   = bytecode.OP_SET_UPVALUE
	OP_CLOSE         = bytecode.OP_CLOSE
	OP_NEW_TABLE     = bytecode.OP_NEW_TABLE
	OP_SET_LIST      = bytecode.OP_SET_LIST
	OP_TABLE_SET     = bytecode.OP_TABLE_SET
	OP_INDEX_GET     = bytecode.OP_INDEX_GET
	OP_INDEX_SET     = bytecode.OP_INDEX_SET
	OP_GET_FIELD     = bytecode.OP_GET_FIELD
	OP_SET_FIELD     = bytecode.OP_SET_FIELD
	OP_SELF          = bytecode.OP_SELF
	OP_JUMP          = bytecode.OP_JUMP
	OP_JUMP_IF_FALSE = bytecode.OP_JUMP_IF_FALSE
	OP_JUMP_IF_TRUE  = bytecode.OP_JUMP_IF_TRUE
	OP_AND           = bytecode.OP_AND
	OP_OR            = bytecode.OP_OR
	OP_MULTI_GET     = bytecode.OP_MULTI_GET
	OP_MULTI_SET     = bytecode.OP_MULTI_SET
	OP_CALL          = bytecode.OP_CALL
	OP_RETURN        = bytecode.OP_RETURN
	OP_CLOSURE       = bytecode.OP_CLOSURE
	OP_NOP           = bytecode.OP_NOP
	OP_FOR_PREP      = bytecode.OP_FOR_PREP
	OP_FOR_LOOP      = bytecode.OP_FOR_LOOP
	OP_TFOR_PREP     = bytecode.OP_TFOR_PREP
	OP_TFOR_LOOP     = bytecode.OP_TFOR_LOOP
	// 0x80-0x9F reserved for built-ins. See internal/builtins for assignments.

	wantMulti = bytecode.WantMulti
)
