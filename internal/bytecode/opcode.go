package bytecode

import "fmt"

// OpCode enumerates bytecode operations. Operands follow the opcode byte;
// u16 operands are big endian and jump targets are absolute offsets.
const (
	OP_CONST byte = iota // u16 const
	OP_NIL
	OP_TRUE
	OP_FALSE
	OP_POP
	OP_VARARG // u8 want
	_         // reserved
	_         // reserved

	OP_ADD
	OP_SUB
	OP_MUL
	OP_DIV
	OP_MOD
	OP_POW
	OP_NEG
	OP_NOT

	OP_EQ
	OP_NEQ
	OP_LT
	OP_LTE
	OP_GT
	OP_GTE
	OP_CONCAT
	OP_LEN

	OP_GET_GLOBAL // u16 name
	OP_SET_GLOBAL // u16 name
	_             // reserved
	_             // reserved
	_             // reserved
	_             // reserved
	_             // reserved
	_             // reserved

	OP_GET_LOCAL   // u8 slot
	OP_SET_LOCAL   // u8 slot
	OP_GET_UPVALUE // u8 index
	OP_SET_UPVALUE // u8 index
	OP_CLOSE       // u8 slot
	_              // reserved
	_              // reserved
	_              // reserved

	OP_NEW_TABLE   // u16 narr, u16 nhash
	OP_SET_LIST    // u16 start, u8 count, u8 multi
	OP_TABLE_SET   // table key value -> table
	OP_INDEX_GET   // obj key -> value
	OP_INDEX_SET   // obj key value ->
	OP_GET_FIELD   // u16 name
	OP_SET_FIELD   // u16 name
	OP_SELF        // u16 name: obj -> method obj

	OP_JUMP          // u16 target
	OP_JUMP_IF_FALSE // u16 target, pops
	OP_JUMP_IF_TRUE  // u16 target, pops
	OP_AND           // u16 target, keeps a falsy value and jumps
	OP_OR            // u16 target, keeps a truthy value and jumps
	OP_MULTI_GET     // u8 n: obj k1..kn -> value
	OP_MULTI_SET     // u8 n: obj k1..kn value ->
	_                // reserved

	OP_CALL    // u8 argc, u8 want, u8 multi
	OP_RETURN  // u8 count, u8 multi
	OP_CLOSURE // u16 proto, u8 upcount, then upcount x (u8 isLocal, u8 index)
	_          // reserved
	_          // reserved
	_          // reserved
	_          // reserved
	_          // reserved
)

const (
	OP_NOP byte = 0x40

	OP_FOR_PREP  byte = 0x48 // u8 base, u16 exit
	OP_FOR_LOOP  byte = 0x49 // u8 base, u16 body
	OP_TFOR_PREP byte = 0x4A // u8 base
	OP_TFOR_LOOP byte = 0x4B // u8 base, u16 exit

	// 0x80-0x9F: reserved for built-in operations (u8 argc, u8 want, u8 multi).
	OP_BUILTIN_FIRST byte = 0x80
	OP_BUILTIN_LAST  byte = 0x9F
)

// WantMulti asks a call to leave all of its results as one tuple value.
const WantMulti byte = 0xFF

// Instruction is one decoded opcode with its raw operand bytes.
type Instruction struct {
	Offset   int
	Op       byte
	Operands []byte
}

// operandWidth returns the number of operand bytes following the opcode at
// ip, or -1 for an unknown opcode.
func operandWidth(code []byte, ip int) int {
	op := code[ip]
	if op >= OP_BUILTIN_FIRST && op <= OP_BUILTIN_LAST {
		return 3
	}
	switch op {
	case OP_NIL, OP_TRUE, OP_FALSE, OP_POP, OP_NOP,
		OP_ADD, OP_SUB, OP_MUL, OP_DIV, OP_MOD, OP_POW, OP_NEG, OP_NOT,
		OP_EQ, OP_NEQ, OP_LT, OP_LTE, OP_GT, OP_GTE, OP_CONCAT, OP_LEN,
		OP_TABLE_SET, OP_INDEX_GET, OP_INDEX_SET:
		return 0
	case OP_VARARG, OP_GET_LOCAL, OP_SET_LOCAL, OP_GET_UPVALUE, OP_SET_UPVALUE,
		OP_CLOSE, OP_MULTI_GET, OP_MULTI_SET, OP_TFOR_PREP:
		return 1
	case OP_CONST, OP_GET_GLOBAL, OP_SET_GLOBAL, OP_GET_FIELD, OP_SET_FIELD, OP_SELF,
		OP_JUMP, OP_JUMP_IF_FALSE, OP_JUMP_IF_TRUE, OP_AND, OP_OR, OP_RETURN:
		return 2
	case OP_CALL, OP_FOR_PREP, OP_FOR_LOOP, OP_TFOR_LOOP:
		return 3
	case OP_NEW_TABLE, OP_SET_LIST:
		return 4
	case OP_CLOSURE:
		if ip+3 >= len(code) {
			return -1
		}
		return 3 + 2*int(code[ip+3])
	}
	return -1
}

// Decode splits code into instructions.
func Decode(code []byte) ([]Instruction, error) {
	var out []Instruction
	for ip := 0; ip < len(code); {
		w := operandWidth(code, ip)
		if w < 0 || ip+1+w > len(code) {
			return nil, fmt.Errorf("bad instruction 0x%02X at %d", code[ip], ip)
		}
		out = append(out, Instruction{Offset: ip, Op: code[ip], Operands: code[ip+1 : ip+1+w]})
		ip += 1 + w
	}
	return out, nil
}
