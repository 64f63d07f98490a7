package bytecode

import "fmt"

// IntrinsicInfo names an intrinsic opcode for disassembly.
type IntrinsicInfo struct {
	Name    string
	Opcode  byte
	MinArgs int
}

var intrinsics [OP_BUILTIN_LAST - OP_BUILTIN_FIRST + 1]*IntrinsicInfo

// RegisterIntrinsic records the name behind an opcode in the reserved range.
func RegisterIntrinsic(name string, opcode byte, minArgs int) {
	if opcode < OP_BUILTIN_FIRST || opcode > OP_BUILTIN_LAST {
		panic(fmt.Sprintf("intrinsic opcode 0x%02X outside 0x%02X-0x%02X", opcode, OP_BUILTIN_FIRST, OP_BUILTIN_LAST))
	}
	slot := &intrinsics[opcode-OP_BUILTIN_FIRST]
	if *slot != nil {
		panic(fmt.Sprintf("intrinsic opcode 0x%02X already bound to %s", opcode, (*slot).Name))
	}
	*slot = &IntrinsicInfo{Name: name, Opcode: opcode, MinArgs: minArgs}
}

// LookupIntrinsic returns the registration of opcode, if any.
func LookupIntrinsic(opcode byte) (IntrinsicInfo, bool) {
	if opcode < OP_BUILTIN_FIRST || opcode > OP_BUILTIN_LAST {
		return IntrinsicInfo{}, false
	}
	if info := intrinsics[opcode-OP_BUILTIN_FIRST]; info != nil {
		return *info, true
	}
	return IntrinsicInfo{}, false
}
