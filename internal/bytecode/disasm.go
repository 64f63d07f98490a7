package bytecode

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Disassembler formats bytecode as a readable assembly-style dump.
type Disassembler struct {
	w       io.Writer
	visited map[*Prototype]bool
	printed bool
}

// NewDisassembler constructs a disassembler that writes to w.
func NewDisassembler(w io.Writer) *Disassembler {
	return &Disassembler{
		w:       w,
		visited: make(map[*Prototype]bool),
	}
}

// DisassemblePrototype emits a readable dump for a prototype and any nested prototypes.
func (d *Disassembler) DisassemblePrototype(label string, proto *Prototype) error {
	if proto == nil || proto.Chunk == nil {
		return fmt.Errorf("nil prototype")
	}
	if d.visited[proto] {
		return nil
	}
	d.visited[proto] = true
	d.startSection()
	name := label
	if name == "" {
		name = proto.Name
	}
	if name == "" {
		name = "<anon>"
	}
	source := proto.Source
	if source == "" {
		source = "<unknown>"
	}
	vararg := ""
	if proto.IsVararg {
		vararg = "+..."
	}
	fmt.Fprintf(d.w, "function %s (params=%d%s, locals=%d, upvalues=%d) source=%s\n",
		name, proto.NumParams, vararg, proto.MaxLocals, len(proto.Upvalues), source)
	if err := d.disassembleChunk(proto); err != nil {
		return err
	}
	for idx, child := range proto.Protos {
		childName := child.Name
		if childName == "" {
			childName = fmt.Sprintf("<closure@proto:%d>", idx)
		}
		if err := d.DisassemblePrototype(childName, child); err != nil {
			return err
		}
	}
	return nil
}

// PrintNative emits a header for a native (host) function.
func (d *Disassembler) PrintNative(name string) {
	d.startSection()
	if name == "" {
		name = "<native>"
	}
	fmt.Fprintf(d.w, "function %s [native]\n", name)
}

func (d *Disassembler) startSection() {
	if d.printed {
		fmt.Fprintln(d.w)
	}
	d.printed = true
}

func (d *Disassembler) disassembleChunk(proto *Prototype) error {
	chunk := proto.Chunk
	code := chunk.Code
	for ip := 0; ip < len(code); {
		offset := ip
		op := code[ip]
		ip++
		lineStr := "-"
		if span, ok := chunk.RefForOffset(offset); ok && span.Start.Line > 0 {
			lineStr = strconv.Itoa(span.Start.Line)
		}
		opName, comment := opName(op)
		operands, err := d.decodeOperands(op, proto, &ip)
		if err != nil {
			return err
		}
		detail := strings.TrimSpace(operands)
		if comment != "" {
			if detail != "" {
				detail += " "
			}
			detail += "; " + comment
		}
		fmt.Fprintf(d.w, "%04d %4s %-16s", offset, lineStr, opName)
		if detail != "" {
			fmt.Fprintf(d.w, " %s", detail)
		}
		fmt.Fprintln(d.w)
	}
	return nil
}

func (d *Disassembler) decodeOperands(op byte, proto *Prototype, ip *int) (string, error) {
	chunk := proto.Chunk
	code := chunk.Code
	if op >= OP_BUILTIN_FIRST && op <= OP_BUILTIN_LAST {
		return decodeCall(code, ip)
	}
	switch op {
	case OP_CONST:
		idx, err := readU16(code, ip)
		if err != nil {
			return "", err
		}
		if int(idx) >= len(chunk.Consts) {
			return "", fmt.Errorf("const index out of range: %d", idx)
		}
		return fmt.Sprintf("%d ; const[%d]=%s", idx, idx, formatConst(chunk.Consts[idx])), nil
	case OP_GET_GLOBAL, OP_SET_GLOBAL:
		idx, err := readU16(code, ip)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d ; name=%s", idx, formatConstRef(chunk, idx)), nil
	case OP_GET_FIELD, OP_SET_FIELD, OP_SELF:
		idx, err := readU16(code, ip)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d ; field=%s", idx, formatConstRef(chunk, idx)), nil
	case OP_GET_LOCAL, OP_SET_LOCAL, OP_GET_UPVALUE, OP_SET_UPVALUE, OP_CLOSE,
		OP_MULTI_GET, OP_MULTI_SET, OP_TFOR_PREP:
		slot, err := readU8(code, ip)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", slot), nil
	case OP_VARARG:
		want, err := readU8(code, ip)
		if err != nil {
			return "", err
		}
		return formatWant(want), nil
	case OP_NEW_TABLE:
		narr, err := readU16(code, ip)
		if err != nil {
			return "", err
		}
		nhash, err := readU16(code, ip)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d", narr, nhash), nil
	case OP_SET_LIST:
		start, err := readU16(code, ip)
		if err != nil {
			return "", err
		}
		count, err := readU8(code, ip)
		if err != nil {
			return "", err
		}
		multi, err := readU8(code, ip)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d%s", start, count, formatMulti(multi)), nil
	case OP_JUMP, OP_JUMP_IF_FALSE, OP_JUMP_IF_TRUE, OP_AND, OP_OR:
		off, err := readU16(code, ip)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", off), nil
	case OP_FOR_PREP, OP_FOR_LOOP, OP_TFOR_LOOP:
		base, err := readU8(code, ip)
		if err != nil {
			return "", err
		}
		off, err := readU16(code, ip)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d", base, off), nil
	case OP_CALL:
		return decodeCall(code, ip)
	case OP_RETURN:
		count, err := readU8(code, ip)
		if err != nil {
			return "", err
		}
		multi, err := readU8(code, ip)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d%s", count, formatMulti(multi)), nil
	case OP_CLOSURE:
		idx, err := readU16(code, ip)
		if err != nil {
			return "", err
		}
		upcount, err := readU8(code, ip)
		if err != nil {
			return "", err
		}
		upvals := make([]string, 0, upcount)
		for i := 0; i < int(upcount); i++ {
			isLocal, err := readU8(code, ip)
			if err != nil {
				return "", err
			}
			slot, err := readU8(code, ip)
			if err != nil {
				return "", err
			}
			if isLocal == 1 {
				upvals = append(upvals, fmt.Sprintf("local %d", slot))
			} else {
				upvals = append(upvals, fmt.Sprintf("upvalue %d", slot))
			}
		}
		operand := fmt.Sprintf("%d %d", idx, upcount)
		if int(idx) < len(proto.Protos) {
			operand += " ; " + protoName(proto.Protos[idx])
		}
		if len(upvals) > 0 {
			operand = operand + " [" + strings.Join(upvals, ", ") + "]"
		}
		return operand, nil
	default:
		return "", nil
	}
}

func decodeCall(code []byte, ip *int) (string, error) {
	argc, err := readU8(code, ip)
	if err != nil {
		return "", err
	}
	want, err := readU8(code, ip)
	if err != nil {
		return "", err
	}
	multi, err := readU8(code, ip)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %s%s", argc, formatWant(want), formatMulti(multi)), nil
}

func formatWant(want byte) string {
	if want == WantMulti {
		return "want=all"
	}
	return fmt.Sprintf("want=%d", want)
}

func formatMulti(multi byte) string {
	if multi != 0 {
		return " +tuple"
	}
	return ""
}

var opNames = map[byte]string{
	OP_CONST:         "OP_CONST",
	OP_NIL:           "OP_NIL",
	OP_TRUE:          "OP_TRUE",
	OP_FALSE:         "OP_FALSE",
	OP_POP:           "OP_POP",
	OP_VARARG:        "OP_VARARG",
	OP_ADD:           "OP_ADD",
	OP_SUB:           "OP_SUB",
	OP_MUL:           "OP_MUL",
	OP_DIV:           "OP_DIV",
	OP_MOD:           "OP_MOD",
	OP_POW:           "OP_POW",
	OP_NEG:           "OP_NEG",
	OP_NOT:           "OP_NOT",
	OP_EQ:            "OP_EQ",
	OP_NEQ:           "OP_NEQ",
	OP_LT:            "OP_LT",
	OP_LTE:           "OP_LTE",
	OP_GT:            "OP_GT",
	OP_GTE:           "OP_GTE",
	OP_CONCAT:        "OP_CONCAT",
	OP_LEN:           "OP_LEN",
	OP_GET_GLOBAL:    "OP_GET_GLOBAL",
	OP_SET_GLOBAL:    "OP_SET_GLOBAL",
	OP_GET_LOCAL:     "OP_GET_LOCAL",
	OP_SET_LOCAL:     "OP_SET_LOCAL",
	OP_GET_UPVALUE:   "OP_GET_UPVALUE",
	OP_SET_UPVALUE:   "OP_SET_UPVALUE",
	OP_CLOSE:         "OP_CLOSE",
	OP_NEW_TABLE:     "OP_NEW_TABLE",
	OP_SET_LIST:      "OP_SET_LIST",
	OP_TABLE_SET:     "OP_TABLE_SET",
	OP_INDEX_GET:     "OP_INDEX_GET",
	OP_INDEX_SET:     "OP_INDEX_SET",
	OP_GET_FIELD:     "OP_GET_FIELD",
	OP_SET_FIELD:     "OP_SET_FIELD",
	OP_SELF:          "OP_SELF",
	OP_JUMP:          "OP_JUMP",
	OP_JUMP_IF_FALSE: "OP_JUMP_IF_FALSE",
	OP_JUMP_IF_TRUE:  "OP_JUMP_IF_TRUE",
	OP_AND:           "OP_AND",
	OP_OR:            "OP_OR",
	OP_MULTI_GET:     "OP_MULTI_GET",
	OP_MULTI_SET:     "OP_MULTI_SET",
	OP_CALL:          "OP_CALL",
	OP_RETURN:        "OP_RETURN",
	OP_CLOSURE:       "OP_CLOSURE",
	OP_NOP:           "OP_NOP",
	OP_FOR_PREP:      "OP_FOR_PREP",
	OP_FOR_LOOP:      "OP_FOR_LOOP",
	OP_TFOR_PREP:     "OP_TFOR_PREP",
	OP_TFOR_LOOP:     "OP_TFOR_LOOP",
}

func opName(op byte) (string, string) {
	if info, ok := LookupIntrinsic(op); ok {
		return "OP_BUILTIN_" + info.Name, fmt.Sprintf("min_args=%d", info.MinArgs)
	}
	if op >= OP_BUILTIN_FIRST && op <= OP_BUILTIN_LAST {
		return fmt.Sprintf("OP_BUILTIN_0x%02X", op), ""
	}
	if name, ok := opNames[op]; ok {
		return name, ""
	}
	return fmt.Sprintf("OP_0x%02X", op), ""
}

func readU8(code []byte, ip *int) (byte, error) {
	if *ip >= len(code) {
		return 0, fmt.Errorf("unexpected end of bytecode")
	}
	val := code[*ip]
	*ip = *ip + 1
	return val, nil
}

func readU16(code []byte, ip *int) (uint16, error) {
	if *ip+1 >= len(code) {
		return 0, fmt.Errorf("unexpected end of bytecode")
	}
	hi := code[*ip]
	lo := code[*ip+1]
	*ip += 2
	return uint16(hi)<<8 | uint16(lo), nil
}

func formatConstRef(chunk *Chunk, idx uint16) string {
	if chunk == nil || int(idx) >= len(chunk.Consts) {
		return "<invalid>"
	}
	return formatConst(chunk.Consts[idx])
}

func protoName(p *Prototype) string {
	if p.Name == "" {
		return "<anon>"
	}
	return p.Name
}

func formatConst(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return strconv.Quote(val)
	default:
		return "<unknown>"
	}
}
