package serial

import (
	"math"
	"strconv"
	"strings"

	"github.com/xirelogy/go-lunar/internal/token"
	"github.com/xirelogy/go-lunar/internal/vm"
)

// Dump renders a prime value as a source literal that evaluates back to an
// equal value. Tables are rendered one entry per line, sequence entries
// first, then the remaining keys in traversal order.
func Dump(v vm.Value) (string, error) {
	var b strings.Builder
	d := dumper{b: &b, w: newWalker()}
	if err := d.value(v.First(), "", 0); err != nil {
		return "", err
	}
	return b.String(), nil
}

type dumper struct {
	b *strings.Builder
	w *walker
}

func (d *dumper) value(v vm.Value, path string, depth int) error {
	switch v.Kind {
	case vm.KindNil:
		d.b.WriteString("nil")
	case vm.KindBool:
		d.b.WriteString(strconv.FormatBool(v.B))
	case vm.KindNumber:
		d.b.WriteString(NumberLiteral(v.Num))
	case vm.KindString:
		d.b.WriteString(Quote(v.Str))
	case vm.KindTable:
		return d.table(v.Tab, path, depth)
	default:
		return notPrime(path, "%s values are not serializable", v.TypeName())
	}
	return nil
}

func (d *dumper) table(t *vm.Table, path string, depth int) error {
	if err := d.w.enter(t, path, depth); err != nil {
		return err
	}
	defer d.w.leave(t)
	if t.Len() == 0 && t.HashLen() == 0 {
		d.b.WriteString("{}")
		return nil
	}
	indent := strings.Repeat("\t", depth+1)
	d.b.WriteString("{\n")
	positional := true
	for i, elem := range t.ArrayPart() {
		if elem.IsNil() {
			positional = false
			continue
		}
		k := vm.Number(float64(i + 1))
		d.b.WriteString(indent)
		if !positional {
			d.key(k)
		}
		if err := d.value(elem, childPath(path, k), depth+1); err != nil {
			return err
		}
		d.b.WriteString(",\n")
	}
	var err error
	t.ForEach(func(k, val vm.Value) bool {
		if _, isIdx := arrayKey(k, t.Len()); isIdx {
			return true
		}
		if err = checkKey(k, path); err != nil {
			return false
		}
		d.b.WriteString(indent)
		d.key(k)
		if err = d.value(val, childPath(path, k), depth+1); err != nil {
			return false
		}
		d.b.WriteString(",\n")
		return true
	})
	if err != nil {
		return err
	}
	d.b.WriteString(strings.Repeat("\t", depth))
	d.b.WriteString("}")
	return nil
}

func checkKey(k vm.Value, path string) error {
	switch k.Kind {
	case vm.KindBool, vm.KindNumber, vm.KindString:
		return nil
	}
	return notPrime(path, "%s keys are not serializable", k.TypeName())
}

func (d *dumper) key(k vm.Value) {
	if k.Kind == vm.KindString && IsIdentifier(k.Str) {
		d.b.WriteString(k.Str)
		d.b.WriteString(" = ")
		return
	}
	d.b.WriteString("[")
	switch k.Kind {
	case vm.KindString:
		d.b.WriteString(Quote(k.Str))
	case vm.KindNumber:
		d.b.WriteString(NumberLiteral(k.Num))
	default:
		d.b.WriteString(vm.RawString(k))
	}
	d.b.WriteString("] = ")
}

// arrayKey reports whether k addresses the array part of a table of
// length n.
func arrayKey(k vm.Value, n int) (int, bool) {
	if k.Kind != vm.KindNumber || k.Num != math.Trunc(k.Num) {
		return 0, false
	}
	i := int(k.Num)
	return i, i >= 1 && i <= n
}

// IsIdentifier reports whether s can be written as a bare field name.
func IsIdentifier(s string) bool {
	if s == "" || token.IsKeyword(s) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// NumberLiteral renders n so that reading it back yields the same number.
func NumberLiteral(n float64) string {
	switch {
	case math.IsNaN(n):
		return "(0/0)"
	case math.IsInf(n, 1):
		return "(1/0)"
	case math.IsInf(n, -1):
		return "(-1/0)"
	case n == 0 && math.Signbit(n):
		return "-0"
	case n == math.Trunc(n) && math.Abs(n) < 1e15:
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// Quote renders s as a double-quoted string literal. Control characters
// use three-digit decimal escapes so that following digits stay literal.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\a':
			b.WriteString(`\a`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\v':
			b.WriteString(`\v`)
		default:
			if c < 0x20 || c == 0x7f {
				b.WriteByte('\\')
				s := strconv.Itoa(int(c))
				b.WriteString(strings.Repeat("0", 3-len(s)))
				b.WriteString(s)
				continue
			}
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
