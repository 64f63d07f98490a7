package vm

import (
	"fmt"
	"io"
	"sort"

	"github.com/xirelogy/go-lunar/internal/bytecode"
)

// Disassemble emits assembly-style bytecode output for function-valued globals.
func (vm *VM) Disassemble(w io.Writer) error {
	if vm == nil {
		return fmt.Errorf("nil VM")
	}
	if w == nil {
		return fmt.Errorf("nil writer")
	}
	var names []string
	funcs := make(map[string]*Function)
	vm.globals.ForEach(func(k, v Value) bool {
		if k.Kind == KindString && v.Kind == KindFunction {
			names = append(names, k.Str)
			funcs[k.Str] = v.Func
		}
		return true
	})
	sort.Strings(names)
	dis := bytecode.NewDisassembler(w)
	for _, name := range names {
		fn := funcs[name]
		if fn.Proto == nil {
			dis.PrintNative(name)
			continue
		}
		if err := dis.DisassemblePrototype(name, fn.Proto); err != nil {
			return err
		}
	}
	return nil
}
