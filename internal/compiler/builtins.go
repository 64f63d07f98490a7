package compiler

import (
	"github.com/xirelogy/go-lunar/internal/ast"
	"github.com/xirelogy/go-lunar/internal/runtime"
	"github.com/xirelogy/go-lunar/internal/token"
)

// builtinOpcode reports whether a call target names an intrinsic. Only
// unshadowed globals qualify; a local of the same name wins.
func builtinOpcode(expr ast.Expression) (byte, bool) {
	ident, ok := expr.(*ast.Identifier)
	if !ok || ident.Ref.Kind != ast.RefGlobal {
		return 0, false
	}
	return runtime.Opcode(ident.Name)
}

func (fc *funcCompiler) emitBuiltin(opcode byte, args []ast.Expression, want byte, span token.Span) {
	argc, multi := fc.compileArgs(args, span)
	fc.span = span
	fc.emitBytes(opcode, argc, want, multi)
}
