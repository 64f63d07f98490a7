// Package builtins links every intrinsic plugin into the binary.
package builtins

import (
	_ "github.com/xirelogy/go-lunar/internal/builtins/error"
	_ "github.com/xirelogy/go-lunar/internal/builtins/metatable"
	_ "github.com/xirelogy/go-lunar/internal/builtins/pcall"
	_ "github.com/xirelogy/go-lunar/internal/builtins/rawaccess"
	_ "github.com/xirelogy/go-lunar/internal/builtins/selectarg"
	_ "github.com/xirelogy/go-lunar/internal/builtins/typeof"
)
