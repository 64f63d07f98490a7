// Package stdlib installs the standard libraries into a VM's globals.
package stdlib

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/xirelogy/go-lunar/internal/store"
	"github.com/xirelogy/go-lunar/internal/vm"
)

// Options carries the host services some libraries depend on.
type Options struct {
	// Store backs the shared library; without it the library is skipped.
	Store  *store.Store
	Logger *slog.Logger
}

type opener func(rt *vm.VM, opts Options) error

var libraries = map[string]opener{
	"base":      openBase,
	"string":    openString,
	"table":     openTable,
	"math":      openMath,
	"coroutine": openCoroutine,
	"json":      openJSON,
	"yaml":      openYAML,
	"shared":    openShared,
}

// Names lists every library in the order Open installs them.
var Names = []string{"base", "string", "table", "math", "coroutine", "json", "yaml", "shared"}

// Open installs the named libraries, or all of them when names is empty.
// Asking for "shared" explicitly without a store is an error.
func Open(rt *vm.VM, opts Options, names ...string) error {
	explicit := len(names) > 0
	if !explicit {
		names = Names
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	for _, name := range names {
		open, ok := libraries[name]
		if !ok {
			return fmt.Errorf("unknown library %q", name)
		}
		if name == "shared" && opts.Store == nil {
			if explicit {
				return fmt.Errorf("library %q needs a shared store", name)
			}
			continue
		}
		if err := open(rt, opts); err != nil {
			return fmt.Errorf("opening library %q: %w", name, err)
		}
		opts.Logger.Debug("library opened", "library", name)
	}
	return nil
}

// register builds a library table from funcs and stores it as a global.
func register(rt *vm.VM, name string, funcs map[string]vm.NativeFunc) *vm.Table {
	lib := vm.NewTable(0, len(funcs))
	keys := make([]string, 0, len(funcs))
	for k := range funcs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lib.SetString(k, vm.NewNative(name+"."+k, funcs[k]))
	}
	rt.SetGlobal(name, vm.TableValue(lib))
	return lib
}

func one(v vm.Value) []vm.Value {
	return []vm.Value{v}
}

func typeError(format string, args ...any) error {
	return &vm.TypeError{Message: fmt.Sprintf(format, args...)}
}
