// Command lunar runs lunar scripts from files, the command line or an
// interactive prompt.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/xirelogy/go-lunar"
)

var Version = "dev"

type env struct {
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	interactive bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	e := env{
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		interactive: isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()),
	}
	os.Exit(run(ctx, os.Args[1:], e))
}

type flags struct {
	expr        string
	configPath  string
	logLevel    string
	logFormat   string
	storePath   string
	timeout     time.Duration
	limit       int
	disasm      bool
	interactive bool
	version     bool
}

func parseFlags(args []string, stderr io.Writer) (*flags, []string, error) {
	f := &flags{}
	fs := flag.NewFlagSet("lunar", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.expr, "e", "", "Execute the given chunk before anything else")
	fs.StringVar(&f.configPath, "config", "", "Load settings from a TOML file")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format: text or json")
	fs.StringVar(&f.storePath, "store", "", "Persist shared variables to this sqlite file")
	fs.DurationVar(&f.timeout, "timeout", 0, "Abort each run after this duration")
	fs.IntVar(&f.limit, "limit", -1, "Abort each run after this many instructions (0 for unlimited)")
	fs.BoolVar(&f.disasm, "disasm", false, "Print bytecode instead of running the script")
	fs.BoolVar(&f.interactive, "i", false, "Enter interactive mode after running the script")
	fs.BoolVar(&f.version, "version", false, "Display version information and exit")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return f, fs.Args(), nil
}

func loadConfig(f *flags) (lunar.Config, error) {
	cfg := lunar.DefaultConfig()
	if f.configPath != "" {
		var err error
		if cfg, err = lunar.LoadConfig(f.configPath); err != nil {
			return cfg, err
		}
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.logFormat != "" {
		cfg.LogFormat = f.logFormat
	}
	if f.storePath != "" {
		cfg.StorePath = f.storePath
	}
	if f.timeout > 0 {
		cfg.Timeout.Duration = f.timeout
	}
	if f.limit >= 0 {
		cfg.InstructionLimit = f.limit
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, args []string, e env) int {
	f, rest, err := parseFlags(args, e.stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if f.version {
		fmt.Fprintf(e.stdout, "lunar version %s\n", Version)
		return 0
	}
	cfg, err := loadConfig(f)
	if err != nil {
		fmt.Fprintf(e.stderr, "lunar: %v\n", err)
		return 2
	}
	logger := cfg.NewLogger(e.stderr)

	if f.disasm {
		if len(rest) == 0 {
			fmt.Fprintln(e.stderr, "lunar: -disasm needs a script file")
			return 2
		}
		script, err := lunar.CompileFile(rest[0])
		if err != nil {
			fmt.Fprintf(e.stderr, "lunar: %v\n", err)
			return 1
		}
		if err := script.Disassemble(e.stdout); err != nil {
			fmt.Fprintf(e.stderr, "lunar: %v\n", err)
			return 1
		}
		return 0
	}

	var store *lunar.SharedStore
	if cfg.StorePath != "" {
		if store, err = lunar.OpenSharedStore(ctx, cfg.StorePath); err != nil {
			fmt.Fprintf(e.stderr, "lunar: %v\n", err)
			return 1
		}
	} else {
		store = lunar.NewSharedStore()
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing shared store", "error", err)
		}
	}()

	vm := lunar.NewVM(
		lunar.WithConfig(cfg),
		lunar.WithLogger(logger),
		lunar.WithStdout(e.stdout),
		lunar.WithSharedStore(store),
	)

	ranSomething := false
	if f.expr != "" {
		ranSomething = true
		if !report(e.stderr, execute(ctx, vm, f.expr, "(command line)")) {
			return 1
		}
	}
	if len(rest) > 0 {
		ranSomething = true
		script, err := lunar.CompileFile(rest[0])
		if err != nil {
			report(e.stderr, err)
			return 1
		}
		scriptArgs := make([]any, 0, len(rest)-1)
		for _, a := range rest[1:] {
			scriptArgs = append(scriptArgs, a)
		}
		if _, err := vm.Run(ctx, script, scriptArgs...); !report(e.stderr, err) {
			return 1
		}
	}
	switch {
	case f.interactive || (!ranSomething && e.interactive):
		repl(ctx, vm, e)
	case !ranSomething:
		src, err := io.ReadAll(e.stdin)
		if err != nil {
			fmt.Fprintf(e.stderr, "lunar: %v\n", err)
			return 1
		}
		if !report(e.stderr, execute(ctx, vm, string(src), "stdin")) {
			return 1
		}
	}
	return 0
}

func execute(ctx context.Context, vm *lunar.VM, src, chunk string) error {
	script, err := lunar.Compile(src, chunk)
	if err != nil {
		return err
	}
	_, err = vm.Run(ctx, script)
	return err
}

// report prints err, with a traceback for script faults, and reports
// whether there was nothing to print.
func report(w io.Writer, err error) bool {
	if err == nil {
		return true
	}
	var rte *lunar.RuntimeError
	if errors.As(err, &rte) {
		fmt.Fprintf(w, "lunar: %s\n", rte.Traceback())
		return false
	}
	fmt.Fprintf(w, "lunar: %v\n", err)
	return false
}
