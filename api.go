// Package lunar embeds a small Lua-style scripting language. Scripts are
// compiled once with Compile and run on any number of VMs; Go values cross
// into scripts through reflection.
package lunar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	_ "github.com/xirelogy/go-lunar/internal/builtins"
	"github.com/xirelogy/go-lunar/internal/interop"
	"github.com/xirelogy/go-lunar/internal/stdlib"
	"github.com/xirelogy/go-lunar/internal/vm"
)

// VM executes scripts against its own global environment. A VM runs one
// script at a time; use separate VMs (or Duplicate) for parallel work.
type VM struct {
	core    *vm.VM
	logger  *slog.Logger
	store   *SharedStore
	timeout time.Duration
	mu      sync.Mutex
	busy    bool
}

type options struct {
	logger    *slog.Logger
	stdout    io.Writer
	instLimit int
	maxDepth  int
	timeout   time.Duration
	store     *SharedStore
	libraries []string
	hook      TraceHook
}

// Option configures NewVM.
type Option func(*options)

// WithLogger sets the logger receiving run lifecycle records.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithStdout redirects print.
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithInstructionLimit caps instructions per run (0 for unlimited).
func WithInstructionLimit(n int) Option {
	return func(o *options) { o.instLimit = n }
}

// WithMaxCallDepth caps nested script frames.
func WithMaxCallDepth(n int) Option {
	return func(o *options) { o.maxDepth = n }
}

// WithTimeout bounds every run started on the VM.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithSharedStore exposes s to scripts as the shared library.
func WithSharedStore(s *SharedStore) Option {
	return func(o *options) { o.store = s }
}

// WithLibraries selects the standard libraries to open.
func WithLibraries(names ...string) Option {
	return func(o *options) { o.libraries = names }
}

// WithTraceHook installs an instruction trace hook.
func WithTraceHook(h TraceHook) Option {
	return func(o *options) { o.hook = h }
}

// WithConfig applies a loaded configuration. Options given after it
// override the corresponding settings.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.instLimit = cfg.InstructionLimit
		o.maxDepth = cfg.MaxCallDepth
		o.timeout = cfg.Timeout.Duration
		o.libraries = cfg.Libraries
	}
}

// NewVM constructs a VM with the standard libraries installed.
func NewVM(opts ...Option) *VM {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	l := &VM{
		core:    vm.New(),
		logger:  logger,
		store:   o.store,
		timeout: o.timeout,
	}
	if o.stdout != nil {
		l.core.SetStdout(o.stdout)
	}
	l.SetInstructionLimit(o.instLimit)
	l.core.SetMaxCallDepth(o.maxDepth)
	l.SetTraceHook(o.hook)

	libOpts := stdlib.Options{Logger: logger}
	libs := o.libraries
	if o.store != nil {
		libOpts.Store = o.store.s
	} else if slices.Contains(libs, "shared") {
		logger.Warn("shared library requested without a store", "action", "skipped")
		libs = slices.DeleteFunc(slices.Clone(libs), func(n string) bool { return n == "shared" })
		if len(libs) == 0 {
			return l
		}
	}
	if err := stdlib.Open(l.core, libOpts, libs...); err != nil {
		logger.Error("opening libraries", "error", err)
	}
	return l
}

// Logger returns the logger the VM reports to.
func (l *VM) Logger() *slog.Logger { return l.logger }

func (l *VM) acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.busy {
		return ErrBusy
	}
	l.busy = true
	return nil
}

func (l *VM) release() {
	l.mu.Lock()
	l.busy = false
	l.mu.Unlock()
}

// Run executes script on the VM's global environment and returns the values
// of its top-level return statement.
func (l *VM) Run(ctx context.Context, script *Script, args ...any) ([]Value, error) {
	if script == nil {
		return nil, errors.New("nil script")
	}
	if err := l.acquire(); err != nil {
		return nil, err
	}
	defer l.release()
	return l.exec(ctx, script.Name(), script.ID(), vm.Load(script.proto), args)
}

// DoString compiles and runs source in one step.
func (l *VM) DoString(ctx context.Context, source string, args ...any) ([]Value, error) {
	script, err := Compile(source, "string")
	if err != nil {
		return nil, err
	}
	return l.Run(ctx, script, args...)
}

// Call invokes a callable script value owned by this VM.
func (l *VM) Call(ctx context.Context, fn Value, args ...any) ([]Value, error) {
	if fn.owner != nil && fn.owner != l {
		return nil, errors.New("function belongs to another VM")
	}
	if err := l.acquire(); err != nil {
		return nil, err
	}
	defer l.release()
	return l.exec(ctx, callName(fn.v), "", fn.v, args)
}

func callName(v vm.Value) string {
	if v.Kind == vm.KindFunction && v.Func.Name != "" {
		return v.Func.Name
	}
	return "?"
}

// exec runs callee; the caller holds the busy flag.
func (l *VM) exec(ctx context.Context, chunk, scriptID string, callee vm.Value, args []any) ([]Value, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	vals, err := toVMArgs(args)
	if err != nil {
		return nil, err
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	log := l.logger.With("run_id", uuid.NewString(), "chunk", chunk)
	if scriptID != "" {
		log = log.With("script_id", scriptID)
	}
	log.Debug("run started", "args", len(vals))
	start := time.Now()
	res, err := l.core.Run(ctx, callee, vals)
	elapsed := time.Since(start)
	switch {
	case err == nil:
		log.Debug("run finished", "duration", elapsed, "results", len(res))
	case vm.IsFatal(err):
		log.Info("run terminated", "duration", elapsed, "error", err)
	default:
		log.Debug("run failed", "duration", elapsed, "error", err)
	}
	if err != nil {
		return nil, convertRuntimeError(l, err)
	}
	return l.wrapValues(res), nil
}

// Future represents an in-flight run.
type Future struct {
	done   chan struct{}
	values []Value
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(values []Value, err error) {
	f.values, f.err = values, err
	close(f.done)
}

// Done is closed once the run has completed.
func (f *Future) Done() <-chan struct{} { return f.done }

// Await waits for completion or context cancellation. Cancelling ctx stops
// waiting but not the run; cancel the run's own context for that.
func (f *Future) Await(ctx context.Context) ([]Value, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
		return f.values, f.err
	}
}

// Then calls cb on its own goroutine once the run completes.
func (f *Future) Then(cb func([]Value, error)) {
	go func() {
		<-f.done
		cb(f.values, f.err)
	}()
}

// RunAsync starts script on a new goroutine. The busy check happens before
// RunAsync returns, so a second run on the same VM fails with ErrBusy.
func (l *VM) RunAsync(ctx context.Context, script *Script, args ...any) *Future {
	f := newFuture()
	if script == nil {
		f.complete(nil, errors.New("nil script"))
		return f
	}
	if err := l.acquire(); err != nil {
		f.complete(nil, err)
		return f
	}
	go func() {
		defer l.release()
		f.complete(l.exec(ctx, script.Name(), script.ID(), vm.Load(script.proto), args))
	}()
	return f
}

// CallAsync resolves a global function by name and calls it on a new goroutine.
func (l *VM) CallAsync(ctx context.Context, name string, args ...any) *Future {
	f := newFuture()
	if err := l.acquire(); err != nil {
		f.complete(nil, err)
		return f
	}
	fn := l.core.GetGlobal(name)
	if fn.IsNil() {
		l.release()
		f.complete(nil, fmt.Errorf("global function %q not defined", name))
		return f
	}
	go func() {
		defer l.release()
		f.complete(l.exec(ctx, name, "", fn, args))
	}()
	return f
}

// SetGlobal binds a converted Go value into the global environment.
func (l *VM) SetGlobal(name string, x any) error {
	v, err := toVM(x)
	if err != nil {
		return err
	}
	if err := l.acquire(); err != nil {
		return err
	}
	defer l.release()
	l.core.SetGlobal(name, v)
	return nil
}

// GetGlobal reads a global without metamethods. It returns nil while a
// run is in progress.
func (l *VM) GetGlobal(name string) Value {
	if err := l.acquire(); err != nil {
		return Value{}
	}
	defer l.release()
	return Value{v: l.core.GetGlobal(name), owner: l}
}

// SetGlobalFunction binds one or more Go functions under a global name.
// Several functions form an overload set resolved per call.
func (l *VM) SetGlobalFunction(name string, fns ...any) error {
	fn, err := interop.NewFunction(name, fns...)
	if err != nil {
		return err
	}
	if err := l.acquire(); err != nil {
		return err
	}
	defer l.release()
	l.core.SetGlobal(name, fn)
	return nil
}

// HasFunction reports whether a global function exists with the given name.
func (l *VM) HasFunction(name string) bool {
	return l.GetGlobal(name).Kind() == ValueFunction
}

// Duplicate clones the VM configuration and global state into a new instance.
// The duplicate has independent memory and no in-flight execution state.
func (l *VM) Duplicate() (*VM, error) {
	if err := l.acquire(); err != nil {
		return nil, fmt.Errorf("cannot duplicate: %w", err)
	}
	defer l.release()
	return &VM{
		core:    l.core.Duplicate(),
		logger:  l.logger,
		store:   l.store,
		timeout: l.timeout,
	}, nil
}

// SetInstructionLimit caps the number of instructions a single run may execute (0 for unlimited).
func (l *VM) SetInstructionLimit(limit int) {
	if limit < 0 {
		limit = 0
	}
	l.core.SetInstructionLimit(limit)
}

// SetMaxCallDepth caps nested script frames; zero restores the default.
func (l *VM) SetMaxCallDepth(depth int) {
	l.core.SetMaxCallDepth(depth)
}

// SetTimeout bounds every subsequent run; zero removes the bound.
func (l *VM) SetTimeout(d time.Duration) {
	l.timeout = d
}

// SetStdout redirects print.
func (l *VM) SetStdout(w io.Writer) {
	l.core.SetStdout(w)
}

// SetTraceHook attaches a debug hook that observes instruction dispatch.
func (l *VM) SetTraceHook(h TraceHook) {
	if h == nil {
		l.core.SetTraceHook(nil)
		return
	}
	l.core.SetTraceHook(func(info vm.TraceInfo) {
		h(TraceInfo{
			Op:       info.Op,
			Function: info.Function,
			Source:   info.Source,
			Line:     info.Span.Start.Line,
			Column:   info.Span.Start.Column,
			IP:       info.IP,
		})
	})
}

// Disassemble writes the bytecode of every function-valued global.
func (l *VM) Disassemble(w io.Writer) error {
	return l.core.Disassemble(w)
}
