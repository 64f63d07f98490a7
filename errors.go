package lunar

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xirelogy/go-lunar/internal/parser"
	"github.com/xirelogy/go-lunar/internal/serial"
	"github.com/xirelogy/go-lunar/internal/store"
	"github.com/xirelogy/go-lunar/internal/vm"
)

// Error types reported by compilation, execution and host conversion.
type (
	SyntaxError             = parser.SyntaxError
	TypeError               = vm.TypeError
	IndexError              = vm.IndexError
	ConversionError         = vm.ConversionError
	AmbiguousOverloadError  = vm.AmbiguousOverloadError
	NoMatchingOverloadError = vm.NoMatchingOverloadError
	NotPrimeError           = serial.NotPrimeError
)

var (
	// ErrTerminationRequested is reported when a run's context is cancelled
	// or its deadline passes.
	ErrTerminationRequested = vm.ErrTerminationRequested
	// ErrInstructionLimit is reported when a run exceeds its instruction budget.
	ErrInstructionLimit = vm.ErrInstructionLimit
	// ErrBusy is returned when a VM is entered while another run is active.
	ErrBusy = vm.ErrBusy
	// ErrStoreClosed is returned by a shared store after Close.
	ErrStoreClosed = store.ErrClosed
)

// FrameTrace describes a single frame in a runtime error or trace.
type FrameTrace struct {
	Function string
	Source   string
	Line     int
	Column   int
	IP       int
}

func (f FrameTrace) String() string {
	loc := f.Source
	if f.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", f.Source, f.Line, f.Column)
	}
	if f.Function == "" {
		return loc
	}
	return loc + " in " + f.Function
}

// RuntimeError is a script fault surfaced from the VM. Message already
// carries the source position; Value is the payload a script-level pcall
// would have seen.
type RuntimeError struct {
	Message string
	Value   Value
	Frame   FrameTrace
	Stack   []FrameTrace
	Cause   error
}

func (e *RuntimeError) Error() string {
	return e.Message
}

// Unwrap exposes the underlying cause (if any) for errors.Is/As.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// Traceback renders the message followed by the call stack, innermost first.
func (e *RuntimeError) Traceback() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Stack) > 0 {
		b.WriteString("\nstack traceback:")
		for _, fr := range e.Stack {
			b.WriteString("\n\t")
			b.WriteString(fr.String())
		}
	}
	return b.String()
}

// TraceInfo describes one instruction dispatch observed by a TraceHook.
type TraceInfo struct {
	Op       byte
	Function string
	Source   string
	Line     int
	Column   int
	IP       int
}

// TraceHook observes instruction dispatch for debugging/profiling.
type TraceHook func(TraceInfo)

func convertRuntimeError(owner *VM, err error) error {
	if err == nil {
		return nil
	}
	var rte *vm.RuntimeError
	if !errors.As(err, &rte) || vm.IsFatal(err) {
		return err
	}
	return &RuntimeError{
		Message: rte.Message,
		Value:   Value{v: rte.Value, owner: owner},
		Frame:   frameTraceFromVM(rte.Frame),
		Stack:   stackTraceFromVM(rte.Stack),
		Cause:   rte.Cause,
	}
}

func frameTraceFromVM(info vm.FrameInfo) FrameTrace {
	return FrameTrace{
		Function: info.Function,
		Source:   info.Source,
		Line:     info.Span.Start.Line,
		Column:   info.Span.Start.Column,
		IP:       info.IP,
	}
}

func stackTraceFromVM(stack []vm.FrameInfo) []FrameTrace {
	if len(stack) == 0 {
		return nil
	}
	out := make([]FrameTrace, len(stack))
	for i, fr := range stack {
		out[i] = frameTraceFromVM(fr)
	}
	return out
}
