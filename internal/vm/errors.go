package vm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTerminationRequested is reported when a run's context is cancelled.
	// Script-level protected calls never catch it.
	ErrTerminationRequested = errors.New("termination requested")
	// ErrInstructionLimit is reported when a run exceeds its instruction
	// budget. Like termination it cannot be caught by scripts.
	ErrInstructionLimit = errors.New("instruction limit exceeded")
	// ErrBusy is returned when a VM is entered while another run is active.
	ErrBusy = errors.New("vm is already running")

	errYield = errors.New("yield")
)

type terminationError struct {
	cause error
}

func (e *terminationError) Error() string {
	if e.cause == nil {
		return ErrTerminationRequested.Error()
	}
	return fmt.Sprintf("%s: %v", ErrTerminationRequested.Error(), e.cause)
}

func (e *terminationError) Is(target error) bool { return target == ErrTerminationRequested }
func (e *terminationError) Unwrap() error        { return e.cause }

// IsFatal reports whether err must propagate past protected calls.
func IsFatal(err error) bool {
	return errors.Is(err, ErrTerminationRequested) || errors.Is(err, ErrInstructionLimit)
}

// TypeError reports an operation applied to operands of the wrong type.
type TypeError struct {
	Message string
}

func (e *TypeError) Error() string { return e.Message }

func typeErrorf(format string, args ...any) error {
	return &TypeError{Message: fmt.Sprintf(format, args...)}
}

// nativePanic turns a panic recovered from a native function into a
// catchable script error.
func nativePanic(name string, r any) error {
	if name == "" {
		name = "?"
	}
	if e, ok := r.(error); ok {
		return fmt.Errorf("native function '%s' panicked: %w", name, e)
	}
	return fmt.Errorf("native function '%s' panicked: %v", name, r)
}

// IndexError reports an invalid table key or an out-of-range host index.
type IndexError struct {
	Message string
}

func (e *IndexError) Error() string { return e.Message }

// ConversionError reports a value that cannot cross the host boundary.
type ConversionError struct {
	From   string
	To     string
	Reason string
}

func (e *ConversionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot convert %s to %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("cannot convert %s to %s", e.From, e.To)
}

// AmbiguousOverloadError reports several equally good host overloads.
type AmbiguousOverloadError struct {
	Member     string
	Candidates []string
}

func (e *AmbiguousOverloadError) Error() string {
	return fmt.Sprintf("ambiguous call to '%s': candidates %s", e.Member, strings.Join(e.Candidates, ", "))
}

// NoMatchingOverloadError reports that no host overload accepts the arguments.
type NoMatchingOverloadError struct {
	Member string
	Args   []string
}

func (e *NoMatchingOverloadError) Error() string {
	return fmt.Sprintf("no overload of '%s' accepts (%s)", e.Member, strings.Join(e.Args, ", "))
}

// ArgError builds the conventional bad-argument error for natives.
func ArgError(n int, fname, msg string) error {
	return typeErrorf("bad argument #%d to '%s' (%s)", n, fname, msg)
}

// NewError creates a script error carrying an arbitrary payload. Level 1
// attributes the position to the current function, 2 to its caller and 0
// adds no position.
func NewError(payload Value, level int) error {
	msg := RawString(payload)
	if payload.Kind != KindString && payload.Kind != KindNumber {
		msg = fmt.Sprintf("(error object is a %s value)", payload.TypeName())
	}
	return &RuntimeError{Message: msg, Value: payload, level: level}
}

// ErrorValue extracts the payload a protected call reports for err.
func ErrorValue(err error) Value {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Value
	}
	return String(err.Error())
}
