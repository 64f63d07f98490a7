package vm

import (
	"errors"
	"fmt"

	"github.com/xirelogy/go-lunar/internal/token"
)

// TraceInfo describes a single instruction dispatch for debugging/tracing.
type TraceInfo struct {
	Op       byte
	Function string
	Source   string
	Span     token.Span
	IP       int
}

// TraceHook observes instruction dispatch for debugging/profiling.
type TraceHook func(TraceInfo)

// FrameInfo captures the call frame at the time of an error or trace event.
type FrameInfo struct {
	Function string
	Source   string
	Span     token.Span
	IP       int
}

func (fi FrameInfo) String() string {
	loc := fi.Source
	if fi.Span.Start.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", fi.Source, fi.Span.Start.Line, fi.Span.Start.Column)
	}
	if fi.Function == "" {
		return loc
	}
	return fmt.Sprintf("%s in %s", loc, fi.Function)
}

// RuntimeError is a fault propagated out of the VM. Value is the payload
// seen by protected calls; Message is the human-readable, decorated text.
type RuntimeError struct {
	Message string
	Value   Value
	Frame   FrameInfo
	Stack   []FrameInfo
	Cause   error

	level     int
	decorated bool
}

func (e *RuntimeError) Error() string {
	return e.Message
}

// Unwrap exposes the original error, if any.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// decorate attaches the position of fr (or its caller, for level 2 errors)
// to err. Already decorated errors pass through unchanged.
func (vm *VM) decorate(th *thread, fr *frame, err error) error {
	if err == nil || err == errYield || IsFatal(err) {
		return err
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		if re.decorated {
			return err
		}
	} else {
		re = &RuntimeError{Message: err.Error(), Value: String(err.Error()), Cause: err, level: 1}
		err = re
	}
	re.decorated = true
	re.Stack = vm.stackTrace(th)
	target := fr
	if re.level == 2 {
		target = callerFrame(th, fr)
	}
	info := frameInfo(target)
	re.Frame = info
	if re.level == 0 || target == nil || info.Span.Start.Line == 0 {
		return err
	}
	if re.Value.Kind == KindString || re.Value.Kind == KindNumber {
		re.Message = fmt.Sprintf("%s:%d:%d: %s", info.Source, info.Span.Start.Line, info.Span.Start.Column, re.Message)
		if re.Value.Kind == KindString {
			re.Value = String(re.Message)
		}
	}
	return err
}

func callerFrame(th *thread, fr *frame) *frame {
	for i := len(th.frames) - 1; i > 0; i-- {
		if th.frames[i] == fr {
			return th.frames[i-1]
		}
	}
	return nil
}

func (vm *VM) trace(fr *frame, op byte) {
	if vm.traceHook == nil {
		return
	}
	info := frameInfo(fr)
	vm.traceHook(TraceInfo{
		Op:       op,
		Function: info.Function,
		Source:   info.Source,
		Span:     info.Span,
		IP:       info.IP,
	})
}

func (vm *VM) stackTrace(th *thread) []FrameInfo {
	if th == nil || len(th.frames) == 0 {
		return nil
	}
	trace := make([]FrameInfo, 0, len(th.frames))
	for i := len(th.frames) - 1; i >= 0; i-- {
		trace = append(trace, frameInfo(th.frames[i]))
	}
	return trace
}

func frameInfo(fr *frame) FrameInfo {
	if fr == nil || fr.fn == nil || fr.fn.Proto == nil {
		return FrameInfo{}
	}
	proto := fr.fn.Proto
	name := fr.fn.Name
	if name == "" {
		name = proto.Name
	}
	offset := fr.lastOp
	if offset < 0 {
		offset = fr.ip
	}
	span, _ := proto.Chunk.RefForOffset(offset)
	return FrameInfo{
		Function: name,
		Source:   proto.Source,
		Span:     span,
		IP:       offset,
	}
}
