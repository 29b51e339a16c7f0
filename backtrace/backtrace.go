// Package backtrace captures and symbolizes the calling goroutine's
// stack, the way a lock-order validator attaches a backtrace to every
// held-lock record.
//
// Go has no separate unwinder-library and system-API backtrace paths
// the way POSIX platforms do; both providers here are built on
// runtime.Callers. They differ in how a frame is rendered, which
// preserves the "undecorated vs decorated" distinction that drove the
// two-provider design on platforms that do have both.
package backtrace

import (
	"fmt"
	"runtime"
)

// Frame is one symbolized stack frame, ready to print.
type Frame string

// Provider captures the calling goroutine's stack into scratch (reused
// across calls to avoid repeated allocation) and returns a freshly
// owned slice of frames.
type Provider interface {
	Capture(scratch []uintptr) ([]Frame, error)
}

// ScratchLen is the number of program counters callers should size
// their reusable scratch buffer to.
const ScratchLen = 32

// skipFrames accounts for runtime.Callers itself and the Capture
// method's own frame.
const skipFrames = 2

// SymbolicProvider renders frames as bare "pkg.Func" names, with no
// address decoration. This is the default.
type SymbolicProvider struct{}

func (SymbolicProvider) Capture(scratch []uintptr) ([]Frame, error) {
	if len(scratch) == 0 {
		scratch = make([]uintptr, ScratchLen)
	}
	n := runtime.Callers(skipFrames, scratch)
	if n == 0 {
		return nil, nil
	}
	frames := runtime.CallersFrames(scratch[:n])
	out := make([]Frame, 0, n)
	for {
		f, more := frames.Next()
		if f.Function != "" {
			out = append(out, Frame(f.Function))
		} else {
			out = append(out, Frame(fmt.Sprintf("%#x", f.PC)))
		}
		if !more {
			break
		}
	}
	return out, nil
}

// DecoratedProvider renders frames as "pkg.Func (+0x%x) file:line",
// the address-decorated analog of SymbolicProvider, modeled on what
// runtime/debug.Stack() emits.
type DecoratedProvider struct{}

func (DecoratedProvider) Capture(scratch []uintptr) ([]Frame, error) {
	if len(scratch) == 0 {
		scratch = make([]uintptr, ScratchLen)
	}
	n := runtime.Callers(skipFrames, scratch)
	if n == 0 {
		return nil, nil
	}
	frames := runtime.CallersFrames(scratch[:n])
	out := make([]Frame, 0, n)
	for {
		f, more := frames.Next()
		name := f.Function
		if name == "" {
			name = "???"
		}
		out = append(out, Frame(fmt.Sprintf("%s (+%#x) %s:%d", name, f.PC-f.Entry, f.File, f.Line)))
		if !more {
			break
		}
	}
	return out, nil
}

// Default is the provider used when none has been installed via
// SetProvider. Host programs whose platform offers a richer backtrace
// facility can swap it out; this is the pluggability point spec.md §9
// calls out, kept even though this implementation only ships the two
// runtime.Callers-based variants above.
var Default Provider = SymbolicProvider{}

// SetProvider installs p as the process-wide backtrace provider.
func SetProvider(p Provider) { Default = p }

// Capture captures using the currently installed provider.
func Capture(scratch []uintptr) ([]Frame, error) {
	return Default.Capture(scratch)
}

// FrameNames returns the bare string form of each frame, used by the
// ignore-list to match against frame names regardless of which
// provider produced them.
func FrameNames(frames []Frame) []string {
	names := make([]string, len(frames))
	for i, f := range frames {
		names[i] = string(f)
	}
	return names
}
