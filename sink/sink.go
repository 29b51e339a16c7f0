// Package sink implements the validator's error-reporting channel:
// thread-safe, optionally backtrace-attached diagnostic reports to a
// configurable destination (spec.md §4.8).
//
// The destination model — an io.Writer plus an optional callback,
// chosen once — is grounded on other_examples' vendored
// sasha-s/go-deadlock, whose Opts struct exposes exactly
// "LogBuf io.Writer" and "OnPotentialDeadlock func()". This package
// generalizes that pair into the four destinations spec.md §6
// requires (stderr, stdout, file, syslog) plus a registered-callback
// destination, selected once via LKSMITH_LOG by internal/envconfig.
package sink

import (
	"fmt"
	"io"
	"log/syslog"
	"os"
	"strings"
	"sync"

	"github.com/lockvet/lockvet/backtrace"
)

// Kind is the closed set of diagnostic conditions a report can carry,
// matching the operation-level error kinds in spec.md §6 so reports
// and return values speak the same vocabulary.
type Kind int

const (
	KindDeadlock Kind = iota
	KindBusy
	KindNotFound
	KindAlreadyExists
	KindNotPermitted
	KindWouldBlock
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindDeadlock:
		return "deadlock"
	case KindBusy:
		return "busy"
	case KindNotFound:
		return "not-found"
	case KindAlreadyExists:
		return "already-exists"
	case KindNotPermitted:
		return "not-permitted"
	case KindWouldBlock:
		return "would-block"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Report is one diagnostic event: the operation that detected it, the
// lock and thread involved, a human description, and (optionally) a
// captured backtrace.
type Report struct {
	Kind      Kind
	Operation string
	Lock      string
	Thread    string
	Message   string
	Frames    []backtrace.Frame
}

// Line renders the report's headline, in the "operation, lock, thread,
// condition" order spec.md §6 specifies.
func (r Report) Line() string {
	return fmt.Sprintf("%s: lock=%s thread=%s: %s", r.Operation, r.Lock, r.Thread, r.Message)
}

// Callback is a user-supplied report handler, invoked outside the
// sink's mutex (spec.md §4.8/§5: "never held together with the
// registry lock", and a callback must not itself re-enter the
// validator).
type Callback func(Report)

type sink struct {
	mu       sync.Mutex
	w        io.Writer
	callback Callback
}

var (
	defaultMu   sync.Mutex
	defaultSink = &sink{w: os.Stderr}

	callbacksMu sync.Mutex
	callbacks   = map[string]Callback{}
)

// SetWriter installs w as the destination for formatted reports. Used
// by internal/envconfig for the stderr/stdout/file destinations and
// directly by tests to capture reports.
func SetWriter(w io.Writer) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultSink.w = w
	defaultSink.callback = nil
}

// RegisterCallback associates handle with fn so that
// LKSMITH_LOG=callback://handle can select it. A real function
// pointer cannot be parsed back out of an environment variable in Go
// the way the C original dereferences a hex address, so this
// implementation treats the hex operand as an opaque lookup key into
// a process-wide registry instead — see SPEC_FULL.md §4.8.
func RegisterCallback(handle string, fn Callback) {
	callbacksMu.Lock()
	defer callbacksMu.Unlock()
	callbacks[handle] = fn
}

// SetCallback installs fn as the destination directly, bypassing the
// handle-registry lookup. Used by internal/envconfig once it resolves
// a callback:// URL, and directly by hosts that configure the sink in
// code rather than through the environment.
func SetCallback(fn Callback) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultSink.callback = fn
	defaultSink.w = nil
}

// LookupCallback returns the callback registered under handle, if
// any.
func LookupCallback(handle string) (Callback, bool) {
	callbacksMu.Lock()
	defer callbacksMu.Unlock()
	fn, ok := callbacks[handle]
	return fn, ok
}

// NewSyslogWriter opens a syslog connection for the sink. Syslog is
// the one destination with no real analog anywhere in the retrieval
// pack's third-party stack (no repo vendors a syslog client) and
// stdlib's log/syslog is the idiomatic choice for this narrow,
// platform-provided concern — see DESIGN.md.
func NewSyslogWriter(tag string) (io.Writer, error) {
	w, err := syslog.New(syslog.LOG_ERR|syslog.LOG_DAEMON, tag)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Emit formats and delivers r. The headline and any backtrace lines
// are written atomically under the sink mutex when the destination is
// an io.Writer; a registered callback is invoked outside the mutex.
func Emit(r Report) {
	defaultMu.Lock()
	w := defaultSink.w
	cb := defaultSink.callback
	defaultMu.Unlock()

	if cb != nil {
		cb(r)
		return
	}
	if w == nil {
		return
	}

	var b strings.Builder
	b.WriteString(r.Line())
	b.WriteByte('\n')
	for _, f := range r.Frames {
		b.WriteString("\t")
		b.WriteString(string(f))
		b.WriteByte('\n')
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	// Re-check: the destination may have been reconfigured between
	// the snapshot above and now. Re-snapshotting keeps the
	// headline+frames write atomic under a single critical section
	// without holding the mutex across the (unbounded) formatting
	// work above.
	w = defaultSink.w
	if w == nil {
		return
	}
	io.WriteString(w, b.String())
}
