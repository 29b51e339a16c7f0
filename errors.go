package lockvet

import "github.com/lockvet/lockvet/sink"

// Kind is the closed set of outcomes every protocol entry point can
// return, per spec.md §6. It implements error so it composes with
// ordinary Go error handling without forcing a second type switch,
// while remaining a comparable, closed value callers can branch on
// the way go-deadlock/rtcheck callers check sentinel-like conditions.
type Kind int

const (
	// OK indicates the operation completed with nothing to report.
	OK Kind = iota
	OutOfMemory
	Busy
	NotFound
	AlreadyExists
	Deadlock
	NotPermitted
	WouldBlock
	Internal
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case OutOfMemory:
		return "out-of-memory"
	case Busy:
		return "busy"
	case NotFound:
		return "not-found"
	case AlreadyExists:
		return "already-exists"
	case Deadlock:
		return "deadlock"
	case NotPermitted:
		return "not-permitted"
	case WouldBlock:
		return "would-block"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error implements the error interface. OK.Error() returns "", which
// callers should not treat as a formatted error string — check the
// Kind directly (k == lockvet.OK) before formatting.
func (k Kind) Error() string {
	if k == OK {
		return ""
	}
	return "lockvet: " + k.String()
}

func (k Kind) reportKind() sink.Kind {
	switch k {
	case Busy:
		return sink.KindBusy
	case NotFound:
		return sink.KindNotFound
	case AlreadyExists:
		return sink.KindAlreadyExists
	case Deadlock:
		return sink.KindDeadlock
	case NotPermitted:
		return sink.KindNotPermitted
	case WouldBlock:
		return sink.KindWouldBlock
	default:
		return sink.KindInternal
	}
}
