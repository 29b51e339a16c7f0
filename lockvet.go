// Package lockvet is a runtime lock-order validator: a library a host
// program wires into every mutex, spinlock, and condition-variable
// operation to detect, while the program runs under real workloads,
// conditions that could lead to deadlocks or synchronization bugs.
//
// It implements spec.md's seven protocol entry points (OptionalInit,
// PreLock, PostLock, PreUnlock, PostUnlock, CheckLocked, Destroy) plus
// thread-name accessors and ignore-list introspection, and layers
// three drop-in wrapper types (Mutex, RWMutex, Cond) on top, the way
// go-weave/weave wraps raw scheduling primitives as typed wrappers
// rather than only exposing free functions, and the way
// other_examples' vendored sasha-s/go-deadlock exposes a
// PreLock/PostLock/PostUnlock free-function protocol alongside its own
// Mutex/RWMutex wrapper types.
//
// See SPEC_FULL.md for the full component-to-package map.
package lockvet

import (
	"fmt"

	"github.com/lockvet/lockvet/backtrace"
	"github.com/lockvet/lockvet/goroutinelocal"
	"github.com/lockvet/lockvet/ignorelist"
	"github.com/lockvet/lockvet/internal/envconfig"
	"github.com/lockvet/lockvet/registry"
	"github.com/lockvet/lockvet/sink"
)

var reg = registry.New()

func init() {
	envconfig.Load()
}

func tokenString(token any) string {
	switch t := token.(type) {
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

func report(kind Kind, op, lockTok, thread, msg string, frames []backtrace.Frame) {
	sink.Emit(sink.Report{
		Kind:      kind.reportKind(),
		Operation: op,
		Lock:      lockTok,
		Thread:    thread,
		Message:   msg,
		Frames:    frames,
	})
}

// OptionalInit creates a registry record for token with the given
// properties, failing with AlreadyExists if one is already present
// (spec.md §4.6). Hosts are not required to call this — prelock will
// lazily create a permissive record on first use — but explicit init
// lets a host declare non-recursive locks, which prelock's lazy
// default (recursive=true) cannot.
func OptionalInit(token any, recursive, sleeper bool) Kind {
	st := goroutinelocal.Get()
	if !st.Intercept() {
		return OK
	}

	reg.Lock()
	defer reg.Unlock()
	if _, err := reg.InsertLocked(token, recursive, sleeper); err != nil {
		report(AlreadyExists, "optionalInit", tokenString(token), st.Name(),
			"lock already initialized", nil)
		return AlreadyExists
	}
	return OK
}

// PreLock must be called before attempting to acquire token. It
// captures a backtrace, runs dependency processing against the
// calling goroutine's held-set (unless the backtrace matches the
// ignore-list), and records a provisional holder entry. Per spec.md
// §4.6, a Deadlock return does not itself block the acquisition — the
// diagnostic has already been emitted; the caller decides whether to
// honor it.
func PreLock(token any, sleeper bool) Kind {
	st := goroutinelocal.Get()
	if !st.Intercept() {
		return OK
	}

	var frames []backtrace.Frame
	st.Guard(func() {
		frames, _ = backtrace.Capture(st.Scratch())
	})
	holder := registry.Holder{ThreadName: st.Name(), Frames: frames}

	reg.Lock()
	defer reg.Unlock()

	record := reg.FindOrCreateLocked(token, true, sleeper)

	result := OK
	if !ignorelist.ShouldSkip(backtrace.FrameNames(frames)) {
		result = dependencyProcessing(st, record, holder)
	}

	reg.AddHolder(record, holder)
	return result
}

// dependencyProcessing implements spec.md §4.6's "Dependency
// processing": for every lock the calling goroutine currently holds,
// check for self-recursion, check for a lock-order inversion via
// cycle search, and otherwise record the before-edge. Must be called
// with the registry lock held.
func dependencyProcessing(st *goroutinelocal.State, record *registry.Record, holder registry.Holder) Kind {
	result := OK
	for _, t := range st.HeldTokens() {
		heldRecord := reg.FindLocked(t)
		if heldRecord == nil {
			report(Internal, "prelock", tokenString(t), st.Name(),
				"goroutine holds a token with no registry record", nil)
			continue
		}
		if heldRecord == record {
			if record.Recursive {
				continue
			}
			report(Deadlock, "prelock", tokenString(record.Token), st.Name(),
				"self-acquisition of a non-recursive lock", holder.Frames)
			result = Deadlock
			continue
		}
		if cycle := reg.FindCycle(heldRecord, record); cycle != nil {
			report(Deadlock, "prelock", tokenString(record.Token), st.Name(),
				fmt.Sprintf("lock order inversion: %s should have been acquired before %s",
					tokenString(record.Token), tokenString(t)),
				holder.Frames)
			result = Deadlock
			continue
		}
		reg.AddBefore(record, heldRecord)
	}
	return result
}

// PostLock must be called after the underlying acquisition attempt
// returns. ok reports whether the acquisition actually succeeded; on
// failure the provisional holder recorded by PreLock is discarded.
func PostLock(token any, ok bool) {
	st := goroutinelocal.Get()
	if !st.Intercept() {
		return
	}

	reg.Lock()
	defer reg.Unlock()

	record := reg.FindLocked(token)
	if record == nil {
		return
	}

	if !ok {
		reg.RemoveHolderForThread(record, st.Name())
		return
	}

	record.NLock++ // saturating: uint64 wraps only after 2^64 acquisitions
	if record.NLock == 0 {
		record.NLock--
	}
	st.Push(token)

	if !record.Sleeper {
		st.AddSpin(1)
		return
	}
	if st.NumSpins() > 0 && !record.SpinWarnedOnce {
		record.SpinWarnedOnce = true
		report(WouldBlock, "postlock", tokenString(token), st.Name(),
			"blocking lock acquired while holding a spinlock", nil)
	}
}

// PreUnlock must be called before releasing token. It reports
// NotPermitted (and returns it, without adjusting any state) if the
// calling goroutine does not hold token.
func PreUnlock(token any) Kind {
	st := goroutinelocal.Get()
	if !st.Intercept() {
		return OK
	}

	reg.Lock()
	record := reg.FindLocked(token)
	reg.Unlock()
	if record == nil {
		report(NotFound, "preunlock", tokenString(token), st.Name(),
			"unlock of a lock with no registry record", nil)
		return NotFound
	}

	if !st.Held(token) {
		report(NotPermitted, "preunlock", tokenString(token), st.Name(),
			"unlock of a lock this thread does not hold", nil)
		return NotPermitted
	}

	if !record.Sleeper {
		st.AddSpin(-1)
	}
	return OK
}

// PostUnlock must be called after the underlying release completes.
// It removes token from the calling goroutine's held-set and the
// record's holder list.
func PostUnlock(token any) {
	st := goroutinelocal.Get()
	if !st.Intercept() {
		return
	}

	if !st.PopLast(token) {
		report(Internal, "postunlock", tokenString(token), st.Name(),
			"postunlock with no matching held entry (preunlock/postunlock out of sync)", nil)
		return
	}

	reg.Lock()
	defer reg.Unlock()
	record := reg.FindLocked(token)
	if record == nil {
		return
	}
	if !reg.RemoveHolderForThread(record, st.Name()) {
		report(Internal, "postunlock", tokenString(token), st.Name(),
			"no matching holder entry to remove", nil)
	}
}

// HeldState is the tri-state result of CheckLocked.
type HeldState int

const (
	Held HeldState = iota
	NotHeld
)

// CheckLocked reports whether the calling goroutine holds token. Used
// before suspending on a condition variable: a NotHeld outcome must
// cause the caller to refuse the wait with NotPermitted.
func CheckLocked(token any) (HeldState, Kind) {
	st := goroutinelocal.Get()
	if st.Held(token) {
		return Held, OK
	}
	return NotHeld, OK
}

// Destroy removes token's registry record, refusing (with Busy) if
// any goroutine still holds it. On success it is erased from every
// other record's before-set, per spec.md §4.6/§9.
func Destroy(token any) Kind {
	st := goroutinelocal.Get()
	if !st.Intercept() {
		return OK
	}

	reg.Lock()
	defer reg.Unlock()

	record := reg.FindLocked(token)
	if record == nil {
		return NotFound
	}
	if !reg.IsEmpty(record) {
		holder := "another thread"
		for _, h := range record.Holders() {
			if h.ThreadName == st.Name() {
				holder = "this thread"
				break
			}
		}
		report(Busy, "destroy", tokenString(token), st.Name(),
			fmt.Sprintf("lock still held by %s", holder), nil)
		return Busy
	}
	reg.RemoveLocked(record)
	return OK
}

// SetThreadName overrides the calling goroutine's symbolic name,
// truncated to goroutinelocal.NameMax-1 bytes.
func SetThreadName(name string) {
	goroutinelocal.Get().SetName(name)
}

// GetThreadName returns the calling goroutine's current symbolic
// name.
func GetThreadName() string {
	return goroutinelocal.Get().Name()
}

// GetIgnoredFrames returns the currently loaded exact-match ignore
// list.
func GetIgnoredFrames() []string {
	return ignorelist.Exact()
}

// GetIgnoredFramePatterns returns the currently loaded glob-pattern
// ignore list.
func GetIgnoredFramePatterns() []string {
	return ignorelist.Patterns()
}
