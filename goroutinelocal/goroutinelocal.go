// Package goroutinelocal provides per-goroutine state for the
// validator: the current goroutine's name, its ordered held-lock
// list, its spin-hold count, and a reentrancy guard.
//
// It is the Go-native analog of spec.md §4.3/§9's thread-local
// storage: a process-wide map keyed by goroutine id, created lazily
// on first access so it is safe to call from arbitrary program code
// before any explicit init hook has run. It is grounded on
// go-weave/weave/tls.go's TLS type (Get/Set against a per-thread map)
// adapted from a simulated scheduler's "current thread" pointer to a
// real goroutine id obtained from github.com/petermattis/goid, the
// same library sasha-s/go-deadlock and ErikKassubek/Deadlock-Go use
// for exactly this purpose.
package goroutinelocal

import (
	"sync"

	"github.com/petermattis/goid"
)

// NameMax is the maximum length, in bytes, of a goroutine name,
// mirroring LKSMITH_THREAD_NAME_MAX from the original C interface.
const NameMax = 16

// State is one goroutine's validator bookkeeping.
type State struct {
	mu        sync.Mutex
	name      string
	held      []any
	numSpins  int
	intercept bool
	scratch   []uintptr
}

var states sync.Map // goid.Get() -> *State

// Get returns the calling goroutine's state, creating it on first
// use. Safe to call from any goroutine at any time.
func Get() *State {
	id := goid.Get()
	if v, ok := states.Load(id); ok {
		return v.(*State)
	}
	st := &State{intercept: true, scratch: make([]uintptr, 32)}
	st.name = defaultName(id)
	actual, _ := states.LoadOrStore(id, st)
	return actual.(*State)
}

// Forget drops the state for the current goroutine. Host programs
// that manage their own goroutine pools may call this on worker exit
// to bound memory; the validator itself never calls it, since nothing
// observes when a goroutine exits.
func Forget() {
	states.Delete(goid.Get())
}

func defaultName(id int64) string {
	n := "thread_" + itoa(id)
	if len(n) > NameMax-1 {
		n = n[:NameMax-1]
	}
	return n
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Name returns the goroutine's current symbolic name.
func (s *State) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// SetName overrides the goroutine's symbolic name, truncating to
// NameMax-1 bytes as spec.md's thread-name bound requires.
func (s *State) SetName(name string) {
	if len(name) > NameMax-1 {
		name = name[:NameMax-1]
	}
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}

// Intercept reports whether the validator should process this call,
// or treat it as a pass-through because the validator is already
// re-entering itself (e.g. from within backtrace capture or a sink
// callback).
func (s *State) Intercept() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intercept
}

// Guard sets the reentrancy guard to false for the duration of fn,
// then restores it. Any instrumented call made (directly or
// transitively) while fn runs is a no-op pass-through.
func (s *State) Guard(fn func()) {
	s.mu.Lock()
	prev := s.intercept
	s.intercept = false
	s.mu.Unlock()

	fn()

	s.mu.Lock()
	s.intercept = prev
	s.mu.Unlock()
}

// Scratch returns the reusable backtrace capture buffer.
func (s *State) Scratch() []uintptr {
	return s.scratch
}

// Held reports whether token is currently in the held list.
func (s *State) Held(token any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.held {
		if t == token {
			return true
		}
	}
	return false
}

// HeldTokens returns a snapshot of the currently held tokens, in
// acquisition order (oldest first).
func (s *State) HeldTokens() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.held...)
}

// Push records a new acquisition of token. Duplicates are permitted,
// for recursive locks.
func (s *State) Push(token any) {
	s.mu.Lock()
	s.held = append(s.held, token)
	s.mu.Unlock()
}

// PopLast removes the most recently pushed occurrence of token,
// mirroring the LIFO release order of recursive locks. Reports
// whether an entry was found.
func (s *State) PopLast(token any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.held) - 1; i >= 0; i-- {
		if s.held[i] == token {
			s.held = append(s.held[:i], s.held[i+1:]...)
			return true
		}
	}
	return false
}

// NumSpins returns the count of currently held non-sleeper locks.
func (s *State) NumSpins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numSpins
}

// AddSpin adjusts the spin-hold count by delta (positive on
// acquisition of a spin lock, negative on release).
func (s *State) AddSpin(delta int) {
	s.mu.Lock()
	s.numSpins += delta
	s.mu.Unlock()
}
