package lockvet

import (
	"sync"

	"github.com/lockvet/lockvet/goroutinelocal"
)

// Mutex is a drop-in replacement for sync.Mutex that runs every
// Lock/Unlock through the validator protocol. Grounded on
// go-weave/weave.Mutex and other_examples' vendored
// sasha-s/go-deadlock.Mutex, both of which wrap a primitive lock type
// with the same method set so existing code needs no changes beyond
// its type declaration.
type Mutex struct {
	mu sync.Mutex
}

// Lock acquires the mutex, validating lock order first.
func (m *Mutex) Lock() {
	PreLock(m, true)
	m.mu.Lock()
	PostLock(m, true)
}

// TryLock attempts to acquire the mutex without blocking.
func (m *Mutex) TryLock() bool {
	PreLock(m, true)
	ok := m.mu.TryLock()
	PostLock(m, ok)
	return ok
}

// Unlock releases the mutex. It is the caller's responsibility to
// ensure the calling goroutine holds it; PreUnlock reports
// NotPermitted otherwise but does not prevent the call.
func (m *Mutex) Unlock() {
	PreUnlock(m)
	m.mu.Unlock()
	PostUnlock(m)
}

// RWMutex is a drop-in replacement for sync.RWMutex. Readers are
// tracked as a recursive, blocking lock: unlike an exclusive Lock, an
// RLock re-acquisition by the same goroutine is not itself a hazard
// (sync.RWMutex permits it as long as no writer is waiting), so
// self-recursion on RLock is not flagged — a supplemental decision
// recorded in DESIGN.md's Open Questions.
type RWMutex struct {
	mu sync.RWMutex
}

func (m *RWMutex) Lock() {
	PreLock(m, true)
	m.mu.Lock()
	PostLock(m, true)
}

func (m *RWMutex) Unlock() {
	PreUnlock(m)
	m.mu.Unlock()
	PostUnlock(m)
}

func (m *RWMutex) RLock() {
	PreLock(m, true)
	m.mu.RLock()
	PostLock(m, true)
}

func (m *RWMutex) RUnlock() {
	PreUnlock(m)
	m.mu.RUnlock()
	PostUnlock(m)
}

// Cond is a drop-in replacement for sync.Cond whose Wait validates
// that the calling goroutine holds the paired Locker before
// suspending, implementing the "waiting on a condition variable
// without holding its paired mutex" hazard from spec.md §1. Go's
// sync.Cond.Wait takes no argument to check against (unlike
// pthread_cond_wait, which takes the mutex explicitly), so this
// wrapper is the natural place for the check — see SPEC_FULL.md §4.6.
type Cond struct {
	L     sync.Locker
	token any // identity used to check CheckLocked against L
	cond  *sync.Cond
}

// NewCond returns a Cond whose Wait/Signal/Broadcast delegate to a
// sync.Cond built around l. token must be the same identity
// previously passed to PreLock/PostLock for l (e.g. a *Mutex or
// *RWMutex also wired through lockvet), so CheckLocked can verify it.
func NewCond(l sync.Locker, token any) *Cond {
	return &Cond{L: l, token: token, cond: sync.NewCond(l)}
}

// Wait refuses to suspend (reporting NotPermitted) if the calling
// goroutine does not hold the paired locker, then delegates to
// sync.Cond.Wait.
func (c *Cond) Wait() Kind {
	if held, _ := CheckLocked(c.token); held != Held {
		st := goroutinelocal.Get()
		report(NotPermitted, "cond.wait", tokenString(c.token), st.Name(),
			"condition wait without holding its paired lock", nil)
		return NotPermitted
	}
	c.cond.Wait()
	return OK
}

// Signal wakes one goroutine waiting on c, if any.
func (c *Cond) Signal() { c.cond.Signal() }

// Broadcast wakes all goroutines waiting on c.
func (c *Cond) Broadcast() { c.cond.Broadcast() }
