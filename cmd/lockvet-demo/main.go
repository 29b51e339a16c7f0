// Command lockvet-demo exercises the lockvet validator against a
// handful of classic lock-order hazards and prints whatever reports
// it produces.
//
// Example output
//
//	$ lockvet-demo -scenario abba
//	prelock: lock=<A> thread=beta: lock order inversion: <A> should have been acquired before <B>
//
// where <A> and <B> stand for the %v form of the two *lockvet.Mutex
// tokens. Reports go to standard error unless LKSMITH_LOG says
// otherwise. If alpha runs second, the report names alpha and has A
// and B swapped.
//
// Flags select which scenario to run; -scenario all (the default)
// runs each in turn. This mirrors rtcheck's single flag.Parse() at
// startup and git-p's log.Fatal-on-setup-error idiom.
package main

import (
	"flag"
	"fmt"
	"log"
	"sync"

	"github.com/lockvet/lockvet"
)

func main() {
	scenario := flag.String("scenario", "all", "scenario to run: abba, selfdeadlock, busy-destroy, spin-then-sleep, or all")
	flag.Parse()
	if flag.NArg() > 0 {
		log.Fatal("lockvet-demo takes no positional arguments")
	}

	scenarios := map[string]func(){
		"abba":            abba,
		"selfdeadlock":    selfDeadlock,
		"busy-destroy":    busyDestroy,
		"spin-then-sleep": spinThenSleep,
	}

	if *scenario == "all" {
		for _, name := range []string{"abba", "selfdeadlock", "busy-destroy", "spin-then-sleep"} {
			fmt.Println("==", name)
			scenarios[name]()
		}
		return
	}
	fn, ok := scenarios[*scenario]
	if !ok {
		log.Fatalf("unknown scenario %q", *scenario)
	}
	fn()
}

// abba reproduces spec.md §8 scenario 1: goroutine alpha takes A then
// B; goroutine beta takes B then tries A, closing the cycle.
func abba() {
	var a, b lockvet.Mutex
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		lockvet.SetThreadName("alpha")
		a.Lock()
		b.Lock()
		b.Unlock()
		a.Unlock()
	}()
	go func() {
		defer wg.Done()
		lockvet.SetThreadName("beta")
		b.Lock()
		a.Lock()
		a.Unlock()
		b.Unlock()
	}()
	wg.Wait()
}

// selfDeadlock reproduces a non-recursive lock being re-acquired by
// the same goroutine.
func selfDeadlock() {
	var m lockvet.Mutex
	lockvet.OptionalInit(&m, false /* recursive */, true /* sleeper */)
	lockvet.PreLock(&m, true)
	lockvet.PostLock(&m, true)
	lockvet.PreLock(&m, true) // reports Deadlock, does not block
	lockvet.PostLock(&m, true)
	lockvet.PreUnlock(&m)
	lockvet.PostUnlock(&m)
	lockvet.PreUnlock(&m)
	lockvet.PostUnlock(&m)
}

// busyDestroy reproduces spec.md §8 scenario 2: destroying a lock
// while it is still held reports Busy; destroying it after release
// succeeds.
func busyDestroy() {
	token := new(int)
	lockvet.OptionalInit(token, false, true)
	lockvet.PreLock(token, true)
	lockvet.PostLock(token, true)
	if k := lockvet.Destroy(token); k != lockvet.Busy {
		log.Fatalf("expected Busy, got %v", k)
	}
	lockvet.PreUnlock(token)
	lockvet.PostUnlock(token)
	if k := lockvet.Destroy(token); k != lockvet.OK {
		log.Fatalf("expected OK, got %v", k)
	}
}

// spinThenSleep reproduces the spin-then-sleep performance hazard:
// acquiring a blocking lock while holding a spinlock.
func spinThenSleep() {
	spin := new(int)
	sleeper := new(int)
	lockvet.PreLock(spin, false)
	lockvet.PostLock(spin, true)
	lockvet.PreLock(sleeper, true)
	lockvet.PostLock(sleeper, true) // reports WouldBlock once
	lockvet.PreUnlock(sleeper)
	lockvet.PostUnlock(sleeper)
	lockvet.PreUnlock(spin)
	lockvet.PostUnlock(spin)
}
