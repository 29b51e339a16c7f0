package lockvet_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lockvet/lockvet"
	"github.com/lockvet/lockvet/ignorelist"
	"github.com/lockvet/lockvet/sink"
)

// captureReports installs a callback sink for the duration of the
// test and returns a function that drains whatever it captured.
func captureReports(t *testing.T) func() []sink.Report {
	t.Helper()
	var mu sync.Mutex
	var got []sink.Report
	sink.SetCallback(func(r sink.Report) {
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
	})
	t.Cleanup(func() { sink.SetWriter(nil) })
	return func() []sink.Report {
		mu.Lock()
		defer mu.Unlock()
		return append([]sink.Report(nil), got...)
	}
}

func countKind(reports []sink.Report, k sink.Kind) int {
	n := 0
	for _, r := range reports {
		if r.Kind == k {
			n++
		}
	}
	return n
}

func TestABBADeadlockAcrossGoroutines(t *testing.T) {
	drain := captureReports(t)

	var a, b lockvet.Mutex
	var wg sync.WaitGroup
	ready := make(chan struct{})
	wg.Add(2)

	go func() {
		defer wg.Done()
		lockvet.SetThreadName("alpha")
		a.Lock()
		b.Lock()
		b.Unlock()
		a.Unlock()
		close(ready)
	}()
	go func() {
		defer wg.Done()
		<-ready
		lockvet.SetThreadName("beta")
		b.Lock()
		a.Lock() // reports Deadlock: A was already observed before B
		a.Unlock()
		b.Unlock()
	}()
	wg.Wait()

	reports := drain()
	assert.GreaterOrEqual(t, countKind(reports, sink.KindDeadlock), 1)
}

func TestDestroyWhileHeldReportsBusyThenSucceeds(t *testing.T) {
	drain := captureReports(t)

	token := new(int)
	lockvet.OptionalInit(token, false, true)
	lockvet.PreLock(token, true)
	lockvet.PostLock(token, true)

	assert.Equal(t, lockvet.Busy, lockvet.Destroy(token))

	lockvet.PreUnlock(token)
	lockvet.PostUnlock(token)
	assert.Equal(t, lockvet.OK, lockvet.Destroy(token))

	reports := drain()
	assert.Equal(t, 1, countKind(reports, sink.KindBusy))
}

func TestUnlockByNonHolderReportsNotPermitted(t *testing.T) {
	drain := captureReports(t)

	token := new(int)
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		lockvet.SetThreadName("owner")
		lockvet.PreLock(token, true)
		lockvet.PostLock(token, true)
	}()
	wg.Wait()

	lockvet.SetThreadName("intruder")
	got := lockvet.PreUnlock(token)
	assert.Equal(t, lockvet.NotPermitted, got)

	reports := drain()
	assert.Equal(t, 1, countKind(reports, sink.KindNotPermitted))
}

func testNWayInversion(t *testing.T, n int) {
	drain := captureReports(t)

	tokens := make([]*int, n)
	for i := range tokens {
		tokens[i] = new(int)
	}

	var wg sync.WaitGroup
	gate := make(chan struct{})
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			<-gate
			lockvet.SetThreadName(fmt.Sprintf("worker_%d", i))
			first := tokens[i]
			second := tokens[(i+1)%n]
			lockvet.PreLock(first, true)
			lockvet.PostLock(first, true)
			lockvet.PreLock(second, true)
			lockvet.PostLock(second, true)
			lockvet.PreUnlock(second)
			lockvet.PostUnlock(second)
			lockvet.PreUnlock(first)
			lockvet.PostUnlock(first)
		}()
	}
	close(gate)
	wg.Wait()

	reports := drain()
	assert.GreaterOrEqual(t, countKind(reports, sink.KindDeadlock), 1,
		"a cyclic acquisition order across %d goroutines must be flagged at least once", n)
}

func TestNWayInversion3(t *testing.T)   { testNWayInversion(t, 3) }
func TestNWayInversion100(t *testing.T) { testNWayInversion(t, 100) }

func TestSpinThenSleepReportsOnlyOnce(t *testing.T) {
	drain := captureReports(t)

	spin := new(int)
	sleeper := new(int)

	for i := 0; i < 3; i++ {
		lockvet.PreLock(spin, false)
		lockvet.PostLock(spin, true)
		lockvet.PreLock(sleeper, true)
		lockvet.PostLock(sleeper, true)
		lockvet.PreUnlock(sleeper)
		lockvet.PostUnlock(sleeper)
		lockvet.PreUnlock(spin)
		lockvet.PostUnlock(spin)
	}

	reports := drain()
	assert.Equal(t, 1, countKind(reports, sink.KindWouldBlock),
		"the hazard must be reported the first time only, per the record's SpinWarnedOnce latch")
}

func TestIgnoredFramesSuppressDependencyEdge(t *testing.T) {
	drain := captureReports(t)

	frames := lockvet.GetIgnoredFrames()
	defer ignorelist.Load(frames, ignorelist.Patterns())

	ignorelist.Load([]string{"github.com/lockvet/lockvet_test.inversionViaIgnoredFrame"}, nil)

	a, b := new(int), new(int)
	inversionViaIgnoredFrame(a, b)
	inversionViaIgnoredFrameReverse(a, b)

	reports := drain()
	assert.Equal(t, 0, countKind(reports, sink.KindDeadlock),
		"an acquisition made from an ignored frame must not create a dependency edge to flag later")
}

func inversionViaIgnoredFrame(a, b *int) {
	lockvet.PreLock(a, true)
	lockvet.PostLock(a, true)
	lockvet.PreLock(b, true)
	lockvet.PostLock(b, true)
	lockvet.PreUnlock(b)
	lockvet.PostUnlock(b)
	lockvet.PreUnlock(a)
	lockvet.PostUnlock(a)
}

func inversionViaIgnoredFrameReverse(a, b *int) {
	lockvet.PreLock(b, true)
	lockvet.PostLock(b, true)
	lockvet.PreLock(a, true)
	lockvet.PostLock(a, true)
	lockvet.PreUnlock(a)
	lockvet.PostUnlock(a)
	lockvet.PreUnlock(b)
	lockvet.PostUnlock(b)
}
