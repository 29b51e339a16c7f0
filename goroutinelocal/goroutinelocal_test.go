package goroutinelocal

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultNameFormat(t *testing.T) {
	name := Get().Name()
	assert.Regexp(t, `^thread_-?\d+$`, name)
}

func TestSetNameTruncates(t *testing.T) {
	st := Get()
	defer st.SetName("") // restore-ish; names are per-goroutine anyway

	long := "this-name-is-far-too-long-to-fit"
	st.SetName(long)
	assert.LessOrEqual(t, len(st.Name()), NameMax-1)
}

func TestHeldPushPopLast(t *testing.T) {
	st := Get()
	st.Push("A")
	st.Push("B")
	st.Push("A") // recursive re-acquisition

	assert.True(t, st.Held("A"))
	assert.Equal(t, []any{"A", "B", "A"}, st.HeldTokens())

	assert.True(t, st.PopLast("A"))
	assert.Equal(t, []any{"A", "B"}, st.HeldTokens())
	assert.True(t, st.Held("A"), "one A instance remains")

	assert.True(t, st.PopLast("A"))
	assert.False(t, st.Held("A"))

	assert.False(t, st.PopLast("A"), "popping a token not held must report false")
}

func TestGuardSuppressesNestedIntercept(t *testing.T) {
	st := Get()
	assert.True(t, st.Intercept())

	var sawFalse bool
	st.Guard(func() {
		sawFalse = !st.Intercept()
	})
	assert.True(t, sawFalse)
	assert.True(t, st.Intercept(), "guard must restore the previous value")
}

func TestEachGoroutineGetsDistinctState(t *testing.T) {
	var wg sync.WaitGroup
	names := make(chan string, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			st := Get()
			if n == 0 {
				st.SetName("g0")
			} else {
				st.SetName("g1")
			}
			names <- st.Name()
		}(i)
	}
	wg.Wait()
	close(names)

	seen := map[string]bool{}
	for n := range names {
		seen[n] = true
	}
	assert.True(t, seen["g0"])
	assert.True(t, seen["g1"])
}

func TestNumSpins(t *testing.T) {
	st := Get()
	start := st.NumSpins()
	st.AddSpin(1)
	assert.Equal(t, start+1, st.NumSpins())
	st.AddSpin(-1)
	assert.Equal(t, start, st.NumSpins())
}
