package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindOrCreateKeepsExistingProperties(t *testing.T) {
	reg := New()
	r := reg.FindOrCreate("A", true, true)
	assert.True(t, r.Recursive)
	assert.True(t, r.Sleeper)

	// A second FindOrCreate must not change the existing record's
	// properties, per spec.md §4.4.
	r2 := reg.FindOrCreate("A", false, false)
	assert.Same(t, r, r2)
	assert.True(t, r2.Recursive)
}

func TestInsertRejectsDuplicate(t *testing.T) {
	reg := New()
	_, err := reg.Insert("A", true, true)
	assert.NoError(t, err)
	_, err = reg.Insert("A", true, true)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestAddBeforeIdempotent(t *testing.T) {
	reg := New()
	a := reg.FindOrCreate("A", true, true)
	b := reg.FindOrCreate("B", true, true)

	reg.Lock()
	reg.AddBefore(b, a)
	reg.AddBefore(b, a)
	reg.Unlock()

	before := b.BeforeSet()
	assert.Len(t, before, 1)
	assert.Same(t, a, before[0])
}

func TestFindCycleDetectsInversion(t *testing.T) {
	reg := New()
	a := reg.FindOrCreate("A", true, true)
	b := reg.FindOrCreate("B", true, true)

	// Record A -> B (A held before B).
	reg.Lock()
	reg.AddBefore(b, a)
	reg.Unlock()

	// Now B is held, and A is about to be acquired: searching from
	// B's before-set for A must find it, signalling an inversion.
	reg.Lock()
	cycle := reg.FindCycle(b, a)
	reg.Unlock()
	assert.NotNil(t, cycle)

	// But there is no cycle back to some unrelated lock C.
	c := reg.FindOrCreate("C", true, true)
	reg.Lock()
	cycle = reg.FindCycle(b, c)
	reg.Unlock()
	assert.Nil(t, cycle)
}

func TestRemoveSweepsBeforeSets(t *testing.T) {
	reg := New()
	a := reg.FindOrCreate("A", true, true)
	b := reg.FindOrCreate("B", true, true)
	reg.Lock()
	reg.AddBefore(b, a)
	reg.Unlock()

	reg.Remove(a)

	assert.Empty(t, b.BeforeSet())
	assert.Nil(t, reg.Find("A"))
}

func TestHolderListLIFO(t *testing.T) {
	reg := New()
	a := reg.FindOrCreate("A", true, true)

	reg.AddHolder(a, Holder{ThreadName: "t1"})
	reg.AddHolder(a, Holder{ThreadName: "t2"})

	holders := a.Holders()
	assert.Len(t, holders, 2)
	assert.Equal(t, "t2", holders[0].ThreadName, "most recent holder must be first")

	removed := reg.RemoveHolderForThread(a, "t2")
	assert.True(t, removed)
	assert.Len(t, a.Holders(), 1)
	assert.Equal(t, "t1", a.Holders()[0].ThreadName)
}

func TestIsEmpty(t *testing.T) {
	reg := New()
	a := reg.FindOrCreate("A", true, true)
	assert.True(t, reg.IsEmpty(a))
	reg.AddHolder(a, Holder{ThreadName: "t1"})
	assert.False(t, reg.IsEmpty(a))
}
