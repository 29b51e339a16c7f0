package ignorelist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldSkipExactMatch(t *testing.T) {
	Load([]string{"ignore1", "ignore2"}, nil)
	defer Load(nil, nil)

	assert.True(t, ShouldSkip([]string{"pkg.helper", "ignore1"}))
	assert.False(t, ShouldSkip([]string{"pkg.helper", "pkg.other"}))
}

func TestShouldSkipPattern(t *testing.T) {
	Load(nil, []string{"vendor/*.Lock"})
	defer Load(nil, nil)

	assert.True(t, ShouldSkip([]string{"vendor/foo.Lock"}))
	assert.False(t, ShouldSkip([]string{"internal/foo.Lock"}))
}

func TestShouldSkipEmptyListsNeverSkip(t *testing.T) {
	Load(nil, nil)
	assert.False(t, ShouldSkip([]string{"anything"}))
}

func TestExactIsSortedAndPatternsAreReturned(t *testing.T) {
	Load([]string{"b", "a"}, []string{"p2", "p1"})
	defer Load(nil, nil)

	exact := Exact()
	assert.Equal(t, []string{"a", "b"}, exact, "Exact() should reflect the sorted internal order")

	patterns := Patterns()
	assert.ElementsMatch(t, []string{"p1", "p2"}, patterns)
}
