package backtrace

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSymbolicProviderCapturesCaller(t *testing.T) {
	frames, err := SymbolicProvider{}.Capture(nil)
	assert.NoError(t, err)
	assert.NotEmpty(t, frames)
	assert.True(t, strings.Contains(string(frames[0]), "TestSymbolicProviderCapturesCaller"))
}

func TestDecoratedProviderIncludesFileLine(t *testing.T) {
	frames, err := DecoratedProvider{}.Capture(nil)
	assert.NoError(t, err)
	assert.NotEmpty(t, frames)
	assert.Contains(t, string(frames[0]), "backtrace_test.go")
}

func TestSetProviderSwapsDefault(t *testing.T) {
	orig := Default
	defer SetProvider(orig)

	SetProvider(DecoratedProvider{})
	frames, err := Capture(nil)
	assert.NoError(t, err)
	// frames[0] is the package-level Capture itself; its caller follows.
	assert.Contains(t, string(frames[1]), "backtrace_test.go")
}

func TestFrameNames(t *testing.T) {
	frames := []Frame{"a", "b"}
	assert.Equal(t, []string{"a", "b"}, FrameNames(frames))
}
