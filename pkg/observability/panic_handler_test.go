package observability

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverPanic(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(ErrorLevel, buf)

	func() {
		defer RecoverPanic(logger, "reaper")
		panic("kaboom")
	}()

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "Recovered from panic", entries[0]["msg"])
	assert.Equal(t, "panic: kaboom", entries[0]["error"])
	assert.Equal(t, "reaper", entries[0]["where"])
	assert.Contains(t, entries[0]["stack"], "goroutine")
}

func TestMustRecover(t *testing.T) {
	assert.NoError(t, MustRecover(nil))

	err := MustRecover("bad")
	assert.EqualError(t, err, "panic: bad")

	var perr *PanicError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "bad", perr.Value)
	assert.NotEmpty(t, perr.Stack)
}
