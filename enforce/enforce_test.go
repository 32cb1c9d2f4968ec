package enforce

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

type exitCode int

// Replaces the exit hook so a fatal path panics with the code instead of leaving the test binary.
func catchExit(t *testing.T, fn func()) (code int, exited bool) {
	t.Helper()
	old := Exit
	Exit = func(c int) { panic(exitCode(c)) }
	defer func() {
		Exit = old
		if r := recover(); r != nil {
			c, ok := r.(exitCode)
			require.True(t, ok, "unexpected panic %v", r)
			code, exited = int(c), true
		}
	}()
	fn()
	return 0, false
}

func TestErrorfWrapsKind(t *testing.T) {
	err := Errorf(ErrKeyInUse, "vertex %d", 7)
	require.True(t, errors.Is(err, ErrKeyInUse))
	require.False(t, errors.Is(err, ErrRange))
	require.Contains(t, err.Error(), "vertex 7")
}

func TestENFORCE(t *testing.T) {
	_, exited := catchExit(t, func() { ENFORCE(nil); ENFORCE(true); ENFORCE(error(nil)) })
	require.False(t, exited)

	code, exited := catchExit(t, func() { ENFORCE(false, "size mismatch") })
	require.True(t, exited)
	require.Equal(t, 1, code)

	_, exited = catchExit(t, func() { ENFORCE(io.EOF) })
	require.True(t, exited)

	_, exited = catchExit(t, func() { ENFORCE("unexpected tag") })
	require.True(t, exited)
}
