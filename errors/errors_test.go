package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New("test error")
	require.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestNewf(t *testing.T) {
	err := Newf("error: %s %d", "test", 42)
	require.NotNil(t, err)
	assert.Equal(t, "error: test 42", err.Error())
}

func TestWrapPreservesSentinel(t *testing.T) {
	wrapped := Wrapf(ErrBatchAborted, "day %s", "20251027")

	assert.Contains(t, wrapped.Error(), "20251027")
	assert.Contains(t, wrapped.Error(), "batch aborted")
	assert.True(t, Is(wrapped, ErrBatchAborted))
	assert.False(t, Is(wrapped, ErrDraining))
}

func TestIs(t *testing.T) {
	err1 := New("error 1")
	err2 := New("error 2")
	wrapped := Wrap(err1, "wrapped")

	assert.True(t, Is(wrapped, err1))
	assert.False(t, Is(wrapped, err2))
	assert.False(t, Is(nil, err1))
}

type customError struct {
	msg string
}

func (e *customError) Error() string {
	return e.msg
}

func TestAs(t *testing.T) {
	original := &customError{msg: "custom"}
	wrapped := Wrap(original, "wrapped")

	var target *customError
	require.True(t, As(wrapped, &target))
	assert.Equal(t, "custom", target.msg)
}

func TestIsDrainingError(t *testing.T) {
	err := Wrap(ErrDraining, "publish market.tick")

	assert.True(t, IsDrainingError(err))
	assert.False(t, IsDrainingError(nil))
	assert.False(t, IsDrainingError(New("unrelated")))
}

func TestIsShutdownTimeout(t *testing.T) {
	err := Wrapf(ErrShutdownTimeout, "queue %q", "market")

	assert.True(t, IsShutdownTimeout(err))
	assert.False(t, IsShutdownTimeout(ErrQueueFull))
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("table tick_%s", "cu2511")

	assert.True(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), "tick_cu2511")
}

func TestStackTrace(t *testing.T) {
	err := New("with stack")

	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, "errors_test.go")
}

func TestJoin(t *testing.T) {
	err := Join(New("flush tick_a"), nil, New("flush tick_b"))

	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "flush tick_a")
	assert.Contains(t, err.Error(), "flush tick_b")
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithStack(nil))
	assert.Nil(t, WithHint(nil, "hint"))
	assert.Nil(t, WithDetail(nil, "detail"))
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNotFound, ErrNotRunning, ErrDraining, ErrQueueFull,
		ErrUnknownInterval, ErrUnknownExchange, ErrDependencyCycle,
		ErrUnknownComponent, ErrShutdownTimeout, ErrBatchAborted, ErrTimeout,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.False(t, Is(a, b), "%v matched %v", a, b)
		}
	}
}

func ExampleWrap() {
	baseErr := New("connection failed")
	err := Wrap(baseErr, "failed to open day file")
	fmt.Println(err)
	// Output: failed to open day file: connection failed
}
