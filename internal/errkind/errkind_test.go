package errkind

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesByKindOnly(t *testing.T) {
	a := New(Timeout, "adapter", "slow upstream")
	b := New(Timeout, "scheduler", "different detail entirely")

	assert.True(t, errors.Is(a, b))
}

func TestError_IsDoesNotMatchDifferentKind(t *testing.T) {
	a := New(Timeout, "adapter", "slow upstream")
	b := New(RateLimited, "adapter", "slow upstream")

	assert.False(t, errors.Is(a, b))
}

func TestKindOf_UnwrapsWrappedError(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	wrapped := Wrap(Network, "adapter", "connect failed", cause)

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, Network, kind)
	assert.ErrorIs(t, wrapped, cause)
}

func TestKindOf_FalseForPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestRetryableSkip(t *testing.T) {
	assert.True(t, Timeout.RetryableSkip())
	assert.True(t, RateLimited.RetryableSkip())
	assert.False(t, OutOfRange.RetryableSkip())
	assert.False(t, NullValue.RetryableSkip())
}
