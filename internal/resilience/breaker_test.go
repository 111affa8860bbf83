package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(_ context.Context) (string, error) { return "", errors.New("boom") }

func succeeding(_ context.Context) (string, error) { return "ok", nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Service: "test", FailureThreshold: 3, ResetTimeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := Execute(ctx, cb, failing)
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, cb.State())

	called := false
	_, err := Execute(ctx, cb, func(_ context.Context) (string, error) {
		called = true
		return "", nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	ctx := context.Background()

	_, _ = Execute(ctx, cb, failing)
	val, err := Execute(ctx, cb, succeeding)
	require.NoError(t, err)
	assert.Equal(t, "ok", val)

	_, _ = Execute(ctx, cb, failing)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = Execute(ctx, cb, failing)
	assert.Equal(t, CircuitOpen, cb.State())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	// Failed trial reopens.
	_, _ = Execute(ctx, cb, failing)
	assert.Equal(t, CircuitOpen, cb.State())

	now = now.Add(2 * time.Minute)
	_, err := Execute(ctx, cb, succeeding)
	require.NoError(t, err)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_CancelDoesNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1})
	_, err := Execute(context.Background(), cb, func(_ context.Context) (string, error) {
		return "", context.Canceled
	})
	require.Error(t, err)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestExecute_NilBreaker(t *testing.T) {
	val, err := Execute(context.Background(), nil, succeeding)
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
}

func TestFromBreakerConfig(t *testing.T) {
	cfg := FromBreakerConfig("geocode", 4, 30)
	assert.Equal(t, "geocode", cfg.Service)
	assert.Equal(t, 4, cfg.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.ResetTimeout)

	cb := NewCircuitBreaker(FromBreakerConfig("x", 0, 0))
	assert.Equal(t, 5, cb.cfg.FailureThreshold)
	assert.Equal(t, 60*time.Second, cb.cfg.ResetTimeout)
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}
