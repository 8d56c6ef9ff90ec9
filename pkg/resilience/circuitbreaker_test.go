package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream failure")

func newTestBreaker(t *testing.T, cfg CircuitBreakerConfig) (*CircuitBreaker, *time.Time) {
	t.Helper()
	cb := NewCircuitBreaker("test", cfg)
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return clock }
	return cb, &clock
}

func tripOpen(t *testing.T, cb *CircuitBreaker, threshold int) {
	t.Helper()
	for i := 0; i < threshold; i++ {
		_ = cb.Execute(func() error { return errUpstream })
	}
	require.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerClosedPassesThrough(t *testing.T) {
	cb, _ := newTestBreaker(t, CircuitBreakerConfig{})

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(t, CircuitBreakerConfig{FailureThreshold: 3})

	for i := 0; i < 2; i++ {
		err := cb.Execute(func() error { return errUpstream })
		require.ErrorIs(t, err, errUpstream)
		assert.Equal(t, StateClosed, cb.State())
	}

	err := cb.Execute(func() error { return errUpstream })
	require.ErrorIs(t, err, errUpstream)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(t, CircuitBreakerConfig{FailureThreshold: 2})

	require.Error(t, cb.Execute(func() error { return errUpstream }))
	require.NoError(t, cb.Execute(func() error { return nil }))
	require.Error(t, cb.Execute(func() error { return errUpstream }))

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerOpenRefusesWithoutCalling(t *testing.T) {
	cb, _ := newTestBreaker(t, CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	tripOpen(t, cb, 1)

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})

	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreakerProbeSuccessCloses(t *testing.T) {
	cb, clock := newTestBreaker(t, CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	tripOpen(t, cb, 1)

	*clock = clock.Add(time.Minute)

	err := cb.Execute(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerProbeFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(t, CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	tripOpen(t, cb, 1)

	*clock = clock.Add(time.Minute)

	err := cb.Execute(func() error { return errUpstream })
	require.ErrorIs(t, err, errUpstream)
	assert.Equal(t, StateOpen, cb.State())

	// The cool-down restarts from the failed probe.
	err = cb.Execute(func() error { return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreakerStateChangeHook(t *testing.T) {
	type change struct{ from, to State }
	var changes []change

	cb := NewCircuitBreaker("hooked", CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		OnStateChange: func(name string, from, to State) {
			assert.Equal(t, "hooked", name)
			changes = append(changes, change{from, to})
		},
	})
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return clock }

	require.Error(t, cb.Execute(func() error { return errUpstream }))
	clock = clock.Add(time.Minute)
	require.NoError(t, cb.Execute(func() error { return nil }))

	assert.Equal(t, []change{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}, changes)
}

func TestCircuitBreakerStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
