package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/finsight/finsight/pkg/errors"
)

func newTestBreaker(failureThreshold, successThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-cb",
		FailureThreshold: failureThreshold,
		SuccessThreshold: successThreshold,
		RecoveryTimeout:  recoveryTimeout,
	})
}

func succeed(ctx context.Context) (interface{}, error) {
	return "success", nil
}

func fail(ctx context.Context) (interface{}, error) {
	return nil, errors.New("test error")
}

func TestCircuitBreaker_DefaultBehavior(t *testing.T) {
	cb := newTestBreaker(3, 2, time.Second)

	// Initially closed
	assert.Equal(t, StateClosed, cb.State())

	// Successful requests should keep it closed
	for i := 0; i < 5; i++ {
		result, err := cb.Execute(context.Background(), succeed)
		require.NoError(t, err)
		assert.Equal(t, "success", result)
		assert.Equal(t, StateClosed, cb.State())
	}

	snapshot := cb.GetMetrics()
	assert.Equal(t, int64(5), snapshot.TotalCalls)
	assert.Equal(t, int64(5), snapshot.SuccessfulCalls)
	assert.Equal(t, float64(1), snapshot.SuccessRate)
}

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	cb := newTestBreaker(3, 2, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := cb.Execute(context.Background(), fail)
		require.Error(t, err)
		assert.Equal(t, StateClosed, cb.State())
	}

	// Third consecutive failure trips the breaker
	_, err := cb.Execute(context.Background(), fail)
	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	cb := newTestBreaker(3, 2, time.Minute)

	cb.Execute(context.Background(), fail)
	cb.Execute(context.Background(), fail)
	cb.Execute(context.Background(), succeed)
	assert.Equal(t, int64(0), cb.GetMetrics().ConsecutiveFailures)

	// Two more failures don't trip; the streak restarted
	cb.Execute(context.Background(), fail)
	cb.Execute(context.Background(), fail)
	assert.Equal(t, StateClosed, cb.State())

	cb.Execute(context.Background(), fail)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_RejectsWhileOpen(t *testing.T) {
	cb := newTestBreaker(2, 2, time.Minute)

	cb.Execute(context.Background(), fail)
	cb.Execute(context.Background(), fail)
	require.Equal(t, StateOpen, cb.State())

	totalBefore := cb.GetMetrics().TotalCalls

	invoked := 0
	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		invoked++
		return "should not execute", nil
	})

	require.Error(t, err)
	assert.True(t, IsBreakerOpen(err))
	assert.Equal(t, 0, invoked)
	// Rejections are distinguishable from real failures and don't count as calls
	assert.Equal(t, totalBefore, cb.GetMetrics().TotalCalls)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenAfterRecoveryTimeout(t *testing.T) {
	cb := newTestBreaker(2, 2, 50*time.Millisecond)

	cb.Execute(context.Background(), fail)
	cb.Execute(context.Background(), fail)
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(60 * time.Millisecond)

	// The next call probes: transitions to half-open and invokes exactly once
	invoked := 0
	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		invoked++
		return "success", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, invoked)
	assert.Equal(t, StateHalfOpen, cb.State())

	// A second success closes the circuit
	_, err = cb.Execute(context.Background(), succeed)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := newTestBreaker(2, 3, 50*time.Millisecond)

	cb.Execute(context.Background(), fail)
	cb.Execute(context.Background(), fail)
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(60 * time.Millisecond)

	// One success in half-open, then a failure: straight back to open
	cb.Execute(context.Background(), succeed)
	require.Equal(t, StateHalfOpen, cb.State())

	_, err := cb.Execute(context.Background(), fail)
	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_StateMachineProperty(t *testing.T) {
	// Simulate outcome streams and assert the state after every event
	// matches the transition table
	streams := [][]bool{
		{false, false, false, true},
		{true, true, false, false, false, true, false},
		{false, true, false, true, false, false, false},
		{true, false, false, false, false, true},
	}

	const failureThreshold = 3

	for _, stream := range streams {
		cb := newTestBreaker(failureThreshold, 2, time.Minute)
		consecutiveFailures := 0
		expected := StateClosed

		for i, success := range stream {
			op := fail
			if success {
				op = succeed
			}
			cb.Execute(context.Background(), op)

			if expected == StateClosed {
				if success {
					consecutiveFailures = 0
				} else {
					consecutiveFailures++
					if consecutiveFailures >= failureThreshold {
						expected = StateOpen
					}
				}
			}
			// Once open with a long recovery timeout every further call is
			// rejected without reaching the operation, so the state is stable

			assert.Equalf(t, expected, cb.State(), "stream %v event %d", stream, i)
		}
	}
}

func TestCircuitBreaker_ErrorsPropagateUnchanged(t *testing.T) {
	cb := newTestBreaker(5, 2, time.Minute)

	original := appErrors.NewExternalError("provider", "boom")
	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, original
	})

	require.Error(t, err)
	assert.Same(t, error(original), err)
}

func TestCircuitBreaker_FailurePredicate(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 2,
		SuccessThreshold: 2,
		RecoveryTimeout:  time.Minute,
		IsFailure: func(err error) bool {
			return !appErrors.IsType(err, appErrors.ErrorTypeNotFound)
		},
	})

	// Errors the predicate excludes don't move the counters
	for i := 0; i < 5; i++ {
		_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, appErrors.NewNotFoundError("symbol")
		})
		require.Error(t, err)
	}
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, int64(0), cb.GetMetrics().FailedCalls)

	// Counted errors still trip it
	cb.Execute(context.Background(), fail)
	cb.Execute(context.Background(), fail)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_MetricsSnapshot(t *testing.T) {
	cb := newTestBreaker(5, 2, time.Minute)

	cb.Execute(context.Background(), succeed)
	cb.Execute(context.Background(), fail)
	cb.Execute(context.Background(), succeed)

	snapshot := cb.GetMetrics()
	assert.Equal(t, "test-cb", snapshot.Name)
	assert.Equal(t, "CLOSED", snapshot.State)
	assert.Equal(t, int64(3), snapshot.TotalCalls)
	assert.Equal(t, int64(2), snapshot.SuccessfulCalls)
	assert.Equal(t, int64(1), snapshot.FailedCalls)
	assert.InDelta(t, 2.0/3.0, snapshot.SuccessRate, 1e-9)
	assert.Equal(t, int64(0), snapshot.ConsecutiveFailures)
	assert.False(t, snapshot.LastFailureTime.IsZero())
	assert.False(t, snapshot.LastSuccessTime.IsZero())
}

func TestCircuitBreaker_SuccessRateWithNoCalls(t *testing.T) {
	cb := newTestBreaker(5, 2, time.Minute)

	snapshot := cb.GetMetrics()
	assert.Equal(t, int64(0), snapshot.TotalCalls)
	assert.Equal(t, float64(0), snapshot.SuccessRate)
}

func TestCircuitBreaker_Call(t *testing.T) {
	cb := newTestBreaker(3, 2, time.Minute)

	result, err := cb.Call(func() (interface{}, error) {
		return "success", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "success", result)

	_, err = cb.Call(func() (interface{}, error) {
		return nil, errors.New("test error")
	})
	require.Error(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		RecoveryTimeout:  50 * time.Millisecond,
		OnStateChange: func(name string, from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	cb.Execute(context.Background(), fail)
	cb.Execute(context.Background(), fail)
	time.Sleep(60 * time.Millisecond)
	cb.Execute(context.Background(), succeed)

	assert.Equal(t, []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->CLOSED"}, transitions)
}

func TestIsBreakerOpen(t *testing.T) {
	assert.True(t, IsBreakerOpen(&BreakerOpenError{Name: "x"}))
	assert.False(t, IsBreakerOpen(errors.New("regular error")))
	assert.False(t, IsBreakerOpen(nil))
}
