package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/finsight/finsight/pkg/logging"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed - circuit is closed, requests are allowed
	StateClosed CircuitState = iota
	// StateOpen - circuit is open, requests are rejected
	StateOpen
	// StateHalfOpen - circuit is half-open, probing whether the dependency recovered
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name of the circuit breaker for logging/metrics
	Name string
	// FailureThreshold is the number of consecutive failures in the closed
	// state before the circuit opens
	FailureThreshold int
	// RecoveryTimeout is the period of the open state, after which the next
	// call is allowed through as a half-open probe
	RecoveryTimeout time.Duration
	// SuccessThreshold is the number of consecutive successes needed to
	// close the circuit from the half-open state
	SuccessThreshold int
	// IsFailure decides whether an error counts as a failure. Errors that
	// don't count are returned to the caller without touching the counters.
	// Nil means every error counts.
	IsFailure func(error) bool
	// OnStateChange is called whenever the state of the circuit breaker changes
	OnStateChange func(name string, from CircuitState, to CircuitState)
}

// CircuitBreakerMetrics holds the counters maintained by a circuit breaker.
// Totals are monotonic; the consecutive counters reset on the opposite outcome.
type CircuitBreakerMetrics struct {
	TotalCalls           int64
	SuccessfulCalls      int64
	FailedCalls          int64
	ConsecutiveFailures  int64
	ConsecutiveSuccesses int64
	LastFailureTime      time.Time
	LastSuccessTime      time.Time
}

// MetricsSnapshot is an immutable view of a breaker's state and counters
type MetricsSnapshot struct {
	Name                string    `json:"name"`
	State               string    `json:"state"`
	TotalCalls          int64     `json:"total_calls"`
	SuccessfulCalls     int64     `json:"successful_calls"`
	FailedCalls         int64     `json:"failed_calls"`
	SuccessRate         float64   `json:"success_rate"`
	ConsecutiveFailures int64     `json:"consecutive_failures"`
	LastFailureTime     time.Time `json:"last_failure_time,omitempty"`
	LastSuccessTime     time.Time `json:"last_success_time,omitempty"`
}

// CircuitBreaker is a state machine that stops calling a failing dependency
// until it appears recovered
type CircuitBreaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	successThreshold int
	isFailure        func(error) bool
	onStateChange    func(name string, from CircuitState, to CircuitState)

	mutex   sync.Mutex
	state   CircuitState
	metrics CircuitBreakerMetrics

	logger *logging.Logger
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:             config.Name,
		failureThreshold: config.FailureThreshold,
		recoveryTimeout:  config.RecoveryTimeout,
		successThreshold: config.SuccessThreshold,
		onStateChange:    config.OnStateChange,
		state:            StateClosed,
		logger:           logging.GetLogger(),
	}

	if cb.failureThreshold <= 0 {
		cb.failureThreshold = 5
	}
	if cb.successThreshold <= 0 {
		cb.successThreshold = 3
	}
	if cb.recoveryTimeout <= 0 {
		cb.recoveryTimeout = 60 * time.Second
	}

	if config.IsFailure == nil {
		cb.isFailure = func(err error) bool { return err != nil }
	} else {
		cb.isFailure = config.IsFailure
	}

	return cb
}

// Execute runs the given operation if the circuit breaker accepts it.
// The operation runs outside the breaker's lock so concurrent callers
// don't serialize on each other's downstream calls.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) (interface{}, error)) (interface{}, error) {
	if err := cb.beforeCall(); err != nil {
		return nil, err
	}

	result, err := op(ctx)
	if err != nil {
		if cb.isFailure(err) {
			cb.recordFailure()
		}
		return nil, err
	}

	cb.recordSuccess()
	return result, nil
}

// Call is a convenience method that wraps Execute for operations that don't need context
func (cb *CircuitBreaker) Call(op func() (interface{}, error)) (interface{}, error) {
	return cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return op()
	})
}

// beforeCall gates the call and counts it. Rejections while open leave
// TotalCalls untouched so the snapshot distinguishes rejected from failed.
func (cb *CircuitBreaker) beforeCall() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateOpen {
		if !cb.recoveryElapsed(time.Now()) {
			return &BreakerOpenError{Name: cb.name}
		}
		cb.setState(StateHalfOpen)
	}

	cb.metrics.TotalCalls++
	return nil
}

// recoveryElapsed reports whether the open breaker may attempt a probe
func (cb *CircuitBreaker) recoveryElapsed(now time.Time) bool {
	if cb.metrics.LastFailureTime.IsZero() {
		return true
	}
	return now.Sub(cb.metrics.LastFailureTime) >= cb.recoveryTimeout
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.metrics.SuccessfulCalls++
	cb.metrics.ConsecutiveSuccesses++
	cb.metrics.ConsecutiveFailures = 0
	cb.metrics.LastSuccessTime = time.Now()

	if cb.state == StateHalfOpen && cb.metrics.ConsecutiveSuccesses >= int64(cb.successThreshold) {
		cb.setState(StateClosed)
		cb.metrics.ConsecutiveSuccesses = 0
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.metrics.FailedCalls++
	cb.metrics.ConsecutiveFailures++
	cb.metrics.ConsecutiveSuccesses = 0
	cb.metrics.LastFailureTime = time.Now()

	if cb.state == StateHalfOpen {
		cb.setState(StateOpen)
	} else if cb.state == StateClosed && cb.metrics.ConsecutiveFailures >= int64(cb.failureThreshold) {
		cb.setState(StateOpen)
	}
}

// setState transitions the breaker; callers must hold the mutex
func (cb *CircuitBreaker) setState(state CircuitState) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, prev, state)
	}

	cb.logger.Info("Circuit breaker state changed",
		"name", cb.name,
		"from", prev.String(),
		"to", state.String(),
		"consecutive_failures", cb.metrics.ConsecutiveFailures,
	)
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Name returns the name of the circuit breaker
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// GetMetrics returns an immutable snapshot of the breaker's counters.
// Pure read, no side effects.
func (cb *CircuitBreaker) GetMetrics() MetricsSnapshot {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	total := cb.metrics.TotalCalls
	if total < 1 {
		total = 1
	}

	return MetricsSnapshot{
		Name:                cb.name,
		State:               cb.state.String(),
		TotalCalls:          cb.metrics.TotalCalls,
		SuccessfulCalls:     cb.metrics.SuccessfulCalls,
		FailedCalls:         cb.metrics.FailedCalls,
		SuccessRate:         float64(cb.metrics.SuccessfulCalls) / float64(total),
		ConsecutiveFailures: cb.metrics.ConsecutiveFailures,
		LastFailureTime:     cb.metrics.LastFailureTime,
		LastSuccessTime:     cb.metrics.LastSuccessTime,
	}
}

// BreakerOpenError is returned when a call is rejected because the breaker
// is open and the recovery timeout has not elapsed
type BreakerOpenError struct {
	Name string
}

func (e *BreakerOpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is open", e.Name)
}

// IsBreakerOpen checks if an error is a breaker rejection
func IsBreakerOpen(err error) bool {
	var openErr *BreakerOpenError
	return errors.As(err, &openErr)
}
