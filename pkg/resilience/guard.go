package resilience

import (
	"context"

	"github.com/finsight/finsight/pkg/logging"
)

// Guard composes the full protective chain around an operation:
// fallback wraps retry wraps breaker wraps the operation. The breaker
// gates each individual retry attempt.
type Guard struct {
	breaker  *CircuitBreaker
	retrier  *Retrier
	fallback *FallbackHandler
	logger   *logging.Logger
}

// NewGuard creates a guard for one dependency
func NewGuard(name string, cbConfig CircuitBreakerConfig, retryConfig RetryConfig, fbConfig FallbackConfig) *Guard {
	if cbConfig.Name == "" {
		cbConfig.Name = name
	}

	return &Guard{
		breaker:  NewCircuitBreaker(cbConfig),
		retrier:  NewRetrier(retryConfig),
		fallback: NewFallbackHandler(fbConfig),
		logger:   logging.GetLogger(),
	}
}

// Do runs primary through the full chain. On total failure the caller gets
// either a stale cached value, the fallback's result, or the fallback's error.
func (g *Guard) Do(ctx context.Context, primary, fallback Operation, cacheKey string) (interface{}, error) {
	guarded := g.fallback.WithFallback(func(ctx context.Context) (interface{}, error) {
		return g.retrier.ExecuteWithResult(ctx, func(ctx context.Context) (interface{}, error) {
			return g.breaker.Execute(ctx, primary)
		})
	}, fallback, cacheKey)

	return guarded(ctx)
}

// Breaker exposes the guard's circuit breaker for monitoring registration
func (g *Guard) Breaker() *CircuitBreaker {
	return g.breaker
}
