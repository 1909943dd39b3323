// Package resilience provides circuit breaker, retry, and fallback
// capabilities guarding calls to unreliable market-data providers.
//
// This package implements the following patterns:
//
// # Circuit Breaker Pattern
//
// The circuit breaker opens after a configurable number of consecutive
// failures and rejects calls until the recovery timeout elapses, at which
// point the next call probes the dependency in half-open state.
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//		Name:             "quote-api",
//		FailureThreshold: 5,
//		RecoveryTimeout:  60 * time.Second,
//		SuccessThreshold: 3,
//	})
//
//	result, err := cb.Execute(ctx, func(ctx context.Context) (interface{}, error) {
//		return provider.FetchQuote(ctx, symbol)
//	})
//
// # Retry with Exponential Backoff
//
// The retrier re-invokes a failing operation with exponentially growing
// delays and optional ±25% jitter. The last underlying error is returned
// unchanged so callers can inspect the failure cause.
//
//	retrier := resilience.NewRetrier(resilience.DefaultRetryConfig())
//	err := retrier.Execute(ctx, func(ctx context.Context) error {
//		return riskyOperation(ctx)
//	})
//
// # Fallback with Last-Known-Good Cache
//
// The fallback handler degrades gracefully: a fresh cached result is
// preferred over the degraded fallback, and only the fallback's own
// failure propagates to the caller.
//
//	fb := resilience.NewFallbackHandler(resilience.DefaultFallbackConfig())
//	op := fb.WithFallback(fetchLive, fetchDefault, "quote_AAPL")
//	result, err := op(ctx)
//
// # Combined Usage
//
// Guard layers all three in the canonical order, fallback over retry over
// breaker, so the breaker sees every individual attempt:
//
//	g := resilience.NewGuard("quote-api", cbConfig, retryConfig, fbConfig)
//	result, err := g.Do(ctx, fetchLive, fetchDefault, "quote_AAPL")
//
// All components are safe for concurrent use from multiple goroutines.
package resilience
