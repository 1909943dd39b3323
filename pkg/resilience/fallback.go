package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/finsight/finsight/pkg/logging"
)

// FallbackConfig holds configuration for fallback behavior
type FallbackConfig struct {
	// Enabled turns the last-known-good cache on or off
	Enabled bool
	// CacheTTL is how long a cached result may serve as a fallback
	CacheTTL time.Duration
}

// DefaultFallbackConfig returns a default fallback configuration
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{
		Enabled:  true,
		CacheTTL: 5 * time.Minute,
	}
}

// Operation is a guarded unit of work
type Operation func(ctx context.Context) (interface{}, error)

type cacheEntry struct {
	value     interface{}
	timestamp time.Time
}

// FallbackHandler wraps a primary operation with a degraded alternative and
// a cache of last-known-good results. Cache state is private to the handler.
type FallbackHandler struct {
	config FallbackConfig
	cache  map[string]cacheEntry
	mutex  sync.Mutex
	logger *logging.Logger
}

// NewFallbackHandler creates a new fallback handler
func NewFallbackHandler(config FallbackConfig) *FallbackHandler {
	return &FallbackHandler{
		config: config,
		cache:  make(map[string]cacheEntry),
		logger: logging.GetLogger(),
	}
}

// WithFallback produces an operation that runs primary and degrades to the
// cached last-known-good value or the fallback when primary fails. A fresh
// cache hit wins over the fallback; the fallback's own failure is what
// propagates when nothing else can serve.
func (h *FallbackHandler) WithFallback(primary, fallback Operation, cacheKey string) Operation {
	return func(ctx context.Context) (interface{}, error) {
		result, err := primary(ctx)
		if err == nil {
			h.cacheResult(cacheKey, result)
			return result, nil
		}

		h.logger.Warn("Primary operation failed, attempting fallback",
			"cache_key", cacheKey,
			"error", err.Error(),
		)

		if cached, ok := h.cachedResult(cacheKey); ok {
			h.logger.Info("Serving cached fallback data", "cache_key", cacheKey)
			return cached, nil
		}

		fallbackResult, fallbackErr := fallback(ctx)
		if fallbackErr != nil {
			h.logger.Error("Fallback also failed",
				"cache_key", cacheKey,
				"primary_error", err.Error(),
				"fallback_error", fallbackErr.Error(),
			)
			return nil, &FallbackExhaustedError{Primary: err, Fallback: fallbackErr}
		}

		h.cacheResult(cacheKey, fallbackResult)
		return fallbackResult, nil
	}
}

// Do invokes the wrapped operation immediately
func (h *FallbackHandler) Do(ctx context.Context, primary, fallback Operation, cacheKey string) (interface{}, error) {
	return h.WithFallback(primary, fallback, cacheKey)(ctx)
}

func (h *FallbackHandler) cacheResult(key string, value interface{}) {
	if key == "" || !h.config.Enabled {
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.cache[key] = cacheEntry{value: value, timestamp: time.Now()}
}

// cachedResult returns a fresh entry, lazily evicting expired ones
func (h *FallbackHandler) cachedResult(key string) (interface{}, bool) {
	if key == "" || !h.config.Enabled {
		return nil, false
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	entry, ok := h.cache[key]
	if !ok {
		return nil, false
	}

	if time.Since(entry.timestamp) > h.config.CacheTTL {
		delete(h.cache, key)
		return nil, false
	}

	return entry.value, true
}

// FallbackExhaustedError is returned when both the primary path and the
// fallback failed and no fresh cached value existed
type FallbackExhaustedError struct {
	Primary  error
	Fallback error
}

func (e *FallbackExhaustedError) Error() string {
	return fmt.Sprintf("fallback failed: %v (primary: %v)", e.Fallback, e.Primary)
}

// Unwrap returns the fallback's error, which is what propagates to callers
func (e *FallbackExhaustedError) Unwrap() error {
	return e.Fallback
}
