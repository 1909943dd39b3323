package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackHandler_PrimarySucceeds(t *testing.T) {
	h := NewFallbackHandler(DefaultFallbackConfig())

	fallbackCalls := 0
	op := h.WithFallback(
		func(ctx context.Context) (interface{}, error) { return "primary", nil },
		func(ctx context.Context) (interface{}, error) {
			fallbackCalls++
			return "fallback", nil
		},
		"key",
	)

	result, err := op(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "primary", result)
	assert.Equal(t, 0, fallbackCalls)
}

func TestFallbackHandler_ServesCachedOnFailure(t *testing.T) {
	h := NewFallbackHandler(DefaultFallbackConfig())

	// First call succeeds and populates the cache
	_, err := h.Do(context.Background(),
		func(ctx context.Context) (interface{}, error) { return "good value", nil },
		func(ctx context.Context) (interface{}, error) { return nil, errors.New("no fallback") },
		"key",
	)
	require.NoError(t, err)

	// Primary now fails; the fresh cached value wins over the fallback
	fallbackCalls := 0
	result, err := h.Do(context.Background(),
		func(ctx context.Context) (interface{}, error) { return nil, errors.New("primary down") },
		func(ctx context.Context) (interface{}, error) {
			fallbackCalls++
			return "fallback", nil
		},
		"key",
	)
	require.NoError(t, err)
	assert.Equal(t, "good value", result)
	assert.Equal(t, 0, fallbackCalls)
}

func TestFallbackHandler_FallsBackWhenCacheEmpty(t *testing.T) {
	h := NewFallbackHandler(DefaultFallbackConfig())

	result, err := h.Do(context.Background(),
		func(ctx context.Context) (interface{}, error) { return nil, errors.New("primary down") },
		func(ctx context.Context) (interface{}, error) { return "degraded", nil },
		"key",
	)

	require.NoError(t, err)
	assert.Equal(t, "degraded", result)
}

func TestFallbackHandler_FallbackResultIsCached(t *testing.T) {
	h := NewFallbackHandler(DefaultFallbackConfig())

	fallbackCalls := 0
	primary := func(ctx context.Context) (interface{}, error) { return nil, errors.New("primary down") }
	fallback := func(ctx context.Context) (interface{}, error) {
		fallbackCalls++
		return "degraded", nil
	}

	_, err := h.Do(context.Background(), primary, fallback, "key")
	require.NoError(t, err)

	// Second call hits the cache seeded by the fallback
	result, err := h.Do(context.Background(), primary, fallback, "key")
	require.NoError(t, err)
	assert.Equal(t, "degraded", result)
	assert.Equal(t, 1, fallbackCalls)
}

func TestFallbackHandler_ExpiredEntryEvicted(t *testing.T) {
	h := NewFallbackHandler(FallbackConfig{
		Enabled:  true,
		CacheTTL: 20 * time.Millisecond,
	})

	_, err := h.Do(context.Background(),
		func(ctx context.Context) (interface{}, error) { return "stale soon", nil },
		func(ctx context.Context) (interface{}, error) { return nil, errors.New("no fallback") },
		"key",
	)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	// Entry aged out: stale data is never served, the fallback runs instead
	fallbackCalls := 0
	result, err := h.Do(context.Background(),
		func(ctx context.Context) (interface{}, error) { return nil, errors.New("primary down") },
		func(ctx context.Context) (interface{}, error) {
			fallbackCalls++
			return "degraded", nil
		},
		"key",
	)
	require.NoError(t, err)
	assert.Equal(t, "degraded", result)
	assert.Equal(t, 1, fallbackCalls)
}

func TestFallbackHandler_ExhaustedError(t *testing.T) {
	h := NewFallbackHandler(DefaultFallbackConfig())

	primaryErr := errors.New("primary down")
	fallbackErr := errors.New("fallback down")

	_, err := h.Do(context.Background(),
		func(ctx context.Context) (interface{}, error) { return nil, primaryErr },
		func(ctx context.Context) (interface{}, error) { return nil, fallbackErr },
		"key",
	)

	require.Error(t, err)
	var exhausted *FallbackExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Same(t, primaryErr, exhausted.Primary)
	assert.Same(t, fallbackErr, exhausted.Fallback)
	// The fallback's error is what unwraps for callers
	assert.ErrorIs(t, err, fallbackErr)
}

func TestFallbackHandler_CachingDisabled(t *testing.T) {
	h := NewFallbackHandler(FallbackConfig{Enabled: false, CacheTTL: time.Minute})

	_, err := h.Do(context.Background(),
		func(ctx context.Context) (interface{}, error) { return "good value", nil },
		func(ctx context.Context) (interface{}, error) { return nil, errors.New("no fallback") },
		"key",
	)
	require.NoError(t, err)

	// Nothing was cached, so the fallback must run
	fallbackCalls := 0
	result, err := h.Do(context.Background(),
		func(ctx context.Context) (interface{}, error) { return nil, errors.New("primary down") },
		func(ctx context.Context) (interface{}, error) {
			fallbackCalls++
			return "degraded", nil
		},
		"key",
	)
	require.NoError(t, err)
	assert.Equal(t, "degraded", result)
	assert.Equal(t, 1, fallbackCalls)
}

func TestFallbackHandler_EmptyKeySkipsCache(t *testing.T) {
	h := NewFallbackHandler(DefaultFallbackConfig())

	_, err := h.Do(context.Background(),
		func(ctx context.Context) (interface{}, error) { return "good value", nil },
		func(ctx context.Context) (interface{}, error) { return nil, errors.New("no fallback") },
		"",
	)
	require.NoError(t, err)

	fallbackCalls := 0
	result, err := h.Do(context.Background(),
		func(ctx context.Context) (interface{}, error) { return nil, errors.New("primary down") },
		func(ctx context.Context) (interface{}, error) {
			fallbackCalls++
			return "degraded", nil
		},
		"",
	)
	require.NoError(t, err)
	assert.Equal(t, "degraded", result)
	assert.Equal(t, 1, fallbackCalls)
}

func TestFallbackHandler_KeysAreIsolated(t *testing.T) {
	h := NewFallbackHandler(DefaultFallbackConfig())

	_, err := h.Do(context.Background(),
		func(ctx context.Context) (interface{}, error) { return "aapl data", nil },
		func(ctx context.Context) (interface{}, error) { return nil, errors.New("no fallback") },
		"quote_AAPL",
	)
	require.NoError(t, err)

	// A different key doesn't see AAPL's cached entry
	result, err := h.Do(context.Background(),
		func(ctx context.Context) (interface{}, error) { return nil, errors.New("primary down") },
		func(ctx context.Context) (interface{}, error) { return "msft degraded", nil },
		"quote_MSFT",
	)
	require.NoError(t, err)
	assert.Equal(t, "msft degraded", result)
}
