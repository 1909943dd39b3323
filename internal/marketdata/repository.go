package marketdata

import (
	"context"
	"sort"
	"time"

	"github.com/finsight/finsight/internal/cache"
	"github.com/finsight/finsight/internal/monitoring"
	"github.com/finsight/finsight/pkg/config"
	"github.com/finsight/finsight/pkg/logging"
	"github.com/finsight/finsight/pkg/resilience"
)

// ReadCache is the fast-path cache consulted before the guarded fetch.
// Implemented by internal/cache; may be nil to disable the fast path.
type ReadCache interface {
	Get(ctx context.Context, key cache.CacheKey, dest interface{}) (bool, error)
	Set(ctx context.Context, key cache.CacheKey, value interface{}, ttl time.Duration) error
}

// QuoteRepository fetches stock quotes through the full protective chain:
// read cache, then fallback over retry over breaker over the provider call.
type QuoteRepository struct {
	client    *Client
	guard     *resilience.Guard
	readCache ReadCache
	monitor   *monitoring.Service
	cacheTTL  time.Duration
	logger    *logging.Logger
}

// NewQuoteRepository creates a quote repository and registers its breaker
// with the monitoring service
func NewQuoteRepository(client *Client, readCache ReadCache, monitor *monitoring.Service, cfg *config.Config) *QuoteRepository {
	guard := resilience.NewGuard("quote_api",
		resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			RecoveryTimeout:  30 * time.Second,
			SuccessThreshold: cfg.Resilience.SuccessThreshold,
		},
		resilience.RetryConfig{
			MaxAttempts:   2,
			InitialDelay:  cfg.Resilience.InitialDelay,
			BackoffFactor: cfg.Resilience.BackoffFactor,
			MaxDelay:      cfg.Resilience.MaxDelay,
			Jitter:        cfg.Resilience.Jitter,
			OnRetry: func(attempt int, err error, delay time.Duration) {
				if monitor != nil {
					monitor.RecordRetry("quote_api")
				}
			},
		},
		resilience.FallbackConfig{
			Enabled:  cfg.Resilience.FallbackEnabled,
			CacheTTL: 10 * time.Minute,
		},
	)

	repo := &QuoteRepository{
		client:    client,
		guard:     guard,
		readCache: readCache,
		monitor:   monitor,
		cacheTTL:  cfg.MarketData.QuoteCacheTTL,
		logger:    logging.GetLogger(),
	}

	if monitor != nil {
		monitor.RegisterCircuitBreaker(guard.Breaker())
	}

	return repo
}

// FindBySymbol returns the quote for a symbol. On total provider failure the
// caller gets a stale cached quote or a degraded name-only quote, never a
// half-populated one.
func (r *QuoteRepository) FindBySymbol(ctx context.Context, symbol string) (*Quote, error) {
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	key := cache.CacheKey{Prefix: cache.PrefixQuote, ID: normalized}
	if r.readCache != nil {
		var cached Quote
		if hit, err := r.readCache.Get(ctx, key, &cached); err == nil && hit {
			if r.monitor != nil {
				r.monitor.RecordCacheHit(cache.PrefixQuote)
			}
			return &cached, nil
		}
		if r.monitor != nil {
			r.monitor.RecordCacheMiss(cache.PrefixQuote)
		}
	}

	start := time.Now()

	result, err := r.guard.Do(ctx,
		func(ctx context.Context) (interface{}, error) {
			return r.client.FetchQuote(ctx, normalized)
		},
		func(ctx context.Context) (interface{}, error) {
			r.logger.Info("Serving degraded quote", "symbol", normalized)
			if r.monitor != nil {
				r.monitor.RecordFallback("quote_api", "degraded")
			}
			return &Quote{
				Symbol:    normalized,
				Name:      normalized + " (cached)",
				Degraded:  true,
				UpdatedAt: time.Now(),
			}, nil
		},
		"quote_"+normalized,
	)

	r.recordRequest(err == nil, time.Since(start))
	if err != nil {
		return nil, err
	}

	quote := result.(*Quote)
	if r.readCache != nil && !quote.Degraded {
		if err := r.readCache.Set(ctx, key, quote, r.cacheTTL); err != nil {
			r.logger.Warn("Failed to cache quote", "symbol", normalized, "error", err.Error())
		}
	}

	return quote, nil
}

// FindAllBySymbols returns quotes for every symbol that resolved
func (r *QuoteRepository) FindAllBySymbols(ctx context.Context, symbols []string) []*Quote {
	quotes := make([]*Quote, 0, len(symbols))
	for _, symbol := range symbols {
		quote, err := r.FindBySymbol(ctx, symbol)
		if err != nil {
			r.logger.Warn("Skipping symbol", "symbol", symbol, "error", err.Error())
			continue
		}
		quotes = append(quotes, quote)
	}
	return quotes
}

func (r *QuoteRepository) recordRequest(success bool, elapsed time.Duration) {
	if r.monitor != nil {
		r.monitor.RecordRequest(success, elapsed)
	}
}

// RecommendationRepository fetches analyst recommendations through its own
// guarded chain; the degraded fallback is an empty list.
type RecommendationRepository struct {
	client    *Client
	guard     *resilience.Guard
	readCache ReadCache
	monitor   *monitoring.Service
	cacheTTL  time.Duration
	logger    *logging.Logger
}

// NewRecommendationRepository creates a recommendation repository and
// registers its breaker with the monitoring service
func NewRecommendationRepository(client *Client, readCache ReadCache, monitor *monitoring.Service, cfg *config.Config) *RecommendationRepository {
	guard := resilience.NewGuard("recommendations_api",
		resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			RecoveryTimeout:  60 * time.Second,
			SuccessThreshold: cfg.Resilience.SuccessThreshold,
		},
		resilience.RetryConfig{
			MaxAttempts:   2,
			InitialDelay:  cfg.Resilience.InitialDelay,
			BackoffFactor: cfg.Resilience.BackoffFactor,
			MaxDelay:      cfg.Resilience.MaxDelay,
			Jitter:        cfg.Resilience.Jitter,
			OnRetry: func(attempt int, err error, delay time.Duration) {
				if monitor != nil {
					monitor.RecordRetry("recommendations_api")
				}
			},
		},
		resilience.FallbackConfig{
			Enabled:  cfg.Resilience.FallbackEnabled,
			CacheTTL: 30 * time.Minute,
		},
	)

	repo := &RecommendationRepository{
		client:    client,
		guard:     guard,
		readCache: readCache,
		monitor:   monitor,
		cacheTTL:  cfg.MarketData.RecommendationsTTL,
		logger:    logging.GetLogger(),
	}

	if monitor != nil {
		monitor.RegisterCircuitBreaker(guard.Breaker())
	}

	return repo
}

// FindBySymbol returns all analyst recommendations for a symbol
func (r *RecommendationRepository) FindBySymbol(ctx context.Context, symbol string) ([]Recommendation, error) {
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	key := cache.CacheKey{Prefix: cache.PrefixRecommendations, ID: normalized}
	if r.readCache != nil {
		var cached []Recommendation
		if hit, err := r.readCache.Get(ctx, key, &cached); err == nil && hit {
			if r.monitor != nil {
				r.monitor.RecordCacheHit(cache.PrefixRecommendations)
			}
			return cached, nil
		}
		if r.monitor != nil {
			r.monitor.RecordCacheMiss(cache.PrefixRecommendations)
		}
	}

	start := time.Now()

	result, err := r.guard.Do(ctx,
		func(ctx context.Context) (interface{}, error) {
			return r.client.FetchRecommendations(ctx, normalized)
		},
		func(ctx context.Context) (interface{}, error) {
			r.logger.Info("Serving empty recommendations fallback", "symbol", normalized)
			if r.monitor != nil {
				r.monitor.RecordFallback("recommendations_api", "empty")
			}
			return []Recommendation{}, nil
		},
		"recommendations_"+normalized,
	)

	r.recordRequest(err == nil, time.Since(start))
	if err != nil {
		return nil, err
	}

	recommendations := result.([]Recommendation)
	if r.readCache != nil && len(recommendations) > 0 {
		if err := r.readCache.Set(ctx, key, recommendations, r.cacheTTL); err != nil {
			r.logger.Warn("Failed to cache recommendations", "symbol", normalized, "error", err.Error())
		}
	}

	return recommendations, nil
}

// FindRecentBySymbol returns the most recent recommendations, newest first
func (r *RecommendationRepository) FindRecentBySymbol(ctx context.Context, symbol string, limit int) ([]Recommendation, error) {
	recommendations, err := r.FindBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}

	sort.Slice(recommendations, func(i, j int) bool {
		return recommendations[i].Date.After(recommendations[j].Date)
	})

	if limit > 0 && len(recommendations) > limit {
		recommendations = recommendations[:limit]
	}
	return recommendations, nil
}

func (r *RecommendationRepository) recordRequest(success bool, elapsed time.Duration) {
	if r.monitor != nil {
		r.monitor.RecordRequest(success, elapsed)
	}
}

// NewsRepository fetches company news. News is best-effort: a failed fetch
// yields an empty list rather than an error.
type NewsRepository struct {
	client    *Client
	readCache ReadCache
	monitor   *monitoring.Service
	cacheTTL  time.Duration
	logger    *logging.Logger
}

// NewNewsRepository creates a news repository
func NewNewsRepository(client *Client, readCache ReadCache, monitor *monitoring.Service, cfg *config.Config) *NewsRepository {
	return &NewsRepository{
		client:    client,
		readCache: readCache,
		monitor:   monitor,
		cacheTTL:  cfg.MarketData.NewsCacheTTL,
		logger:    logging.GetLogger(),
	}
}

// FindBySymbol returns recent news for a symbol
func (r *NewsRepository) FindBySymbol(ctx context.Context, symbol string) []NewsItem {
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		r.logger.Warn("Invalid symbol for news lookup", "symbol", symbol)
		return nil
	}

	key := cache.CacheKey{Prefix: cache.PrefixNews, ID: normalized}
	if r.readCache != nil {
		var cached []NewsItem
		if hit, err := r.readCache.Get(ctx, key, &cached); err == nil && hit {
			if r.monitor != nil {
				r.monitor.RecordCacheHit(cache.PrefixNews)
			}
			return cached
		}
		if r.monitor != nil {
			r.monitor.RecordCacheMiss(cache.PrefixNews)
		}
	}

	start := time.Now()
	items, err := r.client.FetchNews(ctx, normalized, 20)
	if r.monitor != nil {
		r.monitor.RecordRequest(err == nil, time.Since(start))
	}
	if err != nil {
		r.logger.Error("Failed to fetch news", "symbol", normalized, "error", err.Error())
		return nil
	}

	if r.readCache != nil && len(items) > 0 {
		if err := r.readCache.Set(ctx, key, items, r.cacheTTL); err != nil {
			r.logger.Warn("Failed to cache news", "symbol", normalized, "error", err.Error())
		}
	}

	return items
}

// FindRecentBySymbol returns the most recent news items, newest first
func (r *NewsRepository) FindRecentBySymbol(ctx context.Context, symbol string, limit int) []NewsItem {
	items := r.FindBySymbol(ctx, symbol)

	sort.Slice(items, func(i, j int) bool {
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
