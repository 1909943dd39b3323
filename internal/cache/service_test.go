package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKeyString(t *testing.T) {
	key := CacheKey{Prefix: PrefixQuote, ID: "AAPL"}
	assert.Equal(t, "quote:AAPL", key.String())

	key = CacheKey{Prefix: PrefixRecommendations, ID: "MSFT"}
	assert.Equal(t, "recommendations:MSFT", key.String())

	key = CacheKey{Prefix: PrefixNews, ID: "NVDA"}
	assert.Equal(t, "news:NVDA", key.String())
}
