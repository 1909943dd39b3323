package marketdata

import (
	"strings"
	"time"

	appErrors "github.com/finsight/finsight/pkg/errors"
)

// NormalizeSymbol canonicalizes a ticker symbol for cache keys and lookups
func NormalizeSymbol(symbol string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" || len(normalized) > 10 {
		return "", appErrors.NewValidationError("invalid stock symbol: " + symbol)
	}
	return normalized, nil
}

// Quote is a point-in-time view of a stock
type Quote struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	Sector        string    `json:"sector,omitempty"`
	Industry      string    `json:"industry,omitempty"`
	Price         float64   `json:"price,omitempty"`
	MarketCap     float64   `json:"market_cap,omitempty"`
	PERatio       float64   `json:"pe_ratio,omitempty"`
	DividendYield float64   `json:"dividend_yield,omitempty"`
	Degraded      bool      `json:"degraded,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Grade is an analyst rating bucket
type Grade string

const (
	GradeStrongBuy  Grade = "strong_buy"
	GradeBuy        Grade = "buy"
	GradeHold       Grade = "hold"
	GradeSell       Grade = "sell"
	GradeStrongSell Grade = "strong_sell"
)

// MapGrade buckets a provider's free-form rating string
func MapGrade(raw string) Grade {
	grade := strings.ToLower(strings.TrimSpace(raw))

	switch {
	case strings.Contains(grade, "strong sell"):
		return GradeStrongSell
	case strings.Contains(grade, "strong buy"):
		return GradeStrongBuy
	case grade == "buy":
		return GradeStrongBuy
	case strings.Contains(grade, "buy"):
		return GradeBuy
	case strings.Contains(grade, "hold"), strings.Contains(grade, "neutral"):
		return GradeHold
	case strings.Contains(grade, "sell"):
		return GradeSell
	default:
		return GradeHold
	}
}

// IsBullish reports whether the grade recommends buying
func (g Grade) IsBullish() bool {
	return g == GradeBuy || g == GradeStrongBuy
}

// IsBearish reports whether the grade recommends selling
func (g Grade) IsBearish() bool {
	return g == GradeSell || g == GradeStrongSell
}

// Recommendation is one analyst opinion on a stock
type Recommendation struct {
	Symbol      string    `json:"symbol"`
	Firm        string    `json:"firm"`
	Grade       Grade     `json:"grade"`
	PriceTarget float64   `json:"price_target,omitempty"`
	Date        time.Time `json:"date"`
}

// NewsItem is one company news article
type NewsItem struct {
	Symbol      string    `json:"symbol"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	Source      string    `json:"source,omitempty"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// IsRecent reports whether the article was published within the given window
func (n NewsItem) IsRecent(window time.Duration) bool {
	return time.Since(n.PublishedAt) <= window
}
