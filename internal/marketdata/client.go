package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/finsight/finsight/pkg/config"
	appErrors "github.com/finsight/finsight/pkg/errors"
	"github.com/finsight/finsight/pkg/logging"
)

const providerName = "marketdata"

// Client talks to the external market-data provider's JSON API.
// It performs single attempts only; retries and breaking are layered on by
// the repositories through pkg/resilience.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *logging.Logger
}

// NewClient creates a market data client
func NewClient(cfg *config.MarketDataConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    cfg.BaseURL,
		logger:     logging.GetLogger(),
	}
}

type quotePayload struct {
	Symbol        string  `json:"symbol"`
	LongName      string  `json:"longName"`
	ShortName     string  `json:"shortName"`
	Sector        string  `json:"sector"`
	Industry      string  `json:"industry"`
	CurrentPrice  float64 `json:"currentPrice"`
	MarketCap     float64 `json:"marketCap"`
	TrailingPE    float64 `json:"trailingPE"`
	DividendYield float64 `json:"dividendYield"`
}

type recommendationPayload struct {
	Firm        string  `json:"firm"`
	ToGrade     string  `json:"toGrade"`
	PriceTarget float64 `json:"priceTarget"`
	Date        int64   `json:"date"`
}

type newsPayload struct {
	Title               string `json:"title"`
	Summary             string `json:"summary"`
	Publisher           string `json:"publisher"`
	Link                string `json:"link"`
	ProviderPublishTime int64  `json:"providerPublishTime"`
}

// FetchQuote fetches the current quote for a symbol
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*Quote, error) {
	var payload quotePayload
	if err := c.get(ctx, fmt.Sprintf("/v1/quote/%s", url.PathEscape(symbol)), &payload); err != nil {
		return nil, err
	}

	if payload.Symbol == "" {
		return nil, appErrors.NewSymbolNotFoundError(symbol)
	}

	name := payload.LongName
	if name == "" {
		name = payload.ShortName
	}

	return &Quote{
		Symbol:        payload.Symbol,
		Name:          name,
		Sector:        payload.Sector,
		Industry:      payload.Industry,
		Price:         payload.CurrentPrice,
		MarketCap:     payload.MarketCap,
		PERatio:       payload.TrailingPE,
		DividendYield: payload.DividendYield,
		UpdatedAt:     time.Now(),
	}, nil
}

// FetchRecommendations fetches analyst recommendations for a symbol
func (c *Client) FetchRecommendations(ctx context.Context, symbol string) ([]Recommendation, error) {
	var payloads []recommendationPayload
	if err := c.get(ctx, fmt.Sprintf("/v1/recommendations/%s", url.PathEscape(symbol)), &payloads); err != nil {
		return nil, err
	}

	recommendations := make([]Recommendation, 0, len(payloads))
	for _, p := range payloads {
		firm := p.Firm
		if firm == "" {
			firm = "Unknown"
		}
		recommendations = append(recommendations, Recommendation{
			Symbol:      symbol,
			Firm:        firm,
			Grade:       MapGrade(p.ToGrade),
			PriceTarget: p.PriceTarget,
			Date:        time.Unix(p.Date, 0),
		})
	}

	return recommendations, nil
}

// FetchNews fetches recent company news for a symbol, newest first
func (c *Client) FetchNews(ctx context.Context, symbol string, limit int) ([]NewsItem, error) {
	var payloads []newsPayload
	if err := c.get(ctx, fmt.Sprintf("/v1/news/%s", url.PathEscape(symbol)), &payloads); err != nil {
		return nil, err
	}

	if limit > 0 && len(payloads) > limit {
		payloads = payloads[:limit]
	}

	items := make([]NewsItem, 0, len(payloads))
	for _, p := range payloads {
		items = append(items, NewsItem{
			Symbol:      symbol,
			Title:       p.Title,
			Summary:     p.Summary,
			Source:      p.Publisher,
			URL:         p.Link,
			PublishedAt: time.Unix(p.ProviderPublishTime, 0),
		})
	}

	return items, nil
}

func (c *Client) get(ctx context.Context, path string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return appErrors.NewInternalError("failed to build provider request").WithCause(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return appErrors.NewTimeoutError("market data request")
		}
		return appErrors.NewExternalError(providerName, "provider request failed").WithCause(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return appErrors.NewAppError(appErrors.ErrorTypeNotFound, "NOT_FOUND", "resource not found").
			WithDetail("path", path)
	case resp.StatusCode == http.StatusTooManyRequests:
		return appErrors.NewRateLimitError("provider rate limit exceeded")
	case resp.StatusCode >= 400:
		return appErrors.NewExternalError(providerName,
			fmt.Sprintf("provider returned status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return appErrors.NewExternalError(providerName, "failed to decode provider response").WithCause(err)
	}

	return nil
}
