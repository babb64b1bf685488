package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/stratlab/internal/models"
)

// HTTPSource fetches bars, indicator values and coverage metadata from the
// historical data service over its JSON API.
type HTTPSource struct {
	baseURL string
	apiKey  string
	client  *RateLimitedHTTPClient
	logger  *logrus.Logger
}

// NewHTTPSource creates a source backed by the data service at baseURL
func NewHTTPSource(baseURL, apiKey string, client *RateLimitedHTTPClient, logger *logrus.Logger) *HTTPSource {
	if logger == nil {
		logger = logrus.New()
	}
	return &HTTPSource{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  client,
		logger:  logger,
	}
}

type barResponse struct {
	Symbol string `json:"symbol"`
	Bars   []struct {
		Timestamp time.Time `json:"timestamp"`
		Open      float64   `json:"open"`
		High      float64   `json:"high"`
		Low       float64   `json:"low"`
		Close     float64   `json:"close"`
		Volume    float64   `json:"volume"`
	} `json:"bars"`
}

type indicatorResponse struct {
	Value     *float64  `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

type coverageResponse struct {
	Fraction       float64   `json:"fraction"`
	FirstAvailable time.Time `json:"first_available"`
	LastAvailable  time.Time `json:"last_available"`
}

// GetBars fetches OHLCV bars for a symbol and date range
func (h *HTTPSource) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]models.Bar, error) {
	endpoint := fmt.Sprintf("%s/v1/bars/%s?start=%s&end=%s", h.baseURL, url.PathEscape(symbol),
		start.Format("2006-01-02"), end.Format("2006-01-02"))

	var parsed barResponse
	if err := h.getJSON(ctx, endpoint, &parsed); err != nil {
		return nil, fmt.Errorf("failed to fetch bars for %s: %w", symbol, err)
	}

	bars := make([]models.Bar, 0, len(parsed.Bars))
	for _, b := range parsed.Bars {
		bars = append(bars, models.Bar{
			Symbol:    symbol,
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	h.logger.WithFields(logrus.Fields{"symbol": symbol, "bars": len(bars)}).Debug("Fetched bars")
	return bars, nil
}

// GetIndicator fetches a single indicator value as of a timestamp
func (h *HTTPSource) GetIndicator(ctx context.Context, symbol, name string, asOf time.Time, lookback int) (float64, error) {
	endpoint := fmt.Sprintf("%s/v1/indicators/%s/%s?as_of=%s&lookback=%d", h.baseURL,
		url.PathEscape(symbol), url.PathEscape(name), asOf.Format(time.RFC3339), lookback)

	var parsed indicatorResponse
	if err := h.getJSON(ctx, endpoint, &parsed); err != nil {
		return 0, fmt.Errorf("failed to fetch indicator %s for %s: %w", name, symbol, err)
	}
	if parsed.Value == nil {
		return 0, ErrIndicatorUnavailable
	}
	return *parsed.Value, nil
}

// GetCoverage fetches data coverage metadata for universe validation
func (h *HTTPSource) GetCoverage(ctx context.Context, symbol string, start, end time.Time) (Coverage, bool) {
	endpoint := fmt.Sprintf("%s/v1/coverage/%s?start=%s&end=%s", h.baseURL, url.PathEscape(symbol),
		start.Format("2006-01-02"), end.Format("2006-01-02"))

	var parsed coverageResponse
	if err := h.getJSON(ctx, endpoint, &parsed); err != nil {
		h.logger.WithError(err).WithField("symbol", symbol).Warn("Coverage lookup failed")
		return Coverage{}, false
	}
	return Coverage{
		Fraction:       parsed.Fraction,
		FirstAvailable: parsed.FirstAvailable,
		LastAvailable:  parsed.LastAvailable,
	}, true
}

func (h *HTTPSource) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return models.NewDataError("no data at %s", endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
