package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ProviderClient defines the subset of the provider API the service calls.
type ProviderClient interface {
	Recommend(ctx context.Context, profile RiskProfile) ([]Recommendation, error)
	Trends(ctx context.Context) (MarketTrend, error)
	Forecast(ctx context.Context, assetID string) (YieldForecast, error)
}

// HTTPProviderClient implements ProviderClient against the provider's HTTP
// API.
type HTTPProviderClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewHTTPProviderClient constructs a client with sane defaults.
func NewHTTPProviderClient(baseURL, apiKey string, timeout time.Duration) *HTTPProviderClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProviderClient{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Recommend fetches recommendations for the risk profile.
func (c *HTTPProviderClient) Recommend(ctx context.Context, profile RiskProfile) ([]Recommendation, error) {
	var out struct {
		Recommendations []Recommendation `json:"recommendations"`
	}
	query := url.Values{"risk": []string{string(profile)}}
	if err := c.get(ctx, "/v1/recommendations?"+query.Encode(), &out); err != nil {
		return nil, err
	}
	if len(out.Recommendations) == 0 {
		return nil, fmt.Errorf("advisor: provider returned no recommendations")
	}
	for _, rec := range out.Recommendations {
		if strings.TrimSpace(rec.AssetID) == "" || strings.TrimSpace(rec.Action) == "" {
			return nil, fmt.Errorf("advisor: provider recommendation missing fields")
		}
	}
	return out.Recommendations, nil
}

// Trends fetches the market-wide trend.
func (c *HTTPProviderClient) Trends(ctx context.Context) (MarketTrend, error) {
	var out MarketTrend
	if err := c.get(ctx, "/v1/trends", &out); err != nil {
		return MarketTrend{}, err
	}
	if strings.TrimSpace(out.Direction) == "" {
		return MarketTrend{}, fmt.Errorf("advisor: provider trend missing direction")
	}
	return out, nil
}

// Forecast fetches one asset's yield forecast.
func (c *HTTPProviderClient) Forecast(ctx context.Context, assetID string) (YieldForecast, error) {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return YieldForecast{}, fmt.Errorf("advisor: asset id required")
	}
	var out YieldForecast
	if err := c.get(ctx, "/v1/forecast/"+url.PathEscape(assetID), &out); err != nil {
		return YieldForecast{}, err
	}
	if strings.TrimSpace(out.AssetID) == "" {
		out.AssetID = assetID
	}
	return out, nil
}

func (c *HTTPProviderClient) get(ctx context.Context, path string, out interface{}) error {
	if c == nil || c.http == nil {
		return fmt.Errorf("advisor: client not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("advisor: build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("advisor: provider request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("advisor: read provider response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("advisor: provider status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("advisor: decode provider response: %w", err)
	}
	return nil
}
