package advisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"folioscope/cache"
)

type fakeProvider struct {
	recommendations []Recommendation
	trend           MarketTrend
	forecast        YieldForecast
	err             error
	calls           int
}

func (f *fakeProvider) Recommend(ctx context.Context, profile RiskProfile) ([]Recommendation, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.recommendations, nil
}

func (f *fakeProvider) Trends(ctx context.Context) (MarketTrend, error) {
	f.calls++
	if f.err != nil {
		return MarketTrend{}, f.err
	}
	return f.trend, nil
}

func (f *fakeProvider) Forecast(ctx context.Context, assetID string) (YieldForecast, error) {
	f.calls++
	if f.err != nil {
		return YieldForecast{}, f.err
	}
	return f.forecast, nil
}

func TestRecommendServesProviderData(t *testing.T) {
	provider := &fakeProvider{recommendations: []Recommendation{
		{AssetID: "eth", Action: "supply", Weight: 1},
	}}
	s := NewService(provider, cache.New(), nil, 60)

	set := s.Recommend(context.Background(), ProfileBalanced)
	if set.Degraded {
		t.Fatal("healthy provider must not be degraded")
	}
	if len(set.Recommendations) != 1 || set.Recommendations[0].AssetID != "eth" {
		t.Fatalf("recommendations = %+v", set.Recommendations)
	}
}

func TestRecommendCachesResults(t *testing.T) {
	provider := &fakeProvider{recommendations: []Recommendation{{AssetID: "eth", Action: "hold", Weight: 1}}}
	s := NewService(provider, cache.New(), nil, 60)

	s.Recommend(context.Background(), ProfileBalanced)
	s.Recommend(context.Background(), ProfileBalanced)
	if provider.calls != 1 {
		t.Fatalf("expected one provider call, got %d", provider.calls)
	}
}

func TestRecommendFallsBackOnProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("provider 503")}
	s := NewService(provider, cache.New(), nil, 60)

	set := s.Recommend(context.Background(), ProfileConservative)
	if !set.Degraded {
		t.Fatal("failed provider must mark the result degraded")
	}
	if len(set.Recommendations) == 0 {
		t.Fatal("fallback set must not be empty")
	}
	if set.Recommendations[0].Weight != 0.8 {
		t.Fatalf("conservative profile should weight stables at 0.8, got %v", set.Recommendations[0].Weight)
	}
}

func TestNoProviderServesFallback(t *testing.T) {
	s := NewService(nil, cache.New(), nil, 60)

	set := s.Recommend(context.Background(), ProfileBalanced)
	if !set.Degraded || len(set.Recommendations) == 0 {
		t.Fatalf("expected degraded fallback set, got %+v", set)
	}
	trends := s.Trends(context.Background())
	if !trends.Degraded || trends.Trend.Direction != "flat" {
		t.Fatalf("expected flat fallback trend, got %+v", trends)
	}
	forecast := s.Forecast(context.Background(), "eth")
	if !forecast.Degraded || forecast.Forecast.AssetID != "eth" || forecast.Forecast.HorizonDays != 30 {
		t.Fatalf("expected fallback forecast, got %+v", forecast)
	}
}

func TestDegradedResultsExpireQuickly(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := cache.New(cache.WithClock(func() time.Time { return now }))
	provider := &fakeProvider{err: errors.New("down")}
	s := NewService(provider, store, nil, 60)

	s.Trends(context.Background())
	if provider.calls != 1 {
		t.Fatalf("provider calls = %d", provider.calls)
	}

	// While the degraded TTL holds, no new provider call happens.
	s.Trends(context.Background())
	if provider.calls != 1 {
		t.Fatalf("degraded result should serve from cache, calls = %d", provider.calls)
	}

	// After the shorter degraded TTL, recovery is retried.
	now = now.Add(cache.TTLDegraded + time.Second)
	provider.err = nil
	provider.trend = MarketTrend{Direction: "up", Confidence: 0.9}
	result := s.Trends(context.Background())
	if provider.calls != 2 {
		t.Fatalf("expected retry after degraded ttl, calls = %d", provider.calls)
	}
	if result.Degraded || result.Trend.Direction != "up" {
		t.Fatalf("expected recovered trend, got %+v", result)
	}
}

func TestRefreshReportsDegradation(t *testing.T) {
	s := NewService(nil, cache.New(), nil, 60)
	if err := s.Refresh(context.Background()); err == nil {
		t.Fatal("refresh with no provider should report degradation")
	}

	provider := &fakeProvider{trend: MarketTrend{Direction: "up"}}
	s = NewService(provider, cache.New(), nil, 60)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
}
