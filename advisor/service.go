package advisor

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"folioscope/cache"
	"folioscope/observability/metrics"
)

// Service memoizes provider calls through the TTL cache and substitutes a
// static fallback dataset whenever the provider is unreachable or returns
// malformed output. Fallback results are cached under a shorter TTL so
// recovery is picked up quickly.
type Service struct {
	provider ProviderClient
	cache    *cache.Store
	logger   *slog.Logger
	metrics  *metrics.CoreMetrics
	limiter  *rate.Limiter
}

// NewService constructs the advisor service. The limiter bounds outbound
// provider calls; a nil provider serves fallback data only.
func NewService(provider ProviderClient, store *cache.Store, logger *slog.Logger, callsPerMinute int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if callsPerMinute <= 0 {
		callsPerMinute = 30
	}
	return &Service{
		provider: provider,
		cache:    store,
		logger:   logger,
		metrics:  metrics.Core(),
		limiter:  rate.NewLimiter(rate.Limit(float64(callsPerMinute)/60.0), callsPerMinute),
	}
}

// Recommend returns cached or fresh recommendations for the profile,
// falling back to the static dataset on any provider failure.
func (s *Service) Recommend(ctx context.Context, profile RiskProfile) RecommendationSet {
	key := "advisor:recommend:" + string(profile)
	value, err := s.cache.Do(key, cache.TTLMarketData, func() (interface{}, error) {
		recs, err := s.fetchRecommendations(ctx, profile)
		if err != nil {
			return nil, err
		}
		return RecommendationSet{Profile: profile, Recommendations: recs}, nil
	})
	if err != nil {
		s.degrade("recommendations", err)
		set := RecommendationSet{Profile: profile, Recommendations: FallbackRecommendations(profile), Degraded: true}
		s.cache.Set(key, set, cache.TTLDegraded)
		return set
	}
	set, ok := value.(RecommendationSet)
	if !ok {
		return RecommendationSet{Profile: profile, Recommendations: FallbackRecommendations(profile), Degraded: true}
	}
	return set
}

// Trends returns the cached or fresh market trend, falling back to the flat
// trend on failure.
func (s *Service) Trends(ctx context.Context) TrendResult {
	const key = "advisor:trends"
	value, err := s.cache.Do(key, cache.TTLMarketData, func() (interface{}, error) {
		trend, err := s.fetchTrends(ctx)
		if err != nil {
			return nil, err
		}
		return TrendResult{Trend: trend}, nil
	})
	if err != nil {
		s.degrade("trends", err)
		result := TrendResult{Trend: FallbackTrend(), Degraded: true}
		s.cache.Set(key, result, cache.TTLDegraded)
		return result
	}
	result, ok := value.(TrendResult)
	if !ok {
		return TrendResult{Trend: FallbackTrend(), Degraded: true}
	}
	return result
}

// Forecast returns the cached or fresh forecast for assetID, falling back to
// the zero-growth projection on failure.
func (s *Service) Forecast(ctx context.Context, assetID string) ForecastResult {
	key := "advisor:forecast:" + assetID
	value, err := s.cache.Do(key, cache.TTLMarketData, func() (interface{}, error) {
		forecast, err := s.fetchForecast(ctx, assetID)
		if err != nil {
			return nil, err
		}
		return ForecastResult{Forecast: forecast}, nil
	})
	if err != nil {
		s.degrade("forecast", err)
		result := ForecastResult{Forecast: FallbackForecast(assetID), Degraded: true}
		s.cache.Set(key, result, cache.TTLDegraded)
		return result
	}
	result, ok := value.(ForecastResult)
	if !ok {
		return ForecastResult{Forecast: FallbackForecast(assetID), Degraded: true}
	}
	return result
}

// Refresh warms the trend cache; the scheduler drives it on the advisor key.
func (s *Service) Refresh(ctx context.Context) error {
	s.cache.Delete("advisor:trends")
	result := s.Trends(ctx)
	if result.Degraded {
		return errDegraded
	}
	return nil
}

func (s *Service) fetchRecommendations(ctx context.Context, profile RiskProfile) ([]Recommendation, error) {
	if s.provider == nil {
		return nil, errNoProvider
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.provider.Recommend(ctx, profile)
}

func (s *Service) fetchTrends(ctx context.Context) (MarketTrend, error) {
	if s.provider == nil {
		return MarketTrend{}, errNoProvider
	}
	if err := s.wait(ctx); err != nil {
		return MarketTrend{}, err
	}
	return s.provider.Trends(ctx)
}

func (s *Service) fetchForecast(ctx context.Context, assetID string) (YieldForecast, error) {
	if s.provider == nil {
		return YieldForecast{}, errNoProvider
	}
	if err := s.wait(ctx); err != nil {
		return YieldForecast{}, err
	}
	return s.provider.Forecast(ctx, assetID)
}

func (s *Service) wait(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.limiter.Wait(waitCtx)
}

func (s *Service) degrade(op string, err error) {
	s.metrics.ObserveProviderFallback()
	s.logger.Warn("advisor provider degraded", "op", op, "error", err)
}
