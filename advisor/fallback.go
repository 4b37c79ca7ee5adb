package advisor

import (
	"errors"
	"time"
)

var (
	errNoProvider = errors.New("advisor: no provider configured")
	errDegraded   = errors.New("advisor: serving fallback data")
)

// Static fallback dataset served whenever the provider is unreachable or
// malformed. Deliberately conservative: hold positions, flat trend, zero
// projected growth.

// FallbackRecommendations returns the conservative default set for a
// profile.
func FallbackRecommendations(profile RiskProfile) []Recommendation {
	base := []Recommendation{
		{AssetID: "usdc", Action: "hold", Weight: 0.6, Rationale: "stable yield while market data is unavailable"},
		{AssetID: "eth", Action: "hold", Weight: 0.4, Rationale: "maintain existing exposure"},
	}
	if profile == ProfileConservative {
		base[0].Weight, base[1].Weight = 0.8, 0.2
	}
	return base
}

// FallbackTrend returns the flat market trend.
func FallbackTrend() MarketTrend {
	return MarketTrend{Direction: "flat", Confidence: 0, AsOf: time.Unix(0, 0).UTC()}
}

// FallbackForecast returns a zero-growth projection for the asset.
func FallbackForecast(assetID string) YieldForecast {
	return YieldForecast{
		AssetID:       assetID,
		HorizonDays:   30,
		GrowthOutlook: "unknown",
	}
}
