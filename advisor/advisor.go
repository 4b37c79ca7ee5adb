// Package advisor wraps the external market-data and recommendation
// provider behind a cache and a static fallback so the dashboard always has
// something to show.
package advisor

import "time"

// RiskProfile selects a recommendation bucket.
type RiskProfile string

const (
	ProfileConservative RiskProfile = "conservative"
	ProfileBalanced     RiskProfile = "balanced"
	ProfileAggressive   RiskProfile = "aggressive"
)

// Recommendation is one suggested allocation.
type Recommendation struct {
	AssetID   string  `json:"asset_id"`
	Action    string  `json:"action"`
	Weight    float64 `json:"weight"`
	Rationale string  `json:"rationale"`
}

// MarketTrend is the provider's market-wide read.
type MarketTrend struct {
	Direction  string    `json:"direction"`
	Confidence float64   `json:"confidence"`
	AsOf       time.Time `json:"as_of"`
}

// YieldForecast projects one asset's yield.
type YieldForecast struct {
	AssetID        string  `json:"asset_id"`
	CurrentRate    float64 `json:"current_rate"`
	ProjectedRate  float64 `json:"projected_rate"`
	HorizonDays    int     `json:"horizon_days"`
	GrowthOutlook  string  `json:"growth_outlook"`
}

// RecommendationSet is the cache/transport envelope for recommendations.
// Degraded marks values served from the static fallback dataset.
type RecommendationSet struct {
	Profile         RiskProfile      `json:"profile"`
	Recommendations []Recommendation `json:"recommendations"`
	Degraded        bool             `json:"degraded"`
}

// TrendResult wraps a trend with its degraded flag.
type TrendResult struct {
	Trend    MarketTrend `json:"trend"`
	Degraded bool        `json:"degraded"`
}

// ForecastResult wraps a forecast with its degraded flag.
type ForecastResult struct {
	Forecast YieldForecast `json:"forecast"`
	Degraded bool          `json:"degraded"`
}
