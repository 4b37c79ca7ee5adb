// Package portfolio folds ledger reads into per-account, UI-ready views.
package portfolio

import (
	"fmt"
	"time"

	"folioscope/risk"
)

// PositionKind discriminates the position variants.
type PositionKind int

const (
	Lending PositionKind = iota
	Borrowing
	Collateral
)

// String implements fmt.Stringer.
func (k PositionKind) String() string {
	switch k {
	case Lending:
		return "lending"
	case Borrowing:
		return "borrowing"
	case Collateral:
		return "collateral"
	}
	return fmt.Sprintf("position_kind(%d)", int(k))
}

// MarshalText renders the kind for JSON payloads.
func (k PositionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the textual kind.
func (k *PositionKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "lending":
		*k = Lending
	case "borrowing":
		*k = Borrowing
	case "collateral":
		*k = Collateral
	default:
		return fmt.Errorf("portfolio: unknown position kind %q", text)
	}
	return nil
}

// Position is one account's stake in one asset market, in the asset's
// decimal units. Positions are rebuilt wholesale each refresh cycle and
// never mutated in place.
type Position struct {
	Kind      PositionKind `json:"kind"`
	AssetID   string       `json:"asset_id"`
	Symbol    string       `json:"symbol"`
	Principal float64      `json:"principal"`
	Accrued   float64      `json:"accrued"`
	Rate      float64      `json:"rate"`
	// HealthRatio and Status are populated for Borrowing and Collateral
	// positions only.
	HealthRatio float64     `json:"health_ratio,omitempty"`
	Status      risk.Status `json:"status"`
}

// Summary aggregates one account's positions. Amounts are decimal
// normalized; rates are unit fractions.
type Summary struct {
	Account         string     `json:"account"`
	TotalDeposited  float64    `json:"total_deposited"`
	TotalBorrowed   float64    `json:"total_borrowed"`
	TotalCollateral float64    `json:"total_collateral"`
	CollateralRatio float64    `json:"collateral_ratio"`
	AvgHealthRatio  float64    `json:"avg_health_ratio"`
	AvgYield        float64    `json:"avg_yield"`
	BorrowHeadroom  float64    `json:"borrow_headroom"`
	Positions       []Position `json:"positions"`
	SkippedAssets   []string   `json:"skipped_assets,omitempty"`
	// Degraded marks a refresh where no asset read succeeded and at least
	// one failed. Degraded summaries are never cached.
	Degraded    bool      `json:"degraded,omitempty"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// MarketStat is one asset market's protocol-wide snapshot.
type MarketStat struct {
	AssetID     string  `json:"asset_id"`
	Symbol      string  `json:"symbol"`
	Deposits    float64 `json:"deposits"`
	Borrows     float64 `json:"borrows"`
	Utilization float64 `json:"utilization"`
	SupplyRate  float64 `json:"supply_rate"`
	BorrowRate  float64 `json:"borrow_rate"`
}

// Analytics is the protocol-wide view across all catalog assets.
type Analytics struct {
	Markets       []MarketStat `json:"markets"`
	TotalDeposits float64      `json:"total_deposits"`
	TotalBorrows  float64      `json:"total_borrows"`
	RefreshedAt   time.Time    `json:"refreshed_at"`
}

// SummaryKey is the cache key for one account's summary.
func SummaryKey(account string) string {
	return "portfolio:" + account
}

// AnalyticsKey is the cache key for the protocol-wide view.
const AnalyticsKey = "analytics"
