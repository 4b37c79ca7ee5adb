// Package rates combines and aggregates rate figures already computed by the
// ledger. The curve formulas themselves live on-chain; nothing here
// reimplements them.
package rates

// Signals carry the market inputs that modulate the ledger-quoted borrow
// rate. Each is a unit fraction; values outside [0, 1] are clamped.
type Signals struct {
	Volatility     float64
	Liquidity      float64
	PriceDeviation float64
}

// Premium weights applied to the borrow-rate signals. The resulting premium
// is additive on top of the ledger-quoted base.
const (
	volatilityWeight = 0.02
	liquidityWeight  = 0.01
	deviationWeight  = 0.015
)

// Utilization returns totalBorrows / totalDeposits, and 0 when there are no
// deposits.
func Utilization(totalDeposits, totalBorrows float64) float64 {
	if totalDeposits <= 0 {
		return 0
	}
	return totalBorrows / totalDeposits
}

// SupplyRate derives the effective supply rate from the pool magnitudes and
// the ledger-quoted borrow rate: suppliers earn the borrow interest scaled by
// utilization.
func SupplyRate(totalDeposits, totalBorrows, borrowRate float64) float64 {
	return borrowRate * Utilization(totalDeposits, totalBorrows)
}

// BorrowRate applies the signal premiums to the ledger-quoted base rate.
func BorrowRate(baseRate float64, signals Signals) float64 {
	premium := clamp01(signals.Volatility)*volatilityWeight +
		clamp01(1-clamp01(signals.Liquidity))*liquidityWeight +
		clamp01(signals.PriceDeviation)*deviationWeight
	rate := baseRate + premium
	if rate < 0 {
		return 0
	}
	return rate
}

// WeightedAverage computes Σ(weight·value) / Σ(weight) over the items, and 0
// when the weight sum is zero. Negative weights are ignored.
func WeightedAverage[T any](items []T, weightFn func(T) float64, valueFn func(T) float64) float64 {
	var weightSum, valueSum float64
	for _, item := range items {
		weight := weightFn(item)
		if weight <= 0 {
			continue
		}
		weightSum += weight
		valueSum += weight * valueFn(item)
	}
	if weightSum == 0 {
		return 0
	}
	return valueSum / weightSum
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
