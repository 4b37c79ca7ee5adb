package rates

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestUtilization(t *testing.T) {
	cases := []struct {
		name               string
		deposits, borrows  float64
		want               float64
	}{
		{"empty pool", 0, 0, 0},
		{"no deposits with borrows", 0, 50, 0},
		{"half utilized", 1000, 500, 0.5},
		{"fully utilized", 200, 200, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Utilization(tc.deposits, tc.borrows); !almostEqual(got, tc.want) {
				t.Fatalf("Utilization(%v, %v) = %v, want %v", tc.deposits, tc.borrows, got, tc.want)
			}
		})
	}
}

func TestSupplyRateScalesWithUtilization(t *testing.T) {
	// 50% utilization at a 10% borrow rate yields 5% for suppliers.
	if got := SupplyRate(1000, 500, 0.10); !almostEqual(got, 0.05) {
		t.Fatalf("SupplyRate = %v, want 0.05", got)
	}
	if got := SupplyRate(0, 0, 0.10); got != 0 {
		t.Fatalf("empty pool should yield 0, got %v", got)
	}
}

func TestBorrowRatePremiums(t *testing.T) {
	base := 0.04

	if got := BorrowRate(base, Signals{}); !almostEqual(got, base+liquidityWeight) {
		// Zero liquidity means maximum illiquidity premium.
		t.Fatalf("BorrowRate with zero signals = %v", got)
	}
	if got := BorrowRate(base, Signals{Liquidity: 1}); !almostEqual(got, base) {
		t.Fatalf("fully liquid market should carry no premium, got %v", got)
	}

	full := BorrowRate(base, Signals{Volatility: 1, Liquidity: 0, PriceDeviation: 1})
	want := base + volatilityWeight + liquidityWeight + deviationWeight
	if !almostEqual(full, want) {
		t.Fatalf("max premium rate = %v, want %v", full, want)
	}
}

func TestBorrowRateClampsSignals(t *testing.T) {
	// Out-of-range signals clamp to [0, 1] rather than amplifying.
	capped := BorrowRate(0.04, Signals{Volatility: 5, Liquidity: -3, PriceDeviation: 2})
	want := BorrowRate(0.04, Signals{Volatility: 1, Liquidity: 0, PriceDeviation: 1})
	if !almostEqual(capped, want) {
		t.Fatalf("clamped rate = %v, want %v", capped, want)
	}
}

func TestBorrowRateNeverNegative(t *testing.T) {
	if got := BorrowRate(-1, Signals{Liquidity: 1}); got != 0 {
		t.Fatalf("negative base must floor at 0, got %v", got)
	}
}

type holding struct {
	principal float64
	rate      float64
}

func TestWeightedAverage(t *testing.T) {
	holdings := []holding{
		{principal: 100, rate: 0.05},
		{principal: 300, rate: 0.10},
	}
	got := WeightedAverage(holdings,
		func(h holding) float64 { return h.principal },
		func(h holding) float64 { return h.rate })
	if !almostEqual(got, 0.0875) {
		t.Fatalf("WeightedAverage = %v, want 0.0875", got)
	}
}

func TestWeightedAverageZeroWeights(t *testing.T) {
	holdings := []holding{{principal: 0, rate: 0.05}, {principal: -10, rate: 0.10}}
	if got := WeightedAverage(holdings,
		func(h holding) float64 { return h.principal },
		func(h holding) float64 { return h.rate }); got != 0 {
		t.Fatalf("zero weight sum should yield 0, got %v", got)
	}
	if got := WeightedAverage(nil,
		func(h holding) float64 { return h.principal },
		func(h holding) float64 { return h.rate }); got != 0 {
		t.Fatalf("empty slice should yield 0, got %v", got)
	}
}
