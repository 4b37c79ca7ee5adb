// Package risk classifies position health. The authoritative collateral and
// debt valuation lives on the ledger; this package only interprets the
// health ratios the ledger reports.
package risk

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Status is the three-level risk classification of a position.
type Status int

const (
	Safe Status = iota
	Warning
	Danger
)

// Classification thresholds. Boundary values belong to the higher band: a
// ratio of exactly 1.5 is Safe and exactly 1.2 is Warning.
const (
	SafeThreshold   = 1.5
	DangerThreshold = 1.2
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case Safe:
		return "safe"
	case Warning:
		return "warning"
	case Danger:
		return "danger"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText renders the status for JSON payloads.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the textual status.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "safe":
		*s = Safe
	case "warning":
		*s = Warning
	case "danger":
		*s = Danger
	default:
		return fmt.Errorf("risk: unknown status %q", text)
	}
	return nil
}

// Classify maps a health ratio onto a Status.
func Classify(ratio float64) Status {
	switch {
	case ratio >= SafeThreshold:
		return Safe
	case ratio >= DangerThreshold:
		return Warning
	default:
		return Danger
	}
}

// Scan filters positions down to the liquidation-eligible subset, preserving
// input order. Eligibility here is advisory; the ledger enforces the real
// thing.
func Scan[T any](positions []T, ratioFn func(T) float64) []T {
	out := make([]T, 0)
	for _, position := range positions {
		if Classify(ratioFn(position)) == Danger {
			out = append(out, position)
		}
	}
	return out
}

// HealthSource resolves an account's ledger-reported health ratio for one
// asset market.
type HealthSource interface {
	HealthRatio(ctx context.Context, account, asset common.Address) (float64, error)
}

// Engine pairs the ledger health source with the local classifier.
type Engine struct {
	source HealthSource
}

// NewEngine constructs an engine over the given health source.
func NewEngine(source HealthSource) *Engine {
	return &Engine{source: source}
}

// HealthRatio fetches the ledger's health ratio for account in the asset's
// market.
func (e *Engine) HealthRatio(ctx context.Context, account, asset common.Address) (float64, error) {
	if e == nil || e.source == nil {
		return 0, fmt.Errorf("risk: engine not configured")
	}
	ratio, err := e.source.HealthRatio(ctx, account, asset)
	if err != nil {
		return 0, fmt.Errorf("risk: fetch health ratio: %w", err)
	}
	return ratio, nil
}

// ClassifyAccount fetches and classifies in one step.
func (e *Engine) ClassifyAccount(ctx context.Context, account, asset common.Address) (Status, float64, error) {
	ratio, err := e.HealthRatio(ctx, account, asset)
	if err != nil {
		return Safe, 0, err
	}
	return Classify(ratio), ratio, nil
}
