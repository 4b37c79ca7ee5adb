package safebatch

import (
	"errors"
	"fmt"

	"folioscope/registry"
)

// ValidationError is surfaced synchronously to the caller before any ledger
// write is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements error.
func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("safebatch: invalid %s: %s", e.Field, e.Reason)
}

// AsValidationError extracts a ValidationError from an error chain.
func AsValidationError(err error) (*ValidationError, bool) {
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return valErr, true
	}
	return nil, false
}

// ValidateOperations checks each operation's amount against its asset's
// configured bounds. Operations without an asset id skip amount validation.
// Asset ids arrive from the request body, so an id missing from the catalog
// is a caller error, not a configuration fault.
func ValidateOperations(reg *registry.Registry, ops []Operation) error {
	if len(ops) == 0 {
		return &ValidationError{Field: "operations", Reason: "batch is empty"}
	}
	for i, op := range ops {
		if op.AssetID == "" {
			continue
		}
		asset, err := reg.ByID(op.AssetID)
		if err != nil {
			return fmt.Errorf("operation %d: %w", i, &ValidationError{
				Field:  "asset_id",
				Reason: fmt.Sprintf("unknown asset %q", op.AssetID),
			})
		}
		if err := validateAmount(asset, op.Amount); err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
	}
	return nil
}

func validateAmount(asset registry.Asset, amount float64) error {
	if amount <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if asset.MinAmount > 0 && amount < asset.MinAmount {
		return &ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("below minimum %g %s", asset.MinAmount, asset.Symbol),
		}
	}
	if asset.MaxAmount > 0 && amount > asset.MaxAmount {
		return &ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("above maximum %g %s", asset.MaxAmount, asset.Symbol),
		}
	}
	return nil
}

// ValidateWithdrawal rejects withdrawals that would exceed the health-safe
// amount the ledger reports for the account.
func ValidateWithdrawal(amount, headroom float64) error {
	if amount <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if amount > headroom {
		return &ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("exceeds health-safe withdrawal limit %g", headroom),
		}
	}
	return nil
}
