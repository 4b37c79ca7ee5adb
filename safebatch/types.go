// Package safebatch stages multi-step operations for the external
// multisignature execution backend and tracks their settlement. Direct
// single-signer submission is a separate code path with no authorization id;
// the two are never conflated because a direct submission has no co-signing
// step.
package safebatch

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Status is the lifecycle of a batched authorization. Transitions are
// monotone: Pending moves to exactly one of the terminal states.
type Status int

const (
	StatusPending Status = iota
	StatusSettled
	StatusFailed
	// StatusDeclined is the neutral "not completed" outcome for a
	// user-rejected signature request. It is not an error condition and is
	// kept out of error logs.
	StatusDeclined
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSettled:
		return "settled"
	case StatusFailed:
		return "failed"
	case StatusDeclined:
		return "declined"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText renders the status for JSON payloads.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the textual status.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Terminal reports whether no further transitions can occur.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// ParseStatus maps a backend status string onto Status.
func ParseStatus(raw string) (Status, error) {
	switch raw {
	case "pending", "awaiting_signatures", "queued":
		return StatusPending, nil
	case "settled", "executed", "success":
		return StatusSettled, nil
	case "failed", "execution_failed":
		return StatusFailed, nil
	case "rejected", "declined":
		return StatusDeclined, nil
	}
	return StatusPending, fmt.Errorf("safebatch: unknown backend status %q", raw)
}

// Operation is one intended call in a batch.
type Operation struct {
	Target common.Address
	// FunctionIntent names the call for display and the audit digest; the
	// calldata in Args is authoritative.
	FunctionIntent string
	Args           []byte
	Value          *big.Int
	// AssetID and Amount, when set, drive pre-submission validation against
	// the asset's configured bounds.
	AssetID string
	Amount  float64
}

// PayloadItem is one encoded operation in the backend's expected shape.
type PayloadItem struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

// Authorization tracks one submitted batch. SettlementTx appears only once
// the batch settles; it is a different identifier space from AuthorizationID.
type Authorization struct {
	AuthorizationID string      `json:"authorization_id"`
	RequestID       string      `json:"request_id"`
	Status          Status      `json:"status"`
	SettlementTx    common.Hash `json:"settlement_tx,omitempty"`
	Operations      int         `json:"operations"`
}

// DirectResult is the outcome of a direct single-signer submission. There is
// no authorization id on this path.
type DirectResult struct {
	TxID   common.Hash `json:"tx_id"`
	Status Status      `json:"status"`
}
