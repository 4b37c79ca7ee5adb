// Package events turns raw ledger logs into the closed set of domain events
// the activity table renders.
package events

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Kind enumerates the domain event kinds. The set is closed; a raw log whose
// signature matches none of them produces no event.
type Kind int

const (
	KindDeposit Kind = iota
	KindWithdraw
	KindBorrow
	KindLiquidation
	KindRateUpdate
	KindAccrue
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindDeposit:
		return "deposit"
	case KindWithdraw:
		return "withdraw"
	case KindBorrow:
		return "borrow"
	case KindLiquidation:
		return "liquidation"
	case KindRateUpdate:
		return "rate_update"
	case KindAccrue:
		return "accrue"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText renders the kind for JSON payloads.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the textual kind.
func (k *Kind) UnmarshalText(text []byte) error {
	for _, kind := range Kinds() {
		if kind.String() == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("events: unknown kind %q", text)
}

// Event signatures emitted by the lending pool.
var (
	sigDeposit     = gethcrypto.Keccak256Hash([]byte("Deposit(address,address,uint256)"))
	sigWithdraw    = gethcrypto.Keccak256Hash([]byte("Withdraw(address,address,uint256)"))
	sigBorrow      = gethcrypto.Keccak256Hash([]byte("Borrow(address,address,uint256)"))
	sigLiquidation = gethcrypto.Keccak256Hash([]byte("Liquidation(address,address,uint256,uint256)"))
	sigRateUpdate  = gethcrypto.Keccak256Hash([]byte("RateUpdate(address,uint256,uint256)"))
	sigAccrue      = gethcrypto.Keccak256Hash([]byte("Accrue(address,uint256)"))
)

// Topic returns the keccak signature hash for a kind.
func (k Kind) Topic() common.Hash {
	switch k {
	case KindDeposit:
		return sigDeposit
	case KindWithdraw:
		return sigWithdraw
	case KindBorrow:
		return sigBorrow
	case KindLiquidation:
		return sigLiquidation
	case KindRateUpdate:
		return sigRateUpdate
	case KindAccrue:
		return sigAccrue
	}
	return common.Hash{}
}

// Kinds lists the closed kind set in declaration order.
func Kinds() []Kind {
	return []Kind{KindDeposit, KindWithdraw, KindBorrow, KindLiquidation, KindRateUpdate, KindAccrue}
}

// Payload is implemented by the kind-specific decoded fields of an Event.
// The set of implementations is closed.
type Payload interface {
	eventPayload()
}

// TransferPayload carries the fields shared by Deposit, Withdraw, and Borrow
// events.
type TransferPayload struct {
	Account common.Address `json:"account"`
	Asset   common.Address `json:"asset"`
	Amount  string         `json:"amount"`
}

// LiquidationPayload carries a liquidation's participants and magnitudes.
type LiquidationPayload struct {
	Liquidator common.Address `json:"liquidator"`
	Borrower   common.Address `json:"borrower"`
	Repaid     string         `json:"repaid"`
	Seized     string         `json:"seized"`
}

// RateUpdatePayload carries a market's refreshed rates as unit fractions.
type RateUpdatePayload struct {
	Asset      common.Address `json:"asset"`
	SupplyRate float64        `json:"supply_rate"`
	BorrowRate float64        `json:"borrow_rate"`
}

// AccruePayload carries one interest accrual.
type AccruePayload struct {
	Asset    common.Address `json:"asset"`
	Interest string         `json:"interest"`
}

func (TransferPayload) eventPayload()    {}
func (LiquidationPayload) eventPayload() {}
func (RateUpdatePayload) eventPayload()  {}
func (AccruePayload) eventPayload()      {}

// Event is one decoded domain event. Immutable once decoded.
type Event struct {
	Kind        Kind        `json:"kind"`
	BlockNumber uint64      `json:"block_number"`
	TxHash      common.Hash `json:"tx_hash"`
	LogIndex    uint        `json:"log_index"`
	Timestamp   time.Time   `json:"timestamp"`
	Payload     Payload     `json:"payload"`
}
