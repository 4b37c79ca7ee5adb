package events

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"folioscope/gateway"
)

var (
	errUnknownSignature = errors.New("events: unknown log signature")
	errShape            = errors.New("events: log shape mismatch")
)

// Decode converts one raw log into an Event. A log whose first topic matches
// no known kind, or whose topics/data do not fit the kind's shape, yields an
// error; callers drop the single log and continue.
func Decode(raw gethtypes.Log) (Event, error) {
	if len(raw.Topics) == 0 {
		return Event{}, errUnknownSignature
	}
	kind, ok := kindForTopic(raw.Topics[0])
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", errUnknownSignature, raw.Topics[0].Hex())
	}
	payload, err := decodePayload(kind, raw)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Kind:        kind,
		BlockNumber: raw.BlockNumber,
		TxHash:      raw.TxHash,
		LogIndex:    raw.Index,
		Payload:     payload,
	}, nil
}

func kindForTopic(topic common.Hash) (Kind, bool) {
	for _, kind := range Kinds() {
		if kind.Topic() == topic {
			return kind, true
		}
	}
	return 0, false
}

// decodePayload maps raw positional log arguments onto the named payload
// fields for each kind. The mapping is total over the closed kind set.
func decodePayload(kind Kind, raw gethtypes.Log) (Payload, error) {
	switch kind {
	case KindDeposit, KindWithdraw, KindBorrow:
		if len(raw.Topics) < 3 {
			return nil, fmt.Errorf("%w: %s wants 2 indexed args, got %d", errShape, kind, len(raw.Topics)-1)
		}
		amount, err := dataWord(raw.Data, 0)
		if err != nil {
			return nil, err
		}
		return TransferPayload{
			Account: common.BytesToAddress(raw.Topics[1].Bytes()),
			Asset:   common.BytesToAddress(raw.Topics[2].Bytes()),
			Amount:  amount.String(),
		}, nil
	case KindLiquidation:
		if len(raw.Topics) < 3 {
			return nil, fmt.Errorf("%w: liquidation wants 2 indexed args, got %d", errShape, len(raw.Topics)-1)
		}
		repaid, err := dataWord(raw.Data, 0)
		if err != nil {
			return nil, err
		}
		seized, err := dataWord(raw.Data, 1)
		if err != nil {
			return nil, err
		}
		return LiquidationPayload{
			Liquidator: common.BytesToAddress(raw.Topics[1].Bytes()),
			Borrower:   common.BytesToAddress(raw.Topics[2].Bytes()),
			Repaid:     repaid.String(),
			Seized:     seized.String(),
		}, nil
	case KindRateUpdate:
		if len(raw.Topics) < 2 {
			return nil, fmt.Errorf("%w: rate update wants 1 indexed arg", errShape)
		}
		supplyBps, err := dataWord(raw.Data, 0)
		if err != nil {
			return nil, err
		}
		borrowBps, err := dataWord(raw.Data, 1)
		if err != nil {
			return nil, err
		}
		return RateUpdatePayload{
			Asset:      common.BytesToAddress(raw.Topics[1].Bytes()),
			SupplyRate: gateway.FromBps(supplyBps),
			BorrowRate: gateway.FromBps(borrowBps),
		}, nil
	case KindAccrue:
		if len(raw.Topics) < 2 {
			return nil, fmt.Errorf("%w: accrue wants 1 indexed arg", errShape)
		}
		interest, err := dataWord(raw.Data, 0)
		if err != nil {
			return nil, err
		}
		return AccruePayload{
			Asset:    common.BytesToAddress(raw.Topics[1].Bytes()),
			Interest: interest.String(),
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", errUnknownSignature, kind)
}

func dataWord(data []byte, index int) (*big.Int, error) {
	start := index * 32
	if len(data) < start+32 {
		return nil, fmt.Errorf("%w: data word %d out of range (%d bytes)", errShape, index, len(data))
	}
	return new(big.Int).SetBytes(data[start : start+32]), nil
}
