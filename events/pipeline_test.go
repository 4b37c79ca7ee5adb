package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

type fakeSource struct {
	logs         map[common.Hash][]gethtypes.Log
	timestamps   map[uint64]time.Time
	timestampErr map[uint64]error
	queryErr     error
}

func (f *fakeSource) Logs(ctx context.Context, address common.Address, topics [][]common.Hash, fromBlock, toBlock uint64) ([]gethtypes.Log, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if len(topics) == 0 || len(topics[0]) == 0 {
		return nil, nil
	}
	return f.logs[topics[0][0]], nil
}

func (f *fakeSource) BlockTimestamp(ctx context.Context, number uint64) (time.Time, error) {
	if err := f.timestampErr[number]; err != nil {
		return time.Time{}, err
	}
	return f.timestamps[number], nil
}

func (f *fakeSource) Pool() common.Address {
	return common.HexToAddress("0x3333333333333333333333333333333333333333")
}

func depositLog(block uint64, index uint, tx byte) gethtypes.Log {
	return gethtypes.Log{
		Topics:      []common.Hash{KindDeposit.Topic(), addressTopic(testAccount), addressTopic(testAsset)},
		Data:        word(100),
		BlockNumber: block,
		TxHash:      common.BytesToHash([]byte{tx}),
		Index:       index,
	}
}

func TestFetchOrdersMostRecentFirst(t *testing.T) {
	source := &fakeSource{
		logs: map[common.Hash][]gethtypes.Log{
			KindDeposit.Topic(): {
				depositLog(10, 0, 1),
				depositLog(12, 2, 2),
				depositLog(12, 1, 3),
			},
		},
		timestamps: map[uint64]time.Time{
			10: time.Unix(1000, 0),
			12: time.Unix(1200, 0),
		},
	}
	p := NewPipeline(source, nil)
	events, err := p.Fetch(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].BlockNumber != 12 || events[0].LogIndex != 2 {
		t.Fatalf("expected block 12 index 2 first, got block %d index %d", events[0].BlockNumber, events[0].LogIndex)
	}
	if events[1].BlockNumber != 12 || events[1].LogIndex != 1 {
		t.Fatalf("expected block 12 index 1 second, got %+v", events[1])
	}
	if events[2].BlockNumber != 10 {
		t.Fatalf("expected block 10 last, got %+v", events[2])
	}
	if !events[0].Timestamp.Equal(time.Unix(1200, 0)) {
		t.Fatalf("timestamp not attached: %v", events[0].Timestamp)
	}
}

func TestFetchDropsMalformedLogOnly(t *testing.T) {
	malformed := gethtypes.Log{
		Topics:      []common.Hash{KindDeposit.Topic(), addressTopic(testAccount)},
		BlockNumber: 11,
		TxHash:      common.BytesToHash([]byte{9}),
	}
	source := &fakeSource{
		logs: map[common.Hash][]gethtypes.Log{
			KindDeposit.Topic(): {depositLog(10, 0, 1), malformed},
		},
		timestamps: map[uint64]time.Time{10: time.Unix(1000, 0)},
	}
	p := NewPipeline(source, nil)
	events, err := p.Fetch(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(events) != 1 || events[0].BlockNumber != 10 {
		t.Fatalf("expected only the well-formed event, got %+v", events)
	}
}

func TestFetchDeduplicates(t *testing.T) {
	dup := depositLog(10, 0, 1)
	source := &fakeSource{
		logs: map[common.Hash][]gethtypes.Log{
			KindDeposit.Topic(): {dup, dup},
		},
		timestamps: map[uint64]time.Time{10: time.Unix(1000, 0)},
	}
	p := NewPipeline(source, nil)
	events, err := p.Fetch(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected deduplicated result, got %d events", len(events))
	}
}

func TestFetchKeepsEventWhenTimestampFails(t *testing.T) {
	source := &fakeSource{
		logs: map[common.Hash][]gethtypes.Log{
			KindDeposit.Topic(): {depositLog(10, 0, 1)},
		},
		timestampErr: map[uint64]error{10: errors.New("header unavailable")},
	}
	p := NewPipeline(source, nil)
	events, err := p.Fetch(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if !events[0].Timestamp.IsZero() {
		t.Fatalf("expected zero timestamp, got %v", events[0].Timestamp)
	}
}

func TestFetchInvalidRange(t *testing.T) {
	p := NewPipeline(&fakeSource{}, nil)
	if _, err := p.Fetch(context.Background(), 100, 50); err == nil {
		t.Fatal("expected error for inverted range")
	}
}

func TestFetchQueryFailure(t *testing.T) {
	boom := errors.New("rpc down")
	p := NewPipeline(&fakeSource{queryErr: boom}, nil)
	if _, err := p.Fetch(context.Background(), 0, 100); !errors.Is(err, boom) {
		t.Fatalf("expected query error, got %v", err)
	}
}

func TestFetchEmptyRangeReturnsEmptySlice(t *testing.T) {
	p := NewPipeline(&fakeSource{}, nil)
	events, err := p.Fetch(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", events)
	}
}
