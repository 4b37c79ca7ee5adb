package events

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"folioscope/observability/metrics"
)

// LogSource is the gateway surface the pipeline consumes. *gateway.Client
// satisfies it.
type LogSource interface {
	Logs(ctx context.Context, address common.Address, topics [][]common.Hash, fromBlock, toBlock uint64) ([]gethtypes.Log, error)
	BlockTimestamp(ctx context.Context, number uint64) (time.Time, error)
	Pool() common.Address
}

// Pipeline fetches, decodes, and orders domain events for presentation.
type Pipeline struct {
	source  LogSource
	logger  *slog.Logger
	metrics *metrics.CoreMetrics
}

// NewPipeline constructs a pipeline over the ledger gateway.
func NewPipeline(source LogSource, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		source:  source,
		logger:  logger,
		metrics: metrics.Core(),
	}
}

// Fetch returns the decoded events in [fromBlock, toBlock], most recent
// first. One query is issued per known event kind; a malformed log is
// dropped without failing the batch, and a failing timestamp lookup leaves
// the event's timestamp zero rather than discarding it.
func (p *Pipeline) Fetch(ctx context.Context, fromBlock, toBlock uint64) ([]Event, error) {
	if p == nil || p.source == nil {
		return nil, fmt.Errorf("events: pipeline not configured")
	}
	if toBlock < fromBlock {
		return nil, fmt.Errorf("events: invalid range %d..%d", fromBlock, toBlock)
	}

	collected := make([]Event, 0)
	seen := make(map[logKey]struct{})
	for _, kind := range Kinds() {
		raws, err := p.source.Logs(ctx, p.source.Pool(), [][]common.Hash{{kind.Topic()}}, fromBlock, toBlock)
		if err != nil {
			return nil, fmt.Errorf("events: query %s logs: %w", kind, err)
		}
		for _, raw := range raws {
			key := logKey{tx: raw.TxHash, index: raw.Index}
			if _, dup := seen[key]; dup {
				continue
			}
			event, err := Decode(raw)
			if err != nil {
				p.metrics.ObserveDroppedLog()
				p.logger.Warn("dropping undecodable log",
					"tx", raw.TxHash.Hex(), "index", raw.Index, "error", err)
				continue
			}
			seen[key] = struct{}{}
			collected = append(collected, event)
		}
	}

	p.attachTimestamps(ctx, collected)

	// Most recent first; the events table depends on this ordering.
	sort.SliceStable(collected, func(i, j int) bool {
		if collected[i].BlockNumber != collected[j].BlockNumber {
			return collected[i].BlockNumber > collected[j].BlockNumber
		}
		return collected[i].LogIndex > collected[j].LogIndex
	})
	return collected, nil
}

type logKey struct {
	tx    common.Hash
	index uint
}

func (p *Pipeline) attachTimestamps(ctx context.Context, events []Event) {
	byBlock := make(map[uint64]time.Time)
	for i := range events {
		number := events[i].BlockNumber
		ts, ok := byBlock[number]
		if !ok {
			fetched, err := p.source.BlockTimestamp(ctx, number)
			if err != nil {
				p.logger.Warn("block timestamp lookup failed", "block", number, "error", err)
				byBlock[number] = time.Time{}
				continue
			}
			ts = fetched
			byBlock[number] = ts
		}
		events[i].Timestamp = ts
	}
}
