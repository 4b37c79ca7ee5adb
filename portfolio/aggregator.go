package portfolio

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"folioscope/cache"
	"folioscope/gateway"
	"folioscope/observability/metrics"
	"folioscope/rates"
	"folioscope/registry"
	"folioscope/risk"
)

// LedgerSource is the gateway surface the aggregator consumes.
// *gateway.Client satisfies it.
type LedgerSource interface {
	Totals(ctx context.Context, asset common.Address) (gateway.PoolTotals, error)
	Position(ctx context.Context, account, asset common.Address) (gateway.AccountPosition, error)
	HealthRatio(ctx context.Context, account, asset common.Address) (float64, error)
	CollateralFactor(ctx context.Context, asset common.Address) (float64, error)
	SupplyRate(ctx context.Context, asset common.Address) (float64, error)
	BorrowRate(ctx context.Context, asset common.Address) (float64, error)
}

// Aggregator builds per-account summaries and protocol-wide analytics.
type Aggregator struct {
	registry *registry.Registry
	ledger   LedgerSource
	cache    *cache.Store
	logger   *slog.Logger
	metrics  *metrics.CoreMetrics
	nowFn    func() time.Time
}

// NewAggregator wires the aggregator to its collaborators.
func NewAggregator(reg *registry.Registry, ledger LedgerSource, store *cache.Store, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		registry: reg,
		ledger:   ledger,
		cache:    store,
		logger:   logger,
		metrics:  metrics.Core(),
		nowFn:    time.Now,
	}
}

func (a *Aggregator) now() time.Time {
	if a == nil || a.nowFn == nil {
		return time.Now()
	}
	return a.nowFn()
}

type assetResult struct {
	order     int
	assetID   string
	positions []Position
	headroom  float64
	err       error
}

// Summarize reads every catalog asset's position for account, fans the reads
// out concurrently, and folds the results into a Summary. A failed asset
// read skips that asset; a fully unreachable ledger yields a zero-valued
// summary. Summarize never returns an error because the dashboard it feeds
// must always render something. The result is cached under SummaryKey.
func (a *Aggregator) Summarize(ctx context.Context, account common.Address) Summary {
	summary := Summary{
		Account:   account.Hex(),
		Positions: make([]Position, 0),
	}
	if a == nil || a.ledger == nil || a.registry == nil {
		return summary
	}

	assets := a.registry.Assets()
	results := make(chan assetResult, len(assets))
	var wg sync.WaitGroup
	for i, asset := range assets {
		wg.Add(1)
		go func(order int, asset registry.Asset) {
			defer wg.Done()
			positions, headroom, err := a.assetPositions(ctx, account, asset)
			results <- assetResult{order: order, assetID: asset.ID, positions: positions, headroom: headroom, err: err}
		}(i, asset)
	}
	wg.Wait()
	close(results)

	collected := make([]assetResult, 0, len(assets))
	for result := range results {
		if result.err != nil {
			a.observeReadFailure(result.err)
			a.logger.Warn("skipping asset in summary",
				"account", summary.Account, "asset", result.assetID, "error", result.err)
			summary.SkippedAssets = append(summary.SkippedAssets, result.assetID)
			continue
		}
		collected = append(collected, result)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].order < collected[j].order })

	for _, result := range collected {
		summary.Positions = append(summary.Positions, result.positions...)
		summary.BorrowHeadroom += result.headroom
	}
	a.fold(&summary)

	summary.Degraded = len(collected) == 0 && len(summary.SkippedAssets) > 0
	summary.RefreshedAt = a.now()
	// A fully degraded refresh must not clobber the last good value the
	// stale fallback depends on.
	if a.cache != nil && !summary.Degraded {
		a.cache.Set(SummaryKey(summary.Account), summary, cache.TTLLiveStats)
	}
	return summary
}

// assetPositions reads one asset's position set for the account. Zero
// positions are skipped rather than reported.
func (a *Aggregator) assetPositions(ctx context.Context, account common.Address, asset registry.Asset) ([]Position, float64, error) {
	contract := asset.ContractAddress()
	raw, err := a.ledger.Position(ctx, account, contract)
	if err != nil {
		return nil, 0, err
	}

	deposited := a.registry.Normalize(asset, raw.Deposited)
	borrowed := a.registry.Normalize(asset, raw.Borrowed)
	collateral := a.registry.Normalize(asset, raw.Collateral)
	accrued := a.registry.Normalize(asset, raw.Accrued)
	if deposited == 0 && borrowed == 0 && collateral == 0 {
		return nil, 0, nil
	}

	positions := make([]Position, 0, 3)
	if deposited > 0 {
		rate, err := a.ledger.SupplyRate(ctx, contract)
		if err != nil {
			return nil, 0, err
		}
		positions = append(positions, Position{
			Kind:      Lending,
			AssetID:   asset.ID,
			Symbol:    asset.Symbol,
			Principal: deposited,
			Accrued:   accrued,
			Rate:      rate,
			Status:    risk.Safe,
		})
	}

	var ratio float64
	if borrowed > 0 || collateral > 0 {
		ratio, err = a.ledger.HealthRatio(ctx, account, contract)
		if err != nil {
			return nil, 0, err
		}
	}
	if borrowed > 0 {
		rate, err := a.ledger.BorrowRate(ctx, contract)
		if err != nil {
			return nil, 0, err
		}
		positions = append(positions, Position{
			Kind:        Borrowing,
			AssetID:     asset.ID,
			Symbol:      asset.Symbol,
			Principal:   borrowed,
			Rate:        rate,
			HealthRatio: ratio,
			Status:      risk.Classify(ratio),
		})
	}

	var headroom float64
	if collateral > 0 {
		factor, err := a.ledger.CollateralFactor(ctx, contract)
		if err != nil {
			return nil, 0, err
		}
		headroom = collateral*factor - borrowed
		if headroom < 0 {
			headroom = 0
		}
		positions = append(positions, Position{
			Kind:        Collateral,
			AssetID:     asset.ID,
			Symbol:      asset.Symbol,
			Principal:   collateral,
			HealthRatio: ratio,
			Status:      risk.Classify(ratio),
		})
	}
	return positions, headroom, nil
}

func (a *Aggregator) fold(summary *Summary) {
	borrowPositions := make([]Position, 0)
	lendingPositions := make([]Position, 0)
	for _, position := range summary.Positions {
		switch position.Kind {
		case Lending:
			summary.TotalDeposited += position.Principal
			lendingPositions = append(lendingPositions, position)
		case Borrowing:
			summary.TotalBorrowed += position.Principal
			borrowPositions = append(borrowPositions, position)
		case Collateral:
			summary.TotalCollateral += position.Principal
		}
	}
	if summary.TotalBorrowed > 0 {
		summary.CollateralRatio = summary.TotalCollateral / summary.TotalBorrowed
	}
	principal := func(p Position) float64 { return p.Principal }
	summary.AvgYield = rates.WeightedAverage(lendingPositions, principal, func(p Position) float64 { return p.Rate })
	summary.AvgHealthRatio = rates.WeightedAverage(borrowPositions, principal, func(p Position) float64 { return p.HealthRatio })
}

// CachedSummary returns the cached summary for account while it is still
// within TTL. An expired entry is a miss; the caller recomputes and may
// reach for StaleSummary only when that recompute degrades.
func (a *Aggregator) CachedSummary(account common.Address) (Summary, bool) {
	if a == nil || a.cache == nil {
		return Summary{}, false
	}
	if value, err := a.cache.Get(SummaryKey(account.Hex())); err == nil {
		a.metrics.ObserveCache("portfolio", true)
		if summary, ok := value.(Summary); ok {
			return summary, true
		}
	}
	a.metrics.ObserveCache("portfolio", false)
	return Summary{}, false
}

// StaleSummary returns the last summary written for account regardless of
// TTL. It is the fallback when a refresh comes back degraded.
func (a *Aggregator) StaleSummary(account common.Address) (Summary, bool) {
	if a == nil || a.cache == nil {
		return Summary{}, false
	}
	if value, ok := a.cache.Last(SummaryKey(account.Hex())); ok {
		if summary, ok := value.(Summary); ok {
			return summary, true
		}
	}
	return Summary{}, false
}

// RefreshAnalytics rebuilds the protocol-wide market view and caches it
// under AnalyticsKey. Individual market failures skip that market.
func (a *Aggregator) RefreshAnalytics(ctx context.Context) (Analytics, error) {
	analytics := Analytics{Markets: make([]MarketStat, 0)}
	if a == nil || a.ledger == nil || a.registry == nil {
		return analytics, nil
	}
	for _, asset := range a.registry.Assets() {
		contract := asset.ContractAddress()
		totals, err := a.ledger.Totals(ctx, contract)
		if err != nil {
			a.observeReadFailure(err)
			a.logger.Warn("skipping market in analytics", "asset", asset.ID, "error", err)
			continue
		}
		supplyRate, err := a.ledger.SupplyRate(ctx, contract)
		if err != nil {
			a.observeReadFailure(err)
			continue
		}
		borrowRate, err := a.ledger.BorrowRate(ctx, contract)
		if err != nil {
			a.observeReadFailure(err)
			continue
		}
		deposits := a.registry.Normalize(asset, totals.Deposits)
		borrows := a.registry.Normalize(asset, totals.Borrows)
		analytics.Markets = append(analytics.Markets, MarketStat{
			AssetID:     asset.ID,
			Symbol:      asset.Symbol,
			Deposits:    deposits,
			Borrows:     borrows,
			Utilization: rates.Utilization(deposits, borrows),
			SupplyRate:  supplyRate,
			BorrowRate:  borrowRate,
		})
		analytics.TotalDeposits += deposits
		analytics.TotalBorrows += borrows
	}
	analytics.RefreshedAt = a.now()
	if a.cache != nil {
		a.cache.Set(AnalyticsKey, analytics, cache.TTLAnalytics)
	}
	return analytics, nil
}

// Liquidatable filters positions to the liquidation-eligible subset and
// records the count. Lending positions carry no health ratio and are never
// eligible, so the full Summary.Positions slice is a valid input.
func (a *Aggregator) Liquidatable(positions []Position) []Position {
	borrowSide := make([]Position, 0, len(positions))
	for _, position := range positions {
		if position.Kind != Lending {
			borrowSide = append(borrowSide, position)
		}
	}
	eligible := risk.Scan(borrowSide, func(p Position) float64 { return p.HealthRatio })
	if a != nil {
		a.metrics.SetPositionsAtRisk(len(eligible))
	}
	return eligible
}

func (a *Aggregator) observeReadFailure(err error) {
	if readErr, ok := gateway.AsReadError(err); ok {
		a.metrics.ObserveReadFailure(readErr.Op, readErr.Kind.String())
		return
	}
	a.metrics.ObserveReadFailure("unknown", "unavailable")
}

