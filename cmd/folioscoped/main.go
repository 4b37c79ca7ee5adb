package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"folioscope/advisor"
	"folioscope/cache"
	"folioscope/config"
	"folioscope/events"
	"folioscope/gateway"
	"folioscope/observability/logging"
	"folioscope/poller"
	"folioscope/portfolio"
	"folioscope/registry"
	"folioscope/safebatch"
	"folioscope/server"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("folioscoped", cfg.Environment, logging.Options{FilePath: cfg.LogFile})

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		logger.Error("load asset registry", "error", err)
		os.Exit(1)
	}

	evm, err := gateway.Dial(cfg.Ledger.RPCEndpoint)
	if err != nil {
		logger.Error("dial ledger rpc", "error", err)
		os.Exit(1)
	}
	defer evm.Close()
	ledger := gateway.New(evm, common.HexToAddress(cfg.Ledger.PoolAddress),
		gateway.WithCallTimeout(cfg.Ledger.CallTimeout.Duration))

	store := cache.New()
	aggregator := portfolio.NewAggregator(reg, ledger, store, logger)
	pipeline := events.NewPipeline(ledger, logger)

	var provider advisor.ProviderClient
	if cfg.Advisor.BaseURL != "" {
		provider = advisor.NewHTTPProviderClient(cfg.Advisor.BaseURL, cfg.Advisor.APIKey, cfg.Advisor.Timeout.Duration)
	}
	advice := advisor.NewService(provider, store, logger, cfg.Advisor.CallsPerMinute)

	var audit *safebatch.Store
	if cfg.AuditDBPath != "" {
		dsn, err := safebatch.FileDSN(cfg.AuditDBPath)
		if err != nil {
			logger.Error("audit store path", "error", err)
			os.Exit(1)
		}
		audit, err = safebatch.OpenStore(dsn)
		if err != nil {
			logger.Error("open audit store", "error", err)
			os.Exit(1)
		}
		defer audit.Close()
	}
	var backend safebatch.Backend
	if cfg.Multisig.BaseURL != "" {
		backend = safebatch.NewHTTPBackend(cfg.Multisig.BaseURL, cfg.Multisig.APIKey, cfg.Multisig.Timeout.Duration)
	}
	builder := safebatch.NewBuilder(backend, audit, reg, ledger, logger)

	scheduler := poller.NewScheduler(logger)
	defer scheduler.StopAll()

	refreshers := defaultRefreshers(cfg, aggregator, pipeline, advice, ledger)
	for _, key := range startupSchedules(cfg) {
		if err := scheduler.Start(key, scheduleInterval(key), refreshers[key]); err != nil {
			logger.Warn("schedule start failed", "key", key, "error", err)
		}
	}

	srv := server.New(server.Config{
		Aggregator:  aggregator,
		Pipeline:    pipeline,
		Head:        ledger,
		Builder:     builder,
		Advisor:     advice,
		Scheduler:   scheduler,
		Refreshers:  refreshers,
		Lookback:    cfg.Polling.EventLookbackBlocks,
		SubmitToken: cfg.SubmitToken,
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", "addr", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
}

// defaultRefreshers builds the refresh functions the scheduler and the
// polling control routes share.
func defaultRefreshers(cfg config.Config, aggregator *portfolio.Aggregator, pipeline *events.Pipeline, advice *advisor.Service, ledger *gateway.Client) map[string]poller.RefreshFunc {
	refreshers := map[string]poller.RefreshFunc{
		portfolio.AnalyticsKey: func(ctx context.Context) error {
			_, err := aggregator.RefreshAnalytics(ctx)
			return err
		},
		"events": func(ctx context.Context) error {
			head, err := ledger.HeadBlock(ctx)
			if err != nil {
				return err
			}
			from := uint64(0)
			if head > cfg.Polling.EventLookbackBlocks {
				from = head - cfg.Polling.EventLookbackBlocks
			}
			_, err = pipeline.Fetch(ctx, from, head)
			return err
		},
		"advisor": advice.Refresh,
	}
	for _, raw := range cfg.Polling.Accounts {
		if !common.IsHexAddress(raw) {
			continue
		}
		account := common.HexToAddress(raw)
		refreshers[portfolio.SummaryKey(account.Hex())] = func(ctx context.Context) error {
			aggregator.Summarize(ctx, account)
			return nil
		}
	}
	return refreshers
}

func startupSchedules(cfg config.Config) []string {
	keys := []string{portfolio.AnalyticsKey, "events", "advisor"}
	for _, raw := range cfg.Polling.Accounts {
		if common.IsHexAddress(raw) {
			keys = append(keys, portfolio.SummaryKey(common.HexToAddress(raw).Hex()))
		}
	}
	return keys
}

func scheduleInterval(key string) time.Duration {
	switch key {
	case portfolio.AnalyticsKey:
		return poller.IntervalAnalytics
	case "events":
		return poller.IntervalEvents
	case "advisor":
		return poller.IntervalAdvisor
	}
	return poller.IntervalPortfolio
}
