// Package server exposes the aggregation core to UI consumers over HTTP.
// Every route is safe to call repeatedly except the two submit routes,
// which are user-triggered and never retried server-side.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"folioscope/advisor"
	"folioscope/events"
	"folioscope/poller"
	"folioscope/portfolio"
	"folioscope/safebatch"
)

const requestLimit = 1 << 20 // 1 MiB

// EventFetcher is the pipeline surface the server consumes.
type EventFetcher interface {
	Fetch(ctx context.Context, fromBlock, toBlock uint64) ([]events.Event, error)
}

// HeadSource resolves the current head block for default event ranges.
type HeadSource interface {
	HeadBlock(ctx context.Context) (uint64, error)
}

// Server holds the core collaborators behind the HTTP surface.
type Server struct {
	aggregator  *portfolio.Aggregator
	pipeline    EventFetcher
	head        HeadSource
	builder     *safebatch.Builder
	advisor     *advisor.Service
	scheduler   *poller.Scheduler
	refreshers  map[string]poller.RefreshFunc
	lookback    uint64
	submitToken string
	logger      *slog.Logger
}

// Config wires a Server.
type Config struct {
	Aggregator *portfolio.Aggregator
	Pipeline   EventFetcher
	Head       HeadSource
	Builder    *safebatch.Builder
	Advisor    *advisor.Service
	Scheduler  *poller.Scheduler
	// Refreshers maps startable schedule keys to their refresh functions.
	Refreshers  map[string]poller.RefreshFunc
	Lookback    uint64
	SubmitToken string
	Logger      *slog.Logger
}

// New constructs the server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lookback := cfg.Lookback
	if lookback == 0 {
		lookback = 5000
	}
	return &Server{
		aggregator:  cfg.Aggregator,
		pipeline:    cfg.Pipeline,
		head:        cfg.Head,
		builder:     cfg.Builder,
		advisor:     cfg.Advisor,
		scheduler:   cfg.Scheduler,
		refreshers:  cfg.Refreshers,
		lookback:    lookback,
		submitToken: strings.TrimSpace(cfg.SubmitToken),
		logger:      logger,
	}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/portfolio/{account}", s.getPortfolio)
		v1.Get("/analytics", s.getAnalytics)
		v1.Get("/events", s.getEvents)
		v1.Get("/risk/liquidatable/{account}", s.getLiquidatable)
		v1.Get("/advisor/recommendations", s.getRecommendations)
		v1.Get("/advisor/trends", s.getTrends)
		v1.Get("/advisor/forecast/{asset}", s.getForecast)
		v1.Get("/authorizations/{id}", s.getAuthorization)
		v1.Post("/polling/{key}/start", s.startPolling)
		v1.Post("/polling/{key}/stop", s.stopPolling)

		v1.Group(func(protected chi.Router) {
			protected.Use(s.requireSubmitToken)
			protected.Post("/submit/batch", s.submitBatch)
			protected.Post("/submit/direct", s.submitDirect)
		})
	})
	return r
}

// requireSubmitToken gates the submit routes behind the shared secret.
func (s *Server) requireSubmitToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.submitToken == "" {
			writeError(w, http.StatusServiceUnavailable, "submissions disabled: no submit token configured")
			return
		}
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.submitToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid submit token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) getPortfolio(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAccount(w, r)
	if !ok {
		return
	}
	if summary, ok := s.aggregator.CachedSummary(account); ok && r.URL.Query().Get("refresh") == "" {
		writeJSON(w, http.StatusOK, summary)
		return
	}
	summary := s.aggregator.Summarize(r.Context(), account)
	if summary.Degraded {
		if stale, ok := s.aggregator.StaleSummary(account); ok {
			writeJSON(w, http.StatusOK, stale)
			return
		}
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) getAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := s.aggregator.RefreshAnalytics(r.Context())
	if err != nil {
		s.logger.Warn("analytics refresh failed", "error", err)
	}
	writeJSON(w, http.StatusOK, analytics)
}

func (s *Server) getEvents(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.eventRange(w, r)
	if !ok {
		return
	}
	fetched, err := s.pipeline.Fetch(r.Context(), from, to)
	if err != nil {
		s.logger.Warn("event fetch failed", "from", from, "to", to, "error", err)
		writeJSON(w, http.StatusOK, []events.Event{})
		return
	}
	writeJSON(w, http.StatusOK, fetched)
}

func (s *Server) getLiquidatable(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAccount(w, r)
	if !ok {
		return
	}
	summary, cached := s.aggregator.CachedSummary(account)
	if !cached {
		summary = s.aggregator.Summarize(r.Context(), account)
	}
	writeJSON(w, http.StatusOK, s.aggregator.Liquidatable(summary.Positions))
}

func (s *Server) getRecommendations(w http.ResponseWriter, r *http.Request) {
	profile := advisor.RiskProfile(strings.TrimSpace(r.URL.Query().Get("risk")))
	if profile == "" {
		profile = advisor.ProfileBalanced
	}
	writeJSON(w, http.StatusOK, s.advisor.Recommend(r.Context(), profile))
}

func (s *Server) getTrends(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.advisor.Trends(r.Context()))
}

func (s *Server) getForecast(w http.ResponseWriter, r *http.Request) {
	asset := strings.TrimSpace(chi.URLParam(r, "asset"))
	if asset == "" {
		writeError(w, http.StatusBadRequest, "asset required")
		return
	}
	writeJSON(w, http.StatusOK, s.advisor.Forecast(r.Context(), asset))
}

func (s *Server) getAuthorization(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	authorization, err := s.builder.PollStatus(r.Context(), id)
	if err != nil {
		if valErr, ok := safebatch.AsValidationError(err); ok {
			writeError(w, http.StatusBadRequest, valErr.Error())
			return
		}
		s.logger.Warn("authorization poll failed", "authorization", id, "error", err)
		writeError(w, http.StatusBadGateway, "authorization status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, authorization)
}

func (s *Server) startPolling(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "key"))
	refresh, known := s.refreshers[key]
	if !known {
		writeError(w, http.StatusNotFound, "unknown polling key")
		return
	}
	if err := s.scheduler.Start(key, intervalFor(key), refresh); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "state": "active"})
}

func (s *Server) stopPolling(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "key"))
	s.scheduler.Stop(key)
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "state": "stopped"})
}

func intervalFor(key string) time.Duration {
	switch {
	case strings.HasPrefix(key, "portfolio:"):
		return poller.IntervalPortfolio
	case key == portfolio.AnalyticsKey:
		return poller.IntervalAnalytics
	case key == "events":
		return poller.IntervalEvents
	case key == "advisor":
		return poller.IntervalAdvisor
	}
	return poller.IntervalAnalytics
}

func (s *Server) eventRange(w http.ResponseWriter, r *http.Request) (uint64, uint64, bool) {
	query := r.URL.Query()
	if fromRaw, toRaw := query.Get("from"), query.Get("to"); fromRaw != "" && toRaw != "" {
		from, err := strconv.ParseUint(fromRaw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from block")
			return 0, 0, false
		}
		to, err := strconv.ParseUint(toRaw, 10, 64)
		if err != nil || to < from {
			writeError(w, http.StatusBadRequest, "invalid to block")
			return 0, 0, false
		}
		return from, to, true
	}
	head, err := s.head.HeadBlock(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "head block unavailable")
		return 0, 0, false
	}
	from := uint64(0)
	if head > s.lookback {
		from = head - s.lookback
	}
	return from, head, true
}

func parseAccount(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "account"))
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
