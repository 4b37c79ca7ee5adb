// Package poller owns every periodic refresh in the process. Presentation
// code never runs its own timers; it starts and stops named schedules here.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"folioscope/observability/metrics"
)

// Default refresh intervals per schedule key class.
const (
	IntervalPortfolio = 10 * time.Second
	IntervalAnalytics = 30 * time.Second
	IntervalEvents    = 60 * time.Second
	IntervalAdvisor   = 60 * time.Second
)

// RefreshFunc performs one refresh for a schedule key.
type RefreshFunc func(ctx context.Context) error

// Scheduler runs independent fixed-interval schedules keyed by name.
type Scheduler struct {
	mu        sync.Mutex
	schedules map[string]*schedule
	logger    *slog.Logger
	metrics   *metrics.CoreMetrics
	wg        sync.WaitGroup
	closed    bool
}

type schedule struct {
	cancel   context.CancelFunc
	interval time.Duration
	// inFlight serializes refreshes per key: a tick that arrives while the
	// previous refresh still runs is skipped, not queued.
	inFlight chan struct{}
}

// NewScheduler constructs an empty scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		schedules: make(map[string]*schedule),
		logger:    logger,
		metrics:   metrics.Core(),
	}
}

// Start begins a schedule for key, refreshing at the given interval. The
// first refresh fires immediately. Starting a key that already has an active
// schedule is a no-op.
func (s *Scheduler) Start(key string, interval time.Duration, refresh RefreshFunc) error {
	if s == nil {
		return fmt.Errorf("poller: scheduler not configured")
	}
	if key == "" || refresh == nil {
		return fmt.Errorf("poller: key and refresh required")
	}
	if interval <= 0 {
		return fmt.Errorf("poller: interval must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("poller: scheduler stopped")
	}
	if _, active := s.schedules[key]; active {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	sched := &schedule{
		cancel:   cancel,
		interval: interval,
		inFlight: make(chan struct{}, 1),
	}
	s.schedules[key] = sched

	s.wg.Add(1)
	go s.run(ctx, key, sched, refresh)
	return nil
}

// Stop cancels the schedule for key. No refresh fires for the key after
// Stop returns. Stopping an unknown key is a no-op.
func (s *Scheduler) Stop(key string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	sched, ok := s.schedules[key]
	if ok {
		delete(s.schedules, key)
	}
	s.mu.Unlock()
	if ok {
		sched.cancel()
	}
}

// Active reports whether key currently has a schedule.
func (s *Scheduler) Active(key string) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.schedules[key]
	return ok
}

// StopAll cancels every schedule and waits for their loops to exit. The
// scheduler cannot be reused afterwards.
func (s *Scheduler) StopAll() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.closed = true
	for key, sched := range s.schedules {
		sched.cancel()
		delete(s.schedules, key)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, key string, sched *schedule, refresh RefreshFunc) {
	defer s.wg.Done()
	ticker := time.NewTicker(sched.interval)
	defer ticker.Stop()

	s.tick(ctx, key, sched, refresh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, key, sched, refresh)
		}
	}
}

// tick runs one refresh. Errors and panics are contained: one failed tick
// must not stop future ticks.
func (s *Scheduler) tick(ctx context.Context, key string, sched *schedule, refresh RefreshFunc) {
	select {
	case sched.inFlight <- struct{}{}:
	default:
		s.logger.Debug("refresh still in flight, skipping tick", "key", key)
		return
	}
	defer func() { <-sched.inFlight }()

	defer func() {
		if recovered := recover(); recovered != nil {
			s.metrics.ObserveRefreshTick(key, true)
			s.logger.Error("refresh panicked", "key", key, "panic", recovered)
		}
	}()

	if err := refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.metrics.ObserveRefreshTick(key, true)
		s.logger.Warn("refresh failed", "key", key, "error", err)
		return
	}
	s.metrics.ObserveRefreshTick(key, false)
}
