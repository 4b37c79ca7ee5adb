package cache

import (
	"errors"
	"sync"
	"time"
)

// ErrMiss reports that a key is absent or expired. A miss is an expected
// outcome the caller handles by recomputing.
var ErrMiss = errors.New("cache: miss")

// defaultMaxEntries caps the store. The key space is bounded by asset and
// account count, so the cap only guards against runaway keys.
const defaultMaxEntries = 4096

type entry struct {
	value     interface{}
	fetchedAt time.Time
	ttl       time.Duration
}

// Store is a TTL keyed store. Values are replaced wholesale, never mutated
// in place, so concurrent readers always observe a fully-formed value.
type Store struct {
	mu         sync.RWMutex
	entries    map[string]entry
	maxEntries int
	now        func() time.Time

	flightMu sync.Mutex
	flights  map[string]*flight
}

type flight struct {
	done  chan struct{}
	value interface{}
	err   error
}

// Option configures a Store.
type Option func(*Store)

// WithClock installs a custom time source for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMaxEntries overrides the defensive entry cap.
func WithMaxEntries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// New constructs an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		entries:    make(map[string]entry),
		maxEntries: defaultMaxEntries,
		now:        time.Now,
		flights:    make(map[string]*flight),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Get returns the cached value for key, or ErrMiss when the key is absent or
// older than its TTL. Get never panics and never returns a partially written
// value.
func (s *Store) Get(key string) (interface{}, error) {
	if s == nil {
		return nil, ErrMiss
	}
	s.mu.RLock()
	ent, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	if s.expired(ent) {
		return nil, ErrMiss
	}
	return ent.value, nil
}

// Last returns the cached value even when stale, for fallback reads after a
// refresh failure. The second result reports whether any value exists.
func (s *Store) Last(key string) (interface{}, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	ent, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return ent.value, true
}

// Set stores value under key with the given TTL, replacing any prior entry.
func (s *Store) Set(key string, value interface{}, ttl time.Duration) {
	if s == nil || ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxEntries {
		s.evictOldestLocked()
	}
	s.entries[key] = entry{value: value, fetchedAt: s.now(), ttl: ttl}
}

// IsExpired reports whether key holds no fresh value.
func (s *Store) IsExpired(key string) bool {
	if s == nil {
		return true
	}
	s.mu.RLock()
	ent, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return true
	}
	return s.expired(ent)
}

// Delete removes a key.
func (s *Store) Delete(key string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Do returns the fresh value for key, invoking fn on miss. Concurrent calls
// for the same stale key collapse into a single fn invocation; the others
// wait for its result. A successful result is stored under ttl.
func (s *Store) Do(key string, ttl time.Duration, fn func() (interface{}, error)) (interface{}, error) {
	if value, err := s.Get(key); err == nil {
		return value, nil
	}

	s.flightMu.Lock()
	if f, inFlight := s.flights[key]; inFlight {
		s.flightMu.Unlock()
		<-f.done
		return f.value, f.err
	}
	f := &flight{done: make(chan struct{})}
	s.flights[key] = f
	s.flightMu.Unlock()

	f.value, f.err = fn()
	if f.err == nil {
		s.Set(key, f.value, ttl)
	}

	s.flightMu.Lock()
	delete(s.flights, key)
	s.flightMu.Unlock()
	close(f.done)

	return f.value, f.err
}

func (s *Store) expired(ent entry) bool {
	return s.now().Sub(ent.fetchedAt) > ent.ttl
}

func (s *Store) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for key, ent := range s.entries {
		if !found || ent.fetchedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = ent.fetchedAt
			found = true
		}
	}
	if found {
		delete(s.entries, oldestKey)
	}
}
