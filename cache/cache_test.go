package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetMissOnAbsentKey(t *testing.T) {
	s := New()
	if _, err := s.Get("portfolio:missing"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	s := New()
	s.Set("k", 42, time.Minute)
	got, err := s.Get("k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.(int) != 42 {
		t.Fatalf("expected 42, got %v", got)
	}
}

func TestExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := New(WithClock(func() time.Time { return now }))
	s.Set("k", "v", 30*time.Second)

	now = now.Add(30 * time.Second)
	if _, err := s.Get("k"); err != nil {
		t.Fatalf("value at exact ttl should still be fresh: %v", err)
	}

	now = now.Add(time.Second)
	if _, err := s.Get("k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after ttl, got %v", err)
	}
	if !s.IsExpired("k") {
		t.Fatal("IsExpired should report true after ttl")
	}
}

func TestLastReturnsStaleValue(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := New(WithClock(func() time.Time { return now }))
	s.Set("k", "stale", time.Second)
	now = now.Add(time.Hour)

	if _, err := s.Get("k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
	got, ok := s.Last("k")
	if !ok || got.(string) != "stale" {
		t.Fatalf("Last should return the stale value, got %v %v", got, ok)
	}
}

func TestSetReplacesWholeValue(t *testing.T) {
	s := New()
	s.Set("k", []int{1, 2}, time.Minute)
	s.Set("k", []int{3}, time.Minute)
	got, err := s.Get("k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.([]int)) != 1 || got.([]int)[0] != 3 {
		t.Fatalf("expected replacement value, got %v", got)
	}
}

func TestZeroTTLIsNotStored(t *testing.T) {
	s := New()
	s.Set("k", "v", 0)
	if _, err := s.Get("k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("zero ttl value should not be stored, got %v", err)
	}
}

func TestEvictionKeepsNewestEntries(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := New(WithClock(func() time.Time { return now }), WithMaxEntries(2))
	s.Set("a", 1, time.Hour)
	now = now.Add(time.Second)
	s.Set("b", 2, time.Hour)
	now = now.Add(time.Second)
	s.Set("c", 3, time.Hour)

	if _, err := s.Get("a"); !errors.Is(err, ErrMiss) {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, err := s.Get("b"); err != nil {
		t.Fatalf("entry b should survive: %v", err)
	}
	if _, err := s.Get("c"); err != nil {
		t.Fatalf("entry c should survive: %v", err)
	}
}

func TestDoCollapsesConcurrentFetches(t *testing.T) {
	s := New()
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]interface{}, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value, err := s.Do("k", time.Minute, func() (interface{}, error) {
				calls.Add(1)
				<-release
				return "computed", nil
			})
			if err != nil {
				t.Errorf("do: %v", err)
				return
			}
			results[i] = value
		}(i)
	}

	// Give the goroutines time to pile onto the same flight.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a single fetch, got %d", got)
	}
	for i, value := range results {
		if value != "computed" {
			t.Fatalf("caller %d got %v", i, value)
		}
	}
}

func TestDoDoesNotCacheFailures(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	if _, err := s.Do("k", time.Minute, func() (interface{}, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.Get("k"); !errors.Is(err, ErrMiss) {
		t.Fatal("failed fetch must not populate the cache")
	}
}

func TestNilStoreIsSafe(t *testing.T) {
	var s *Store
	if _, err := s.Get("k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("nil store get: %v", err)
	}
	s.Set("k", 1, time.Minute)
	s.Delete("k")
	if !s.IsExpired("k") {
		t.Fatal("nil store should report expired")
	}
}
