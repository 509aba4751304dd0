package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps hit timestamps per key and sweeps idle keys in the
// background. Suitable for a single instance; a multi-instance deployment
// needs a shared backend behind the same Store interface.
type MemoryStore struct {
	mu   sync.Mutex
	hits map[string][]time.Time

	stop chan struct{}
	once sync.Once
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*memoryStoreConfig)

type memoryStoreConfig struct {
	sweepInterval time.Duration
	retention     time.Duration
}

// WithSweepInterval sets how often idle keys are removed.
func WithSweepInterval(d time.Duration) MemoryStoreOption {
	return func(c *memoryStoreConfig) {
		if d > 0 {
			c.sweepInterval = d
		}
	}
}

// WithRetention sets how long after its newest hit a key is kept. Must be
// at least as long as the largest window used against the store.
func WithRetention(d time.Duration) MemoryStoreOption {
	return func(c *memoryStoreConfig) {
		if d > 0 {
			c.retention = d
		}
	}
}

// NewMemoryStore creates a store with a background sweeper.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	cfg := memoryStoreConfig{
		sweepInterval: time.Minute,
		retention:     time.Hour,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &MemoryStore{
		hits: make(map[string][]time.Time),
		stop: make(chan struct{}),
	}
	go s.sweepLoop(cfg.sweepInterval, cfg.retention)
	return s
}

func (s *MemoryStore) Take(_ context.Context, key string, now time.Time, window time.Duration, limit int) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-window)
	live := make([]time.Time, 0, len(s.hits[key])+1)
	for _, ts := range s.hits[key] {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}

	if len(live) >= limit {
		s.hits[key] = live
		return int64(len(live)), false, nil
	}

	live = append(live, now)
	s.hits[key] = live
	return int64(len(live)), true, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hits, key)
	return nil
}

func (s *MemoryStore) sweepLoop(interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now().Add(-retention))
		case <-s.stop:
			return
		}
	}
}

// sweep drops keys whose newest hit predates cutoff.
func (s *MemoryStore) sweep(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, stamps := range s.hits {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(s.hits, key)
		}
	}
}

// Close stops the sweeper. Idempotent.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}
