package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ironvault/oidcmw/instrumentation"
	"github.com/ironvault/oidcmw/provider"
)

// entry is one stored value with its absolute expiry.
type entry struct {
	value     []byte
	expiresAt time.Time
}

// Store is an in-memory implementation of provider.Cache. Entries are
// swept on a background ticker; Take additionally performs a synchronous
// expiry check so a sweep that hasn't run yet can never hand back a
// logically-expired value.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	logger          *slog.Logger
	instrumentation *instrumentation.Instrumentation
}

var _ provider.Cache = (*Store)(nil)

// New creates an in-memory Store with a 1-minute background sweep.
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates an in-memory Store with a custom sweep interval.
// A non-positive interval falls back to the 1-minute default.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	s := &Store{
		entries:         make(map[string]entry),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}
	go s.cleanupLoop()
	return s
}

// SetLogger overrides the default slog logger.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetInstrumentation wires inst's storage.size.entries gauge to this Store's
// entry count and makes Set/Take record their durations.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) error {
	s.instrumentation = inst
	if inst == nil {
		return nil
	}
	return inst.RegisterStorageSizeCallback(func() int64 {
		s.mu.Lock()
		defer s.mu.Unlock()
		return int64(len(s.entries))
	})
}

// Stop halts the background sweep goroutine.
func (s *Store) Stop() {
	close(s.stopCleanup)
}

// Set stores value under key with the given time-to-live.
func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	s.mu.Lock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.entries[key] = entry{value: cp, expiresAt: start.Add(ttl)}
	s.mu.Unlock()

	s.recordOperation("set", "ok", start)
	return nil
}

// Take atomically retrieves and removes the value stored under key. This
// is the operation authorization-code redemption depends on: two
// concurrent requests presenting the same code race for a single Take,
// and only one can observe ok == true.
func (s *Store) Take(key string) ([]byte, bool, error) {
	start := time.Now()
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	s.mu.Unlock()

	if !ok {
		s.recordOperation("take", "miss", start)
		return nil, false, nil
	}
	if time.Now().After(e.expiresAt) {
		s.recordOperation("take", "expired", start)
		return nil, false, nil
	}
	s.recordOperation("take", "ok", start)
	return e.value, true, nil
}

func (s *Store) recordOperation(op, result string, start time.Time) {
	if s.instrumentation == nil {
		return
	}
	s.instrumentation.Metrics().RecordStorageOperation(context.Background(), op, result, float64(time.Since(start).Microseconds())/1000)
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cleaned := 0
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
			cleaned++
		}
	}
	if cleaned > 0 {
		s.logger.Debug("swept expired cache entries", "count", cleaned)
	}
}
