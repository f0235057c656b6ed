package form

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"finitefield.org/booking-predictor/internal/prediction"
)

const defaultTTL = 2 * time.Hour

// Store keeps one form instance per browser session.
type Store struct {
	predictor prediction.Predictor
	timeout   time.Duration
	ttl       time.Duration
	now       func() time.Time

	mu    sync.Mutex
	forms map[string]*Manager
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithRequestTimeout bounds each prediction call.
func WithRequestTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithTTL sets how long an untouched form instance survives.
func WithTTL(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore builds an empty store whose forms call predictor.
func NewStore(predictor prediction.Predictor, opts ...StoreOption) *Store {
	s := &Store{
		predictor: predictor,
		timeout:   defaultRequestTimeout,
		ttl:       defaultTTL,
		now:       time.Now,
		forms:     make(map[string]*Manager),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the form for id, creating it on first use.
func (s *Store) Get(id string) *Manager {
	s.mu.Lock()
	m, ok := s.forms[id]
	if !ok {
		m = NewManager(id, s.predictor, s.timeout)
		s.forms[id] = m
	}
	s.mu.Unlock()

	m.touch(s.now())
	return m
}

// Sweep drops idle forms older than the TTL and returns how many were removed.
// Forms with a request in flight are kept.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, m := range s.forms {
		if m.expired(now, s.ttl) {
			delete(s.forms, id)
			removed++
		}
	}
	return removed
}

// RequestTimeout reports the bound applied to each prediction call.
func (s *Store) RequestTimeout() time.Duration {
	return s.timeout
}

// Len returns the number of live forms.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.forms)
}

// RunSweeper sweeps on every tick until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(s.now()); removed > 0 {
				logger.Debug("swept idle forms", zap.Int("removed", removed), zap.Int("remaining", s.Len()))
			}
		}
	}
}
