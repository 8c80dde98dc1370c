package server

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimitConfig bounds how many API requests one client identity may make
// inside a fixed window. The limiter is advisory: counts reset atomically at
// the window boundary, so bursts straddling a boundary can momentarily exceed
// the nominal rate.
type RateLimitConfig struct {
	Limit         int
	Window        time.Duration
	RedisAddr     string
	RedisPassword string
	RedisTimeout  time.Duration
}

type counterStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

type rateLimiter struct {
	limit  int
	window time.Duration
	store  counterStore
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.Limit <= 0 {
		return nil
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	rl := &rateLimiter{limit: cfg.Limit, window: window}
	if cfg.RedisAddr != "" {
		timeout := cfg.RedisTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		rl.store = newRedisStore(cfg.RedisAddr, cfg.RedisPassword, timeout)
	} else {
		rl.store = newMemoryStore(time.Now)
	}
	return rl
}

// Allow reports whether the client identified by key may proceed, with a wait
// hint when it may not.
func (r *rateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if r == nil {
		return true, 0, nil
	}
	if key == "" {
		key = "unknown"
	}
	return r.store.Allow(ctx, fmt.Sprintf("clipbind:rl:%s", key), r.limit, r.window)
}

type fixedWindow struct {
	start time.Time
	count int
}

// memoryStore is the single-process fixed-window counter. The clock is
// injectable so tests can walk the window boundary deterministically.
type memoryStore struct {
	mu      sync.Mutex
	windows map[string]*fixedWindow
	now     func() time.Time
}

func newMemoryStore(now func() time.Time) *memoryStore {
	if now == nil {
		now = time.Now
	}
	return &memoryStore{windows: make(map[string]*fixedWindow), now: now}
}

func (s *memoryStore) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.windows[key]
	if !exists || now.Sub(w.start) >= window {
		s.windows[key] = &fixedWindow{start: now, count: 1}
		s.cleanupLocked(now, window)
		return true, 0, nil
	}

	w.count++
	if w.count <= limit {
		return true, 0, nil
	}
	return false, w.start.Add(window).Sub(now), nil
}

// cleanupLocked drops windows that expired more than one window ago so idle
// clients do not accumulate.
func (s *memoryStore) cleanupLocked(now time.Time, window time.Duration) {
	if len(s.windows) < 1024 {
		return
	}
	cutoff := now.Add(-2 * window)
	for key, w := range s.windows {
		if w.start.Before(cutoff) {
			delete(s.windows, key)
		}
	}
}
