// Package ratelimit provides pluggable per-key request limiters
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter decides whether another event for key is allowed right now
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// SlidingWindow allows at most limit events per key in any rolling window.
// State lives in process memory and is lost on restart.
type SlidingWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	events map[string][]time.Time
}

// NewSlidingWindow creates an in-memory sliding window limiter
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:  limit,
		window: window,
		now:    time.Now,
		events: make(map[string][]time.Time),
	}
}

// SetClock replaces the time source
func (s *SlidingWindow) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Allow records an event for key if the window has room
func (s *SlidingWindow) Allow(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	recent := trim(s.events[key], now.Add(-s.window))
	if len(recent) >= s.limit {
		s.events[key] = recent
		return false, nil
	}
	s.events[key] = append(recent, now)
	return true, nil
}

// Prune drops keys whose events have all left the window and returns how many were removed
func (s *SlidingWindow) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.window)
	removed := 0
	for key, ts := range s.events {
		if recent := trim(ts, cutoff); len(recent) == 0 {
			delete(s.events, key)
			removed++
		} else {
			s.events[key] = recent
		}
	}
	return removed
}

// trim drops timestamps at or before cutoff; ts is ordered oldest first
func trim(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

// TokenBucket refills limit tokens per window per key
type TokenBucket struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*bucket
	now      func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucket creates a limiter allowing bursts of limit and a steady limit/window rate
func NewTokenBucket(limit int, window time.Duration) *TokenBucket {
	return &TokenBucket{
		limit:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
		limiters: make(map[string]*bucket),
		now:      time.Now,
	}
}

// Allow takes a token from key's bucket
func (t *TokenBucket) Allow(_ context.Context, key string) (bool, error) {
	t.mu.Lock()
	b, ok := t.limiters[key]
	now := t.now()
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.limiters[key] = b
	}
	b.lastSeen = now
	t.mu.Unlock()

	return b.limiter.AllowN(now, 1), nil
}

// Prune drops buckets idle for longer than idle and returns how many were removed
func (t *TokenBucket) Prune(idle time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-idle)
	removed := 0
	for key, b := range t.limiters {
		if b.lastSeen.Before(cutoff) {
			delete(t.limiters, key)
			removed++
		}
	}
	return removed
}
