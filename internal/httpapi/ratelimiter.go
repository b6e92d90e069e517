package httpapi

import (
	"sync"
	"time"
)

// SlidingWindowLimiter enforces a maximum number of events per caller within a
// time window. Callers are identified by an arbitrary key such as the remote host.
type SlidingWindowLimiter struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu     sync.Mutex
	events map[string][]time.Time
}

// NewSlidingWindowLimiter constructs a limiter allowing up to limit events per
// window for every key. A non-positive window or limit disables limiting.
func NewSlidingWindowLimiter(window time.Duration, limit int, timeSource func() time.Time) *SlidingWindowLimiter {
	if timeSource == nil {
		timeSource = time.Now
	}
	return &SlidingWindowLimiter{
		window: window,
		limit:  limit,
		now:    timeSource,
		events: make(map[string][]time.Time),
	}
}

// Allow reports whether key may proceed and records the attempt when it may.
func (l *SlidingWindowLimiter) Allow(key string) bool {
	if l == nil || l.limit <= 0 || l.window <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.pruneLocked(key, now)
	if len(kept) >= l.limit {
		return false
	}
	l.events[key] = append(kept, now)
	return true
}

// RetryAfter estimates how long key must wait before its next attempt succeeds.
func (l *SlidingWindowLimiter) RetryAfter(key string) time.Duration {
	if l == nil || l.limit <= 0 || l.window <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.pruneLocked(key, now)
	if len(kept) < l.limit {
		return 0
	}
	//1.- The oldest attempt leaving the window frees the next slot.
	return kept[0].Add(l.window).Sub(now)
}

func (l *SlidingWindowLimiter) pruneLocked(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	stamps := l.events[key]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(l.events, key)
		return nil
	}
	l.events[key] = kept
	return kept
}
