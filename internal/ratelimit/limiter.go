// Package ratelimit is the per-tenant sliding-window admission control shared by the outbound send endpoints.
package ratelimit

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Limiter admits at most limit requests per tenant in any trailing window.
// One mutex guards all tenants so decisions for a tenant are linearizable.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	clk    clock.Clock
	hits   map[string][]time.Time
}

// New returns a Limiter. A limit below 1 is raised to 1. A nil clk uses the wall clock.
func New(limit int, window time.Duration, clk clock.Clock) *Limiter {
	if limit < 1 {
		limit = 1
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Limiter{
		limit:  limit,
		window: window,
		clk:    clk,
		hits:   make(map[string][]time.Time),
	}
}

// Allow records an admission for tenantID and returns true, or returns false with the time until the
// oldest admission in the window expires.
func (l *Limiter) Allow(tenantID string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now()
	hits := l.prune(tenantID, now)
	if len(hits) < l.limit {
		l.hits[tenantID] = append(hits, now)
		return true, 0
	}
	retry := l.window - now.Sub(hits[0])
	if retry < 0 {
		retry = 0
	}
	return false, retry
}

// prune drops admissions at or before now-window; a tenant left with none is removed.
func (l *Limiter) prune(tenantID string, now time.Time) []time.Time {
	hits := l.hits[tenantID]
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	hits = hits[i:]
	if len(hits) == 0 {
		delete(l.hits, tenantID)
		return nil
	}
	l.hits[tenantID] = hits
	return hits
}

// tenants is the number of tenants currently tracked.
func (l *Limiter) tenants() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}
