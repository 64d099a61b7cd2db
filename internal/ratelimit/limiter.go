package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter applies per-client sliding-window limits: a loose cap on all API
// calls, a strict cap on job creation, and a progressive delay once a small
// creation burst is exceeded. Requests over a cap are rejected, never queued.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*clientWindow

	window         time.Duration
	maxRequests    int
	maxJobs        int
	burstThreshold int
	burstDelay     time.Duration
	now            func() time.Time
}

type clientWindow struct {
	requests []time.Time
	jobs     []time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock injects a time source (primarily for tests).
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New constructs a limiter. window is the sliding window shared by both caps.
func New(window time.Duration, maxRequests, maxJobs, burstThreshold int, burstDelay time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		clients:        make(map[string]*clientWindow),
		window:         window,
		maxRequests:    maxRequests,
		maxJobs:        maxJobs,
		burstThreshold: burstThreshold,
		burstDelay:     burstDelay,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AllowRequest records one API call for the client and reports whether the
// loose cap permits it.
func (l *Limiter) AllowRequest(clientID string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	cw := l.client(clientID)
	cw.requests = trim(cw.requests, now.Add(-l.window))
	if len(cw.requests) >= l.maxRequests {
		return false
	}
	cw.requests = append(cw.requests, now)
	return true
}

// AllowJob records one job-creation attempt. When the strict cap is exceeded
// the attempt is rejected outright; past the burst threshold but under the cap
// a progressive delay is returned for the caller to apply before proceeding.
func (l *Limiter) AllowJob(clientID string) (time.Duration, bool) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	cw := l.client(clientID)
	cw.jobs = trim(cw.jobs, now.Add(-l.window))
	count := len(cw.jobs)
	if count >= l.maxJobs {
		return 0, false
	}
	cw.jobs = append(cw.jobs, now)

	if count >= l.burstThreshold {
		return time.Duration(count-l.burstThreshold+1) * l.burstDelay, true
	}
	return 0, true
}

// Prune drops clients with no activity inside the window, bounding memory.
func (l *Limiter) Prune() int {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, cw := range l.clients {
		cw.requests = trim(cw.requests, cutoff)
		cw.jobs = trim(cw.jobs, cutoff)
		if len(cw.requests) == 0 && len(cw.jobs) == 0 {
			delete(l.clients, id)
			removed++
		}
	}
	return removed
}

func (l *Limiter) client(id string) *clientWindow {
	cw, ok := l.clients[id]
	if !ok {
		cw = &clientWindow{}
		l.clients[id] = cw
	}
	return cw
}

func trim(stamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(stamps) && !stamps[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[idx:]...)
}

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled. Used to apply the progressive burst delay without
// holding a goroutine past client disconnect.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
