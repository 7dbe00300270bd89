package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter checks whether a bearer-authenticated request should be
// allowed for the given identity.
type RateLimiter interface {
	Allow(ctx context.Context, id *Identity) error
}

// InProcessLimiter is a sliding-window rate limiter that tracks request
// counts per subject in memory. It gates only the bearer path; browser
// and anonymous traffic is never limited here.
type InProcessLimiter struct {
	rpm      int
	mu       sync.Mutex
	counters map[string]*counter
}

type counter struct {
	count    int
	windowAt time.Time
}

// NewInProcessLimiter creates a limiter allowing rpm requests per minute
// per subject. rpm <= 0 disables limiting.
func NewInProcessLimiter(rpm int) *InProcessLimiter {
	return &InProcessLimiter{
		rpm:      rpm,
		counters: make(map[string]*counter),
	}
}

// Allow checks if the request is within the rate limit.
// Fails open: any internal inconsistency allows the request.
func (l *InProcessLimiter) Allow(_ context.Context, id *Identity) error {
	if l.rpm <= 0 || id == nil {
		return nil
	}

	key := id.Issuer + ":" + id.Name()

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	c, ok := l.counters[key]
	if !ok || now.Sub(c.windowAt) >= time.Minute {
		// New window.
		l.counters[key] = &counter{count: 1, windowAt: now}
		return nil
	}

	c.count++
	if c.count > l.rpm {
		return ErrTooManyRequests
	}

	return nil
}
