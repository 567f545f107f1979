// Package ratelimit implements fixed-window request counting over a durable,
// shared store. Each execution context is isolated and stateless, so the
// window counters must live in the store: an in-process limiter can only ever
// be a best-effort approximation and is used here solely as a fallback when
// the store is unreachable.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Dimension identifies what a window counter is keyed by. A request is
// rejected when either dimension is exhausted: per-IP counting stops
// single-source flooding, per-email counting stops distributed
// credential-stuffing against one account.
type Dimension string

const (
	DimensionIP    Dimension = "ip"
	DimensionEmail Dimension = "email"
)

// Store persists window counters shared by all execution contexts.
type Store interface {
	// Increment adds one to the counter for (key, windowStart) and returns
	// the new count, creating the counter at 1 when absent.
	Increment(ctx context.Context, key string, windowStart time.Time) (int64, error)
}

// Config holds the general policy and the stricter override applied to
// authentication endpoints (same window).
type Config struct {
	Window  time.Duration
	Max     int64
	AuthMax int64
}

func (c Config) validate() error {
	if c.Window <= 0 {
		return errors.New("ratelimit: window must be positive")
	}
	if c.Max <= 0 || c.AuthMax <= 0 {
		return errors.New("ratelimit: limits must be positive")
	}
	if c.AuthMax > c.Max {
		return errors.New("ratelimit: auth limit must not exceed the general limit")
	}
	return nil
}

// Decision is the outcome of a rate-limit check plus the response metadata
// (remaining/limit/reset) attached to allowed requests.
type Decision struct {
	Allowed    bool
	Dimension  Dimension
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter evaluates requests against the durable window counters.
type Limiter struct {
	store Store
	cfg   Config
	now   func() time.Time

	// Per-process token buckets used only when the store is unreachable.
	// They do not provide cross-context correctness and are sized to never
	// block below the configured limit.
	mu       sync.Mutex
	fallback map[string]*rate.Limiter
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLimiterClock overrides the time source (tests).
func WithLimiterClock(fn func() time.Time) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.now = fn
		}
	}
}

// New constructs a Limiter.
func New(store Store, cfg Config, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("ratelimit: store is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	l := &Limiter{
		store:    store,
		cfg:      cfg,
		now:      time.Now,
		fallback: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Window returns the configured window size.
func (l *Limiter) Window() time.Duration { return l.cfg.Window }

// Allow evaluates one dimension. The counter resets exactly on the window
// boundary: the window start is the current time truncated to the window
// size, so there is no drift.
func (l *Limiter) Allow(ctx context.Context, dim Dimension, key string, authEndpoint bool) (Decision, error) {
	if key == "" {
		key = "unknown"
	}
	limit := l.cfg.Max
	scope := "general"
	if authEndpoint {
		limit = l.cfg.AuthMax
		scope = "auth"
	}

	now := l.now()
	windowStart := now.Truncate(l.cfg.Window)
	resetAt := windowStart.Add(l.cfg.Window)
	storeKey := fmt.Sprintf("%s:%s:%s", scope, dim, key)

	count, err := l.store.Increment(ctx, storeKey, windowStart)
	if err != nil {
		return l.allowFallback(storeKey, limit, resetAt, now, dim), err
	}

	d := Decision{
		Allowed:   count <= limit,
		Dimension: dim,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   resetAt,
	}
	if !d.Allowed {
		d.RetryAfter = resetAt.Sub(now)
	}
	return d, nil
}

// AllowRequest evaluates the client IP dimension and, on authentication
// endpoints, independently the claimed-email dimension. The request is
// rejected if either is exhausted; otherwise the tighter decision is
// returned so response headers reflect the binding constraint.
func (l *Limiter) AllowRequest(ctx context.Context, ip, email string, authEndpoint bool) (Decision, error) {
	ipDecision, err := l.Allow(ctx, DimensionIP, ip, authEndpoint)
	if err != nil {
		return ipDecision, err
	}
	if !ipDecision.Allowed {
		return ipDecision, nil
	}
	if !authEndpoint || email == "" {
		return ipDecision, nil
	}

	emailDecision, err := l.Allow(ctx, DimensionEmail, email, true)
	if err != nil {
		return emailDecision, err
	}
	if !emailDecision.Allowed || emailDecision.Remaining < ipDecision.Remaining {
		return emailDecision, nil
	}
	return ipDecision, nil
}

// allowFallback degrades to a per-process token bucket when the durable
// store is unreachable. Best effort only: it never falsely blocks a burst
// below the configured limit but cannot coordinate across contexts.
func (l *Limiter) allowFallback(key string, limit int64, resetAt, now time.Time, dim Dimension) Decision {
	l.mu.Lock()
	lim, ok := l.fallback[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.cfg.Window/time.Duration(limit)), int(limit))
		l.fallback[key] = lim
	}
	l.mu.Unlock()

	d := Decision{
		Allowed:   lim.Allow(),
		Dimension: dim,
		Limit:     limit,
		Remaining: int64(lim.Tokens()),
		ResetAt:   resetAt,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = resetAt.Sub(now)
	}
	return d
}
