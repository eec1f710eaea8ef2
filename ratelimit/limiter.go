// Package ratelimit implements fixed-window request budgets keyed by scope and client.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Scope keeps the key spaces of independent budgets apart
type Scope string

const (
	ScopeAuth    Scope = "auth"
	ScopeAdmin   Scope = "admin"
	ScopeGeneral Scope = "general"
	ScopeAPI     Scope = "api"
	ScopeLogin   Scope = "login"
)

// Bucket is the state of one fixed window
type Bucket struct {
	Count   int64
	ResetAt time.Time
}

// Store holds buckets. Hit must increment atomically per key, starting a new window
// with a count of 1 when the key is absent or its window has passed.
type Store interface {
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (Bucket, error)
	Peek(ctx context.Context, key string, now time.Time) (Bucket, bool, error)
	Reset(ctx context.Context, key string) error
}

// Result of a rate limit check
type Result struct {
	Allowed bool
	Count   int64
	Limit   int64
	ResetAt time.Time
}

// Remaining is the number of hits left in the current window
func (r Result) Remaining() int64 {
	if r.Count >= r.Limit {
		return 0
	}
	return r.Limit - r.Count
}

// RetryAfter is the time until the window resets, never negative
func (r Result) RetryAfter(now time.Time) time.Duration {
	if d := r.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

type Limiter struct {
	store   Store
	nowFunc func() time.Time
}

type LimiterOption func(*Limiter)

func WithNowFunc(now func() time.Time) LimiterOption {
	return func(l *Limiter) {
		l.nowFunc = now
	}
}

func New(store Store, options ...LimiterOption) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("[ratelimit.New] store is required")
	}
	l := &Limiter{store: store, nowFunc: time.Now}
	for _, opt := range options {
		opt(l)
	}
	return l, nil
}

// Key is the store key for a scope and client
func Key(scope Scope, clientKey string) string {
	return "rate_limit:" + string(scope) + ":" + clientKey
}

// Allow records a hit and reports whether it is within limit. Denied hits are counted too.
func (l *Limiter) Allow(ctx context.Context, scope Scope, clientKey string, limit int64, window time.Duration) (Result, error) {
	if limit <= 0 || window <= 0 {
		return Result{}, fmt.Errorf("[Limiter Allow] limit and window must be positive")
	}
	b, err := l.store.Hit(ctx, Key(scope, clientKey), window, l.nowFunc())
	if err != nil {
		return Result{}, fmt.Errorf("[Limiter Allow] %s: %w", scope, err)
	}
	return Result{
		Allowed: b.Count <= limit,
		Count:   b.Count,
		Limit:   limit,
		ResetAt: b.ResetAt,
	}, nil
}

// Peek reports the current window without recording a hit. Allowed says whether one more hit would pass.
func (l *Limiter) Peek(ctx context.Context, scope Scope, clientKey string, limit int64) (Result, error) {
	b, ok, err := l.store.Peek(ctx, Key(scope, clientKey), l.nowFunc())
	if err != nil {
		return Result{}, fmt.Errorf("[Limiter Peek] %s: %w", scope, err)
	}
	if !ok {
		return Result{Allowed: true, Limit: limit}, nil
	}
	return Result{
		Allowed: b.Count < limit,
		Count:   b.Count,
		Limit:   limit,
		ResetAt: b.ResetAt,
	}, nil
}

func (l *Limiter) Reset(ctx context.Context, scope Scope, clientKey string) error {
	if err := l.store.Reset(ctx, Key(scope, clientKey)); err != nil {
		return fmt.Errorf("[Limiter Reset] %s: %w", scope, err)
	}
	return nil
}

func (l *Limiter) Now() time.Time {
	return l.nowFunc()
}
