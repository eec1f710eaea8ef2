// Package redisrepo stores sessions in Redis so several gatekeeper instances share them.
package redisrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrsteele09/storefront-gatekeeper/internal/errors"
	"github.com/jrsteele09/storefront-gatekeeper/sessions"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

var _ sessions.Repo = (*Repo)(nil)

// Repo keeps each session under its own key. Redis expires the key with the session.
type Repo struct {
	client  redis.UniversalClient
	nowFunc func() time.Time
}

type RepoOption func(*Repo)

func WithNowFunc(now func() time.Time) RepoOption {
	return func(r *Repo) {
		r.nowFunc = now
	}
}

func New(client redis.UniversalClient, options ...RepoOption) (*Repo, error) {
	if client == nil {
		return nil, fmt.Errorf("[redisrepo.New] redis client is required")
	}
	r := &Repo{client: client, nowFunc: time.Now}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

func (r *Repo) Upsert(ctx context.Context, session *sessions.Session) error {
	ttl := session.ExpiresAt.Sub(r.nowFunc())
	if ttl <= 0 {
		return nil
	}
	b, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("[Repo Upsert] %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+session.TokenHash, b, ttl).Err(); err != nil {
		return fmt.Errorf("[Repo Upsert] %w", err)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, tokenHash string) (*sessions.Session, error) {
	b, err := r.client.Get(ctx, keyPrefix+tokenHash).Bytes()
	if err == redis.Nil {
		return nil, errors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("[Repo Get] %w", err)
	}
	var session sessions.Session
	if err := json.Unmarshal(b, &session); err != nil {
		return nil, fmt.Errorf("[Repo Get] decode: %w", err)
	}
	return &session, nil
}

func (r *Repo) Delete(ctx context.Context, tokenHash string) error {
	if err := r.client.Del(ctx, keyPrefix+tokenHash).Err(); err != nil {
		return fmt.Errorf("[Repo Delete] %w", err)
	}
	return nil
}

// DeleteExpiredSessions has nothing to do. Keys carry the session's expiry.
func (r *Repo) DeleteExpiredSessions(context.Context, time.Time) (int, error) {
	return 0, nil
}
