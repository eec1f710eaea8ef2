package redisrepo_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/storefront-gatekeeper/internal/errors"
	"github.com/jrsteele09/storefront-gatekeeper/sessions"
	"github.com/jrsteele09/storefront-gatekeeper/sessions/redisrepo"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupRepo(t *testing.T, now time.Time) (*redisrepo.Repo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo, err := redisrepo.New(client, redisrepo.WithNowFunc(func() time.Time { return now }))
	require.NoError(t, err)
	return repo, mr
}

func TestNewRequiresClient(t *testing.T) {
	_, err := redisrepo.New(nil)
	require.Error(t, err)
}

func TestUpsertGetDelete(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo, mr := setupRepo(t, now)
	ctx := context.Background()

	session := &sessions.Session{
		TokenHash: sessions.HashToken("token"),
		AccountID: "user-1",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, repo.Upsert(ctx, session))
	require.Equal(t, time.Hour, mr.TTL("session:"+session.TokenHash))

	found, err := repo.Get(ctx, session.TokenHash)
	require.NoError(t, err)
	require.Equal(t, "user-1", found.AccountID)
	require.True(t, found.ExpiresAt.Equal(session.ExpiresAt))

	require.NoError(t, repo.Delete(ctx, session.TokenHash))
	require.NoError(t, repo.Delete(ctx, session.TokenHash))
	_, err = repo.Get(ctx, session.TokenHash)
	require.ErrorIs(t, err, errors.ErrSessionNotFound)
}

func TestKeysExpireWithTheSession(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo, mr := setupRepo(t, now)
	ctx := context.Background()

	session := &sessions.Session{TokenHash: "abc", AccountID: "user-1", CreatedAt: now, ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, repo.Upsert(ctx, session))

	mr.FastForward(time.Minute)
	_, err := repo.Get(ctx, "abc")
	require.ErrorIs(t, err, errors.ErrSessionNotFound)

	n, err := repo.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestAlreadyExpiredSessionIsNotStored(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo, mr := setupRepo(t, now)

	require.NoError(t, repo.Upsert(context.Background(), &sessions.Session{TokenHash: "old", ExpiresAt: now}))
	require.False(t, mr.Exists("session:old"))
}
