package sessions_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/storefront-gatekeeper/internal/errors"
	"github.com/jrsteele09/storefront-gatekeeper/sessions"
	fakesessionrepo "github.com/jrsteele09/storefront-gatekeeper/sessions/repofakes"
	"github.com/jrsteele09/storefront-gatekeeper/users"
	fakeuserrepo "github.com/jrsteele09/storefront-gatekeeper/users/repofake"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	repo    *fakesessionrepo.FakeSessionRepo
	users   *fakeuserrepo.FakeUserRepo
	manager *sessions.Manager
	account *users.Account
	now     time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		repo:  fakesessionrepo.NewFakeSessionRepo(),
		users: fakeuserrepo.NewFakeUserRepo(),
		now:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.account = &users.Account{ID: "user-1", Email: "jane@example.com", Role: users.RoleCustomer, Active: true}
	require.NoError(t, f.users.Upsert(f.account))

	manager, err := sessions.NewManager(f.repo, f.users, sessions.WithNowFunc(func() time.Time { return f.now }))
	require.NoError(t, err)
	f.manager = manager
	return f
}

func TestNewManagerRequiresCollaborators(t *testing.T) {
	_, err := sessions.NewManager(nil, fakeuserrepo.NewFakeUserRepo())
	require.Error(t, err)
	_, err = sessions.NewManager(fakesessionrepo.NewFakeSessionRepo(), nil)
	require.Error(t, err)
}

func TestCreateAndValidate(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	token, err := f.manager.Create(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, token, 64)

	account, err := f.manager.Validate(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, account)
	require.Equal(t, "user-1", account.ID)

	// Only the hash is stored
	_, err = f.repo.Get(ctx, token)
	require.ErrorIs(t, err, errors.ErrSessionNotFound)
	stored, err := f.repo.Get(ctx, sessions.HashToken(token))
	require.NoError(t, err)
	require.True(t, stored.ExpiresAt.Equal(f.now.Add(7*24*time.Hour)))
}

func TestTokensAreUnique(t *testing.T) {
	f := setupTestFixture(t)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		token, err := f.manager.Create(context.Background(), "user-1")
		require.NoError(t, err)
		require.False(t, seen[token])
		seen[token] = true
	}
}

func TestCreateRequiresAccount(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.manager.Create(context.Background(), "")
	require.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestValidateUnknownOrEmptyToken(t *testing.T) {
	f := setupTestFixture(t)

	account, err := f.manager.Validate(context.Background(), "unknown")
	require.NoError(t, err)
	require.Nil(t, account)

	account, err = f.manager.Validate(context.Background(), "")
	require.NoError(t, err)
	require.Nil(t, account)
}

func TestExpiredSessionIsDeleted(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	token, err := f.manager.Create(ctx, "user-1")
	require.NoError(t, err)

	f.now = f.now.Add(7 * 24 * time.Hour)
	account, err := f.manager.Validate(ctx, token)
	require.NoError(t, err)
	require.Nil(t, account)
	require.Zero(t, f.repo.Len())
}

func TestInactiveOrDeletedAccount(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	token, err := f.manager.Create(ctx, "user-1")
	require.NoError(t, err)

	require.NoError(t, f.users.SetActive("user-1", false))
	account, err := f.manager.Validate(ctx, token)
	require.NoError(t, err)
	require.Nil(t, account)

	require.NoError(t, f.users.Delete("user-1"))
	account, err = f.manager.Validate(ctx, token)
	require.NoError(t, err)
	require.Nil(t, account)
	require.Zero(t, f.repo.Len())
}

func TestRevokeIsIdempotent(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	token, err := f.manager.Create(ctx, "user-1")
	require.NoError(t, err)

	require.NoError(t, f.manager.Revoke(ctx, token))
	require.NoError(t, f.manager.Revoke(ctx, token))
	require.NoError(t, f.manager.Revoke(ctx, ""))

	account, err := f.manager.Validate(ctx, token)
	require.NoError(t, err)
	require.Nil(t, account)
}

func TestPurgeExpired(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	_, err := f.manager.Create(ctx, "user-1")
	require.NoError(t, err)
	f.now = f.now.Add(24 * time.Hour)
	fresh, err := f.manager.Create(ctx, "user-1")
	require.NoError(t, err)

	f.now = f.now.Add(6*24*time.Hour + time.Minute)
	n, err := f.manager.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	account, err := f.manager.Validate(ctx, fresh)
	require.NoError(t, err)
	require.NotNil(t, account)
}

type failingRepo struct {
	fakesessionrepo.FakeSessionRepo
}

func (*failingRepo) Get(context.Context, string) (*sessions.Session, error) {
	return nil, errors.New("connection refused")
}

func TestRepoFailureIsReported(t *testing.T) {
	manager, err := sessions.NewManager(&failingRepo{}, fakeuserrepo.NewFakeUserRepo())
	require.NoError(t, err)

	account, err := manager.Validate(context.Background(), "token")
	require.Error(t, err)
	require.Nil(t, account)
}

type slowUsers struct {
	fakeuserrepo.FakeUserRepo
}

func (*slowUsers) FindByID(ctx context.Context, _ string) (*users.Account, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCredentialStoreCallsAreBounded(t *testing.T) {
	repo := fakesessionrepo.NewFakeSessionRepo()
	manager, err := sessions.NewManager(repo, &slowUsers{}, sessions.WithTimeout(20*time.Millisecond))
	require.NoError(t, err)

	token, err := manager.Create(context.Background(), "user-1")
	require.NoError(t, err)

	start := time.Now()
	_, err = manager.Validate(context.Background(), token)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
}
