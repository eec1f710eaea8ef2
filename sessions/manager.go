package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jrsteele09/storefront-gatekeeper/internal/errors"
	"github.com/jrsteele09/storefront-gatekeeper/users"
	"github.com/rs/zerolog/log"
)

const (
	tokenBytes           = 32
	defaultMaxSessionAge = 7 * 24 * time.Hour
	defaultCallerTimeout = 2 * time.Second
)

// Manager creates, validates and revokes sessions
type Manager struct {
	repo        Repo
	credentials users.CredentialStore
	maxAge      time.Duration
	timeout     time.Duration
	nowFunc     func() time.Time
}

type ManagerOption func(*Manager)

func WithMaxSessionAge(maxAge time.Duration) ManagerOption {
	return func(m *Manager) {
		m.maxAge = maxAge
	}
}

// WithTimeout bounds every repo and credential store call
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func NewManager(repo Repo, credentials users.CredentialStore, options ...ManagerOption) (*Manager, error) {
	if repo == nil {
		return nil, fmt.Errorf("[NewManager] session repo is required")
	}
	if credentials == nil {
		return nil, fmt.Errorf("[NewManager] credential store is required")
	}
	m := &Manager{
		repo:        repo,
		credentials: credentials,
	}
	for _, opt := range options {
		opt(m)
	}

	if m.maxAge <= 0 {
		m.maxAge = defaultMaxSessionAge
	}
	if m.timeout <= 0 {
		m.timeout = defaultCallerTimeout
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m, nil
}

// Create starts a session for accountID and returns the raw token. The raw token is never stored.
func (m *Manager) Create(ctx context.Context, accountID string) (string, error) {
	if accountID == "" {
		return "", fmt.Errorf("[Manager Create] account id: %w", errors.ErrInvalidInput)
	}
	token, err := newToken()
	if err != nil {
		return "", fmt.Errorf("[Manager Create] %w", err)
	}

	now := m.nowFunc()
	session := &Session{
		TokenHash: HashToken(token),
		AccountID: accountID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.maxAge),
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.repo.Upsert(ctx, session); err != nil {
		return "", fmt.Errorf("[Manager Create] %w", err)
	}
	return token, nil
}

// Validate resolves a session token to its account.
// A missing or expired session, or an account that is gone or inactive, gives (nil, nil).
// Errors are only returned when a collaborator fails.
func (m *Manager) Validate(ctx context.Context, token string) (*users.Account, error) {
	if token == "" {
		return nil, nil
	}
	hash := HashToken(token)

	session, err := m.get(ctx, hash)
	if errors.Is(err, errors.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[Manager Validate] %w", err)
	}

	if session.Expired(m.nowFunc()) {
		if err := m.delete(ctx, hash); err != nil {
			log.Err(err).Msg("failed to delete expired session")
		}
		return nil, nil
	}

	account, err := m.findAccount(ctx, session.AccountID)
	if errors.Is(err, errors.ErrUserNotFound) {
		if err := m.delete(ctx, hash); err != nil {
			log.Err(err).Msg("failed to delete orphaned session")
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[Manager Validate] %w", err)
	}
	if !account.Active {
		return nil, nil
	}
	return account, nil
}

// Revoke ends a session. Revoking an unknown token is not an error.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.delete(ctx, HashToken(token)); err != nil {
		return fmt.Errorf("[Manager Revoke] %w", err)
	}
	return nil
}

// PurgeExpired drops every expired session and returns how many went
func (m *Manager) PurgeExpired(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	n, err := m.repo.DeleteExpiredSessions(ctx, m.nowFunc())
	if err != nil {
		return 0, fmt.Errorf("[Manager PurgeExpired] %w", err)
	}
	return n, nil
}

// StartJanitor purges expired sessions every interval until ctx is done
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := m.PurgeExpired(ctx)
				if err != nil {
					log.Err(err).Msg("session purge failed")
					continue
				}
				if n > 0 {
					log.Debug().Int("count", n).Msg("purged expired sessions")
				}
			}
		}
	}()
}

func (m *Manager) get(ctx context.Context, hash string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.repo.Get(ctx, hash)
}

func (m *Manager) delete(ctx context.Context, hash string) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.repo.Delete(ctx, hash)
}

func (m *Manager) findAccount(ctx context.Context, id string) (*users.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.credentials.FindByID(ctx, id)
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
