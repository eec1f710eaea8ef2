// Package auth logs storefront accounts in and out on top of the gatekeeper's token and session services.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/storefront-gatekeeper/audit"
	"github.com/jrsteele09/storefront-gatekeeper/internal/errors"
	"github.com/jrsteele09/storefront-gatekeeper/internal/metrics"
	"github.com/jrsteele09/storefront-gatekeeper/ratelimit"
	"github.com/jrsteele09/storefront-gatekeeper/sessions"
	"github.com/jrsteele09/storefront-gatekeeper/token"
	"github.com/jrsteele09/storefront-gatekeeper/users"
	"github.com/rs/zerolog/log"
)

const (
	defaultMaxAttempts    = 5
	defaultLockout        = 30 * time.Minute
	defaultCallerTimeout  = 2 * time.Second
	reasonBadCredentials  = "invalid_credentials"
	reasonAccountInactive = "account_inactive"
)

// dummyHash is compared against when no account matches so unknown emails cost the same as wrong passwords
var dummyHash = sync.OnceValue(func() string {
	hash, err := users.HashPassword("not-a-real-password")
	if err != nil {
		log.Err(err).Msg("failed to create dummy password hash")
	}
	return hash
})

// Refresher exchanges a refresh token for a fresh session and token pair
type Refresher interface {
	Refresh(ctx context.Context, refreshToken, previousAccessToken string) (*users.Account, token.Pair, error)
}

// Deps holds all dependencies for the Service
type Deps struct {
	Credentials users.CredentialStore
	Sessions    *sessions.Manager
	Tokens      *token.Service
	Limiter     *ratelimit.Limiter
	Audit       *audit.Logger
	Refresher   Refresher
}

type Service struct {
	deps        Deps
	validator   *Validator
	maxAttempts int64
	lockout     time.Duration
	timeout     time.Duration
	metrics     *metrics.Metrics
}

type ServiceOption func(*Service)

// WithLockout locks an email out after maxAttempts failed logins within the lockout window
func WithLockout(maxAttempts int64, lockout time.Duration) ServiceOption {
	return func(s *Service) {
		s.maxAttempts = maxAttempts
		s.lockout = lockout
	}
}

func WithTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		s.timeout = timeout
	}
}

func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

func NewService(deps Deps, options ...ServiceOption) (*Service, error) {
	if deps.Credentials == nil {
		return nil, fmt.Errorf("[NewService] credential store is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("[NewService] session manager is required")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("[NewService] token service is required")
	}
	if deps.Limiter == nil {
		return nil, fmt.Errorf("[NewService] rate limiter is required")
	}
	if deps.Audit == nil {
		return nil, fmt.Errorf("[NewService] audit logger is required")
	}
	if deps.Refresher == nil {
		return nil, fmt.Errorf("[NewService] refresher is required")
	}

	s := &Service{
		deps:      deps,
		validator: NewValidator(),
	}
	for _, opt := range options {
		opt(s)
	}

	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.lockout <= 0 {
		s.lockout = defaultLockout
	}
	if s.timeout <= 0 {
		s.timeout = defaultCallerTimeout
	}
	return s, nil
}

// Client describes where a request came from, for the audit trail
type Client struct {
	IP        string
	UserAgent string
}

type LoginRequest struct {
	Email    string
	Password string
	Client   Client
}

// Result is a signed in account and the tokens to hand to its browser
type Result struct {
	Account *users.Account
	Tokens  token.Pair
}

// Login checks credentials and starts a session.
// Wrong email and wrong password both give errors.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Result, error) {
	if err := s.validator.ValidateUserCredentials(req.Email, req.Password); err != nil {
		return nil, err
	}
	email := NormalizeEmail(req.Email)

	attempt, ok := s.reserveAttempt(ctx, email)
	if !ok {
		s.deps.Audit.Record(ctx, nil, audit.ActionLoginLocked, map[string]any{"email": email}, req.Client.IP, req.Client.UserAgent)
		s.metrics.Login("locked")
		return nil, errors.ErrTooManyAttempts
	}

	account, err := s.findAccount(ctx, email)
	if err != nil && !errors.Is(err, errors.ErrUserNotFound) {
		return nil, errors.Wrapf(err, "[Service Login] find account")
	}

	hash := dummyHash()
	if account != nil {
		hash = account.PasswordHash
	}
	if !s.deps.Credentials.VerifyPassword(req.Password, hash) || account == nil {
		s.recordFailure(ctx, email, nil, reasonBadCredentials, attempt, req.Client)
		return nil, errors.ErrInvalidCredentials
	}
	if !account.Active {
		s.recordFailure(ctx, email, &account.ID, reasonAccountInactive, attempt, req.Client)
		return nil, errors.ErrUserInactive
	}

	if err := s.deps.Limiter.Reset(ctx, ratelimit.ScopeLogin, email); err != nil {
		log.Err(err).Msg("failed to reset login attempts")
	}

	result, err := s.startSession(ctx, account)
	if err != nil {
		return nil, errors.Wrapf(err, "[Service Login]")
	}
	s.deps.Audit.Record(ctx, &account.ID, audit.ActionLoginSuccess, map[string]any{"email": email}, req.Client.IP, req.Client.UserAgent)
	s.metrics.Login("success")
	return result, nil
}

// Logout revokes the session bound to the access token. Tokens that no longer verify have nothing to revoke.
func (s *Service) Logout(ctx context.Context, accessToken string, client Client) error {
	claims, err := s.deps.Tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil
	}
	if err := s.deps.Sessions.Revoke(ctx, claims.SessionID); err != nil {
		return errors.Wrapf(err, "[Service Logout] revoke session")
	}
	s.deps.Audit.Record(ctx, &claims.Subject, audit.ActionLogout, nil, client.IP, client.UserAgent)
	return nil
}

// Refresh rotates both tokens for a valid refresh token. The session behind accessToken is replaced.
func (s *Service) Refresh(ctx context.Context, refreshToken, accessToken string, client Client) (*Result, error) {
	account, pair, err := s.deps.Refresher.Refresh(ctx, refreshToken, accessToken)
	if err != nil {
		return nil, err
	}
	s.deps.Audit.Record(ctx, &account.ID, audit.ActionTokenRefresh, nil, client.IP, client.UserAgent)
	return &Result{Account: account, Tokens: pair}, nil
}

func (s *Service) startSession(ctx context.Context, account *users.Account) (*Result, error) {
	sessionToken, err := s.deps.Sessions.Create(ctx, account.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "create session")
	}
	pair, err := s.deps.Tokens.IssuePair(token.AccessClaims{
		Subject:   account.ID,
		Email:     account.Email,
		Role:      account.Role,
		SessionID: sessionToken,
	})
	if err != nil {
		if revokeErr := s.deps.Sessions.Revoke(ctx, sessionToken); revokeErr != nil {
			log.Err(revokeErr).Msg("failed to revoke session after token failure")
		}
		return nil, errors.Wrapf(err, "issue tokens")
	}
	return &Result{Account: account, Tokens: pair}, nil
}

// LockoutRemaining is how long email stays locked out, zero when it is not locked
func (s *Service) LockoutRemaining(ctx context.Context, email string) time.Duration {
	res, err := s.deps.Limiter.Peek(ctx, ratelimit.ScopeLogin, NormalizeEmail(email), s.maxAttempts)
	if err != nil || res.Allowed {
		return 0
	}
	return res.RetryAfter(s.deps.Limiter.Now())
}

// reserveAttempt counts the attempt before the password is checked, so concurrent guesses
// cannot get past the limit. A successful login resets the count. Fails open when the store is unavailable.
func (s *Service) reserveAttempt(ctx context.Context, email string) (ratelimit.Result, bool) {
	res, err := s.deps.Limiter.Allow(ctx, ratelimit.ScopeLogin, email, s.maxAttempts, s.lockout)
	if err != nil {
		log.Err(err).Msg("failed to record login attempt")
		return ratelimit.Result{}, true
	}
	return res, res.Allowed
}

func (s *Service) recordFailure(ctx context.Context, email string, accountID *string, reason string, attempt ratelimit.Result, client Client) {
	details := map[string]any{"email": email, "reason": reason}
	if attempt.Count > 0 {
		details["attempts"] = attempt.Count
	}
	s.deps.Audit.Record(ctx, accountID, audit.ActionLoginFailed, details, client.IP, client.UserAgent)
	s.metrics.Login("failed")
}

func (s *Service) findAccount(ctx context.Context, email string) (*users.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.deps.Credentials.FindByEmail(ctx, email)
}
