package token

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/storefront-gatekeeper/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultAccessTokenExpiry  = 15 * time.Minute
	defaultRefreshTokenExpiry = 7 * 24 * time.Hour
)

// Pair is what a login or refresh hands back to the client
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Service issues and verifies first-party tokens. It holds no mutable state and is safe for concurrent use.
type Service struct {
	signer             Signer
	issuer             string
	audience           string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	nowFunc            func() time.Time
}

type ServiceOption func(*Service)

func WithTokenExpiry(accessTokenExpiry, refreshTokenExpiry time.Duration) ServiceOption {
	return func(s *Service) {
		s.accessTokenExpiry = accessTokenExpiry
		s.refreshTokenExpiry = refreshTokenExpiry
	}
}

func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = now
	}
}

func New(signer Signer, issuer, audience string, options ...ServiceOption) (*Service, error) {
	if signer == nil {
		return nil, fmt.Errorf("[token.New] signer is required")
	}
	if issuer == "" || audience == "" {
		return nil, fmt.Errorf("[token.New] issuer and audience are required")
	}
	s := &Service{
		signer:   signer,
		issuer:   issuer,
		audience: audience,
	}
	for _, opt := range options {
		opt(s)
	}

	if s.accessTokenExpiry <= 0 {
		s.accessTokenExpiry = defaultAccessTokenExpiry
	}
	if s.refreshTokenExpiry <= 0 {
		s.refreshTokenExpiry = defaultRefreshTokenExpiry
	}
	if s.nowFunc == nil {
		s.nowFunc = time.Now
	}
	return s, nil
}

// Issue signs claims. The variant decides the kind and the lifetime.
func (s *Service) Issue(claims Claims) (string, error) {
	now := s.nowFunc()
	env := envelope{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.issuer,
			Audience: jwt.ClaimStrings{s.audience},
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.New().String(),
		},
	}

	switch c := claims.(type) {
	case AccessClaims:
		if c.Subject == "" || !c.Role.Valid() {
			return "", fmt.Errorf("[Service Issue] access claims need a subject and a known role: %w", errors.ErrInvalidInput)
		}
		env.Subject = c.Subject
		env.Type = KindAccess
		env.Email = c.Email
		env.Role = c.Role
		env.SessionID = c.SessionID
		env.ExpiresAt = jwt.NewNumericDate(now.Add(s.accessTokenExpiry))
	case RefreshClaims:
		if c.Subject == "" {
			return "", fmt.Errorf("[Service Issue] refresh claims need a subject: %w", errors.ErrInvalidInput)
		}
		env.Subject = c.Subject
		env.Type = KindRefresh
		env.ExpiresAt = jwt.NewNumericDate(now.Add(s.refreshTokenExpiry))
	default:
		return "", fmt.Errorf("[Service Issue] unsupported claims %T: %w", claims, errors.ErrInvalidInput)
	}

	return s.signer.Sign(&env)
}

// IssuePair issues an access token for claims and a refresh token for the same subject
func (s *Service) IssuePair(claims AccessClaims) (Pair, error) {
	accessToken, err := s.Issue(claims)
	if err != nil {
		return Pair{}, err
	}
	refreshToken, err := s.Issue(RefreshClaims{Subject: claims.Subject})
	if err != nil {
		return Pair{}, err
	}
	now := s.nowFunc()
	return Pair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  now.Add(s.accessTokenExpiry),
		RefreshExpiresAt: now.Add(s.refreshTokenExpiry),
	}, nil
}

// Verify checks signature, algorithm, issuer, audience, expiry and kind.
// Every failure is reported as errors.ErrInvalidToken.
func (s *Service) Verify(tokenString string, kind Kind) (Claims, error) {
	return s.verify(tokenString, kind, true)
}

func (s *Service) verify(tokenString string, kind Kind, checkExpiry bool) (Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.signer.GetSigningMethod().Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.nowFunc),
	}
	if !checkExpiry {
		// the signature is still checked, issuer and audience are checked below
		options = []jwt.ParserOption{
			jwt.WithValidMethods([]string{s.signer.GetSigningMethod().Alg()}),
			jwt.WithoutClaimsValidation(),
		}
	}

	var env envelope
	if _, err := jwt.NewParser(options...).ParseWithClaims(tokenString, &env, s.signer.GetVerificationKey); err != nil {
		return nil, reject(kind, err.Error())
	}
	if !checkExpiry && (env.Issuer != s.issuer || !slices.Contains(env.Audience, s.audience)) {
		return nil, reject(kind, "issuer or audience mismatch")
	}
	if env.Type != kind {
		return nil, reject(kind, fmt.Sprintf("token kind %q", env.Type))
	}
	if env.Subject == "" {
		return nil, reject(kind, "missing subject")
	}
	if kind == KindAccess && !env.Role.Valid() {
		return nil, reject(kind, fmt.Sprintf("unknown role %q", env.Role))
	}
	return env.claims(), nil
}

func (s *Service) VerifyAccess(tokenString string) (AccessClaims, error) {
	claims, err := s.Verify(tokenString, KindAccess)
	if err != nil {
		return AccessClaims{}, err
	}
	return claims.(AccessClaims), nil
}

// VerifyAccessAllowExpired is VerifyAccess without the expiry check. It only serves to find the
// session an expired access token was bound to, never to authenticate.
func (s *Service) VerifyAccessAllowExpired(tokenString string) (AccessClaims, error) {
	claims, err := s.verify(tokenString, KindAccess, false)
	if err != nil {
		return AccessClaims{}, err
	}
	return claims.(AccessClaims), nil
}

func (s *Service) VerifyRefresh(tokenString string) (RefreshClaims, error) {
	claims, err := s.Verify(tokenString, KindRefresh)
	if err != nil {
		return RefreshClaims{}, err
	}
	return claims.(RefreshClaims), nil
}

func (s *Service) AccessTokenExpiry() time.Duration {
	return s.accessTokenExpiry
}

func (s *Service) RefreshTokenExpiry() time.Duration {
	return s.refreshTokenExpiry
}

func reject(kind Kind, reason string) error {
	log.Debug().Str("kind", string(kind)).Str("reason", reason).Msg("token rejected")
	return errors.ErrInvalidToken
}
