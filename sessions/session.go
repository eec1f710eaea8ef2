package sessions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Session binds an opaque session token to an account. Only the token's hash is stored.
type Session struct {
	TokenHash string    `json:"token_hash"` // hex SHA-256 of the session token
	AccountID string    `json:"account_id"` // Account the session belongs to
	CreatedAt time.Time `json:"created_at"` // When the session was created
	ExpiresAt time.Time `json:"expires_at"` // Session is invalid from this instant
}

// Expired reports whether the session is no longer valid at now
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Repo stores sessions by token hash.
// Get returns errors.ErrSessionNotFound when there is no session for the hash.
type Repo interface {
	Upsert(ctx context.Context, session *Session) error
	Get(ctx context.Context, tokenHash string) (*Session, error)

	// Delete is idempotent
	Delete(ctx context.Context, tokenHash string) error

	// DeleteExpiredSessions removes sessions that expired at or before now
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// HashToken is the repo key for a raw session token
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
