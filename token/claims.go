package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/storefront-gatekeeper/users"
)

// Kind is the token's purpose, carried in the "type" claim
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is implemented by AccessClaims and RefreshClaims only
type Claims interface {
	Kind() Kind
	SubjectID() string
	isClaims()
}

// AccessClaims are the short-lived claims the gatekeeper checks on every protected request
type AccessClaims struct {
	Subject   string     // Account ID
	Email     string     // Account email at issuance
	Role      users.Role // Account role at issuance
	SessionID string     // Opaque session token bound to this access token

	// Populated on Verify
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (AccessClaims) Kind() Kind { return KindAccess }
func (c AccessClaims) SubjectID() string { return c.Subject }
func (AccessClaims) isClaims() {}

// RefreshClaims only identify the account. Everything else is resolved again on refresh.
type RefreshClaims struct {
	Subject string

	// Populated on Verify
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (RefreshClaims) Kind() Kind { return KindRefresh }
func (c RefreshClaims) SubjectID() string { return c.Subject }
func (RefreshClaims) isClaims() {}

// envelope is the wire payload shared by both kinds
type envelope struct {
	jwt.RegisteredClaims
	Type      Kind       `json:"type"`
	Email     string     `json:"email,omitempty"`
	Role      users.Role `json:"role,omitempty"`
	SessionID string     `json:"sid,omitempty"`
}

func (e *envelope) claims() Claims {
	var issuedAt, expiresAt time.Time
	if e.IssuedAt != nil {
		issuedAt = e.IssuedAt.Time
	}
	if e.ExpiresAt != nil {
		expiresAt = e.ExpiresAt.Time
	}
	switch e.Type {
	case KindAccess:
		return AccessClaims{
			Subject:   e.Subject,
			Email:     e.Email,
			Role:      e.Role,
			SessionID: e.SessionID,
			ID:        e.ID,
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		}
	case KindRefresh:
		return RefreshClaims{
			Subject:   e.Subject,
			ID:        e.ID,
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		}
	}
	return nil
}
