package gatekeeper

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/storefront-gatekeeper/users"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyIdentity stores the authenticated *Identity
const ContextKeyIdentity ContextKey = "identity"

const (
	HeaderUserID    = "X-User-Id"
	HeaderUserRole  = "X-User-Role"
	HeaderUserEmail = "X-User-Email"
)

// Identity is the authenticated caller as forwarded to the storefront
type Identity struct {
	AccountID string     `json:"id"`
	Email     string     `json:"email"`
	Role      users.Role `json:"role"`
	SessionID string     `json:"-"`
}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, id)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(ContextKeyIdentity).(*Identity)
	return id, ok && id != nil
}

// stripIdentityHeaders removes every client supplied X-User-* header
func stripIdentityHeaders(h http.Header) {
	for name := range h {
		if strings.HasPrefix(http.CanonicalHeaderKey(name), "X-User-") {
			h.Del(name)
		}
	}
}

func setIdentityHeaders(h http.Header, id *Identity) {
	h.Set(HeaderUserID, id.AccountID)
	h.Set(HeaderUserRole, string(id.Role))
	h.Set(HeaderUserEmail, id.Email)
}
