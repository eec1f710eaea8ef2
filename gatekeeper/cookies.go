package gatekeeper

import (
	"net/http"
	"time"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// SetAccessCookie stores the access token for the browser
func (g *Gatekeeper) SetAccessCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, g.cookie(AccessTokenCookie, value, g.deps.Tokens.AccessTokenExpiry()))
}

func (g *Gatekeeper) SetRefreshCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, g.cookie(RefreshTokenCookie, value, g.deps.Tokens.RefreshTokenExpiry()))
}

// ClearCookies expires both token cookies
func (g *Gatekeeper) ClearCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		c := g.cookie(name, "", 0)
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func (g *Gatekeeper) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   g.cfg.IsProduction(),
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(maxAge / time.Second),
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
