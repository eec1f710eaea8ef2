package gatekeeper_test

import (
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/jrsteele09/storefront-gatekeeper/gatekeeper"
	"github.com/jrsteele09/storefront-gatekeeper/ratelimit"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	routes := gatekeeper.DefaultRouteTable()

	tests := []struct {
		path  string
		class gatekeeper.Class
		api   bool
		scope ratelimit.Scope
	}{
		{"/", gatekeeper.ClassPublic, false, ratelimit.ScopeGeneral},
		{"/products/42", gatekeeper.ClassPublic, false, ratelimit.ScopeGeneral},
		{"/profile", gatekeeper.ClassProtected, false, ratelimit.ScopeGeneral},
		{"/checkout/payment", gatekeeper.ClassProtected, false, ratelimit.ScopeGeneral},
		{"/admin", gatekeeper.ClassAdmin, false, ratelimit.ScopeAdmin},
		{"/admin-tools", gatekeeper.ClassAdmin, false, ratelimit.ScopeAdmin},
		{"/api/admin/users", gatekeeper.ClassAdmin, true, ratelimit.ScopeAdmin},
		{"/seller/products", gatekeeper.ClassSeller, false, ratelimit.ScopeGeneral},
		{"/api/seller/orders", gatekeeper.ClassSeller, true, ratelimit.ScopeGeneral},
		{"/api/auth/login", gatekeeper.ClassPublic, true, ratelimit.ScopeAuth},
		{"/api/products", gatekeeper.ClassPublic, true, ratelimit.ScopeGeneral},
		{"/api", gatekeeper.ClassPublic, false, ratelimit.ScopeGeneral},
		{"/shop/../admin/", gatekeeper.ClassAdmin, false, ratelimit.ScopeAdmin},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			route := routes.Classify(tt.path)
			require.Equal(t, tt.class, route.Class, route.Class.String())
			require.Equal(t, tt.api, route.API)
			require.Equal(t, tt.scope, route.Scope)
		})
	}
}

func TestProtectAddsPrefixes(t *testing.T) {
	routes := gatekeeper.DefaultRouteTable().Protect("/api/auth/me")

	require.Equal(t, gatekeeper.ClassProtected, routes.Classify("/api/auth/me").Class)
	require.Equal(t, ratelimit.ScopeAuth, routes.Classify("/api/auth/me").Scope)
	require.Equal(t, gatekeeper.ClassPublic, routes.Classify("/api/auth/login").Class)
}

func TestCleanPath(t *testing.T) {
	for in, want := range map[string]string{
		"":           "/",
		"admin":      "/admin",
		"/a//b/./c":  "/a/b/c",
		"/a/b/../c/": "/a/c/",
		"/../../etc": "/etc",
		"/orders/":   "/orders/",
	} {
		require.Equal(t, want, gatekeeper.CleanPath(in), in)
	}
}

func TestClientIP(t *testing.T) {
	trust := gatekeeper.ProxyTrust{netip.MustParsePrefix("10.0.0.0/8")}
	tests := []struct {
		name       string
		trust      gatekeeper.ProxyTrust
		forwarded  string
		realIP     string
		remoteAddr string
		want       string
	}{
		{"untrusted peer ignores forwarded", nil, "198.51.100.4", "198.51.100.5", "192.0.2.10:5555", "192.0.2.10"},
		{"peer outside trusted range", trust, "198.51.100.4", "", "192.0.2.10:5555", "192.0.2.10"},
		{"trusted proxy", trust, "198.51.100.4", "", "10.0.0.3:5000", "198.51.100.4"},
		{"rightmost untrusted hop", trust, "203.0.113.9, 198.51.100.4, 10.0.0.1", "", "10.0.0.3:5000", "198.51.100.4"},
		{"trusted proxy real ip", trust, "", "198.51.100.5", "10.0.0.3:5000", "198.51.100.5"},
		{"garbage forwarded falls back", trust, "not-an-ip", "", "10.0.0.3:5000", "10.0.0.3"},
		{"remote addr without port", nil, "", "", "198.51.100.7", "198.51.100.7"},
		{"unknown", nil, "", "", "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			require.Equal(t, tt.want, tt.trust.ClientIP(r))
		})
	}
}

func TestLoginRedirect(t *testing.T) {
	require.Equal(t, "/login?redirect=/admin", gatekeeper.LoginRedirect("/admin"))
	require.Equal(t, "/login?redirect=/orders/a%26b", gatekeeper.LoginRedirect("/orders/a&b"))
}
