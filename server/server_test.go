package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/storefront-gatekeeper/audit"
	"github.com/jrsteele09/storefront-gatekeeper/audit/sinkfake"
	"github.com/jrsteele09/storefront-gatekeeper/auth"
	"github.com/jrsteele09/storefront-gatekeeper/gatekeeper"
	"github.com/jrsteele09/storefront-gatekeeper/internal/config"
	"github.com/jrsteele09/storefront-gatekeeper/internal/errors"
	"github.com/jrsteele09/storefront-gatekeeper/internal/metrics"
	"github.com/jrsteele09/storefront-gatekeeper/password"
	"github.com/jrsteele09/storefront-gatekeeper/permissions"
	"github.com/jrsteele09/storefront-gatekeeper/ratelimit"
	"github.com/jrsteele09/storefront-gatekeeper/server"
	"github.com/jrsteele09/storefront-gatekeeper/sessions"
	fakesessionrepo "github.com/jrsteele09/storefront-gatekeeper/sessions/repofakes"
	"github.com/jrsteele09/storefront-gatekeeper/token"
	"github.com/jrsteele09/storefront-gatekeeper/users"
	fakeuserrepo "github.com/jrsteele09/storefront-gatekeeper/users/repofake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "sam@example.com"
	testPassword = "Sneakers42"
)

type testFixture struct {
	server   *server.Server
	sink     *sinkfake.Sink
	users    *fakeuserrepo.FakeUserRepo
	sessions *sessions.Manager
	tokens   *token.Service
	ready    error
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		sink:  sinkfake.New(),
		users: fakeuserrepo.NewFakeUserRepo(),
	}

	hash, err := users.HashPassword(testPassword)
	require.NoError(t, err)
	require.NoError(t, f.users.Upsert(&users.Account{
		ID:           "seller-1",
		Email:        testEmail,
		PasswordHash: hash,
		FirstName:    "Sam",
		Role:         users.RoleSeller,
		Active:       true,
	}))

	settings := config.DefaultSettings()
	settings.JWTSecret = "test-secret"
	cfg, err := config.FromSettings(settings)
	require.NoError(t, err)

	f.tokens, err = token.New(token.NewHMACSigner(cfg.GetTokenSecret()), cfg.GetTokenIssuer(), cfg.GetTokenAudience())
	require.NoError(t, err)
	f.sessions, err = sessions.NewManager(fakesessionrepo.NewFakeSessionRepo(), f.users)
	require.NoError(t, err)
	limiter, err := ratelimit.New(ratelimit.NewMemoryStore())
	require.NoError(t, err)
	auditLogger, err := audit.NewLogger(f.sink)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	gk, err := gatekeeper.New(gatekeeper.Deps{
		Tokens:      f.tokens,
		Sessions:    f.sessions,
		Limiter:     limiter,
		Permissions: permissions.NewEngine(),
		Audit:       auditLogger,
	}, cfg, gatekeeper.WithRouteTable(gatekeeper.DefaultRouteTable().Protect(server.RouteAuthMe)), gatekeeper.WithMetrics(m))
	require.NoError(t, err)

	authService, err := auth.NewService(auth.Deps{
		Credentials: f.users,
		Sessions:    f.sessions,
		Tokens:      f.tokens,
		Limiter:     limiter,
		Audit:       auditLogger,
		Refresher:   gk,
	}, auth.WithMetrics(m))
	require.NoError(t, err)

	storefront := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		w.Header().Set("X-Seen-User", r.Header.Get(gatekeeper.HeaderUserID))
		w.Header().Set("X-Seen-Role", r.Header.Get(gatekeeper.HeaderUserRole))
		w.Header().Set("X-Seen-Path", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("storefront"))
	}))
	t.Cleanup(storefront.Close)
	upstream, err := server.NewUpstreamProxy(storefront.URL)
	require.NoError(t, err)

	f.server, err = server.New(cfg, server.Deps{
		Gatekeeper:     gk,
		Auth:           authService,
		Policy:         password.FromConfig(cfg),
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Upstream:       upstream,
		Ready:          func(context.Context) error { return f.ready },
	})
	require.NoError(t, err)
	return f
}

func (f *testFixture) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		r.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, r)
	return rec
}

func (f *testFixture) login(t *testing.T) []*http.Cookie {
	t.Helper()
	rec := f.do(http.MethodPost, server.RouteAuthLogin, `{"email":"sam@example.com","password":"Sneakers42"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return rec.Result().Cookies()
}

func cookieNamed(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestNewRequiresDependencies(t *testing.T) {
	cfg, err := config.FromSettings(func() config.Settings {
		s := config.DefaultSettings()
		s.JWTSecret = "x"
		return s
	}())
	require.NoError(t, err)
	_, err = server.New(cfg, server.Deps{})
	require.Error(t, err)
}

func TestLogin(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(http.MethodPost, server.RouteAuthLogin, `{"email":"sam@example.com","password":"Sneakers42"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	var body struct {
		Success bool `json:"success"`
		User    struct {
			ID        string `json:"id"`
			Email     string `json:"email"`
			FirstName string `json:"first_name"`
			Role      string `json:"role"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Equal(t, "seller-1", body.User.ID)
	require.Equal(t, "Sam", body.User.FirstName)
	require.Equal(t, "seller", body.User.Role)
	require.NotContains(t, rec.Body.String(), "password")

	cookies := rec.Result().Cookies()
	access := cookieNamed(cookies, gatekeeper.AccessTokenCookie)
	refresh := cookieNamed(cookies, gatekeeper.RefreshTokenCookie)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	require.Equal(t, 900, access.MaxAge)
	require.Equal(t, int((7 * 24 * time.Hour).Seconds()), refresh.MaxAge)
	require.True(t, refresh.HttpOnly)

	require.Len(t, f.sink.ByAction(audit.ActionLoginSuccess), 1)
}

func TestLoginErrors(t *testing.T) {
	f := setupTestFixture(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"email":`, http.StatusBadRequest},
		{"invalid email", `{"email":"nope","password":"Sneakers42"}`, http.StatusBadRequest},
		{"wrong password", `{"email":"sam@example.com","password":"WrongPass1"}`, http.StatusUnauthorized},
		{"unknown email", `{"email":"who@example.com","password":"Sneakers42"}`, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, server.RouteAuthLogin, tt.body)
			require.Equal(t, tt.status, rec.Code)
			require.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestLoginLockout(t *testing.T) {
	f := setupTestFixture(t)

	for i := 0; i < 5; i++ {
		rec := f.do(http.MethodPost, server.RouteAuthLogin, `{"email":"sam@example.com","password":"WrongPass1"}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := f.do(http.MethodPost, server.RouteAuthLogin, `{"email":"sam@example.com","password":"Sneakers42"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	wait, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	require.InDelta(t, 1800, wait, 5)
}

func TestAuthRouteRateLimit(t *testing.T) {
	f := setupTestFixture(t)

	for i := 0; i < 10; i++ {
		f.do(http.MethodPost, server.RouteAuthLogin, `{"email":"nope","password":"x"}`)
	}
	rec := f.do(http.MethodPost, server.RouteAuthLogin, `{"email":"sam@example.com","password":"Sneakers42"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestProxyCarriesIdentity(t *testing.T) {
	f := setupTestFixture(t)
	cookies := f.login(t)

	rec := f.do(http.MethodGet, "/seller/products", "", cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "storefront", rec.Body.String())
	require.Equal(t, "seller-1", rec.Header().Get("X-Seen-User"))
	require.Equal(t, "seller", rec.Header().Get("X-Seen-Role"))

	// The gatekeeper's security headers win over the storefront's
	require.Equal(t, []string{"DENY"}, rec.Header().Values("X-Frame-Options"))

	// Anonymous requests never carry identity
	rec = f.do(http.MethodGet, "/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("X-Seen-User"))
}

func TestProxyDeniesWithoutLogin(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(http.MethodGet, "/orders", "")
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/login?redirect=/orders", rec.Header().Get("Location"))

	cookies := f.login(t)
	rec = f.do(http.MethodGet, "/admin/users", "", cookies...)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Len(t, f.sink.ByAction(audit.ActionUnauthorizedAdminAccess), 1)
}

func TestMe(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(http.MethodGet, server.RouteAuthMe, "")
	require.Equal(t, http.StatusFound, rec.Code)

	rec = f.do(http.MethodGet, server.RouteAuthMe, "", f.login(t)...)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"user":{"id":"seller-1","email":"sam@example.com","role":"seller"}}`, rec.Body.String())
}

func TestLogout(t *testing.T) {
	f := setupTestFixture(t)
	cookies := f.login(t)
	access := cookieNamed(cookies, gatekeeper.AccessTokenCookie)

	rec := f.do(http.MethodPost, server.RouteAuthLogout, "", cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range rec.Result().Cookies() {
		require.Equal(t, -1, c.MaxAge, c.Name)
	}
	require.Len(t, f.sink.ByAction(audit.ActionLogout), 1)

	// The session behind the old access token is gone
	rec = f.do(http.MethodGet, "/orders", "", access)
	require.Equal(t, http.StatusFound, rec.Code)
}

func TestRefresh(t *testing.T) {
	f := setupTestFixture(t)
	cookies := f.login(t)

	rec := f.do(http.MethodPost, server.RouteAuthRefresh, "", cookieNamed(cookies, gatekeeper.RefreshTokenCookie))
	require.Equal(t, http.StatusOK, rec.Code)
	next := rec.Result().Cookies()
	require.NotNil(t, cookieNamed(next, gatekeeper.AccessTokenCookie))
	require.NotNil(t, cookieNamed(next, gatekeeper.RefreshTokenCookie))
	require.Len(t, f.sink.ByAction(audit.ActionTokenRefresh), 1)

	rec = f.do(http.MethodGet, "/orders", "", cookieNamed(next, gatekeeper.AccessTokenCookie))
	require.Equal(t, http.StatusOK, rec.Code)

	// Refreshing with the current access token ends the session behind it
	rec = f.do(http.MethodPost, server.RouteAuthRefresh, "",
		cookieNamed(next, gatekeeper.AccessTokenCookie), cookieNamed(next, gatekeeper.RefreshTokenCookie))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(http.MethodGet, "/orders", "", cookieNamed(next, gatekeeper.AccessTokenCookie))
	require.Equal(t, http.StatusFound, rec.Code)

	rec = f.do(http.MethodPost, server.RouteAuthRefresh, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, server.RouteAuthRefresh, "", &http.Cookie{Name: gatekeeper.RefreshTokenCookie, Value: "garbage"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestValidatePassword(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(http.MethodPost, server.RouteAPIValidatePassword, `{"password":"Abcdef12"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"valid":true,"errors":[]}`, rec.Body.String())

	rec = f.do(http.MethodPost, server.RouteAPIValidatePassword, `{"password":"password"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res password.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.False(t, res.Valid)
	require.Contains(t, res.Errors, "Password is too common, please choose a more secure password")
}

func TestPreflightOnAuthRoute(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(http.MethodOptions, server.RouteAuthLogin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthAndMetrics(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(http.MethodGet, server.RouteHealth, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	f.ready = errors.New("database down")
	rec = f.do(http.MethodGet, server.RouteHealth, "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	f.do(http.MethodGet, "/products", "")
	rec = f.do(http.MethodGet, server.RouteMetrics, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `gatekeeper_decisions_total{state="public"} 1`)
	require.Contains(t, rec.Body.String(), "http_request_duration_seconds")
}

func TestSecurityHeadersOutsideTheGatekeeper(t *testing.T) {
	f := setupTestFixture(t)

	www := httptest.NewRequest(http.MethodGet, "/products", nil)
	www.Host = "www.shop.example.com"
	redirect := httptest.NewRecorder()
	f.server.ServeHTTP(redirect, www)
	require.Equal(t, http.StatusMovedPermanently, redirect.Code)

	for name, rec := range map[string]*httptest.ResponseRecorder{
		"health":   f.do(http.MethodGet, server.RouteHealth, ""),
		"metrics":  f.do(http.MethodGet, server.RouteMetrics, ""),
		"redirect": redirect,
	} {
		for _, header := range gatekeeper.SecurityHeaderNames() {
			require.NotEmpty(t, rec.Header().Get(header), "%s: %s", name, header)
		}
		require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"), name)
	}
}

func TestUpstreamDown(t *testing.T) {
	upstream, err := server.NewUpstreamProxy("http://127.0.0.1:1")
	require.NoError(t, err)

	_, err = server.NewUpstreamProxy("not a url")
	require.Error(t, err)

	rec := httptest.NewRecorder()
	upstream.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products", nil))
	require.Equal(t, http.StatusBadGateway, rec.Code)
}
