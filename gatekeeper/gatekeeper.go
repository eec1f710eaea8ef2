// Package gatekeeper decides, for every incoming request, whether it reaches the storefront.
package gatekeeper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/storefront-gatekeeper/audit"
	"github.com/jrsteele09/storefront-gatekeeper/internal/config"
	"github.com/jrsteele09/storefront-gatekeeper/internal/errors"
	"github.com/jrsteele09/storefront-gatekeeper/internal/metrics"
	"github.com/jrsteele09/storefront-gatekeeper/permissions"
	"github.com/jrsteele09/storefront-gatekeeper/ratelimit"
	"github.com/jrsteele09/storefront-gatekeeper/sessions"
	"github.com/jrsteele09/storefront-gatekeeper/token"
	"github.com/jrsteele09/storefront-gatekeeper/users"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const loginPath = "/login"

var tracer = otel.Tracer("github.com/jrsteele09/storefront-gatekeeper/gatekeeper")

// State of a request as it moves through the gatekeeper. Every state but Anonymous is terminal.
type State string

const (
	StateAnonymous               State = "anonymous"
	StatePublic                  State = "public"
	StatePreflight               State = "preflight"
	StateAuthenticated           State = "authenticated"
	StateAuthenticatedViaRefresh State = "authenticated_via_refresh"
	StateDeniedRedirect          State = "denied_redirect"
	StateDeniedForbidden         State = "denied_forbidden"
	StateDeniedRateLimited       State = "denied_rate_limited"
)

// Decision is the outcome of Evaluate
type Decision struct {
	State      State
	Route      Route
	ClientIP   string
	Identity   *Identity     // Set when authenticated
	Location   string        // Redirect target for StateDeniedRedirect
	RetryAfter time.Duration // For StateDeniedRateLimited
	Request    *http.Request // Request to forward when allowed
}

// Allowed reports whether the request may continue to the storefront
func (d Decision) Allowed() bool {
	switch d.State {
	case StatePublic, StateAuthenticated, StateAuthenticatedViaRefresh:
		return true
	}
	return false
}

// Deps holds the collaborators of the Gatekeeper
type Deps struct {
	Tokens      *token.Service
	Sessions    *sessions.Manager
	Limiter     *ratelimit.Limiter
	Permissions *permissions.Engine
	Audit       *audit.Logger
}

type Gatekeeper struct {
	deps    Deps
	cfg     config.Config
	routes  *RouteTable
	metrics *metrics.Metrics
	proxies ProxyTrust
}

type Option func(*Gatekeeper)

func WithRouteTable(routes *RouteTable) Option {
	return func(g *Gatekeeper) {
		g.routes = routes
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gatekeeper) {
		g.metrics = m
	}
}

func New(deps Deps, cfg config.Config, options ...Option) (*Gatekeeper, error) {
	if deps.Tokens == nil {
		return nil, fmt.Errorf("[gatekeeper.New] token service is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("[gatekeeper.New] session manager is required")
	}
	if deps.Limiter == nil {
		return nil, fmt.Errorf("[gatekeeper.New] rate limiter is required")
	}
	if deps.Permissions == nil {
		return nil, fmt.Errorf("[gatekeeper.New] permission engine is required")
	}
	if deps.Audit == nil {
		return nil, fmt.Errorf("[gatekeeper.New] audit logger is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("[gatekeeper.New] config is required")
	}

	g := &Gatekeeper{
		deps:    deps,
		cfg:     cfg,
		proxies: ProxyTrust(cfg.GetTrustedProxies()),
	}
	for _, opt := range options {
		opt(g)
	}
	if g.routes == nil {
		g.routes = DefaultRouteTable()
	}
	return g, nil
}

// Middleware applies Evaluate's decision and calls next for allowed requests
func (g *Gatekeeper) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := g.Evaluate(w, r)
		switch d.State {
		case StatePublic, StateAuthenticated, StateAuthenticatedViaRefresh:
			next(w, d.Request)
		case StatePreflight:
			w.WriteHeader(http.StatusOK)
		case StateDeniedRateLimited:
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		case StateDeniedForbidden:
			http.Error(w, "Forbidden", http.StatusForbidden)
		case StateDeniedRedirect:
			http.Redirect(w, r, d.Location, http.StatusFound)
		default:
			http.Error(w, "Forbidden", http.StatusForbidden)
		}
	}
}

// Evaluate runs the request through the gatekeeper. It writes response headers and cookies
// but never the status or body.
func (g *Gatekeeper) Evaluate(w http.ResponseWriter, r *http.Request) Decision {
	ctx, span := tracer.Start(r.Context(), "gatekeeper.Evaluate")
	defer span.End()

	d := g.evaluate(w, r.WithContext(ctx))
	g.metrics.Decision(string(d.State))
	span.SetAttributes(
		attribute.String("gatekeeper.state", string(d.State)),
		attribute.String("gatekeeper.route_class", d.Route.Class.String()),
		attribute.String("gatekeeper.rate_limit_scope", string(d.Route.Scope)),
	)
	if !d.Allowed() && d.State != StatePreflight {
		span.SetStatus(codes.Error, string(d.State))
	}
	return d
}

func (g *Gatekeeper) evaluate(w http.ResponseWriter, r *http.Request) Decision {
	setSecurityHeaders(w.Header())

	d := Decision{
		State:    StateAnonymous,
		ClientIP: g.ClientIP(r),
		Route:    g.routes.Classify(r.URL.Path),
	}
	ctx := r.Context()
	ua := r.UserAgent()

	if d.Route.API {
		g.setCORSHeaders(w.Header())
	}

	if res, ok := g.allow(ctx, d.Route.Scope, d.ClientIP, g.scopeLimit(d.Route.Scope)); !ok {
		return g.rateLimited(ctx, d, d.Route.Scope, res, ua)
	}

	if d.Route.API && r.Method == http.MethodOptions {
		d.State = StatePreflight
		return d
	}

	if d.Route.API {
		if res, ok := g.allow(ctx, ratelimit.ScopeAPI, d.ClientIP, g.cfg.GetAPIRateLimit()); !ok {
			return g.rateLimited(ctx, d, ratelimit.ScopeAPI, res, ua)
		}
	}

	if d.Route.Class == ClassPublic {
		d.State = StatePublic
		d.Request = g.forward(r, d.Route, nil)
		return d
	}

	identity, refreshed := g.authenticate(w, r)
	if identity == nil {
		d.State = StateDeniedRedirect
		d.Location = LoginRedirect(d.Route.Path)
		return d
	}
	d.Identity = identity

	if refreshed {
		g.deps.Audit.Record(ctx, &identity.AccountID, audit.ActionAutoTokenRefresh,
			map[string]any{"path": d.Route.Path}, d.ClientIP, ua)
	}

	if action, ok := g.authorize(d.Route, identity.Role); !ok {
		g.deps.Audit.Record(ctx, &identity.AccountID, action,
			map[string]any{"path": d.Route.Path, "userRole": string(identity.Role)}, d.ClientIP, ua)
		d.State = StateDeniedForbidden
		return d
	}

	d.State = StateAuthenticated
	if refreshed {
		d.State = StateAuthenticatedViaRefresh
	}
	d.Request = g.forward(r, d.Route, identity)
	return d
}

// allow fails open when the store is unavailable
func (g *Gatekeeper) allow(ctx context.Context, scope ratelimit.Scope, client string, limit int64) (ratelimit.Result, bool) {
	res, err := g.deps.Limiter.Allow(ctx, scope, client, limit, g.cfg.GetRateLimitWindow())
	if err != nil {
		g.metrics.RateLimitStoreError()
		log.Err(err).Str("scope", string(scope)).Msg("rate limit store unavailable, allowing request")
		return res, true
	}
	return res, res.Allowed
}

func (g *Gatekeeper) rateLimited(ctx context.Context, d Decision, scope ratelimit.Scope, res ratelimit.Result, ua string) Decision {
	g.metrics.RateLimited(string(scope))
	g.deps.Audit.Record(ctx, nil, audit.ActionRateLimitExceeded, map[string]any{
		"path":  d.Route.Path,
		"ip":    d.ClientIP,
		"scope": string(scope),
		"limit": res.Limit,
	}, d.ClientIP, ua)

	d.State = StateDeniedRateLimited
	d.RetryAfter = res.RetryAfter(g.deps.Limiter.Now())
	return d
}

func (g *Gatekeeper) scopeLimit(scope ratelimit.Scope) int64 {
	switch scope {
	case ratelimit.ScopeAuth:
		return g.cfg.GetAuthRateLimit()
	case ratelimit.ScopeAdmin:
		return g.cfg.GetAdminRateLimit()
	case ratelimit.ScopeAPI:
		return g.cfg.GetAPIRateLimit()
	}
	return g.cfg.GetGeneralRateLimit()
}

// authenticate resolves the caller from the access token, falling back to the refresh token.
// Any failure, including a panic, leaves the caller unauthenticated.
func (g *Gatekeeper) authenticate(w http.ResponseWriter, r *http.Request) (identity *Identity, refreshed bool) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Str("path", r.URL.Path).Msg("authentication panicked")
			identity, refreshed = nil, false
		}
	}()

	accessToken := cookieValue(r, AccessTokenCookie)
	refreshToken := cookieValue(r, RefreshTokenCookie)
	if accessToken == "" && refreshToken == "" {
		return nil, false
	}

	if accessToken != "" {
		id, err := g.fromAccessToken(r.Context(), accessToken)
		if err != nil {
			log.Err(err).Msg("session lookup failed")
			return nil, false
		}
		if id != nil {
			return id, false
		}
	}

	if refreshToken == "" {
		return nil, false
	}
	account, pair, sessionToken, err := g.refresh(r.Context(), refreshToken, accessToken)
	if err != nil {
		if !errors.Is(err, errors.ErrInvalidToken) {
			log.Err(err).Msg("token refresh failed")
		}
		return nil, false
	}
	g.SetAccessCookie(w, pair.AccessToken)
	return identityOf(account, sessionToken), true
}

// fromAccessToken gives (nil, nil) when the token or its session is not valid
func (g *Gatekeeper) fromAccessToken(ctx context.Context, accessToken string) (*Identity, error) {
	claims, err := g.deps.Tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, nil
	}
	account, err := g.deps.Sessions.Validate(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if account == nil || account.ID != claims.Subject {
		return nil, nil
	}
	return identityOf(account, claims.SessionID), nil
}

// Refresh exchanges a refresh token for a new session and token pair.
// The session bound to previousAccessToken, expired or not, is revoked once the new one exists.
func (g *Gatekeeper) Refresh(ctx context.Context, refreshToken, previousAccessToken string) (*users.Account, token.Pair, error) {
	account, pair, _, err := g.refresh(ctx, refreshToken, previousAccessToken)
	return account, pair, err
}

func (g *Gatekeeper) refresh(ctx context.Context, refreshToken, previousAccessToken string) (*users.Account, token.Pair, string, error) {
	claims, err := g.deps.Tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, token.Pair{}, "", err
	}

	sessionToken, err := g.deps.Sessions.Create(ctx, claims.Subject)
	if err != nil {
		return nil, token.Pair{}, "", errors.Wrapf(err, "[Gatekeeper refresh] create session")
	}
	account, err := g.deps.Sessions.Validate(ctx, sessionToken)
	if err != nil || account == nil {
		if revokeErr := g.deps.Sessions.Revoke(ctx, sessionToken); revokeErr != nil {
			log.Err(revokeErr).Msg("failed to revoke unusable session")
		}
		if err != nil {
			return nil, token.Pair{}, "", errors.Wrapf(err, "[Gatekeeper refresh] resolve account")
		}
		return nil, token.Pair{}, "", errors.ErrInvalidToken
	}

	pair, err := g.deps.Tokens.IssuePair(token.AccessClaims{
		Subject:   account.ID,
		Email:     account.Email,
		Role:      account.Role,
		SessionID: sessionToken,
	})
	if err != nil {
		return nil, token.Pair{}, "", errors.Wrapf(err, "[Gatekeeper refresh] issue tokens")
	}
	g.revokePrevious(ctx, account.ID, previousAccessToken)
	return account, pair, sessionToken, nil
}

// revokePrevious ends the session a replaced access token was bound to.
// Tokens that do not verify or belong to another account are ignored.
func (g *Gatekeeper) revokePrevious(ctx context.Context, accountID, previousAccessToken string) {
	if previousAccessToken == "" {
		return
	}
	claims, err := g.deps.Tokens.VerifyAccessAllowExpired(previousAccessToken)
	if err != nil || claims.Subject != accountID || claims.SessionID == "" {
		return
	}
	if err := g.deps.Sessions.Revoke(ctx, claims.SessionID); err != nil {
		log.Err(err).Msg("failed to revoke replaced session")
	}
}

// authorize returns the audit action to record when the role is refused
func (g *Gatekeeper) authorize(route Route, role users.Role) (audit.Action, bool) {
	switch route.Class {
	case ClassAdmin:
		return audit.ActionUnauthorizedAdminAccess, g.deps.Permissions.Has(role, permissions.SystemAdmin)
	case ClassSeller:
		return audit.ActionUnauthorizedSellerAccess, g.deps.Permissions.HasAny(role, permissions.SystemAdmin, permissions.ProductsCreate)
	}
	return "", true
}

// forward builds the request passed on: client identity headers are replaced by the verified identity
func (g *Gatekeeper) forward(r *http.Request, route Route, identity *Identity) *http.Request {
	ctx := r.Context()
	if identity != nil {
		ctx = WithIdentity(ctx, identity)
	}
	fr := r.Clone(ctx)
	stripIdentityHeaders(fr.Header)
	if identity != nil {
		setIdentityHeaders(fr.Header, identity)
	}
	if fr.URL.Path != route.Path {
		fr.URL.Path = route.Path
		fr.URL.RawPath = ""
	}
	return fr
}

// LoginRedirect is the login page URL that returns to path afterwards
func LoginRedirect(path string) string {
	return loginPath + "?redirect=" + strings.ReplaceAll(url.QueryEscape(path), "%2F", "/")
}

func identityOf(account *users.Account, sessionID string) *Identity {
	return &Identity{
		AccountID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
		SessionID: sessionID,
	}
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	return max(secs, 1)
}
