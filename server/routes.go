package server

import (
	"net/http"

	"github.com/jrsteele09/storefront-gatekeeper/gatekeeper"
)

func (s *Server) initRoutes() {
	// Operations, outside the gatekeeper
	s.RegisterRouteFunc("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), gatekeeper.SecurityHeadersMiddleware, s.RecoverMiddleware))
	if s.deps.MetricsHandler != nil {
		s.RegisterRouteHandler("GET "+RouteMetrics,
			ChainMiddleware(s.deps.MetricsHandler.ServeHTTP, gatekeeper.SecurityHeadersMiddleware, s.RecoverMiddleware))
	}

	// Auth API
	s.RegisterRouteFunc("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.GatedMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.GatedMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), s.GatedMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAuthMe, ChainMiddleware(s.MeHandler(), s.GatedMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAPIValidatePassword, ChainMiddleware(s.ValidatePasswordHandler(), s.GatedMiddleware()...))

	// Everything else belongs to the storefront
	s.RegisterRouteHandler("/", ChainMiddleware(s.deps.Upstream.ServeHTTP, s.GatedMiddleware()...))
}

var _ http.Handler = (*Server)(nil)
