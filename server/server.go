package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/storefront-gatekeeper/auth"
	"github.com/jrsteele09/storefront-gatekeeper/gatekeeper"
	"github.com/jrsteele09/storefront-gatekeeper/internal/config"
	"github.com/jrsteele09/storefront-gatekeeper/internal/metrics"
	"github.com/jrsteele09/storefront-gatekeeper/password"
	"github.com/rs/zerolog/log"
)

const devEnv = "DEV"

// Deps holds everything the HTTP surface is built from
type Deps struct {
	Gatekeeper     *gatekeeper.Gatekeeper
	Auth           *auth.Service
	Policy         password.Policy
	Metrics        *metrics.Metrics // Optional
	MetricsHandler http.Handler     // Serves /metrics when set
	Upstream       http.Handler     // The storefront, normally a reverse proxy
	Ready          func(ctx context.Context) error
}

type Server struct {
	env     string // Environment (e.g., "DEV", "PROD")
	mux     *http.ServeMux
	handler http.Handler
	routes  []string
	config  config.Config
	deps    Deps
}

func New(config config.Config, deps Deps) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("[Server New] config is required")
	}
	if deps.Gatekeeper == nil {
		return nil, fmt.Errorf("[Server New] gatekeeper is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("[Server New] auth service is required")
	}
	if deps.Upstream == nil {
		deps.Upstream = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSONError(w, "Not found", http.StatusNotFound)
		})
	}

	s := &Server{
		env:    config.GetEnv(),
		mux:    http.NewServeMux(),
		config: config,
		deps:   deps,
	}
	s.initRoutes()
	s.logRoutes()

	s.handler = s.mux
	if deps.Metrics != nil {
		s.handler = deps.Metrics.Instrument(s.mux)
	}
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != devEnv {
		return
	}
	for _, route := range s.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "*", route
		}
		log.Debug().Msgf("[%s] %s", colourMethod(method), path)
	}
}
