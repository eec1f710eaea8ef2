package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/storefront-gatekeeper/audit"
	auditpostgres "github.com/jrsteele09/storefront-gatekeeper/audit/postgres"
	"github.com/jrsteele09/storefront-gatekeeper/auth"
	"github.com/jrsteele09/storefront-gatekeeper/gatekeeper"
	"github.com/jrsteele09/storefront-gatekeeper/internal/config"
	"github.com/jrsteele09/storefront-gatekeeper/internal/database"
	"github.com/jrsteele09/storefront-gatekeeper/internal/metrics"
	"github.com/jrsteele09/storefront-gatekeeper/internal/telemetry"
	"github.com/jrsteele09/storefront-gatekeeper/password"
	"github.com/jrsteele09/storefront-gatekeeper/permissions"
	"github.com/jrsteele09/storefront-gatekeeper/ratelimit"
	"github.com/jrsteele09/storefront-gatekeeper/server"
	"github.com/jrsteele09/storefront-gatekeeper/sessions"
	"github.com/jrsteele09/storefront-gatekeeper/sessions/redisrepo"
	fakesessionrepo "github.com/jrsteele09/storefront-gatekeeper/sessions/repofakes"
	"github.com/jrsteele09/storefront-gatekeeper/token"
	"github.com/jrsteele09/storefront-gatekeeper/users"
	userspostgres "github.com/jrsteele09/storefront-gatekeeper/users/postgres"
	fakeuserrepo "github.com/jrsteele09/storefront-gatekeeper/users/repofake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	janitorInterval = time.Minute
	shutdownTimeout = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(c)
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry := telemetry.Setup(ctx, c)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			log.Err(err).Msg("telemetry shutdown")
		}
	}()

	app, err := build(ctx, c)
	if err != nil {
		return err
	}
	defer app.close()

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           otelhttp.NewHandler(app.handler, c.GetAppName()),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(httpServer) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

// app is the wired gatekeeper with whatever backing services the configuration selected
type app struct {
	handler http.Handler
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, c config.Config) (*app, error) {
	a := &app{}
	var ready []func(context.Context) error

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Credential store and audit sink
	var credentials users.CredentialStore
	var sink audit.Sink
	if dsn := c.GetDatabaseURL(); dsn != "" {
		db, err := database.New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		ready = append(ready, db.Ping)

		if credentials, err = userspostgres.NewStore(db); err != nil {
			return nil, err
		}
		if sink, err = auditpostgres.NewSink(db); err != nil {
			return nil, err
		}
		log.Info().Msg("using postgres credential store and audit sink")
	} else {
		if c.IsProduction() {
			return nil, fmt.Errorf("[build] DATABASE_URL is required in production")
		}
		repo := fakeuserrepo.NewFakeUserRepo()
		if err := seedDevAccounts(repo); err != nil {
			return nil, err
		}
		credentials = repo
		sink = audit.LogSink{Logger: log.Logger}
		log.Warn().Msg("DATABASE_URL not set, using in-memory accounts and logging audit events")
	}

	// Rate limit store and session repo
	var store ratelimit.Store
	var sessionRepo sessions.Repo
	if addr := c.GetRedisAddr(); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		a.closers = append(a.closers, func() { _ = client.Close() })
		ready = append(ready, func(ctx context.Context) error { return client.Ping(ctx).Err() })

		redisStore, err := ratelimit.NewRedisStore(client)
		if err != nil {
			return nil, err
		}
		store = redisStore
		if sessionRepo, err = redisrepo.New(client); err != nil {
			return nil, err
		}
		log.Info().Str("addr", addr).Msg("using redis rate limit store and session repo")
	} else {
		memoryStore := ratelimit.NewMemoryStore()
		memoryStore.StartJanitor(ctx, janitorInterval)
		store = memoryStore
		sessionRepo = fakesessionrepo.NewFakeSessionRepo()
		log.Warn().Msg("REDIS_ADDR not set, rate limits and sessions are local to this instance")
	}

	tokens, err := token.New(token.NewHMACSigner(c.GetTokenSecret()), c.GetTokenIssuer(), c.GetTokenAudience(),
		token.WithTokenExpiry(c.GetAccessTokenExpiry(), c.GetRefreshTokenExpiry()))
	if err != nil {
		return nil, err
	}
	sessionManager, err := sessions.NewManager(sessionRepo, credentials,
		sessions.WithMaxSessionAge(c.GetMaxSessionAge()),
		sessions.WithTimeout(c.GetCollaboratorTimeout()))
	if err != nil {
		return nil, err
	}
	sessionManager.StartJanitor(ctx, janitorInterval)

	limiter, err := ratelimit.New(store)
	if err != nil {
		return nil, err
	}
	auditLogger, err := audit.NewLogger(sink, audit.WithMetrics(m), audit.WithTimeout(c.GetCollaboratorTimeout()))
	if err != nil {
		return nil, err
	}

	gk, err := gatekeeper.New(gatekeeper.Deps{
		Tokens:      tokens,
		Sessions:    sessionManager,
		Limiter:     limiter,
		Permissions: permissions.NewEngine(),
		Audit:       auditLogger,
	}, c,
		gatekeeper.WithRouteTable(gatekeeper.DefaultRouteTable().Protect(server.RouteAuthMe)),
		gatekeeper.WithMetrics(m))
	if err != nil {
		return nil, err
	}

	authService, err := auth.NewService(auth.Deps{
		Credentials: credentials,
		Sessions:    sessionManager,
		Tokens:      tokens,
		Limiter:     limiter,
		Audit:       auditLogger,
		Refresher:   gk,
	},
		auth.WithLockout(c.GetLoginMaxAttempts(), c.GetLoginLockout()),
		auth.WithTimeout(c.GetCollaboratorTimeout()),
		auth.WithMetrics(m))
	if err != nil {
		return nil, err
	}

	var upstream http.Handler
	if target := c.GetUpstreamURL(); target != "" {
		if upstream, err = server.NewUpstreamProxy(target); err != nil {
			return nil, err
		}
	} else {
		log.Warn().Msg("UPSTREAM_URL not set, allowed storefront requests get 404")
	}

	srv, err := server.New(c, server.Deps{
		Gatekeeper:     gk,
		Auth:           authService,
		Policy:         password.FromConfig(c),
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Upstream:       upstream,
		Ready: func(ctx context.Context) error {
			for _, check := range ready {
				if err := check(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	a.handler = srv
	return a, nil
}

// seedDevAccounts creates one account per role with a generated password, for local runs only
func seedDevAccounts(repo *fakeuserrepo.FakeUserRepo) error {
	passwordBytes := make([]byte, 16)
	if _, err := rand.Read(passwordBytes); err != nil {
		return fmt.Errorf("[seedDevAccounts] failed to generate password: %w", err)
	}
	pw := base64.URLEncoding.EncodeToString(passwordBytes)
	hash, err := users.HashPassword(pw)
	if err != nil {
		return fmt.Errorf("[seedDevAccounts] failed to hash password: %w", err)
	}
	for _, role := range []users.Role{users.RoleCustomer, users.RoleSeller, users.RoleAdmin} {
		account := &users.Account{
			Email:         string(role) + "@storefront.local",
			PasswordHash:  hash,
			Role:          role,
			Active:        true,
			EmailVerified: true,
		}
		if err := repo.Upsert(account); err != nil {
			return err
		}
		log.Info().Str("email", account.Email).Str("role", string(role)).Msg("dev account")
	}
	log.Info().Str("password", pw).Msg("dev account password")
	return nil
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
