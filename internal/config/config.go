package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

const devEnv = "DEV"

type Config interface {
	EnvConfig
	CorsConfig
	TokenConfig
	SecurityConfig
	PasswordConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	IsProduction() bool
	GetUpstreamURL() string
	GetDatabaseURL() string
	GetRedisAddr() string
	GetLogLevel() string
	GetOTLPEndpoint() string
	GetOTLPInsecure() bool
}

type CorsConfig interface {
	GetAppOrigin() string
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

// Settings is the flat, environment-driven representation of every configuration value.
type Settings struct {
	Port        string `env:"PORT" envDefault:"8080"`
	AppName     string `env:"APP_NAME" envDefault:"Storefront Gatekeeper"`
	Env         string `env:"ENV" envDefault:"DEV"`
	UpstreamURL string `env:"UPSTREAM_URL"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisAddr   string `env:"REDIS_ADDR"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `env:"OTEL_EXPORTER_OTLP_INSECURE"`

	AppOrigin string `env:"APP_ORIGIN" envDefault:"http://localhost:3000"`

	JWTSecret       string        `env:"JWT_SECRET"`
	Issuer          string        `env:"JWT_ISSUER" envDefault:"sneaker-store"`
	Audience        string        `env:"JWT_AUDIENCE" envDefault:"sneaker-store-users"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`

	SessionTTL          time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	CollaboratorTimeout time.Duration `env:"COLLABORATOR_TIMEOUT" envDefault:"2s"`
	RateLimitWindow     time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"15m"`
	AuthRateLimit       int64         `env:"RATE_LIMIT_AUTH" envDefault:"10"`
	AdminRateLimit      int64         `env:"RATE_LIMIT_ADMIN" envDefault:"20"`
	GeneralRateLimit    int64         `env:"RATE_LIMIT_GENERAL" envDefault:"100"`
	APIRateLimit        int64         `env:"RATE_LIMIT_API" envDefault:"50"`
	LoginMaxAttempts    int64         `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginLockout        time.Duration `env:"LOGIN_LOCKOUT" envDefault:"30m"`
	TrustedProxyCIDRs   []string      `env:"TRUSTED_PROXY_CIDRS" envSeparator:","`

	PasswordMinLength      int  `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`
	PasswordMaxLength      int  `env:"PASSWORD_MAX_LENGTH" envDefault:"128"`
	PasswordRequireUpper   bool `env:"PASSWORD_REQUIRE_UPPERCASE" envDefault:"true"`
	PasswordRequireLower   bool `env:"PASSWORD_REQUIRE_LOWERCASE" envDefault:"true"`
	PasswordRequireNumbers bool `env:"PASSWORD_REQUIRE_NUMBERS" envDefault:"true"`
	PasswordRequireSpecial bool `env:"PASSWORD_REQUIRE_SPECIAL" envDefault:"false"`
	PasswordMaxRepeating   int  `env:"PASSWORD_MAX_REPEATING" envDefault:"3"`
	PasswordPreventCommon  bool `env:"PASSWORD_PREVENT_COMMON" envDefault:"true"`
}

type mainConfig struct {
	s              Settings
	trustedProxies []netip.Prefix
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("[config Load] parse env: %w", err)
	}
	return FromSettings(s)
}

// DefaultSettings are the values Load uses when the environment sets nothing
func DefaultSettings() Settings {
	var s Settings
	_ = env.ParseWithOptions(&s, env.Options{Environment: map[string]string{}})
	return s
}

// FromSettings validates an explicit Settings value. Tests use it to avoid touching the environment.
func FromSettings(s Settings) (Config, error) {
	if s.JWTSecret == "" {
		if !strings.EqualFold(s.Env, devEnv) {
			return nil, fmt.Errorf("[config Load] JWT_SECRET is required when ENV=%s", s.Env)
		}
		secret, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("[config Load] generate dev secret: %w", err)
		}
		log.Warn().Msg("JWT_SECRET not set, using a random per-process secret")
		s.JWTSecret = secret
	}
	if s.AccessTokenTTL <= 0 || s.RefreshTokenTTL <= 0 || s.SessionTTL <= 0 {
		return nil, fmt.Errorf("[config Load] token and session TTLs must be positive")
	}
	if s.RateLimitWindow <= 0 || s.LoginLockout <= 0 {
		return nil, fmt.Errorf("[config Load] rate limit windows must be positive")
	}
	for name, v := range map[string]int64{
		"RATE_LIMIT_AUTH":    s.AuthRateLimit,
		"RATE_LIMIT_ADMIN":   s.AdminRateLimit,
		"RATE_LIMIT_GENERAL": s.GeneralRateLimit,
		"RATE_LIMIT_API":     s.APIRateLimit,
		"LOGIN_MAX_ATTEMPTS": s.LoginMaxAttempts,
	} {
		if v <= 0 {
			return nil, fmt.Errorf("[config Load] %s must be positive", name)
		}
	}
	if s.PasswordMinLength > s.PasswordMaxLength {
		return nil, fmt.Errorf("[config Load] PASSWORD_MIN_LENGTH exceeds PASSWORD_MAX_LENGTH")
	}
	proxies, err := parseProxies(s.TrustedProxyCIDRs)
	if err != nil {
		return nil, err
	}
	return mainConfig{s: s, trustedProxies: proxies}, nil
}

// parseProxies accepts CIDRs and bare addresses
func parseProxies(values []string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if !strings.Contains(v, "/") {
			addr, err := netip.ParseAddr(v)
			if err != nil {
				return nil, fmt.Errorf("[config Load] TRUSTED_PROXY_CIDRS %q: %w", v, err)
			}
			addr = addr.Unmap()
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(v)
		if err != nil {
			return nil, fmt.Errorf("[config Load] TRUSTED_PROXY_CIDRS %q: %w", v, err)
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return prefixes, nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
