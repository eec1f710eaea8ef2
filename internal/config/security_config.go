package config

import (
	"net/netip"
	"time"
)

type SecurityConfig interface {
	GetMaxSessionAge() time.Duration
	GetCollaboratorTimeout() time.Duration
	GetRateLimitWindow() time.Duration
	GetAuthRateLimit() int64
	GetAdminRateLimit() int64
	GetGeneralRateLimit() int64
	GetAPIRateLimit() int64
	GetLoginMaxAttempts() int64
	GetLoginLockout() time.Duration
	GetTrustedProxies() []netip.Prefix
}

var _ SecurityConfig = mainConfig{}

func (c mainConfig) GetMaxSessionAge() time.Duration {
	return c.s.SessionTTL
}

// GetCollaboratorTimeout bounds every call into the credential store, session repo and audit sink
func (c mainConfig) GetCollaboratorTimeout() time.Duration {
	if c.s.CollaboratorTimeout <= 0 {
		return 2 * time.Second
	}
	return c.s.CollaboratorTimeout
}

func (c mainConfig) GetRateLimitWindow() time.Duration {
	return c.s.RateLimitWindow
}

func (c mainConfig) GetAuthRateLimit() int64 {
	return c.s.AuthRateLimit
}

func (c mainConfig) GetAdminRateLimit() int64 {
	return c.s.AdminRateLimit
}

func (c mainConfig) GetGeneralRateLimit() int64 {
	return c.s.GeneralRateLimit
}

func (c mainConfig) GetAPIRateLimit() int64 {
	return c.s.APIRateLimit
}

func (c mainConfig) GetLoginMaxAttempts() int64 {
	return c.s.LoginMaxAttempts
}

func (c mainConfig) GetLoginLockout() time.Duration {
	return c.s.LoginLockout
}

// GetTrustedProxies are the peers whose X-Forwarded-For and X-Real-IP headers are believed. Empty by default.
func (c mainConfig) GetTrustedProxies() []netip.Prefix {
	return c.trustedProxies
}
