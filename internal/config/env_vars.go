package config

import (
	"fmt"
	"strings"
)

var _ EnvConfig = mainConfig{}

func (c mainConfig) GetPort() string {
	port := c.s.Port
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (c mainConfig) GetAppName() string {
	return c.s.AppName
}

func (c mainConfig) GetEnv() string {
	if c.s.Env == "" {
		return devEnv
	}
	return strings.ToUpper(c.s.Env)
}

// IsProduction drives the Secure attribute on auth cookies
func (c mainConfig) IsProduction() bool {
	switch c.GetEnv() {
	case "PROD", "PRODUCTION":
		return true
	}
	return false
}

// GetUpstreamURL is the storefront the gatekeeper proxies allowed requests to.
// An empty value disables proxying.
func (c mainConfig) GetUpstreamURL() string {
	return c.s.UpstreamURL
}

// GetDatabaseURL enables the Postgres credential store and audit sink when set
func (c mainConfig) GetDatabaseURL() string {
	return c.s.DatabaseURL
}

// GetRedisAddr enables the shared rate-limit store and session repo when set
func (c mainConfig) GetRedisAddr() string {
	return c.s.RedisAddr
}

func (c mainConfig) GetLogLevel() string {
	return c.s.LogLevel
}

// GetOTLPEndpoint enables trace export when set
func (c mainConfig) GetOTLPEndpoint() string {
	return c.s.OTLPEndpoint
}

func (c mainConfig) GetOTLPInsecure() bool {
	return c.s.OTLPInsecure
}
