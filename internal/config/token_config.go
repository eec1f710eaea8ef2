package config

import "time"

type TokenConfig interface {
	GetTokenSecret() string
	GetTokenIssuer() string
	GetTokenAudience() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
}

var _ TokenConfig = mainConfig{}

func (c mainConfig) GetTokenSecret() string {
	return c.s.JWTSecret
}

func (c mainConfig) GetTokenIssuer() string {
	return c.s.Issuer
}

func (c mainConfig) GetTokenAudience() string {
	return c.s.Audience
}

func (c mainConfig) GetAccessTokenExpiry() time.Duration {
	return c.s.AccessTokenTTL // 15 minutes by default
}

func (c mainConfig) GetRefreshTokenExpiry() time.Duration {
	return c.s.RefreshTokenTTL // 7 days by default
}
