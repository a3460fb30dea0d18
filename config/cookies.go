package config

import (
	"strings"

	domainauth "github.com/moneybook/websession/internal/domain/auth"
)

// CookieConfig names the identity cookies issued by the provider.
type CookieConfig struct {
	AccessName        string `env:"ACCESS_NAME"         envDefault:"auth-token"`
	RefreshName       string `env:"REFRESH_NAME"        envDefault:"refresh-token"`
	LegacySessionName string `env:"LEGACY_SESSION_NAME" envDefault:"JSESSIONID"`
}

// Sanitize trims names; empty names fall back to the provider defaults via Names.
func (c *CookieConfig) Sanitize() {
	c.AccessName = strings.TrimSpace(c.AccessName)
	c.RefreshName = strings.TrimSpace(c.RefreshName)
	c.LegacySessionName = strings.TrimSpace(c.LegacySessionName)
}

// Names converts the config into domain cookie names.
func (c CookieConfig) Names() domainauth.CookieNames {
	return domainauth.CookieNames{
		Access:        c.AccessName,
		Refresh:       c.RefreshName,
		LegacySession: c.LegacySessionName,
	}.WithDefaults()
}
