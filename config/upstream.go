package config

import (
	"strings"
	"time"
)

const defaultUpstreamTimeout = 10 * time.Second

// UpstreamConfig locates the identity provider.
type UpstreamConfig struct {
	// BaseURL is the provider API root; endpoint paths are appended to it.
	BaseURL string        `env:"BASE_URL" envDefault:"http://localhost:8080/api/v1"`
	Timeout time.Duration `env:"TIMEOUT"  envDefault:"10s"`

	ValidatePath string `env:"VALIDATE_PATH" envDefault:"/auth/validate"`
	RefreshPath  string `env:"REFRESH_PATH"  envDefault:"/auth/refresh"`
	WhoAmIPath   string `env:"WHOAMI_PATH"   envDefault:"/auth/me"`
	LogoutPath   string `env:"LOGOUT_PATH"   envDefault:"/logout"`
	UsersPath    string `env:"USERS_PATH"    envDefault:"/users"`

	// JMESPath expressions into the response envelope.
	AuthenticatedPath string `env:"AUTHENTICATED_PATH" envDefault:"data.authenticated"`
	IdentityPath      string `env:"IDENTITY_PATH"      envDefault:"data"`
}

// Sanitize trims values and restores defaults for invalid durations.
func (c *UpstreamConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.Timeout <= 0 {
		c.Timeout = defaultUpstreamTimeout
	}
	c.ValidatePath = normalizePath(c.ValidatePath)
	c.RefreshPath = normalizePath(c.RefreshPath)
	c.WhoAmIPath = normalizePath(c.WhoAmIPath)
	c.LogoutPath = normalizePath(c.LogoutPath)
	c.UsersPath = normalizePath(c.UsersPath)
	c.AuthenticatedPath = strings.TrimSpace(c.AuthenticatedPath)
	c.IdentityPath = strings.TrimSpace(c.IdentityPath)
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}
