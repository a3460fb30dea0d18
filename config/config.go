package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - upstream.go: Identity provider endpoints and envelope paths
//   - cookies.go: Identity cookie names
//   - http.go: HTTP server configuration
//   - client.go: Client session store and interceptor
//   - redis.go: Cookie jar persistence
//   - observability.go: Logging and metrics
type AppConfig struct {
	// IsDev controls development mode behavior (text logs, template reloads).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	Upstream UpstreamConfig `envPrefix:"UPSTREAM_"`
	Cookies  CookieConfig   `envPrefix:"COOKIE_"`
	HTTP     HTTPConfig
	Client   ClientConfig `envPrefix:"CLIENT_"`
	Redis    RedisConfig  `envPrefix:"REDIS_"`

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Upstream.Sanitize()
	c.Cookies.Sanitize()
	c.HTTP.Sanitize()
	c.Client.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}
