package config

import (
	"strings"
	"time"
)

// ClientConfig controls the client-side session store and refresh interceptor.
type ClientConfig struct {
	// RetryBudget bounds identity refetches before navigating to the entry route.
	RetryBudget int `env:"RETRY_BUDGET" envDefault:"3"`

	// CoalesceRefresh makes concurrent 401s share one in-flight refresh.
	CoalesceRefresh bool `env:"COALESCE_REFRESH" envDefault:"true"`

	// WebBaseURL is the web server origin serving GET /session. When set, the
	// client store hydrates from it instead of calling whoami.
	WebBaseURL string `env:"WEB_BASE_URL"`

	// Profile keys the persisted cookie jar.
	Profile string `env:"PROFILE" envDefault:"default"`

	// PersistJar stores the cookie jar in Redis between runs.
	PersistJar bool          `env:"PERSIST_JAR" envDefault:"false"`
	JarTTL     time.Duration `env:"JAR_TTL"     envDefault:"168h"`
}

// Sanitize applies guardrails to client configuration values.
func (c *ClientConfig) Sanitize() {
	if c.RetryBudget < 1 {
		c.RetryBudget = 1
	}
	c.WebBaseURL = strings.TrimSuffix(strings.TrimSpace(c.WebBaseURL), "/")
	if c.Profile = strings.TrimSpace(c.Profile); c.Profile == "" {
		c.Profile = "default"
	}
	if c.JarTTL <= 0 {
		c.JarTTL = 168 * time.Hour
	}
}
