package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	apperrors "github.com/moneybook/websession/internal/errors"
	"github.com/moneybook/websession/internal/ports"
)

const persistTimeout = 2 * time.Second

// JarOptions configures a Jar.
type JarOptions struct {
	// BaseURL scopes the persisted cookies.
	BaseURL string
	// Store persists cookies between runs. Optional.
	Store   ports.JarStore
	Profile string
	TTL     time.Duration
	Logger  *slog.Logger
}

// Jar is a public-suffix-aware cookie jar that mirrors the cookies for BaseURL
// into a JarStore whenever the server sets cookies.
type Jar struct {
	base    *url.URL
	store   ports.JarStore
	profile string
	ttl     time.Duration
	logger  *slog.Logger

	mu    sync.RWMutex
	inner *cookiejar.Jar
}

var _ http.CookieJar = (*Jar)(nil)

// NewJar creates a jar and restores persisted cookies when a store is configured.
func NewJar(ctx context.Context, opts JarOptions) (*Jar, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Host == "" {
		return nil, apperrors.Validationf("invalid jar base URL %q", opts.BaseURL)
	}
	inner, err := newCookieJar()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	j := &Jar{
		base:    base,
		store:   opts.Store,
		profile: opts.Profile,
		ttl:     opts.TTL,
		logger:  logger.With("component", "cookie_jar"),
		inner:   inner,
	}

	if j.store != nil {
		if j.profile == "" {
			return nil, apperrors.Validation("profile is required when persisting cookies")
		}
		saved, loadErr := j.store.Load(ctx, j.profile)
		if loadErr != nil {
			return nil, fmt.Errorf("load persisted cookies: %w", loadErr)
		}
		if len(saved) > 0 {
			inner.SetCookies(base, saved)
			j.logger.DebugContext(ctx, "restored cookies", "profile", j.profile, "count", len(saved))
		}
	}
	return j, nil
}

func newCookieJar() (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return jar, nil
}

// SetCookies implements http.CookieJar.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	j.inner.SetCookies(u, cookies)
	j.mu.RUnlock()

	if j.store == nil || len(cookies) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := j.persist(ctx); err != nil {
		j.logger.WarnContext(ctx, "persist cookies failed", "profile", j.profile, "error", err)
	}
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.inner.Cookies(u)
}

// Set stores cookies for the base URL, as when seeding a session.
func (j *Jar) Set(cookies []*http.Cookie) { j.SetCookies(j.base, cookies) }

// Clear drops every cookie and the persisted copy.
func (j *Jar) Clear(ctx context.Context) error {
	inner, err := newCookieJar()
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.inner = inner
	j.mu.Unlock()

	if j.store == nil {
		return nil
	}
	if err := j.store.Delete(ctx, j.profile); err != nil {
		return fmt.Errorf("delete persisted cookies: %w", err)
	}
	return nil
}

func (j *Jar) persist(ctx context.Context) error {
	current := j.Cookies(j.base)
	for _, c := range current {
		c.Path = "/"
	}
	return j.store.Save(ctx, j.profile, current, j.ttl)
}
