package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/moneybook/websession/internal/domain/auth"
	apperrors "github.com/moneybook/websession/internal/errors"
	"github.com/moneybook/websession/internal/observability/requestid"
)

// DefaultSessionPath is where the web server serves the hydration document.
const DefaultSessionPath = "/session"

// SessionSnapshot is the hydration document rendered by the web server.
type SessionSnapshot struct {
	Authenticated bool                 `json:"authenticated"`
	Identity      *domainauth.Identity `json:"identity"`
	Reason        string               `json:"reason,omitempty"`
}

// SessionLoaderOptions configures a SessionLoader.
type SessionLoaderOptions struct {
	// WebBaseURL is the web server origin.
	WebBaseURL string
	Jar        *Jar
	Timeout    time.Duration
	// Base is the underlying transport; defaults to http.DefaultTransport.
	Base   http.RoundTripper
	Logger *slog.Logger
}

// SessionLoader reads the server-validated session so the store can hydrate
// without calling whoami itself. Cookies refreshed by the server are stored in the jar.
type SessionLoader struct {
	url    string
	jar    *Jar
	http   *http.Client
	logger *slog.Logger
}

// NewSessionLoader constructs a SessionLoader.
func NewSessionLoader(opts SessionLoaderOptions) (*SessionLoader, error) {
	if opts.Jar == nil {
		return nil, errors.New("Jar is required")
	}
	base, err := url.Parse(strings.TrimSuffix(opts.WebBaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, apperrors.Validationf("invalid web base URL %q", opts.WebBaseURL)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionLoader{
		url: base.String() + DefaultSessionPath,
		jar: opts.Jar,
		// Cookies are attached by hand: the jar is scoped to the provider origin.
		http: &http.Client{
			Transport: opts.Base,
			Timeout:   timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger.With("component", "session_loader"),
	}, nil
}

// Load fetches the hydration document. An edge redirect means the session
// carries no access cookie and is reported as not authenticated.
func (l *SessionLoader) Load(ctx context.Context) (SessionSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, http.NoBody)
	if err != nil {
		return SessionSnapshot{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "build session request")
	}
	req.Header.Set("Accept", "application/json")
	requestid.Apply(req)
	for _, c := range l.jar.Cookies(l.jar.base) {
		req.AddCookie(c)
	}

	resp, err := l.http.Do(req)
	if err != nil {
		return SessionSnapshot{}, apperrors.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		l.logger.DebugContext(ctx, "session request redirected", "location", resp.Header.Get("Location"))
		return SessionSnapshot{Reason: apperrors.ReasonMissingCredentials}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return SessionSnapshot{}, apperrors.Upstream(resp.StatusCode, DefaultSessionPath)
	}

	l.storeIssued(resp.Cookies())

	var snap SessionSnapshot
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&snap); err != nil {
		return SessionSnapshot{}, apperrors.Wrapf(err, apperrors.ErrCodeUpstream, "decode %s response", DefaultSessionPath)
	}
	if snap.Identity != nil && !snap.Identity.Valid() {
		snap.Identity = nil
	}
	return snap, nil
}

// storeIssued keeps cookies the server forwarded after refreshing. Their domain
// names the web origin, so it is dropped before storing them for the provider origin.
func (l *SessionLoader) storeIssued(cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		cp := *c
		cp.Domain = ""
		out = append(out, &cp)
	}
	l.jar.Set(out)
}
