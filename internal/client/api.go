package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/moneybook/websession/internal/adapters/identity"
	domainauth "github.com/moneybook/websession/internal/domain/auth"
	apperrors "github.com/moneybook/websession/internal/errors"
	"github.com/moneybook/websession/internal/observability/metrics"
	"github.com/moneybook/websession/internal/observability/requestid"
	"github.com/moneybook/websession/internal/ports"
)

const maxResponseBytes = 4 << 20

// DefaultUsersPath prefixes the profile resource, as in PUT /users/{userId}.
const DefaultUsersPath = "/users"

// APIClientOptions configures an APIClient.
type APIClientOptions struct {
	BaseURL string
	Timeout time.Duration
	Jar     *Jar
	// Base is the underlying transport; defaults to http.DefaultTransport.
	Base http.RoundTripper

	WhoAmIPath   string
	RefreshPath  string
	LogoutPath   string
	UsersPath    string
	IdentityPath string

	CoalesceRefresh bool
	OnRefreshFailed func(ctx context.Context, err error)

	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// APIClient issues credentialed requests against the provider API through a RefreshTransport.
type APIClient struct {
	base      *url.URL
	http      *http.Client
	jar       *Jar
	transport *RefreshTransport
	envelope  identity.Envelope
	paths     apiPaths
	logger    *slog.Logger
}

type apiPaths struct {
	whoami, refresh, logout, users string
}

var _ ports.IdentityFetcher = (*APIClient)(nil)

// NewAPIClient constructs an APIClient.
func NewAPIClient(opts APIClientOptions) (*APIClient, error) {
	if opts.Jar == nil {
		return nil, errors.New("Jar is required")
	}
	base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, apperrors.Validationf("invalid base URL %q", opts.BaseURL)
	}
	env, err := identity.NewEnvelope("", opts.IdentityPath)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	paths := apiPaths{
		whoami:  pathOr(opts.WhoAmIPath, identity.DefaultWhoAmIPath),
		refresh: pathOr(opts.RefreshPath, identity.DefaultRefreshPath),
		logout:  pathOr(opts.LogoutPath, identity.DefaultLogoutPath),
		users:   strings.TrimSuffix(pathOr(opts.UsersPath, DefaultUsersPath), "/"),
	}

	transport, err := NewRefreshTransport(RefreshTransportOptions{
		Base:            opts.Base,
		Jar:             opts.Jar,
		RefreshURL:      base.String() + paths.refresh,
		Coalesce:        opts.CoalesceRefresh,
		OnRefreshFailed: opts.OnRefreshFailed,
		Logger:          logger,
		Metrics:         opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		base:      base,
		http:      &http.Client{Transport: transport, Jar: opts.Jar, Timeout: timeout},
		jar:       opts.Jar,
		transport: transport,
		envelope:  env,
		paths:     paths,
		logger:    logger.With("component", "api_client"),
	}, nil
}

// NewRequest builds a request for path relative to the base URL.
// A non-nil body is JSON-encoded and replayable.
func (c *APIClient) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+pathOr(path, "/"), rdr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Do sends req. A 401 that survives the single retry is returned as an Unauthenticated
// error and any other non-2xx status as an Upstream error; the response is closed in both cases.
func (c *APIClient) Do(req *http.Request) (*http.Response, error) {
	requestid.Apply(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	drain(resp)
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, apperrors.Unauthenticated(resp.StatusCode)
	}
	return nil, apperrors.Upstream(resp.StatusCode, req.URL.Path)
}

// Send builds and sends a request, decoding a JSON response into out when non-nil.
func (c *APIClient) Send(ctx context.Context, method, path string, body, out any) error {
	req, err := c.NewRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); decodeErr != nil {
		return apperrors.Wrapf(decodeErr, apperrors.ErrCodeUpstream, "decode %s response", path)
	}
	return nil
}

// Get fetches path and decodes the JSON response into out.
func (c *APIClient) Get(ctx context.Context, path string, out any) error {
	return c.Send(ctx, http.MethodGet, path, nil, out)
}

// FetchIdentity loads the current user's identity.
func (c *APIClient) FetchIdentity(ctx context.Context) (domainauth.Identity, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, c.paths.whoami, nil)
	if err != nil {
		return domainauth.Identity{}, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return domainauth.Identity{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("read identity: %w", err)
	}
	return c.envelope.Identity(body)
}

// profileUpdate is the body of a profile edit. Empty fields are left unchanged.
type profileUpdate struct {
	FirstName      string `json:"firstName,omitempty"`
	LastName       string `json:"lastName,omitempty"`
	Email          string `json:"email,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// UpdateProfile sends the non-empty fields of partial to the user's profile resource.
// The user id itself cannot be changed.
func (c *APIClient) UpdateProfile(ctx context.Context, userID string, partial domainauth.Identity) error {
	if strings.TrimSpace(userID) == "" {
		return apperrors.Validation("user id is required")
	}
	body := profileUpdate{
		FirstName:      partial.FirstName,
		LastName:       partial.LastName,
		Email:          partial.Email,
		ProfilePicture: partial.ProfilePicture,
	}
	if body == (profileUpdate{}) {
		return apperrors.Validation("profile update has no fields")
	}
	return c.Send(ctx, http.MethodPut, c.paths.users+"/"+url.PathEscape(userID), body, nil)
}

// Refresh performs an explicit refresh, sharing any in-flight one.
func (c *APIClient) Refresh(ctx context.Context) error {
	return c.transport.Refresh(ctx)
}

// Logout invalidates the provider session and clears local cookies.
// Cookies are cleared even when the provider call fails.
func (c *APIClient) Logout(ctx context.Context) error {
	logoutErr := c.Send(ctx, http.MethodPost, c.paths.logout, nil, nil)
	clearErr := c.jar.Clear(ctx)
	if logoutErr != nil || clearErr != nil {
		return errors.Join(logoutErr, clearErr)
	}
	return nil
}

func pathOr(p, def string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return def
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
