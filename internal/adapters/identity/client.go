package identity

// Package identity adapts the upstream identity provider's HTTP API to ports.IdentityProvider.

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domainauth "github.com/moneybook/websession/internal/domain/auth"
	apperrors "github.com/moneybook/websession/internal/errors"
	"github.com/moneybook/websession/internal/observability/metrics"
	"github.com/moneybook/websession/internal/observability/requestid"
	"github.com/moneybook/websession/internal/ports"
)

// Default endpoint paths relative to the base URL.
const (
	DefaultValidatePath = "/auth/validate"
	DefaultRefreshPath  = "/auth/refresh"
	DefaultWhoAmIPath   = "/auth/me"
	DefaultLogoutPath   = "/logout"
)

const maxBodyBytes = 1 << 20

// ErrRejected is returned (wrapped) when the provider answers with a 4xx status.
var ErrRejected = ports.ErrRejected

// Config holds configuration for the provider client.
type Config struct {
	BaseURL string
	Timeout time.Duration

	ValidatePath string
	RefreshPath  string
	WhoAmIPath   string
	LogoutPath   string

	// JMESPath expressions locating fields in the response envelope.
	AuthenticatedPath string
	IdentityPath      string

	HTTPClient *http.Client // Optional, defaults to a client with Timeout
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
	Tracer     trace.Tracer
}

// Client implements ports.IdentityProvider over HTTP.
type Client struct {
	base       *url.URL
	paths      endpointPaths
	envelope   Envelope
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Recorder
	tracer     trace.Tracer
}

type endpointPaths struct {
	validate, refresh, whoami, logout string
}

var _ ports.IdentityProvider = (*Client)(nil)

// NewClient creates a provider client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, apperrors.Validation("base URL is required")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "parse base URL")
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, apperrors.Validationf("base URL must be http or https, got %q", base.Scheme)
	}

	env, err := NewEnvelope(cfg.AuthenticatedPath, cfg.IdentityPath)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/moneybook/websession/internal/adapters/identity")
	}

	return &Client{
		base: base,
		paths: endpointPaths{
			validate: orDefault(cfg.ValidatePath, DefaultValidatePath),
			refresh:  orDefault(cfg.RefreshPath, DefaultRefreshPath),
			whoami:   orDefault(cfg.WhoAmIPath, DefaultWhoAmIPath),
			logout:   orDefault(cfg.LogoutPath, DefaultLogoutPath),
		},
		envelope:   env,
		httpClient: httpClient,
		logger:     logger.With("component", "identity_client"),
		metrics:    cfg.Metrics,
		tracer:     tracer,
	}, nil
}

// Validate calls the validate endpoint with caching disabled.
// 401 and 403 are a rejection, not an error.
func (c *Client) Validate(ctx context.Context, cookieHeader string) (bool, error) {
	var ok bool
	err := c.call(ctx, "validate", http.MethodGet, c.paths.validate, cookieHeader, func(resp *http.Response, body []byte) error {
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			ok = false
			return nil
		case isSuccess(resp.StatusCode):
			v, err := c.envelope.Authenticated(body)
			if err != nil {
				return err
			}
			ok = v
			return nil
		default:
			return statusError(resp.StatusCode, c.paths.validate)
		}
	})
	return ok, err
}

// Refresh calls the refresh endpoint and returns the cookies it issued.
func (c *Client) Refresh(ctx context.Context, cookieHeader string) ([]*http.Cookie, error) {
	var issued []*http.Cookie
	err := c.call(ctx, "refresh", http.MethodPost, c.paths.refresh, cookieHeader, func(resp *http.Response, _ []byte) error {
		if !isSuccess(resp.StatusCode) {
			return statusError(resp.StatusCode, c.paths.refresh)
		}
		issued = resp.Cookies()
		return nil
	})
	return issued, err
}

// WhoAmI fetches the identity record for the presented credentials.
func (c *Client) WhoAmI(ctx context.Context, cookieHeader string) (domainauth.Identity, error) {
	var id domainauth.Identity
	err := c.call(ctx, "whoami", http.MethodGet, c.paths.whoami, cookieHeader, func(resp *http.Response, body []byte) error {
		if !isSuccess(resp.StatusCode) {
			return statusError(resp.StatusCode, c.paths.whoami)
		}
		v, err := c.envelope.Identity(body)
		if err != nil {
			return err
		}
		id = v
		return nil
	})
	return id, err
}

// Logout invalidates the provider session.
func (c *Client) Logout(ctx context.Context, cookieHeader string) error {
	return c.call(ctx, "logout", http.MethodPost, c.paths.logout, cookieHeader, func(resp *http.Response, _ []byte) error {
		if !isSuccess(resp.StatusCode) {
			return statusError(resp.StatusCode, c.paths.logout)
		}
		return nil
	})
}

// Ping reports whether the provider answers at its base URL. Any HTTP status
// counts as reachable; only transport failures are errors.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", http.MethodHead, "/", "", func(*http.Response, []byte) error {
		return nil
	})
}

func (c *Client) call(
	ctx context.Context,
	endpoint, method, path, cookieHeader string,
	handle func(resp *http.Response, body []byte) error,
) (err error) {
	ctx, span := c.tracer.Start(ctx, "identity."+endpoint, trace.WithSpanKind(trace.SpanKindClient))
	start := time.Now()
	defer func() {
		result := metrics.ResultSuccess
		if err != nil {
			result = metrics.ResultError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		c.metrics.Upstream(metrics.UpstreamMetric{
			Endpoint: endpoint,
			Result:   result,
			Duration: time.Since(start),
			Err:      err,
		})
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Pragma", "no-cache")
	if cookieHeader != "" {
		req.Header.Set("Cookie", cookieHeader)
	}
	requestid.Apply(req)
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
		attribute.String("request.id", req.Header.Get(requestid.Header)),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}

	c.logger.DebugContext(ctx, "identity provider call",
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"request_id", req.Header.Get(requestid.Header),
	)
	return handle(resp, body)
}

// statusError maps 4xx to ErrRejected and everything else to an upstream error.
func statusError(status int, path string) error {
	upstream := apperrors.Upstream(status, path)
	if status >= 400 && status < 500 {
		return fmt.Errorf("%w: %w", ErrRejected, upstream)
	}
	return upstream
}

func isSuccess(status int) bool { return status >= 200 && status < 300 }

func orDefault(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	if !strings.HasPrefix(v, "/") {
		v = "/" + v
	}
	return v
}
