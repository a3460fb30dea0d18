package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/moneybook/websession/internal/observability/metrics"
	"github.com/moneybook/websession/internal/observability/requestid"
)

type retriedKey struct{}

// WithRetried marks ctx so RefreshTransport will not retry requests carrying it.
func WithRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

// Retried reports whether ctx belongs to an already-retried request.
func Retried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey{}).(bool)
	return v
}

// RefreshTransportOptions groups dependencies for RefreshTransport.
type RefreshTransportOptions struct {
	// Base performs the actual round trips. Defaults to http.DefaultTransport.
	Base http.RoundTripper
	// Jar supplies cookies for replays and receives refresh cookies.
	Jar http.CookieJar
	// RefreshURL is the absolute URL of the refresh endpoint.
	RefreshURL string
	// Coalesce shares one in-flight refresh among concurrent rejections.
	Coalesce bool
	// OnRefreshFailed is called when a refresh did not succeed.
	OnRefreshFailed func(ctx context.Context, err error)
	Logger          *slog.Logger
	Metrics         *metrics.Recorder
}

// RefreshTransport retries a request exactly once after a successful refresh
// when the first attempt was answered with 401.
type RefreshTransport struct {
	base       http.RoundTripper
	jar        http.CookieJar
	refreshURL string
	coalesce   bool
	onFailed   func(ctx context.Context, err error)
	logger     *slog.Logger
	metrics    *metrics.Recorder

	// refresher bypasses the retry logic but shares the jar.
	refresher *http.Client
	group     singleflight.Group
}

var _ http.RoundTripper = (*RefreshTransport)(nil)

// NewRefreshTransport constructs a RefreshTransport.
func NewRefreshTransport(opts RefreshTransportOptions) (*RefreshTransport, error) {
	if opts.Jar == nil {
		return nil, errors.New("Jar is required")
	}
	if opts.RefreshURL == "" {
		return nil, errors.New("RefreshURL is required")
	}
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RefreshTransport{
		base:       base,
		jar:        opts.Jar,
		refreshURL: opts.RefreshURL,
		coalesce:   opts.Coalesce,
		onFailed:   opts.OnRefreshFailed,
		logger:     logger.With("component", "refresh_transport"),
		metrics:    opts.Metrics,
		refresher:  &http.Client{Transport: base, Jar: opts.Jar},
	}, nil
}

// RoundTrip implements http.RoundTripper.
func (t *RefreshTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || Retried(req.Context()) {
		return resp, err
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		// The body was consumed and cannot be replayed.
		t.metrics.ClientRetry(metrics.ResultNoop)
		return resp, nil
	}

	ctx := WithRetried(req.Context())
	if refreshErr := t.Refresh(ctx); refreshErr != nil {
		if t.onFailed != nil {
			t.onFailed(ctx, refreshErr)
		}
		return resp, nil
	}

	retry, err := t.replay(ctx, req)
	if err != nil {
		t.metrics.ClientRetry(metrics.ResultNoop)
		return resp, nil //nolint:nilerr // the original rejection is the meaningful result
	}
	drain(resp)

	resp, err = t.base.RoundTrip(retry)
	result := metrics.ResultSuccess
	if err != nil || resp.StatusCode == http.StatusUnauthorized {
		result = metrics.ResultError
	}
	t.metrics.ClientRetry(result)
	return resp, err
}

// Refresh calls the refresh endpoint once, or joins an in-flight refresh when coalescing.
func (t *RefreshTransport) Refresh(ctx context.Context) error {
	if !t.coalesce {
		return t.refresh(ctx)
	}
	_, err, shared := t.group.Do("refresh", func() (any, error) {
		return nil, t.refresh(context.WithoutCancel(ctx))
	})
	if shared {
		t.logger.DebugContext(ctx, "joined in-flight refresh")
	}
	return err
}

func (t *RefreshTransport) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(WithRetried(ctx), http.MethodPost, t.refreshURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	requestid.Apply(req)

	resp, err := t.refresher.Do(req)
	if err != nil {
		t.metrics.ClientRefresh(metrics.ResultError)
		return fmt.Errorf("refresh: %w", err)
	}
	drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		t.metrics.ClientRefresh(metrics.ResultError)
		return fmt.Errorf("refresh: status %d", resp.StatusCode)
	}
	t.metrics.ClientRefresh(metrics.ResultSuccess)
	t.logger.DebugContext(ctx, "session refreshed")
	return nil
}

// replay clones req for a second attempt, with a fresh body and the jar's current cookies.
func (t *RefreshTransport) replay(ctx context.Context, req *http.Request) (*http.Request, error) {
	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replay body: %w", err)
		}
		retry.Body = body
	}
	retry.Header.Del("Cookie")
	for _, c := range t.jar.Cookies(req.URL) {
		retry.AddCookie(c)
	}
	return retry, nil
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
