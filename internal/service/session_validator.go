package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domainauth "github.com/moneybook/websession/internal/domain/auth"
	apperrors "github.com/moneybook/websession/internal/errors"
	"github.com/moneybook/websession/internal/observability/metrics"
	"github.com/moneybook/websession/internal/ports"
)

// SessionValidatorOptions groups dependencies for SessionValidator.
type SessionValidatorOptions struct {
	Provider ports.IdentityProvider
	Cookies  domainauth.CookieNames
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
	// Tracer defaults to the global tracer provider.
	Tracer trace.Tracer
	// Now is used to expire issued cookies; defaults to time.Now.
	Now func() time.Time
}

// SessionValidator decides whether a request's cookies form a usable session.
// It validates the access credential, or refreshes once when only the refresh
// credential is present. It holds no per-request state.
type SessionValidator struct {
	provider ports.IdentityProvider
	cookies  domainauth.CookieNames
	logger   *slog.Logger
	metrics  *metrics.Recorder
	tracer   trace.Tracer
	now      func() time.Time
}

var _ ports.SessionValidator = (*SessionValidator)(nil)

// NewSessionValidator constructs a SessionValidator.
func NewSessionValidator(opts SessionValidatorOptions) (*SessionValidator, error) {
	if opts.Provider == nil {
		return nil, errors.New("Provider is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/moneybook/websession/internal/service")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &SessionValidator{
		provider: opts.Provider,
		cookies:  opts.Cookies.WithDefaults(),
		logger:   logger.With("component", "session_validator"),
		metrics:  opts.Metrics,
		tracer:   tracer,
		now:      now,
	}, nil
}

// Validate runs at most one refresh and never recurses.
func (v *SessionValidator) Validate(ctx context.Context, cookies []*http.Cookie) domainauth.Outcome {
	ctx, span := v.tracer.Start(ctx, "session.validate")
	defer span.End()

	out := v.validate(ctx, cookies)

	span.SetAttributes(attribute.Bool("session.authenticated", out.Authenticated))
	if !out.Authenticated {
		span.SetAttributes(attribute.String("session.reason", out.Reason()))
		if out.Code() == apperrors.ErrCodeTransient {
			span.SetStatus(codes.Error, out.Reason())
		}
		v.logger.DebugContext(ctx, "session not authenticated",
			"code", out.Code(),
			"reason", out.Reason(),
			"error", out.Err,
		)
	}
	v.metrics.Validation(out.Authenticated, string(out.Code()))
	return out
}

func (v *SessionValidator) validate(ctx context.Context, cookies []*http.Cookie) domainauth.Outcome {
	header := RelayCookies(cookies, v.cookies)
	presence := ClassifyTokens(header, v.cookies)

	switch {
	case presence.None():
		return domainauth.Unauthenticated(apperrors.CredentialsAbsent())
	case presence.Access:
		return v.validateAccess(ctx, header)
	default:
		return v.refreshThenValidate(ctx, cookies, header)
	}
}

// validateAccess is terminal: a rejected access credential is never followed by a refresh.
func (v *SessionValidator) validateAccess(ctx context.Context, header string) domainauth.Outcome {
	ok, err := v.provider.Validate(ctx, header)
	if err != nil {
		return domainauth.Unauthenticated(apperrors.Transient(fmt.Errorf("validate: %w", err)))
	}
	if !ok {
		return domainauth.Unauthenticated(apperrors.CredentialsInvalid())
	}
	return domainauth.Authenticated(header, nil)
}

func (v *SessionValidator) refreshThenValidate(
	ctx context.Context,
	cookies []*http.Cookie,
	header string,
) domainauth.Outcome {
	issued, err := v.provider.Refresh(ctx, header)
	if err != nil {
		if errors.Is(err, ports.ErrRejected) {
			return domainauth.Unauthenticated(apperrors.RefreshFailed(err))
		}
		return domainauth.Unauthenticated(apperrors.Transient(fmt.Errorf("refresh: %w", err)))
	}

	merged := MergeCookies(cookies, issued, v.now())
	nextHeader := RelayCookies(merged, v.cookies)

	ok, err := v.provider.Validate(ctx, nextHeader)
	if err != nil {
		return domainauth.Unauthenticated(apperrors.Transient(fmt.Errorf("validate after refresh: %w", err)))
	}
	if !ok {
		return domainauth.Unauthenticated(apperrors.RefreshFailed(nil))
	}
	v.logger.DebugContext(ctx, "session refreshed", "issued", cookieNames(issued))
	return domainauth.Authenticated(nextHeader, issued)
}

// MergeCookies returns the union of original and issued cookies, with issued values
// replacing originals of the same name. Issued cookies that expire (negative MaxAge
// or an Expires in the past) remove the name instead.
func MergeCookies(original, issued []*http.Cookie, now time.Time) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(original)+len(issued))
	index := make(map[string]int, len(original)+len(issued))
	for _, c := range original {
		if c == nil || c.Name == "" {
			continue
		}
		if i, ok := index[c.Name]; ok {
			out[i] = c
			continue
		}
		index[c.Name] = len(out)
		out = append(out, c)
	}
	for _, c := range issued {
		if c == nil || c.Name == "" {
			continue
		}
		if i, ok := index[c.Name]; ok {
			out[i] = c
			continue
		}
		index[c.Name] = len(out)
		out = append(out, c)
	}

	kept := out[:0]
	for _, c := range out {
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(now)) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func cookieNames(cookies []*http.Cookie) []string {
	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c != nil {
			names = append(names, c.Name)
		}
	}
	return names
}
