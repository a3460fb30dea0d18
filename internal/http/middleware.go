package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	domainauth "github.com/moneybook/websession/internal/domain/auth"
	"github.com/moneybook/websession/internal/observability/requestid"
	"github.com/moneybook/websession/internal/ports"
)

// Logging returns a middleware that logs HTTP requests and responses.
// Cookie values are never logged.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", requestid.FromContext(r.Context())),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *respWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID returns a middleware that propagates or assigns an X-Request-ID.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestid.Header)
			if id == "" || len(id) > 128 {
				id = requestid.New()
			}
			w.Header().Set(requestid.Header, id)
			next.ServeHTTP(w, r.WithContext(requestid.WithID(r.Context(), id)))
		})
	}
}

// RequireSessionOptions configures RequireSession.
type RequireSessionOptions struct {
	// RedirectPath receives unauthenticated browser navigations (default "/").
	RedirectPath string
	// CookieDomain is applied to cookies issued by a refresh before they reach the browser.
	CookieDomain string
	Logger       *slog.Logger
}

// RequireSession returns a middleware that validates the request's identity cookies.
// The wrapped handler runs only on an explicit authenticated outcome, which is then
// available through GetOutcomeFromContext.
// Browsers are sent to RedirectPath with 303 See Other; API callers get a 401 JSON body.
func RequireSession(validator ports.SessionValidator, opts RequireSessionOptions) func(http.Handler) http.Handler {
	redirect := opts.RedirectPath
	if redirect == "" {
		redirect = domainauth.EntryRoute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			outcome := validator.Validate(r.Context(), r.Cookies())
			if !outcome.Authenticated {
				logger.DebugContext(r.Context(), "session rejected",
					slog.String("path", r.URL.Path),
					slog.String("code", string(outcome.Code())),
					slog.String("reason", outcome.Reason()),
				)
				if !isBrowserRequest(r) {
					WriteError(w, ErrorParams{
						Code:    http.StatusUnauthorized,
						ErrCode: "authentication_required",
						Err:     outcomeError(outcome),
					})
					return
				}
				http.Redirect(w, r, redirect, http.StatusSeeOther)
				return
			}

			forwardCookies(w, outcome.Issued, opts.CookieDomain)
			next.ServeHTTP(w, r.WithContext(SetOutcomeInContext(r.Context(), outcome)))
		})
	}
}

func outcomeError(o domainauth.Outcome) error {
	if o.Err != nil {
		return errors.New(o.Reason())
	}
	return errors.New("authentication required")
}

// isBrowserRequest determines if a request is a browser navigation based on:
// 1. Path prefix - API routes start with /api/
// 2. Accept header - JSON callers are API clients.
func isBrowserRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return false
	}
	accept := r.Header.Get("Accept")
	if accept == "" {
		// No Accept header, assume browser for non-API routes
		return true
	}
	if strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html") {
		return false
	}
	return !strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
}

// forwardCookies passes cookies issued upstream on to the browser, scoped to domain.
func forwardCookies(w http.ResponseWriter, issued []*http.Cookie, domain string) {
	for _, c := range issued {
		if c == nil || c.Name == "" {
			continue
		}
		out := *c
		out.Domain = domain
		if out.Path == "" {
			out.Path = "/"
		}
		out.Raw = ""
		out.Unparsed = nil
		http.SetCookie(w, &out)
	}
}

// clearCookie clears a cookie by setting it to expire immediately.
// It mirrors key attributes (Secure, Path, Domain, SameSite) used when setting cookies
// to maximize compatibility across browsers during deletion.
func clearCookie(w http.ResponseWriter, r *http.Request, name, domain string) {
	isSecure := r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		HttpOnly: true,
		Secure:   isSecure,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}
