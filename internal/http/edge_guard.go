package httpx

import (
	"log/slog"
	"net/http"

	domainauth "github.com/moneybook/websession/internal/domain/auth"
	"github.com/moneybook/websession/internal/observability/metrics"
)

// EdgeGuardOptions configures EdgeGuard.
type EdgeGuardOptions struct {
	// Routes defaults to domainauth.EdgeRoutes().
	Routes  domainauth.RoutePolicy
	Cookies domainauth.CookieNames
	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// EdgeGuard returns a middleware that redirects requests for protected paths to the
// entry route when the access cookie is missing. It never calls upstream: a present
// but expired cookie passes and is caught later by RequireSession.
func EdgeGuard(opts EdgeGuardOptions) func(http.Handler) http.Handler {
	routes := opts.Routes
	if len(routes.PublicRoutes) == 0 && len(routes.AssetPrefixes) == 0 {
		routes = domainauth.EdgeRoutes()
	}
	names := opts.Cookies.WithDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			switch {
			case routes.IsPublic(path):
				opts.Metrics.Edge(metrics.EdgePublic)
			case routes.IsAsset(path):
				opts.Metrics.Edge(metrics.EdgeAsset)
			case hasCookie(r, names.Access):
				opts.Metrics.Edge(metrics.EdgeCookie)
			default:
				opts.Metrics.Edge(metrics.EdgeRedirect)
				logger.DebugContext(r.Context(), "edge guard redirect",
					slog.String("path", path),
					slog.String("to", routes.Entry()),
				)
				http.Redirect(w, r, routes.Entry(), http.StatusTemporaryRedirect)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasCookie(r *http.Request, name string) bool {
	c, err := r.Cookie(name)
	return err == nil && c.Value != ""
}
