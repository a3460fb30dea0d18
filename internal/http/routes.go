package httpx

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"

	domainauth "github.com/moneybook/websession/internal/domain/auth"
	"github.com/moneybook/websession/internal/observability/metrics"
	"github.com/moneybook/websession/internal/ports"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Validator ports.SessionValidator
	Provider  ports.IdentityProvider
	// Upstream is pinged by /healthz when set.
	Upstream UpstreamChecker
	Renderer *TemplateRenderer
	// StaticFS is served under /static/ (optional).
	StaticFS fs.FS
	// Metrics is exposed at /metrics when set.
	Metrics      *metrics.Recorder
	Cookies      domainauth.CookieNames
	CookieDomain string
	Logger       *slog.Logger // Logger for HTTP errors (optional)
}

// NewRouter creates the web server handler. The edge guard runs ahead of every route.
func NewRouter(services RouterServices) (http.Handler, error) {
	if services.Validator == nil {
		return nil, errors.New("Validator is required")
	}
	if services.Renderer == nil {
		return nil, errors.New("Renderer is required")
	}
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	pages := &PageHandlers{
		Renderer:     services.Renderer,
		Validator:    services.Validator,
		Provider:     services.Provider,
		Cookies:      services.Cookies,
		CookieDomain: services.CookieDomain,
		Logger:       logger,
	}
	logout := &LogoutHandlers{
		Provider:     services.Provider,
		Cookies:      services.Cookies,
		CookieDomain: services.CookieDomain,
		Logger:       logger,
	}
	requireSession := RequireSession(services.Validator, RequireSessionOptions{
		RedirectPath: domainauth.EntryRoute,
		CookieDomain: services.CookieDomain,
		Logger:       logger,
	})

	mux.HandleFunc("GET /{$}", pages.Entry)
	mux.Handle("GET "+domainauth.OnboardingRoute, requireSession(http.HandlerFunc(pages.Onboarding)))
	for _, page := range ProtectedPages() {
		mux.Handle("GET "+page.Path, requireSession(pages.Protected(page)))
	}
	mux.HandleFunc("GET /session", pages.Session)
	mux.HandleFunc("POST /logout", logout.Logout)

	if services.StaticFS != nil {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(services.StaticFS)))
	}
	health := &HealthHandlers{Upstream: services.Upstream, Logger: logger}
	mux.HandleFunc("GET /healthz", health.Health)
	mux.HandleFunc("HEAD /healthz", health.Health)
	if services.Metrics != nil {
		mux.Handle("GET /metrics", services.Metrics.Handler())
	}

	var h http.Handler = mux
	h = EdgeGuard(EdgeGuardOptions{
		Cookies: services.Cookies,
		Metrics: services.Metrics,
		Logger:  logger,
	})(h)
	h = RequestID()(h)
	h = Logging(logger)(h)
	h = Recover(logger)(h)
	return h, nil
}
