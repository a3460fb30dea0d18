package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/moneybook/websession"
	"github.com/moneybook/websession/config"
	httpx "github.com/moneybook/websession/internal/http"
)

// HTTPServerConfig contains configuration for the HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// NewHTTPServer builds the web server. It does not start listening.
func NewHTTPServer(cfg HTTPServerConfig) (*http.Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("Config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	templates, err := fs.Sub(websession.TemplateFS, "web/templates")
	if err != nil {
		return nil, fmt.Errorf("template fs: %w", err)
	}
	static, err := fs.Sub(websession.StaticFS, "web/static")
	if err != nil {
		return nil, fmt.Errorf("static fs: %w", err)
	}
	renderer, err := httpx.NewTemplateRenderer(httpx.TemplateRendererConfig{TemplateFS: templates, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	var upstream httpx.UpstreamChecker
	if cfg.Services.Provider != nil {
		upstream = cfg.Services.Provider
	}
	handler, err := httpx.NewRouter(httpx.RouterServices{
		Validator:    cfg.Services.Validator,
		Provider:     cfg.Services.Provider,
		Upstream:     upstream,
		Renderer:     renderer,
		StaticFS:     static,
		Metrics:      cfg.Services.Metrics,
		Cookies:      cfg.Config.Cookies.Names(),
		CookieDomain: cfg.Config.HTTP.CookieDomain,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	addr := cfg.Config.HTTP.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":3000"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}, nil
}

// ServeOptions contains dependencies for Serve.
type ServeOptions struct {
	Server          *http.Server
	Listener        net.Listener
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// Serve runs the server until ctx is done, then shuts it down gracefully.
// A listener failure cancels the shutdown watcher and is returned.
func Serve(ctx context.Context, opts ServeOptions) error {
	if opts.Server == nil || opts.Listener == nil {
		return errors.New("Server and Listener are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", opts.Listener.Addr().String())
		if err := opts.Server.Serve(opts.Listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return ShutdownHTTPServer(ShutdownConfig{
			Context: context.WithoutCancel(gctx),
			Server:  opts.Server,
			Timeout: opts.ShutdownTimeout,
			Logger:  logger,
		})
	})
	return g.Wait()
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Timeout time.Duration
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	shutdownCtx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
