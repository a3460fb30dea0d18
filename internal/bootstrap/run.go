package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"syscall"

	"github.com/moneybook/websession/config"
)

// Run wires the session server from cfg and blocks until SIGINT/SIGTERM or a server failure.
func Run(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svcs, err := NewServices(ServiceDeps{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	server, err := NewHTTPServer(HTTPServerConfig{Config: cfg, Services: svcs, Logger: logger})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", server.Addr, err)
	}
	return Serve(ctx, ServeOptions{
		Server:          server,
		Listener:        ln,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		Logger:          logger,
	})
}
