package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/moneybook/websession/config"
	"github.com/moneybook/websession/internal/adapters/identity"
	"github.com/moneybook/websession/internal/observability/metrics"
	"github.com/moneybook/websession/internal/service"
)

// ServiceContainer holds the server-side session services.
type ServiceContainer struct {
	Provider  *identity.Client
	Validator *service.SessionValidator
	// Metrics is nil when metrics are disabled; a nil recorder records nothing.
	Metrics *metrics.Recorder
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config *config.AppConfig
	Logger *slog.Logger
}

// NewServices wires the identity provider client and session validator.
func NewServices(deps ServiceDeps) (ServiceContainer, error) {
	if deps.Config == nil {
		return ServiceContainer{}, errors.New("Config is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	rec := buildMetrics(cfg.Observability.Metrics)
	provider, err := newIdentityClient(cfg.Upstream, logger, rec)
	if err != nil {
		return ServiceContainer{}, err
	}
	validator, err := service.NewSessionValidator(service.SessionValidatorOptions{
		Provider: provider,
		Cookies:  cfg.Cookies.Names(),
		Logger:   logger,
		Metrics:  rec,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("session validator: %w", err)
	}

	return ServiceContainer{Provider: provider, Validator: validator, Metrics: rec}, nil
}

func buildMetrics(cfg config.ObservabilityMetricsConfig) *metrics.Recorder {
	if !cfg.Enabled {
		return nil
	}
	return metrics.NewRecorder(metrics.Options{Namespace: cfg.Namespace})
}

func newIdentityClient(cfg config.UpstreamConfig, logger *slog.Logger, rec *metrics.Recorder) (*identity.Client, error) {
	c, err := identity.NewClient(identity.Config{
		BaseURL:           cfg.BaseURL,
		Timeout:           cfg.Timeout,
		ValidatePath:      cfg.ValidatePath,
		RefreshPath:       cfg.RefreshPath,
		WhoAmIPath:        cfg.WhoAmIPath,
		LogoutPath:        cfg.LogoutPath,
		AuthenticatedPath: cfg.AuthenticatedPath,
		IdentityPath:      cfg.IdentityPath,
		Logger:            logger,
		Metrics:           rec,
	})
	if err != nil {
		return nil, fmt.Errorf("identity client: %w", err)
	}
	return c, nil
}
