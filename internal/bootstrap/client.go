package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/moneybook/websession/config"
	redisadapter "github.com/moneybook/websession/internal/adapters/redis"
	"github.com/moneybook/websession/internal/client"
	domainauth "github.com/moneybook/websession/internal/domain/auth"
	apperrors "github.com/moneybook/websession/internal/errors"
	"github.com/moneybook/websession/internal/observability/metrics"
	"github.com/moneybook/websession/internal/ports"
)

// ClientStackOptions groups dependencies for NewClientStack.
type ClientStackOptions struct {
	Config *config.AppConfig
	// Redis persists the cookie jar when set.
	Redis redis.UniversalClient
	// StartPath is the route the navigator starts on (default "/").
	StartPath string
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
}

// ClientStack is a wired client session: a cookie jar, the refreshing API client,
// the identity store and the navigation policy observing it.
type ClientStack struct {
	Jar       *client.Jar
	API       *client.APIClient
	Store     *client.Store
	Policy    *client.NavigationPolicy
	Navigator *client.PathNavigator
	// Session is nil unless a web base URL is configured.
	Session *client.SessionLoader

	logger *slog.Logger
	stop   func()
}

// NewClientStack wires a client session against the configured provider.
// Refresh failures reported by the interceptor are routed to the navigation policy.
func NewClientStack(ctx context.Context, opts ClientStackOptions) (*ClientStack, error) {
	if opts.Config == nil {
		return nil, apperrors.Validation("Config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config

	var store ports.JarStore
	if opts.Redis != nil {
		store = redisadapter.NewJarStore(opts.Redis)
	}
	jar, err := client.NewJar(ctx, client.JarOptions{
		BaseURL: cfg.Upstream.BaseURL,
		Store:   store,
		Profile: cfg.Client.Profile,
		TTL:     cfg.Client.JarTTL,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	stack := &ClientStack{Jar: jar, logger: logger.With("component", "client_stack")}
	api, err := client.NewAPIClient(client.APIClientOptions{
		BaseURL:         cfg.Upstream.BaseURL,
		Timeout:         cfg.Upstream.Timeout,
		Jar:             jar,
		WhoAmIPath:      cfg.Upstream.WhoAmIPath,
		RefreshPath:     cfg.Upstream.RefreshPath,
		LogoutPath:      cfg.Upstream.LogoutPath,
		UsersPath:       cfg.Upstream.UsersPath,
		IdentityPath:    cfg.Upstream.IdentityPath,
		CoalesceRefresh: cfg.Client.CoalesceRefresh,
		OnRefreshFailed: stack.onRefreshFailed,
		Logger:          logger,
		Metrics:         opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("api client: %w", err)
	}

	if cfg.Client.WebBaseURL != "" {
		stack.Session, err = client.NewSessionLoader(client.SessionLoaderOptions{
			WebBaseURL: cfg.Client.WebBaseURL,
			Jar:        jar,
			Timeout:    cfg.Upstream.Timeout,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("session loader: %w", err)
		}
	}

	st, err := client.NewStore(client.StoreOptions{Fetcher: api, Logger: logger})
	if err != nil {
		return nil, err
	}

	start := opts.StartPath
	if start == "" {
		start = domainauth.EntryRoute
	}
	nav := client.NewPathNavigator(start, logger)
	policy, err := client.NewNavigationPolicy(client.NavigationPolicyOptions{
		Store:       st,
		Navigator:   nav,
		RetryBudget: cfg.Client.RetryBudget,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	nav.Attach(policy)

	stack.API = api
	stack.Store = st
	stack.Policy = policy
	stack.Navigator = nav
	stack.stop = policy.Start(ctx)
	return stack, nil
}

func (s *ClientStack) onRefreshFailed(ctx context.Context, err error) {
	if s.Policy != nil {
		s.Policy.OnRefreshFailed(ctx, err)
	}
}

// Visit navigates to path and lets the policy react to the route change.
// A store that has not loaded yet is hydrated from the web server first, when one is configured.
func (s *ClientStack) Visit(ctx context.Context, path string) error {
	if s.Session != nil && s.Store.State().Status == client.StatusIdle {
		if _, err := s.Hydrate(ctx); err != nil {
			s.logger.WarnContext(ctx, "session hydration failed", "error", err)
		}
	}
	return s.Navigator.Navigate(ctx, path)
}

// Hydrate loads the server-validated session into the store. It reports whether
// an identity was hydrated; otherwise the store is left for the policy to fetch.
func (s *ClientStack) Hydrate(ctx context.Context) (bool, error) {
	if s.Session == nil {
		return false, apperrors.Validation("web base URL is not configured")
	}
	snap, err := s.Session.Load(ctx)
	if err != nil {
		return false, err
	}
	if !snap.Authenticated || snap.Identity == nil {
		s.logger.DebugContext(ctx, "session not hydrated", "authenticated", snap.Authenticated, "reason", snap.Reason)
		return false, nil
	}
	s.Store.Hydrate(*snap.Identity)
	return true, nil
}

// UpdateProfile sends a profile edit upstream and merges it into the store.
func (s *ClientStack) UpdateProfile(ctx context.Context, partial domainauth.Identity) (domainauth.Identity, error) {
	if s.Store.Identity() == nil {
		if err := s.Store.Refetch(ctx); err != nil {
			return domainauth.Identity{}, fmt.Errorf("load identity: %w", err)
		}
	}
	current := s.Store.Identity()
	if current == nil {
		return domainauth.Identity{}, apperrors.Validation("no identity to update")
	}
	if err := s.API.UpdateProfile(ctx, current.UserID, partial); err != nil {
		return domainauth.Identity{}, err
	}
	s.Store.Update(partial)
	if updated := s.Store.Identity(); updated != nil {
		return *updated, nil
	}
	return domainauth.Identity{}, apperrors.Validation("identity cleared during update")
}

// Logout ends the session upstream, clears the jar and signs the store out.
// The policy leaves protected routes on sign-out; otherwise the entry route is visited here.
func (s *ClientStack) Logout(ctx context.Context) error {
	err := s.API.Logout(ctx)
	s.Store.Clear()
	if s.Navigator.Path() != domainauth.EntryRoute {
		if navErr := s.Navigator.Navigate(ctx, domainauth.EntryRoute); navErr != nil {
			err = errors.Join(err, navErr)
		}
	}
	return err
}

// Close detaches the policy from the store.
func (s *ClientStack) Close() {
	if s.stop != nil {
		s.stop()
	}
}
