package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	domainauth "github.com/moneybook/websession/internal/domain/auth"
	"github.com/moneybook/websession/internal/ports"
)

// DefaultRetryBudget is the number of identity fetches tried before redirecting.
const DefaultRetryBudget = 3

// NavigationPolicyOptions groups dependencies for NavigationPolicy.
type NavigationPolicyOptions struct {
	Store       *Store
	Navigator   ports.Navigator
	Routes      domainauth.RoutePolicy
	RetryBudget int
	Logger      *slog.Logger
}

// NavigationPolicy observes the store and route changes. While identity is absent
// it refetches up to the retry budget, then navigates once to the entry route
// unless the current route is public. The redirect re-arms when identity becomes present.
// A signed-out store is never refetched; protected routes lead straight to the entry route.
type NavigationPolicy struct {
	store     *Store
	navigator ports.Navigator
	routes    domainauth.RoutePolicy
	budget    int
	logger    *slog.Logger

	mu        sync.Mutex
	ctx       context.Context
	path      string
	navigated bool
}

// NewNavigationPolicy constructs a NavigationPolicy.
func NewNavigationPolicy(opts NavigationPolicyOptions) (*NavigationPolicy, error) {
	if opts.Store == nil {
		return nil, errors.New("Store is required")
	}
	if opts.Navigator == nil {
		return nil, errors.New("Navigator is required")
	}
	budget := opts.RetryBudget
	if budget <= 0 {
		budget = DefaultRetryBudget
	}
	routes := opts.Routes
	if len(routes.PublicRoutes) == 0 {
		routes = domainauth.ClientRoutes()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &NavigationPolicy{
		store:     opts.Store,
		navigator: opts.Navigator,
		routes:    routes,
		budget:    budget,
		logger:    logger.With("component", "navigation_policy"),
		ctx:       context.Background(),
	}, nil
}

// Start subscribes the policy to store events. ctx is used for calls made in reaction to events.
func (p *NavigationPolicy) Start(ctx context.Context) (stop func()) {
	p.mu.Lock()
	p.ctx = ctx
	p.mu.Unlock()
	return p.store.Subscribe(func(st State) { p.evaluate(p.context(), st) })
}

// OnRouteChange records the current route and evaluates the policy.
func (p *NavigationPolicy) OnRouteChange(ctx context.Context, path string) {
	p.mu.Lock()
	p.path = path
	p.mu.Unlock()
	p.evaluate(ctx, p.store.State())
}

// OnRefreshFailed handles a failed client-side refresh by sending the user to the entry route.
func (p *NavigationPolicy) OnRefreshFailed(ctx context.Context, err error) {
	p.logger.InfoContext(ctx, "refresh failed, leaving protected route", "error", err)
	p.navigateOnce(ctx)
}

// Path returns the route last reported by OnRouteChange.
func (p *NavigationPolicy) Path() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path
}

func (p *NavigationPolicy) evaluate(ctx context.Context, st State) {
	switch st.Status {
	case StatusPresent:
		p.mu.Lock()
		p.navigated = false
		p.mu.Unlock()
		return
	case StatusLoading:
		return
	case StatusSignedOut:
		p.leaveProtected(ctx)
		return
	}

	if st.Attempts < p.budget {
		// Errors are reflected in the store state and handled by the next event.
		_ = p.store.Refetch(ctx)
		return
	}
	if st.Err != "" {
		p.navigateOnce(ctx)
	}
}

func (p *NavigationPolicy) navigateOnce(ctx context.Context) {
	p.mu.Lock()
	if p.navigated || p.routes.IsPublic(p.path) {
		p.mu.Unlock()
		return
	}
	p.navigated = true
	p.mu.Unlock()

	entry := p.routes.Entry()
	if err := p.navigator.Navigate(ctx, entry); err != nil {
		p.logger.WarnContext(ctx, "navigation failed", "to", entry, "error", err)
	}
}

// leaveProtected navigates to the entry route from any protected route. It re-arms the
// single redirect so a later failed sign-in is reported once.
func (p *NavigationPolicy) leaveProtected(ctx context.Context) {
	p.mu.Lock()
	p.navigated = false
	public := p.routes.IsPublic(p.path)
	p.mu.Unlock()
	if public {
		return
	}

	entry := p.routes.Entry()
	if err := p.navigator.Navigate(ctx, entry); err != nil {
		p.logger.WarnContext(ctx, "navigation failed", "to", entry, "error", err)
	}
}

func (p *NavigationPolicy) context() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctx
}

// PathNavigator is an in-process Navigator that records the current route and
// reports changes back to a NavigationPolicy.
type PathNavigator struct {
	mu     sync.Mutex
	path   string
	visits []string
	policy *NavigationPolicy
	logger *slog.Logger
}

// NewPathNavigator returns a navigator starting at path.
func NewPathNavigator(path string, logger *slog.Logger) *PathNavigator {
	if logger == nil {
		logger = slog.Default()
	}
	return &PathNavigator{path: path, logger: logger}
}

// Attach routes subsequent navigations to policy.
func (n *PathNavigator) Attach(policy *NavigationPolicy) {
	n.mu.Lock()
	n.policy = policy
	n.mu.Unlock()
}

// Navigate moves to path and notifies the attached policy.
func (n *PathNavigator) Navigate(ctx context.Context, path string) error {
	n.mu.Lock()
	n.path = path
	n.visits = append(n.visits, path)
	policy := n.policy
	n.mu.Unlock()

	n.logger.InfoContext(ctx, "navigate", "to", path)
	if policy != nil {
		policy.OnRouteChange(ctx, path)
	}
	return nil
}

// Path returns the current route.
func (n *PathNavigator) Path() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

// Visits returns every route navigated to, in order.
func (n *PathNavigator) Visits() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.visits...)
}
