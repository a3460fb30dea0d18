package auth

import "strings"

// Route constants compiled into the application.
const (
	// EntryRoute is the public landing/login page.
	EntryRoute = "/"
	// OnboardingRoute is public for the client navigation policy only.
	OnboardingRoute = "/onboarding"
	// HomeRoute is where an authenticated visitor of the entry route lands.
	HomeRoute = "/home"
)

// RoutePolicy decides which paths are public and which are static assets.
type RoutePolicy struct {
	EntryRoute    string
	PublicRoutes  []string
	AssetPrefixes []string
}

// EdgeRoutes is the allow-list used by the edge guard.
func EdgeRoutes() RoutePolicy {
	return RoutePolicy{
		EntryRoute:    EntryRoute,
		PublicRoutes:  []string{EntryRoute},
		AssetPrefixes: []string{"/static/", "/favicon.ico", "/healthz", "/metrics"},
	}
}

// ClientRoutes is the allow-list used by the client navigation policy.
func ClientRoutes() RoutePolicy {
	return RoutePolicy{
		EntryRoute:   EntryRoute,
		PublicRoutes: []string{EntryRoute, OnboardingRoute},
	}
}

// Entry returns the entry route, defaulting to "/".
func (p RoutePolicy) Entry() string {
	if p.EntryRoute == "" {
		return EntryRoute
	}
	return p.EntryRoute
}

// IsPublic reports whether path exactly matches an allow-listed route.
func (p RoutePolicy) IsPublic(path string) bool {
	for _, r := range p.PublicRoutes {
		if path == r {
			return true
		}
	}
	return false
}

// IsAsset reports whether path is a static asset or infrastructure endpoint.
func (p RoutePolicy) IsAsset(path string) bool {
	for _, prefix := range p.AssetPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
