package ports

// Package ports defines interfaces (hexagonal ports) for session-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service and internal/client.

import (
	"context"
	"errors"
	"net/http"
	"time"

	domainauth "github.com/moneybook/websession/internal/domain/auth"
)

// ErrRejected is returned by IdentityProvider calls the provider answered with a 4xx status.
var ErrRejected = errors.New("identity provider rejected credentials")

// IdentityProvider is the upstream service that owns token issuance and validation.
// Every call is credentialed with a relayed Cookie header.
type IdentityProvider interface {
	// Validate reports whether the provider accepts the presented access credential.
	// A rejection is (false, nil); transport failures and server errors return an error.
	Validate(ctx context.Context, cookieHeader string) (bool, error)

	// Refresh exchanges the refresh credential for new cookies.
	// Returned cookies are exactly the Set-Cookie values of the response.
	Refresh(ctx context.Context, cookieHeader string) ([]*http.Cookie, error)

	// WhoAmI returns the identity record for the presented credentials.
	WhoAmI(ctx context.Context, cookieHeader string) (domainauth.Identity, error)

	// Logout invalidates the server-side session behind the presented credentials.
	Logout(ctx context.Context, cookieHeader string) error
}

// SessionValidator decides whether a set of request cookies forms a usable session.
type SessionValidator interface {
	Validate(ctx context.Context, cookies []*http.Cookie) domainauth.Outcome
}

// IdentityFetcher loads the current user's identity on behalf of the client store.
type IdentityFetcher interface {
	FetchIdentity(ctx context.Context) (domainauth.Identity, error)
}

// Navigator performs a client-side navigation.
type Navigator interface {
	Navigate(ctx context.Context, path string) error
}

// JarStore persists a client's cookies between runs.
type JarStore interface {
	Save(ctx context.Context, profile string, cookies []*http.Cookie, ttl time.Duration) error
	Load(ctx context.Context, profile string) ([]*http.Cookie, error)
	Delete(ctx context.Context, profile string) error
}
