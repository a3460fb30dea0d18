package httpx

import (
	"context"

	domainauth "github.com/moneybook/websession/internal/domain/auth"
)

// outcomeKey is an unexported context key type to avoid collisions across packages.
// Centralized in this file so all handlers/middleware use the same key.
type outcomeKey struct{}

// SetOutcomeInContext returns a child context that carries the validation outcome.
func SetOutcomeInContext(ctx context.Context, o domainauth.Outcome) context.Context {
	return context.WithValue(ctx, outcomeKey{}, o)
}

// GetOutcomeFromContext returns the outcome stored by RequireSession and a boolean indicating presence.
func GetOutcomeFromContext(ctx context.Context) (domainauth.Outcome, bool) {
	o, ok := ctx.Value(outcomeKey{}).(domainauth.Outcome)
	return o, ok
}

// IsAuthenticated reports whether the request context carries an authenticated outcome.
func IsAuthenticated(ctx context.Context) bool {
	o, ok := GetOutcomeFromContext(ctx)
	return ok && o.Authenticated
}
