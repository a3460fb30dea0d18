// Package requestid carries a correlation id across server and client hops.
package requestid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Header is the HTTP header that carries the request id.
const Header = "X-Request-ID"

type ctxKey struct{}

// New returns a fresh random request id.
func New() string { return uuid.NewString() }

// WithID returns a child context carrying id. Empty ids are ignored.
func WithID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the request id stored in ctx, or "".
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

// Ensure returns ctx with a request id, minting one when absent.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := New()
	return WithID(ctx, id), id
}

// Apply sets the request id header on an outbound request from its context,
// minting a new id when the context has none.
func Apply(req *http.Request) {
	if req.Header.Get(Header) != "" {
		return
	}
	id := FromContext(req.Context())
	if id == "" {
		id = New()
	}
	req.Header.Set(Header, id)
}
