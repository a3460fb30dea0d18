package auth

// Package auth contains domain-level types for cookie-carried sessions.
// It is pure and free of framework/adapter concerns, except for net/http cookie values.

import (
	"net/http"

	apperrors "github.com/moneybook/websession/internal/errors"
)

// Default cookie names issued by the identity provider.
const (
	DefaultAccessCookie        = "auth-token"
	DefaultRefreshCookie       = "refresh-token"
	DefaultLegacySessionCookie = "JSESSIONID"
)

// CookieNames identifies the identity cookies by name.
// Values are opaque; this package never parses them.
type CookieNames struct {
	Access        string
	Refresh       string
	LegacySession string
}

// DefaultCookieNames returns the provider's stock cookie names.
func DefaultCookieNames() CookieNames {
	return CookieNames{
		Access:        DefaultAccessCookie,
		Refresh:       DefaultRefreshCookie,
		LegacySession: DefaultLegacySessionCookie,
	}
}

// WithDefaults fills empty names with the stock names.
func (n CookieNames) WithDefaults() CookieNames {
	d := DefaultCookieNames()
	if n.Access == "" {
		n.Access = d.Access
	}
	if n.Refresh == "" {
		n.Refresh = d.Refresh
	}
	if n.LegacySession == "" {
		n.LegacySession = d.LegacySession
	}
	return n
}

// AllowList returns the exact cookie names always relayed upstream.
func (n CookieNames) AllowList() []string {
	out := make([]string, 0, 3)
	for _, name := range []string{n.Access, n.Refresh, n.LegacySession} {
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// Identity is the authenticated user's profile as returned by the provider's whoami endpoint.
type Identity struct {
	UserID         string `json:"userId"`
	FirstName      string `json:"firstName,omitempty"`
	LastName       string `json:"lastName,omitempty"`
	Email          string `json:"email,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// Valid reports whether the record identifies a session holder.
func (i Identity) Valid() bool { return i.UserID != "" }

// Merge applies the non-empty fields of a partial update.
// UserID is immutable once set; a partial can only fill it when it is empty.
func (i Identity) Merge(partial Identity) Identity {
	if i.UserID == "" {
		i.UserID = partial.UserID
	}
	if partial.FirstName != "" {
		i.FirstName = partial.FirstName
	}
	if partial.LastName != "" {
		i.LastName = partial.LastName
	}
	if partial.Email != "" {
		i.Email = partial.Email
	}
	if partial.ProfilePicture != "" {
		i.ProfilePicture = partial.ProfilePicture
	}
	return i
}

// Presence reports which identity cookies appear in a relayed header.
// It says nothing about validity.
type Presence struct {
	Access  bool
	Refresh bool
}

// None reports whether neither credential is present.
func (p Presence) None() bool { return !p.Access && !p.Refresh }

// Outcome is the transient result of one validation attempt. It is never persisted.
type Outcome struct {
	Authenticated bool
	// Err is set when Authenticated is false.
	Err *apperrors.AppError
	// CookieHeader is the relayed header that produced the verdict.
	CookieHeader string
	// Issued holds cookies newly issued by a refresh during this attempt.
	Issued []*http.Cookie
}

// Reason returns the human-readable reason for a failed outcome, or "".
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Message
}

// Code returns the error code of a failed outcome, or "".
func (o Outcome) Code() apperrors.ErrorCode {
	if o.Err == nil {
		return ""
	}
	return o.Err.Code
}

// Authenticated builds a successful outcome.
func Authenticated(header string, issued []*http.Cookie) Outcome {
	return Outcome{Authenticated: true, CookieHeader: header, Issued: issued}
}

// Unauthenticated builds a failed outcome.
func Unauthenticated(err *apperrors.AppError) Outcome {
	return Outcome{Err: err}
}
