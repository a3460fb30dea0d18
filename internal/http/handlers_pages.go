package httpx

import (
	"context"
	"log/slog"
	"net/http"

	domainauth "github.com/moneybook/websession/internal/domain/auth"
	"github.com/moneybook/websession/internal/ports"
	"github.com/moneybook/websession/internal/service"
)

// Page describes a server-rendered application page.
type Page struct {
	Path  string
	Title string
	// Hidden pages are reachable by link only and left out of the navigation bar.
	Hidden bool
}

// ProtectedPages are rendered only for authenticated sessions.
func ProtectedPages() []Page {
	return []Page{
		{Path: domainauth.HomeRoute, Title: "Home"},
		{Path: "/friends", Title: "Friends"},
		{Path: "/transactions", Title: "Transactions"},
		{Path: "/spend-groups", Title: "Spend groups"},
		{Path: "/profile", Title: "Profile"},
		{Path: "/profile/edit", Title: "Edit profile", Hidden: true},
	}
}

func navPages() []Page {
	all := ProtectedPages()
	out := make([]Page, 0, len(all))
	for _, p := range all {
		if !p.Hidden {
			out = append(out, p)
		}
	}
	return out
}

// SessionPayload is the hydration document embedded in pages and served at GET /session.
type SessionPayload struct {
	Authenticated bool                 `json:"authenticated"`
	Identity      *domainauth.Identity `json:"identity"`
	Reason        string               `json:"reason,omitempty"`
}

// PageData is the template data for every page.
type PageData struct {
	Title   string
	Path    string
	Nav     []Page
	Session SessionPayload
}

// PageHandlers renders pages and the session hydration endpoint.
type PageHandlers struct {
	Renderer     *TemplateRenderer
	Validator    ports.SessionValidator
	Provider     ports.IdentityProvider
	Cookies      domainauth.CookieNames
	CookieDomain string
	Logger       *slog.Logger
}

func (h *PageHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Entry renders the public entry (sign-in) page. A visitor carrying identity
// cookies that validate is sent to the home route instead.
// GET /.
func (h *PageHandlers) Entry(w http.ResponseWriter, r *http.Request) {
	names := h.Cookies.WithDefaults()
	presence := service.ClassifyTokens(service.RelayCookies(r.Cookies(), names), names)
	if h.Validator != nil && !presence.None() {
		outcome := h.Validator.Validate(r.Context(), r.Cookies())
		if outcome.Authenticated {
			forwardCookies(w, outcome.Issued, h.CookieDomain)
			http.Redirect(w, r, domainauth.HomeRoute, http.StatusSeeOther)
			return
		}
	}
	h.render(w, r, "entry", PageData{Title: "Sign in", Path: r.URL.Path})
}

// Onboarding renders the onboarding page behind RequireSession. It stays public
// to the client navigation policy so an unfinished profile is never bounced.
// GET /onboarding.
func (h *PageHandlers) Onboarding(w http.ResponseWriter, r *http.Request) {
	outcome, ok := GetOutcomeFromContext(r.Context())
	if !ok || !outcome.Authenticated {
		http.Redirect(w, r, domainauth.EntryRoute, http.StatusSeeOther)
		return
	}
	h.render(w, r, "onboarding", PageData{
		Title:   "Welcome",
		Path:    r.URL.Path,
		Session: h.payload(r.Context(), outcome),
	})
}

// Protected returns a handler for a page wrapped by RequireSession. The rendered
// page embeds the identity so the client store can hydrate without a round trip.
func (h *PageHandlers) Protected(page Page) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		outcome, ok := GetOutcomeFromContext(r.Context())
		if !ok || !outcome.Authenticated {
			http.Redirect(w, r, domainauth.EntryRoute, http.StatusSeeOther)
			return
		}
		h.render(w, r, "app", PageData{
			Title:   page.Title,
			Path:    page.Path,
			Nav:     navPages(),
			Session: h.payload(r.Context(), outcome),
		})
	}
}

// Session returns the hydration payload for the current cookies.
// GET /session.
func (h *PageHandlers) Session(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	outcome := h.Validator.Validate(r.Context(), r.Cookies())
	if !outcome.Authenticated {
		WriteJSON(w, http.StatusOK, SessionPayload{Reason: outcome.Reason()})
		return
	}
	forwardCookies(w, outcome.Issued, h.CookieDomain)
	WriteJSON(w, http.StatusOK, h.payload(r.Context(), outcome))
}

// payload looks up the identity for an authenticated outcome. A failed lookup
// still reports the session as authenticated; the client refetches the identity.
func (h *PageHandlers) payload(ctx context.Context, outcome domainauth.Outcome) SessionPayload {
	p := SessionPayload{Authenticated: true}
	if h.Provider == nil {
		return p
	}
	id, err := h.Provider.WhoAmI(ctx, outcome.CookieHeader)
	if err != nil {
		h.logger().WarnContext(ctx, "identity lookup failed", slog.Any("error", err))
		return p
	}
	if id.Valid() {
		p.Identity = &id
	}
	return p
}

func (h *PageHandlers) render(w http.ResponseWriter, r *http.Request, name string, data PageData) {
	if err := h.Renderer.Render(w, name, data); err != nil {
		h.logger().ErrorContext(r.Context(), "page render failed",
			slog.String("template", name),
			slog.Any("error", err),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
