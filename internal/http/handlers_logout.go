package httpx

import (
	"log/slog"
	"net/http"
	"strings"

	domainauth "github.com/moneybook/websession/internal/domain/auth"
	"github.com/moneybook/websession/internal/ports"
	"github.com/moneybook/websession/internal/service"
)

// LogoutHandlers ends a browser session.
type LogoutHandlers struct {
	Provider     ports.IdentityProvider
	Cookies      domainauth.CookieNames
	CookieDomain string
	Logger       *slog.Logger
}

func (h *LogoutHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Logout relays the logout upstream, clears the identity cookies and returns to the entry route.
// Upstream failures are logged; the browser is always signed out locally.
// POST /logout.
func (h *LogoutHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	names := h.Cookies.WithDefaults()
	if header := service.RelayCookies(r.Cookies(), names); header != "" && h.Provider != nil {
		if err := h.Provider.Logout(r.Context(), header); err != nil {
			h.logger().WarnContext(r.Context(), "upstream logout failed", slog.Any("error", err))
		}
	}

	for _, name := range names.AllowList() {
		clearCookie(w, r, name, h.CookieDomain)
	}

	// AJAX requests get a JSON payload; regular requests redirect
	isAJAX := strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
	if isAJAX {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "success",
			"redirect_to": domainauth.EntryRoute,
		})
		return
	}

	http.Redirect(w, r, domainauth.EntryRoute, http.StatusSeeOther)
}
