package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	domainauth "github.com/moneybook/websession/internal/domain/auth"
)

// Endpoint paths served by FakeProvider.
const (
	FakeValidatePath = "/auth/validate"
	FakeRefreshPath  = "/auth/refresh"
	FakeWhoAmIPath   = "/auth/me"
	FakeLogoutPath   = "/logout"
	// FakeResourcePath is a protected business endpoint.
	FakeResourcePath = "/transactions"
	// FakeUsersPath prefixes the profile resource /users/{userId}.
	FakeUsersPath = "/users/"
)

// FakeProvider is an in-process identity provider for tests.
// It issues opaque tokens, validates them, optionally rotates refresh tokens on use,
// and counts calls per path.
type FakeProvider struct {
	Server *httptest.Server

	names domainauth.CookieNames

	mu        sync.Mutex
	seq       int
	access    map[string]string // token -> userID
	refresh   map[string]string // token -> userID
	users     map[string]domainauth.Identity
	calls     map[string]int
	rotate    bool
	down      bool
	rejectAll bool
}

// NewFakeProvider starts a FakeProvider closed on test cleanup.
func NewFakeProvider(t TestingTB) *FakeProvider {
	t.Helper()
	p := &FakeProvider{
		names:   domainauth.DefaultCookieNames(),
		access:  map[string]string{},
		refresh: map[string]string{},
		users:   map[string]domainauth.Identity{},
		calls:   map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+FakeValidatePath, p.handleValidate)
	mux.HandleFunc("POST "+FakeRefreshPath, p.handleRefresh)
	mux.HandleFunc("GET "+FakeWhoAmIPath, p.handleWhoAmI)
	mux.HandleFunc("POST "+FakeLogoutPath, p.handleLogout)
	mux.HandleFunc(FakeResourcePath, p.handleResource)
	mux.HandleFunc("PUT "+FakeUsersPath+"{id}", p.handleUpdateUser)
	p.Server = httptest.NewServer(p.count(mux))
	t.Cleanup(p.Server.Close)
	return p
}

// URL returns the provider base URL.
func (p *FakeProvider) URL() string { return p.Server.URL }

// SetRotate toggles one-time refresh token rotation.
func (p *FakeProvider) SetRotate(rotate bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rotate = rotate
}

// SetDown makes every endpoint answer 503.
func (p *FakeProvider) SetDown(down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.down = down
}

// SetRejectAll makes the protected resource answer 401 regardless of credentials.
func (p *FakeProvider) SetRejectAll(reject bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejectAll = reject
}

// Login registers user and returns a fresh access/refresh pair.
func (p *FakeProvider) Login(user domainauth.Identity) (access, refresh string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[user.UserID] = user
	access = p.mintLocked("a", p.access, user.UserID)
	refresh = p.mintLocked("r", p.refresh, user.UserID)
	return access, refresh
}

// ExpireAccess invalidates an access token.
func (p *FakeProvider) ExpireAccess(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.access, token)
}

// AddAccess registers an access token for an existing user.
func (p *FakeProvider) AddAccess(token, userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.access[token] = userID
}

// AddRefresh registers a refresh token for an existing user.
func (p *FakeProvider) AddRefresh(token, userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refresh[token] = userID
}

// User returns the stored profile for userID.
func (p *FakeProvider) User(userID string) domainauth.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.users[userID]
}

// Calls returns how many requests hit path.
func (p *FakeProvider) Calls(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[path]
}

// Cookies returns request cookies for the given tokens; empty tokens are skipped.
func (p *FakeProvider) Cookies(access, refresh string) []*http.Cookie {
	var out []*http.Cookie
	if access != "" {
		out = append(out, &http.Cookie{Name: p.names.Access, Value: access})
	}
	if refresh != "" {
		out = append(out, &http.Cookie{Name: p.names.Refresh, Value: refresh})
	}
	return out
}

func (p *FakeProvider) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.calls[r.URL.Path]++
		down := p.down
		p.mu.Unlock()
		if down {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (p *FakeProvider) handleValidate(w http.ResponseWriter, r *http.Request) {
	_, ok := p.userFor(r, p.names.Access)
	writeEnvelope(w, http.StatusOK, map[string]any{"authenticated": ok})
}

func (p *FakeProvider) handleRefresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(p.names.Refresh)
	if err != nil {
		http.Error(w, "missing refresh token", http.StatusUnauthorized)
		return
	}

	p.mu.Lock()
	userID, ok := p.refresh[c.Value]
	if !ok {
		p.mu.Unlock()
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
		return
	}
	access := p.mintLocked("a", p.access, userID)
	issued := []*http.Cookie{{Name: p.names.Access, Value: access, Path: "/", HttpOnly: true}}
	if p.rotate {
		delete(p.refresh, c.Value)
		next := p.mintLocked("r", p.refresh, userID)
		issued = append(issued, &http.Cookie{Name: p.names.Refresh, Value: next, Path: "/", HttpOnly: true})
	}
	p.mu.Unlock()

	for _, ck := range issued {
		http.SetCookie(w, ck)
	}
	writeEnvelope(w, http.StatusOK, map[string]any{"refreshed": true})
}

func (p *FakeProvider) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	user, ok := p.userFor(r, p.names.Access)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	writeEnvelope(w, http.StatusOK, user)
}

func (p *FakeProvider) handleLogout(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	if c, err := r.Cookie(p.names.Access); err == nil {
		delete(p.access, c.Value)
	}
	if c, err := r.Cookie(p.names.Refresh); err == nil {
		delete(p.refresh, c.Value)
	}
	p.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: p.names.Access, Path: "/", MaxAge: -1})
	http.SetCookie(w, &http.Cookie{Name: p.names.Refresh, Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusOK)
}

func (p *FakeProvider) handleResource(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	reject := p.rejectAll
	p.mu.Unlock()

	user, ok := p.userFor(r, p.names.Access)
	if reject || !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	writeEnvelope(w, http.StatusOK, map[string]any{"owner": user.UserID, "method": r.Method})
}

func (p *FakeProvider) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	user, ok := p.userFor(r, p.names.Access)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	if user.UserID != r.PathValue("id") {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	var partial domainauth.Identity
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	partial.UserID = ""

	p.mu.Lock()
	updated := user.Merge(partial)
	p.users[user.UserID] = updated
	p.mu.Unlock()
	writeEnvelope(w, http.StatusOK, updated)
}

func (p *FakeProvider) userFor(r *http.Request, cookie string) (domainauth.Identity, bool) {
	c, err := r.Cookie(cookie)
	if err != nil {
		return domainauth.Identity{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	userID, ok := p.access[c.Value]
	if !ok {
		return domainauth.Identity{}, false
	}
	user, ok := p.users[userID]
	if !ok {
		user = domainauth.Identity{UserID: userID}
	}
	return user, true
}

func (p *FakeProvider) mintLocked(prefix string, into map[string]string, userID string) string {
	p.seq++
	token := fmt.Sprintf("%s%d", prefix, p.seq)
	into[token] = userID
	return token
}

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}
