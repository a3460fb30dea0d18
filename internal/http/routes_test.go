package httpx

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moneybook/websession"
	"github.com/moneybook/websession/internal/adapters/identity"
	domainauth "github.com/moneybook/websession/internal/domain/auth"
	"github.com/moneybook/websession/internal/observability/metrics"
	"github.com/moneybook/websession/internal/service"
	"github.com/moneybook/websession/internal/testutil"
)

func newTestRenderer(t *testing.T) *TemplateRenderer {
	t.Helper()
	tfs, err := fs.Sub(websession.TemplateFS, "web/templates")
	require.NoError(t, err)
	r, err := NewTemplateRenderer(TemplateRendererConfig{TemplateFS: tfs})
	require.NoError(t, err)
	return r
}

type routerFixture struct {
	fake    *testutil.FakeProvider
	handler http.Handler
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	fake := testutil.NewFakeProvider(t)
	provider, err := identity.NewClient(identity.Config{BaseURL: fake.URL()})
	require.NoError(t, err)
	validator, err := service.NewSessionValidator(service.SessionValidatorOptions{Provider: provider})
	require.NoError(t, err)
	static, err := fs.Sub(websession.StaticFS, "web/static")
	require.NoError(t, err)

	h, err := NewRouter(RouterServices{
		Validator:    validator,
		Provider:     provider,
		Renderer:     newTestRenderer(t),
		StaticFS:     static,
		Metrics:      metrics.NewRecorder(metrics.Options{}),
		CookieDomain: "moneybook.test",
	})
	require.NoError(t, err)
	return &routerFixture{fake: fake, handler: h}
}

func (f *routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestNewRouter_Validation(t *testing.T) {
	_, err := NewRouter(RouterServices{})
	require.Error(t, err)
}

func TestRouter_PublicAndInfraRoutes(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sign in")

	rec = f.do(httptest.NewRequest(http.MethodHead, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/static/css/app.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "websession_edge_decisions_total")
}

func TestRouter_ProtectedPageWithoutCookiesRedirectsAtEdge(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/home", nil))
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, 0, f.fake.Calls(testutil.FakeValidatePath))
}

func TestRouter_ProtectedPageRendersHydration(t *testing.T) {
	f := newRouterFixture(t)
	access, refresh := f.fake.Login(domainauth.Identity{UserID: "u1", FirstName: "Ada", LastName: "Lovelace"})

	req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
	for _, c := range f.fake.Cookies(access, refresh) {
		req.AddCookie(c)
	}
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Ada Lovelace")
	assert.Contains(t, body, `"userId":"u1"`)
	assert.Equal(t, 1, f.fake.Calls(testutil.FakeValidatePath))
	assert.Equal(t, 0, f.fake.Calls(testutil.FakeRefreshPath))
}

func TestRouter_ExpiredAccessRedirectsWithoutRefresh(t *testing.T) {
	f := newRouterFixture(t)
	access, refresh := f.fake.Login(domainauth.Identity{UserID: "u1"})
	f.fake.ExpireAccess(access)

	req := httptest.NewRequest(http.MethodGet, "/home", nil)
	for _, c := range f.fake.Cookies(access, refresh) {
		req.AddCookie(c)
	}
	rec := f.do(req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, 0, f.fake.Calls(testutil.FakeRefreshPath))
}

func TestRouter_SessionWithInvalidAccessDoesNotRefresh(t *testing.T) {
	f := newRouterFixture(t)
	_, refresh := f.fake.Login(domainauth.Identity{UserID: "u1", FirstName: "Ada"})

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.Header.Set("Accept", "application/json")
	// The edge guard only admits requests carrying the access cookie name.
	req.AddCookie(&http.Cookie{Name: domainauth.DefaultAccessCookie, Value: "gone"})
	req.AddCookie(&http.Cookie{Name: domainauth.DefaultRefreshCookie, Value: refresh})
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload SessionPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	// An access cookie that is present but invalid is not refreshed.
	assert.False(t, payload.Authenticated)
	assert.Equal(t, "access credential invalid", payload.Reason)
	assert.Equal(t, 0, f.fake.Calls(testutil.FakeRefreshPath))
}

func TestPageHandlers_SessionRefreshOnly(t *testing.T) {
	f := newRouterFixture(t)
	_, refresh := f.fake.Login(domainauth.Identity{UserID: "u1", FirstName: "Ada"})
	provider, err := identity.NewClient(identity.Config{BaseURL: f.fake.URL()})
	require.NoError(t, err)
	validator, err := service.NewSessionValidator(service.SessionValidatorOptions{Provider: provider})
	require.NoError(t, err)
	pages := &PageHandlers{Validator: validator, Provider: provider, CookieDomain: "moneybook.test"}

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.AddCookie(&http.Cookie{Name: domainauth.DefaultRefreshCookie, Value: refresh})
	rec := httptest.NewRecorder()
	pages.Session(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	var payload SessionPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.True(t, payload.Authenticated)
	require.NotNil(t, payload.Identity)
	assert.Equal(t, "u1", payload.Identity.UserID)

	var forwarded []string
	for _, c := range rec.Result().Cookies() {
		forwarded = append(forwarded, c.Name)
		assert.Equal(t, "moneybook.test", c.Domain)
	}
	assert.Contains(t, forwarded, domainauth.DefaultAccessCookie)
	assert.Equal(t, 1, f.fake.Calls(testutil.FakeRefreshPath))
}

func TestRouter_LogoutClearsCookies(t *testing.T) {
	f := newRouterFixture(t)
	access, refresh := f.fake.Login(domainauth.Identity{UserID: "u1"})

	req := httptest.NewRequest(http.MethodPost, "/logout", strings.NewReader(""))
	for _, c := range f.fake.Cookies(access, refresh) {
		req.AddCookie(c)
	}
	rec := f.do(req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, 1, f.fake.Calls(testutil.FakeLogoutPath))

	cleared := map[string]int{}
	for _, c := range rec.Result().Cookies() {
		cleared[c.Name] = c.MaxAge
	}
	assert.Equal(t, map[string]int{
		domainauth.DefaultAccessCookie:        -1,
		domainauth.DefaultRefreshCookie:       -1,
		domainauth.DefaultLegacySessionCookie: -1,
	}, cleared)

	// The upstream session is gone as well.
	req = httptest.NewRequest(http.MethodGet, "/home", nil)
	for _, c := range f.fake.Cookies(access, refresh) {
		req.AddCookie(c)
	}
	assert.Equal(t, http.StatusSeeOther, f.do(req).Code)
}

func TestRouter_LogoutJSON(t *testing.T) {
	f := newRouterFixture(t)
	access, refresh := f.fake.Login(domainauth.Identity{UserID: "u1"})

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.Header.Set("Accept", "application/json")
	for _, c := range f.fake.Cookies(access, refresh) {
		req.AddCookie(c)
	}
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/", body["redirect_to"])
}

func withCookies(req *http.Request, cookies []*http.Cookie) *http.Request {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func TestRouter_EntryRedirectsAuthenticatedVisitorHome(t *testing.T) {
	f := newRouterFixture(t)
	access, refresh := f.fake.Login(domainauth.Identity{UserID: "u1", FirstName: "Ada"})

	rec := f.do(withCookies(httptest.NewRequest(http.MethodGet, "/", nil), f.fake.Cookies(access, refresh)))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, domainauth.HomeRoute, rec.Header().Get("Location"))
	assert.Equal(t, 1, f.fake.Calls(testutil.FakeValidatePath))
	assert.Equal(t, 0, f.fake.Calls(testutil.FakeRefreshPath))
}

func TestRouter_EntryRefreshOnlyForwardsIssuedCookies(t *testing.T) {
	f := newRouterFixture(t)
	_, refresh := f.fake.Login(domainauth.Identity{UserID: "u1"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: domainauth.DefaultRefreshCookie, Value: refresh})
	rec := f.do(req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, domainauth.HomeRoute, rec.Header().Get("Location"))
	var access *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == domainauth.DefaultAccessCookie {
			access = c
		}
	}
	require.NotNil(t, access)
	assert.Equal(t, "moneybook.test", access.Domain)
	assert.Equal(t, 1, f.fake.Calls(testutil.FakeRefreshPath))
}

func TestRouter_EntryRendersSignInUnlessAuthenticated(t *testing.T) {
	tests := []struct {
		name      string
		cookies   []*http.Cookie
		validates int
	}{
		{
			name:      "no identity cookies",
			cookies:   []*http.Cookie{{Name: "theme", Value: "dark"}},
			validates: 0,
		},
		{
			name:      "invalid access cookie",
			cookies:   []*http.Cookie{{Name: domainauth.DefaultAccessCookie, Value: "gone"}},
			validates: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture(t)

			rec := f.do(withCookies(httptest.NewRequest(http.MethodGet, "/", nil), tt.cookies))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), "Sign in")
			assert.Equal(t, tt.validates, f.fake.Calls(testutil.FakeValidatePath))
		})
	}
}

func TestRouter_OnboardingRequiresSession(t *testing.T) {
	t.Run("expired access cookie", func(t *testing.T) {
		f := newRouterFixture(t)
		access, refresh := f.fake.Login(domainauth.Identity{UserID: "u1"})
		f.fake.ExpireAccess(access)

		rec := f.do(withCookies(
			httptest.NewRequest(http.MethodGet, domainauth.OnboardingRoute, nil),
			f.fake.Cookies(access, refresh),
		))

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, domainauth.EntryRoute, rec.Header().Get("Location"))
		assert.Equal(t, 1, f.fake.Calls(testutil.FakeValidatePath))
		assert.Equal(t, 0, f.fake.Calls(testutil.FakeRefreshPath))
	})

	t.Run("valid session", func(t *testing.T) {
		f := newRouterFixture(t)
		access, refresh := f.fake.Login(domainauth.Identity{UserID: "u1", FirstName: "Ada"})

		rec := f.do(withCookies(
			httptest.NewRequest(http.MethodGet, domainauth.OnboardingRoute, nil),
			f.fake.Cookies(access, refresh),
		))

		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "Welcome")
		assert.Contains(t, body, `"userId":"u1"`)
	})
}

func TestRouter_ProfileEditIsProtectedAndHiddenFromNav(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/profile/edit", nil))
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)

	access, refresh := f.fake.Login(domainauth.Identity{UserID: "u1", FirstName: "Ada"})
	rec = f.do(withCookies(httptest.NewRequest(http.MethodGet, "/profile/edit", nil), f.fake.Cookies(access, refresh)))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Edit profile")
	assert.NotContains(t, body, `href="/profile/edit"`)
	assert.Contains(t, body, `href="/profile"`)
}
