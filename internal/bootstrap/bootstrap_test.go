package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moneybook/websession/config"
	"github.com/moneybook/websession/internal/client"
	domainauth "github.com/moneybook/websession/internal/domain/auth"
	apperrors "github.com/moneybook/websession/internal/errors"
	"github.com/moneybook/websession/internal/testutil"
)

func testConfig(t *testing.T, upstream string) *config.AppConfig {
	t.Helper()
	cfg := &config.AppConfig{
		Upstream: config.UpstreamConfig{BaseURL: upstream},
		HTTP:     config.HTTPConfig{Addr: "127.0.0.1:0"},
		Client:   config.ClientConfig{CoalesceRefresh: true, Profile: "test"},
		Observability: config.ObservabilityConfig{
			Metrics: config.ObservabilityMetricsConfig{Enabled: true},
		},
	}
	cfg.Sanitize()
	return cfg
}

func TestInitLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := InitLogger(slog.LevelWarn)
	assert.Same(t, logger, slog.Default())
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelError))
}

func TestLoadConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("UPSTREAM_BASE_URL", "https://api.moneybook.test/v1/")
	t.Setenv("CLIENT_RETRY_BUDGET", "0")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://api.moneybook.test/v1", cfg.Upstream.BaseURL)
	assert.Equal(t, 1, cfg.Client.RetryBudget)
}

func TestNewServices(t *testing.T) {
	_, err := NewServices(ServiceDeps{})
	require.Error(t, err)

	cfg := testConfig(t, "http://localhost:1")
	svcs, err := NewServices(ServiceDeps{Config: cfg})
	require.NoError(t, err)
	assert.NotNil(t, svcs.Validator)
	assert.NotNil(t, svcs.Provider)
	assert.NotNil(t, svcs.Metrics)

	cfg.Observability.Metrics.Enabled = false
	svcs, err = NewServices(ServiceDeps{Config: cfg})
	require.NoError(t, err)
	assert.Nil(t, svcs.Metrics)

	cfg.Upstream.BaseURL = "ftp://nope"
	_, err = NewServices(ServiceDeps{Config: cfg})
	require.Error(t, err)
}

func TestServe_ServesUntilCanceled(t *testing.T) {
	fake := testutil.NewFakeProvider(t)
	cfg := testConfig(t, fake.URL())
	svcs, err := NewServices(ServiceDeps{Config: cfg})
	require.NoError(t, err)
	server, err := NewHTTPServer(HTTPServerConfig{Config: cfg, Services: svcs})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := fmt.Sprintf("http://%s", ln.Addr().String())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ServeOptions{Server: server, Listener: ln, ShutdownTimeout: time.Second}) }()

	noRedirect := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = noRedirect.Get(base + "/healthz")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.JSONEq(t, `{"status":"ok","upstream":"reachable"}`, string(body))

	resp, err = noRedirect.Get(base + "/home")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServe_Validation(t *testing.T) {
	require.Error(t, Serve(context.Background(), ServeOptions{}))
}

func TestShutdownHTTPServer_NilServer(t *testing.T) {
	require.NoError(t, ShutdownHTTPServer(ShutdownConfig{}))
}

func TestConnectRedis(t *testing.T) {
	mr, _ := testutil.SetupMiniRedis(t)
	client, err := ConnectRedis(context.Background(), RedisOptions{Config: config.RedisConfig{URI: mr.Addr()}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	client, err = ConnectRedis(context.Background(), RedisOptions{Config: config.RedisConfig{URI: "redis://" + mr.Addr() + "/2"}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = ConnectRedis(context.Background(), RedisOptions{Config: config.RedisConfig{UseSentinel: true}})
	require.Error(t, err)
	_, err = ConnectRedis(context.Background(), RedisOptions{Config: config.RedisConfig{UseCluster: true}})
	require.Error(t, err)
}

func TestClientStack_SessionLifecycle(t *testing.T) {
	fake := testutil.NewFakeProvider(t)
	fake.SetRotate(true)
	_, rdb := testutil.SetupMiniRedis(t)
	cfg := testConfig(t, fake.URL())
	ctx := context.Background()

	stack, err := NewClientStack(ctx, ClientStackOptions{Config: cfg, Redis: rdb, StartPath: "/home"})
	require.NoError(t, err)
	t.Cleanup(stack.Close)

	user := domainauth.Identity{UserID: "u1", FirstName: "Ada"}
	access, refresh := fake.Login(user)
	stack.Jar.Set(fake.Cookies(access, refresh))
	fake.ExpireAccess(access)

	require.NoError(t, stack.Visit(ctx, "/friends"))
	st := stack.Store.State()
	require.NotNil(t, st.Identity)
	assert.Equal(t, "u1", st.Identity.UserID)
	assert.Equal(t, 1, fake.Calls(testutil.FakeRefreshPath))

	// A second stack for the same profile resumes from the persisted jar.
	resumed, err := NewClientStack(ctx, ClientStackOptions{Config: cfg, Redis: rdb})
	require.NoError(t, err)
	t.Cleanup(resumed.Close)
	id, err := resumed.API.FetchIdentity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)

	require.NoError(t, stack.Logout(ctx))
	assert.Nil(t, stack.Store.Identity())
	assert.Equal(t, domainauth.EntryRoute, stack.Navigator.Path())
}

func TestClientStack_RefreshFailureNavigatesToEntry(t *testing.T) {
	fake := testutil.NewFakeProvider(t)
	cfg := testConfig(t, fake.URL())
	cfg.Client.RetryBudget = 1
	ctx := context.Background()

	stack, err := NewClientStack(ctx, ClientStackOptions{Config: cfg})
	require.NoError(t, err)
	t.Cleanup(stack.Close)
	stack.Jar.Set(fake.Cookies("stale", "revoked"))

	require.NoError(t, stack.Visit(ctx, "/transactions"))
	assert.Equal(t, domainauth.EntryRoute, stack.Navigator.Path())
	assert.Equal(t, []string{"/transactions", "/"}, stack.Navigator.Visits())
}

func newWebServer(t *testing.T, cfg *config.AppConfig) *httptest.Server {
	t.Helper()
	svcs, err := NewServices(ServiceDeps{Config: cfg})
	require.NoError(t, err)
	server, err := NewHTTPServer(HTTPServerConfig{Config: cfg, Services: svcs})
	require.NoError(t, err)
	web := httptest.NewServer(server.Handler)
	t.Cleanup(web.Close)
	return web
}

func TestClientStack_VisitHydratesFromWebServer(t *testing.T) {
	fake := testutil.NewFakeProvider(t)
	cfg := testConfig(t, fake.URL())
	cfg.Client.WebBaseURL = newWebServer(t, cfg).URL
	ctx := context.Background()

	stack, err := NewClientStack(ctx, ClientStackOptions{Config: cfg})
	require.NoError(t, err)
	t.Cleanup(stack.Close)
	require.NotNil(t, stack.Session)

	access, refresh := fake.Login(domainauth.Identity{UserID: "u1", FirstName: "Ada"})
	stack.Jar.Set(fake.Cookies(access, refresh))

	require.NoError(t, stack.Visit(ctx, "/home"))
	st := stack.Store.State()
	assert.Equal(t, client.StatusPresent, st.Status)
	require.NotNil(t, st.Identity)
	assert.Equal(t, "Ada", st.Identity.FirstName)
	assert.Equal(t, 0, st.Attempts)
	assert.Equal(t, []string{"/home"}, stack.Navigator.Visits())

	// The only whoami call is the web server's; the client store never fetched.
	assert.Equal(t, 1, fake.Calls(testutil.FakeValidatePath))
	assert.Equal(t, 1, fake.Calls(testutil.FakeWhoAmIPath))
}

func TestClientStack_HydrateWithoutSessionFallsBackToPolicy(t *testing.T) {
	fake := testutil.NewFakeProvider(t)
	cfg := testConfig(t, fake.URL())
	cfg.Client.RetryBudget = 1
	cfg.Client.WebBaseURL = newWebServer(t, cfg).URL
	ctx := context.Background()

	stack, err := NewClientStack(ctx, ClientStackOptions{Config: cfg})
	require.NoError(t, err)
	t.Cleanup(stack.Close)

	hydrated, err := stack.Hydrate(ctx)
	require.NoError(t, err)
	assert.False(t, hydrated)

	require.NoError(t, stack.Visit(ctx, "/transactions"))
	assert.Equal(t, []string{"/transactions", "/"}, stack.Navigator.Visits())
	assert.Equal(t, client.StatusAbsent, stack.Store.State().Status)
}

func TestClientStack_HydrateRequiresWebBaseURL(t *testing.T) {
	fake := testutil.NewFakeProvider(t)
	stack, err := NewClientStack(context.Background(), ClientStackOptions{Config: testConfig(t, fake.URL())})
	require.NoError(t, err)
	t.Cleanup(stack.Close)

	_, err = stack.Hydrate(context.Background())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

func TestClientStack_LogoutSignsOutWithoutRefetching(t *testing.T) {
	fake := testutil.NewFakeProvider(t)
	cfg := testConfig(t, fake.URL())
	ctx := context.Background()

	stack, err := NewClientStack(ctx, ClientStackOptions{Config: cfg})
	require.NoError(t, err)
	t.Cleanup(stack.Close)

	access, refresh := fake.Login(domainauth.Identity{UserID: "u1"})
	stack.Jar.Set(fake.Cookies(access, refresh))
	require.NoError(t, stack.Visit(ctx, "/friends"))
	require.Equal(t, client.StatusPresent, stack.Store.State().Status)
	require.Equal(t, 1, fake.Calls(testutil.FakeWhoAmIPath))

	require.NoError(t, stack.Logout(ctx))

	st := stack.Store.State()
	assert.Equal(t, client.StatusSignedOut, st.Status)
	assert.Equal(t, 0, st.Attempts)
	assert.Equal(t, []string{"/friends", "/"}, stack.Navigator.Visits())
	assert.Equal(t, 1, fake.Calls(testutil.FakeWhoAmIPath))
	assert.Equal(t, 0, fake.Calls(testutil.FakeRefreshPath))
	assert.Equal(t, 1, fake.Calls(testutil.FakeLogoutPath))

	// Protected routes lead back to the entry route without calling the provider.
	require.NoError(t, stack.Visit(ctx, "/home"))
	assert.Equal(t, domainauth.EntryRoute, stack.Navigator.Path())
	assert.Equal(t, 1, fake.Calls(testutil.FakeWhoAmIPath))
}

func TestClientStack_UpdateProfileMergesIntoStore(t *testing.T) {
	fake := testutil.NewFakeProvider(t)
	cfg := testConfig(t, fake.URL())
	ctx := context.Background()

	stack, err := NewClientStack(ctx, ClientStackOptions{Config: cfg})
	require.NoError(t, err)
	t.Cleanup(stack.Close)

	access, refresh := fake.Login(domainauth.Identity{UserID: "u1", FirstName: "Ada"})
	stack.Jar.Set(fake.Cookies(access, refresh))

	updated, err := stack.UpdateProfile(ctx, domainauth.Identity{LastName: "Lovelace"})
	require.NoError(t, err)
	want := domainauth.Identity{UserID: "u1", FirstName: "Ada", LastName: "Lovelace"}
	assert.Equal(t, want, updated)
	assert.Equal(t, want, *stack.Store.Identity())
	assert.Equal(t, want, fake.User("u1"))

	// A second edit uses the stored identity without another whoami call.
	_, err = stack.UpdateProfile(ctx, domainauth.Identity{Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 1, fake.Calls(testutil.FakeWhoAmIPath))
	assert.Equal(t, "ada@example.com", stack.Store.Identity().Email)
}
