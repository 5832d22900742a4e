package web_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/gisportal/internal/auth"
	"github.com/kuitang/gisportal/internal/crash"
	"github.com/kuitang/gisportal/internal/ratelimit"
	"github.com/kuitang/gisportal/internal/testdb"
	"github.com/kuitang/gisportal/internal/ui"
	"github.com/kuitang/gisportal/internal/web"
)

type recordingReporter struct {
	mu       sync.Mutex
	calls    []string
	panicked []bool
	done     chan struct{}
}

func (r *recordingReporter) Report(_ context.Context, err error, stack []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, err.Error()+" @ "+strings.Join(stack, ">"))
	r.panicked = append(r.panicked, ui.AsRenderError(err).Panicked())
	if len(r.calls) == 1 {
		close(r.done)
	}
}

type testEnv struct {
	server   *httptest.Server
	client   *http.Client
	reporter *recordingReporter
}

func setupTestEnv(t *testing.T, limiter *ratelimit.RateLimiter) *testEnv {
	t.Helper()

	store := testdb.New(t)

	users := auth.NewUserService(store, auth.PlaintextHasher{})
	_, err := users.EnsureUser(context.Background(), "admin@example.com", "admin")
	require.NoError(t, err)
	sessions := auth.NewSessionService(store, time.Hour, false)

	fsys, err := web.TemplatesFS("")
	require.NoError(t, err)
	renderer, err := web.NewRenderer(fsys)
	require.NoError(t, err)
	doc, err := web.LoadHostDocument(renderer, web.HostData{
		Title:      web.SiteTitle,
		Sentry:     crash.BrowserConfig{Tunnel: "/sentry-proxy/", TracesSampleRate: 0.5},
		VitalsPath: web.VitalsPath,
	})
	require.NoError(t, err)

	reporter := &recordingReporter{done: make(chan struct{})}
	mux := http.NewServeMux()
	web.NewWebHandler(web.Deps{
		Renderer:         renderer,
		Root:             web.NewRoot(doc, reporter),
		Users:            users,
		Sessions:         sessions,
		Auth:             auth.NewMiddleware(sessions, users),
		Limiter:          limiter,
		BaseURL:          "http://localhost:8080",
		Tunnel:           crash.NewTunnel(crash.TunnelConfig{}),
		TunnelPath:       "/sentry-proxy/",
		EnableCrashRoute: true,
	}).RegisterRoutes(mux)

	server := httptest.NewServer(web.Chain(mux, web.RecoverPanic))
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testEnv{server: server, client: client, reporter: reporter}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Get(e.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.PostForm(e.server.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHome_AnonymousShowsBannerAndLogin(t *testing.T) {
	env := setupTestEnv(t, nil)
	resp, body := env.get(t, "/")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `<div id="app"`)
	require.Contains(t, body, `data-sentry-tunnel="/sentry-proxy/"`)
	require.Contains(t, body, `data-sentry-traces-sample-rate="0.5"`)
	require.Contains(t, body, `<div class="landing-page-banner-text-header">Cloud Native GIS</div>`)
	require.Contains(t, body, `<strong>vector and raster layers</strong>`)
	require.Contains(t, body, `href="/login/">LOGIN</a>`)
}

func TestLoginPage_Contract(t *testing.T) {
	env := setupTestEnv(t, nil)

	resp, _ := env.get(t, "/login")
	require.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	require.Equal(t, "/login/", resp.Header.Get("Location"))

	resp, body := env.get(t, "/login/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "<h1>Login</h1>")
	require.Contains(t, body, `placeholder="E-mail address"`)
	require.Contains(t, body, `placeholder="Password"`)
	require.Contains(t, body, `<button type="submit">LOGIN</button>`)
}

func TestLogin_WrongSecretIsRejected(t *testing.T) {
	env := setupTestEnv(t, nil)
	resp, body := env.postForm(t, "/login/", url.Values{"email": {"admin@example.com"}, "password": {"wrong"}})

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, body, "Invalid e-mail address or password")
	require.Contains(t, body, `value="admin@example.com"`)
	require.Empty(t, resp.Cookies())
}

func TestLogin_MissingFields(t *testing.T) {
	env := setupTestEnv(t, nil)
	resp, _ := env.postForm(t, "/login/", url.Values{"email": {"admin@example.com"}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogin_SuccessThenLogout(t *testing.T) {
	env := setupTestEnv(t, nil)

	resp, _ := env.postForm(t, "/login/", url.Values{"email": {"admin@example.com"}, "password": {"admin"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))

	_, body := env.get(t, "/")
	require.Contains(t, body, `data-testid="signed-in"`)
	require.Contains(t, body, "Signed in as admin@example.com")
	require.NotContains(t, body, ">LOGIN</a>")

	resp, _ = env.get(t, "/login/")
	require.Equal(t, http.StatusFound, resp.StatusCode)

	resp, _ = env.postForm(t, "/logout/", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body = env.get(t, "/")
	require.Contains(t, body, ">LOGIN</a>")
}

func TestLogin_ReturnToStaysLocal(t *testing.T) {
	env := setupTestEnv(t, nil)
	resp, _ := env.postForm(t, "/login/", url.Values{
		"email": {"admin@example.com"}, "password": {"admin"}, "return_to": {"//evil.example.com/x"},
	})
	require.Equal(t, "/", resp.Header.Get("Location"))
}

func TestAccount_SignInRoundTrip(t *testing.T) {
	env := setupTestEnv(t, nil)

	resp, _ := env.get(t, "/account/")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/login/?return_to=%2Faccount%2F", resp.Header.Get("Location"))

	_, body := env.get(t, resp.Header.Get("Location"))
	require.Contains(t, body, `name="return_to" value="/account/"`)

	resp, _ = env.postForm(t, "/login/", url.Values{
		"email": {"admin@example.com"}, "password": {"admin"}, "return_to": {"/account/"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/account/", resp.Header.Get("Location"))

	resp, body = env.get(t, "/account/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `<dd class="account-email">admin@example.com</dd>`)
	require.Contains(t, body, `data-testid="signed-in"`)
}

func TestLogin_CrossOriginPostRejected(t *testing.T) {
	env := setupTestEnv(t, nil)

	form := url.Values{"email": {"admin@example.com"}, "password": {"admin"}}
	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/login/", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", "https://evil.example.com")

	resp, err := env.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Empty(t, resp.Cookies())

	req, err = http.NewRequest(http.MethodPost, env.server.URL+"/login/", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", env.server.URL)
	resp, err = env.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestLogin_RateLimited(t *testing.T) {
	limiter := ratelimit.NewRateLimiter(ratelimit.Config{RPS: 0.001, Burst: 1, CleanupInterval: time.Hour})
	t.Cleanup(limiter.Stop)
	env := setupTestEnv(t, limiter)

	resp, _ := env.postForm(t, "/login/", url.Values{"email": {"admin@example.com"}, "password": {"wrong"}})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = env.postForm(t, "/login/", url.Values{"email": {"admin@example.com"}, "password": {"wrong"}})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestCrashPage_RendersFallbackAndReports(t *testing.T) {
	env := setupTestEnv(t, nil)
	resp, body := env.get(t, "/debug/crash/")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `<h1>Something went wrong!</h1><p>deliberate render failure</p></div>`)

	select {
	case <-env.reporter.done:
	case <-time.After(2 * time.Second):
		t.Fatal("render failure was not reported")
	}
	env.reporter.mu.Lock()
	defer env.reporter.mu.Unlock()
	require.Equal(t, []string{"deliberate render failure @ BrokenWidget>CrashPage>App"}, env.reporter.calls)
	require.Equal(t, []bool{true}, env.reporter.panicked, "the widget fails by panicking")
}

func TestEachPageViewGetsFreshBoundary(t *testing.T) {
	env := setupTestEnv(t, nil)
	_, body := env.get(t, "/debug/crash/")
	require.Contains(t, body, "Something went wrong!")

	_, body = env.get(t, "/")
	require.NotContains(t, body, "Something went wrong!")
	require.Contains(t, body, "landing-page-banner-text-header")
}

func TestAboutPage(t *testing.T) {
	env := setupTestEnv(t, nil)
	resp, body := env.get(t, "/about/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `<h2 id="about">About</h2>`)
	require.Contains(t, body, "<li>Layers are read directly from cloud storage.</li>")
}

func TestAuxiliaryRoutes(t *testing.T) {
	env := setupTestEnv(t, nil)

	resp, body := env.get(t, "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"ok"}`, body)

	r, err := env.client.Post(env.server.URL+"/vitals/", "application/json", strings.NewReader(`{"name":"TTFB","value":12}`))
	require.NoError(t, err)
	r.Body.Close()
	require.Equal(t, http.StatusNoContent, r.StatusCode)

	r, err = env.client.Post(env.server.URL+"/sentry-proxy/", "application/x-sentry-envelope", strings.NewReader("{}\n{}"))
	require.NoError(t, err)
	r.Body.Close()
	require.Equal(t, http.StatusBadRequest, r.StatusCode)

	resp, _ = env.get(t, "/nope")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLoadHostDocument_RequiresMountPoint(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"index.html":      {Data: []byte(`<html><body><div id="root"></div></body></html>`)},
		"pages/home.html": {Data: []byte(`<p>home</p>`)},
	}
	renderer, err := web.NewRenderer(fsys)
	require.NoError(t, err)

	_, err = web.LoadHostDocument(renderer, web.HostData{})
	require.True(t, errors.Is(err, ui.ErrMountPointMissing))
}

func TestRecoverPanic(t *testing.T) {
	t.Parallel()
	h := web.RecoverPanic(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler bug")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
