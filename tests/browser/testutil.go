// Package browser provides shared utilities for Playwright browser tests.
// Every test file gets a fully wired portal via SetupBrowserTestEnv(t).
package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kuitang/gisportal/internal/auth"
	"github.com/kuitang/gisportal/internal/crash"
	"github.com/kuitang/gisportal/internal/obs"
	"github.com/kuitang/gisportal/internal/ratelimit"
	"github.com/kuitang/gisportal/internal/sessioncapture"
	"github.com/kuitang/gisportal/internal/testdb"
	"github.com/kuitang/gisportal/internal/ui"
	"github.com/kuitang/gisportal/internal/web"
)

// Never introduce a larger timeout value anywhere in tests/browser.
const browserMaxTimeout = 5 * time.Second

// reportLog records crash reports made by page boundaries.
type reportLog struct {
	mu      sync.Mutex
	reports []string
}

func (l *reportLog) Report(_ context.Context, err error, stack []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports = append(l.reports, err.Error()+" @ "+strings.Join(stack, ">"))
}

func (l *reportLog) Reports() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.reports...)
}

// BrowserTestEnv is a running portal plus a lazily launched browser.
type BrowserTestEnv struct {
	Server   *httptest.Server
	BaseURL  string
	Users    *auth.UserService
	Sessions *auth.SessionService
	Reports  *reportLog

	browser   *sessioncapture.Browser
	browserMu sync.Mutex
}

// SetupBrowserTestEnv starts a portal with the admin identity seeded and the crash route enabled.
func SetupBrowserTestEnv(t *testing.T) *BrowserTestEnv {
	t.Helper()

	store := testdb.New(t)
	users := auth.NewUserService(store, auth.PlaintextHasher{})
	creds := sessioncapture.TestCredentials
	if _, err := users.EnsureUser(context.Background(), creds.Email, creds.Password); err != nil {
		t.Fatalf("Failed to seed admin: %v", err)
	}
	sessions := auth.NewSessionService(store, time.Hour, false)

	fsys, err := web.TemplatesFS("")
	if err != nil {
		t.Fatalf("Failed to load templates: %v", err)
	}
	renderer, err := web.NewRenderer(fsys)
	if err != nil {
		t.Fatalf("Failed to parse templates: %v", err)
	}
	doc, err := web.LoadHostDocument(renderer, web.HostData{
		Title:      web.SiteTitle,
		Sentry:     crash.BrowserConfig{Tunnel: "/sentry-proxy/"},
		VitalsPath: web.VitalsPath,
	})
	if err != nil {
		t.Fatalf("Failed to load host document: %v", err)
	}

	limiter := ratelimit.NewRateLimiter(ratelimit.Config{RPS: 1000, Burst: 1000, CleanupInterval: time.Hour})
	t.Cleanup(limiter.Stop)

	reports := &reportLog{}
	mux := http.NewServeMux()
	web.NewWebHandler(web.Deps{
		Renderer:         renderer,
		Root:             web.NewRoot(doc, reports),
		Users:            users,
		Sessions:         sessions,
		Auth:             auth.NewMiddleware(sessions, users),
		Limiter:          limiter,
		EnableCrashRoute: true,
	}).RegisterRoutes(mux)

	server := httptest.NewServer(web.Chain(mux, obs.RequestContextMiddleware, web.RecoverPanic))
	t.Cleanup(server.Close)

	env := &BrowserTestEnv{
		Server:   server,
		BaseURL:  server.URL,
		Users:    users,
		Sessions: sessions,
		Reports:  reports,
	}
	t.Cleanup(env.closeBrowser)
	return env
}

// InitBrowser launches headless Chromium, skipping the test when Playwright is unavailable.
func (env *BrowserTestEnv) InitBrowser(t *testing.T) {
	t.Helper()

	env.browserMu.Lock()
	defer env.browserMu.Unlock()
	if env.browser != nil {
		return
	}
	browser, err := sessioncapture.LaunchBrowser()
	if err != nil {
		t.Skip("Playwright not available:", err)
	}
	env.browser = browser
}

func (env *BrowserTestEnv) closeBrowser() {
	env.browserMu.Lock()
	defer env.browserMu.Unlock()
	if env.browser != nil {
		_ = env.browser.Close()
		env.browser = nil
	}
}

// NewPage opens a page in a fresh browser context, optionally starting from a saved session.
func (env *BrowserTestEnv) NewPage(t *testing.T, storageStatePath string) *sessioncapture.PlaywrightPage {
	t.Helper()

	page, err := env.browser.NewPage(env.BaseURL, storageStatePath)
	if err != nil {
		t.Fatalf("could not create page: %v", err)
	}
	t.Cleanup(func() { _ = page.Close() })
	return page
}

// fastCapture keeps every wait inside browserMaxTimeout.
func fastCapture(creds sessioncapture.Credentials) sessioncapture.CaptureConfig {
	return sessioncapture.CaptureConfig{
		Credentials:    creds,
		TriggerTimeout: sessioncapture.DefaultTriggerTimeout,
		StepTimeout:    browserMaxTimeout,
	}
}

// boundaryFallback is the headline every degraded page shows.
const boundaryFallback = ui.FallbackHeadline
