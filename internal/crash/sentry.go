package crash

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kuitang/gisportal/internal/obs"
	"github.com/kuitang/gisportal/internal/urlutil"
)

// DefaultFlushTimeout bounds how long Close waits for queued reports.
const DefaultFlushTimeout = 2 * time.Second

// Config is the one-time reporter configuration.
type Config struct {
	// DSN identifies the Sentry project. Empty disables delivery.
	DSN string
	// TunnelPath routes reports through this path on BaseURL instead of the DSN host.
	TunnelPath string
	// BaseURL is the application's own origin.
	BaseURL string
	// TracesSampleRate is the fraction of performance traces kept, within [0, 1].
	TracesSampleRate float64
	Environment      string
	Release          string
}

// BrowserConfig is handed to the browser SDK through the host document.
type BrowserConfig struct {
	DSN              string
	Tunnel           string
	TracesSampleRate float64
}

// SentryReporter reports to Sentry through an explicit hub.
type SentryReporter struct {
	hub *sentry.Hub
	cfg Config
}

// Init builds the process reporter. Call it once at startup and pass the result
// to whatever needs to report.
func Init(cfg Config) (*SentryReporter, error) {
	if cfg.TracesSampleRate < 0 || cfg.TracesSampleRate > 1 {
		return nil, fmt.Errorf("traces sample rate %v outside [0, 1]", cfg.TracesSampleRate)
	}

	opts := sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		EnableTracing:    cfg.TracesSampleRate > 0,
		TracesSampleRate: cfg.TracesSampleRate,
		AttachStacktrace: true,
	}
	if cfg.DSN != "" && cfg.TunnelPath != "" {
		target, err := tunnelURL(cfg.BaseURL, cfg.TunnelPath)
		if err != nil {
			return nil, err
		}
		opts.HTTPTransport = &tunnelTransport{target: target, next: http.DefaultTransport}
	}

	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("create sentry client: %w", err)
	}

	obs.Pkg("crash").Info("crash_reporter_configured",
		"enabled", cfg.DSN != "",
		"tunnel", cfg.TunnelPath,
		"traces_sample_rate", cfg.TracesSampleRate,
		"environment", cfg.Environment,
	)
	return &SentryReporter{hub: sentry.NewHub(client, sentry.NewScope()), cfg: cfg}, nil
}

// Enabled reports whether events are delivered anywhere.
func (r *SentryReporter) Enabled() bool {
	return r.cfg.DSN != ""
}

// Hub returns the reporter's hub. Request handlers should Clone it.
func (r *SentryReporter) Hub() *sentry.Hub {
	return r.hub
}

// BrowserConfig returns the settings the browser SDK is initialized with.
func (r *SentryReporter) BrowserConfig() BrowserConfig {
	return BrowserConfig{
		DSN:              r.cfg.DSN,
		Tunnel:           r.cfg.TunnelPath,
		TracesSampleRate: r.cfg.TracesSampleRate,
	}
}

// Report captures err with the component stack attached.
// A hub on ctx (set by TraceMiddleware) is preferred so the event joins the request trace.
func (r *SentryReporter) Report(ctx context.Context, err error, componentStack []string) {
	hub := r.hub
	if h := sentry.GetHubFromContext(ctx); h != nil {
		hub = h
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		if len(componentStack) > 0 {
			scope.SetTag("component", componentStack[0])
			scope.SetContext("component", sentry.Context{
				"componentStack": strings.Join(componentStack, "\n"),
			})
		}
		hub.CaptureException(err)
	})
	obs.From(ctx).Warn("render_failure_reported", "pkg", "crash", "error", err.Error(), "component_stack", componentStack)
}

// Flush waits up to timeout for queued events to be sent.
func (r *SentryReporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}

// Close flushes with DefaultFlushTimeout.
func (r *SentryReporter) Close() {
	if !r.Flush(DefaultFlushTimeout) {
		obs.Pkg("crash").Warn("crash_flush_timeout")
	}
}

func tunnelURL(baseURL, tunnelPath string) (*url.URL, error) {
	target, err := url.Parse(urlutil.BuildAbsolute(baseURL, tunnelPath))
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("tunnel needs an absolute base URL, got %q", baseURL)
	}
	return target, nil
}

// tunnelTransport sends every envelope to the application's own tunnel endpoint.
type tunnelTransport struct {
	target *url.URL
	next   http.RoundTripper
}

func (t *tunnelTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	u := *t.target
	out.URL = &u
	out.Host = u.Host
	return t.next.RoundTrip(out)
}
