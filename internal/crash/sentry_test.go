package crash

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/require"
)

func TestInit_RejectsSampleRateOutOfRange(t *testing.T) {
	t.Parallel()
	for _, rate := range []float64{-0.1, 1.01} {
		_, err := Init(Config{TracesSampleRate: rate})
		require.Error(t, err)
	}
}

func TestInit_WithoutDSNDropsReports(t *testing.T) {
	t.Parallel()
	r, err := Init(Config{TracesSampleRate: 0.5})
	require.NoError(t, err)
	require.False(t, r.Enabled())

	r.Report(context.Background(), errors.New("boom"), []string{"Map"})
	require.True(t, r.Flush(time.Second))
}

func TestInit_TunnelNeedsAbsoluteBaseURL(t *testing.T) {
	t.Parallel()
	_, err := Init(Config{DSN: "https://k@o1.ingest.sentry.io/4505", TunnelPath: "/sentry-proxy/", BaseURL: "localhost"})
	require.Error(t, err)
}

func TestBrowserConfig(t *testing.T) {
	t.Parallel()
	r, err := Init(Config{DSN: "https://k@o1.ingest.sentry.io/4505", TunnelPath: "/sentry-proxy/", BaseURL: "http://localhost:8080", TracesSampleRate: 0.5})
	require.NoError(t, err)
	require.Equal(t, BrowserConfig{
		DSN:              "https://k@o1.ingest.sentry.io/4505",
		Tunnel:           "/sentry-proxy/",
		TracesSampleRate: 0.5,
	}, r.BrowserConfig())
}

// Reports leave the process through the application's own tunnel endpoint,
// which relays them to the upstream project.
func TestReport_RoutesThroughTunnel(t *testing.T) {
	upstream, capture := newUpstream(t, http.StatusOK)

	mux := http.NewServeMux()
	mux.Handle("POST /sentry-proxy/", upstreamTunnel(upstream, "4505"))
	app := httptest.NewServer(mux)
	t.Cleanup(app.Close)

	r, err := Init(Config{
		DSN:        "http://public@sentry.invalid/4505",
		TunnelPath: "/sentry-proxy/",
		BaseURL:    app.URL,
	})
	require.NoError(t, err)

	r.Report(context.Background(), errors.New("layer failed"), []string{"LayerList", "App"})
	require.True(t, r.Flush(5*time.Second))

	capture.mu.Lock()
	defer capture.mu.Unlock()
	require.Equal(t, []string{"/api/4505/envelope/"}, capture.paths)
	require.Contains(t, capture.body, "layer failed")
	require.Contains(t, capture.body, "LayerList")
}

func TestTraceMiddleware_PutsHubOnContext(t *testing.T) {
	t.Parallel()
	r, err := Init(Config{TracesSampleRate: 1})
	require.NoError(t, err)

	var sawHub, sawSpan bool
	h := r.TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		sawHub = sentry.GetHubFromContext(req.Context()) != nil
		sawSpan = sentry.SpanFromContext(req.Context()) != nil
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
	require.True(t, sawHub)
	require.True(t, sawSpan)
}

// The reporter's transport posts into the traced app; tunnel requests must not
// start transactions of their own or every envelope would produce another.
func TestTraceMiddleware_TunnelTrafficDoesNotFeedItself(t *testing.T) {
	upstream, _ := newUpstream(t, http.StatusOK)

	var tunnelHits atomic.Int64
	var handler http.Handler
	app := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		handler.ServeHTTP(w, req)
	}))
	t.Cleanup(app.Close)

	r, err := Init(Config{
		DSN:              "http://public@sentry.invalid/4505",
		TunnelPath:       "/sentry-proxy/",
		BaseURL:          app.URL,
		TracesSampleRate: 1,
	})
	require.NoError(t, err)

	tunnel := upstreamTunnel(upstream, "4505")
	mux := http.NewServeMux()
	mux.Handle("POST /sentry-proxy/", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		tunnelHits.Add(1)
		tunnel.ServeHTTP(w, req)
	}))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("home"))
	})
	handler = r.TraceMiddleware(mux)

	resp, err := http.Get(app.URL + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()

	require.Eventually(t, func() bool {
		r.Flush(time.Second)
		return tunnelHits.Load() >= 1
	}, 5*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	require.True(t, r.Flush(5*time.Second))

	require.EqualValues(t, 1, tunnelHits.Load(), "one page view should send exactly one transaction")
}

func TestTraceMiddleware_SkipsTunnelPath(t *testing.T) {
	t.Parallel()
	r, err := Init(Config{DSN: "https://k@o1.ingest.sentry.io/4505", TunnelPath: "/sentry-proxy/", BaseURL: "http://localhost:8080", TracesSampleRate: 1})
	require.NoError(t, err)

	var sawSpan bool
	h := r.TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		sawSpan = sentry.SpanFromContext(req.Context()) != nil
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/sentry-proxy/", nil))
	require.False(t, sawSpan)
}

func TestNop(t *testing.T) {
	t.Parallel()
	var r Reporter = Nop{}
	r.Report(context.Background(), errors.New("x"), nil)
}
