package vitals

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type collectorFunc func(context.Context) (Sample, error)

func (f collectorFunc) Collect(ctx context.Context) (Sample, error) { return f(ctx) }

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil)), &buf
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("baseline collection never finished")
	}
}

func TestProcessCollector(t *testing.T) {
	s, err := ProcessCollector{}.Collect(context.Background())
	require.NoError(t, err)
	require.Positive(t, s.PID)
	require.Positive(t, s.RSSBytes)
	require.Positive(t, s.Goroutines)
}

func TestStart_LogsBaseline(t *testing.T) {
	logger, buf := bufferLogger()
	waitDone(t, Start(context.Background(), collectorFunc(func(context.Context) (Sample, error) {
		return Sample{PID: 7, RSSBytes: 1024}, nil
	}), logger))
	require.Contains(t, buf.String(), `"msg":"vitals_baseline"`)
	require.Contains(t, buf.String(), `"rss_bytes":1024`)
}

func TestStart_SwallowsErrorsAndPanics(t *testing.T) {
	logger, buf := bufferLogger()
	waitDone(t, Start(context.Background(), collectorFunc(func(context.Context) (Sample, error) {
		return Sample{}, errors.New("no procfs")
	}), logger))
	require.Contains(t, buf.String(), "vitals_baseline_failed")

	buf.Reset()
	waitDone(t, Start(context.Background(), collectorFunc(func(context.Context) (Sample, error) {
		panic("collector bug")
	}), logger))
	require.Contains(t, buf.String(), "vitals_baseline_panicked")
}

func TestStart_DoesNotBlockCaller(t *testing.T) {
	logger, _ := bufferLogger()
	release := make(chan struct{})
	start := time.Now()
	done := Start(context.Background(), collectorFunc(func(context.Context) (Sample, error) {
		<-release
		return Sample{}, nil
	}), logger)
	require.Less(t, time.Since(start), time.Second)
	close(release)
	waitDone(t, done)
}

func TestHandler(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		body string
		want int
	}{
		{"valid", `{"name":"LCP","value":1234.5,"id":"v3-1","rating":"good"}`, http.StatusNoContent},
		{"not json", `LCP=1`, http.StatusBadRequest},
		{"unknown field", `{"name":"LCP","value":1,"extra":true}`, http.StatusBadRequest},
		{"unknown metric", `{"name":"XYZ","value":1}`, http.StatusBadRequest},
		{"negative", `{"name":"CLS","value":-1}`, http.StatusBadRequest},
		{"bad rating", `{"name":"CLS","value":0.1,"rating":"great"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/vitals/", strings.NewReader(tc.body)))
		require.Equal(t, tc.want, rec.Code, tc.name)
	}
}
