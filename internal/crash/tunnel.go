package crash

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/gisportal/internal/errs"
	"github.com/kuitang/gisportal/internal/logutil"
	"github.com/kuitang/gisportal/internal/obs"
)

// Tunnel defaults.
const (
	DefaultUpstreamHost    = "sentry.io"
	DefaultUpstreamTimeout = 200 * time.Second
	MaxEnvelopeBytes       = 20 << 20
	EnvelopeContentType    = "application/x-sentry-envelope"
)

// TunnelConfig configures the envelope relay.
type TunnelConfig struct {
	// UpstreamHost receives envelopes at /api/<project>/envelope/.
	UpstreamHost string
	// UpstreamScheme defaults to https.
	UpstreamScheme string
	// AllowedProjectID, when set, rejects envelopes addressed to any other project.
	AllowedProjectID string
	Timeout          time.Duration
	Client           *http.Client
}

// Tunnel relays Sentry envelopes posted by browsers on the application's origin.
type Tunnel struct {
	cfg    TunnelConfig
	client *http.Client
}

// NewTunnel creates the relay handler.
func NewTunnel(cfg TunnelConfig) *Tunnel {
	if cfg.UpstreamHost == "" {
		cfg.UpstreamHost = DefaultUpstreamHost
	}
	if cfg.UpstreamScheme == "" {
		cfg.UpstreamScheme = "https"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultUpstreamTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Tunnel{cfg: cfg, client: client}
}

// TunnelConfigFor derives the relay settings from the reporter configuration.
// A configured DSN pins the relay to that project.
func TunnelConfigFor(cfg Config, upstreamHost string) (TunnelConfig, error) {
	tc := TunnelConfig{UpstreamHost: upstreamHost}
	if cfg.DSN == "" {
		return tc, nil
	}
	project, err := ProjectID(cfg.DSN)
	if err != nil {
		return tc, err
	}
	tc.AllowedProjectID = project
	return tc, nil
}

type envelopeHeader struct {
	DSN string `json:"dsn"`
}

func (t *Tunnel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := obs.From(ctx).With("pkg", "crash")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxEnvelopeBytes))
	if err != nil {
		errs.WriteHTTP(w, errs.Wrap(errs.InvalidArgument, "envelope too large or unreadable", err))
		return
	}

	firstLine, _, _ := bytes.Cut(body, []byte("\n"))
	var header envelopeHeader
	if err := json.Unmarshal(firstLine, &header); err != nil {
		logger.Info("tunnel_bad_header", "header", logutil.TruncateForLog(string(firstLine), 120))
		errs.WriteHTTP(w, errs.Wrap(errs.InvalidArgument, "envelope header is not JSON", err))
		return
	}
	if header.DSN == "" {
		errs.WriteHTTP(w, errs.New(errs.InvalidArgument, "envelope header has no dsn"))
		return
	}

	project, err := ProjectID(header.DSN)
	if err != nil {
		errs.WriteHTTP(w, errs.Wrap(errs.InvalidArgument, "envelope dsn is invalid", err))
		return
	}
	if t.cfg.AllowedProjectID != "" && project != t.cfg.AllowedProjectID {
		logger.Warn("tunnel_foreign_project", "project", project, "dsn", logutil.RedactDSN(header.DSN))
		errs.WriteHTTP(w, errs.New(errs.PermissionDenied, "unknown project"))
		return
	}

	status, respBody, err := t.forward(ctx, project, body)
	if err != nil {
		logger.Warn("tunnel_upstream_failed", "project", project, "error", err)
		errs.WriteHTTP(w, errs.Wrap(errs.Upstream, "crash reporting upstream unavailable", err))
		return
	}
	logger.Debug("tunnel_forwarded", "project", project, "status", status, "bytes", len(body))

	w.WriteHeader(status)
	_, _ = w.Write(respBody)
}

func (t *Tunnel) forward(ctx context.Context, project string, body []byte) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	target := fmt.Sprintf("%s://%s/api/%s/envelope/", t.cfg.UpstreamScheme, t.cfg.UpstreamHost, project)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", EnvelopeContentType)

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, MaxEnvelopeBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read upstream response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// ProjectID extracts the numeric project id from a DSN path.
func ProjectID(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	project := strings.Trim(u.Path, "/")
	if i := strings.LastIndex(project, "/"); i >= 0 {
		project = project[i+1:]
	}
	if _, err := strconv.ParseUint(project, 10, 64); err != nil {
		return "", fmt.Errorf("dsn project %q is not numeric", project)
	}
	return project, nil
}
