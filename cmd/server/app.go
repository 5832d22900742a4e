package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kuitang/gisportal/internal/auth"
	"github.com/kuitang/gisportal/internal/config"
	"github.com/kuitang/gisportal/internal/crash"
	"github.com/kuitang/gisportal/internal/db"
	"github.com/kuitang/gisportal/internal/obs"
	"github.com/kuitang/gisportal/internal/ratelimit"
	"github.com/kuitang/gisportal/internal/vitals"
	"github.com/kuitang/gisportal/internal/web"
)

const (
	shutdownTimeout        = 15 * time.Second
	sessionCleanupInterval = time.Hour
)

// app is the wired server. It owns the reporter, the limiter and the store.
type app struct {
	cfg      *config.Config
	store    *db.DB
	reporter *crash.SentryReporter
	limiter  *ratelimit.RateLimiter
	sessions *auth.SessionService
	handler  http.Handler
}

// newApp wires every component in startup order. The crash reporter is
// configured exactly once here, and the host document is checked for its
// mount point before any request is served.
func newApp(ctx context.Context, cfg *config.Config, store *db.DB) (*app, error) {
	logger := obs.Pkg("main")

	crashCfg := crash.Config{
		DSN:              cfg.SentryDSN,
		TunnelPath:       cfg.SentryTunnelPath,
		BaseURL:          cfg.BaseURL,
		TracesSampleRate: cfg.SentryTracesSampleRate,
		Environment:      cfg.SentryEnvironment,
		Release:          cfg.SentryRelease,
	}
	reporter, err := crash.Init(crashCfg)
	if err != nil {
		return nil, fmt.Errorf("init crash reporter: %w", err)
	}

	users := auth.NewUserService(store, auth.Argon2Hasher{})
	sessions := auth.NewSessionService(store, cfg.SessionDuration, cfg.RequireSecureCookies())
	if cfg.SeedAdmin {
		user, err := users.EnsureUser(ctx, cfg.AdminEmail, cfg.AdminPassword)
		if err != nil {
			return nil, fmt.Errorf("seed admin: %w", err)
		}
		logger.Info("admin_seeded", "user_id", user.ID, "email", user.Email)
	}

	templates, err := web.TemplatesFS(cfg.TemplatesDir)
	if err != nil {
		return nil, err
	}
	renderer, err := web.NewRenderer(templates)
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	doc, err := web.LoadHostDocument(renderer, web.HostData{
		Title:      web.SiteTitle,
		Sentry:     reporter.BrowserConfig(),
		VitalsPath: web.VitalsPath,
	})
	if err != nil {
		return nil, fmt.Errorf("load host document: %w", err)
	}

	vitals.Start(context.WithoutCancel(ctx), vitals.ProcessCollector{}, obs.Pkg("vitals"))

	limiter := ratelimit.NewRateLimiter(cfg.RateLimit())
	tunnelCfg, err := crash.TunnelConfigFor(crashCfg, cfg.SentryUpstreamHost)
	if err != nil {
		limiter.Stop()
		return nil, fmt.Errorf("configure crash tunnel: %w", err)
	}

	handler := web.NewWebHandler(web.Deps{
		Renderer:         renderer,
		Root:             web.NewRoot(doc, reporter),
		Users:            users,
		Sessions:         sessions,
		Auth:             auth.NewMiddleware(sessions, users),
		Limiter:          limiter,
		BaseURL:          cfg.BaseURL,
		Tunnel:           crash.NewTunnel(tunnelCfg),
		TunnelPath:       cfg.SentryTunnelPath,
		EnableCrashRoute: cfg.EnableCrashRoute,
	})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	return &app{
		cfg:      cfg,
		store:    store,
		reporter: reporter,
		limiter:  limiter,
		sessions: sessions,
		handler: web.Chain(mux,
			obs.RequestContextMiddleware,
			func(next http.Handler) http.Handler { return obs.AccessLogMiddleware("web", next) },
			reporter.TraceMiddleware,
			web.RecoverPanic,
		),
	}, nil
}

// Close stops background work and flushes queued crash reports.
func (a *app) Close() {
	a.limiter.Stop()
	a.reporter.Close()
}

// cleanupSessions deletes expired sessions until ctx is done.
func (a *app) cleanupSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.sessions.Cleanup(ctx)
			if err != nil {
				obs.Pkg("main").Warn("session_cleanup_failed", "error", err)
				continue
			}
			if n > 0 {
				obs.Pkg("main").Info("session_cleanup", "deleted", n)
			}
		}
	}
}

// run serves until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg *config.Config) error {
	store, err := db.Open(cfg.DatabasePath, cfg.MasterKey)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	a, err := newApp(ctx, cfg, store)
	if err != nil {
		return err
	}
	defer a.Close()

	go a.cleanupSessions(ctx, sessionCleanupInterval)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		obs.Pkg("main").Info("server_listening", "addr", cfg.ListenAddr, "base_url", cfg.BaseURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	obs.Pkg("main").Info("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
