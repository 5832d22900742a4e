// Package ui renders server-side component trees under an error boundary.
package ui

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/a-h/templ"

	"github.com/kuitang/gisportal/internal/crash"
	"github.com/kuitang/gisportal/internal/obs"
)

// FallbackHeadline is shown by the default fallback view.
const FallbackHeadline = "Something went wrong!"

// Boundary contains render failures of its child.
//
// While Healthy the child renders into a buffer that is copied to the writer
// only on success. The first failure moves the boundary to Degraded, which is
// terminal: the child is never rendered again by this instance.
type Boundary struct {
	child    templ.Component
	reporter crash.Reporter
	fallback func(*RenderError) templ.Component
	logger   *slog.Logger

	mu    sync.Mutex
	state BoundaryState

	reportOnce sync.Once
	reported   chan struct{}
}

// Option configures a Boundary.
type Option func(*Boundary)

// WithFallback replaces the default fallback view.
func WithFallback(fn func(*RenderError) templ.Component) Option {
	return func(b *Boundary) {
		if fn != nil {
			b.fallback = fn
		}
	}
}

// WithLogger sets the logger used for reporter failures.
func WithLogger(l *slog.Logger) Option {
	return func(b *Boundary) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBoundary wraps child. A nil reporter drops reports.
func NewBoundary(child templ.Component, reporter crash.Reporter, opts ...Option) *Boundary {
	if reporter == nil {
		reporter = crash.Nop{}
	}
	b := &Boundary{
		child:    child,
		reporter: reporter,
		fallback: DefaultFallback,
		logger:   obs.Pkg("ui"),
		state:    Healthy{},
		reported: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current state.
func (b *Boundary) State() BoundaryState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reported is closed once the report for the caught error has been attempted.
// It stays open while the boundary is Healthy.
func (b *Boundary) Reported() <-chan struct{} {
	return b.reported
}

// Render implements templ.Component. Child failures are never returned;
// only errors writing to w are.
func (b *Boundary) Render(ctx context.Context, w io.Writer) error {
	if d, ok := b.State().(Degraded); ok {
		return b.fallback(d.Err).Render(ctx, w)
	}

	var buf bytes.Buffer
	err := renderRecovering(ctx, b.child, &buf)
	if err == nil {
		_, werr := w.Write(buf.Bytes())
		return werr
	}

	b.mu.Lock()
	if !HasError(b.state) {
		b.state = DeriveStateFromError(err)
	}
	d := b.state.(Degraded)
	b.mu.Unlock()

	b.report(ctx, d.Err)
	return b.fallback(d.Err).Render(ctx, w)
}

func (b *Boundary) report(ctx context.Context, re *RenderError) {
	b.reportOnce.Do(func() {
		ctx = context.WithoutCancel(ctx)
		go func() {
			defer close(b.reported)
			defer func() {
				if v := recover(); v != nil {
					b.logger.Error("crash_report_panicked", "panic", v, "error", re.Error())
				}
			}()
			b.reporter.Report(ctx, re, re.ComponentStack)
		}()
	})
}

func renderRecovering(ctx context.Context, c templ.Component, w io.Writer) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &RenderError{Err: panicError(v), Panic: v, GoStack: debug.Stack()}
		}
	}()
	return c.Render(ctx, w)
}

// DefaultFallback renders the failure headline and the error message, if any.
func DefaultFallback(re *RenderError) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, "<h1>"+FallbackHeadline+"</h1>"); err != nil {
			return err
		}
		if msg := re.Message(); msg != "" {
			if _, err := io.WriteString(w, "<p>"+templ.EscapeString(msg)+"</p>"); err != nil {
				return err
			}
		}
		return nil
	})
}
