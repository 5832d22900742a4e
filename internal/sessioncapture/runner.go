package sessioncapture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kuitang/gisportal/internal/obs"
)

// DefaultStepTimeout bounds steps that do not set their own timeout.
const DefaultStepTimeout = 10 * time.Second

// StepKind decides how a failure is classified.
type StepKind int

const (
	// Action steps drive the page; deadline failures become *TimeoutError.
	Action StepKind = iota
	// Wait steps block on a browser condition; deadline failures become *TimeoutError.
	Wait
	// Assert steps check a precondition; any failure becomes *AssertionError.
	Assert
)

// Step is one (action, awaited condition, timeout) entry of a protocol.
type Step struct {
	Name    string
	Kind    StepKind
	Timeout time.Duration
	Run     func(ctx context.Context, page Page) error
}

// Runner executes steps strictly in order. The first failure ends the run; nothing is retried.
type Runner struct {
	DefaultTimeout time.Duration
	Logger         *slog.Logger
}

// NewRunner creates a runner with DefaultStepTimeout.
func NewRunner() *Runner {
	return &Runner{DefaultTimeout: DefaultStepTimeout, Logger: obs.Pkg("sessioncapture")}
}

// Run executes steps against page.
func (r *Runner) Run(ctx context.Context, page Page, steps []Step) error {
	logger := r.Logger
	if logger == nil {
		logger = obs.Pkg("sessioncapture")
	}
	for i, step := range steps {
		timeout := step.Timeout
		if timeout <= 0 {
			timeout = r.DefaultTimeout
		}
		if timeout <= 0 {
			timeout = DefaultStepTimeout
		}

		start := time.Now()
		err := r.runStep(ctx, page, step, timeout)
		elapsed := time.Since(start)
		if err != nil {
			logger.Warn("capture_step_failed", "step", step.Name, "index", i+1, "dur_ms", elapsed.Milliseconds(), "error", err)
			return err
		}
		logger.Debug("capture_step_ok", "step", step.Name, "index", i+1, "dur_ms", elapsed.Milliseconds())
	}
	return nil
}

// runStep bounds the step by timeout even when the page ignores ctx.
func (r *Runner) runStep(ctx context.Context, page Page, step Step, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled before step %q: %w", step.Name, err)
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				done <- fmt.Errorf("step panicked: %v", v)
			}
		}()
		done <- step.Run(stepCtx, page)
	}()

	var err error
	select {
	case err = <-done:
	case <-stepCtx.Done():
		err = stepCtx.Err()
	}
	if err == nil {
		return nil
	}
	if parent := ctx.Err(); parent != nil && !errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("run cancelled during step %q: %w", step.Name, parent)
	}
	return classify(step, timeout, err, stepCtx.Err())
}

func classify(step Step, timeout time.Duration, err, ctxErr error) error {
	if step.Kind == Assert {
		return &AssertionError{Step: step.Name, Err: err}
	}
	if errors.Is(err, ErrWaitTimeout) || errors.Is(err, context.DeadlineExceeded) || errors.Is(ctxErr, context.DeadlineExceeded) {
		return &TimeoutError{Step: step.Name, Timeout: timeout, Err: err}
	}
	return &StepError{Step: step.Name, Err: err}
}
