package sessioncapture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Selectors and labels of the portal's login UI.
const (
	LoginTrigger        = "text=LOGIN"
	LoginPathSuffix     = "/login/"
	LoginHeading        = "Login"
	EmailPlaceholder    = "E-mail address"
	PasswordPlaceholder = "Password"
	SubmitButton        = "LOGIN"
	SignedInMarker      = `[data-testid="signed-in"]`
	BannerHeader        = ".landing-page-banner-text-header"
)

// DefaultTriggerTimeout bounds the wait for the LOGIN control and the landing banner.
const DefaultTriggerTimeout = 2 * time.Second

// Credentials is the identity submitted on the login form.
type Credentials struct {
	Email    string
	Password string
}

// TestCredentials is the admin identity seeded by the server's --test mode.
var TestCredentials = Credentials{Email: "admin@example.com", Password: "admin"}

// CaptureConfig parameterizes the capture protocol.
type CaptureConfig struct {
	Credentials    Credentials
	TriggerTimeout time.Duration
	StepTimeout    time.Duration
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.Credentials == (Credentials{}) {
		c.Credentials = TestCredentials
	}
	if c.TriggerTimeout <= 0 {
		c.TriggerTimeout = DefaultTriggerTimeout
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = DefaultStepTimeout
	}
	return c
}

// CaptureSteps returns the login protocol. The final step exports the storage
// state and hands it to persister; it only runs after sign-in was observed.
func CaptureSteps(cfg CaptureConfig, persister *Persister) []Step {
	cfg = cfg.withDefaults()
	creds := cfg.Credentials
	onLogin := PathSuffix(LoginPathSuffix)

	return []Step{
		{
			Name: "open root", Kind: Action, Timeout: cfg.StepTimeout,
			Run: func(ctx context.Context, p Page) error { return p.Goto(ctx, "/") },
		},
		{
			Name: "wait for login control", Kind: Wait, Timeout: cfg.TriggerTimeout,
			Run: func(ctx context.Context, p Page) error { return p.WaitVisible(ctx, LoginTrigger) },
		},
		{
			Name: "click login control", Kind: Action, Timeout: cfg.StepTimeout,
			Run: func(ctx context.Context, p Page) error { return p.Click(ctx, LoginTrigger) },
		},
		{
			Name: "wait for login url", Kind: Wait, Timeout: cfg.StepTimeout,
			Run: func(ctx context.Context, p Page) error { return p.WaitURL(ctx, onLogin) },
		},
		{
			Name: "login heading visible", Kind: Assert, Timeout: cfg.StepTimeout,
			Run: func(ctx context.Context, p Page) error { return p.WaitRole(ctx, "heading", LoginHeading) },
		},
		{
			Name: "fill email", Kind: Action, Timeout: cfg.StepTimeout,
			Run: func(ctx context.Context, p Page) error {
				return p.FillPlaceholder(ctx, EmailPlaceholder, creds.Email)
			},
		},
		{
			Name: "fill password", Kind: Action, Timeout: cfg.StepTimeout,
			Run: func(ctx context.Context, p Page) error {
				return p.FillPlaceholder(ctx, PasswordPlaceholder, creds.Password)
			},
		},
		{
			Name: "submit login", Kind: Action, Timeout: cfg.StepTimeout,
			Run: func(ctx context.Context, p Page) error { return p.ClickRole(ctx, "button", SubmitButton) },
		},
		{
			Name: "signed in", Kind: Assert, Timeout: cfg.StepTimeout,
			Run: func(ctx context.Context, p Page) error {
				if err := p.WaitURL(ctx, Not(onLogin)); err != nil {
					return fmt.Errorf("still on login page: %w", err)
				}
				return p.WaitVisible(ctx, SignedInMarker)
			},
		},
		{
			Name: "persist session", Kind: Action, Timeout: cfg.StepTimeout,
			Run: func(ctx context.Context, p Page) error {
				state, err := p.StorageState(ctx)
				if err != nil {
					return fmt.Errorf("export storage state: %w", err)
				}
				if persister == nil {
					return errors.New("no persister configured")
				}
				return persister.Persist(ctx, state)
			},
		},
	}
}

// VerifySteps checks that a page started from a saved session reaches the landing
// page and shows the banner header with text.
func VerifySteps(cfg CaptureConfig) []Step {
	cfg = cfg.withDefaults()
	return []Step{
		{
			Name: "open root", Kind: Action, Timeout: cfg.StepTimeout,
			Run: func(ctx context.Context, p Page) error { return p.Goto(ctx, "/") },
		},
		{
			Name: "wait for banner", Kind: Wait, Timeout: cfg.TriggerTimeout,
			Run: func(ctx context.Context, p Page) error { return p.WaitVisible(ctx, BannerHeader) },
		},
		{
			Name: "banner has text", Kind: Assert, Timeout: cfg.StepTimeout,
			Run: func(ctx context.Context, p Page) error {
				text, err := p.Text(ctx, BannerHeader)
				if err != nil {
					return err
				}
				if strings.TrimSpace(text) == "" {
					return errors.New("banner header is empty")
				}
				return nil
			},
		},
		{
			Name: "session is signed in", Kind: Assert, Timeout: cfg.StepTimeout,
			Run: func(ctx context.Context, p Page) error { return p.WaitVisible(ctx, SignedInMarker) },
		},
	}
}

// Capture runs the login protocol against page and persists the session on success.
func Capture(ctx context.Context, runner *Runner, page Page, cfg CaptureConfig, persister *Persister) error {
	if runner == nil {
		runner = NewRunner()
	}
	return runner.Run(ctx, page, CaptureSteps(cfg, persister))
}

// Verify runs VerifySteps against a page opened with a saved session.
func Verify(ctx context.Context, runner *Runner, page Page, cfg CaptureConfig) error {
	if runner == nil {
		runner = NewRunner()
	}
	return runner.Run(ctx, page, VerifySteps(cfg))
}
