package sessioncapture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Browser owns a Playwright driver and one headless Chromium instance.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

// LaunchBrowser starts Playwright and a headless Chromium.
func LaunchBrowser() (*Browser, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	return &Browser{pw: pw, browser: browser}, nil
}

// NewPage opens a page in a fresh browser context. When storageStatePath is
// set the context starts from that saved session.
func (b *Browser) NewPage(baseURL, storageStatePath string) (*PlaywrightPage, error) {
	opts := playwright.BrowserNewContextOptions{
		BaseURL: playwright.String(strings.TrimRight(baseURL, "/")),
	}
	if storageStatePath != "" {
		opts.StorageStatePath = playwright.String(storageStatePath)
	}
	bctx, err := b.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	return &PlaywrightPage{page: page, context: bctx}, nil
}

// Close shuts down the browser and the driver.
func (b *Browser) Close() error {
	var errs []error
	if b.browser != nil {
		errs = append(errs, b.browser.Close())
	}
	if b.pw != nil {
		errs = append(errs, b.pw.Stop())
	}
	return errors.Join(errs...)
}

// PlaywrightPage adapts a playwright.Page to Page. Each call's timeout is the
// time left on ctx.
type PlaywrightPage struct {
	page    playwright.Page
	context playwright.BrowserContext
}

// Close closes the page's browser context.
func (p *PlaywrightPage) Close() error {
	return p.context.Close()
}

// URL returns the page's current URL.
func (p *PlaywrightPage) URL() string {
	return p.page.URL()
}

func (p *PlaywrightPage) Goto(ctx context.Context, path string) error {
	timeout, err := remainingMS(ctx)
	if err != nil {
		return err
	}
	_, err = p.page.Goto(path, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   timeout,
	})
	return wrapTimeout(err)
}

func (p *PlaywrightPage) WaitVisible(ctx context.Context, selector string) error {
	timeout, err := remainingMS(ctx)
	if err != nil {
		return err
	}
	return wrapTimeout(p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: timeout,
	}))
}

func (p *PlaywrightPage) Click(ctx context.Context, selector string) error {
	timeout, err := remainingMS(ctx)
	if err != nil {
		return err
	}
	return wrapTimeout(p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{Timeout: timeout}))
}

func (p *PlaywrightPage) WaitURL(ctx context.Context, match func(string) bool) error {
	timeout, err := remainingMS(ctx)
	if err != nil {
		return err
	}
	return wrapTimeout(p.page.WaitForURL(match, playwright.PageWaitForURLOptions{Timeout: timeout}))
}

func (p *PlaywrightPage) role(role, name string) playwright.Locator {
	return p.page.GetByRole(playwright.AriaRole(role), playwright.PageGetByRoleOptions{
		Name:  name,
		Exact: playwright.Bool(true),
	})
}

func (p *PlaywrightPage) WaitRole(ctx context.Context, role, name string) error {
	timeout, err := remainingMS(ctx)
	if err != nil {
		return err
	}
	return wrapTimeout(p.role(role, name).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: timeout,
	}))
}

func (p *PlaywrightPage) ClickRole(ctx context.Context, role, name string) error {
	timeout, err := remainingMS(ctx)
	if err != nil {
		return err
	}
	return wrapTimeout(p.role(role, name).First().Click(playwright.LocatorClickOptions{Timeout: timeout}))
}

func (p *PlaywrightPage) FillPlaceholder(ctx context.Context, placeholder, value string) error {
	timeout, err := remainingMS(ctx)
	if err != nil {
		return err
	}
	field := p.page.GetByPlaceholder(placeholder, playwright.PageGetByPlaceholderOptions{Exact: playwright.Bool(true)})
	return wrapTimeout(field.Fill(value, playwright.LocatorFillOptions{Timeout: timeout}))
}

func (p *PlaywrightPage) Text(ctx context.Context, selector string) (string, error) {
	timeout, err := remainingMS(ctx)
	if err != nil {
		return "", err
	}
	text, err := p.page.Locator(selector).First().TextContent(playwright.LocatorTextContentOptions{Timeout: timeout})
	return text, wrapTimeout(err)
}

func (p *PlaywrightPage) StorageState(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	state, err := p.context.StorageState()
	if err != nil {
		return nil, fmt.Errorf("storage state: %w", err)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode storage state: %w", err)
	}
	return data, nil
}

func remainingMS(ctx context.Context) (*float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return playwright.Float(float64(DefaultStepTimeout.Milliseconds())), nil
	}
	left := time.Until(deadline)
	if left <= 0 {
		return nil, context.DeadlineExceeded
	}
	// Playwright treats 0 as no timeout.
	return playwright.Float(max(1, float64(left.Milliseconds()))), nil
}

func wrapTimeout(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrWaitTimeout, err)
	}
	return err
}
