package sessioncapture

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// fakePage models the portal's anonymous landing page, login form and
// signed-in landing page.
type fakePage struct {
	mu       sync.Mutex
	path     string
	loggedIn bool
	email    string
	password string
	fields   map[string]string
	calls    []string
	// storageDelay makes StorageState stall without watching ctx.
	storageDelay time.Duration
}

func newFakePage(creds Credentials) *fakePage {
	return &fakePage{email: creds.Email, password: creds.Password, fields: map[string]string{}}
}

func (p *fakePage) record(format string, args ...any) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *fakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// await blocks until ctx ends, as a browser wait on an absent element would.
func await(ctx context.Context, what string) error {
	<-ctx.Done()
	return fmt.Errorf("%w: %s", ErrWaitTimeout, what)
}

func (p *fakePage) Goto(_ context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("goto %s", path)
	p.path = path
	return nil
}

func (p *fakePage) visible(selector string) bool {
	switch selector {
	case LoginTrigger:
		return p.path == "/" && !p.loggedIn
	case SignedInMarker:
		return p.path == "/" && p.loggedIn
	case BannerHeader:
		return p.path == "/"
	}
	return false
}

func (p *fakePage) WaitVisible(ctx context.Context, selector string) error {
	p.mu.Lock()
	p.record("wait %s", selector)
	ok := p.visible(selector)
	p.mu.Unlock()
	if ok {
		return nil
	}
	return await(ctx, selector)
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	p.record("click %s", selector)
	ok := p.visible(selector)
	if ok && selector == LoginTrigger {
		p.path = "/login/"
	}
	p.mu.Unlock()
	if ok {
		return nil
	}
	return await(ctx, selector)
}

func (p *fakePage) WaitURL(ctx context.Context, match func(string) bool) error {
	p.mu.Lock()
	current := "http://portal.test" + p.path
	p.record("waiturl %s", p.path)
	p.mu.Unlock()
	if match(current) {
		return nil
	}
	return await(ctx, "url")
}

func (p *fakePage) WaitRole(ctx context.Context, role, name string) error {
	p.mu.Lock()
	p.record("role %s %s", role, name)
	ok := p.path == "/login/" && role == "heading" && name == LoginHeading
	p.mu.Unlock()
	if ok {
		return nil
	}
	return await(ctx, role)
}

func (p *fakePage) ClickRole(ctx context.Context, role, name string) error {
	p.mu.Lock()
	p.record("clickrole %s %s", role, name)
	ok := p.path == "/login/" && role == "button" && name == SubmitButton
	if ok && p.fields[EmailPlaceholder] == p.email && p.fields[PasswordPlaceholder] == p.password {
		p.loggedIn = true
		p.path = "/"
	}
	p.mu.Unlock()
	if ok {
		return nil
	}
	return await(ctx, role)
}

func (p *fakePage) FillPlaceholder(ctx context.Context, placeholder, value string) error {
	p.mu.Lock()
	p.record("fill %s", placeholder)
	ok := p.path == "/login/"
	if ok {
		p.fields[placeholder] = value
	}
	p.mu.Unlock()
	if ok {
		return nil
	}
	return await(ctx, placeholder)
}

func (p *fakePage) Text(ctx context.Context, selector string) (string, error) {
	p.mu.Lock()
	ok := selector == BannerHeader && p.path == "/"
	p.mu.Unlock()
	if ok {
		return "Cloud Native GIS", nil
	}
	return "", await(ctx, selector)
}

func (p *fakePage) StorageState(context.Context) ([]byte, error) {
	time.Sleep(p.storageDelay)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("storage")
	cookies := []map[string]any{}
	if p.loggedIn {
		cookies = append(cookies, map[string]any{"name": "session_id", "value": "s-1", "domain": "portal.test", "path": "/"})
	}
	return json.Marshal(map[string]any{"cookies": cookies, "origins": []any{}})
}
