// Package sessioncapture logs into the portal through a real browser and saves the
// authenticated storage state to auth.json so other browser runs can start signed in.
package sessioncapture

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// ErrWaitTimeout marks a browser wait that ran out of time.
var ErrWaitTimeout = errors.New("wait timed out")

// Page is the browser surface the capture protocol drives.
// Every blocking method must give up when ctx is done.
type Page interface {
	// Goto navigates to path, relative to the page's base URL.
	Goto(ctx context.Context, path string) error
	// WaitVisible waits for the first element matching selector to be visible.
	WaitVisible(ctx context.Context, selector string) error
	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error
	// WaitURL waits for the current URL to satisfy match.
	WaitURL(ctx context.Context, match func(string) bool) error
	// WaitRole waits for the element with ARIA role and accessible name to be visible.
	WaitRole(ctx context.Context, role, name string) error
	// ClickRole clicks the element with ARIA role and accessible name.
	ClickRole(ctx context.Context, role, name string) error
	// FillPlaceholder fills the input with the given placeholder text.
	FillPlaceholder(ctx context.Context, placeholder, value string) error
	// Text returns the text content of the first element matching selector.
	Text(ctx context.Context, selector string) (string, error)
	// StorageState exports cookies and storage as JSON.
	StorageState(ctx context.Context) ([]byte, error)
}

// PathSuffix matches URLs whose path ends with suffix, like the glob "**/login/".
func PathSuffix(suffix string) func(string) bool {
	return func(raw string) bool {
		u, err := url.Parse(raw)
		if err != nil {
			return false
		}
		return strings.HasSuffix(u.Path, suffix)
	}
}

// Not negates a URL matcher.
func Not(match func(string) bool) func(string) bool {
	return func(raw string) bool { return !match(raw) }
}
