// Package crash configures crash reporting and the same-origin tunnel that relays
// browser and server reports to Sentry.
package crash

import "context"

// Reporter receives render failures. Implementations must be safe for concurrent use.
type Reporter interface {
	Report(ctx context.Context, err error, componentStack []string)
}

// Nop drops every report.
type Nop struct{}

func (Nop) Report(context.Context, error, []string) {}
