package ui

import (
	"errors"
	"fmt"
)

// RenderError is a render failure caught under a Boundary.
type RenderError struct {
	// Err is the returned error, or an error describing the recovered panic.
	Err error
	// Panic is the recovered value when the failure was a panic.
	Panic any
	// ComponentStack lists Named components from the failure point outward.
	ComponentStack []string
	// GoStack is the goroutine stack captured at recovery.
	GoStack []byte
}

func (e *RenderError) Error() string {
	if e == nil || e.Err == nil {
		return "render failed"
	}
	return e.Err.Error()
}

func (e *RenderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Message returns the human-readable message, or "" when there is none.
func (e *RenderError) Message() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Panicked reports whether the failure was a recovered panic.
func (e *RenderError) Panicked() bool {
	return e != nil && e.Panic != nil
}

// AsRenderError returns the *RenderError in err's chain, wrapping err if there is none.
func AsRenderError(err error) *RenderError {
	var re *RenderError
	if errors.As(err, &re) {
		return re
	}
	return &RenderError{Err: err}
}

func panicError(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return fmt.Errorf("%v", v)
}
