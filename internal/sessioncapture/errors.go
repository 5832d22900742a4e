package sessioncapture

import (
	"fmt"
	"time"
)

// TimeoutError is returned when a step's awaited condition did not occur within its bound.
type TimeoutError struct {
	Step    string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("step %q timed out after %s: %v", e.Step, e.Timeout, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// AssertionError is returned when an expected page state did not hold.
type AssertionError struct {
	Step string
	Err  error
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("step %q assertion failed: %v", e.Step, e.Err)
}

func (e *AssertionError) Unwrap() error { return e.Err }

// StepError is any other step failure, such as a navigation or persistence error.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
