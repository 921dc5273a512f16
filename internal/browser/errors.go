package browser

import (
	"fmt"
	"time"
)

// SessionStartError means the automation engine could not be launched.
type SessionStartError struct {
	Engine string
	Err    error
}

func (e *SessionStartError) Error() string {
	return fmt.Sprintf("failed to start %s browser session: %v", e.Engine, e.Err)
}

func (e *SessionStartError) Unwrap() error {
	return e.Err
}

// ElementNotFoundError means a page element did not appear within the
// element lookup timeout.
type ElementNotFoundError struct {
	Selector string
	Err      error
}

func (e *ElementNotFoundError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("element %s not found", e.Selector)
	}
	return fmt.Sprintf("element %s not found: %v", e.Selector, e.Err)
}

func (e *ElementNotFoundError) Unwrap() error {
	return e.Err
}

// TimeoutError means an explicit wait or a page load expired.
type TimeoutError struct {
	Selector string
	After    time.Duration
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %v waiting for %s", e.After, e.Selector)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}
