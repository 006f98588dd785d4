package zoom

import "fmt"

// TransientError reports a retryable condition (429, 5xx, connection
// failure) whose retry budget was exhausted. The orchestrator treats it as a
// run failure; the watermark stays put and the next run retries the window.
type TransientError struct {
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient api error after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// FatalError reports a non-retryable API rejection, e.g. invalid credentials
// or a malformed window. Never retried.
type FatalError struct {
	StatusCode int
	Message    string
}

func (e *FatalError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("fatal api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("fatal api error: status %d: %s", e.StatusCode, e.Message)
}

// statusError is the internal pre-classification of a failed request. It
// carries the provider's rate-limit-reset hint when one was given.
type statusError struct {
	status     int
	retryAfter int // seconds, 0 when absent
	err        error
}

func (e *statusError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("unexpected status: %d", e.status)
}

func (e *statusError) Unwrap() error {
	return e.err
}
