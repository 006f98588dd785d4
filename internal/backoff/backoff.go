// Package backoff provides the bounded retry policy used by the Zoom client.
// Transient-versus-fatal classification lives with the caller; this package
// only answers "how long to wait before attempt N, if at all".
package backoff

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

// ErrRetriesExhausted is returned once the attempt budget is spent.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Policy computes the wait before a retry. attempt is zero-based: the first
// retry asks for attempt 0.
type Policy interface {
	NextInterval(attempt int) (time.Duration, error)
}

// ExponentialPolicy doubles the interval per attempt (by Factor), caps it at
// MaxInterval and adds up to JitterFraction of random jitter so that
// concurrent report types do not retry in lockstep.
type ExponentialPolicy struct {
	InitialInterval time.Duration
	Factor          float64
	MaxInterval     time.Duration
	MaxRetries      int
	JitterFraction  float64
}

// NewExponentialPolicy returns a policy with the given bounds and the
// defaults used throughout the connector (factor 2, 20% jitter).
func NewExponentialPolicy(initial, maxInterval time.Duration, maxRetries int) *ExponentialPolicy {
	return &ExponentialPolicy{
		InitialInterval: initial,
		Factor:          2.0,
		MaxInterval:     maxInterval,
		MaxRetries:      maxRetries,
		JitterFraction:  0.2,
	}
}

func (p *ExponentialPolicy) NextInterval(attempt int) (time.Duration, error) {
	if p.MaxRetries > 0 && attempt >= p.MaxRetries {
		return 0, ErrRetriesExhausted
	}

	interval := float64(p.InitialInterval) * math.Pow(p.Factor, float64(attempt))
	if interval > float64(p.MaxInterval) {
		interval = float64(p.MaxInterval)
	}
	if p.JitterFraction > 0 {
		interval += interval * p.JitterFraction * rand.Float64()
	}

	return time.Duration(interval), nil
}

// Retrier tracks attempt state for one operation.
type Retrier struct {
	policy  Policy
	attempt int
}

func NewRetrier(policy Policy) *Retrier {
	return &Retrier{policy: policy}
}

// Next returns the wait before the upcoming retry, or ErrRetriesExhausted.
func (r *Retrier) Next() (time.Duration, error) {
	interval, err := r.policy.NextInterval(r.attempt)
	if err != nil {
		return 0, err
	}
	r.attempt++
	return interval, nil
}

// Attempts returns how many retries have been handed out so far.
func (r *Retrier) Attempts() int {
	return r.attempt
}

// Reset clears the attempt counter, for reuse across independent requests.
func (r *Retrier) Reset() {
	r.attempt = 0
}
