// Package backoff implements the two backoff schedules of spec.md Section
// 4: the link manager's reconnect schedule (Section 4.5, 1/2/4/8/16s
// capped, max 5 attempts) and the recognizer's real-error policy (Section
// 4.10, base 1s cap 30s, halting after 5 consecutive real errors). Both
// are built on github.com/cenkalti/backoff's ExponentialBackOff, the same
// library the teacher pulls in indirectly through its webrtc dependency
// chain and which speech2prompt promotes to a direct dependency.
package backoff

import (
	"time"

	cenkalti "github.com/cenkalti/backoff"
)

// Policy computes successive retry delays with an exponential schedule
// capped at MaxInterval, and reports when the attempt budget is exhausted.
// Not safe for concurrent use; callers own one Policy per connection or
// per recognizer instance, matching the teacher's one-BackoffCalculator-
// per-exchange lifetime.
type Policy struct {
	eb          *cenkalti.ExponentialBackOff
	maxAttempts int
	attempt     int
}

// NewReconnectPolicy returns the link manager's reconnect schedule:
// delays 1, 2, 4, 8, 16 seconds (cap 16s), no jitter, max 5 attempts
// (spec.md Section 4.5).
func NewReconnectPolicy() *Policy {
	return newPolicy(1*time.Second, 16*time.Second, 5)
}

// NewRealErrorPolicy returns the recognizer's real-error backoff:
// base·2^(n-1) with base=1s, cap=30s, max 5 consecutive attempts before
// the caller must stop and require user action (spec.md Section 4.10).
func NewRealErrorPolicy() *Policy {
	return newPolicy(1*time.Second, 30*time.Second, 5)
}

// NewPolicy returns a Policy with an arbitrary base/cap/attempt budget,
// for callers that source these from config.Config rather than using one
// of the two named defaults above.
func NewPolicy(base, maxInterval time.Duration, maxAttempts int) *Policy {
	return newPolicy(base, maxInterval, maxAttempts)
}

func newPolicy(base, maxInterval time.Duration, maxAttempts int) *Policy {
	eb := &cenkalti.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxInterval,
		MaxElapsedTime:      0, // attempts are capped by us, not elapsed time
		Clock:               cenkalti.SystemClock,
	}
	eb.Reset()
	return &Policy{eb: eb, maxAttempts: maxAttempts}
}

// Next returns the delay before the next attempt and true, or
// (0, false) if the attempt budget is exhausted (spec.md's "stop and
// require user action").
func (p *Policy) Next() (time.Duration, bool) {
	if p.attempt >= p.maxAttempts {
		return 0, false
	}
	p.attempt++
	return p.eb.NextBackOff(), true
}

// Attempt returns the 1-indexed count of delays handed out so far.
func (p *Policy) Attempt() int {
	return p.attempt
}

// Reset clears the attempt counter and schedule, called on any successful
// reconnect or any non-error recognizer result (spec.md's "reset the
// counter on any successful reconnect" / "reset consecutive-error
// counter").
func (p *Policy) Reset() {
	p.attempt = 0
	p.eb.Reset()
}

// RateLimitDelay is the fixed delay after a rate-limited error,
// independent of attempt count (spec.md Section 4.10).
const RateLimitDelay = 30 * time.Second
