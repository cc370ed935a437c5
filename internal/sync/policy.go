package sync

import "time"

// Decision is the outcome a RetryPolicy picks for a failed mutation.
type Decision int

const (
	// DecisionHalt leaves the mutation in the queue untouched and stops the
	// current pass. This is the legacy failure mode.
	DecisionHalt Decision = iota

	// DecisionRetry increments the retry bookkeeping, persists the mutation
	// back in place and backs off before the pass stops.
	DecisionRetry

	// DecisionDeadLetter moves the mutation to the dead-letter store.
	DecisionDeadLetter
)

// RetryPolicy decides what happens when applying a mutation fails. The
// policy is chosen at engine construction; it never changes mid-pass.
type RetryPolicy interface {
	// Decide maps the mutation's current retry count to a decision.
	Decide(retryCount int) Decision

	// Delay returns the backoff to sleep before the pass stops, given the
	// retry count prior to incrementing. Only meaningful for DecisionRetry.
	Delay(retryCount int) time.Duration
}

// NoRetry is the legacy failure mode: any failure halts the pass immediately
// and the mutation stays in the queue unchanged. No backoff, no dead-letter.
type NoRetry struct{}

func (NoRetry) Decide(int) Decision     { return DecisionHalt }
func (NoRetry) Delay(int) time.Duration { return 0 }

// ExponentialBackoff retries up to MaxAttempts times with BaseDelay doubling
// on each attempt, then dead-letters. With MaxAttempts 3 and BaseDelay 1s the
// delays are 1s, 2s, 4s.
type ExponentialBackoff struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func (p ExponentialBackoff) Decide(retryCount int) Decision {
	if retryCount < p.MaxAttempts {
		return DecisionRetry
	}
	return DecisionDeadLetter
}

func (p ExponentialBackoff) Delay(retryCount int) time.Duration {
	return p.BaseDelay << uint(retryCount)
}

// DefaultRetryPolicy returns the reference retry behavior: three retries
// with exponential backoff starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return ExponentialBackoff{MaxAttempts: 3, BaseDelay: time.Second}
}
