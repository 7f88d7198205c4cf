// Package policy enforces per-user usage limits: a sliding-window message
// rate limit and a calendar-month invoice quota with tier-based caps. Both
// are thin decision layers over store-backed counters; they own no other
// state, so concurrent handler invocations coordinate only through the
// store's atomic increments.
package policy

import (
	"fmt"
	"time"
)

// Limit error kinds, stable and machine-readable.
const (
	KindRateLimited   = "rate_limited"
	KindQuotaExceeded = "quota_exceeded"
)

// LimitError reports a policy rejection. It is never an internal failure:
// handlers map it onto 429 (rate) or an upgrade prompt (quota) and the
// message is safe to show to the end user.
type LimitError struct {
	Kind    string
	Message string

	// ResetAt is when the current window lapses (rate limits only).
	ResetAt time.Time
	// Limit and Used describe the quota standing (invoice quota only).
	Limit int
	Used  int
}

// Error implements the error interface.
func (e *LimitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind
}

func rateLimited(resetAt time.Time) *LimitError {
	return &LimitError{
		Kind:    KindRateLimited,
		Message: fmt.Sprintf("rate limit exceeded, try again after %s", resetAt.UTC().Format(time.RFC3339)),
		ResetAt: resetAt,
	}
}

func quotaExceeded(limit, used int) *LimitError {
	return &LimitError{
		Kind:    KindQuotaExceeded,
		Message: fmt.Sprintf("monthly invoice limit of %d reached", limit),
		Limit:   limit,
		Used:    used,
	}
}
