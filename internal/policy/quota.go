package policy

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/averto/go-invoice-backend/internal/domain"
)

// SubscriptionStore defines the persistence contract required by Quota.
type SubscriptionStore interface {
	// CheckAndResetMonthly loads the user's subscription, creating a free
	// tier record when absent, and zeroes the monthly counter when the
	// calendar month has rolled over since the last reset.
	CheckAndResetMonthly(ctx context.Context, db *gorm.DB, userID string, now time.Time) (*domain.Subscription, error)
}

// Quota gates invoice creation on the user's monthly allowance. Free tier
// users get FreeLimit invoices per calendar month; pro users are uncapped.
// Unlike the message rate limit this check fails closed: an unreadable
// subscription must not mint billable documents.
type Quota struct {
	// DB is the GORM handle passed through to the store.
	DB *gorm.DB
	// Store is the subscription repository.
	Store SubscriptionStore

	// FreeLimit is the monthly invoice cap for free tier users.
	FreeLimit int

	// Now allows tests to pin the clock; defaults to time.Now.
	Now func() time.Time
}

// Check returns the user's current subscription standing, or a *LimitError
// when a free tier user has exhausted the month's allowance. Store errors
// are returned as-is so the caller aborts the invoice.
func (q *Quota) Check(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := q.Store.CheckAndResetMonthly(ctx, q.DB, userID, q.now())
	if err != nil {
		return nil, fmt.Errorf("quota check: %w", err)
	}
	if !sub.IsPro() && sub.InvoicesThisMonth >= q.FreeLimit {
		return sub, quotaExceeded(q.FreeLimit, sub.InvoicesThisMonth)
	}
	return sub, nil
}

// Standing returns the subscription and its remaining allowance without
// enforcing the cap. Used by read-only surfaces such as the subscription
// status endpoint.
func (q *Quota) Standing(ctx context.Context, userID string) (*domain.Subscription, int, error) {
	sub, err := q.Store.CheckAndResetMonthly(ctx, q.DB, userID, q.now())
	if err != nil {
		return nil, 0, fmt.Errorf("quota standing: %w", err)
	}
	return sub, q.Remaining(sub), nil
}

// Remaining reports how many invoices the subscription may still create
// this month. Pro subscriptions return -1 (unlimited).
func (q *Quota) Remaining(sub *domain.Subscription) int {
	if sub.IsPro() {
		return -1
	}
	left := q.FreeLimit - sub.InvoicesThisMonth
	if left < 0 {
		return 0
	}
	return left
}

func (q *Quota) now() time.Time {
	if q.Now != nil {
		return q.Now()
	}
	return time.Now().UTC()
}
