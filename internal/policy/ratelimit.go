package policy

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/averto/go-invoice-backend/internal/domain"
)

// RateStore defines the persistence contract required by RateLimiter.
type RateStore interface {
	// GetRateLimit fetches the counter row for (userID, scope).
	// It returns (nil, nil) when no row exists yet.
	GetRateLimit(ctx context.Context, db *gorm.DB, userID, scope string) (*domain.RateLimit, error)

	// ResetRateLimit upserts the row with count 1 and a fresh window start.
	ResetRateLimit(ctx context.Context, db *gorm.DB, userID, scope string, windowStart time.Time) error

	// IncrementRateLimit atomically bumps the counter for the given window
	// and returns the post-increment count. A zero count means the row's
	// window no longer matches (another caller reset it concurrently).
	IncrementRateLimit(ctx context.Context, db *gorm.DB, userID, scope string, windowStart time.Time) (int, error)
}

// RateLimiter enforces a sliding-window cap on message sends. The window is
// tracked per user in the store so the limit holds across process restarts
// and replicas. Store failures never block a message: chat traffic is cheap
// and a user locked out by a flaky counter is worse than a few extra calls.
type RateLimiter struct {
	// DB is the GORM handle passed through to the store.
	DB *gorm.DB
	// Store is the counter repository.
	Store RateStore

	// Scope namespaces the counter (e.g. "messages").
	Scope string
	// Max is the number of requests allowed per window.
	Max int
	// Window is the sliding window duration.
	Window time.Duration

	// Now allows tests to pin the clock; defaults to time.Now.
	Now func() time.Time
}

// Allow records one request for userID and returns a *LimitError when the
// user is over the cap. Any store error is swallowed and the request is
// admitted (fail open).
func (r *RateLimiter) Allow(ctx context.Context, userID string) error {
	now := r.now()

	rec, err := r.Store.GetRateLimit(ctx, r.DB, userID, r.Scope)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("rate limit lookup failed, allowing request")
		return nil
	}

	if rec == nil || rec.Expired(r.Window, now) {
		if err := r.Store.ResetRateLimit(ctx, r.DB, userID, r.Scope, now); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("rate limit reset failed, allowing request")
		}
		return nil
	}

	if rec.RequestCount >= r.Max {
		return rateLimited(rec.WindowStart.Add(r.Window))
	}

	count, err := r.Store.IncrementRateLimit(ctx, r.DB, userID, r.Scope, rec.WindowStart)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("rate limit increment failed, allowing request")
		return nil
	}
	if count > r.Max {
		// Lost a race to other increments in the same window.
		return rateLimited(rec.WindowStart.Add(r.Window))
	}
	return nil
}

func (r *RateLimiter) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}
