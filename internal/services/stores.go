package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/averto/go-invoice-backend/internal/domain"
	"github.com/averto/go-invoice-backend/internal/policy"
	"github.com/averto/go-invoice-backend/internal/repo"
)

// RateStore adapts the repo package to policy.RateStore.
type RateStore struct{}

var _ policy.RateStore = RateStore{}

func (RateStore) GetRateLimit(ctx context.Context, db *gorm.DB, userID, scope string) (*domain.RateLimit, error) {
	return repo.GetRateLimit(ctx, db, userID, scope)
}

func (RateStore) ResetRateLimit(ctx context.Context, db *gorm.DB, userID, scope string, windowStart time.Time) error {
	return repo.ResetRateLimit(ctx, db, userID, scope, windowStart)
}

func (RateStore) IncrementRateLimit(ctx context.Context, db *gorm.DB, userID, scope string, windowStart time.Time) (int, error) {
	return repo.IncrementRateLimit(ctx, db, userID, scope, windowStart)
}

// SubscriptionStore adapts the repo package to policy.SubscriptionStore.
type SubscriptionStore struct{}

var _ policy.SubscriptionStore = SubscriptionStore{}

func (SubscriptionStore) CheckAndResetMonthly(ctx context.Context, db *gorm.DB, userID string, now time.Time) (*domain.Subscription, error) {
	return repo.CheckAndResetMonthly(ctx, db, userID, now)
}
