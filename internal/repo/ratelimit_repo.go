// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the RateLimit
// window counters.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/averto/go-invoice-backend/internal/domain"
)

// GetRateLimit fetches the counter row for (userID, scope). It returns
// (nil, nil) when no row exists so callers can distinguish "no window yet"
// from a store failure.
func GetRateLimit(ctx context.Context, db *gorm.DB, userID, scope string) (*domain.RateLimit, error) {
	var rec domain.RateLimit
	err := db.WithContext(ctx).
		Where("user_id = ? AND scope = ?", userID, scope).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ResetRateLimit upserts the counter to 1 with a fresh window start.
func ResetRateLimit(ctx context.Context, db *gorm.DB, userID, scope string, windowStart time.Time) error {
	rec := &domain.RateLimit{
		UserID:       userID,
		Scope:        scope,
		RequestCount: 1,
		WindowStart:  windowStart,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "scope"}},
			DoUpdates: clause.Assignments(map[string]any{"request_count": 1, "window_start": windowStart}),
		}).
		Create(rec).Error
}

// IncrementRateLimit atomically bumps the counter, but only while the row
// still belongs to the window that started at windowStart. It returns the
// post-increment count, or 0 when the row's window moved on (a concurrent
// reset); the caller treats that as an admit.
func IncrementRateLimit(ctx context.Context, db *gorm.DB, userID, scope string, windowStart time.Time) (int, error) {
	res := db.WithContext(ctx).
		Model(&domain.RateLimit{}).
		Where("user_id = ? AND scope = ? AND window_start = ?", userID, scope, windowStart).
		Update("request_count", gorm.Expr("request_count + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, nil
	}
	var rec domain.RateLimit
	if err := db.WithContext(ctx).
		Where("user_id = ? AND scope = ?", userID, scope).
		First(&rec).Error; err != nil {
		return 0, err
	}
	return rec.RequestCount, nil
}
