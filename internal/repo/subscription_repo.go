// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Subscription model and its monthly invoice counter.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/averto/go-invoice-backend/internal/domain"
)

// CheckAndResetMonthly loads the subscription for userID, creating a free
// tier record on first contact. When the calendar month (or year) of
// LastReset differs from now, the monthly counter is zeroed before the
// record is returned. The reset is lazy: it happens on read, not on a
// schedule.
func CheckAndResetMonthly(ctx context.Context, db *gorm.DB, userID string, now time.Time) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&sub).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
		sub = domain.Subscription{
			UserID:    userID,
			Status:    domain.SubscriptionFree,
			LastReset: now,
			CreatedAt: now,
		}
		if err := db.WithContext(ctx).Create(&sub).Error; err != nil {
			return nil, err
		}
		return &sub, nil
	}

	if sub.LastReset.Year() != now.Year() || sub.LastReset.Month() != now.Month() {
		res := db.WithContext(ctx).
			Model(&domain.Subscription{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{"invoices_this_month": 0, "last_reset": now})
		if res.Error != nil {
			return nil, res.Error
		}
		sub.InvoicesThisMonth = 0
		sub.LastReset = now
	}
	return &sub, nil
}

// IncrementMonthlyInvoicesUnder atomically bumps the monthly counter for a
// free tier user, but only while the pre-increment value is below cap. Pro
// subscriptions always increment. The cap lives in the WHERE clause so two
// concurrent invoice creations cannot both pass a check-then-act gate: the
// loser sees zero rows affected and the function reports false.
func IncrementMonthlyInvoicesUnder(ctx context.Context, db *gorm.DB, userID string, limit int) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("user_id = ? AND (status = ? OR invoices_this_month < ?)", userID, domain.SubscriptionPro, limit).
		Update("invoices_this_month", gorm.Expr("invoices_this_month + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateSubscriptionStatus switches the user's billing tier.
func UpdateSubscriptionStatus(ctx context.Context, db *gorm.DB, userID, status string) error {
	res := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("user_id = ?", userID).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
