// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Invoice
// model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/averto/go-invoice-backend/internal/domain"
	"github.com/averto/go-invoice-backend/internal/invoice"
)

// CreateInvoice inserts a validated invoice in DRAFT status, linked to the
// conversation it was extracted from.
func CreateInvoice(ctx context.Context, db *gorm.DB, userID, conversationID string, data invoice.Data) (*domain.Invoice, error) {
	inv := &domain.Invoice{
		ID:             uuid.NewString(),
		UserID:         userID,
		ConversationID: conversationID,
		Data:           data,
		Status:         domain.InvoiceDraft,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(inv).Error; err != nil {
		return nil, err
	}
	return inv, nil
}

// GetInvoice fetches a single invoice by ID and owner, or ErrNotFound.
func GetInvoice(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// CountInvoices returns the number of invoices owned by userID, optionally
// restricted to one status. An empty status counts all statuses.
func CountInvoices(ctx context.Context, db *gorm.DB, userID string, status domain.InvoiceStatus) (int64, error) {
	var total int64
	q := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Count(&total).Error
	return total, err
}

// ListInvoicesPage returns a paginated slice of invoices for userID, ordered
// by creation time descending. An empty status means all statuses.
func ListInvoicesPage(ctx context.Context, db *gorm.DB, userID string, status domain.InvoiceStatus, offset, limit int) ([]domain.Invoice, error) {
	var out []domain.Invoice
	q := db.WithContext(ctx).
		Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateInvoiceStatus moves an invoice to next, but only when its current
// status matches from. The guard in the WHERE clause makes the transition
// race-safe: a concurrent writer changing the status first leaves zero rows
// affected, reported here as ErrNotFound.
func UpdateInvoiceStatus(ctx context.Context, db *gorm.DB, id, userID string, from, next domain.InvoiceStatus) error {
	res := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, from).
		Update("status", next)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetDocumentKey records the storage locator of the rendered invoice document.
func SetDocumentKey(ctx context.Context, db *gorm.DB, id, userID, key string) error {
	res := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("document_key", key)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
