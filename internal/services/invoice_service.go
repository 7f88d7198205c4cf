// Package services – InvoiceService
//
// This file implements InvoiceService, which exposes read access to
// persisted invoices and enforces the status lifecycle on updates
// (DRAFT → PENDING → PAID, CANCELLED reachable before PAID). Invoice
// contents are immutable once created; only the status and the rendered
// document locator may change.
package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/averto/go-invoice-backend/internal/domain"
	"github.com/averto/go-invoice-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InvoiceService provides invoice listing, retrieval, and status updates.
type InvoiceService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// Get fetches one invoice owned by the user.
func (s *InvoiceService) Get(ctx context.Context, userID, invoiceID string) (*domain.Invoice, error) {
	tr := otel.Tracer("services/InvoiceService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(attribute.String("invoice.id", invoiceID)),
	)
	defer span.End()

	inv, err := repo.GetInvoice(ctx, s.DB, invoiceID, userID)
	if err != nil {
		return nil, ErrInvoiceNotFound
	}
	return inv, nil
}

// ListPage returns paginated invoices for a user, optionally filtered by
// status. An empty status means all statuses; an unknown one is rejected.
func (s *InvoiceService) ListPage(ctx context.Context, userID string, status domain.InvoiceStatus, page, pageSize int) ([]domain.Invoice, int64, error) {
	tr := otel.Tracer("services/InvoiceService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if status != "" && !validStatus(status) {
		return nil, 0, ErrInvalidStatus
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountInvoices(ctx, s.DB, userID, status)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Invoice{}, 0, nil
	}

	items, err := repo.ListInvoicesPage(ctx, s.DB, userID, status, offset, pageSize)
	return items, total, err
}

// UpdateStatus moves an invoice along its lifecycle. Illegal transitions
// (e.g. PAID → anything, DRAFT → PAID) are rejected with
// ErrInvalidStatusTransition.
func (s *InvoiceService) UpdateStatus(ctx context.Context, userID, invoiceID string, next domain.InvoiceStatus) (*domain.Invoice, error) {
	tr := otel.Tracer("services/InvoiceService")
	ctx, span := tr.Start(ctx, "UpdateStatus",
		trace.WithAttributes(
			attribute.String("invoice.id", invoiceID),
			attribute.String("invoice.status", string(next)),
		),
	)
	defer span.End()

	if !validStatus(next) {
		return nil, ErrInvalidStatus
	}

	inv, err := repo.GetInvoice(ctx, s.DB, invoiceID, userID)
	if err != nil {
		return nil, ErrInvoiceNotFound
	}
	if !inv.Status.CanTransition(next) {
		return nil, ErrInvalidStatusTransition
	}

	// The repo guards on the current status, so a concurrent transition
	// surfaces as not-found rather than silently double-applying.
	if err := repo.UpdateInvoiceStatus(ctx, s.DB, invoiceID, userID, inv.Status, next); err != nil {
		if err == repo.ErrNotFound {
			return nil, ErrInvalidStatusTransition
		}
		return nil, err
	}
	inv.Status = next
	return inv, nil
}

func validStatus(s domain.InvoiceStatus) bool {
	switch s {
	case domain.InvoiceDraft, domain.InvoicePending, domain.InvoicePaid, domain.InvoiceCancelled:
		return true
	default:
		return false
	}
}
