// Invoice HTTP handlers.
//
// This file exposes REST endpoints for invoices produced by conversations:
//   - GET /invoices             (list, optional status filter, paginated, ETag)
//   - GET /invoices/{id}        (fetch one)
//   - PUT /invoices/{id}/status (advance the lifecycle)
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/averto/go-invoice-backend/internal/domain"
	"github.com/averto/go-invoice-backend/internal/http/middleware"
	"github.com/averto/go-invoice-backend/internal/repo"
	"github.com/averto/go-invoice-backend/internal/services"
)

//
// DTOs
//

// UpdateInvoiceStatusRequest is the JSON payload for a lifecycle update.
type UpdateInvoiceStatusRequest struct {
	// Status is the target lifecycle state: pending, paid, or cancelled.
	Status string `json:"status" binding:"required" example:"pending"`
}

// ListInvoicesResponse wraps a page of invoices and pagination information.
type ListInvoicesResponse struct {
	Invoices   []domain.Invoice `json:"invoices"`
	Pagination Pagination       `json:"pagination"`
}

//
// Handlers
//

// ListInvoices godoc
// @ID          listInvoices
// @Summary     List invoices (paginated)
// @Description Returns a page of the user's invoices, newest first, optionally filtered by status.
// @Tags        Invoices
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"          example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       status         query   string  false "Filter by status"               Enums(draft, pending, paid, cancelled)
// @Param       page           query   int     false "Page number"                    minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"                 minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListInvoicesResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Unknown status"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /invoices [get]
func (h *Handlers) ListInvoices(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)
	page, pageSize := clampPagination(c)
	status := domain.InvoiceStatus(strings.ToLower(strings.TrimSpace(c.Query("status"))))

	// ETag pre-check (best effort). Only for unfiltered listings; a filtered
	// page shares the same underlying rows, so the tag would be misleading.
	if db := h.conversationDB(); db != nil && status == "" {
		count, maxTS, err := repo.InvoicesStats(ctx, db, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"invoices:%s:%d:%d"`, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.invSvc.ListPage(ctx, uid, status, page, pageSize)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidStatus):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown invoice status")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}

	ok(c, http.StatusOK, ListInvoicesResponse{
		Invoices:   items,
		Pagination: paginationFor(page, pageSize, total),
	})
}

// GetInvoice godoc
// @ID          getInvoice
// @Summary     Fetch a single invoice
// @Tags        Invoices
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)" example(user123)
// @Param       id         path    string  true  "Invoice ID (UUID)"     format(uuid)
//
// @Success     200  {object} domain.Invoice
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Invoice not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /invoices/{id} [get]
func (h *Handlers) GetInvoice(c *gin.Context) {
	invoiceID := c.Param("id")
	if _, err := uuid.Parse(invoiceID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invoice id must be a UUID")
		return
	}

	inv, err := h.invSvc.Get(c.Request.Context(), middleware.UserID(c), invoiceID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvoiceNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "invoice not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, inv)
}

// UpdateInvoiceStatus godoc
// @ID          updateInvoiceStatus
// @Summary     Advance an invoice through its lifecycle
// @Description Moves an invoice along draft → pending → paid; cancellation is allowed before payment.
// @Tags        Invoices
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)" example(user123)
// @Param       id         path    string  true  "Invoice ID (UUID)"     format(uuid)
// @Param       body       body    handlers.UpdateInvoiceStatusRequest  true  "Target status"
//
// @Success     200  {object} domain.Invoice
// @Failure     400  {object} handlers.ErrorResponse "Bad request or unknown status"
// @Failure     404  {object} handlers.ErrorResponse "Invoice not found"
// @Failure     409  {object} handlers.ErrorResponse "Transition not allowed"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /invoices/{id}/status [put]
func (h *Handlers) UpdateInvoiceStatus(c *gin.Context) {
	invoiceID := c.Param("id")
	if _, err := uuid.Parse(invoiceID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invoice id must be a UUID")
		return
	}

	var req UpdateInvoiceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Status) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	next := domain.InvoiceStatus(strings.ToLower(strings.TrimSpace(req.Status)))

	inv, err := h.invSvc.UpdateStatus(c.Request.Context(), middleware.UserID(c), invoiceID, next)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidStatus):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown invoice status")
		case errors.Is(err, services.ErrInvoiceNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "invoice not found")
		case errors.Is(err, services.ErrInvalidStatusTransition):
			fail(c, http.StatusConflict, ErrCodeConflict, "invoice status transition not allowed")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeUpdateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, inv)
}
