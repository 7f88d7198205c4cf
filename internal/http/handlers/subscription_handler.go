// Subscription HTTP handlers.
//
// This file exposes the billing-standing endpoint:
//   - GET /subscription (tier, monthly usage, remaining allowance)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/averto/go-invoice-backend/internal/domain"
	"github.com/averto/go-invoice-backend/internal/http/middleware"
)

// SubscriptionResponse reports the caller's billing standing.
type SubscriptionResponse struct {
	Subscription *domain.Subscription `json:"subscription"`
	// InvoicesRemaining is the free-tier allowance left this month;
	// -1 means unlimited (pro).
	InvoicesRemaining int `json:"invoices_remaining"`
}

// GetSubscription godoc
// @ID          getSubscription
// @Summary     Get the caller's subscription standing
// @Description Returns the subscription tier, invoices created this month, and the remaining allowance.
// @Tags        Subscription
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)" example(user123)
//
// @Success     200  {object} handlers.SubscriptionResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /subscription [get]
func (h *Handlers) GetSubscription(c *gin.Context) {
	sub, remaining, err := h.subSvc.Status(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, SubscriptionResponse{
		Subscription:      sub,
		InvoicesRemaining: remaining,
	})
}
