// Package services – SubscriptionService
package services

import (
	"context"

	"github.com/averto/go-invoice-backend/internal/domain"
	"github.com/averto/go-invoice-backend/internal/policy"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SubscriptionService reports a user's billing tier and current monthly
// invoice usage. Reading the record also applies the lazy calendar-month
// counter reset.
type SubscriptionService struct {
	// Quota supplies the free-tier limit and the subscription store.
	Quota *policy.Quota
}

// Status returns the subscription record and the number of invoices the user
// may still create this month (-1 for unlimited).
func (s *SubscriptionService) Status(ctx context.Context, userID string) (*domain.Subscription, int, error) {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "Status",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	return s.Quota.Standing(ctx, userID)
}
