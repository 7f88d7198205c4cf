package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/averto/go-invoice-backend/internal/domain"
	"github.com/averto/go-invoice-backend/internal/http/middleware"
)

type fakeSubSvc struct {
	sub       *domain.Subscription
	remaining int
	err       error
	lastUser  string
}

func (f *fakeSubSvc) Status(_ context.Context, userID string) (*domain.Subscription, int, error) {
	f.lastUser = userID
	return f.sub, f.remaining, f.err
}

func newSubscriptionRouter(sub SubscriptionService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Identity())
	h := New(stubConvSvc{}, stubInvSvc{}, sub)
	r.GET("/subscription", h.GetSubscription)
	return r
}

func TestGetSubscription(t *testing.T) {
	svc := &fakeSubSvc{
		sub: &domain.Subscription{
			UserID:            "u1",
			Status:            domain.SubscriptionFree,
			InvoicesThisMonth: 3,
		},
		remaining: 2,
	}
	r := newSubscriptionRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/subscription", nil)
	req.Header.Set(middleware.HeaderUserID, "u1")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if svc.lastUser != "u1" {
		t.Fatalf("service saw user %q", svc.lastUser)
	}
	var res SubscriptionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Subscription == nil || res.Subscription.InvoicesThisMonth != 3 || res.InvoicesRemaining != 2 {
		t.Fatalf("unexpected response: %+v", res)
	}
}

func TestGetSubscription_ServiceError(t *testing.T) {
	r := newSubscriptionRouter(&fakeSubSvc{err: errors.New("db down")})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/subscription", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var er ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &er)
	if er.Code != ErrCodeInternal {
		t.Fatalf("code = %q", er.Code)
	}
}
