package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/averto/go-invoice-backend/internal/domain"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type fakeRateStore struct {
	rec    *domain.RateLimit
	getErr error
	incErr error
	resets int
	incs   int
}

func (f *fakeRateStore) GetRateLimit(_ context.Context, _ *gorm.DB, _, _ string) (*domain.RateLimit, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.rec, nil
}

func (f *fakeRateStore) ResetRateLimit(_ context.Context, _ *gorm.DB, userID, scope string, windowStart time.Time) error {
	f.resets++
	f.rec = &domain.RateLimit{UserID: userID, Scope: scope, RequestCount: 1, WindowStart: windowStart}
	return nil
}

func (f *fakeRateStore) IncrementRateLimit(_ context.Context, _ *gorm.DB, _, _ string, _ time.Time) (int, error) {
	if f.incErr != nil {
		return 0, f.incErr
	}
	f.incs++
	f.rec.RequestCount++
	return f.rec.RequestCount, nil
}

func newLimiter(store *fakeRateStore, max int) *RateLimiter {
	return &RateLimiter{
		Store:  store,
		Scope:  "messages",
		Max:    max,
		Window: time.Hour,
		Now:    func() time.Time { return testNow },
	}
}

func TestRateLimiterFirstRequestStartsWindow(t *testing.T) {
	store := &fakeRateStore{}
	rl := newLimiter(store, 3)

	if err := rl.Allow(context.Background(), "u1"); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if store.resets != 1 {
		t.Fatalf("resets = %d, want 1", store.resets)
	}
	if store.rec.RequestCount != 1 {
		t.Fatalf("count = %d, want 1", store.rec.RequestCount)
	}
}

func TestRateLimiterUnderCap(t *testing.T) {
	store := &fakeRateStore{rec: &domain.RateLimit{
		UserID: "u1", Scope: "messages", RequestCount: 1, WindowStart: testNow.Add(-10 * time.Minute),
	}}
	rl := newLimiter(store, 3)

	if err := rl.Allow(context.Background(), "u1"); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if store.rec.RequestCount != 2 {
		t.Fatalf("count = %d, want 2", store.rec.RequestCount)
	}
}

func TestRateLimiterAtCapRejects(t *testing.T) {
	start := testNow.Add(-10 * time.Minute)
	store := &fakeRateStore{rec: &domain.RateLimit{
		UserID: "u1", Scope: "messages", RequestCount: 3, WindowStart: start,
	}}
	rl := newLimiter(store, 3)

	err := rl.Allow(context.Background(), "u1")
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("Allow = %v, want LimitError", err)
	}
	if le.Kind != KindRateLimited {
		t.Fatalf("kind = %q, want %q", le.Kind, KindRateLimited)
	}
	if want := start.Add(time.Hour); !le.ResetAt.Equal(want) {
		t.Fatalf("ResetAt = %v, want %v", le.ResetAt, want)
	}
	if store.incs != 0 {
		t.Fatalf("incs = %d, want 0", store.incs)
	}
}

func TestRateLimiterExpiredWindowResets(t *testing.T) {
	store := &fakeRateStore{rec: &domain.RateLimit{
		UserID: "u1", Scope: "messages", RequestCount: 99, WindowStart: testNow.Add(-2 * time.Hour),
	}}
	rl := newLimiter(store, 3)

	if err := rl.Allow(context.Background(), "u1"); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if store.rec.RequestCount != 1 {
		t.Fatalf("count = %d, want 1 after reset", store.rec.RequestCount)
	}
	if !store.rec.WindowStart.Equal(testNow) {
		t.Fatalf("window start = %v, want %v", store.rec.WindowStart, testNow)
	}
}

func TestRateLimiterFailsOpenOnLookupError(t *testing.T) {
	store := &fakeRateStore{getErr: errors.New("db down")}
	rl := newLimiter(store, 3)

	if err := rl.Allow(context.Background(), "u1"); err != nil {
		t.Fatalf("Allow = %v, want nil on store failure", err)
	}
}

func TestRateLimiterFailsOpenOnIncrementError(t *testing.T) {
	store := &fakeRateStore{
		rec:    &domain.RateLimit{UserID: "u1", Scope: "messages", RequestCount: 1, WindowStart: testNow},
		incErr: errors.New("db down"),
	}
	rl := newLimiter(store, 3)

	if err := rl.Allow(context.Background(), "u1"); err != nil {
		t.Fatalf("Allow = %v, want nil on store failure", err)
	}
}

type fakeSubStore struct {
	sub *domain.Subscription
	err error
}

func (f *fakeSubStore) CheckAndResetMonthly(_ context.Context, _ *gorm.DB, _ string, _ time.Time) (*domain.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sub, nil
}

func newQuota(store *fakeSubStore) *Quota {
	return &Quota{Store: store, FreeLimit: 5, Now: func() time.Time { return testNow }}
}

func TestQuotaFreeUnderCap(t *testing.T) {
	q := newQuota(&fakeSubStore{sub: &domain.Subscription{
		UserID: "u1", Status: domain.SubscriptionFree, InvoicesThisMonth: 4,
	}})

	sub, err := q.Check(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got := q.Remaining(sub); got != 1 {
		t.Fatalf("Remaining = %d, want 1", got)
	}
}

func TestQuotaFreeAtCapRejects(t *testing.T) {
	q := newQuota(&fakeSubStore{sub: &domain.Subscription{
		UserID: "u1", Status: domain.SubscriptionFree, InvoicesThisMonth: 5,
	}})

	_, err := q.Check(context.Background(), "u1")
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("Check = %v, want LimitError", err)
	}
	if le.Kind != KindQuotaExceeded {
		t.Fatalf("kind = %q, want %q", le.Kind, KindQuotaExceeded)
	}
	if le.Limit != 5 || le.Used != 5 {
		t.Fatalf("limit/used = %d/%d, want 5/5", le.Limit, le.Used)
	}
}

func TestQuotaProUncapped(t *testing.T) {
	q := newQuota(&fakeSubStore{sub: &domain.Subscription{
		UserID: "u1", Status: domain.SubscriptionPro, InvoicesThisMonth: 5000,
	}})

	sub, err := q.Check(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got := q.Remaining(sub); got != -1 {
		t.Fatalf("Remaining = %d, want -1", got)
	}
}

func TestQuotaFailsClosedOnStoreError(t *testing.T) {
	q := newQuota(&fakeSubStore{err: errors.New("db down")})

	if _, err := q.Check(context.Background(), "u1"); err == nil {
		t.Fatal("Check = nil, want error on store failure")
	}
}
