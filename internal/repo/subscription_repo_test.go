package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/averto/go-invoice-backend/internal/domain"
)

func newSubRepoDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("sub_repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(&domain.Subscription{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestCheckAndResetMonthly_CreatesFreeRecord(t *testing.T) {
	db := newSubRepoDB(t)
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	sub, err := CheckAndResetMonthly(context.Background(), db, "u1", now)
	if err != nil {
		t.Fatalf("CheckAndResetMonthly: %v", err)
	}
	if sub.Status != domain.SubscriptionFree || sub.InvoicesThisMonth != 0 {
		t.Fatalf("unexpected new subscription: %+v", sub)
	}
	if !sub.LastReset.Equal(now) {
		t.Fatalf("LastReset = %v, want %v", sub.LastReset, now)
	}
}

func TestCheckAndResetMonthly_SameMonthKeepsCount(t *testing.T) {
	db := newSubRepoDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	if _, err := CheckAndResetMonthly(ctx, db, "u1", now.AddDate(0, 0, -10)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if ok, err := IncrementMonthlyInvoicesUnder(ctx, db, "u1", 5); err != nil || !ok {
			t.Fatalf("increment %d: ok=%v err=%v", i, ok, err)
		}
	}

	sub, err := CheckAndResetMonthly(ctx, db, "u1", now)
	if err != nil {
		t.Fatalf("CheckAndResetMonthly: %v", err)
	}
	if sub.InvoicesThisMonth != 3 {
		t.Fatalf("count = %d, want 3 within the same month", sub.InvoicesThisMonth)
	}
}

func TestCheckAndResetMonthly_NewMonthResets(t *testing.T) {
	db := newSubRepoDB(t)
	ctx := context.Background()

	feb := time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC)
	if _, err := CheckAndResetMonthly(ctx, db, "u1", feb); err != nil {
		t.Fatalf("seed: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := IncrementMonthlyInvoicesUnder(ctx, db, "u1", 5); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	mar := time.Date(2026, 3, 1, 0, 30, 0, 0, time.UTC)
	sub, err := CheckAndResetMonthly(ctx, db, "u1", mar)
	if err != nil {
		t.Fatalf("CheckAndResetMonthly: %v", err)
	}
	if sub.InvoicesThisMonth != 0 {
		t.Fatalf("count = %d, want 0 after month rollover", sub.InvoicesThisMonth)
	}
	if !sub.LastReset.Equal(mar) {
		t.Fatalf("LastReset = %v, want %v", sub.LastReset, mar)
	}
}

func TestIncrementMonthlyInvoicesUnder_StopsAtCap(t *testing.T) {
	db := newSubRepoDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	if _, err := CheckAndResetMonthly(ctx, db, "u1", now); err != nil {
		t.Fatalf("seed: %v", err)
	}
	for i := 0; i < 5; i++ {
		ok, err := IncrementMonthlyInvoicesUnder(ctx, db, "u1", 5)
		if err != nil || !ok {
			t.Fatalf("increment %d: ok=%v err=%v", i, ok, err)
		}
	}

	ok, err := IncrementMonthlyInvoicesUnder(ctx, db, "u1", 5)
	if err != nil {
		t.Fatalf("increment at cap: %v", err)
	}
	if ok {
		t.Fatal("increment at cap succeeded, want refusal")
	}

	sub, err := CheckAndResetMonthly(ctx, db, "u1", now)
	if err != nil {
		t.Fatalf("CheckAndResetMonthly: %v", err)
	}
	if sub.InvoicesThisMonth != 5 {
		t.Fatalf("count = %d, want 5", sub.InvoicesThisMonth)
	}
}

func TestIncrementMonthlyInvoicesUnder_ProIgnoresCap(t *testing.T) {
	db := newSubRepoDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	if _, err := CheckAndResetMonthly(ctx, db, "u1", now); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := UpdateSubscriptionStatus(ctx, db, "u1", domain.SubscriptionPro); err != nil {
		t.Fatalf("UpdateSubscriptionStatus: %v", err)
	}

	for i := 0; i < 8; i++ {
		ok, err := IncrementMonthlyInvoicesUnder(ctx, db, "u1", 5)
		if err != nil || !ok {
			t.Fatalf("pro increment %d: ok=%v err=%v", i, ok, err)
		}
	}

	sub, err := CheckAndResetMonthly(ctx, db, "u1", now)
	if err != nil {
		t.Fatalf("CheckAndResetMonthly: %v", err)
	}
	if sub.InvoicesThisMonth != 8 {
		t.Fatalf("count = %d, want 8", sub.InvoicesThisMonth)
	}
}
