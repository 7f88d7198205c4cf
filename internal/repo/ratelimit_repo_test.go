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

func newRateRepoDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("rate_repo_test_%d.db", time.Now().UnixNano()))
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
	if err := db.AutoMigrate(&domain.RateLimit{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestGetRateLimit_NilWhenAbsent(t *testing.T) {
	db := newRateRepoDB(t)

	rec, err := GetRateLimit(context.Background(), db, "u1", "messages")
	if err != nil {
		t.Fatalf("GetRateLimit: %v", err)
	}
	if rec != nil {
		t.Fatalf("rec = %+v, want nil", rec)
	}
}

func TestResetRateLimit_UpsertsFreshWindow(t *testing.T) {
	db := newRateRepoDB(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	if err := ResetRateLimit(ctx, db, "u1", "messages", start); err != nil {
		t.Fatalf("ResetRateLimit: %v", err)
	}

	rec, err := GetRateLimit(ctx, db, "u1", "messages")
	if err != nil {
		t.Fatalf("GetRateLimit: %v", err)
	}
	if rec == nil || rec.RequestCount != 1 {
		t.Fatalf("rec = %+v, want count 1", rec)
	}

	// Resetting an existing row starts the window over.
	later := start.Add(2 * time.Hour)
	if err := ResetRateLimit(ctx, db, "u1", "messages", later); err != nil {
		t.Fatalf("ResetRateLimit again: %v", err)
	}
	rec, err = GetRateLimit(ctx, db, "u1", "messages")
	if err != nil {
		t.Fatalf("GetRateLimit: %v", err)
	}
	if rec.RequestCount != 1 || !rec.WindowStart.Equal(later) {
		t.Fatalf("rec = %+v, want count 1 at %v", rec, later)
	}
}

func TestIncrementRateLimit_BumpsWithinWindow(t *testing.T) {
	db := newRateRepoDB(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	if err := ResetRateLimit(ctx, db, "u1", "messages", start); err != nil {
		t.Fatalf("ResetRateLimit: %v", err)
	}

	for want := 2; want <= 4; want++ {
		count, err := IncrementRateLimit(ctx, db, "u1", "messages", start)
		if err != nil {
			t.Fatalf("IncrementRateLimit: %v", err)
		}
		if count != want {
			t.Fatalf("count = %d, want %d", count, want)
		}
	}
}

func TestIncrementRateLimit_ZeroWhenWindowMoved(t *testing.T) {
	db := newRateRepoDB(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	if err := ResetRateLimit(ctx, db, "u1", "messages", start); err != nil {
		t.Fatalf("ResetRateLimit: %v", err)
	}

	stale := start.Add(-time.Hour)
	count, err := IncrementRateLimit(ctx, db, "u1", "messages", stale)
	if err != nil {
		t.Fatalf("IncrementRateLimit: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0 for stale window", count)
	}
}

func TestRateLimit_ScopesAreIndependent(t *testing.T) {
	db := newRateRepoDB(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	if err := ResetRateLimit(ctx, db, "u1", "messages", start); err != nil {
		t.Fatalf("ResetRateLimit messages: %v", err)
	}
	if err := ResetRateLimit(ctx, db, "u1", "exports", start); err != nil {
		t.Fatalf("ResetRateLimit exports: %v", err)
	}
	if _, err := IncrementRateLimit(ctx, db, "u1", "messages", start); err != nil {
		t.Fatalf("IncrementRateLimit: %v", err)
	}

	rec, err := GetRateLimit(ctx, db, "u1", "exports")
	if err != nil {
		t.Fatalf("GetRateLimit: %v", err)
	}
	if rec.RequestCount != 1 {
		t.Fatalf("exports count = %d, want 1 (unaffected)", rec.RequestCount)
	}
}
