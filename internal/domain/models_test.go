package domain

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:domain_models?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(Conversation{}).TableName(): "conversations",
		(Message{}).TableName():      "messages",
		(Invoice{}).TableName():      "invoices",
		(Subscription{}).TableName(): "subscriptions",
		(RateLimit{}).TableName():    "rate_limits",
		(Idempotency{}).TableName():  "idempotency",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestConversationState_Transitions(t *testing.T) {
	cases := []struct {
		from, to ConversationState
		want     bool
	}{
		{StateInitiated, StateGatheringInfo, true},
		{StateInitiated, StateCompleted, true},
		{StateInitiated, StateAbandoned, true},
		{StateGatheringInfo, StateCompleted, true},
		{StateGatheringInfo, StateAbandoned, true},
		{StateGatheringInfo, StateGatheringInfo, true},
		{StateCompleted, StateGatheringInfo, false},
		{StateCompleted, StateAbandoned, false},
		{StateAbandoned, StateCompleted, false},
		{StateInitiated, StateInitiated, false},
		{StateInitiated, ConversationState("bogus"), false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s → %s) = %v; want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestConversationState_Terminal(t *testing.T) {
	if StateInitiated.Terminal() || StateGatheringInfo.Terminal() {
		t.Fatalf("non-terminal states reported terminal")
	}
	if !StateCompleted.Terminal() || !StateAbandoned.Terminal() {
		t.Fatalf("terminal states not reported terminal")
	}
}

func TestInvoiceStatus_Transitions(t *testing.T) {
	cases := []struct {
		from, to InvoiceStatus
		want     bool
	}{
		{InvoiceDraft, InvoicePending, true},
		{InvoiceDraft, InvoiceCancelled, true},
		{InvoiceDraft, InvoicePaid, false},
		{InvoicePending, InvoicePaid, true},
		{InvoicePending, InvoiceCancelled, true},
		{InvoicePending, InvoiceDraft, false},
		{InvoicePaid, InvoiceCancelled, false},
		{InvoicePaid, InvoicePending, false},
		{InvoiceCancelled, InvoicePending, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s → %s) = %v; want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestSubscription_IsPro(t *testing.T) {
	if (Subscription{Status: SubscriptionFree}).IsPro() {
		t.Fatalf("free tier reported as pro")
	}
	if !(Subscription{Status: SubscriptionPro}).IsPro() {
		t.Fatalf("pro tier not reported as pro")
	}
}

func TestRateLimit_Expired(t *testing.T) {
	now := time.Now().UTC()
	rl := RateLimit{WindowStart: now.Add(-time.Minute)}
	if !rl.Expired(time.Minute, now) {
		t.Fatalf("elapsed window not expired")
	}
	if rl.Expired(2*time.Minute, now) {
		t.Fatalf("open window reported expired")
	}
}

func TestMigrations_Indexes_AndCascades(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&Conversation{}, &Message{}, &Invoice{}, &Subscription{}, &RateLimit{}, &Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, tbl := range []any{&Conversation{}, &Message{}, &Invoice{}, &Subscription{}, &RateLimit{}, &Idempotency{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	// Indexes from tags exist
	if !m.HasIndex(&Conversation{}, "idx_user_convs") {
		t.Fatalf("expected index idx_user_convs on conversations")
	}
	if !m.HasIndex(&Message{}, "idx_conv_msgs") {
		t.Fatalf("expected index idx_conv_msgs on messages")
	}
	if !m.HasIndex(&Invoice{}, "idx_user_invoices") {
		t.Fatalf("expected index idx_user_invoices on invoices")
	}
	if !m.HasIndex(&Idempotency{}, "ux_user_conv_key") {
		t.Fatalf("expected unique index ux_user_conv_key on idempotency")
	}

	// Seed a conversation with two messages
	now := time.Now().UTC()

	conv := &Conversation{ID: "c1", UserID: "u1", Title: "T", State: StateInitiated, CreatedAt: now, UpdatedAt: now}
	if err := db.Create(conv).Error; err != nil {
		t.Fatalf("insert conversation: %v", err)
	}

	m1 := &Message{ID: "m1", ConversationID: "c1", Role: "user", Content: "hello", Position: 1, CreatedAt: now}
	m2 := &Message{ID: "m2", ConversationID: "c1", Role: "assistant", Content: "world", Position: 2, CreatedAt: now.Add(time.Second)}
	if err := db.Create(m1).Error; err != nil {
		t.Fatalf("insert m1: %v", err)
	}
	if err := db.Create(m2).Error; err != nil {
		t.Fatalf("insert m2: %v", err)
	}

	// CASCADE: deleting the conversation should delete its messages
	if err := db.Unscoped().Delete(&Conversation{}, "id = ?", "c1").Error; err != nil {
		t.Fatalf("delete conversation: %v", err)
	}
	var cnt int64
	if err := db.Unscoped().Model(&Message{}).Where("conversation_id = ?", "c1").Count(&cnt).Error; err != nil {
		t.Fatalf("count messages after conversation delete: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("expected messages to cascade-delete when conversation deleted, got count=%d", cnt)
	}
}
