// Package domain defines the persistence models for conversations, messages,
// invoices, subscriptions, and rate-limit windows. These types are mapped
// with GORM and form the core data layer of the invoice assistant.
package domain

import (
	"time"

	"gorm.io/gorm"

	"github.com/averto/go-invoice-backend/internal/invoice"
)

// ConversationState enumerates the conversation flow states.
//
// Legal transitions:
//
//	INITIATED → GATHERING_INFO → COMPLETED
//	any non-terminal state     → ABANDONED (cancel action)
//
// COMPLETED and ABANDONED are terminal; no further turns are accepted.
type ConversationState string

const (
	StateInitiated     ConversationState = "initiated"
	StateGatheringInfo ConversationState = "gathering_info"
	StateCompleted     ConversationState = "completed"
	StateAbandoned     ConversationState = "abandoned"
)

// Terminal reports whether the state accepts no further turns.
func (s ConversationState) Terminal() bool {
	return s == StateCompleted || s == StateAbandoned
}

// CanTransition reports whether moving from s to next follows a legal edge.
func (s ConversationState) CanTransition(next ConversationState) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case StateGatheringInfo, StateCompleted, StateAbandoned:
		return true
	default:
		return false
	}
}

// Conversation represents a multi-turn invoice-gathering session owned by a
// user. Messages live in a separate table and are appended strictly in order.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: identifier of the owner; indexed for efficient retrieval.
//   - Title: human-readable title (auto-generated from the first prompt).
//   - State: current ConversationState (see transition rules above).
//   - ExtractedData: last raw structured payload emitted by the model, if any.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM (updated_at >= created_at).
//   - DeletedAt: soft deletion marker (retains row for audit/history).
type Conversation struct {
	ID            string            `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID        string            `json:"user_id" gorm:"type:varchar(64);not null;index:idx_user_convs"`
	Title         string            `json:"title"   gorm:"type:varchar(255);not null;default:'New invoice'"`
	State         ConversationState `json:"state"   gorm:"type:varchar(32);not null;default:'initiated';check:state IN ('initiated','gathering_info','completed','abandoned')"`
	ExtractedData []byte            `json:"-"       gorm:"type:text"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	DeletedAt     gorm.DeletedAt    `json:"-"       gorm:"index"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message represents a single utterance within a conversation, authored by
// either the "user" or the "assistant". The Position column makes insertion
// order explicit so the history replayed to the model is deterministic.
type Message struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string         `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conv_msgs,priority:1"`
	Role           string         `json:"role"            gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content        string         `json:"content"         gorm:"type:text;not null"`
	Position       int            `json:"position"        gorm:"not null;index:idx_conv_msgs,priority:2"`
	CreatedAt      time.Time      `json:"created_at"`
	DeletedAt      gorm.DeletedAt `json:"-"               gorm:"index"`

	// Conversation is the parent session. Messages are cascade-deleted
	// if their conversation is removed.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// InvoiceStatus enumerates the invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoicePending   InvoiceStatus = "pending"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// CanTransition reports whether an invoice may move from s to next.
// DRAFT → PENDING → PAID, with CANCELLED allowed at any point before PAID.
func (s InvoiceStatus) CanTransition(next InvoiceStatus) bool {
	switch s {
	case InvoiceDraft:
		return next == InvoicePending || next == InvoiceCancelled
	case InvoicePending:
		return next == InvoicePaid || next == InvoiceCancelled
	default:
		return false
	}
}

// Invoice represents a validated, persisted invoice. Data holds the line
// items and computed financial fields produced by the validator; the core
// never mutates a stored invoice except for its status and the
// generated-document locator set by the downstream renderer.
type Invoice struct {
	ID             string         `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID         string         `json:"user_id" gorm:"type:varchar(64);not null;index:idx_user_invoices"`
	ConversationID string         `json:"conversation_id,omitempty" gorm:"type:char(36);index"`
	Data           invoice.Data   `json:"data"    gorm:"serializer:json;type:text;not null"`
	Status         InvoiceStatus  `json:"status"  gorm:"type:varchar(16);not null;default:'draft';check:status IN ('draft','pending','paid','cancelled')"`
	DocumentKey    string         `json:"document_key,omitempty" gorm:"type:varchar(512)"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"       gorm:"index"`
}

// TableName returns the database table name for Invoice.
func (Invoice) TableName() string { return "invoices" }

// Subscription billing tiers.
const (
	SubscriptionFree = "free"
	SubscriptionPro  = "pro"
)

// Subscription tracks a user's billing tier and monthly invoice usage.
// InvoicesThisMonth is reset lazily whenever the calendar month/year of
// LastReset differs from the current one; the check runs on every quota
// read rather than in a background job.
type Subscription struct {
	UserID            string    `json:"user_id"             gorm:"type:varchar(64);primaryKey"`
	Status            string    `json:"status"              gorm:"type:varchar(16);not null;default:'free';check:status IN ('free','pro')"`
	InvoicesThisMonth int       `json:"invoices_this_month" gorm:"not null;default:0"`
	LastReset         time.Time `json:"last_reset"          gorm:"not null"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName returns the database table name for Subscription.
func (Subscription) TableName() string { return "subscriptions" }

// IsPro reports whether the subscription is on the paid tier.
func (s Subscription) IsPro() bool { return s.Status == SubscriptionPro }

// RateLimit is a per-user, per-scope sliding window counter. Scope separates
// independently limited actions so each gets its own window record.
type RateLimit struct {
	UserID       string    `json:"user_id"       gorm:"type:varchar(64);primaryKey"`
	Scope        string    `json:"scope"         gorm:"type:varchar(32);primaryKey"`
	RequestCount int       `json:"request_count" gorm:"not null;default:0"`
	WindowStart  time.Time `json:"window_start"  gorm:"not null"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for RateLimit.
func (RateLimit) TableName() string { return "rate_limits" }

// Expired reports whether the window that started at WindowStart has elapsed.
func (r RateLimit) Expired(window time.Duration, now time.Time) bool {
	return now.Sub(r.WindowStart) >= window
}
