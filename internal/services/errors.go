// Package services defines the business logic for conversations, invoices,
// and subscriptions. This file centralizes common service-level error values
// so that they can be consistently returned by service methods and checked
// by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

// Conversation-related errors.
var (
	// ErrConversationNotFound indicates that the requested conversation does
	// not exist or is not accessible to the current user.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrConversationClosed is returned when a turn is submitted to a
	// conversation already in a terminal state (completed or abandoned).
	ErrConversationClosed = errors.New("conversation is closed")

	// ErrConversationFull is returned when a conversation has reached the
	// maximum number of messages.
	ErrConversationFull = errors.New("conversation message limit reached")

	// ErrEmptyMessage is returned when a turn contains an empty message.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTooLong is returned when a message exceeds the maximum configured
	// length limit.
	ErrTooLong = errors.New("message too long")

	// ErrUnsafeInput is returned when a message contains content blocked by
	// the input sanitizer (script tags, event handlers, SQL fragments).
	ErrUnsafeInput = errors.New("message contains potentially dangerous content")
)

// Invoice-related errors.
var (
	// ErrInvoiceNotFound indicates that the requested invoice does not exist
	// or is not accessible to the current user.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrInvalidStatusTransition is returned when an invoice status update
	// does not follow the DRAFT → PENDING → PAID lifecycle (CANCELLED is
	// reachable from any state before PAID).
	ErrInvalidStatusTransition = errors.New("invalid invoice status transition")

	// ErrInvalidStatus is returned when a status value is not one of the
	// known invoice statuses.
	ErrInvalidStatus = errors.New("unknown invoice status")
)
