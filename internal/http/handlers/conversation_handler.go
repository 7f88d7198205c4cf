// Conversation HTTP handlers.
//
// This file exposes REST endpoints for the invoice-gathering conversation:
//   - POST /conversations/messages       (advance a turn, creating the
//     conversation on first contact)
//   - GET  /conversations                (list, paginated, ETag support)
//   - GET  /conversations/{id}/messages  (full turn history)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses.
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// turn exists for (user, key), the handler reconstructs that turn's outcome
// from the persisted conversation and sets `Idempotency-Replayed: true`
// instead of running the model again.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/averto/go-invoice-backend/internal/domain"
	"github.com/averto/go-invoice-backend/internal/http/middleware"
	"github.com/averto/go-invoice-backend/internal/policy"
	"github.com/averto/go-invoice-backend/internal/repo"
	"github.com/averto/go-invoice-backend/internal/services"
	"github.com/averto/go-invoice-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ConversationService defines the conversation operations consumed by HTTP
// handlers. Implementations must be safe for concurrent use and honor the
// provided context for cancellation and timeouts.
type ConversationService interface {
	// AdvanceTurn runs one turn; an empty conversationID starts a new
	// conversation.
	AdvanceTurn(ctx context.Context, userID, conversationID, message string) (*services.TurnResult, error)
	// ListPage returns a page of the user's conversations and the total count.
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, int64, error)
	// History returns the ordered messages of a conversation the user owns.
	History(ctx context.Context, userID, conversationID string) ([]domain.Message, error)
}

// InvoiceService defines invoice retrieval and lifecycle operations.
type InvoiceService interface {
	Get(ctx context.Context, userID, invoiceID string) (*domain.Invoice, error)
	ListPage(ctx context.Context, userID string, status domain.InvoiceStatus, page, pageSize int) ([]domain.Invoice, int64, error)
	UpdateStatus(ctx context.Context, userID, invoiceID string, next domain.InvoiceStatus) (*domain.Invoice, error)
}

// SubscriptionService reports the caller's billing standing.
type SubscriptionService interface {
	Status(ctx context.Context, userID string) (*domain.Subscription, int, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for conversations, invoices, and
// subscriptions. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	convSvc ConversationService
	invSvc  InvoiceService
	subSvc  SubscriptionService

	// IdemTTL is how long a recorded Idempotency-Key remains replayable.
	// Zero falls back to 24 hours.
	IdemTTL time.Duration
}

// New constructs a Handlers instance bound to the given services.
func New(convSvc ConversationService, invSvc InvoiceService, subSvc SubscriptionService) *Handlers {
	return &Handlers{convSvc: convSvc, invSvc: invSvc, subSvc: subSvc}
}

//
// DTOs
//

// TurnRequest is the JSON payload for advancing a conversation turn.
//
// ConversationID is empty on first contact; the response carries the id to
// use for subsequent turns. Message content is normalized by the handler
// (line endings, excessive blank lines) before reaching the service layer.
type TurnRequest struct {
	// ConversationID continues an existing conversation when set.
	ConversationID string `json:"conversation_id,omitempty" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	// Message is the user's utterance. It must be non-empty.
	Message string `json:"message" binding:"required,min=1" example:"Invoice Acme Corp for 10 hours of consulting at $150/hr"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListConversationsResponse wraps a page of conversations and pagination
// information.
type ListConversationsResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
	Pagination    Pagination            `json:"pagination"`
}

// ConversationMessagesResponse contains the full ordered history of one
// conversation.
type ConversationMessagesResponse struct {
	ConversationID string           `json:"conversation_id"`
	Messages       []domain.Message `json:"messages"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// paginationFor derives the metadata block for a page of total rows.
func paginationFor(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
// CRLF/CR become LF, runs of 3+ LFs collapse to two, surrounding whitespace
// is trimmed.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// discoverMaxPromptRunes inspects the concrete ConversationService for a
// configured prompt-length limit, falling back conservatively.
func discoverMaxPromptRunes(svc ConversationService) int {
	const fallback = 4000
	if cs, ok := svc.(*services.ConversationService); ok {
		if cs.MaxPromptRunes > 0 {
			return cs.MaxPromptRunes
		}
	}
	return fallback
}

// conversationDB exposes the GORM handle of the concrete service for
// idempotency bookkeeping; nil when a fake is injected.
func (h *Handlers) conversationDB() *gorm.DB {
	if cs, ok := h.convSvc.(*services.ConversationService); ok {
		return cs.DB
	}
	return nil
}

func (h *Handlers) idemTTL() time.Duration {
	if h.IdemTTL > 0 {
		return h.IdemTTL
	}
	return 24 * time.Hour
}

//
// Handlers
//

// PostTurn godoc
// @ID          postTurn
// @Summary     Send a message and advance the invoice conversation
// @Description Appends the user message, runs the assistant, and returns the turn outcome.
// @Description On the turn that completes a valid invoice, the response carries the persisted invoice.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Conversations
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"
// @Param       body             body    handlers.TurnRequest  true  "Turn payload"
//
// @Success     200  {object}  services.TurnResult            "Turn outcome"
// @Failure     400  {object}  handlers.ErrorResponse         "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse         "Conversation not found"
// @Failure     409  {object}  handlers.ErrorResponse         "Conversation closed or full"
// @Failure     429  {object}  handlers.ErrorResponse         "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse         "Internal error"
// @Router      /conversations/messages [post]
func (h *Handlers) PostTurn(c *gin.Context) {
	ctx := c.Request.Context()

	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		return
	}
	if req.ConversationID != "" {
		if _, err := uuid.Parse(req.ConversationID); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation_id must be a UUID")
			return
		}
	}

	// Sanitize and cap at the edge; the service enforces the same limits.
	message := sanitizeContent(req.Message)
	maxRunes := discoverMaxPromptRunes(h.convSvc)
	if maxRunes > 0 && utf8.RuneCountInString(message) > maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("message too long: max %d runes", maxRunes))
		return
	}
	if message == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		return
	}

	currentUser := middleware.UserID(c)

	// Idempotency (replay path).
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" {
		if db := h.conversationDB(); db != nil {
			if res := h.replayTurn(ctx, db, currentUser, req.ConversationID, idemKey); res != nil {
				c.Header("Idempotency-Replayed", "true")
				turnsTotal.WithLabelValues("replayed").Inc()
				ok(c, http.StatusOK, res)
				return
			}
		}
	}

	res, err := h.convSvc.AdvanceTurn(ctx, currentUser, req.ConversationID, message)
	if err != nil {
		outcome := "rejected"
		var limitErr *policy.LimitError
		switch {
		case errors.Is(err, services.ErrConversationNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		case errors.Is(err, services.ErrConversationClosed):
			fail(c, http.StatusConflict, ErrCodeConflict, "conversation is closed")
		case errors.Is(err, services.ErrConversationFull):
			fail(c, http.StatusConflict, ErrCodeConflict, "conversation message limit reached")
		case errors.Is(err, services.ErrEmptyMessage):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		case errors.Is(err, services.ErrTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("message too long: max %d runes", maxRunes))
		case errors.Is(err, services.ErrUnsafeInput):
			fail(c, http.StatusBadRequest, ErrCodeUnsafeInput, "message contains potentially dangerous content")
		case errors.As(err, &limitErr):
			if limitErr.Kind == policy.KindRateLimited {
				if secs := int(time.Until(limitErr.ResetAt).Seconds()); secs > 0 {
					c.Header("Retry-After", fmt.Sprintf("%d", secs))
				}
				turnsTotal.WithLabelValues("rate_limited").Inc()
				fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, limitErr.Message)
				return
			}
			outcome = "quota_blocked"
			fail(c, http.StatusForbidden, ErrCodeForbidden, limitErr.Message)
		default:
			outcome = "error"
			fail(c, http.StatusInternalServerError, ErrCodeTurnFailed, err.Error())
		}
		turnsTotal.WithLabelValues(outcome).Inc()
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		if db := h.conversationDB(); db != nil {
			_, _ = repo.CreateIdempotency(ctx, db, currentUser, res.ConversationID, idemKey,
				res.InvoiceID, http.StatusOK, h.idemTTL())
		}
	}

	turnsTotal.WithLabelValues("ok").Inc()
	if res.InvoiceReady {
		invoicesCreated.Inc()
	}
	ok(c, http.StatusOK, res)
}

// replayTurn rebuilds the outcome of a previously recorded turn from the
// persisted conversation. Returns nil when no valid record exists, in which
// case the caller proceeds with normal processing.
func (h *Handlers) replayTurn(ctx context.Context, db *gorm.DB, userID, conversationID, key string) *services.TurnResult {
	now := time.Now().UTC()

	var rec *domain.Idempotency
	var err error
	if conversationID != "" {
		rec, err = repo.GetIdempotency(ctx, db, userID, conversationID, key, now)
	} else {
		// Retries of a turn that created the conversation arrive without an id.
		rec, err = repo.FindIdempotencyByKey(ctx, db, userID, key, now)
	}
	if err != nil || rec == nil {
		return nil
	}

	conv, err := repo.GetConversation(ctx, db, rec.ConversationID, userID)
	if err != nil {
		return nil
	}

	res := &services.TurnResult{
		ConversationID: conv.ID,
		State:          conv.State,
	}
	if msgs, err := repo.ListMessages(ctx, db, conv.ID, 0); err == nil {
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == "assistant" {
				res.Reply = msgs[i].Content
				break
			}
		}
	}
	if rec.InvoiceID != "" {
		if inv, err := repo.GetInvoice(ctx, db, rec.InvoiceID, userID); err == nil {
			res.InvoiceReady = true
			res.InvoiceID = inv.ID
			res.Invoice = &inv.Data
		}
	}
	return res
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List conversations (paginated)
// @Description Returns a page of the user's conversations, newest first. Supports weak ETag via If-None-Match.
// @Tags        Conversations
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"       example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListConversationsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if db := h.conversationDB(); db != nil {
		count, maxTS, err := repo.ConversationsStats(ctx, db, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"conversations:%s:%d:%d"`, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.convSvc.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, ListConversationsResponse{
		Conversations: items,
		Pagination:    paginationFor(page, pageSize, total),
	})
}

// ListConversationMessages godoc
// @ID          listConversationMessages
// @Summary     Get the message history of a conversation
// @Description Returns the full ordered turn history for a conversation the user owns.
// @Tags        Conversations
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Conversation ID (UUID)" format(uuid)
//
// @Success     200  {object} handlers.ConversationMessagesResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ListConversationMessages(c *gin.Context) {
	conversationID := c.Param("id")
	if _, err := uuid.Parse(conversationID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	msgs, err := h.convSvc.History(c.Request.Context(), middleware.UserID(c), conversationID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrConversationNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}

	ok(c, http.StatusOK, ConversationMessagesResponse{
		ConversationID: conversationID,
		Messages:       msgs,
	})
}
