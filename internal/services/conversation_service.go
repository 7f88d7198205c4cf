// Package services – ConversationService
//
// This file implements ConversationService, the application-level component
// that drives invoice-gathering conversations. It validates and sanitizes
// user input, enforces the per-user message rate limit, appends the user
// message durably before the model is invoked, interprets the structured
// action extracted from the assistant reply, and transitions the
// conversation state machine accordingly. When the model emits a valid
// create_invoice payload the service persists the invoice and bumps the
// monthly quota counter in one transaction.
//
// Optional enhancement: it also auto-generates a conversation title from the
// first user message when the conversation still has a default/empty title.
//
// Observability: public methods are OpenTelemetry-instrumented; spans
// include conversation/user identifiers and pagination parameters where
// applicable.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/averto/go-invoice-backend/internal/domain"
	"github.com/averto/go-invoice-backend/internal/extract"
	"github.com/averto/go-invoice-backend/internal/invoice"
	"github.com/averto/go-invoice-backend/internal/llm"
	"github.com/averto/go-invoice-backend/internal/policy"
	"github.com/averto/go-invoice-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"

	// default titles we consider placeholders eligible for auto-generation
	defaultTitleNew      = "New invoice"
	defaultTitleUntitled = "Untitled"
)

// errQuotaRace aborts the invoice transaction when the conditional quota
// increment loses to a concurrent invoice creation.
var errQuotaRace = errors.New("quota exhausted concurrently")

// TurnResult is the outcome of one conversation turn.
type TurnResult struct {
	// ConversationID identifies the (possibly newly created) conversation.
	ConversationID string `json:"conversation_id"`
	// State is the conversation state after the turn.
	State domain.ConversationState `json:"state"`
	// Reply is the user-visible assistant message for this turn.
	Reply string `json:"message"`

	// InvoiceReady reports that a valid invoice was extracted and persisted.
	InvoiceReady bool `json:"invoice_ready"`
	// InvoiceID is set when InvoiceReady is true.
	InvoiceID string `json:"invoice_id,omitempty"`
	// Invoice carries the validated, computed invoice data when ready.
	Invoice *invoice.Data `json:"invoice_data,omitempty"`
	// InvoicesRemaining is the free-tier allowance left after this turn;
	// -1 means unlimited (pro). Only meaningful when InvoiceReady is true.
	InvoicesRemaining int `json:"invoices_remaining,omitempty"`

	// Cancelled reports that the user abandoned the conversation.
	Cancelled bool `json:"cancelled,omitempty"`
	// UsageLimitReached reports that the monthly invoice quota blocked
	// creation; Reply then carries the upgrade prompt.
	UsageLimitReached bool `json:"usage_limit_reached,omitempty"`
}

// ConversationService coordinates conversation turns against the model and
// the persistence layer.
type ConversationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Model is the chat model driving the conversation.
	Model llm.Client
	// Limiter gates message turns per user. Optional; nil disables the check.
	Limiter *policy.RateLimiter
	// Quota gates invoice creation per calendar month.
	Quota *policy.Quota

	// MaxPromptRunes caps user message length by rune count.
	MaxPromptRunes int
	// MaxMessages caps conversation length; a conversation that reaches it
	// is completed and accepts no further turns. Zero disables the cap.
	MaxMessages int

	// TitleLocale is the locale used for title casing.
	TitleLocale language.Tag
	// TitleMaxLen caps generated titles by rune length.
	TitleMaxLen int

	// Now allows tests to pin the clock; defaults to time.Now.
	Now func() time.Time
}

// AdvanceTurn runs one turn of the conversation identified by conversationID
// (empty creates a new conversation). The user message is persisted before
// the model call, so a model failure never loses the user's input; the
// assistant reply is persisted before its action is acted on.
func (s *ConversationService) AdvanceTurn(ctx context.Context, userID, conversationID, userText string) (*TurnResult, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "AdvanceTurn",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	userText = strings.TrimSpace(userText)
	if userText == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(userText) > s.MaxPromptRunes {
		return nil, ErrTooLong
	}
	userText, err := sanitizeInput(userText)
	if err != nil {
		return nil, err
	}
	if userText == "" {
		return nil, ErrEmptyMessage
	}

	if s.Limiter != nil {
		if err := s.Limiter.Allow(ctx, userID); err != nil {
			return nil, err
		}
	}

	conv, err := s.loadOrCreate(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.State.Terminal() {
		return nil, ErrConversationClosed
	}

	count, err := repo.CountMessages(ctx, s.DB, conv.ID)
	if err != nil {
		return nil, err
	}
	if s.MaxMessages > 0 && int(count) >= s.MaxMessages {
		// The session is over; close it out so retries stop hitting the model.
		if uerr := repo.UpdateConversationState(ctx, s.DB, conv.ID, userID, domain.StateCompleted); uerr != nil {
			return nil, uerr
		}
		return nil, ErrConversationFull
	}

	// Persist the user message (and maybe a generated title) before the model
	// sees it.
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.AppendMessage(ctx, tx, conv.ID, roleUser, userText, int(count)+1); err != nil {
			return err
		}
		if s.shouldAutoTitle(conv.Title) {
			if gen := s.generateTitle(userText); gen != "" {
				if uerr := repo.UpdateConversationTitle(ctx, tx, conv.ID, userID, gen); uerr == nil {
					conv.Title = gen
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	history, err := repo.ListMessages(ctx, s.DB, conv.ID, 0)
	if err != nil {
		return nil, err
	}
	msgs := make([]llm.Message, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}

	reply, err := s.Model.Converse(ctx, llm.SystemPrompt(s.now()), msgs)
	if err != nil {
		return nil, fmt.Errorf("model turn: %w", err)
	}

	if _, err := repo.AppendMessage(ctx, s.DB, conv.ID, roleAssistant, reply.Text, int(count)+2); err != nil {
		return nil, err
	}

	res := &TurnResult{
		ConversationID: conv.ID,
		Reply:          reply.Text,
	}

	action, ok := extract.Extract(reply.Text)
	if !ok {
		return s.continueGathering(ctx, conv, res)
	}

	switch action.Name {
	case extract.ActionCancel:
		if err := repo.UpdateConversationState(ctx, s.DB, conv.ID, userID, domain.StateAbandoned); err != nil {
			return nil, err
		}
		res.State = domain.StateAbandoned
		res.Cancelled = true
		return res, nil

	case extract.ActionCreateInvoice:
		return s.createInvoice(ctx, conv, action, res)

	default:
		// Unknown action, keep gathering.
		return s.continueGathering(ctx, conv, res)
	}
}

// continueGathering moves a fresh conversation into GATHERING_INFO and leaves
// the assistant reply as-is.
func (s *ConversationService) continueGathering(ctx context.Context, conv *domain.Conversation, res *TurnResult) (*TurnResult, error) {
	if conv.State != domain.StateGatheringInfo {
		if err := repo.UpdateConversationState(ctx, s.DB, conv.ID, conv.UserID, domain.StateGatheringInfo); err != nil {
			return nil, err
		}
	}
	res.State = domain.StateGatheringInfo
	return res, nil
}

// createInvoice handles the create_invoice action: quota gate, payload
// validation, then the invoice + counter transaction.
func (s *ConversationService) createInvoice(ctx context.Context, conv *domain.Conversation, action *extract.Action, res *TurnResult) (*TurnResult, error) {
	sub, err := s.Quota.Check(ctx, conv.UserID)
	var limitErr *policy.LimitError
	if errors.As(err, &limitErr) {
		if uerr := repo.UpdateConversationState(ctx, s.DB, conv.ID, conv.UserID, domain.StateCompleted); uerr != nil {
			return nil, uerr
		}
		res.State = domain.StateCompleted
		res.UsageLimitReached = true
		res.Reply = upgradeMessage(s.Quota.FreeLimit)
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	data, err := invoice.ParsePayload(action.Raw, s.now())
	if err != nil {
		var verr *invoice.ValidationError
		if errors.As(err, &verr) {
			res.Reply = fmt.Sprintf("I found some issues with the data: %s. Let's fix that.", verr.Error())
			return s.continueGathering(ctx, conv, res)
		}
		return nil, err
	}

	var inv *domain.Invoice
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.SetExtractedData(ctx, tx, conv.ID, conv.UserID, action.Raw, domain.StateCompleted); err != nil {
			return err
		}
		created, err := repo.CreateInvoice(ctx, tx, conv.UserID, conv.ID, *data)
		if err != nil {
			return err
		}
		inv = created
		ok, err := repo.IncrementMonthlyInvoicesUnder(ctx, tx, conv.UserID, s.Quota.FreeLimit)
		if err != nil {
			return err
		}
		if !ok {
			return errQuotaRace
		}
		return nil
	})
	if errors.Is(err, errQuotaRace) {
		if uerr := repo.UpdateConversationState(ctx, s.DB, conv.ID, conv.UserID, domain.StateCompleted); uerr != nil {
			return nil, uerr
		}
		res.State = domain.StateCompleted
		res.UsageLimitReached = true
		res.Reply = upgradeMessage(s.Quota.FreeLimit)
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	res.State = domain.StateCompleted
	res.InvoiceReady = true
	res.InvoiceID = inv.ID
	res.Invoice = data
	res.Reply = data.Summary()
	if sub.IsPro() {
		res.InvoicesRemaining = -1
	} else {
		res.InvoicesRemaining = s.Quota.FreeLimit - sub.InvoicesThisMonth - 1
	}
	return res, nil
}

// ListPage returns paginated conversations for a user.
func (s *ConversationService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, int64, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountConversations(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Conversation{}, 0, nil
	}

	items, err := repo.ListConversationsPage(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}

// History returns the ordered message history of a conversation owned by the
// user.
func (s *ConversationService) History(ctx context.Context, userID, conversationID string) ([]domain.Message, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "History",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	if _, err := repo.GetConversation(ctx, s.DB, conversationID, userID); err != nil {
		return nil, ErrConversationNotFound
	}
	return repo.ListMessages(ctx, s.DB, conversationID, 0)
}

func (s *ConversationService) loadOrCreate(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	if conversationID == "" {
		return repo.CreateConversation(ctx, s.DB, userID, defaultTitleNew)
	}
	conv, err := repo.GetConversation(ctx, s.DB, conversationID, userID)
	if err != nil {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

func (s *ConversationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func upgradeMessage(limit int) string {
	return fmt.Sprintf("You've used all %d free invoices this month!\n\nUpgrade to Pro for unlimited invoices.", limit)
}

// shouldAutoTitle reports whether the current title is a placeholder.
func (s *ConversationService) shouldAutoTitle(current string) bool {
	t := strings.TrimSpace(strings.ToLower(current))
	return t == "" || t == strings.ToLower(defaultTitleNew) || t == strings.ToLower(defaultTitleUntitled)
}

// generateTitle derives a concise title from the first user message.
func (s *ConversationService) generateTitle(prompt string) string {
	toks := titleWordRE.FindAllString(strings.ToLower(prompt), -1)
	if len(toks) == 0 {
		return ""
	}

	titleCaser := cases.Title(s.titleLocaleOrDefault())
	out := make([]string, 0, 8)
	for _, w := range toks {
		if _, skip := titleStopWords[w]; skip {
			continue
		}
		out = append(out, titleCaser.String(w))
		if len(out) >= 8 {
			break
		}
	}
	if len(out) == 0 {
		return ""
	}
	return s.clipTitle(strings.Join(out, " "))
}

// clipTitle truncates a generated title to the configured maximum rune length.
func (s *ConversationService) clipTitle(title string) string {
	max := s.TitleMaxLen
	if max <= 0 {
		max = 60
	}
	if utf8.RuneCountInString(title) > max {
		return string([]rune(title)[:max])
	}
	return title
}

func (s *ConversationService) titleLocaleOrDefault() language.Tag {
	if s.TitleLocale == language.Und {
		return language.English
	}
	return s.TitleLocale
}

// Extract Unicode letters with optional trailing numbers (e.g., "acme2026").
var titleWordRE = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)

// Minimal English stop-words set for compact titles.
var titleStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
	"i": {}, "need": {}, "want": {}, "please": {}, "create": {}, "make": {},
}
