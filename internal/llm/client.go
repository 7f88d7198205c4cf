// Package llm abstracts the chat model used to drive invoice conversations.
// The service layer depends only on the Client interface; the concrete
// implementation speaks the Anthropic Messages API over plain HTTP.
package llm

import "context"

// Message roles accepted by the model API.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption for one model call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Reply is the model's response to a conversation.
type Reply struct {
	// Text is the concatenated text content of the reply.
	Text string
	// StopReason is the provider's termination reason (e.g. "end_turn").
	StopReason string
	// Usage is the token accounting for the call.
	Usage Usage
}

// Client sends conversations to a chat model and returns its reply.
type Client interface {
	// Converse submits the full message history with a system prompt and
	// returns the assistant's reply. Implementations must honor ctx
	// cancellation and deadlines.
	Converse(ctx context.Context, system string, messages []Message) (*Reply, error)
}
