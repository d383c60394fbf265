package model

import (
	"time"

	"github.com/google/uuid"
)

// Thread is a single conversation; it owns an ordered message list, a
// token-usage accumulator, and the set of database ids actually consulted
// across every turn run against it.
type Thread struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Sender identifies who authored a Message.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderServer Sender = "server"
)

// Message is one turn's worth of content, appended to a thread and never
// edited or deleted by the core.
type Message struct {
	ID        uuid.UUID      `json:"id"`
	ThreadID  uuid.UUID      `json:"thread_id"`
	Sender    Sender         `json:"sender"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// TokenUsage is the per-thread accumulator. Fields
// are monotonically non-decreasing and are incremented only for LLM calls
// that returned usage data.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
	CallCount    int64 `json:"call_count"`
}
