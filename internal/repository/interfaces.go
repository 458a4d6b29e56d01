package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when a session id resolves to nothing.
var ErrSessionNotFound = errors.New("session not found")

// CompressionState is the per-message context-compression lifecycle
// stage. Transitions are one-directional:
// ACTIVE -> READY_FOR_SUMMARY -> SUMMARIZED.
type CompressionState string

const (
	// CompressionActive marks a fresh message never considered for folding.
	CompressionActive CompressionState = "ACTIVE"
	// CompressionReady marks a message old enough to fold, not yet folded.
	CompressionReady CompressionState = "READY_FOR_SUMMARY"
	// CompressionSummarized marks a message folded into the session
	// summary; it is excluded from context assembly and future batches.
	CompressionSummarized CompressionState = "SUMMARIZED"
)

// Session represents a chat session
type Session struct {
	ID                      string         `db:"id" json:"id"`
	Title                   string         `db:"title" json:"title"`
	SystemPrompt            sql.NullString `db:"system_prompt" json:"system_prompt,omitempty"`
	CompressionEnabled      bool           `db:"compression_enabled" json:"compression_enabled"`
	ContextSummary          sql.NullString `db:"context_summary" json:"context_summary,omitempty"`
	SummarizedCount         int            `db:"summarized_count" json:"summarized_count"`
	SummarizationInProgress bool           `db:"summarization_in_progress" json:"summarization_in_progress"`
	CreatedAt               time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time      `db:"updated_at" json:"updated_at"`
}

// Message represents a chat message. The id is assigned by the store
// and is monotonic within a session.
type Message struct {
	ID                    int64            `db:"id" json:"id"`
	SessionID             string           `db:"session_id" json:"session_id"`
	Role                  string           `db:"role" json:"role"`
	Content               string           `db:"content" json:"content"`
	CreatedAt             time.Time        `db:"created_at" json:"created_at"`
	PromptTokens          sql.NullInt64    `db:"prompt_tokens" json:"prompt_tokens,omitempty"`
	PromptCacheHitTokens  sql.NullInt64    `db:"prompt_cache_hit_tokens" json:"prompt_cache_hit_tokens,omitempty"`
	PromptCacheMissTokens sql.NullInt64    `db:"prompt_cache_miss_tokens" json:"prompt_cache_miss_tokens,omitempty"`
	CompletionTokens      sql.NullInt64    `db:"completion_tokens" json:"completion_tokens,omitempty"`
	TotalTokens           sql.NullInt64    `db:"total_tokens" json:"total_tokens,omitempty"`
	CompressionState      CompressionState `db:"compression_state" json:"compression_state"`
}

// SessionRepository defines session storage operations
type SessionRepository interface {
	Create(ctx context.Context, session Session) error
	Get(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context) ([]*Session, error)
	SetSystemPrompt(ctx context.Context, id string, prompt *string) error
	// SetCompressionEnabled toggles context compression. Toggling
	// resets the summary, the summarized count and the in-progress
	// flag: re-enabling starts from scratch rather than resuming.
	SetCompressionEnabled(ctx context.Context, id string, enabled bool) error
	SetSummarizationInProgress(ctx context.Context, id string, inProgress bool) error
	Touch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// MessageRepository defines message storage operations. Listings are
// ordered by (created_at, id) ascending.
type MessageRepository interface {
	ListBySession(ctx context.Context, sessionID string) ([]Message, error)
	CountBySession(ctx context.Context, sessionID string) (int, error)
	// MarkReadyForSummary transitions ACTIVE messages to
	// READY_FOR_SUMMARY. Ids already past ACTIVE are left untouched.
	MarkReadyForSummary(ctx context.Context, ids []int64) error
}

// CompleteSendParams carries the writes committed when a streamed
// response finishes.
type CompleteSendParams struct {
	SessionID     string
	UserMessageID int64

	// Usage for the user message; applied only when HasUsage is set.
	HasUsage              bool
	PromptTokens          int
	PromptCacheHitTokens  int
	PromptCacheMissTokens int

	// Assistant message; inserted only when Content is non-blank.
	AssistantContent string
	CompletionTokens sql.NullInt64
	TotalTokens      sql.NullInt64

	CompletedAt time.Time
}

// ChatStore groups the multi-row writes of the chat pipeline. Each
// method runs in a single transaction: all rows commit or none do.
type ChatStore interface {
	// BeginSend upserts the session and inserts the user message,
	// returning the generated message id.
	BeginSend(ctx context.Context, session Session, userMessage Message) (int64, error)
	// CompleteSend applies usage to the user message, inserts the
	// assistant message when non-blank and touches the session.
	CompleteSend(ctx context.Context, p CompleteSendParams) error
	// CommitSummary marks the batch SUMMARIZED, recomputes the
	// session's summarized count, persists the new summary text and
	// clears the in-progress flag.
	CommitSummary(ctx context.Context, sessionID string, messageIDs []int64, summary string) error
}
