package services

import (
	"context"
	"strings"

	"github.com/deepchat/deepchat-backend/internal/llm"
	"github.com/deepchat/deepchat-backend/internal/repository"
)

// summaryContextPrefix introduces the rolling summary when it is
// injected into the prompt ahead of the raw messages.
const summaryContextPrefix = "This is a summary of the earlier part of the conversation. " +
	"Prefer newer raw messages over the summary if they conflict.\n\n"

// ContextBuilder produces the ordered role/content list submitted with
// a completion request, applying the context-compression policy.
type ContextBuilder struct {
	messages repository.MessageRepository
	tailSize int
}

// NewContextBuilder creates a new context builder
func NewContextBuilder(messages repository.MessageRepository, tailSize int) *ContextBuilder {
	return &ContextBuilder{
		messages: messages,
		tailSize: tailSize,
	}
}

// Build maps a session's message history to request messages.
//
// With compression disabled, or with at most tailSize messages, every
// message is passed through verbatim. Otherwise the last tailSize
// messages are kept raw, older ACTIVE messages are transitioned to
// READY_FOR_SUMMARY (a persisted, idempotent preparation step), older
// SUMMARIZED messages are dropped in favor of the summary entry, and
// older not-yet-folded messages are included verbatim ahead of the
// tail. The session's system prompt is the orchestrator's concern,
// not handled here.
func (b *ContextBuilder) Build(ctx context.Context, session *repository.Session, messages []repository.Message) ([]llm.ChatMessage, error) {
	if !session.CompressionEnabled || len(messages) <= b.tailSize {
		return toChatMessages(messages), nil
	}

	split := len(messages) - b.tailSize
	older := messages[:split]
	recent := messages[split:]

	var activeIDs []int64
	for _, msg := range older {
		if msg.CompressionState == repository.CompressionActive {
			activeIDs = append(activeIDs, msg.ID)
		}
	}
	if err := b.messages.MarkReadyForSummary(ctx, activeIDs); err != nil {
		return nil, err
	}

	result := make([]llm.ChatMessage, 0, len(messages)+1)

	summary := ""
	if session.ContextSummary.Valid {
		summary = strings.TrimSpace(session.ContextSummary.String)
	}
	if summary != "" {
		result = append(result, llm.ChatMessage{
			Role:    "system",
			Content: summaryContextPrefix + summary,
		})
	}

	for _, msg := range older {
		if msg.CompressionState == repository.CompressionSummarized {
			continue
		}
		result = append(result, llm.ChatMessage{Role: msg.Role, Content: msg.Content})
	}

	return append(result, toChatMessages(recent)...), nil
}

func toChatMessages(messages []repository.Message) []llm.ChatMessage {
	result := make([]llm.ChatMessage, len(messages))
	for i, msg := range messages {
		result[i] = llm.ChatMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	return result
}
