package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/deepchat/deepchat-backend/internal/pubsub"
	"github.com/deepchat/deepchat-backend/internal/repository"
)

// ChatStore implements repository.ChatStore: the multi-row writes of
// the send pipeline and the summarizer, each inside one transaction.
type ChatStore struct {
	db            *sqlx.DB
	sessionEvents *pubsub.Broker[repository.Session]
	messageEvents *pubsub.Broker[repository.Message]
}

// NewChatStore creates a new PostgreSQL chat store
func NewChatStore(db *sqlx.DB, sessionEvents *pubsub.Broker[repository.Session], messageEvents *pubsub.Broker[repository.Message]) *ChatStore {
	return &ChatStore{
		db:            db,
		sessionEvents: sessionEvents,
		messageEvents: messageEvents,
	}
}

// BeginSend upserts the session and inserts the user message in one
// transaction, returning the generated message id.
func (s *ChatStore) BeginSend(ctx context.Context, session repository.Session, userMessage repository.Message) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO sessions (id, title, system_prompt, compression_enabled, context_summary,
		                      summarized_count, summarization_in_progress, created_at, updated_at)
		VALUES (:id, :title, :system_prompt, :compression_enabled, :context_summary,
		        :summarized_count, :summarization_in_progress, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, updated_at = EXCLUDED.updated_at
	`
	if _, err := tx.NamedExecContext(ctx, upsert, session); err != nil {
		return 0, fmt.Errorf("failed to upsert session: %w", err)
	}

	messageID, err := insertMessage(ctx, tx, userMessage)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	userMessage.ID = messageID
	s.sessionEvents.Publish(pubsub.UpdatedEvent, session)
	s.messageEvents.Publish(pubsub.CreatedEvent, userMessage)
	return messageID, nil
}

// CompleteSend applies final usage to the user message, inserts the
// assistant message when non-blank and touches the session, all in one
// transaction.
func (s *ChatStore) CompleteSend(ctx context.Context, p repository.CompleteSendParams) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if p.HasUsage && p.UserMessageID > 0 {
		usage := `
			UPDATE messages
			SET prompt_tokens = $2,
			    prompt_cache_hit_tokens = $3,
			    prompt_cache_miss_tokens = $4
			WHERE id = $1
		`
		if _, err := tx.ExecContext(ctx, usage,
			p.UserMessageID, p.PromptTokens, p.PromptCacheHitTokens, p.PromptCacheMissTokens); err != nil {
			return fmt.Errorf("failed to update user message usage: %w", err)
		}
	}

	var assistant repository.Message
	if p.AssistantContent != "" {
		assistant = repository.Message{
			SessionID:        p.SessionID,
			Role:             "assistant",
			Content:          p.AssistantContent,
			CreatedAt:        p.CompletedAt,
			CompletionTokens: p.CompletionTokens,
			TotalTokens:      p.TotalTokens,
			CompressionState: repository.CompressionActive,
		}

		id, err := insertMessage(ctx, tx, assistant)
		if err != nil {
			return err
		}
		assistant.ID = id

		touch := `UPDATE sessions SET updated_at = $2 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, touch, p.SessionID, p.CompletedAt); err != nil {
			return fmt.Errorf("failed to touch session: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if assistant.ID != 0 {
		s.messageEvents.Publish(pubsub.CreatedEvent, assistant)
	}
	return nil
}

// CommitSummary folds a batch into the session summary: the batch is
// marked SUMMARIZED, the summarized count recomputed and the summary
// text persisted, clearing the in-progress flag as part of the same
// transaction.
func (s *ChatStore) CommitSummary(ctx context.Context, sessionID string, messageIDs []int64, summary string) error {
	if len(messageIDs) == 0 {
		return fmt.Errorf("empty summary batch for session %s", sessionID)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	mark, args, err := sqlx.In(
		`UPDATE messages SET compression_state = ? WHERE id IN (?)`,
		repository.CompressionSummarized, messageIDs,
	)
	if err != nil {
		return fmt.Errorf("failed to build batch update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(mark), args...); err != nil {
		return fmt.Errorf("failed to mark batch summarized: %w", err)
	}

	var summarized int
	count := `SELECT COUNT(*) FROM messages WHERE session_id = $1 AND compression_state = $2`
	if err := tx.GetContext(ctx, &summarized, count, sessionID, repository.CompressionSummarized); err != nil {
		return fmt.Errorf("failed to recount summarized messages: %w", err)
	}

	update := `
		UPDATE sessions
		SET context_summary = $2,
		    summarized_count = $3,
		    summarization_in_progress = FALSE
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, update, sessionID, summary, summarized); err != nil {
		return fmt.Errorf("failed to persist summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.sessionEvents.Publish(pubsub.UpdatedEvent, repository.Session{
		ID:              sessionID,
		ContextSummary:  sql.NullString{String: summary, Valid: true},
		SummarizedCount: summarized,
	})
	return nil
}

func insertMessage(ctx context.Context, tx *sqlx.Tx, msg repository.Message) (int64, error) {
	if msg.CompressionState == "" {
		msg.CompressionState = repository.CompressionActive
	}

	query := `
		INSERT INTO messages (session_id, role, content, created_at,
		                      prompt_tokens, prompt_cache_hit_tokens, prompt_cache_miss_tokens,
		                      completion_tokens, total_tokens, compression_state)
		VALUES (:session_id, :role, :content, :created_at,
		        :prompt_tokens, :prompt_cache_hit_tokens, :prompt_cache_miss_tokens,
		        :completion_tokens, :total_tokens, :compression_state)
		RETURNING id
	`

	rows, err := sqlx.NamedQueryContext(ctx, tx, query, msg)
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}
	defer rows.Close()

	var id int64
	if rows.Next() {
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to scan message id: %w", err)
		}
	}

	return id, nil
}
