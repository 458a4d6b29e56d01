package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/deepchat/deepchat-backend/internal/pubsub"
	"github.com/deepchat/deepchat-backend/internal/repository"
)

// MessageRepository implements repository.MessageRepository using PostgreSQL
type MessageRepository struct {
	db     *sqlx.DB
	events *pubsub.Broker[repository.Message]
}

// NewMessageRepository creates a new PostgreSQL message repository
func NewMessageRepository(db *sqlx.DB, events *pubsub.Broker[repository.Message]) *MessageRepository {
	return &MessageRepository{db: db, events: events}
}

// ListBySession retrieves all messages for a session in
// (created_at, id) ascending order
func (r *MessageRepository) ListBySession(ctx context.Context, sessionID string) ([]repository.Message, error) {
	var messages []repository.Message
	query := `
		SELECT id, session_id, role, content, created_at,
		       prompt_tokens, prompt_cache_hit_tokens, prompt_cache_miss_tokens,
		       completion_tokens, total_tokens, compression_state
		FROM messages
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
	`

	if err := r.db.SelectContext(ctx, &messages, query, sessionID); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	return messages, nil
}

// CountBySession returns the number of messages in a session
func (r *MessageRepository) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM messages WHERE session_id = $1`

	if err := r.db.GetContext(ctx, &count, query, sessionID); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}

	return count, nil
}

// MarkReadyForSummary transitions ACTIVE messages to READY_FOR_SUMMARY.
// Messages already past ACTIVE keep their state.
func (r *MessageRepository) MarkReadyForSummary(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(
		`UPDATE messages SET compression_state = ? WHERE id IN (?) AND compression_state = ?`,
		repository.CompressionReady, ids, repository.CompressionActive,
	)
	if err != nil {
		return fmt.Errorf("failed to build state update: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to mark messages ready for summary: %w", err)
	}

	return nil
}
