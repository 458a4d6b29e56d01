package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/deepchat/deepchat-backend/internal/pubsub"
	"github.com/deepchat/deepchat-backend/internal/repository"
)

// SessionRepository implements repository.SessionRepository using PostgreSQL
type SessionRepository struct {
	db     *sqlx.DB
	events *pubsub.Broker[repository.Session]
}

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(db *sqlx.DB, events *pubsub.Broker[repository.Session]) *SessionRepository {
	return &SessionRepository{db: db, events: events}
}

// Create creates a new session
func (r *SessionRepository) Create(ctx context.Context, session repository.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}

	query := `
		INSERT INTO sessions (id, title, system_prompt, compression_enabled, context_summary,
		                      summarized_count, summarization_in_progress, created_at, updated_at)
		VALUES (:id, :title, :system_prompt, :compression_enabled, :context_summary,
		        :summarized_count, :summarization_in_progress, :created_at, :updated_at)
	`

	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	r.events.Publish(pubsub.CreatedEvent, session)
	return nil
}

// Get retrieves a session by ID
func (r *SessionRepository) Get(ctx context.Context, id string) (*repository.Session, error) {
	var session repository.Session
	query := `
		SELECT id, title, system_prompt, compression_enabled, context_summary,
		       summarized_count, summarization_in_progress, created_at, updated_at
		FROM sessions
		WHERE id = $1
	`

	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &session, nil
}

// List retrieves all sessions ordered by most recently updated
func (r *SessionRepository) List(ctx context.Context) ([]*repository.Session, error) {
	var sessions []*repository.Session
	query := `
		SELECT id, title, system_prompt, compression_enabled, context_summary,
		       summarized_count, summarization_in_progress, created_at, updated_at
		FROM sessions
		ORDER BY updated_at DESC
	`

	if err := r.db.SelectContext(ctx, &sessions, query); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return sessions, nil
}

// SetSystemPrompt updates a session's system prompt, creating the
// session when it does not exist yet.
func (r *SessionRepository) SetSystemPrompt(ctx context.Context, id string, prompt *string) error {
	now := time.Now()

	existing, err := r.Get(ctx, id)
	if err != nil && err != repository.ErrSessionNotFound {
		return err
	}

	if existing == nil {
		session := repository.Session{
			ID:        id,
			Title:     "New chat",
			CreatedAt: now,
			UpdatedAt: now,
		}
		if prompt != nil {
			session.SystemPrompt = sql.NullString{String: *prompt, Valid: true}
		}
		return r.Create(ctx, session)
	}

	query := `UPDATE sessions SET system_prompt = $2, updated_at = $3 WHERE id = $1`
	var value sql.NullString
	if prompt != nil {
		value = sql.NullString{String: *prompt, Valid: true}
	}

	if _, err := r.db.ExecContext(ctx, query, id, value, now); err != nil {
		return fmt.Errorf("failed to update system prompt: %w", err)
	}

	r.publishUpdated(ctx, id)
	return nil
}

// SetCompressionEnabled toggles context compression. Any existing
// summary and summarized count are reset; the summarizer starts over
// when compression is re-enabled.
func (r *SessionRepository) SetCompressionEnabled(ctx context.Context, id string, enabled bool) error {
	query := `
		UPDATE sessions
		SET compression_enabled = $2,
		    context_summary = NULL,
		    summarized_count = 0,
		    summarization_in_progress = FALSE,
		    updated_at = $3
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, enabled, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update compression flag: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrSessionNotFound
	}

	r.publishUpdated(ctx, id)
	return nil
}

// SetSummarizationInProgress flips the in-progress flag
func (r *SessionRepository) SetSummarizationInProgress(ctx context.Context, id string, inProgress bool) error {
	query := `UPDATE sessions SET summarization_in_progress = $2 WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, inProgress); err != nil {
		return fmt.Errorf("failed to update summarization flag: %w", err)
	}

	r.publishUpdated(ctx, id)
	return nil
}

// Touch bumps a session's updated_at timestamp
func (r *SessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE sessions SET updated_at = $2 WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	r.publishUpdated(ctx, id)
	return nil
}

// Delete deletes a session; messages cascade
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM sessions WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrSessionNotFound
	}

	r.events.Publish(pubsub.DeletedEvent, repository.Session{ID: id})
	return nil
}

func (r *SessionRepository) publishUpdated(ctx context.Context, id string) {
	session, err := r.Get(ctx, id)
	if err != nil {
		return
	}
	r.events.Publish(pubsub.UpdatedEvent, *session)
}
