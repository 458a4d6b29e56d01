package services

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/deepchat/deepchat-backend/internal/llm"
	"github.com/deepchat/deepchat-backend/internal/repository"
)

const (
	// DefaultSessionTitle is the placeholder title of a fresh session,
	// replaced by a title derived from the first message.
	DefaultSessionTitle = "New chat"

	maxTitleLength = 48

	roleSystem    = "system"
	roleUser      = "user"
	roleAssistant = "assistant"
)

// SendEvent is one element of the streaming send result. Content
// carries the cumulative assistant text; a non-nil Err terminates the
// stream.
type SendEvent struct {
	Content string
	Err     error
}

// ChatService drives the send pipeline and session management
type ChatService struct {
	sessions   repository.SessionRepository
	messages   repository.MessageRepository
	store      repository.ChatStore
	transport  llm.Transport
	parser     *llm.StreamParser
	contextBld *ContextBuilder
	locks      *sessionLocks
	logger     *logrus.Logger
	model      string
}

// NewChatService creates a new chat service
func NewChatService(
	sessions repository.SessionRepository,
	messages repository.MessageRepository,
	store repository.ChatStore,
	transport llm.Transport,
	parser *llm.StreamParser,
	contextBuilder *ContextBuilder,
	locks *sessionLocks,
	logger *logrus.Logger,
	model string,
) *ChatService {
	return &ChatService{
		sessions:   sessions,
		messages:   messages,
		store:      store,
		transport:  transport,
		parser:     parser,
		contextBld: contextBuilder,
		locks:      locks,
		logger:     logger,
		model:      model,
	}
}

// CreateSession creates a new chat session
func (s *ChatService) CreateSession(ctx context.Context, title string) (*repository.Session, error) {
	if strings.TrimSpace(title) == "" {
		title = DefaultSessionTitle
	}

	now := time.Now()
	session := repository.Session{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession retrieves a session by ID
func (s *ChatService) GetSession(ctx context.Context, id string) (*repository.Session, error) {
	return s.sessions.Get(ctx, id)
}

// ListSessions returns all sessions
func (s *ChatService) ListSessions(ctx context.Context) ([]*repository.Session, error) {
	return s.sessions.List(ctx)
}

// DeleteSession deletes a session, its messages and its summarizer
// lock entry
func (s *ChatService) DeleteSession(ctx context.Context, id string) error {
	if err := s.sessions.Delete(ctx, id); err != nil {
		return err
	}
	s.locks.Forget(id)
	return nil
}

// SetSystemPrompt sets or clears a session's system prompt
func (s *ChatService) SetSystemPrompt(ctx context.Context, id string, prompt string) error {
	normalized := strings.TrimSpace(prompt)
	if normalized == "" {
		return s.sessions.SetSystemPrompt(ctx, id, nil)
	}
	return s.sessions.SetSystemPrompt(ctx, id, &normalized)
}

// SetCompressionEnabled toggles context compression for a session
func (s *ChatService) SetCompressionEnabled(ctx context.Context, id string, enabled bool) error {
	return s.sessions.SetCompressionEnabled(ctx, id, enabled)
}

// ListMessages returns a session's messages in order
func (s *ChatService) ListMessages(ctx context.Context, sessionID string) ([]repository.Message, error) {
	return s.messages.ListBySession(ctx, sessionID)
}

// SendMessage persists the user message, streams the assistant reply
// and persists the final result. The returned channel yields the
// cumulative assistant text as it grows; a terminal event carries any
// error (cancellation included, unchanged). Blank input produces an
// immediately closed channel with no side effects. Cancelling ctx
// closes the upstream body promptly and nothing partial is persisted.
func (s *ChatService) SendMessage(ctx context.Context, sessionID, content string) <-chan SendEvent {
	events := make(chan SendEvent)

	go func() {
		defer close(events)

		err := s.send(ctx, sessionID, content, func(text string) {
			select {
			case events <- SendEvent{Content: text}:
			case <-ctx.Done():
			}
		})
		if err != nil {
			select {
			case events <- SendEvent{Err: err}:
			case <-time.After(time.Second):
				s.logger.WithField("session_id", sessionID).
					WithError(err).Warn("send error not consumed")
			}
		}
	}()

	return events
}

func (s *ChatService) send(ctx context.Context, sessionID, content string, emit func(string)) error {
	cleaned := strings.TrimSpace(content)
	if cleaned == "" {
		return nil
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	now := time.Now()
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if err != repository.ErrSessionNotFound {
			return err
		}
		session = &repository.Session{
			ID:        sessionID,
			Title:     DefaultSessionTitle,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	if session.Title == DefaultSessionTitle {
		session.Title = deriveTitle(cleaned)
	}
	session.UpdatedAt = now

	userMessage := repository.Message{
		SessionID:        sessionID,
		Role:             roleUser,
		Content:          cleaned,
		CreatedAt:        now,
		CompressionState: repository.CompressionActive,
	}

	userMessageID, err := s.store.BeginSend(ctx, *session, userMessage)
	if err != nil {
		return err
	}

	history, err := s.messages.ListBySession(ctx, sessionID)
	if err != nil {
		return err
	}

	contextMessages, err := s.contextBld.Build(ctx, session, history)
	if err != nil {
		return err
	}

	requestMessages := make([]llm.ChatMessage, 0, len(contextMessages)+1)
	if session.SystemPrompt.Valid && strings.TrimSpace(session.SystemPrompt.String) != "" {
		requestMessages = append(requestMessages, llm.ChatMessage{
			Role:    roleSystem,
			Content: strings.TrimSpace(session.SystemPrompt.String),
		})
	}
	requestMessages = append(requestMessages, contextMessages...)

	req := llm.ChatCompletionRequest{
		Model:         s.model,
		Messages:      requestMessages,
		Stream:        true,
		StreamOptions: &llm.StreamOptions{IncludeUsage: true},
	}

	resp, err := s.transport.Send(ctx, req)
	if err != nil {
		return err
	}
	if !resp.Success() || resp.Body == nil {
		return llm.NewAPIError(resp.StatusCode, resp.ErrorBody)
	}

	var finalText string
	var finalUsage *llm.Usage

	err = s.parser.Parse(ctx, resp.Body, func(event llm.StreamEvent) {
		switch e := event.(type) {
		case llm.TextEvent:
			finalText = e.Content
			emit(e.Content)
		case llm.UsageEvent:
			usage := e.Usage
			finalUsage = &usage
		}
	})
	if err != nil {
		return err
	}

	params := repository.CompleteSendParams{
		SessionID:     sessionID,
		UserMessageID: userMessageID,
		CompletedAt:   time.Now(),
	}
	if finalUsage != nil {
		params.HasUsage = true
		params.PromptTokens = finalUsage.PromptTokens
		params.PromptCacheHitTokens = finalUsage.PromptCacheHitTokens
		params.PromptCacheMissTokens = finalUsage.PromptCacheMissTokens
	}
	if strings.TrimSpace(finalText) != "" {
		params.AssistantContent = finalText
		if finalUsage != nil {
			params.CompletionTokens = sql.NullInt64{Int64: int64(finalUsage.CompletionTokens), Valid: true}
			params.TotalTokens = sql.NullInt64{Int64: int64(finalUsage.TotalTokens), Valid: true}
		}
	}

	if err := s.store.CompleteSend(ctx, params); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"chars":      len(finalText),
	}).Debug("send completed")

	return nil
}

// deriveTitle turns the first line of the first message into a session
// title, capped at maxTitleLength characters.
func deriveTitle(content string) string {
	firstLine := content
	if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
		firstLine = firstLine[:idx]
	}
	firstLine = strings.TrimSpace(firstLine)

	runes := []rune(firstLine)
	if len(runes) > maxTitleLength {
		firstLine = string(runes[:maxTitleLength])
	}

	if strings.TrimSpace(firstLine) == "" {
		return DefaultSessionTitle
	}
	return firstLine
}
