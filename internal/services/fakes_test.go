package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/deepchat/deepchat-backend/internal/llm"
	"github.com/deepchat/deepchat-backend/internal/repository"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// memStore is an in-memory stand-in for the session and message
// repositories and the chat store, good enough for pipeline tests.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*repository.Session
	messages []repository.Message
	nextID   int64
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]*repository.Session),
		nextID:   1,
	}
}

func (s *memStore) addSession(session repository.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := session
	s.sessions[session.ID] = &copied
}

func (s *memStore) addMessage(msg repository.Message) repository.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(msg)
}

func (s *memStore) appendLocked(msg repository.Message) repository.Message {
	msg.ID = s.nextID
	s.nextID++
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Unix(msg.ID, 0)
	}
	if msg.CompressionState == "" {
		msg.CompressionState = repository.CompressionActive
	}
	s.messages = append(s.messages, msg)
	return msg
}

// SessionRepository

func (s *memStore) Create(ctx context.Context, session repository.Session) error {
	s.addSession(session)
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (*repository.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *memStore) List(ctx context.Context) ([]*repository.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*repository.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		copied := *session
		result = append(result, &copied)
	}
	return result, nil
}

func (s *memStore) SetSystemPrompt(ctx context.Context, id string, prompt *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	if prompt == nil {
		session.SystemPrompt = sql.NullString{}
	} else {
		session.SystemPrompt = sql.NullString{String: *prompt, Valid: true}
	}
	return nil
}

func (s *memStore) SetCompressionEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	session.CompressionEnabled = enabled
	session.ContextSummary = sql.NullString{}
	session.SummarizedCount = 0
	session.SummarizationInProgress = false
	return nil
}

func (s *memStore) SetSummarizationInProgress(ctx context.Context, id string, inProgress bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	session.SummarizationInProgress = inProgress
	return nil
}

func (s *memStore) Touch(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[id]; ok {
		session.UpdatedAt = at
	}
	return nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return repository.ErrSessionNotFound
	}
	delete(s.sessions, id)

	kept := s.messages[:0]
	for _, msg := range s.messages {
		if msg.SessionID != id {
			kept = append(kept, msg)
		}
	}
	s.messages = kept
	return nil
}

// MessageRepository

func (s *memStore) ListBySession(ctx context.Context, sessionID string) ([]repository.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []repository.Message
	for _, msg := range s.messages {
		if msg.SessionID == sessionID {
			result = append(result, msg)
		}
	}
	return result, nil
}

func (s *memStore) CountBySession(ctx context.Context, sessionID string) (int, error) {
	messages, _ := s.ListBySession(ctx, sessionID)
	return len(messages), nil
}

func (s *memStore) MarkReadyForSummary(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	for i := range s.messages {
		if wanted[s.messages[i].ID] && s.messages[i].CompressionState == repository.CompressionActive {
			s.messages[i].CompressionState = repository.CompressionReady
		}
	}
	return nil
}

// ChatStore

func (s *memStore) BeginSend(ctx context.Context, session repository.Session, userMessage repository.Message) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[session.ID]; ok {
		existing.Title = session.Title
		existing.UpdatedAt = session.UpdatedAt
	} else {
		copied := session
		s.sessions[session.ID] = &copied
	}

	inserted := s.appendLocked(userMessage)
	return inserted.ID, nil
}

func (s *memStore) CompleteSend(ctx context.Context, p repository.CompleteSendParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.HasUsage {
		for i := range s.messages {
			if s.messages[i].ID == p.UserMessageID {
				s.messages[i].PromptTokens = sql.NullInt64{Int64: int64(p.PromptTokens), Valid: true}
				s.messages[i].PromptCacheHitTokens = sql.NullInt64{Int64: int64(p.PromptCacheHitTokens), Valid: true}
				s.messages[i].PromptCacheMissTokens = sql.NullInt64{Int64: int64(p.PromptCacheMissTokens), Valid: true}
			}
		}
	}

	if p.AssistantContent != "" {
		s.appendLocked(repository.Message{
			SessionID:        p.SessionID,
			Role:             "assistant",
			Content:          p.AssistantContent,
			CreatedAt:        p.CompletedAt,
			CompletionTokens: p.CompletionTokens,
			TotalTokens:      p.TotalTokens,
		})
		if session, ok := s.sessions[p.SessionID]; ok {
			session.UpdatedAt = p.CompletedAt
		}
	}
	return nil
}

func (s *memStore) CommitSummary(ctx context.Context, sessionID string, messageIDs []int64, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[int64]bool, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = true
	}

	summarized := 0
	for i := range s.messages {
		if wanted[s.messages[i].ID] {
			s.messages[i].CompressionState = repository.CompressionSummarized
		}
		if s.messages[i].SessionID == sessionID && s.messages[i].CompressionState == repository.CompressionSummarized {
			summarized++
		}
	}

	session, ok := s.sessions[sessionID]
	if !ok {
		return repository.ErrSessionNotFound
	}
	session.ContextSummary = sql.NullString{String: summary, Valid: true}
	session.SummarizedCount = summarized
	session.SummarizationInProgress = false
	return nil
}

// fakeTransport replays scripted responses and records requests.
type fakeTransport struct {
	mu        sync.Mutex
	responses []*llm.Response
	errs      []error
	requests  []llm.ChatCompletionRequest
}

func (t *fakeTransport) Send(ctx context.Context, req llm.ChatCompletionRequest) (*llm.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.requests = append(t.requests, req)
	if len(t.errs) > 0 {
		err := t.errs[0]
		t.errs = t.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(t.responses) == 0 {
		return nil, fmt.Errorf("no scripted response for request %d", len(t.requests))
	}
	resp := t.responses[0]
	t.responses = t.responses[1:]
	return resp, nil
}

func (t *fakeTransport) sentRequests() []llm.ChatCompletionRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]llm.ChatCompletionRequest(nil), t.requests...)
}

func streamResponse(sse string) *llm.Response {
	return &llm.Response{
		StatusCode: 200,
		Body:       io.NopCloser(strings.NewReader(sse)),
	}
}

func completionResponse(content string) *llm.Response {
	return &llm.Response{
		StatusCode: 200,
		Payload: &llm.ChatCompletionResponse{
			Choices: []llm.ResponseChoice{
				{Message: &llm.ResponseMessage{Role: "assistant", Content: content}},
			},
		},
	}
}

func errorResponse(code int, body string) *llm.Response {
	return &llm.Response{
		StatusCode: code,
		ErrorBody:  body,
	}
}
