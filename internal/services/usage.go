package services

import (
	"context"

	"github.com/deepchat/deepchat-backend/internal/llm"
	"github.com/deepchat/deepchat-backend/internal/repository"
)

// RequestUsage is the token and cost breakdown of one completed
// request: a user message paired with the assistant reply that
// followed it.
type RequestUsage struct {
	UserMessageID      int64   `json:"user_message_id"`
	AssistantMessageID int64   `json:"assistant_message_id,omitempty"`
	PromptTokens       int     `json:"prompt_tokens"`
	CacheHitTokens     int     `json:"cache_hit_tokens"`
	CacheMissTokens    int     `json:"cache_miss_tokens"`
	CompletionTokens   int     `json:"completion_tokens"`
	CostUSD            float64 `json:"cost_usd"`
	Cost               string  `json:"cost"`
}

// SessionUsage aggregates the usage of a session across all completed
// requests.
type SessionUsage struct {
	SessionID        string         `json:"session_id"`
	Requests         []RequestUsage `json:"requests"`
	RequestCount     int            `json:"request_count"`
	PromptTokens     int            `json:"prompt_tokens"`
	CacheHitTokens   int            `json:"cache_hit_tokens"`
	CacheMissTokens  int            `json:"cache_miss_tokens"`
	CompletionTokens int            `json:"completion_tokens"`
	ContextLength    int            `json:"context_length"`
	MaxContextLength int            `json:"max_context_length"`
	TotalCostUSD     float64        `json:"total_cost_usd"`
	TotalCost        string         `json:"total_cost"`
}

// UsageService reconstructs per-request and per-session token usage
// and cost from stored messages.
type UsageService struct {
	messages repository.MessageRepository
}

// NewUsageService creates a new usage service
func NewUsageService(messages repository.MessageRepository) *UsageService {
	return &UsageService{messages: messages}
}

// SessionUsage walks a session's messages in order, pairing each user
// message carrying usage with the next assistant message, and prices
// each pair. The context length is the last recorded total token
// count, which the API reports for the most recent request.
func (s *UsageService) SessionUsage(ctx context.Context, sessionID string) (*SessionUsage, error) {
	messages, err := s.messages.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	usage := &SessionUsage{
		SessionID:        sessionID,
		Requests:         []RequestUsage{},
		MaxContextLength: llm.MaxContextLength,
	}

	var pending *RequestUsage
	for _, msg := range messages {
		switch msg.Role {
		case roleUser:
			if !msg.PromptTokens.Valid {
				continue
			}
			if pending != nil {
				usage.addRequest(*pending)
			}
			pending = &RequestUsage{
				UserMessageID:   msg.ID,
				PromptTokens:    int(msg.PromptTokens.Int64),
				CacheHitTokens:  int(msg.PromptCacheHitTokens.Int64),
				CacheMissTokens: int(msg.PromptCacheMissTokens.Int64),
			}
		case roleAssistant:
			if pending == nil {
				continue
			}
			pending.AssistantMessageID = msg.ID
			pending.CompletionTokens = int(msg.CompletionTokens.Int64)
			if msg.TotalTokens.Valid {
				usage.ContextLength = int(msg.TotalTokens.Int64)
			}
			usage.addRequest(*pending)
			pending = nil
		}
	}
	if pending != nil {
		usage.addRequest(*pending)
	}

	usage.TotalCost = llm.FormatUSD(usage.TotalCostUSD)
	return usage, nil
}

func (u *SessionUsage) addRequest(r RequestUsage) {
	r.CostUSD = llm.RequestCostUSD(r.CacheHitTokens, r.CacheMissTokens, r.CompletionTokens)
	r.Cost = llm.FormatUSD(r.CostUSD)

	u.Requests = append(u.Requests, r)
	u.RequestCount++
	u.PromptTokens += r.PromptTokens
	u.CacheHitTokens += r.CacheHitTokens
	u.CacheMissTokens += r.CacheMissTokens
	u.CompletionTokens += r.CompletionTokens
	u.TotalCostUSD += r.CostUSD
}
