package services

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepchat/deepchat-backend/internal/llm"
	"github.com/deepchat/deepchat-backend/internal/repository"
)

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: true}
}

func TestSessionUsage_PairsRequests(t *testing.T) {
	store := newMemStore()
	store.addSession(repository.Session{ID: "s1"})

	store.addMessage(repository.Message{
		SessionID: "s1", Role: "user", Content: "q1",
		PromptTokens: nullInt(10), PromptCacheHitTokens: nullInt(4), PromptCacheMissTokens: nullInt(6),
	})
	store.addMessage(repository.Message{
		SessionID: "s1", Role: "assistant", Content: "a1",
		CompletionTokens: nullInt(5), TotalTokens: nullInt(15),
	})
	store.addMessage(repository.Message{
		SessionID: "s1", Role: "user", Content: "q2",
		PromptTokens: nullInt(20), PromptCacheHitTokens: nullInt(15), PromptCacheMissTokens: nullInt(5),
	})
	store.addMessage(repository.Message{
		SessionID: "s1", Role: "assistant", Content: "a2",
		CompletionTokens: nullInt(8), TotalTokens: nullInt(43),
	})

	usage, err := NewUsageService(store).SessionUsage(context.Background(), "s1")
	require.NoError(t, err)

	require.Len(t, usage.Requests, 2)
	assert.Equal(t, 2, usage.RequestCount)

	first := usage.Requests[0]
	assert.Equal(t, 10, first.PromptTokens)
	assert.Equal(t, 4, first.CacheHitTokens)
	assert.Equal(t, 6, first.CacheMissTokens)
	assert.Equal(t, 5, first.CompletionTokens)
	assert.InDelta(t, llm.RequestCostUSD(4, 6, 5), first.CostUSD, 1e-12)

	assert.Equal(t, 30, usage.PromptTokens)
	assert.Equal(t, 19, usage.CacheHitTokens)
	assert.Equal(t, 11, usage.CacheMissTokens)
	assert.Equal(t, 13, usage.CompletionTokens)
	assert.Equal(t, 43, usage.ContextLength)
	assert.Equal(t, llm.MaxContextLength, usage.MaxContextLength)
	assert.InDelta(t, first.CostUSD+usage.Requests[1].CostUSD, usage.TotalCostUSD, 1e-12)
	assert.Equal(t, llm.FormatUSD(usage.TotalCostUSD), usage.TotalCost)
}

func TestSessionUsage_UserWithoutUsageSkipped(t *testing.T) {
	store := newMemStore()
	store.addSession(repository.Session{ID: "s1"})

	// A failed request leaves a user message with no usage.
	store.addMessage(repository.Message{SessionID: "s1", Role: "user", Content: "failed"})
	store.addMessage(repository.Message{
		SessionID: "s1", Role: "user", Content: "retried",
		PromptTokens: nullInt(7), PromptCacheMissTokens: nullInt(7),
	})
	store.addMessage(repository.Message{
		SessionID: "s1", Role: "assistant", Content: "a",
		CompletionTokens: nullInt(2), TotalTokens: nullInt(9),
	})

	usage, err := NewUsageService(store).SessionUsage(context.Background(), "s1")
	require.NoError(t, err)

	require.Len(t, usage.Requests, 1)
	assert.Equal(t, 7, usage.Requests[0].PromptTokens)
	assert.Equal(t, 2, usage.Requests[0].CompletionTokens)
}

func TestSessionUsage_UnpairedUserStillCounted(t *testing.T) {
	store := newMemStore()
	store.addSession(repository.Session{ID: "s1"})

	// Stream delivered usage but no assistant text.
	store.addMessage(repository.Message{
		SessionID: "s1", Role: "user", Content: "q",
		PromptTokens: nullInt(12), PromptCacheHitTokens: nullInt(12),
	})

	usage, err := NewUsageService(store).SessionUsage(context.Background(), "s1")
	require.NoError(t, err)

	require.Len(t, usage.Requests, 1)
	assert.Equal(t, 12, usage.Requests[0].PromptTokens)
	assert.Zero(t, usage.Requests[0].CompletionTokens)
	assert.Zero(t, usage.Requests[0].AssistantMessageID)
}

func TestSessionUsage_EmptySession(t *testing.T) {
	store := newMemStore()

	usage, err := NewUsageService(store).SessionUsage(context.Background(), "none")
	require.NoError(t, err)

	assert.Zero(t, usage.RequestCount)
	assert.Empty(t, usage.Requests)
	assert.Equal(t, "$0.000000", usage.TotalCost)
}
