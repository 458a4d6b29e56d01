package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/deepchat/deepchat-backend/internal/llm"
	"github.com/deepchat/deepchat-backend/internal/repository"
)

const (
	summarySystemInstruction = "You maintain a rolling summary of a conversation. " +
		"Merge the current summary with the new messages into a single updated summary. " +
		"Preserve facts, goals, constraints and decisions. " +
		"Return only the updated summary text, with no commentary."

	emptySummaryPlaceholder = "(no summary yet)"
)

// Summarizer folds old messages of compressed sessions into a rolling
// natural-language summary via an auxiliary completion call.
type Summarizer struct {
	sessions  repository.SessionRepository
	messages  repository.MessageRepository
	store     repository.ChatStore
	transport llm.Transport
	locks     *sessionLocks
	logger    *logrus.Logger

	model            string
	tailSize         int
	batchSize        int
	maxSummaryLength int
}

// NewSummarizer creates a new summarizer
func NewSummarizer(
	sessions repository.SessionRepository,
	messages repository.MessageRepository,
	store repository.ChatStore,
	transport llm.Transport,
	locks *sessionLocks,
	logger *logrus.Logger,
	model string,
	tailSize, batchSize, maxSummaryLength int,
) *Summarizer {
	return &Summarizer{
		sessions:         sessions,
		messages:         messages,
		store:            store,
		transport:        transport,
		locks:            locks,
		logger:           logger,
		model:            model,
		tailSize:         tailSize,
		batchSize:        batchSize,
		maxSummaryLength: maxSummaryLength,
	}
}

// RunIfNeeded folds ready messages into the session summary, one full
// batch per pass, until fewer than a batch remain. It is idempotent
// and safe to call after every send. Runs for the same session
// serialize on a per-session lock; a failed summary call aborts the
// pass without marking anything SUMMARIZED. The session's in-progress
// flag is false again on every exit path.
func (s *Summarizer) RunIfNeeded(ctx context.Context, sessionID string) error {
	lock := s.locks.Acquire(sessionID)
	lock.Lock()
	defer lock.Unlock()

	inProgress := false
	defer func() {
		if inProgress {
			// Cleanup must survive a cancelled ctx.
			if err := s.sessions.SetSummarizationInProgress(context.Background(), sessionID, false); err != nil {
				s.logger.WithField("session_id", sessionID).
					WithError(err).Warn("failed to clear summarization flag")
			}
		}
	}()

	for {
		session, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			if err == repository.ErrSessionNotFound {
				return nil
			}
			return err
		}
		if !session.CompressionEnabled {
			return nil
		}

		messages, err := s.messages.ListBySession(ctx, sessionID)
		if err != nil {
			return err
		}
		if len(messages) <= s.tailSize {
			return nil
		}

		older := messages[:len(messages)-s.tailSize]

		var activeIDs []int64
		for _, msg := range older {
			if msg.CompressionState == repository.CompressionActive {
				activeIDs = append(activeIDs, msg.ID)
			}
		}
		if err := s.messages.MarkReadyForSummary(ctx, activeIDs); err != nil {
			return err
		}

		// A full batch has to accumulate before the extra completion
		// call is worth making.
		var batch []repository.Message
		for _, msg := range older {
			if msg.CompressionState == repository.CompressionSummarized {
				continue
			}
			batch = append(batch, msg)
			if len(batch) == s.batchSize {
				break
			}
		}
		if len(batch) < s.batchSize {
			return nil
		}

		if err := s.sessions.SetSummarizationInProgress(ctx, sessionID, true); err != nil {
			return err
		}
		inProgress = true

		currentSummary := emptySummaryPlaceholder
		if session.ContextSummary.Valid && strings.TrimSpace(session.ContextSummary.String) != "" {
			currentSummary = session.ContextSummary.String
		}

		newSummary, err := s.generateSummary(ctx, currentSummary, batch)
		if err != nil {
			return err
		}

		ids := make([]int64, len(batch))
		for i, msg := range batch {
			ids[i] = msg.ID
		}
		if err := s.store.CommitSummary(ctx, sessionID, ids, newSummary); err != nil {
			return err
		}
		inProgress = false

		s.logger.WithFields(logrus.Fields{
			"session_id": sessionID,
			"batch_size": len(batch),
		}).Debug("summarized message batch")
	}
}

func (s *Summarizer) generateSummary(ctx context.Context, currentSummary string, batch []repository.Message) (string, error) {
	var lines strings.Builder
	for _, msg := range batch {
		lines.WriteString(msg.Role)
		lines.WriteString(": ")
		lines.WriteString(msg.Content)
		lines.WriteString("\n")
	}

	prompt := fmt.Sprintf("Current summary:\n%s\n\nNew messages:\n%s", currentSummary, lines.String())

	req := llm.ChatCompletionRequest{
		Model: s.model,
		Messages: []llm.ChatMessage{
			{Role: "system", Content: summarySystemInstruction},
			{Role: "user", Content: prompt},
		},
		Stream: false,
	}

	resp, err := s.transport.Send(ctx, req)
	if err != nil {
		return "", err
	}
	if !resp.Success() {
		return "", llm.NewAPIError(resp.StatusCode, resp.ErrorBody)
	}
	if resp.Payload == nil || len(resp.Payload.Choices) == 0 {
		return "", fmt.Errorf("summarization returned an empty response")
	}

	choice := resp.Payload.Choices[0]
	if choice.Message == nil || strings.TrimSpace(choice.Message.Content) == "" {
		return "", fmt.Errorf("summarization returned an empty summary")
	}

	return trimSummary(choice.Message.Content, s.maxSummaryLength), nil
}

// trimSummary caps the summary length, keeping the suffix so the most
// recent content survives.
func trimSummary(summary string, maxLength int) string {
	runes := []rune(summary)
	if len(runes) <= maxLength {
		return summary
	}
	return string(runes[len(runes)-maxLength:])
}
