package services

import (
	"github.com/sirupsen/logrus"

	"github.com/deepchat/deepchat-backend/internal/config"
	"github.com/deepchat/deepchat-backend/internal/llm"
	"github.com/deepchat/deepchat-backend/internal/repository"
)

// Services bundles the service instances the API layer depends on.
type Services struct {
	Chat       *ChatService
	Summarizer *Summarizer
	Usage      *UsageService
}

// NewServices creates all service instances. The chat service and the
// summarizer share the per-session lock table so deleting a session
// drops its lock for both.
func NewServices(
	cfg *config.Config,
	sessions repository.SessionRepository,
	messages repository.MessageRepository,
	store repository.ChatStore,
	transport llm.Transport,
	logger *logrus.Logger,
) *Services {
	locks := newSessionLocks()
	contextBuilder := NewContextBuilder(messages, cfg.Compression.TailSize)

	chat := NewChatService(
		sessions,
		messages,
		store,
		transport,
		llm.NewStreamParser(),
		contextBuilder,
		locks,
		logger,
		cfg.DeepSeek.Model,
	)

	summarizer := NewSummarizer(
		sessions,
		messages,
		store,
		transport,
		locks,
		logger,
		cfg.DeepSeek.Model,
		cfg.Compression.TailSize,
		cfg.Compression.BatchSize,
		cfg.Compression.MaxSummaryLength,
	)

	return &Services{
		Chat:       chat,
		Summarizer: summarizer,
		Usage:      NewUsageService(messages),
	}
}
