package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/chatbox/internal/config"
	"github.com/zhouzirui/chatbox/internal/model/chat"
)

// Responder produces the bot reply to a user message given the transcript so far.
type Responder interface {
	Reply(ctx context.Context, history []chat.Message, text string) (string, error)
}

// EchoResponder answers by repeating the message. Used when no model is configured.
type EchoResponder struct{}

func (EchoResponder) Reply(_ context.Context, _ []chat.Message, text string) (string, error) {
	return "You said: " + strings.TrimSpace(text), nil
}

// Service answers through an Ark chat model behind an eino chain.
type Service struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	systemPrompt string
	historyLimit int
	log          zerolog.Logger
}

var _ Responder = (*Service)(nil)

// NewService creates a new AI service instance
func NewService(ctx context.Context, cfg config.AIConfig, logger zerolog.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chain:        runnable,
		systemPrompt: cfg.SystemPrompt,
		historyLimit: cfg.HistoryLimit,
		log:          logger.With().Str("component", "ai").Logger(),
	}, nil
}

// Reply runs the chain for one user message.
func (s *Service) Reply(ctx context.Context, history []chat.Message, text string) (string, error) {
	input := map[string]any{
		"system":  s.systemPrompt,
		"history": BuildHistory(history, s.historyLimit),
		"query":   text,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", errors.New("model returned an empty reply")
	}

	s.log.Debug().Int("length", len(response.Content)).Msg("generated reply")
	return response.Content, nil
}

// BuildHistory converts the trailing limit transcript entries into model
// messages. System notices are not part of the conversation.
func BuildHistory(messages []chat.Message, limit int) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if limit > 0 && len(messages) > limit {
		startIdx = len(messages) - limit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Sender {
		case chat.SenderUser:
			history = append(history, schema.UserMessage(msg.Text))
		case chat.SenderBot:
			history = append(history, schema.AssistantMessage(msg.Text, nil))
		}
	}

	return history
}
