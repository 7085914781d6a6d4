package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/zhouzirui/chatbox/internal/model/chat"
)

var ErrStoreRequired = errors.New("transcript store is required")

// Store persists the shared transcript in arrival order.
type Store interface {
	Append(ctx context.Context, msg chat.Message) error
	Recent(ctx context.Context, limit int) ([]chat.Message, error)
	Close() error
}

// Service encapsulates transcript management for the chat endpoint.
type Service struct {
	store        Store
	historyLimit int
}

// NewService wires the transcript service to a store. historyLimit bounds
// what LoadTranscript returns.
func NewService(store Store, historyLimit int) (*Service, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if historyLimit < 1 {
		historyLimit = 1
	}
	return &Service{store: store, historyLimit: historyLimit}, nil
}

// SaveMessage appends a message to the transcript.
func (s *Service) SaveMessage(ctx context.Context, message chat.Message) error {
	if err := message.Validate(); err != nil {
		return err
	}
	if err := s.store.Append(ctx, message); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// LoadTranscript returns the most recent messages, oldest first.
func (s *Service) LoadTranscript(ctx context.Context) ([]chat.Message, error) {
	messages, err := s.store.Recent(ctx, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	return messages, nil
}

// Close releases the underlying store.
func (s *Service) Close() error {
	return s.store.Close()
}
