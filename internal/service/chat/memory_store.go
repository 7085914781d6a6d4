package chat

import (
	"context"
	"sync"

	"github.com/zhouzirui/chatbox/internal/model/chat"
)

// MemoryStore keeps the transcript in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	messages []chat.Message
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make([]chat.Message, 0, 16)}
}

func (s *MemoryStore) Append(_ context.Context, msg chat.Message) error {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, limit int) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if limit > 0 && len(s.messages) > limit {
		start = len(s.messages) - limit
	}
	copied := make([]chat.Message, len(s.messages)-start)
	copy(copied, s.messages[start:])
	return copied, nil
}

func (s *MemoryStore) Close() error { return nil }
