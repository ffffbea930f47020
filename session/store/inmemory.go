package store

import (
	"context"
	"sync"

	"github.com/sweetpotato0/auto-concierge/message"
)

// InMemoryStore keeps conversations in process memory. Useful for tests and
// single-process deployments; it does not expire entries.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string][]*message.Message
}

// NewInMemoryStore creates an empty in-memory conversation store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[string][]*message.Message),
	}
}

// GetConversation returns a copy of the user's conversation.
func (s *InMemoryStore) GetConversation(ctx context.Context, userID string) ([]*message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return message.CloneMessages(s.conversations[userID]), nil
}

// AppendConversation appends entries to the user's conversation.
func (s *InMemoryStore) AppendConversation(ctx context.Context, userID string, entries []*message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[userID] = append(s.conversations[userID], message.CloneMessages(entries)...)
	return nil
}

// ClearConversation removes the user's conversation.
func (s *InMemoryStore) ClearConversation(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, userID)
	return nil
}
