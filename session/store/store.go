package store

import (
	"context"

	"github.com/sweetpotato0/auto-concierge/message"
)

// ConversationStore persists the durable per-user conversation record. The
// record outlives any single collaboration and expires via backend TTL when
// never cleared explicitly.
type ConversationStore interface {
	// GetConversation returns the ordered conversation entries for a user.
	GetConversation(ctx context.Context, userID string) ([]*message.Message, error)

	// AppendConversation appends entries in order. Appends are at-least-once;
	// duplicates from caller retries are acceptable and not deduplicated.
	AppendConversation(ctx context.Context, userID string, entries []*message.Message) error

	// ClearConversation removes the user's conversation entirely.
	ClearConversation(ctx context.Context, userID string) error
}
