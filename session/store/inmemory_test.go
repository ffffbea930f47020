package store

import (
	"context"
	"testing"

	"github.com/sweetpotato0/auto-concierge/message"
)

func TestInMemoryAppendAndGet(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	entries := []*message.Message{
		message.New(message.RoleUser, "hello"),
		message.New(message.RoleConcierge, "welcome"),
	}
	if err := s.AppendConversation(ctx, "u1", entries); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.AppendConversation(ctx, "u1", []*message.Message{message.New(message.RoleDataAnalyst, "counts")}); err != nil {
		t.Fatalf("Second append failed: %v", err)
	}

	conv, err := s.GetConversation(ctx, "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(conv) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(conv))
	}
	if conv[0].Content != "hello" || conv[2].Role != message.RoleDataAnalyst {
		t.Errorf("Entries out of order: %v", conv)
	}
}

func TestInMemoryIsolatesUsers(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	s.AppendConversation(ctx, "u1", []*message.Message{message.New(message.RoleUser, "a")})
	s.AppendConversation(ctx, "u2", []*message.Message{message.New(message.RoleUser, "b")})

	conv, _ := s.GetConversation(ctx, "u2")
	if len(conv) != 1 || conv[0].Content != "b" {
		t.Errorf("Expected only u2's entry, got %v", conv)
	}
}

func TestInMemoryClear(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	s.AppendConversation(ctx, "u1", []*message.Message{message.New(message.RoleUser, "a")})
	if err := s.ClearConversation(ctx, "u1"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	conv, _ := s.GetConversation(ctx, "u1")
	if len(conv) != 0 {
		t.Errorf("Expected empty conversation after clear, got %v", conv)
	}
}

func TestInMemoryReturnsCopies(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	s.AppendConversation(ctx, "u1", []*message.Message{message.New(message.RoleUser, "original")})
	conv, _ := s.GetConversation(ctx, "u1")
	conv[0].Content = "mutated"

	again, _ := s.GetConversation(ctx, "u1")
	if again[0].Content != "original" {
		t.Errorf("Store returned aliased entries")
	}
}
