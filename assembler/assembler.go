package assembler

import (
	"context"
	"log/slog"

	"github.com/sweetpotato0/auto-concierge/classifier"
	"github.com/sweetpotato0/auto-concierge/message"
	"github.com/sweetpotato0/auto-concierge/pkg/logging"
	"github.com/sweetpotato0/auto-concierge/session"
	"github.com/sweetpotato0/auto-concierge/session/store"
	"github.com/sweetpotato0/auto-concierge/vehicle"
)

// Status is the terminal outcome of a collaboration.
type Status string

const (
	StatusSuccess         Status = "success"
	StatusNoViableOptions Status = "no-viable-options"
)

// Result is the terminal artifact returned to the caller: the full turn
// sequence plus the final candidate set, which may reflect a re-query after
// a budget expansion.
type Result struct {
	UserID     string
	Pattern    classifier.Pattern
	Turns      []session.Turn
	Candidates *vehicle.CandidateSet
	Status     Status
}

// Assembler merges a finished session with the final candidate set and
// mirrors the transcript into the durable conversation record.
type Assembler struct {
	conversations store.ConversationStore
	logger        *slog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger overrides the logger used by the assembler.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an assembler writing conversation entries to conversations.
func New(conversations store.ConversationStore, opts ...Option) *Assembler {
	a := &Assembler{conversations: conversations}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logging.WithComponent("assembler")
	}
	return a
}

// Assemble copies the session's turn sequence, attaches the final candidate
// set, and derives the result status from whether anything matched.
//
// The conversation append is at-least-once: a caller retry may write the same
// turns twice, and that is acceptable because conversation history is
// advisory, not transactional. A store failure therefore does not fail the
// assembly.
func (a *Assembler) Assemble(ctx context.Context, sess *session.Collaboration, final *vehicle.CandidateSet) *Result {
	turns := make([]session.Turn, len(sess.Turns))
	copy(turns, sess.Turns)

	status := StatusSuccess
	if final.Empty() {
		status = StatusNoViableOptions
	}

	result := &Result{
		UserID:     sess.UserID,
		Pattern:    sess.Pattern,
		Turns:      turns,
		Candidates: final,
		Status:     status,
	}

	if a.conversations != nil && len(turns) > 0 {
		entries := make([]*message.Message, 0, len(turns))
		for _, turn := range turns {
			entries = append(entries, &message.Message{
				Role:      turn.Persona.Role(),
				Content:   turn.Content,
				Timestamp: turn.CreatedAt,
			})
		}
		if err := a.conversations.AppendConversation(ctx, sess.UserID, entries); err != nil {
			a.logger.Warn("conversation append failed", "user_id", sess.UserID, "error", err)
		}
	}

	return result
}
