package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sweetpotato0/auto-concierge/classifier"
	"github.com/sweetpotato0/auto-concierge/errors"
	"github.com/sweetpotato0/auto-concierge/intent"
	"github.com/sweetpotato0/auto-concierge/message"
	"github.com/sweetpotato0/auto-concierge/pkg/logging"
	"github.com/sweetpotato0/auto-concierge/session/store"
)

// Handle refers to one in-flight collaboration. A handle issued before a
// preemption or terminal transition keeps working for reads but fails any
// mutation, because the epoch it carries no longer matches the entry's.
type Handle struct {
	userID string
	epoch  uint64
}

// UserID returns the user identifier the handle is bound to.
func (h *Handle) UserID() string {
	if h == nil {
		return ""
	}
	return h.userID
}

// entry serializes all operations for one user identifier. Entries for
// different users never share a lock.
type entry struct {
	mu      sync.Mutex
	epoch   uint64
	current *Collaboration
}

// Manager is the registry mapping user identifiers to in-flight
// collaborations. It guarantees at most one non-terminal session per user.
// Construct it once per process and pass it to whatever needs it; there is
// no hidden global instance.
type Manager struct {
	mu            sync.RWMutex
	entries       map[string]*entry
	conversations store.ConversationStore
	logger        *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithConversationStore sets the store that receives the transcript of a
// session that gets preempted by a new collaboration for the same user.
func WithConversationStore(s store.ConversationStore) Option {
	return func(m *Manager) {
		m.conversations = s
	}
}

// WithLogger overrides the logger used by the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a new session manager with the given options.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.WithComponent("session_manager")
	}
	return m
}

// Close tears down the registry. Active sessions are aborted in place.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		e.mu.Lock()
		if e.current != nil && !e.current.Status.Terminal() {
			e.current.Status = StatusAborted
			e.current.LastActivity = time.Now()
		}
		e.mu.Unlock()
	}
	m.entries = make(map[string]*entry)
}

// StartCollaboration opens a fresh active session for userID. If an active
// session already exists it is aborted first and its partial transcript is
// flushed to the conversation record, so preemption never loses turns.
func (m *Manager) StartCollaboration(ctx context.Context, userID string, in *intent.UserIntent, pattern classifier.Pattern) (*Handle, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id cannot be empty", errors.ErrInvalidArgument)
	}

	e := m.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil && !e.current.Status.Terminal() {
		m.logger.Warn("preempting active collaboration", "user_id", userID, "turns", len(e.current.Turns))
		m.flushTranscript(ctx, e.current)
		e.current.Status = StatusAborted
		e.current.LastActivity = time.Now()
	}

	now := time.Now()
	e.epoch++
	e.current = &Collaboration{
		UserID:       userID,
		Pattern:      pattern,
		Intent:       in,
		Status:       StatusActive,
		CreatedAt:    now,
		LastActivity: now,
	}
	m.logger.Info("collaboration started", "user_id", userID, "pattern", string(pattern))
	return &Handle{userID: userID, epoch: e.epoch}, nil
}

// AppendTurn records one generated turn. The session must still be active
// and turn indices must be strictly increasing from zero.
func (m *Manager) AppendTurn(ctx context.Context, h *Handle, turn Turn) error {
	e, err := m.lookup(h)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, err := m.active(e, h)
	if err != nil {
		return err
	}
	if turn.Index != sess.NextIndex() {
		return fmt.Errorf("%w: got index %d, want %d", errors.ErrOrderingViolation, turn.Index, sess.NextIndex())
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	sess.Turns = append(sess.Turns, turn)
	sess.LastActivity = time.Now()
	m.logger.Debug("turn appended", "user_id", h.userID, "persona", string(turn.Persona), "index", turn.Index)
	return nil
}

// Complete transitions the session to completed and returns its final state.
// Calling it on an already terminal session is a no-op that returns the
// existing state, so caller-side retries are safe.
func (m *Manager) Complete(ctx context.Context, h *Handle) (*Collaboration, error) {
	return m.finalize(h, StatusCompleted)
}

// Abort transitions the session to aborted, leaving the transcript as-is.
// Idempotent in the same way Complete is.
func (m *Manager) Abort(ctx context.Context, h *Handle) (*Collaboration, error) {
	return m.finalize(h, StatusAborted)
}

// Get returns a snapshot of the user's most recent session.
func (m *Manager) Get(userID string) (*Collaboration, error) {
	m.mu.RLock()
	e, ok := m.entries[userID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: user %s", errors.ErrSessionNotFound, userID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil, fmt.Errorf("%w: user %s", errors.ErrSessionNotFound, userID)
	}
	return e.current.snapshot(), nil
}

// CancelActive aborts the user's in-flight collaboration, if any. The engine
// observes the abort between turns and stops scheduling further ones; the
// transcript is left as-is.
func (m *Manager) CancelActive(userID string) error {
	m.mu.RLock()
	e, ok := m.entries[userID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: user %s", errors.ErrSessionNotFound, userID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil || e.current.Status.Terminal() {
		return fmt.Errorf("%w: user %s has no active session", errors.ErrSessionNotFound, userID)
	}
	e.current.Status = StatusAborted
	e.current.LastActivity = time.Now()
	m.logger.Info("collaboration cancelled", "user_id", userID)
	return nil
}

// Aborted reports whether the handle's session has been aborted out from
// under the caller. The engine checks this between turns.
func (m *Manager) Aborted(h *Handle) bool {
	e, err := m.lookup(h)
	if err != nil {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != h.epoch || e.current == nil {
		return true
	}
	return e.current.Status == StatusAborted
}

func (m *Manager) finalize(h *Handle, terminal Status) (*Collaboration, error) {
	e, err := m.lookup(h)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || e.epoch != h.epoch {
		return nil, fmt.Errorf("%w: user %s", errors.ErrSessionNotFound, h.userID)
	}
	if e.current.Status.Terminal() {
		return e.current.snapshot(), nil
	}
	e.current.Status = terminal
	e.current.LastActivity = time.Now()
	m.logger.Info("collaboration finalized", "user_id", h.userID, "status", string(terminal), "turns", len(e.current.Turns))
	return e.current.snapshot(), nil
}

func (m *Manager) active(e *entry, h *Handle) (*Collaboration, error) {
	if e.current == nil || e.epoch != h.epoch || e.current.Status != StatusActive {
		return nil, fmt.Errorf("%w: user %s has no active session for this handle", errors.ErrSessionNotFound, h.userID)
	}
	return e.current, nil
}

func (m *Manager) lookup(h *Handle) (*entry, error) {
	if h == nil || h.userID == "" {
		return nil, fmt.Errorf("%w: nil session handle", errors.ErrInvalidArgument)
	}
	m.mu.RLock()
	e, ok := m.entries[h.userID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: user %s", errors.ErrSessionNotFound, h.userID)
	}
	return e, nil
}

func (m *Manager) entry(userID string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	if !ok {
		e = &entry{}
		m.entries[userID] = e
	}
	return e
}

// flushTranscript writes the session's turns to the conversation record.
// Conversation history is advisory, so a store failure is logged rather than
// blocking the new collaboration.
func (m *Manager) flushTranscript(ctx context.Context, sess *Collaboration) {
	if m.conversations == nil || len(sess.Turns) == 0 {
		return
	}
	entries := make([]*message.Message, 0, len(sess.Turns))
	for _, turn := range sess.Turns {
		entries = append(entries, &message.Message{
			Role:      turn.Persona.Role(),
			Content:   turn.Content,
			Timestamp: turn.CreatedAt,
		})
	}
	if err := m.conversations.AppendConversation(ctx, sess.UserID, entries); err != nil {
		m.logger.Error("failed to flush preempted transcript", "user_id", sess.UserID, "error", err)
	}
}
