package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the orchestrator error taxonomy.
var (
	// ErrInvalidArgument indicates caller input that fails validation, such
	// as an empty user identifier or a price range with min greater than max.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSessionNotFound indicates an operation against a session that does
	// not exist or is no longer active.
	ErrSessionNotFound = errors.New("session not found")

	// ErrOrderingViolation indicates a turn appended out of sequence. This is
	// always a defect in the engine's own sequencing.
	ErrOrderingViolation = errors.New("turn ordering violation")

	// ErrGatewayUnavailable indicates a transient inventory gateway failure.
	ErrGatewayUnavailable = errors.New("inventory gateway unavailable")

	// ErrModelUnavailable indicates a transient model collaborator failure.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrAborted indicates the caller cancelled an in-flight collaboration.
	// Observed between turns only, never mid-turn.
	ErrAborted = errors.New("collaboration aborted")
)

// CollaborationError wraps any failure that aborts a collaboration run. It
// carries the index of the last turn that was successfully recorded so the
// caller knows how much transcript survived; -1 means no turn was recorded.
type CollaborationError struct {
	Pattern       string
	LastTurnIndex int
	Err           error
}

func (e *CollaborationError) Error() string {
	return fmt.Sprintf("collaboration failed (pattern=%s, last turn=%d): %v", e.Pattern, e.LastTurnIndex, e.Err)
}

func (e *CollaborationError) Unwrap() error {
	return e.Err
}

// NewCollaborationError builds a CollaborationError around cause.
func NewCollaborationError(pattern string, lastTurn int, cause error) *CollaborationError {
	return &CollaborationError{Pattern: pattern, LastTurnIndex: lastTurn, Err: cause}
}
