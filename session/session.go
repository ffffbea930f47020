package session

import (
	"time"

	"github.com/sweetpotato0/auto-concierge/classifier"
	"github.com/sweetpotato0/auto-concierge/intent"
	"github.com/sweetpotato0/auto-concierge/persona"
)

// Status represents the lifecycle state of a collaboration session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// Suggestion is an optional structured proposal attached to a turn, such as
// a budget delta or a compromise vehicle subset.
type Suggestion struct {
	BudgetDelta float64  `json:"budget_delta,omitempty"`
	Category    string   `json:"category,omitempty"`
	VehicleIDs  []string `json:"vehicle_ids,omitempty"`
}

// Turn is one persona's contribution to a collaboration. Immutable once
// recorded.
type Turn struct {
	Persona    persona.ID  `json:"persona"`
	Index      int         `json:"index"`
	Content    string      `json:"content"`
	Suggestion *Suggestion `json:"suggestion,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Collaboration is the per-user session state. It is owned exclusively by
// the Manager; callers only ever see snapshot copies.
type Collaboration struct {
	UserID       string             `json:"user_id"`
	Pattern      classifier.Pattern `json:"pattern"`
	Intent       *intent.UserIntent `json:"intent,omitempty"`
	Turns        []Turn             `json:"turns"`
	Status       Status             `json:"status"`
	CreatedAt    time.Time          `json:"created_at"`
	LastActivity time.Time          `json:"last_activity"`
}

// NextIndex returns the index the next appended turn must carry.
func (c *Collaboration) NextIndex() int {
	return len(c.Turns)
}

func (c *Collaboration) snapshot() *Collaboration {
	cloned := *c
	if len(c.Turns) > 0 {
		cloned.Turns = make([]Turn, len(c.Turns))
		copy(cloned.Turns, c.Turns)
	}
	return &cloned
}
