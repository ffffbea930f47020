package prompt

import (
	"fmt"
	"strings"

	"github.com/sweetpotato0/auto-concierge/persona"
	"github.com/sweetpotato0/auto-concierge/session"
	"github.com/sweetpotato0/auto-concierge/vehicle"
)

// turnTemplate is the single template every persona turn renders through.
// Later personas see prior turns via the Transcript variable, which is what
// keeps the simulated dialogue coherent.
const turnTemplate = `{{.RoleDescription}}

Customer request: {{.Request}}

Inventory summary:
{{.Candidates}}
{{if .Transcript}}
Conversation so far:
{{.Transcript}}
{{end}}
Your task: {{.Directive}}

Reply with your contribution only, in plain prose.`

// TokenCounter abstracts token counting for transcript budgeting.
type TokenCounter interface {
	CountTokens(text string) int
}

// Builder renders persona turn prompts from accumulated collaboration state.
type Builder struct {
	manager     *Manager
	counter     TokenCounter
	tokenBudget int
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithTokenBudget trims the transcript section to at most budget tokens,
// dropping the oldest turns first. Requires a counter.
func WithTokenBudget(counter TokenCounter, budget int) BuilderOption {
	return func(b *Builder) {
		b.counter = counter
		b.tokenBudget = budget
	}
}

// NewBuilder creates a builder with the turn template pre-registered.
func NewBuilder(opts ...BuilderOption) (*Builder, error) {
	m := NewManager()
	if err := m.RegisterString("turn", turnTemplate); err != nil {
		return nil, err
	}
	b := &Builder{manager: m}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// TurnPrompt renders the prompt for one persona turn.
func (b *Builder) TurnPrompt(id persona.ID, directive, request string, turns []session.Turn, candidates *vehicle.CandidateSet) (string, error) {
	if !persona.Known(id) {
		return "", fmt.Errorf("unknown persona %s", id)
	}
	return b.manager.Render("turn", map[string]interface{}{
		"RoleDescription": persona.Description(id),
		"Request":         request,
		"Candidates":      candidates.Summary(),
		"Transcript":      b.transcript(turns),
		"Directive":       directive,
	})
}

// transcript renders prior turns oldest-first, trimming from the front when
// a token budget is configured.
func (b *Builder) transcript(turns []session.Turn) string {
	if len(turns) == 0 {
		return ""
	}

	lines := make([]string, len(turns))
	for i, turn := range turns {
		lines[i] = fmt.Sprintf("[%s] %s", turn.Persona, turn.Content)
	}

	if b.counter == nil || b.tokenBudget <= 0 {
		return strings.Join(lines, "\n")
	}

	start := 0
	for start < len(lines)-1 {
		if b.counter.CountTokens(strings.Join(lines[start:], "\n")) <= b.tokenBudget {
			break
		}
		start++
	}
	return strings.Join(lines[start:], "\n")
}
