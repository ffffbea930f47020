package prompt

import (
	"strings"
	"testing"

	"github.com/sweetpotato0/auto-concierge/persona"
	"github.com/sweetpotato0/auto-concierge/session"
	"github.com/sweetpotato0/auto-concierge/vehicle"
)

func TestTurnPromptContents(t *testing.T) {
	b, err := NewBuilder()
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}

	candidates := &vehicle.CandidateSet{
		TotalCount: 5,
		Price:      vehicle.PriceRange{Min: 1500, Max: 3000},
		Rows: []vehicle.Record{
			{ID: "v1", Manufacturer: "Toyota", Model: "Corolla", Year: 2019, Price: 2000, BodyType: "sedan", FuelType: "gasoline"},
		},
	}
	p, err := b.TurnPrompt(persona.DataAnalyst, "Summarize the matches.", "a cheap sedan", nil, candidates)
	if err != nil {
		t.Fatalf("TurnPrompt failed: %v", err)
	}

	for _, want := range []string{
		persona.Description(persona.DataAnalyst),
		"a cheap sedan",
		"Summarize the matches.",
		"Corolla",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("Prompt missing %q:\n%s", want, p)
		}
	}
	if strings.Contains(p, "Conversation so far") {
		t.Errorf("Empty transcript should elide the conversation section")
	}
}

func TestTurnPromptIncludesTranscriptInOrder(t *testing.T) {
	b, err := NewBuilder()
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}

	turns := []session.Turn{
		{Persona: persona.Concierge, Index: 0, Content: "alpha"},
		{Persona: persona.NeedsAnalyst, Index: 1, Content: "beta"},
	}
	p, err := b.TurnPrompt(persona.DataAnalyst, "Continue.", "a sedan", turns, &vehicle.CandidateSet{})
	if err != nil {
		t.Fatalf("TurnPrompt failed: %v", err)
	}

	first := strings.Index(p, "[concierge] alpha")
	second := strings.Index(p, "[needs-analyst] beta")
	if first < 0 || second < 0 {
		t.Fatalf("Transcript entries missing:\n%s", p)
	}
	if first > second {
		t.Errorf("Transcript must render oldest-first")
	}
}

func TestTurnPromptRejectsUnknownPersona(t *testing.T) {
	b, err := NewBuilder()
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	if _, err := b.TurnPrompt(persona.ID("astrologer"), "Guess.", "a sedan", nil, &vehicle.CandidateSet{}); err == nil {
		t.Errorf("Expected error for unknown persona")
	}
}

// wordCounter counts whitespace-separated words as tokens.
type wordCounter struct{}

func (wordCounter) CountTokens(text string) int {
	return len(strings.Fields(text))
}

func TestTokenBudgetDropsOldestTurns(t *testing.T) {
	// Each transcript line is 2 fields; a budget of 5 holds two lines but
	// not three, so the oldest of three must go.
	b, err := NewBuilder(WithTokenBudget(wordCounter{}, 5))
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}

	turns := []session.Turn{
		{Persona: persona.Concierge, Index: 0, Content: "alpha"},
		{Persona: persona.NeedsAnalyst, Index: 1, Content: "beta"},
		{Persona: persona.DataAnalyst, Index: 2, Content: "gamma"},
	}
	p, err := b.TurnPrompt(persona.Concierge, "Close.", "a sedan", turns, &vehicle.CandidateSet{})
	if err != nil {
		t.Fatalf("TurnPrompt failed: %v", err)
	}

	if strings.Contains(p, "alpha") {
		t.Errorf("Oldest turn should be trimmed under the budget")
	}
	if !strings.Contains(p, "beta") || !strings.Contains(p, "gamma") {
		t.Errorf("Recent turns must survive trimming:\n%s", p)
	}
}

func TestTokenBudgetKeepsNewestTurnEvenWhenOver(t *testing.T) {
	b, err := NewBuilder(WithTokenBudget(wordCounter{}, 1))
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}

	turns := []session.Turn{
		{Persona: persona.Concierge, Index: 0, Content: "a very long opening statement"},
		{Persona: persona.NeedsAnalyst, Index: 1, Content: "short"},
	}
	p, err := b.TurnPrompt(persona.DataAnalyst, "Continue.", "a sedan", turns, &vehicle.CandidateSet{})
	if err != nil {
		t.Fatalf("TurnPrompt failed: %v", err)
	}

	if !strings.Contains(p, "short") {
		t.Errorf("The newest turn is never trimmed:\n%s", p)
	}
	if strings.Contains(p, "opening statement") {
		t.Errorf("Older turns should be trimmed first:\n%s", p)
	}
}
