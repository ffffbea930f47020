package engine

import (
	"context"
	goerrors "errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/sweetpotato0/auto-concierge/assembler"
	"github.com/sweetpotato0/auto-concierge/classifier"
	"github.com/sweetpotato0/auto-concierge/errors"
	"github.com/sweetpotato0/auto-concierge/gateway"
	"github.com/sweetpotato0/auto-concierge/intent"
	"github.com/sweetpotato0/auto-concierge/persona"
	"github.com/sweetpotato0/auto-concierge/provider"
	"github.com/sweetpotato0/auto-concierge/session"
	"github.com/sweetpotato0/auto-concierge/session/store"
	"github.com/sweetpotato0/auto-concierge/vehicle"
)

// scriptedModel is a deterministic model collaborator that records every
// prompt it receives.
type scriptedModel struct {
	mu      sync.Mutex
	prompts []string
	failAt  int // 1-based call number to fail at; 0 means never
	calls   int
	onCall  func(call int)
}

func newScriptedModel() *scriptedModel {
	return &scriptedModel{}
}

func (m *scriptedModel) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.onCall != nil {
		m.onCall(m.calls)
	}
	if m.failAt > 0 && m.calls == m.failAt {
		return "", fmt.Errorf("%w: scripted failure", errors.ErrModelUnavailable)
	}
	m.prompts = append(m.prompts, prompt)
	return fmt.Sprintf("generated turn %d", m.calls), nil
}

var _ provider.ModelClient = (*scriptedModel)(nil)

func suvInventory(count int, price float64) []vehicle.Record {
	records := make([]vehicle.Record, 0, count)
	for i := 0; i < count; i++ {
		records = append(records, vehicle.Record{
			ID:           fmt.Sprintf("suv-%d", i),
			Manufacturer: "Honda",
			Model:        "CR-V",
			Year:         2018,
			Price:        price,
			BodyType:     "suv",
			FuelType:     "gasoline",
		})
	}
	return records
}

func newTestEngine(t *testing.T, gw gateway.Gateway, model provider.ModelClient) (*Engine, *session.Manager, *store.InMemoryStore) {
	t.Helper()
	conversations := store.NewInMemoryStore()
	sessions := session.NewManager(session.WithConversationStore(conversations))
	t.Cleanup(sessions.Close)

	asm := assembler.New(conversations)
	eng, err := New(sessions, model, gw, asm)
	if err != nil {
		t.Fatalf("engine setup failed: %v", err)
	}
	return eng, sessions, conversations
}

func TestRunGeneralProducesThreeOrderedTurns(t *testing.T) {
	model := newScriptedModel()
	gw := gateway.NewInMemoryGateway(nil)
	eng, sessions, _ := newTestEngine(t, gw, model)
	ctx := context.Background()

	in, err := intent.Parse("a sedan for commuting", vehicle.PriceRange{Min: 1500, Max: 2500})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	candidates := &vehicle.CandidateSet{TotalCount: 67, Price: in.Price}

	h, err := sessions.StartCollaboration(ctx, "u1", in, classifier.PatternGeneral)
	if err != nil {
		t.Fatalf("StartCollaboration failed: %v", err)
	}

	result, err := eng.Run(ctx, classifier.PatternGeneral, in, candidates, h)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Status != assembler.StatusSuccess {
		t.Errorf("Expected success, got %s", result.Status)
	}
	want := []persona.ID{persona.Concierge, persona.NeedsAnalyst, persona.DataAnalyst}
	if len(result.Turns) != len(want) {
		t.Fatalf("Expected %d turns, got %d", len(want), len(result.Turns))
	}
	for i, turn := range result.Turns {
		if turn.Persona != want[i] || turn.Index != i {
			t.Errorf("Turn %d: got persona %s index %d", i, turn.Persona, turn.Index)
		}
	}

	// The transcript read back through the manager matches the result.
	sess, err := sessions.Get("u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if sess.Status != session.StatusCompleted {
		t.Errorf("Expected completed session, got %s", sess.Status)
	}
	for i := range sess.Turns {
		if sess.Turns[i].Content != result.Turns[i].Content {
			t.Errorf("Turn %d diverges between session and result", i)
		}
	}
}

func TestRunLaterPersonasSeeEarlierTurns(t *testing.T) {
	model := newScriptedModel()
	gw := gateway.NewInMemoryGateway(nil)
	eng, sessions, _ := newTestEngine(t, gw, model)
	ctx := context.Background()

	in, _ := intent.Parse("a sedan", vehicle.PriceRange{Min: 0, Max: 5000})
	candidates := &vehicle.CandidateSet{TotalCount: 40, Price: in.Price}
	h, _ := sessions.StartCollaboration(ctx, "u1", in, classifier.PatternGeneral)

	if _, err := eng.Run(ctx, classifier.PatternGeneral, in, candidates, h); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(model.prompts) != 3 {
		t.Fatalf("Expected 3 prompts, got %d", len(model.prompts))
	}
	if strings.Contains(model.prompts[0], "generated turn") {
		t.Errorf("First prompt should carry no transcript")
	}
	if !strings.Contains(model.prompts[1], "generated turn 1") {
		t.Errorf("Second prompt missing first turn's output")
	}
	if !strings.Contains(model.prompts[2], "generated turn 2") {
		t.Errorf("Third prompt missing second turn's output")
	}
}

func TestRunBudgetInsufficientRecoverable(t *testing.T) {
	// 50 SUVs priced just above the requested ceiling: invisible at 2000,
	// visible once the band expands to 2500.
	model := newScriptedModel()
	gw := gateway.NewInMemoryGateway(suvInventory(50, 2300))
	eng, sessions, _ := newTestEngine(t, gw, model)
	ctx := context.Background()

	in, _ := intent.Parse("an suv", vehicle.PriceRange{Min: 1500, Max: 2000})
	initial := &vehicle.CandidateSet{TotalCount: 15, Price: in.Price}
	h, _ := sessions.StartCollaboration(ctx, "u1", in, classifier.PatternBudgetInsufficient)

	result, err := eng.Run(ctx, classifier.PatternBudgetInsufficient, in, initial, h)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Status != assembler.StatusSuccess {
		t.Errorf("Expected success after expansion, got %s", result.Status)
	}
	if result.Candidates.TotalCount != 50 {
		t.Errorf("Expected 50 matches at expanded band, got %d", result.Candidates.TotalCount)
	}
	if result.Candidates.Price.Max != 2500 {
		t.Errorf("Final candidates should reflect the expanded band, got max %.0f", result.Candidates.Price.Max)
	}

	want := []persona.ID{persona.DataAnalyst, persona.NeedsAnalyst, persona.Concierge}
	for i, turn := range result.Turns {
		if turn.Persona != want[i] {
			t.Errorf("Turn %d: expected %s, got %s", i, want[i], turn.Persona)
		}
	}

	// The needs-analyst turn carries the proposed delta as a suggestion.
	if result.Turns[1].Suggestion == nil || result.Turns[1].Suggestion.BudgetDelta != 500 {
		t.Errorf("Expected budget delta suggestion of 500, got %+v", result.Turns[1].Suggestion)
	}
}

func TestRunBudgetInsufficientUnrecoverable(t *testing.T) {
	model := newScriptedModel()
	gw := gateway.NewInMemoryGateway(nil) // nothing to find, even expanded
	eng, sessions, _ := newTestEngine(t, gw, model)
	ctx := context.Background()

	in, _ := intent.Parse("an suv", vehicle.PriceRange{Min: 1500, Max: 2000})
	initial := &vehicle.CandidateSet{TotalCount: 0, Price: in.Price}
	h, _ := sessions.StartCollaboration(ctx, "u1", in, classifier.PatternBudgetInsufficient)

	result, err := eng.Run(ctx, classifier.PatternBudgetInsufficient, in, initial, h)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Status != assembler.StatusNoViableOptions {
		t.Errorf("Expected no-viable-options, got %s", result.Status)
	}
	if len(result.Turns) != 3 {
		t.Errorf("Expected 3 turns, got %d", len(result.Turns))
	}
	if result.Turns[2].Persona != persona.Concierge {
		t.Errorf("Closing turn should be the concierge, got %s", result.Turns[2].Persona)
	}
}

func TestRunConflictReferencesCompromise(t *testing.T) {
	model := newScriptedModel()
	gw := gateway.NewInMemoryGateway(nil)
	eng, sessions, _ := newTestEngine(t, gw, model)
	ctx := context.Background()

	in, _ := intent.Parse("best fuel economy and the largest cabin", vehicle.PriceRange{Min: 0, Max: 3000})
	candidates := &vehicle.CandidateSet{
		TotalCount: 80,
		Price:      in.Price,
		Rows: []vehicle.Record{
			{ID: "h1", Model: "Prius", BodyType: "wagon", FuelType: "hybrid", Price: 2400},
			{ID: "h2", Model: "Camry Hybrid", BodyType: "wagon", FuelType: "hybrid", Price: 2800},
			{ID: "g1", Model: "Civic", BodyType: "sedan", FuelType: "gasoline", Price: 2100},
		},
	}
	h, _ := sessions.StartCollaboration(ctx, "u1", in, classifier.PatternConditionsConflict)

	result, err := eng.Run(ctx, classifier.PatternConditionsConflict, in, candidates, h)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []persona.ID{persona.NeedsAnalyst, persona.DataAnalyst, persona.Concierge}
	for i, turn := range result.Turns {
		if turn.Persona != want[i] {
			t.Errorf("Turn %d: expected %s, got %s", i, want[i], turn.Persona)
		}
	}

	// The first prompt names the conflicting attributes.
	if !strings.Contains(model.prompts[0], string(intent.AttrFuelEconomy)) {
		t.Errorf("Conflict prompt should name fuel-economy, got: %s", model.prompts[0])
	}

	// The data-analyst turn proposes a compromise derived from the sample.
	suggestion := result.Turns[1].Suggestion
	if suggestion == nil || !strings.Contains(suggestion.Category, "hybrid") {
		t.Errorf("Expected hybrid compromise category, got %+v", suggestion)
	}
	if !strings.Contains(model.prompts[1], suggestion.Category) {
		t.Errorf("Data-analyst prompt should reference the compromise category")
	}
	if len(suggestion.VehicleIDs) != 2 {
		t.Errorf("Expected the two hybrid wagons in the subset, got %v", suggestion.VehicleIDs)
	}
}

func TestRunModelFailureAbortsWithLastTurnIndex(t *testing.T) {
	model := newScriptedModel()
	model.failAt = 2
	gw := gateway.NewInMemoryGateway(nil)
	eng, sessions, _ := newTestEngine(t, gw, model)
	ctx := context.Background()

	in, _ := intent.Parse("a sedan", vehicle.PriceRange{Min: 0, Max: 5000})
	candidates := &vehicle.CandidateSet{TotalCount: 30, Price: in.Price}
	h, _ := sessions.StartCollaboration(ctx, "u1", in, classifier.PatternGeneral)

	_, err := eng.Run(ctx, classifier.PatternGeneral, in, candidates, h)
	if err == nil {
		t.Fatalf("Expected failure")
	}

	var collabErr *errors.CollaborationError
	if !goerrors.As(err, &collabErr) {
		t.Fatalf("Expected CollaborationError, got %v", err)
	}
	if collabErr.LastTurnIndex != 0 {
		t.Errorf("Expected last turn index 0, got %d", collabErr.LastTurnIndex)
	}
	if !goerrors.Is(err, errors.ErrModelUnavailable) {
		t.Errorf("Expected wrapped ErrModelUnavailable, got %v", err)
	}

	sess, getErr := sessions.Get("u1")
	if getErr != nil {
		t.Fatalf("Get failed: %v", getErr)
	}
	if sess.Status != session.StatusAborted {
		t.Errorf("Expected aborted session, got %s", sess.Status)
	}
	if len(sess.Turns) != 1 {
		t.Errorf("Partial transcript should keep the recorded turn, got %d", len(sess.Turns))
	}
}

func TestRunStopsAtTurnBoundaryAfterCancel(t *testing.T) {
	gw := gateway.NewInMemoryGateway(nil)
	conversations := store.NewInMemoryStore()
	sessions := session.NewManager(session.WithConversationStore(conversations))
	defer sessions.Close()

	model := newScriptedModel()
	model.onCall = func(call int) {
		if call == 1 {
			// Cancel while the first turn is still generating; the engine
			// must finish that turn and stop at the next boundary.
			sessions.CancelActive("u1")
		}
	}

	asm := assembler.New(conversations)
	eng, err := New(sessions, model, gw, asm)
	if err != nil {
		t.Fatalf("engine setup failed: %v", err)
	}
	ctx := context.Background()

	in, _ := intent.Parse("a sedan", vehicle.PriceRange{Min: 0, Max: 5000})
	candidates := &vehicle.CandidateSet{TotalCount: 30, Price: in.Price}
	h, _ := sessions.StartCollaboration(ctx, "u1", in, classifier.PatternGeneral)

	_, err = eng.Run(ctx, classifier.PatternGeneral, in, candidates, h)
	if !goerrors.Is(err, errors.ErrAborted) {
		t.Fatalf("Expected ErrAborted, got %v", err)
	}
	if model.calls != 1 {
		t.Errorf("Engine should not schedule turns past the abort, made %d calls", model.calls)
	}
}
