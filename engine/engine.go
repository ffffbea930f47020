package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sweetpotato0/auto-concierge/assembler"
	"github.com/sweetpotato0/auto-concierge/classifier"
	"github.com/sweetpotato0/auto-concierge/errors"
	"github.com/sweetpotato0/auto-concierge/gateway"
	"github.com/sweetpotato0/auto-concierge/intent"
	"github.com/sweetpotato0/auto-concierge/persona"
	"github.com/sweetpotato0/auto-concierge/pkg/logging"
	"github.com/sweetpotato0/auto-concierge/prompt"
	"github.com/sweetpotato0/auto-concierge/provider"
	"github.com/sweetpotato0/auto-concierge/session"
	"github.com/sweetpotato0/auto-concierge/vehicle"
)

// Config holds engine tunables.
type Config struct {
	// BudgetStep is the amount (currency units) the needs-analyst proposes
	// adding to the budget ceiling in the budget-insufficient script.
	BudgetStep float64

	// SampleLimit bounds the candidate sample fetched on re-queries.
	SampleLimit int

	// TurnTimeout bounds each model call. A timeout is that turn's failure.
	TurnTimeout time.Duration

	// GatewayTimeout bounds the mid-script inventory re-query.
	GatewayTimeout time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() *Config {
	return &Config{
		BudgetStep:     500,
		SampleLimit:    gateway.DefaultSampleLimit,
		TurnTimeout:    30 * time.Second,
		GatewayTimeout: 5 * time.Second,
	}
}

// Engine drives one collaboration through its per-pattern turn script. Turns
// are strictly sequential: each prompt depends on the previous turn's output,
// and every generated turn is recorded via the session manager before the
// next prompt is built.
type Engine struct {
	sessions   *session.Manager
	model      provider.ModelClient
	gateway    gateway.Gateway
	assembler  *assembler.Assembler
	classifier *classifier.Classifier
	builder    *prompt.Builder
	config     *Config
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig overrides the engine tunables.
func WithConfig(config *Config) Option {
	return func(e *Engine) {
		if config != nil {
			e.config = config
		}
	}
}

// WithClassifier sets the classifier used to name conflicting attributes in
// conflict-pattern prompts.
func WithClassifier(c *classifier.Classifier) Option {
	return func(e *Engine) {
		if c != nil {
			e.classifier = c
		}
	}
}

// WithPromptBuilder overrides the prompt builder.
func WithPromptBuilder(b *prompt.Builder) Option {
	return func(e *Engine) {
		if b != nil {
			e.builder = b
		}
	}
}

// WithLogger overrides the logger used by the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an engine. The session manager, model client, inventory
// gateway, and assembler are required collaborators.
func New(sessions *session.Manager, model provider.ModelClient, gw gateway.Gateway, asm *assembler.Assembler, opts ...Option) (*Engine, error) {
	if sessions == nil || model == nil || gw == nil || asm == nil {
		return nil, fmt.Errorf("%w: engine requires sessions, model, gateway, and assembler", errors.ErrInvalidArgument)
	}
	e := &Engine{
		sessions:  sessions,
		model:     model,
		gateway:   gw,
		assembler: asm,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.config == nil {
		e.config = DefaultConfig()
	}
	if e.classifier == nil {
		e.classifier = classifier.New(nil)
	}
	if e.builder == nil {
		b, err := prompt.NewBuilder()
		if err != nil {
			return nil, err
		}
		e.builder = b
	}
	if e.logger == nil {
		e.logger = logging.WithComponent("engine")
	}
	e.tracer = otel.Tracer("auto-concierge/engine")
	return e, nil
}

// Run executes the per-pattern turn script and returns the assembled result.
// Any turn failure aborts the session and surfaces a CollaborationError
// carrying the last successfully recorded turn index; restarting is a fresh
// attempt, never a replay.
func (e *Engine) Run(ctx context.Context, pattern classifier.Pattern, in *intent.UserIntent, candidates *vehicle.CandidateSet, h *session.Handle) (*assembler.Result, error) {
	ctx, span := e.tracer.Start(ctx, "collaboration.run",
		trace.WithAttributes(
			attribute.String("pattern", string(pattern)),
			attribute.String("user_id", h.UserID()),
		))
	defer span.End()

	run := &runState{
		intent:     in,
		candidates: candidates,
		final:      candidates,
		handle:     h,
		lastIndex:  -1,
	}

	var err error
	switch pattern {
	case classifier.PatternGeneral:
		err = e.runGeneral(ctx, run)
	case classifier.PatternConditionsConflict:
		err = e.runConflict(ctx, run)
	case classifier.PatternBudgetInsufficient:
		err = e.runBudgetInsufficient(ctx, run)
	default:
		err = fmt.Errorf("%w: unknown pattern %s", errors.ErrInvalidArgument, pattern)
	}
	if err != nil {
		e.logger.Error("collaboration run failed", "user_id", h.UserID(), "pattern", string(pattern), "error", err)
		if _, abortErr := e.sessions.Abort(ctx, h); abortErr != nil {
			e.logger.Error("abort after failure failed", "user_id", h.UserID(), "error", abortErr)
		}
		return nil, errors.NewCollaborationError(string(pattern), run.lastIndex, err)
	}

	sess, err := e.sessions.Complete(ctx, h)
	if err != nil {
		return nil, errors.NewCollaborationError(string(pattern), run.lastIndex, err)
	}
	return e.assembler.Assemble(ctx, sess, run.final), nil
}

// runState accumulates one collaboration's mutable run data.
type runState struct {
	intent     *intent.UserIntent
	candidates *vehicle.CandidateSet
	final      *vehicle.CandidateSet
	handle     *session.Handle
	transcript []session.Turn
	lastIndex  int
}

func (e *Engine) runGeneral(ctx context.Context, run *runState) error {
	if err := e.turn(ctx, run, persona.Concierge,
		"Clarify the customer's use-case: restate what they are shopping for and ask the one question that would most narrow it down.",
		nil); err != nil {
		return err
	}
	if err := e.turn(ctx, run, persona.NeedsAnalyst,
		"Surface the priority trade-offs implied by the request and the concierge's reading of it. Name at most two.",
		nil); err != nil {
		return err
	}
	return e.turn(ctx, run, persona.DataAnalyst,
		"Summarize the matching inventory: the match count, the price spread, and up to three standout vehicles.",
		nil)
}

func (e *Engine) runConflict(ctx context.Context, run *runState) error {
	directive := "Name the conflicting requirements explicitly and ask the customer to rank them."
	if pairs := e.classifier.Conflicts(run.intent); len(pairs) > 0 {
		directive = fmt.Sprintf(
			"The customer asked for %s and %s together, which pull in opposite directions in this inventory. Name that conflict explicitly and ask the customer to rank the two.",
			pairs[0].A, pairs[0].B)
	}
	if err := e.turn(ctx, run, persona.NeedsAnalyst, directive, nil); err != nil {
		return err
	}

	category, ids := compromiseCategory(run.candidates)
	if err := e.turn(ctx, run, persona.DataAnalyst,
		fmt.Sprintf("Propose a compromise subset from the inventory: the %s segment splits the difference. Point at concrete vehicles from the sample.", category),
		&session.Suggestion{Category: category, VehicleIDs: ids}); err != nil {
		return err
	}
	return e.turn(ctx, run, persona.Concierge,
		fmt.Sprintf("Present the %s compromise to the customer as a recommendation they can react to.", category),
		nil)
}

func (e *Engine) runBudgetInsufficient(ctx context.Context, run *runState) error {
	if err := e.turn(ctx, run, persona.DataAnalyst,
		fmt.Sprintf("Report how little matches the %.0f-%.0f band: %d vehicles. Be factual about what that band buys.",
			run.intent.Price.Min, run.intent.Price.Max, run.candidates.TotalCount),
		nil); err != nil {
		return err
	}

	step := e.config.BudgetStep
	if err := e.turn(ctx, run, persona.NeedsAnalyst,
		fmt.Sprintf("Propose raising the budget ceiling by %.0f, to %.0f, and say what that specific increase unlocks.",
			step, run.intent.Price.Max+step),
		&session.Suggestion{BudgetDelta: step}); err != nil {
		return err
	}

	// Branch: re-query at the expanded band before deciding how the
	// concierge closes.
	expanded, err := e.requery(ctx, run.intent, step)
	if err != nil {
		return err
	}
	run.final = expanded

	if expanded.TotalCount > 0 {
		return e.turn(ctx, run, persona.Concierge,
			fmt.Sprintf("Present the options the expanded %.0f-%.0f band opens up and invite the customer to confirm the new ceiling.",
				expanded.Price.Min, expanded.Price.Max),
			nil)
	}
	return e.turn(ctx, run, persona.Concierge,
		"Even the expanded budget finds nothing suitable. Tell the customer honestly and suggest how to widen the search.",
		nil)
}

// turn executes one persona turn: abort check, prompt build, model call,
// append. The append happens before the next prompt is built so a crash
// mid-sequence leaves a recoverable partial transcript.
func (e *Engine) turn(ctx context.Context, run *runState, id persona.ID, directive string, suggestion *session.Suggestion) error {
	if e.sessions.Aborted(run.handle) {
		return errors.ErrAborted
	}

	index := run.lastIndex + 1
	ctx, span := e.tracer.Start(ctx, "collaboration.turn",
		trace.WithAttributes(
			attribute.String("persona", string(id)),
			attribute.Int("index", index),
		))
	defer span.End()

	p, err := e.builder.TurnPrompt(id, directive, run.intent.Description, run.transcript, run.candidates)
	if err != nil {
		return err
	}

	genCtx := ctx
	if e.config.TurnTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, e.config.TurnTimeout)
		defer cancel()
	}
	content, err := e.model.Generate(genCtx, p)
	if err != nil {
		return fmt.Errorf("turn %d (%s): %w", index, id, err)
	}

	turn := session.Turn{
		Persona:    id,
		Index:      index,
		Content:    content,
		Suggestion: suggestion,
		CreatedAt:  time.Now(),
	}
	if err := e.sessions.AppendTurn(ctx, run.handle, turn); err != nil {
		// A cancel that lands while the model is generating surfaces here,
		// on the append. The generated turn is discarded.
		if e.sessions.Aborted(run.handle) {
			return errors.ErrAborted
		}
		return err
	}
	run.transcript = append(run.transcript, turn)
	run.lastIndex = index
	e.logger.Debug("turn generated", "persona", string(id), "index", index)
	return nil
}

// requery asks the gateway for the intent's filter with the budget ceiling
// raised by delta.
func (e *Engine) requery(ctx context.Context, in *intent.UserIntent, delta float64) (*vehicle.CandidateSet, error) {
	if e.config.GatewayTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.GatewayTimeout)
		defer cancel()
	}
	filter := vehicle.Filter{
		Price:    in.Price.Expand(delta),
		BodyType: in.PrimaryBodyType(),
		FuelType: in.FuelType,
	}
	set, err := e.gateway.Query(ctx, filter, e.config.SampleLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: expanded-band re-query: %v", errors.ErrGatewayUnavailable, err)
	}
	return set, nil
}

// compromiseCategory derives a compromise segment from the candidate sample:
// the most economical fuel type present crossed with the most common body
// type, plus the sample vehicles that sit in it.
func compromiseCategory(c *vehicle.CandidateSet) (string, []string) {
	fuels := c.CountBy(func(r vehicle.Record) string { return r.FuelType })
	fuel := pickFuel(fuels)
	bodies := c.CountBy(func(r vehicle.Record) string { return r.BodyType })
	body := pickMostCommon(bodies)

	var ids []string
	if c != nil {
		for _, row := range c.Rows {
			if (fuel == "" || row.FuelType == fuel) && (body == "" || row.BodyType == body) {
				ids = append(ids, row.ID)
			}
		}
	}

	switch {
	case fuel != "" && body != "":
		return fuel + " " + body, ids
	case fuel != "":
		return fuel, ids
	case body != "":
		return body, ids
	default:
		return "mid-size", nil
	}
}

// fuelPreference orders fuel types from most to least economical; the first
// one present in the sample wins.
var fuelPreference = []string{"hybrid", "electric", "diesel", "gasoline"}

func pickFuel(counts map[string]int) string {
	for _, fuel := range fuelPreference {
		if counts[fuel] > 0 {
			return fuel
		}
	}
	return pickMostCommon(counts)
}

func pickMostCommon(counts map[string]int) string {
	best := ""
	bestCount := 0
	for key, n := range counts {
		if n > bestCount || (n == bestCount && key < best) {
			best = key
			bestCount = n
		}
	}
	return best
}
