package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sweetpotato0/auto-concierge/assembler"
	"github.com/sweetpotato0/auto-concierge/classifier"
	"github.com/sweetpotato0/auto-concierge/engine"
	"github.com/sweetpotato0/auto-concierge/errors"
	"github.com/sweetpotato0/auto-concierge/gateway"
	"github.com/sweetpotato0/auto-concierge/intent"
	"github.com/sweetpotato0/auto-concierge/message"
	"github.com/sweetpotato0/auto-concierge/pkg/logging"
	"github.com/sweetpotato0/auto-concierge/session"
	"github.com/sweetpotato0/auto-concierge/session/store"
	"github.com/sweetpotato0/auto-concierge/vehicle"
)

// Config holds orchestrator tunables.
type Config struct {
	// SampleLimit bounds the candidate sample fetched on the initial query.
	SampleLimit int

	// GatewayTimeout bounds the initial inventory query.
	GatewayTimeout time.Duration
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() *Config {
	return &Config{
		SampleLimit:    gateway.DefaultSampleLimit,
		GatewayTimeout: 5 * time.Second,
	}
}

// Orchestrator is the caller-facing entry point: it wires intent parsing,
// inventory lookup, pattern classification, the collaboration engine, and
// conversation persistence into one synchronous operation per request.
type Orchestrator struct {
	sessions      *session.Manager
	classifier    *classifier.Classifier
	gateway       gateway.Gateway
	engine        *engine.Engine
	conversations store.ConversationStore
	config        *Config
	logger        *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClassifier overrides the pattern classifier.
func WithClassifier(c *classifier.Classifier) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.classifier = c
		}
	}
}

// WithConversationStore sets the store receiving the user's raw query entry.
func WithConversationStore(s store.ConversationStore) Option {
	return func(o *Orchestrator) {
		o.conversations = s
	}
}

// WithConfig overrides the orchestrator tunables.
func WithConfig(config *Config) Option {
	return func(o *Orchestrator) {
		if config != nil {
			o.config = config
		}
	}
}

// WithLogger overrides the logger used by the orchestrator.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an orchestrator around the given session manager, inventory
// gateway, and collaboration engine.
func New(sessions *session.Manager, gw gateway.Gateway, eng *engine.Engine, opts ...Option) (*Orchestrator, error) {
	if sessions == nil || gw == nil || eng == nil {
		return nil, fmt.Errorf("%w: orchestrator requires sessions, gateway, and engine", errors.ErrInvalidArgument)
	}
	o := &Orchestrator{
		sessions: sessions,
		gateway:  gw,
		engine:   eng,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.classifier == nil {
		o.classifier = classifier.New(nil)
	}
	if o.config == nil {
		o.config = DefaultConfig()
	}
	if o.logger == nil {
		o.logger = logging.WithComponent("orchestrator")
	}
	return o, nil
}

// StartAndRun runs one collaboration end to end: parse the request, query
// inventory, pick a pattern, drive the turn script, and assemble the result.
// It is synchronous from the caller's point of view. Starting a new run for
// a user who already has one in flight preempts the old run.
func (o *Orchestrator) StartAndRun(ctx context.Context, userID, rawQuery string, budget vehicle.PriceRange) (*assembler.Result, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id cannot be empty", errors.ErrInvalidArgument)
	}

	in, err := intent.Parse(rawQuery, budget)
	if err != nil {
		return nil, err
	}

	candidates, err := o.queryInventory(ctx, in)
	if err != nil {
		return nil, err
	}

	pattern := o.classifier.Classify(in, candidates)
	o.logger.Info("pattern selected", "user_id", userID, "pattern", string(pattern), "matches", candidates.TotalCount)

	handle, err := o.sessions.StartCollaboration(ctx, userID, in, pattern)
	if err != nil {
		return nil, err
	}

	o.recordUserQuery(ctx, userID, rawQuery)

	return o.engine.Run(ctx, pattern, in, candidates, handle)
}

// Cancel aborts the user's in-flight collaboration. The engine stops at the
// next turn boundary; already-recorded turns are kept.
func (o *Orchestrator) Cancel(userID string) error {
	return o.sessions.CancelActive(userID)
}

// Session returns a snapshot of the user's most recent collaboration.
func (o *Orchestrator) Session(userID string) (*session.Collaboration, error) {
	return o.sessions.Get(userID)
}

// Conversation returns the user's durable conversation record.
func (o *Orchestrator) Conversation(ctx context.Context, userID string) ([]*message.Message, error) {
	if o.conversations == nil {
		return nil, nil
	}
	return o.conversations.GetConversation(ctx, userID)
}

// ClearConversation removes the user's conversation record.
func (o *Orchestrator) ClearConversation(ctx context.Context, userID string) error {
	if o.conversations == nil {
		return nil
	}
	return o.conversations.ClearConversation(ctx, userID)
}

func (o *Orchestrator) queryInventory(ctx context.Context, in *intent.UserIntent) (*vehicle.CandidateSet, error) {
	if o.config.GatewayTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.GatewayTimeout)
		defer cancel()
	}
	filter := vehicle.Filter{
		Price:    in.Price,
		BodyType: in.PrimaryBodyType(),
		FuelType: in.FuelType,
	}
	set, err := o.gateway.Query(ctx, filter, o.config.SampleLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: inventory query: %v", errors.ErrGatewayUnavailable, err)
	}
	return set, nil
}

// recordUserQuery mirrors the raw request into the conversation record ahead
// of the turn entries. Advisory, so failures only log.
func (o *Orchestrator) recordUserQuery(ctx context.Context, userID, rawQuery string) {
	if o.conversations == nil || rawQuery == "" {
		return
	}
	entry := message.New(message.RoleUser, rawQuery)
	if err := o.conversations.AppendConversation(ctx, userID, []*message.Message{entry}); err != nil {
		o.logger.Warn("failed to record user query", "user_id", userID, "error", err)
	}
}
