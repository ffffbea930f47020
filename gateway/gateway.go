package gateway

import (
	"context"

	"github.com/sweetpotato0/auto-concierge/vehicle"
)

// Gateway answers inventory queries. Implementations never mutate inventory;
// the orchestrator treats a query as a pure function with latency.
type Gateway interface {
	// Query returns the unbounded match count for the filter plus a sample of
	// at most limit rows.
	Query(ctx context.Context, filter vehicle.Filter, limit int) (*vehicle.CandidateSet, error)
}

// DefaultSampleLimit bounds the candidate sample threaded into prompts.
const DefaultSampleLimit = 24
