package gateway

import (
	"context"
	"sync"

	"github.com/sweetpotato0/auto-concierge/vehicle"
)

// InMemoryGateway serves queries from a fixed slice of vehicles. Useful for
// tests and demo fixtures.
type InMemoryGateway struct {
	mu       sync.RWMutex
	vehicles []vehicle.Record
}

// NewInMemoryGateway creates a gateway over the given inventory snapshot.
func NewInMemoryGateway(vehicles []vehicle.Record) *InMemoryGateway {
	return &InMemoryGateway{vehicles: vehicles}
}

// Query filters the snapshot by price band, body type, and fuel type.
func (g *InMemoryGateway) Query(ctx context.Context, filter vehicle.Filter, limit int) (*vehicle.CandidateSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultSampleLimit
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	set := &vehicle.CandidateSet{Price: filter.Price}
	for _, rec := range g.vehicles {
		if rec.Price < filter.Price.Min || rec.Price > filter.Price.Max {
			continue
		}
		if filter.BodyType != "" && rec.BodyType != filter.BodyType {
			continue
		}
		if filter.FuelType != "" && rec.FuelType != filter.FuelType {
			continue
		}
		set.TotalCount++
		if len(set.Rows) < limit {
			set.Rows = append(set.Rows, rec)
		}
	}
	return set, nil
}
