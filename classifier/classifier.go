package classifier

import (
	"github.com/sweetpotato0/auto-concierge/intent"
	"github.com/sweetpotato0/auto-concierge/vehicle"
)

// Pattern is the collaboration script selected for a request.
type Pattern string

const (
	PatternBudgetInsufficient Pattern = "budget-insufficient"
	PatternConditionsConflict Pattern = "conditions-conflict"
	PatternGeneral            Pattern = "general"
)

// Pair is two request attributes that are empirically negatively correlated
// in inventory, e.g. high fuel economy and a large body.
type Pair struct {
	A, B intent.Attribute
}

// Config holds the classification thresholds. They are deliberately explicit
// and injectable so they can be tuned and tested independently of the engine.
type Config struct {
	// LowInventoryThreshold is the match count below which a narrow price
	// band is treated as budget-insufficient.
	LowInventoryThreshold int

	// NarrowBandSpread is the band width (in currency units) at or below
	// which a price range counts as narrow relative to market spread.
	NarrowBandSpread float64

	// ConflictPairs lists attribute pairs that cannot normally be satisfied
	// together. A pair fires only when the intent mentions both attributes.
	ConflictPairs []Pair
}

// DefaultConfig returns the thresholds observed to work for consumer vehicle
// inventory.
func DefaultConfig() *Config {
	return &Config{
		LowInventoryThreshold: 20,
		NarrowBandSpread:      1000,
		ConflictPairs: []Pair{
			{A: intent.AttrFuelEconomy, B: intent.AttrLargeBody},
			{A: intent.AttrFuelEconomy, B: intent.AttrCabinSpace},
			{A: intent.AttrCargoSpace, B: intent.AttrCompactBody},
		},
	}
}

// Classifier selects a collaboration pattern from the parsed intent and the
// live inventory snapshot. Classification is pure and deterministic.
type Classifier struct {
	config *Config
}

// New creates a classifier with the given config, falling back to defaults.
func New(config *Config) *Classifier {
	if config == nil {
		config = DefaultConfig()
	}
	return &Classifier{config: config}
}

// Classify picks the pattern for one collaboration start.
//
// A zero match count always yields budget-insufficient, regardless of how
// wide the requested band is.
func (c *Classifier) Classify(in *intent.UserIntent, candidates *vehicle.CandidateSet) Pattern {
	if candidates.Empty() {
		return PatternBudgetInsufficient
	}

	if candidates.TotalCount < c.config.LowInventoryThreshold && in.Price.Spread() <= c.config.NarrowBandSpread {
		return PatternBudgetInsufficient
	}

	for _, pair := range c.config.ConflictPairs {
		if in.HasAttribute(pair.A) && in.HasAttribute(pair.B) {
			return PatternConditionsConflict
		}
	}

	return PatternGeneral
}

// Conflicts returns the conflict pairs the intent actually triggers, in
// config order. The engine uses this to name the conflict in prompts.
func (c *Classifier) Conflicts(in *intent.UserIntent) []Pair {
	var fired []Pair
	for _, pair := range c.config.ConflictPairs {
		if in.HasAttribute(pair.A) && in.HasAttribute(pair.B) {
			fired = append(fired, pair)
		}
	}
	return fired
}
