package vehicle

import (
	"fmt"
	"sort"
)

// Record is one vehicle row returned by the inventory gateway.
type Record struct {
	ID           string  `json:"id"`
	Manufacturer string  `json:"manufacturer"`
	Model        string  `json:"model"`
	Year         int     `json:"year"`
	Price        float64 `json:"price"`
	Distance     int     `json:"distance"`
	BodyType     string  `json:"body_type"`
	FuelType     string  `json:"fuel_type"`
}

// PriceRange is an inclusive price band. Both bounds are non-negative and
// Min must not exceed Max.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Spread returns the width of the band.
func (r PriceRange) Spread() float64 {
	return r.Max - r.Min
}

// Valid reports whether the range satisfies its invariants.
func (r PriceRange) Valid() bool {
	return r.Min >= 0 && r.Max >= 0 && r.Min <= r.Max
}

// Expand returns a copy of the range with the upper bound raised by delta.
func (r PriceRange) Expand(delta float64) PriceRange {
	return PriceRange{Min: r.Min, Max: r.Max + delta}
}

// Filter describes an inventory query.
type Filter struct {
	Price    PriceRange
	BodyType string // optional, empty means any
	FuelType string // optional, empty means any
}

// CandidateSet is a read-only snapshot of an inventory query result.
// TotalCount reflects the unbounded match count; Rows is a bounded sample.
type CandidateSet struct {
	TotalCount int
	Rows       []Record
	Price      PriceRange // the band the query ran against
}

// Empty reports whether no vehicles matched at all.
func (c *CandidateSet) Empty() bool {
	return c == nil || c.TotalCount == 0
}

// CountBy tallies the sample rows by the given attribute selector.
func (c *CandidateSet) CountBy(selector func(Record) string) map[string]int {
	counts := make(map[string]int)
	if c == nil {
		return counts
	}
	for _, row := range c.Rows {
		if key := selector(row); key != "" {
			counts[key]++
		}
	}
	return counts
}

// Summary renders a compact human-readable description of the set, used when
// building persona prompts.
func (c *CandidateSet) Summary() string {
	if c.Empty() {
		return "No vehicles match the current criteria."
	}
	s := fmt.Sprintf("%d vehicles match in the %.0f-%.0f price band.", c.TotalCount, c.Price.Min, c.Price.Max)
	bodies := c.CountBy(func(r Record) string { return r.BodyType })
	for _, body := range sortedKeys(bodies) {
		s += fmt.Sprintf(" %s: %d.", body, bodies[body])
	}
	limit := len(c.Rows)
	if limit > 5 {
		limit = 5
	}
	for _, row := range c.Rows[:limit] {
		s += fmt.Sprintf("\n- %s %s (%d), %s/%s, price %.0f", row.Manufacturer, row.Model, row.Year, row.BodyType, row.FuelType, row.Price)
	}
	return s
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
