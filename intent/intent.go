package intent

import (
	"fmt"
	"strings"

	"github.com/sweetpotato0/auto-concierge/errors"
	"github.com/sweetpotato0/auto-concierge/vehicle"
)

// Attribute is a normalized request attribute extracted from free text.
// The classifier consults these when looking for conflicting requirements.
type Attribute string

const (
	AttrFuelEconomy Attribute = "fuel-economy"
	AttrCabinSpace  Attribute = "cabin-space"
	AttrCargoSpace  Attribute = "cargo-space"
	AttrLargeBody   Attribute = "large-body"
	AttrCompactBody Attribute = "compact-body"
)

// UserIntent is the parsed form of a user's request. Immutable once created
// for a turn.
type UserIntent struct {
	Price       vehicle.PriceRange
	BodyTypes   []string
	FuelType    string
	Attributes  []Attribute
	Description string
}

// HasAttribute reports whether the intent mentions the given attribute.
func (i *UserIntent) HasAttribute(attr Attribute) bool {
	for _, a := range i.Attributes {
		if a == attr {
			return true
		}
	}
	return false
}

// PrimaryBodyType returns the first requested body type, or empty.
func (i *UserIntent) PrimaryBodyType() string {
	if len(i.BodyTypes) == 0 {
		return ""
	}
	return i.BodyTypes[0]
}

var bodyTypeKeywords = map[string]string{
	"sedan":     "sedan",
	"suv":       "suv",
	"wagon":     "wagon",
	"minivan":   "minivan",
	"van":       "minivan",
	"hatchback": "hatchback",
	"coupe":     "coupe",
	"truck":     "truck",
	"pickup":    "truck",
}

var fuelTypeKeywords = map[string]string{
	"hybrid":   "hybrid",
	"electric": "electric",
	"ev":       "electric",
	"diesel":   "diesel",
	"gasoline": "gasoline",
	"petrol":   "gasoline",
}

// attributeKeywords maps free-text phrases to normalized attributes. Longer
// phrases are matched as substrings of the lowercased query.
var attributeKeywords = []struct {
	phrase string
	attr   Attribute
}{
	{"fuel economy", AttrFuelEconomy},
	{"fuel efficient", AttrFuelEconomy},
	{"gas mileage", AttrFuelEconomy},
	{"mpg", AttrFuelEconomy},
	{"economical", AttrFuelEconomy},
	{"cabin", AttrCabinSpace},
	{"seats", AttrCabinSpace},
	{"roomy", AttrCabinSpace},
	{"spacious", AttrCabinSpace},
	{"cargo", AttrCargoSpace},
	{"trunk", AttrCargoSpace},
	{"large", AttrLargeBody},
	{"big", AttrLargeBody},
	{"compact", AttrCompactBody},
	{"small", AttrCompactBody},
	{"city car", AttrCompactBody},
}

// Parse builds a UserIntent from the raw query text and budget range.
// Parsing is deterministic keyword extraction; the generative collaborator
// never sees the raw query until a persona prompt is built.
func Parse(rawQuery string, budget vehicle.PriceRange) (*UserIntent, error) {
	if !budget.Valid() {
		return nil, fmt.Errorf("%w: price range min=%.0f max=%.0f", errors.ErrInvalidArgument, budget.Min, budget.Max)
	}

	lowered := strings.ToLower(rawQuery)
	in := &UserIntent{
		Price:       budget,
		Description: strings.TrimSpace(rawQuery),
	}

	seenBody := make(map[string]bool)
	for _, word := range strings.FieldsFunc(lowered, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!' || r == '?'
	}) {
		if body, ok := bodyTypeKeywords[word]; ok && !seenBody[body] {
			seenBody[body] = true
			in.BodyTypes = append(in.BodyTypes, body)
		}
		if fuel, ok := fuelTypeKeywords[word]; ok && in.FuelType == "" {
			in.FuelType = fuel
		}
	}

	seenAttr := make(map[Attribute]bool)
	for _, kw := range attributeKeywords {
		if strings.Contains(lowered, kw.phrase) && !seenAttr[kw.attr] {
			seenAttr[kw.attr] = true
			in.Attributes = append(in.Attributes, kw.attr)
		}
	}

	return in, nil
}
