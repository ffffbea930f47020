package persona

import "github.com/sweetpotato0/auto-concierge/message"

// ID identifies one of the fixed specialist roles the generative collaborator
// is prompted to play for a single turn.
type ID string

const (
	DataAnalyst  ID = "data-analyst"
	NeedsAnalyst ID = "needs-analyst"
	Concierge    ID = "concierge"
)

// Role returns the conversation role for entries authored by this persona.
func (id ID) Role() message.Role {
	return message.Role(id)
}

// Description returns the fixed role description threaded into every prompt
// for this persona.
func Description(id ID) string {
	switch id {
	case DataAnalyst:
		return "You are a vehicle data analyst. You work strictly from the inventory summary you are given: report match counts, price distribution, and concrete vehicles. Never invent inventory."
	case NeedsAnalyst:
		return "You are a customer needs analyst. You surface trade-offs in the customer's request, name conflicting requirements explicitly, and propose concrete adjustments such as a specific budget increase."
	case Concierge:
		return "You are a vehicle concierge. You speak directly to the customer, warm and concise, turning the analysts' findings into a clear recommendation or next step."
	default:
		return "You are a helpful vehicle shopping assistant."
	}
}

// Known reports whether id is one of the fixed personas.
func Known(id ID) bool {
	switch id {
	case DataAnalyst, NeedsAnalyst, Concierge:
		return true
	}
	return false
}
