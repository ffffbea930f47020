package message

import "time"

// Role identifies the author of a conversation entry. Persona identifiers
// double as roles so a stored conversation reads as the dialogue it was.
type Role string

const (
	RoleUser         Role = "user"
	RoleSystem       Role = "system"
	RoleDataAnalyst  Role = "data-analyst"
	RoleNeedsAnalyst Role = "needs-analyst"
	RoleConcierge    Role = "concierge"
)

// Message is a single conversation entry.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates a message stamped with the current time.
func New(role Role, content string) *Message {
	return &Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// Clone creates a copy of the message.
func Clone(msg *Message) *Message {
	if msg == nil {
		return nil
	}
	cloned := *msg
	return &cloned
}

// CloneMessages copies a slice of messages.
func CloneMessages(msgs []*Message) []*Message {
	if len(msgs) == 0 {
		return nil
	}
	clones := make([]*Message, 0, len(msgs))
	for _, msg := range msgs {
		clones = append(clones, Clone(msg))
	}
	return clones
}
