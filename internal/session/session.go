package session

import "time"

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const (
	// GreetingText opens a conversation that has never been persisted.
	GreetingText = "Hello! I am your AI coding assistant. How can I help you with your algorithm problems today?"

	// ClearedText opens a conversation after the history was cleared.
	ClearedText = "Chat history cleared. How can I help you now?"
)

// Message represents a single chat message
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session represents one conversation
type Session struct {
	Messages []Message `json:"messages"`
}

// NewMessage stamps a message with the current UTC time.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// Greeting returns the default first message of a fresh conversation.
func Greeting() Message {
	return NewMessage(RoleAssistant, GreetingText)
}

// Cleared returns the acknowledgement that replaces a cleared history.
func Cleared() Message {
	return NewMessage(RoleAssistant, ClearedText)
}
