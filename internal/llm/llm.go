// Package llm talks to generative chat models.
package llm

import "context"

// Chat roles understood by both backends.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat generates one complete assistant reply for a conversation.
type Chat interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}
