package rag

import (
	"strings"

	"docchat/internal/store"
)

// Conversation memory bounds, in exchanges (one question plus its answer).
const (
	DefaultHistory = 5
	MinHistory     = 1
	MaxHistory     = 20
)

// NoHistory is rendered in place of an empty conversation.
const NoHistory = "No previous conversation."

// ClampHistory limits n to [MinHistory, MaxHistory].
func ClampHistory(n int) int {
	return max(MinHistory, min(n, MaxHistory))
}

// FormatHistory renders the last maxExchanges exchanges as "User: ..." and
// "Assistant: ..." lines.
func FormatHistory(messages []store.Message, maxExchanges int) string {
	if len(messages) == 0 {
		return NoHistory
	}
	window := ClampHistory(maxExchanges) * 2
	if len(messages) > window {
		messages = messages[len(messages)-window:]
	}

	lines := make([]string, len(messages))
	for i, m := range messages {
		lines[i] = m.Role.Label() + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}
