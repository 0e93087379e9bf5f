package store

import (
	"fmt"
	"time"
)

// Chunk is an indexed text segment.
type Chunk struct {
	ID      int64
	Offset  int
	Content string
}

// SearchResult is a chunk with its distance to the query vector.
// Smaller distances mean higher similarity.
type SearchResult struct {
	Chunk    Chunk
	Distance float64
}

// IndexInfo is the metadata recorded when an index is built.
type IndexInfo struct {
	SchemaVersion string
	Model         string
	Dimension     int
	ChunkCount    int
	BuiltAt       time.Time
}

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Label returns the display name used when rendering history.
func (r Role) Label() string {
	if r == RoleUser {
		return "User"
	}
	return "Assistant"
}

// ParseRole converts a stored role string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// Message is one persisted conversation entry.
type Message struct {
	ID        int64
	Role      Role
	Content   string
	Timestamp time.Time
}
