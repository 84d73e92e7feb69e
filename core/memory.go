package core

import "time"

// Memory is a single durable fact about a user.
//
// Memories are strictly partitioned by UserID: listing and search are
// always user-scoped, and a memory belongs to exactly one user for its
// lifetime. IDs are globally unique and stable.
type Memory struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Text      string         `json:"memory"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	// Score is a transient relevance value attached to search results.
	// It is never persisted.
	Score float32 `json:"score,omitempty"`
}

// Clone returns a deep-enough copy so callers can't mutate stored state.
func (m *Memory) Clone() *Memory {
	cp := *m
	if m.Metadata != nil {
		cp.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// Message is one turn of a conversation handed to the extractor.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
