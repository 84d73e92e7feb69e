// Package memstore is the in-process FactStore implementation: a map
// keyed by id, suitable for local use and tests. Data is lost on
// restart.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/becomeliminal/recall/core"
)

// Store implements core.FactStore in memory.
type Store struct {
	mu       sync.RWMutex
	memories map[string]*core.Memory
}

// New creates an empty store.
func New() *Store {
	return &Store{memories: make(map[string]*core.Memory)}
}

// Insert creates a new memory for the user.
func (s *Store) Insert(ctx context.Context, userID, text string, metadata map[string]any) (*core.Memory, error) {
	mem := &core.Memory{
		ID:        uuid.New().String(),
		UserID:    userID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
		Metadata:  metadata,
	}

	s.mu.Lock()
	s.memories[mem.ID] = mem
	s.mu.Unlock()

	return mem.Clone(), nil
}

// ListAll returns the user's memories, oldest first. Ties on CreatedAt
// break by id so listing order is stable.
func (s *Store) ListAll(ctx context.Context, userID string) ([]*core.Memory, error) {
	s.mu.RLock()
	var out []*core.Memory
	for _, mem := range s.memories {
		if mem.UserID == userID {
			out = append(out, mem.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Get returns the memory with the given id.
func (s *Store) Get(ctx context.Context, id string) (*core.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mem, ok := s.memories[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return mem.Clone(), nil
}

// Update replaces the memory's text and stamps it as modified.
func (s *Store) Update(ctx context.Context, id, text string) (*core.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mem, ok := s.memories[id]
	if !ok {
		return nil, core.ErrNotFound
	}

	now := time.Now().UTC()
	mem.Text = text
	mem.UpdatedAt = &now
	return mem.Clone(), nil
}

// Delete removes the memory.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.memories[id]; !ok {
		return false, nil
	}
	delete(s.memories, id)
	return true, nil
}

// DeleteAll removes every memory for the user.
func (s *Store) DeleteAll(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, mem := range s.memories {
		if mem.UserID == userID {
			delete(s.memories, id)
			count++
		}
	}
	return count, nil
}

// Users returns every user id with at least one memory, sorted.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	seen := make(map[string]bool)
	for _, mem := range s.memories {
		seen[mem.UserID] = true
	}
	s.mu.RUnlock()

	users := make([]string, 0, len(seen))
	for id := range seen {
		users = append(users, id)
	}
	sort.Strings(users)
	return users, nil
}

// Close is a no-op for the in-process store.
func (s *Store) Close() error {
	return nil
}
