package recall

import (
	"context"
	"errors"
	"log"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/search"
)

// indexedStore wraps a FactStore and mirrors every mutation into the
// vector index. The record store is the source of truth: store failures
// abort the operation, index failures are logged and tolerated (Search
// hydration skips hits whose record is gone, and a missed index entry
// only costs recall until the memory is next written).
type indexedStore struct {
	store core.FactStore
	index *search.Index
}

var _ core.FactStore = (*indexedStore)(nil)

func (s *indexedStore) Insert(ctx context.Context, userID, text string, metadata map[string]any) (*core.Memory, error) {
	mem, err := s.store.Insert(ctx, userID, text, metadata)
	if err != nil {
		return nil, err
	}
	if err := s.index.Add(ctx, mem); err != nil {
		log.Printf("[STORE] Indexing failed for memory %s: %v", mem.ID, err)
	}
	return mem, nil
}

func (s *indexedStore) ListAll(ctx context.Context, userID string) ([]*core.Memory, error) {
	return s.store.ListAll(ctx, userID)
}

func (s *indexedStore) Get(ctx context.Context, id string) (*core.Memory, error) {
	return s.store.Get(ctx, id)
}

func (s *indexedStore) Update(ctx context.Context, id, text string) (*core.Memory, error) {
	mem, err := s.store.Update(ctx, id, text)
	if err != nil {
		return nil, err
	}
	if err := s.index.Add(ctx, mem); err != nil {
		log.Printf("[STORE] Re-indexing failed for memory %s: %v", mem.ID, err)
	}
	return mem, nil
}

func (s *indexedStore) Delete(ctx context.Context, id string) (bool, error) {
	// Fetch before deleting: the index needs the owning user to find
	// the right collection.
	mem, err := s.store.Get(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		if err := s.index.Remove(ctx, mem.UserID, id); err != nil {
			log.Printf("[STORE] Index removal failed for memory %s: %v", id, err)
		}
	}
	return deleted, nil
}

func (s *indexedStore) DeleteAll(ctx context.Context, userID string) (int, error) {
	n, err := s.store.DeleteAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := s.index.RemoveUser(userID); err != nil {
		log.Printf("[STORE] Index reset failed for user %s: %v", userID, err)
	}
	return n, nil
}

func (s *indexedStore) Close() error {
	return s.store.Close()
}
