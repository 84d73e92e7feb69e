package search

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/recall/core"
)

// DefaultThreshold is the minimum similarity for a search hit.
// Tiny models (all-MiniLM-L6-v2) produce lower scores than production
// embedders, so the default is deliberately permissive.
const DefaultThreshold = 0.3

// Index is a per-user vector index over memory texts.
type Index struct {
	db          *chromem.DB
	embedder    Embedder
	threshold   float32
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

// Option configures the index.
type Option func(*Index)

// WithThreshold overrides the minimum similarity score for hits.
func WithThreshold(t float32) Option {
	return func(ix *Index) {
		ix.threshold = t
	}
}

// NewIndex creates an empty index over the given embedder.
func NewIndex(embedder Embedder, opts ...Option) *Index {
	ix := &Index{
		db:          chromem.NewDB(),
		embedder:    embedder,
		threshold:   DefaultThreshold,
		collections: make(map[string]*chromem.Collection),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// getOrCreateCollection returns the collection for a user.
func (ix *Index) getOrCreateCollection(userID string) (*chromem.Collection, error) {
	ix.mu.RLock()
	col, exists := ix.collections[userID]
	ix.mu.RUnlock()

	if exists {
		return col, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	// Double-check after acquiring write lock
	if col, exists := ix.collections[userID]; exists {
		return col, nil
	}

	col, err := ix.db.CreateCollection(collectionName(userID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	ix.collections[userID] = col
	return col, nil
}

func collectionName(userID string) string {
	if userID == "" {
		return "global"
	}
	return "user_" + userID
}

// Add embeds the memory text and stores it in the user's collection.
func (ix *Index) Add(ctx context.Context, mem *core.Memory) error {
	col, err := ix.getOrCreateCollection(mem.UserID)
	if err != nil {
		return err
	}

	embedding, err := ix.embedder.Embed(ctx, mem.Text)
	if err != nil {
		return fmt.Errorf("embed memory: %w", err)
	}

	doc := chromem.Document{
		ID:        mem.ID,
		Content:   mem.Text,
		Embedding: embedding,
		Metadata: map[string]string{
			"user_id":    mem.UserID,
			"created_at": mem.CreatedAt.Format(time.RFC3339),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Remove drops a memory from the user's collection. Removing an id that
// was never indexed is not an error.
func (ix *Index) Remove(ctx context.Context, userID, memoryID string) error {
	ix.mu.RLock()
	col, exists := ix.collections[userID]
	ix.mu.RUnlock()
	if !exists {
		return nil
	}

	if err := col.Delete(ctx, nil, nil, memoryID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// RemoveUser drops the user's whole collection.
func (ix *Index) RemoveUser(userID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.collections[userID]; !exists {
		return nil
	}
	if err := ix.db.DeleteCollection(collectionName(userID)); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	delete(ix.collections, userID)
	return nil
}

// Search returns the user's memories ranked by similarity to the query,
// highest first, filtered to the index threshold. Results carry the
// transient Score field; metadata is not hydrated here.
func (ix *Index) Search(ctx context.Context, userID, query string, limit int) ([]*core.Memory, error) {
	ix.mu.RLock()
	col, exists := ix.collections[userID]
	ix.mu.RUnlock()
	if !exists {
		return nil, nil
	}

	if limit <= 0 {
		limit = 20
	}
	// chromem requires nResults <= collection size
	if n := col.Count(); limit > n {
		limit = n
	}
	if limit == 0 {
		return nil, nil
	}

	embedding, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := col.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	memories := make([]*core.Memory, 0, len(results))
	for _, result := range results {
		if result.Similarity < ix.threshold {
			continue
		}
		createdAt, err := time.Parse(time.RFC3339, result.Metadata["created_at"])
		if err != nil {
			log.Printf("[INDEX] Skipping result %s: bad created_at %q", result.ID, result.Metadata["created_at"])
			continue
		}
		memories = append(memories, &core.Memory{
			ID:        result.ID,
			UserID:    userID,
			Text:      result.Content,
			CreatedAt: createdAt,
			Score:     result.Similarity,
		})
	}
	return memories, nil
}
