// Package recall is a personal-memory store for conversational
// assistants. It ingests chat messages, extracts durable facts about a
// user, keeps the set internally consistent, and serves facts back via
// semantic search.
//
// Architecture:
//   - core.FactStore: record store (memstore or sqlitestore)
//   - search.Index: derived vector index (chromem-go)
//   - extract.Extractor: conversation -> raw operations
//   - judge.Judge: contradiction / deletion adjudication
//   - reconcile.Reconciler: raw operations -> safe committed set
//
// Service composes these and owns the two invariants the components
// can't provide alone: mutating operations are serialized per user, and
// the vector index tracks every fact store commit.
package recall

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/reconcile"
	"github.com/becomeliminal/recall/search"
)

// Extractor proposes raw operations from a conversation.
type Extractor interface {
	Extract(ctx context.Context, messages []core.Message, existing []*core.Memory) ([]core.Operation, error)
}

// Config configures the service.
type Config struct {
	// Reconcile configures the reconciler. Nil means defaults.
	Reconcile *reconcile.Config

	// SearchLimit is the default result cap for Search. Default: 20.
	SearchLimit int
}

// UserLister is an optional store capability: enumerating the users
// with at least one memory. Both bundled stores implement it; Reindex
// needs it to warm the vector index from a persistent store.
type UserLister interface {
	Users(ctx context.Context) ([]string, error)
}

// Service is the top-level memory engine.
type Service struct {
	store      core.FactStore
	raw        core.FactStore
	index      *search.Index
	extractor  Extractor
	judge      reconcile.Judge
	reconciler *reconcile.Reconciler
	cfg        Config

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// New wires a Service over the given components. The fact store passed
// here is the record store; the service keeps the index in sync with it.
func New(store core.FactStore, index *search.Index, extractor Extractor, j reconcile.Judge, cfg *Config) *Service {
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	if c.SearchLimit <= 0 {
		c.SearchLimit = 20
	}

	indexed := &indexedStore{store: store, index: index}
	return &Service{
		store:      indexed,
		raw:        store,
		index:      index,
		extractor:  extractor,
		judge:      j,
		reconciler: reconcile.New(indexed, index, j, c.Reconcile),
		cfg:        c,
	}
}

// userLock returns the mutex serializing mutating operations for one
// user. Reads don't lock; cross-user requests never contend.
func (s *Service) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userLocks == nil {
		s.userLocks = make(map[string]*sync.Mutex)
	}
	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	return lock
}

// AddConversation runs the full ingestion pipeline: extract raw
// operations from the conversation, reconcile them against the user's
// existing memories, commit the final set, and trigger the
// comprehensive sweep when anything was added. It returns the committed
// operation list (ADDs carry the id of the created memory).
func (s *Service) AddConversation(ctx context.Context, userID string, messages []core.Message, metadata map[string]any) ([]core.Operation, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: empty conversation", core.ErrMalformedOperations)
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.store.ListAll(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}

	rawOps, err := s.extractor.Extract(ctx, messages, existing)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	if len(rawOps) == 0 {
		return nil, nil
	}

	queryContext := lastUserMessage(messages)
	final, err := s.reconciler.Reconcile(ctx, rawOps, queryContext, userID)
	if err != nil {
		return nil, err
	}

	committed := s.commit(ctx, userID, final, metadata)

	// Safety net: catch contradictions between pre-existing memories
	// that were never directly compared. Best-effort only.
	if hasAdd(committed) {
		if resolved, err := s.reconciler.Sweep(ctx, userID); err != nil {
			log.Printf("[RECALL] Post-add sweep failed for user %s: %v", userID, err)
		} else if resolved > 0 {
			log.Printf("[RECALL] Post-add sweep resolved %d contradictions for user %s", resolved, userID)
		}
	}

	return committed, nil
}

// commit applies the final operation list to the store. Each commit is
// independent and atomic at the single-memory level; per-item failures
// are logged and skipped so one bad id can't abort the batch.
func (s *Service) commit(ctx context.Context, userID string, ops []core.Operation, metadata map[string]any) []core.Operation {
	committed := make([]core.Operation, 0, len(ops))
	for _, op := range ops {
		switch op.Kind {
		case core.OpAdd:
			meta := mergeMeta(metadata, op.Metadata)
			mem, err := s.store.Insert(ctx, userID, op.Text, meta)
			if err != nil {
				log.Printf("[RECALL] Insert failed for %q: %v", op.Text, err)
				continue
			}
			op.MemoryID = mem.ID
			op.Metadata = meta

		case core.OpUpdate:
			if _, err := s.store.Update(ctx, op.MemoryID, op.Text); err != nil {
				if errors.Is(err, core.ErrNotFound) {
					log.Printf("[RECALL] Update skipped, memory %s gone", op.MemoryID)
				} else {
					log.Printf("[RECALL] Update failed for %s: %v", op.MemoryID, err)
				}
				continue
			}

		case core.OpDelete:
			if _, err := s.store.Delete(ctx, op.MemoryID); err != nil {
				log.Printf("[RECALL] Delete failed for %s: %v", op.MemoryID, err)
				continue
			}
		}
		committed = append(committed, op)
	}
	return committed
}

// Search returns the user's memories ranked by semantic similarity.
// Hits are hydrated from the fact store so metadata is authoritative;
// index entries whose backing record is gone are skipped.
func (s *Service) Search(ctx context.Context, userID, query string, limit int) ([]*core.Memory, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = s.cfg.SearchLimit
	}

	hits, err := s.index.Search(ctx, userID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	results := make([]*core.Memory, 0, len(hits))
	for _, hit := range hits {
		mem, err := s.store.Get(ctx, hit.ID)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		mem.Score = hit.Score
		results = append(results, mem)
	}
	return results, nil
}

// Sweep runs the comprehensive contradiction scan for one user and
// returns the number of contradicting pairs resolved.
func (s *Service) Sweep(ctx context.Context, userID string) (int, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	return s.reconciler.Sweep(ctx, userID)
}

// JudgeContradiction exposes the contradiction check for callers
// outside the reconciliation flow (manual cleanup tooling).
func (s *Service) JudgeContradiction(ctx context.Context, existingText, candidateText, queryContext string) (bool, string) {
	return s.judge.CheckContradiction(ctx, existingText, candidateText, queryContext)
}

// ListAll returns every memory for the user.
func (s *Service) ListAll(ctx context.Context, userID string) ([]*core.Memory, error) {
	return s.store.ListAll(ctx, userID)
}

// Get returns one memory by id.
func (s *Service) Get(ctx context.Context, id string) (*core.Memory, error) {
	return s.store.Get(ctx, id)
}

// Update replaces a memory's text.
func (s *Service) Update(ctx context.Context, id, text string) (*core.Memory, error) {
	return s.store.Update(ctx, id, text)
}

// Delete removes one memory by id.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	return s.store.Delete(ctx, id)
}

// DeleteAll removes every memory for the user.
func (s *Service) DeleteAll(ctx context.Context, userID string) (int, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	return s.store.DeleteAll(ctx, userID)
}

// Stats summarizes the store contents.
type Stats struct {
	Users    int `json:"users"`
	Memories int `json:"memories"`
}

// Stats counts users and memories. Requires the store to implement
// UserLister; other stores report zeros.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	lister, ok := s.raw.(UserLister)
	if !ok {
		return &Stats{}, nil
	}

	users, err := lister.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	stats := &Stats{Users: len(users)}
	for _, userID := range users {
		memories, err := s.raw.ListAll(ctx, userID)
		if err != nil {
			return nil, err
		}
		stats.Memories += len(memories)
	}
	return stats, nil
}

// Reindex rebuilds the vector index from the fact store. The index is
// in-memory and starts cold; call this once after opening a persistent
// store. Requires the store to implement UserLister.
func (s *Service) Reindex(ctx context.Context) error {
	lister, ok := s.raw.(UserLister)
	if !ok {
		return fmt.Errorf("store %T cannot enumerate users", s.raw)
	}

	users, err := lister.Users(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	total := 0
	for _, userID := range users {
		memories, err := s.raw.ListAll(ctx, userID)
		if err != nil {
			return fmt.Errorf("list memories for %s: %w", userID, err)
		}
		for _, mem := range memories {
			if err := s.index.Add(ctx, mem); err != nil {
				log.Printf("[RECALL] Reindex skipped memory %s: %v", mem.ID, err)
				continue
			}
			total++
		}
	}
	log.Printf("[RECALL] Reindexed %d memories across %d users", total, len(users))
	return nil
}

// Close releases the underlying store.
func (s *Service) Close() error {
	return s.store.Close()
}

func lastUserMessage(messages []core.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func hasAdd(ops []core.Operation) bool {
	for _, op := range ops {
		if op.Kind == core.OpAdd {
			return true
		}
	}
	return false
}

func mergeMeta(base, extra map[string]any) map[string]any {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	merged := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
