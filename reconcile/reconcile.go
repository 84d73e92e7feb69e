// Package reconcile turns raw extractor output into a safe, committable
// operation set, and provides the comprehensive contradiction sweep.
//
// The reconciler never drops new information: an ADD always survives,
// and the memories it contradicts are only removed when two independent
// judge findings agree (the contradiction check and the
// deletion-justification check). Per-candidate judge or search failures
// are logged and skipped; only a malformed input batch fails loudly.
package reconcile

import (
	"context"
	"fmt"
	"log"

	"github.com/becomeliminal/recall/core"
)

// Judge is the contradiction/deletion adjudicator consumed by the
// reconciler. Both methods are fail-closed and never error.
type Judge interface {
	CheckContradiction(ctx context.Context, existingText, candidateText, queryContext string) (bool, string)
	ApproveDeletion(ctx context.Context, memoryText, queryContext string) (bool, string)
}

// Searcher returns ranked candidate memories for a user above a
// similarity threshold.
type Searcher interface {
	Search(ctx context.Context, userID, query string, limit int) ([]*core.Memory, error)
}

// Config configures the reconciler.
type Config struct {
	// DisableDeletions converts every DELETE to NONE unconditionally,
	// with no judge call. Operator safety valve.
	DisableDeletions bool

	// SearchLimit is the top-K for the similarity scan during ADD
	// handling. Recall is prioritized over precision here: a missed
	// contradiction is a latent consistency bug, a false positive is
	// just one extra judge call. Default: 20.
	SearchLimit int

	// SweepParallelism caps concurrent judge calls during a sweep.
	// Default: 4.
	SweepParallelism int
}

// DefaultConfig returns sensible defaults.
var DefaultConfig = &Config{
	SearchLimit:      20,
	SweepParallelism: 4,
}

// Reconciler orchestrates deletion protection and contradiction
// resolution over a fact store.
type Reconciler struct {
	store  core.FactStore
	search Searcher
	judge  Judge
	cfg    Config
}

// New creates a Reconciler.
func New(store core.FactStore, search Searcher, judge Judge, cfg *Config) *Reconciler {
	if cfg == nil {
		cfg = DefaultConfig
	}
	c := *cfg
	if c.SearchLimit <= 0 {
		c.SearchLimit = 20
	}
	if c.SweepParallelism <= 0 {
		c.SweepParallelism = 4
	}
	return &Reconciler{store: store, search: search, judge: judge, cfg: c}
}

// Reconcile applies deletion protection and contradiction detection to
// the raw operation batch and returns the final operation set to
// commit. It returns an error only for a malformed batch
// (core.ErrMalformedOperations); collaborator failures degrade
// per-candidate.
func (r *Reconciler) Reconcile(ctx context.Context, rawOps []core.Operation, queryContext, userID string) ([]core.Operation, error) {
	for _, op := range rawOps {
		if !op.Valid() {
			return nil, fmt.Errorf("%w: unknown operation kind %q", core.ErrMalformedOperations, op.Kind)
		}
	}

	final := make([]core.Operation, 0, len(rawOps))
	for _, op := range rawOps {
		switch op.Kind {
		case core.OpDelete:
			final = append(final, r.gateDelete(ctx, op, queryContext))

		case core.OpAdd:
			// Synthesized deletes precede the ADD so the commit order
			// mirrors "superseded information removed, new information
			// stored". The ADD itself is always retained.
			final = append(final, r.resolveContradictions(ctx, op.Text, queryContext, userID)...)
			final = append(final, op)

		default:
			// UPDATE and NONE pass through unchanged.
			final = append(final, op)
		}
	}

	return final, nil
}

// gateDelete runs the deletion-justification gate over a proposed
// DELETE, converting it to NONE when rejected.
func (r *Reconciler) gateDelete(ctx context.Context, op core.Operation, queryContext string) core.Operation {
	if r.cfg.DisableDeletions {
		log.Printf("[RECONCILE] Global protection: deletions disabled, converting to NONE: %q", op.Text)
		op.Kind = core.OpNone
		return op
	}

	approved, reasoning := r.judge.ApproveDeletion(ctx, op.Text, queryContext)
	if approved {
		log.Printf("[RECONCILE] Deletion approved: %q (%s)", op.Text, reasoning)
		return op
	}

	log.Printf("[RECONCILE] Deletion rejected: %q (%s)", op.Text, reasoning)
	op.Kind = core.OpNone
	return op.WithMeta(core.ProtectionReasonKey, reasoning)
}

// resolveContradictions finds existing memories the new text
// contradicts and synthesizes double-gated DELETE operations for them.
func (r *Reconciler) resolveContradictions(ctx context.Context, newText, queryContext, userID string) []core.Operation {
	candidates := r.gatherCandidates(ctx, newText, userID)
	if len(candidates) == 0 {
		return nil
	}

	log.Printf("[RECONCILE] Checking %d existing memories for contradictions with %q", len(candidates), newText)

	var deletes []core.Operation
	for _, existing := range candidates {
		contradicts, _ := r.judge.CheckContradiction(ctx, existing.Text, newText, queryContext)
		if !contradicts {
			continue
		}

		// Second gate: contradiction-detection and deletion-justification
		// are different questions; both must pass before anything is
		// removed.
		deletionContext := fmt.Sprintf("CONTRADICTION: New memory %q conflicts with this memory", newText)
		approved, reasoning := r.judge.ApproveDeletion(ctx, existing.Text, deletionContext)
		if !approved {
			log.Printf("[RECONCILE] Auto-deletion rejected: %q (%s)", existing.Text, reasoning)
			continue
		}

		log.Printf("[RECONCILE] Auto-deletion approved: %q (%s)", existing.Text, reasoning)
		deletes = append(deletes, core.Operation{
			Kind:     core.OpDelete,
			MemoryID: existing.ID,
			Text:     existing.Text,
			Metadata: map[string]any{"auto_detected_contradiction": true},
		})
	}
	return deletes
}

// gatherCandidates unions the full user listing with the top-K
// similarity results, deduplicated by id. Either source failing reduces
// recall but never aborts the reconcile.
func (r *Reconciler) gatherCandidates(ctx context.Context, newText, userID string) []*core.Memory {
	seen := make(map[string]bool)
	var candidates []*core.Memory

	all, err := r.store.ListAll(ctx, userID)
	if err != nil {
		log.Printf("[RECONCILE] Listing memories failed, continuing with search only: %v", err)
	}
	for _, mem := range all {
		if mem.Text == "" || seen[mem.ID] {
			continue
		}
		seen[mem.ID] = true
		candidates = append(candidates, mem)
	}

	similar, err := r.search.Search(ctx, userID, newText, r.cfg.SearchLimit)
	if err != nil {
		log.Printf("[RECONCILE] Similarity search failed, continuing with listing only: %v", err)
	}
	for _, mem := range similar {
		if mem.Text == "" || seen[mem.ID] {
			continue
		}
		seen[mem.ID] = true
		candidates = append(candidates, mem)
	}

	return candidates
}
