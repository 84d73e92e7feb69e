package reconcile

import (
	"context"
	"log"
	"sync"

	"github.com/becomeliminal/recall/core"
)

// Sweep performs an all-pairs contradiction scan over the user's full
// memory set and deletes the loser of every contradicting pair. It
// returns the number of contradicting pairs found, which can exceed the
// number of memories deleted when one memory loses multiple pairs.
//
// The scan is intentionally O(n²) in judge calls: it runs rarely and
// per-user memory sets are naturally small. Judge calls are capped at
// Config.SweepParallelism in flight.
func (r *Reconciler) Sweep(ctx context.Context, userID string) (int, error) {
	memories, err := r.store.ListAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(memories) < 2 {
		return 0, nil
	}

	log.Printf("[SWEEP] Scanning %d memories for user %s", len(memories), userID)

	type pair struct{ i, j int }
	var pairs []pair
	for i := range memories {
		for j := i + 1; j < len(memories); j++ {
			pairs = append(pairs, pair{i, j})
		}
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		found    int
		toDelete = make(map[string]*core.Memory)
	)
	sem := make(chan struct{}, r.cfg.SweepParallelism)

	for _, p := range pairs {
		m1, m2 := memories[p.i], memories[p.j]

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			contradicts, _ := r.judge.CheckContradiction(ctx, m1.Text, m2.Text, "")
			if !contradicts {
				return
			}

			// Newer information wins: the earlier memory is deleted.
			// Equal timestamps keep the earlier-listed memory.
			loser := m2
			if m1.CreatedAt.Before(m2.CreatedAt) {
				loser = m1
			}

			mu.Lock()
			found++
			if _, dup := toDelete[loser.ID]; !dup {
				toDelete[loser.ID] = loser
			}
			mu.Unlock()

			log.Printf("[SWEEP] Mutual contradiction: %q vs %q, deleting %q", m1.Text, m2.Text, loser.Text)
		}()
	}
	wg.Wait()

	// Deletions are independent: one failure doesn't block the rest.
	for id, mem := range toDelete {
		if _, err := r.store.Delete(ctx, id); err != nil {
			log.Printf("[SWEEP] Failed to delete memory %s: %v", id, err)
			continue
		}
		log.Printf("[SWEEP] Deleted contradictory memory: %q (id %s)", mem.Text, id)
	}

	log.Printf("[SWEEP] Complete: resolved %d contradictions for user %s", found, userID)
	return found, nil
}
