package recall

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/embedder/mock"
	"github.com/becomeliminal/recall/search"
	"github.com/becomeliminal/recall/store/memstore"
)

// scriptedExtractor returns one batch of operations per call.
type scriptedExtractor struct {
	batches [][]core.Operation
	err     error
}

func (s *scriptedExtractor) Extract(ctx context.Context, messages []core.Message, existing []*core.Memory) ([]core.Operation, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.batches) == 0 {
		return nil, nil
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	return batch, nil
}

// fakeJudge answers from predicates; safe for concurrent sweep use.
type fakeJudge struct {
	mu            sync.Mutex
	contradictsFn func(existing, candidate string) bool
	approveFn     func(text, queryContext string) bool
}

func (f *fakeJudge) CheckContradiction(ctx context.Context, existingText, candidateText, queryContext string) (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.contradictsFn != nil && f.contradictsFn(existingText, candidateText) {
		return true, "contradiction"
	}
	return false, "no contradiction"
}

func (f *fakeJudge) ApproveDeletion(ctx context.Context, memoryText, queryContext string) (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.approveFn != nil && f.approveFn(memoryText, queryContext) {
		return true, "justified"
	}
	return false, "not justified"
}

func newTestService(extractor Extractor, j *fakeJudge) *Service {
	return New(memstore.New(), search.NewIndex(mock.New()), extractor, j, nil)
}

func userMsg(content string) core.Message {
	return core.Message{Role: "user", Content: content}
}

func TestAddConversationStoresFacts(t *testing.T) {
	extractor := &scriptedExtractor{batches: [][]core.Operation{{
		{Kind: core.OpAdd, Text: "Likes pizza"},
		{Kind: core.OpAdd, Text: "Has two cats"},
	}}}
	svc := newTestService(extractor, &fakeJudge{})
	ctx := context.Background()

	ops, err := svc.AddConversation(ctx, "u1", []core.Message{userMsg("I love pizza and have two cats")}, nil)
	if err != nil {
		t.Fatalf("AddConversation: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("ops = %+v, want 2", ops)
	}
	for _, op := range ops {
		if op.MemoryID == "" {
			t.Errorf("committed ADD missing memory id: %+v", op)
		}
	}

	memories, err := svc.ListAll(ctx, "u1")
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(memories) != 2 {
		t.Fatalf("stored = %+v, want 2", memories)
	}
}

func TestAddConversationResolvesContradiction(t *testing.T) {
	extractor := &scriptedExtractor{batches: [][]core.Operation{
		{{Kind: core.OpAdd, Text: "Has a dog named Max"}},
		{{Kind: core.OpAdd, Text: "Does not have any pets"}},
	}}
	j := &fakeJudge{
		contradictsFn: func(existing, candidate string) bool {
			return existing == "Has a dog named Max" && candidate == "Does not have any pets"
		},
		approveFn: func(text, queryContext string) bool { return true },
	}
	svc := newTestService(extractor, j)
	ctx := context.Background()

	if _, err := svc.AddConversation(ctx, "u1", []core.Message{userMsg("I have a dog named Max")}, nil); err != nil {
		t.Fatalf("first AddConversation: %v", err)
	}

	ops, err := svc.AddConversation(ctx, "u1", []core.Message{userMsg("I don't have any pets")}, nil)
	if err != nil {
		t.Fatalf("second AddConversation: %v", err)
	}

	var sawDelete bool
	for _, op := range ops {
		if op.Kind == core.OpDelete {
			sawDelete = true
		}
	}
	if !sawDelete {
		t.Errorf("ops = %+v, want a synthesized DELETE", ops)
	}

	memories, _ := svc.ListAll(ctx, "u1")
	if len(memories) != 1 || memories[0].Text != "Does not have any pets" {
		t.Fatalf("stored = %+v, want only the new fact", memories)
	}
}

func TestAddConversationAdditiveFactsCoexist(t *testing.T) {
	extractor := &scriptedExtractor{batches: [][]core.Operation{
		{{Kind: core.OpAdd, Text: "Likes pizza"}},
		{{Kind: core.OpAdd, Text: "Also likes pasta"}},
	}}
	svc := newTestService(extractor, &fakeJudge{})
	ctx := context.Background()

	svc.AddConversation(ctx, "u1", []core.Message{userMsg("I like pizza")}, nil)
	svc.AddConversation(ctx, "u1", []core.Message{userMsg("I also like pasta")}, nil)

	memories, _ := svc.ListAll(ctx, "u1")
	if len(memories) != 2 {
		t.Fatalf("stored = %+v, want both facts", memories)
	}
}

func TestAddConversationProtectsRejectedDelete(t *testing.T) {
	extractor := &scriptedExtractor{batches: [][]core.Operation{
		{{Kind: core.OpAdd, Text: "Likes coffee"}},
		nil, // placeholder replaced below
	}}
	j := &fakeJudge{} // never approves deletions
	svc := newTestService(extractor, j)
	ctx := context.Background()

	svc.AddConversation(ctx, "u1", []core.Message{userMsg("I like coffee")}, nil)
	memories, _ := svc.ListAll(ctx, "u1")
	if len(memories) != 1 {
		t.Fatalf("seed failed: %+v", memories)
	}

	extractor.batches = [][]core.Operation{
		{{Kind: core.OpDelete, MemoryID: memories[0].ID, Text: "Likes coffee"}},
	}
	ops, err := svc.AddConversation(ctx, "u1", []core.Message{userMsg("I also like tea")}, nil)
	if err != nil {
		t.Fatalf("AddConversation: %v", err)
	}

	if len(ops) != 1 || ops[0].Kind != core.OpNone {
		t.Fatalf("ops = %+v, want protected NONE", ops)
	}
	if _, ok := ops[0].Metadata[core.ProtectionReasonKey]; !ok {
		t.Errorf("protected op missing reason metadata: %+v", ops[0].Metadata)
	}

	memories, _ = svc.ListAll(ctx, "u1")
	if len(memories) != 1 {
		t.Fatalf("memory was deleted despite rejection: %+v", memories)
	}
}

func TestAddConversationEmptyMessages(t *testing.T) {
	svc := newTestService(&scriptedExtractor{}, &fakeJudge{})

	_, err := svc.AddConversation(context.Background(), "u1", nil, nil)
	if !errors.Is(err, core.ErrMalformedOperations) {
		t.Fatalf("err = %v, want ErrMalformedOperations", err)
	}
}

func TestAddConversationExtractorFailure(t *testing.T) {
	svc := newTestService(&scriptedExtractor{err: errors.New("model down")}, &fakeJudge{})

	_, err := svc.AddConversation(context.Background(), "u1", []core.Message{userMsg("hi")}, nil)
	if err == nil {
		t.Fatal("expected extractor error to propagate")
	}
}

func TestSearchHydratesFromStore(t *testing.T) {
	extractor := &scriptedExtractor{batches: [][]core.Operation{{
		{Kind: core.OpAdd, Text: "Has a dog named Max"},
	}}}
	svc := newTestService(extractor, &fakeJudge{})
	ctx := context.Background()

	meta := map[string]any{"source": "chat"}
	if _, err := svc.AddConversation(ctx, "u1", []core.Message{userMsg("I have a dog named Max")}, meta); err != nil {
		t.Fatalf("AddConversation: %v", err)
	}

	results, err := svc.Search(ctx, "u1", "Has a dog named Max", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %+v, want 1", results)
	}
	if results[0].Score <= 0 {
		t.Errorf("hit missing score: %+v", results[0])
	}
	if results[0].Metadata["source"] != "chat" {
		t.Errorf("hit not hydrated with store metadata: %+v", results[0].Metadata)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	svc := newTestService(&scriptedExtractor{}, &fakeJudge{})

	results, err := svc.Search(context.Background(), "u1", "   ", 0)
	if err != nil || results != nil {
		t.Fatalf("Search = (%+v, %v), want (nil, nil)", results, err)
	}
}

func TestDeleteAllClearsIndex(t *testing.T) {
	extractor := &scriptedExtractor{batches: [][]core.Operation{{
		{Kind: core.OpAdd, Text: "Likes pizza"},
	}}}
	svc := newTestService(extractor, &fakeJudge{})
	ctx := context.Background()

	svc.AddConversation(ctx, "u1", []core.Message{userMsg("I like pizza")}, nil)

	n, err := svc.DeleteAll(ctx, "u1")
	if err != nil || n != 1 {
		t.Fatalf("DeleteAll = (%d, %v)", n, err)
	}

	results, _ := svc.Search(ctx, "u1", "Likes pizza", 0)
	if len(results) != 0 {
		t.Errorf("index still serves deleted user: %+v", results)
	}
}

func TestSweepResolvesExistingContradictions(t *testing.T) {
	extractor := &scriptedExtractor{batches: [][]core.Operation{
		{{Kind: core.OpAdd, Text: "Lives in California"}},
		{{Kind: core.OpAdd, Text: "Lives in Texas"}},
	}}
	// Quiet during ingestion, contradicting during the manual sweep.
	j := &fakeJudge{}
	svc := newTestService(extractor, j)
	ctx := context.Background()

	svc.AddConversation(ctx, "u1", []core.Message{userMsg("I live in California")}, nil)
	svc.AddConversation(ctx, "u1", []core.Message{userMsg("I live in Texas")}, nil)

	j.mu.Lock()
	j.contradictsFn = func(a, b string) bool { return true }
	j.mu.Unlock()

	resolved, err := svc.Sweep(ctx, "u1")
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if resolved != 1 {
		t.Errorf("resolved = %d, want 1", resolved)
	}

	memories, _ := svc.ListAll(ctx, "u1")
	if len(memories) != 1 || memories[0].Text != "Lives in Texas" {
		t.Fatalf("stored = %+v, want newer fact only", memories)
	}
}

func TestReindexWarmsIndexFromStore(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	if _, err := store.Insert(ctx, "u1", "Works as a doctor", nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	svc := New(store, search.NewIndex(mock.New()), &scriptedExtractor{}, &fakeJudge{}, nil)

	// Cold index: nothing indexed yet.
	results, _ := svc.Search(ctx, "u1", "Works as a doctor", 0)
	if len(results) != 0 {
		t.Fatalf("cold index returned hits: %+v", results)
	}

	if err := svc.Reindex(ctx); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	results, err := svc.Search(ctx, "u1", "Works as a doctor", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %+v, want the reindexed memory", results)
	}
}
