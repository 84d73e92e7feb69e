package core

import (
	"context"
	"errors"
)

// ErrNotFound is returned by FactStore implementations when the
// requested memory id does not exist. Callers processing batches must
// catch it per item and skip rather than abort.
var ErrNotFound = errors.New("memory not found")

// ErrMalformedOperations indicates the extractor violated its contract:
// the raw operation batch is not a recognized collection of operations.
// This is the one failure the reconcile pipeline propagates loudly.
var ErrMalformedOperations = errors.New("malformed operations")

// FactStore holds memory records per user.
//
// The store exclusively owns Memory records; orchestration code only
// ever manipulates them through these operations and never holds
// independent mutable state across calls.
//
// Implementations: memstore (in-process, for local use and tests),
// sqlitestore (persistent).
type FactStore interface {
	// Insert creates a new memory for the user and returns it.
	Insert(ctx context.Context, userID, text string, metadata map[string]any) (*Memory, error)

	// ListAll returns every memory for the user in stable listing order
	// (oldest first).
	ListAll(ctx context.Context, userID string) ([]*Memory, error)

	// Get returns the memory with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Memory, error)

	// Update replaces the memory's text and stamps it as modified.
	// Returns ErrNotFound if the id does not exist.
	Update(ctx context.Context, id, text string) (*Memory, error)

	// Delete removes the memory. Reports whether anything was deleted.
	Delete(ctx context.Context, id string) (bool, error)

	// DeleteAll removes every memory for the user and returns the count.
	DeleteAll(ctx context.Context, userID string) (int, error)

	// Close releases resources.
	Close() error
}
