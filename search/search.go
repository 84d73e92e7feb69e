// Package search maintains a vector similarity index over the fact
// store using chromem-go, an embedded pure-Go vector database.
//
// The index is derived state: the fact store is the source of truth and
// the index is kept in sync by the service layer on every commit. Each
// user gets their own collection for namespace isolation.
package search

import "context"

// Embedder converts text to vector embeddings.
// Implementations: mock (testing), onnx (local all-MiniLM-L6-v2).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
