//go:build !onnx

package cli

import (
	"github.com/becomeliminal/recall/embedder/mock"
	"github.com/becomeliminal/recall/search"
)

// newEmbedder returns the deterministic token-hash embedder. Build with
// the onnx tag for real sentence embeddings.
func newEmbedder() (search.Embedder, error) {
	return mock.New(), nil
}
