//go:build onnx

package cli

import (
	"errors"
	"os"

	"github.com/becomeliminal/recall/embedder/onnx"
	"github.com/becomeliminal/recall/search"
)

// newEmbedder returns the ONNX sentence embedder, configured from
// RECALL_ONNX_MODEL and RECALL_ONNX_TOKENIZER.
func newEmbedder() (search.Embedder, error) {
	modelPath := os.Getenv("RECALL_ONNX_MODEL")
	if modelPath == "" {
		return nil, errors.New("RECALL_ONNX_MODEL is not set")
	}
	return onnx.New(onnx.Config{
		ModelPath:     modelPath,
		TokenizerPath: os.Getenv("RECALL_ONNX_TOKENIZER"),
	})
}
