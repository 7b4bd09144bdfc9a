package core

import "context"

// EmbeddingProvider computes dense vectors for texts. Implementations may
// be remote (Gemini) or deterministic fakes in tests.
type EmbeddingProvider interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
