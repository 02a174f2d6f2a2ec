package provider

import (
	"context"
)

// Provider is the capability surface the evaluation pipeline needs from an
// embedding/LLM backend. Failures surface as errors that the pipeline
// catches per-job.
type Provider interface {
	// Embed converts text into a dense vector using the named model.
	Embed(ctx context.Context, text string, model string) ([]float64, error)

	// EmbedBatch converts multiple texts in one round trip.
	EmbedBatch(ctx context.Context, texts []string, model string) ([][]float64, error)

	// Judge asks an LLM to score or rewrite content.
	Judge(ctx context.Context, prompt string, model string, temperature float64) (string, error)

	// Name identifies the provider for cache keying.
	Name() string
}
