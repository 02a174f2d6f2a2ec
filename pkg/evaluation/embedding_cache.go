package evaluation

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/XiaoConstantine/evoretrieve/pkg/cache"
	"github.com/XiaoConstantine/evoretrieve/pkg/errors"
	"github.com/XiaoConstantine/evoretrieve/pkg/provider"
)

// EmbeddingCache fronts the provider's embedding calls with a shared byte
// cache keyed by (text, provider, model). It is shared across all genomes
// and generations in a run, collapsing the provider call count from
// O(genomes x queries x docs) to O(distinct texts x models).
type EmbeddingCache struct {
	backend  cache.Cache
	keys     *cache.KeyGenerator
	provider provider.Provider
}

// NewEmbeddingCache wraps a provider with the given cache backend.
func NewEmbeddingCache(backend cache.Cache, p provider.Provider) *EmbeddingCache {
	return &EmbeddingCache{
		backend:  backend,
		keys:     cache.NewKeyGenerator(""),
		provider: p,
	}
}

// Embed returns the vector for text under the given model, cache-first.
func (c *EmbeddingCache) Embed(ctx context.Context, text, model string) ([]float64, error) {
	key := c.keys.EmbeddingKey(text, c.provider.Name(), model)

	if data, ok, err := c.backend.Get(ctx, key); err == nil && ok {
		if vec, decErr := decodeVector(data); decErr == nil {
			return vec, nil
		}
		// Corrupt entry; fall through to recompute and overwrite.
	}

	vec, err := c.provider.Embed(ctx, text, model)
	if err != nil {
		return nil, errors.Wrap(err, errors.EmbeddingFailed, "embedding call failed")
	}

	if err := c.backend.Set(ctx, key, encodeVector(vec), 0); err != nil {
		// Cache write failures degrade performance, not correctness.
		return vec, nil
	}
	return vec, nil
}

// Stats exposes the backend's hit/miss statistics.
func (c *EmbeddingCache) Stats() cache.Stats {
	return c.backend.Stats()
}

func encodeVector(vec []float64) []byte {
	data := make([]byte, 8*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint64(data[i*8:], math.Float64bits(v))
	}
	return data
}

func decodeVector(data []byte) ([]float64, error) {
	if len(data)%8 != 0 {
		return nil, errors.New(errors.InvalidInput, "malformed vector encoding")
	}
	vec := make([]float64, len(data)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return vec, nil
}
