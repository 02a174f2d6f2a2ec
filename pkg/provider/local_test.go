package provider

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEmbed(t *testing.T) {
	ctx := context.Background()
	local := NewLocal(32)

	t.Run("deterministic per text and model", func(t *testing.T) {
		v1, err := local.Embed(ctx, "the quick brown fox", "embed-small")
		require.NoError(t, err)
		v2, err := local.Embed(ctx, "the quick brown fox", "embed-small")
		require.NoError(t, err)
		assert.Equal(t, v1, v2)
	})

	t.Run("model salts the space", func(t *testing.T) {
		v1, err := local.Embed(ctx, "hello world", "embed-small")
		require.NoError(t, err)
		v2, err := local.Embed(ctx, "hello world", "embed-large")
		require.NoError(t, err)
		assert.NotEqual(t, v1, v2)
	})

	t.Run("vectors are L2-normalized", func(t *testing.T) {
		vec, err := local.Embed(ctx, "some text to embed", "m")
		require.NoError(t, err)
		require.Len(t, vec, 32)

		var norm float64
		for _, v := range vec {
			norm += v * v
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
	})

	t.Run("empty text is rejected", func(t *testing.T) {
		_, err := local.Embed(ctx, "   ", "m")
		assert.Error(t, err)
	})

	t.Run("canceled context is surfaced", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := local.Embed(canceled, "text", "m")
		assert.Error(t, err)
	})

	t.Run("dims default to 64", func(t *testing.T) {
		d := NewLocal(0)
		vec, err := d.Embed(ctx, "text", "m")
		require.NoError(t, err)
		assert.Len(t, vec, 64)
	})
}

func TestLocalEmbedBatch(t *testing.T) {
	ctx := context.Background()
	local := NewLocal(16)

	vecs, err := local.EmbedBatch(ctx, []string{"one", "two"}, "m")
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.NotEqual(t, vecs[0], vecs[1])

	_, err = local.EmbedBatch(ctx, []string{"one", ""}, "m")
	assert.Error(t, err)
}

func TestLocalJudge(t *testing.T) {
	local := NewLocal(16)
	out, err := local.Judge(context.Background(), "rate this", "judge-model", 0)
	require.NoError(t, err)
	assert.Contains(t, out, "judge-model")
	assert.Equal(t, "local", local.Name())
}
