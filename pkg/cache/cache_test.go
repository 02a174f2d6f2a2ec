package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("defaults to memory", func(t *testing.T) {
		c, err := New(Config{})
		require.NoError(t, err)
		defer c.Close()
		assert.IsType(t, &MemoryCache{}, c)
	})

	t.Run("sqlite backend", func(t *testing.T) {
		c, err := New(Config{Type: "sqlite", Path: ":memory:"})
		require.NoError(t, err)
		defer c.Close()
		assert.IsType(t, &SQLiteCache{}, c)
	})
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		c, err := NewMemoryCache(Config{})
		require.NoError(t, err)
		defer c.Close()

		require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
		got, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("v"), got)

		_, ok, err = c.Get(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("returned value is a copy", func(t *testing.T) {
		c, err := NewMemoryCache(Config{})
		require.NoError(t, err)
		defer c.Close()

		require.NoError(t, c.Set(ctx, "k", []byte("abc"), 0))
		got, _, _ := c.Get(ctx, "k")
		got[0] = 'z'

		again, _, _ := c.Get(ctx, "k")
		assert.Equal(t, []byte("abc"), again)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		c, err := NewMemoryCache(Config{})
		require.NoError(t, err)
		defer c.Close()

		require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Millisecond))
		time.Sleep(5 * time.Millisecond)
		_, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("lru eviction under a byte budget", func(t *testing.T) {
		c, err := NewMemoryCache(Config{MaxSize: 10})
		require.NoError(t, err)
		defer c.Close()

		require.NoError(t, c.Set(ctx, "a", []byte("12345"), 0))
		require.NoError(t, c.Set(ctx, "b", []byte("12345"), 0))

		// Touch "a" so "b" becomes the eviction candidate.
		_, ok, _ := c.Get(ctx, "a")
		require.True(t, ok)

		require.NoError(t, c.Set(ctx, "c", []byte("12345"), 0))

		_, okA, _ := c.Get(ctx, "a")
		_, okB, _ := c.Get(ctx, "b")
		_, okC, _ := c.Get(ctx, "c")
		assert.True(t, okA)
		assert.False(t, okB)
		assert.True(t, okC)
		assert.LessOrEqual(t, c.Stats().Size, int64(10))
	})

	t.Run("delete and clear", func(t *testing.T) {
		c, err := NewMemoryCache(Config{})
		require.NoError(t, err)
		defer c.Close()

		require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
		require.NoError(t, c.Delete(ctx, "k"))
		_, ok, _ := c.Get(ctx, "k")
		assert.False(t, ok)

		require.NoError(t, c.Set(ctx, "k2", []byte("v"), 0))
		require.NoError(t, c.Clear(ctx))
		assert.Equal(t, int64(0), c.Stats().Size)
	})

	t.Run("stats track hits and misses", func(t *testing.T) {
		c, err := NewMemoryCache(Config{})
		require.NoError(t, err)
		defer c.Close()

		require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
		c.Get(ctx, "k")
		c.Get(ctx, "nope")

		stats := c.Stats()
		assert.Equal(t, int64(1), stats.Hits)
		assert.Equal(t, int64(1), stats.Misses)
		assert.Equal(t, int64(1), stats.Sets)
	})
}

func TestSQLiteCache(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip and overwrite", func(t *testing.T) {
		c, err := NewSQLiteCache(Config{Path: ":memory:"})
		require.NoError(t, err)
		defer c.Close()

		require.NoError(t, c.Set(ctx, "k", []byte("v1"), 0))
		require.NoError(t, c.Set(ctx, "k", []byte("v2"), 0))

		got, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("v2"), got)
	})

	t.Run("miss on absent key", func(t *testing.T) {
		c, err := NewSQLiteCache(Config{Path: ":memory:"})
		require.NoError(t, err)
		defer c.Close()

		_, ok, err := c.Get(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		c, err := NewSQLiteCache(Config{Path: ":memory:"})
		require.NoError(t, err)
		defer c.Close()

		require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Millisecond))
		time.Sleep(5 * time.Millisecond)
		_, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("clear", func(t *testing.T) {
		c, err := NewSQLiteCache(Config{Path: ":memory:"})
		require.NoError(t, err)
		defer c.Close()

		require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
		require.NoError(t, c.Clear(ctx))
		_, ok, _ := c.Get(ctx, "k")
		assert.False(t, ok)
	})
}

func TestKeyGenerator(t *testing.T) {
	g := NewKeyGenerator("")

	t.Run("deterministic per triple", func(t *testing.T) {
		k1 := g.EmbeddingKey("hello", "local", "embed-small")
		k2 := g.EmbeddingKey("hello", "local", "embed-small")
		assert.Equal(t, k1, k2)
	})

	t.Run("distinct across text, provider and model", func(t *testing.T) {
		base := g.EmbeddingKey("hello", "local", "embed-small")
		assert.NotEqual(t, base, g.EmbeddingKey("world", "local", "embed-small"))
		assert.NotEqual(t, base, g.EmbeddingKey("hello", "anthropic", "embed-small"))
		assert.NotEqual(t, base, g.EmbeddingKey("hello", "local", "embed-large"))
	})

	t.Run("whitespace is normalized", func(t *testing.T) {
		assert.Equal(t,
			g.EmbeddingKey("hello", "local", "m"),
			g.EmbeddingKey("  hello  ", "local", "m"))
	})
}
