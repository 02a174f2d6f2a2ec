package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// KeyGenerator derives deterministic cache keys for embedding requests.
// Many strategies in one run request embeddings for identical
// (text, provider, model) triples; keying on the triple collapses those
// into a single provider call.
type KeyGenerator struct {
	prefix string
}

// NewKeyGenerator creates a key generator with the given prefix.
func NewKeyGenerator(prefix string) *KeyGenerator {
	if prefix == "" {
		prefix = "evoretrieve_"
	}
	return &KeyGenerator{prefix: prefix}
}

// EmbeddingKey creates a cache key for one embedding request.
func (g *KeyGenerator) EmbeddingKey(text, providerName, modelName string) string {
	normalized := strings.TrimSpace(text)
	keyData := fmt.Sprintf("%s|%s|%s", providerName, modelName, normalized)

	h := sha256.New()
	h.Write([]byte(keyData))
	hash := hex.EncodeToString(h.Sum(nil))

	return fmt.Sprintf("%semb_%s_%s", g.prefix, modelName, hash[:16])
}
