package provider

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/XiaoConstantine/evoretrieve/pkg/errors"
)

// Local is a deterministic offline provider. Embeddings are built from
// hashed token features so similar texts produce similar vectors, which is
// enough for offline evaluation runs and tests. Judge returns a canned
// acknowledgment.
type Local struct {
	dims int
}

// NewLocal creates a local provider producing vectors of the given
// dimensionality (defaults to 64 when dims <= 0).
func NewLocal(dims int) *Local {
	if dims <= 0 {
		dims = 64
	}
	return &Local{dims: dims}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Embed(ctx context.Context, text string, model string) ([]float64, error) {
	if err := errors.CheckContext(ctx, "embed"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New(errors.InvalidInput, "cannot embed empty text")
	}

	vec := make([]float64, l.dims)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		// Salt the token hash with the model name so different models
		// produce different spaces.
		h := sha256.Sum256([]byte(model + ":" + token))
		for i := 0; i < l.dims; i++ {
			bits := binary.LittleEndian.Uint32(h[(i*4)%28 : (i*4)%28+4])
			// Map to [-1, 1], varying per dimension
			v := float64(bits%10007)/5003.5 - 1
			vec[i] += v * math.Cos(float64(i+1)*float64(h[i%32]))
		}
	}

	// L2-normalize so cosine and dot behave sensibly.
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

func (l *Local) EmbedBatch(ctx context.Context, texts []string, model string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := l.Embed(ctx, text, model)
		if err != nil {
			return nil, errors.WithFields(err, errors.Fields{"index": i})
		}
		out[i] = vec
	}
	return out, nil
}

func (l *Local) Judge(ctx context.Context, prompt string, model string, temperature float64) (string, error) {
	if err := errors.CheckContext(ctx, "judge"); err != nil {
		return "", err
	}
	return fmt.Sprintf("local-judge(%s): ok", model), nil
}
