package genome

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Genome encodes one retrieval strategy configuration. It is immutable once
// created except for Fitness, which evaluation sets exactly once.
type Genome struct {
	ID               string               `json:"id"`
	Name             string               `json:"name"`
	Genes            map[string]GeneValue `json:"genes"`
	Generation       int                  `json:"generation"`
	ParentIDs        []string             `json:"parent_ids,omitempty"`
	MutationsApplied []string             `json:"mutations_applied,omitempty"`
	Fitness          *float64             `json:"fitness,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
}

// SetFitness records the evaluated fitness. It is a no-op if fitness has
// already been set.
func (g *Genome) SetFitness(f float64) {
	if g.Fitness != nil {
		return
	}
	v := f
	g.Fitness = &v
}

// FitnessOrZero returns the recorded fitness, or 0 when unevaluated.
func (g *Genome) FitnessOrZero() float64 {
	if g.Fitness == nil {
		return 0
	}
	return *g.Fitness
}

// Evaluated reports whether fitness has been set.
func (g *Genome) Evaluated() bool {
	return g.Fitness != nil
}

// Signature returns a canonical hash of the gene set. Genomes with identical
// genes share a signature regardless of id, name or lineage, which is what
// the evaluation cache and knowledge store key on.
func (g *Genome) Signature() string {
	names := make([]string, 0, len(g.Genes))
	for name := range g.Genes {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		v := g.Genes[name]
		if v.Kind == Categorical {
			fmt.Fprintf(&b, "%s=c:%s|", name, v.Str)
		} else {
			fmt.Fprintf(&b, "%s=n:%.9g|", name, v.Num)
		}
	}

	h := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(h[:16])
}

// Clone returns a deep copy with a fresh id, cleared fitness and the given
// generation. Lineage points at the source genome.
func (g *Genome) Clone(generation int) *Genome {
	genes := make(map[string]GeneValue, len(g.Genes))
	for k, v := range g.Genes {
		genes[k] = v
	}
	return &Genome{
		ID:         newID(),
		Name:       g.Name,
		Genes:      genes,
		Generation: generation,
		ParentIDs:  []string{g.ID},
		CreatedAt:  time.Now(),
	}
}

// Reseed returns a copy with a fresh id, cleared fitness and no lineage,
// used when re-introducing historical genomes into a new run.
func (g *Genome) Reseed() *Genome {
	genes := make(map[string]GeneValue, len(g.Genes))
	for k, v := range g.Genes {
		genes[k] = v
	}
	return &Genome{
		ID:         newID(),
		Name:       g.Name,
		Genes:      genes,
		Generation: 0,
		CreatedAt:  time.Now(),
	}
}

func newID() string {
	return uuid.New().String()
}
