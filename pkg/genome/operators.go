package genome

import (
	"math/rand"
	"time"

	"github.com/XiaoConstantine/evoretrieve/pkg/errors"
)

// Factory creates and transforms genomes over a validated gene space. All
// randomness flows through the injected source so runs are reproducible
// under a fixed seed.
type Factory struct {
	space *Space
	rng   *rand.Rand
}

// NewFactory creates a genome factory over the given space.
func NewFactory(space *Space, rng *rand.Rand) *Factory {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Factory{space: space, rng: rng}
}

// Space returns the factory's gene space.
func (f *Factory) Space() *Space {
	return f.space
}

// CreateRandom samples each gene independently from its domain.
func (f *Factory) CreateRandom(generation int) *Genome {
	genes := make(map[string]GeneValue, len(f.space.names))
	for _, name := range f.space.names {
		genes[name] = f.space.domains[name].Sample(f.rng)
	}
	return &Genome{
		ID:         newID(),
		Name:       "random",
		Genes:      genes,
		Generation: generation,
		CreatedAt:  time.Now(),
	}
}

// FromGenes builds a named genome from an explicit gene map, validating it
// against the space. Used for caller-supplied presets.
func (f *Factory) FromGenes(name string, genes map[string]GeneValue) (*Genome, error) {
	if err := f.space.ValidateGenes(genes); err != nil {
		return nil, errors.WithFields(err, errors.Fields{"preset": name})
	}
	copied := make(map[string]GeneValue, len(genes))
	for k, v := range genes {
		copied[k] = v
	}
	return &Genome{
		ID:        newID(),
		Name:      name,
		Genes:     copied,
		CreatedAt: time.Now(),
	}, nil
}

// Mutate applies per-gene mutation with independent probability rate and
// returns a new genome one generation after the parent. Mutated gene names
// are recorded on the offspring.
func (f *Factory) Mutate(parent *Genome, rate float64) *Genome {
	genes := make(map[string]GeneValue, len(parent.Genes))
	var mutated []string
	for _, name := range f.space.names {
		current := parent.Genes[name]
		if f.rng.Float64() < rate {
			genes[name] = f.space.domains[name].Perturb(current, f.rng)
			mutated = append(mutated, name)
		} else {
			genes[name] = current
		}
	}
	return &Genome{
		ID:               newID(),
		Name:             parent.Name,
		Genes:            genes,
		Generation:       parent.Generation + 1,
		ParentIDs:        []string{parent.ID},
		MutationsApplied: mutated,
		CreatedAt:        time.Now(),
	}
}

// MutationPass applies the same per-gene mutation as Mutate but preserves
// the genome's generation and lineage. Used for the independent mutation
// pass all offspring receive after reproduction.
func (f *Factory) MutationPass(g *Genome, rate float64) *Genome {
	genes := make(map[string]GeneValue, len(g.Genes))
	mutated := append([]string{}, g.MutationsApplied...)
	for _, name := range f.space.names {
		current := g.Genes[name]
		if f.rng.Float64() < rate {
			genes[name] = f.space.domains[name].Perturb(current, f.rng)
			mutated = append(mutated, name)
		} else {
			genes[name] = current
		}
	}
	return &Genome{
		ID:               newID(),
		Name:             g.Name,
		Genes:            genes,
		Generation:       g.Generation,
		ParentIDs:        append([]string{}, g.ParentIDs...),
		MutationsApplied: mutated,
		CreatedAt:        time.Now(),
	}
}

// Crossover performs uniform crossover: for each gene the two parents'
// values are swapped with probability 0.5, producing two complementary
// children. Every gene value from both parents survives in exactly one
// child.
func (f *Factory) Crossover(parentA, parentB *Genome) (*Genome, *Genome) {
	genesA := make(map[string]GeneValue, len(parentA.Genes))
	genesB := make(map[string]GeneValue, len(parentB.Genes))
	for _, name := range f.space.names {
		if f.rng.Float64() < 0.5 {
			genesA[name] = parentB.Genes[name]
			genesB[name] = parentA.Genes[name]
		} else {
			genesA[name] = parentA.Genes[name]
			genesB[name] = parentB.Genes[name]
		}
	}

	generation := parentA.Generation
	if parentB.Generation > generation {
		generation = parentB.Generation
	}
	generation++

	parents := []string{parentA.ID, parentB.ID}
	now := time.Now()

	childA := &Genome{
		ID:         newID(),
		Name:       parentA.Name,
		Genes:      genesA,
		Generation: generation,
		ParentIDs:  parents,
		CreatedAt:  now,
	}
	childB := &Genome{
		ID:         newID(),
		Name:       parentB.Name,
		Genes:      genesB,
		Generation: generation,
		ParentIDs:  append([]string{}, parents...),
		CreatedAt:  now,
	}
	return childA, childB
}

// Distance returns the mean per-gene normalized distance between two
// genomes, in [0,1].
func (f *Factory) Distance(a, b *Genome) float64 {
	if len(f.space.names) == 0 {
		return 0
	}
	var sum float64
	for _, name := range f.space.names {
		sum += f.space.domains[name].Distance(a.Genes[name], b.Genes[name])
	}
	return sum / float64(len(f.space.names))
}

// Diversity returns the mean pairwise distance over all unordered pairs in
// the population; 0 for populations smaller than 2.
func (f *Factory) Diversity(population []*Genome) float64 {
	if len(population) < 2 {
		return 0
	}
	var sum float64
	var pairs int
	for i := 0; i < len(population); i++ {
		for j := i + 1; j < len(population); j++ {
			sum += f.Distance(population[i], population[j])
			pairs++
		}
	}
	return sum / float64(pairs)
}
