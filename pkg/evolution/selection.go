package evolution

import (
	"math/rand"
	"sort"

	"github.com/XiaoConstantine/evoretrieve/pkg/genome"
)

// Selection strategy names.
const (
	SelectionTournament = "tournament"
	SelectionElitist    = "elitist"
	SelectionRoulette   = "roulette"
)

// selectParents picks half the population as parents using the configured
// strategy, defaulting to tournament selection.
func (e *Engine) selectParents(population []*genome.Genome) []*genome.Genome {
	count := len(population) / 2
	if count < 1 {
		count = 1
	}

	switch e.config.Selection {
	case SelectionElitist:
		return elitistSelection(population, count)
	case SelectionRoulette:
		return rouletteSelection(population, count, e.rng)
	default:
		return tournamentSelection(population, count, e.config.TournamentSize, e.rng)
	}
}

// tournamentSelection repeatedly samples tournamentSize genomes uniformly
// and keeps the fittest.
func tournamentSelection(population []*genome.Genome, count, tournamentSize int, rng *rand.Rand) []*genome.Genome {
	if tournamentSize < 2 {
		tournamentSize = 2
	}
	selected := make([]*genome.Genome, 0, count)
	for i := 0; i < count; i++ {
		best := population[rng.Intn(len(population))]
		for j := 1; j < tournamentSize; j++ {
			candidate := population[rng.Intn(len(population))]
			if candidate.FitnessOrZero() > best.FitnessOrZero() {
				best = candidate
			}
		}
		selected = append(selected, best)
	}
	return selected
}

// elitistSelection takes the top half by fitness.
func elitistSelection(population []*genome.Genome, count int) []*genome.Genome {
	sorted := sortByFitness(population)
	if count > len(sorted) {
		count = len(sorted)
	}
	return sorted[:count]
}

// rouletteSelection samples with probability proportional to fitness
// share, falling back to uniform sampling when total fitness is zero.
func rouletteSelection(population []*genome.Genome, count int, rng *rand.Rand) []*genome.Genome {
	var total float64
	for _, g := range population {
		total += g.FitnessOrZero()
	}

	selected := make([]*genome.Genome, 0, count)
	if total == 0 {
		for i := 0; i < count; i++ {
			selected = append(selected, population[rng.Intn(len(population))])
		}
		return selected
	}

	for i := 0; i < count; i++ {
		spin := rng.Float64() * total
		var cumulative float64
		for _, g := range population {
			cumulative += g.FitnessOrZero()
			if cumulative >= spin {
				selected = append(selected, g)
				break
			}
		}
	}
	// Floating accumulation can land past the last slot; top up uniformly.
	for len(selected) < count {
		selected = append(selected, population[rng.Intn(len(population))])
	}
	return selected
}

// sortByFitness returns a copy sorted by fitness descending.
func sortByFitness(population []*genome.Genome) []*genome.Genome {
	sorted := make([]*genome.Genome, len(population))
	copy(sorted, population)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FitnessOrZero() > sorted[j].FitnessOrZero()
	})
	return sorted
}
