package evolution

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/XiaoConstantine/evoretrieve/pkg/errors"
	"github.com/XiaoConstantine/evoretrieve/pkg/evaluation"
	"github.com/XiaoConstantine/evoretrieve/pkg/genome"
	"github.com/XiaoConstantine/evoretrieve/pkg/knowledge"
	"github.com/XiaoConstantine/evoretrieve/pkg/logging"
)

// FitnessEvaluator measures a genome. Implemented by evaluation.Evaluator;
// abstracted so engine tests can stub fitness directly.
type FitnessEvaluator interface {
	Evaluate(ctx context.Context, g *genome.Genome) (*evaluation.Report, error)
}

// Config controls one evolution run.
type Config struct {
	PopulationSize int     `yaml:"population_size"`
	Generations    int     `yaml:"generations"`
	MutationRate   float64 `yaml:"mutation_rate"`
	CrossoverRate  float64 `yaml:"crossover_rate"`
	EliteCount     int     `yaml:"elite_count"`
	TournamentSize int     `yaml:"tournament_size"`

	// Selection is one of tournament, elitist, roulette.
	Selection string `yaml:"selection"`

	// Seeds names the presets placed into the initial population. The
	// preset named BaselineSeed is also the baseline for improvement
	// measurement.
	Seeds []string `yaml:"seeds"`

	// HistoryTopK historical genomes from the knowledge store join the
	// initial population, re-keyed with fresh ids and cleared fitness.
	HistoryTopK int `yaml:"history_top_k"`

	// TargetFitness stops the run early once the best genome reaches it.
	TargetFitness float64 `yaml:"target_fitness"`

	// RandomSeed fixes the run's randomness; 0 seeds from the clock.
	RandomSeed int64 `yaml:"random_seed"`
}

// BaselineSeed is the preset name evaluated for improvement measurement.
const BaselineSeed = "baseline"

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		PopulationSize: 20,
		Generations:    10,
		MutationRate:   0.2,
		CrossoverRate:  0.8,
		EliteCount:     2,
		TournamentSize: 3,
		Selection:      SelectionTournament,
		Seeds:          []string{BaselineSeed},
		HistoryTopK:    3,
		TargetFitness:  0.95,
	}
}

// Engine runs the generational loop: initialize, evaluate, select,
// reproduce, with elitism and per-generation recording. The loop is
// strictly sequential across generations; concurrency lives inside the
// evaluator's worker pool.
type Engine struct {
	config    Config
	factory   *genome.Factory
	evaluator FitnessEvaluator
	store     knowledge.Store // may be nil
	presets   map[string]map[string]genome.GeneValue
	rng       *rand.Rand
}

// NewEngine creates an evolution engine. store may be nil when no
// knowledge base is configured.
func NewEngine(config Config, factory *genome.Factory, evaluator FitnessEvaluator, store knowledge.Store, presets map[string]map[string]genome.GeneValue) (*Engine, error) {
	if config.PopulationSize < 2 {
		return nil, errors.New(errors.ValidationFailed, "population size must be at least 2")
	}
	if config.EliteCount*2 > config.PopulationSize {
		return nil, errors.WithFields(
			errors.New(errors.ValidationFailed, "elite count cannot exceed half the population"),
			errors.Fields{"elite_count": config.EliteCount, "population_size": config.PopulationSize},
		)
	}
	if config.Generations < 1 {
		return nil, errors.New(errors.ValidationFailed, "at least one generation is required")
	}
	if presets == nil {
		presets = genome.DefaultPresets()
	}
	if config.TargetFitness <= 0 {
		config.TargetFitness = DefaultConfig().TargetFitness
	}
	if config.TournamentSize < 2 {
		config.TournamentSize = DefaultConfig().TournamentSize
	}

	seed := config.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Engine{
		config:    config,
		factory:   factory,
		evaluator: evaluator,
		store:     store,
		presets:   presets,
		rng:       rand.New(rand.NewSource(seed)),
	}, nil
}

// Run executes the full evolution and returns its immutable result.
func (e *Engine) Run(ctx context.Context) (*EvolutionResult, error) {
	logger := logging.GetLogger()
	result := &EvolutionResult{
		EvolutionID: uuid.New().String(),
		Timestamp:   time.Now(),
	}

	population, err := e.initializePopulation(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "evolution %s started: population=%d generations=%d",
		result.EvolutionID, len(population), e.config.Generations)

	for gen := 0; gen < e.config.Generations; gen++ {
		if err := errors.CheckContext(ctx, "evolution run"); err != nil {
			return nil, err
		}

		evaluated, err := e.evaluatePopulation(ctx, population, result)
		if err != nil {
			return nil, err
		}

		record := e.recordGeneration(gen, evaluated)
		result.Generations = append(result.Generations, record)
		logger.Info(ctx, "generation %d: best=%.4f avg=%.4f diversity=%.3f",
			gen, record.BestFitness, record.AvgFitness, record.Diversity)

		// Early stop is checked after evaluation and before reproduction
		// so a satisfied target never costs a wasted reproduction cycle.
		if record.BestFitness >= e.config.TargetFitness {
			logger.Info(ctx, "early stop: best fitness %.4f reached target %.4f",
				record.BestFitness, e.config.TargetFitness)
			population = evaluated
			break
		}
		if gen == e.config.Generations-1 {
			population = evaluated
			break
		}

		parents := e.selectParents(evaluated)
		population = e.reproduce(evaluated, parents)
	}

	return e.finalize(ctx, population, result)
}

// initializePopulation assembles seeds, historical genomes and random
// fill.
func (e *Engine) initializePopulation(ctx context.Context) ([]*genome.Genome, error) {
	logger := logging.GetLogger()
	population := make([]*genome.Genome, 0, e.config.PopulationSize)

	for _, name := range e.config.Seeds {
		genes, ok := e.presets[name]
		if !ok {
			return nil, errors.WithFields(
				errors.New(errors.InvalidInput, "unknown seed preset"),
				errors.Fields{"preset": name},
			)
		}
		g, err := e.factory.FromGenes(name, genes)
		if err != nil {
			return nil, err
		}
		population = append(population, g)
	}

	if e.store != nil && e.config.HistoryTopK > 0 {
		historical, err := e.store.GetBestGenomes(ctx, e.config.HistoryTopK)
		if err != nil {
			// Historical seeding is an optimization; a cold or broken
			// knowledge store must not fail the run.
			logger.Warn(ctx, "failed to load historical genomes: %v", err)
		}
		for _, g := range historical {
			if len(population) >= e.config.PopulationSize {
				break
			}
			population = append(population, g)
		}
	}

	for len(population) < e.config.PopulationSize {
		population = append(population, e.factory.CreateRandom(0))
	}
	return population[:e.config.PopulationSize], nil
}

// evaluatePopulation measures every unevaluated genome in order. Genome
// fitness is set exactly once; already-evaluated elites are skipped.
func (e *Engine) evaluatePopulation(ctx context.Context, population []*genome.Genome, result *EvolutionResult) ([]*genome.Genome, error) {
	for _, g := range population {
		if g.Evaluated() {
			continue
		}
		report, err := e.evaluator.Evaluate(ctx, g)
		if err != nil {
			return nil, errors.WithFields(
				errors.Wrap(err, errors.EvaluationFailed, "generation evaluation failed"),
				errors.Fields{"genome_id": g.ID},
			)
		}
		g.SetFitness(report.Fitness)
		result.TotalEvaluations++
	}
	return population, nil
}

// recordGeneration builds the append-only record for a completed
// generation.
func (e *Engine) recordGeneration(gen int, population []*genome.Genome) GenerationResult {
	snapshot := make([]*genome.Genome, len(population))
	copy(snapshot, population)

	best := 0.0
	var sum float64
	for i, g := range population {
		f := g.FitnessOrZero()
		sum += f
		if i == 0 || f > best {
			best = f
		}
	}
	return GenerationResult{
		Generation:  gen,
		Population:  snapshot,
		BestFitness: best,
		AvgFitness:  sum / float64(len(population)),
		Diversity:   e.factory.Diversity(population),
	}
}

// reproduce builds the next generation: elites carried unchanged, the
// remaining slots filled by offspring from shuffled parent pairs.
func (e *Engine) reproduce(population, parents []*genome.Genome) []*genome.Genome {
	next := make([]*genome.Genome, 0, e.config.PopulationSize)

	// Elitism: the top genomes survive as-is, fitness intact.
	if e.config.EliteCount > 0 {
		sorted := sortByFitness(population)
		n := e.config.EliteCount
		if n > len(sorted) {
			n = len(sorted)
		}
		next = append(next, sorted[:n]...)
	}

	shuffled := make([]*genome.Genome, len(parents))
	copy(shuffled, parents)
	e.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	var offspring []*genome.Genome
	for i := 0; i+1 < len(shuffled); i += 2 {
		p1, p2 := shuffled[i], shuffled[i+1]
		if e.rng.Float64() < e.config.CrossoverRate {
			c1, c2 := e.factory.Crossover(p1, p2)
			offspring = append(offspring, c1, c2)
		} else {
			offspring = append(offspring,
				e.factory.Mutate(p1, e.config.MutationRate),
				e.factory.Mutate(p2, e.config.MutationRate))
		}
	}
	if len(shuffled)%2 == 1 {
		offspring = append(offspring, e.factory.Mutate(shuffled[len(shuffled)-1], e.config.MutationRate))
	}

	// Independent mutation pass over all offspring.
	for i, child := range offspring {
		offspring[i] = e.factory.MutationPass(child, e.config.MutationRate)
	}

	// Fill remaining slots, generating extra offspring from random
	// parents if pairing produced too few, truncating if too many.
	for len(next) < e.config.PopulationSize {
		if len(offspring) > 0 {
			next = append(next, offspring[0])
			offspring = offspring[1:]
			continue
		}
		parent := shuffled[e.rng.Intn(len(shuffled))]
		next = append(next, e.factory.Mutate(parent, e.config.MutationRate))
	}
	return next[:e.config.PopulationSize]
}

// finalize computes the baseline comparison, persists the best genome and
// seals the result.
func (e *Engine) finalize(ctx context.Context, population []*genome.Genome, result *EvolutionResult) (*EvolutionResult, error) {
	logger := logging.GetLogger()

	sorted := sortByFitness(population)
	result.BestGenome = sorted[0]

	// Baseline comparison is cache-aware: if the baseline was part of the
	// population its signature hits the evaluation cache.
	if genes, ok := e.presets[BaselineSeed]; ok {
		baseline, err := e.factory.FromGenes(BaselineSeed, genes)
		if err != nil {
			return nil, err
		}
		report, err := e.evaluator.Evaluate(ctx, baseline)
		if err != nil {
			return nil, errors.Wrap(err, errors.EvaluationFailed, "baseline evaluation failed")
		}
		result.BaselineFitness = report.Fitness
		if report.Fitness > 0 {
			result.ImprovementOverBaseline =
				(result.BestGenome.FitnessOrZero() - report.Fitness) / report.Fitness
		}
	}

	if report, err := e.evaluator.Evaluate(ctx, result.BestGenome); err == nil {
		result.BestReport = report
	}

	if e.store != nil {
		if err := e.store.RecordGenome(ctx, result.BestGenome); err != nil {
			logger.Warn(ctx, "failed to record best genome: %v", err)
		}
	}

	logger.Info(ctx, "evolution %s finished: best=%.4f improvement=%.2f%% evaluations=%d",
		result.EvolutionID, result.BestGenome.FitnessOrZero(),
		result.ImprovementOverBaseline*100, result.TotalEvaluations)
	return result, nil
}
