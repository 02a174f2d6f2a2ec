package evolution

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/evoretrieve/pkg/cache"
	"github.com/XiaoConstantine/evoretrieve/pkg/evaluation"
	"github.com/XiaoConstantine/evoretrieve/pkg/genome"
	"github.com/XiaoConstantine/evoretrieve/pkg/provider"
)

// stubEvaluator derives fitness deterministically from the gene set, which
// makes engine behavior reproducible without a real pipeline.
type stubEvaluator struct {
	mu    sync.Mutex
	calls int
}

func (s *stubEvaluator) Evaluate(ctx context.Context, g *genome.Genome) (*evaluation.Report, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return &evaluation.Report{VariantID: g.Signature(), Fitness: stubFitness(g)}, nil
}

func stubFitness(g *genome.Genome) float64 {
	topK := g.Genes[genome.GeneTopK].Num
	chunk := g.Genes[genome.GeneChunkSize].Num
	f := 0.4*(topK/20) + 0.4*((chunk-128)/(1024-128))
	if g.Genes[genome.GeneQueryExpansion].Str == "on" {
		f += 0.1
	}
	return f
}

// recordingStore captures knowledge-store traffic.
type recordingStore struct {
	mu       sync.Mutex
	seeds    []*genome.Genome
	recorded []*genome.Genome
}

func (s *recordingStore) GetBestGenomes(ctx context.Context, n int) ([]*genome.Genome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.seeds) {
		n = len(s.seeds)
	}
	return s.seeds[:n], nil
}

func (s *recordingStore) RecordGenome(ctx context.Context, g *genome.Genome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, g)
	return nil
}

func (s *recordingStore) Close() error { return nil }

func testFactory(t *testing.T, seed int64) *genome.Factory {
	t.Helper()
	space, err := genome.DefaultSpace()
	require.NoError(t, err)
	return genome.NewFactory(space, rand.New(rand.NewSource(seed)))
}

func testEngineConfig() Config {
	cfg := DefaultConfig()
	cfg.PopulationSize = 8
	cfg.Generations = 3
	cfg.RandomSeed = 42
	cfg.HistoryTopK = 0
	cfg.TargetFitness = 10 // never reached; the loop runs all generations
	return cfg
}

func TestNewEngine(t *testing.T) {
	factory := testFactory(t, 1)
	eval := &stubEvaluator{}

	t.Run("rejects tiny populations", func(t *testing.T) {
		cfg := testEngineConfig()
		cfg.PopulationSize = 1
		_, err := NewEngine(cfg, factory, eval, nil, nil)
		assert.Error(t, err)
	})

	t.Run("rejects oversized elite count", func(t *testing.T) {
		cfg := testEngineConfig()
		cfg.EliteCount = 5
		_, err := NewEngine(cfg, factory, eval, nil, nil)
		assert.Error(t, err)
	})

	t.Run("rejects zero generations", func(t *testing.T) {
		cfg := testEngineConfig()
		cfg.Generations = 0
		_, err := NewEngine(cfg, factory, eval, nil, nil)
		assert.Error(t, err)
	})

	t.Run("unknown seed preset fails at run", func(t *testing.T) {
		cfg := testEngineConfig()
		cfg.Seeds = []string{"no-such-preset"}
		engine, err := NewEngine(cfg, factory, eval, nil, nil)
		require.NoError(t, err)
		_, err = engine.Run(context.Background())
		assert.Error(t, err)
	})
}

func TestRunPopulationInvariants(t *testing.T) {
	for _, tc := range []struct {
		pop   int
		elite int
	}{
		{4, 0}, {4, 2}, {20, 0}, {20, 2}, {50, 2},
	} {
		cfg := testEngineConfig()
		cfg.PopulationSize = tc.pop
		cfg.EliteCount = tc.elite

		engine, err := NewEngine(cfg, testFactory(t, int64(tc.pop)), &stubEvaluator{}, nil, nil)
		require.NoError(t, err)

		result, err := engine.Run(context.Background())
		require.NoError(t, err)
		require.Len(t, result.Generations, cfg.Generations)
		for _, gen := range result.Generations {
			assert.Len(t, gen.Population, tc.pop,
				"population size must hold at pop=%d elite=%d", tc.pop, tc.elite)
		}
	}
}

func TestRunProgress(t *testing.T) {
	cfg := testEngineConfig()
	cfg.EliteCount = 2

	engine, err := NewEngine(cfg, testFactory(t, 7), &stubEvaluator{}, nil, nil)
	require.NoError(t, err)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	t.Run("best fitness never regresses with elitism", func(t *testing.T) {
		for i := 1; i < len(result.Generations); i++ {
			assert.GreaterOrEqual(t,
				result.Generations[i].BestFitness,
				result.Generations[i-1].BestFitness)
		}
	})

	t.Run("every genome is counted once", func(t *testing.T) {
		assert.GreaterOrEqual(t, result.TotalEvaluations, cfg.PopulationSize)
	})

	t.Run("baseline comparison is populated", func(t *testing.T) {
		baseline, err := testFactory(t, 1).FromGenes("baseline", genome.DefaultPresets()["baseline"])
		require.NoError(t, err)
		assert.InDelta(t, stubFitness(baseline), result.BaselineFitness, 1e-9)
		assert.GreaterOrEqual(t,
			result.BestGenome.FitnessOrZero(),
			result.BaselineFitness*(1+result.ImprovementOverBaseline)-1e-9)
	})

	t.Run("best genome and report are sealed", func(t *testing.T) {
		require.NotNil(t, result.BestGenome)
		assert.True(t, result.BestGenome.Evaluated())
		require.NotNil(t, result.BestReport)
		assert.Equal(t, result.BestGenome.Signature(), result.BestReport.VariantID)
		assert.NotEmpty(t, result.EvolutionID)
	})
}

func TestRunEarlyStop(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Generations = 10
	cfg.TargetFitness = 0.01 // any evaluated population satisfies this

	engine, err := NewEngine(cfg, testFactory(t, 9), &stubEvaluator{}, nil, nil)
	require.NoError(t, err)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Generations, 1)
}

func TestRunSeedsAndHistory(t *testing.T) {
	factory := testFactory(t, 13)

	t.Run("seed presets join generation zero", func(t *testing.T) {
		cfg := testEngineConfig()
		cfg.Seeds = []string{"baseline", "dense-large"}

		engine, err := NewEngine(cfg, factory, &stubEvaluator{}, nil, nil)
		require.NoError(t, err)
		result, err := engine.Run(context.Background())
		require.NoError(t, err)

		names := map[string]bool{}
		for _, g := range result.Generations[0].Population {
			names[g.Name] = true
		}
		assert.True(t, names["baseline"])
		assert.True(t, names["dense-large"])
	})

	t.Run("historical genomes seed the population", func(t *testing.T) {
		historical := factory.CreateRandom(0)
		store := &recordingStore{seeds: []*genome.Genome{historical}}

		cfg := testEngineConfig()
		cfg.HistoryTopK = 1

		engine, err := NewEngine(cfg, factory, &stubEvaluator{}, store, nil)
		require.NoError(t, err)
		result, err := engine.Run(context.Background())
		require.NoError(t, err)

		found := false
		for _, g := range result.Generations[0].Population {
			if g.Signature() == historical.Signature() {
				found = true
			}
		}
		assert.True(t, found)
	})

	t.Run("best genome is recorded to the store", func(t *testing.T) {
		store := &recordingStore{}
		engine, err := NewEngine(testEngineConfig(), factory, &stubEvaluator{}, store, nil)
		require.NoError(t, err)

		result, err := engine.Run(context.Background())
		require.NoError(t, err)
		require.Len(t, store.recorded, 1)
		assert.Equal(t, result.BestGenome.Signature(), store.recorded[0].Signature())
	})
}

func TestRunCanceledContext(t *testing.T) {
	engine, err := NewEngine(testEngineConfig(), testFactory(t, 3), &stubEvaluator{}, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.Run(ctx)
	assert.Error(t, err)
}

func TestRunEndToEndWithRealPipeline(t *testing.T) {
	dataset := &evaluation.Dataset{
		Documents: []evaluation.Document{
			{ID: "d1", Text: "go concurrency patterns with goroutines and channels"},
			{ID: "d2", Text: "cooking pasta with tomato sauce and fresh basil"},
			{ID: "d3", Text: "distributed systems consensus with raft leader election"},
		},
		Queries: []evaluation.Query{
			{ID: "q1", Text: "goroutines and channels", Relevant: map[string]float64{"d1": 1}},
			{ID: "q2", Text: "raft consensus election", Relevant: map[string]float64{"d3": 1}},
			{ID: "q3", Text: "tomato pasta sauce", Relevant: map[string]float64{"d2": 1}},
			{ID: "q4", Text: "leader election in distributed systems", Relevant: map[string]float64{"d3": 1}},
			{ID: "q5", Text: "concurrency with channels", Relevant: map[string]float64{"d1": 1}},
		},
	}

	backend, err := cache.NewMemoryCache(cache.Config{})
	require.NoError(t, err)
	defer backend.Close()

	checkpoints, err := evaluation.NewSQLiteCheckpointStore(":memory:")
	require.NoError(t, err)
	defer checkpoints.Close()

	executor := evaluation.NewExecutor(
		evaluation.NewEmbeddingCache(backend, provider.NewLocal(32)))
	evaluator, err := evaluation.NewEvaluator(evaluation.DefaultConfig(), dataset, executor, checkpoints)
	require.NoError(t, err)

	cfg := testEngineConfig()
	engine, err := NewEngine(cfg, testFactory(t, 42), evaluator, nil, nil)
	require.NoError(t, err)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.TotalEvaluations, cfg.PopulationSize)
	require.NotNil(t, result.BestGenome)
	assert.Greater(t, result.BestGenome.FitnessOrZero(), 0.0)
	assert.Greater(t, result.BaselineFitness, 0.0)
	for i := 1; i < len(result.Generations); i++ {
		assert.GreaterOrEqual(t,
			result.Generations[i].BestFitness+1e-9,
			result.Generations[i-1].BestFitness)
	}
}
