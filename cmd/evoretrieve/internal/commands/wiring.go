package commands

import (
	"math/rand"
	"time"

	"github.com/XiaoConstantine/evoretrieve/pkg/cache"
	"github.com/XiaoConstantine/evoretrieve/pkg/config"
	"github.com/XiaoConstantine/evoretrieve/pkg/evaluation"
	"github.com/XiaoConstantine/evoretrieve/pkg/evolution"
	"github.com/XiaoConstantine/evoretrieve/pkg/genome"
	"github.com/XiaoConstantine/evoretrieve/pkg/knowledge"
	"github.com/XiaoConstantine/evoretrieve/pkg/logging"
	"github.com/XiaoConstantine/evoretrieve/pkg/provider"
)

// runtime holds the wired components behind one evolution engine.
type runtime struct {
	config  *config.Config
	engine  *evolution.Engine
	closers []func() error
}

// Close releases the runtime's stores and caches in reverse wiring order.
func (r *runtime) Close() {
	logger := logging.GetLogger()
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			logger.Warn(nil, "close failed: %v", err)
		}
	}
}

// setupLogging installs the process-wide logger from config.
func setupLogging(cfg config.LoggingConfig) error {
	outputs := []logging.Output{logging.NewConsoleOutput(true)}
	if cfg.File != "" {
		fileOut, err := logging.NewFileOutput(cfg.File)
		if err != nil {
			return err
		}
		outputs = append(outputs, fileOut)
	}
	logging.SetLogger(logging.NewLogger(logging.Config{
		Severity: logging.ParseSeverity(cfg.Level),
		Outputs:  outputs,
	}))
	return nil
}

// buildRuntime wires config into a ready evolution engine: provider,
// embedding cache, checkpointed evaluator, knowledge store, factory.
func buildRuntime(configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := setupLogging(cfg.Logging); err != nil {
		return nil, err
	}

	rt := &runtime{config: cfg}

	local := provider.NewLocal(cfg.Provider.EmbeddingDims)
	var prov provider.Provider = local
	if cfg.Provider.Name == "anthropic" {
		prov, err = provider.NewAnthropic(cfg.Provider.APIKey, local)
		if err != nil {
			return nil, err
		}
	}

	backend, err := cache.New(cache.Config{
		Type:    cfg.Cache.Type,
		MaxSize: cfg.Cache.MaxSizeBytes,
		Path:    cfg.Cache.Path,
	})
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, backend.Close)

	dataset, err := evaluation.LoadDataset(cfg.Dataset.Path)
	if err != nil {
		rt.Close()
		return nil, err
	}

	checkpoints, err := evaluation.NewSQLiteCheckpointStore(cfg.Storage.CheckpointPath)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, checkpoints.Close)

	executor := evaluation.NewExecutor(evaluation.NewEmbeddingCache(backend, prov))
	evaluator, err := evaluation.NewEvaluator(evaluation.Config{
		Concurrency:      cfg.Evaluation.Concurrency,
		CallTimeout:      cfg.Evaluation.CallTimeout,
		LatencyCeilingMs: cfg.Evaluation.LatencyCeilingMs,
		PenaltyFactor:    cfg.Evaluation.PenaltyFactor,
		Weights:          cfg.Evaluation.Weights,
	}, dataset, executor, checkpoints)
	if err != nil {
		rt.Close()
		return nil, err
	}

	store, err := knowledge.NewSQLiteStore(cfg.Storage.KnowledgePath)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, store.Close)

	space, err := genome.DefaultSpace()
	if err != nil {
		rt.Close()
		return nil, err
	}
	seed := cfg.Evolution.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	factory := genome.NewFactory(space, rand.New(rand.NewSource(seed)))

	engine, err := evolution.NewEngine(cfg.Evolution, factory, evaluator, store, genome.DefaultPresets())
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.engine = engine
	return rt, nil
}
