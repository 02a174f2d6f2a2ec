package evaluation

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/XiaoConstantine/evoretrieve/pkg/errors"
	"github.com/XiaoConstantine/evoretrieve/pkg/genome"
	"github.com/XiaoConstantine/evoretrieve/pkg/logging"
	"github.com/XiaoConstantine/evoretrieve/pkg/metrics"
)

// Config controls the fitness evaluation pipeline.
type Config struct {
	// Concurrency bounds the worker pool (default 5).
	Concurrency int

	// CallTimeout is applied per job; a timed-out job is a failed job.
	CallTimeout time.Duration

	// LatencyCeilingMs is the soft latency constraint. When the mean job
	// latency exceeds it, fitness is multiplied by PenaltyFactor.
	LatencyCeilingMs float64

	// PenaltyFactor applied when the ceiling is exceeded (default 0.8).
	PenaltyFactor float64

	// Weights maps metric names to their share of fitness. Defaults to
	// equal weight over ndcg@10, recall@10, mrr and map@10.
	Weights map[string]float64
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:      5,
		CallTimeout:      30 * time.Second,
		LatencyCeilingMs: 2000,
		PenaltyFactor:    0.8,
		Weights: map[string]float64{
			MetricNDCG10:   0.25,
			MetricRecall10: 0.25,
			MetricMRR:      0.25,
			MetricMAP10:    0.25,
		},
	}
}

// Report is the aggregated outcome of evaluating one variant.
type Report struct {
	VariantID      string             `json:"variant_id"`
	Fitness        float64            `json:"fitness"`
	Metrics        map[string]float64 `json:"metrics"`
	LatencyP50Ms   float64            `json:"latency_p50_ms"`
	LatencyP95Ms   float64            `json:"latency_p95_ms"`
	LatencyP99Ms   float64            `json:"latency_p99_ms"`
	TotalTokens    int                `json:"total_tokens"`
	EstimatedCost  float64            `json:"estimated_cost"`
	Succeeded      int                `json:"succeeded"`
	Failed         int                `json:"failed"`
	PenaltyApplied bool               `json:"penalty_applied"`
}

// Evaluator turns a genome into a measured fitness by running one job per
// labeled query through a bounded worker pool, with checkpointed resume
// and a per-signature evaluation cache.
type Evaluator struct {
	config      Config
	dataset     *Dataset
	executor    *Executor
	checkpoints CheckpointStore

	// evalCache short-circuits repeat evaluations of identical gene sets.
	// Read-then-write per signature; a rare racing recompute is tolerated
	// (fitness is deterministic for fixed data), so no lock is held across
	// the evaluation itself.
	evalMu    sync.RWMutex
	evalCache map[string]*Report

	// jobsSubmitted counts jobs actually executed (not served from
	// checkpoints or the evaluation cache).
	jobsSubmitted atomic.Int64
}

// NewEvaluator creates an evaluator over the dataset.
func NewEvaluator(config Config, dataset *Dataset, executor *Executor, checkpoints CheckpointStore) (*Evaluator, error) {
	if err := dataset.Validate(); err != nil {
		return nil, err
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 5
	}
	if config.PenaltyFactor <= 0 {
		config.PenaltyFactor = 0.8
	}
	if len(config.Weights) == 0 {
		config.Weights = DefaultConfig().Weights
	}
	return &Evaluator{
		config:      config,
		dataset:     dataset,
		executor:    executor,
		checkpoints: checkpoints,
		evalCache:   make(map[string]*Report),
	}, nil
}

// JobsSubmitted returns the number of jobs actually executed so far.
func (e *Evaluator) JobsSubmitted() int64 {
	return e.jobsSubmitted.Load()
}

// SeedCache pre-populates the evaluation cache, e.g. from a prior run's
// recorded reports.
func (e *Evaluator) SeedCache(reports map[string]*Report) {
	e.evalMu.Lock()
	defer e.evalMu.Unlock()
	for sig, r := range reports {
		e.evalCache[sig] = r
	}
}

// Evaluate computes the fitness report for a genome. Identical gene
// signatures are evaluated at most once per run; completed jobs found in
// the checkpoint store are not re-executed.
func (e *Evaluator) Evaluate(ctx context.Context, g *genome.Genome) (*Report, error) {
	logger := logging.GetLogger()
	sig := g.Signature()

	e.evalMu.RLock()
	cached, ok := e.evalCache[sig]
	e.evalMu.RUnlock()
	if ok {
		logger.Debug(ctx, "evaluation cache hit for variant %s", sig)
		return cached, nil
	}

	if err := errors.CheckContext(ctx, "evaluate"); err != nil {
		return nil, err
	}

	results, failed, err := e.runJobs(ctx, sig, g)
	if err != nil {
		return nil, err
	}

	report := e.aggregate(sig, results, failed)

	e.evalMu.Lock()
	e.evalCache[sig] = report
	e.evalMu.Unlock()

	logger.Info(ctx, "evaluated variant %s: fitness=%.4f succeeded=%d failed=%d",
		sig, report.Fitness, report.Succeeded, report.Failed)
	return report, nil
}

// runJobs executes one job per query through the worker pool, consulting
// the checkpoint store first so interrupted runs resume without
// recomputation.
func (e *Evaluator) runJobs(ctx context.Context, variantID string, g *genome.Genome) ([]*JobResult, int, error) {
	logger := logging.GetLogger()

	var mu sync.Mutex
	var results []*JobResult
	failed := 0

	var pending []Query
	for _, q := range e.dataset.Queries {
		rec, err := e.checkpoints.Get(ctx, variantID, q.ID)
		if err != nil {
			return nil, 0, err
		}
		if rec != nil && rec.Status == StatusDone {
			var jr JobResult
			if decErr := json.Unmarshal(rec.Result, &jr); decErr == nil {
				results = append(results, &jr)
				continue
			}
			// Unreadable payload: re-run the job rather than losing it.
		}
		pending = append(pending, q)
	}

	p := pool.New().WithMaxGoroutines(e.config.Concurrency)
	for _, q := range pending {
		q := q
		p.Go(func() {
			jobCtx := ctx
			var cancel context.CancelFunc
			if e.config.CallTimeout > 0 {
				jobCtx, cancel = context.WithTimeout(ctx, e.config.CallTimeout)
				defer cancel()
			}

			e.jobsSubmitted.Add(1)
			if err := e.checkpoints.Mark(jobCtx, Record{
				VariantID: variantID, QueryID: q.ID, Status: StatusPending,
			}); err != nil {
				logger.Warn(jobCtx, "failed to mark job pending: %v", err)
			}

			jr, err := e.executor.RunQuery(jobCtx, g, q, e.dataset.Documents)
			if err != nil {
				// Single-query failures never abort the variant; record
				// and continue with the remaining jobs.
				logger.Warn(jobCtx, "job failed: variant=%s query=%s: %v", variantID, q.ID, err)
				if markErr := e.checkpoints.Mark(context.WithoutCancel(jobCtx), Record{
					VariantID: variantID, QueryID: q.ID,
					Status: StatusFailed, Error: err.Error(),
				}); markErr != nil {
					logger.Error(jobCtx, "failed to checkpoint job failure: %v", markErr)
				}
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}

			payload, _ := json.Marshal(jr)
			if markErr := e.checkpoints.Mark(context.WithoutCancel(jobCtx), Record{
				VariantID: variantID, QueryID: q.ID,
				Status: StatusDone, Result: payload,
			}); markErr != nil {
				logger.Error(jobCtx, "failed to checkpoint job completion: %v", markErr)
			}

			mu.Lock()
			results = append(results, jr)
			mu.Unlock()
		})
	}
	p.Wait()

	return results, failed, nil
}

// aggregate averages metrics across successful jobs and applies the soft
// latency constraint. A variant with zero successful jobs yields fitness
// 0, not an error.
func (e *Evaluator) aggregate(variantID string, results []*JobResult, failed int) *Report {
	report := &Report{
		VariantID: variantID,
		Metrics:   make(map[string]float64),
		Succeeded: len(results),
		Failed:    failed,
	}
	if len(results) == 0 {
		return report
	}

	sums := make(map[string]float64)
	latencies := make([]float64, 0, len(results))
	for _, jr := range results {
		for name, v := range jr.Metrics {
			sums[name] += v
		}
		latencies = append(latencies, jr.LatencyMs)
		report.TotalTokens += jr.Tokens
		report.EstimatedCost += jr.Cost
	}
	for name, sum := range sums {
		report.Metrics[name] = sum / float64(len(results))
	}

	report.LatencyP50Ms = metrics.Percentile(latencies, 50)
	report.LatencyP95Ms = metrics.Percentile(latencies, 95)
	report.LatencyP99Ms = metrics.Percentile(latencies, 99)

	var fitness float64
	for name, weight := range e.config.Weights {
		fitness += weight * report.Metrics[name]
	}

	if e.config.LatencyCeilingMs > 0 && metrics.Mean(latencies) > e.config.LatencyCeilingMs {
		fitness *= e.config.PenaltyFactor
		report.PenaltyApplied = true
	}

	report.Fitness = fitness
	return report
}
