package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/XiaoConstantine/evoretrieve/pkg/errors"
	"github.com/XiaoConstantine/evoretrieve/pkg/evolution"
	"github.com/XiaoConstantine/evoretrieve/pkg/genome"
	"github.com/XiaoConstantine/evoretrieve/pkg/logging"
)

// Config controls the evolution scheduler.
type Config struct {
	// Schedule is a cron expression mapped to a fixed interval (see
	// ParseSchedule). Unrecognized expressions fall back to weekly.
	Schedule string `yaml:"schedule"`

	// MinRunInterval gates re-evolution while a deployment is fresh
	// (default 24h).
	MinRunInterval time.Duration `yaml:"min_run_interval"`

	// AutoDeployThreshold is the relative fitness improvement over the
	// deployed genome required to deploy (default 0.03).
	AutoDeployThreshold float64 `yaml:"auto_deploy_threshold"`

	// RegressionThreshold is the relative drop that counts as a
	// regression (default -0.01). Regressions increment a counter and
	// fire a notification; rollback stays an explicit operator action.
	RegressionThreshold float64 `yaml:"regression_threshold"`

	// CanaryPercentage recorded on deployments (default 10).
	CanaryPercentage float64 `yaml:"canary_percentage"`

	StatePath      string `yaml:"state_path"`
	DeploymentPath string `yaml:"deployment_path"`
	ResultsDir     string `yaml:"results_dir"`

	Webhooks WebhookConfig `yaml:"webhooks"`
}

// DefaultConfig returns the scheduler defaults.
func DefaultConfig() Config {
	return Config{
		Schedule:            "@weekly",
		MinRunInterval:      24 * time.Hour,
		AutoDeployThreshold: 0.03,
		RegressionThreshold: -0.01,
		CanaryPercentage:    10,
		StatePath:           "scheduler_state.json",
		DeploymentPath:      "deployment.json",
		ResultsDir:          "results",
	}
}

// RunFunc executes one evolution run. Wired to evolution.Engine.Run in
// production; stubbed in tests.
type RunFunc func(ctx context.Context) (*evolution.EvolutionResult, error)

// Scheduler drives evolution on a cadence, deciding deployment and
// handling rollback. One long-lived control loop; overlapping cycles are
// prevented by the persisted IsRunning flag.
type Scheduler struct {
	config   Config
	repo     *repository
	notifier *Notifier
	run      RunFunc
	interval time.Duration

	mu      sync.Mutex
	state   *State
	timer   *time.Timer
	started bool
	stopped bool
}

// New creates a scheduler, loading any persisted state.
func New(config Config, run RunFunc) (*Scheduler, error) {
	if run == nil {
		return nil, errors.New(errors.InvalidInput, "run function is required")
	}
	if config.MinRunInterval <= 0 {
		config.MinRunInterval = 24 * time.Hour
	}
	if config.AutoDeployThreshold == 0 {
		config.AutoDeployThreshold = 0.03
	}
	if config.RegressionThreshold == 0 {
		config.RegressionThreshold = -0.01
	}
	if config.CanaryPercentage <= 0 {
		config.CanaryPercentage = 10
	}
	if config.StatePath == "" {
		config.StatePath = DefaultConfig().StatePath
	}
	if config.DeploymentPath == "" {
		config.DeploymentPath = DefaultConfig().DeploymentPath
	}

	interval, recognized := ParseSchedule(config.Schedule)
	if !recognized {
		logging.GetLogger().Warn(nil,
			"unrecognized schedule %q, defaulting to weekly", config.Schedule)
	}

	repo := newRepository(config.StatePath, config.DeploymentPath, config.ResultsDir)
	return &Scheduler{
		config:   config,
		repo:     repo,
		notifier: NewNotifier(config.Webhooks),
		run:      run,
		interval: interval,
		state:    repo.LoadState(),
	}, nil
}

// Start schedules the first cycle immediately and subsequent cycles one
// interval after each completion.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New(errors.SchedulerBusy, "scheduler already started")
	}
	s.started = true
	s.timer = time.AfterFunc(0, s.tick)
	return nil
}

// Stop cancels the pending timer. An in-flight evaluation is not aborted;
// its jobs drain to their checkpointed terminal state so a restart
// resumes cleanly.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
}

// State returns a copy of the current scheduler state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := *s.state
	state.History = append([]RunRecord{}, s.state.History...)
	return state
}

// Interval exposes the parsed schedule interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// tick runs one cycle and schedules the next. The next tick is scheduled
// after completion, success or failure, so the cadence is strictly
// periodic and unaffected by run duration.
func (s *Scheduler) tick() {
	ctx := context.Background()
	s.RunOnce(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.timer = time.AfterFunc(s.interval, s.tick)
}

// RunOnce executes a single scheduler cycle: drift gate, evolution run,
// deployment decision, state persistence. Returns the run record, or nil
// when the cycle was skipped by the gate.
func (s *Scheduler) RunOnce(ctx context.Context) *RunRecord {
	logger := logging.GetLogger()

	s.mu.Lock()
	if s.state.IsRunning {
		s.mu.Unlock()
		logger.Info(ctx, "skipping cycle: run already in progress")
		return nil
	}
	if s.state.DeployedGenome != nil && s.state.LastRunAt != nil &&
		time.Since(*s.state.LastRunAt) < s.config.MinRunInterval {
		s.mu.Unlock()
		logger.Info(ctx, "skipping cycle: deployment is fresh (last run %s ago)",
			time.Since(*s.state.LastRunAt).Round(time.Minute))
		return nil
	}

	runID := uuid.New().String()
	s.state.IsRunning = true
	s.state.CurrentRunID = runID
	if err := s.repo.SaveState(s.state); err != nil {
		logger.Error(ctx, "failed to persist scheduler state: %v", err)
	}
	s.mu.Unlock()

	go s.notifier.Notify(ctx, EventStart, map[string]interface{}{"run_id": runID})

	rec := RunRecord{RunID: runID, StartedAt: time.Now()}
	result, err := s.run(ctx)
	rec.FinishedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		// A failed cycle is still recorded in history; the next tick is
		// unaffected.
		logger.Error(ctx, "evolution run %s failed: %v", runID, err)
		rec.Success = false
		rec.Error = err.Error()
		go s.notifier.Notify(ctx, EventError, map[string]interface{}{
			"run_id": runID, "error": err.Error(),
		})
	} else {
		rec.Success = true
		rec.BestFitness = result.BestGenome.FitnessOrZero()
		rec.Improvement = result.ImprovementOverBaseline
		rec.Deployed = s.decideDeployment(ctx, runID, result)
		result.Deployed = rec.Deployed

		if saveErr := s.repo.SaveResult(result); saveErr != nil {
			logger.Warn(ctx, "failed to persist evolution result: %v", saveErr)
		}
	}

	now := rec.FinishedAt
	s.state.IsRunning = false
	s.state.CurrentRunID = ""
	s.state.LastRunAt = &now
	s.state.LastRunResult = &rec
	s.state.appendHistory(rec)
	if err := s.repo.SaveState(s.state); err != nil {
		logger.Error(ctx, "failed to persist scheduler state: %v", err)
	}

	go s.notifier.Notify(ctx, EventComplete, map[string]interface{}{
		"run_id": runID, "success": rec.Success, "best_fitness": rec.BestFitness,
	})
	return &rec
}

// decideDeployment compares the run's best genome against the deployed
// one and deploys, counts a regression, or does nothing. Caller holds the
// mutex.
func (s *Scheduler) decideDeployment(ctx context.Context, runID string, result *evolution.EvolutionResult) bool {
	logger := logging.GetLogger()
	best := result.BestGenome

	if s.state.DeployedGenome == nil {
		// Nothing deployed yet; the first successful run establishes the
		// production strategy.
		return s.deploy(ctx, best, 0)
	}

	deployedFitness := s.state.DeployedGenome.FitnessOrZero()
	if deployedFitness <= 0 {
		return s.deploy(ctx, best, 0)
	}

	relative := (best.FitnessOrZero() - deployedFitness) / deployedFitness
	switch {
	case relative >= s.config.AutoDeployThreshold:
		return s.deploy(ctx, best, relative)
	case relative < s.config.RegressionThreshold:
		s.state.ConsecutiveRegressions++
		logger.Warn(ctx, "regression detected: relative=%.2f%% consecutive=%d",
			relative*100, s.state.ConsecutiveRegressions)
		go s.notifier.Notify(ctx, EventRegression, map[string]interface{}{
			"run_id":                  runID,
			"relative_change":         relative,
			"consecutive_regressions": s.state.ConsecutiveRegressions,
		})
	default:
		logger.Info(ctx, "no deployment: relative change %.2f%% below threshold", relative*100)
	}
	return false
}

// deploy writes a canary DeploymentRecord retaining the prior genome and
// updates scheduler state. Caller holds the mutex.
func (s *Scheduler) deploy(ctx context.Context, g *genome.Genome, relative float64) bool {
	logger := logging.GetLogger()

	rec := &DeploymentRecord{
		Genome:           g,
		DeployedAt:       time.Now(),
		PreviousGenome:   s.state.DeployedGenome,
		CanaryPercentage: s.config.CanaryPercentage,
	}
	if err := s.repo.SaveDeployment(rec); err != nil {
		logger.Error(ctx, "failed to persist deployment record: %v", err)
		return false
	}

	s.state.DeployedGenome = g
	now := rec.DeployedAt
	s.state.DeployedAt = &now
	s.state.ConsecutiveRegressions = 0

	logger.Info(ctx, "deployed genome %s (fitness=%.4f, improvement=%.2f%%)",
		g.ID, g.FitnessOrZero(), relative*100)
	go s.notifier.Notify(ctx, EventImprovement, map[string]interface{}{
		"genome_id":       g.ID,
		"fitness":         g.FitnessOrZero(),
		"relative_change": relative,
	})
	return true
}

// Rollback promotes the previous genome back to current. At most one undo
// is available: the promoted record carries no previous genome. Returns
// false with no state change when there is nothing to roll back to.
func (s *Scheduler) Rollback(ctx context.Context) (bool, error) {
	logger := logging.GetLogger()

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.repo.LoadDeployment()
	if err != nil {
		return false, errors.Wrap(err, errors.RollbackFailed, "failed to load deployment record")
	}
	if current == nil || current.PreviousGenome == nil {
		logger.Info(ctx, "rollback requested but no previous genome is available")
		return false, nil
	}

	promoted := &DeploymentRecord{
		Genome:           current.PreviousGenome,
		DeployedAt:       time.Now(),
		PreviousGenome:   nil,
		CanaryPercentage: current.CanaryPercentage,
	}
	if err := s.repo.SaveDeployment(promoted); err != nil {
		return false, errors.Wrap(err, errors.RollbackFailed, "failed to persist rollback")
	}

	s.state.DeployedGenome = promoted.Genome
	now := promoted.DeployedAt
	s.state.DeployedAt = &now
	if err := s.repo.SaveState(s.state); err != nil {
		logger.Error(ctx, "failed to persist scheduler state after rollback: %v", err)
	}

	logger.Info(ctx, "rolled back to genome %s", promoted.Genome.ID)
	return true, nil
}
