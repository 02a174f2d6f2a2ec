package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/evoretrieve/pkg/errors"
	"github.com/XiaoConstantine/evoretrieve/pkg/evolution"
)

func testSchedulerConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Schedule = "@hourly"
	cfg.StatePath = filepath.Join(dir, "state.json")
	cfg.DeploymentPath = filepath.Join(dir, "deployment.json")
	cfg.ResultsDir = filepath.Join(dir, "results")
	return cfg
}

// fixedRun returns an evolution result whose best genome has the given
// fitness.
func fixedRun(id string, fitness, improvement float64) RunFunc {
	return func(ctx context.Context) (*evolution.EvolutionResult, error) {
		return &evolution.EvolutionResult{
			EvolutionID:             id,
			BestGenome:              fitGenome(id, fitness),
			ImprovementOverBaseline: improvement,
			Timestamp:               time.Now(),
		}, nil
	}
}

func TestNew(t *testing.T) {
	t.Run("requires a run function", func(t *testing.T) {
		_, err := New(testSchedulerConfig(t), nil)
		assert.Error(t, err)
	})

	t.Run("parses the schedule", func(t *testing.T) {
		cfg := testSchedulerConfig(t)
		s, err := New(cfg, fixedRun("r", 0.5, 0))
		require.NoError(t, err)
		assert.Equal(t, IntervalHourly, s.Interval())
	})

	t.Run("unrecognized schedule falls back to weekly", func(t *testing.T) {
		cfg := testSchedulerConfig(t)
		cfg.Schedule = "whenever"
		s, err := New(cfg, fixedRun("r", 0.5, 0))
		require.NoError(t, err)
		assert.Equal(t, IntervalWeekly, s.Interval())
	})
}

func TestRunOnceFirstDeployment(t *testing.T) {
	cfg := testSchedulerConfig(t)
	s, err := New(cfg, fixedRun("run-1", 0.5, 0.2))
	require.NoError(t, err)

	rec := s.RunOnce(context.Background())
	require.NotNil(t, rec)
	assert.True(t, rec.Success)
	assert.True(t, rec.Deployed, "first successful run deploys unconditionally")
	assert.Equal(t, 0.5, rec.BestFitness)

	state := s.State()
	require.NotNil(t, state.DeployedGenome)
	assert.Equal(t, 0.5, state.DeployedGenome.FitnessOrZero())
	assert.False(t, state.IsRunning)
	require.Len(t, state.History, 1)

	// The deployment record is durable.
	dep, err := s.repo.LoadDeployment()
	require.NoError(t, err)
	require.NotNil(t, dep)
	assert.Nil(t, dep.PreviousGenome)
	assert.Equal(t, cfg.CanaryPercentage, dep.CanaryPercentage)
}

func TestRunOnceDeploymentDecisions(t *testing.T) {
	deployFirst := func(t *testing.T, s *Scheduler) {
		t.Helper()
		rec := s.RunOnce(context.Background())
		require.NotNil(t, rec)
		require.True(t, rec.Deployed)
		// Clear the freshness gate for the next cycle.
		s.mu.Lock()
		s.state.LastRunAt = nil
		s.mu.Unlock()
	}

	t.Run("improvement above threshold deploys", func(t *testing.T) {
		cfg := testSchedulerConfig(t)
		s, err := New(cfg, fixedRun("base", 0.5, 0))
		require.NoError(t, err)
		deployFirst(t, s)

		s.run = fixedRun("better", 0.6, 0.2) // +20% over 0.5
		rec := s.RunOnce(context.Background())
		require.NotNil(t, rec)
		assert.True(t, rec.Deployed)
		assert.Equal(t, 0.6, s.State().DeployedGenome.FitnessOrZero())
		assert.Equal(t, 0, s.State().ConsecutiveRegressions)
	})

	t.Run("improvement below threshold does not deploy", func(t *testing.T) {
		cfg := testSchedulerConfig(t)
		s, err := New(cfg, fixedRun("base", 0.5, 0))
		require.NoError(t, err)
		deployFirst(t, s)

		s.run = fixedRun("marginal", 0.505, 0.01) // +1% < 3% threshold
		rec := s.RunOnce(context.Background())
		require.NotNil(t, rec)
		assert.False(t, rec.Deployed)
		assert.Equal(t, 0.5, s.State().DeployedGenome.FitnessOrZero())
	})

	t.Run("regression increments the counter without rollback", func(t *testing.T) {
		cfg := testSchedulerConfig(t)
		s, err := New(cfg, fixedRun("base", 0.5, 0))
		require.NoError(t, err)
		deployFirst(t, s)

		s.run = fixedRun("worse", 0.4, -0.2) // -20% < -1% threshold
		rec := s.RunOnce(context.Background())
		require.NotNil(t, rec)
		assert.False(t, rec.Deployed)

		state := s.State()
		assert.Equal(t, 1, state.ConsecutiveRegressions)
		// Deployment is untouched; rollback stays an operator action.
		assert.Equal(t, 0.5, state.DeployedGenome.FitnessOrZero())
	})

	t.Run("deployment resets the regression counter", func(t *testing.T) {
		cfg := testSchedulerConfig(t)
		s, err := New(cfg, fixedRun("base", 0.5, 0))
		require.NoError(t, err)
		deployFirst(t, s)

		s.run = fixedRun("worse", 0.4, -0.2)
		s.RunOnce(context.Background())
		s.mu.Lock()
		s.state.LastRunAt = nil
		s.mu.Unlock()

		s.run = fixedRun("recovered", 0.7, 0.4)
		rec := s.RunOnce(context.Background())
		require.NotNil(t, rec)
		assert.True(t, rec.Deployed)
		assert.Equal(t, 0, s.State().ConsecutiveRegressions)
	})
}

func TestRunOnceGates(t *testing.T) {
	t.Run("skips while a run is in progress", func(t *testing.T) {
		s, err := New(testSchedulerConfig(t), fixedRun("r", 0.5, 0))
		require.NoError(t, err)
		s.state.IsRunning = true

		assert.Nil(t, s.RunOnce(context.Background()))
	})

	t.Run("skips while the deployment is fresh", func(t *testing.T) {
		s, err := New(testSchedulerConfig(t), fixedRun("r", 0.5, 0))
		require.NoError(t, err)

		rec := s.RunOnce(context.Background())
		require.NotNil(t, rec)

		// Deployed and last run just finished: the drift gate holds.
		assert.Nil(t, s.RunOnce(context.Background()))
	})

	t.Run("runs again once the deployment has aged", func(t *testing.T) {
		s, err := New(testSchedulerConfig(t), fixedRun("r", 0.5, 0))
		require.NoError(t, err)

		require.NotNil(t, s.RunOnce(context.Background()))

		old := time.Now().Add(-25 * time.Hour)
		s.mu.Lock()
		s.state.LastRunAt = &old
		s.mu.Unlock()

		assert.NotNil(t, s.RunOnce(context.Background()))
	})
}

func TestRunOnceFailure(t *testing.T) {
	failing := func(ctx context.Context) (*evolution.EvolutionResult, error) {
		return nil, errors.New(errors.EvaluationFailed, "pipeline exploded")
	}

	s, err := New(testSchedulerConfig(t), failing)
	require.NoError(t, err)

	rec := s.RunOnce(context.Background())
	require.NotNil(t, rec)
	assert.False(t, rec.Success)
	assert.Contains(t, rec.Error, "pipeline exploded")

	state := s.State()
	assert.False(t, state.IsRunning, "a failed run must release the gate")
	require.Len(t, state.History, 1)
	assert.False(t, state.History[0].Success)
}

func TestRollback(t *testing.T) {
	t.Run("nothing deployed", func(t *testing.T) {
		s, err := New(testSchedulerConfig(t), fixedRun("r", 0.5, 0))
		require.NoError(t, err)

		rolled, err := s.Rollback(context.Background())
		require.NoError(t, err)
		assert.False(t, rolled)
	})

	t.Run("round trip and single depth", func(t *testing.T) {
		s, err := New(testSchedulerConfig(t), fixedRun("first", 0.5, 0))
		require.NoError(t, err)

		require.NotNil(t, s.RunOnce(context.Background()))
		s.mu.Lock()
		s.state.LastRunAt = nil
		s.mu.Unlock()

		s.run = fixedRun("second", 0.8, 0.6)
		require.NotNil(t, s.RunOnce(context.Background()))
		require.Equal(t, 0.8, s.State().DeployedGenome.FitnessOrZero())

		rolled, err := s.Rollback(context.Background())
		require.NoError(t, err)
		assert.True(t, rolled)
		assert.Equal(t, 0.5, s.State().DeployedGenome.FitnessOrZero())

		// The promoted record has no predecessor: a second rollback is a
		// no-op.
		rolled, err = s.Rollback(context.Background())
		require.NoError(t, err)
		assert.False(t, rolled)
		assert.Equal(t, 0.5, s.State().DeployedGenome.FitnessOrZero())
	})
}

func TestSchedulerLifecycle(t *testing.T) {
	t.Run("start twice fails", func(t *testing.T) {
		s, err := New(testSchedulerConfig(t), fixedRun("r", 0.5, 0))
		require.NoError(t, err)
		require.NoError(t, s.Start())
		defer s.Stop()
		assert.Error(t, s.Start())
	})

	t.Run("state returns a defensive copy", func(t *testing.T) {
		s, err := New(testSchedulerConfig(t), fixedRun("r", 0.5, 0))
		require.NoError(t, err)
		require.NotNil(t, s.RunOnce(context.Background()))

		state := s.State()
		state.History[0].RunID = "tampered"
		assert.NotEqual(t, "tampered", s.State().History[0].RunID)
	})

	t.Run("state survives a restart", func(t *testing.T) {
		cfg := testSchedulerConfig(t)
		s1, err := New(cfg, fixedRun("r", 0.5, 0))
		require.NoError(t, err)
		require.NotNil(t, s1.RunOnce(context.Background()))

		s2, err := New(cfg, fixedRun("r", 0.5, 0))
		require.NoError(t, err)
		state := s2.State()
		require.NotNil(t, state.DeployedGenome)
		assert.Equal(t, 0.5, state.DeployedGenome.FitnessOrZero())
		require.Len(t, state.History, 1)
	})
}
