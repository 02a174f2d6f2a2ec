package scheduler

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/XiaoConstantine/evoretrieve/pkg/errors"
	"github.com/XiaoConstantine/evoretrieve/pkg/evolution"
	"github.com/XiaoConstantine/evoretrieve/pkg/genome"
	"github.com/XiaoConstantine/evoretrieve/pkg/logging"
)

// maxHistory bounds the scheduler's run history ring.
const maxHistory = 50

// RunRecord summarizes one completed (or failed) scheduler cycle.
type RunRecord struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	BestFitness float64   `json:"best_fitness"`
	Improvement float64   `json:"improvement"`
	Deployed    bool      `json:"deployed"`
}

// State is the scheduler's persisted state. It survives process restarts
// so a crashed scheduler resumes cleanly.
type State struct {
	IsRunning              bool           `json:"is_running"`
	CurrentRunID           string         `json:"current_run_id,omitempty"`
	LastRunAt              *time.Time     `json:"last_run_at,omitempty"`
	LastRunResult          *RunRecord     `json:"last_run_result,omitempty"`
	DeployedGenome         *genome.Genome `json:"deployed_genome,omitempty"`
	DeployedAt             *time.Time     `json:"deployed_at,omitempty"`
	ConsecutiveRegressions int            `json:"consecutive_regressions"`
	History                []RunRecord    `json:"history,omitempty"`
}

// appendHistory appends a record, dropping the oldest entries beyond the
// bound.
func (s *State) appendHistory(rec RunRecord) {
	s.History = append(s.History, rec)
	if len(s.History) > maxHistory {
		s.History = s.History[len(s.History)-maxHistory:]
	}
}

// DeploymentRecord is the durable canary deployment state. Exactly one
// previous genome is retained, so rollback depth is 1.
type DeploymentRecord struct {
	Genome           *genome.Genome `json:"genome"`
	DeployedAt       time.Time      `json:"deployed_at"`
	PreviousGenome   *genome.Genome `json:"previous_genome,omitempty"`
	CanaryPercentage float64        `json:"canary_percentage"`
}

// repository persists scheduler state, the deployment record and per-run
// results as individually loadable JSON documents.
type repository struct {
	statePath      string
	deploymentPath string
	resultsDir     string
}

func newRepository(statePath, deploymentPath, resultsDir string) *repository {
	return &repository{
		statePath:      statePath,
		deploymentPath: deploymentPath,
		resultsDir:     resultsDir,
	}
}

// LoadState reads the persisted state, falling back to a fresh default
// when the file is missing or corrupt. Corruption is recoverable
// degradation, not data loss: the knowledge store keeps independent
// history.
func (r *repository) LoadState() *State {
	logger := logging.GetLogger()

	data, err := os.ReadFile(r.statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn(nil, "unreadable scheduler state, starting fresh: %v", err)
		}
		return &State{}
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		logger.Warn(nil, "corrupt scheduler state at %s, starting fresh: %v", r.statePath, err)
		return &State{}
	}
	// A crash mid-run leaves IsRunning set; the run is gone, so clear it.
	state.IsRunning = false
	state.CurrentRunID = ""
	return &state
}

func (r *repository) SaveState(state *State) error {
	return r.writeJSON(r.statePath, state)
}

// LoadDeployment reads the current deployment record, returning nil when
// none exists.
func (r *repository) LoadDeployment() (*DeploymentRecord, error) {
	data, err := os.ReadFile(r.deploymentPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageFailed, "failed to read deployment record")
	}
	var rec DeploymentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, errors.StorageFailed, "corrupt deployment record")
	}
	return &rec, nil
}

func (r *repository) SaveDeployment(rec *DeploymentRecord) error {
	return r.writeJSON(r.deploymentPath, rec)
}

// SaveResult persists one evolution result under the results directory.
func (r *repository) SaveResult(result *evolution.EvolutionResult) error {
	if r.resultsDir == "" {
		return nil
	}
	if err := os.MkdirAll(r.resultsDir, 0755); err != nil {
		return errors.Wrap(err, errors.StorageFailed, "failed to create results directory")
	}
	path := filepath.Join(r.resultsDir, "evolution_"+result.EvolutionID+".json")
	return r.writeJSON(path, result)
}

// writeJSON writes atomically via a temp file and rename so readers never
// observe a partial document.
func (r *repository) writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.StorageFailed, "failed to encode state")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, errors.StorageFailed, "failed to create state directory")
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StorageFailed, "failed to write state file"),
			errors.Fields{"path": path},
		)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StorageFailed, "failed to replace state file"),
			errors.Fields{"path": path},
		)
	}
	return nil
}
