package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/XiaoConstantine/evoretrieve/pkg/errors"
	"github.com/XiaoConstantine/evoretrieve/pkg/evolution"
	"github.com/XiaoConstantine/evoretrieve/pkg/scheduler"
)

// Config is the full configuration for an evoretrieve deployment.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Provider   ProviderConfig   `yaml:"provider"`
	Cache      CacheConfig      `yaml:"cache"`
	Storage    StorageConfig    `yaml:"storage"`
	Dataset    DatasetConfig    `yaml:"dataset"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Evolution  evolution.Config `yaml:"evolution"`
	Scheduler  scheduler.Config `yaml:"scheduler"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR"`
	File  string `yaml:"file"`
}

// ProviderConfig selects and configures the embedding/judge backend.
type ProviderConfig struct {
	// Name is "local" or "anthropic".
	Name string `yaml:"name" validate:"omitempty,oneof=local anthropic"`

	// APIKey for remote providers; falls back to the provider's
	// conventional environment variable when empty.
	APIKey string `yaml:"api_key"`

	// JudgeModel used for judge calls on remote providers.
	JudgeModel string `yaml:"judge_model"`

	// EmbeddingDims for the local embedder.
	EmbeddingDims int `yaml:"embedding_dims" validate:"omitempty,min=8,max=4096"`
}

// CacheConfig configures the shared embedding cache backend.
type CacheConfig struct {
	Type string `yaml:"type" validate:"omitempty,oneof=memory sqlite"`
	Path string `yaml:"path"`

	// MaxSizeBytes bounds the memory backend (0 = unlimited).
	MaxSizeBytes int64 `yaml:"max_size_bytes" validate:"min=0"`
}

// StorageConfig locates the durable stores.
type StorageConfig struct {
	CheckpointPath string `yaml:"checkpoint_path"`
	KnowledgePath  string `yaml:"knowledge_path"`
}

// DatasetConfig locates the labeled query/document workload.
type DatasetConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// EvaluationConfig mirrors evaluation.Config in yaml-friendly form.
type EvaluationConfig struct {
	Concurrency      int                `yaml:"concurrency" validate:"omitempty,min=1,max=64"`
	CallTimeout      time.Duration      `yaml:"call_timeout"`
	LatencyCeilingMs float64            `yaml:"latency_ceiling_ms" validate:"min=0"`
	PenaltyFactor    float64            `yaml:"penalty_factor" validate:"omitempty,gt=0,lte=1"`
	Weights          map[string]float64 `yaml:"weights"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Logging:  LoggingConfig{Level: "INFO"},
		Provider: ProviderConfig{Name: "local", EmbeddingDims: 64},
		Cache:    CacheConfig{Type: "memory"},
		Storage: StorageConfig{
			CheckpointPath: "checkpoints.db",
			KnowledgePath:  "knowledge.db",
		},
		Dataset: DatasetConfig{Path: "dataset.json"},
		Evaluation: EvaluationConfig{
			Concurrency:      5,
			CallTimeout:      30 * time.Second,
			LatencyCeilingMs: 2000,
			PenaltyFactor:    0.8,
		},
		Evolution: evolution.DefaultConfig(),
		Scheduler: scheduler.DefaultConfig(),
	}
}

// Load reads a YAML config file over the defaults and validates the
// result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to read config file"),
			errors.Fields{"path": path},
		)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to parse config file"),
			errors.Fields{"path": path},
		)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
