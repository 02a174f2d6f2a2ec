package evolution

import (
	"time"

	"github.com/XiaoConstantine/evoretrieve/pkg/evaluation"
	"github.com/XiaoConstantine/evoretrieve/pkg/genome"
)

// GenerationResult is the append-only record of one completed generation.
type GenerationResult struct {
	Generation  int              `json:"generation"`
	Population  []*genome.Genome `json:"population"`
	BestFitness float64          `json:"best_fitness"`
	AvgFitness  float64          `json:"avg_fitness"`
	Diversity   float64          `json:"diversity"`
}

// EvolutionResult is the immutable outcome of one evolution run.
type EvolutionResult struct {
	EvolutionID             string              `json:"evolution_id"`
	Generations             []GenerationResult  `json:"generations"`
	BestGenome              *genome.Genome      `json:"best_genome"`
	BestReport              *evaluation.Report  `json:"best_report,omitempty"`
	BaselineFitness         float64             `json:"baseline_fitness"`
	ImprovementOverBaseline float64             `json:"improvement_over_baseline"`
	TotalEvaluations        int                 `json:"total_evaluations"`
	Deployed                bool                `json:"deployed"`
	Timestamp               time.Time           `json:"timestamp"`
}
