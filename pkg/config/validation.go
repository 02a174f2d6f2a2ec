package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/XiaoConstantine/evoretrieve/pkg/errors"
)

// ValidationError describes one failed configuration field.
type ValidationError struct {
	Field   string
	Tag     string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Tag {
	case "required":
		return fmt.Sprintf("%s is required", e.Field)
	case "min":
		return fmt.Sprintf("%s is below its minimum", e.Field)
	case "max":
		return fmt.Sprintf("%s is above its maximum", e.Field)
	case "oneof":
		return fmt.Sprintf("%s has an unsupported value", e.Field)
	default:
		return fmt.Sprintf("%s failed validation", e.Field)
	}
}

// ValidationErrors aggregates all validation failures of one config.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	messages := make([]string, 0, len(e))
	for i := range e {
		messages = append(messages, e[i].Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

var validate = validator.New()

// Validate checks struct tags plus the cross-field rules the tags cannot
// express.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New(errors.InvalidInput, "config is nil")
	}

	var validationErrors ValidationErrors

	if err := validate.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, e := range errs {
				validationErrors = append(validationErrors, ValidationError{
					Field: e.Namespace(),
					Tag:   e.Tag(),
				})
			}
		} else {
			validationErrors = append(validationErrors, ValidationError{
				Message: err.Error(),
			})
		}
	}

	validationErrors = append(validationErrors, customRules(cfg)...)

	if len(validationErrors) > 0 {
		return validationErrors
	}
	return nil
}

func customRules(cfg *Config) ValidationErrors {
	var out ValidationErrors

	evo := cfg.Evolution
	if evo.PopulationSize < 2 {
		out = append(out, ValidationError{
			Field:   "evolution.population_size",
			Message: "evolution.population_size must be at least 2",
		})
	}
	if evo.EliteCount*2 > evo.PopulationSize {
		out = append(out, ValidationError{
			Field:   "evolution.elite_count",
			Message: "evolution.elite_count cannot exceed half the population",
		})
	}
	if evo.MutationRate < 0 || evo.MutationRate > 1 {
		out = append(out, ValidationError{
			Field:   "evolution.mutation_rate",
			Message: "evolution.mutation_rate must be within [0,1]",
		})
	}
	if evo.CrossoverRate < 0 || evo.CrossoverRate > 1 {
		out = append(out, ValidationError{
			Field:   "evolution.crossover_rate",
			Message: "evolution.crossover_rate must be within [0,1]",
		})
	}

	sched := cfg.Scheduler
	if sched.AutoDeployThreshold < 0 {
		out = append(out, ValidationError{
			Field:   "scheduler.auto_deploy_threshold",
			Message: "scheduler.auto_deploy_threshold must be non-negative",
		})
	}
	if sched.RegressionThreshold > 0 {
		out = append(out, ValidationError{
			Field:   "scheduler.regression_threshold",
			Message: "scheduler.regression_threshold must be negative or zero",
		})
	}

	if cfg.Cache.Type == "sqlite" && cfg.Cache.Path == "" {
		out = append(out, ValidationError{
			Field:   "cache.path",
			Message: "cache.path is required for the sqlite backend",
		})
	}
	return out
}
