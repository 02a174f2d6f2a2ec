package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/evoretrieve/pkg/config"
	"github.com/XiaoConstantine/evoretrieve/pkg/errors"
	"github.com/XiaoConstantine/evoretrieve/pkg/evolution"
	"github.com/XiaoConstantine/evoretrieve/pkg/scheduler"
)

// noopRun satisfies scheduler.New for commands that never trigger a run.
func noopRun(ctx context.Context) (*evolution.EvolutionResult, error) {
	return nil, errors.New(errors.InvalidInput, "no evolution run is wired")
}

// NewRollbackCommand creates the rollback command.
func NewRollbackCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Roll the deployed strategy back to its predecessor",
		Long: `Promote the previously deployed genome back to current. One level
of undo is available: rolling back twice in a row is a no-op because the
promoted record carries no predecessor.`,
		Example: `  evoretrieve rollback --config evoretrieve.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := setupLogging(cfg.Logging); err != nil {
				return err
			}

			sched, err := scheduler.New(cfg.Scheduler, noopRun)
			if err != nil {
				return err
			}
			rolled, err := sched.Rollback(context.Background())
			if err != nil {
				return err
			}
			if !rolled {
				fmt.Println("nothing to roll back to")
				return nil
			}
			fmt.Println("rolled back to previous deployment")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "evoretrieve.yaml", "Path to the YAML config file")
	return cmd
}
