package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/evoretrieve/pkg/evolution"
	"github.com/XiaoConstantine/evoretrieve/pkg/scheduler"
)

// NewScheduleCommand creates the schedule command for continuous operation.
func NewScheduleCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the evolution scheduler until interrupted",
		Long: `Start the long-running scheduler: evolution runs fire on the
configured cadence, results that beat the deployed strategy by the
auto-deploy threshold are canary-deployed, and webhooks report run
lifecycle events. State survives restarts through the configured state
file.`,
		Example: `  evoretrieve schedule --config evoretrieve.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			sched, err := scheduler.New(rt.config.Scheduler,
				func(ctx context.Context) (*evolution.EvolutionResult, error) {
					return rt.engine.Run(ctx)
				})
			if err != nil {
				return err
			}
			if err := sched.Start(); err != nil {
				return err
			}
			fmt.Printf("scheduler started, interval %s\n", sched.Interval())

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			sched.Stop()
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "evoretrieve.yaml", "Path to the YAML config file")
	return cmd
}
