package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command for one-off evolution runs.
func NewRunCommand() *cobra.Command {
	var (
		configPath string
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a single evolution run and print the result",
		Long: `Run one full evolution against the configured dataset: seed the
population, evolve for the configured number of generations, and report
the best genome with its fitness breakdown as JSON.

Interrupting the run is safe: completed per-query evaluations are
checkpointed and a re-run resumes where it left off.`,
		Example: `  # Run with the default config path
  evoretrieve run --config evoretrieve.yaml

  # Write the result to a file instead of stdout
  evoretrieve run --config evoretrieve.yaml --output result.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := rt.engine.Run(ctx)
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			if outputPath != "" {
				return os.WriteFile(outputPath, data, 0o644)
			}
			fmt.Println(string(data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "evoretrieve.yaml", "Path to the YAML config file")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the result JSON to this file")
	return cmd
}
