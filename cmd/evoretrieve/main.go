package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/evoretrieve/cmd/evoretrieve/internal/commands"
)

var rootCmd = &cobra.Command{
	Use:   "evoretrieve",
	Short: "Evolve retrieval strategies with a genetic optimizer",
	Long: `evoretrieve searches the space of retrieval strategy configurations
(embedding model, chunking, top-k, similarity, query expansion, reranking)
with a genetic algorithm, measuring each candidate against a labeled
query/document workload.

The CLI provides:
- One-off evolution runs with JSON result output
- A long-running scheduler with automatic canary deployment
- Manual rollback of the deployed strategy`,
	Version: "0.1.0",
}

func main() {
	rootCmd.AddCommand(
		commands.NewRunCommand(),
		commands.NewScheduleCommand(),
		commands.NewRollbackCommand(),
	)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
