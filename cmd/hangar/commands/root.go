package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	jsonOutput bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hangar",
		Short: "Hangar - Workspace Ignition Orchestrator",
		Long: `Hangar provisions fully isolated workspace runtimes: an encrypted
credential set, a dedicated data partition, a compute droplet running the
workspace agent, and the workspace's automation workflows - as one atomic
operation that either completes fully or rolls back fully.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "hangar.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newIgniteCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newOperationsCommand())

	return rootCmd
}
