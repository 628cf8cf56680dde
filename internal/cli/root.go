// Package cli defines the token-sentinel command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Detects and scores newly appeared tokens",
	Long: `token-sentinel watches chain streams, market listings, and social feeds
for newly appeared tokens, scans their metadata, scores them through a
cost-bounded analysis backend, and alerts on high-scoring candidates.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ./config.yaml)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
