package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	quiet   bool
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "guidekit",
	Short: "CLI tool for working with guidekit definition documents",
	Long: `Guidekit is a command-line tool for validating and exercising
segment, experiment, and flow definition documents offline.

Examples:
  guidekit validate experiment.yaml flows.yaml
  guidekit simulate experiment.yaml --users 10000
  guidekit analyze results.yaml`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress output")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose output")
}
