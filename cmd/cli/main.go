package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var (
	flagURL    string
	flagAPIKey string
	flagJSON   bool
	flagDebug  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "navctl",
		Short: "CLI for the persona navigator server",
		Long:  "A command-line interface for submitting persona studies, inspecting their sessions and watching them live.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	rootCmd.PersistentFlags().StringVar(&flagURL, "url", "", "API server URL (env: NAVCTL_URL)")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "API key (env: NAVCTL_API_KEY)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug output")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "navctl %s (commit: %s, built: %s)\n", Version, Commit, BuildDate)
		},
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newStudiesCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newWatchCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
