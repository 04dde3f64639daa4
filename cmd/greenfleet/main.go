package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/cuemby/greenfleet/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// exitError carries a process exit code other than 1
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "greenfleet",
	Short: "Greenfleet - blue/green fleet replacement",
	Long: `Greenfleet deploys a new image to a fleet of compute instances by
building a complete replacement fleet next to the running one, waiting for
it to become healthy and only then retiring the old fleet.

Any failure before the switch rolls back everything the deploy created.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		jsonOutput, _ := cmd.Flags().GetBool("log-json")
		log.Init(log.Config{
			Level:      log.Level(level),
			JSONOutput: jsonOutput,
		})
	},
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Greenfleet version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Configuration file (default config/<env>.yaml)")
	rootCmd.PersistentFlags().String("env", "", "Environment to operate on (required)")
	rootCmd.PersistentFlags().String("target", "", "Deploy target within the environment")
	_ = rootCmd.MarkPersistentFlagRequired("env")

	// Add subcommands
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(imageCmd)
	rootCmd.AddCommand(fleetCmd)
}
