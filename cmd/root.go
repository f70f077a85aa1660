// Package cmd provides the CLI commands of the starnest application.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "starnest",
	Short: "Nested sampling for Bayesian evidence and posterior estimation",
	Long: `Starnest estimates Bayesian evidence and posterior distributions with
multi-ellipsoidal nested sampling: live points are clustered, bounded by
enlarged ellipsoids in the unit hypercube, and the worst point is repeatedly
traded for a draw above its likelihood.`,
}

var rootVerbose bool

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "enable debug logging")
}

// newLogger builds the process logger honoring --verbose.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if rootVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
