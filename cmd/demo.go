// This file implements the demo command: canned runs against the bundled
// likelihood surfaces with reference settings, no config file needed.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adalundhe/starnest/core/config"
)

var (
	demoSeed    int64
	demoWorkers int
	demoOutput  string
)

var demoCmd = &cobra.Command{
	Use:       "demo [gaussian|himmelblau|eggbox|rosenbrock]",
	Short:     "Run a bundled demonstration problem",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"gaussian", "himmelblau", "eggbox", "rosenbrock"},
	RunE:      runDemo,
}

func init() {
	demoCmd.Flags().Int64Var(&demoSeed, "seed", 0, "random seed, 0 for entropy")
	demoCmd.Flags().IntVar(&demoWorkers, "workers", 1, "parallel draw width")
	demoCmd.Flags().StringVarP(&demoOutput, "output", "o", "", "output file prefix")

	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	name := args[0]
	logger := newLogger()

	pr, like, err := buildProblem(name)
	if err != nil {
		return err
	}

	cfg := config.Default()
	cfg.Sampler.Seed = demoSeed
	cfg.Sampler.Workers = demoWorkers
	cfg.Output.Prefix = demoOutput
	if cfg.Output.Prefix == "" {
		cfg.Output.Prefix = fmt.Sprintf("results/%s_", name)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	return executeRun(cmd.Context(), cfg, pr, like, logger)
}
