// This file implements the run command: a full sampling run driven by a
// YAML configuration file.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/adalundhe/starnest/core/clustering"
	"github.com/adalundhe/starnest/core/config"
	"github.com/adalundhe/starnest/core/metric"
	"github.com/adalundhe/starnest/core/model"
	"github.com/adalundhe/starnest/core/prior"
	"github.com/adalundhe/starnest/core/results"
	"github.com/adalundhe/starnest/core/sampler"
)

var (
	runConfigPath string
	runLikelihood string
	runOutput     string
	runSeed       int64
	runWorkers    int
	runWatch      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run nested sampling against a built-in likelihood",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "starnest.yaml", "path to the run configuration file")
	runCmd.Flags().StringVarP(&runLikelihood, "likelihood", "l", "himmelblau", "likelihood surface (gaussian, himmelblau, eggbox, rosenbrock)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "override the output file prefix")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "override the random seed")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "override the parallel draw width")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "reload the configuration file on change during the run")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	mgr := config.NewManager(runConfigPath, logger)
	if err := mgr.Load(); err != nil {
		return err
	}
	if runWatch {
		if err := mgr.Watch(); err != nil {
			return err
		}
		defer mgr.Close()
	}

	// CLI flags overlay the loaded configuration.
	overrides := &config.Config{}
	overrides.Sampler.Seed = runSeed
	overrides.Sampler.Workers = runWorkers
	overrides.Output.Prefix = runOutput

	cfg := *mgr.Get()
	config.DeepMerge(&cfg, overrides)
	if err := cfg.Validate(); err != nil {
		return err
	}

	pr, like, err := buildProblem(runLikelihood)
	if err != nil {
		return err
	}

	return executeRun(cmd.Context(), &cfg, pr, like, logger)
}

// buildProblem maps a likelihood name to a demo surface with its
// conventional prior box.
func buildProblem(name string) (prior.Prior, model.Likelihood, error) {
	switch name {
	case "gaussian":
		pr, err := boxPrior(2, -4, 4)
		return pr, model.Gaussian{Center: []float64{0, 0}, Sigma: 1}, err
	case "himmelblau":
		pr, err := boxPrior(2, -5, 5)
		return pr, model.Himmelblau{}, err
	case "eggbox":
		pr, err := boxPrior(2, 0, 10*math.Pi)
		return pr, model.Eggbox{}, err
	case "rosenbrock":
		pr, err := boxPrior(2, -5, 5)
		return pr, model.Rosenbrock{}, err
	}
	return nil, nil, fmt.Errorf("unknown likelihood %q", name)
}

func boxPrior(dim int, lo, hi float64) (*prior.Uniform, error) {
	minima := make([]float64, dim)
	maxima := make([]float64, dim)
	for d := 0; d < dim; d++ {
		minima[d] = lo
		maxima[d] = hi
	}
	return prior.NewUniform(minima, maxima)
}

// executeRun wires the configured sampler together, runs it under signal
// cancellation and writes the result files. A failed run still writes
// whatever posterior sample it produced.
func executeRun(parent context.Context, cfg *config.Config, pr prior.Prior, like model.Likelihood, logger *slog.Logger) error {
	m := metric.NewEuclidean()

	km, err := clustering.New(m, cfg.ClusterConfig())
	if err != nil {
		return err
	}
	ns, err := sampler.New(cfg.SamplerConfig(), m, pr, like, km, logger)
	if err != nil {
		return err
	}
	reducer, err := cfg.BuildReducer()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, runErr := ns.Run(ctx, reducer, cfg.RunParams())
	if runErr != nil {
		logger.Error("sampling ended early", slog.Any("error", runErr))
	}

	if run != nil && len(run.Posterior) > 0 {
		ex, err := results.NewExtractor(run)
		if err != nil {
			return err
		}
		w := results.NewWriter(cfg.Output.Prefix, logger)
		if err := w.WriteAll(ex, cfg.Output.CredibleLevel, cfg.Output.Marginals); err != nil {
			return err
		}
	}

	if runErr != nil {
		return runErr
	}

	fmt.Printf("log evidence: %.6f +/- %.6f (information %.4f, %d iterations)\n",
		run.LogEvidence, run.LogEvidenceError, run.Information, run.Iterations)
	return nil
}
