package results

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// =============================================================================
// Result Files
// =============================================================================
//
// Writer emits the canonical result file set of a run under a common path
// prefix:
//
//	<prefix>Parameter%03d.txt          physical coordinates, one per line
//	<prefix>LikelihoodDistribution.txt log likelihood per retired point
//	<prefix>LogWeight.txt              log evidence weight per retired point
//	<prefix>PosteriorDistribution.txt  normalized posterior probability
//	<prefix>EvidenceInformation.txt    one row: log evidence, error, information
//	<prefix>ParameterSummary.txt       one estimate row per parameter
//	<prefix>MarginalDistribution%03d.txt  optional marginal grids
//
// All numeric output uses %.9e. Every file opens with # comment headers
// carrying the run ID.

// Writer writes result files under a fixed path prefix.
type Writer struct {
	prefix string
	logger *slog.Logger
}

// NewWriter builds a writer. prefix may include directories, which are
// created on first write.
func NewWriter(prefix string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{prefix: prefix, logger: logger}
}

// WriteAll emits the full result file set. Marginal grids are written only
// when withMarginals is set.
func (w *Writer) WriteAll(e *Extractor, credibleLevel float64, withMarginals bool) error {
	if err := w.WriteParameters(e); err != nil {
		return err
	}
	if err := w.WriteLogLikelihood(e); err != nil {
		return err
	}
	if err := w.WriteLogWeights(e); err != nil {
		return err
	}
	if err := w.WritePosteriorProbability(e); err != nil {
		return err
	}
	if err := w.WriteEvidence(e); err != nil {
		return err
	}
	if err := w.WriteParameterSummary(e, credibleLevel); err != nil {
		return err
	}
	if withMarginals {
		for d := 0; d < e.Run().Dimension; d++ {
			if err := w.WriteMarginal(e, d); err != nil {
				return err
			}
		}
	}

	w.logger.Info("result files written",
		slog.String("run_id", e.Run().RunID.String()),
		slog.String("prefix", w.prefix),
		slog.Int("posterior_size", len(e.Run().Posterior)),
	)
	return nil
}

// WriteParameters writes one file per dimension with the physical
// coordinate of every retired point.
func (w *Writer) WriteParameters(e *Extractor) error {
	for d := 0; d < e.Run().Dimension; d++ {
		name := fmt.Sprintf("Parameter%03d.txt", d)
		err := w.writeFile(name, e, []string{
			fmt.Sprintf("Posterior sample of parameter %d", d),
			"Column 1: parameter value",
		}, func(out *bufio.Writer) error {
			for _, p := range e.Run().Posterior {
				if _, err := fmt.Fprintf(out, "%.9e\n", p.Phys[d]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteLogLikelihood writes the log likelihood of every retired point.
func (w *Writer) WriteLogLikelihood(e *Extractor) error {
	return w.writeFile("LikelihoodDistribution.txt", e, []string{
		"Log likelihood per posterior sample point",
		"Column 1: log likelihood",
	}, func(out *bufio.Writer) error {
		for _, p := range e.Run().Posterior {
			if _, err := fmt.Fprintf(out, "%.9e\n", p.LogLike); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteLogWeights writes the log evidence weight of every retired point.
func (w *Writer) WriteLogWeights(e *Extractor) error {
	return w.writeFile("LogWeight.txt", e, []string{
		"Log evidence weight per posterior sample point",
		"Column 1: log weight",
	}, func(out *bufio.Writer) error {
		for _, p := range e.Run().Posterior {
			if _, err := fmt.Fprintf(out, "%.9e\n", p.LogWeight); err != nil {
				return err
			}
		}
		return nil
	})
}

// WritePosteriorProbability writes the normalized posterior probability of
// every retired point.
func (w *Writer) WritePosteriorProbability(e *Extractor) error {
	return w.writeFile("PosteriorDistribution.txt", e, []string{
		"Normalized posterior probability per sample point",
		"Column 1: probability",
	}, func(out *bufio.Writer) error {
		for _, p := range e.Probabilities() {
			if _, err := fmt.Fprintf(out, "%.9e\n", p); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteEvidence writes the run's evidence summary.
func (w *Writer) WriteEvidence(e *Extractor) error {
	run := e.Run()
	return w.writeFile("EvidenceInformation.txt", e, []string{
		"Column 1: log evidence",
		"Column 2: log evidence error",
		"Column 3: information gain",
	}, func(out *bufio.Writer) error {
		_, err := fmt.Fprintf(out, "%.9e %.9e %.9e\n",
			run.LogEvidence, run.LogEvidenceError, run.Information)
		return err
	})
}

// WriteParameterSummary writes one estimate row per parameter.
func (w *Writer) WriteParameterSummary(e *Extractor, credibleLevel float64) error {
	summary, err := e.Summary(credibleLevel)
	if err != nil {
		return err
	}
	return w.writeFile("ParameterSummary.txt", e, []string{
		fmt.Sprintf("Credible level: %.2f%%", credibleLevel),
		"Column 1: mean",
		"Column 2: median",
		"Column 3: mode",
		"Column 4: second moment",
		"Column 5: lower credible bound",
		"Column 6: upper credible bound",
	}, func(out *bufio.Writer) error {
		for _, est := range summary {
			_, err := fmt.Fprintf(out, "%.9e %.9e %.9e %.9e %.9e %.9e\n",
				est.Mean, est.Median, est.Mode, est.SecondMoment, est.LowerCI, est.UpperCI)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteMarginal writes the marginal distribution grid of one parameter.
func (w *Writer) WriteMarginal(e *Extractor, param int) error {
	m, err := e.Marginal(param)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("MarginalDistribution%03d.txt", param)
	return w.writeFile(name, e, []string{
		fmt.Sprintf("Marginal distribution of parameter %d", param),
		"Column 1: parameter value",
		"Column 2: probability",
	}, func(out *bufio.Writer) error {
		for i, v := range m.Values {
			if _, err := fmt.Fprintf(out, "%.9e %.9e\n", v, m.Probabilities[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (w *Writer) writeFile(name string, e *Extractor, header []string, body func(*bufio.Writer) error) error {
	path := w.prefix + name
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("results: create output dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("results: create %s: %w", name, err)
	}
	defer f.Close()

	out := bufio.NewWriter(f)
	if _, err := fmt.Fprintf(out, "# Run ID: %s\n", e.Run().RunID); err != nil {
		return fmt.Errorf("results: write %s: %w", name, err)
	}
	for _, line := range header {
		if _, err := fmt.Fprintf(out, "# %s\n", line); err != nil {
			return fmt.Errorf("results: write %s: %w", name, err)
		}
	}
	if err := body(out); err != nil {
		return fmt.Errorf("results: write %s: %w", name, err)
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("results: write %s: %w", name, err)
	}
	return nil
}
