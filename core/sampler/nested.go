package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/google/uuid"

	"github.com/adalundhe/starnest/core/clustering"
	"github.com/adalundhe/starnest/core/metric"
	"github.com/adalundhe/starnest/core/model"
	"github.com/adalundhe/starnest/core/prior"
)

// =============================================================================
// Nested Sampling Driver
// =============================================================================
//
// NestedSampler runs the nested-sampling loop: retire the worst live point,
// credit its evidence contribution over the current prior-mass shell, draw a
// replacement above the retired likelihood from the ellipsoid union, and
// shrink the prior mass. The loop ends when the estimated remaining evidence
// falls below the termination fraction of the running total, after which the
// survivors are distributed over the final prior mass.

// Config holds the construction-time parameters of a sampler.
type Config struct {
	// NInitial is the starting live-point count.
	NInitial int

	// NMin is the hard floor no reducer may cross.
	NMin int

	// InitialEnlargement and ShrinkingRate drive the ellipsoid enlargement
	// schedule f = InitialEnlargement * X^ShrinkingRate * n_k/N.
	InitialEnlargement float64
	ShrinkingRate      float64

	// Seed fixes the run's random stream. Zero seeds from entropy.
	Seed int64

	// Workers is the parallel replacement-draw width; <=1 runs sequential.
	Workers int
}

// DefaultConfig returns the parameters used by the bundled demos.
func DefaultConfig() Config {
	return Config{
		NInitial:           400,
		NMin:               400,
		InitialEnlargement: 2.5,
		ShrinkingRate:      0.6,
		Workers:            1,
	}
}

// RunParams holds the per-run loop controls.
type RunParams struct {
	// NInitNoClustering is the number of initial iterations during which
	// all live points form a single ellipsoid.
	NInitNoClustering int

	// ReclusterPeriod is the iteration stride between geometry rebuilds.
	ReclusterPeriod int

	// MaxDrawAttempts bounds the proposals per replacement, including
	// proposals rejected before a likelihood evaluation.
	MaxDrawAttempts int

	// TerminationFactor stops the run once the estimated remaining
	// evidence is at or below this fraction of the total. A value of 1
	// stops immediately.
	TerminationFactor float64

	// MaxIterations caps the loop; 0 means unbounded.
	MaxIterations int

	// LogInterval is the iteration stride between progress log lines;
	// 0 disables progress logging.
	LogInterval int
}

// DefaultRunParams returns the loop controls used by the bundled demos.
func DefaultRunParams() RunParams {
	return RunParams{
		NInitNoClustering: 100,
		ReclusterPeriod:   10,
		MaxDrawAttempts:   50000,
		TerminationFactor: 0.01,
		LogInterval:       500,
	}
}

// Run is the outcome of one nested-sampling run. A non-nil error from Run()
// still returns the partial state accumulated so far, except for invalid
// RunParams, which return a nil Run.
type Run struct {
	RunID uuid.UUID

	Posterior []PosteriorPoint

	LogEvidence      float64
	LogEvidenceError float64
	Information      float64

	Iterations int
	Converged  bool
	FinalNLive int
	Dimension  int
}

// NestedSampler owns the live-point population and the constrained sampler.
type NestedSampler struct {
	cfg    Config
	prior  prior.Prior
	like   model.Likelihood
	kmeans *clustering.Kmeans
	logger *slog.Logger

	constrained *multiEllipsoid
	rng         *rand.Rand
}

// New builds a sampler. The metric is shared between the clusterer and the
// degenerate-cluster merge inside the constrained sampler.
func New(cfg Config, m metric.Metric, pr prior.Prior, like model.Likelihood, km *clustering.Kmeans, logger *slog.Logger) (*NestedSampler, error) {
	if cfg.NInitial < 2 {
		return nil, fmt.Errorf("%w: nInitial %d", ErrInvalidConfig, cfg.NInitial)
	}
	if cfg.NMin < 1 || cfg.NMin > cfg.NInitial {
		return nil, fmt.Errorf("%w: nMin %d with nInitial %d", ErrInvalidConfig, cfg.NMin, cfg.NInitial)
	}
	if cfg.InitialEnlargement < 1 {
		return nil, fmt.Errorf("%w: initial enlargement %g", ErrInvalidConfig, cfg.InitialEnlargement)
	}
	if cfg.ShrinkingRate < 0 || cfg.ShrinkingRate > 1 {
		return nil, fmt.Errorf("%w: shrinking rate %g", ErrInvalidConfig, cfg.ShrinkingRate)
	}
	if logger == nil {
		logger = slog.Default()
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	return &NestedSampler{
		cfg:         cfg,
		prior:       pr,
		like:        like,
		kmeans:      km,
		logger:      logger,
		constrained: newMultiEllipsoid(m, pr, like, cfg.InitialEnlargement, cfg.ShrinkingRate, cfg.Workers, logger),
		rng:         rand.New(rand.NewSource(seed)),
	}, nil
}

// Run executes the nested-sampling loop until termination, the iteration
// cap, context cancellation or a draw failure. Once the parameters pass
// validation, the returned Run carries whatever posterior sample was
// accumulated; invalid parameters return a nil Run and ErrInvalidConfig.
func (s *NestedSampler) Run(ctx context.Context, reducer Reducer, params RunParams) (*Run, error) {
	if err := validateRunParams(params); err != nil {
		return nil, err
	}
	if reducer == nil {
		reducer = ConstantReducer{}
	}

	run := &Run{
		RunID:     uuid.New(),
		Dimension: s.prior.Dimension(),
	}

	live, err := s.initLive()
	if err != nil {
		return run, err
	}

	ev := newEvidence()
	logTf := math.Log(params.TerminationFactor)
	lastTarget := len(live)
	var unitBuf [][]float64

	s.logger.Info("nested sampling started",
		slog.String("run_id", run.RunID.String()),
		slog.Int("n_live", len(live)),
		slog.Int("dimension", run.Dimension),
	)

	for iter := 1; params.MaxIterations == 0 || iter <= params.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			s.finish(run, live, &ev, false)
			return run, err
		}

		// Before any accumulation the remaining estimate IS the total, so
		// the ratio starts at one; <= lets a termination factor of 1 stop
		// the run before the first retirement.
		logRemaining := bestLogLike(live) + ev.logX
		if logRemaining-logSumExp(ev.logZ, logRemaining) <= logTf {
			s.finish(run, live, &ev, true)
			return run, nil
		}

		if s.needRebuild(iter, params) {
			unitBuf = unitCoords(live, unitBuf)
			part, err := s.partition(unitBuf, iter, params)
			if err != nil {
				run.Iterations = iter - 1
				s.finish(run, live, &ev, false)
				return run, err
			}
			if err := s.constrained.Rebuild(unitBuf, part, ev.logX); err != nil {
				run.Iterations = iter - 1
				s.finish(run, live, &ev, false)
				return run, err
			}
		}

		target := reducer.UpdateTarget(ReducerSnapshot{
			Iteration:    iter,
			NLive:        len(live),
			LogEvidence:  ev.logZ,
			LogRemaining: logRemaining,
		})
		if target > lastTarget {
			target = lastTarget
		}
		if target < s.cfg.NMin {
			target = s.cfg.NMin
		}
		lastTarget = target

		worst := worstIndex(live)
		threshold := live[worst].LogLike
		s.retire(run, &ev, live[worst], len(live))

		if len(live) > target {
			live = removeAt(live, worst)
			for len(live) > target {
				w := worstIndex(live)
				s.retire(run, &ev, live[w], len(live))
				live = removeAt(live, w)
			}
		} else {
			p, err := s.constrained.Draw(s.rng, threshold, params.MaxDrawAttempts)
			if err != nil {
				live = removeAt(live, worst)
				run.Iterations = iter
				s.finish(run, live, &ev, false)
				return run, fmt.Errorf("iteration %d: %w", iter, err)
			}
			live[worst] = p
		}

		run.Iterations = iter
		if params.LogInterval > 0 && iter%params.LogInterval == 0 {
			s.logger.Info("nested sampling progress",
				slog.Int("iteration", iter),
				slog.Int("n_live", len(live)),
				slog.Int("ellipsoids", s.constrained.NumEllipsoids()),
				slog.Float64("log_evidence", ev.logZ),
				slog.Float64("log_remaining", logRemaining),
			)
		}
	}

	s.finish(run, live, &ev, false)
	return run, nil
}

func validateRunParams(p RunParams) error {
	if p.NInitNoClustering < 0 {
		return fmt.Errorf("%w: nInitNoClustering %d", ErrInvalidConfig, p.NInitNoClustering)
	}
	if p.ReclusterPeriod < 1 {
		return fmt.Errorf("%w: recluster period %d", ErrInvalidConfig, p.ReclusterPeriod)
	}
	if p.MaxDrawAttempts < 1 {
		return fmt.Errorf("%w: max draw attempts %d", ErrInvalidConfig, p.MaxDrawAttempts)
	}
	if p.TerminationFactor <= 0 || p.TerminationFactor > 1 {
		return fmt.Errorf("%w: termination factor %g", ErrInvalidConfig, p.TerminationFactor)
	}
	if p.MaxIterations < 0 {
		return fmt.Errorf("%w: max iterations %d", ErrInvalidConfig, p.MaxIterations)
	}
	return nil
}

// initLive draws the starting population directly from the prior.
func (s *NestedSampler) initLive() ([]LivePoint, error) {
	dim := s.prior.Dimension()
	live := make([]LivePoint, s.cfg.NInitial)
	for i := range live {
		unit := make([]float64, dim)
		for d := range unit {
			unit[d] = s.rng.Float64()
		}
		phys := make([]float64, dim)
		s.prior.FromUnitTo(phys, unit)
		live[i] = LivePoint{Unit: unit, Phys: phys, LogLike: s.like.LogLikelihood(phys)}
	}
	return live, nil
}

// needRebuild reports whether the ellipsoid geometry must be reconstructed
// this iteration. The first iteration always builds; afterwards the geometry
// refreshes every ReclusterPeriod iterations and is reused in between.
func (s *NestedSampler) needRebuild(iter int, params RunParams) bool {
	if s.constrained.NumEllipsoids() == 0 {
		return true
	}
	return iter%params.ReclusterPeriod == 0
}

// partition groups the live points. Early iterations keep a single cluster
// so the geometry settles before clustering is trusted.
func (s *NestedSampler) partition(units [][]float64, iter int, params RunParams) (*clustering.Partition, error) {
	if iter <= params.NInitNoClustering || s.kmeans == nil {
		return singlePartition(len(units)), nil
	}
	return s.kmeans.Cluster(units, s.rng)
}

func singlePartition(n int) *clustering.Partition {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return &clustering.Partition{
		K:           1,
		Assignments: make([]int, n),
		Sizes:       []int{n},
		Indices:     [][]int{idx},
	}
}

// retire credits one point's shell contribution, records it in the posterior
// sample and shrinks the prior mass by one step of n live points.
func (s *NestedSampler) retire(run *Run, ev *evidence, p LivePoint, n int) {
	logw := ev.accumulate(p.LogLike, logShellWidth(ev.logX, n))
	run.Posterior = append(run.Posterior, PosteriorPoint{
		Phys:      p.Phys,
		LogLike:   p.LogLike,
		LogWeight: logw,
	})
	ev.shrink(n)
}

// finish distributes the remaining prior mass uniformly over the survivors
// and seals the run summary.
func (s *NestedSampler) finish(run *Run, live []LivePoint, ev *evidence, converged bool) {
	if n := len(live); n > 0 {
		logWidth := ev.logX - math.Log(float64(n))
		for _, p := range live {
			logw := ev.accumulate(p.LogLike, logWidth)
			run.Posterior = append(run.Posterior, PosteriorPoint{
				Phys:      p.Phys,
				LogLike:   p.LogLike,
				LogWeight: logw,
			})
		}
	}

	run.LogEvidence = ev.logZ
	run.Information = ev.info
	run.LogEvidenceError = math.Sqrt(ev.info / float64(s.cfg.NInitial))
	run.Converged = converged
	run.FinalNLive = len(live)

	s.logger.Info("nested sampling finished",
		slog.String("run_id", run.RunID.String()),
		slog.Bool("converged", converged),
		slog.Int("iterations", run.Iterations),
		slog.Float64("log_evidence", run.LogEvidence),
		slog.Float64("log_evidence_error", run.LogEvidenceError),
		slog.Float64("information", run.Information),
	)
}

func removeAt(live []LivePoint, i int) []LivePoint {
	live[i] = live[len(live)-1]
	return live[:len(live)-1]
}
