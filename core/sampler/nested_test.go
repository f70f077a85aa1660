package sampler

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/starnest/core/clustering"
	"github.com/adalundhe/starnest/core/metric"
	"github.com/adalundhe/starnest/core/model"
	"github.com/adalundhe/starnest/core/prior"
)

func boxPrior(t *testing.T, dim int, lo, hi float64) *prior.Uniform {
	t.Helper()
	minima := make([]float64, dim)
	maxima := make([]float64, dim)
	for d := 0; d < dim; d++ {
		minima[d] = lo
		maxima[d] = hi
	}
	pr, err := prior.NewUniform(minima, maxima)
	require.NoError(t, err)
	return pr
}

func newTestSampler(t *testing.T, cfg Config, pr prior.Prior, like model.Likelihood) *NestedSampler {
	t.Helper()
	m := metric.NewEuclidean()
	km, err := clustering.New(m, clustering.DefaultConfig())
	require.NoError(t, err)
	s, err := New(cfg, m, pr, like, km, discardLogger())
	require.NoError(t, err)
	return s
}

// posteriorMass sums the normalized posterior probabilities; a consistent
// run returns 1.
func posteriorMass(run *Run) float64 {
	total := 0.0
	for _, p := range run.Posterior {
		total += math.Exp(p.LogWeight - run.LogEvidence)
	}
	return total
}

func TestRunNearlyFlatLikelihood(t *testing.T) {
	// An almost-flat likelihood on the unit square has evidence ~1, and
	// the iteration count is set by the termination factor alone:
	// roughly -N log(tf).
	like := model.Func(func(theta []float64) float64 {
		return -1e-9 * (theta[0]*theta[0] + theta[1]*theta[1])
	})

	cfg := DefaultConfig()
	cfg.NInitial = 100
	cfg.NMin = 100
	cfg.Seed = 42

	s := newTestSampler(t, cfg, boxPrior(t, 2, 0, 1), like)

	params := DefaultRunParams()
	params.NInitNoClustering = 50
	params.LogInterval = 0

	run, err := s.Run(context.Background(), nil, params)
	require.NoError(t, err)
	assert.True(t, run.Converged)
	assert.InDelta(t, 0, run.LogEvidence, 0.05)

	expected := float64(cfg.NInitial) * -math.Log(params.TerminationFactor)
	assert.InDelta(t, expected, float64(run.Iterations), 0.35*expected)

	assert.InDelta(t, 1.0, posteriorMass(run), 1e-9)
}

func TestRunGaussianEvidence(t *testing.T) {
	// Gaussian likelihood on a box of volume 64: Z ~= 1/64 up to the
	// truncated tails, so logZ ~= -log(64).
	like := model.Gaussian{Center: []float64{0, 0}, Sigma: 1}

	cfg := DefaultConfig()
	cfg.NInitial = 200
	cfg.NMin = 200
	cfg.Seed = 1234

	s := newTestSampler(t, cfg, boxPrior(t, 2, -4, 4), like)

	params := DefaultRunParams()
	params.LogInterval = 0

	run, err := s.Run(context.Background(), nil, params)
	require.NoError(t, err)
	require.True(t, run.Converged)

	assert.InDelta(t, -math.Log(64), run.LogEvidence, 0.4)
	assert.Greater(t, run.Information, 0.0)
	assert.Greater(t, run.LogEvidenceError, 0.0)
	assert.Equal(t, 2, run.Dimension)
	assert.InDelta(t, 1.0, posteriorMass(run), 1e-9)

	// One retirement per iteration under a constant population, and
	// thresholds only rise, so the retired likelihoods are sorted.
	require.GreaterOrEqual(t, len(run.Posterior), run.Iterations)
	for i := 1; i < run.Iterations; i++ {
		assert.GreaterOrEqual(t, run.Posterior[i].LogLike, run.Posterior[i-1].LogLike, "retirement %d", i)
	}
}

func TestRunTerminationFactorOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NInitial = 50
	cfg.NMin = 50
	cfg.Seed = 7

	s := newTestSampler(t, cfg, boxPrior(t, 2, -1, 1), model.Gaussian{Center: []float64{0, 0}, Sigma: 0.5})

	params := DefaultRunParams()
	params.TerminationFactor = 1
	params.LogInterval = 0

	run, err := s.Run(context.Background(), nil, params)
	require.NoError(t, err)
	assert.True(t, run.Converged)
	assert.Equal(t, 0, run.Iterations)
	assert.Equal(t, 50, run.FinalNLive)
	assert.Len(t, run.Posterior, 50)
	assert.InDelta(t, 1.0, posteriorMass(run), 1e-9)
}

func TestRunLikelihoodPlateau(t *testing.T) {
	// A perfectly flat likelihood can never be strictly exceeded, so the
	// very first replacement draw exhausts its budget. The partial run
	// still carries the retired point and the survivors.
	cfg := DefaultConfig()
	cfg.NInitial = 30
	cfg.NMin = 30
	cfg.Seed = 3

	s := newTestSampler(t, cfg, boxPrior(t, 2, 0, 1), model.Flat{})

	params := DefaultRunParams()
	params.MaxDrawAttempts = 100
	params.LogInterval = 0

	run, err := s.Run(context.Background(), nil, params)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDrawExhausted)
	assert.False(t, run.Converged)
	assert.Equal(t, 1, run.Iterations)
	assert.Len(t, run.Posterior, 30)
	assert.Equal(t, 29, run.FinalNLive)
}

func TestRunCancellation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NInitial = 40
	cfg.NMin = 40
	cfg.Seed = 9

	s := newTestSampler(t, cfg, boxPrior(t, 2, -2, 2), model.Gaussian{Center: []float64{0, 0}, Sigma: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	params := DefaultRunParams()
	params.LogInterval = 0

	run, err := s.Run(ctx, nil, params)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, run.Converged)
	assert.Equal(t, 0, run.Iterations)
	assert.Len(t, run.Posterior, 40)
}

func TestRunWithReducer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NInitial = 150
	cfg.NMin = 60
	cfg.Seed = 21

	s := newTestSampler(t, cfg, boxPrior(t, 2, -2, 2), model.Gaussian{Center: []float64{0, 0}, Sigma: 0.5})

	reducer, err := NewFerozReducer(150, 60, 0.05)
	require.NoError(t, err)

	params := DefaultRunParams()
	params.LogInterval = 0

	run, err := s.Run(context.Background(), reducer, params)
	require.NoError(t, err)
	assert.True(t, run.Converged)
	assert.Equal(t, 60, run.FinalNLive)
	assert.InDelta(t, 1.0, posteriorMass(run), 1e-9)

	// Population shedding retires extra points (90 in all, at least one per
	// shedding iteration) and the 60 survivors are appended at the end, so
	// the posterior sample outgrows the iteration count by 60 plus up to
	// the shed population.
	assert.GreaterOrEqual(t, len(run.Posterior), run.Iterations+60)
	assert.LessOrEqual(t, len(run.Posterior), run.Iterations+90+60)
}

func TestRunMaxIterations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NInitial = 50
	cfg.NMin = 50
	cfg.Seed = 5

	s := newTestSampler(t, cfg, boxPrior(t, 2, -4, 4), model.Gaussian{Center: []float64{0, 0}, Sigma: 1})

	params := DefaultRunParams()
	params.MaxIterations = 25
	params.LogInterval = 0

	run, err := s.Run(context.Background(), nil, params)
	require.NoError(t, err)
	assert.False(t, run.Converged)
	assert.Equal(t, 25, run.Iterations)
	assert.Len(t, run.Posterior, 25+50)
}

func TestNewValidation(t *testing.T) {
	m := metric.NewEuclidean()
	pr := boxPrior(t, 2, 0, 1)
	like := model.Flat{}

	cases := []Config{
		{NInitial: 1, NMin: 1, InitialEnlargement: 1.5, ShrinkingRate: 0.5},
		{NInitial: 100, NMin: 0, InitialEnlargement: 1.5, ShrinkingRate: 0.5},
		{NInitial: 100, NMin: 200, InitialEnlargement: 1.5, ShrinkingRate: 0.5},
		{NInitial: 100, NMin: 50, InitialEnlargement: 0.5, ShrinkingRate: 0.5},
		{NInitial: 100, NMin: 50, InitialEnlargement: 1.5, ShrinkingRate: -0.1},
		{NInitial: 100, NMin: 50, InitialEnlargement: 1.5, ShrinkingRate: 1.5},
	}
	for i, cfg := range cases {
		_, err := New(cfg, m, pr, like, nil, discardLogger())
		assert.ErrorIs(t, err, ErrInvalidConfig, "case %d", i)
	}
}

func TestRunParamsValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NInitial = 20
	cfg.NMin = 20
	cfg.Seed = 2

	s := newTestSampler(t, cfg, boxPrior(t, 2, 0, 1), model.Flat{})

	bad := []RunParams{
		{NInitNoClustering: -1, ReclusterPeriod: 10, MaxDrawAttempts: 100, TerminationFactor: 0.01},
		{ReclusterPeriod: 0, MaxDrawAttempts: 100, TerminationFactor: 0.01},
		{ReclusterPeriod: 10, MaxDrawAttempts: 0, TerminationFactor: 0.01},
		{ReclusterPeriod: 10, MaxDrawAttempts: 100, TerminationFactor: 0},
		{ReclusterPeriod: 10, MaxDrawAttempts: 100, TerminationFactor: 1.5},
		{ReclusterPeriod: 10, MaxDrawAttempts: 100, TerminationFactor: 0.01, MaxIterations: -1},
	}
	for i, p := range bad {
		_, err := s.Run(context.Background(), nil, p)
		assert.ErrorIs(t, err, ErrInvalidConfig, "case %d", i)
	}
}
