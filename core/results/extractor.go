package results

import (
	"errors"
	"fmt"
	"math"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/adalundhe/starnest/core/sampler"
)

// =============================================================================
// Posterior Extraction
// =============================================================================
//
// Extractor turns a finished run's weighted posterior sample into per-
// parameter marginal distributions and point estimates. Marginals are value-
// sorted with exact-duplicate abscissas merged, so downstream consumers see
// a proper discrete distribution. Built marginals are cached per parameter
// index since summary and file output both walk them.

var (
	// ErrEmptyPosterior reports a run without any posterior sample.
	ErrEmptyPosterior = errors.New("results: empty posterior sample")

	// ErrParamOutOfRange reports a parameter index beyond the run's
	// dimension.
	ErrParamOutOfRange = errors.New("results: parameter index out of range")
)

// marginalCacheSize bounds the per-extractor marginal cache. Runs rarely go
// beyond a few dozen dimensions.
const marginalCacheSize = 64

// Marginal is a discrete one-dimensional marginal distribution: abscissas in
// ascending order, probabilities summing to the posterior mass carried by
// the parameter.
type Marginal struct {
	Values        []float64
	Probabilities []float64
}

// Estimate is the per-parameter summary row: first and second moments,
// median, mode and the shortest credible interval.
type Estimate struct {
	Mean         float64
	Median       float64
	Mode         float64
	SecondMoment float64
	LowerCI      float64
	UpperCI      float64
}

// Extractor computes posterior summaries from a finished run.
type Extractor struct {
	run   *sampler.Run
	probs []float64
	cache *lru.Cache[int, *Marginal]
}

// NewExtractor precomputes the normalized posterior probabilities
// exp(logW - logZ) for every retired point.
func NewExtractor(run *sampler.Run) (*Extractor, error) {
	if run == nil || len(run.Posterior) == 0 {
		return nil, ErrEmptyPosterior
	}

	probs := make([]float64, len(run.Posterior))
	for i, p := range run.Posterior {
		probs[i] = math.Exp(p.LogWeight - run.LogEvidence)
	}

	cache, err := lru.New[int, *Marginal](marginalCacheSize)
	if err != nil {
		return nil, fmt.Errorf("results: marginal cache: %w", err)
	}

	return &Extractor{run: run, probs: probs, cache: cache}, nil
}

// Run returns the underlying run.
func (e *Extractor) Run() *sampler.Run { return e.run }

// Probabilities returns the normalized posterior probability of each point,
// aligned with the run's posterior sample.
func (e *Extractor) Probabilities() []float64 { return e.probs }

// Marginal returns the value-sorted, duplicate-merged marginal distribution
// of one parameter.
func (e *Extractor) Marginal(param int) (*Marginal, error) {
	if param < 0 || param >= e.run.Dimension {
		return nil, fmt.Errorf("%w: %d of %d", ErrParamOutOfRange, param, e.run.Dimension)
	}
	if m, ok := e.cache.Get(param); ok {
		return m, nil
	}

	n := len(e.run.Posterior)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return e.run.Posterior[order[a]].Phys[param] < e.run.Posterior[order[b]].Phys[param]
	})

	// Merge runs of identical abscissas. A keep mask marks the first
	// occurrence; its probability absorbs the duplicates.
	values := make([]float64, n)
	probs := make([]float64, n)
	keep := make([]bool, n)
	for i, id := range order {
		values[i] = e.run.Posterior[id].Phys[param]
		probs[i] = e.probs[id]
		keep[i] = true
	}
	last := 0
	for i := 1; i < n; i++ {
		if values[i] == values[last] {
			probs[last] += probs[i]
			keep[i] = false
			continue
		}
		last = i
	}

	m := &Marginal{}
	for i := 0; i < n; i++ {
		if !keep[i] {
			continue
		}
		m.Values = append(m.Values, values[i])
		m.Probabilities = append(m.Probabilities, probs[i])
	}

	e.cache.Add(param, m)
	return m, nil
}

// Estimate summarizes one parameter. credibleLevel is a percentage, e.g.
// 68.3 for the conventional one-sigma interval.
func (e *Extractor) Estimate(param int, credibleLevel float64) (Estimate, error) {
	m, err := e.Marginal(param)
	if err != nil {
		return Estimate{}, err
	}

	total := floats.Sum(m.Probabilities)
	mean := stat.Mean(m.Values, m.Probabilities)

	variance := 0.0
	for i, v := range m.Values {
		variance += m.Probabilities[i] * (v - mean) * (v - mean)
	}
	variance /= total

	est := Estimate{
		Mean:         mean,
		Median:       median(m, total),
		SecondMoment: variance,
	}

	mode := argmax(m.Probabilities)
	est.Mode = m.Values[mode]
	est.LowerCI, est.UpperCI = shortestInterval(m, mode, total*credibleLevel/100)
	return est, nil
}

// Summary computes the estimate row of every parameter.
func (e *Extractor) Summary(credibleLevel float64) ([]Estimate, error) {
	out := make([]Estimate, e.run.Dimension)
	for d := range out {
		est, err := e.Estimate(d, credibleLevel)
		if err != nil {
			return nil, err
		}
		out[d] = est
	}
	return out, nil
}

// median returns the abscissa at which the cumulative distribution first
// crosses half the total mass.
func median(m *Marginal, total float64) float64 {
	cum := 0.0
	for i, p := range m.Probabilities {
		cum += p
		if cum >= total/2 {
			return m.Values[i]
		}
	}
	return m.Values[len(m.Values)-1]
}

func argmax(p []float64) int {
	best := 0
	for i := 1; i < len(p); i++ {
		if p[i] > p[best] {
			best = i
		}
	}
	return best
}

// shortestInterval grows an interval outward from the mode, always taking
// the more probable neighbor, until it holds the requested mass. Starting
// at the density peak yields the shortest credible interval of the discrete
// marginal.
func shortestInterval(m *Marginal, mode int, mass float64) (float64, float64) {
	left, right := mode, mode
	acc := m.Probabilities[mode]

	for acc < mass {
		switch {
		case left == 0 && right == len(m.Values)-1:
			return m.Values[left], m.Values[right]
		case left == 0:
			right++
			acc += m.Probabilities[right]
		case right == len(m.Values)-1:
			left--
			acc += m.Probabilities[left]
		case m.Probabilities[left-1] >= m.Probabilities[right+1]:
			left--
			acc += m.Probabilities[left]
		default:
			right++
			acc += m.Probabilities[right]
		}
	}
	return m.Values[left], m.Values[right]
}
