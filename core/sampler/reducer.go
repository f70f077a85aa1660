package sampler

import (
	"fmt"
	"math"
)

// ReducerSnapshot carries the scalars a reducer may consult. Passing values
// per call keeps reducers free of back-references into the sampler.
type ReducerSnapshot struct {
	// Iteration is the 1-based nested-sampling iteration.
	Iteration int

	// NLive is the current live-point count.
	NLive int

	// LogEvidence and LogRemaining are the accumulated evidence and the
	// estimated remaining contribution, both in log space.
	LogEvidence  float64
	LogRemaining float64
}

// Reducer proposes a live-point population target each iteration. The
// driver enforces monotone non-increase and the configured minimum.
type Reducer interface {
	UpdateTarget(s ReducerSnapshot) int
}

// ConstantReducer keeps the population fixed.
type ConstantReducer struct{}

func (ConstantReducer) UpdateTarget(s ReducerSnapshot) int { return s.NLive }

// FerozReducer relaxes the population from nInitial toward nMin as
//
//	target(i) = nMin + (nInitial - nMin) * exp(-i * tolerance)
type FerozReducer struct {
	nInitial  int
	nMin      int
	tolerance float64
}

// NewFerozReducer builds the reducer. tolerance controls the decay speed;
// larger values shed live points sooner.
func NewFerozReducer(nInitial, nMin int, tolerance float64) (*FerozReducer, error) {
	if nMin < 1 || nInitial < nMin {
		return nil, fmt.Errorf("%w: reducer bounds nInitial=%d nMin=%d", ErrInvalidConfig, nInitial, nMin)
	}
	if tolerance < 0 || math.IsNaN(tolerance) {
		return nil, fmt.Errorf("%w: reducer tolerance %g", ErrInvalidConfig, tolerance)
	}
	return &FerozReducer{nInitial: nInitial, nMin: nMin, tolerance: tolerance}, nil
}

func (r *FerozReducer) UpdateTarget(s ReducerSnapshot) int {
	decay := math.Exp(-float64(s.Iteration) * r.tolerance)
	target := r.nMin + int(math.Round(float64(r.nInitial-r.nMin)*decay))
	if target < r.nMin {
		target = r.nMin
	}
	return target
}

// ExponentialReducer decays the population geometrically, floored at nMin:
//
//	target(i) = nInitial * exp(-i * rate)
type ExponentialReducer struct {
	nInitial int
	nMin     int
	rate     float64
}

// NewExponentialReducer builds the reducer.
func NewExponentialReducer(nInitial, nMin int, rate float64) (*ExponentialReducer, error) {
	if nMin < 1 || nInitial < nMin {
		return nil, fmt.Errorf("%w: reducer bounds nInitial=%d nMin=%d", ErrInvalidConfig, nInitial, nMin)
	}
	if rate < 0 || math.IsNaN(rate) {
		return nil, fmt.Errorf("%w: reducer rate %g", ErrInvalidConfig, rate)
	}
	return &ExponentialReducer{nInitial: nInitial, nMin: nMin, rate: rate}, nil
}

func (r *ExponentialReducer) UpdateTarget(s ReducerSnapshot) int {
	target := int(math.Round(float64(r.nInitial) * math.Exp(-float64(s.Iteration)*r.rate)))
	if target < r.nMin {
		target = r.nMin
	}
	return target
}
