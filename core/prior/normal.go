package prior

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Normal is a separable Gaussian prior. The unit-hypercube mapping uses the
// Gaussian quantile function, so uniform draws in [0,1] transform to normal
// draws in physical space.
//
// The support is unbounded; callers that need a bounded parameter space
// should prefer Uniform or truncate at the likelihood level.
type Normal struct {
	dists []distuv.Normal
}

// NewNormal builds a normal prior with per-dimension means and standard
// deviations. Every sigma must be positive.
func NewNormal(means, stddevs []float64) (*Normal, error) {
	if len(means) == 0 || len(means) != len(stddevs) {
		return nil, fmt.Errorf("prior: normal parameter length mismatch: %d vs %d", len(means), len(stddevs))
	}

	dists := make([]distuv.Normal, len(means))
	for i := range means {
		if stddevs[i] <= 0 || math.IsNaN(stddevs[i]) {
			return nil, fmt.Errorf("prior: invalid stddev %g at dimension %d", stddevs[i], i)
		}
		dists[i] = distuv.Normal{Mu: means[i], Sigma: stddevs[i]}
	}
	return &Normal{dists: dists}, nil
}

func (p *Normal) Dimension() int { return len(p.dists) }

func (p *Normal) FromUnit(u []float64) []float64 {
	out := make([]float64, len(p.dists))
	p.FromUnitTo(out, u)
	return out
}

func (p *Normal) FromUnitTo(dst, u []float64) {
	for i := range p.dists {
		dst[i] = p.dists[i].Quantile(clampUnit(u[i]))
	}
}

func (p *Normal) ToUnit(theta []float64) []float64 {
	out := make([]float64, len(p.dists))
	for i := range p.dists {
		out[i] = p.dists[i].CDF(theta[i])
	}
	return out
}

func (p *Normal) LogPdf(theta []float64) float64 {
	var sum float64
	for i := range p.dists {
		sum += p.dists[i].LogProb(theta[i])
	}
	return sum
}

// clampUnit keeps quantile arguments strictly inside (0, 1); the endpoints
// map to infinite parameters.
func clampUnit(u float64) float64 {
	const eps = 1e-15
	if u < eps {
		return eps
	}
	if u > 1-eps {
		return 1 - eps
	}
	return u
}
