package prior

import (
	"fmt"
	"math"
)

// Uniform is a separable uniform prior over a hyper-rectangle.
type Uniform struct {
	minima []float64
	maxima []float64
	logPdf float64 // -sum log(width), constant over the support
}

// NewUniform builds a uniform prior over [minima[i], maxima[i]] per
// dimension. Every interval must have positive width.
func NewUniform(minima, maxima []float64) (*Uniform, error) {
	if len(minima) == 0 || len(minima) != len(maxima) {
		return nil, fmt.Errorf("prior: bounds length mismatch: %d vs %d", len(minima), len(maxima))
	}

	var logVolume float64
	for i := range minima {
		width := maxima[i] - minima[i]
		if width <= 0 || math.IsNaN(width) || math.IsInf(width, 0) {
			return nil, fmt.Errorf("prior: invalid interval [%g, %g] at dimension %d", minima[i], maxima[i], i)
		}
		logVolume += math.Log(width)
	}

	u := &Uniform{
		minima: append([]float64(nil), minima...),
		maxima: append([]float64(nil), maxima...),
		logPdf: -logVolume,
	}
	return u, nil
}

func (p *Uniform) Dimension() int { return len(p.minima) }

// Minima returns the lower bounds. The slice is owned by the prior.
func (p *Uniform) Minima() []float64 { return p.minima }

// Maxima returns the upper bounds. The slice is owned by the prior.
func (p *Uniform) Maxima() []float64 { return p.maxima }

func (p *Uniform) FromUnit(u []float64) []float64 {
	out := make([]float64, len(p.minima))
	p.FromUnitTo(out, u)
	return out
}

func (p *Uniform) FromUnitTo(dst, u []float64) {
	for i := range p.minima {
		dst[i] = p.minima[i] + u[i]*(p.maxima[i]-p.minima[i])
	}
}

func (p *Uniform) ToUnit(theta []float64) []float64 {
	out := make([]float64, len(p.minima))
	for i := range p.minima {
		out[i] = (theta[i] - p.minima[i]) / (p.maxima[i] - p.minima[i])
	}
	return out
}

func (p *Uniform) LogPdf(theta []float64) float64 {
	for i := range p.minima {
		if theta[i] < p.minima[i] || theta[i] > p.maxima[i] {
			return math.Inf(-1)
		}
	}
	return p.logPdf
}
