package prior

import (
	"errors"
	"fmt"
	"math"
)

// Joint composes several priors over consecutive dimension blocks, so a run
// can mix uniform and normal priors across its parameters.
type Joint struct {
	parts   []Prior
	offsets []int
	dim     int
}

// NewJoint concatenates the given priors in order.
func NewJoint(parts ...Prior) (*Joint, error) {
	if len(parts) == 0 {
		return nil, errors.New("prior: joint needs at least one part")
	}

	offsets := make([]int, len(parts))
	dim := 0
	for i, p := range parts {
		if p == nil {
			return nil, fmt.Errorf("prior: nil part at index %d", i)
		}
		offsets[i] = dim
		dim += p.Dimension()
	}
	return &Joint{parts: parts, offsets: offsets, dim: dim}, nil
}

func (p *Joint) Dimension() int { return p.dim }

func (p *Joint) FromUnit(u []float64) []float64 {
	out := make([]float64, p.dim)
	p.FromUnitTo(out, u)
	return out
}

func (p *Joint) FromUnitTo(dst, u []float64) {
	for i, part := range p.parts {
		lo := p.offsets[i]
		hi := lo + part.Dimension()
		part.FromUnitTo(dst[lo:hi], u[lo:hi])
	}
}

func (p *Joint) ToUnit(theta []float64) []float64 {
	out := make([]float64, p.dim)
	for i, part := range p.parts {
		lo := p.offsets[i]
		hi := lo + part.Dimension()
		copy(out[lo:hi], part.ToUnit(theta[lo:hi]))
	}
	return out
}

func (p *Joint) LogPdf(theta []float64) float64 {
	var sum float64
	for i, part := range p.parts {
		lo := p.offsets[i]
		hi := lo + part.Dimension()
		lp := part.LogPdf(theta[lo:hi])
		if math.IsInf(lp, -1) {
			return lp
		}
		sum += lp
	}
	return sum
}
