package model

import (
	"math"
)

// =============================================================================
// Benchmark Likelihoods
// =============================================================================
//
// Standard test problems for nested-sampling validation. Each has either a
// closed-form evidence under a stated uniform prior or well-known posterior
// structure, which the end-to-end tests and the demo CLI rely on.

// Gaussian is an isotropic multivariate Gaussian likelihood centered at a
// given point:
//
//	log L = -D/2 log(2 pi sigma^2) - |theta - mu|^2 / (2 sigma^2)
//
// Under a uniform prior on a box of volume V that comfortably contains the
// bulk of the Gaussian, the evidence is Z ~= 1/V.
type Gaussian struct {
	Center []float64
	Sigma  float64
}

func (g Gaussian) LogLikelihood(theta []float64) float64 {
	dim := len(g.Center)
	norm := -0.5 * float64(dim) * math.Log(2*math.Pi*g.Sigma*g.Sigma)
	var sq float64
	for d := 0; d < dim; d++ {
		diff := theta[d] - g.Center[d]
		sq += diff * diff
	}
	return norm - sq/(2*g.Sigma*g.Sigma)
}

// Himmelblau is the classic four-minimum test surface, exponentiated into a
// four-mode likelihood:
//
//	f(x, y) = (x^2 + y - 11)^2 + (x + y^2 - 7)^2
//	log L   = -f(x, y) / 2
//
// Modes lie near (3, 2), (-2.81, 3.13), (-3.78, -3.28) and (3.58, -1.85).
type Himmelblau struct{}

func (Himmelblau) LogLikelihood(theta []float64) float64 {
	x, y := theta[0], theta[1]
	a := x*x + y - 11
	b := x + y*y - 7
	return -(a*a + b*b) / 2
}

// Eggbox is the heavily multimodal surface
//
//	log L = (2 + cos(x/2) cos(y/2))^5
//
// with known log-evidence ~= 235.88 under a uniform prior on [0, 10 pi]^2.
type Eggbox struct{}

func (Eggbox) LogLikelihood(theta []float64) float64 {
	base := 2 + math.Cos(theta[0]/2)*math.Cos(theta[1]/2)
	return math.Pow(base, 5)
}

// Flat is the constant likelihood log L = 0. The evidence equals the prior
// normalization, making termination behavior exactly predictable.
type Flat struct{}

func (Flat) LogLikelihood([]float64) float64 { return 0 }

// Rosenbrock is the curved-valley surface
//
//	log L = -sum_i [ 100 (theta_{i+1} - theta_i^2)^2 + (1 - theta_i)^2 ]
//
// a stress test for ellipsoidal decomposition of a non-elliptical contour.
type Rosenbrock struct{}

func (Rosenbrock) LogLikelihood(theta []float64) float64 {
	var sum float64
	for i := 0; i+1 < len(theta); i++ {
		a := theta[i+1] - theta[i]*theta[i]
		b := 1 - theta[i]
		sum += 100*a*a + b*b
	}
	return -sum
}
