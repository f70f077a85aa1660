package geometry

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// =============================================================================
// Bounding Ellipsoids
// =============================================================================
//
// An ellipsoid is defined by a center c, a covariance Sigma and an enlargement
// factor f >= 1:
//
//	{ x : (x-c)^T (f*Sigma)^-1 (x-c) <= 1 }
//
// The covariance is eigendecomposed once at construction (Sigma = Q L Q^T) and
// the decomposition is immutable afterwards. All geometric operations work in
// the eigenbasis:
//
//	contains:  sum_i y_i^2 / lambda_i <= f          with y = Q^T (x-c)
//	sample:    x = c + Q diag(sqrt(f*lambda)) u     with u uniform in the unit ball
//	volume:    f^(D/2) * V_ball(D) * prod_i sqrt(lambda_i)

// ErrDegenerateCovariance reports a sample covariance that could not be
// stabilized by eigenvalue flooring.
var ErrDegenerateCovariance = errors.New("geometry: degenerate covariance")

// eigenvalueFloor is the minimum eigenvalue admitted after stabilization.
// Clusters smaller than D+1 points produce rank-deficient covariances; the
// floor keeps the ellipsoid full-dimensional.
const eigenvalueFloor = 1e-12

// Ellipsoid is a bounding ellipsoid over a point cluster. Construct with
// NewFromPoints; the zero value is not usable.
type Ellipsoid struct {
	dim    int
	center []float64

	// Eigendecomposition of the (floored) covariance.
	eigvals []float64 // lambda_i > 0
	eigvecs *mat.Dense // Q, eigenvectors in columns

	enlargement float64
	sqrtDet     float64 // prod_i sqrt(lambda_i), cached for Volume
}

// NewFromPoints builds the ellipsoid bounding the given points: sample mean,
// unbiased sample covariance, eigendecomposition with eigenvalue flooring.
// The returned ellipsoid has enlargement 1; callers grow it with Enlarge so
// that every source point satisfies Contains.
func NewFromPoints(points [][]float64) (*Ellipsoid, error) {
	if len(points) == 0 {
		return nil, errors.New("geometry: no points")
	}
	dim := len(points[0])
	if dim == 0 {
		return nil, errors.New("geometry: zero-dimensional points")
	}

	n := len(points)
	center := make([]float64, dim)
	for _, p := range points {
		if len(p) != dim {
			return nil, fmt.Errorf("geometry: ragged point set: %d vs %d", len(p), dim)
		}
		for d := 0; d < dim; d++ {
			center[d] += p[d]
		}
	}
	for d := 0; d < dim; d++ {
		center[d] /= float64(n)
	}

	cov := mat.NewSymDense(dim, nil)
	if n > 1 {
		norm := 1.0 / float64(n-1)
		for i := 0; i < dim; i++ {
			for j := i; j < dim; j++ {
				var s float64
				for _, p := range points {
					s += (p[i] - center[i]) * (p[j] - center[j])
				}
				cov.SetSym(i, j, s*norm)
			}
		}
	}

	return newFromMoments(center, cov)
}

// newFromMoments finishes construction from a precomputed mean and covariance.
func newFromMoments(center []float64, cov *mat.SymDense) (*Ellipsoid, error) {
	dim := len(center)

	var eig mat.EigenSym
	if ok := eig.Factorize(cov, true); !ok {
		return nil, fmt.Errorf("%w: eigendecomposition failed (dim=%d)", ErrDegenerateCovariance, dim)
	}

	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	sqrtDet := 1.0
	for i, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite eigenvalue", ErrDegenerateCovariance)
		}
		if v < eigenvalueFloor {
			v = eigenvalueFloor
			vals[i] = v
		}
		sqrtDet *= math.Sqrt(v)
	}
	if sqrtDet == 0 || math.IsNaN(sqrtDet) {
		return nil, fmt.Errorf("%w: zero determinant after flooring", ErrDegenerateCovariance)
	}

	return &Ellipsoid{
		dim:         dim,
		center:      center,
		eigvals:     vals,
		eigvecs:     &vecs,
		enlargement: 1.0,
		sqrtDet:     sqrtDet,
	}, nil
}

// Dimension returns the ambient dimension.
func (e *Ellipsoid) Dimension() int { return e.dim }

// Center returns the ellipsoid center. The slice is owned by the ellipsoid.
func (e *Ellipsoid) Center() []float64 { return e.center }

// Enlargement returns the current enlargement factor.
func (e *Ellipsoid) Enlargement() float64 { return e.enlargement }

// Enlarge sets the enlargement factor. Values below 1 are clamped to 1:
// the ellipsoid never shrinks below the raw covariance geometry.
func (e *Ellipsoid) Enlarge(f float64) {
	if f < 1 || math.IsNaN(f) {
		f = 1
	}
	e.enlargement = f
}

// MahalanobisSquared returns (x-c)^T Sigma^-1 (x-c) without enlargement.
// A point is inside the enlarged ellipsoid iff this is <= Enlargement().
func (e *Ellipsoid) MahalanobisSquared(x []float64) float64 {
	var sum float64
	for j := 0; j < e.dim; j++ {
		// y_j = column j of Q dotted with (x - c)
		var y float64
		for d := 0; d < e.dim; d++ {
			y += e.eigvecs.At(d, j) * (x[d] - e.center[d])
		}
		sum += y * y / e.eigvals[j]
	}
	return sum
}

// Contains reports whether x lies inside the enlarged ellipsoid.
func (e *Ellipsoid) Contains(x []float64) bool {
	return e.MahalanobisSquared(x) <= e.enlargement
}

// SampleUniform draws a point uniformly from the enlarged ellipsoid.
// Standard construction: a Gaussian direction normalized onto the unit
// sphere, a radius U^(1/D), then the affine map Q diag(sqrt(f*lambda)).
func (e *Ellipsoid) SampleUniform(rng *rand.Rand) []float64 {
	u := make([]float64, e.dim)
	var norm float64
	for d := 0; d < e.dim; d++ {
		u[d] = rng.NormFloat64()
		norm += u[d] * u[d]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		// All-zero Gaussian draw has probability zero; fall back to the
		// first axis direction instead of dividing by zero.
		u[0] = 1
		norm = 1
	}

	radius := math.Pow(rng.Float64(), 1.0/float64(e.dim))
	scale := radius / norm
	for d := 0; d < e.dim; d++ {
		u[d] *= scale * math.Sqrt(e.enlargement*e.eigvals[d])
	}

	// Rotate into the original basis and translate.
	x := make([]float64, e.dim)
	for d := 0; d < e.dim; d++ {
		var s float64
		for j := 0; j < e.dim; j++ {
			s += e.eigvecs.At(d, j) * u[j]
		}
		x[d] = e.center[d] + s
	}
	return x
}

// Volume returns the volume of the enlarged ellipsoid.
func (e *Ellipsoid) Volume() float64 {
	halfD := float64(e.dim) / 2
	unitBall := math.Pow(math.Pi, halfD) / math.Gamma(halfD+1)
	return math.Pow(e.enlargement, halfD) * unitBall * e.sqrtDet
}
