package metric

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Mahalanobis measures distance under a fixed covariance:
//
//	d(a, b) = sqrt((a-b)^T Sigma^-1 (a-b))
//
// The covariance is Cholesky-factored once at construction; each call solves
// one linear system instead of forming the inverse.
type Mahalanobis struct {
	chol *mat.Cholesky
	dim  int
}

// NewMahalanobis builds the metric from a symmetric positive-definite
// covariance matrix. Returns an error if the factorization fails.
func NewMahalanobis(cov *mat.SymDense) (*Mahalanobis, error) {
	if cov == nil {
		return nil, errors.New("mahalanobis: nil covariance")
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return nil, fmt.Errorf("mahalanobis: covariance is not positive definite (dim=%d)", cov.SymmetricDim())
	}

	return &Mahalanobis{chol: &chol, dim: cov.SymmetricDim()}, nil
}

// Dimension returns the dimensionality the metric was built for.
func (m *Mahalanobis) Dimension() int { return m.dim }

func (m *Mahalanobis) Distance(a, b []float64) float64 {
	return math.Sqrt(m.SquaredDistance(a, b))
}

func (m *Mahalanobis) SquaredDistance(a, b []float64) float64 {
	if len(a) != m.dim || len(b) != m.dim {
		panic(fmt.Sprintf("mahalanobis: dimension mismatch: %d vs %d, metric dim %d", len(a), len(b), m.dim))
	}

	d := make([]float64, m.dim)
	for i := range d {
		d[i] = a[i] - b[i]
	}

	v := mat.NewVecDense(m.dim, d)
	var solved mat.VecDense
	if err := m.chol.SolveVecTo(&solved, v); err != nil {
		return math.Inf(1)
	}

	return mat.Dot(v, &solved)
}
