package metric

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestEuclideanMatchesDirectLoop(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	e := NewEuclidean()

	for trial := 0; trial < 20; trial++ {
		dim := 1 + rng.Intn(16)
		a := make([]float64, dim)
		b := make([]float64, dim)
		for d := 0; d < dim; d++ {
			a[d] = rng.NormFloat64()
			b[d] = rng.NormFloat64()
		}

		var want float64
		for d := 0; d < dim; d++ {
			diff := a[d] - b[d]
			want += diff * diff
		}

		assert.InDelta(t, want, e.SquaredDistance(a, b), 1e-10)
		assert.InDelta(t, math.Sqrt(want), e.Distance(a, b), 1e-10)
	}
}

func TestEuclideanIdenticalPoints(t *testing.T) {
	e := NewEuclidean()
	p := []float64{1.5, -2.25, 0.0}
	assert.Zero(t, e.Distance(p, p))
}

func TestMahalanobisIdentityEqualsEuclidean(t *testing.T) {
	dim := 4
	cov := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		cov.SetSym(i, i, 1.0)
	}

	m, err := NewMahalanobis(cov)
	require.NoError(t, err)

	e := NewEuclidean()
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 10; trial++ {
		a := make([]float64, dim)
		b := make([]float64, dim)
		for d := 0; d < dim; d++ {
			a[d] = rng.NormFloat64()
			b[d] = rng.NormFloat64()
		}
		assert.InDelta(t, e.Distance(a, b), m.Distance(a, b), 1e-9)
	}
}

func TestMahalanobisScaling(t *testing.T) {
	// With Sigma = diag(4, 4), distances shrink by a factor of 2.
	cov := mat.NewSymDense(2, []float64{4, 0, 0, 4})
	m, err := NewMahalanobis(cov)
	require.NoError(t, err)

	a := []float64{0, 0}
	b := []float64{2, 0}
	assert.InDelta(t, 1.0, m.Distance(a, b), 1e-12)
}

func TestMahalanobisRejectsIndefinite(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{1, 2, 2, 1}) // eigenvalues 3, -1
	_, err := NewMahalanobis(cov)
	require.Error(t, err)
}

func TestMahalanobisNilCovariance(t *testing.T) {
	_, err := NewMahalanobis(nil)
	require.Error(t, err)
}
