package metric

import (
	"github.com/viterin/vek"
)

// Metric measures distances between points in parameter space.
// Implementations must be safe for concurrent use.
type Metric interface {
	// Distance returns the distance between a and b. Panics if lengths differ.
	Distance(a, b []float64) float64

	// SquaredDistance returns the squared distance. For metrics where the
	// square is cheaper than the distance itself (Euclidean), callers that
	// only compare magnitudes should prefer this.
	SquaredDistance(a, b []float64) float64
}

// Euclidean is the standard L2 metric. The kernels use vek's SIMD
// implementations where available.
type Euclidean struct{}

// NewEuclidean returns the Euclidean metric.
func NewEuclidean() Euclidean { return Euclidean{} }

func (Euclidean) Distance(a, b []float64) float64 {
	return vek.Distance(a, b)
}

func (Euclidean) SquaredDistance(a, b []float64) float64 {
	d := vek.Distance(a, b)
	return d * d
}
