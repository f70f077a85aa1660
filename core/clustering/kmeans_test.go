package clustering

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/adalundhe/starnest/core/metric"
)

// blobs generates n points around k well-separated centers.
func blobs(rng *rand.Rand, n, dim, k int, spread float64) ([][]float64, []int) {
	centers := make([][]float64, k)
	for c := range centers {
		centers[c] = make([]float64, dim)
		for d := 0; d < dim; d++ {
			centers[c][d] = float64(c*10) + rng.NormFloat64()
		}
	}

	points := make([][]float64, n)
	truth := make([]int, n)
	for i := range points {
		c := i % k
		truth[i] = c
		points[i] = make([]float64, dim)
		for d := 0; d < dim; d++ {
			points[i][d] = centers[c][d] + rng.NormFloat64()*spread
		}
	}
	return points, truth
}

func TestClusterRecoversSeparatedBlobs(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	points, truth := blobs(rng, 300, 2, 3, 0.2)

	km, err := New(metric.NewEuclidean(), DefaultConfig())
	require.NoError(t, err)

	p, err := km.Cluster(points, rng)
	require.NoError(t, err)
	assert.Equal(t, 3, p.K)

	// Every true blob must map to exactly one predicted cluster.
	mapping := map[int]int{}
	for i, a := range p.Assignments {
		if prev, ok := mapping[truth[i]]; ok {
			assert.Equal(t, prev, a, "blob %d split across clusters", truth[i])
		} else {
			mapping[truth[i]] = a
		}
	}
}

func TestClusterSelectsFourBlobs(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	points, _ := blobs(rng, 400, 2, 4, 0.2)

	km, err := New(metric.NewEuclidean(), DefaultConfig())
	require.NoError(t, err)

	p, err := km.Cluster(points, rng)
	require.NoError(t, err)
	assert.Equal(t, 4, p.K)
}

func TestClusterSingleKAlwaysOneCluster(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	points, _ := blobs(rng, 100, 3, 4, 0.5)

	cfg := DefaultConfig()
	cfg.MinClusters = 1
	cfg.MaxClusters = 1

	km, err := New(metric.NewEuclidean(), cfg)
	require.NoError(t, err)

	p, err := km.Cluster(points, rng)
	require.NoError(t, err)
	assert.Equal(t, 1, p.K)
	assert.Equal(t, 100, p.Sizes[0])
	assert.Len(t, p.Indices[0], 100)
}

func TestClusterPartitionInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	points, _ := blobs(rng, 200, 2, 3, 0.4)

	km, err := New(metric.NewEuclidean(), DefaultConfig())
	require.NoError(t, err)

	p, err := km.Cluster(points, rng)
	require.NoError(t, err)

	// No empty clusters, sizes sum to N, indices consistent with assignments.
	total := 0
	for j, size := range p.Sizes {
		assert.Greater(t, size, 0, "cluster %d empty", j)
		assert.Len(t, p.Indices[j], size)
		for _, idx := range p.Indices[j] {
			assert.Equal(t, j, p.Assignments[idx])
		}
		total += size
	}
	assert.Equal(t, len(points), total)
}

func TestClusterFewerPointsThanK(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	points := [][]float64{{0, 0}, {1, 1}}

	cfg := DefaultConfig()
	cfg.MinClusters = 1
	cfg.MaxClusters = 6

	km, err := New(metric.NewEuclidean(), cfg)
	require.NoError(t, err)

	p, err := km.Cluster(points, rng)
	require.NoError(t, err)
	assert.LessOrEqual(t, p.K, 2)
}

func TestClusterGenericMetricPath(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	points, _ := blobs(rng, 150, 2, 2, 0.3)

	// Mahalanobis with identity covariance behaves like Euclidean but takes
	// the generic code path.
	m := identityMahalanobis(t, 2)
	km, err := New(m, DefaultConfig())
	require.NoError(t, err)

	p, err := km.Cluster(points, rng)
	require.NoError(t, err)
	assert.Equal(t, 2, p.K)
}

func TestConfigValidation(t *testing.T) {
	cases := []Config{
		{MinClusters: 0, MaxClusters: 3, Trials: 1, RelTol: 0.01},
		{MinClusters: 3, MaxClusters: 1, Trials: 1, RelTol: 0.01},
		{MinClusters: 1, MaxClusters: 3, Trials: 0, RelTol: 0.01},
		{MinClusters: 1, MaxClusters: 3, Trials: 1, RelTol: 0},
	}
	for _, cfg := range cases {
		_, err := New(metric.NewEuclidean(), cfg)
		assert.Error(t, err)
	}
}

func TestClusterNoPoints(t *testing.T) {
	km, err := New(metric.NewEuclidean(), DefaultConfig())
	require.NoError(t, err)
	_, err = km.Cluster(nil, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

func identityMahalanobis(t *testing.T, dim int) metric.Metric {
	t.Helper()
	cov := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		cov.SetSym(i, i, 1.0)
	}
	m, err := metric.NewMahalanobis(cov)
	require.NoError(t, err)
	return m
}
