package clustering

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/adalundhe/starnest/core/metric"
)

// =============================================================================
// K-means Clustering with BIC Model Selection
// =============================================================================
//
// Partitions a point set into K clusters for K in [MinClusters, MaxClusters],
// then selects K by a BIC-style criterion. Each K runs multiple k-means++
// seeded restarts of Lloyd's algorithm; the lowest-cost restart represents
// that K.
//
// Performance:
//   - Euclidean fast path computes all point-centroid dot products in one
//     BLAS GEMM (dots = X @ C.T) and derives squared distances from
//     precomputed norms: ||x - c||^2 = ||x||^2 + ||c||^2 - 2 x.c
//   - Non-Euclidean metrics fall back to a generic per-pair loop.
//   - Memory is laid out row-major and reused across restarts.
//
// Robustness:
//   - Convergence detection on the relative change of the objective.
//   - Empty clusters reinitialized from the farthest assigned point during
//     iteration; still-empty clusters are dropped from the final partition.
//   - Clamped negative distances for numerical stability.

// Config configures the clusterer.
type Config struct {
	// MinClusters and MaxClusters bound the candidate K range.
	MinClusters int
	MaxClusters int

	// Trials is the number of random restarts per candidate K.
	Trials int

	// RelTol stops Lloyd iteration when the relative objective improvement
	// falls below it.
	RelTol float64

	// MaxIterations caps Lloyd iterations per restart. Default 50.
	MaxIterations int
}

// DefaultConfig mirrors the clusterer settings of the reference demo drivers:
// K in [1, 6], 10 restarts, 1% relative tolerance.
func DefaultConfig() Config {
	return Config{
		MinClusters:   1,
		MaxClusters:   6,
		Trials:        10,
		RelTol:        0.01,
		MaxIterations: 50,
	}
}

func (c Config) validate() error {
	switch {
	case c.MinClusters < 1:
		return fmt.Errorf("MinClusters must be >= 1, got %d", c.MinClusters)
	case c.MaxClusters < c.MinClusters:
		return fmt.Errorf("MaxClusters %d < MinClusters %d", c.MaxClusters, c.MinClusters)
	case c.Trials < 1:
		return fmt.Errorf("Trials must be >= 1, got %d", c.Trials)
	case c.RelTol <= 0:
		return fmt.Errorf("RelTol must be > 0, got %g", c.RelTol)
	}
	return nil
}

// Partition is the result of clustering N points into K non-empty clusters.
type Partition struct {
	K           int
	Assignments []int   // [N] cluster index per point, in 0..K-1
	Sizes       []int   // [K] points per cluster
	Indices     [][]int // [K] point indices per cluster
	Cost        float64 // total within-cluster squared distance
}

// Kmeans clusters point sets under an injected metric.
type Kmeans struct {
	metric metric.Metric
	cfg    Config
}

// New builds a clusterer. The metric drives both seeding and assignment;
// Euclidean metrics enable the BLAS fast path.
func New(m metric.Metric, cfg Config) (*Kmeans, error) {
	if m == nil {
		return nil, errors.New("clustering: nil metric")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 50
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("clustering: %w", err)
	}
	return &Kmeans{metric: m, cfg: cfg}, nil
}

// Cluster partitions points, choosing K in [MinClusters, MaxClusters] by the
// BIC-style criterion
//
//	BIC(K) = cost(K) + K*D*log(N)
//
// which trades within-cluster cost against model complexity. The rng drives
// seeding and empty-cluster repair; passing the same rng state reproduces
// the same partition.
func (k *Kmeans) Cluster(points [][]float64, rng *rand.Rand) (*Partition, error) {
	n := len(points)
	if n == 0 {
		return nil, errors.New("clustering: no points")
	}
	dim := len(points[0])

	state := newState(points, k.cfg.MaxClusters, k.metric)

	var best *Partition
	bestScore := math.Inf(1)

	maxK := k.cfg.MaxClusters
	if maxK > n {
		maxK = n
	}
	minK := k.cfg.MinClusters
	if minK > maxK {
		minK = maxK
	}

	for kk := minK; kk <= maxK; kk++ {
		trial := state.bestOfTrials(kk, k.cfg, rng)
		if trial == nil {
			continue
		}

		score := bic(trial.Cost, n, kk, dim)
		if score < bestScore {
			bestScore = score
			best = trial
		}
	}

	if best == nil {
		// K collapsed entirely; everything in one cluster.
		return singleCluster(n), nil
	}
	return best, nil
}

// bic is the model-selection criterion: within-cluster cost plus a
// complexity penalty of D*log(N) per cluster.
func bic(cost float64, n, k, dim int) float64 {
	return cost + float64(k*dim)*math.Log(float64(n))
}

func singleCluster(n int) *Partition {
	assign := make([]int, n)
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return &Partition{
		K:           1,
		Assignments: assign,
		Sizes:       []int{n},
		Indices:     [][]int{indices},
	}
}

// =============================================================================
// Per-run state
// =============================================================================

// state holds reusable buffers for all restarts across all candidate K.
// Layout follows the BLAS-friendly convention: row-major contiguous arrays.
type state struct {
	n, dim int
	maxK   int
	metric metric.Metric

	// True when the metric admits the norm/dot distance identity.
	euclidean bool

	points [][]float64 // original rows, used by the generic path
	flat   []float64   // [n x dim] row-major copy for BLAS

	pointNorms    []float64 // [n] squared norms
	centroids     []float64 // [maxK x dim]
	centroidNorms []float64 // [maxK]
	dots          []float64 // [n x maxK]
	newCentroids  []float64 // [maxK x dim]

	assignments []int // [n]
	counts      []int // [maxK]
}

func newState(points [][]float64, maxK int, m metric.Metric) *state {
	n := len(points)
	dim := len(points[0])
	if maxK > n {
		maxK = n
	}

	_, euclidean := m.(metric.Euclidean)

	s := &state{
		n:           n,
		dim:         dim,
		maxK:        maxK,
		metric:      m,
		euclidean:   euclidean,
		points:      points,
		assignments: make([]int, n),
		counts:      make([]int, maxK),
		centroids:   make([]float64, maxK*dim),
	}

	if euclidean {
		s.flat = make([]float64, n*dim)
		s.pointNorms = make([]float64, n)
		s.centroidNorms = make([]float64, maxK)
		s.dots = make([]float64, n*maxK)
		s.newCentroids = make([]float64, maxK*dim)
		for i, p := range points {
			var norm float64
			for d := 0; d < dim; d++ {
				s.flat[i*dim+d] = p[d]
				norm += p[d] * p[d]
			}
			s.pointNorms[i] = norm
		}
	} else {
		s.newCentroids = make([]float64, maxK*dim)
	}

	return s
}

// bestOfTrials runs cfg.Trials restarts for a fixed K and returns the
// lowest-cost partition, with empty clusters compacted away.
func (s *state) bestOfTrials(k int, cfg Config, rng *rand.Rand) *Partition {
	bestCost := math.Inf(1)
	var bestAssign []int

	for trial := 0; trial < cfg.Trials; trial++ {
		cost := s.runLloyd(k, cfg, rng)
		if cost < bestCost {
			bestCost = cost
			if bestAssign == nil {
				bestAssign = make([]int, s.n)
			}
			copy(bestAssign, s.assignments)
		}
	}

	if bestAssign == nil {
		return nil
	}
	return compact(bestAssign, k, bestCost)
}

// runLloyd executes one seeded k-means run and returns the final objective.
func (s *state) runLloyd(k int, cfg Config, rng *rand.Rand) float64 {
	s.seedPlusPlus(k, rng)

	prev := math.Inf(1)
	var cost float64

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		cost = s.assign(k)
		if math.IsNaN(cost) || math.IsInf(cost, 0) {
			return math.Inf(1)
		}

		if prev < math.Inf(1) {
			improvement := (prev - cost) / math.Max(cost, 1e-300)
			if improvement >= 0 && improvement < cfg.RelTol {
				return cost
			}
		}
		prev = cost

		s.updateCentroids(k)
		s.repairEmpty(k, rng)
	}

	return cost
}

// seedPlusPlus picks k initial centroids with k-means++ sampling: the first
// uniformly, the rest proportional to squared distance from the nearest
// already-chosen centroid.
func (s *state) seedPlusPlus(k int, rng *rand.Rand) {
	first := rng.Intn(s.n)
	s.setCentroid(0, s.points[first])

	if k == 1 {
		return
	}

	minDist := make([]float64, s.n)
	for i := range minDist {
		minDist[i] = math.MaxFloat64
	}

	for c := 1; c < k; c++ {
		prev := s.centroidRow(c - 1)

		var total float64
		for i := 0; i < s.n; i++ {
			d := s.metric.SquaredDistance(s.points[i], prev)
			if d < minDist[i] {
				minDist[i] = d
			}
			total += minDist[i]
		}

		if total == 0 {
			s.setCentroid(c, s.points[rng.Intn(s.n)])
			continue
		}

		target := rng.Float64() * total
		var cum float64
		selected := s.n - 1
		for i, d := range minDist {
			cum += d
			if cum >= target {
				selected = i
				break
			}
		}
		s.setCentroid(c, s.points[selected])
	}
}

func (s *state) setCentroid(c int, p []float64) {
	copy(s.centroids[c*s.dim:(c+1)*s.dim], p)
}

func (s *state) centroidRow(c int) []float64 {
	return s.centroids[c*s.dim : (c+1)*s.dim]
}

// assign maps every point to its nearest centroid and returns the objective.
func (s *state) assign(k int) float64 {
	for j := 0; j < k; j++ {
		s.counts[j] = 0
	}

	if s.euclidean {
		return s.assignBLAS(k)
	}

	var total float64
	for i := 0; i < s.n; i++ {
		minDist := math.MaxFloat64
		minJ := 0
		for j := 0; j < k; j++ {
			d := s.metric.SquaredDistance(s.points[i], s.centroidRow(j))
			if d < minDist {
				minDist = d
				minJ = j
			}
		}
		s.assignments[i] = minJ
		s.counts[minJ]++
		total += minDist
	}
	return total
}

// assignBLAS is the vectorized assignment: one GEMM computes every
// point-centroid dot product, and distances follow from cached norms.
func (s *state) assignBLAS(k int) float64 {
	for j := 0; j < k; j++ {
		row := s.centroidRow(j)
		s.centroidNorms[j] = blas64.Dot(
			blas64.Vector{N: s.dim, Inc: 1, Data: row},
			blas64.Vector{N: s.dim, Inc: 1, Data: row},
		)
	}

	blas64.Gemm(
		blas.NoTrans,
		blas.Trans,
		1.0,
		blas64.General{Rows: s.n, Cols: s.dim, Stride: s.dim, Data: s.flat},
		blas64.General{Rows: k, Cols: s.dim, Stride: s.dim, Data: s.centroids[:k*s.dim]},
		0.0,
		blas64.General{Rows: s.n, Cols: k, Stride: k, Data: s.dots[:s.n*k]},
	)

	var total float64
	for i := 0; i < s.n; i++ {
		xNorm := s.pointNorms[i]
		minDist := math.MaxFloat64
		minJ := 0
		row := i * k
		for j := 0; j < k; j++ {
			dist := xNorm + s.centroidNorms[j] - 2*s.dots[row+j]
			if dist < 0 {
				dist = 0
			}
			if dist < minDist {
				minDist = dist
				minJ = j
			}
		}
		s.assignments[i] = minJ
		s.counts[minJ]++
		total += minDist
	}
	return total
}

// updateCentroids recomputes each centroid as its cluster mean.
func (s *state) updateCentroids(k int) {
	buf := s.newCentroids[:k*s.dim]
	for i := range buf {
		buf[i] = 0
	}

	for i := 0; i < s.n; i++ {
		off := s.assignments[i] * s.dim
		p := s.points[i]
		for d := 0; d < s.dim; d++ {
			buf[off+d] += p[d]
		}
	}

	for j := 0; j < k; j++ {
		if s.counts[j] == 0 {
			// Keep the stale centroid; repairEmpty handles it.
			copy(buf[j*s.dim:(j+1)*s.dim], s.centroidRow(j))
			continue
		}
		inv := 1.0 / float64(s.counts[j])
		for d := 0; d < s.dim; d++ {
			buf[j*s.dim+d] *= inv
		}
	}

	copy(s.centroids[:k*s.dim], buf)
}

// repairEmpty reinitializes empty clusters from the point farthest from its
// assigned centroid, falling back to a random point.
func (s *state) repairEmpty(k int, rng *rand.Rand) {
	for j := 0; j < k; j++ {
		if s.counts[j] != 0 {
			continue
		}

		maxDist := -1.0
		maxIdx := -1
		for i := 0; i < s.n; i++ {
			d := s.metric.SquaredDistance(s.points[i], s.centroidRow(s.assignments[i]))
			if d > maxDist {
				maxDist = d
				maxIdx = i
			}
		}

		if maxIdx >= 0 {
			s.setCentroid(j, s.points[maxIdx])
		} else {
			s.setCentroid(j, s.points[rng.Intn(s.n)])
		}
	}
}

// compact renumbers assignments so that only non-empty clusters remain.
func compact(assign []int, k int, cost float64) *Partition {
	counts := make([]int, k)
	for _, a := range assign {
		counts[a]++
	}

	remap := make([]int, k)
	newK := 0
	for j := 0; j < k; j++ {
		if counts[j] > 0 {
			remap[j] = newK
			newK++
		} else {
			remap[j] = -1
		}
	}

	p := &Partition{
		K:           newK,
		Assignments: make([]int, len(assign)),
		Sizes:       make([]int, newK),
		Indices:     make([][]int, newK),
		Cost:        cost,
	}
	for i, a := range assign {
		na := remap[a]
		p.Assignments[i] = na
		p.Sizes[na]++
	}
	for j := range p.Indices {
		p.Indices[j] = make([]int, 0, p.Sizes[j])
	}
	for i, a := range p.Assignments {
		p.Indices[a] = append(p.Indices[a], i)
	}
	return p
}
