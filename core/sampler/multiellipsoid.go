package sampler

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/adalundhe/starnest/core/clustering"
	"github.com/adalundhe/starnest/core/geometry"
	"github.com/adalundhe/starnest/core/metric"
	"github.com/adalundhe/starnest/core/model"
	"github.com/adalundhe/starnest/core/prior"
)

// =============================================================================
// Multi-Ellipsoidal Constrained Sampler
// =============================================================================
//
// Draws replacement live points uniformly from the prior restricted to
// {theta : L(theta) > L_min}, approximated by the union of bounding
// ellipsoids over the live-point clusters in unit coordinates.
//
// Geometry lifecycle: Rebuild constructs the full ellipsoid set from a
// cluster partition and replaces it atomically; between rebuilds every draw
// reuses the same immutable geometry.
//
// Sampling is uniform over the union: an ellipsoid is chosen with
// probability proportional to its volume, a point is drawn uniformly inside
// it, and the draw is accepted with probability 1/q where q is the number
// of ellipsoids containing the point. Without the 1/q correction, overlap
// regions would be oversampled q-fold.

// multiEllipsoid is the constrained sampler used by NestedSampler.
type multiEllipsoid struct {
	metric    metric.Metric
	prior     prior.Prior
	like      model.Likelihood
	logger    *slog.Logger
	enlarge   float64 // initial enlargement fraction
	shrink    float64 // exponent on remaining prior mass
	workers   int     // parallel draw attempts; <=1 means sequential

	ellipsoids []*geometry.Ellipsoid
	cumVolumes []float64 // cumulative volumes for roulette selection
}

func newMultiEllipsoid(m metric.Metric, pr prior.Prior, like model.Likelihood, enlarge, shrink float64, workers int, logger *slog.Logger) *multiEllipsoid {
	return &multiEllipsoid{
		metric:  m,
		prior:   pr,
		like:    like,
		logger:  logger,
		enlarge: enlarge,
		shrink:  shrink,
		workers: workers,
	}
}

// Rebuild constructs one enlarged bounding ellipsoid per cluster of the
// unit-space live points and swaps in the new geometry. logX is the current
// log remaining prior mass, which drives the enlargement schedule
//
//	f_k = initialEnlargement * X^shrinkingRate * n_k / N
//
// clamped up so each ellipsoid covers every point of its own cluster.
// Clusters with unstabilizable covariances are merged into their nearest
// neighbor and the merged ellipsoid is rebuilt.
func (s *multiEllipsoid) Rebuild(points [][]float64, part *clustering.Partition, logX float64) error {
	n := len(points)
	groups := make([][]int, part.K)
	for j := range groups {
		groups[j] = part.Indices[j]
	}

	ellipsoids := make([]*geometry.Ellipsoid, 0, len(groups))
	remaining := math.Exp(logX)

	for j := 0; j < len(groups); j++ {
		idx := groups[j]
		if len(idx) == 0 {
			continue
		}

		cluster := make([][]float64, len(idx))
		for i, id := range idx {
			cluster[i] = points[id]
		}

		e, err := geometry.NewFromPoints(cluster)
		if err != nil {
			// Degenerate covariance: merge into the nearest other group
			// and retry that group on a later pass.
			target := s.nearestGroup(points, groups, j)
			if target < 0 {
				return fmt.Errorf("build ellipsoid for lone cluster %d: %w", j, err)
			}
			s.logger.Warn("merging degenerate cluster",
				slog.Int("cluster", j),
				slog.Int("into", target),
				slog.Int("size", len(idx)),
			)
			groups[target] = append(groups[target], idx...)
			groups[j] = nil
			if target < j {
				// Already-built ellipsoid is stale; rebuild the set.
				return s.Rebuild(points, regroup(groups, n), logX)
			}
			continue
		}

		f := s.enlarge * math.Pow(remaining, s.shrink) * float64(len(idx)) / float64(n)
		for _, p := range cluster {
			if d := e.MahalanobisSquared(p); d > f {
				f = d
			}
		}
		e.Enlarge(f)
		ellipsoids = append(ellipsoids, e)
	}

	if len(ellipsoids) == 0 {
		return fmt.Errorf("no usable ellipsoids from %d clusters", part.K)
	}

	cum := make([]float64, len(ellipsoids))
	total := 0.0
	for i, e := range ellipsoids {
		total += e.Volume()
		cum[i] = total
	}

	s.ellipsoids = ellipsoids
	s.cumVolumes = cum
	return nil
}

// nearestGroup returns the non-empty group whose centroid is closest to
// group j's centroid, or -1 when j is the only group.
func (s *multiEllipsoid) nearestGroup(points [][]float64, groups [][]int, j int) int {
	cj := centroidOf(points, groups[j])
	best := -1
	bestDist := math.Inf(1)
	for g := range groups {
		if g == j || len(groups[g]) == 0 {
			continue
		}
		d := s.metric.SquaredDistance(cj, centroidOf(points, groups[g]))
		if d < bestDist {
			bestDist = d
			best = g
		}
	}
	return best
}

func centroidOf(points [][]float64, idx []int) []float64 {
	dim := len(points[0])
	c := make([]float64, dim)
	for _, id := range idx {
		for d := 0; d < dim; d++ {
			c[d] += points[id][d]
		}
	}
	for d := 0; d < dim; d++ {
		c[d] /= float64(len(idx))
	}
	return c
}

// regroup converts merged index groups back into a Partition.
func regroup(groups [][]int, n int) *clustering.Partition {
	p := &clustering.Partition{Assignments: make([]int, n)}
	for _, idx := range groups {
		if len(idx) == 0 {
			continue
		}
		for _, id := range idx {
			p.Assignments[id] = p.K
		}
		p.Sizes = append(p.Sizes, len(idx))
		p.Indices = append(p.Indices, idx)
		p.K++
	}
	return p
}

// NumEllipsoids returns the size of the current geometry.
func (s *multiEllipsoid) NumEllipsoids() int { return len(s.ellipsoids) }

// Draw samples a replacement live point with log likelihood strictly above
// logLMin, spending at most maxAttempts proposals; proposals rejected by the
// overlap correction or the unit-cube bound count against the budget too.
// Returns ErrDrawExhausted when the budget runs out.
func (s *multiEllipsoid) Draw(rng *rand.Rand, logLMin float64, maxAttempts int) (LivePoint, error) {
	if s.workers > 1 {
		return s.drawParallel(rng, logLMin, maxAttempts)
	}
	return s.drawSequential(rng, logLMin, maxAttempts)
}

func (s *multiEllipsoid) drawSequential(rng *rand.Rand, logLMin float64, maxAttempts int) (LivePoint, error) {
	dim := s.prior.Dimension()
	phys := make([]float64, dim)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		unit, ok := s.proposeUnit(rng)
		if !ok {
			continue
		}

		s.prior.FromUnitTo(phys, unit)
		logL := s.like.LogLikelihood(phys)
		if logL > logLMin {
			p := LivePoint{Unit: unit, Phys: make([]float64, dim), LogLike: logL}
			copy(p.Phys, phys)
			return p, nil
		}
	}

	return LivePoint{}, fmt.Errorf("%w: %d attempts at threshold %g", ErrDrawExhausted, maxAttempts, logLMin)
}

// drawParallel races workers over independent attempt sub-streams; the
// first success wins. Each worker's rng is seeded from the caller's stream,
// so the per-worker streams are fixed by the run seed; which worker's
// success is returned depends on goroutine scheduling.
func (s *multiEllipsoid) drawParallel(rng *rand.Rand, logLMin float64, maxAttempts int) (LivePoint, error) {
	var (
		remaining = int64(maxAttempts)
		found     atomic.Bool
		wg        sync.WaitGroup
		results   = make(chan LivePoint, s.workers)
	)

	for w := 0; w < s.workers; w++ {
		seed := rng.Int63()
		wg.Add(1)
		go func() {
			defer wg.Done()
			wrng := rand.New(rand.NewSource(seed))
			dim := s.prior.Dimension()
			phys := make([]float64, dim)

			for !found.Load() && atomic.AddInt64(&remaining, -1) >= 0 {
				unit, ok := s.proposeUnit(wrng)
				if !ok {
					continue
				}
				s.prior.FromUnitTo(phys, unit)
				logL := s.like.LogLikelihood(phys)
				if logL > logLMin {
					if found.CompareAndSwap(false, true) {
						p := LivePoint{Unit: unit, Phys: make([]float64, dim), LogLike: logL}
						copy(p.Phys, phys)
						results <- p
					}
					return
				}
			}
		}()
	}

	wg.Wait()
	close(results)

	if p, ok := <-results; ok {
		return p, nil
	}
	return LivePoint{}, fmt.Errorf("%w: %d attempts at threshold %g", ErrDrawExhausted, maxAttempts, logLMin)
}

// proposeUnit draws one candidate from the ellipsoid union, applying the
// overlap correction and the unit-hypercube bound. Returns false when the
// candidate is rejected before the likelihood call.
func (s *multiEllipsoid) proposeUnit(rng *rand.Rand) ([]float64, bool) {
	e := s.pickEllipsoid(rng)
	x := e.SampleUniform(rng)

	// Overlap correction: accept with probability 1/q.
	q := 0
	for _, other := range s.ellipsoids {
		if other.Contains(x) {
			q++
		}
	}
	if q > 1 && rng.Float64()*float64(q) >= 1 {
		return nil, false
	}

	for _, v := range x {
		if v < 0 || v > 1 {
			return nil, false
		}
	}
	return x, true
}

// pickEllipsoid selects an ellipsoid with probability proportional to its
// volume.
func (s *multiEllipsoid) pickEllipsoid(rng *rand.Rand) *geometry.Ellipsoid {
	total := s.cumVolumes[len(s.cumVolumes)-1]
	target := rng.Float64() * total
	for i, cum := range s.cumVolumes {
		if target <= cum {
			return s.ellipsoids[i]
		}
	}
	return s.ellipsoids[len(s.ellipsoids)-1]
}
