package sampler

// LivePoint is one member of the active population: its unit-hypercube
// coordinates, its physical coordinates and its log likelihood. The two
// coordinate sets always describe the same point under the run's prior.
type LivePoint struct {
	Unit    []float64
	Phys    []float64
	LogLike float64
}

// PosteriorPoint is one retired point of the posterior sample. LogWeight is
// the point's evidence contribution log(dX * L); exp(LogWeight - logZ) is
// its posterior probability.
type PosteriorPoint struct {
	Phys      []float64
	LogLike   float64
	LogWeight float64
}

// worstIndex returns the index of the live point with minimum log
// likelihood. Ties resolve to the lowest index, keeping retirement order
// stable.
func worstIndex(live []LivePoint) int {
	worst := 0
	for i := 1; i < len(live); i++ {
		if live[i].LogLike < live[worst].LogLike {
			worst = i
		}
	}
	return worst
}

// bestLogLike returns the maximum log likelihood in the live set.
func bestLogLike(live []LivePoint) float64 {
	best := live[0].LogLike
	for _, p := range live[1:] {
		if p.LogLike > best {
			best = p.LogLike
		}
	}
	return best
}

// unitCoords collects the unit-space coordinates of the live set, reusing
// dst when it has capacity. The returned rows alias live-point storage and
// are only valid until the next replacement.
func unitCoords(live []LivePoint, dst [][]float64) [][]float64 {
	if cap(dst) < len(live) {
		dst = make([][]float64, len(live))
	}
	dst = dst[:len(live)]
	for i := range live {
		dst[i] = live[i].Unit
	}
	return dst
}
