package sampler

import "math"

// logSumExp returns log(exp(a) + exp(b)) without overflow.
func logSumExp(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	m := a
	if b > m {
		m = b
	}
	return m + math.Log1p(math.Exp(-math.Abs(a-b)))
}

// logShellWidth returns log(X_prev - X_next) for one nested-sampling step
// with n live points: X_next = X_prev * exp(-1/n), so the shell is
// X_prev * (1 - exp(-1/n)).
func logShellWidth(logXPrev float64, n int) float64 {
	return logXPrev + math.Log(-math.Expm1(-1.0/float64(n)))
}

// evidence is the log-space accumulator for the evidence Z, the information
// H and the current log prior mass X. All arithmetic stays in log space;
// underflow clamps to -Inf and the accumulator keeps going.
type evidence struct {
	logZ float64
	info float64
	logX float64
}

func newEvidence() evidence {
	return evidence{logZ: math.Inf(-1), info: 0, logX: 0}
}

// accumulate retires one point with the given log likelihood over a prior
// mass shell of the given log width and returns the point's log weight.
func (e *evidence) accumulate(logL, logWidth float64) float64 {
	logw := logWidth + logL
	if math.IsNaN(logw) {
		logw = math.Inf(-1)
	}

	logZNew := logSumExp(e.logZ, logw)

	// Information update, guarding the empty-accumulator case where the
	// previous-evidence term vanishes.
	h := 0.0
	if !math.IsInf(logw, -1) && !math.IsInf(logZNew, -1) {
		h += math.Exp(logw-logZNew) * logL
	}
	if !math.IsInf(e.logZ, -1) {
		h += math.Exp(e.logZ-logZNew) * (e.info + e.logZ)
	}
	if !math.IsInf(logZNew, -1) {
		h -= logZNew
	}
	if math.IsNaN(h) || h < 0 {
		h = 0
	}

	e.logZ = logZNew
	e.info = h
	return logw
}

// shrink advances the prior mass by one step of n live points.
func (e *evidence) shrink(n int) {
	e.logX -= 1.0 / float64(n)
}
