package profile

import "math"

// ewma folds one observation into an exponentially weighted moving average:
// new = alpha*x + (1-alpha)*old. Seeds from zero; early-life estimates stay
// behind the grace window so the cold start never reaches a detector.
func ewma(old, x, alpha float64) float64 {
	return alpha*x + (1-alpha)*old
}

// welford folds one observation into a running mean and M2 (the Welford sum
// of squared deviations). n is the sample count AFTER including x.
func welford(mean, m2 float64, n int64, x float64) (float64, float64) {
	if n <= 0 {
		return mean, m2
	}
	delta := x - mean
	mean += delta / float64(n)
	m2 += delta * (x - mean)
	return mean, m2
}

// StdDev derives the sample standard deviation from a Welford M2. Returns 0
// below two samples; a single observation has no spread.
func StdDev(m2 float64, n int64) float64 {
	if n < 2 || m2 <= 0 {
		return 0
	}
	return math.Sqrt(m2 / float64(n-1))
}
