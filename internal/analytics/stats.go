package analytics

// quantile returns the p-th quantile of an ascending-sorted sample
// using linear interpolation between closest ranks (h = (n-1)p). This
// is the single interpolation rule used everywhere; it applies
// uniformly to samples of any size.
func quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	h := float64(n-1) * p
	lo := int(h)
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// median is the standard middle-element / average-of-two-middles
// definition, which quantile(0.5) reduces to.
func median(sorted []float64) float64 {
	return quantile(sorted, 0.5)
}

// iqrFences returns the Tukey outlier thresholds:
// [Q1 - 1.5*IQR, Q3 + 1.5*IQR].
func iqrFences(q1, q3 float64) (low, high float64) {
	iqr := q3 - q1
	return q1 - 1.5*iqr, q3 + 1.5*iqr
}
