// Package features turns the raw event log into per-customer feature
// vectors. Aggregation is pure: same customers and events in, same
// vectors out, with the window anchored at the dataset's newest event
// rather than wall-clock time.
package features

import (
	"math"
	"sort"
)

// Percentile returns the q-th quantile of values using linear
// interpolation between the closest ranks, the same convention
// dataframe libraries use. Positions land at q*(n-1); fractional
// positions interpolate between the two neighboring order statistics.
// An empty input returns 0.
func Percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// IntPercentile is Percentile over integer counts.
func IntPercentile(values []int, q float64) float64 {
	fs := make([]float64, len(values))
	for i, v := range values {
		fs[i] = float64(v)
	}
	return Percentile(fs, q)
}
