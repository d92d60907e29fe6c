// Package stats summarizes MCMC traces: moments, percentiles, smoothing and effective sample
// size. Standard deviations are population deviations (divided by n).
package stats

import (
	"math"
	"slices"
)

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64

	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// MeanStdDev returns the mean and population standard deviation.
func MeanStdDev(values []float64) (mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}

	mean = Mean(values)

	var sumSq float64

	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}

	return mean, math.Sqrt(sumSq / float64(len(values)))
}

// Percentile thresholds used by Summarize.
const (
	PercentileLower  = 0.025
	PercentileMedian = 0.5
	PercentileUpper  = 0.975
)

// Percentile returns the p-th percentile, p in [0, 1], by linear interpolation.
// values is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	return sortedPercentile(sorted, p)
}

func sortedPercentile(sorted []float64, p float64) float64 {
	idx := p * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))

	if lower == upper || upper >= len(sorted) {
		return sorted[lower]
	}

	frac := idx - float64(lower)

	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// Median returns the 50th percentile.
func Median(values []float64) float64 {
	return Percentile(values, PercentileMedian)
}

// Summary describes one sampled quantity.
type Summary struct {
	N      int
	Mean   float64
	StdDev float64
	Median float64
	Lower  float64
	Upper  float64
	ESS    float64
}

// Summarize computes a Summary of a trace. Lower and Upper bound the central 95% interval.
func Summarize(trace []float64) Summary {
	if len(trace) == 0 {
		return Summary{}
	}

	mean, stddev := MeanStdDev(trace)

	sorted := slices.Clone(trace)
	slices.Sort(sorted)

	return Summary{
		N:      len(trace),
		Mean:   mean,
		StdDev: stddev,
		Median: sortedPercentile(sorted, PercentileMedian),
		Lower:  sortedPercentile(sorted, PercentileLower),
		Upper:  sortedPercentile(sorted, PercentileUpper),
		ESS:    ESS(trace),
	}
}
