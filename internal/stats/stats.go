// Package stats reduces lap samples to outlier-robust figures.
//
// Samples are sorted and only the ranks [⌊0.2·N⌋, N-⌊0.2·N⌋) are kept, which
// drops the fastest and slowest fifth. For 20 laps that keeps 12. With
// fewer than 5 samples nothing is dropped.
package stats

import (
	"slices"

	"gonum.org/v1/gonum/stat"
)

const (
	minTrimmed = 5

	gib = 1 << 30
)

// Summary describes one sample set. Mean and Std are over the trimmed
// samples, the rest over all of them.
type Summary struct {
	Count  int
	Used   int
	Mean   float64
	Std    float64
	Min    float64
	Median float64
	Max    float64
}

// Trim returns a sorted copy of samples limited to the retained ranks.
func Trim(samples []float64) []float64 {
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	n := len(sorted)
	if n < minTrimmed {
		return sorted
	}
	cut := n / 5
	if n-2*cut <= 0 {
		return sorted
	}
	return sorted[cut : n-cut]
}

// Summarize computes the summary of samples. An empty set yields a zero
// Summary.
func Summarize(samples []float64) Summary {
	if len(samples) == 0 {
		return Summary{}
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	kept := Trim(sorted)
	mean, std := stat.PopMeanStdDev(kept, nil)
	return Summary{
		Count:  len(sorted),
		Used:   len(kept),
		Mean:   mean,
		Std:    std,
		Min:    sorted[0],
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Max:    sorted[len(sorted)-1],
	}
}

// Throughput returns operations per second for ops operations taking mean
// seconds.
func Throughput(ops int, mean float64) float64 {
	if mean <= 0 {
		return 0
	}
	return float64(ops) / mean
}

// BandwidthGiB returns GiB per second for bytes moved in mean seconds.
func BandwidthGiB(bytes int64, mean float64) float64 {
	if mean <= 0 {
		return 0
	}
	return float64(bytes) / mean / gib
}
