// Package stats holds the small numeric helpers shared by the scoring engines.
// Every helper returns 0 for empty input instead of NaN.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mean returns the arithmetic mean of xs.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// Sum returns the sum of xs.
func Sum(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return floats.Sum(xs)
}

// StdDev returns the population standard deviation of xs.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	_, std := stat.PopMeanStdDev(xs, nil)
	return std
}

// MeanStdDev returns the mean and population standard deviation of xs.
func MeanStdDev(xs []float64) (float64, float64) {
	switch len(xs) {
	case 0:
		return 0, 0
	case 1:
		return xs[0], 0
	}
	return stat.PopMeanStdDev(xs, nil)
}

// Median returns the middle value of xs, averaging the two central values
// for even lengths.
func Median(xs []float64) float64 {
	return Percentile(xs, 50)
}

// Percentile returns the p-th percentile (0..100) of xs using linear
// interpolation between closest ranks.
func Percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	p = Clamp(p, 0, 100)
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Entropy2 returns the Shannon entropy in bits of a histogram of counts.
// Zero-count buckets contribute nothing.
func Entropy2(counts []float64) float64 {
	total := Sum(counts)
	if total <= 0 {
		return 0
	}
	p := make([]float64, len(counts))
	for i, c := range counts {
		p[i] = c / total
	}
	return stat.Entropy(p) / math.Ln2
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Unit bounds v to [0, 1].
func Unit(v float64) float64 {
	return Clamp(v, 0, 1)
}
