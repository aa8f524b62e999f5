package report

import (
	"math"
	"sort"
)

// DistributionStats summarizes a sample with population formulas
// (no Bessel correction).
type DistributionStats struct {
	Minimum float64 `json:"minimum"`
	Maximum float64 `json:"maximum"`
	Mean    float64 `json:"mean"`
	Stddev  float64 `json:"stddev"`
}

func buildDistribution(values []float64) DistributionStats {
	if len(values) == 0 {
		return DistributionStats{}
	}
	minV := values[0]
	maxV := values[0]
	for _, v := range values {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	return DistributionStats{
		Minimum: minV,
		Maximum: maxV,
		Mean:    mean(values),
		Stddev:  popStddev(values),
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func popStddev(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// skewness is the standardized third central moment. Empty or
// zero-variance input yields 0, never NaN.
func skewness(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	m := mean(values)
	std := popStddev(values)
	if std == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range values {
		z := (v - m) / std
		sum += z * z * z
	}
	return sum / float64(len(values))
}

// kurtosis is the excess kurtosis (standardized fourth central
// moment minus 3). Empty or zero-variance input yields 0.
func kurtosis(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	m := mean(values)
	std := popStddev(values)
	if std == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range values {
		z := (v - m) / std
		sum += z * z * z * z
	}
	return sum/float64(len(values)) - 3.0
}

// gini computes 2*sum(rank*value)/(n*sum) - (n+1)/n over values sorted
// ascending, rank starting at 1. Empty or all-zero input yields 0.
func gini(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if v >= 0 {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return 0.0
	}
	sort.Float64s(sorted)
	total := 0.0
	cum := 0.0
	for i, v := range sorted {
		total += v
		cum += float64(i+1) * v
	}
	if total == 0 {
		return 0.0
	}
	n := float64(len(sorted))
	return (2*cum)/(n*total) - (n+1)/n
}

// entropy is the Shannon entropy in bits over a count mapping.
// Zero counts contribute nothing; an empty mapping yields 0.
func entropy(counts map[string]int) float64 {
	total := 0
	for _, cnt := range counts {
		total += cnt
	}
	if total <= 0 {
		return 0.0
	}
	ent := 0.0
	for _, cnt := range counts {
		if cnt <= 0 {
			continue
		}
		p := float64(cnt) / float64(total)
		ent -= p * math.Log2(p)
	}
	return ent
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2.0
}

// percentile linearly interpolates over sorted input; pct in [0,1].
func percentile(sorted []float64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0.0
	}
	if pct <= 0 {
		return sorted[0]
	}
	if pct >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := pct * float64(len(sorted)-1)
	lower := math.Floor(idx)
	upper := math.Ceil(idx)
	if lower == upper {
		return sorted[int(idx)]
	}
	frac := idx - lower
	return sorted[int(lower)]*(1-frac) + sorted[int(upper)]*frac
}
