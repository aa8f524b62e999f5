package report

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestGiniBounds(t *testing.T) {
	if got := gini(nil); got != 0 {
		t.Fatalf("expected 0 for empty input, got %f", got)
	}
	if got := gini([]float64{0, 0, 0}); got != 0 {
		t.Fatalf("expected 0 for all-zero input, got %f", got)
	}
	if got := gini([]float64{7, 7, 7, 7}); !almostEqual(got, 0) {
		t.Fatalf("expected 0 for equal values, got %f", got)
	}
	// [0,0,...,0,N] approaches (n-1)/n.
	if got := gini([]float64{0, 0, 0, 5}); !almostEqual(got, 0.75) {
		t.Fatalf("expected 0.75, got %f", got)
	}
	for _, values := range [][]float64{{1}, {1, 2, 3}, {0, 10, 20, 5}, {100, 1, 1}} {
		got := gini(values)
		if got < 0 || got > 1 {
			t.Fatalf("gini out of bounds for %v: %f", values, got)
		}
	}
}

func TestEntropyBounds(t *testing.T) {
	if got := entropy(nil); got != 0 {
		t.Fatalf("expected 0 for empty input, got %f", got)
	}
	if got := entropy(map[string]int{"a": 9}); got != 0 {
		t.Fatalf("expected 0 for single bucket, got %f", got)
	}
	counts := map[string]int{"a": 3, "b": 3, "c": 3, "d": 3}
	if got := entropy(counts); !almostEqual(got, 2.0) {
		t.Fatalf("expected log2(4)=2 for equal buckets, got %f", got)
	}
}

func TestSkewnessKurtosisDegenerate(t *testing.T) {
	if got := skewness(nil); got != 0 {
		t.Fatalf("expected 0 skewness for empty input, got %f", got)
	}
	if got := skewness([]float64{4, 4, 4}); got != 0 {
		t.Fatalf("expected 0 skewness for constant input, got %f", got)
	}
	if got := kurtosis(nil); got != 0 {
		t.Fatalf("expected 0 kurtosis for empty input, got %f", got)
	}
	if got := kurtosis([]float64{4, 4, 4}); got != 0 {
		t.Fatalf("expected 0 kurtosis for constant input, got %f", got)
	}
	if got := skewness([]float64{1, 2, 3, 4, 5}); !almostEqual(got, 0) {
		t.Fatalf("expected 0 skewness for symmetric input, got %f", got)
	}
}

func TestMedian(t *testing.T) {
	if got := median(nil); got != 0 {
		t.Fatalf("expected 0 for empty input, got %f", got)
	}
	if got := median([]float64{3, 1, 2}); got != 2 {
		t.Fatalf("expected 2, got %f", got)
	}
	if got := median([]float64{4, 1, 3, 2}); !almostEqual(got, 2.5) {
		t.Fatalf("expected 2.5, got %f", got)
	}
}

func TestPercentileInterpolation(t *testing.T) {
	sorted := []float64{10, 20, 30, 40}
	if got := percentile(sorted, 0); got != 10 {
		t.Fatalf("expected 10, got %f", got)
	}
	if got := percentile(sorted, 1); got != 40 {
		t.Fatalf("expected 40, got %f", got)
	}
	if got := percentile(sorted, 0.5); !almostEqual(got, 25) {
		t.Fatalf("expected 25, got %f", got)
	}
	if got := percentile(nil, 0.5); got != 0 {
		t.Fatalf("expected 0 for empty input, got %f", got)
	}
}

func TestBuildDistributionEmpty(t *testing.T) {
	dist := buildDistribution(nil)
	if dist.Minimum != 0 || dist.Maximum != 0 || dist.Mean != 0 || dist.Stddev != 0 {
		t.Fatalf("expected zero distribution, got %+v", dist)
	}
}
