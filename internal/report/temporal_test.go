package report

import (
	"testing"
	"time"
)

func hourSeries(start time.Time, counts ...int) []hourBucket {
	series := make([]hourBucket, len(counts))
	for i, cnt := range counts {
		series[i] = hourBucket{when: start.Add(time.Duration(i) * time.Hour), count: cnt}
	}
	return series
}

func TestRollingBurstsConstantSeries(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	counts := make([]int, 30)
	for i := range counts {
		counts[i] = 4
	}
	points := rollingBursts(hourSeries(start, counts...), 12)
	if len(points) != 30 {
		t.Fatalf("expected 30 points, got %d", len(points))
	}
	for i, p := range points {
		if p.RollingStd != 0 {
			t.Fatalf("expected zero rolling std at %d, got %f", i, p.RollingStd)
		}
	}
}

func TestRollingBurstsSpike(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	points := rollingBursts(hourSeries(start, 1, 1, 1, 10), 12)
	if points[0].RollingStd != 0 {
		t.Fatalf("first point should have zero std, got %f", points[0].RollingStd)
	}
	if points[3].RollingStd <= points[2].RollingStd {
		t.Fatalf("spike should raise rolling std: %f <= %f", points[3].RollingStd, points[2].RollingStd)
	}
}

func TestHalfLives(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	points := halfLives(hourSeries(start, 1, 8, 3, 2, 1, 0))
	if len(points) != 1 {
		t.Fatalf("expected 1 decay point, got %d", len(points))
	}
	if points[0].HalfLifeHours != 1 {
		t.Fatalf("expected half-life 1h, got %f", points[0].HalfLifeHours)
	}

	// A peak that never decays within the window is reported as 0.
	points = halfLives(hourSeries(start, 1, 8, 5, 5, 5))
	if len(points) != 1 {
		t.Fatalf("expected 1 decay point, got %d", len(points))
	}
	if points[0].HalfLifeHours != 0 {
		t.Fatalf("expected half-life 0 for undecayed peak, got %f", points[0].HalfLifeHours)
	}

	// Plateaus are not peaks.
	if points := halfLives(hourSeries(start, 1, 5, 5, 1)); len(points) != 0 {
		t.Fatalf("expected no decay points for plateau, got %d", len(points))
	}
}

func TestSilenceRatio(t *testing.T) {
	if got := silenceRatio(nil, time.Hour); got != 1.0 {
		t.Fatalf("expected 1.0 for empty counts, got %f", got)
	}

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	counts := map[time.Time]int{
		day:                     2,
		day.Add(23 * time.Hour): 1,
	}
	got := silenceRatio(counts, time.Hour)
	want := 22.0 / 24.0
	if !almostEqual(got, want) {
		t.Fatalf("expected %f, got %f", want, got)
	}

	single := map[time.Time]int{day: 3}
	if got := silenceRatio(single, time.Hour); got != 0 {
		t.Fatalf("expected 0 for single non-empty bucket, got %f", got)
	}
}

func TestBuildHeatmapsLocalProjection(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	// 2024-03-04 is a Monday; 01:00 UTC is 17:00 Sunday local.
	ts := time.Date(2024, 3, 4, 1, 0, 0, 0, time.UTC)
	heat := buildHeatmaps([]time.Time{ts}, loc)
	if heat.Hourly[6][17] != 1 {
		t.Fatalf("expected hit at Sunday 17:00 local, got %v", heat.Hourly)
	}
	if heat.Daily["2024-03-03"] != 1 {
		t.Fatalf("expected local date key 2024-03-03, got %v", heat.Daily)
	}
}
