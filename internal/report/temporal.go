package report

import (
	"sort"
	"time"
)

// BurstPoint is one hourly bucket with the population standard
// deviation of the trailing window ending at that bucket.
type BurstPoint struct {
	Timestamp  string  `json:"timestamp"`
	Count      int     `json:"count"`
	RollingStd float64 `json:"rolling_std"`
}

// DecayPoint records a local peak and the hours until the bucket count
// first fell to half the peak. A half-life that was never observed
// within the window is reported as 0, not infinity.
type DecayPoint struct {
	Timestamp     string  `json:"timestamp"`
	HalfLifeHours float64 `json:"half_life_hours"`
}

// Heatmaps hold local-time activity shapes: a weekday-by-hour matrix
// (Monday first) and a local-date count map.
type Heatmaps struct {
	Hourly [7][24]int     `json:"hourly"`
	Daily  map[string]int `json:"daily"`
}

type hourBucket struct {
	when  time.Time
	count int
}

func sortedHourlySeries(counts map[time.Time]int) []hourBucket {
	series := make([]hourBucket, 0, len(counts))
	for when, count := range counts {
		series = append(series, hourBucket{when: when, count: count})
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].when.Before(series[j].when)
	})
	return series
}

func rollingBursts(series []hourBucket, window int) []BurstPoint {
	if window < 1 {
		window = 1
	}
	trailing := make([]float64, 0, window)
	points := make([]BurstPoint, 0, len(series))
	for _, bucket := range series {
		if len(trailing) == window {
			trailing = append(trailing[:0], trailing[1:]...)
		}
		trailing = append(trailing, float64(bucket.count))
		std := 0.0
		if len(trailing) >= 2 {
			std = popStddev(trailing)
		}
		points = append(points, BurstPoint{
			Timestamp:  bucket.when.Format(time.RFC3339),
			Count:      bucket.count,
			RollingStd: std,
		})
	}
	return points
}

// halfLives finds local peaks (count strictly above both neighbors) and
// scans forward for the first bucket at or below half the peak.
func halfLives(series []hourBucket) []DecayPoint {
	var points []DecayPoint
	for idx := 1; idx < len(series)-1; idx++ {
		cur := series[idx].count
		if cur <= 0 || cur <= series[idx-1].count || cur <= series[idx+1].count {
			continue
		}
		halfTarget := float64(cur) / 2.0
		hours := 0.0
		for j := idx + 1; j < len(series); j++ {
			if float64(series[j].count) <= halfTarget {
				hours = series[j].when.Sub(series[idx].when).Hours()
				break
			}
		}
		points = append(points, DecayPoint{
			Timestamp:     series[idx].when.Format(time.RFC3339),
			HalfLifeHours: hours,
		})
	}
	return points
}

// silenceRatio walks the full regular grid of buckets between the first
// and last observed key and returns the zero-count fraction. An empty
// set is fully silent by convention.
func silenceRatio(counts map[time.Time]int, bucket time.Duration) float64 {
	if len(counts) == 0 {
		return 1.0
	}
	var start, end time.Time
	first := true
	for when := range counts {
		if first {
			start, end = when, when
			first = false
			continue
		}
		if when.Before(start) {
			start = when
		}
		if when.After(end) {
			end = when
		}
	}
	totalSlots := 0
	zeroSlots := 0
	for current := start; !current.After(end); current = current.Add(bucket) {
		totalSlots++
		if counts[current] == 0 {
			zeroSlots++
		}
	}
	if totalSlots <= 0 {
		return 1.0
	}
	return float64(zeroSlots) / float64(totalSlots)
}

func buildHeatmaps(timestamps []time.Time, loc *time.Location) Heatmaps {
	heat := Heatmaps{Daily: make(map[string]int)}
	for _, ts := range timestamps {
		local := ts.In(loc)
		// Monday-first weekday index.
		day := (int(local.Weekday()) + 6) % 7
		heat.Hourly[day][local.Hour()]++
		heat.Daily[local.Format("2006-01-02")]++
	}
	return heat
}
