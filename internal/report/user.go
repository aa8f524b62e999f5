package report

import (
	"sort"
	"time"
)

type isoWeek struct {
	year int
	week int
}

// userSnapshot accumulates one author's running statistics for the
// lifetime of a single report run.
type userSnapshot struct {
	messages          int
	words             int
	tokenSet          map[string]struct{}
	mentionsSent      int
	mentionsReceived  int
	repliesMade       int
	repliesReceived   int
	reactionsReceived int
	reactionsGiven    int
	latencySeconds    []float64
	firstMessage      time.Time
	lastMessage       time.Time
	activeDays        map[string]struct{}
	activeWeeks       map[isoWeek]struct{}
	voiceMinutes      int
	streamMinutes     int
	activityJoins     int
	isBot             bool
}

func newUserSnapshot() *userSnapshot {
	return &userSnapshot{
		tokenSet:    make(map[string]struct{}),
		activeDays:  make(map[string]struct{}),
		activeWeeks: make(map[isoWeek]struct{}),
	}
}

func (u *userSnapshot) recordMessage(when time.Time) {
	u.activeDays[when.Format("2006-01-02")] = struct{}{}
	year, week := when.ISOWeek()
	u.activeWeeks[isoWeek{year: year, week: week}] = struct{}{}
	if u.firstMessage.IsZero() || when.Before(u.firstMessage) {
		u.firstMessage = when
	}
	if u.lastMessage.IsZero() || when.After(u.lastMessage) {
		u.lastMessage = when
	}
}

func (u *userSnapshot) medianLatency() float64 {
	return median(u.latencySeconds)
}

func (u *userSnapshot) uniqueTokens() int {
	return len(u.tokenSet)
}

func (u *userSnapshot) longestDayStreak() int {
	if len(u.activeDays) == 0 {
		return 0
	}
	days := make([]time.Time, 0, len(u.activeDays))
	for key := range u.activeDays {
		day, err := time.Parse("2006-01-02", key)
		if err != nil {
			continue
		}
		days = append(days, day)
	}
	if len(days) == 0 {
		return 0
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	longest := 1
	current := 1
	for i := 1; i < len(days); i++ {
		if days[i].Sub(days[i-1]) == 24*time.Hour {
			current++
		} else {
			current = 1
		}
		if current > longest {
			longest = current
		}
	}
	return longest
}

func (u *userSnapshot) longestWeekStreak() int {
	if len(u.activeWeeks) == 0 {
		return 0
	}
	weeks := make([]isoWeek, 0, len(u.activeWeeks))
	for wk := range u.activeWeeks {
		weeks = append(weeks, wk)
	}
	sort.Slice(weeks, func(i, j int) bool {
		if weeks[i].year != weeks[j].year {
			return weeks[i].year < weeks[j].year
		}
		return weeks[i].week < weeks[j].week
	})

	longest := 1
	current := 1
	for i := 1; i < len(weeks); i++ {
		prev, next := weeks[i-1], weeks[i]
		sameYearNext := next.year == prev.year && next.week == prev.week+1
		yearRollover := next.year == prev.year+1 && prev.week >= 52 && next.week == 1
		if sameYearNext || yearRollover {
			current++
		} else {
			current = 1
		}
		if current > longest {
			longest = current
		}
	}
	return longest
}

// metricsPayload flattens the snapshot into the report's user_metrics
// shape; every field is a float so the payload serializes losslessly.
func (u *userSnapshot) metricsPayload() map[string]float64 {
	isBot := 0.0
	if u.isBot {
		isBot = 1.0
	}
	return map[string]float64{
		"messages":            float64(u.messages),
		"words":               float64(u.words),
		"unique_tokens":       float64(u.uniqueTokens()),
		"mentions_sent":       float64(u.mentionsSent),
		"mentions_received":   float64(u.mentionsReceived),
		"replies_made":        float64(u.repliesMade),
		"replies_received":    float64(u.repliesReceived),
		"reactions_received":  float64(u.reactionsReceived),
		"reactions_given":     float64(u.reactionsGiven),
		"median_latency":      u.medianLatency(),
		"voice_minutes":       float64(u.voiceMinutes),
		"stream_minutes":      float64(u.streamMinutes),
		"activity_joins":      float64(u.activityJoins),
		"longest_day_streak":  float64(u.longestDayStreak()),
		"longest_week_streak": float64(u.longestWeekStreak()),
		"active_days":         float64(len(u.activeDays)),
		"active_weeks":        float64(len(u.activeWeeks)),
		"is_bot":              isBot,
	}
}
