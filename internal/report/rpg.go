package report

import (
	"math"
	"sort"
)

// Stat scoring constants. Tunable but load-bearing: changing any of
// them changes every user's displayed stat block.
const (
	statBase       = 5.0
	statScale      = 2.0
	statPercentLow = 0.25
	statPercentHi  = 0.75
	statFloor      = 1
)

// StatBlock is the six derived RPG scores for one user.
type StatBlock struct {
	Str int `json:"str"`
	Int int `json:"int"`
	Dex int `json:"dex"`
	Wis int `json:"wis"`
	Cha int `json:"cha"`
	Vit int `json:"vit"`
}

type statVector struct {
	str  float64
	intl float64
	dex  float64
	wis  float64
	cha  float64
	vit  float64
}

func metricValue(metrics map[string]float64, key string) float64 {
	if metrics == nil {
		return 0.0
	}
	return metrics[key]
}

func rawStatVector(metrics map[string]float64) statVector {
	messages := metricValue(metrics, "messages")
	words := metricValue(metrics, "words")
	uniqueTokens := metricValue(metrics, "unique_tokens")
	mentionsSent := metricValue(metrics, "mentions_sent")
	mentionsReceived := metricValue(metrics, "mentions_received")
	repliesReceived := metricValue(metrics, "replies_received")
	reactionsReceived := metricValue(metrics, "reactions_received")
	reactionsGiven := metricValue(metrics, "reactions_given")
	latency := metricValue(metrics, "median_latency")
	voiceMinutes := metricValue(metrics, "voice_minutes")
	streamMinutes := metricValue(metrics, "stream_minutes")
	activityJoins := metricValue(metrics, "activity_joins")
	dayStreak := metricValue(metrics, "longest_day_streak")
	weekStreak := metricValue(metrics, "longest_week_streak")

	lexicalDiversity := 0.0
	if words > 0 {
		lexicalDiversity = uniqueTokens / words
	}
	latencyScore := 0.0
	if latency > 0 {
		latencyScore = 1000.0 / (1.0 + latency)
	}

	return statVector{
		str:  messages,
		intl: words + uniqueTokens*5.0 + lexicalDiversity*100.0,
		dex:  reactionsGiven + latencyScore,
		wis:  mentionsSent + activityJoins*5.0 + dayStreak + weekStreak*7.0,
		cha:  mentionsReceived + repliesReceived + reactionsReceived,
		vit:  voiceMinutes + streamMinutes*2.0,
	}
}

// statSigma derives a robust center and spread from the interquartile
// window: mu = (P25+P75)/2, sigma = (P75-P25)/2 floored to 1 so a
// constant population normalizes to z = 0 instead of dividing by zero.
func statSigma(values []float64) (mu, sigma float64) {
	if len(values) == 0 {
		return 0.0, 1.0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	q25 := percentile(sorted, statPercentLow)
	q75 := percentile(sorted, statPercentHi)
	mu = (q25 + q75) / 2.0
	sigma = (q75 - q25) / 2.0
	if sigma <= 0 {
		sigma = 1.0
	}
	return mu, sigma
}

func statValue(raw, mu, sigma float64) int {
	z := 0.0
	if sigma != 0 {
		z = (raw - mu) / sigma
	}
	score := int(math.Round(statBase + z*statScale))
	if score < statFloor {
		score = statFloor
	}
	return score
}

// ComputeRPGStats derives the six stat scores per non-bot user from the
// report's user_metrics. It is a pure function of the report.
func ComputeRPGStats(r *Report) map[int64]StatBlock {
	if r == nil || len(r.UserMetrics) == 0 {
		return map[int64]StatBlock{}
	}

	vectors := make(map[int64]statVector)
	var eligible []int64
	for uid, metrics := range r.UserMetrics {
		if metricValue(metrics, "is_bot") != 0 {
			continue
		}
		eligible = append(eligible, uid)
		vectors[uid] = rawStatVector(metrics)
	}
	if len(eligible) == 0 {
		return map[int64]StatBlock{}
	}

	collect := func(pick func(statVector) float64) []float64 {
		values := make([]float64, 0, len(eligible))
		for _, uid := range eligible {
			values = append(values, pick(vectors[uid]))
		}
		return values
	}

	muStr, sigStr := statSigma(collect(func(v statVector) float64 { return v.str }))
	muInt, sigInt := statSigma(collect(func(v statVector) float64 { return v.intl }))
	muDex, sigDex := statSigma(collect(func(v statVector) float64 { return v.dex }))
	muWis, sigWis := statSigma(collect(func(v statVector) float64 { return v.wis }))
	muCha, sigCha := statSigma(collect(func(v statVector) float64 { return v.cha }))
	muVit, sigVit := statSigma(collect(func(v statVector) float64 { return v.vit }))

	result := make(map[int64]StatBlock, len(eligible))
	for _, uid := range eligible {
		v := vectors[uid]
		result[uid] = StatBlock{
			Str: statValue(v.str, muStr, sigStr),
			Int: statValue(v.intl, muInt, sigInt),
			Dex: statValue(v.dex, muDex, sigDex),
			Wis: statValue(v.wis, muWis, sigWis),
			Cha: statValue(v.cha, muCha, sigCha),
			Vit: statValue(v.vit, muVit, sigVit),
		}
	}
	return result
}
