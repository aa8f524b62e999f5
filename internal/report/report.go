// Package report computes a guild activity report in a single pass
// over an append-only message archive, plus the derived RPG stat
// scoring consumed by the progression feature.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// DefaultTimezone is the fallback IANA zone when the caller supplies none.
const DefaultTimezone = "America/Los_Angeles"

// rollingWindowHours sizes the trailing window for burst detection.
const rollingWindowHours = 12

// Message is one immutable archived message row. CreatedAt is an
// ISO-8601 timestamp and the authoritative ordering key; sources must
// yield rows in ascending (created_at, message_id) order.
type Message struct {
	MessageID   int64
	GuildID     int64
	ChannelID   int64
	AuthorID    int64
	CreatedAt   string
	Content     string
	Attachments int
	Embeds      int
	Reactions   string
	ReplyToID   int64
}

// MessageSource streams one guild's archive in ascending
// (created_at, message_id) order without holding it in memory.
type MessageSource interface {
	ForEachGuildMessage(ctx context.Context, guildID int64, fn func(Message) error) error
}

// SideMetrics carry per-user cumulative totals maintained outside the
// message archive, merged into the snapshots once per run.
type SideMetrics struct {
	VoiceMinutes   map[int64]int
	StreamMinutes  map[int64]int
	ActivityJoins  map[int64]int
	ReactionsGiven map[int64]int
}

// MetricsSource supplies SideMetrics for a guild.
type MetricsSource interface {
	GuildSideMetrics(ctx context.Context, guildID int64) (SideMetrics, error)
}

// Options tune a single report run.
type Options struct {
	// Timezone is the IANA zone used for the weekday/hour heatmap.
	// Empty means DefaultTimezone. Bucket keys for burst and decay
	// analysis stay UTC-anchored regardless.
	Timezone string
	// MemberCount, when positive, normalizes the participation rate.
	MemberCount int
	// BotUserIDs are excluded from population statistics; their
	// messages still count toward raw totals.
	BotUserIDs map[int64]bool
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// LatencyStats hold median inter-message gaps in seconds.
type LatencyStats struct {
	OverallMedianSeconds float64           `json:"overall_median_seconds"`
	PerUserMedian        map[int64]float64 `json:"per_user_median"`
	PerChannelMedian     map[int64]float64 `json:"per_channel_median"`
}

type ReactionStats struct {
	Average   float64 `json:"average"`
	Stddev    float64 `json:"stddev"`
	Minimum   int     `json:"minimum"`
	Maximum   int     `json:"maximum"`
	Diversity int     `json:"diversity"`
	Total     int     `json:"total"`
}

type TextStats struct {
	TotalWords       int        `json:"total_words"`
	UniqueTokens     int        `json:"unique_tokens"`
	LexicalDiversity float64    `json:"lexical_diversity"`
	SentimentMean    float64    `json:"sentiment_mean"`
	SentimentStd     float64    `json:"sentiment_std"`
	TopicClusters    [][]string `json:"topic_clusters"`
}

type LinkStats struct {
	URLMessages     int     `json:"url_messages"`
	TotalURLs       int     `json:"total_urls"`
	DomainDiversity int     `json:"domain_diversity"`
	EmbedRichness   float64 `json:"embed_richness"`
}

type InequalityStats struct {
	Skewness      float64 `json:"skewness"`
	Kurtosis      float64 `json:"kurtosis"`
	Gini          float64 `json:"gini"`
	HourlyEntropy float64 `json:"hourly_entropy"`
	DailyEntropy  float64 `json:"daily_entropy"`
}

type EngagementStats struct {
	EngagementIndex   float64 `json:"engagement_index"`
	Retention         float64 `json:"retention"`
	ConversationDepth float64 `json:"conversation_depth"`
	AttentionRatio    float64 `json:"attention_ratio"`
	LongevityIndex    float64 `json:"longevity_index"`
}

type LeaderboardEntry struct {
	UserID int64 `json:"user_id"`
	Count  int   `json:"count"`
}

// Report is the immutable output of one run. Every field serializes to
// JSON without loss.
type Report struct {
	GeneratedAt          string                       `json:"generated_at"`
	GuildID              int64                        `json:"guild_id"`
	Timezone             string                       `json:"timezone"`
	Summary              DistributionStats            `json:"summary"`
	PerDaySummary        DistributionStats            `json:"per_day_summary"`
	Heatmaps             Heatmaps                     `json:"heatmaps"`
	Bursts               []BurstPoint                 `json:"bursts"`
	Decay                []DecayPoint                 `json:"decay"`
	SilenceRatioHourly   float64                      `json:"silence_ratio_hourly"`
	SilenceRatioDaily    float64                      `json:"silence_ratio_daily"`
	Latency              LatencyStats                 `json:"latency"`
	Thread               ThreadStats                  `json:"thread"`
	Reactions            ReactionStats                `json:"reactions"`
	Text                 TextStats                    `json:"text"`
	Links                LinkStats                    `json:"links"`
	Inequality           InequalityStats              `json:"inequality"`
	Health               EngagementStats              `json:"health"`
	TopReactionsReceived []LeaderboardEntry           `json:"top_reactions_received"`
	TopReactionsGiven    []LeaderboardEntry           `json:"top_reactions_given"`
	UserMetrics          map[int64]map[string]float64 `json:"user_metrics"`
}

// Generator runs report computations over injected sources.
type Generator struct {
	source  MessageSource
	metrics MetricsSource
	clock   Clock
}

// New builds a Generator. metrics may be nil when no side-channel
// totals exist; missing users default to zero.
func New(source MessageSource, metrics MetricsSource) *Generator {
	return &Generator{source: source, metrics: metrics, clock: realClock{}}
}

func (g *Generator) WithClock(clock Clock) {
	g.clock = clock
}

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// parseWhen falls back to the Unix epoch for unparseable values so one
// bad row never aborts a run.
func parseWhen(value string) time.Time {
	if value != "" {
		for _, layout := range isoLayouts {
			if t, err := time.Parse(layout, value); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Unix(0, 0).UTC()
}

// Generate streams the guild's archive once and assembles the report.
// It propagates only source errors; malformed rows degrade per field.
func (g *Generator) Generate(ctx context.Context, guildID int64, opts Options) (*Report, error) {
	tzName := opts.Timezone
	if tzName == "" {
		tzName = DefaultTimezone
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tzName, err)
	}

	perUser := make(map[int64]*userSnapshot)
	snapshot := func(userID int64) *userSnapshot {
		snap, ok := perUser[userID]
		if !ok {
			snap = newUserSnapshot()
			perUser[userID] = snap
		}
		return snap
	}

	if g.metrics != nil {
		side, err := g.metrics.GuildSideMetrics(ctx, guildID)
		if err != nil {
			return nil, fmt.Errorf("load side metrics: %w", err)
		}
		for uid, minutes := range side.VoiceMinutes {
			snapshot(uid).voiceMinutes = minutes
		}
		for uid, minutes := range side.StreamMinutes {
			snapshot(uid).streamMinutes = minutes
		}
		for uid, joins := range side.ActivityJoins {
			snapshot(uid).activityJoins = joins
		}
		for uid, count := range side.ReactionsGiven {
			snapshot(uid).reactionsGiven = count
		}
	}

	var (
		timestamps      []time.Time
		perUserTimes    = make(map[int64][]time.Time)
		perChannelTimes = make(map[int64][]time.Time)
		hourlyCounts    = make(map[time.Time]int)
		hourlyLabels    = make(map[string]int)
		dailyCounts     = make(map[string]int)
		reactionCounts  []float64
		reactionEmojis  = make(map[string]struct{})
		tokenCounts     = make(map[string]int)
		allTokens       = make(map[string]struct{})
		sentimentScores []float64
		urlCounts       = make(map[string]int)
		urlMessages     int
		embedMessages   int
		meta            = make(map[int64]messageMeta)
		children        = make(map[int64][]int64)
		lastSeen        = make(map[int64]time.Time)
	)

	err = g.source.ForEachGuildMessage(ctx, guildID, func(m Message) error {
		when := parseWhen(m.CreatedAt)
		timestamps = append(timestamps, when)
		perChannelTimes[m.ChannelID] = append(perChannelTimes[m.ChannelID], when)
		perUserTimes[m.AuthorID] = append(perUserTimes[m.AuthorID], when)

		hourKey := when.Truncate(time.Hour)
		hourlyCounts[hourKey]++
		hourlyLabels[hourKey.Format(time.RFC3339)]++
		dailyCounts[when.Format("2006-01-02")]++

		meta[m.MessageID] = messageMeta{
			when:      when,
			parentID:  m.ReplyToID,
			channelID: m.ChannelID,
			authorID:  m.AuthorID,
		}
		if m.ReplyToID != 0 {
			children[m.ReplyToID] = append(children[m.ReplyToID], m.MessageID)
		}

		snap := snapshot(m.AuthorID)
		snap.isBot = opts.BotUserIDs[m.AuthorID]
		snap.messages++
		snap.recordMessage(when)

		if last, ok := lastSeen[m.AuthorID]; ok && when.After(last) {
			snap.latencySeconds = append(snap.latencySeconds, when.Sub(last).Seconds())
		}
		lastSeen[m.AuthorID] = when

		tokens := tokenize(m.Content)
		snap.words += len(tokens)
		for _, tok := range tokens {
			snap.tokenSet[tok] = struct{}{}
			allTokens[tok] = struct{}{}
			if _, stop := stopWords[tok]; !stop {
				tokenCounts[tok]++
			}
		}
		sentimentScores = append(sentimentScores, sentimentScore(tokens))

		for _, target := range extractMentions(m.Content) {
			snap.mentionsSent++
			snapshot(target).mentionsReceived++
		}

		if m.ReplyToID != 0 {
			snap.repliesMade++
			if parent, ok := meta[m.ReplyToID]; ok && parent.authorID != 0 {
				snapshot(parent.authorID).repliesReceived++
			}
		}

		reactionTotal, emojis := parseReactions(m.Reactions)
		if reactionTotal > 0 {
			snap.reactionsReceived += reactionTotal
		}
		reactionCounts = append(reactionCounts, float64(reactionTotal))
		for _, emoji := range emojis {
			reactionEmojis[emoji] = struct{}{}
		}

		if m.Attachments > 0 || m.Embeds > 0 {
			embedMessages++
		}
		if domains := extractDomains(m.Content); len(domains) > 0 {
			urlMessages++
			for _, domain := range domains {
				urlCounts[domain]++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("stream guild %d archive: %w", guildID, err)
	}

	// Population statistics exclude bots and side-metric-only users.
	var perUserCounts []float64
	activeUsers := 0
	returningUsers := 0
	for _, snap := range perUser {
		if snap.isBot || snap.messages == 0 {
			continue
		}
		perUserCounts = append(perUserCounts, float64(snap.messages))
		activeUsers++
		if len(snap.activeDays) > 1 {
			returningUsers++
		}
	}

	perDayCounts := make([]float64, 0, len(dailyCounts))
	for _, cnt := range dailyCounts {
		perDayCounts = append(perDayCounts, float64(cnt))
	}

	hourlySeries := sortedHourlySeries(hourlyCounts)

	totalDays := 0
	if len(timestamps) > 0 {
		minT, maxT := timestamps[0], timestamps[0]
		for _, ts := range timestamps[1:] {
			if ts.Before(minT) {
				minT = ts
			}
			if ts.After(maxT) {
				maxT = ts
			}
		}
		minDate := minT.Truncate(24 * time.Hour)
		maxDate := maxT.Truncate(24 * time.Hour)
		totalDays = int(maxDate.Sub(minDate).Hours()/24) + 1
	}

	dailyBucketCounts := make(map[time.Time]int, len(dailyCounts))
	for day, cnt := range dailyCounts {
		if parsed, err := time.Parse("2006-01-02", day); err == nil {
			dailyBucketCounts[parsed] = cnt
		}
	}

	reactionStats := buildReactionStats(reactionCounts, len(reactionEmojis))
	threadStats := buildThreadStats(meta, children)

	totalWords := 0
	for _, snap := range perUser {
		totalWords += snap.words
	}

	report := &Report{
		GeneratedAt:        g.clock.Now().UTC().Format(time.RFC3339Nano),
		GuildID:            guildID,
		Timezone:           tzName,
		Summary:            buildDistribution(perUserCounts),
		PerDaySummary:      buildDistribution(perDayCounts),
		Heatmaps:           buildHeatmaps(timestamps, loc),
		Bursts:             rollingBursts(hourlySeries, rollingWindowHours),
		Decay:              halfLives(hourlySeries),
		SilenceRatioHourly: silenceRatio(hourlyCounts, time.Hour),
		SilenceRatioDaily:  silenceRatio(dailyBucketCounts, 24*time.Hour),
		Latency:            buildLatencyStats(perUserTimes, perChannelTimes),
		Thread:             threadStats,
		Reactions:          reactionStats,
		Text: TextStats{
			TotalWords:       totalWords,
			UniqueTokens:     len(allTokens),
			LexicalDiversity: safeRatio(float64(len(allTokens)), float64(totalWords)),
			SentimentMean:    mean(sentimentScores),
			SentimentStd:     popStddev(sentimentScores),
			TopicClusters:    topicClusters(tokenCounts, 5, 5),
		},
		Links: LinkStats{
			URLMessages:     urlMessages,
			TotalURLs:       sumCounts(urlCounts),
			DomainDiversity: len(urlCounts),
			EmbedRichness:   safeRatio(float64(embedMessages), float64(len(timestamps))),
		},
		Inequality: InequalityStats{
			Skewness:      skewness(perUserCounts),
			Kurtosis:      kurtosis(perUserCounts),
			Gini:          gini(perUserCounts),
			HourlyEntropy: entropy(hourlyLabels),
			DailyEntropy:  entropy(dailyCounts),
		},
		Health: buildEngagementStats(engagementInputs{
			totalMessages:  len(timestamps),
			uniqueUsers:    activeUsers,
			totalReactions: reactionStats.Total,
			replyDensity:   threadStats.ReplyDensity,
			avgReplyDepth:  threadStats.AverageDepth,
			attentionRatio: threadStats.RepliesWithin10mRatio,
			activeDays:     len(dailyCounts),
			totalDays:      totalDays,
			returningUsers: returningUsers,
			memberCount:    opts.MemberCount,
		}),
		TopReactionsReceived: topReactors(perUser, func(s *userSnapshot) int { return s.reactionsReceived }),
		TopReactionsGiven:    topReactors(perUser, func(s *userSnapshot) int { return s.reactionsGiven }),
		UserMetrics:          make(map[int64]map[string]float64, len(perUser)),
	}

	for uid, snap := range perUser {
		report.UserMetrics[uid] = snap.metricsPayload()
	}
	return report, nil
}

func safeRatio(num, denom float64) float64 {
	if denom == 0 {
		return 0.0
	}
	return num / denom
}

func sumCounts(counts map[string]int) int {
	total := 0
	for _, cnt := range counts {
		total += cnt
	}
	return total
}

func buildReactionStats(counts []float64, diversity int) ReactionStats {
	if len(counts) == 0 {
		return ReactionStats{Diversity: diversity}
	}
	dist := buildDistribution(counts)
	total := 0.0
	for _, c := range counts {
		total += c
	}
	return ReactionStats{
		Average:   dist.Mean,
		Stddev:    dist.Stddev,
		Minimum:   int(dist.Minimum),
		Maximum:   int(dist.Maximum),
		Diversity: diversity,
		Total:     int(total),
	}
}

func buildLatencyStats(perUserTimes, perChannelTimes map[int64][]time.Time) LatencyStats {
	stats := LatencyStats{
		PerUserMedian:    make(map[int64]float64),
		PerChannelMedian: make(map[int64]float64),
	}
	var overall []float64
	collect := func(times []time.Time) []float64 {
		if len(times) < 2 {
			return nil
		}
		sorted := make([]time.Time, len(times))
		copy(sorted, times)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
		var deltas []float64
		for i := 1; i < len(sorted); i++ {
			if sorted[i].After(sorted[i-1]) {
				deltas = append(deltas, sorted[i].Sub(sorted[i-1]).Seconds())
			}
		}
		return deltas
	}
	for uid, times := range perUserTimes {
		if deltas := collect(times); len(deltas) > 0 {
			stats.PerUserMedian[uid] = median(deltas)
			overall = append(overall, deltas...)
		}
	}
	for cid, times := range perChannelTimes {
		if deltas := collect(times); len(deltas) > 0 {
			stats.PerChannelMedian[cid] = median(deltas)
			overall = append(overall, deltas...)
		}
	}
	stats.OverallMedianSeconds = median(overall)
	return stats
}

type engagementInputs struct {
	totalMessages  int
	uniqueUsers    int
	totalReactions int
	replyDensity   float64
	avgReplyDepth  float64
	attentionRatio float64
	activeDays     int
	totalDays      int
	returningUsers int
	memberCount    int
}

func buildEngagementStats(in engagementInputs) EngagementStats {
	avgPerUser := safeRatio(float64(in.totalMessages), float64(in.uniqueUsers))
	reactionRatio := safeRatio(float64(in.totalReactions), float64(in.totalMessages))
	participation := 1.0
	if in.memberCount > 0 {
		participation = float64(in.uniqueUsers) / float64(in.memberCount)
	}
	return EngagementStats{
		EngagementIndex:   avgPerUser * reactionRatio * participation,
		Retention:         safeRatio(float64(in.returningUsers), float64(in.uniqueUsers)),
		ConversationDepth: in.avgReplyDepth * in.replyDensity,
		AttentionRatio:    in.attentionRatio,
		LongevityIndex:    safeRatio(float64(in.activeDays), float64(in.totalDays)),
	}
}

func topReactors(perUser map[int64]*userSnapshot, count func(*userSnapshot) int) []LeaderboardEntry {
	var entries []LeaderboardEntry
	for uid, snap := range perUser {
		if c := count(snap); c > 0 {
			entries = append(entries, LeaderboardEntry{UserID: uid, Count: c})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].UserID < entries[j].UserID
	})
	if len(entries) > 20 {
		entries = entries[:20]
	}
	return entries
}
