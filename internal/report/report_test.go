package report

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type memSource struct {
	messages []Message
}

func (s *memSource) ForEachGuildMessage(_ context.Context, guildID int64, fn func(Message) error) error {
	for _, m := range s.messages {
		if m.GuildID != guildID {
			continue
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	return nil
}

type memMetrics struct {
	side SideMetrics
}

func (s *memMetrics) GuildSideMetrics(context.Context, int64) (SideMetrics, error) {
	return s.side, nil
}

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

const testGuild = int64(42)

func newTestGenerator(messages []Message, metrics MetricsSource) *Generator {
	gen := New(&memSource{messages: messages}, metrics)
	gen.WithClock(fakeClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)})
	return gen
}

func TestGenerateEmptyArchive(t *testing.T) {
	gen := newTestGenerator(nil, nil)
	r, err := gen.Generate(context.Background(), testGuild, Options{Timezone: "UTC"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if r.SilenceRatioHourly != 1.0 || r.SilenceRatioDaily != 1.0 {
		t.Fatalf("empty archive must be fully silent: %f %f", r.SilenceRatioHourly, r.SilenceRatioDaily)
	}
	if r.Summary.Mean != 0 || r.PerDaySummary.Mean != 0 {
		t.Fatalf("expected zero distributions: %+v %+v", r.Summary, r.PerDaySummary)
	}
	if r.Inequality.Skewness != 0 || r.Inequality.Kurtosis != 0 || r.Inequality.Gini != 0 {
		t.Fatalf("expected zero inequality stats: %+v", r.Inequality)
	}
	if r.Inequality.HourlyEntropy != 0 || r.Inequality.DailyEntropy != 0 {
		t.Fatalf("expected zero entropy: %+v", r.Inequality)
	}
	if len(r.Bursts) != 0 || len(r.Decay) != 0 || len(r.UserMetrics) != 0 {
		t.Fatalf("expected empty series, got %d bursts %d decay %d users", len(r.Bursts), len(r.Decay), len(r.UserMetrics))
	}
	if r.Health.EngagementIndex != 0 || r.Health.Retention != 0 {
		t.Fatalf("expected zero health stats: %+v", r.Health)
	}
}

func TestGenerateSingleMessage(t *testing.T) {
	gen := newTestGenerator([]Message{{
		MessageID: 1, GuildID: testGuild, ChannelID: 10, AuthorID: 100001,
		CreatedAt: "2024-03-01T10:15:00Z", Content: "hello world",
	}}, nil)
	r, err := gen.Generate(context.Background(), testGuild, Options{Timezone: "UTC"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	metrics := r.UserMetrics[100001]
	if metrics["messages"] != 1 {
		t.Fatalf("expected 1 message, got %f", metrics["messages"])
	}
	if metrics["median_latency"] != 0 {
		t.Fatalf("single message has no latency sample, got %f", metrics["median_latency"])
	}
	if r.Thread.ReplyDensity != 0 || r.Thread.RepliesWithin10mRatio != 0 {
		t.Fatalf("expected zero thread stats: %+v", r.Thread)
	}
	if r.SilenceRatioHourly != 0 || r.SilenceRatioDaily != 0 {
		t.Fatalf("single bucket is not silent: %f %f", r.SilenceRatioHourly, r.SilenceRatioDaily)
	}
	if r.Summary.Mean != 1 || r.Summary.Maximum != 1 {
		t.Fatalf("unexpected summary: %+v", r.Summary)
	}
}

func TestGenerateRoundTripScenario(t *testing.T) {
	gen := newTestGenerator([]Message{
		{
			MessageID: 1, GuildID: testGuild, ChannelID: 10, AuthorID: 100001,
			CreatedAt: "2024-03-01T00:00:00Z", Content: "hello world",
		},
		{
			MessageID: 2, GuildID: testGuild, ChannelID: 10, AuthorID: 100002,
			CreatedAt: "2024-03-01T00:05:00Z", Content: "<@100001> hi", ReplyToID: 1,
		},
	}, nil)
	r, err := gen.Generate(context.Background(), testGuild, Options{Timezone: "UTC"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	u1 := r.UserMetrics[100001]
	u2 := r.UserMetrics[100002]
	if u1["messages"] != 1 || u2["messages"] != 1 {
		t.Fatalf("expected one message each: %f %f", u1["messages"], u2["messages"])
	}
	if u1["mentions_received"] != 1 {
		t.Fatalf("expected 1 mention received, got %f", u1["mentions_received"])
	}
	if u2["mentions_sent"] != 1 {
		t.Fatalf("expected 1 mention sent, got %f", u2["mentions_sent"])
	}
	if u2["replies_made"] != 1 {
		t.Fatalf("expected 1 reply made, got %f", u2["replies_made"])
	}
	if u1["replies_received"] != 1 {
		t.Fatalf("expected 1 reply received, got %f", u1["replies_received"])
	}
	if r.Thread.ReplyDensity != 0.5 {
		t.Fatalf("expected reply density 0.5, got %f", r.Thread.ReplyDensity)
	}
	if r.Thread.RepliesWithin10mRatio != 1.0 {
		t.Fatalf("expected attention ratio 1.0, got %f", r.Thread.RepliesWithin10mRatio)
	}
	if r.Thread.AverageDepth != 1 {
		t.Fatalf("expected thread depth 1, got %f", r.Thread.AverageDepth)
	}
	if r.Latency.PerChannelMedian[10] != 300 {
		t.Fatalf("expected channel median 300s, got %f", r.Latency.PerChannelMedian[10])
	}
	if len(r.Bursts) != 1 {
		t.Fatalf("expected a single hourly bucket, got %d", len(r.Bursts))
	}
}

func testMessages() []Message {
	return []Message{
		{
			MessageID: 1, GuildID: testGuild, ChannelID: 10, AuthorID: 100001,
			CreatedAt: "2024-03-01T09:00:00Z", Content: "good morning https://example.com/news",
			Reactions: `[{"emoji":"👍","count":2}]`,
		},
		{
			MessageID: 2, GuildID: testGuild, ChannelID: 10, AuthorID: 100002,
			CreatedAt: "2024-03-01T09:04:00Z", Content: "<@100001> awesome news", ReplyToID: 1,
		},
		{
			MessageID: 3, GuildID: testGuild, ChannelID: 11, AuthorID: 100001,
			CreatedAt: "2024-03-01T15:30:00Z", Content: "lunch was terrible", Attachments: 1,
		},
		{
			MessageID: 4, GuildID: testGuild, ChannelID: 10, AuthorID: 100003,
			CreatedAt: "2024-03-02T09:00:00Z", Content: "", Embeds: 2,
			Reactions: "{broken",
		},
		{
			MessageID: 5, GuildID: testGuild, ChannelID: 10, AuthorID: 100001,
			CreatedAt: "2024-03-02T09:30:00Z", Content: "thanks everyone", ReplyToID: 4,
		},
	}
}

func TestGenerateDeterminism(t *testing.T) {
	metrics := &memMetrics{side: SideMetrics{
		VoiceMinutes:   map[int64]int{100001: 120},
		StreamMinutes:  map[int64]int{100001: 30},
		ActivityJoins:  map[int64]int{100002: 4},
		ReactionsGiven: map[int64]int{100002: 7},
	}}

	run := func() *Report {
		gen := newTestGenerator(testMessages(), metrics)
		r, err := gen.Generate(context.Background(), testGuild, Options{
			Timezone:    "America/Los_Angeles",
			MemberCount: 10,
			BotUserIDs:  map[int64]bool{100003: true},
		})
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		return r
	}

	first := run()
	second := run()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("reports differ between runs:\n%s", diff)
	}

	// The report must survive a JSON round trip without loss.
	encoded, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Report
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(first, &decoded); diff != "" {
		t.Fatalf("report not JSON-stable:\n%s", diff)
	}
}

func TestGenerateSideMetricsAndBots(t *testing.T) {
	metrics := &memMetrics{side: SideMetrics{
		VoiceMinutes:  map[int64]int{100001: 120, 900001: 45},
		StreamMinutes: map[int64]int{100001: 30},
	}}
	gen := newTestGenerator(testMessages(), metrics)
	r, err := gen.Generate(context.Background(), testGuild, Options{
		Timezone:   "UTC",
		BotUserIDs: map[int64]bool{100003: true},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if r.UserMetrics[100001]["voice_minutes"] != 120 {
		t.Fatalf("voice minutes not merged: %f", r.UserMetrics[100001]["voice_minutes"])
	}
	// A user with side metrics but no messages still appears.
	if r.UserMetrics[900001]["voice_minutes"] != 45 {
		t.Fatalf("side-only user missing: %v", r.UserMetrics[900001])
	}
	if r.UserMetrics[100003]["is_bot"] != 1 {
		t.Fatalf("bot flag not set: %v", r.UserMetrics[100003])
	}

	// Bots and message-less users stay out of the population summary:
	// two humans with 3 and 1 messages respectively.
	if r.Summary.Maximum != 3 || r.Summary.Minimum != 1 {
		t.Fatalf("population summary wrong: %+v", r.Summary)
	}
	// The bot's message still counts toward raw totals.
	if got := len(r.Bursts); got == 0 {
		t.Fatalf("expected hourly buckets")
	}
}

func TestGenerateMalformedRows(t *testing.T) {
	gen := newTestGenerator([]Message{
		{
			MessageID: 1, GuildID: testGuild, ChannelID: 10, AuthorID: 100001,
			CreatedAt: "not-a-timestamp", Content: "still counted",
			Reactions: "][",
		},
	}, nil)
	r, err := gen.Generate(context.Background(), testGuild, Options{Timezone: "UTC"})
	if err != nil {
		t.Fatalf("generate must tolerate malformed rows: %v", err)
	}
	if r.UserMetrics[100001]["messages"] != 1 {
		t.Fatalf("malformed row dropped: %v", r.UserMetrics[100001])
	}
	// Epoch fallback keeps the run deterministic.
	if r.Heatmaps.Daily["1970-01-01"] != 1 {
		t.Fatalf("expected epoch fallback day, got %v", r.Heatmaps.Daily)
	}
	if r.Reactions.Total != 0 {
		t.Fatalf("malformed reactions must count as zero, got %d", r.Reactions.Total)
	}
}

func TestGenerateBadTimezone(t *testing.T) {
	gen := newTestGenerator(nil, nil)
	if _, err := gen.Generate(context.Background(), testGuild, Options{Timezone: "Not/AZone"}); err == nil {
		t.Fatalf("expected error for unknown timezone")
	}
}
