package storage

import (
	"context"

	"nimbus-community/internal/report"
)

// Metric names tracked in member_metrics_total.
const (
	MetricWords             = "words"
	MetricMentions          = "mentions"
	MetricMentionsSent      = "mentions_sent"
	MetricEmojiReact        = "emoji_react"
	MetricReactionsReceived = "reactions_received"
	MetricVoiceMinutes      = "voice_minutes"
	MetricStreamMinutes     = "voice_stream_minutes"
)

func (s *Store) BumpMemberMetric(ctx context.Context, guildID, userID int64, metric string, inc int) error {
	if inc == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO member_metrics_total (guild_id, user_id, metric, count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(guild_id, user_id, metric) DO UPDATE SET
			count = count + excluded.count
	`, guildID, userID, metric, inc)
	return err
}

func (s *Store) MetricTotals(ctx context.Context, guildID int64, metric string) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, count FROM member_metrics_total
		WHERE guild_id = ? AND metric = ?
	`, guildID, metric)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[int64]int)
	for rows.Next() {
		var userID int64
		var count int
		if err := rows.Scan(&userID, &count); err != nil {
			return nil, err
		}
		totals[userID] = count
	}
	return totals, rows.Err()
}

func (s *Store) BumpActivityLaunches(ctx context.Context, guildID, userID int64, day string, inc int) error {
	if inc == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO member_activity_apps_daily (guild_id, user_id, day, launches)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(guild_id, user_id, day) DO UPDATE SET
			launches = launches + excluded.launches
	`, guildID, userID, day, inc)
	return err
}

func (s *Store) ActivityJoinTotals(ctx context.Context, guildID int64) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, SUM(launches) FROM member_activity_apps_daily
		WHERE guild_id = ?
		GROUP BY user_id
	`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[int64]int)
	for rows.Next() {
		var userID int64
		var total int
		if err := rows.Scan(&userID, &total); err != nil {
			return nil, err
		}
		totals[userID] = total
	}
	return totals, rows.Err()
}

// GuildSideMetrics implements report.MetricsSource over the member
// metrics tables.
func (s *Store) GuildSideMetrics(ctx context.Context, guildID int64) (report.SideMetrics, error) {
	voice, err := s.MetricTotals(ctx, guildID, MetricVoiceMinutes)
	if err != nil {
		return report.SideMetrics{}, err
	}
	stream, err := s.MetricTotals(ctx, guildID, MetricStreamMinutes)
	if err != nil {
		return report.SideMetrics{}, err
	}
	reactions, err := s.MetricTotals(ctx, guildID, MetricEmojiReact)
	if err != nil {
		return report.SideMetrics{}, err
	}
	joins, err := s.ActivityJoinTotals(ctx, guildID)
	if err != nil {
		return report.SideMetrics{}, err
	}
	return report.SideMetrics{
		VoiceMinutes:   voice,
		StreamMinutes:  stream,
		ActivityJoins:  joins,
		ReactionsGiven: reactions,
	}, nil
}
