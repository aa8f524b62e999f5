package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Poll struct {
	ID        string
	GuildID   int64
	ChannelID int64
	MessageID int64
	Question  string
	Options   []string
	CreatedAt time.Time
	ClosesAt  *time.Time
	Status    string
}

type PollResult struct {
	OptionIndex int
	Label       string
	Votes       int
}

func (s *Store) CreatePoll(ctx context.Context, poll Poll) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var closesAt any
	if poll.ClosesAt != nil {
		closesAt = poll.ClosesAt.Unix()
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO polls (id, guild_id, channel_id, message_id, question, created_at, closes_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'open')
	`, poll.ID, poll.GuildID, poll.ChannelID, poll.MessageID, poll.Question, poll.CreatedAt.Unix(), closesAt); err != nil {
		return err
	}
	for idx, label := range poll.Options {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO poll_options (poll_id, idx, label) VALUES (?, ?, ?)`,
			poll.ID, idx, label); err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

func (s *Store) GetPoll(ctx context.Context, pollID string) (Poll, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, guild_id, channel_id, message_id, question, created_at, closes_at, status
		FROM polls WHERE id = ?`, pollID)

	var poll Poll
	var created int64
	var closes sql.NullInt64
	err := row.Scan(&poll.ID, &poll.GuildID, &poll.ChannelID, &poll.MessageID, &poll.Question, &created, &closes, &poll.Status)
	if err != nil {
		return Poll{}, err
	}
	poll.CreatedAt = time.Unix(created, 0)
	if closes.Valid {
		value := time.Unix(closes.Int64, 0)
		poll.ClosesAt = &value
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT label FROM poll_options WHERE poll_id = ? ORDER BY idx`, pollID)
	if err != nil {
		return Poll{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return Poll{}, err
		}
		poll.Options = append(poll.Options, label)
	}
	return poll, rows.Err()
}

var ErrPollClosed = errors.New("poll is closed")

// VotePoll records or replaces a user's vote.
func (s *Store) VotePoll(ctx context.Context, pollID string, userID int64, optionIdx int) error {
	var status string
	if err := s.db.QueryRowContext(ctx,
		`SELECT status FROM polls WHERE id = ?`, pollID).Scan(&status); err != nil {
		return err
	}
	if status != "open" {
		return ErrPollClosed
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO poll_votes (poll_id, user_id, option_idx)
		VALUES (?, ?, ?)
		ON CONFLICT(poll_id, user_id) DO UPDATE SET option_idx = excluded.option_idx
	`, pollID, userID, optionIdx)
	return err
}

func (s *Store) ClosePoll(ctx context.Context, pollID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE polls SET status = 'closed' WHERE id = ?`, pollID)
	return err
}

func (s *Store) PollResults(ctx context.Context, pollID string) ([]PollResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.idx, o.label, COUNT(v.user_id)
		FROM poll_options o
		LEFT JOIN poll_votes v ON v.poll_id = o.poll_id AND v.option_idx = o.idx
		WHERE o.poll_id = ?
		GROUP BY o.idx, o.label
		ORDER BY o.idx
	`, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []PollResult
	for rows.Next() {
		var r PollResult
		if err := rows.Scan(&r.OptionIndex, &r.Label, &r.Votes); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
