package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type ModAction struct {
	ID          int64
	GuildID     int64
	UserID      int64
	ModeratorID int64
	Action      string
	Reason      string
	CreatedAt   time.Time
	ExpiresAt   *time.Time
}

func (s *Store) AddModAction(ctx context.Context, action ModAction) (int64, error) {
	var expiresAt any
	if action.ExpiresAt != nil {
		expiresAt = action.ExpiresAt.Unix()
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO mod_actions (guild_id, user_id, moderator_id, action, reason, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, action.GuildID, action.UserID, action.ModeratorID, action.Action, action.Reason, action.CreatedAt.Unix(), expiresAt)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ListModActions returns a user's moderation history, newest first.
// userID 0 lists the whole guild.
func (s *Store) ListModActions(ctx context.Context, guildID, userID int64, limit int) ([]ModAction, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, guild_id, user_id, moderator_id, action, reason, created_at, expires_at
		FROM mod_actions
		WHERE guild_id = ?`
	args := []any{guildID}
	if userID != 0 {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []ModAction
	for rows.Next() {
		var a ModAction
		var created int64
		var expires sql.NullInt64
		if err := rows.Scan(&a.ID, &a.GuildID, &a.UserID, &a.ModeratorID, &a.Action, &a.Reason, &created, &expires); err != nil {
			return nil, err
		}
		a.CreatedAt = time.Unix(created, 0)
		if expires.Valid {
			value := time.Unix(expires.Int64, 0)
			a.ExpiresAt = &value
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// CountWarnings counts a user's warnings issued after the cutoff,
// so repeat offenses can escalate while old ones are forgiven.
func (s *Store) CountWarnings(ctx context.Context, guildID, userID int64, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM mod_actions
		WHERE guild_id = ? AND user_id = ? AND action = 'warn' AND created_at >= ?
	`, guildID, userID, since.Unix()).Scan(&count)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	return count, nil
}
