package storage

import (
	"context"
	"fmt"
)

type Birthday struct {
	GuildID int64
	UserID  int64
	Month   int
	Day     int
}

func (s *Store) SetBirthday(ctx context.Context, b Birthday) error {
	if b.Month < 1 || b.Month > 12 || b.Day < 1 || b.Day > 31 {
		return fmt.Errorf("invalid birthday %02d-%02d", b.Month, b.Day)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO birthdays (guild_id, user_id, month, day)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(guild_id, user_id) DO UPDATE SET
			month = excluded.month,
			day = excluded.day
	`, b.GuildID, b.UserID, b.Month, b.Day)
	return err
}

func (s *Store) RemoveBirthday(ctx context.Context, guildID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM birthdays WHERE guild_id = ? AND user_id = ?`, guildID, userID)
	return err
}

// BirthdaysOn returns the users whose birthday falls on the given
// calendar day, across all guilds. The announcer fans results out per
// guild.
func (s *Store) BirthdaysOn(ctx context.Context, month, day int) ([]Birthday, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guild_id, user_id, month, day FROM birthdays
		WHERE month = ? AND day = ?
		ORDER BY guild_id, user_id
	`, month, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Birthday
	for rows.Next() {
		var b Birthday
		if err := rows.Scan(&b.GuildID, &b.UserID, &b.Month, &b.Day); err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

func (s *Store) ListBirthdays(ctx context.Context, guildID int64) ([]Birthday, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guild_id, user_id, month, day FROM birthdays
		WHERE guild_id = ?
		ORDER BY month, day, user_id
	`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Birthday
	for rows.Next() {
		var b Birthday
		if err := rows.Scan(&b.GuildID, &b.UserID, &b.Month, &b.Day); err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}
