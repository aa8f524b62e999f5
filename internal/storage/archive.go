package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"nimbus-community/internal/report"
)

// DefaultChunkSize bounds one page of archive rows; a guild archive may
// hold millions of rows, so iteration never loads it whole.
const DefaultChunkSize = 500

// ArchivedMessage is one row of the append-only message archive.
type ArchivedMessage struct {
	MessageID   int64
	GuildID     int64
	ChannelID   int64
	AuthorID    int64
	MessageType string
	CreatedAt   string
	Content     string
	EditedAt    string
	Attachments int
	Embeds      int
	Reactions   string
	ReplyToID   int64
}

// ArchiveQuery narrows IterGuildMessages. Zero values mean "no filter".
type ArchiveQuery struct {
	ChannelID int64
	AfterID   int64
	BeforeID  int64
	ChunkSize int
}

func (s *Store) UpsertArchivedMessages(ctx context.Context, messages []ArchivedMessage) error {
	if len(messages) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO message_archive (
			message_id, guild_id, channel_id, author_id, message_type,
			created_at, content, edited_at, attachments, embeds, reactions, reply_to_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			content = excluded.content,
			edited_at = excluded.edited_at,
			attachments = excluded.attachments,
			embeds = excluded.embeds,
			reactions = excluded.reactions,
			reply_to_id = excluded.reply_to_id
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range messages {
		var replyTo any
		if m.ReplyToID != 0 {
			replyTo = m.ReplyToID
		}
		if _, err = stmt.ExecContext(ctx,
			m.MessageID, m.GuildID, m.ChannelID, m.AuthorID, m.MessageType,
			m.CreatedAt, nullableText(m.Content), nullableText(m.EditedAt),
			m.Attachments, m.Embeds, nullableText(m.Reactions), replyTo,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) UpdateMessageReactions(ctx context.Context, messageID int64, reactions string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE message_archive SET reactions = ? WHERE message_id = ?`,
		nullableText(reactions), messageID)
	return err
}

func (s *Store) CountGuildMessages(ctx context.Context, guildID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM message_archive WHERE guild_id = ?`, guildID).Scan(&count)
	return count, err
}

// MaxMessageID returns the newest archived message id for a channel, or
// 0 when the channel has no archived rows. Backfill resumes from here.
func (s *Store) MaxMessageID(ctx context.Context, guildID, channelID int64) (int64, error) {
	var id sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(message_id) FROM message_archive WHERE guild_id = ? AND channel_id = ?`,
		guildID, channelID).Scan(&id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	if id.Valid {
		return id.Int64, nil
	}
	return 0, nil
}

// IterGuildMessages streams archive rows in ascending
// (created_at, message_id) order using keyset pagination, so a fresh
// call always re-reads from storage and memory stays bounded by the
// chunk size.
func (s *Store) IterGuildMessages(ctx context.Context, guildID int64, q ArchiveQuery, fn func(ArchivedMessage) error) error {
	chunk := q.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}

	var cursorCreated string
	var cursorID int64
	started := false

	for {
		page, err := s.archivePage(ctx, guildID, q, chunk, started, cursorCreated, cursorID)
		if err != nil {
			return err
		}
		for _, m := range page {
			if err := fn(m); err != nil {
				return err
			}
		}
		if len(page) < chunk {
			return nil
		}
		last := page[len(page)-1]
		cursorCreated = last.CreatedAt
		cursorID = last.MessageID
		started = true
	}
}

func (s *Store) archivePage(ctx context.Context, guildID int64, q ArchiveQuery, chunk int, started bool, cursorCreated string, cursorID int64) ([]ArchivedMessage, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT message_id, channel_id, author_id, message_type, created_at,
			COALESCE(content, ''), COALESCE(edited_at, ''), attachments, embeds,
			COALESCE(reactions, ''), COALESCE(reply_to_id, 0)
		FROM message_archive
		WHERE guild_id = ?`)
	args := []any{guildID}

	if started {
		sb.WriteString(` AND (created_at > ? OR (created_at = ? AND message_id > ?))`)
		args = append(args, cursorCreated, cursorCreated, cursorID)
	}
	if q.ChannelID != 0 {
		sb.WriteString(` AND channel_id = ?`)
		args = append(args, q.ChannelID)
	}
	if q.AfterID != 0 {
		sb.WriteString(` AND message_id > ?`)
		args = append(args, q.AfterID)
	}
	if q.BeforeID != 0 {
		sb.WriteString(` AND message_id < ?`)
		args = append(args, q.BeforeID)
	}
	sb.WriteString(` ORDER BY created_at, message_id LIMIT ?`)
	args = append(args, chunk)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("archive page: %w", err)
	}
	defer rows.Close()

	page := make([]ArchivedMessage, 0, chunk)
	for rows.Next() {
		m := ArchivedMessage{GuildID: guildID}
		if err := rows.Scan(
			&m.MessageID, &m.ChannelID, &m.AuthorID, &m.MessageType, &m.CreatedAt,
			&m.Content, &m.EditedAt, &m.Attachments, &m.Embeds, &m.Reactions, &m.ReplyToID,
		); err != nil {
			return nil, err
		}
		page = append(page, m)
	}
	return page, rows.Err()
}

// Archive adapts the store to the report engine's MessageSource.
type Archive struct {
	store *Store
}

func (s *Store) Archive() *Archive {
	return &Archive{store: s}
}

func (a *Archive) ForEachGuildMessage(ctx context.Context, guildID int64, fn func(report.Message) error) error {
	return a.store.IterGuildMessages(ctx, guildID, ArchiveQuery{}, func(m ArchivedMessage) error {
		return fn(report.Message{
			MessageID:   m.MessageID,
			GuildID:     m.GuildID,
			ChannelID:   m.ChannelID,
			AuthorID:    m.AuthorID,
			CreatedAt:   m.CreatedAt,
			Content:     m.Content,
			Attachments: m.Attachments,
			Embeds:      m.Embeds,
			Reactions:   m.Reactions,
			ReplyToID:   m.ReplyToID,
		})
	})
}

func nullableText(value string) any {
	if value == "" {
		return nil
	}
	return value
}
