package archiver

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"nimbus-community/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Module mirrors every guild message into the append-only archive and
// keeps the live member counters in step. Rows are buffered and flushed
// in batches so a busy guild does not turn every message into a write.
type Module struct {
	mu        sync.Mutex
	pending   []storage.ArchivedMessage
	store     *storage.Store
	logger    *zap.Logger
	flushSize int
	flushTick time.Duration
}

func New(store *storage.Store, logger *zap.Logger, flushSize, flushSeconds int) *Module {
	if flushSize <= 0 {
		flushSize = 200
	}
	if flushSeconds <= 0 {
		flushSeconds = 30
	}
	return &Module{
		store:     store,
		logger:    logger,
		flushSize: flushSize,
		flushTick: time.Duration(flushSeconds) * time.Second,
	}
}

// Run flushes the buffer on a timer until the context is cancelled.
func (m *Module) Run(ctx context.Context) {
	ticker := time.NewTicker(m.flushTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Flush(context.Background())
			return
		case <-ticker.C:
			m.Flush(ctx)
		}
	}
}

func (m *Module) HandleMessage(ctx context.Context, msg *discordgo.Message) {
	row, ok := ConvertMessage(msg)
	if !ok {
		return
	}

	m.mu.Lock()
	m.pending = append(m.pending, row)
	full := len(m.pending) >= m.flushSize
	m.mu.Unlock()
	if full {
		m.Flush(ctx)
	}

	authorID := Snowflake(msg.Author.ID)
	guildID := Snowflake(msg.GuildID)
	if words := len(strings.Fields(msg.Content)); words > 0 {
		if err := m.store.BumpMemberMetric(ctx, guildID, authorID, storage.MetricWords, words); err != nil {
			m.logger.Warn("word counter update failed", zap.Error(err))
		}
	}
	if len(msg.Mentions) > 0 {
		if err := m.store.BumpMemberMetric(ctx, guildID, authorID, storage.MetricMentionsSent, len(msg.Mentions)); err != nil {
			m.logger.Warn("mention counter update failed", zap.Error(err))
		}
		for _, mentioned := range msg.Mentions {
			if mentioned == nil || mentioned.Bot {
				continue
			}
			if err := m.store.BumpMemberMetric(ctx, guildID, Snowflake(mentioned.ID), storage.MetricMentions, 1); err != nil {
				m.logger.Warn("mention counter update failed", zap.Error(err))
			}
		}
	}
}

// HandleMessageUpdate re-upserts the edited row so the archive keeps
// the latest content.
func (m *Module) HandleMessageUpdate(ctx context.Context, msg *discordgo.Message) {
	row, ok := ConvertMessage(msg)
	if !ok {
		return
	}
	if err := m.store.UpsertArchivedMessages(ctx, []storage.ArchivedMessage{row}); err != nil {
		m.logger.Warn("archive update failed", zap.Int64("message_id", row.MessageID), zap.Error(err))
	}
}

// HandleReaction records the reactor's counter, credits the author, and
// refreshes the archived reaction summary from the fetched message.
func (m *Module) HandleReaction(ctx context.Context, guildID, reactorID int64, msg *discordgo.Message) {
	if err := m.store.BumpMemberMetric(ctx, guildID, reactorID, storage.MetricEmojiReact, 1); err != nil {
		m.logger.Warn("reaction counter update failed", zap.Error(err))
	}
	if msg == nil || msg.Author == nil {
		return
	}
	authorID := Snowflake(msg.Author.ID)
	if authorID != 0 && authorID != reactorID {
		if err := m.store.BumpMemberMetric(ctx, guildID, authorID, storage.MetricReactionsReceived, 1); err != nil {
			m.logger.Warn("reaction counter update failed", zap.Error(err))
		}
	}
	if err := m.store.UpdateMessageReactions(ctx, Snowflake(msg.ID), EncodeReactions(msg.Reactions)); err != nil {
		m.logger.Warn("reaction archive update failed", zap.Error(err))
	}
}

func (m *Module) Flush(ctx context.Context) {
	m.mu.Lock()
	batch := m.pending
	m.pending = nil
	m.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	if err := m.store.UpsertArchivedMessages(ctx, batch); err != nil {
		m.logger.Error("archive flush failed", zap.Int("rows", len(batch)), zap.Error(err))
	}
}

// Backfill walks a channel's history forward from the newest archived
// message, writing chunks until Discord runs out of older pages.
func (m *Module) Backfill(ctx context.Context, session *discordgo.Session, guildID, channelID int64, chunk int) (int, error) {
	if chunk <= 0 || chunk > 100 {
		chunk = 100
	}
	afterID, err := m.store.MaxMessageID(ctx, guildID, channelID)
	if err != nil {
		return 0, err
	}

	total := 0
	channel := strconv.FormatInt(channelID, 10)
	for {
		page, err := session.ChannelMessages(channel, chunk, "", strconv.FormatInt(afterID, 10), "")
		if err != nil {
			return total, err
		}
		if len(page) == 0 {
			return total, nil
		}

		rows := make([]storage.ArchivedMessage, 0, len(page))
		for _, msg := range page {
			if msg.GuildID == "" {
				msg.GuildID = strconv.FormatInt(guildID, 10)
			}
			if row, ok := ConvertMessage(msg); ok {
				rows = append(rows, row)
				if row.MessageID > afterID {
					afterID = row.MessageID
				}
			}
		}
		if err := m.store.UpsertArchivedMessages(ctx, rows); err != nil {
			return total, err
		}
		total += len(rows)
		if len(page) < chunk {
			return total, nil
		}
	}
}

// ConvertMessage maps a gateway message onto an archive row. Messages
// without an author or guild are skipped.
func ConvertMessage(msg *discordgo.Message) (storage.ArchivedMessage, bool) {
	if msg == nil || msg.Author == nil || msg.GuildID == "" {
		return storage.ArchivedMessage{}, false
	}

	row := storage.ArchivedMessage{
		MessageID:   Snowflake(msg.ID),
		GuildID:     Snowflake(msg.GuildID),
		ChannelID:   Snowflake(msg.ChannelID),
		AuthorID:    Snowflake(msg.Author.ID),
		MessageType: messageTypeName(msg.Type),
		CreatedAt:   msg.Timestamp.UTC().Format(time.RFC3339),
		Content:     msg.Content,
		Attachments: len(msg.Attachments),
		Embeds:      len(msg.Embeds),
		Reactions:   EncodeReactions(msg.Reactions),
	}
	if row.MessageID == 0 || row.AuthorID == 0 {
		return storage.ArchivedMessage{}, false
	}
	if msg.EditedTimestamp != nil {
		row.EditedAt = msg.EditedTimestamp.UTC().Format(time.RFC3339)
	}
	if msg.MessageReference != nil {
		row.ReplyToID = Snowflake(msg.MessageReference.MessageID)
	}
	return row, true
}

type reactionSummary struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

// EncodeReactions serializes reaction tallies for the archive. Empty
// input yields an empty string so the column stays NULL.
func EncodeReactions(reactions []*discordgo.MessageReactions) string {
	if len(reactions) == 0 {
		return ""
	}
	summary := make([]reactionSummary, 0, len(reactions))
	for _, r := range reactions {
		if r == nil || r.Count <= 0 {
			continue
		}
		name := ""
		if r.Emoji != nil {
			name = r.Emoji.Name
			if r.Emoji.ID != "" {
				name = r.Emoji.Name + ":" + r.Emoji.ID
			}
		}
		summary = append(summary, reactionSummary{Emoji: name, Count: r.Count})
	}
	if len(summary) == 0 {
		return ""
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return ""
	}
	return string(data)
}

// Snowflake parses a Discord id, returning 0 for anything malformed.
func Snowflake(id string) int64 {
	value, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0
	}
	return value
}

func messageTypeName(t discordgo.MessageType) string {
	switch t {
	case discordgo.MessageTypeDefault:
		return "default"
	case discordgo.MessageTypeReply:
		return "reply"
	case discordgo.MessageTypeThreadStarterMessage:
		return "thread_starter"
	default:
		return "other"
	}
}
