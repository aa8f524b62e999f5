package birthday

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nimbus-community/internal/storage"

	"go.uber.org/zap"
)

// Sender posts the announcement. The bot wires this to the Discord
// session so the module stays testable.
type Sender func(channelID int64, content string) error

// Module announces birthdays once per guild-local day in the guild's
// configured birthday channel.
type Module struct {
	store        *storage.Store
	logger       *zap.Logger
	send         Sender
	announceHour int
	defaultTZ    string
	now          func() time.Time
	lastRun      map[int64]string
}

func New(store *storage.Store, logger *zap.Logger, send Sender, announceHour int, defaultTZ string) *Module {
	if announceHour < 0 || announceHour > 23 {
		announceHour = 9
	}
	return &Module{
		store:        store,
		logger:       logger,
		send:         send,
		announceHour: announceHour,
		defaultTZ:    defaultTZ,
		now:          time.Now,
		lastRun:      make(map[int64]string),
	}
}

// Tick checks one guild. The bot calls this for every known guild on a
// coarse timer; the module itself decides whether the guild-local
// announce hour has arrived and dedupes on the local date.
func (m *Module) Tick(ctx context.Context, guildID int64) {
	settings, err := m.store.GetGuildSettings(ctx, guildID, storage.GuildSettings{Timezone: m.defaultTZ})
	if err != nil {
		m.logger.Warn("birthday settings lookup failed", zap.Int64("guild_id", guildID), zap.Error(err))
		return
	}
	if settings.BirthdayChannel == 0 {
		return
	}

	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := m.now().In(loc)
	if local.Hour() < m.announceHour {
		return
	}
	day := local.Format("2006-01-02")
	if m.lastRun[guildID] == day {
		return
	}
	m.lastRun[guildID] = day

	if err := m.announce(ctx, guildID, settings.BirthdayChannel, local); err != nil {
		m.logger.Warn("birthday announcement failed", zap.Int64("guild_id", guildID), zap.Error(err))
	}
}

func (m *Module) announce(ctx context.Context, guildID, channelID int64, local time.Time) error {
	all, err := m.store.BirthdaysOn(ctx, int(local.Month()), local.Day())
	if err != nil {
		return err
	}
	var mentions []string
	for _, b := range all {
		if b.GuildID == guildID {
			mentions = append(mentions, fmt.Sprintf("<@%d>", b.UserID))
		}
	}
	if len(mentions) == 0 {
		return nil
	}
	content := fmt.Sprintf("🎂 Happy birthday %s!", strings.Join(mentions, ", "))
	return m.send(channelID, content)
}
