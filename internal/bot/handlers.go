package bot

import (
	"context"
	"strings"

	"nimbus-community/internal/modules/archiver"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready",
		zap.String("user", session.State.User.Username),
		zap.Int("guilds", len(event.Guilds)))
}

func (b *Bot) onGuildCreate(session *discordgo.Session, event *discordgo.GuildCreate) {
	if event.Guild == nil || event.Guild.ID == "" || !b.cfg.Archiver.Backfill {
		return
	}
	guildID := archiver.Snowflake(event.Guild.ID)
	channels := make([]int64, 0, len(event.Guild.Channels))
	for _, channel := range event.Guild.Channels {
		if channel == nil {
			continue
		}
		if channel.Type != discordgo.ChannelTypeGuildText && channel.Type != discordgo.ChannelTypeGuildNews {
			continue
		}
		channels = append(channels, archiver.Snowflake(channel.ID))
	}

	go func() {
		ctx := context.Background()
		for _, channelID := range channels {
			n, err := b.archiver.Backfill(ctx, session, guildID, channelID, b.cfg.Archiver.BackfillChunk)
			if err != nil {
				b.logger.Warn("channel backfill stopped",
					zap.Int64("guild_id", guildID), zap.Int64("channel_id", channelID),
					zap.Int("archived", n), zap.Error(err))
				continue
			}
			if n > 0 {
				b.logger.Info("channel backfill complete",
					zap.Int64("guild_id", guildID), zap.Int64("channel_id", channelID),
					zap.Int("archived", n))
			}
		}
	}()
}

func (b *Bot) onGuildMemberAdd(session *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.Member == nil || event.User == nil || event.GuildID == "" {
		return
	}
	ctx := context.Background()
	settings := b.guildSettings(ctx, archiver.Snowflake(event.GuildID))
	if settings.WelcomeChannel == 0 {
		return
	}
	message := settings.WelcomeMessage
	if message == "" {
		message = "Welcome, {user}!"
	}
	message = strings.ReplaceAll(message, "{user}", "<@"+event.User.ID+">")
	if err := b.sendToChannel(settings.WelcomeChannel, message); err != nil {
		b.logger.Warn("welcome message failed", zap.String("guild_id", event.GuildID), zap.Error(err))
	}
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.GuildID == "" {
		return
	}
	b.archiver.HandleMessage(context.Background(), msg.Message)
}

func (b *Bot) onMessageUpdate(session *discordgo.Session, msg *discordgo.MessageUpdate) {
	if msg.Message == nil || msg.GuildID == "" || msg.Author == nil {
		return
	}
	b.archiver.HandleMessageUpdate(context.Background(), msg.Message)
}

func (b *Bot) onMessageReactionAdd(session *discordgo.Session, event *discordgo.MessageReactionAdd) {
	if event.GuildID == "" || event.UserID == "" {
		return
	}
	reactorID := archiver.Snowflake(event.UserID)
	guildID := archiver.Snowflake(event.GuildID)
	if reactorID == 0 || guildID == 0 {
		return
	}
	if user, err := session.User(event.UserID); err == nil && user != nil && user.Bot {
		return
	}

	msg, err := session.State.Message(event.ChannelID, event.MessageID)
	if err != nil || msg == nil {
		msg, err = session.ChannelMessage(event.ChannelID, event.MessageID)
		if err != nil {
			b.logger.Debug("reaction target fetch failed",
				zap.String("message_id", event.MessageID), zap.Error(err))
			msg = nil
		}
	}
	if msg != nil && msg.GuildID == "" {
		msg.GuildID = event.GuildID
	}
	b.archiver.HandleReaction(context.Background(), guildID, reactorID, msg)
}

func (b *Bot) onVoiceStateUpdate(session *discordgo.Session, event *discordgo.VoiceStateUpdate) {
	if event.VoiceState == nil || event.GuildID == "" || event.UserID == "" {
		return
	}
	if user, err := session.User(event.UserID); err == nil && user != nil && user.Bot {
		return
	}
	b.activity.HandleVoiceState(context.Background(),
		archiver.Snowflake(event.GuildID),
		archiver.Snowflake(event.UserID),
		event.ChannelID,
		event.SelfStream)
}

func (b *Bot) onPresenceUpdate(session *discordgo.Session, event *discordgo.PresenceUpdate) {
	if event.User == nil || event.GuildID == "" || event.User.Bot {
		return
	}
	b.activity.HandlePresence(context.Background(),
		archiver.Snowflake(event.GuildID),
		archiver.Snowflake(event.User.ID),
		event.Activities)
}

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if interaction.GuildID == "" {
		b.respond(interaction, "Commands only work inside a server.", true)
		return
	}
	b.handleCommand(interaction)
}

func interactionUserID(interaction *discordgo.InteractionCreate) int64 {
	if interaction.Member != nil && interaction.Member.User != nil {
		return archiver.Snowflake(interaction.Member.User.ID)
	}
	if interaction.User != nil {
		return archiver.Snowflake(interaction.User.ID)
	}
	return 0
}
