package bot

import (
	"context"
	"strconv"
	"time"

	"nimbus-community/internal/config"
	"nimbus-community/internal/modules/activity"
	"nimbus-community/internal/modules/archiver"
	"nimbus-community/internal/modules/birthday"
	"nimbus-community/internal/modules/moderation"
	"nimbus-community/internal/report"
	"nimbus-community/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	cfg        config.Config
	logger     *zap.Logger
	store      *storage.Store
	session    *discordgo.Session
	archiver   *archiver.Module
	activity   *activity.Module
	birthday   *birthday.Module
	moderation *moderation.Module
	reports    *report.Generator
	cancel     context.CancelFunc
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildPresences |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildVoiceStates

	b := &Bot{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		session: session,
		reports: report.New(store.Archive(), store),
	}

	b.archiver = archiver.New(store, logger, cfg.Archiver.FlushSize, cfg.Archiver.FlushSeconds)
	b.activity = activity.New(store, logger)
	b.birthday = birthday.New(store, logger, b.sendToChannel, cfg.Birthday.AnnounceHour, cfg.DefaultTimezone)
	b.moderation = moderation.New(store, logger, b.timeoutMember,
		cfg.Moderation.WarnEscalation, cfg.Moderation.ForgivenessDays, cfg.Moderation.TimeoutMinutes)

	return b, nil
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onGuildCreate)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onMessageUpdate)
	b.session.AddHandler(b.onMessageReactionAdd)
	b.session.AddHandler(b.onVoiceStateUpdate)
	b.session.AddHandler(b.onPresenceUpdate)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	if err := b.registerCommands(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	go b.archiver.Run(ctx)
	if b.cfg.Birthday.Enabled {
		go b.birthdayLoop(ctx)
	}
	go b.retentionLoop(ctx)
	go b.scheduledReportLoop(ctx)

	return nil
}

func (b *Bot) Close(ctx context.Context) {
	if b.cancel != nil {
		b.cancel()
	}
	b.archiver.Flush(ctx)
	if b.session != nil {
		_ = b.session.Close()
	}
}

// Generate runs the analytics engine for one guild using its stored
// timezone and the live member roster.
func (b *Bot) Generate(ctx context.Context, guildID int64) (*report.Report, error) {
	settings := b.guildSettings(ctx, guildID)
	opts := report.Options{
		Timezone:   settings.Timezone,
		BotUserIDs: make(map[int64]bool),
	}
	if guild, err := b.session.State.Guild(strconv.FormatInt(guildID, 10)); err == nil && guild != nil {
		opts.MemberCount = guild.MemberCount
		for _, member := range guild.Members {
			if member != nil && member.User != nil && member.User.Bot {
				opts.BotUserIDs[archiver.Snowflake(member.User.ID)] = true
			}
		}
	}
	return b.reports.Generate(ctx, guildID, opts)
}

func (b *Bot) birthdayLoop(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, guild := range b.session.State.Guilds {
				if guild == nil {
					continue
				}
				b.birthday.Tick(ctx, archiver.Snowflake(guild.ID))
			}
		}
	}
}

// scheduledReportLoop posts a weekly report into each guild's
// configured report channel.
func (b *Bot) scheduledReportLoop(ctx context.Context) {
	ticker := time.NewTicker(7 * 24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, guild := range b.session.State.Guilds {
				if guild == nil {
					continue
				}
				guildID := archiver.Snowflake(guild.ID)
				settings := b.guildSettings(ctx, guildID)
				if settings.ReportChannel == 0 {
					continue
				}
				b.archiver.Flush(ctx)
				rep, err := b.Generate(ctx, guildID)
				if err != nil {
					b.logger.Warn("scheduled report failed", zap.Int64("guild_id", guildID), zap.Error(err))
					continue
				}
				b.postReport(settings.ReportChannel, rep)
			}
		}
	}
}

func (b *Bot) retentionLoop(ctx context.Context) {
	if b.cfg.RetentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.store.CleanupAuditLogs(ctx, b.cfg.RetentionDays); err != nil {
				b.logger.Warn("audit log cleanup failed", zap.Error(err))
			}
		}
	}
}

func (b *Bot) guildSettings(ctx context.Context, guildID int64) storage.GuildSettings {
	defaults := storage.GuildSettings{
		GuildID:  guildID,
		Timezone: b.cfg.DefaultTimezone,
	}
	settings, err := b.store.GetGuildSettings(ctx, guildID, defaults)
	if err != nil {
		b.logger.Warn("guild settings fallback", zap.Int64("guild_id", guildID), zap.Error(err))
		return defaults
	}
	return settings
}

func (b *Bot) sendToChannel(channelID int64, content string) error {
	_, err := b.session.ChannelMessageSend(strconv.FormatInt(channelID, 10), content)
	return err
}

func (b *Bot) timeoutMember(guildID, userID int64, until time.Time) error {
	return b.session.GuildMemberTimeout(
		strconv.FormatInt(guildID, 10), strconv.FormatInt(userID, 10), &until)
}

func (b *Bot) respond(interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = b.session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
}

func (b *Bot) respondEmbed(interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, files []*discordgo.File) {
	if embed == nil {
		b.respond(interaction, "No response available.", true)
		return
	}
	_ = b.session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Files:  files,
		},
	})
}

func (b *Bot) deferResponse(interaction *discordgo.InteractionCreate) {
	_ = b.session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
}

func (b *Bot) followUpEmbed(interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, files []*discordgo.File) {
	_, _ = b.session.FollowupMessageCreate(interaction.Interaction, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
		Files:  files,
	})
}

func (b *Bot) followUp(interaction *discordgo.InteractionCreate, content string) {
	_, _ = b.session.FollowupMessageCreate(interaction.Interaction, true, &discordgo.WebhookParams{
		Content: content,
	})
}
