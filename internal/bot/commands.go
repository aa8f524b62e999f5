package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"nimbus-community/internal/modules/archiver"
	"nimbus-community/internal/report"
	"nimbus-community/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const embedColor = 0x5865F2

func (b *Bot) registerCommands() error {
	manageGuild := int64(discordgo.PermissionManageServer)
	moderateMembers := int64(discordgo.PermissionModerateMembers)

	commands := []*discordgo.ApplicationCommand{
		{
			Name:        "report",
			Description: "Generate the guild activity report",
		},
		{
			Name:        "rpg",
			Description: "Show RPG stats derived from guild activity",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Member to inspect (defaults to you)",
					Required:    false,
				},
			},
		},
		{
			Name:        "poll",
			Description: "Run a community poll",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "create",
					Description: "Create a poll",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "question", Description: "Poll question", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "options", Description: "Choices separated by |", Required: true},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "vote",
					Description: "Vote in a poll",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "id", Description: "Poll id", Required: true},
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "choice", Description: "Choice number, starting at 1", Required: true},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "results",
					Description: "Show poll results",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "id", Description: "Poll id", Required: true},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "close",
					Description: "Close a poll",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "id", Description: "Poll id", Required: true},
					},
				},
			},
		},
		{
			Name:        "birthday",
			Description: "Manage birthdays",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "set",
					Description: "Save your birthday",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "month", Description: "Month (1-12)", Required: true},
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "day", Description: "Day (1-31)", Required: true},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "remove",
					Description: "Remove your birthday",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List saved birthdays",
				},
			},
		},
		{
			Name:                     "warn",
			Description:              "Warn a member",
			DefaultMemberPermissions: &moderateMembers,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to warn", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Why", Required: true},
			},
		},
		{
			Name:                     "timeout",
			Description:              "Time a member out",
			DefaultMemberPermissions: &moderateMembers,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to time out", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "minutes", Description: "Duration in minutes", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Why", Required: false},
			},
		},
		{
			Name:                     "modlog",
			Description:              "Show a member's moderation history",
			DefaultMemberPermissions: &moderateMembers,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to inspect", Required: true},
			},
		},
		{
			Name:                     "settings",
			Description:              "Configure the bot for this server",
			DefaultMemberPermissions: &manageGuild,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "timezone", Description: "IANA timezone for reports", Required: false},
				{Type: discordgo.ApplicationCommandOptionChannel, Name: "report_channel", Description: "Channel for scheduled reports", Required: false},
				{Type: discordgo.ApplicationCommandOptionChannel, Name: "birthday_channel", Description: "Channel for birthday announcements", Required: false},
				{Type: discordgo.ApplicationCommandOptionChannel, Name: "welcome_channel", Description: "Channel for welcome messages", Required: false},
				{Type: discordgo.ApplicationCommandOptionString, Name: "welcome_message", Description: "Welcome template, {user} is replaced", Required: false},
			},
		},
	}

	for _, cmd := range commands {
		if _, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, "", cmd); err != nil {
			return fmt.Errorf("register command %s: %w", cmd.Name, err)
		}
	}
	return nil
}

func (b *Bot) handleCommand(interaction *discordgo.InteractionCreate) {
	ctx := context.Background()
	data := interaction.ApplicationCommandData()

	switch data.Name {
	case "report":
		b.handleReport(ctx, interaction)
	case "rpg":
		b.handleRPG(ctx, interaction, data)
	case "poll":
		b.handlePoll(ctx, interaction, data)
	case "birthday":
		b.handleBirthday(ctx, interaction, data)
	case "warn":
		b.handleWarn(ctx, interaction, data)
	case "timeout":
		b.handleTimeout(ctx, interaction, data)
	case "modlog":
		b.handleModlog(ctx, interaction, data)
	case "settings":
		b.handleSettings(ctx, interaction, data)
	default:
		b.respond(interaction, "Unknown command.", true)
	}
}

func (b *Bot) handleReport(ctx context.Context, interaction *discordgo.InteractionCreate) {
	guildID := archiver.Snowflake(interaction.GuildID)
	b.deferResponse(interaction)

	// A large archive can take a while; flush pending rows first so the
	// report sees everything up to this moment.
	b.archiver.Flush(ctx)
	rep, err := b.Generate(ctx, guildID)
	if err != nil {
		b.logger.Error("report generation failed", zap.Int64("guild_id", guildID), zap.Error(err))
		b.followUp(interaction, "Report generation failed.")
		return
	}

	payload, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		b.followUp(interaction, "Report serialization failed.")
		return
	}
	files := []*discordgo.File{{
		Name:        "activity_report.json",
		ContentType: "application/json",
		Reader:      bytes.NewReader(payload),
	}}
	b.followUpEmbed(interaction, buildReportEmbed(rep), files)
}

func (b *Bot) handleRPG(ctx context.Context, interaction *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	guildID := archiver.Snowflake(interaction.GuildID)
	targetID := interactionUserID(interaction)
	for _, opt := range data.Options {
		if opt.Name == "user" {
			targetID = archiver.Snowflake(opt.Value.(string))
		}
	}

	b.deferResponse(interaction)
	b.archiver.Flush(ctx)
	rep, err := b.Generate(ctx, guildID)
	if err != nil {
		b.logger.Error("report generation failed", zap.Int64("guild_id", guildID), zap.Error(err))
		b.followUp(interaction, "Stat computation failed.")
		return
	}

	stats, ok := report.ComputeRPGStats(rep)[targetID]
	if !ok {
		b.followUp(interaction, fmt.Sprintf("<@%d> has no recorded activity yet.", targetID))
		return
	}
	b.followUpEmbed(interaction, buildRPGEmbed(targetID, stats), nil)
}

func (b *Bot) handlePoll(ctx context.Context, interaction *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if len(data.Options) == 0 {
		b.respond(interaction, "Missing poll subcommand.", true)
		return
	}
	sub := data.Options[0]
	args := optionMap(sub.Options)

	switch sub.Name {
	case "create":
		question := args["question"].StringValue()
		raw := strings.Split(args["options"].StringValue(), "|")
		options := make([]string, 0, len(raw))
		for _, o := range raw {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				options = append(options, trimmed)
			}
		}
		if len(options) < 2 || len(options) > 10 {
			b.respond(interaction, "A poll needs between 2 and 10 options, separated by |.", true)
			return
		}
		poll := storage.Poll{
			ID:        uuid.NewString(),
			GuildID:   archiver.Snowflake(interaction.GuildID),
			ChannelID: archiver.Snowflake(interaction.ChannelID),
			Question:  question,
			Options:   options,
			CreatedAt: time.Now(),
		}
		if err := b.store.CreatePoll(ctx, poll); err != nil {
			b.logger.Error("poll creation failed", zap.Error(err))
			b.respond(interaction, "Poll creation failed.", true)
			return
		}
		b.respondEmbed(interaction, buildPollEmbed(poll), nil)

	case "vote":
		pollID := args["id"].StringValue()
		choice := int(args["choice"].IntValue())
		poll, err := b.store.GetPoll(ctx, pollID)
		if err != nil {
			b.respond(interaction, "Poll not found.", true)
			return
		}
		if choice < 1 || choice > len(poll.Options) {
			b.respond(interaction, fmt.Sprintf("Pick a choice between 1 and %d.", len(poll.Options)), true)
			return
		}
		err = b.store.VotePoll(ctx, pollID, interactionUserID(interaction), choice-1)
		if err == storage.ErrPollClosed {
			b.respond(interaction, "That poll is closed.", true)
			return
		}
		if err != nil {
			b.respond(interaction, "Vote failed.", true)
			return
		}
		b.respond(interaction, fmt.Sprintf("Vote recorded for **%s**.", poll.Options[choice-1]), true)

	case "results":
		pollID := args["id"].StringValue()
		poll, err := b.store.GetPoll(ctx, pollID)
		if err != nil {
			b.respond(interaction, "Poll not found.", true)
			return
		}
		results, err := b.store.PollResults(ctx, pollID)
		if err != nil {
			b.respond(interaction, "Could not load results.", true)
			return
		}
		b.respondEmbed(interaction, buildPollResultsEmbed(poll, results), nil)

	case "close":
		pollID := args["id"].StringValue()
		if _, err := b.store.GetPoll(ctx, pollID); err != nil {
			b.respond(interaction, "Poll not found.", true)
			return
		}
		if err := b.store.ClosePoll(ctx, pollID); err != nil {
			b.respond(interaction, "Closing the poll failed.", true)
			return
		}
		b.respond(interaction, "Poll closed.", false)

	default:
		b.respond(interaction, "Unknown poll subcommand.", true)
	}
}

func (b *Bot) handleBirthday(ctx context.Context, interaction *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if len(data.Options) == 0 {
		b.respond(interaction, "Missing birthday subcommand.", true)
		return
	}
	guildID := archiver.Snowflake(interaction.GuildID)
	userID := interactionUserID(interaction)
	sub := data.Options[0]
	args := optionMap(sub.Options)

	switch sub.Name {
	case "set":
		month := int(args["month"].IntValue())
		day := int(args["day"].IntValue())
		err := b.store.SetBirthday(ctx, storage.Birthday{GuildID: guildID, UserID: userID, Month: month, Day: day})
		if err != nil {
			b.respond(interaction, "That does not look like a valid date.", true)
			return
		}
		b.respond(interaction, fmt.Sprintf("Birthday saved: %02d-%02d.", month, day), true)

	case "remove":
		if err := b.store.RemoveBirthday(ctx, guildID, userID); err != nil {
			b.respond(interaction, "Removing your birthday failed.", true)
			return
		}
		b.respond(interaction, "Birthday removed.", true)

	case "list":
		birthdays, err := b.store.ListBirthdays(ctx, guildID)
		if err != nil {
			b.respond(interaction, "Could not load birthdays.", true)
			return
		}
		if len(birthdays) == 0 {
			b.respond(interaction, "No birthdays saved yet.", true)
			return
		}
		lines := make([]string, 0, len(birthdays))
		for _, bd := range birthdays {
			lines = append(lines, fmt.Sprintf("%02d-%02d <@%d>", bd.Month, bd.Day, bd.UserID))
		}
		b.respond(interaction, strings.Join(lines, "\n"), true)

	default:
		b.respond(interaction, "Unknown birthday subcommand.", true)
	}
}

func (b *Bot) handleWarn(ctx context.Context, interaction *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	args := optionMap(data.Options)
	guildID := archiver.Snowflake(interaction.GuildID)
	targetID := archiver.Snowflake(args["user"].Value.(string))
	reason := args["reason"].StringValue()

	count, escalated, err := b.moderation.Warn(ctx, guildID, targetID, interactionUserID(interaction), reason)
	if err != nil {
		b.logger.Error("warn failed", zap.Error(err))
		b.respond(interaction, "Recording the warning failed.", true)
		return
	}
	msg := fmt.Sprintf("<@%d> warned (%d recent): %s", targetID, count, reason)
	if escalated {
		msg += "\nEscalated to an automatic timeout."
	}
	b.respond(interaction, msg, false)
}

func (b *Bot) handleTimeout(ctx context.Context, interaction *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	args := optionMap(data.Options)
	guildID := archiver.Snowflake(interaction.GuildID)
	targetID := archiver.Snowflake(args["user"].Value.(string))
	minutes := int(args["minutes"].IntValue())
	reason := ""
	if opt, ok := args["reason"]; ok {
		reason = opt.StringValue()
	}

	if err := b.moderation.Timeout(ctx, guildID, targetID, interactionUserID(interaction), reason, minutes); err != nil {
		b.logger.Error("timeout failed", zap.Error(err))
		b.respond(interaction, "Timeout failed.", true)
		return
	}
	b.respond(interaction, fmt.Sprintf("<@%d> timed out for %d minutes.", targetID, minutes), false)
}

func (b *Bot) handleModlog(ctx context.Context, interaction *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	args := optionMap(data.Options)
	guildID := archiver.Snowflake(interaction.GuildID)
	targetID := archiver.Snowflake(args["user"].Value.(string))

	history, err := b.moderation.History(ctx, guildID, targetID, 15)
	if err != nil {
		b.respond(interaction, "Could not load the history.", true)
		return
	}
	b.respond(interaction, history, true)
}

func (b *Bot) handleSettings(ctx context.Context, interaction *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	guildID := archiver.Snowflake(interaction.GuildID)
	settings := b.guildSettings(ctx, guildID)

	changed := false
	for _, opt := range data.Options {
		switch opt.Name {
		case "timezone":
			tz := opt.StringValue()
			if _, err := time.LoadLocation(tz); err != nil {
				b.respond(interaction, fmt.Sprintf("Unknown timezone %q.", tz), true)
				return
			}
			settings.Timezone = tz
			changed = true
		case "report_channel":
			settings.ReportChannel = archiver.Snowflake(opt.Value.(string))
			changed = true
		case "birthday_channel":
			settings.BirthdayChannel = archiver.Snowflake(opt.Value.(string))
			changed = true
		case "welcome_channel":
			settings.WelcomeChannel = archiver.Snowflake(opt.Value.(string))
			changed = true
		case "welcome_message":
			settings.WelcomeMessage = opt.StringValue()
			changed = true
		}
	}

	if !changed {
		b.respond(interaction, fmt.Sprintf(
			"Timezone: %s\nReport channel: <#%d>\nBirthday channel: <#%d>\nWelcome channel: <#%d>",
			settings.Timezone, settings.ReportChannel, settings.BirthdayChannel, settings.WelcomeChannel), true)
		return
	}
	if err := b.store.UpsertGuildSettings(ctx, settings); err != nil {
		b.respond(interaction, "Saving settings failed.", true)
		return
	}
	b.respond(interaction, "Settings saved.", true)
}

func (b *Bot) postReport(channelID int64, rep *report.Report) {
	payload, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return
	}
	_, err = b.session.ChannelMessageSendComplex(strconv.FormatInt(channelID, 10), &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{buildReportEmbed(rep)},
		Files: []*discordgo.File{{
			Name:        "activity_report.json",
			ContentType: "application/json",
			Reader:      bytes.NewReader(payload),
		}},
	})
	if err != nil {
		b.logger.Warn("scheduled report post failed", zap.Int64("channel_id", channelID), zap.Error(err))
	}
}

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		if opt != nil {
			m[opt.Name] = opt
		}
	}
	return m
}

func buildReportEmbed(rep *report.Report) *discordgo.MessageEmbed {
	totalMessages := 0
	for _, metrics := range rep.UserMetrics {
		totalMessages += int(metrics["messages"])
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Messages", Value: fmt.Sprintf("%d", totalMessages), Inline: true},
		{Name: "Members tracked", Value: fmt.Sprintf("%d", len(rep.UserMetrics)), Inline: true},
		{Name: "Engagement index", Value: fmt.Sprintf("%.3f", rep.Health.EngagementIndex), Inline: true},
		{Name: "Gini", Value: fmt.Sprintf("%.3f", rep.Inequality.Gini), Inline: true},
		{Name: "Median latency", Value: fmt.Sprintf("%.0fs", rep.Latency.OverallMedianSeconds), Inline: true},
		{Name: "Reply density", Value: fmt.Sprintf("%.3f", rep.Thread.ReplyDensity), Inline: true},
	}
	if lines := leaderboardLines(rep.TopReactionsReceived, 5); lines != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Most reacted-to", Value: lines, Inline: false,
		})
	}

	return &discordgo.MessageEmbed{
		Title:       "Guild activity report",
		Description: "Full data attached as JSON.",
		Color:       embedColor,
		Timestamp:   rep.GeneratedAt,
		Fields:      fields,
		Footer:      &discordgo.MessageEmbedFooter{Text: "timezone " + rep.Timezone},
	}
}

func leaderboardLines(entries []report.LeaderboardEntry, limit int) string {
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Count <= 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("<@%d>: %d", e.UserID, e.Count))
	}
	return strings.Join(lines, "\n")
}

func buildRPGEmbed(userID int64, stats report.StatBlock) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Adventurer sheet",
		Description: fmt.Sprintf("<@%d>", userID),
		Color:       embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "STR", Value: fmt.Sprintf("%d", stats.Str), Inline: true},
			{Name: "INT", Value: fmt.Sprintf("%d", stats.Int), Inline: true},
			{Name: "DEX", Value: fmt.Sprintf("%d", stats.Dex), Inline: true},
			{Name: "WIS", Value: fmt.Sprintf("%d", stats.Wis), Inline: true},
			{Name: "CHA", Value: fmt.Sprintf("%d", stats.Cha), Inline: true},
			{Name: "VIT", Value: fmt.Sprintf("%d", stats.Vit), Inline: true},
		},
	}
}

func buildPollEmbed(poll storage.Poll) *discordgo.MessageEmbed {
	lines := make([]string, 0, len(poll.Options))
	for i, option := range poll.Options {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, option))
	}
	return &discordgo.MessageEmbed{
		Title:       poll.Question,
		Description: strings.Join(lines, "\n"),
		Color:       embedColor,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Vote with /poll vote id:" + poll.ID},
	}
}

func buildPollResultsEmbed(poll storage.Poll, results []storage.PollResult) *discordgo.MessageEmbed {
	total := 0
	for _, r := range results {
		total += r.Votes
	}
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("%d. %s: %d", r.OptionIndex+1, r.Label, r.Votes))
	}
	return &discordgo.MessageEmbed{
		Title:       poll.Question,
		Description: strings.Join(lines, "\n"),
		Color:       embedColor,
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%d votes, status %s", total, poll.Status)},
	}
}
