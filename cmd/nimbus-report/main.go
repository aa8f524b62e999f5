package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"nimbus-community/internal/report"
	"nimbus-community/internal/storage"

	"github.com/schollz/progressbar/v3"
)

// nimbus-report runs the analytics engine offline against an archive
// database and writes the report as JSON, without touching Discord.
func main() {
	dbPath := flag.String("db", "/data/nimbus.db", "path to the archive database")
	guildID := flag.Int64("guild", 0, "guild id to analyze")
	timezone := flag.String("timezone", "", "IANA timezone for the heatmap (defaults to the guild setting)")
	members := flag.Int("members", 0, "member count used for the participation rate")
	out := flag.String("out", "", "output file (defaults to stdout)")
	flag.Parse()

	if *guildID <= 0 {
		fmt.Fprintln(os.Stderr, "usage: nimbus-report -db <path> -guild <id> [-timezone <tz>] [-members <n>] [-out <file>]")
		os.Exit(2)
	}

	if err := run(*dbPath, *guildID, *timezone, *members, *out); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(dbPath string, guildID int64, timezone string, members int, out string) error {
	store, err := storage.New(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		return err
	}

	ctx := context.Background()
	if timezone == "" {
		settings, err := store.GetGuildSettings(ctx, guildID, storage.GuildSettings{Timezone: report.DefaultTimezone})
		if err != nil {
			return err
		}
		timezone = settings.Timezone
	}

	total, err := store.CountGuildMessages(ctx, guildID)
	if err != nil {
		return err
	}
	bar := progressbar.NewOptions64(total,
		progressbar.OptionSetDescription("scanning archive"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	source := &progressSource{inner: store.Archive(), bar: bar}
	generator := report.New(source, store)
	rep, err := generator.Generate(ctx, guildID, report.Options{
		Timezone:    timezone,
		MemberCount: members,
	})
	if err != nil {
		return err
	}
	_ = bar.Finish()

	payload, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	payload = append(payload, '\n')

	if out == "" {
		_, err = os.Stdout.Write(payload)
		return err
	}
	return os.WriteFile(out, payload, 0o644)
}

// progressSource advances the bar as the archive streams by.
type progressSource struct {
	inner report.MessageSource
	bar   *progressbar.ProgressBar
}

func (p *progressSource) ForEachGuildMessage(ctx context.Context, guildID int64, fn func(report.Message) error) error {
	return p.inner.ForEachGuildMessage(ctx, guildID, func(msg report.Message) error {
		_ = p.bar.Add(1)
		return fn(msg)
	})
}
