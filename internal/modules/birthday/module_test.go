package birthday

import (
	"context"
	"testing"
	"time"

	"nimbus-community/internal/storage"

	"go.uber.org/zap"
)

type sentMessage struct {
	channelID int64
	content   string
}

func newTestModule(t *testing.T, hour int) (*Module, *storage.Store, *[]sentMessage) {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var sent []sentMessage
	sender := func(channelID int64, content string) error {
		sent = append(sent, sentMessage{channelID: channelID, content: content})
		return nil
	}
	module := New(store, zap.NewNop(), sender, hour, "UTC")
	return module, store, &sent
}

func TestTickAnnouncesOncePerDay(t *testing.T) {
	module, store, sent := newTestModule(t, 9)
	ctx := context.Background()

	if err := store.UpsertGuildSettings(ctx, storage.GuildSettings{
		GuildID: 42, Timezone: "UTC", BirthdayChannel: 900,
	}); err != nil {
		t.Fatalf("settings: %v", err)
	}
	for _, b := range []storage.Birthday{
		{GuildID: 42, UserID: 7, Month: 3, Day: 14},
		{GuildID: 42, UserID: 8, Month: 3, Day: 14},
		{GuildID: 99, UserID: 9, Month: 3, Day: 14},
	} {
		if err := store.SetBirthday(ctx, b); err != nil {
			t.Fatalf("set birthday: %v", err)
		}
	}

	module.now = func() time.Time { return time.Date(2024, 3, 14, 8, 0, 0, 0, time.UTC) }
	module.Tick(ctx, 42)
	if len(*sent) != 0 {
		t.Fatalf("announced before the configured hour: %+v", *sent)
	}

	module.now = func() time.Time { return time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC) }
	module.Tick(ctx, 42)
	module.Tick(ctx, 42)
	if len(*sent) != 1 {
		t.Fatalf("expected exactly one announcement, got %d", len(*sent))
	}
	got := (*sent)[0]
	if got.channelID != 900 {
		t.Fatalf("channel: got %d want 900", got.channelID)
	}
	if got.content != "🎂 Happy birthday <@7>, <@8>!" {
		t.Fatalf("content: %q", got.content)
	}
}

func TestTickSkipsGuildsWithoutChannelOrBirthdays(t *testing.T) {
	module, store, sent := newTestModule(t, 0)
	ctx := context.Background()
	module.now = func() time.Time { return time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC) }

	// No birthday channel configured.
	module.Tick(ctx, 42)
	if len(*sent) != 0 {
		t.Fatalf("announced without a channel: %+v", *sent)
	}

	// Channel set but nobody's birthday today.
	if err := store.UpsertGuildSettings(ctx, storage.GuildSettings{
		GuildID: 42, Timezone: "UTC", BirthdayChannel: 900,
	}); err != nil {
		t.Fatalf("settings: %v", err)
	}
	if err := store.SetBirthday(ctx, storage.Birthday{GuildID: 42, UserID: 7, Month: 12, Day: 25}); err != nil {
		t.Fatalf("set birthday: %v", err)
	}
	module.Tick(ctx, 42)
	if len(*sent) != 0 {
		t.Fatalf("announced with no birthdays today: %+v", *sent)
	}
}

func TestTickUsesGuildTimezone(t *testing.T) {
	module, store, sent := newTestModule(t, 9)
	ctx := context.Background()

	if err := store.UpsertGuildSettings(ctx, storage.GuildSettings{
		GuildID: 42, Timezone: "America/Los_Angeles", BirthdayChannel: 900,
	}); err != nil {
		t.Fatalf("settings: %v", err)
	}
	if err := store.SetBirthday(ctx, storage.Birthday{GuildID: 42, UserID: 7, Month: 3, Day: 13}); err != nil {
		t.Fatalf("set birthday: %v", err)
	}

	// 2024-03-14 02:00 UTC is still 2024-03-13 evening in Los Angeles.
	module.now = func() time.Time { return time.Date(2024, 3, 14, 2, 0, 0, 0, time.UTC) }
	module.Tick(ctx, 42)
	if len(*sent) != 1 {
		t.Fatalf("expected announcement for the guild-local date, got %d", len(*sent))
	}
}
