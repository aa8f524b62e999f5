package activity

import (
	"context"
	"testing"
	"time"

	"nimbus-community/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time {
	return c.current
}

func (c *fakeClock) advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func newTestModule(t *testing.T) (*Module, *storage.Store, *fakeClock) {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := &fakeClock{current: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	module := New(store, zap.NewNop())
	module.now = clock.now
	return module, store, clock
}

func TestVoiceSessionMinutes(t *testing.T) {
	module, store, clock := newTestModule(t)
	ctx := context.Background()

	module.HandleVoiceState(ctx, 42, 7, "500", false)
	clock.advance(25 * time.Minute)
	// Moving channels keeps the session running.
	module.HandleVoiceState(ctx, 42, 7, "501", false)
	clock.advance(5 * time.Minute)
	module.HandleVoiceState(ctx, 42, 7, "", false)

	voice, err := store.MetricTotals(ctx, 42, storage.MetricVoiceMinutes)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if voice[7] != 30 {
		t.Fatalf("voice minutes: got %d want 30", voice[7])
	}
}

func TestStreamMinutes(t *testing.T) {
	module, store, clock := newTestModule(t)
	ctx := context.Background()

	module.HandleVoiceState(ctx, 42, 7, "500", false)
	clock.advance(10 * time.Minute)
	module.HandleVoiceState(ctx, 42, 7, "500", true)
	clock.advance(15 * time.Minute)
	// Stream stops but the member stays in voice.
	module.HandleVoiceState(ctx, 42, 7, "500", false)
	clock.advance(5 * time.Minute)
	module.HandleVoiceState(ctx, 42, 7, "", false)

	stream, err := store.MetricTotals(ctx, 42, storage.MetricStreamMinutes)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if stream[7] != 15 {
		t.Fatalf("stream minutes: got %d want 15", stream[7])
	}
	voice, err := store.MetricTotals(ctx, 42, storage.MetricVoiceMinutes)
	if err != nil || voice[7] != 30 {
		t.Fatalf("voice minutes: got %d want 30 (%v)", voice[7], err)
	}
}

func TestLeaveWhileStreamingSettlesBoth(t *testing.T) {
	module, store, clock := newTestModule(t)
	ctx := context.Background()

	module.HandleVoiceState(ctx, 42, 7, "500", true)
	clock.advance(8 * time.Minute)
	module.HandleVoiceState(ctx, 42, 7, "", false)

	voice, _ := store.MetricTotals(ctx, 42, storage.MetricVoiceMinutes)
	stream, _ := store.MetricTotals(ctx, 42, storage.MetricStreamMinutes)
	if voice[7] != 8 || stream[7] != 8 {
		t.Fatalf("got voice=%d stream=%d, want 8/8", voice[7], stream[7])
	}
}

func TestShortSessionRoundsToZero(t *testing.T) {
	module, store, clock := newTestModule(t)
	ctx := context.Background()

	module.HandleVoiceState(ctx, 42, 7, "500", false)
	clock.advance(20 * time.Second)
	module.HandleVoiceState(ctx, 42, 7, "", false)

	voice, err := store.MetricTotals(ctx, 42, storage.MetricVoiceMinutes)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if voice[7] != 0 {
		t.Fatalf("expected no minutes for a 20s visit, got %d", voice[7])
	}
}

func TestPresenceCountsNewLaunchesOnly(t *testing.T) {
	module, store, _ := newTestModule(t)
	ctx := context.Background()

	playing := []*discordgo.Activity{{Name: "Chess in the Park", Type: discordgo.ActivityTypeGame}}
	module.HandlePresence(ctx, 42, 7, playing)
	// Same presence again is not a new launch.
	module.HandlePresence(ctx, 42, 7, playing)
	// Custom statuses never count.
	module.HandlePresence(ctx, 42, 7, []*discordgo.Activity{
		{Name: "Chess in the Park", Type: discordgo.ActivityTypeGame},
		{Name: "vibing", Type: discordgo.ActivityTypeCustom},
	})

	joins, err := store.ActivityJoinTotals(ctx, 42)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if joins[7] != 1 {
		t.Fatalf("launches: got %d want 1", joins[7])
	}

	// Dropping the game and picking it back up is a second launch.
	module.HandlePresence(ctx, 42, 7, nil)
	module.HandlePresence(ctx, 42, 7, playing)
	joins, _ = store.ActivityJoinTotals(ctx, 42)
	if joins[7] != 2 {
		t.Fatalf("launches after relaunch: got %d want 2", joins[7])
	}
}
