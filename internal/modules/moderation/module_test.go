package moderation

import (
	"context"
	"strings"
	"testing"
	"time"

	"nimbus-community/internal/storage"

	"go.uber.org/zap"
)

type timeoutCall struct {
	guildID int64
	userID  int64
	until   time.Time
}

func newTestModule(t *testing.T) (*Module, *storage.Store, *[]timeoutCall) {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var calls []timeoutCall
	enforcer := func(guildID, userID int64, until time.Time) error {
		calls = append(calls, timeoutCall{guildID: guildID, userID: userID, until: until})
		return nil
	}
	module := New(store, zap.NewNop(), enforcer, 3, 30, 10)
	module.now = func() time.Time { return time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC) }
	return module, store, &calls
}

func TestWarnEscalatesAtThreshold(t *testing.T) {
	module, store, calls := newTestModule(t)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		count, escalated, err := module.Warn(ctx, 42, 7, 1, "spam")
		if err != nil {
			t.Fatalf("warn %d: %v", i, err)
		}
		if count != i || escalated {
			t.Fatalf("warn %d: count=%d escalated=%v", i, count, escalated)
		}
	}

	count, escalated, err := module.Warn(ctx, 42, 7, 1, "spam again")
	if err != nil {
		t.Fatalf("third warn: %v", err)
	}
	if count != 3 || !escalated {
		t.Fatalf("expected escalation on third warning, count=%d escalated=%v", count, escalated)
	}
	if len(*calls) != 1 {
		t.Fatalf("expected one timeout call, got %d", len(*calls))
	}
	call := (*calls)[0]
	if call.guildID != 42 || call.userID != 7 {
		t.Fatalf("timeout targeted %d/%d", call.guildID, call.userID)
	}
	if got := call.until.Sub(module.now()); got != 10*time.Minute {
		t.Fatalf("timeout duration: %v", got)
	}

	actions, err := store.ListModActions(ctx, 42, 7, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(actions) != 4 {
		t.Fatalf("expected 3 warns + 1 timeout, got %d actions", len(actions))
	}
}

func TestOldWarningsAreForgiven(t *testing.T) {
	module, store, calls := newTestModule(t)
	ctx := context.Background()

	old := module.now().AddDate(0, 0, -40)
	for i := 0; i < 2; i++ {
		if _, err := store.AddModAction(ctx, storage.ModAction{
			GuildID: 42, UserID: 7, ModeratorID: 1, Action: "warn", Reason: "ancient", CreatedAt: old,
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	count, escalated, err := module.Warn(ctx, 42, 7, 1, "fresh")
	if err != nil {
		t.Fatalf("warn: %v", err)
	}
	if count != 1 || escalated {
		t.Fatalf("expected forgiveness window to reset count, got count=%d escalated=%v", count, escalated)
	}
	if len(*calls) != 0 {
		t.Fatalf("unexpected timeout: %+v", *calls)
	}
}

func TestHistoryFormatting(t *testing.T) {
	module, _, _ := newTestModule(t)
	ctx := context.Background()

	got, err := module.History(ctx, 42, 7, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if got != "No moderation history." {
		t.Fatalf("empty history: %q", got)
	}

	if _, _, err := module.Warn(ctx, 42, 7, 1, "spam"); err != nil {
		t.Fatalf("warn: %v", err)
	}
	if err := module.Timeout(ctx, 42, 7, 1, "cooling off", 5); err != nil {
		t.Fatalf("timeout: %v", err)
	}

	got, err = module.History(ctx, 42, 7, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(got, "warn by <@1>: spam") {
		t.Fatalf("missing warn line: %q", got)
	}
	if !strings.Contains(got, "timeout by <@1>: cooling off") {
		t.Fatalf("missing timeout line: %q", got)
	}
}
