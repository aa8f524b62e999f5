package moderation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nimbus-community/internal/storage"

	"go.uber.org/zap"
)

// Enforcer applies a Discord timeout. The bot wires this to the
// session so escalation stays testable.
type Enforcer func(guildID, userID int64, until time.Time) error

// Module records warnings and timeouts, escalating repeat warnings
// inside the forgiveness window into an automatic timeout.
type Module struct {
	store           *storage.Store
	logger          *zap.Logger
	timeout         Enforcer
	warnEscalation  int
	forgivenessDays int
	timeoutMinutes  int
	now             func() time.Time
}

func New(store *storage.Store, logger *zap.Logger, timeout Enforcer, warnEscalation, forgivenessDays, timeoutMinutes int) *Module {
	if warnEscalation <= 0 {
		warnEscalation = 3
	}
	if forgivenessDays <= 0 {
		forgivenessDays = 30
	}
	if timeoutMinutes <= 0 {
		timeoutMinutes = 10
	}
	return &Module{
		store:           store,
		logger:          logger,
		timeout:         timeout,
		warnEscalation:  warnEscalation,
		forgivenessDays: forgivenessDays,
		timeoutMinutes:  timeoutMinutes,
		now:             time.Now,
	}
}

// Warn records the warning and returns the user's recent warning count
// and whether the escalation threshold was crossed.
func (m *Module) Warn(ctx context.Context, guildID, userID, moderatorID int64, reason string) (int, bool, error) {
	now := m.now()
	if _, err := m.store.AddModAction(ctx, storage.ModAction{
		GuildID:     guildID,
		UserID:      userID,
		ModeratorID: moderatorID,
		Action:      "warn",
		Reason:      reason,
		CreatedAt:   now,
	}); err != nil {
		return 0, false, err
	}
	m.audit(ctx, guildID, userID, "mod_warn", reason)

	cutoff := now.AddDate(0, 0, -m.forgivenessDays)
	count, err := m.store.CountWarnings(ctx, guildID, userID, cutoff)
	if err != nil {
		return 0, false, err
	}
	if count < m.warnEscalation {
		return count, false, nil
	}

	escalationReason := fmt.Sprintf("%d warnings within %d days", count, m.forgivenessDays)
	if err := m.Timeout(ctx, guildID, userID, moderatorID, escalationReason, m.timeoutMinutes); err != nil {
		m.logger.Warn("warning escalation failed",
			zap.Int64("guild_id", guildID), zap.Int64("user_id", userID), zap.Error(err))
		return count, false, nil
	}
	return count, true, nil
}

func (m *Module) Timeout(ctx context.Context, guildID, userID, moderatorID int64, reason string, minutes int) error {
	if minutes <= 0 {
		minutes = m.timeoutMinutes
	}
	now := m.now()
	until := now.Add(time.Duration(minutes) * time.Minute)
	if m.timeout != nil {
		if err := m.timeout(guildID, userID, until); err != nil {
			return err
		}
	}
	if _, err := m.store.AddModAction(ctx, storage.ModAction{
		GuildID:     guildID,
		UserID:      userID,
		ModeratorID: moderatorID,
		Action:      "timeout",
		Reason:      reason,
		CreatedAt:   now,
		ExpiresAt:   &until,
	}); err != nil {
		return err
	}
	m.audit(ctx, guildID, userID, "mod_timeout", fmt.Sprintf("minutes=%d reason=%s", minutes, reason))
	return nil
}

// History renders a user's recent record for the /modlog reply.
func (m *Module) History(ctx context.Context, guildID, userID int64, limit int) (string, error) {
	actions, err := m.store.ListModActions(ctx, guildID, userID, limit)
	if err != nil {
		return "", err
	}
	if len(actions) == 0 {
		return "No moderation history.", nil
	}
	lines := make([]string, 0, len(actions))
	for _, a := range actions {
		line := fmt.Sprintf("%s %s by <@%d>", a.CreatedAt.UTC().Format("2006-01-02"), a.Action, a.ModeratorID)
		if a.Reason != "" {
			line += ": " + a.Reason
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

func (m *Module) audit(ctx context.Context, guildID, userID int64, event, details string) {
	if err := m.store.AddAuditLog(ctx, storage.AuditLog{
		GuildID:   guildID,
		UserID:    userID,
		Level:     "warn",
		Event:     event,
		Details:   details,
		CreatedAt: m.now(),
	}); err != nil {
		m.logger.Warn("audit log write failed", zap.Error(err))
	}
}
