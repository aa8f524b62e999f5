package activity

import (
	"context"
	"sync"
	"time"

	"nimbus-community/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Module tracks voice presence so time spent in voice channels and on
// stream lands in the member counters as whole minutes. Partial minutes
// carry over inside the open session and are rounded on leave.
type Module struct {
	mu       sync.Mutex
	sessions map[sessionKey]*voiceSession
	recent   map[sessionKey]map[string]struct{}
	store    *storage.Store
	logger   *zap.Logger
	now      func() time.Time
}

type sessionKey struct {
	guildID int64
	userID  int64
}

type voiceSession struct {
	joinedAt    time.Time
	streamSince time.Time
	streaming   bool
}

func New(store *storage.Store, logger *zap.Logger) *Module {
	return &Module{
		sessions: make(map[sessionKey]*voiceSession),
		recent:   make(map[sessionKey]map[string]struct{}),
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleVoiceState follows a member through join, stream toggles, and
// leave. Channel moves keep the running session.
func (m *Module) HandleVoiceState(ctx context.Context, guildID, userID int64, channelID string, selfStream bool) {
	key := sessionKey{guildID: guildID, userID: userID}
	now := m.now()

	m.mu.Lock()
	session := m.sessions[key]

	if channelID == "" {
		delete(m.sessions, key)
		m.mu.Unlock()
		if session != nil {
			m.settle(ctx, key, session, now)
		}
		return
	}

	if session == nil {
		session = &voiceSession{joinedAt: now}
		m.sessions[key] = session
	}
	if selfStream && !session.streaming {
		session.streaming = true
		session.streamSince = now
	}
	var streamed time.Duration
	if !selfStream && session.streaming {
		session.streaming = false
		streamed = now.Sub(session.streamSince)
	}
	m.mu.Unlock()

	if minutes := wholeMinutes(streamed); minutes > 0 {
		m.bump(ctx, key, storage.MetricStreamMinutes, minutes)
	}
}

// HandlePresence counts embedded activity launches. Only activities
// that were absent from the previous presence are counted, so a long
// gaming session is one launch.
func (m *Module) HandlePresence(ctx context.Context, guildID, userID int64, activities []*discordgo.Activity) {
	key := sessionKey{guildID: guildID, userID: userID}

	current := make(map[string]struct{}, len(activities))
	for _, act := range activities {
		if act == nil || act.Name == "" {
			continue
		}
		if act.Type != discordgo.ActivityTypeGame && act.Type != discordgo.ActivityTypeCompeting {
			continue
		}
		current[act.Name] = struct{}{}
	}

	m.mu.Lock()
	previous := m.recent[key]
	m.recent[key] = current
	m.mu.Unlock()

	launches := 0
	for name := range current {
		if _, seen := previous[name]; !seen {
			launches++
		}
	}
	if launches == 0 {
		return
	}
	day := m.now().UTC().Format("2006-01-02")
	if err := m.store.BumpActivityLaunches(ctx, guildID, userID, day, launches); err != nil {
		m.logger.Warn("activity launch counter update failed", zap.Error(err))
	}
}

func (m *Module) settle(ctx context.Context, key sessionKey, session *voiceSession, now time.Time) {
	if minutes := wholeMinutes(now.Sub(session.joinedAt)); minutes > 0 {
		m.bump(ctx, key, storage.MetricVoiceMinutes, minutes)
	}
	if session.streaming {
		if minutes := wholeMinutes(now.Sub(session.streamSince)); minutes > 0 {
			m.bump(ctx, key, storage.MetricStreamMinutes, minutes)
		}
	}
}

func (m *Module) bump(ctx context.Context, key sessionKey, metric string, minutes int) {
	if err := m.store.BumpMemberMetric(ctx, key.guildID, key.userID, metric, minutes); err != nil {
		m.logger.Warn("voice counter update failed", zap.String("metric", metric), zap.Error(err))
	}
}

func wholeMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + 30*time.Second) / time.Minute)
}
