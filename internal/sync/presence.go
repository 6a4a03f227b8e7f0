package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/handlebauer/chat-genius-sub000/internal/backend"
	"github.com/handlebauer/chat-genius-sub000/internal/domain"
	"github.com/handlebauer/chat-genius-sub000/internal/state"
)

const presenceTopic = "online-users"

// PresenceTracker keeps the store's online-user list in step with the shared
// presence topic. Each heartbeat it tracks the session user's own record
// (online or away per the idle detector); each received snapshot replaces
// the local list wholesale, last snapshot wins. On transport loss the list
// simply goes stale until a fresh snapshot arrives: presence is eventually
// consistent, never a hard guarantee.
type PresenceTracker struct {
	rt       backend.Realtime
	store    *state.Store
	idle     *IdleDetector
	self     domain.User
	interval time.Duration
}

func NewPresenceTracker(rt backend.Realtime, store *state.Store, idle *IdleDetector, self domain.User, interval time.Duration) *PresenceTracker {
	return &PresenceTracker{
		rt:       rt,
		store:    store,
		idle:     idle,
		self:     self,
		interval: interval,
	}
}

func (pt *PresenceTracker) Run(ctx context.Context) error {
	ch, err := pt.rt.JoinPresence(ctx, presenceTopic)
	if err != nil {
		return err
	}
	defer ch.Close()

	// Joining is itself an announcement.
	if err := ch.Track(ctx, pt.selfRecord()); err != nil {
		slog.Error("Failed to track initial presence", "user_id", pt.self.ID, "error", err)
	}

	ticker := time.NewTicker(pt.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if err := ch.Track(ctx, pt.selfRecord()); err != nil {
				slog.Error("Failed to publish heartbeat", "user_id", pt.self.ID, "error", err)
			}

		case snapshot, ok := <-ch.Snapshots():
			if !ok {
				return nil
			}
			pt.store.Dispatch(func(s *state.ClientState) {
				s.Online = snapshot
			})
		}
	}
}

func (pt *PresenceTracker) selfRecord() domain.PresenceRecord {
	status := domain.StatusOnline
	if pt.idle != nil && pt.idle.IsIdle() {
		status = domain.StatusAway
	}

	return domain.PresenceRecord{
		UserID:   pt.self.ID,
		Name:     pt.self.Name,
		Email:    pt.self.Email,
		Status:   status,
		LastSeen: time.Now(),
	}
}
