package sync

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/handlebauer/chat-genius-sub000/internal/backend"
	"github.com/handlebauer/chat-genius-sub000/internal/domain"
	"github.com/handlebauer/chat-genius-sub000/internal/state"
)

// UnreadSyncer mirrors the server-authoritative per-channel unread counters.
// The one asymmetry: a pushed value for the channel that is currently active
// is forced to 0, because "becoming active" and "server decrementing the
// counter" are independent async operations with no ordering between them
// and the server may not yet know the channel is active. Every other
// channel takes the pushed value as authoritative.
type UnreadSyncer struct {
	store  *state.Store
	unread backend.UnreadStore
	rt     backend.Realtime
	userID string
}

func NewUnreadSyncer(store *state.Store, unread backend.UnreadStore, rt backend.Realtime, userID string) *UnreadSyncer {
	return &UnreadSyncer{
		store:  store,
		unread: unread,
		rt:     rt,
		userID: userID,
	}
}

func (us *UnreadSyncer) Run(ctx context.Context) error {
	sub, err := subscribeRows(ctx, us.rt, backend.TableUnreadCounters, us.userID)
	if err != nil {
		return err
	}
	defer sub.Close()

	us.seed(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			us.handleEvent(ev)
		}
	}
}

// seed performs the one bulk fetch of all counters plus the server-marked
// active channel, applying the same active-channel-wins rule as pushes.
func (us *UnreadSyncer) seed(ctx context.Context) {
	counts, active, err := us.unread.UnreadState(ctx, us.userID)
	if err != nil {
		slog.Error("Failed to fetch unread state", "user_id", us.userID, "error", err)
		return
	}

	us.store.Dispatch(func(s *state.ClientState) {
		if s.ActiveChannelID == "" {
			s.ActiveChannelID = active
		}
		for channelID, n := range counts {
			if channelID == s.ActiveChannelID {
				s.Unread[channelID] = 0
				continue
			}
			s.Unread[channelID] = n
		}
	})
}

func (us *UnreadSyncer) handleEvent(ev backend.RowEvent) {
	var counter domain.UnreadCounter
	if err := json.Unmarshal(ev.Payload, &counter); err != nil {
		slog.Error("Failed to unmarshal unread counter event", "error", err)
		return
	}
	us.SetUnreadCount(counter.ChannelID, counter.Count)
}

// SetUnreadCount is the authoritative set used when a counter push arrives.
func (us *UnreadSyncer) SetUnreadCount(channelID string, n int) {
	us.store.Dispatch(func(s *state.ClientState) {
		if channelID == s.ActiveChannelID {
			s.Unread[channelID] = 0
			return
		}
		s.Unread[channelID] = n
	})
}

// ClearUnreadCount zeroes a channel locally, ahead of any server round trip.
func (us *UnreadSyncer) ClearUnreadCount(channelID string) {
	us.store.Dispatch(func(s *state.ClientState) {
		s.Unread[channelID] = 0
	})
}

// MarkChannelActive records the channel the user is now viewing: local state
// flips immediately, then the two server calls run without being awaited.
// Their failures are logged, not surfaced; local state already reflects the
// desired end state and is never rolled back.
func (us *UnreadSyncer) MarkChannelActive(ctx context.Context, channelID string) {
	us.store.Dispatch(func(s *state.ClientState) {
		s.ActiveChannelID = channelID
		s.Unread[channelID] = 0
	})

	go func() {
		if err := us.unread.SetActiveChannel(ctx, channelID, us.userID); err != nil {
			slog.Error("Failed to set active channel", "channel_id", channelID, "error", err)
		}
	}()
	go func() {
		if err := us.unread.ResetUnreadCount(ctx, channelID, us.userID); err != nil {
			slog.Error("Failed to reset unread count", "channel_id", channelID, "error", err)
		}
	}()
}
