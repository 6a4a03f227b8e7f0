package sync

import (
	"context"
	"log/slog"

	"github.com/handlebauer/chat-genius-sub000/internal/backend"
	"github.com/handlebauer/chat-genius-sub000/internal/domain"
	"github.com/handlebauer/chat-genius-sub000/internal/state"
)

// Reconcile merges the locally-held channel list with a freshly fetched one.
// Entries are keyed by (id, channel_type); the fetched entry wins on key
// collision, entries present only locally survive, and the result never
// holds two entries with the same key. The rule is idempotent, so handlers
// can apply it on every event regardless of arrival order.
func Reconcile(current, fetched []domain.Channel) []domain.Channel {
	fetchedByKey := make(map[domain.ChannelKey]domain.Channel, len(fetched))
	for _, ch := range fetched {
		fetchedByKey[ch.Key()] = ch
	}

	merged := make([]domain.Channel, 0, len(current)+len(fetched))
	seen := make(map[domain.ChannelKey]struct{}, len(current)+len(fetched))

	for _, ch := range current {
		key := ch.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if f, ok := fetchedByKey[key]; ok {
			merged = append(merged, f)
			continue
		}
		merged = append(merged, ch)
	}

	for _, ch := range fetched {
		key := ch.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, ch)
	}

	return merged
}

// ChannelSyncer keeps the channel/DM lists and the session user's role map
// eventually consistent with server state. Channel and membership events
// arrive on independently-ordered subscriptions and their payloads cannot
// disambiguate channel type or full metadata, so both kinds of event get
// the same treatment: refetch current truth, then merge.
type ChannelSyncer struct {
	store    *state.Store
	channels backend.ChannelStore
	messages backend.MessageStore
	rt       backend.Realtime
	self     domain.User
}

func NewChannelSyncer(store *state.Store, channels backend.ChannelStore, messages backend.MessageStore, rt backend.Realtime, self domain.User) *ChannelSyncer {
	return &ChannelSyncer{
		store:    store,
		channels: channels,
		messages: messages,
		rt:       rt,
		self:     self,
	}
}

func (cs *ChannelSyncer) Run(ctx context.Context) error {
	chanSub, err := subscribeRows(ctx, cs.rt, backend.TableChannels, "")
	if err != nil {
		return err
	}
	defer chanSub.Close()

	memberSub, err := subscribeRows(ctx, cs.rt, backend.TableChannelMembers, "")
	if err != nil {
		return err
	}
	defer memberSub.Close()

	cs.Refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-chanSub.Events():
			if !ok {
				return nil
			}
			cs.Refresh(ctx)
		case _, ok := <-memberSub.Events():
			if !ok {
				return nil
			}
			cs.Refresh(ctx)
		}
	}
}

// Refresh refetches lists and memberships and merges them in. Individual
// fetch failures are logged and skipped; whatever did arrive is applied.
func (cs *ChannelSyncer) Refresh(ctx context.Context) {
	fetchedChannels, chanErr := cs.channels.ChannelsForUser(ctx, cs.self.ID)
	if chanErr != nil {
		slog.Error("Failed to fetch channels", "user_id", cs.self.ID, "error", chanErr)
	}

	fetchedDMs, dmErr := cs.channels.DirectMessagesForUser(ctx, cs.self.ID)
	if dmErr != nil {
		slog.Error("Failed to fetch direct messages", "user_id", cs.self.ID, "error", dmErr)
	}

	memberships, memberErr := cs.channels.MembershipsForUser(ctx, cs.self.ID)
	if memberErr != nil {
		slog.Error("Failed to fetch memberships", "user_id", cs.self.ID, "error", memberErr)
	}

	cs.store.Dispatch(func(s *state.ClientState) {
		if chanErr == nil {
			s.Channels = Reconcile(s.Channels, fetchedChannels)
		}
		if dmErr == nil {
			s.DirectMessages = Reconcile(s.DirectMessages, fetchedDMs)
		}
		if memberErr == nil {
			// Full re-derivation, never an incremental patch: a gapped event
			// stream cannot corrupt a map rebuilt from current truth.
			roles := make(map[string]domain.Role, len(memberships))
			for _, m := range memberships {
				roles[m.ChannelID] = m.Role
			}
			s.Memberships = roles
		}
	})

	if dmErr == nil {
		cs.fillDMParticipants(ctx, fetchedDMs)
	}
}

// AddLocalChannel records an optimistic addition (a channel just created
// locally) ahead of its confirmation push.
func (cs *ChannelSyncer) AddLocalChannel(ch domain.Channel) {
	cs.store.Dispatch(func(s *state.ClientState) {
		list := &s.Channels
		if ch.ChannelType == domain.TypeDirectMessage {
			list = &s.DirectMessages
		}
		for _, existing := range *list {
			if existing.Key() == ch.Key() {
				return
			}
		}
		*list = append(*list, ch)
	})
}

// fillDMParticipants resolves the counterpart profile for DM channels not
// yet cached, from membership data first and message history as fallback.
// Cached entries live for the session; there is no incremental patching.
func (cs *ChannelSyncer) fillDMParticipants(ctx context.Context, dms []domain.Channel) {
	cached := cs.store.DMParticipants()

	for _, dm := range dms {
		if _, ok := cached[dm.ID]; ok {
			continue
		}

		other, err := cs.lookupCounterpart(ctx, dm.ID)
		if err != nil {
			slog.Error("Failed to resolve DM participant", "channel_id", dm.ID, "error", err)
			continue
		}

		channelID := dm.ID
		participant := other
		cs.store.Dispatch(func(s *state.ClientState) {
			s.DMParticipants[channelID] = participant
		})
	}
}

func (cs *ChannelSyncer) lookupCounterpart(ctx context.Context, channelID string) (domain.User, error) {
	members, err := cs.channels.ChannelMembers(ctx, channelID)
	if err == nil {
		for _, m := range members {
			if m.ID != cs.self.ID {
				return m, nil
			}
		}
	}

	history, histErr := cs.messages.MessageHistory(ctx, channelID)
	if histErr != nil {
		if err != nil {
			return domain.User{}, err
		}
		return domain.User{}, histErr
	}
	for _, msg := range history {
		if msg.SenderID != cs.self.ID && msg.Sender != nil {
			return *msg.Sender, nil
		}
	}

	return domain.User{}, domain.ErrNotFound.WithMessage("no counterpart found for DM channel")
}
