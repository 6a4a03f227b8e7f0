package sync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/handlebauer/chat-genius-sub000/internal/backend"
	"github.com/handlebauer/chat-genius-sub000/internal/domain"
)

type fakeSubscription struct {
	mu     sync.Mutex
	closed bool
	events chan backend.RowEvent
}

func (s *fakeSubscription) Events() <-chan backend.RowEvent { return s.events }

func (s *fakeSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

func (s *fakeSubscription) send(ev backend.RowEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}

type fakePresenceChannel struct {
	mu        sync.Mutex
	tracked   []domain.PresenceRecord
	snapshots chan []domain.PresenceRecord
	once      sync.Once
}

func newFakePresenceChannel() *fakePresenceChannel {
	return &fakePresenceChannel{snapshots: make(chan []domain.PresenceRecord, 4)}
}

func (pc *fakePresenceChannel) Track(_ context.Context, rec domain.PresenceRecord) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.tracked = append(pc.tracked, rec)
	return nil
}

func (pc *fakePresenceChannel) Snapshots() <-chan []domain.PresenceRecord { return pc.snapshots }

func (pc *fakePresenceChannel) Close() error {
	pc.once.Do(func() { close(pc.snapshots) })
	return nil
}

func (pc *fakePresenceChannel) push(records []domain.PresenceRecord) {
	pc.snapshots <- records
}

func (pc *fakePresenceChannel) trackedRecords() []domain.PresenceRecord {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	out := make([]domain.PresenceRecord, len(pc.tracked))
	copy(out, pc.tracked)
	return out
}

type subKey struct {
	table string
	scope string
}

type fakeRealtime struct {
	mu       sync.Mutex
	subs     map[subKey][]*fakeSubscription
	presence *fakePresenceChannel
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{
		subs:     make(map[subKey][]*fakeSubscription),
		presence: newFakePresenceChannel(),
	}
}

func (f *fakeRealtime) SubscribeRows(_ context.Context, table, scope string) (backend.Subscription, error) {
	sub := &fakeSubscription{events: make(chan backend.RowEvent, 16)}

	f.mu.Lock()
	key := subKey{table: table, scope: scope}
	f.subs[key] = append(f.subs[key], sub)
	f.mu.Unlock()
	return sub, nil
}

func (f *fakeRealtime) PublishRow(_ context.Context, ev backend.RowEvent) error {
	f.mu.Lock()
	targets := append([]*fakeSubscription{}, f.subs[subKey{ev.Table, ev.Scope}]...)
	if ev.Scope != "" {
		targets = append(targets, f.subs[subKey{ev.Table, ""}]...)
	}
	f.mu.Unlock()

	for _, sub := range targets {
		sub.send(ev)
	}
	return nil
}

func (f *fakeRealtime) JoinPresence(context.Context, string) (backend.PresenceChannel, error) {
	return f.presence, nil
}

func (f *fakeRealtime) publishInsert(t *testing.T, table, scope string, payload any) {
	t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := f.PublishRow(context.Background(), backend.RowEvent{
		Type:    backend.EventInsert,
		Table:   table,
		Scope:   scope,
		Payload: data,
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

// flakyRealtime fails the first n SubscribeRows calls before handing off to
// the wrapped fake.
type flakyRealtime struct {
	*fakeRealtime
	flakyMu  sync.Mutex
	failures int
}

func (f *flakyRealtime) SubscribeRows(ctx context.Context, table, scope string) (backend.Subscription, error) {
	f.flakyMu.Lock()
	if f.failures > 0 {
		f.failures--
		f.flakyMu.Unlock()
		return nil, errors.New("subscribe: transport unavailable")
	}
	f.flakyMu.Unlock()
	return f.fakeRealtime.SubscribeRows(ctx, table, scope)
}

type fakeChannelStore struct {
	mu          sync.Mutex
	channels    []domain.Channel
	dms         []domain.Channel
	memberships []domain.ChannelMembership
	members     map[string][]domain.User
}

func newFakeChannelStore() *fakeChannelStore {
	return &fakeChannelStore{members: make(map[string][]domain.User)}
}

func (f *fakeChannelStore) ChannelByID(_ context.Context, channelID string) (domain.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.channels {
		if ch.ID == channelID {
			return ch, nil
		}
	}
	return domain.Channel{}, domain.ErrNotFound
}

func (f *fakeChannelStore) ChannelsForUser(context.Context, string) ([]domain.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Channel{}, f.channels...), nil
}

func (f *fakeChannelStore) DirectMessagesForUser(context.Context, string) ([]domain.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Channel{}, f.dms...), nil
}

func (f *fakeChannelStore) MembershipsForUser(context.Context, string) ([]domain.ChannelMembership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ChannelMembership{}, f.memberships...), nil
}

func (f *fakeChannelStore) ChannelMembers(_ context.Context, channelID string) ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.User{}, f.members[channelID]...), nil
}

func (f *fakeChannelStore) CreateChannel(_ context.Context, in *backend.NewChannel) (domain.Channel, error) {
	ch := domain.Channel{
		ID:           in.Name + "-id",
		Name:         in.Name,
		ChannelType:  in.ChannelType,
		IsPrivate:    in.IsPrivate,
		PasswordHash: in.PasswordHash,
		CreatedBy:    in.CreatedBy,
		CreatedAt:    time.Now(),
	}

	f.mu.Lock()
	f.channels = append(f.channels, ch)
	f.mu.Unlock()
	return ch, nil
}

func (f *fakeChannelStore) DeleteChannel(context.Context, string, string) error { return nil }

func (f *fakeChannelStore) GetOrCreateDM(_ context.Context, userA, userB string) (domain.Channel, error) {
	return domain.Channel{
		ID:          "dm-id",
		Name:        domain.DMChannelName(userA, userB),
		ChannelType: domain.TypeDirectMessage,
	}, nil
}

func (f *fakeChannelStore) JoinChannel(context.Context, string, string) error  { return nil }
func (f *fakeChannelStore) LeaveChannel(context.Context, string, string) error { return nil }

func (f *fakeChannelStore) setChannels(channels []domain.Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = channels
}

type fakeMessageStore struct {
	mu      sync.Mutex
	history map[string][]domain.Message
	byID    map[string]domain.Message
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{
		history: make(map[string][]domain.Message),
		byID:    make(map[string]domain.Message),
	}
}

func (f *fakeMessageStore) add(msg domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[msg.ID] = msg
}

func (f *fakeMessageStore) MessageHistory(_ context.Context, channelID string) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message{}, f.history[channelID]...), nil
}

func (f *fakeMessageStore) MessageByID(_ context.Context, messageID string) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.byID[messageID]
	if !ok {
		return domain.Message{}, domain.ErrNotFound
	}
	return msg, nil
}

func (f *fakeMessageStore) InsertMessage(_ context.Context, in *backend.NewMessage) (domain.Message, error) {
	msg := domain.Message{
		ID:        "generated-id",
		ChannelID: in.ChannelID,
		SenderID:  in.SenderID,
		Content:   in.Content,
		ThreadID:  in.ThreadID,
		CreatedAt: time.Now(),
	}
	f.add(msg)
	return msg, nil
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newFakeUserStore(users ...domain.User) *fakeUserStore {
	f := &fakeUserStore{users: make(map[string]domain.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUserStore) UserByID(_ context.Context, userID string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

type fakeUnreadStore struct {
	mu          sync.Mutex
	counts      map[string]int
	active      string
	resetCalls  []string
	activeCalls []string
}

func newFakeUnreadStore(counts map[string]int, active string) *fakeUnreadStore {
	if counts == nil {
		counts = make(map[string]int)
	}
	return &fakeUnreadStore{counts: counts, active: active}
}

func (f *fakeUnreadStore) UnreadState(context.Context, string) (map[string]int, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	counts := make(map[string]int, len(f.counts))
	for k, v := range f.counts {
		counts[k] = v
	}
	return counts, f.active, nil
}

func (f *fakeUnreadStore) ResetUnreadCount(ctx context.Context, channelID, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetCalls = append(f.resetCalls, channelID)
	return nil
}

func (f *fakeUnreadStore) SetActiveChannel(ctx context.Context, channelID, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeCalls = append(f.activeCalls, channelID)
	return nil
}

func (f *fakeUnreadStore) calls() (resets, actives []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.resetCalls...), append([]string{}, f.activeCalls...)
}
