// Package sync implements the per-session synchronization engine: presence,
// idle detection, unread counters, channel/membership reconciliation and the
// realtime message stream, all communicating only through the state store.
package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/handlebauer/chat-genius-sub000/internal/backend"
	"github.com/handlebauer/chat-genius-sub000/internal/domain"
	"github.com/handlebauer/chat-genius-sub000/internal/state"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

type Backends struct {
	Channels backend.ChannelStore
	Messages backend.MessageStore
	Unread   backend.UnreadStore
	Users    backend.UserStore
	Realtime backend.Realtime
	Asker    backend.Asker
}

type Timings struct {
	IdleTimeout       time.Duration
	IdlePollInterval  time.Duration
	ActivityThreshold time.Duration
	ActivityCooldown  time.Duration
	HeartbeatInterval time.Duration
}

// Session is one user's sync engine. Background handlers swallow and log
// individual fetch errors; the user actions below propagate failures to the
// caller so the UI boundary can react.
type Session struct {
	self     domain.User
	store    *state.Store
	backends Backends

	mu     sync.Mutex
	runCtx context.Context

	idle        *IdleDetector
	presence    *PresenceTracker
	channelSync *ChannelSyncer
	unreadSync  *UnreadSyncer
	stream      *MessageStream
}

func NewSession(self domain.User, backends Backends, timings Timings) *Session {
	store := state.NewStore()

	idle := NewIdleDetector(
		timings.IdleTimeout,
		timings.IdlePollInterval,
		timings.ActivityThreshold,
		timings.ActivityCooldown,
	)

	return &Session{
		self:        self,
		store:       store,
		backends:    backends,
		idle:        idle,
		presence:    NewPresenceTracker(backends.Realtime, store, idle, self, timings.HeartbeatInterval),
		channelSync: NewChannelSyncer(store, backends.Channels, backends.Messages, backends.Realtime, self),
		unreadSync:  NewUnreadSyncer(store, backends.Unread, backends.Realtime, self.ID),
		stream:      NewMessageStream(store, backends.Messages, backends.Realtime),
	}
}

func (s *Session) Store() *state.Store {
	return s.store
}

func (s *Session) User() domain.User {
	return s.self
}

// Run drives the session-lifetime components until ctx is done, then tears
// down the message stream and the store.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.idle.Run(ctx) })
	g.Go(func() error { return s.presence.Run(ctx) })
	g.Go(func() error { return s.channelSync.Run(ctx) })
	g.Go(func() error { return s.unreadSync.Run(ctx) })

	err := g.Wait()

	s.stream.Close()
	s.store.Close()

	if err != nil && err != context.Canceled {
		slog.Error("Session exited with error", "user_id", s.self.ID, "error", err)
		return err
	}
	return nil
}

// lifetime is the context for work that must outlive the calling request:
// the message stream's subscription and the unawaited unread calls end with
// the session, not with the HTTP request that triggered them.
func (s *Session) lifetime() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx != nil {
		return s.runCtx
	}
	return context.Background()
}

// RecordActivity notes a qualifying input event from the UI.
func (s *Session) RecordActivity() {
	s.idle.RecordActivity()
}

func (s *Session) IsIdle() bool {
	return s.idle.IsIdle()
}

// OpenChannel switches the message stream to channelID and marks it active.
// The unread count flips to zero locally before either server call returns.
func (s *Session) OpenChannel(ctx context.Context, channelID string) error {
	if _, ok := s.store.Memberships()[channelID]; !ok {
		return domain.ErrNotMember
	}

	if err := s.stream.Open(s.lifetime(), channelID); err != nil {
		return err
	}

	s.unreadSync.MarkChannelActive(s.lifetime(), channelID)
	return nil
}

// CloseChannel deactivates the current channel view.
func (s *Session) CloseChannel() {
	s.stream.Close()
}

// CreateChannel creates a regular channel with the session user as owner and
// adds it to the local list optimistically, ahead of the confirmation push.
func (s *Session) CreateChannel(ctx context.Context, name string, private bool, password string) (domain.Channel, error) {
	in := &backend.NewChannel{
		Name:        name,
		ChannelType: domain.TypeChannel,
		IsPrivate:   private,
		CreatedBy:   s.self.ID,
	}

	if private && password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return domain.Channel{}, err
		}
		hashed := string(hash)
		in.PasswordHash = &hashed
	}

	ch, err := s.backends.Channels.CreateChannel(ctx, in)
	if err != nil {
		return domain.Channel{}, err
	}

	s.channelSync.AddLocalChannel(ch)
	s.store.Dispatch(func(st *state.ClientState) {
		st.Memberships[ch.ID] = domain.RoleOwner
	})
	return ch, nil
}

// DeleteChannel removes a channel; only its creator may.
func (s *Session) DeleteChannel(ctx context.Context, channelID string) error {
	if err := s.backends.Channels.DeleteChannel(ctx, channelID, s.self.ID); err != nil {
		return err
	}

	if s.stream.Channel() == channelID {
		s.stream.Close()
	}
	s.channelSync.Refresh(ctx)
	return nil
}

// JoinChannel adds the session user as a member, verifying the password for
// protected private channels.
func (s *Session) JoinChannel(ctx context.Context, channelID, password string) error {
	ch, err := s.backends.Channels.ChannelByID(ctx, channelID)
	if err != nil {
		return err
	}

	if ch.IsPrivate && ch.PasswordHash != nil {
		if err := bcrypt.CompareHashAndPassword([]byte(*ch.PasswordHash), []byte(password)); err != nil {
			return domain.ErrBadPassword
		}
	}

	if err := s.backends.Channels.JoinChannel(ctx, channelID, s.self.ID); err != nil {
		return err
	}

	s.channelSync.Refresh(ctx)
	return nil
}

// LeaveChannel removes the session user's membership. Owners cannot leave;
// they delete the channel instead.
func (s *Session) LeaveChannel(ctx context.Context, channelID string) error {
	if s.store.Memberships()[channelID] == domain.RoleOwner {
		return domain.ErrOwnerCannotLeave
	}

	if err := s.backends.Channels.LeaveChannel(ctx, channelID, s.self.ID); err != nil {
		return err
	}

	if s.stream.Channel() == channelID {
		s.stream.Close()
	}
	s.channelSync.Refresh(ctx)
	return nil
}

// OpenDirectMessage finds or creates the DM channel with another user and
// activates it. The counterpart profile is resolved up front, both to reject
// unknown ids before a channel row exists and to seed the participant cache.
func (s *Session) OpenDirectMessage(ctx context.Context, otherUserID string) (domain.Channel, error) {
	other, err := s.backends.Users.UserByID(ctx, otherUserID)
	if err != nil {
		return domain.Channel{}, err
	}

	dm, err := s.backends.Channels.GetOrCreateDM(ctx, s.self.ID, otherUserID)
	if err != nil {
		return domain.Channel{}, err
	}

	s.channelSync.AddLocalChannel(dm)
	s.store.Dispatch(func(st *state.ClientState) {
		st.Memberships[dm.ID] = domain.RoleMember
		st.DMParticipants[dm.ID] = other
	})

	if err := s.stream.Open(s.lifetime(), dm.ID); err != nil {
		return domain.Channel{}, err
	}
	s.unreadSync.MarkChannelActive(s.lifetime(), dm.ID)
	return dm, nil
}

// SendMessage appends a message to a channel the session user belongs to.
func (s *Session) SendMessage(ctx context.Context, channelID, content string, threadID *string) (domain.Message, error) {
	if _, ok := s.store.Memberships()[channelID]; !ok {
		return domain.Message{}, domain.ErrNotMember
	}

	return s.backends.Messages.InsertMessage(ctx, &backend.NewMessage{
		ChannelID: channelID,
		SenderID:  s.self.ID,
		Content:   content,
		ThreadID:  threadID,
	})
}

// Ask forwards a question plus the open channel's history to the assistant
// collaborator and returns its reply.
func (s *Session) Ask(ctx context.Context, channelID, question string) (string, error) {
	if s.backends.Asker == nil {
		return "", domain.ErrNotFound.WithMessage("assistant is not configured")
	}
	if _, ok := s.store.Memberships()[channelID]; !ok {
		return "", domain.ErrNotMember
	}

	return s.backends.Asker.Ask(ctx, question, s.store.Messages(channelID))
}
