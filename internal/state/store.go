// Package state holds the process-wide client state for one authenticated
// session. All sync components communicate only through the Store: mutations
// are closures applied one at a time by a single goroutine, so no two
// updates ever interleave even though the I/O that triggered them was
// concurrent.
package state

import (
	"maps"
	"slices"
	"sync"

	"github.com/handlebauer/chat-genius-sub000/internal/domain"
)

// ClientState is the session's local view of server truth. Nothing here is
// durable; the external store remains authoritative.
type ClientState struct {
	Channels        []domain.Channel
	DirectMessages  []domain.Channel
	Memberships     map[string]domain.Role
	Messages        map[string][]domain.Message
	Unread          map[string]int
	ActiveChannelID string
	Online          []domain.PresenceRecord
	DMParticipants  map[string]domain.User
}

type Store struct {
	mu    sync.RWMutex
	state ClientState

	updates chan func(*ClientState)
	done    chan struct{}
	once    sync.Once

	watchMu  sync.Mutex
	watchers map[chan struct{}]struct{}
}

func NewStore() *Store {
	s := &Store{
		state: ClientState{
			Memberships:    make(map[string]domain.Role),
			Messages:       make(map[string][]domain.Message),
			Unread:         make(map[string]int),
			DMParticipants: make(map[string]domain.User),
		},
		updates:  make(chan func(*ClientState), 64),
		done:     make(chan struct{}),
		watchers: make(map[chan struct{}]struct{}),
	}

	go s.run()
	return s
}

func (s *Store) run() {
	for {
		select {
		case <-s.done:
			return
		case fn := <-s.updates:
			s.mu.Lock()
			fn(&s.state)
			s.mu.Unlock()
			s.notify()
		}
	}
}

// Dispatch queues one state transition. The closure receives current state
// at application time, so read-modify-write sequences inside it are atomic.
// Dispatches after Close are dropped; late completions of torn-down
// components land here and are harmless.
func (s *Store) Dispatch(fn func(*ClientState)) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case <-s.done:
	case s.updates <- fn:
	}
}

func (s *Store) Close() {
	s.once.Do(func() {
		close(s.done)
	})
}

// Watch returns a coalesced change-notification channel and a cancel func.
// At most one pending tick is kept per watcher.
func (s *Store) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.watchMu.Lock()
	s.watchers[ch] = struct{}{}
	s.watchMu.Unlock()

	cancel := func() {
		s.watchMu.Lock()
		delete(s.watchers, ch)
		s.watchMu.Unlock()
	}
	return ch, cancel
}

func (s *Store) notify() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	for ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Store) Channels() []domain.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.Channels)
}

func (s *Store) DirectMessages() []domain.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.DirectMessages)
}

func (s *Store) Memberships() map[string]domain.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.state.Memberships)
}

func (s *Store) Messages(channelID string) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.Messages[channelID])
}

func (s *Store) UnreadCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.state.Unread)
}

func (s *Store) UnreadCount(channelID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Unread[channelID]
}

func (s *Store) ActiveChannel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ActiveChannelID
}

func (s *Store) OnlineUsers() []domain.PresenceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.Online)
}

func (s *Store) DMParticipant(channelID string) (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.state.DMParticipants[channelID]
	return u, ok
}

func (s *Store) DMParticipants() map[string]domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.state.DMParticipants)
}
