package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/handlebauer/chat-genius-sub000/internal/domain"
	chatsync "github.com/handlebauer/chat-genius-sub000/internal/sync"
	"github.com/handlebauer/chat-genius-sub000/internal/utils"
)

// UserProvisioner resolves the profile behind a validated token, creating it
// on first contact.
type UserProvisioner interface {
	EnsureUser(ctx context.Context, name, email string) (domain.User, error)
}

// SessionRegistry owns one sync engine per authenticated user, started
// lazily on the first request and stopped on server shutdown.
type SessionRegistry struct {
	backends chatsync.Backends
	timings  chatsync.Timings
	users    UserProvisioner

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	session *chatsync.Session
	cancel  context.CancelFunc
}

func NewSessionRegistry(backends chatsync.Backends, timings chatsync.Timings, users UserProvisioner) *SessionRegistry {
	return &SessionRegistry{
		backends: backends,
		timings:  timings,
		users:    users,
		sessions: make(map[string]*sessionEntry),
	}
}

func (r *SessionRegistry) Session(ctx context.Context, claims *utils.AccessClaims) (*chatsync.Session, error) {
	r.mu.Lock()
	if entry, ok := r.sessions[claims.UserID]; ok {
		r.mu.Unlock()
		return entry.session, nil
	}
	r.mu.Unlock()

	user, err := r.users.EnsureUser(ctx, claims.Name, claims.Email)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Lost a race with a concurrent request for the same user.
	if entry, ok := r.sessions[claims.UserID]; ok {
		return entry.session, nil
	}

	session := chatsync.NewSession(user, r.backends, r.timings)

	runCtx, cancel := context.WithCancel(context.Background())
	key := claims.UserID
	go func() {
		if err := session.Run(runCtx); err != nil {
			slog.Error("Session stopped", "user_id", user.ID, "error", err)
		}

		// A dead engine must not serve later requests; drop the entry so
		// the next request provisions a fresh one.
		r.mu.Lock()
		if entry, ok := r.sessions[key]; ok && entry.session == session {
			delete(r.sessions, key)
		}
		r.mu.Unlock()
	}()

	r.sessions[key] = &sessionEntry{session: session, cancel: cancel}
	slog.Info("Session started", "user_id", user.ID)
	return session, nil
}

func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userID, entry := range r.sessions {
		entry.cancel()
		delete(r.sessions, userID)
	}
}
