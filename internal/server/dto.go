package server

import "github.com/handlebauer/chat-genius-sub000/internal/domain"

type CreateChannelRequest struct {
	Name     string `json:"name"`
	Private  bool   `json:"private"`
	Password string `json:"password,omitempty"`
}

type JoinChannelRequest struct {
	Password string `json:"password,omitempty"`
}

type SendMessageRequest struct {
	Content  string  `json:"content"`
	ThreadID *string `json:"thread_id,omitempty"`
}

type AskRequest struct {
	Question string `json:"question"`
}

type AskResponse struct {
	Answer string `json:"answer"`
}

// StateSnapshot is the full synced view pushed over the state socket and
// returned by GET /state.
type StateSnapshot struct {
	Channels       []domain.Channel        `json:"channels"`
	DirectMessages []domain.Channel        `json:"direct_messages"`
	Memberships    map[string]domain.Role  `json:"memberships"`
	Unread         map[string]int          `json:"unread"`
	ActiveChannel  string                  `json:"active_channel"`
	Online         []domain.PresenceRecord `json:"online"`
	DMParticipants map[string]domain.User  `json:"dm_participants"`
	Messages       []domain.Message        `json:"messages"`
}
