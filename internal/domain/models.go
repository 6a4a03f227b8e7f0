package domain

import (
	"fmt"
	"sort"
	"time"
)

type User struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	AvatarURL *string   `json:"avatar_url,omitempty" db:"avatar_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Channel struct {
	ID           string      `json:"id" db:"id"`
	Name         string      `json:"name" db:"name"`
	ChannelType  ChannelType `json:"channel_type" db:"channel_type"`
	IsPrivate    bool        `json:"is_private" db:"is_private"`
	PasswordHash *string     `json:"-" db:"password_hash"`
	CreatedBy    string      `json:"created_by" db:"created_by"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}

// Key identifies a channel inside merged lists. Two entries collide only
// when both id and type match.
func (c Channel) Key() ChannelKey {
	return ChannelKey{ID: c.ID, Type: c.ChannelType}
}

type ChannelKey struct {
	ID   string
	Type ChannelType
}

type ChannelMembership struct {
	ChannelID string    `json:"channel_id" db:"channel_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Role      Role      `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Message struct {
	ID        string    `json:"id" db:"id"`
	ChannelID string    `json:"channel_id" db:"channel_id"`
	SenderID  string    `json:"sender_id" db:"sender_id"`
	Content   string    `json:"content" db:"content"`
	ThreadID  *string   `json:"thread_id,omitempty" db:"thread_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	Sender *User `json:"sender,omitempty"`
}

type Reaction struct {
	ID        string    `json:"id" db:"id"`
	MessageID string    `json:"message_id" db:"message_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Emoji     string    `json:"emoji" db:"emoji"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Attachment struct {
	ID        string    `json:"id" db:"id"`
	MessageID string    `json:"message_id" db:"message_id"`
	FileName  string    `json:"file_name" db:"file_name"`
	FileURL   string    `json:"file_url" db:"file_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type UnreadCounter struct {
	ChannelID string `json:"channel_id" db:"channel_id"`
	UserID    string `json:"user_id" db:"user_id"`
	Count     int    `json:"count" db:"count"`
}

type PresenceRecord struct {
	UserID   string         `json:"user_id"`
	Name     string         `json:"name"`
	Email    string         `json:"email"`
	Status   PresenceStatus `json:"status"`
	LastSeen time.Time      `json:"last_seen"`
}

type (
	ChannelType    string
	Role           string
	PresenceStatus string
)

const (
	TypeChannel       ChannelType = "channel"
	TypeDirectMessage ChannelType = "direct_message"

	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"

	StatusOnline  PresenceStatus = "online"
	StatusAway    PresenceStatus = "away"
	StatusOffline PresenceStatus = "offline"
)

// DMChannelName builds the canonical name for a direct-message channel
// between two users. Participant order does not matter.
func DMChannelName(userA, userB string) string {
	ids := []string{userA, userB}
	sort.Strings(ids)
	return fmt.Sprintf("dm:%s_%s", ids[0], ids[1])
}
