// Package backend declares the contracts of the managed collaborators the
// sync engine runs against: the relational store, the realtime push
// transport and the assistant service. Implementations live in the
// subpackages; tests substitute in-memory fakes.
package backend

import (
	"context"
	"encoding/json"

	"github.com/handlebauer/chat-genius-sub000/internal/domain"
)

const (
	TableChannels       = "channels"
	TableChannelMembers = "channel_members"
	TableMessages       = "messages"
	TableUnreadCounters = "unread_counters"
)

type RowEventType string

const (
	EventInsert RowEventType = "INSERT"
	EventUpdate RowEventType = "UPDATE"
	EventDelete RowEventType = "DELETE"
)

// RowEvent notifies subscribers of a row-level change. The payload is a
// partial record: handlers treat it as a signal and refetch current truth
// rather than trusting its fields.
type RowEvent struct {
	Type    RowEventType    `json:"type"`
	Table   string          `json:"table"`
	Scope   string          `json:"scope,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Subscription interface {
	Events() <-chan RowEvent
	Close() error
}

// PresenceChannel is a shared ephemeral broadcast group. Track announces the
// caller's own state; every announcement fans out a fresh full snapshot to
// all joined members. No persistence, no replay.
type PresenceChannel interface {
	Track(ctx context.Context, rec domain.PresenceRecord) error
	Snapshots() <-chan []domain.PresenceRecord
	Close() error
}

type Realtime interface {
	// SubscribeRows opens a row-event subscription for one table. An empty
	// scope receives events for every row of the table; a non-empty scope
	// narrows to rows published under that scope (channel id for messages,
	// user id for unread counters).
	SubscribeRows(ctx context.Context, table, scope string) (Subscription, error)
	PublishRow(ctx context.Context, ev RowEvent) error
	JoinPresence(ctx context.Context, topic string) (PresenceChannel, error)
}

type ChannelStore interface {
	ChannelByID(ctx context.Context, channelID string) (domain.Channel, error)
	ChannelsForUser(ctx context.Context, userID string) ([]domain.Channel, error)
	DirectMessagesForUser(ctx context.Context, userID string) ([]domain.Channel, error)
	MembershipsForUser(ctx context.Context, userID string) ([]domain.ChannelMembership, error)
	ChannelMembers(ctx context.Context, channelID string) ([]domain.User, error)

	CreateChannel(ctx context.Context, in *NewChannel) (domain.Channel, error)
	DeleteChannel(ctx context.Context, channelID, requesterID string) error
	GetOrCreateDM(ctx context.Context, userA, userB string) (domain.Channel, error)
	JoinChannel(ctx context.Context, channelID, userID string) error
	LeaveChannel(ctx context.Context, channelID, userID string) error
}

type NewChannel struct {
	Name         string
	ChannelType  domain.ChannelType
	IsPrivate    bool
	PasswordHash *string
	CreatedBy    string
}

type MessageStore interface {
	// MessageHistory returns the full log for a channel with sender profiles
	// joined, sorted ascending by creation time.
	MessageHistory(ctx context.Context, channelID string) ([]domain.Message, error)
	MessageByID(ctx context.Context, messageID string) (domain.Message, error)
	InsertMessage(ctx context.Context, in *NewMessage) (domain.Message, error)
}

type NewMessage struct {
	ChannelID string
	SenderID  string
	Content   string
	ThreadID  *string
}

type UnreadStore interface {
	// UnreadState performs the bulk seed fetch: every counter for the user
	// plus the channel currently marked active server-side ("" if none).
	UnreadState(ctx context.Context, userID string) (map[string]int, string, error)
	// ResetUnreadCount invokes the reset_unread_count stored procedure.
	ResetUnreadCount(ctx context.Context, channelID, userID string) error
	// SetActiveChannel invokes the set_active_channel stored procedure.
	SetActiveChannel(ctx context.Context, channelID, userID string) error
}

type UserStore interface {
	UserByID(ctx context.Context, userID string) (domain.User, error)
}

// Asker is the LLM collaborator behind channel "ask" commands: a question
// plus assembled context in, generated text out.
type Asker interface {
	Ask(ctx context.Context, question string, history []domain.Message) (string, error)
}
