package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/handlebauer/chat-genius-sub000/internal/backend"
	"github.com/handlebauer/chat-genius-sub000/internal/domain"
)

type messageRow struct {
	ID           string    `db:"id"`
	ChannelID    string    `db:"channel_id"`
	SenderID     string    `db:"sender_id"`
	Content      string    `db:"content"`
	ThreadID     *string   `db:"thread_id"`
	CreatedAt    time.Time `db:"created_at"`
	SenderName   string    `db:"sender_name"`
	SenderEmail  string    `db:"sender_email"`
	SenderAvatar *string   `db:"sender_avatar"`
}

func (r messageRow) toMessage() domain.Message {
	return domain.Message{
		ID:        r.ID,
		ChannelID: r.ChannelID,
		SenderID:  r.SenderID,
		Content:   r.Content,
		ThreadID:  r.ThreadID,
		CreatedAt: r.CreatedAt,
		Sender: &domain.User{
			ID:        r.SenderID,
			Name:      r.SenderName,
			Email:     r.SenderEmail,
			AvatarURL: r.SenderAvatar,
		},
	}
}

func (s *Store) MessageHistory(ctx context.Context, channelID string) ([]domain.Message, error) {
	query := `
		SELECT
			m.id, m.channel_id, m.sender_id, m.content, m.thread_id, m.created_at,
			u.name AS sender_name, u.email AS sender_email, u.avatar_url AS sender_avatar
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.channel_id = $1
		ORDER BY m.created_at ASC, m.id ASC;
	`

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, channelID); err != nil {
		return nil, err
	}

	messages := make([]domain.Message, len(rows))
	for i, r := range rows {
		messages[i] = r.toMessage()
	}
	return messages, nil
}

func (s *Store) MessageByID(ctx context.Context, messageID string) (domain.Message, error) {
	query := `
		SELECT
			m.id, m.channel_id, m.sender_id, m.content, m.thread_id, m.created_at,
			u.name AS sender_name, u.email AS sender_email, u.avatar_url AS sender_avatar
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.id = $1;
	`

	var row messageRow
	err := s.db.GetContext(ctx, &row, query, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Message{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	return row.toMessage(), nil
}

// InsertMessage writes the message and publishes the insert signal plus the
// unread counter pushes produced by the server-side increment trigger.
func (s *Store) InsertMessage(ctx context.Context, in *backend.NewMessage) (domain.Message, error) {
	query := `
		INSERT INTO messages (id, channel_id, sender_id, content, thread_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id;
	`

	var messageID string
	err := s.db.QueryRowContext(ctx, query,
		uuid.NewString(), in.ChannelID, in.SenderID, in.Content, in.ThreadID,
	).Scan(&messageID)
	if err != nil {
		return domain.Message{}, err
	}

	msg, err := s.MessageByID(ctx, messageID)
	if err != nil {
		return domain.Message{}, err
	}

	s.publish(ctx, backend.EventInsert, backend.TableMessages, in.ChannelID, map[string]string{
		"id":         messageID,
		"channel_id": in.ChannelID,
	})
	s.publishUnreadCounters(ctx, in.ChannelID, in.SenderID)

	return msg, nil
}

func (s *Store) publishUnreadCounters(ctx context.Context, channelID, senderID string) {
	query := `
		SELECT channel_id, user_id, count
		FROM unread_counters
		WHERE channel_id = $1 AND user_id <> $2;
	`

	var counters []domain.UnreadCounter
	if err := s.db.SelectContext(ctx, &counters, query, channelID, senderID); err != nil {
		slog.Error("Failed to fetch unread counters after insert", "channel_id", channelID, "error", err)
		return
	}

	for _, c := range counters {
		s.publish(ctx, backend.EventUpdate, backend.TableUnreadCounters, c.UserID, c)
	}
}
