package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/handlebauer/chat-genius-sub000/internal/backend"
	"github.com/handlebauer/chat-genius-sub000/internal/domain"
)

func (s *Store) UnreadState(ctx context.Context, userID string) (map[string]int, string, error) {
	query := `
		SELECT channel_id, user_id, count
		FROM unread_counters
		WHERE user_id = $1;
	`

	var counters []domain.UnreadCounter
	if err := s.db.SelectContext(ctx, &counters, query, userID); err != nil {
		return nil, "", err
	}

	counts := make(map[string]int, len(counters))
	for _, c := range counters {
		counts[c.ChannelID] = c.Count
	}

	var active string
	err := s.db.GetContext(ctx, &active,
		`SELECT channel_id FROM active_channels WHERE user_id = $1;`, userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, "", err
	}

	return counts, active, nil
}

func (s *Store) ResetUnreadCount(ctx context.Context, channelID, userID string) error {
	if _, err := s.db.ExecContext(ctx, `SELECT reset_unread_count($1, $2);`, channelID, userID); err != nil {
		return err
	}

	s.publish(ctx, backend.EventUpdate, backend.TableUnreadCounters, userID, domain.UnreadCounter{
		ChannelID: channelID,
		UserID:    userID,
		Count:     0,
	})
	return nil
}

func (s *Store) SetActiveChannel(ctx context.Context, channelID, userID string) error {
	_, err := s.db.ExecContext(ctx, `SELECT set_active_channel($1, $2);`, channelID, userID)
	return err
}
