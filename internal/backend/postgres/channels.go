package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/handlebauer/chat-genius-sub000/internal/backend"
	"github.com/handlebauer/chat-genius-sub000/internal/domain"
)

func (s *Store) ChannelByID(ctx context.Context, channelID string) (domain.Channel, error) {
	query := `
		SELECT id, name, channel_type, is_private, password_hash, created_by, created_at, updated_at
		FROM channels
		WHERE id = $1;
	`

	var ch domain.Channel
	err := s.db.GetContext(ctx, &ch, query, channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Channel{}, domain.ErrNotFound
	}
	return ch, err
}

func (s *Store) ChannelsForUser(ctx context.Context, userID string) ([]domain.Channel, error) {
	query := `
		SELECT c.id, c.name, c.channel_type, c.is_private, c.password_hash, c.created_by, c.created_at, c.updated_at
		FROM channels c
		JOIN channel_members cm ON cm.channel_id = c.id
		WHERE cm.user_id = $1 AND c.channel_type = 'channel'
		ORDER BY c.created_at ASC;
	`

	var channels []domain.Channel
	err := s.db.SelectContext(ctx, &channels, query, userID)
	return channels, err
}

func (s *Store) DirectMessagesForUser(ctx context.Context, userID string) ([]domain.Channel, error) {
	query := `
		SELECT c.id, c.name, c.channel_type, c.is_private, c.password_hash, c.created_by, c.created_at, c.updated_at
		FROM channels c
		JOIN channel_members cm ON cm.channel_id = c.id
		WHERE cm.user_id = $1 AND c.channel_type = 'direct_message'
		ORDER BY c.created_at ASC;
	`

	var channels []domain.Channel
	err := s.db.SelectContext(ctx, &channels, query, userID)
	return channels, err
}

func (s *Store) MembershipsForUser(ctx context.Context, userID string) ([]domain.ChannelMembership, error) {
	query := `
		SELECT channel_id, user_id, role, created_at
		FROM channel_members
		WHERE user_id = $1;
	`

	var memberships []domain.ChannelMembership
	err := s.db.SelectContext(ctx, &memberships, query, userID)
	return memberships, err
}

func (s *Store) ChannelMembers(ctx context.Context, channelID string) ([]domain.User, error) {
	query := `
		SELECT u.id, u.name, u.email, u.avatar_url, u.created_at
		FROM users u
		JOIN channel_members cm ON cm.user_id = u.id
		WHERE cm.channel_id = $1;
	`

	var members []domain.User
	err := s.db.SelectContext(ctx, &members, query, channelID)
	return members, err
}

func (s *Store) CreateChannel(ctx context.Context, in *backend.NewChannel) (domain.Channel, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return domain.Channel{}, err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO channels (id, name, channel_type, is_private, password_hash, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, name, channel_type, is_private, password_hash, created_by, created_at, updated_at;
	`

	var ch domain.Channel
	err = tx.GetContext(ctx, &ch, query,
		uuid.NewString(), in.Name, in.ChannelType, in.IsPrivate, in.PasswordHash, in.CreatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Channel{}, domain.ErrAlreadyExists
		}
		return domain.Channel{}, err
	}

	query = `
		INSERT INTO channel_members (channel_id, user_id, role)
		VALUES ($1, $2, 'owner');
	`

	if _, err = tx.ExecContext(ctx, query, ch.ID, in.CreatedBy); err != nil {
		return domain.Channel{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Channel{}, err
	}

	s.publish(ctx, backend.EventInsert, backend.TableChannels, "", ch)
	s.publish(ctx, backend.EventInsert, backend.TableChannelMembers, "", domain.ChannelMembership{
		ChannelID: ch.ID,
		UserID:    in.CreatedBy,
		Role:      domain.RoleOwner,
	})
	return ch, nil
}

func (s *Store) DeleteChannel(ctx context.Context, channelID, requesterID string) error {
	query := `
		DELETE FROM channels WHERE id = $1 AND created_by = $2;
	`

	res, err := s.db.ExecContext(ctx, query, channelID, requesterID)
	if err != nil {
		return err
	}

	rowsAff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAff == 0 {
		return domain.ErrForbidden.WithMessage("only the channel creator can delete it")
	}

	s.publish(ctx, backend.EventDelete, backend.TableChannels, "", map[string]string{"id": channelID})
	return nil
}

func (s *Store) GetOrCreateDM(ctx context.Context, userA, userB string) (domain.Channel, error) {
	name := domain.DMChannelName(userA, userB)

	query := `
		SELECT id, name, channel_type, is_private, password_hash, created_by, created_at, updated_at
		FROM channels
		WHERE name = $1 AND channel_type = 'direct_message';
	`

	var ch domain.Channel
	err := s.db.GetContext(ctx, &ch, query, name)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Channel{}, err
	}

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return domain.Channel{}, err
	}
	defer tx.Rollback()

	query = `
		INSERT INTO channels (id, name, channel_type, is_private, created_by)
		VALUES ($1, $2, 'direct_message', true, $3)
		RETURNING id, name, channel_type, is_private, password_hash, created_by, created_at, updated_at;
	`

	err = tx.GetContext(ctx, &ch, query, uuid.NewString(), name, userA)
	if err != nil {
		// Lost a race against the counterpart creating the same DM.
		if isUniqueViolation(err) {
			var existing domain.Channel
			query = `
				SELECT id, name, channel_type, is_private, password_hash, created_by, created_at, updated_at
				FROM channels
				WHERE name = $1 AND channel_type = 'direct_message';
			`
			if getErr := s.db.GetContext(ctx, &existing, query, name); getErr == nil {
				return existing, nil
			}
		}
		return domain.Channel{}, err
	}

	query = `
		INSERT INTO channel_members (channel_id, user_id, role)
		VALUES ($1, $2, 'member'), ($1, $3, 'member');
	`

	if _, err = tx.ExecContext(ctx, query, ch.ID, userA, userB); err != nil {
		return domain.Channel{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Channel{}, err
	}

	s.publish(ctx, backend.EventInsert, backend.TableChannels, "", ch)
	s.publish(ctx, backend.EventInsert, backend.TableChannelMembers, "", domain.ChannelMembership{
		ChannelID: ch.ID,
		UserID:    userB,
		Role:      domain.RoleMember,
	})
	return ch, nil
}

func (s *Store) JoinChannel(ctx context.Context, channelID, userID string) error {
	query := `
		INSERT INTO channel_members (channel_id, user_id, role)
		VALUES ($1, $2, 'member')
		ON CONFLICT (channel_id, user_id) DO NOTHING;
	`

	if _, err := s.db.ExecContext(ctx, query, channelID, userID); err != nil {
		return err
	}

	s.publish(ctx, backend.EventInsert, backend.TableChannelMembers, "", domain.ChannelMembership{
		ChannelID: channelID,
		UserID:    userID,
		Role:      domain.RoleMember,
	})
	return nil
}

func (s *Store) LeaveChannel(ctx context.Context, channelID, userID string) error {
	query := `
		DELETE FROM channel_members
		WHERE channel_id = $1 AND user_id = $2 AND role <> 'owner';
	`

	res, err := s.db.ExecContext(ctx, query, channelID, userID)
	if err != nil {
		return err
	}

	rowsAff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAff == 0 {
		var role domain.Role
		err := s.db.GetContext(ctx, &role,
			`SELECT role FROM channel_members WHERE channel_id = $1 AND user_id = $2;`,
			channelID, userID,
		)
		if err == nil && role == domain.RoleOwner {
			return domain.ErrOwnerCannotLeave
		}
		return domain.ErrNotMember
	}

	s.publish(ctx, backend.EventDelete, backend.TableChannelMembers, "", domain.ChannelMembership{
		ChannelID: channelID,
		UserID:    userID,
	})
	return nil
}
