package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/handlebauer/chat-genius-sub000/internal/domain"
)

func (s *Store) UserByID(ctx context.Context, userID string) (domain.User, error) {
	query := `
		SELECT id, name, email, avatar_url, created_at
		FROM users
		WHERE id = $1;
	`

	var u domain.User
	err := s.db.GetContext(ctx, &u, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	return u, err
}

// EnsureUser upserts a user profile, returning the stored record. Used at
// session start so presence payloads and message joins always resolve.
func (s *Store) EnsureUser(ctx context.Context, name, email string) (domain.User, error) {
	query := `
		INSERT INTO users (id, name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, email, avatar_url, created_at;
	`

	var u domain.User
	err := s.db.GetContext(ctx, &u, query, uuid.NewString(), name, email)
	return u, err
}
