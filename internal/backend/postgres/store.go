// Package postgres implements the relational store contracts over sqlx.
// Writes publish row events through the realtime transport so subscribed
// sessions converge without polling.
package postgres

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/handlebauer/chat-genius-sub000/internal/backend"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
	rt backend.Realtime
}

func NewStore(db *sqlx.DB, rt backend.Realtime) *Store {
	return &Store{
		db: db,
		rt: rt,
	}
}

func Connect(dsn string) (*sqlx.DB, error) {
	return sqlx.Connect("postgres", dsn)
}

// publish fans a row event out to subscribers. Event delivery is best
// effort: sessions reconcile by refetching, so a dropped event delays
// convergence but cannot corrupt it.
func (s *Store) publish(ctx context.Context, typ backend.RowEventType, table, scope string, payload any) {
	if s.rt == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal row event payload", "table", table, "error", err)
		return
	}

	if err := s.rt.PublishRow(ctx, backend.RowEvent{
		Type:    typ,
		Table:   table,
		Scope:   scope,
		Payload: data,
	}); err != nil {
		slog.Error("Failed to publish row event", "table", table, "error", err)
	}
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
