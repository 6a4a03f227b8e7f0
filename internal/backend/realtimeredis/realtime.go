// Package realtimeredis carries the realtime push contract over redis
// pub/sub: row events as table-scoped channels, presence as TTL'd per-user
// keys republished to every member as full snapshots.
package realtimeredis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/handlebauer/chat-genius-sub000/internal/backend"
	"github.com/redis/go-redis/v9"
)

type Realtime struct {
	client          *redis.Client
	heartbeatWindow time.Duration
}

func New(client *redis.Client, heartbeatWindow time.Duration) *Realtime {
	return &Realtime{
		client:          client,
		heartbeatWindow: heartbeatWindow,
	}
}

func rowChannel(table, scope string) string {
	if scope == "" {
		scope = "-"
	}
	return fmt.Sprintf("rowevent:%s:%s", table, scope)
}

func (r *Realtime) PublishRow(ctx context.Context, ev backend.RowEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal row event: %w", err)
	}
	return r.client.Publish(ctx, rowChannel(ev.Table, ev.Scope), data).Err()
}

func (r *Realtime) SubscribeRows(ctx context.Context, table, scope string) (backend.Subscription, error) {
	var pubSub *redis.PubSub
	if scope == "" {
		pubSub = r.client.PSubscribe(ctx, fmt.Sprintf("rowevent:%s:*", table))
	} else {
		pubSub = r.client.Subscribe(ctx, rowChannel(table, scope))
	}

	sub := &rowSubscription{
		pubSub: pubSub,
		events: make(chan backend.RowEvent, 16),
	}
	go sub.consume()
	return sub, nil
}

type rowSubscription struct {
	pubSub *redis.PubSub
	events chan backend.RowEvent
}

func (s *rowSubscription) consume() {
	defer close(s.events)

	for msg := range s.pubSub.Channel() {
		var ev backend.RowEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			slog.Error("Failed to unmarshal row event", "channel", msg.Channel, "error", err)
			continue
		}
		s.events <- ev
	}
}

func (s *rowSubscription) Events() <-chan backend.RowEvent {
	return s.events
}

func (s *rowSubscription) Close() error {
	return s.pubSub.Close()
}
