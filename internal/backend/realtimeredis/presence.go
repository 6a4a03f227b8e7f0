package realtimeredis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/handlebauer/chat-genius-sub000/internal/backend"
	"github.com/handlebauer/chat-genius-sub000/internal/domain"
	"github.com/redis/go-redis/v9"
)

// JoinPresence subscribes to a shared presence topic. Each member's record
// lives under its own key with a TTL of the heartbeat window, so a member
// that stops heartbeating simply ages out of the next snapshot; nothing is
// ever inferred from silence alone. Every Track republishes the topic,
// prompting all members to rebuild the full snapshot from current keys.
func (r *Realtime) JoinPresence(ctx context.Context, topic string) (backend.PresenceChannel, error) {
	pubSub := r.client.Subscribe(ctx, "presence:"+topic)

	pc := &presenceChannel{
		client:    r.client,
		topic:     topic,
		window:    r.heartbeatWindow,
		pubSub:    pubSub,
		snapshots: make(chan []domain.PresenceRecord, 4),
	}
	go pc.consume(ctx)
	return pc, nil
}

type presenceChannel struct {
	client    *redis.Client
	topic     string
	window    time.Duration
	pubSub    *redis.PubSub
	snapshots chan []domain.PresenceRecord
}

func (pc *presenceChannel) key(userID string) string {
	return fmt.Sprintf("presence:%s:%s", pc.topic, userID)
}

func (pc *presenceChannel) Track(ctx context.Context, rec domain.PresenceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal presence record: %w", err)
	}

	if err := pc.client.Set(ctx, pc.key(rec.UserID), data, pc.window).Err(); err != nil {
		return err
	}
	return pc.client.Publish(ctx, "presence:"+pc.topic, "sync").Err()
}

func (pc *presenceChannel) Snapshots() <-chan []domain.PresenceRecord {
	return pc.snapshots
}

func (pc *presenceChannel) Close() error {
	return pc.pubSub.Close()
}

func (pc *presenceChannel) consume(ctx context.Context) {
	defer close(pc.snapshots)

	for range pc.pubSub.Channel() {
		snapshot, err := pc.snapshot(ctx)
		if err != nil {
			slog.Error("Failed to build presence snapshot", "topic", pc.topic, "error", err)
			continue
		}

		// Coalesce: only the latest snapshot matters.
		select {
		case pc.snapshots <- snapshot:
		default:
			select {
			case <-pc.snapshots:
			default:
			}
			pc.snapshots <- snapshot
		}
	}
}

func (pc *presenceChannel) snapshot(ctx context.Context) ([]domain.PresenceRecord, error) {
	var records []domain.PresenceRecord

	iter := pc.client.Scan(ctx, 0, fmt.Sprintf("presence:%s:*", pc.topic), 100).Iterator()
	for iter.Next(ctx) {
		data, err := pc.client.Get(ctx, iter.Val()).Result()
		if err != nil {
			// Key expired between scan and read.
			if err == redis.Nil {
				continue
			}
			return nil, err
		}

		var rec domain.PresenceRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			slog.Error("Skipping malformed presence record", "key", iter.Val(), "error", err)
			continue
		}
		if time.Since(rec.LastSeen) > pc.window {
			continue
		}
		records = append(records, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].UserID < records[j].UserID })
	return records, nil
}
