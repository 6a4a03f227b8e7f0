package sync

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/handlebauer/chat-genius-sub000/internal/backend"
	"github.com/handlebauer/chat-genius-sub000/internal/domain"
	"github.com/handlebauer/chat-genius-sub000/internal/state"
)

// MessageStream maintains the ordered in-memory message log for the channel
// currently being viewed. Insert events are treated as signals only: the
// payload is not trusted to carry full sender data, so the handler refetches
// the single message by id with its join data before appending. One extra
// round trip per message, complete relational data on every message.
//
// Every open bumps a generation counter and completions carrying a stale
// generation are dropped, so fetches still in flight when the user switches
// channels cannot write into the wrong log.
type MessageStream struct {
	store    *state.Store
	messages backend.MessageStore
	rt       backend.Realtime

	gen atomic.Int64

	mu        sync.Mutex
	cancel    context.CancelFunc
	channelID string
}

func NewMessageStream(store *state.Store, messages backend.MessageStore, rt backend.Realtime) *MessageStream {
	return &MessageStream{
		store:    store,
		messages: messages,
		rt:       rt,
	}
}

// Open activates the stream for one channel: ordered history fetch, then an
// insert-scoped subscription. Any previously open channel is torn down
// first; leaving the old subscription behind would accumulate duplicate
// handlers across channel switches.
func (ms *MessageStream) Open(ctx context.Context, channelID string) error {
	ms.Close()

	gen := ms.gen.Add(1)

	streamCtx, cancel := context.WithCancel(ctx)

	sub, err := ms.rt.SubscribeRows(streamCtx, backend.TableMessages, channelID)
	if err != nil {
		cancel()
		return err
	}

	history, err := ms.messages.MessageHistory(streamCtx, channelID)
	if err != nil {
		sub.Close()
		cancel()
		return err
	}

	ms.mu.Lock()
	ms.cancel = cancel
	ms.channelID = channelID
	ms.mu.Unlock()

	ms.store.Dispatch(func(s *state.ClientState) {
		if ms.gen.Load() != gen {
			return
		}
		s.Messages[channelID] = history
	})

	go ms.consume(streamCtx, sub, channelID, gen)
	return nil
}

// Close tears the current subscription down. In-flight fetches are not
// interrupted; their completions are discarded by the generation check.
func (ms *MessageStream) Close() {
	ms.gen.Add(1)

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.cancel != nil {
		ms.cancel()
		ms.cancel = nil
		ms.channelID = ""
	}
}

// Channel returns the id of the currently open channel, "" if none.
func (ms *MessageStream) Channel() string {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.channelID
}

func (ms *MessageStream) consume(ctx context.Context, sub backend.Subscription, channelID string, gen int64) {
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.Type != backend.EventInsert {
				continue
			}
			ms.handleInsert(ctx, ev, channelID, gen)
		}
	}
}

func (ms *MessageStream) handleInsert(ctx context.Context, ev backend.RowEvent, channelID string, gen int64) {
	var ref struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(ev.Payload, &ref); err != nil || ref.ID == "" {
		slog.Error("Failed to read message id from insert event", "channel_id", channelID, "error", err)
		return
	}

	msg, err := ms.messages.MessageByID(ctx, ref.ID)
	if err != nil {
		slog.Error("Failed to fetch inserted message", "message_id", ref.ID, "error", err)
		return
	}

	if ms.gen.Load() != gen {
		return
	}

	ms.store.Dispatch(func(s *state.ClientState) {
		if ms.gen.Load() != gen {
			return
		}
		s.Messages[channelID] = insertOrdered(s.Messages[channelID], msg)
	})
}

// insertOrdered places msg into the log keeping created_at ascending order,
// dropping duplicates by id. New inserts are normally newer than everything
// held, so the common case is a plain append; events delivered in reverse
// network order walk back to their slot.
func insertOrdered(log []domain.Message, msg domain.Message) []domain.Message {
	for _, existing := range log {
		if existing.ID == msg.ID {
			return log
		}
	}

	i := len(log)
	for i > 0 && log[i-1].CreatedAt.After(msg.CreatedAt) {
		i--
	}

	log = append(log, domain.Message{})
	copy(log[i+1:], log[i:])
	log[i] = msg
	return log
}
