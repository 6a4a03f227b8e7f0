package sync

import (
	"context"
	"testing"
	"time"

	"github.com/handlebauer/chat-genius-sub000/internal/domain"
	"github.com/handlebauer/chat-genius-sub000/internal/state"
	"github.com/stretchr/testify/require"
)

func message(id, channelID string, at time.Time) domain.Message {
	return domain.Message{ID: id, ChannelID: channelID, SenderID: "u", CreatedAt: at}
}

func TestInsertOrdered_AppendsNewest(t *testing.T) {
	t.Parallel()

	base := time.Now()
	log := []domain.Message{message("m1", "x", base)}

	log = insertOrdered(log, message("m2", "x", base.Add(time.Second)))

	require.Equal(t, []string{"m1", "m2"}, messageIDs(log))
}

func TestInsertOrdered_PlacesOutOfOrderArrival(t *testing.T) {
	t.Parallel()

	base := time.Now()
	log := []domain.Message{message("m2", "x", base.Add(time.Second))}

	log = insertOrdered(log, message("m1", "x", base))

	require.Equal(t, []string{"m1", "m2"}, messageIDs(log))
}

func TestInsertOrdered_DropsDuplicates(t *testing.T) {
	t.Parallel()

	base := time.Now()
	log := []domain.Message{message("m1", "x", base)}

	log = insertOrdered(log, message("m1", "x", base))

	require.Len(t, log, 1)
}

func messageIDs(log []domain.Message) []string {
	ids := make([]string, len(log))
	for i, m := range log {
		ids[i] = m.ID
	}
	return ids
}

func openStream(t *testing.T, messages *fakeMessageStore, channelID string) (*MessageStream, *state.Store, *fakeRealtime) {
	t.Helper()

	rt := newFakeRealtime()
	store := state.NewStore()
	t.Cleanup(store.Close)

	ms := NewMessageStream(store, messages, rt)
	require.NoError(t, ms.Open(context.Background(), channelID))
	t.Cleanup(ms.Close)

	return ms, store, rt
}

func TestMessageStream_HistoryThenInserts(t *testing.T) {
	t.Parallel()

	base := time.Now()

	messages := newFakeMessageStore()
	messages.mu.Lock()
	messages.history["x"] = []domain.Message{message("m1", "x", base)}
	messages.mu.Unlock()
	messages.add(message("m2", "x", base.Add(time.Second)))

	_, store, rt := openStream(t, messages, "x")

	require.Eventually(t, func() bool {
		return len(store.Messages("x")) == 1
	}, time.Second, 5*time.Millisecond)

	rt.publishInsert(t, "messages", "x", map[string]string{"id": "m2"})

	require.Eventually(t, func() bool {
		return len(store.Messages("x")) == 2
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"m1", "m2"}, messageIDs(store.Messages("x")))
}

func TestMessageStream_ReverseNetworkOrder(t *testing.T) {
	t.Parallel()

	// Two messages inserted at t1 < t2 arrive as events in reverse order;
	// the final log must still read [t1, t2].
	base := time.Now()

	messages := newFakeMessageStore()
	messages.add(message("m1", "x", base))
	messages.add(message("m2", "x", base.Add(time.Second)))

	_, store, rt := openStream(t, messages, "x")

	rt.publishInsert(t, "messages", "x", map[string]string{"id": "m2"})
	rt.publishInsert(t, "messages", "x", map[string]string{"id": "m1"})

	require.Eventually(t, func() bool {
		return len(store.Messages("x")) == 2
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"m1", "m2"}, messageIDs(store.Messages("x")))
}

func TestMessageStream_SwitchDropsStaleCompletions(t *testing.T) {
	t.Parallel()

	base := time.Now()

	messages := newFakeMessageStore()
	messages.mu.Lock()
	messages.history["a"] = []domain.Message{message("a1", "a", base)}
	messages.history["b"] = []domain.Message{message("b1", "b", base)}
	messages.mu.Unlock()
	messages.add(message("a2", "a", base.Add(time.Second)))

	ms, store, rt := openStream(t, messages, "a")

	require.Eventually(t, func() bool {
		return len(store.Messages("a")) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, ms.Open(context.Background(), "b"))

	// An event for the torn-down channel must not land anywhere.
	rt.publishInsert(t, "messages", "a", map[string]string{"id": "a2"})

	require.Eventually(t, func() bool {
		return len(store.Messages("b")) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, []string{"a1"}, messageIDs(store.Messages("a")))
}
