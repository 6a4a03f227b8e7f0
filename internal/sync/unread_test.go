package sync

import (
	"context"
	"testing"
	"time"

	"github.com/handlebauer/chat-genius-sub000/internal/backend"
	"github.com/handlebauer/chat-genius-sub000/internal/domain"
	"github.com/handlebauer/chat-genius-sub000/internal/state"
	"github.com/stretchr/testify/require"
)

func startUnreadSyncer(t *testing.T, unread *fakeUnreadStore) (*UnreadSyncer, *state.Store, *fakeRealtime) {
	t.Helper()

	rt := newFakeRealtime()
	store := state.NewStore()
	t.Cleanup(store.Close)

	us := NewUnreadSyncer(store, unread, rt, "me")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go us.Run(ctx)

	// Published events are lost until the syncer is subscribed.
	require.Eventually(t, func() bool {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		return len(rt.subs[subKey{backend.TableUnreadCounters, "me"}]) > 0
	}, time.Second, 5*time.Millisecond)

	return us, store, rt
}

func pushCounter(t *testing.T, rt *fakeRealtime, channelID string, count int) {
	t.Helper()
	rt.publishInsert(t, backend.TableUnreadCounters, "me", domain.UnreadCounter{
		ChannelID: channelID,
		UserID:    "me",
		Count:     count,
	})
}

func TestUnreadSyncer_SeedAppliesActiveChannelWins(t *testing.T) {
	t.Parallel()

	unread := newFakeUnreadStore(map[string]int{"general": 7, "ops": 3}, "general")
	_, store, _ := startUnreadSyncer(t, unread)

	require.Eventually(t, func() bool {
		counts := store.UnreadCounts()
		return counts["general"] == 0 && counts["ops"] == 3 && store.ActiveChannel() == "general"
	}, time.Second, 5*time.Millisecond)
}

func TestUnreadSyncer_OptimisticClearThenLatePush(t *testing.T) {
	t.Parallel()

	// Scenario: opening "general" with server-reported unread=7 shows 0
	// immediately; a late push still reporting 7 while it stays active is
	// overridden back to 0.
	unread := newFakeUnreadStore(map[string]int{"general": 7}, "")
	us, store, rt := startUnreadSyncer(t, unread)

	require.Eventually(t, func() bool {
		return store.UnreadCount("general") == 7
	}, time.Second, 5*time.Millisecond)

	us.MarkChannelActive(context.Background(), "general")

	require.Eventually(t, func() bool {
		return store.UnreadCount("general") == 0 && store.ActiveChannel() == "general"
	}, time.Second, 5*time.Millisecond)

	pushCounter(t, rt, "general", 7)

	// The push must resolve to 0; give the handler time to misbehave.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, store.UnreadCount("general"))
}

func TestUnreadSyncer_PushForInactiveChannelIsAuthoritative(t *testing.T) {
	t.Parallel()

	unread := newFakeUnreadStore(nil, "")
	us, store, rt := startUnreadSyncer(t, unread)

	us.MarkChannelActive(context.Background(), "general")

	require.Eventually(t, func() bool {
		return store.ActiveChannel() == "general"
	}, time.Second, 5*time.Millisecond)

	pushCounter(t, rt, "ops", 4)

	require.Eventually(t, func() bool {
		return store.UnreadCount("ops") == 4
	}, time.Second, 5*time.Millisecond)
}

func TestUnreadSyncer_MarkActiveIssuesServerCalls(t *testing.T) {
	t.Parallel()

	unread := newFakeUnreadStore(nil, "")
	us, _, _ := startUnreadSyncer(t, unread)

	us.MarkChannelActive(context.Background(), "general")

	require.Eventually(t, func() bool {
		resets, actives := unread.calls()
		return len(resets) == 1 && resets[0] == "general" &&
			len(actives) == 1 && actives[0] == "general"
	}, time.Second, 5*time.Millisecond)
}

func TestUnreadSyncer_RetriesFailedSubscribe(t *testing.T) {
	t.Parallel()

	rt := &flakyRealtime{fakeRealtime: newFakeRealtime(), failures: 1}
	store := state.NewStore()
	t.Cleanup(store.Close)

	unread := newFakeUnreadStore(map[string]int{"ops": 2}, "")
	us := NewUnreadSyncer(store, unread, rt, "me")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go us.Run(ctx)

	// The first subscribe attempt fails; the backoff retry must still get
	// the syncer to its seed.
	require.Eventually(t, func() bool {
		return store.UnreadCount("ops") == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestUnreadSyncer_ClearIsLocalOnly(t *testing.T) {
	t.Parallel()

	unread := newFakeUnreadStore(map[string]int{"ops": 9}, "")
	us, store, _ := startUnreadSyncer(t, unread)

	require.Eventually(t, func() bool {
		return store.UnreadCount("ops") == 9
	}, time.Second, 5*time.Millisecond)

	us.ClearUnreadCount("ops")

	require.Eventually(t, func() bool {
		return store.UnreadCount("ops") == 0
	}, time.Second, 5*time.Millisecond)

	resets, actives := unread.calls()
	require.Empty(t, resets)
	require.Empty(t, actives)
}
