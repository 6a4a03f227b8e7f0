package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startIdleDetector(t *testing.T, idleTimeout, poll, threshold, cooldown time.Duration) *IdleDetector {
	t.Helper()

	d := NewIdleDetector(idleTimeout, poll, threshold, cooldown)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go d.Run(ctx)

	return d
}

func TestIdleDetector_StartsActive(t *testing.T) {
	t.Parallel()

	d := startIdleDetector(t, time.Hour, 10*time.Millisecond, time.Millisecond, time.Millisecond)
	require.False(t, d.IsIdle())
}

func TestIdleDetector_GoesIdleAfterTimeout(t *testing.T) {
	t.Parallel()

	d := startIdleDetector(t, 50*time.Millisecond, 10*time.Millisecond, time.Millisecond, time.Millisecond)

	// Must flip within one poll interval of the timeout elapsing.
	require.Eventually(t, d.IsIdle, 200*time.Millisecond, 5*time.Millisecond)
}

func TestIdleDetector_WakesImmediatelyOnInput(t *testing.T) {
	t.Parallel()

	d := startIdleDetector(t, 30*time.Millisecond, 10*time.Millisecond, time.Millisecond, time.Millisecond)

	require.Eventually(t, d.IsIdle, 200*time.Millisecond, 5*time.Millisecond)

	// No debounce on the idle->active edge.
	d.RecordActivity()
	require.False(t, d.IsIdle())
}

func TestIdleDetector_ActivityKeepsItActive(t *testing.T) {
	t.Parallel()

	d := startIdleDetector(t, 60*time.Millisecond, 10*time.Millisecond, time.Millisecond, time.Millisecond)

	for i := 0; i < 10; i++ {
		d.RecordActivity()
		time.Sleep(20 * time.Millisecond)
		require.False(t, d.IsIdle())
	}
}

func TestIdleDetector_CooldownSwallowsBursts(t *testing.T) {
	t.Parallel()

	// Threshold zero so only the cooldown gates recordings: a burst inside
	// the window must not advance last-activity past the first input.
	d := NewIdleDetector(40*time.Millisecond, 5*time.Millisecond, 0, time.Hour)

	d.RecordActivity()
	first := d.lastActivityTime()

	for i := 0; i < 5; i++ {
		d.RecordActivity()
	}
	require.Equal(t, first, d.lastActivityTime())
}

func TestIdleDetector_ThresholdThrottlesWhileActive(t *testing.T) {
	t.Parallel()

	d := NewIdleDetector(time.Hour, time.Hour, 100*time.Millisecond, 0)

	d.RecordActivity()
	first := d.lastActivityTime()

	time.Sleep(10 * time.Millisecond)
	d.RecordActivity()
	require.Equal(t, first, d.lastActivityTime())
}

func TestIdleDetector_OnChangeFiresOnTransitions(t *testing.T) {
	t.Parallel()

	changes := make(chan bool, 8)

	d := NewIdleDetector(30*time.Millisecond, 10*time.Millisecond, time.Millisecond, time.Millisecond)
	d.OnChange(func(idle bool) { changes <- idle })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	select {
	case idle := <-changes:
		require.True(t, idle)
	case <-time.After(time.Second):
		t.Fatal("no idle transition observed")
	}

	d.RecordActivity()

	select {
	case idle := <-changes:
		require.False(t, idle)
	case <-time.After(time.Second):
		t.Fatal("no wake transition observed")
	}
}
