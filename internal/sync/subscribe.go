package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/handlebauer/chat-genius-sub000/internal/backend"
	"github.com/sethvargo/go-retry"
)

// subscribeRows opens a row-event subscription, retrying with fibonacci
// backoff until it succeeds or ctx is done. A failed subscribe is a
// transport hiccup that delays convergence; it does not end the session.
func subscribeRows(ctx context.Context, rt backend.Realtime, table, scope string) (backend.Subscription, error) {
	var sub backend.Subscription

	err := retry.Fibonacci(ctx, time.Second, func(ctx context.Context) error {
		s, err := rt.SubscribeRows(ctx, table, scope)
		if err != nil {
			slog.Error("Failed to subscribe to row events", "table", table, "error", err)
			return retry.RetryableError(err)
		}
		sub = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}
