package sync

import (
	"context"
	"sync"
	"time"
)

// IdleDetector flips the session user between active and idle from the flow
// of qualifying input events (pointer, key, touch). Recordings are coalesced
// twice over: a cooldown window swallows bursts outright, and while already
// active only inputs spaced beyond the activity threshold advance the
// last-activity mark. The idle check itself runs on a poll ticker rather
// than per input, trading a few seconds of detection latency for far less
// churn.
type IdleDetector struct {
	idleTimeout       time.Duration
	pollInterval      time.Duration
	activityThreshold time.Duration
	cooldown          time.Duration

	mu           sync.Mutex
	lastActivity time.Time
	idle         bool
	coolingDown  bool
	coolTimer    *time.Timer

	onChange func(idle bool)
}

func NewIdleDetector(idleTimeout, pollInterval, activityThreshold, cooldown time.Duration) *IdleDetector {
	return &IdleDetector{
		idleTimeout:       idleTimeout,
		pollInterval:      pollInterval,
		activityThreshold: activityThreshold,
		cooldown:          cooldown,
		lastActivity:      time.Now(),
	}
}

// OnChange registers a callback fired on every active<->idle transition.
// Must be set before Run.
func (d *IdleDetector) OnChange(fn func(idle bool)) {
	d.onChange = fn
}

// RecordActivity notes one qualifying input event. The idle->active edge is
// immediate and never debounced; everything else is throttled.
func (d *IdleDetector) RecordActivity() {
	d.mu.Lock()

	now := time.Now()

	if d.idle {
		d.idle = false
		d.lastActivity = now
		d.armCooldownLocked()
		fn := d.onChange
		d.mu.Unlock()

		if fn != nil {
			fn(false)
		}
		return
	}

	if d.coolingDown || now.Sub(d.lastActivity) < d.activityThreshold {
		d.mu.Unlock()
		return
	}

	d.lastActivity = now
	d.armCooldownLocked()
	d.mu.Unlock()
}

func (d *IdleDetector) armCooldownLocked() {
	d.coolingDown = true
	if d.coolTimer != nil {
		d.coolTimer.Stop()
	}
	d.coolTimer = time.AfterFunc(d.cooldown, func() {
		d.mu.Lock()
		d.coolingDown = false
		d.mu.Unlock()
	})
}

func (d *IdleDetector) lastActivityTime() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastActivity
}

func (d *IdleDetector) IsIdle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idle
}

// Run polls for the active->idle transition until ctx is done.
func (d *IdleDetector) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	defer d.stopCooldown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.checkIdle()
		}
	}
}

func (d *IdleDetector) checkIdle() {
	d.mu.Lock()
	if d.idle || time.Since(d.lastActivity) < d.idleTimeout {
		d.mu.Unlock()
		return
	}
	d.idle = true
	fn := d.onChange
	d.mu.Unlock()

	if fn != nil {
		fn(true)
	}
}

func (d *IdleDetector) stopCooldown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.coolTimer != nil {
		d.coolTimer.Stop()
		d.coolTimer = nil
	}
}
