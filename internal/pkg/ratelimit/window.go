// Package ratelimit enforces "at most N admitted events per rolling window"
// per key. Two backends share the Limiter contract: an in-process sliding log
// for single-instance deployments and a Redis sorted-set log for fleets.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits or rejects one event for key. Rejected events are not recorded.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Window is an in-memory sliding-log limiter.
type Window struct {
	mu     sync.Mutex
	events map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewWindow creates a limiter admitting limit events per key in any window-long span.
func NewWindow(limit int, window time.Duration) *Window {
	return &Window{
		events: make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (w *Window) Allow(_ context.Context, key string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	live := prune(w.events[key], now.Add(-w.window))
	if len(live) >= w.limit {
		w.events[key] = live
		return false, nil
	}
	w.events[key] = append(live, now)
	return true, nil
}

// Sweep drops keys whose events have all left the window.
func (w *Window) Sweep() {
	w.mu.Lock()
	defer w.mu.Unlock()
	cutoff := w.now().Add(-w.window)
	for k, ts := range w.events {
		if live := prune(ts, cutoff); len(live) == 0 {
			delete(w.events, k)
		} else {
			w.events[k] = live
		}
	}
}

// Run sweeps stale keys every interval until ctx is done.
func (w *Window) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.Sweep()
		}
	}
}

// prune drops timestamps at or before cutoff. ts is in ascending order.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}
