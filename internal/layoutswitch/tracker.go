package layoutswitch

import (
	"context"
	"sync/atomic"
	"time"

	"kswitchd/internal/layout"
)

// Tracker caches the active layout for hot paths such as key translation,
// refreshing it from a Switcher in the background.
type Tracker struct {
	sw       Switcher
	interval time.Duration
	current  atomic.Value // layout.ID
}

// NewTracker returns a tracker that starts out at fallback until the first
// successful refresh.
func NewTracker(sw Switcher, interval time.Duration, fallback layout.ID) *Tracker {
	if interval <= 0 {
		interval = time.Second
	}
	t := &Tracker{sw: sw, interval: interval}
	t.current.Store(fallback)
	return t
}

// Current returns the cached layout.
func (t *Tracker) Current() layout.ID {
	return t.current.Load().(layout.ID)
}

// Set records a layout known to be active, e.g. after a switch.
func (t *Tracker) Set(id layout.ID) {
	if id != "" {
		t.current.Store(id)
	}
}

// Refresh queries the switcher once.
func (t *Tracker) Refresh(ctx context.Context) {
	if id, ok := t.sw.Current(ctx); ok {
		t.Set(id)
	}
}

// Run refreshes until ctx is done.
func (t *Tracker) Run(ctx context.Context) error {
	t.Refresh(ctx)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.Refresh(ctx)
		}
	}
}
