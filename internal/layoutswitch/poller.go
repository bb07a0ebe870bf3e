package layoutswitch

import (
	"context"
	"log/slog"
	"time"

	"kswitchd/internal/layout"
)

// DefaultPollInterval is how often pending layout requests are drained.
const DefaultPollInterval = 50 * time.Millisecond

// RequestSource hands out the pending layout request, clearing it.
type RequestSource interface {
	ConsumeLayoutRequest() (layout.ID, bool)
}

// Poller drains layout requests off the correction path and executes them.
type Poller struct {
	src      RequestSource
	sw       Switcher
	interval time.Duration
	logger   *slog.Logger
	onSwitch func(id layout.ID, ok bool)
}

// NewPoller returns a poller. A non-positive interval uses the default.
func NewPoller(src RequestSource, sw Switcher, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		src:      src,
		sw:       sw,
		interval: interval,
		logger:   slog.Default().With("component", "layoutswitch"),
	}
}

// OnSwitch registers a callback run after each attempted switch.
func (p *Poller) OnSwitch(fn func(id layout.ID, ok bool)) {
	p.onSwitch = fn
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll handles at most one pending request.
func (p *Poller) Poll(ctx context.Context) {
	id, ok := p.src.ConsumeLayoutRequest()
	if !ok {
		return
	}
	if cur, known := p.sw.Current(ctx); known && cur == id {
		p.logger.Debug("layout already active", "layout", id)
		return
	}
	switched := p.sw.Switch(ctx, id)
	if !switched {
		p.logger.Warn("layout switch failed", "layout", id)
	}
	if p.onSwitch != nil {
		p.onSwitch(id, switched)
	}
}
