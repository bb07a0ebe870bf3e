// Package layoutswitch queries and switches the active keyboard layout.
//
// Switching is best-effort: every backend swallows its own failures, logs
// them and reports success as a boolean. Nothing here returns an error to
// the correction path.
package layoutswitch

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"kswitchd/internal/layout"
)

// Switcher is one way of talking to the desktop's layout state.
type Switcher interface {
	Name() string
	// Current returns the active layout, or false when it cannot be told.
	Current(ctx context.Context) (layout.ID, bool)
	// Switch activates id and reports whether it succeeded.
	Switch(ctx context.Context, id layout.ID) bool
}

// Backend names accepted by New.
const (
	BackendAuto      = "auto"
	BackendKDE       = "kde"
	BackendXkbSwitch = "xkb-switch"
	BackendSetxkbmap = "setxkbmap"
)

// commandTimeout bounds each external command.
const commandTimeout = time.Second

// runFunc runs an external command and returns its trimmed stdout.
type runFunc func(ctx context.Context, name string, args ...string) (string, error)

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// New returns the switcher for backend. "auto" (or empty) tries KDE over
// D-Bus, then xkb-switch, then setxkbmap.
func New(backend string) (Switcher, error) {
	switch backend {
	case BackendKDE:
		return NewKDE(), nil
	case BackendXkbSwitch:
		return NewXkbSwitch(), nil
	case BackendSetxkbmap:
		return NewSetxkbmap(), nil
	case BackendAuto, "":
		return NewChain(NewKDE(), NewXkbSwitch(), NewSetxkbmap()), nil
	default:
		return nil, fmt.Errorf("layoutswitch: unknown backend %q", backend)
	}
}

// Chain tries switchers in order until one answers.
type Chain struct {
	switchers []Switcher
	logger    *slog.Logger
}

// NewChain returns a Chain over switchers.
func NewChain(switchers ...Switcher) *Chain {
	return &Chain{
		switchers: switchers,
		logger:    slog.Default().With("component", "layoutswitch"),
	}
}

func (c *Chain) Name() string {
	names := make([]string, len(c.switchers))
	for i, s := range c.switchers {
		names[i] = s.Name()
	}
	return strings.Join(names, ",")
}

func (c *Chain) Current(ctx context.Context) (layout.ID, bool) {
	for _, s := range c.switchers {
		if id, ok := s.Current(ctx); ok {
			return id, true
		}
	}
	return "", false
}

func (c *Chain) Switch(ctx context.Context, id layout.ID) bool {
	for _, s := range c.switchers {
		if s.Switch(ctx, id) {
			c.logger.Info("layout switched", "layout", id, "via", s.Name())
			return true
		}
	}
	c.logger.Warn("layout switch failed on every backend", "layout", id)
	return false
}

// Fake is an in-memory Switcher for tests.
type Fake struct {
	mu       sync.Mutex
	current  layout.ID
	switches []layout.ID
	fail     bool
}

// NewFake returns a Fake starting on current.
func NewFake(current layout.ID) *Fake {
	return &Fake{current: current}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Current(context.Context) (layout.ID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.current != ""
}

func (f *Fake) Switch(_ context.Context, id layout.ID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.switches = append(f.switches, id)
	if f.fail {
		return false
	}
	f.current = id
	return true
}

// SetFail makes Switch fail.
func (f *Fake) SetFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

// Switches returns every requested switch in order.
func (f *Fake) Switches() []layout.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]layout.ID(nil), f.switches...)
}
