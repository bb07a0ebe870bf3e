// Package focus reports changes of the focused window.
//
// Keystrokes typed into one window have nothing to do with the next one,
// so the daemon drops its typing context whenever focus moves. On X11 the
// active window is read with xdotool, falling back to xprop. Wayland gives
// no portable way to inspect other clients' windows, so the watcher is
// unavailable there.
package focus

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrUnavailable is returned when no active-window source works.
var ErrUnavailable = errors.New("focus: active window detection not available")

// Source returns an identifier for the focused window.
type Source interface {
	ActiveWindow(ctx context.Context) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (string, error)

func (f SourceFunc) ActiveWindow(ctx context.Context) (string, error) { return f(ctx) }

// Watcher polls a Source and calls OnChange when the window changes.
type Watcher struct {
	src      Source
	interval time.Duration
	onChange func(window string)
	logger   *slog.Logger

	last string
}

// NewWatcher creates a watcher. onChange runs on the polling goroutine.
func NewWatcher(src Source, interval time.Duration, onChange func(window string)) *Watcher {
	return &Watcher{
		src:      src,
		interval: interval,
		onChange: onChange,
		logger:   slog.Default().With("component", "focus"),
	}
}

// Run polls until ctx is done. The first observed window is recorded
// without a change notification.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("focus watcher started", "interval", w.interval)
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := w.Poll(ctx); err != nil {
			failures++
			if failures == 1 {
				w.logger.Warn("active window query failed", "error", err)
			}
			continue
		}
		if failures > 0 {
			w.logger.Info("active window query recovered", "failures", failures)
			failures = 0
		}
	}
}

// Poll queries the source once and reports a change.
func (w *Watcher) Poll(ctx context.Context) error {
	id, err := w.src.ActiveWindow(ctx)
	if err != nil {
		return err
	}
	if id == "" || id == w.last {
		return nil
	}
	prev := w.last
	w.last = id
	if prev != "" {
		w.logger.Debug("focus changed", "from", prev, "to", id)
		w.onChange(id)
	}
	return nil
}

// DisplayServer reports "x11", "wayland" or "unknown". XWayland sessions
// count as X11.
func DisplayServer() string {
	if os.Getenv("DISPLAY") != "" {
		return "x11"
	}
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		return "wayland"
	}
	return "unknown"
}

// X11 reads _NET_ACTIVE_WINDOW through xdotool or xprop.
type X11 struct {
	timeout time.Duration
}

// NewX11 returns the X11 source, or ErrUnavailable when neither tool is
// installed or no X display is reachable.
func NewX11() (*X11, error) {
	if DisplayServer() != "x11" {
		return nil, ErrUnavailable
	}
	_, errXdotool := exec.LookPath("xdotool")
	_, errXprop := exec.LookPath("xprop")
	if errXdotool != nil && errXprop != nil {
		return nil, ErrUnavailable
	}
	return &X11{timeout: time.Second}, nil
}

func (x *X11) ActiveWindow(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	if out, err := exec.CommandContext(ctx, "xdotool", "getactivewindow").Output(); err == nil {
		return strings.TrimSpace(string(out)), nil
	}
	out, err := exec.CommandContext(ctx, "xprop", "-root", "_NET_ACTIVE_WINDOW").Output()
	if err != nil {
		return "", err
	}
	return ParseXprop(string(out))
}

// ParseXprop extracts the window id from xprop output such as
// "_NET_ACTIVE_WINDOW(WINDOW): window id # 0x3a00007".
func ParseXprop(out string) (string, error) {
	i := strings.LastIndex(out, "#")
	if i < 0 {
		return "", errors.New("focus: unexpected xprop output")
	}
	id := strings.TrimSpace(out[i+1:])
	if f := strings.Fields(id); len(f) > 0 {
		id = strings.TrimSuffix(f[0], ",")
	}
	if id == "" || id == "0x0" {
		return "", nil
	}
	return id, nil
}
