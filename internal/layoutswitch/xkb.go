package layoutswitch

import (
	"context"
	"log/slog"
	"strings"

	"kswitchd/internal/layout"
)

// XkbSwitch uses the xkb-switch utility.
type XkbSwitch struct {
	run    runFunc
	logger *slog.Logger
}

// NewXkbSwitch returns an xkb-switch backed switcher.
func NewXkbSwitch() *XkbSwitch {
	return &XkbSwitch{
		run:    runCommand,
		logger: slog.Default().With("component", "layoutswitch", "backend", BackendXkbSwitch),
	}
}

func (x *XkbSwitch) Name() string { return BackendXkbSwitch }

func (x *XkbSwitch) Current(ctx context.Context) (layout.ID, bool) {
	out, err := x.run(ctx, "xkb-switch", "-p")
	if err != nil || out == "" {
		if err != nil {
			x.logger.Debug("query failed", "error", err)
		}
		return "", false
	}
	return normalize(out), true
}

func (x *XkbSwitch) Switch(ctx context.Context, id layout.ID) bool {
	if _, err := x.run(ctx, "xkb-switch", "-s", string(id)); err != nil {
		x.logger.Debug("switch failed", "error", err)
		return false
	}
	return true
}

// Setxkbmap uses setxkbmap. Without access to the XKB group it can only
// tell the active layout when a single layout is configured; switching
// moves the target to the front of the configured list.
type Setxkbmap struct {
	run    runFunc
	logger *slog.Logger
}

// NewSetxkbmap returns a setxkbmap backed switcher.
func NewSetxkbmap() *Setxkbmap {
	return &Setxkbmap{
		run:    runCommand,
		logger: slog.Default().With("component", "layoutswitch", "backend", BackendSetxkbmap),
	}
}

func (s *Setxkbmap) Name() string { return BackendSetxkbmap }

func (s *Setxkbmap) layouts(ctx context.Context) ([]string, bool) {
	out, err := s.run(ctx, "setxkbmap", "-query")
	if err != nil {
		s.logger.Debug("query failed", "error", err)
		return nil, false
	}
	list := parseQuery(out)
	return list, len(list) > 0
}

func (s *Setxkbmap) Current(ctx context.Context) (layout.ID, bool) {
	list, ok := s.layouts(ctx)
	if !ok || len(list) != 1 {
		return "", false
	}
	return layout.ID(list[0]), true
}

func (s *Setxkbmap) Switch(ctx context.Context, id layout.ID) bool {
	target := string(id)
	order := []string{target}
	if list, ok := s.layouts(ctx); ok {
		for _, l := range list {
			if l != target {
				order = append(order, l)
			}
		}
	}
	if _, err := s.run(ctx, "setxkbmap", "-layout", strings.Join(order, ",")); err != nil {
		s.logger.Warn("switch failed", "layout", id, "error", err)
		return false
	}
	return true
}

// parseQuery extracts the layout list from `setxkbmap -query` output.
func parseQuery(out string) []string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "layout:") {
			continue
		}
		var list []string
		for _, l := range strings.Split(strings.TrimSpace(strings.TrimPrefix(line, "layout:")), ",") {
			if l = strings.TrimSpace(l); l != "" {
				list = append(list, l)
			}
		}
		return list
	}
	return nil
}

// normalize maps names like "us(intl)" or "ru(phonetic)" to the base layout.
func normalize(name string) layout.ID {
	if i := strings.IndexByte(name, '('); i > 0 {
		name = name[:i]
	}
	return layout.ID(strings.TrimSpace(name))
}
