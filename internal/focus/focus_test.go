package focus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scripted struct {
	windows []string
	errs    []error
	i       int
}

func (s *scripted) ActiveWindow(context.Context) (string, error) {
	i := s.i
	s.i++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i >= len(s.windows) {
		return s.windows[len(s.windows)-1], nil
	}
	return s.windows[i], nil
}

func TestPollReportsChanges(t *testing.T) {
	src := &scripted{windows: []string{"1", "1", "2", "", "2", "3"}}
	var changes []string
	w := NewWatcher(src, time.Millisecond, func(id string) { changes = append(changes, id) })

	for range src.windows {
		require.NoError(t, w.Poll(context.Background()))
	}
	assert.Equal(t, []string{"2", "3"}, changes)
}

func TestPollError(t *testing.T) {
	boom := errors.New("no display")
	src := &scripted{windows: []string{"", "1"}, errs: []error{boom}}
	called := false
	w := NewWatcher(src, time.Millisecond, func(string) { called = true })

	assert.ErrorIs(t, w.Poll(context.Background()), boom)
	assert.NoError(t, w.Poll(context.Background()))
	assert.False(t, called)
}

func TestRunStopsOnCancel(t *testing.T) {
	calls := 0
	src := SourceFunc(func(context.Context) (string, error) {
		calls++
		return "w", nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	w := NewWatcher(src, 5*time.Millisecond, func(string) {})
	assert.NoError(t, w.Run(ctx))
	assert.Positive(t, calls)
}

func TestParseXprop(t *testing.T) {
	id, err := ParseXprop("_NET_ACTIVE_WINDOW(WINDOW): window id # 0x3a00007\n")
	require.NoError(t, err)
	assert.Equal(t, "0x3a00007", id)

	id, err = ParseXprop("_NET_ACTIVE_WINDOW(WINDOW): window id # 0x0")
	require.NoError(t, err)
	assert.Empty(t, id)

	_, err = ParseXprop("_NET_ACTIVE_WINDOW:  not found.")
	assert.Error(t, err)
}

func TestDisplayServer(t *testing.T) {
	t.Setenv("DISPLAY", "")
	t.Setenv("WAYLAND_DISPLAY", "wayland-0")
	assert.Equal(t, "wayland", DisplayServer())

	t.Setenv("DISPLAY", ":0")
	assert.Equal(t, "x11", DisplayServer())

	t.Setenv("DISPLAY", "")
	t.Setenv("WAYLAND_DISPLAY", "")
	assert.Equal(t, "unknown", DisplayServer())

	_, err := NewX11()
	assert.ErrorIs(t, err, ErrUnavailable)
}
