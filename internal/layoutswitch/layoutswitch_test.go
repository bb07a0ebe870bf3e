package layoutswitch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kswitchd/internal/layout"
)

type scriptedRunner struct {
	outputs map[string]string
	fail    map[string]bool
	calls   []string
}

func (s *scriptedRunner) run(_ context.Context, name string, args ...string) (string, error) {
	cmd := strings.TrimSpace(name + " " + strings.Join(args, " "))
	s.calls = append(s.calls, cmd)
	if s.fail[cmd] {
		return "", errors.New("exit status 1")
	}
	return s.outputs[cmd], nil
}

func TestParseQuery(t *testing.T) {
	out := "rules:      evdev\nmodel:      pc105\nlayout:     us,ru\noptions:    grp:alt_shift_toggle"
	assert.Equal(t, []string{"us", "ru"}, parseQuery(out))
	assert.Nil(t, parseQuery("rules: evdev"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, layout.RU, normalize("ru(phonetic)"))
	assert.Equal(t, layout.US, normalize("us"))
}

func TestXkbSwitch(t *testing.T) {
	r := &scriptedRunner{outputs: map[string]string{"xkb-switch -p": "ru"}}
	x := NewXkbSwitch()
	x.run = r.run

	id, ok := x.Current(context.Background())
	require.True(t, ok)
	assert.Equal(t, layout.RU, id)

	assert.True(t, x.Switch(context.Background(), layout.US))
	assert.Equal(t, "xkb-switch -s us", r.calls[len(r.calls)-1])

	r.fail = map[string]bool{"xkb-switch -s ru": true}
	assert.False(t, x.Switch(context.Background(), layout.RU))
}

func TestSetxkbmapSwitchKeepsOtherLayouts(t *testing.T) {
	r := &scriptedRunner{outputs: map[string]string{"setxkbmap -query": "layout:     us,ru,de"}}
	s := NewSetxkbmap()
	s.run = r.run

	_, ok := s.Current(context.Background())
	assert.False(t, ok, "active group is unknown with several layouts")

	assert.True(t, s.Switch(context.Background(), layout.RU))
	assert.Equal(t, "setxkbmap -layout ru,us,de", r.calls[len(r.calls)-1])
}

func TestSetxkbmapSingleLayout(t *testing.T) {
	r := &scriptedRunner{outputs: map[string]string{"setxkbmap -query": "layout: us"}}
	s := NewSetxkbmap()
	s.run = r.run

	id, ok := s.Current(context.Background())
	require.True(t, ok)
	assert.Equal(t, layout.US, id)
}

func TestChainFallsThrough(t *testing.T) {
	broken := NewFake("")
	broken.SetFail(true)
	working := NewFake(layout.US)
	c := NewChain(broken, working)

	id, ok := c.Current(context.Background())
	require.True(t, ok)
	assert.Equal(t, layout.US, id)

	assert.True(t, c.Switch(context.Background(), layout.RU))
	assert.Equal(t, []layout.ID{layout.RU}, broken.Switches())
	assert.Equal(t, []layout.ID{layout.RU}, working.Switches())
	assert.Equal(t, "fake,fake", c.Name())
}

func TestNewBackends(t *testing.T) {
	for _, name := range []string{"", BackendAuto, BackendKDE, BackendXkbSwitch, BackendSetxkbmap} {
		sw, err := New(name)
		require.NoError(t, err, name)
		assert.NotNil(t, sw)
	}
	_, err := New("wayland-magic")
	assert.Error(t, err)
}

type slot struct {
	mu  sync.Mutex
	req layout.ID
	set bool
}

func (s *slot) put(id layout.ID) {
	s.mu.Lock()
	s.req, s.set = id, true
	s.mu.Unlock()
}

func (s *slot) ConsumeLayoutRequest() (layout.ID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.req, s.set
	s.req, s.set = "", false
	return id, ok
}

func TestPollerSwitchesOnlyWhenDifferent(t *testing.T) {
	src := &slot{}
	sw := NewFake(layout.US)
	p := NewPoller(src, sw, 0)

	p.Poll(context.Background())
	assert.Empty(t, sw.Switches())

	src.put(layout.US)
	p.Poll(context.Background())
	assert.Empty(t, sw.Switches(), "already active")

	var got []layout.ID
	p.OnSwitch(func(id layout.ID, ok bool) {
		assert.True(t, ok)
		got = append(got, id)
	})
	src.put(layout.RU)
	p.Poll(context.Background())
	assert.Equal(t, []layout.ID{layout.RU}, sw.Switches())
	assert.Equal(t, []layout.ID{layout.RU}, got)

	_, pending := src.ConsumeLayoutRequest()
	assert.False(t, pending, "request is consumed")
}

func TestPollerRun(t *testing.T) {
	src := &slot{}
	sw := NewFake(layout.US)
	p := NewPoller(src, sw, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	src.put(layout.RU)
	require.Eventually(t, func() bool {
		return len(sw.Switches()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestTracker(t *testing.T) {
	sw := NewFake("")
	tr := NewTracker(sw, 5*time.Millisecond, layout.US)
	assert.Equal(t, layout.US, tr.Current())

	tr.Refresh(context.Background())
	assert.Equal(t, layout.US, tr.Current(), "unknown layout keeps the cached one")

	sw.Switch(context.Background(), layout.RU)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx)
	require.Eventually(t, func() bool { return tr.Current() == layout.RU }, time.Second, 5*time.Millisecond)

	tr.Set("")
	assert.Equal(t, layout.RU, tr.Current())
}
