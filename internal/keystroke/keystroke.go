// Package keystroke delivers keyboard events to the correction daemon.
//
// A Capture reads key presses from the system and reports them through a
// Handler: printable characters as runes, backspace, and everything else
// (hotkey chords, navigation keys, function keys) as named special keys.
//
// While text is being replaced the daemon's own synthetic key events must
// not be fed back into it. BeginSuppress announces how many events the
// replacement will generate; the capture drops at most that many, and none
// after EndSuppress. The evdev capture never sees xdotool's XTEST events,
// and word, undo, rethink and polish replacements run on the reader
// goroutine, so nothing is dispatched while they inject. The window only
// matters for replacements started by the phrase timer or over IPC, where
// what it drops are real key presses typed during the injection.
//
// Platform support:
//   - Linux: reads /dev/input/event* (requires the input group or root)
//   - Other platforms: no capture; use the simulated capture in tests
package keystroke

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Modifiers is a set of held modifier keys.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModCtrl
	ModAlt
	ModSuper
)

// Has reports whether every modifier in m2 is held.
func (m Modifiers) Has(m2 Modifiers) bool {
	return m&m2 == m2
}

func (m Modifiers) String() string {
	var parts []string
	if m.Has(ModCtrl) {
		parts = append(parts, "ctrl")
	}
	if m.Has(ModShift) {
		parts = append(parts, "shift")
	}
	if m.Has(ModAlt) {
		parts = append(parts, "alt")
	}
	if m.Has(ModSuper) {
		parts = append(parts, "super")
	}
	return strings.Join(parts, "+")
}

// Special key names reported through Handler.OnSpecial. Single printable
// keys pressed with a modifier are reported by their unshifted character,
// e.g. "/" or "p".
const (
	KeyReturn   = "Return"
	KeyTab      = "Tab"
	KeyEscape   = "Escape"
	KeyHome     = "Home"
	KeyEnd      = "End"
	KeyLeft     = "Left"
	KeyRight    = "Right"
	KeyUp       = "Up"
	KeyDown     = "Down"
	KeyPageUp   = "Page_Up"
	KeyPageDown = "Page_Down"
	KeyDelete   = "Delete"
	KeyInsert   = "Insert"
)

// Handler receives capture events. Nil fields are skipped. Events are
// delivered serially from a single goroutine.
type Handler struct {
	OnChar      func(r rune)
	OnBackspace func()
	OnSpecial   func(key string, mods Modifiers)
}

// Capture is a source of keyboard events.
type Capture interface {
	// Start begins delivering events to h until ctx is done or Stop is called.
	Start(ctx context.Context, h Handler) error

	// Stop stops capture and waits for the reader to exit.
	Stop() error

	// BeginSuppress drops the next expected events, or fewer if
	// EndSuppress comes first. expected is the number of synthetic events
	// the caller is about to generate.
	BeginSuppress(expected int)

	// EndSuppress resumes delivery.
	EndSuppress()

	// Available reports whether capture can run with current permissions.
	Available() (bool, string)
}

var (
	// ErrNotAvailable is returned when keyboard capture isn't available.
	ErrNotAvailable = errors.New("keystroke: keyboard capture not available on this platform")

	// ErrAlreadyRunning is returned when Start is called while already running.
	ErrAlreadyRunning = errors.New("keystroke: capture already running")

	// ErrPermissionDenied is returned when no input device can be opened.
	ErrPermissionDenied = errors.New("keystroke: insufficient permissions to read input devices")
)

// Base provides running state, suppression and dispatch for
// implementations.
type Base struct {
	mu        sync.Mutex
	running   bool
	handler   Handler
	suppress  bool
	remaining int
	dropped   uint64
}

// BeginSuppress drops up to expected events.
func (b *Base) BeginSuppress(expected int) {
	b.mu.Lock()
	b.suppress = expected > 0
	b.remaining = max(expected, 0)
	b.mu.Unlock()
}

// EndSuppress stops dropping events.
func (b *Base) EndSuppress() {
	b.mu.Lock()
	b.suppress = false
	b.remaining = 0
	b.mu.Unlock()
}

// Suppressed reports whether events are currently dropped.
func (b *Base) Suppressed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.suppress
}

// Dropped returns the number of events dropped under suppression.
func (b *Base) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// SetRunning sets the running state and the handler events go to.
func (b *Base) SetRunning(running bool, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = running
	b.handler = h
}

// IsRunning returns the running state.
func (b *Base) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// admit returns the handler when the event should be delivered.
func (b *Base) admit() (Handler, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return Handler{}, false
	}
	if b.suppress {
		b.dropped++
		b.remaining--
		if b.remaining <= 0 {
			b.suppress = false
		}
		return Handler{}, false
	}
	return b.handler, true
}

// DispatchChar delivers a character unless suppressed.
func (b *Base) DispatchChar(r rune) {
	if h, ok := b.admit(); ok && h.OnChar != nil {
		h.OnChar(r)
	}
}

// DispatchBackspace delivers a backspace unless suppressed.
func (b *Base) DispatchBackspace() {
	if h, ok := b.admit(); ok && h.OnBackspace != nil {
		h.OnBackspace()
	}
}

// DispatchSpecial delivers a special key unless suppressed.
func (b *Base) DispatchSpecial(key string, mods Modifiers) {
	if h, ok := b.admit(); ok && h.OnSpecial != nil {
		h.OnSpecial(key, mods)
	}
}

// New creates a Capture for the current platform reading the given
// devices. With no devices, keyboards are discovered automatically.
func New(opts Options) Capture {
	return newPlatformCapture(opts)
}
