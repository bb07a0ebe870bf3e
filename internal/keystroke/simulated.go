package keystroke

import "context"

// Simulated is a capture for testing that doesn't hook the real keyboard.
// Events are injected with Type, Backspace and Special.
type Simulated struct {
	Base
}

// NewSimulated creates a capture for testing.
func NewSimulated() *Simulated {
	return &Simulated{}
}

// Start begins delivering simulated events to h.
func (s *Simulated) Start(_ context.Context, h Handler) error {
	if s.IsRunning() {
		return ErrAlreadyRunning
	}
	s.SetRunning(true, h)
	return nil
}

// Stop stops the simulated capture.
func (s *Simulated) Stop() error {
	if !s.IsRunning() {
		return nil
	}
	s.SetRunning(false, Handler{})
	return nil
}

// Type delivers each rune of text as a character event.
func (s *Simulated) Type(text string) {
	for _, r := range text {
		s.DispatchChar(r)
	}
}

// Backspace delivers n backspace events.
func (s *Simulated) Backspace(n int) {
	for i := 0; i < n; i++ {
		s.DispatchBackspace()
	}
}

// Special delivers a special key event.
func (s *Simulated) Special(key string, mods Modifiers) {
	s.DispatchSpecial(key, mods)
}

// Available returns true (simulated is always available).
func (s *Simulated) Available() (bool, string) {
	return true, "simulated capture (for testing)"
}
