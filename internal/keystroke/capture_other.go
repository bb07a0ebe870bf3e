//go:build !linux

package keystroke

import "context"

// StubCapture is used on unsupported platforms.
type StubCapture struct {
	Base
}

func newPlatformCapture(Options) Capture {
	return &StubCapture{}
}

// Available returns false on unsupported platforms.
func (s *StubCapture) Available() (bool, string) {
	return false, "keyboard capture not implemented for this platform"
}

// Start returns an error on unsupported platforms.
func (s *StubCapture) Start(context.Context, Handler) error {
	return ErrNotAvailable
}

// Stop is a no-op on unsupported platforms.
func (s *StubCapture) Stop() error {
	return nil
}
