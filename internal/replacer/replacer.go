// Package replacer deletes text before the cursor and types its
// replacement into the focused window.
package replacer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Replacer deletes deleteCount characters before the cursor and types text.
type Replacer interface {
	ReplaceText(ctx context.Context, deleteCount int, text string) error
}

// Suppressor is the part of a keyboard capture that can ignore the
// replacer's own synthetic key events.
type Suppressor interface {
	BeginSuppress(expected int)
	EndSuppress()
}

// ErrToolNotFound is returned when the injection tool is not installed.
var ErrToolNotFound = errors.New("replacer: injection tool not found")

// maxKeysPerCall bounds the number of key names passed to one xdotool
// invocation.
const maxKeysPerCall = 64

// Xdotool injects key events through the xdotool command.
type Xdotool struct {
	path    string
	timeout time.Duration
	logger  *slog.Logger
}

// NewXdotool locates tool (usually "xdotool") on PATH.
func NewXdotool(tool string) (*Xdotool, error) {
	if tool == "" {
		tool = "xdotool"
	}
	path, err := exec.LookPath(tool)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, tool)
	}
	return &Xdotool{
		path:    path,
		timeout: 2 * time.Second,
		logger:  slog.Default().With("component", "replacer"),
	}, nil
}

// ReplaceText sends backspaces then types text.
func (x *Xdotool) ReplaceText(ctx context.Context, deleteCount int, text string) error {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	x.logger.Debug("replacing text", "delete", deleteCount, "runes", utf8.RuneCountInString(text))
	for deleteCount > 0 {
		n := min(deleteCount, maxKeysPerCall)
		args := []string{"key", "--clearmodifiers", "--delay", "0"}
		for i := 0; i < n; i++ {
			args = append(args, "BackSpace")
		}
		if err := x.run(ctx, args...); err != nil {
			return fmt.Errorf("send backspaces: %w", err)
		}
		deleteCount -= n
	}

	if text == "" {
		return nil
	}
	if err := x.run(ctx, "type", "--clearmodifiers", "--delay", "0", "--", text); err != nil {
		return fmt.Errorf("type text: %w", err)
	}
	return nil
}

func (x *Xdotool) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, x.path, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%s %s: %w: %s", x.path, args[0], err, msg)
		}
		return fmt.Errorf("%s %s: %w", x.path, args[0], err)
	}
	return nil
}

// Unavailable stands in for a missing injection tool. Every call fails with
// ErrToolNotFound.
type Unavailable struct {
	Tool string
}

func (u Unavailable) ReplaceText(context.Context, int, string) error {
	return fmt.Errorf("%w: %s", ErrToolNotFound, u.Tool)
}

// Suppressing wraps a Replacer so the capture ignores the injected events.
// The window opens before injection and always closes after it.
type Suppressing struct {
	next Replacer
	sup  Suppressor
}

// WithSuppression returns r wrapped with a suppression window on sup.
func WithSuppression(r Replacer, sup Suppressor) *Suppressing {
	return &Suppressing{next: r, sup: sup}
}

// ExpectedEvents is the number of key presses a replacement generates.
func ExpectedEvents(deleteCount int, text string) int {
	return deleteCount + utf8.RuneCountInString(text)
}

func (s *Suppressing) ReplaceText(ctx context.Context, deleteCount int, text string) error {
	s.sup.BeginSuppress(ExpectedEvents(deleteCount, text))
	defer s.sup.EndSuppress()
	return s.next.ReplaceText(ctx, deleteCount, text)
}

// Call is one recorded replacement.
type Call struct {
	DeleteCount int
	Text        string
}

// Recorder records replacements instead of injecting them. It can apply
// them to an in-memory document to check the visible result.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	doc   []rune
	err   error
}

// NewRecorder returns a Recorder over an empty document.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Fail makes subsequent calls return err. A nil err restores success.
func (r *Recorder) Fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Typed appends user-typed text to the document.
func (r *Recorder) Typed(text string) {
	r.mu.Lock()
	r.doc = append(r.doc, []rune(text)...)
	r.mu.Unlock()
}

func (r *Recorder) ReplaceText(_ context.Context, deleteCount int, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{DeleteCount: deleteCount, Text: text})
	if r.err != nil {
		return r.err
	}
	n := min(deleteCount, len(r.doc))
	r.doc = append(r.doc[:len(r.doc)-n], []rune(text)...)
	return nil
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Document returns the current document text.
func (r *Recorder) Document() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.doc)
}
