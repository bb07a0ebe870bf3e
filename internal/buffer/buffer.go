// Package buffer accumulates typed characters into words and keeps the
// current line for context.
package buffer

import (
	"strings"
)

// Boundaries is the set of characters that end a word.
const Boundaries = " \t\n.,;:!?()[]{}\"'/\\-=+@#$%^&*~`<>|"

// IsBoundary reports whether r ends a word.
func IsBoundary(r rune) bool {
	return strings.ContainsRune(Boundaries, r)
}

// Buffer holds the word under construction and the segments of the current
// line that precede it. It is not safe for concurrent use; the daemon
// serializes access under its own lock.
type Buffer struct {
	word []rune
	// line alternates completed words and the boundary that ended them.
	line         []string
	lastBoundary rune
}

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{lastBoundary: ' '}
}

// Add appends r. When r is a boundary the in-progress word is completed
// and returned; an empty completed word reports false.
func (b *Buffer) Add(r rune) (string, bool) {
	if !IsBoundary(r) {
		b.word = append(b.word, r)
		return "", false
	}

	word := strings.TrimSpace(string(b.word))
	b.line = append(b.line, string(b.word), string(r))
	b.word = b.word[:0]
	b.lastBoundary = r
	if word == "" {
		return "", false
	}
	return word, true
}

// Backspace removes the last character of the in-progress word, or when the
// word is empty, the last line segment.
func (b *Buffer) Backspace() {
	if len(b.word) > 0 {
		b.word = b.word[:len(b.word)-1]
		return
	}
	if len(b.line) > 0 {
		b.line = b.line[:len(b.line)-1]
	}
}

// Word returns the in-progress word.
func (b *Buffer) Word() string { return string(b.word) }

// WordLen returns the in-progress word length in characters.
func (b *Buffer) WordLen() int { return len(b.word) }

// Context returns the retained line including the in-progress word.
func (b *Buffer) Context() string {
	return b.Line() + string(b.word)
}

// Line returns the retained line without the in-progress word.
func (b *Buffer) Line() string {
	return strings.Join(b.line, "")
}

// LastBoundary returns the boundary character that completed the most
// recent word, or a space if none has been seen since the last Clear.
func (b *Buffer) LastBoundary() rune { return b.lastBoundary }

// Clear resets the buffer entirely.
func (b *Buffer) Clear() {
	b.word = b.word[:0]
	b.line = b.line[:0]
	b.lastBoundary = ' '
}

// ClearWord drops the in-progress word only.
func (b *Buffer) ClearWord() {
	b.word = b.word[:0]
}

// ForceComplete flushes the in-progress word into the line as if a boundary
// had arrived, without recording one.
func (b *Buffer) ForceComplete() (string, bool) {
	if len(b.word) == 0 {
		return "", false
	}
	word := string(b.word)
	b.line = append(b.line, word)
	b.word = b.word[:0]
	return word, true
}
