// Package undo keeps a bounded history of applied corrections.
package undo

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity is the number of entries kept before the oldest is evicted.
const DefaultCapacity = 50

// Entry is one applied correction.
type Entry struct {
	ID        string
	Original  string
	Corrected string
	// CharCount is the length of Corrected in characters.
	CharCount int
	// Context is the text around the correction when it was made.
	Context string
	Phrase  bool
	// Trailing is set when a boundary character was typed after Corrected.
	Trailing  bool
	CreatedAt time.Time
}

// NewEntry returns an entry with a fresh ID.
func NewEntry(original, corrected, context string) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Original:  original,
		Corrected: corrected,
		CharCount: len([]rune(corrected)),
		Context:   context,
		CreatedAt: time.Now(),
	}
}

// Stack is a bounded LIFO. It is safe for concurrent use.
type Stack struct {
	mu      sync.Mutex
	cap     int
	entries []Entry
}

// New returns a stack holding at most capacity entries.
func New(capacity int) *Stack {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Stack{cap: capacity}
}

// Push adds e, silently evicting the oldest entry when full.
func (s *Stack) Push(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == s.cap {
		copy(s.entries, s.entries[1:])
		s.entries = s.entries[:len(s.entries)-1]
	}
	s.entries = append(s.entries, e)
}

// Pop removes and returns the newest entry.
func (s *Stack) Pop() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	e := s.entries[len(s.entries)-1]
	s.entries = s.entries[:len(s.entries)-1]
	return e, true
}

// Peek returns the newest entry without removing it.
func (s *Stack) Peek() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	return s.entries[len(s.entries)-1], true
}

// Update replaces the corrected text of the entry with the given ID.
func (s *Stack) Update(id, corrected string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].ID == id {
			s.entries[i].Corrected = corrected
			s.entries[i].CharCount = len([]rune(corrected))
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear drops every entry.
func (s *Stack) Clear() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}
