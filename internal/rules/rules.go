// Package rules learns which patterns the user does not want corrected.
//
// Every undo of a correction increments a counter for the original text.
// Once a pattern has been undone SuppressAfter times it is suppressed
// permanently, until the rules are explicitly cleared. The state is saved
// through a Backend after every change.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// SuppressAfter is the undo count at which a pattern becomes suppressed.
const SuppressAfter = 3

// Snapshot is the persisted rule state.
type Snapshot struct {
	UndoCounts map[string]int `json:"undo_counts"`
	Suppressed []string       `json:"suppressed"`
}

// Backend persists snapshots.
type Backend interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, s Snapshot) error
	Close() error
}

// Store holds the rule state in memory and writes through to a Backend.
// It is safe for concurrent use.
type Store struct {
	backend Backend
	logger  *slog.Logger

	mu         sync.RWMutex
	counts     map[string]int
	suppressed map[string]bool
}

// Normalize returns the lookup key for pattern.
func Normalize(pattern string) string {
	return strings.ToLower(strings.TrimSpace(pattern))
}

// Open loads the rule state from backend. A load failure is logged and the
// store starts empty; later saves still go to the backend.
func Open(ctx context.Context, backend Backend) *Store {
	s := &Store{
		backend:    backend,
		logger:     slog.Default().With("component", "rules"),
		counts:     make(map[string]int),
		suppressed: make(map[string]bool),
	}
	snap, err := backend.Load(ctx)
	if err != nil {
		s.logger.Warn("load rules failed, starting empty", "error", err)
		return s
	}
	s.apply(snap)
	return s
}

func (s *Store) apply(snap Snapshot) {
	for p, n := range snap.UndoCounts {
		if k := Normalize(p); k != "" && n > s.counts[k] {
			s.counts[k] = n
		}
	}
	for _, p := range snap.Suppressed {
		if k := Normalize(p); k != "" {
			s.suppressed[k] = true
		}
	}
}

// RecordUndo counts one undo of pattern and reports whether the pattern is
// now suppressed. The in-memory state is updated even when the save fails.
func (s *Store) RecordUndo(ctx context.Context, pattern string) (bool, error) {
	key := Normalize(pattern)
	if key == "" {
		return false, nil
	}

	s.mu.Lock()
	s.counts[key]++
	if s.counts[key] >= SuppressAfter {
		s.suppressed[key] = true
	}
	suppressed := s.suppressed[key]
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.backend.Save(ctx, snap); err != nil {
		return suppressed, fmt.Errorf("save rules: %w", err)
	}
	return suppressed, nil
}

// IsSuppressed reports whether pattern is permanently suppressed.
func (s *Store) IsSuppressed(pattern string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.suppressed[Normalize(pattern)]
}

// UndoCount returns how many times pattern has been undone.
func (s *Store) UndoCount(pattern string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[Normalize(pattern)]
}

// Suppressed returns the suppressed patterns, sorted.
func (s *Store) Suppressed() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.suppressed)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	counts := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		counts[k] = v
	}
	return Snapshot{UndoCounts: counts, Suppressed: sortedKeys(s.suppressed)}
}

// Merge folds snap into the current state, keeping the larger counter for
// patterns present in both, and saves.
func (s *Store) Merge(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	s.apply(snap)
	for k, n := range s.counts {
		if n >= SuppressAfter {
			s.suppressed[k] = true
		}
	}
	out := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.backend.Save(ctx, out); err != nil {
		return fmt.Errorf("save rules: %w", err)
	}
	return nil
}

// Clear forgets every counter and suppression and saves the empty state.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.counts = make(map[string]int)
	s.suppressed = make(map[string]bool)
	out := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.backend.Save(ctx, out); err != nil {
		return fmt.Errorf("save rules: %w", err)
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
