// Package store persists learned suppression rules and the correction
// journal in SQLite.
package store

// JournalKind identifies what produced a journal entry.
type JournalKind string

const (
	KindWord    JournalKind = "word"
	KindPhrase  JournalKind = "phrase"
	KindPolish  JournalKind = "polish"
	KindUndo    JournalKind = "undo"
	KindRethink JournalKind = "rethink"
)

// JournalEntry records one applied correction or its reversal.
type JournalEntry struct {
	ID          int64       `json:"id"`
	EntryID     string      `json:"entry_id"` // correction entry the record belongs to
	Kind        JournalKind `json:"kind"`
	Original    string      `json:"original"`
	Corrected   string      `json:"corrected"`
	Strategy    string      `json:"strategy,omitempty"`
	Confidence  float64     `json:"confidence,omitempty"`
	TimestampNs int64       `json:"timestamp_ns"`
}

// Rule is a learned per-pattern undo counter.
type Rule struct {
	Pattern    string
	UndoCount  int
	Suppressed bool
	UpdatedNs  int64
}
