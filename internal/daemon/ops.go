package daemon

import (
	"context"
	"strings"
	"unicode/utf8"

	"kswitchd/internal/correction"
	"kswitchd/internal/layout"
	"kswitchd/internal/store"
	"kswitchd/internal/undo"
)

// Undo reverts the newest correction and teaches the rule store. It
// returns the reverted entry, or false when there is nothing to undo.
func (d *Daemon) Undo(ctx context.Context) (undo.Entry, bool) {
	d.mu.Lock()
	entry, ok := d.undo.Pop()
	if !ok {
		d.mu.Unlock()
		d.logger.Debug("nothing to undo")
		return undo.Entry{}, false
	}
	d.logger.Info("undoing correction", "corrected", entry.Corrected, "original", entry.Original)

	deleteCount := entry.CharCount
	text := entry.Original
	if entry.Trailing {
		deleteCount++
		text += " "
	}
	d.cancelPhraseLocked()
	d.clearPhraseLocked()
	d.last = nil

	d.finishLocked(ctx, &injection{
		op:          store.KindUndo,
		deleteCount: deleteCount,
		text:        text,
		journal: &store.JournalEntry{
			EntryID:   entry.ID,
			Kind:      store.KindUndo,
			Original:  entry.Original,
			Corrected: entry.Corrected,
		},
	})

	suppressed, err := d.rules.RecordUndo(ctx, entry.Original)
	if err != nil {
		d.logger.Warn("saving rules failed", "error", err)
	}
	if suppressed {
		d.logger.Info("pattern suppressed after repeated undo", "original", entry.Original)
	}
	d.observer.CorrectionApplied(store.KindUndo, "")
	return entry, true
}

// Rethink re-runs correction on the newest correction's original text and
// replaces it in place when the answer changed. With an empty history the
// in-progress word is flushed and corrected instead.
func (d *Daemon) Rethink(ctx context.Context) (string, bool) {
	entry, ok := d.undo.Peek()
	if !ok {
		d.mu.Lock()
		word, flushed := d.buf.ForceComplete()
		if !flushed {
			d.mu.Unlock()
			return "", false
		}
		d.setStateLocked(StateWordFinalized)
		before := d.undo.Len()
		d.correctWordLocked(word, false)
		if top, ok := d.undo.Peek(); ok && d.undo.Len() > before {
			return top.Corrected, true
		}
		return "", false
	}

	d.mu.Lock()
	surrounding := entry.Context
	epoch := d.epoch
	d.mu.Unlock()

	res, ok := d.runBounded("rethink", func(ctx context.Context) (correction.Result, bool) {
		return d.engine.Correct(ctx, entry.Original, surrounding)
	})
	if !ok || res.Text == entry.Corrected {
		return "", false
	}

	d.mu.Lock()
	if d.epoch != epoch {
		d.mu.Unlock()
		return "", false
	}
	if !d.undo.Update(entry.ID, res.Text) {
		d.mu.Unlock()
		return "", false
	}
	d.logger.Info("rethinking correction", "original", entry.Original,
		"corrected", res.Text, "previous", entry.Corrected)

	d.finalized[strings.ToLower(res.Text)] = true
	if d.last != nil && d.last.corrected == entry.Corrected {
		d.last.corrected = res.Text
		d.last.at = d.now()
	}

	deleteCount := entry.CharCount
	text := res.Text
	if entry.Trailing {
		deleteCount++
		text += " "
	}
	d.observer.CorrectionApplied(store.KindRethink, string(res.Strategy))
	d.finishLocked(ctx, &injection{
		op:          store.KindRethink,
		deleteCount: deleteCount,
		text:        text,
		journal: &store.JournalEntry{
			EntryID:    entry.ID,
			Kind:       store.KindRethink,
			Original:   entry.Original,
			Corrected:  res.Text,
			Strategy:   string(res.Strategy),
			Confidence: res.Confidence,
		},
	})
	return res.Text, true
}

// Polish runs the deterministic cleanup over the retained line and
// replaces it. It never calls a semantic provider.
func (d *Daemon) Polish(ctx context.Context) (string, bool) {
	d.mu.Lock()
	line := d.buf.Context()
	threshold := d.cfg.Threshold
	d.mu.Unlock()
	if strings.TrimSpace(line) == "" {
		d.logger.Debug("nothing to polish")
		return "", false
	}

	polished, changed := d.engine.Polish(line, threshold)

	d.mu.Lock()
	if !changed || d.buf.Context() != line {
		d.mu.Unlock()
		return "", false
	}
	d.logger.Info("polishing line", "original", line, "corrected", polished)

	entry := undo.NewEntry(line, polished, line)
	d.undo.Push(entry)
	d.last = &lastCorrection{original: line, corrected: lastField(polished), at: d.now()}

	d.cancelPhraseLocked()
	d.handoffLayout = d.requestLayout(polished)
	d.setStateLocked(StateHandoff)
	d.buf.Clear()
	d.clearPhraseLocked()
	clear(d.finalized)
	for _, w := range strings.Fields(polished) {
		d.finalized[strings.ToLower(w)] = true
	}
	d.epoch++

	d.observer.CorrectionApplied(store.KindPolish, "polish")
	d.finishLocked(ctx, &injection{
		op:          store.KindPolish,
		deleteCount: utf8.RuneCountInString(line),
		text:        polished,
		journal: &store.JournalEntry{
			EntryID:   entry.ID,
			Kind:      store.KindPolish,
			Original:  line,
			Corrected: polished,
			Strategy:  "polish",
		},
	})
	return polished, true
}

func lastField(s string) string {
	f := strings.Fields(s)
	if len(f) == 0 {
		return s
	}
	return f[len(f)-1]
}

// Status is a point-in-time view of the daemon.
type Status struct {
	Running       bool      `json:"running"`
	Enabled       bool      `json:"enabled"`
	State         string    `json:"state"`
	UndoDepth     int       `json:"undo_depth"`
	PhraseWords   int       `json:"phrase_words"`
	Finalized     int       `json:"finalized_words"`
	Suppressed    int       `json:"suppressed_patterns"`
	HandoffLayout layout.ID `json:"handoff_layout,omitempty"`
	Threshold     float64   `json:"threshold"`
	Provider      string    `json:"provider"`
	Languages     []string  `json:"languages"`
}

// Status reports the current state.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	st := Status{
		Running:       d.running,
		Enabled:       d.cfg.Enabled,
		State:         d.state.String(),
		PhraseWords:   len(d.phrase),
		Finalized:     len(d.finalized),
		HandoffLayout: d.handoffLayout,
		Threshold:     d.cfg.Threshold,
	}
	d.mu.Unlock()

	st.UndoDepth = d.undo.Len()
	st.Suppressed = len(d.rules.Suppressed())
	st.Provider = d.engine.ProviderName()
	for _, l := range d.engine.Checker().Languages() {
		st.Languages = append(st.Languages, string(l))
	}
	return st
}
