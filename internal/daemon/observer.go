package daemon

import (
	"time"

	"kswitchd/internal/layout"
	"kswitchd/internal/store"
)

type nopObserver struct{}

func (nopObserver) CorrectionApplied(store.JournalKind, string) {}
func (nopObserver) CorrectionSkipped(string)                    {}
func (nopObserver) CorrectionTimedOut()                         {}
func (nopObserver) CorrectionDuration(time.Duration)            {}
func (nopObserver) StateChanged(State)                          {}
func (nopObserver) LayoutRequested(layout.ID)                   {}

// MultiObserver fans events out to several observers.
type MultiObserver []Observer

func (m MultiObserver) CorrectionApplied(kind store.JournalKind, strategy string) {
	for _, o := range m {
		o.CorrectionApplied(kind, strategy)
	}
}

func (m MultiObserver) CorrectionSkipped(reason string) {
	for _, o := range m {
		o.CorrectionSkipped(reason)
	}
}

func (m MultiObserver) CorrectionTimedOut() {
	for _, o := range m {
		o.CorrectionTimedOut()
	}
}

func (m MultiObserver) CorrectionDuration(d time.Duration) {
	for _, o := range m {
		o.CorrectionDuration(d)
	}
}

func (m MultiObserver) StateChanged(s State) {
	for _, o := range m {
		o.StateChanged(s)
	}
}

func (m MultiObserver) LayoutRequested(id layout.ID) {
	for _, o := range m {
		o.LayoutRequested(id)
	}
}
