package ipc

import (
	"strconv"
	"time"

	"kswitchd/internal/daemon"
	"kswitchd/internal/layout"
	"kswitchd/internal/store"
)

// EventObserver turns daemon events into broadcasts on the control socket.
// It never carries text, only kinds and labels.
type EventObserver struct {
	server *Server
}

// NewEventObserver creates an observer broadcasting on s.
func NewEventObserver(s *Server) *EventObserver {
	return &EventObserver{server: s}
}

func (o *EventObserver) emit(t EventType, data map[string]string) {
	o.server.Broadcast(&Event{Type: t, Timestamp: time.Now(), Data: data})
}

func (o *EventObserver) CorrectionApplied(kind store.JournalKind, strategy string) {
	o.emit(EventCorrection, map[string]string{"kind": string(kind), "strategy": strategy})
}

func (o *EventObserver) CorrectionSkipped(reason string) {
	o.emit(EventSkipped, map[string]string{"reason": reason})
}

func (o *EventObserver) CorrectionTimedOut() {
	o.emit(EventSkipped, map[string]string{"reason": "timeout"})
}

func (o *EventObserver) CorrectionDuration(time.Duration) {}

func (o *EventObserver) StateChanged(s daemon.State) {
	o.emit(EventStateChanged, map[string]string{"state": s.String()})
}

func (o *EventObserver) LayoutRequested(id layout.ID) {
	o.emit(EventLayoutRequest, map[string]string{"layout": string(id)})
}

// ConfigChanged announces a configuration reload.
func (o *EventObserver) ConfigChanged(enabled bool) {
	o.emit(EventConfigChanged, map[string]string{"enabled": strconv.FormatBool(enabled)})
}

var _ daemon.Observer = (*EventObserver)(nil)
