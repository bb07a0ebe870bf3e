package ipc

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"kswitchd/internal/daemon"
	"kswitchd/internal/rules"
	"kswitchd/internal/store"
	"kswitchd/internal/undo"
)

// Controller is the part of the daemon the control socket drives.
type Controller interface {
	Status() daemon.Status
	Undo(ctx context.Context) (undo.Entry, bool)
	Rethink(ctx context.Context) (string, bool)
	Polish(ctx context.Context) (string, bool)
	Toggle() bool
}

// JournalReader reads recent correction journal entries.
type JournalReader interface {
	RecentJournal(ctx context.Context, limit int) ([]store.JournalEntry, error)
}

// DaemonHandler answers control requests from a Controller and its stores.
type DaemonHandler struct {
	Daemon  Controller
	Rules   *rules.Store  // optional
	Journal JournalReader // optional
	// Reload re-reads configuration. Optional.
	Reload  func(ctx context.Context) error
	Version string

	server *Server
	logger *slog.Logger
}

// NewDaemonHandler creates a handler; Attach links it to its server for
// status reporting.
func NewDaemonHandler(d Controller, version string) *DaemonHandler {
	return &DaemonHandler{
		Daemon:  d,
		Version: version,
		logger:  slog.Default().With("component", "ipc"),
	}
}

// Attach records the server the handler is serving on.
func (h *DaemonHandler) Attach(s *Server) {
	h.server = s
}

const defaultJournalLimit = 20

// HandleMessage implements Handler.
func (h *DaemonHandler) HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	id := msg.Header.RequestID
	h.logger.Debug("request", "type", msg.Header.Type, "client", client.ID)

	switch msg.Header.Type {
	case MsgStatusRequest:
		resp := &StatusResponse{Status: h.Daemon.Status(), Version: h.Version}
		if h.server != nil {
			resp.StartedAt = h.server.StartedAt()
			resp.Uptime = time.Since(resp.StartedAt).Truncate(time.Second)
			resp.Clients = h.server.ClientCount()
		}
		return NewResponse(MsgStatusResponse, id, resp)

	case MsgUndo:
		entry, ok := h.Daemon.Undo(ctx)
		resp := &CorrectionResponse{Applied: ok}
		if ok {
			resp.Original = entry.Corrected
			resp.Corrected = entry.Original
		}
		return NewResponse(MsgUndoResp, id, resp)

	case MsgRethink:
		text, ok := h.Daemon.Rethink(ctx)
		return NewResponse(MsgRethinkResp, id, &CorrectionResponse{Applied: ok, Corrected: text})

	case MsgPolish:
		text, ok := h.Daemon.Polish(ctx)
		return NewResponse(MsgPolishResp, id, &CorrectionResponse{Applied: ok, Corrected: text})

	case MsgSetEnabled:
		var req SetEnabledRequest
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(id, ErrInvalidRequest, "invalid set_enabled request"), nil
		}
		enabled := h.Daemon.Status().Enabled
		if req.Enabled == nil || *req.Enabled != enabled {
			enabled = h.Daemon.Toggle()
		}
		return NewResponse(MsgSetEnabledResp, id, &SetEnabledResponse{Enabled: enabled})

	case MsgListRules:
		if h.Rules == nil {
			return NewErrorMessage(id, ErrNotFound, "no rule store"), nil
		}
		snap := h.Rules.Snapshot()
		suppressed := make(map[string]bool, len(snap.Suppressed))
		for _, p := range snap.Suppressed {
			suppressed[p] = true
		}
		resp := &ListRulesResponse{Rules: make([]Rule, 0, len(snap.UndoCounts))}
		for _, p := range sortedPatterns(snap) {
			resp.Rules = append(resp.Rules, Rule{Pattern: p, UndoCount: snap.UndoCounts[p], Suppressed: suppressed[p]})
		}
		return NewResponse(MsgListRulesResp, id, resp)

	case MsgClearRules:
		if h.Rules == nil {
			return NewErrorMessage(id, ErrNotFound, "no rule store"), nil
		}
		if err := h.Rules.Clear(ctx); err != nil {
			return nil, err
		}
		return NewMessage(MsgOK, id, nil), nil

	case MsgJournal:
		if h.Journal == nil {
			return NewErrorMessage(id, ErrNotFound, "journal disabled"), nil
		}
		var req JournalRequest
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(id, ErrInvalidRequest, "invalid journal request"), nil
		}
		if req.Limit <= 0 {
			req.Limit = defaultJournalLimit
		}
		entries, err := h.Journal.RecentJournal(ctx, req.Limit)
		if err != nil {
			return nil, err
		}
		return NewResponse(MsgJournalResp, id, &JournalResponse{Entries: entries})

	case MsgReloadConfig:
		if h.Reload == nil {
			return NewErrorMessage(id, ErrNotFound, "reload not supported"), nil
		}
		if err := h.Reload(ctx); err != nil {
			return NewErrorMessage(id, ErrInvalidRequest, err.Error()), nil
		}
		return NewMessage(MsgOK, id, nil), nil
	}

	return NewErrorMessage(id, ErrInvalidRequest, "unknown message type "+msg.Header.Type.String()), nil
}

// sortedPatterns lists every pattern with a counter or a suppression.
func sortedPatterns(snap rules.Snapshot) []string {
	seen := make(map[string]bool, len(snap.UndoCounts)+len(snap.Suppressed))
	for p := range snap.UndoCounts {
		seen[p] = true
	}
	for _, p := range snap.Suppressed {
		seen[p] = true
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
