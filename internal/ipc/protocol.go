// Package ipc is the control channel between a running kswitchd and the
// command line (or any local tool).
//
// Messages are framed with a fixed 16-byte header followed by a JSON
// payload. Requests carry a request ID that the response echoes, so a
// client may pipeline requests and still receive events on the same
// connection.
package ipc

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"kswitchd/internal/daemon"
	"kswitchd/internal/store"
)

const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x4B535743 // "KSWC"

	// HeaderSize is the size of the header in bytes.
	HeaderSize = 16

	// MaxPayload bounds a single message.
	MaxPayload = 1 << 20
)

// MessageType identifies the type of IPC message.
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing         MessageType = 0x0001
	MsgPong         MessageType = 0x0002
	MsgHandshake    MessageType = 0x0003
	MsgHandshakeAck MessageType = 0x0004
	MsgError        MessageType = 0x0005
	MsgOK           MessageType = 0x0006

	// Status (0x01xx)
	MsgStatusRequest  MessageType = 0x0100
	MsgStatusResponse MessageType = 0x0101

	// Correction commands (0x02xx)
	MsgUndo           MessageType = 0x0200
	MsgUndoResp       MessageType = 0x0201
	MsgRethink        MessageType = 0x0202
	MsgRethinkResp    MessageType = 0x0203
	MsgPolish         MessageType = 0x0204
	MsgPolishResp     MessageType = 0x0205
	MsgSetEnabled     MessageType = 0x0206
	MsgSetEnabledResp MessageType = 0x0207

	// Learned rules and journal (0x03xx)
	MsgListRules     MessageType = 0x0300
	MsgListRulesResp MessageType = 0x0301
	MsgClearRules    MessageType = 0x0302
	MsgJournal       MessageType = 0x0304
	MsgJournalResp   MessageType = 0x0305

	// Configuration (0x04xx)
	MsgReloadConfig MessageType = 0x0404

	// Event streaming (0x05xx)
	MsgSubscribe     MessageType = 0x0500
	MsgSubscribeResp MessageType = 0x0501
	MsgUnsubscribe   MessageType = 0x0502
	MsgEvent         MessageType = 0x0504
)

var typeNames = map[MessageType]string{
	MsgPing:           "ping",
	MsgPong:           "pong",
	MsgHandshake:      "handshake",
	MsgHandshakeAck:   "handshake_ack",
	MsgError:          "error",
	MsgOK:             "ok",
	MsgStatusRequest:  "status",
	MsgStatusResponse: "status_resp",
	MsgUndo:           "undo",
	MsgUndoResp:       "undo_resp",
	MsgRethink:        "rethink",
	MsgRethinkResp:    "rethink_resp",
	MsgPolish:         "polish",
	MsgPolishResp:     "polish_resp",
	MsgSetEnabled:     "set_enabled",
	MsgSetEnabledResp: "set_enabled_resp",
	MsgListRules:      "list_rules",
	MsgListRulesResp:  "list_rules_resp",
	MsgClearRules:     "clear_rules",
	MsgJournal:        "journal",
	MsgJournalResp:    "journal_resp",
	MsgReloadConfig:   "reload_config",
	MsgSubscribe:      "subscribe",
	MsgSubscribeResp:  "subscribe_resp",
	MsgUnsubscribe:    "unsubscribe",
	MsgEvent:          "event",
}

func (t MessageType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("MessageType(0x%04x)", uint16(t))
}

// Header is the fixed-size message header.
type Header struct {
	Magic     uint32
	Version   uint8
	Flags     uint8
	Type      MessageType
	RequestID uint32
	Length    uint32 // payload length, header excluded
}

// Header flags
const (
	FlagJSON uint8 = 0x04
)

var (
	// ErrBadMagic is returned for frames that are not ours.
	ErrBadMagic = errors.New("ipc: invalid magic number")
	// ErrPayloadTooLarge is returned for frames over MaxPayload.
	ErrPayloadTooLarge = errors.New("ipc: payload too large")
)

// Message wraps a header and payload.
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a new message with the given type and payload.
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Flags:     FlagJSON,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// NewResponse encodes v as the payload of a msgType message.
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}

// NewErrorMessage builds an error response.
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(&ErrorResponse{Code: code, Message: message})
	return NewMessage(MsgError, requestID, payload)
}

// Write writes the header to w.
func (h *Header) Write(w io.Writer) error {
	var buf [HeaderSize]byte
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf[:])
	return err
}

// ReadHeader reads and checks a header.
func ReadHeader(r io.Reader) (*Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}
	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("%w: %x", ErrBadMagic, h.Magic)
	}
	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("ipc: unsupported protocol version: %d", h.Version)
	}
	return h, nil
}

// Write writes the message in one call so frames never interleave.
func (m *Message) Write(w io.Writer) error {
	m.Header.Length = uint32(len(m.Payload))
	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(m.Payload))
	if err := m.Header.Write(&buf); err != nil {
		return err
	}
	buf.Write(m.Payload)
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadMessage reads one framed message.
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayload {
			return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Encode serializes a payload.
func Encode(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Decode deserializes a payload. An empty payload leaves v untouched.
func Decode(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// Error codes
const (
	ErrUnknown          = 1
	ErrInvalidRequest   = 2
	ErrNotFound         = 3
	ErrPermissionDenied = 4
	ErrInternalError    = 5
	ErrNothingToDo      = 6
	ErrNotRunning       = 7
)

// ErrorResponse is the payload of MsgError.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RemoteError is an ErrorResponse returned to a client as an error.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("ipc: daemon error %d: %s", e.Code, e.Message)
}

type HandshakeRequest struct {
	ClientName      string `json:"client_name"`
	ClientVersion   string `json:"client_version"`
	ProtocolVersion uint8  `json:"protocol_version"`
}

type HandshakeResponse struct {
	ServerVersion   string `json:"server_version"`
	ProtocolVersion uint8  `json:"protocol_version"`
	SessionID       string `json:"session_id"`
}

// StatusResponse is the daemon status plus process facts.
type StatusResponse struct {
	daemon.Status
	Version   string        `json:"version"`
	StartedAt time.Time     `json:"started_at"`
	Uptime    time.Duration `json:"uptime"`
	Clients   int           `json:"clients"`
}

// CorrectionResponse answers undo, rethink and polish. For undo, Original
// is the text that was removed and Corrected the text restored.
type CorrectionResponse struct {
	Applied   bool   `json:"applied"`
	Original  string `json:"original,omitempty"`
	Corrected string `json:"corrected,omitempty"`
}

// SetEnabledRequest sets the enabled flag. A nil Enabled toggles it.
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled,omitempty"`
}

type SetEnabledResponse struct {
	Enabled bool `json:"enabled"`
}

// Rule is one learned pattern.
type Rule struct {
	Pattern    string `json:"pattern"`
	UndoCount  int    `json:"undo_count"`
	Suppressed bool   `json:"suppressed"`
}

type ListRulesResponse struct {
	Rules []Rule `json:"rules"`
}

type JournalRequest struct {
	Limit int `json:"limit,omitempty"`
}

type JournalResponse struct {
	Entries []store.JournalEntry `json:"entries"`
}

// EventType identifies the type of streamed event.
type EventType uint16

const (
	EventCorrection    EventType = 0x0001
	EventSkipped       EventType = 0x0002
	EventStateChanged  EventType = 0x0003
	EventLayoutRequest EventType = 0x0004
	EventConfigChanged EventType = 0x0005
	EventShutdown      EventType = 0x0006
)

// AllEvents lists every event type, the default subscription.
var AllEvents = []EventType{
	EventCorrection, EventSkipped, EventStateChanged,
	EventLayoutRequest, EventConfigChanged, EventShutdown,
}

type SubscribeRequest struct {
	Events []EventType `json:"events"` // empty means all
}

type SubscribeResponse struct {
	SubscriptionID string `json:"subscription_id"`
}

// Event is the payload of MsgEvent.
type Event struct {
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Data      map[string]string `json:"data,omitempty"`
}
