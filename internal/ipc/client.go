package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
)

var (
	ErrNotConnected     = errors.New("ipc: not connected to daemon")
	ErrConnectionLost   = errors.New("ipc: connection to daemon lost")
	ErrDaemonNotRunning = errors.New("ipc: daemon is not running")
)

// EventHandler is called for every event on a subscribed connection. It
// runs on the reader goroutine and must not issue calls on the same client.
type EventHandler func(event *Event)

// IPCClient talks to a running daemon over its control socket.
type IPCClient struct {
	conn    net.Conn
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[uint32]chan *Message
	nextReqID atomic.Uint32
	closed    atomic.Bool

	eventMu sync.RWMutex
	onEvent EventHandler

	done chan struct{}
}

// Dial connects to the daemon at path and performs the handshake.
func Dial(ctx context.Context, path, clientName string) (*IPCClient, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		if errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w: %s", ErrDaemonNotRunning, path)
		}
		return nil, fmt.Errorf("ipc: connect %s: %w", path, err)
	}

	c := &IPCClient{
		conn:    conn,
		pending: make(map[uint32]chan *Message),
		done:    make(chan struct{}),
	}
	go c.readLoop()

	var ack HandshakeResponse
	req := &HandshakeRequest{ClientName: clientName, ProtocolVersion: ProtocolVersion}
	if err := c.call(ctx, MsgHandshake, req, MsgHandshakeAck, &ack); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the connection. Pending calls fail with ErrConnectionLost.
func (c *IPCClient) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := c.conn.Close()
	<-c.done
	return err
}

// Done is closed when the connection ends.
func (c *IPCClient) Done() <-chan struct{} {
	return c.done
}

func (c *IPCClient) readLoop() {
	defer func() {
		c.pendingMu.Lock()
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		close(c.done)
		c.pendingMu.Unlock()
	}()

	for {
		msg, err := ReadMessage(c.conn)
		if err != nil {
			return
		}
		if msg.Header.Type == MsgEvent {
			c.dispatchEvent(msg)
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[msg.Header.RequestID]
		delete(c.pending, msg.Header.RequestID)
		c.pendingMu.Unlock()
		if ok {
			ch <- msg
		}
	}
}

func (c *IPCClient) dispatchEvent(msg *Message) {
	c.eventMu.RLock()
	h := c.onEvent
	c.eventMu.RUnlock()
	if h == nil {
		return
	}
	var ev Event
	if err := Decode(msg.Payload, &ev); err == nil {
		h(&ev)
	}
}

// Call sends a request and decodes the response into resp, which may be
// nil. A MsgError reply is returned as a *RemoteError.
func (c *IPCClient) Call(ctx context.Context, t MessageType, req, resp any) (*Message, error) {
	payload, err := Encode(req)
	if err != nil {
		return nil, fmt.Errorf("ipc: encode request: %w", err)
	}

	id := c.nextReqID.Add(1)
	ch := make(chan *Message, 1)

	c.pendingMu.Lock()
	select {
	case <-c.done:
		c.pendingMu.Unlock()
		return nil, ErrConnectionLost
	default:
	}
	c.pending[id] = ch
	c.pendingMu.Unlock()

	c.writeMu.Lock()
	err = NewMessage(t, id, payload).Write(c.conn)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("ipc: send %s: %w", t, err)
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, ErrConnectionLost
		}
		if msg.Header.Type == MsgError {
			var er ErrorResponse
			_ = Decode(msg.Payload, &er)
			return msg, &RemoteError{Code: er.Code, Message: er.Message}
		}
		if resp != nil {
			if err := Decode(msg.Payload, resp); err != nil {
				return msg, fmt.Errorf("ipc: decode %s: %w", msg.Header.Type, err)
			}
		}
		return msg, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

func (c *IPCClient) forget(id uint32) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *IPCClient) call(ctx context.Context, t MessageType, req any, want MessageType, resp any) error {
	msg, err := c.Call(ctx, t, req, resp)
	if err != nil {
		return err
	}
	if msg.Header.Type != want {
		return fmt.Errorf("ipc: unexpected reply %s to %s", msg.Header.Type, t)
	}
	return nil
}

// Ping checks the daemon answers.
func (c *IPCClient) Ping(ctx context.Context) error {
	return c.call(ctx, MsgPing, nil, MsgPong, nil)
}

// Status returns the daemon status.
func (c *IPCClient) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call(ctx, MsgStatusRequest, nil, MsgStatusResponse, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Undo reverts the newest correction.
func (c *IPCClient) Undo(ctx context.Context) (*CorrectionResponse, error) {
	var resp CorrectionResponse
	if err := c.call(ctx, MsgUndo, nil, MsgUndoResp, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Rethink re-runs the newest correction.
func (c *IPCClient) Rethink(ctx context.Context) (*CorrectionResponse, error) {
	var resp CorrectionResponse
	if err := c.call(ctx, MsgRethink, nil, MsgRethinkResp, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Polish cleans up the current line.
func (c *IPCClient) Polish(ctx context.Context) (*CorrectionResponse, error) {
	var resp CorrectionResponse
	if err := c.call(ctx, MsgPolish, nil, MsgPolishResp, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetEnabled sets the enabled flag, or toggles it when enabled is nil, and
// returns the new value.
func (c *IPCClient) SetEnabled(ctx context.Context, enabled *bool) (bool, error) {
	var resp SetEnabledResponse
	if err := c.call(ctx, MsgSetEnabled, &SetEnabledRequest{Enabled: enabled}, MsgSetEnabledResp, &resp); err != nil {
		return false, err
	}
	return resp.Enabled, nil
}

// ListRules returns the learned patterns.
func (c *IPCClient) ListRules(ctx context.Context) ([]Rule, error) {
	var resp ListRulesResponse
	if err := c.call(ctx, MsgListRules, nil, MsgListRulesResp, &resp); err != nil {
		return nil, err
	}
	return resp.Rules, nil
}

// ClearRules forgets every learned pattern.
func (c *IPCClient) ClearRules(ctx context.Context) error {
	return c.call(ctx, MsgClearRules, nil, MsgOK, nil)
}

// Journal returns up to limit recent journal entries, newest first.
func (c *IPCClient) Journal(ctx context.Context, limit int) (*JournalResponse, error) {
	var resp JournalResponse
	if err := c.call(ctx, MsgJournal, &JournalRequest{Limit: limit}, MsgJournalResp, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reload asks the daemon to re-read its configuration.
func (c *IPCClient) Reload(ctx context.Context) error {
	return c.call(ctx, MsgReloadConfig, nil, MsgOK, nil)
}

// Subscribe delivers events of the given types (all when empty) to h until
// the connection closes.
func (c *IPCClient) Subscribe(ctx context.Context, h EventHandler, types ...EventType) error {
	c.eventMu.Lock()
	c.onEvent = h
	c.eventMu.Unlock()
	return c.call(ctx, MsgSubscribe, &SubscribeRequest{Events: types}, MsgSubscribeResp, nil)
}
