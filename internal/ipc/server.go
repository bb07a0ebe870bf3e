package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Handler processes IPC messages the server does not handle itself.
type Handler interface {
	HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error)
}

// HandlerFunc is a function that implements Handler.
type HandlerFunc func(ctx context.Context, client *Client, msg *Message) (*Message, error)

func (f HandlerFunc) HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	return f(ctx, client, msg)
}

// Client is a connected peer as seen by the server.
type Client struct {
	ID          string
	Name        string
	Version     string
	ConnectedAt time.Time
	Peer        *PeerCredentials // nil when the platform cannot report it

	conn    net.Conn
	writeMu sync.Mutex
	events  map[EventType]bool // nil when not subscribed
}

// ServerConfig configures the IPC server.
type ServerConfig struct {
	SocketPath     string
	Version        string
	Permissions    os.FileMode
	IdleTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxConnections int
	// AllowOtherUsers accepts peers running as a different uid.
	AllowOtherUsers bool
}

// DefaultServerConfig returns defaults for a socket at path.
func DefaultServerConfig(path string) ServerConfig {
	return ServerConfig{
		SocketPath:     path,
		Version:        "dev",
		Permissions:    0600,
		IdleTimeout:    5 * time.Minute,
		WriteTimeout:   5 * time.Second,
		MaxConnections: 16,
	}
}

// Server accepts control connections on a Unix socket.
type Server struct {
	cfg     ServerConfig
	handler Handler
	logger  *slog.Logger

	mu        sync.RWMutex
	listener  net.Listener
	clients   map[string]*Client
	startedAt time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	nextEventID atomic.Uint32
	eventChan   chan *Event
}

var (
	// ErrSocketInUse is returned when another daemon answers on the socket.
	ErrSocketInUse = errors.New("ipc: socket already in use")
)

// NewServer creates a server. Start must be called to listen.
func NewServer(cfg ServerConfig, handler Handler) *Server {
	if cfg.Permissions == 0 {
		cfg.Permissions = 0600
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 16
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:       cfg,
		handler:   handler,
		logger:    slog.Default().With("component", "ipc"),
		clients:   make(map[string]*Client),
		ctx:       ctx,
		cancel:    cancel,
		eventChan: make(chan *Event, 64),
	}
}

// SetHandler replaces the handler. It must be called before Start.
func (s *Server) SetHandler(h Handler) {
	s.handler = h
}

// Start binds the socket and begins accepting connections.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0700); err != nil {
		return fmt.Errorf("ipc: create socket directory: %w", err)
	}
	if IsSocketListening(s.cfg.SocketPath) {
		return fmt.Errorf("%w: %s", ErrSocketInUse, s.cfg.SocketPath)
	}
	if err := CleanupSocket(s.cfg.SocketPath); err != nil {
		return fmt.Errorf("ipc: remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("ipc: listen on socket: %w", err)
	}
	if err := os.Chmod(s.cfg.SocketPath, s.cfg.Permissions); err != nil {
		listener.Close()
		return fmt.Errorf("ipc: set socket permissions: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.startedAt = time.Now()
	s.mu.Unlock()
	s.running.Store(true)

	s.wg.Add(2)
	go s.eventBroadcaster()
	go s.acceptLoop()

	s.logger.Info("control socket listening", "path", s.cfg.SocketPath)
	return nil
}

// Run starts the server and stops it when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if !s.running.Load() {
		if err := s.Start(); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return s.Stop()
}

// Stop closes the listener and every connection, then removes the socket.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.broadcastNow(&Event{Type: EventShutdown, Timestamp: time.Now()})
	s.cancel()

	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("timed out waiting for connections to close")
	}

	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ipc: remove socket: %w", err)
	}
	return nil
}

// SocketPath returns the socket path.
func (s *Server) SocketPath() string {
	return s.cfg.SocketPath
}

// StartedAt returns when the server started listening.
func (s *Server) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast queues an event for subscribed clients. Events are dropped
// when the queue is full or the server is stopped.
func (s *Server) Broadcast(event *Event) {
	if !s.running.Load() {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case s.eventChan <- event:
	case <-s.ctx.Done():
	default:
		s.logger.Debug("event queue full, dropping", "type", event.Type)
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		client := &Client{
			ID:          uuid.NewString(),
			ConnectedAt: time.Now(),
			conn:        conn,
		}

		if cred, err := GetPeerCredentials(conn); err == nil {
			client.Peer = cred
			if !s.cfg.AllowOtherUsers && cred.UID != os.Getuid() {
				s.logger.Warn("rejecting connection from other user", "uid", cred.UID, "pid", cred.PID)
				conn.Close()
				continue
			}
		} else if !errors.Is(err, ErrPeerCredentialsUnsupported) {
			s.logger.Warn("peer credentials unavailable", "error", err)
		}

		s.mu.Lock()
		if len(s.clients) >= s.cfg.MaxConnections {
			s.mu.Unlock()
			s.logger.Warn("connection limit reached", "limit", s.cfg.MaxConnections)
			conn.Close()
			continue
		}
		s.clients[client.ID] = client
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(client)
	}
}

func (s *Server) handleConnection(client *Client) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.clients, client.ID)
		s.mu.Unlock()
		client.conn.Close()
	}()

	for {
		if s.cfg.IdleTimeout > 0 {
			_ = client.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		msg, err := ReadMessage(client.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && s.ctx.Err() == nil {
				s.logger.Debug("closing connection", "client", client.ID, "error", err)
			}
			return
		}

		resp, err := s.processMessage(client, msg)
		if err != nil {
			s.logger.Warn("request failed", "type", msg.Header.Type, "error", err)
			resp = NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error())
		}
		if resp == nil {
			continue
		}
		resp.Header.RequestID = msg.Header.RequestID
		if err := s.send(client, resp); err != nil {
			return
		}
	}
}

func (s *Server) processMessage(client *Client, msg *Message) (*Message, error) {
	switch msg.Header.Type {
	case MsgPing:
		return NewMessage(MsgPong, msg.Header.RequestID, nil), nil
	case MsgHandshake:
		return s.handleHandshake(client, msg)
	case MsgSubscribe:
		return s.handleSubscribe(client, msg)
	case MsgUnsubscribe:
		s.mu.Lock()
		client.events = nil
		s.mu.Unlock()
		return NewMessage(MsgOK, msg.Header.RequestID, nil), nil
	}

	if s.handler == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "no handler"), nil
	}
	return s.handler.HandleMessage(s.ctx, client, msg)
}

func (s *Server) handleHandshake(client *Client, msg *Message) (*Message, error) {
	var req HandshakeRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid handshake"), nil
	}
	client.Name = req.ClientName
	client.Version = req.ClientVersion

	return NewResponse(MsgHandshakeAck, msg.Header.RequestID, &HandshakeResponse{
		ServerVersion:   s.cfg.Version,
		ProtocolVersion: ProtocolVersion,
		SessionID:       client.ID,
	})
}

func (s *Server) handleSubscribe(client *Client, msg *Message) (*Message, error) {
	var req SubscribeRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid subscribe request"), nil
	}
	types := req.Events
	if len(types) == 0 {
		types = AllEvents
	}
	events := make(map[EventType]bool, len(types))
	for _, t := range types {
		events[t] = true
	}

	s.mu.Lock()
	client.events = events
	s.mu.Unlock()

	return NewResponse(MsgSubscribeResp, msg.Header.RequestID, &SubscribeResponse{SubscriptionID: client.ID})
}

func (s *Server) eventBroadcaster() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case event := <-s.eventChan:
			s.broadcastNow(event)
		}
	}
}

func (s *Server) broadcastNow(event *Event) {
	payload, err := Encode(event)
	if err != nil {
		s.logger.Warn("encode event", "error", err)
		return
	}

	s.mu.RLock()
	targets := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		if c.events[event.Type] {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range targets {
		msg := NewMessage(MsgEvent, s.nextEventID.Add(1), payload)
		if err := s.send(c, msg); err != nil {
			s.logger.Debug("event delivery failed", "client", c.ID, "error", err)
		}
	}
}

func (s *Server) send(client *Client, msg *Message) error {
	client.writeMu.Lock()
	defer client.writeMu.Unlock()
	_ = client.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return msg.Write(client.conn)
}
