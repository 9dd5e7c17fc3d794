package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"scratchpad/pkg/logger"
	"scratchpad/socket"

	"github.com/gorilla/websocket"
)

type SocketOptions struct {
	// Reconnect redials with a fixed delay after a dropped connection.
	Reconnect bool
	// ReconnectDelay defaults to one second.
	ReconnectDelay time.Duration
	// ResyncOnReconnect refetches each joined pad's snapshot after a
	// reconnect and applies it as if it were a broadcast. Off by
	// default: a reconnecting client otherwise keeps stale content
	// until the next broadcast, matching the relay's own guarantees.
	ResyncOnReconnect bool
	// API is required for ResyncOnReconnect.
	API *API
}

// Socket is the relay transport: one persistent websocket connection
// multiplexing any number of joined pads.
type Socket struct {
	url  string
	opts SocketOptions

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	handlers  map[string]func(content string, lastModified time.Time)
}

// DialSocket connects to the relay's /ws endpoint (ws:// or wss://
// URL) and starts the read loop.
func DialSocket(url string, opts SocketOptions) (*Socket, error) {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}

	s := &Socket{
		url:       url,
		opts:      opts,
		conn:      conn,
		connected: true,
		handlers:  make(map[string]func(string, time.Time)),
	}
	go s.readLoop()
	return s, nil
}

func (s *Socket) Join(padID string, onUpdate func(content string, lastModified time.Time)) error {
	s.mu.Lock()
	s.handlers[padID] = onUpdate
	s.mu.Unlock()
	return s.send(socket.Message{Type: socket.JoinType, PadID: padID})
}

func (s *Socket) Leave(padID string) error {
	s.mu.Lock()
	delete(s.handlers, padID)
	s.mu.Unlock()
	return s.send(socket.Message{Type: socket.LeaveType, PadID: padID})
}

func (s *Socket) Publish(padID, content string) error {
	return s.send(socket.Message{Type: socket.UpdateType, PadID: padID, Content: content})
}

func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Socket) Close() error {
	s.mu.Lock()
	s.closed = true
	s.connected = false
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *Socket) send(msg socket.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	// gorilla connections allow one concurrent writer.
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected || s.conn == nil {
		return websocket.ErrCloseSent
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *Socket) readLoop() {
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.connected = false
			s.mu.Unlock()
			if closed {
				return
			}
			logger.Sugar.Warnf("Relay connection lost: %v", err)
			if !s.opts.Reconnect || !s.reconnect() {
				return
			}
			continue
		}

		var msg socket.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Sugar.Errorf("Error unmarshalling relay message: %v", err)
			continue
		}
		if msg.Type != socket.UpdatedType {
			continue
		}

		s.mu.Lock()
		handler := s.handlers[msg.PadID]
		s.mu.Unlock()
		if handler != nil {
			handler(msg.Content, msg.LastModified)
		}
	}
}

// reconnect redials until it succeeds or the socket is closed, then
// re-joins every pad. It does not refetch snapshots unless
// ResyncOnReconnect asks for it.
func (s *Socket) reconnect() bool {
	for {
		time.Sleep(s.opts.ReconnectDelay)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return false
		}
		s.mu.Unlock()

		conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
		if err != nil {
			logger.Sugar.Warnf("Relay reconnect failed, retrying: %v", err)
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.connected = true
		pads := make([]string, 0, len(s.handlers))
		for padID := range s.handlers {
			pads = append(pads, padID)
		}
		s.mu.Unlock()

		for _, padID := range pads {
			if err := s.send(socket.Message{Type: socket.JoinType, PadID: padID}); err != nil {
				logger.Sugar.Warnf("Failed to re-join pad %s: %v", padID, err)
			}
		}
		logger.Sugar.Infof("Relay reconnected, re-joined %d pad(s)", len(pads))

		if s.opts.ResyncOnReconnect && s.opts.API != nil {
			s.resync(pads)
		}
		return true
	}
}

// resync pulls fresh snapshots and feeds them through the same path a
// broadcast would take, so the editor's suppression logic applies.
func (s *Socket) resync(pads []string) {
	for _, padID := range pads {
		snap, err := s.opts.API.GetPad(context.Background(), padID)
		if err != nil {
			logger.Sugar.Warnf("Resync failed for pad %s: %v", padID, err)
			continue
		}

		s.mu.Lock()
		handler := s.handlers[padID]
		s.mu.Unlock()
		if handler != nil {
			handler(snap.Content, snap.LastModified)
		}
	}
}
