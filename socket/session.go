package socket

import (
	"encoding/json"
	"net/http"
	"time"

	"scratchpad/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CheckOrigin allows connections from the frontend dev server
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Session is one live websocket connection. The hub only ever
// addresses it by ID; the connection itself belongs to the pumps.
type Session struct {
	ID   string
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte

	// pads this session has joined, guarded by Hub.mu
	rooms map[string]bool
}

func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	s := &Session{
		ID:    uuid.NewString(),
		Hub:   hub,
		Conn:  conn,
		Send:  make(chan []byte, 256),
		rooms: make(map[string]bool),
	}

	s.Hub.Register <- s

	// Start reading and writing in separate goroutines
	go s.writePump()
	go s.readPump()
}

func (s *Session) readPump() {
	defer func() {
		s.Hub.Unregister <- s
		s.Conn.Close()
	}()

	for {
		_, rawMessage, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(rawMessage, &msg); err != nil {
			logger.Sugar.Errorf("Error unmarshalling message: %v", err)
			continue
		}
		if msg.PadID == "" {
			logger.Sugar.Warnf("Session %s sent %s without a padId", s.ID, msg.Type)
			continue
		}

		switch msg.Type {
		case JoinType:
			s.Hub.Join(msg.PadID, s)
		case LeaveType:
			s.Hub.Leave(msg.PadID, s)
		case UpdateType:
			s.Hub.Publish(msg.PadID, s.ID, msg.Content)
		default:
			logger.Sugar.Warnf("Session %s sent unknown message type %q", s.ID, msg.Type)
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(30 * time.Second) // Send ping every 30s
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-s.Send:
			if !ok {
				// Hub closed the channel on unregister.
				s.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			s.Conn.WriteMessage(websocket.TextMessage, message)
		case <-ticker.C:
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // Connection is dead
			}
		}
	}
}
