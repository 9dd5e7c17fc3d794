package socket

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"scratchpad/internal/pad/repository"
	"scratchpad/internal/pad/service"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*Hub, sqlmock.Sqlmock, string) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mock.MatchExpectationsInOrder(false)

	mock.ExpectQuery("SELECT id, content, created_at, last_modified FROM pads").
		WillReturnRows(sqlmock.NewRows([]string{"id", "content", "created_at", "last_modified"}))

	store, err := service.NewPadStore(repository.NewPadRepository(db))
	require.NoError(t, err)

	hub := NewHub(store)
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	t.Cleanup(server.Close)

	return hub, mock, "ws" + strings.TrimPrefix(server.URL, "http")
}

// Helper to read one relay message with a deadline so tests never hang.
func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	var msg Message
	conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	_, p, err := conn.ReadMessage()
	require.NoError(t, err, "Failed to read message from WebSocket")
	require.NoError(t, json.Unmarshal(p, &msg), "Failed to unmarshal Message JSON")
	return msg
}

func send(t *testing.T, conn *websocket.Conn, msg Message) {
	t.Helper()
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "Expected no message, but one arrived")
}

func TestHubIntegration(t *testing.T) {
	hub, mock, wsURL := newTestHub(t)

	// Two publishes in this scenario, one upsert each.
	mock.ExpectExec("INSERT INTO pads").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO pads").WillReturnResult(sqlmock.NewResult(0, 1))

	conn1, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "Client 1 failed to connect")
	defer conn1.Close()

	conn2, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "Client 2 failed to connect")
	defer conn2.Close()

	send(t, conn1, Message{Type: JoinType, PadID: "demo"})
	send(t, conn2, Message{Type: JoinType, PadID: "demo"})
	require.Eventually(t, func() bool {
		return len(hub.Members("demo")) == 2
	}, time.Second, 10*time.Millisecond, "both sessions should join the room")

	// Client 1 types; only client 2 hears about it.
	send(t, conn1, Message{Type: UpdateType, PadID: "demo", Content: "x"})

	broadcast := readMessage(t, conn2)
	assert.Equal(t, UpdatedType, broadcast.Type)
	assert.Equal(t, "demo", broadcast.PadID)
	assert.Equal(t, "x", broadcast.Content)
	assert.False(t, broadcast.LastModified.IsZero())

	expectSilence(t, conn1)

	// After leaving, client 2 stops receiving updates.
	send(t, conn2, Message{Type: LeaveType, PadID: "demo"})
	require.Eventually(t, func() bool {
		return len(hub.Members("demo")) == 1
	}, time.Second, 10*time.Millisecond)

	send(t, conn1, Message{Type: UpdateType, PadID: "demo", Content: "y"})
	expectSilence(t, conn2)
}

func TestPublishDeliversWhenPersistenceFails(t *testing.T) {
	hub, mock, wsURL := newTestHub(t)
	mock.ExpectExec("INSERT INTO pads").WillReturnError(errors.New("connection refused"))

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	send(t, conn, Message{Type: JoinType, PadID: "demo"})
	require.Eventually(t, func() bool {
		return len(hub.Members("demo")) == 1
	}, time.Second, 10*time.Millisecond)

	// The durable write is outside the relay's critical path: the room
	// still sees the update when the database is down.
	lm := hub.Publish("demo", "other-session", "still live")
	assert.False(t, lm.IsZero())

	msg := readMessage(t, conn)
	assert.Equal(t, UpdatedType, msg.Type)
	assert.Equal(t, "still live", msg.Content)
}

func TestPublishToEmptyRoomIsStoredNoop(t *testing.T) {
	hub, mock, _ := newTestHub(t)
	mock.ExpectExec("INSERT INTO pads").WillReturnResult(sqlmock.NewResult(0, 1))

	lm := hub.Publish("lonely", "nobody", "text")
	assert.False(t, lm.IsZero())
	assert.Empty(t, hub.Members("lonely"))
}

func TestPublishesFanOutInOrder(t *testing.T) {
	hub, mock, wsURL := newTestHub(t)
	for i := 0; i < 5; i++ {
		mock.ExpectExec("INSERT INTO pads").WillReturnResult(sqlmock.NewResult(0, 1))
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	send(t, conn, Message{Type: JoinType, PadID: "seq"})
	require.Eventually(t, func() bool {
		return len(hub.Members("seq")) == 1
	}, time.Second, 10*time.Millisecond)

	contents := []string{"a", "b", "c", "d", "e"}
	for _, c := range contents {
		hub.Publish("seq", "other-session", c)
	}

	var prev time.Time
	for _, want := range contents {
		msg := readMessage(t, conn)
		assert.Equal(t, want, msg.Content, "per-connection delivery must be FIFO")
		assert.False(t, msg.LastModified.Before(prev), "lastModified must not go backwards")
		prev = msg.LastModified
	}
}

func TestDisconnectReleasesAllMemberships(t *testing.T) {
	hub, _, wsURL := newTestHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	send(t, conn, Message{Type: JoinType, PadID: "one"})
	send(t, conn, Message{Type: JoinType, PadID: "two"})
	require.Eventually(t, func() bool {
		return len(hub.Members("one")) == 1 && len(hub.Members("two")) == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return len(hub.Members("one")) == 0 && len(hub.Members("two")) == 0
	}, time.Second, 10*time.Millisecond, "membership must not outlive the session")
}

func TestRemovePadEmptiesRoom(t *testing.T) {
	hub, _, wsURL := newTestHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	send(t, conn, Message{Type: JoinType, PadID: "doomed"})
	require.Eventually(t, func() bool {
		return len(hub.Members("doomed")) == 1
	}, time.Second, 10*time.Millisecond)

	hub.RemovePad("doomed")
	assert.Empty(t, hub.Members("doomed"))
}
