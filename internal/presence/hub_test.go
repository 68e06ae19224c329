package presence

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return msg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestHubPublishToConnectedUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil, nil)
	router := gin.New()
	router.GET("/ws", hub.ServeWS)
	srv := httptest.NewServer(router)
	defer srv.Close()

	if hub.IsOnline("u1") {
		t.Fatalf("u1 should start offline")
	}
	conn := dial(t, srv, "u1")
	waitFor(t, func() bool { return hub.IsOnline("u1") })

	if msg := readMessage(t, conn); msg.Type != "connected" {
		t.Fatalf("expected connected message, got %s", msg.Type)
	}

	hub.Publish("u1", "notification", map[string]string{"title": "hello"})
	hub.Publish("u2", "notification", map[string]string{"title": "not for u1"})

	msg := readMessage(t, conn)
	if msg.Type != "notification" || msg.UserID != "u1" || msg.MessageID == "" {
		t.Fatalf("message mismatch: %+v", msg)
	}
	data, _ := msg.Data.(map[string]interface{})
	if data["title"] != "hello" {
		t.Fatalf("data mismatch: %+v", msg.Data)
	}

	_ = conn.Close()
	waitFor(t, func() bool { return !hub.IsOnline("u1") })
}

func TestServeWSRequiresUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil, nil)
	router := gin.New()
	router.GET("/ws", hub.ServeWS)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/ws", nil))
	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
