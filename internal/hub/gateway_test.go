package hub

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"Parley/internal/auth"
	"Parley/internal/event"
	"Parley/internal/model"
	"Parley/internal/presence"
)

type fakeAuth struct{}

func (fakeAuth) Validate(credential string) (*auth.IdentityClaims, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, auth.ErrNoCredential
	}
	if credential == "inactive" {
		return nil, auth.ErrInactiveIdentity
	}
	if !strings.Contains(credential, "@") {
		return nil, auth.ErrTokenInvalid
	}
	return &auth.IdentityClaims{Email: credential}, nil
}

type gatewayEnv struct {
	bus      *memBus
	hub      *Hub
	messages *fakeMessages
	presence *fakePresence
	server   *httptest.Server
}

func newGatewayEnv(t *testing.T) *gatewayEnv {
	t.Helper()

	b := newMemBus()
	h := NewHub(b, "user_updates", zap.NewNop())
	messages := &fakeMessages{unreadCounts: map[string]int64{}}
	rooms := &fakeRooms{}
	users := &fakeUsers{}
	pres := &fakePresence{records: map[string]presence.Record{}}
	listCache := newFakeCache()

	d := NewDispatcher(h, messages, rooms, users, pres, listCache, zap.NewNop())
	g := NewGateway(h, d, fakeAuth{}, pres, messages, nil, zap.NewNop())

	srv := httptest.NewServer(http.HandlerFunc(g.ServeWS))
	t.Cleanup(srv.Close)

	return &gatewayEnv{bus: b, hub: h, messages: messages, presence: pres, server: srv}
}

func (e *gatewayEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(e.server.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func TestHandshakeRejectsMissingToken(t *testing.T) {
	env := newGatewayEnv(t)

	resp, err := http.Get(env.server.URL)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if got := strings.TrimSpace(string(body)); got != "No token provided" {
		t.Errorf("body = %q", got)
	}
}

func TestHandshakeRejectsInactiveIdentity(t *testing.T) {
	env := newGatewayEnv(t)

	resp, err := http.Get(env.server.URL + "?token=inactive")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if got := strings.TrimSpace(string(body)); got != "User is inactive" {
		t.Errorf("body = %q", got)
	}
}

func TestHandshakeSendsConnectionFrame(t *testing.T) {
	env := newGatewayEnv(t)
	conn := env.dial(t, "alice@x.com")

	frame := readFrame(t, conn)
	var decoded struct {
		Source string               `json:"source"`
		Data   event.ConnectionData `json:"data"`
	}
	if err := json.Unmarshal(frame, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Source != event.SourceConnection {
		t.Errorf("source = %q", decoded.Source)
	}
	if decoded.Data.Message != "connected" || decoded.Data.Email != "alice@x.com" {
		t.Errorf("data = %+v", decoded.Data)
	}
}

func TestHandshakeReplaysPendingThenUnread(t *testing.T) {
	env := newGatewayEnv(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	first := model.Message{
		ID: primitive.NewObjectID(), RoomID: "r1",
		Sender: "bob@x.com", Receiver: "alice@x.com", Body: "earlier", Timestamp: base,
	}
	second := model.Message{
		ID: primitive.NewObjectID(), RoomID: "r1",
		Sender: "bob@x.com", Receiver: "alice@x.com", Body: "later", Timestamp: base.Add(time.Minute),
	}
	env.messages.pending = []model.Message{first, second}
	env.messages.unreadCounts = map[string]int64{"bob@x.com": 2}

	conn := env.dial(t, "alice@x.com")
	readFrame(t, conn) // connection

	for _, want := range []string{"earlier", "later"} {
		var decoded struct {
			Source string            `json:"source"`
			Data   event.MessageData `json:"data"`
		}
		if err := json.Unmarshal(readFrame(t, conn), &decoded); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if decoded.Source != event.SourceMessageSend {
			t.Errorf("source = %q", decoded.Source)
		}
		if decoded.Data.Message != want || !decoded.Data.Delivered {
			t.Errorf("replay = %+v, want body %q delivered", decoded.Data, want)
		}
	}

	var summary struct {
		Source string              `json:"source"`
		Data   []event.UnreadEntry `json:"data"`
	}
	if err := json.Unmarshal(readFrame(t, conn), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.Source != event.SourceMessageUnread {
		t.Errorf("source = %q", summary.Source)
	}
	if len(summary.Data) != 1 || summary.Data[0].UnreadCount != 2 {
		t.Errorf("summary = %+v", summary.Data)
	}

	if len(env.messages.deliveredIDs) != 2 {
		t.Errorf("delivered flips = %d, want 2", len(env.messages.deliveredIDs))
	}
}

func TestDisconnectBroadcastsOffline(t *testing.T) {
	env := newGatewayEnv(t)
	conn := env.dial(t, "alice@x.com")
	readFrame(t, conn) // connection
	readFrame(t, conn) // empty unread summary

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(env.presence.offlineCalls()) > 0 && len(env.bus.published("user_updates")) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	offline := env.presence.offlineCalls()
	if len(offline) != 1 || offline[0] != "alice@x.com" {
		t.Fatalf("offline calls = %v", offline)
	}

	broadcasts := env.bus.published("user_updates")
	if len(broadcasts) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(broadcasts))
	}
	var decoded struct {
		Source string           `json:"source"`
		Data   event.StatusData `json:"data"`
	}
	if err := json.Unmarshal(broadcasts[0], &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Source != event.SourceUserStatus {
		t.Errorf("source = %q", decoded.Source)
	}
	if decoded.Data.Email != "alice@x.com" || decoded.Data.Status != "offline" || decoded.Data.LastSeen == nil {
		t.Errorf("data = %+v", decoded.Data)
	}
}

func TestRoundTripPingOverSocket(t *testing.T) {
	env := newGatewayEnv(t)
	conn := env.dial(t, "alice@x.com")
	readFrame(t, conn) // connection
	readFrame(t, conn) // unread summary

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"source":"ping"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := string(readFrame(t, conn)); got != `{"source":"pong"}` {
		t.Errorf("reply = %s", got)
	}
}
