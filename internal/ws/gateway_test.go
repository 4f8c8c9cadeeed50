package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func dial(t *testing.T, srv *httptest.Server, conversation, user string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/conversations/" + conversation + "?user=" + user
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func waitForConn(t *testing.T, hub *Hub, conversation, user string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(hub.snapshot(conversation, user)) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("connection for %s/%s never registered", conversation, user)
}

func TestBroadcastReachesConversation(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	conn := dial(t, srv, "c1", "alice")
	waitForConn(t, hub, "c1", "alice")

	hub.Broadcast("c1", "", map[string]any{"type": "status.changed", "status": "read"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var got map[string]any
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got["type"] != "status.changed" || got["status"] != "read" {
		t.Fatalf("unexpected event: %v", got)
	}
}

func TestBroadcastTargetsSingleUser(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	alice := dial(t, srv, "c1", "alice")
	bob := dial(t, srv, "c1", "bob")
	waitForConn(t, hub, "c1", "alice")
	waitForConn(t, hub, "c1", "bob")

	hub.Broadcast("c1", "bob", map[string]any{"type": "status.changed"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var got map[string]any
	if err := wsjson.Read(ctx, bob, &got); err != nil {
		t.Fatalf("bob read: %v", err)
	}

	// Alice must not receive the targeted event.
	aliceCtx, aliceCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer aliceCancel()
	var stray map[string]any
	if err := wsjson.Read(aliceCtx, alice, &stray); err == nil {
		t.Fatalf("alice received a targeted event: %v", stray)
	}
}

func TestBroadcastIsolatesConversations(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	other := dial(t, srv, "c2", "alice")
	waitForConn(t, hub, "c2", "alice")

	hub.Broadcast("c1", "", map[string]any{"type": "status.changed"})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	var stray map[string]any
	if err := wsjson.Read(ctx, other, &stray); err == nil {
		t.Fatalf("event leaked across conversations: %v", stray)
	}
}

func TestHandlerRejectsMissingParams(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws/conversations/")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing conversation: expected 400, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/ws/conversations/c1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing user: expected 400, got %d", resp.StatusCode)
	}
}

func TestBroadcastToEmptyHubIsNoop(t *testing.T) {
	hub := NewHub()
	hub.Broadcast("c1", "", map[string]any{"type": "status.changed"})
}
