// Package ws pushes applied status transitions to connected chat clients.
package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// Hub tracks live connections per conversation and user. Clients connect
// to /ws/conversations/{conversationID}?user={userID} and receive every
// status event broadcast for that conversation.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[string]map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[string]map[*websocket.Conn]struct{})}
}

func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/ws/conversations/")
		conversation := strings.Trim(path, "/")
		if conversation == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		user := strings.TrimSpace(r.URL.Query().Get("user"))
		if user == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		h.add(conversation, user, conn)
		defer h.remove(conversation, user, conn)

		// Inbound frames are drained and discarded; the socket is a
		// one-way status feed.
		ctx := r.Context()
		for {
			var v any
			if err := wsjson.Read(ctx, conn, &v); err != nil {
				return
			}
		}
	}
}

type connEntry struct {
	conn         *websocket.Conn
	conversation string
	user         string
}

// Broadcast sends event to every connection for the conversation, or only
// to the given user's connections when user is non-empty. Connections that
// fail to write are dropped.
func (h *Hub) Broadcast(conversation, user string, event any) {
	entries := h.snapshot(conversation, user)
	for _, e := range entries {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := wsjson.Write(ctx, e.conn, event)
		cancel()
		if err != nil {
			go func(e connEntry) {
				e.conn.Close(websocket.StatusGoingAway, "write error")
				h.remove(e.conversation, e.user, e.conn)
			}(e)
		}
	}
}

func (h *Hub) snapshot(conversation, user string) []connEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []connEntry
	perUser, ok := h.conns[conversation]
	if !ok {
		return out
	}
	if user != "" {
		for conn := range perUser[user] {
			out = append(out, connEntry{conn: conn, conversation: conversation, user: user})
		}
		return out
	}
	for u, conns := range perUser {
		for conn := range conns {
			out = append(out, connEntry{conn: conn, conversation: conversation, user: u})
		}
	}
	return out
}

func (h *Hub) add(conversation, user string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	perConv, ok := h.conns[conversation]
	if !ok {
		perConv = make(map[string]map[*websocket.Conn]struct{})
		h.conns[conversation] = perConv
	}
	perUser, ok := perConv[user]
	if !ok {
		perUser = make(map[*websocket.Conn]struct{})
		perConv[user] = perUser
	}
	perUser[conn] = struct{}{}
}

func (h *Hub) remove(conversation, user string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	perConv, ok := h.conns[conversation]
	if !ok {
		return
	}
	perUser, ok := perConv[user]
	if !ok {
		return
	}
	delete(perUser, conn)
	if len(perUser) == 0 {
		delete(perConv, user)
	}
	if len(perConv) == 0 {
		delete(h.conns, conversation)
	}
}
