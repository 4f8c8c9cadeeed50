// Package session is the composition root for the status subsystem. One
// Session owns the update engine, the delivery system, and the tracking
// ledger for an authenticated connection; nothing here is a package-level
// singleton, so tests and multi-tenant hosts construct as many as needed.
package session

import (
	"sync"
	"time"

	"github.com/kingdavid28/chatstatus/internal/core"
	"github.com/kingdavid28/chatstatus/internal/delivery"
	"github.com/kingdavid28/chatstatus/internal/status"
	"github.com/kingdavid28/chatstatus/internal/store"
	"github.com/kingdavid28/chatstatus/internal/tracking"
)

// Broadcaster pushes applied transitions to connected UI clients. An empty
// user targets every connection in the conversation.
type Broadcaster interface {
	Broadcast(conversationID, userID string, event any)
}

// Config tunes the systems a Session constructs.
type Config struct {
	Delivery     delivery.Config
	HistoryLimit int
}

// Session lazily constructs the three systems on first access and tears
// them down together.
type Session struct {
	store store.Store
	cfg   Config
	bus   Broadcaster

	mu       sync.Mutex
	statuses *status.Manager
	delivery *delivery.System
	tracking *tracking.System
	closed   bool
}

func New(st store.Store, cfg Config) *Session {
	return &Session{store: st, cfg: cfg}
}

// WithBroadcaster attaches a transition broadcaster. Must be called before
// the first Status() access.
func (s *Session) WithBroadcaster(b Broadcaster) *Session {
	s.bus = b
	return s
}

// Status returns the update engine, constructing and wiring it on first
// use: every applied transition feeds the ledger and, when a broadcaster
// is attached, the conversation's live connections.
func (s *Session) Status() *status.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statuses == nil {
		m := status.NewManager(s.store)
		m.Notify(func(conversationID, messageID string, st core.Status, actorID string, at time.Time) {
			s.Tracking().Observe(conversationID, messageID, st)
			if s.bus != nil {
				s.bus.Broadcast(conversationID, "", map[string]any{
					"type":            "status.changed",
					"conversation_id": conversationID,
					"message_id":      messageID,
					"status":          string(st),
					"actor_id":        actorID,
					"at":              at.UTC().Format(time.RFC3339Nano),
				})
			}
		})
		s.statuses = m
	}
	return s.statuses
}

// Delivery returns the escalation system.
func (s *Session) Delivery() *delivery.System {
	statuses := s.Status()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delivery == nil {
		s.delivery = delivery.NewSystem(statuses, s.store, s.cfg.Delivery)
	}
	return s.delivery
}

// Tracking returns the ledger.
func (s *Session) Tracking() *tracking.System {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracking == nil {
		s.tracking = tracking.NewSystemWithLimit(s.cfg.HistoryLimit)
	}
	return s.tracking
}

// Close tears down timers, sync listeners, and the ledger. Idempotent;
// called on logout or host shutdown. The remote store stays untouched: it
// is the durable source of truth and in-memory state is safe to lose.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	d := s.delivery
	tr := s.tracking
	s.mu.Unlock()

	if d != nil {
		d.Close()
	}
	if tr != nil {
		tr.Reset()
	}
}
