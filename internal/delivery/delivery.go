// Package delivery escalates unconfirmed messages and fans status changes
// out to a user's other devices.
package delivery

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kingdavid28/chatstatus/internal/core"
	"github.com/kingdavid28/chatstatus/internal/metrics"
	"github.com/kingdavid28/chatstatus/internal/status"
	"github.com/kingdavid28/chatstatus/internal/store"
)

const (
	// DefaultDeliveryTimeout is how long a message may sit at "sent"
	// before it is assumed delivered.
	DefaultDeliveryTimeout = 30 * time.Second

	escalateOpTimeout = 10 * time.Second
)

// Config tunes the escalation timers. A zero DeliveryTimeout means the
// default; a zero ReadTimeout disables read escalation, which is reserved
// and off unless configured.
type Config struct {
	DeliveryTimeout time.Duration
	ReadTimeout     time.Duration
}

// SyncMeta carries the origin of a cross-device sync entry.
type SyncMeta struct {
	UserID     string
	Timestamp  time.Time
	FromDevice string
}

// System arms one escalation timer per message and brokers the
// cross-device sync namespace. Timers are advisory: cancellation is the
// fast path, and the status re-check when one fires is the fallback that
// keeps a stale timer harmless.
type System struct {
	statuses *status.Manager
	store    store.Store
	cfg      Config
	deviceID string

	mu        sync.Mutex
	timers    map[string]*time.Timer
	listeners map[uint64]func()
	nextSub   uint64
	closed    bool

	nowFunc func() time.Time
}

func NewSystem(statuses *status.Manager, st store.Store, cfg Config) *System {
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultDeliveryTimeout
	}
	return &System{
		statuses:  statuses,
		store:     st,
		cfg:       cfg,
		deviceID:  uuid.NewString(),
		timers:    make(map[string]*time.Timer),
		listeners: make(map[uint64]func()),
		nowFunc:   time.Now,
	}
}

// DeviceID identifies this process in the sync namespace.
func (s *System) DeviceID() string { return s.deviceID }

// StartDeliveryTracking arms the delivery timer for a message. When it
// fires with the message still exactly at "sent", the recipient's device
// most likely received it without acking, so the status is escalated to
// "delivered" attributed to the sender. Re-arming replaces any earlier
// timer for the same message.
func (s *System) StartDeliveryTracking(conversationID, messageID, senderID, recipientID string) {
	key := core.MessageKey(conversationID, messageID)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if prev, ok := s.timers[key]; ok {
		prev.Stop()
	}
	s.timers[key] = time.AfterFunc(s.cfg.DeliveryTimeout, func() {
		s.escalate(key, conversationID, messageID, senderID, core.StatusSent, core.StatusDelivered)
	})
	if s.cfg.ReadTimeout > 0 {
		rkey := key + ":read"
		if prev, ok := s.timers[rkey]; ok {
			prev.Stop()
		}
		s.timers[rkey] = time.AfterFunc(s.cfg.ReadTimeout, func() {
			s.escalate(rkey, conversationID, messageID, recipientID, core.StatusDelivered, core.StatusRead)
		})
	}
	s.mu.Unlock()
}

// StopTracking cancels any outstanding timers for a message.
func (s *System) StopTracking(conversationID, messageID string) {
	key := core.MessageKey(conversationID, messageID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked(key)
	s.stopTimerLocked(key + ":read")
}

func (s *System) stopTimerLocked(key string) {
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

// escalate runs in the timer goroutine. Errors are logged and swallowed:
// a failed heuristic escalation must never crash the host process.
func (s *System) escalate(key, conversationID, messageID, actorID string, from, to core.Status) {
	ctx, cancel := context.WithTimeout(context.Background(), escalateOpTimeout)
	defer cancel()

	s.mu.Lock()
	delete(s.timers, key)
	s.mu.Unlock()

	current, ok, err := s.statuses.GetMessageStatus(ctx, conversationID, messageID)
	if err != nil {
		log.Printf("delivery: escalate %s: %v", key, err)
		return
	}
	if !ok || current != from {
		// Explicitly confirmed or externally advanced in the meantime.
		metrics.Escalations.WithLabelValues("noop").Inc()
		return
	}
	if _, err := s.statuses.UpdateStatus(ctx, conversationID, messageID, to, actorID, status.Options{Force: true}); err != nil {
		log.Printf("delivery: escalate %s to %s: %v", key, to, err)
		return
	}
	metrics.Escalations.WithLabelValues("fired").Inc()
}

// ConfirmDelivery records an explicit delivery receipt. It is forced so an
// explicit confirmation never loses to the heuristic timer, then cancels
// the timer proactively.
func (s *System) ConfirmDelivery(ctx context.Context, conversationID, messageID, actorID string) (bool, error) {
	return s.confirm(ctx, conversationID, messageID, actorID, core.StatusDelivered)
}

// ConfirmRead records an explicit read receipt.
func (s *System) ConfirmRead(ctx context.Context, conversationID, messageID, actorID string) (bool, error) {
	return s.confirm(ctx, conversationID, messageID, actorID, core.StatusRead)
}

func (s *System) confirm(ctx context.Context, conversationID, messageID, actorID string, to core.Status) (bool, error) {
	applied, err := s.statuses.UpdateStatus(ctx, conversationID, messageID, to, actorID, status.Options{Force: true})
	if err != nil {
		return false, err
	}
	s.StopTracking(conversationID, messageID)
	return applied, nil
}

// SyncMessageStatus broadcasts a status change to the user's other devices
// through the sync namespace. Best effort: receivers funnel every
// notification back through the priority-gated update engine, so duplicates
// and reordering are harmless.
func (s *System) SyncMessageStatus(ctx context.Context, conversationID, messageID, userID string, st core.Status) error {
	entry := store.Document{
		"status":     string(st),
		"userId":     userID,
		"timestamp":  s.nowFunc().UTC().Format(time.RFC3339Nano),
		"fromDevice": s.deviceID,
	}
	if err := s.store.Write(ctx, core.SyncPath(conversationID, messageID, userID), entry); err != nil {
		return fmt.Errorf("write sync record: %w", err)
	}
	metrics.SyncRecords.Inc()
	return nil
}

// ListenForStatusSync watches a conversation's sync namespace and invokes
// fn for every entry authored by neither the listening user nor this
// device. The store redelivers whole snapshots, so entries already seen are
// suppressed. The returned unsubscribe function is idempotent.
func (s *System) ListenForStatusSync(conversationID, userID string, fn func(messageID string, st core.Status, meta SyncMeta)) (func(), error) {
	var seenMu sync.Mutex
	seen := make(map[string]struct{})

	unsub, err := s.store.Subscribe(core.ConversationSyncPath(conversationID), func(doc store.Document) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("delivery: sync listener %s: %v", conversationID, r)
			}
		}()
		for messageID, v := range doc {
			perUser, ok := v.(store.Document)
			if !ok {
				continue
			}
			for entryUser, ev := range perUser {
				entry, ok := ev.(store.Document)
				if !ok {
					continue
				}
				meta := SyncMeta{
					UserID:     stringField(entry, "userId"),
					FromDevice: stringField(entry, "fromDevice"),
				}
				if raw := stringField(entry, "timestamp"); raw != "" {
					if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
						meta.Timestamp = ts
					}
				}
				if meta.UserID == "" {
					meta.UserID = entryUser
				}
				if meta.UserID == userID || meta.FromDevice == s.deviceID {
					continue
				}
				dedupe := messageID + "/" + meta.UserID + "/" + stringField(entry, "timestamp")
				seenMu.Lock()
				if _, dup := seen[dedupe]; dup {
					seenMu.Unlock()
					continue
				}
				seen[dedupe] = struct{}{}
				seenMu.Unlock()
				fn(messageID, core.Status(stringField(entry, "status")), meta)
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe sync %s: %w", conversationID, err)
	}

	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.listeners[id] = unsub
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
			unsub()
		})
	}, nil
}

// Close cancels all timers and sync listeners. Safe to call more than once.
func (s *System) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	timers := s.timers
	listeners := s.listeners
	s.timers = make(map[string]*time.Timer)
	s.listeners = make(map[uint64]func())
	s.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
	for _, unsub := range listeners {
		unsub()
	}
}

func stringField(doc store.Document, field string) string {
	if v, ok := doc[field].(string); ok {
		return v
	}
	return ""
}
