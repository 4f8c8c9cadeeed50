// Package status implements the priority-gated, single-flight update engine
// for per-message delivery status.
package status

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kingdavid28/chatstatus/internal/core"
	"github.com/kingdavid28/chatstatus/internal/metrics"
	"github.com/kingdavid28/chatstatus/internal/store"
)

// Options tunes one UpdateStatus call. Force bypasses both the priority
// gate and the single-flight queue; it is reserved for explicit
// confirmations and stuck-state repair. A zero Timestamp means now.
type Options struct {
	Force     bool
	Timestamp time.Time
}

// Observer is invoked after a transition has been written to the store.
type Observer func(conversationID, messageID string, st core.Status, actorID string, at time.Time)

type pendingUpdate struct {
	conversationID string
	messageID      string
	status         core.Status
	actorID        string
	opts           Options
}

// Manager serializes status writes per message. While a write for a key is
// in flight, at most one newer intent is parked in the pending slot and
// replayed once the write completes; older parked intents are replaced, so
// the last intent wins among updates that raced the in-flight write.
type Manager struct {
	store store.Store

	mu        sync.Mutex
	inFlight  map[string]struct{}
	pending   map[string]pendingUpdate
	observers []Observer

	nowFunc func() time.Time
}

func NewManager(st store.Store) *Manager {
	return &Manager{
		store:    st,
		inFlight: make(map[string]struct{}),
		pending:  make(map[string]pendingUpdate),
		nowFunc:  time.Now,
	}
}

// Notify registers an observer for applied transitions. Must be called
// before the manager is shared between goroutines.
func (m *Manager) Notify(obs Observer) {
	m.observers = append(m.observers, obs)
}

// UpdateStatus applies one status transition to a message. The boolean
// reports whether the transition was written: false with a nil error means
// the priority gate rejected it or it was parked behind an in-flight write,
// both expected outcomes. A non-nil error means the store could not be
// reached and nothing is known about the record.
func (m *Manager) UpdateStatus(ctx context.Context, conversationID, messageID string, newStatus core.Status, actorID string, opts Options) (bool, error) {
	if conversationID == "" || messageID == "" {
		return false, fmt.Errorf("conversation and message ids required")
	}
	if !newStatus.Valid() {
		return false, fmt.Errorf("unknown status %q", newStatus)
	}
	if opts.Timestamp.IsZero() {
		opts.Timestamp = m.nowFunc()
	}

	key := core.MessageKey(conversationID, messageID)
	m.mu.Lock()
	if _, busy := m.inFlight[key]; busy && !opts.Force {
		m.pending[key] = pendingUpdate{
			conversationID: conversationID,
			messageID:      messageID,
			status:         newStatus,
			actorID:        actorID,
			opts:           opts,
		}
		m.mu.Unlock()
		return false, nil
	}
	m.inFlight[key] = struct{}{}
	m.mu.Unlock()

	applied, err := m.apply(ctx, conversationID, messageID, newStatus, actorID, opts)

	// Clear the in-flight flag before any replay so the deferred intent
	// goes through the same path as a fresh one.
	m.mu.Lock()
	delete(m.inFlight, key)
	var next pendingUpdate
	var replay bool
	if err == nil {
		if next, replay = m.pending[key]; replay {
			delete(m.pending, key)
		}
	}
	m.mu.Unlock()

	if err != nil {
		return false, err
	}
	if applied {
		metrics.TransitionsApplied.WithLabelValues(string(newStatus)).Inc()
		for _, obs := range m.observers {
			obs(conversationID, messageID, newStatus, actorID, opts.Timestamp)
		}
	} else {
		metrics.TransitionsRejected.WithLabelValues(string(newStatus)).Inc()
	}
	if replay {
		metrics.PendingReplays.Inc()
		if _, rerr := m.UpdateStatus(ctx, next.conversationID, next.messageID, next.status, next.actorID, next.opts); rerr != nil {
			log.Printf("status: replay %s: %v", key, rerr)
		}
	}
	return applied, nil
}

func (m *Manager) apply(ctx context.Context, conversationID, messageID string, newStatus core.Status, actorID string, opts Options) (bool, error) {
	path := core.MessagePath(conversationID, messageID)
	doc, err := m.store.Read(ctx, path)
	if err != nil {
		return false, fmt.Errorf("read status %s: %w", path, err)
	}
	if !opts.Force && doc != nil {
		current := core.RecordFromDocument(doc).Status
		if current.Valid() && current.Priority() >= newStatus.Priority() {
			return false, nil
		}
	}
	if err := m.store.Merge(ctx, path, core.StatusFields(newStatus, actorID, opts.Timestamp)); err != nil {
		return false, fmt.Errorf("write status %s: %w", path, err)
	}
	return true, nil
}

// Update is one item of a batch.
type Update struct {
	ConversationID string
	MessageID      string
	Status         core.Status
	ActorID        string
	Options        Options
}

// Result pairs a batch item with its outcome.
type Result struct {
	Update  Update
	Applied bool
	Err     error
}

// BatchUpdateStatus fires all updates concurrently and reports per-item
// outcomes in input order. It is a convenience fan-out, not a transaction:
// items for the same message still contend through the single-flight map.
func (m *Manager) BatchUpdateStatus(ctx context.Context, updates []Update) []Result {
	results := make([]Result, len(updates))
	var wg sync.WaitGroup
	for i, u := range updates {
		wg.Add(1)
		go func(i int, u Update) {
			defer wg.Done()
			applied, err := m.UpdateStatus(ctx, u.ConversationID, u.MessageID, u.Status, u.ActorID, u.Options)
			results[i] = Result{Update: u, Applied: applied, Err: err}
		}(i, u)
	}
	wg.Wait()
	return results
}

// ListenToMessageStatus subscribes to a message's record and invokes fn on
// every observed change, including changes that originated elsewhere. The
// returned unsubscribe function is idempotent. A panicking callback is
// logged and does not tear the subscription down.
func (m *Manager) ListenToMessageStatus(conversationID, messageID string, fn func(core.Status, core.StatusRecord)) (func(), error) {
	unsub, err := m.store.Subscribe(core.MessagePath(conversationID, messageID), func(doc store.Document) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("status: listener %s:%s: %v", conversationID, messageID, r)
			}
		}()
		if doc == nil {
			return
		}
		rec := core.RecordFromDocument(doc)
		st := rec.Status
		if st == "" {
			st = core.StatusSent
		}
		fn(st, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s:%s: %w", conversationID, messageID, err)
	}
	var once sync.Once
	return func() { once.Do(unsub) }, nil
}

// GetMessageStatus reads the current status. ok is false when no record
// exists. Records written by older logic may lack a status field; those
// default to sent.
func (m *Manager) GetMessageStatus(ctx context.Context, conversationID, messageID string) (core.Status, bool, error) {
	rec, ok, err := m.GetMessageRecord(ctx, conversationID, messageID)
	if err != nil || !ok {
		return "", ok, err
	}
	if rec.Status == "" {
		return core.StatusSent, true, nil
	}
	return rec.Status, true, nil
}

// GetMessageRecord reads the full status record. ok is false when no
// record exists.
func (m *Manager) GetMessageRecord(ctx context.Context, conversationID, messageID string) (core.StatusRecord, bool, error) {
	path := core.MessagePath(conversationID, messageID)
	doc, err := m.store.Read(ctx, path)
	if err != nil {
		return core.StatusRecord{}, false, fmt.Errorf("read status %s: %w", path, err)
	}
	if doc == nil {
		return core.StatusRecord{}, false, nil
	}
	return core.RecordFromDocument(doc), true, nil
}
