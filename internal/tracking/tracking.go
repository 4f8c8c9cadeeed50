// Package tracking keeps a local, bounded audit trail of status
// transitions so the UI can render recent timelines without re-querying
// the remote store. It is diagnostics only, never a source of truth, and
// never writes to the store.
package tracking

import (
	"sync"
	"time"

	"github.com/kingdavid28/chatstatus/internal/core"
)

const (
	// DefaultHistoryLimit bounds per-message history, oldest dropped
	// first.
	DefaultHistoryLimit = 10

	// DefaultMaxAge is the cleanup sweep horizon.
	DefaultMaxAge = 7 * 24 * time.Hour
)

// Transition is one recorded status change.
type Transition struct {
	Status    core.Status
	Timestamp time.Time
	Metadata  map[string]string
}

// Entry is the tracked state of one message.
type Entry struct {
	ID             string
	ConversationID string
	Status         core.Status
	History        []Transition
	CreatedAt      time.Time
	LastUpdated    time.Time
}

// Stats summarizes the tracked population.
type Stats struct {
	Total    int
	ByStatus map[core.Status]int
	OldestID string
	NewestID string
}

// System is the in-memory ledger. All methods are safe for concurrent use.
type System struct {
	mu           sync.RWMutex
	entries      map[string]*Entry
	historyLimit int
	nowFunc      func() time.Time
}

func NewSystem() *System {
	return NewSystemWithLimit(DefaultHistoryLimit)
}

func NewSystemWithLimit(historyLimit int) *System {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &System{
		entries:      make(map[string]*Entry),
		historyLimit: historyLimit,
		nowFunc:      time.Now,
	}
}

// TrackMessage starts tracking a message. Re-tracking an already tracked
// message resets its entry.
func (s *System) TrackMessage(conversationID, messageID string, initial core.Status) {
	now := s.nowFunc()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[messageID] = &Entry{
		ID:             messageID,
		ConversationID: conversationID,
		Status:         initial,
		History:        []Transition{{Status: initial, Timestamp: now}},
		CreatedAt:      now,
		LastUpdated:    now,
	}
}

// UpdateMessageStatus appends a transition to a tracked message. Returns
// false when the message is not tracked.
func (s *System) UpdateMessageStatus(messageID string, st core.Status, metadata map[string]string) bool {
	now := s.nowFunc()
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[messageID]
	if !ok {
		return false
	}
	entry.Status = st
	entry.LastUpdated = now
	entry.History = append(entry.History, Transition{Status: st, Timestamp: now, Metadata: metadata})
	if over := len(entry.History) - s.historyLimit; over > 0 {
		entry.History = append([]Transition(nil), entry.History[over:]...)
	}
	return true
}

// Observe records a transition, tracking the message first if needed. This
// is the hook the update engine feeds.
func (s *System) Observe(conversationID, messageID string, st core.Status) {
	if s.UpdateMessageStatus(messageID, st, nil) {
		return
	}
	s.TrackMessage(conversationID, messageID, st)
}

// GetMessageStatus returns a copy of the tracked entry.
func (s *System) GetMessageStatus(messageID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[messageID]
	if !ok {
		return Entry{}, false
	}
	return cloneEntry(entry), true
}

// GetMessagesByStatus linear-scans for messages currently at st.
func (s *System) GetMessagesByStatus(st core.Status) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, entry := range s.entries {
		if entry.Status == st {
			out = append(out, cloneEntry(entry))
		}
	}
	return out
}

// GetTrackingStats counts tracked messages by status and identifies the
// oldest and newest tracked messages.
func (s *System) GetTrackingStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := Stats{ByStatus: make(map[core.Status]int)}
	var oldest, newest time.Time
	for id, entry := range s.entries {
		stats.Total++
		stats.ByStatus[entry.Status]++
		if stats.OldestID == "" || entry.CreatedAt.Before(oldest) {
			stats.OldestID = id
			oldest = entry.CreatedAt
		}
		if stats.NewestID == "" || entry.CreatedAt.After(newest) {
			stats.NewestID = id
			newest = entry.CreatedAt
		}
	}
	return stats
}

// Cleanup drops entries whose last update is older than maxAge and returns
// how many were removed. maxAge <= 0 means DefaultMaxAge.
func (s *System) Cleanup(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	cutoff := s.nowFunc().Add(-maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.entries {
		if entry.LastUpdated.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Reset drops every tracked entry.
func (s *System) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry)
}

func cloneEntry(entry *Entry) Entry {
	out := *entry
	out.History = append([]Transition(nil), entry.History...)
	return out
}
