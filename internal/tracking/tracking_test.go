package tracking

import (
	"fmt"
	"testing"
	"time"

	"github.com/kingdavid28/chatstatus/internal/core"
)

func TestTrackAndUpdate(t *testing.T) {
	s := NewSystem()
	s.TrackMessage("c1", "m1", core.StatusSending)

	if !s.UpdateMessageStatus("m1", core.StatusSent, map[string]string{"actor": "alice"}) {
		t.Fatalf("update of tracked message should succeed")
	}
	entry, ok := s.GetMessageStatus("m1")
	if !ok {
		t.Fatalf("expected tracked entry")
	}
	if entry.Status != core.StatusSent {
		t.Fatalf("expected sent, got %s", entry.Status)
	}
	if len(entry.History) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(entry.History))
	}
	if entry.History[1].Metadata["actor"] != "alice" {
		t.Fatalf("metadata lost: %+v", entry.History[1])
	}
	if entry.LastUpdated.Before(entry.CreatedAt) {
		t.Fatalf("lastUpdated before createdAt")
	}
}

func TestUpdateUntrackedMessage(t *testing.T) {
	s := NewSystem()
	if s.UpdateMessageStatus("ghost", core.StatusSent, nil) {
		t.Fatalf("update of untracked message should report false")
	}
}

func TestHistoryBoundEvictsOldestFirst(t *testing.T) {
	s := NewSystem()
	s.TrackMessage("c1", "m1", core.StatusSending)

	// 11 updates on top of the initial transition: 12 total, cap 10.
	statuses := []core.Status{
		core.StatusQueued, core.StatusSent, core.StatusDelivered, core.StatusRead,
		core.StatusFailed, core.StatusQueued, core.StatusSending, core.StatusSent,
		core.StatusDelivered, core.StatusRead, core.StatusFailed,
	}
	for _, st := range statuses {
		s.UpdateMessageStatus("m1", st, nil)
	}

	entry, _ := s.GetMessageStatus("m1")
	if len(entry.History) != 10 {
		t.Fatalf("expected history capped at 10, got %d", len(entry.History))
	}
	// The initial transition and the 1st update were evicted; the first
	// retained entry is the 2nd update.
	if entry.History[0].Status != statuses[1] {
		t.Fatalf("expected oldest retained %s, got %s", statuses[1], entry.History[0].Status)
	}
	if entry.History[9].Status != statuses[len(statuses)-1] {
		t.Fatalf("newest entry must never be evicted, got %s", entry.History[9].Status)
	}
}

func TestObserveTracksImplicitly(t *testing.T) {
	s := NewSystem()
	s.Observe("c1", "m1", core.StatusSending)
	s.Observe("c1", "m1", core.StatusSent)

	entry, ok := s.GetMessageStatus("m1")
	if !ok {
		t.Fatalf("expected entry after observe")
	}
	if entry.ConversationID != "c1" || len(entry.History) != 2 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestGetMessagesByStatus(t *testing.T) {
	s := NewSystem()
	s.TrackMessage("c1", "m1", core.StatusSent)
	s.TrackMessage("c1", "m2", core.StatusFailed)
	s.TrackMessage("c2", "m3", core.StatusFailed)

	failed := s.GetMessagesByStatus(core.StatusFailed)
	if len(failed) != 2 {
		t.Fatalf("expected 2 failed messages, got %d", len(failed))
	}
	if len(s.GetMessagesByStatus(core.StatusRead)) != 0 {
		t.Fatalf("expected no read messages")
	}
}

func TestTrackingStats(t *testing.T) {
	s := NewSystem()
	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	s.nowFunc = func() time.Time { return clock }

	s.TrackMessage("c1", "m1", core.StatusSent)
	clock = base.Add(time.Minute)
	s.TrackMessage("c1", "m2", core.StatusSent)
	clock = base.Add(2 * time.Minute)
	s.TrackMessage("c1", "m3", core.StatusFailed)

	stats := s.GetTrackingStats()
	if stats.Total != 3 {
		t.Fatalf("expected 3 tracked, got %d", stats.Total)
	}
	if stats.ByStatus[core.StatusSent] != 2 || stats.ByStatus[core.StatusFailed] != 1 {
		t.Fatalf("unexpected counts: %v", stats.ByStatus)
	}
	if stats.OldestID != "m1" || stats.NewestID != "m3" {
		t.Fatalf("expected m1 oldest and m3 newest, got %s/%s", stats.OldestID, stats.NewestID)
	}
}

func TestCleanupDropsStaleEntries(t *testing.T) {
	s := NewSystem()
	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	s.nowFunc = func() time.Time { return clock }

	for i := 0; i < 5; i++ {
		s.TrackMessage("c1", fmt.Sprintf("old-%d", i), core.StatusSent)
	}
	clock = base.Add(8 * 24 * time.Hour)
	s.TrackMessage("c1", "fresh", core.StatusSent)

	removed := s.Cleanup(0) // default 7 days
	if removed != 5 {
		t.Fatalf("expected 5 removed, got %d", removed)
	}
	if _, ok := s.GetMessageStatus("fresh"); !ok {
		t.Fatalf("fresh entry should survive cleanup")
	}
	if _, ok := s.GetMessageStatus("old-0"); ok {
		t.Fatalf("stale entry should be gone")
	}
}

func TestGetMessageStatusReturnsCopy(t *testing.T) {
	s := NewSystem()
	s.TrackMessage("c1", "m1", core.StatusSent)
	entry, _ := s.GetMessageStatus("m1")
	entry.History[0].Status = core.StatusFailed

	again, _ := s.GetMessageStatus("m1")
	if again.History[0].Status != core.StatusSent {
		t.Fatalf("caller mutation leaked into ledger")
	}
}
