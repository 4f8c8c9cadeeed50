package session

import (
	"context"
	"testing"
	"time"

	"github.com/kingdavid28/chatstatus/internal/core"
	"github.com/kingdavid28/chatstatus/internal/delivery"
	"github.com/kingdavid28/chatstatus/internal/status"
	"github.com/kingdavid28/chatstatus/internal/store"
)

func TestLazyConstructionReturnsSameInstances(t *testing.T) {
	s := New(store.NewInMemory(), Config{})
	defer s.Close()

	if s.Status() != s.Status() {
		t.Fatalf("Status() should return one instance")
	}
	if s.Delivery() != s.Delivery() {
		t.Fatalf("Delivery() should return one instance")
	}
	if s.Tracking() != s.Tracking() {
		t.Fatalf("Tracking() should return one instance")
	}
}

func TestAppliedTransitionsFeedLedger(t *testing.T) {
	s := New(store.NewInMemory(), Config{})
	defer s.Close()
	ctx := context.Background()

	_, _ = s.Status().UpdateStatus(ctx, "c1", "m1", core.StatusSending, "alice", status.Options{})
	_, _ = s.Status().UpdateStatus(ctx, "c1", "m1", core.StatusSent, "alice", status.Options{})
	// Rejected by the gate: must not appear in the ledger.
	_, _ = s.Status().UpdateStatus(ctx, "c1", "m1", core.StatusSending, "alice", status.Options{})

	entry, ok := s.Tracking().GetMessageStatus("m1")
	if !ok {
		t.Fatalf("expected ledger entry")
	}
	if entry.Status != core.StatusSent {
		t.Fatalf("expected sent, got %s", entry.Status)
	}
	if len(entry.History) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(entry.History))
	}
}

type recordingBus struct {
	events []map[string]any
}

func (b *recordingBus) Broadcast(_, _ string, event any) {
	if m, ok := event.(map[string]any); ok {
		b.events = append(b.events, m)
	}
}

func TestBroadcasterReceivesAppliedTransitions(t *testing.T) {
	bus := &recordingBus{}
	s := New(store.NewInMemory(), Config{}).WithBroadcaster(bus)
	defer s.Close()
	ctx := context.Background()

	_, _ = s.Status().UpdateStatus(ctx, "c1", "m1", core.StatusSent, "alice", status.Options{})

	if len(bus.events) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(bus.events))
	}
	ev := bus.events[0]
	if ev["type"] != "status.changed" || ev["status"] != "sent" || ev["message_id"] != "m1" {
		t.Fatalf("unexpected event: %v", ev)
	}
}

func TestCloseIsIdempotentAndClearsState(t *testing.T) {
	s := New(store.NewInMemory(), Config{Delivery: delivery.Config{DeliveryTimeout: 20 * time.Millisecond}})
	ctx := context.Background()

	_, _ = s.Status().UpdateStatus(ctx, "c1", "m1", core.StatusSent, "alice", status.Options{})
	s.Delivery().StartDeliveryTracking("c1", "m1", "alice", "bob")

	s.Close()
	s.Close()

	if _, ok := s.Tracking().GetMessageStatus("m1"); ok {
		t.Fatalf("ledger should be cleared on Close")
	}

	time.Sleep(50 * time.Millisecond)
	got, _, _ := s.Status().GetMessageStatus(ctx, "c1", "m1")
	if got != core.StatusSent {
		t.Fatalf("timers should be stopped on Close, got %s", got)
	}
}
