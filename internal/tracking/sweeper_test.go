package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/kingdavid28/chatstatus/internal/core"
)

func TestSweeperEvictsStaleEntries(t *testing.T) {
	sys := NewSystem()
	sys.TrackMessage("c1", "m1", core.StatusSent)
	sys.nowFunc = func() time.Time { return time.Now().Add(48 * time.Hour) }

	sw := NewSweeper(sys, 10*time.Millisecond, 24*time.Hour)
	sw.Start(context.Background())
	defer sw.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := sys.GetMessageStatus("m1"); !ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("stale entry was not swept")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSweeperStopWaits(t *testing.T) {
	sw := NewSweeper(NewSystem(), 10*time.Millisecond, time.Hour)
	sw.Start(context.Background())
	sw.Stop()

	select {
	case <-sw.done:
	default:
		t.Fatalf("expected sweep goroutine to have exited")
	}
}
