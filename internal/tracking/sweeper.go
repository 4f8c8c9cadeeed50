package tracking

import (
	"context"
	"log"
	"time"
)

// Sweeper runs a background goroutine that periodically evicts stale
// ledger entries. Call Start() to begin sweeping.
type Sweeper struct {
	ledger   *System
	interval time.Duration
	maxAge   time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewSweeper(ledger *System, interval, maxAge time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		ledger:   ledger,
		interval: interval,
		maxAge:   maxAge,
		done:     make(chan struct{}),
	}
}

// Start launches the background sweep goroutine.
func (sw *Sweeper) Start(ctx context.Context) {
	ctx, sw.cancel = context.WithCancel(ctx)

	go func() {
		defer close(sw.done)

		ticker := time.NewTicker(sw.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := sw.ledger.Cleanup(sw.maxAge); removed > 0 {
					log.Printf("tracking: swept %d stale entry(s)", removed)
				}
			}
		}
	}()
}

// Stop cancels the sweep goroutine and waits for it to finish.
func (sw *Sweeper) Stop() {
	if sw.cancel != nil {
		sw.cancel()
	}
	<-sw.done
}
