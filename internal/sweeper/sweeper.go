// Package sweeper drives time-based auction transitions on a fixed
// polling interval. Polling trades up to one interval of latency for a
// simple failure model: there are no per-auction timers to leak,
// cancel, or rebuild after a restart.
package sweeper

import (
	"context"
	"time"

	"auction-engine/utils"
)

// Transitioner is the slice of the auction service the sweeper drives.
type Transitioner interface {
	ActivateDue(ctx context.Context, now time.Time) ([]string, error)
	FinalizeExpired(ctx context.Context, now time.Time) ([]string, error)
}

// Sweeper periodically activates due auctions and finalizes expired
// ones. Sweeps are idempotent and safe to run concurrently with bids
// and with other sweeps; exclusivity comes from the store's
// conditional writes, not from the sweeper.
type Sweeper struct {
	service  Transitioner
	interval time.Duration
	now      func() time.Time
}

// NewSweeper creates a new Sweeper instance
func NewSweeper(service Transitioner, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		service:  service,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run executes sweeps on the configured interval until ctx is
// cancelled. Errors are logged and retried on the next tick, never
// fatal to the process.
func (s *Sweeper) Run(ctx context.Context) {
	utils.Info("expiry sweeper started", map[string]any{"interval": s.interval.String()})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			utils.Info("expiry sweeper stopped", nil)
			return
		case <-ticker.C:
			s.Sweep(ctx, s.now())
		}
	}
}

// Sweep runs one pass and returns the ids of auctions finalized by it.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) []string {
	activated, err := s.service.ActivateDue(ctx, now)
	if err != nil {
		utils.Error("sweep: activation pass failed", map[string]any{"error": err.Error()})
	}
	if len(activated) > 0 {
		utils.Info("sweep: activated due auctions", map[string]any{"count": len(activated), "auction_ids": activated})
	}

	finalized, err := s.service.FinalizeExpired(ctx, now)
	if err != nil {
		utils.Error("sweep: finalization pass failed", map[string]any{"error": err.Error()})
	}
	if len(finalized) > 0 {
		utils.Info("sweep: finalized expired auctions", map[string]any{"count": len(finalized), "auction_ids": finalized})
	}

	return finalized
}
