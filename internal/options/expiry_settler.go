package options

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// TickInterval is the Expiry Settler's schedule.
const TickInterval = time.Hour

// ExpirySettler is a single-threaded cooperative loop that sweeps
// expired option positions every TickInterval and forces settlement.
// Overlapping ticks are dropped, never queued — identical policy to the
// Liquidation Monitor.
type ExpirySettler struct {
	engine  *Engine
	running atomic.Bool
}

// NewExpirySettler builds a settler over engine.
func NewExpirySettler(engine *Engine) *ExpirySettler {
	return &ExpirySettler{engine: engine}
}

// Run blocks, ticking every TickInterval until ctx is cancelled.
func (s *ExpirySettler) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *ExpirySettler) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		slog.Debug("expiry settler: skipping overlapping tick")
		return
	}
	defer s.running.Store(false)

	results, err := s.engine.SettleExpiredOptions(ctx)
	if err != nil {
		slog.Error("expiry settler: settlement failed", "err", err)
		return
	}
	if len(results) > 0 {
		slog.Info("expiry settler: settled positions", "count", len(results))
	}
}
