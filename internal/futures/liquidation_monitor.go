package futures

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/atmx/crossengine/internal/model"
)

// TickInterval is the Liquidation Monitor's schedule.
const TickInterval = 10 * time.Second

// LiquidationMonitor is a single-threaded cooperative loop that sweeps
// open futures positions every TickInterval and forces liquidation on
// any position whose mark has crossed its liquidation price. Overlapping
// ticks are dropped, never queued.
type LiquidationMonitor struct {
	engine  *Engine
	running atomic.Bool
}

// NewLiquidationMonitor builds a monitor over engine.
func NewLiquidationMonitor(engine *Engine) *LiquidationMonitor {
	return &LiquidationMonitor{engine: engine}
}

// Run blocks, ticking every TickInterval until ctx is cancelled. A panic
// or error in one tick is logged and never terminates the loop, except
// via ctx cancellation.
func (m *LiquidationMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *LiquidationMonitor) tick(ctx context.Context) {
	if !m.running.CompareAndSwap(false, true) {
		slog.Debug("liquidation monitor: skipping overlapping tick")
		return
	}
	defer m.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("liquidation monitor: tick panicked", "panic", r)
		}
	}()

	positions := m.engine.Positions()
	if len(positions) == 0 {
		return
	}

	marks := m.fetchMarks(ctx, positions)
	for _, pos := range positions {
		mark, ok := marks[pos.Ticker]
		if !ok {
			continue // per-ticker fetch failed; leave untouched this tick
		}
		if shouldLiquidate(pos, mark) {
			if _, err := m.engine.LiquidatePosition(pos.ID, mark); err != nil {
				slog.Error("liquidation monitor: liquidate failed", "id", pos.ID, "err", err)
			}
		}
	}
}

func (m *LiquidationMonitor) fetchMarks(ctx context.Context, positions []*model.FuturesPosition) map[string]float64 {
	tickers := map[string]bool{}
	for _, pos := range positions {
		tickers[pos.Ticker] = true
	}

	marks := map[string]float64{}
	for ticker := range tickers {
		q, err := m.engine.quotes.FetchQuote(ctx, CryptoSymbol(ticker))
		if err != nil {
			continue
		}
		marks[ticker] = q.Price
	}
	return marks
}

func shouldLiquidate(pos *model.FuturesPosition, mark float64) bool {
	if pos.Side == model.SideLong {
		return mark <= pos.LiquidationPrice
	}
	return mark >= pos.LiquidationPrice
}
