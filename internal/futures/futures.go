// Package futures implements the leveraged crypto perpetual Futures
// Engine: isolated-margin open/close, leverage configuration, live mark
// refresh, and forced liquidation. Positions are always 1-150x leverage
// against a crypto mark price quoted in USDT.
package futures

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atmx/crossengine/internal/broadcast"
	"github.com/atmx/crossengine/internal/engineerr"
	"github.com/atmx/crossengine/internal/margin"
	"github.com/atmx/crossengine/internal/metrics"
	"github.com/atmx/crossengine/internal/model"
	"github.com/atmx/crossengine/internal/quote"
	"github.com/atmx/crossengine/internal/store"
)

// DefaultLeverage is applied when a position omits leverage and the
// ticker has no per-ticker setting.
const DefaultLeverage = 20

// CashLedger is the subset of the Portfolio Ledger the Futures Engine
// needs: the sole adjustCash channel, plus a read of current cash for
// pre-trade checks.
type CashLedger interface {
	AdjustCash(delta float64) error
	Cash() float64
}

// Engine is the Futures Engine. All public operations are serialized by
// mu, matching the per-engine-mutex requirement for threaded
// implementations.
type Engine struct {
	mu          sync.Mutex
	store       *store.FileStore[*model.FuturesAccount]
	data        *model.FuturesAccount
	ledger      CashLedger
	quotes      quote.Provider
	broadcaster broadcast.Broadcaster
}

// New loads (or first-run-defaults) the futures account from fileStore.
func New(fileStore *store.FileStore[*model.FuturesAccount], ledger CashLedger, quotes quote.Provider, broadcaster broadcast.Broadcaster) (*Engine, error) {
	data, err := fileStore.Load()
	if err != nil {
		return nil, err
	}
	if broadcaster == nil {
		broadcaster = broadcast.Noop{}
	}
	return &Engine{store: fileStore, data: data, ledger: ledger, quotes: quotes, broadcaster: broadcaster}, nil
}

// CryptoSymbol maps a bare crypto ticker to its USDT quote symbol,
// idempotently.
func CryptoSymbol(ticker string) string {
	ticker = strings.ToUpper(ticker)
	if strings.HasSuffix(ticker, "USDT") {
		return ticker
	}
	return ticker + "USDT"
}

// OpenLong opens a long position. lev<=0 means "unset": falls back to
// the per-ticker setting, then DefaultLeverage.
func (e *Engine) OpenLong(ctx context.Context, ticker string, qty float64, lev int) (*model.FuturesPosition, error) {
	return e.open(ctx, ticker, qty, lev, model.SideLong)
}

// OpenShort opens a short position, same validation as OpenLong.
func (e *Engine) OpenShort(ctx context.Context, ticker string, qty float64, lev int) (*model.FuturesPosition, error) {
	return e.open(ctx, ticker, qty, lev, model.SideShort)
}

func (e *Engine) open(ctx context.Context, ticker string, qty float64, lev int, side model.Side) (*model.FuturesPosition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ticker = strings.ToUpper(ticker)
	if lev <= 0 {
		if setting, ok := e.data.LeverageSettings[ticker]; ok {
			lev = setting
		} else {
			lev = DefaultLeverage
		}
	}
	if qty <= 0 || lev < 1 || lev > 150 {
		return nil, fmt.Errorf("%w: qty must be positive and leverage in [1,150]", engineerr.ErrInvalidParam)
	}

	q, err := e.quotes.FetchQuote(ctx, CryptoSymbol(ticker))
	if err != nil {
		return nil, err
	}
	mark := q.Price

	initialMargin := margin.InitialMargin(qty, mark, float64(lev))
	if e.ledger.Cash() < initialMargin {
		return nil, fmt.Errorf("%w: need %.2f margin", engineerr.ErrInsufficientFunds, initialMargin)
	}

	notional := qty * mark
	mmRate := margin.MaintenanceMarginRate(notional)
	liqPrice := margin.LiquidationPrice(side, mark, float64(lev), mmRate)
	maintenanceMargin := margin.MaintenanceMargin(qty, mark, mmRate)

	if err := e.ledger.AdjustCash(-initialMargin); err != nil {
		return nil, err
	}

	now := time.Now()
	pos := &model.FuturesPosition{
		ID:                    uuid.NewString(),
		Ticker:                ticker,
		AssetClass:            model.AssetCryptoPerp,
		Side:                  side,
		Quantity:              qty,
		EntryPrice:            mark,
		MarkPrice:             mark,
		Leverage:              float64(lev),
		MarginMode:            "isolated",
		InitialMargin:         initialMargin,
		MaintenanceMargin:     maintenanceMargin,
		MarginBalance:         initialMargin,
		LiquidationPrice:      liqPrice,
		MaintenanceMarginRate: mmRate,
		OpenedAt:              now,
		UpdatedAt:             now,
	}
	e.data.Positions[pos.ID] = pos

	txType := "open_long"
	sideLabel := "long"
	if side == model.SideShort {
		txType = "open_short"
		sideLabel = "short"
	}
	e.appendTransaction(txType, ticker, qty, mark, float64(lev), 0)

	if err := e.save(); err != nil {
		return nil, err
	}
	metrics.FuturesOpensTotal.WithLabelValues(sideLabel).Inc()
	metrics.OpenFuturesPositions.Set(float64(len(e.data.Positions)))
	return cloneFuturesPosition(pos), nil
}

// ClosePosition closes all or part of a position, crediting released
// margin plus realized PnL back to cash.
func (e *Engine) ClosePosition(ctx context.Context, id string, qty float64) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.data.Positions[id]
	if !ok {
		return 0, fmt.Errorf("%w: position %s", engineerr.ErrNotFound, id)
	}
	if qty <= 0 {
		qty = pos.Quantity
	}
	if qty <= 0 || qty > pos.Quantity {
		return 0, fmt.Errorf("%w: close quantity exceeds position", engineerr.ErrInvalidParam)
	}

	q, err := e.quotes.FetchQuote(ctx, CryptoSymbol(pos.Ticker))
	if err != nil {
		return 0, err
	}
	mark := q.Price

	pnl := margin.UnrealizedPnl(pos.Side, qty, pos.EntryPrice, mark)
	marginReleased := (qty / pos.Quantity) * pos.InitialMargin
	credit := marginReleased + pnl
	if credit < 0 {
		credit = 0
	}
	if err := e.ledger.AdjustCash(credit); err != nil {
		return 0, err
	}

	remaining := pos.Quantity - qty
	if remaining <= 0 {
		delete(e.data.Positions, id)
	} else {
		pos.Quantity = remaining
		pos.InitialMargin -= marginReleased
		pos.MarginBalance = pos.InitialMargin
		pos.RealizedPnl += pnl
		pos.UpdatedAt = time.Now()
	}

	txType := "close_long"
	if pos.Side == model.SideShort {
		txType = "close_short"
	}
	e.appendTransaction(txType, pos.Ticker, qty, mark, pos.Leverage, pnl)

	if err := e.save(); err != nil {
		return 0, err
	}
	metrics.OpenFuturesPositions.Set(float64(len(e.data.Positions)))
	return pnl, nil
}

// SetLeverage sets the per-ticker leverage default. Rejected if any open
// position exists for that ticker.
func (e *Engine) SetLeverage(ticker string, lev int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ticker = strings.ToUpper(ticker)
	for _, pos := range e.data.Positions {
		if pos.Ticker == ticker {
			return fmt.Errorf("%w: open position exists for %s", engineerr.ErrInvariant, ticker)
		}
	}
	if lev < 1 || lev > 150 {
		return fmt.Errorf("%w: leverage must be in [1,150]", engineerr.ErrInvalidParam)
	}
	e.data.LeverageSettings[ticker] = lev
	return e.save()
}

// GetPositions refreshes marks for every unique ticker (swallowing
// per-ticker fetch failures, keeping the last known mark), recomputes
// derived fields, and returns a copy.
func (e *Engine) GetPositions(ctx context.Context) []*model.FuturesPosition {
	e.mu.Lock()
	defer e.mu.Unlock()

	marks := e.refreshMarksLocked(ctx)
	out := make([]*model.FuturesPosition, 0, len(e.data.Positions))
	for _, pos := range e.data.Positions {
		if mark, ok := marks[pos.Ticker]; ok && mark > 0 {
			pos.MarkPrice = mark
		}
		e.recomputeLocked(pos)
		out = append(out, cloneFuturesPosition(pos))
	}
	return out
}

// Account is the result of GetAccount.
type Account struct {
	AvailableBalance  float64
	TotalMarginUsed   float64
	TotalUnrealizedPnl float64
}

// GetAccount summarizes margin usage across open positions.
func (e *Engine) GetAccount(ctx context.Context) Account {
	positions := e.GetPositions(ctx)

	var marginUsed, unrealized float64
	for _, pos := range positions {
		marginUsed += pos.InitialMargin
		unrealized += pos.UnrealizedPnl
	}
	return Account{
		AvailableBalance:   e.ledger.Cash(),
		TotalMarginUsed:    marginUsed,
		TotalUnrealizedPnl: unrealized,
	}
}

// LiquidationInfo is emitted on a forced liquidation.
type LiquidationInfo struct {
	Ticker          string
	Side            model.Side
	Quantity        float64
	EntryPrice      float64
	MarkPrice       float64
	Pnl             float64
	LiquidatedAtISO string
}

// LiquidatePosition force-closes a position at markPrice, flooring the
// reported loss at the position's margin balance so cash never goes
// negative from a single liquidation.
func (e *Engine) LiquidatePosition(id string, markPrice float64) (*LiquidationInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.data.Positions[id]
	if !ok {
		return nil, fmt.Errorf("%w: position %s", engineerr.ErrNotFound, id)
	}

	pnl := margin.UnrealizedPnl(pos.Side, pos.Quantity, pos.EntryPrice, markPrice)
	if pnl < -pos.MarginBalance {
		pnl = -pos.MarginBalance
	}
	credit := pos.MarginBalance + pnl
	if credit < 0 {
		credit = 0
	}
	if err := e.ledger.AdjustCash(credit); err != nil {
		return nil, err
	}

	delete(e.data.Positions, id)
	e.appendTransaction("liquidation", pos.Ticker, pos.Quantity, markPrice, pos.Leverage, pnl)

	if err := e.save(); err != nil {
		return nil, err
	}
	metrics.LiquidationsTotal.Inc()
	metrics.OpenFuturesPositions.Set(float64(len(e.data.Positions)))

	info := &LiquidationInfo{
		Ticker:          pos.Ticker,
		Side:            pos.Side,
		Quantity:        pos.Quantity,
		EntryPrice:      pos.EntryPrice,
		MarkPrice:       markPrice,
		Pnl:             pnl,
		LiquidatedAtISO: time.Now().Format(time.RFC3339),
	}
	e.broadcaster.Emit("futures.liquidation", info)
	return info, nil
}

// Positions returns a snapshot of raw positions without refreshing
// marks — used by the Liquidation Monitor, which fetches its own marks
// per tick.
func (e *Engine) Positions() []*model.FuturesPosition {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*model.FuturesPosition, 0, len(e.data.Positions))
	for _, pos := range e.data.Positions {
		out = append(out, cloneFuturesPosition(pos))
	}
	return out
}

// GetTransactions returns the most recent limit transactions,
// reverse-chronological.
func (e *Engine) GetTransactions(limit int) []model.FuturesTransaction {
	e.mu.Lock()
	defer e.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	n := len(e.data.Transactions)
	if n > limit {
		n = limit
	}
	out := make([]model.FuturesTransaction, n)
	for i := 0; i < n; i++ {
		out[i] = e.data.Transactions[len(e.data.Transactions)-1-i]
	}
	return out
}

func (e *Engine) refreshMarksLocked(ctx context.Context) map[string]float64 {
	tickers := map[string]bool{}
	for _, pos := range e.data.Positions {
		tickers[pos.Ticker] = true
	}

	marks := map[string]float64{}
	for ticker := range tickers {
		q, err := e.quotes.FetchQuote(ctx, CryptoSymbol(ticker))
		if err != nil {
			continue // swallow: keep last known mark
		}
		marks[ticker] = q.Price
	}
	return marks
}

func (e *Engine) recomputeLocked(pos *model.FuturesPosition) {
	notional := pos.Quantity * pos.MarkPrice
	pos.MaintenanceMarginRate = margin.MaintenanceMarginRate(notional)
	pos.MaintenanceMargin = margin.MaintenanceMargin(pos.Quantity, pos.MarkPrice, pos.MaintenanceMarginRate)
	pos.UnrealizedPnl = margin.UnrealizedPnl(pos.Side, pos.Quantity, pos.EntryPrice, pos.MarkPrice)
	pos.Roe = margin.ROE(pos.UnrealizedPnl, pos.InitialMargin)
	pos.UpdatedAt = time.Now()
}

func (e *Engine) appendTransaction(txType, ticker string, qty, price, lev, pnl float64) {
	e.data.Transactions = append(e.data.Transactions, model.FuturesTransaction{
		Type:     txType,
		Ticker:   ticker,
		Quantity: qty,
		Price:    price,
		Leverage: lev,
		Pnl:      pnl,
		DateISO:  time.Now().Format(time.RFC3339),
	})
}

func (e *Engine) save() error {
	if err := e.store.Save(e.data); err != nil {
		return fmt.Errorf("%w: %v", engineerr.ErrPersistence, err)
	}
	return nil
}

func cloneFuturesPosition(pos *model.FuturesPosition) *model.FuturesPosition {
	clone := *pos
	return &clone
}
