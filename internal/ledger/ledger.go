// Package ledger implements the Portfolio Ledger: the cash-coherent
// account every product engine shares. It owns cash, spot holdings, spot
// transaction history, and daily mark snapshots. adjustCash is the only
// sanctioned channel by which an engine may change cash.
package ledger

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atmx/crossengine/internal/engineerr"
	"github.com/atmx/crossengine/internal/model"
	"github.com/atmx/crossengine/internal/store"
)

// Ledger is not guarded by a lock in the reference design this engine
// follows, but this implementation runs under a real multi-threaded HTTP
// server, so every public operation takes mu — matching how the
// teacher's own trade.Service serializes mutations with its own mutex.
type Ledger struct {
	mu    sync.Mutex
	store *store.FileStore[*model.Portfolio]
	data  *model.Portfolio
}

// New loads (or first-run-defaults) the portfolio from fileStore.
func New(fileStore *store.FileStore[*model.Portfolio]) (*Ledger, error) {
	data, err := fileStore.Load()
	if err != nil {
		return nil, err
	}
	return &Ledger{store: fileStore, data: data}, nil
}

// BuySpot executes a spot purchase, merging into an existing holding at
// weighted-average cost or creating a new one.
func (l *Ledger) BuySpot(ticker string, quantity, price float64, reasoning, assetType string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if quantity <= 0 || price <= 0 {
		return "", fmt.Errorf("%w: quantity and price must be positive", engineerr.ErrInvalidParam)
	}

	ticker = strings.ToUpper(ticker)
	cost := quantity * price
	if l.data.Cash < cost {
		return "", fmt.Errorf("%w: need %.2f, have %.2f", engineerr.ErrInsufficientFunds, cost, l.data.Cash)
	}

	l.data.Cash -= cost

	class := assetClassFor(assetType)
	if assetType != "" {
		if strings.EqualFold(assetType, "stock") {
			l.data.TickerTypes[ticker] = model.TickerStock
		} else {
			l.data.TickerTypes[ticker] = model.TickerCrypto
		}
	}
	if existing, ok := l.data.Holdings[ticker]; ok {
		newQty := existing.Quantity + quantity
		existing.AveragePrice = (existing.Quantity*existing.AveragePrice + quantity*price) / newQty
		existing.Quantity = newQty
		if assetType != "" {
			existing.AssetClass = class
		}
	} else {
		l.data.Holdings[ticker] = &model.Holding{
			Quantity:     quantity,
			AveragePrice: price,
			AssetClass:   class,
		}
	}

	l.appendTransaction("buy", ticker, quantity, price, reasoning)

	if err := l.save(); err != nil {
		return "", err
	}
	return fmt.Sprintf("bought %.8g %s @ %.2f", quantity, ticker, price), nil
}

// SellSpot executes a spot sale, crediting cash and shrinking or removing
// the holding.
func (l *Ledger) SellSpot(ticker string, quantity, price float64, reasoning string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if quantity <= 0 || price <= 0 {
		return "", fmt.Errorf("%w: quantity and price must be positive", engineerr.ErrInvalidParam)
	}

	ticker = strings.ToUpper(ticker)
	holding, ok := l.data.Holdings[ticker]
	if !ok || holding.Quantity < quantity {
		return "", fmt.Errorf("%w: %s", engineerr.ErrInsufficientHoldings, ticker)
	}

	l.data.Cash += quantity * price
	remaining := holding.Quantity - quantity
	if remaining <= 0 {
		delete(l.data.Holdings, ticker)
	} else {
		holding.Quantity = remaining
	}

	l.appendTransaction("sell", ticker, quantity, price, reasoning)

	if err := l.save(); err != nil {
		return "", err
	}
	return fmt.Sprintf("sold %.8g %s @ %.2f", quantity, ticker, price), nil
}

// AdjustCash is the sole channel by which engines change cash. The
// result is clamped to a zero floor.
func (l *Ledger) AdjustCash(delta float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.data.Cash += delta
	if l.data.Cash < 0 {
		l.data.Cash = 0
	}
	return l.save()
}

// SetHoldingMeta partial-updates the thesis/context annotation for a
// ticker.
func (l *Ledger) SetHoldingMeta(ticker string, thesis, context string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ticker = strings.ToUpper(ticker)
	meta := l.data.HoldingMeta[ticker]
	if thesis != "" {
		meta.Thesis = thesis
	}
	if context != "" {
		meta.Context = context
	}
	l.data.HoldingMeta[ticker] = meta
	return l.save()
}

// Reset replaces the ledger with fresh defaults, except that the daily
// snapshot history is carried over. Engine data (futures, options) is
// untouched — callers that want a full reset must reset
// those stores separately.
func (l *Ledger) Reset(cash float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cash <= 0 {
		cash = 100_000
	}
	l.data = &model.Portfolio{
		Cash:               cash,
		Holdings:           map[string]*model.Holding{},
		HoldingMeta:        map[string]model.HoldingMeta{},
		TransactionHistory: []model.Transaction{},
		TickerTypes:        map[string]model.TickerType{},
		DailySnapshots:     l.data.DailySnapshots,
	}
	return l.save()
}

// RecordDailySnapshot create-or-updates today's entry, capping history
// at the most recent 90 entries.
func (l *Ledger) RecordDailySnapshot(totalValue float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := time.Now().Format("2006-01-02")
	for i := range l.data.DailySnapshots {
		if l.data.DailySnapshots[i].Date == today {
			l.data.DailySnapshots[i].TotalValue = totalValue
			return l.save()
		}
	}
	l.data.DailySnapshots = append(l.data.DailySnapshots, model.DailySnapshot{Date: today, TotalValue: totalValue})
	if len(l.data.DailySnapshots) > 90 {
		l.data.DailySnapshots = l.data.DailySnapshots[len(l.data.DailySnapshots)-90:]
	}
	return l.save()
}

// PortfolioValue is the result of GetPortfolioValue.
type PortfolioValue struct {
	TotalValue float64
	SpotEquity float64
	Cash       float64
}

// GetPortfolioValue marks every holding to currentPrices, falling back
// to its average cost when no current price is supplied.
func (l *Ledger) GetPortfolioValue(currentPrices map[string]float64) PortfolioValue {
	l.mu.Lock()
	defer l.mu.Unlock()

	var spotEquity float64
	for ticker, h := range l.data.Holdings {
		price, ok := currentPrices[ticker]
		if !ok || price <= 0 {
			price = h.AveragePrice
		}
		spotEquity += h.Quantity * price
	}
	return PortfolioValue{
		TotalValue: l.data.Cash + spotEquity,
		SpotEquity: spotEquity,
		Cash:       l.data.Cash,
	}
}

// Snapshot returns a deep-enough copy of the portfolio for read-only
// consumers (the snapshot aggregator, HTTP handlers).
func (l *Ledger) Snapshot() *model.Portfolio {
	l.mu.Lock()
	defer l.mu.Unlock()

	holdings := make(map[string]*model.Holding, len(l.data.Holdings))
	for k, v := range l.data.Holdings {
		copyV := *v
		holdings[k] = &copyV
	}
	meta := make(map[string]model.HoldingMeta, len(l.data.HoldingMeta))
	for k, v := range l.data.HoldingMeta {
		meta[k] = v
	}
	history := make([]model.Transaction, len(l.data.TransactionHistory))
	copy(history, l.data.TransactionHistory)
	snapshots := make([]model.DailySnapshot, len(l.data.DailySnapshots))
	copy(snapshots, l.data.DailySnapshots)
	tickerTypes := make(map[string]model.TickerType, len(l.data.TickerTypes))
	for k, v := range l.data.TickerTypes {
		tickerTypes[k] = v
	}

	return &model.Portfolio{
		Cash:               l.data.Cash,
		Holdings:           holdings,
		HoldingMeta:        meta,
		TransactionHistory: history,
		TickerTypes:        tickerTypes,
		DailySnapshots:     snapshots,
	}
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.data.Cash
}

// TickerType returns the legacy per-ticker asset hint, defaulting to
// crypto when unset.
func (l *Ledger) TickerType(ticker string) model.TickerType {
	l.mu.Lock()
	defer l.mu.Unlock()

	if t, ok := l.data.TickerTypes[strings.ToUpper(ticker)]; ok {
		return t
	}
	return model.TickerCrypto
}

func (l *Ledger) appendTransaction(txType, ticker string, quantity, price float64, reasoning string) {
	now := time.Now()
	l.data.TransactionHistory = append(l.data.TransactionHistory, model.Transaction{
		Type:      txType,
		Ticker:    ticker,
		Quantity:  quantity,
		Price:     price,
		DateISO:   now.Format(time.RFC3339),
		Reasoning: reasoning,
		Timestamp: now,
	})
}

func (l *Ledger) save() error {
	if err := l.store.Save(l.data); err != nil {
		return fmt.Errorf("%w: %v", engineerr.ErrPersistence, err)
	}
	return nil
}

func assetClassFor(assetType string) model.AssetClass {
	if strings.EqualFold(assetType, "stock") {
		return model.AssetUSStockSpot
	}
	return model.AssetCryptoSpot
}

// Transactions returns the last limit buy/sell transactions across every
// ticker, reverse chronological. limit<=0 returns all.
func (l *Ledger) Transactions(limit int) []model.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()

	matches := make([]model.Transaction, 0, len(l.data.TransactionHistory))
	for i := len(l.data.TransactionHistory) - 1; i >= 0; i-- {
		matches = append(matches, l.data.TransactionHistory[i])
	}
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// TransactionsForTicker returns the last limit buy/sell transactions for
// ticker, reverse chronological. limit<=0 returns all.
func (l *Ledger) TransactionsForTicker(ticker string, limit int) []model.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()

	ticker = strings.ToUpper(ticker)
	var matches []model.Transaction
	for i := len(l.data.TransactionHistory) - 1; i >= 0; i-- {
		if tx := l.data.TransactionHistory[i]; tx.Ticker == ticker {
			matches = append(matches, tx)
		}
	}
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
