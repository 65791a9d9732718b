// Package snapshot implements the Snapshot Aggregator: a unified,
// read-only view across the Portfolio Ledger and the Futures and
// Options engines, with market values, day P/L, and positions sorted by
// absolute PnL.
package snapshot

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/atmx/crossengine/internal/futures"
	"github.com/atmx/crossengine/internal/ledger"
	"github.com/atmx/crossengine/internal/model"
	"github.com/atmx/crossengine/internal/options"
	"github.com/atmx/crossengine/internal/quote"
)

// SpotHolding is one enriched spot holding line.
type SpotHolding struct {
	Ticker       string               `json:"ticker"`
	Quantity     float64              `json:"quantity"`
	AveragePrice float64              `json:"averagePrice"`
	MarketPrice  float64              `json:"marketPrice"`
	MarketValue  float64              `json:"marketValue"`
	CostBasis    float64              `json:"costBasis"`
	Pnl          float64              `json:"pnl"`
	PnlPercent   float64              `json:"pnlPercent"`
	AssetClass   model.AssetClass     `json:"assetClass"`
	Thesis       string               `json:"thesis,omitempty"`
	Context      string               `json:"context,omitempty"`
	Transactions []model.Transaction  `json:"transactions"`
}

// PositionSummary is one line in the cross-product allPositions list.
type PositionSummary struct {
	Kind   string  `json:"kind"` // spot|futures|options
	Ticker string  `json:"ticker"`
	Pnl    float64 `json:"pnl"`
}

// DayPnl is the day-over-day change in total equity.
type DayPnl struct {
	Amount     float64 `json:"amount"`
	Percent    float64 `json:"percent"`
	HasBaseline bool   `json:"hasBaseline"`
}

// PortfolioSnapshot is the unified view returned by GetEnrichedSnapshot.
type PortfolioSnapshot struct {
	Cash                 float64                     `json:"cash"`
	SpotHoldings         []SpotHolding                `json:"spotHoldings"`
	FuturesPositions     []*model.FuturesPosition     `json:"futuresPositions"`
	FuturesAccount       futures.Account              `json:"futuresAccount"`
	OptionsPositions     []*model.OptionPosition      `json:"optionsPositions"`
	TotalEquity          float64                      `json:"totalEquity"`
	AllPositions         []PositionSummary             `json:"allPositions"`
	DayPnl               DayPnl                        `json:"dayPnl"`
}

// Aggregator is the Snapshot Aggregator.
type Aggregator struct {
	ledger  *ledger.Ledger
	futures *futures.Engine
	options *options.Engine
	quotes  quote.Provider
}

// New builds an Aggregator. futuresEngine/optionsEngine may be nil, in
// which case their sections of the snapshot are empty.
func New(l *ledger.Ledger, futuresEngine *futures.Engine, optionsEngine *options.Engine, quotes quote.Provider) *Aggregator {
	return &Aggregator{ledger: l, futures: futuresEngine, options: optionsEngine, quotes: quotes}
}

// GetEnrichedSnapshot builds the unified PortfolioSnapshot: bulk quote
// fetch for every spot holding, mark-to-market futures and options
// positions, total equity, cross-product position ranking, and day P/L
// against the most recent non-today daily snapshot. Fire-and-forgets
// today's daily snapshot write.
func (a *Aggregator) GetEnrichedSnapshot(ctx context.Context) PortfolioSnapshot {
	portfolio := a.ledger.Snapshot()

	prices := a.bulkFetchSpotPrices(ctx, portfolio)
	spotHoldings, spotEquity := a.buildSpotHoldings(portfolio, prices)

	var futuresPositions []*model.FuturesPosition
	var account futures.Account
	if a.futures != nil {
		futuresPositions = a.futures.GetPositions(ctx)
		account = a.futures.GetAccount(ctx)
	}

	var optionsPositions []*model.OptionPosition
	if a.options != nil {
		optionsPositions = a.options.GetPositions(ctx)
	}
	var optionsValue float64
	for _, pos := range optionsPositions {
		optionsValue += pos.CurrentValue
	}

	totalEquity := portfolio.Cash + spotEquity + account.TotalMarginUsed + account.TotalUnrealizedPnl + optionsValue

	all := make([]PositionSummary, 0, len(spotHoldings)+len(futuresPositions)+len(optionsPositions))
	for _, h := range spotHoldings {
		all = append(all, PositionSummary{Kind: "spot", Ticker: h.Ticker, Pnl: h.Pnl})
	}
	for _, p := range futuresPositions {
		all = append(all, PositionSummary{Kind: "futures", Ticker: p.Ticker, Pnl: p.UnrealizedPnl})
	}
	for _, p := range optionsPositions {
		all = append(all, PositionSummary{Kind: "options", Ticker: p.Contract.Underlying, Pnl: p.UnrealizedPnl})
	}
	sort.SliceStable(all, func(i, j int) bool { return math.Abs(all[i].Pnl) > math.Abs(all[j].Pnl) })

	dayPnl := dayOverDayPnl(portfolio.DailySnapshots, totalEquity)

	go func() {
		_ = a.ledger.RecordDailySnapshot(totalEquity)
	}()

	return PortfolioSnapshot{
		Cash:             portfolio.Cash,
		SpotHoldings:     spotHoldings,
		FuturesPositions: futuresPositions,
		FuturesAccount:   account,
		OptionsPositions: optionsPositions,
		TotalEquity:      totalEquity,
		AllPositions:     all,
		DayPnl:           dayPnl,
	}
}

func (a *Aggregator) bulkFetchSpotPrices(ctx context.Context, portfolio *model.Portfolio) map[string]float64 {
	if len(portfolio.Holdings) == 0 {
		return nil
	}

	var stockSymbols, cryptoSymbols []string
	for ticker := range portfolio.Holdings {
		if portfolio.TickerTypes[ticker] == model.TickerStock {
			stockSymbols = append(stockSymbols, ticker)
		} else {
			cryptoSymbols = append(cryptoSymbols, cryptoQuoteSymbol(ticker))
		}
	}

	prices := map[string]float64{}
	for symbol, price := range a.fetchBatch(ctx, stockSymbols) {
		prices[symbol] = price
	}
	for symbol, price := range a.fetchBatch(ctx, cryptoSymbols) {
		prices[strings.TrimSuffix(symbol, "USDT")] = price
	}
	return prices
}

func (a *Aggregator) fetchBatch(ctx context.Context, symbols []string) map[string]float64 {
	if len(symbols) == 0 {
		return nil
	}
	quotes, _ := a.quotes.FetchQuotes(ctx, symbols)
	out := make(map[string]float64, len(quotes))
	for _, q := range quotes {
		out[q.Symbol] = q.Price
	}
	return out
}

func cryptoQuoteSymbol(ticker string) string {
	ticker = strings.ToUpper(ticker)
	if strings.HasSuffix(ticker, "USDT") {
		return ticker
	}
	return ticker + "USDT"
}

func (a *Aggregator) buildSpotHoldings(portfolio *model.Portfolio, prices map[string]float64) ([]SpotHolding, float64) {
	holdings := make([]SpotHolding, 0, len(portfolio.Holdings))
	var spotEquity float64

	for ticker, h := range portfolio.Holdings {
		marketPrice, ok := prices[ticker]
		if !ok || marketPrice <= 0 {
			marketPrice = h.AveragePrice // per-source failure falls back to average cost
		}
		marketValue := h.Quantity * marketPrice
		costBasis := h.Quantity * h.AveragePrice
		pnl := marketValue - costBasis
		var pnlPercent float64
		if costBasis > 0 {
			pnlPercent = pnl / costBasis * 100
		}

		meta := portfolio.HoldingMeta[ticker]
		txs := transactionsForTicker(portfolio.TransactionHistory, ticker, 10)

		holdings = append(holdings, SpotHolding{
			Ticker:       ticker,
			Quantity:     h.Quantity,
			AveragePrice: h.AveragePrice,
			MarketPrice:  marketPrice,
			MarketValue:  marketValue,
			CostBasis:    costBasis,
			Pnl:          pnl,
			PnlPercent:   pnlPercent,
			AssetClass:   h.AssetClass,
			Thesis:       meta.Thesis,
			Context:      meta.Context,
			Transactions: txs,
		})
		spotEquity += marketValue
	}

	sort.SliceStable(holdings, func(i, j int) bool { return holdings[i].Ticker < holdings[j].Ticker })
	return holdings, spotEquity
}

func transactionsForTicker(history []model.Transaction, ticker string, limit int) []model.Transaction {
	var matches []model.Transaction
	for _, tx := range history {
		if tx.Ticker == ticker {
			matches = append(matches, tx)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Timestamp.After(matches[j].Timestamp) })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func dayOverDayPnl(history []model.DailySnapshot, totalEquity float64) DayPnl {
	today := time.Now().Format("2006-01-02")
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Date == today {
			continue
		}
		prev := history[i].TotalValue
		amount := totalEquity - prev
		var percent float64
		if prev != 0 {
			percent = amount / prev * 100
		}
		return DayPnl{Amount: amount, Percent: percent, HasBaseline: true}
	}
	return DayPnl{}
}
