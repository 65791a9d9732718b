// Package spot implements the Spot Engine: stock and crypto buy/sell
// execution routed through the Portfolio Ledger, resolving a quote
// symbol per asset type and mapping quote failures into the engine error
// taxonomy.
package spot

import (
	"context"
	"fmt"
	"strings"

	"github.com/atmx/crossengine/internal/engineerr"
	"github.com/atmx/crossengine/internal/metrics"
	"github.com/atmx/crossengine/internal/model"
	"github.com/atmx/crossengine/internal/quote"
)

// Ledger is the subset of the Portfolio Ledger the Spot Engine needs.
type Ledger interface {
	BuySpot(ticker string, quantity, price float64, reasoning, assetType string) (string, error)
	SellSpot(ticker string, quantity, price float64, reasoning string) (string, error)
	TickerType(ticker string) model.TickerType
}

// Engine is the Spot Engine. It holds no mutable state of its own — all
// cash/holdings mutation is delegated to the ledger, which owns its own
// locking.
type Engine struct {
	ledger Ledger
	quotes quote.Provider
}

// New builds a Spot Engine over ledger and quotes.
func New(ledger Ledger, quotes quote.Provider) *Engine {
	return &Engine{ledger: ledger, quotes: quotes}
}

// QuoteSymbol resolves the symbol the quote provider should be asked for
// a given ticker and assetType ("stock" or "crypto"). Crypto tickers are
// queried against their USDT pair.
func QuoteSymbol(ticker, assetType string) string {
	ticker = strings.ToUpper(ticker)
	if strings.EqualFold(assetType, "stock") {
		return ticker
	}
	if strings.HasSuffix(ticker, "USDT") {
		return ticker
	}
	return ticker + "USDT"
}

// ExecuteBuy buys quantity of ticker at the live quote, crediting the
// transaction to the ledger's weighted-average holding. assetType may be
// empty, in which case the ledger's last-known ticker type is used,
// defaulting to crypto.
func (e *Engine) ExecuteBuy(ctx context.Context, ticker string, quantity float64, assetType, reasoning string) (string, error) {
	if quantity <= 0 {
		return "", fmt.Errorf("%w: quantity must be positive", engineerr.ErrInvalidParam)
	}
	assetType = e.resolveAssetType(ticker, assetType)

	q, err := e.quotes.FetchQuote(ctx, QuoteSymbol(ticker, assetType))
	if err != nil {
		return "", err
	}
	if q.Price <= 0 {
		return "", fmt.Errorf("%w: no live price for %s", engineerr.ErrInvalidParam, ticker)
	}

	ref, err := e.ledger.BuySpot(ticker, quantity, q.Price, reasoning, assetType)
	if err == nil {
		metrics.TradesTotal.WithLabelValues("buy").Inc()
	}
	return ref, err
}

// ExecuteSell sells quantity of ticker at the live quote.
func (e *Engine) ExecuteSell(ctx context.Context, ticker string, quantity float64, assetType, reasoning string) (string, error) {
	if quantity <= 0 {
		return "", fmt.Errorf("%w: quantity must be positive", engineerr.ErrInvalidParam)
	}
	assetType = e.resolveAssetType(ticker, assetType)

	q, err := e.quotes.FetchQuote(ctx, QuoteSymbol(ticker, assetType))
	if err != nil {
		return "", err
	}
	if q.Price <= 0 {
		return "", fmt.Errorf("%w: no live price for %s", engineerr.ErrInvalidParam, ticker)
	}

	ref, err := e.ledger.SellSpot(ticker, quantity, q.Price, reasoning)
	if err == nil {
		metrics.TradesTotal.WithLabelValues("sell").Inc()
	}
	return ref, err
}

// GetQuote returns the live price for ticker under assetType, without
// executing a trade.
func (e *Engine) GetQuote(ctx context.Context, ticker, assetType string) (float64, error) {
	assetType = e.resolveAssetType(ticker, assetType)
	q, err := e.quotes.FetchQuote(ctx, QuoteSymbol(ticker, assetType))
	if err != nil {
		return 0, err
	}
	return q.Price, nil
}

func (e *Engine) resolveAssetType(ticker, assetType string) string {
	if assetType != "" {
		return assetType
	}
	if e.ledger.TickerType(ticker) == model.TickerStock {
		return "stock"
	}
	return "crypto"
}
