package quote

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// AlpacaVendor fetches the last trade price for bare US equity tickers
// via Alpaca's market-data API.
type AlpacaVendor struct {
	client *marketdata.Client
}

// NewAlpacaVendor builds a vendor against the given Alpaca credentials.
// An empty dataURL uses the SDK's default market-data base URL.
func NewAlpacaVendor(apiKey, apiSecret, dataURL string) *AlpacaVendor {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaVendor{client: marketdata.NewClient(opts)}
}

// Fetch returns the last trade price for symbol.
func (v *AlpacaVendor) Fetch(ctx context.Context, symbol string) (float64, error) {
	trade, err := v.client.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return 0, fmt.Errorf("alpaca: latest trade for %s: %w", symbol, err)
	}
	return trade.Price, nil
}
