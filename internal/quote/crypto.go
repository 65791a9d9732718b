package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// BinanceVendor fetches spot prices from Binance's public ticker
// endpoint for BASEQUOTE symbols (e.g. BTCUSDT).
type BinanceVendor struct {
	baseURL string
	client  *http.Client
	limiter *RateLimiter
}

// NewBinanceVendor builds a vendor against Binance's production REST API
// (or a test baseURL), rate-limited to a conservative request budget.
func NewBinanceVendor(baseURL string) *BinanceVendor {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	return &BinanceVendor{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		limiter: NewRateLimiter(1_100), // Binance's public limit is ~1200/min
	}
}

type binanceTickerResp struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Fetch hits GET /api/v3/ticker/price?symbol=... and parses the price.
func (v *BinanceVendor) Fetch(ctx context.Context, symbol string) (float64, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	var price float64
	err := Retry(ctx, 3, 200*time.Millisecond, func() error {
		url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", v.baseURL, symbol)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}

		resp, err := v.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("binance: unexpected status %d for %s", resp.StatusCode, symbol)
		}

		var body binanceTickerResp
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return err
		}

		var parsed float64
		if _, err := fmt.Sscanf(body.Price, "%f", &parsed); err != nil {
			return fmt.Errorf("binance: unparseable price %q: %w", body.Price, err)
		}
		price = parsed
		return nil
	})
	return price, err
}
