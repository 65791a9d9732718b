package quote

import (
	"context"
	"strings"
)

// RoutingVendor dispatches a Fetch to the crypto vendor when symbol carries
// a USDT pair suffix, and to the stock vendor otherwise. It lets a single
// Provider serve both asset classes without the caller needing to know
// which upstream API backs a given symbol.
type RoutingVendor struct {
	stock  Vendor
	crypto Vendor
}

// NewRoutingVendor builds a vendor that routes by symbol shape.
func NewRoutingVendor(stock, crypto Vendor) *RoutingVendor {
	return &RoutingVendor{stock: stock, crypto: crypto}
}

// Fetch implements Vendor.
func (v *RoutingVendor) Fetch(ctx context.Context, symbol string) (float64, error) {
	if strings.HasSuffix(strings.ToUpper(symbol), "USDT") {
		return v.crypto.Fetch(ctx, symbol)
	}
	return v.stock.Fetch(ctx, symbol)
}
