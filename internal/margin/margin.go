// Package margin implements the pure isolated-margin formulas for the
// leveraged crypto perpetual futures engine: initial margin, the tiered
// maintenance margin rate, maintenance margin, liquidation price,
// unrealized PnL, and ROE. Every function here is stateless and never
// suspends — no I/O, no clock reads.
package margin

import (
	"math"

	"github.com/atmx/crossengine/internal/model"
)

// Tier is one maintenance-margin bracket, covering notional in
// [Floor, Ceiling).
type Tier struct {
	Floor   float64
	Ceiling float64 // math.Inf(1) for the open-ended top tier
	Rate    float64
}

// Tiers are the engine's fixed maintenance-margin brackets, in ascending
// notional order. A position's mmRate is the rate of the tier whose
// [Floor, Ceiling) contains its notional.
var Tiers = []Tier{
	{Floor: 0, Ceiling: 50_000, Rate: 0.004},
	{Floor: 50_000, Ceiling: 250_000, Rate: 0.005},
	{Floor: 250_000, Ceiling: 1_000_000, Rate: 0.01},
	{Floor: 1_000_000, Ceiling: math.Inf(1), Rate: 0.025},
}

// InitialMargin returns the collateral a position must post to open.
//
//	initialMargin = quantity * entryPrice / leverage
func InitialMargin(quantity, entryPrice, leverage float64) float64 {
	return quantity * entryPrice / leverage
}

// MaintenanceMarginRate returns the tiered rate for the given notional.
func MaintenanceMarginRate(notional float64) float64 {
	for _, tier := range Tiers {
		if notional >= tier.Floor && notional < tier.Ceiling {
			return tier.Rate
		}
	}
	// Unreachable: the top tier's Ceiling is +Inf, so every finite
	// notional ≥ 0 matches a tier above.
	return Tiers[len(Tiers)-1].Rate
}

// MaintenanceMargin returns the collateral floor below which a position
// is liquidatable.
//
//	maintenanceMargin = quantity * markPrice * mmRate
func MaintenanceMargin(quantity, markPrice, mmRate float64) float64 {
	return quantity * markPrice * mmRate
}

// LiquidationPrice returns the closed-form mark price at which a
// position's margin balance is exhausted.
//
//	long:  entry * (1 - 1/leverage + mmRate)
//	short: entry * (1 + 1/leverage - mmRate)
func LiquidationPrice(side model.Side, entryPrice, leverage, mmRate float64) float64 {
	if side == model.SideShort {
		return entryPrice * (1 + 1/leverage - mmRate)
	}
	return entryPrice * (1 - 1/leverage + mmRate)
}

// UnrealizedPnl returns the mark-to-market PnL for quantity units of a
// position entered at entryPrice, currently marked at markPrice.
//
//	long:  (mark - entry) * qty
//	short: (entry - mark) * qty
func UnrealizedPnl(side model.Side, quantity, entryPrice, markPrice float64) float64 {
	if side == model.SideShort {
		return (entryPrice - markPrice) * quantity
	}
	return (markPrice - entryPrice) * quantity
}

// ROE returns the return on the margin actually posted, as a percentage.
// Returns 0 when initialMargin is non-positive rather than dividing by
// zero.
func ROE(pnl, initialMargin float64) float64 {
	if initialMargin <= 0 {
		return 0
	}
	return pnl / initialMargin * 100
}
