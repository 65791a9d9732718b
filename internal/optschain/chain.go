package optschain

import (
	"math"
	"time"

	"github.com/atmx/crossengine/internal/pricing"
)

// StrikeRow is one strike's pricing for a single expiry.
type StrikeRow struct {
	Strike                float64
	CallPremium           float64
	PutPremium            float64
	CallPremiumPerContract float64
	PutPremiumPerContract  float64
}

// ExpiryChain is the strike grid priced for one expiry.
type ExpiryChain struct {
	Expiry time.Time
	Rows   []StrikeRow
}

// BuildChain prices the full expiry×strike grid for ticker at the given
// underlying price, as of now.
func BuildChain(ticker string, price float64, now time.Time) []ExpiryChain {
	iv := pricing.ImpliedVol(ticker)
	strikes := Strikes(price)

	chains := make([]ExpiryChain, 0, len(Expiries(now)))
	for _, expiry := range Expiries(now) {
		dte := expiry.Sub(truncateToDay(now)).Hours() / 24
		if dte < 0 {
			dte = 0
		}

		rows := make([]StrikeRow, 0, len(strikes))
		for _, strike := range strikes {
			callPremium := round2(pricing.Premium(price, strike, iv, dte, false))
			putPremium := round2(pricing.Premium(price, strike, iv, dte, true))
			rows = append(rows, StrikeRow{
				Strike:                 strike,
				CallPremium:            callPremium,
				PutPremium:             putPremium,
				CallPremiumPerContract: perContract(callPremium),
				PutPremiumPerContract:  perContract(putPremium),
			})
		}
		chains = append(chains, ExpiryChain{Expiry: expiry, Rows: rows})
	}
	return chains
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// perContract scales a per-share premium to its 100-share contract value.
func perContract(premiumPerShare float64) float64 {
	return math.Round(premiumPerShare*100*100) / 100
}
