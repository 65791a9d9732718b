// Package model defines the shared data shapes that flow between the
// ledger, the product engines, and the durable store. All monetary and
// quantity fields are float64 — this engine has no arbitrary-precision
// requirement, and every comparison against a monetary value elsewhere in
// the codebase is tolerance-based rather than exact.
package model

import "time"

// AssetClass tags a holding or position with the product line that
// created it.
type AssetClass string

const (
	AssetUSStockSpot  AssetClass = "us_stock_spot"
	AssetCryptoSpot   AssetClass = "crypto_spot"
	AssetCryptoPerp   AssetClass = "crypto_perp"
	AssetUSStockOption AssetClass = "us_stock_option"
)

// TickerType is the legacy per-ticker asset hint used by the Spot Engine
// to pick a quote source when the caller doesn't say.
type TickerType string

const (
	TickerCrypto TickerType = "crypto"
	TickerStock  TickerType = "stock"
)

// Side is the direction of a futures position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// OptionType distinguishes calls from puts.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// Holding is a spot position in a single ticker, tracked at weighted
// average cost. It is never stored at a zero quantity — sellSpot removes
// the entry instead.
type Holding struct {
	Quantity     float64    `json:"quantity"`
	AveragePrice float64    `json:"averagePrice"`
	AssetClass   AssetClass `json:"assetClass"`
}

// HoldingMeta is the free-text annotation a caller can attach to a
// ticker — no scoring or intelligence feed sits behind it.
type HoldingMeta struct {
	Thesis  string `json:"thesis,omitempty"`
	Context string `json:"context,omitempty"`
}

// Transaction is one append-only entry in the spot transaction history.
type Transaction struct {
	Type      string    `json:"type"` // "buy" | "sell"
	Ticker    string    `json:"ticker"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	DateISO   string    `json:"dateISO"`
	Reasoning string    `json:"reasoning,omitempty"`
	Timestamp time.Time `json:"-"`
}

// DailySnapshot is a single point-in-time mark of total portfolio value,
// recorded once per trading day for day-over-day P/L. History is capped
// at the most recent 90 entries.
type DailySnapshot struct {
	Date       string  `json:"date"` // YYYY-MM-DD, unique
	TotalValue float64 `json:"totalValue"`
}

// Portfolio is the cash-coherent ledger shared by every product line.
// AdjustCash is the only sanctioned channel for mutating Cash; every
// engine routes its cash effects through it rather than touching the
// field directly.
type Portfolio struct {
	Cash               float64                  `json:"cash"`
	Holdings           map[string]*Holding       `json:"holdings"`
	HoldingMeta        map[string]HoldingMeta    `json:"holdingMeta"`
	TransactionHistory []Transaction             `json:"transactionHistory"`
	TickerTypes        map[string]TickerType     `json:"tickerTypes"`
	DailySnapshots     []DailySnapshot           `json:"dailySnapshots"`
}

// FuturesTransaction is one append-only entry in the futures transaction
// log.
type FuturesTransaction struct {
	Type     string  `json:"type"` // open_long|open_short|close_long|close_short|liquidation
	Ticker   string  `json:"ticker"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Leverage float64 `json:"leverage,omitempty"`
	Pnl      float64 `json:"pnl,omitempty"`
	DateISO  string  `json:"dateISO"`
}

// FuturesPosition is one isolated-margin leveraged futures position.
// markPrice/maintenanceMargin/unrealizedPnl/roe are derived fields,
// refreshed by Engine.GetPositions rather than mutated directly.
type FuturesPosition struct {
	ID                    string     `json:"id"`
	Ticker                string     `json:"ticker"`
	AssetClass            AssetClass `json:"assetClass"`
	Side                  Side       `json:"side"`
	Quantity              float64    `json:"quantity"`
	EntryPrice            float64    `json:"entryPrice"`
	MarkPrice             float64    `json:"markPrice"`
	Leverage              float64    `json:"leverage"`
	MarginMode            string     `json:"marginMode"` // always "isolated"
	InitialMargin         float64    `json:"initialMargin"`
	MaintenanceMargin     float64    `json:"maintenanceMargin"`
	MarginBalance         float64    `json:"marginBalance"`
	LiquidationPrice      float64    `json:"liquidationPrice"`
	MaintenanceMarginRate float64    `json:"maintenanceMarginRate"`
	UnrealizedPnl         float64    `json:"unrealizedPnl"`
	Roe                   float64    `json:"roe"`
	RealizedPnl           float64    `json:"realizedPnl"`
	OpenedAt              time.Time  `json:"openedAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// FuturesAccount is the container persisted to futures-positions.json.
type FuturesAccount struct {
	Positions        map[string]*FuturesPosition `json:"positions"`
	LeverageSettings map[string]int              `json:"leverageSettings"`
	Transactions     []FuturesTransaction        `json:"transactions"`
}

// OptionContract identifies one listed option series. The settlement
// instant is 16:00 America/New_York on ExpiryDate.
type OptionContract struct {
	Underlying string     `json:"underlying"`
	Type       OptionType `json:"type"`
	StrikePrice float64   `json:"strikePrice"`
	ExpiryDate string     `json:"expiryDate"` // YYYY-MM-DD
	Multiplier int        `json:"multiplier"` // always 100
	ImpliedVol float64    `json:"impliedVol"`
}

// OptionsTransaction is one append-only entry in the options transaction
// log.
type OptionsTransaction struct {
	Type            string  `json:"type"` // buy_call|buy_put|sell_call|sell_put|expire_itm|expire_otm
	Underlying      string  `json:"underlying"`
	StrikePrice     float64 `json:"strikePrice"`
	ExpiryDate      string  `json:"expiryDate"`
	Contracts       float64 `json:"contracts"`
	PremiumPerShare float64 `json:"premiumPerShare"`
	TotalAmount     float64 `json:"totalAmount"`
	Pnl             float64 `json:"pnl,omitempty"`
	DateISO         string  `json:"dateISO"`
}

// OptionPosition is one long option position. There is no short-option /
// premium-collection path in this engine.
type OptionPosition struct {
	ID                   string         `json:"id"`
	Contract             OptionContract `json:"contract"`
	AssetClass           AssetClass     `json:"assetClass"`
	Contracts            float64        `json:"contracts"`
	PremiumPaid          float64        `json:"premiumPaid"`
	PremiumPerShare      float64        `json:"premiumPerShare"`
	CurrentPremium       float64        `json:"currentPremium"`
	CurrentValue         float64        `json:"currentValue"`
	UnrealizedPnl        float64        `json:"unrealizedPnl"`
	UnrealizedPnlPercent float64        `json:"unrealizedPnlPercent"`
	DaysToExpiry         float64        `json:"daysToExpiry"`
	OpenedAtISO          string         `json:"openedAtISO"`
	ExpiryDate           string         `json:"expiryDate"`
}

// OptionsAccount is the container persisted to options-positions.json.
type OptionsAccount struct {
	Positions    map[string]*OptionPosition `json:"positions"`
	Transactions []OptionsTransaction       `json:"transactions"`
}

// WatchlistEntry is one ticker a user is tracking, with an optional
// thesis note. There is no scoring or intelligence feed behind it.
type WatchlistEntry struct {
	Ticker  string    `json:"ticker"`
	Thesis  string    `json:"thesis,omitempty"`
	AddedAt time.Time `json:"addedAt"`
}

// Watchlist is the container persisted to watchlist.json.
type Watchlist struct {
	Entries map[string]*WatchlistEntry `json:"entries"`
}
