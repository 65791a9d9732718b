package store

import (
	"path/filepath"

	"github.com/atmx/crossengine/internal/model"
)

// PortfolioFileName, FuturesFileName, OptionsFileName, and
// WatchlistFileName are the four files a data directory holds.
const (
	PortfolioFileName = "portfolio.json"
	FuturesFileName   = "futures-positions.json"
	OptionsFileName   = "options-positions.json"
	WatchlistFileName = "watchlist.json"
)

// NewPortfolioStore builds the portfolio.json store under dataDir. First
// run defaults to cash=100,000 with empty holdings and history.
func NewPortfolioStore(dataDir string) *FileStore[*model.Portfolio] {
	return NewFileStore(filepath.Join(dataDir, PortfolioFileName), func() *model.Portfolio {
		return &model.Portfolio{
			Cash:               100_000,
			Holdings:           map[string]*model.Holding{},
			HoldingMeta:        map[string]model.HoldingMeta{},
			TransactionHistory: []model.Transaction{},
			TickerTypes:        map[string]model.TickerType{},
			DailySnapshots:     []model.DailySnapshot{},
		}
	})
}

// NewFuturesStore builds the futures-positions.json store under dataDir.
func NewFuturesStore(dataDir string) *FileStore[*model.FuturesAccount] {
	return NewFileStore(filepath.Join(dataDir, FuturesFileName), func() *model.FuturesAccount {
		return &model.FuturesAccount{
			Positions:        map[string]*model.FuturesPosition{},
			LeverageSettings: map[string]int{},
			Transactions:     []model.FuturesTransaction{},
		}
	})
}

// NewOptionsStore builds the options-positions.json store under dataDir.
func NewOptionsStore(dataDir string) *FileStore[*model.OptionsAccount] {
	return NewFileStore(filepath.Join(dataDir, OptionsFileName), func() *model.OptionsAccount {
		return &model.OptionsAccount{
			Positions:    map[string]*model.OptionPosition{},
			Transactions: []model.OptionsTransaction{},
		}
	})
}

// NewWatchlistStore builds the watchlist.json store under dataDir.
func NewWatchlistStore(dataDir string) *FileStore[*model.Watchlist] {
	return NewFileStore(filepath.Join(dataDir, WatchlistFileName), func() *model.Watchlist {
		return &model.Watchlist{Entries: map[string]*model.WatchlistEntry{}}
	})
}
