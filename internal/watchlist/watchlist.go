// Package watchlist is a thin, mutex-guarded CRUD shell over the
// watchlist.json durable store. There is no scoring or intelligence feed
// behind an entry — just a ticker and an optional thesis note.
package watchlist

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atmx/crossengine/internal/engineerr"
	"github.com/atmx/crossengine/internal/model"
	"github.com/atmx/crossengine/internal/store"
)

// List is the Watchlist component.
type List struct {
	mu    sync.Mutex
	store *store.FileStore[*model.Watchlist]
	data  *model.Watchlist
}

// New loads (or first-run-defaults) the watchlist from fileStore.
func New(fileStore *store.FileStore[*model.Watchlist]) (*List, error) {
	data, err := fileStore.Load()
	if err != nil {
		return nil, err
	}
	return &List{store: fileStore, data: data}, nil
}

// Add inserts or updates a watchlist entry for ticker.
func (l *List) Add(ticker, thesis string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return fmt.Errorf("%w: ticker must not be empty", engineerr.ErrInvalidParam)
	}

	entry, ok := l.data.Entries[ticker]
	if !ok {
		entry = &model.WatchlistEntry{Ticker: ticker, AddedAt: time.Now()}
	}
	if thesis != "" {
		entry.Thesis = thesis
	}
	l.data.Entries[ticker] = entry
	return l.save()
}

// Remove deletes the entry for ticker, if present.
func (l *List) Remove(ticker string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if _, ok := l.data.Entries[ticker]; !ok {
		return fmt.Errorf("%w: %s not on watchlist", engineerr.ErrNotFound, ticker)
	}
	delete(l.data.Entries, ticker)
	return l.save()
}

// List returns every watchlist entry, in no particular order.
func (l *List) List() []model.WatchlistEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.WatchlistEntry, 0, len(l.data.Entries))
	for _, entry := range l.data.Entries {
		out = append(out, *entry)
	}
	return out
}

func (l *List) save() error {
	if err := l.store.Save(l.data); err != nil {
		return fmt.Errorf("%w: %v", engineerr.ErrPersistence, err)
	}
	return nil
}
