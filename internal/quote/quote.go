// Package quote implements the QuoteProvider capability: fetch a spot
// price for a normalized symbol, with a short-TTL process-local cache in
// front of whichever concrete vendor is wired in.
package quote

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atmx/crossengine/internal/engineerr"
	"github.com/atmx/crossengine/internal/metrics"
)

// Quote is one priced symbol.
type Quote struct {
	Symbol string
	Price  float64
}

// Provider is the capability every concrete vendor and the cache
// implement.
type Provider interface {
	FetchQuote(ctx context.Context, symbol string) (Quote, error)
	FetchQuotes(ctx context.Context, symbols []string) ([]Quote, error)
	ClearCache()
}

// CacheTTL is the process-local cache lifetime for a fetched quote.
const CacheTTL = 30 * time.Second

type cacheEntry struct {
	quote   Quote
	fetched time.Time
}

// CachingProvider wraps a concrete vendor with a 30s TTL cache keyed by
// normalized (upper-cased) symbol.
type CachingProvider struct {
	vendor     Vendor
	vendorName string

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// Vendor is the minimal single-symbol fetch a concrete quote source must
// implement; CachingProvider supplies caching and batching on top.
type Vendor interface {
	Fetch(ctx context.Context, symbol string) (float64, error)
}

// NewCachingProvider wraps vendor with the standard 30s TTL cache. The
// vendor's dynamic type name is used as the metrics label.
func NewCachingProvider(vendor Vendor) *CachingProvider {
	return &CachingProvider{
		vendor:     vendor,
		vendorName: fmt.Sprintf("%T", vendor),
		cache:      map[string]cacheEntry{},
	}
}

// FetchQuote returns the cached price if fresh, otherwise fetches and
// caches. A vendor failure is surfaced as engineerr.ErrNetwork.
func (p *CachingProvider) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))

	if q, ok := p.cached(sym); ok {
		metrics.QuoteFetchLatency.WithLabelValues(p.vendorName, "cache_hit").Observe(0)
		return q, nil
	}

	start := time.Now()
	price, err := p.vendor.Fetch(ctx, sym)
	if err != nil {
		metrics.QuoteFetchLatency.WithLabelValues(p.vendorName, "error").Observe(time.Since(start).Seconds())
		return Quote{}, fmt.Errorf("%w: %s: %v", engineerr.ErrNetwork, sym, err)
	}
	metrics.QuoteFetchLatency.WithLabelValues(p.vendorName, "ok").Observe(time.Since(start).Seconds())

	q := Quote{Symbol: sym, Price: price}
	p.store(sym, q)
	return q, nil
}

// FetchQuotes fetches a batch of symbols, isolating per-symbol failures:
// a symbol whose fetch fails is returned with Price=0 rather than
// failing the whole batch.
func (p *CachingProvider) FetchQuotes(ctx context.Context, symbols []string) ([]Quote, error) {
	out := make([]Quote, len(symbols))
	for i, symbol := range symbols {
		q, err := p.FetchQuote(ctx, symbol)
		if err != nil {
			out[i] = Quote{Symbol: strings.ToUpper(strings.TrimSpace(symbol)), Price: 0}
			continue
		}
		out[i] = q
	}
	return out, nil
}

// ClearCache drops every cached entry.
func (p *CachingProvider) ClearCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = map[string]cacheEntry{}
}

func (p *CachingProvider) cached(symbol string) (Quote, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.cache[symbol]
	if !ok || time.Since(entry.fetched) > CacheTTL {
		return Quote{}, false
	}
	return entry.quote, true
}

func (p *CachingProvider) store(symbol string, q Quote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache[symbol] = cacheEntry{quote: q, fetched: time.Now()}
}
