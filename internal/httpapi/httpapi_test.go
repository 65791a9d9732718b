package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/crossengine/internal/futures"
	"github.com/atmx/crossengine/internal/httpapi"
	"github.com/atmx/crossengine/internal/ledger"
	"github.com/atmx/crossengine/internal/options"
	"github.com/atmx/crossengine/internal/quote"
	"github.com/atmx/crossengine/internal/snapshot"
	"github.com/atmx/crossengine/internal/spot"
	"github.com/atmx/crossengine/internal/store"
	"github.com/atmx/crossengine/internal/watchlist"
)

// newTestEnv wires every engine over a shared temp data directory and
// mounts the full handler surface, mirroring the composition root.
func newTestEnv(t *testing.T) (chi.Router, *quote.MockVendor) {
	t.Helper()
	dir := t.TempDir()

	l, err := ledger.New(store.NewPortfolioStore(dir))
	if err != nil {
		t.Fatalf("ledger load: %v", err)
	}

	vendor := quote.NewMockVendor()
	provider := quote.NewCachingProvider(vendor)

	spotEngine := spot.New(l, provider)

	futuresEngine, err := futures.New(store.NewFuturesStore(dir), l, provider, nil)
	if err != nil {
		t.Fatalf("futures load: %v", err)
	}
	optionsEngine, err := options.New(store.NewOptionsStore(dir), l, provider, nil)
	if err != nil {
		t.Fatalf("options load: %v", err)
	}
	list, err := watchlist.New(store.NewWatchlistStore(dir))
	if err != nil {
		t.Fatalf("watchlist load: %v", err)
	}

	agg := snapshot.New(l, futuresEngine, optionsEngine, provider)
	api := httpapi.New(l, spotEngine, futuresEngine, optionsEngine, list, agg, nil)

	r := chi.NewRouter()
	api.Routes(r)
	return r, vendor
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestExecuteBuy_CreatesHoldingAndUpdatesSnapshot(t *testing.T) {
	router, vendor := newTestEnv(t)
	vendor.Set("AAPL", 150)

	w := doJSON(t, router, "POST", "/api/v1/spot/buy", map[string]any{
		"ticker":   "AAPL",
		"quantity": 10,
		"type":     "stock",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("buy: got status %d, body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/v1/spot/snapshot", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("snapshot: got status %d", w.Code)
	}
	var snap snapshot.PortfolioSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.SpotHoldings) != 1 {
		t.Fatalf("expected 1 spot holding, got %d", len(snap.SpotHoldings))
	}
	if !approxEqual(snap.Cash, 100_000-1500, 0.01) {
		t.Errorf("got cash=%v, want %v", snap.Cash, 100_000-1500.0)
	}
}

func TestExecuteBuy_InvalidBodyRejected(t *testing.T) {
	router, _ := newTestEnv(t)

	req := httptest.NewRequest("POST", "/api/v1/spot/buy", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", w.Code)
	}
}

func TestExecuteSell_InsufficientHoldingsMapsTo409(t *testing.T) {
	router, vendor := newTestEnv(t)
	vendor.Set("AAPL", 150)

	w := doJSON(t, router, "POST", "/api/v1/spot/sell", map[string]any{
		"ticker":   "AAPL",
		"quantity": 5,
		"type":     "stock",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("got status %d, want 409, body %s", w.Code, w.Body.String())
	}
}

func TestFuturesOpenLongAndGetAccount(t *testing.T) {
	router, vendor := newTestEnv(t)
	vendor.Set("BTCUSDT", 60_000)

	w := doJSON(t, router, "POST", "/api/v1/futures/open-long", map[string]any{
		"ticker":   "BTC",
		"quantity": 1,
		"leverage": 10,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("open-long: got status %d, body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/v1/futures/account", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("account: got status %d", w.Code)
	}
	var acct futures.Account
	if err := json.Unmarshal(w.Body.Bytes(), &acct); err != nil {
		t.Fatalf("decode account: %v", err)
	}
	if acct.TotalMarginUsed <= 0 {
		t.Errorf("expected nonzero margin used, got %v", acct.TotalMarginUsed)
	}
}

func TestOptionsBuyRejectsInvalidStrike(t *testing.T) {
	router, vendor := newTestEnv(t)
	vendor.Set("AAPL", 150)

	w := doJSON(t, router, "POST", "/api/v1/options/buy", map[string]any{
		"underlying": "AAPL",
		"strike":     -10,
		"expiryDate": "2099-12-31",
		"contracts":  1,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400, body %s", w.Code, w.Body.String())
	}
}

func TestSpotTransactions_FlatAndPerTicker(t *testing.T) {
	router, vendor := newTestEnv(t)
	vendor.Set("AAPL", 150)
	vendor.Set("BTCUSDT", 60_000)

	if w := doJSON(t, router, "POST", "/api/v1/spot/buy", map[string]any{"ticker": "AAPL", "quantity": 1, "type": "stock"}); w.Code != http.StatusOK {
		t.Fatalf("buy AAPL: got status %d, body %s", w.Code, w.Body.String())
	}
	if w := doJSON(t, router, "POST", "/api/v1/spot/buy", map[string]any{"ticker": "BTC", "quantity": 1, "type": "crypto"}); w.Code != http.StatusOK {
		t.Fatalf("buy BTC: got status %d, body %s", w.Code, w.Body.String())
	}

	w := doJSON(t, router, "GET", "/api/v1/spot/transactions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("flat transactions: got status %d", w.Code)
	}
	var all []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 account-wide transactions, got %d", len(all))
	}

	w = doJSON(t, router, "GET", "/api/v1/spot/transactions/AAPL", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("per-ticker transactions: got status %d", w.Code)
	}
	var scoped []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &scoped); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(scoped) != 1 {
		t.Fatalf("expected 1 AAPL transaction, got %d", len(scoped))
	}
}

func TestFuturesTransactions(t *testing.T) {
	router, vendor := newTestEnv(t)
	vendor.Set("BTCUSDT", 60_000)

	w := doJSON(t, router, "POST", "/api/v1/futures/open-long", map[string]any{"ticker": "BTC", "quantity": 1, "leverage": 10})
	if w.Code != http.StatusOK {
		t.Fatalf("open-long: got status %d, body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/v1/futures/transactions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("transactions: got status %d", w.Code)
	}
	var txs []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &txs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
}

func TestOptionsQuote_ReturnsPremiumBreakdown(t *testing.T) {
	router, vendor := newTestEnv(t)
	vendor.Set("AAPL", 150)

	w := doJSON(t, router, "GET", "/api/v1/options/quote?underlying=AAPL&strike=150&expiry=2099-12-31", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("quote: got status %d, body %s", w.Code, w.Body.String())
	}
	var q options.Quote
	if err := json.Unmarshal(w.Body.Bytes(), &q); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if q.PremiumPerShare <= 0 {
		t.Errorf("expected positive premium, got %v", q.PremiumPerShare)
	}
	if q.PremiumPerContract != q.PremiumPerShare*100 {
		t.Errorf("got premiumPerContract=%v, want %v", q.PremiumPerContract, q.PremiumPerShare*100)
	}
	if q.ImpliedVol <= 0 {
		t.Errorf("expected positive implied vol, got %v", q.ImpliedVol)
	}
}

func TestOptionsTransactions(t *testing.T) {
	router, vendor := newTestEnv(t)
	vendor.Set("AAPL", 150)

	w := doJSON(t, router, "POST", "/api/v1/options/buy", map[string]any{
		"underlying": "AAPL",
		"strike":     150,
		"expiryDate": "2099-12-31",
		"contracts":  1,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("buy: got status %d, body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/v1/options/transactions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("transactions: got status %d", w.Code)
	}
	var txs []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &txs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
}

func TestWatchlistAddListRemove(t *testing.T) {
	router, _ := newTestEnv(t)

	w := doJSON(t, router, "POST", "/api/v1/watchlist/", map[string]any{
		"ticker": "tsla",
		"thesis": "momentum",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("add: got status %d, body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/v1/watchlist/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: got status %d", w.Code)
	}

	w = doJSON(t, router, "DELETE", "/api/v1/watchlist/TSLA", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("remove: got status %d, body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "DELETE", "/api/v1/watchlist/TSLA", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on missing entry, got %d", w.Code)
	}
}

func approxEqual(a, b, tol float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= tol
}
