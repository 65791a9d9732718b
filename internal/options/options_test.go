package options

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/atmx/crossengine/internal/quote"
	"github.com/atmx/crossengine/internal/store"
)

type fakeLedger struct {
	cash float64
}

func (f *fakeLedger) AdjustCash(delta float64) error {
	f.cash += delta
	if f.cash < 0 {
		f.cash = 0
	}
	return nil
}

func (f *fakeLedger) Cash() float64 { return f.cash }

func newTestEngine(t *testing.T) (*Engine, *fakeLedger, *quote.MockVendor) {
	t.Helper()
	fileStore := store.NewOptionsStore(t.TempDir())
	ledger := &fakeLedger{cash: 100_000}
	vendor := quote.NewMockVendor()
	provider := quote.NewCachingProvider(vendor)
	engine, err := New(fileStore, ledger, provider, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return engine, ledger, vendor
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func farExpiry() string {
	return time.Now().AddDate(0, 0, 30).Format("2006-01-02")
}

func pastExpiry() string {
	return time.Now().AddDate(0, 0, -1).Format("2006-01-02")
}

func TestBuyOption_DebitsPremium(t *testing.T) {
	engine, ledger, vendor := newTestEngine(t)
	vendor.Set("AAPL", 150)

	pos, err := engine.BuyOption(context.Background(), "AAPL", 150, farExpiry(), false, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.PremiumPaid <= 0 {
		t.Errorf("expected positive premium paid, got %v", pos.PremiumPaid)
	}
	if !approxEqual(ledger.Cash(), 100_000-pos.PremiumPaid, 0.01) {
		t.Errorf("got cash=%v, want %v", ledger.Cash(), 100_000-pos.PremiumPaid)
	}
}

func TestBuyOption_RejectsPastExpiry(t *testing.T) {
	engine, _, vendor := newTestEngine(t)
	vendor.Set("AAPL", 150)

	if _, err := engine.BuyOption(context.Background(), "AAPL", 150, pastExpiry(), false, 1); err == nil {
		t.Error("expected error for past expiry")
	}
}

func TestBuyOption_InsufficientFunds(t *testing.T) {
	engine, ledger, vendor := newTestEngine(t)
	vendor.Set("AAPL", 150)
	ledger.cash = 0.01

	if _, err := engine.BuyOption(context.Background(), "AAPL", 150, farExpiry(), false, 1); err == nil {
		t.Error("expected insufficient funds error")
	}
}

func TestSellOption_CreditsProceeds(t *testing.T) {
	engine, ledger, vendor := newTestEngine(t)
	vendor.Set("AAPL", 150)

	pos, err := engine.BuyOption(context.Background(), "AAPL", 150, farExpiry(), false, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cashAfterBuy := ledger.Cash()

	vendor.Set("AAPL", 160)
	engine.quotes.ClearCache() // drop the cached 150 quote so the sell prices at 160
	pnl, err := engine.SellOption(context.Background(), pos.ID, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ledger.Cash() <= cashAfterBuy {
		t.Errorf("expected cash to increase after sell, got %v (was %v)", ledger.Cash(), cashAfterBuy)
	}
	if pnl <= 0 {
		t.Errorf("expected positive pnl from a price increase, got %v", pnl)
	}
	if got := len(engine.Positions()); got != 0 {
		t.Errorf("expected position closed, got %d remaining", got)
	}
}

// TestSettleExpiredOptions_ITMPaysIntrinsic mirrors the cross-product
// options ITM settlement scenario: a deep ITM call settles for its
// intrinsic value times contract multiplier times contracts.
func TestSettleExpiredOptions_ITMPaysIntrinsic(t *testing.T) {
	engine, ledger, vendor := newTestEngine(t)
	vendor.Set("NVDA", 100)

	expiry := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	pos, err := engine.BuyOption(context.Background(), "NVDA", 80, expiry, false, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cashAfterBuy := ledger.Cash()

	// Force the position into the past so the settler treats it as expired.
	engine.mu.Lock()
	engine.data.Positions[pos.ID].ExpiryDate = pastExpiry()
	engine.mu.Unlock()

	vendor.Set("NVDA", 120)
	engine.quotes.ClearCache() // drop the cached 100 quote so settlement prices at 120
	results, err := engine.SettleExpiredOptions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 settlement, got %d", len(results))
	}
	r := results[0]
	if !r.ExpiredITM {
		t.Error("expected ITM settlement")
	}
	wantProceeds := 40.0 * ContractMultiplier // (120-80) * 100
	if !approxEqual(r.Proceeds, wantProceeds, 0.01) {
		t.Errorf("got proceeds=%v, want %v", r.Proceeds, wantProceeds)
	}
	if !approxEqual(ledger.Cash(), cashAfterBuy+wantProceeds, 0.01) {
		t.Errorf("got cash=%v, want %v", ledger.Cash(), cashAfterBuy+wantProceeds)
	}
	if got := len(engine.Positions()); got != 0 {
		t.Errorf("expected position removed after settlement, got %d remaining", got)
	}
}

func TestSettleExpiredOptions_OTMExpiresWorthless(t *testing.T) {
	engine, ledger, vendor := newTestEngine(t)
	vendor.Set("NVDA", 100)

	expiry := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	pos, err := engine.BuyOption(context.Background(), "NVDA", 150, expiry, false, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cashAfterBuy := ledger.Cash()

	engine.mu.Lock()
	engine.data.Positions[pos.ID].ExpiryDate = pastExpiry()
	engine.mu.Unlock()

	vendor.Set("NVDA", 90)
	results, err := engine.SettleExpiredOptions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 settlement, got %d", len(results))
	}
	if results[0].ExpiredITM {
		t.Error("expected OTM settlement")
	}
	if !approxEqual(results[0].Proceeds, 0, 0.01) {
		t.Errorf("got proceeds=%v, want 0", results[0].Proceeds)
	}
	if !approxEqual(ledger.Cash(), cashAfterBuy, 0.01) {
		t.Errorf("cash should be unchanged on worthless expiry, got %v want %v", ledger.Cash(), cashAfterBuy)
	}
}

func TestGetQuote_PricesWithoutOpeningPosition(t *testing.T) {
	engine, ledger, vendor := newTestEngine(t)
	vendor.Set("AAPL", 150)
	cashBefore := ledger.Cash()

	q, err := engine.GetQuote(context.Background(), "AAPL", 150, farExpiry(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.PremiumPerShare <= 0 {
		t.Errorf("expected positive premium per share, got %v", q.PremiumPerShare)
	}
	if !approxEqual(q.PremiumPerContract, q.PremiumPerShare*ContractMultiplier, 0.001) {
		t.Errorf("got premiumPerContract=%v, want %v", q.PremiumPerContract, q.PremiumPerShare*ContractMultiplier)
	}
	if q.DaysToExpiry <= 0 {
		t.Errorf("expected positive days to expiry, got %v", q.DaysToExpiry)
	}
	if q.ImpliedVol <= 0 {
		t.Errorf("expected positive implied vol, got %v", q.ImpliedVol)
	}
	if len(engine.Positions()) != 0 {
		t.Error("GetQuote must not open a position")
	}
	if ledger.Cash() != cashBefore {
		t.Errorf("GetQuote must not touch cash, got %v want %v", ledger.Cash(), cashBefore)
	}
}

func TestGetQuote_DeepITMHasIntrinsicFloor(t *testing.T) {
	engine, _, vendor := newTestEngine(t)
	vendor.Set("NVDA", 200)

	q, err := engine.GetQuote(context.Background(), "NVDA", 100, farExpiry(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approxEqual(q.IntrinsicValue, 100, 0.01) {
		t.Errorf("got intrinsicValue=%v, want 100", q.IntrinsicValue)
	}
	if q.PremiumPerShare < q.IntrinsicValue {
		t.Errorf("premium %v must be at least intrinsic %v", q.PremiumPerShare, q.IntrinsicValue)
	}
}

func TestGetQuote_RejectsInvalidStrike(t *testing.T) {
	engine, _, vendor := newTestEngine(t)
	vendor.Set("AAPL", 150)

	if _, err := engine.GetQuote(context.Background(), "AAPL", 0, farExpiry(), false); err == nil {
		t.Error("expected error for non-positive strike")
	}
}

func TestGetTransactions_ReturnsReverseChronologicalCappedAtLimit(t *testing.T) {
	engine, _, vendor := newTestEngine(t)
	vendor.Set("AAPL", 150)

	for i := 0; i < 3; i++ {
		if _, err := engine.BuyOption(context.Background(), "AAPL", 150, farExpiry(), false, 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	txs := engine.GetTransactions(2)
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	all := engine.GetTransactions(50)
	if len(all) != 3 {
		t.Fatalf("expected 3 total transactions, got %d", len(all))
	}
	if txs[0] != all[0] || txs[1] != all[1] {
		t.Errorf("expected GetTransactions(2) to be the most recent prefix of GetTransactions(50)")
	}
}

func TestSettleExpiredOptions_NoExpiredPositionsIsNoop(t *testing.T) {
	engine, _, vendor := newTestEngine(t)
	vendor.Set("AAPL", 150)

	if _, err := engine.BuyOption(context.Background(), "AAPL", 150, farExpiry(), false, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := engine.SettleExpiredOptions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no settlements, got %d", len(results))
	}
}
