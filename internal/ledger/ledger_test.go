package ledger

import (
	"path/filepath"
	"testing"

	"github.com/atmx/crossengine/internal/store"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	fileStore := store.NewPortfolioStore(t.TempDir())
	l, err := New(fileStore)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return l
}

func TestFirstRun_DefaultsToHundredThousand(t *testing.T) {
	l := newTestLedger(t)
	v := l.GetPortfolioValue(nil)
	if v.Cash != 100_000 {
		t.Errorf("got cash=%v, want 100000", v.Cash)
	}
}

func TestBuySpot_WeightedAverage(t *testing.T) {
	l := newTestLedger(t)

	if _, err := l.BuySpot("AAPL", 10, 150, "", "stock"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := l.BuySpot("AAPL", 10, 160, "", "stock"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := l.Snapshot()
	h := snap.Holdings["AAPL"]
	if h == nil {
		t.Fatal("expected AAPL holding")
	}
	if h.Quantity != 20 {
		t.Errorf("got quantity=%v, want 20", h.Quantity)
	}
	if h.AveragePrice != 155 {
		t.Errorf("got avg=%v, want 155", h.AveragePrice)
	}
	if snap.Cash != 100_000-3_100 {
		t.Errorf("got cash=%v, want %v", snap.Cash, 100_000-3_100)
	}
}

func TestBuySpot_InsufficientFunds(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.BuySpot("AAPL", 1_000_000, 150, "", "stock")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSellSpot_InsufficientHoldings(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.SellSpot("AAPL", 10, 150, "")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSellSpot_RemovesZeroHolding(t *testing.T) {
	l := newTestLedger(t)
	l.BuySpot("AAPL", 10, 150, "", "stock")
	if _, err := l.SellSpot("AAPL", 10, 160, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := l.Snapshot()
	if _, ok := snap.Holdings["AAPL"]; ok {
		t.Error("expected holding to be removed at zero quantity")
	}
}

func TestAdjustCash_ClampsAtZero(t *testing.T) {
	l := newTestLedger(t)
	if err := l.AdjustCash(-1_000_000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v := l.GetPortfolioValue(nil); v.Cash != 0 {
		t.Errorf("got cash=%v, want 0", v.Cash)
	}
}

func TestRecordDailySnapshot_UpdatesSameDay(t *testing.T) {
	l := newTestLedger(t)
	if err := l.RecordDailySnapshot(100_000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.RecordDailySnapshot(105_000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := l.Snapshot()
	if len(snap.DailySnapshots) != 1 {
		t.Fatalf("expected 1 snapshot entry, got %d", len(snap.DailySnapshots))
	}
	if snap.DailySnapshots[0].TotalValue != 105_000 {
		t.Errorf("got %v, want 105000", snap.DailySnapshots[0].TotalValue)
	}
}

func TestTransactions_ReturnsAccountWideHistoryCappedAtLimit(t *testing.T) {
	l := newTestLedger(t)

	if _, err := l.BuySpot("AAPL", 10, 150, "", "stock"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := l.BuySpot("BTC", 1, 60_000, "", "crypto"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := l.SellSpot("AAPL", 10, 160, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all := l.Transactions(50)
	if len(all) != 3 {
		t.Fatalf("expected 3 transactions across tickers, got %d", len(all))
	}
	if all[0].Ticker != "AAPL" || all[0].Type != "sell" {
		t.Errorf("expected most recent transaction first, got %+v", all[0])
	}

	capped := l.Transactions(1)
	if len(capped) != 1 || capped[0] != all[0] {
		t.Errorf("expected Transactions(1) to be the single most recent entry")
	}
}

func TestPersistence_SurvivesReload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	fileStore := store.NewPortfolioStore(dir)
	l1, err := New(fileStore)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l1.BuySpot("AAPL", 10, 150, "", "stock")

	fileStore2 := store.NewPortfolioStore(dir)
	l2, err := New(fileStore2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := l2.Snapshot()
	if snap.Holdings["AAPL"] == nil {
		t.Fatal("expected AAPL to survive reload")
	}
}
