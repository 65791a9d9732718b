package quote

import (
	"context"
	"strings"
	"sync"
)

// MockVendor returns deterministic prices set by tests, with no network
// access — the standard double for exercising engines and monitors
// without a live quote vendor.
type MockVendor struct {
	mu     sync.Mutex
	prices map[string]float64
	errs   map[string]error
}

// NewMockVendor builds an empty mock; Set/SetError configure behavior
// per symbol.
func NewMockVendor() *MockVendor {
	return &MockVendor{prices: map[string]float64{}, errs: map[string]error{}}
}

// Set fixes the price returned for symbol (normalized upper-case).
func (m *MockVendor) Set(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[strings.ToUpper(symbol)] = price
}

// SetError makes Fetch fail for symbol until cleared.
func (m *MockVendor) SetError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[strings.ToUpper(symbol)] = err
}

// Fetch implements Vendor.
func (m *MockVendor) Fetch(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sym := strings.ToUpper(symbol)
	if err, ok := m.errs[sym]; ok {
		return 0, err
	}
	return m.prices[sym], nil
}
