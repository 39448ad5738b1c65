package collector

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"MarketLedger/internal/model"
)

// MockSource returns controllable fixed data for development and testing.
type MockSource struct {
	SourceName string
	Bars       map[string][]model.PriceBar
	// Errs forces an error for a symbol on every call.
	Errs map[string]error
	// FailFirst makes the first N calls for a symbol return ErrSourceUnavailable.
	FailFirst map[string]int

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockSource) Name() string {
	if m.SourceName == "" {
		return "mock"
	}
	return m.SourceName
}

// Calls returns how many times FetchRange was invoked for symbol.
func (m *MockSource) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

// TotalCalls returns the number of FetchRange invocations across all symbols.
func (m *MockSource) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *MockSource) FetchRange(_ context.Context, symbol string, start, end time.Time) ([]model.PriceBar, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[symbol]++
	n := m.calls[symbol]
	m.mu.Unlock()

	if err, ok := m.Errs[symbol]; ok {
		return nil, err
	}
	if n <= m.FailFirst[symbol] {
		return nil, ErrSourceUnavailable
	}
	all := append([]model.PriceBar(nil), m.Bars[symbol]...)
	return clampAndSort(all, start, end), nil
}

// GenerateMockBars builds count consecutive daily bars starting at start, drifting from basePrice.
func GenerateMockBars(symbol string, basePrice float64, start time.Time, count int) []model.PriceBar {
	bars := make([]model.PriceBar, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = model.PriceBar{
			Symbol:    symbol,
			TradeDate: model.Day(start).AddDate(0, 0, i),
			Open:      decimal.NewFromFloat(p * 0.999).Round(4),
			High:      decimal.NewFromFloat(p * 1.005).Round(4),
			Low:       decimal.NewFromFloat(p * 0.995).Round(4),
			Close:     decimal.NewFromFloat(p).Round(4),
			Volume:    1000000,
		}
	}
	return bars
}
