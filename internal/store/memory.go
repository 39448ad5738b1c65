package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"MarketLedger/internal/model"
)

// MemoryGateway keeps everything in process memory. It backs dry runs and tests.
type MemoryGateway struct {
	mu       sync.RWMutex
	bars     map[string]map[string]model.PriceBar // symbol -> date key -> bar
	coverage map[string]model.DateSet
	runs     []model.RunReport

	// WriteErr, when set, makes every write fail with ErrWriteFailure.
	WriteErr error
	Now      func() time.Time
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		bars:     make(map[string]map[string]model.PriceBar),
		coverage: make(map[string]model.DateSet),
		Now:      time.Now,
	}
}

func (m *MemoryGateway) writeErr(op, symbol string) error {
	if m.WriteErr == nil {
		return nil
	}
	return fmt.Errorf("%w: %s %s: %v", ErrWriteFailure, op, symbol, m.WriteErr)
}

func (m *MemoryGateway) UpsertBars(_ context.Context, symbol string, bars []model.PriceBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr("upsert", symbol); err != nil {
		return 0, err
	}

	series, ok := m.bars[symbol]
	if !ok {
		series = make(map[string]model.PriceBar)
		m.bars[symbol] = series
	}
	loaded := m.Now().UTC().Truncate(time.Second)
	for _, b := range bars {
		b.Symbol = symbol
		b.TradeDate = model.Day(b.TradeDate)
		b.LoadedAt = loaded
		series[b.Key()] = b
	}
	return len(bars), nil
}

func (m *MemoryGateway) ExistingDates(_ context.Context, symbol string, r model.DateRange) (model.DateSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := model.NewDateSet()
	for _, b := range m.bars[symbol] {
		if r.Contains(b.TradeDate) {
			set.Add(b.TradeDate)
		}
	}
	return set, nil
}

func (m *MemoryGateway) Bars(_ context.Context, symbol string, r model.DateRange) ([]model.PriceBar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.PriceBar
	for _, b := range m.bars[symbol] {
		if r.Contains(b.TradeDate) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TradeDate.Before(out[j].TradeDate) })
	return out, nil
}

func (m *MemoryGateway) Symbols(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	symbols := make([]string, 0, len(m.bars))
	for s, series := range m.bars {
		if len(series) > 0 {
			symbols = append(symbols, s)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (m *MemoryGateway) RecordCoverage(_ context.Context, symbol string, r model.DateRange) error {
	if !r.Valid() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr("coverage", symbol); err != nil {
		return err
	}

	set, ok := m.coverage[symbol]
	if !ok {
		set = model.NewDateSet()
		m.coverage[symbol] = set
	}
	r.Each(set.Add)
	return nil
}

func (m *MemoryGateway) CoveredDates(_ context.Context, symbol string, r model.DateRange) (model.DateSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := model.NewDateSet()
	r.Each(func(day time.Time) {
		if m.coverage[symbol].Has(day) {
			out.Add(day)
		}
	})
	return out, nil
}

func (m *MemoryGateway) RecordRun(_ context.Context, report *model.RunReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr("run", report.RunID); err != nil {
		return err
	}
	cp := *report
	cp.Results = append([]model.SymbolResult(nil), report.Results...)
	m.runs = append(m.runs, cp)
	return nil
}

// Runs returns every recorded run report, oldest first.
func (m *MemoryGateway) Runs() []model.RunReport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.RunReport(nil), m.runs...)
}

func (m *MemoryGateway) Close() error { return nil }
