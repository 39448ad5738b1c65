// Package analysis reads stored bars through the gateway and feeds them to the
// metric engine. It backs the risk and performance views.
package analysis

import (
	"context"
	"fmt"

	"MarketLedger/internal/metrics"
	"MarketLedger/internal/model"
	"MarketLedger/internal/store"
)

// Service computes derived views over stored data. Nothing it returns is persisted.
type Service struct {
	Gateway store.Gateway
	Opts    metrics.Options
}

func NewService(gw store.Gateway, opts metrics.Options) *Service {
	return &Service{Gateway: gw, Opts: opts}
}

// RiskReport is the risk comparison table for a date range, deepest drawdown first.
type RiskReport struct {
	Range   model.DateRange   `json:"range"`
	Metrics []model.MetricSet `json:"metrics"`
	// Skipped maps symbols without enough data to the reason.
	Skipped map[string]string `json:"skipped,omitempty"`
}

// Performance is one symbol's normalized price path.
type Performance struct {
	Symbol                   string                   `json:"symbol"`
	Series                   []model.PerformancePoint `json:"series"`
	TotalReturn              float64                  `json:"total_return"`
	CalendarAnnualizedReturn *float64                 `json:"calendar_annualized_return"`
}

// PerformanceReport compares normalized performance of several symbols.
type PerformanceReport struct {
	Range   model.DateRange   `json:"range"`
	Symbols []Performance     `json:"symbols"`
	Skipped map[string]string `json:"skipped,omitempty"`
}

// Symbols lists every symbol with stored bars.
func (s *Service) Symbols(ctx context.Context) ([]string, error) {
	return s.Gateway.Symbols(ctx)
}

// Bars returns the stored bars for one symbol over r.
func (s *Service) Bars(ctx context.Context, symbol string, r model.DateRange) ([]model.PriceBar, error) {
	return s.Gateway.Bars(ctx, symbol, r)
}

// resolve returns symbols, or every stored symbol when none are given.
func (s *Service) resolve(ctx context.Context, symbols []string) ([]string, error) {
	if len(symbols) > 0 {
		return symbols, nil
	}
	return s.Gateway.Symbols(ctx)
}

func (s *Service) load(ctx context.Context, symbols []string, r model.DateRange) (map[string][]model.PriceBar, error) {
	series := make(map[string][]model.PriceBar, len(symbols))
	for _, sym := range symbols {
		bars, err := s.Gateway.Bars(ctx, sym, r)
		if err != nil {
			return nil, fmt.Errorf("load bars for %s: %w", sym, err)
		}
		series[sym] = bars
	}
	return series, nil
}

// Risk computes the risk comparison table for symbols over r.
func (s *Service) Risk(ctx context.Context, symbols []string, r model.DateRange) (*RiskReport, error) {
	symbols, err := s.resolve(ctx, symbols)
	if err != nil {
		return nil, err
	}
	series, err := s.load(ctx, symbols, r)
	if err != nil {
		return nil, err
	}
	sets, skipped := metrics.ComputeAll(series, s.Opts)
	report := &RiskReport{Range: r, Metrics: sets}
	if len(skipped) > 0 {
		report.Skipped = make(map[string]string, len(skipped))
		for sym, err := range skipped {
			report.Skipped[sym] = err.Error()
		}
	}
	return report, nil
}

// Performance builds normalized series (first close = 1.0) for symbols over r.
func (s *Service) Performance(ctx context.Context, symbols []string, r model.DateRange) (*PerformanceReport, error) {
	symbols, err := s.resolve(ctx, symbols)
	if err != nil {
		return nil, err
	}
	series, err := s.load(ctx, symbols, r)
	if err != nil {
		return nil, err
	}

	report := &PerformanceReport{Range: r, Symbols: make([]Performance, 0, len(symbols))}
	for _, sym := range symbols {
		points, err := metrics.Normalize(series[sym])
		if err != nil {
			if report.Skipped == nil {
				report.Skipped = make(map[string]string)
			}
			report.Skipped[sym] = err.Error()
			continue
		}
		p := Performance{Symbol: sym, Series: points}
		p.TotalReturn = points[len(points)-1].Value - 1
		p.CalendarAnnualizedReturn = metrics.CalendarAnnualized(p.TotalReturn, points[len(points)-1].Date.Sub(points[0].Date).Hours()/24)
		report.Symbols = append(report.Symbols, p)
	}
	return report, nil
}
