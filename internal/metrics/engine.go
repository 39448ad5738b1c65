// Package metrics derives risk and performance statistics from daily price bars.
// Every function is pure: results depend only on the input series.
package metrics

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"MarketLedger/internal/model"
)

const (
	DefaultRiskFreeRate = 0.02
	DefaultTradingDays  = 252
	calendarDays        = 365
	varConfidenceTail   = 0.05
	// return dispersion at or below this, scaled by the mean absolute return,
	// is rounding noise from identical returns
	volatilityEpsilon = 1e-12
)

// Options tunes the annualization constants.
type Options struct {
	RiskFreeRate float64
	TradingDays  int
}

// DefaultOptions uses a 2% risk-free rate and 252 trading days.
func DefaultOptions() Options {
	return Options{RiskFreeRate: DefaultRiskFreeRate, TradingDays: DefaultTradingDays}
}

// Compute derives a MetricSet from an ascending series of bars for one symbol.
func Compute(symbol string, bars []model.PriceBar, opts Options) (model.MetricSet, error) {
	if opts.TradingDays <= 0 {
		opts.TradingDays = DefaultTradingDays
	}
	returns, err := DailyReturns(bars)
	if err != nil {
		return model.MetricSet{}, err
	}
	closes, _ := extractCloses(bars) // validated by DailyReturns

	first, last := bars[0], bars[len(bars)-1]
	m := model.MetricSet{
		Symbol:       symbol,
		Start:        first.TradeDate,
		End:          last.TradeDate,
		Observations: len(bars),
	}

	m.AnnualizedVolatility = dispersion(returns) * math.Sqrt(float64(opts.TradingDays))
	m.MaxDrawdown = MaxDrawdown(closes)
	m.CumulativeReturn = closes[len(closes)-1]/closes[0] - 1
	m.AnnualizedReturn = finite(math.Pow(1+m.CumulativeReturn, float64(opts.TradingDays)/float64(len(returns))) - 1)

	if m.AnnualizedReturn != nil && m.AnnualizedVolatility > 0 {
		m.SharpeRatio = finite((*m.AnnualizedReturn - opts.RiskFreeRate) / m.AnnualizedVolatility)
	}

	// By convention VaR is reported as a loss: never above zero.
	m.ValueAtRisk95 = math.Min(Quantile(returns, varConfidenceTail), 0)

	for _, r := range returns {
		switch {
		case r > 0:
			m.WinningDays++
		case r < 0:
			m.LosingDays++
		}
	}
	m.WinningDaysPct = float64(m.WinningDays) / float64(len(returns))

	m.CalendarAnnualizedReturn = CalendarAnnualized(m.CumulativeReturn, last.TradeDate.Sub(first.TradeDate).Hours()/24)
	return m, nil
}

// CalendarAnnualized compounds a cumulative return over a 365-day year. It is 0
// for a zero-length span and nil when the result is not finite.
func CalendarAnnualized(cumulative, days float64) *float64 {
	if days <= 0 {
		zero := 0.0
		return &zero
	}
	return finite(math.Pow(1+cumulative, calendarDays/days) - 1)
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// ComputeAll computes metrics for every series, skipping those that are too short, and
// orders the result by max drawdown, deepest first.
func ComputeAll(series map[string][]model.PriceBar, opts Options) ([]model.MetricSet, map[string]error) {
	out := make([]model.MetricSet, 0, len(series))
	skipped := make(map[string]error)
	for symbol, bars := range series {
		m, err := Compute(symbol, bars, opts)
		if err != nil {
			skipped[symbol] = err
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MaxDrawdown == out[j].MaxDrawdown {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].MaxDrawdown < out[j].MaxDrawdown
	})
	return out, skipped
}

// dispersion is the sample standard deviation of returns, snapped to 0 when the
// returns only differ by rounding.
func dispersion(returns []float64) float64 {
	sd := sampleStdDev(returns)
	var meanAbs float64
	for _, r := range returns {
		meanAbs += math.Abs(r)
	}
	meanAbs /= float64(len(returns))
	if sd <= volatilityEpsilon*math.Max(1, meanAbs) {
		return 0
	}
	return sd
}

// sampleStdDev is the n-1 standard deviation; a single observation has no dispersion.
func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sd, err := stats.StandardDeviationSample(values)
	if err != nil || math.IsNaN(sd) {
		return 0
	}
	return sd
}
