package model

import "time"

// MetricSet holds risk/performance statistics derived from a bar series.
// It is recomputed on demand and never stored as authoritative state.
type MetricSet struct {
	Symbol       string    `json:"symbol"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Observations int       `json:"observations"`

	AnnualizedVolatility float64 `json:"annualized_volatility"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	// AnnualizedReturn is nil when compounding overflows, e.g. a large move over few bars.
	AnnualizedReturn *float64 `json:"annualized_return"`
	// SharpeRatio is nil when volatility is zero or the annualized return is undefined.
	SharpeRatio      *float64 `json:"sharpe_ratio"`
	CumulativeReturn float64  `json:"cumulative_return"`
	ValueAtRisk95    float64  `json:"value_at_risk_95"`
	WinningDaysPct   float64  `json:"winning_days_pct"`

	WinningDays              int      `json:"winning_days"`
	LosingDays               int      `json:"losing_days"`
	CalendarAnnualizedReturn *float64 `json:"calendar_annualized_return"`
}

// HasSharpe reports whether the Sharpe ratio is defined.
func (m MetricSet) HasSharpe() bool {
	return m.SharpeRatio != nil
}

// PerformancePoint is one point of a normalized performance series (start = 1.0).
type PerformancePoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}
