package metrics

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"MarketLedger/internal/model"
)

var (
	// ErrInsufficientData is returned when a series is too short for the requested metric.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrUnsorted is returned when bars are not strictly ascending by trade date.
	ErrUnsorted = errors.New("bars not sorted ascending by date")
)

// extractCloses validates the series and returns its closes as float64.
func extractCloses(bars []model.PriceBar) ([]float64, error) {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		if i > 0 && !b.TradeDate.After(bars[i-1].TradeDate) {
			return nil, fmt.Errorf("%w: %s after %s", ErrUnsorted, b.Key(), bars[i-1].Key())
		}
		c := b.Close.InexactFloat64()
		if c <= 0 {
			return nil, fmt.Errorf("non-positive close %v on %s", b.Close, b.Key())
		}
		closes[i] = c
	}
	return closes, nil
}

// DailyReturns computes close_t / close_{t-1} - 1 between adjacent stored bars.
// Calendar gaps between bars are not filled.
func DailyReturns(bars []model.PriceBar) ([]float64, error) {
	if len(bars) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 bars, got %d", ErrInsufficientData, len(bars))
	}
	closes, err := extractCloses(bars)
	if err != nil {
		return nil, err
	}
	return returnsOf(closes), nil
}

func returnsOf(closes []float64) []float64 {
	r := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		r[i-1] = closes[i]/closes[i-1] - 1
	}
	return r
}

// MaxDrawdown returns min over t of close_t / running_max - 1. It is never positive.
func MaxDrawdown(closes []float64) float64 {
	if len(closes) == 0 {
		return 0
	}
	peak := closes[0]
	worst := 0.0
	for _, c := range closes {
		if c > peak {
			peak = c
		}
		if dd := c/peak - 1; dd < worst {
			worst = dd
		}
	}
	return worst
}

// Quantile returns the q-quantile of values using linear interpolation between order
// statistics. values is not modified.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	h := q * float64(len(sorted)-1)
	lo := int(math.Floor(h))
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// Normalize rescales closes so the first bar is 1.0.
func Normalize(bars []model.PriceBar) ([]model.PerformancePoint, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: empty series", ErrInsufficientData)
	}
	closes, err := extractCloses(bars)
	if err != nil {
		return nil, err
	}
	out := make([]model.PerformancePoint, len(bars))
	for i, b := range bars {
		out[i] = model.PerformancePoint{Date: b.TradeDate, Value: closes[i] / closes[0]}
	}
	return out, nil
}
