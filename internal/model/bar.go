package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical day format used for keys and storage.
const DateLayout = "2006-01-02"

// PriceBar is one daily OHLCV observation. (Symbol, TradeDate) is the natural key.
type PriceBar struct {
	Symbol    string          `json:"symbol"`
	TradeDate time.Time       `json:"trade_date"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
	LoadedAt  time.Time       `json:"loaded_at,omitempty"`
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a UTC day.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// DateKey returns the YYYY-MM-DD key of t's UTC day.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Key returns the bar's trade date key.
func (b PriceBar) Key() string {
	return DateKey(b.TradeDate)
}

// RoundVolume converts a provider volume (possibly fractional, e.g. crypto) to whole units.
func RoundVolume(v decimal.Decimal) int64 {
	return v.Round(0).IntPart()
}
