package api

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"MarketLedger/internal/model"
)

const maxSymbolsPerRequest = 50

// Validator handles validation logic separate from HTTP concerns.
type Validator struct {
	symbolRegex *regexp.Regexp
}

var (
	validatorInstance *Validator
	validatorOnce     sync.Once
)

// GetValidator returns the singleton validator instance.
func GetValidator() *Validator {
	validatorOnce.Do(func() {
		validatorInstance = &Validator{
			// tickers such as MSFT, BRK.B, BTC-USD, ^GSPC
			symbolRegex: regexp.MustCompile(`^[A-Z0-9^][A-Z0-9.\-]{0,14}$`),
		}
	})
	return validatorInstance
}

// ValidateSymbol normalizes and checks a single symbol.
func (v *Validator) ValidateSymbol(symbol string) (string, error) {
	clean := strings.ToUpper(sanitizeInput(symbol))
	if clean == "" {
		return "", errors.New("symbol parameter is required")
	}
	if !v.symbolRegex.MatchString(clean) {
		return "", fmt.Errorf("invalid symbol %q", clean)
	}
	return clean, nil
}

// ValidateSymbols parses a comma-separated list. An empty list means all symbols.
func (v *Validator) ValidateSymbols(list string) ([]string, error) {
	list = sanitizeInput(list)
	if list == "" {
		return nil, nil
	}
	parts := strings.Split(list, ",")
	if len(parts) > maxSymbolsPerRequest {
		return nil, fmt.Errorf("at most %d symbols per request", maxSymbolsPerRequest)
	}
	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s, err := v.ValidateSymbol(p)
		if err != nil {
			return nil, err
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out, nil
}

// ValidateRange parses optional start/end dates. Missing end means today,
// missing start means DefaultLookbackDays before end.
func (v *Validator) ValidateRange(start, end string, now time.Time) (model.DateRange, error) {
	endDay := model.Day(now)
	if s := sanitizeInput(end); s != "" {
		d, err := model.ParseDay(s)
		if err != nil {
			return model.DateRange{}, errors.New("end must be a YYYY-MM-DD date")
		}
		endDay = d
	}
	startDay := endDay.AddDate(0, 0, -DefaultLookbackDays)
	if s := sanitizeInput(start); s != "" {
		d, err := model.ParseDay(s)
		if err != nil {
			return model.DateRange{}, errors.New("start must be a YYYY-MM-DD date")
		}
		startDay = d
	}
	r := model.NewDateRange(startDay, endDay)
	if !r.Valid() {
		return model.DateRange{}, errors.New("start must not be after end")
	}
	return r, nil
}

// sanitizeInput trims whitespace, drops control characters and bounds the length.
func sanitizeInput(input string) string {
	input = strings.TrimSpace(input)
	input = strings.Map(func(r rune) rune {
		if r < 32 {
			return -1
		}
		return r
	}, input)
	if len(input) > 1000 {
		input = input[:1000]
	}
	return input
}
