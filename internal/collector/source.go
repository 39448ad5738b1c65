package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"MarketLedger/internal/model"
)

var (
	// ErrSourceUnavailable covers transient provider failures: network, timeouts, rate limits, auth.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSymbolNotFound means the provider has no data for the symbol at all.
	ErrSymbolNotFound = errors.New("symbol not found")
)

// DefaultTimeout bounds every outbound provider call.
const DefaultTimeout = 30 * time.Second

// Source fetches historical daily bars from one external provider.
// Implementations do not retry; retry policy belongs to the caller.
type Source interface {
	Name() string
	// FetchRange returns bars for trading days inside [start, end], ascending by date.
	FetchRange(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceBar, error)
}

func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// statusError maps a non-200 provider response to the error taxonomy.
func statusError(provider string, status int, body []byte) error {
	if len(body) > 200 {
		body = body[:200]
	}
	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s: status %d, body: %s", ErrSymbolNotFound, provider, status, string(body))
	default:
		return fmt.Errorf("%w: %s: status %d, body: %s", ErrSourceUnavailable, provider, status, string(body))
	}
}

// clampAndSort keeps bars inside [start, end], drops duplicate days and sorts ascending.
func clampAndSort(bars []model.PriceBar, start, end time.Time) []model.PriceBar {
	r := model.NewDateRange(start, end)
	seen := make(model.DateSet, len(bars))
	out := bars[:0]
	for _, b := range bars {
		if !r.Contains(b.TradeDate) || seen.Has(b.TradeDate) {
			continue
		}
		seen.Add(b.TradeDate)
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TradeDate.Before(out[j].TradeDate) })
	return out
}
