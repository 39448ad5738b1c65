package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"MarketLedger/internal/model"
)

const (
	alphaVantageBaseURL = "https://www.alphavantage.co"
	// compact output holds the latest 100 data points.
	compactWindowDays = 100
)

// AlphaVantageSource implements Source using the Alpha Vantage query API.
// One instance serves one asset class: equities use TIME_SERIES_DAILY,
// crypto uses DIGITAL_CURRENCY_DAILY against USD.
type AlphaVantageSource struct {
	BaseURL    string
	APIKey     string
	AssetClass model.AssetClass
	Market     string
	Client     *http.Client
	Limiter    *rate.Limiter
	Now        func() time.Time
}

// NewAlphaVantageSource creates a source with optional proxy and request rate limit
// (requests per second, 0 disables limiting).
func NewAlphaVantageSource(apiKey string, class model.AssetClass, proxyURL string, perSecond float64) *AlphaVantageSource {
	s := &AlphaVantageSource{
		BaseURL:    alphaVantageBaseURL,
		APIKey:     apiKey,
		AssetClass: class,
		Market:     "USD",
		Client:     newHTTPClient(proxyURL, DefaultTimeout),
		Now:        time.Now,
	}
	if perSecond > 0 {
		s.Limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return s
}

func (s *AlphaVantageSource) Name() string {
	if s.AssetClass == model.AssetCrypto {
		return "alphavantage_crypto"
	}
	return "alphavantage"
}

// avBar is the per-day object shape shared by both daily endpoints.
type avBar struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

type avResponse struct {
	ErrorMessage string           `json:"Error Message"`
	Note         string           `json:"Note"`
	Information  string           `json:"Information"`
	Daily        map[string]avBar `json:"Time Series (Daily)"`
	Crypto       map[string]avBar `json:"Time Series (Digital Currency Daily)"`
}

func (s *AlphaVantageSource) endpoint(symbol string, start time.Time) string {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("apikey", s.APIKey)
	if s.AssetClass == model.AssetCrypto {
		q.Set("function", "DIGITAL_CURRENCY_DAILY")
		q.Set("market", s.Market)
	} else {
		q.Set("function", "TIME_SERIES_DAILY")
		outputSize := "full"
		if start.After(s.Now().AddDate(0, 0, -compactWindowDays)) {
			outputSize = "compact"
		}
		q.Set("outputsize", outputSize)
	}
	return s.BaseURL + "/query?" + q.Encode()
}

func (s *AlphaVantageSource) FetchRange(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceBar, error) {
	if s.APIKey == "" {
		return nil, fmt.Errorf("%w: %s: api key not configured", ErrSourceUnavailable, s.Name())
	}
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s: rate limiter: %v", ErrSourceUnavailable, s.Name(), err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint(symbol, start), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s fetch: %v", ErrSourceUnavailable, s.Name(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s read body: %v", ErrSourceUnavailable, s.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(s.Name(), resp.StatusCode, body)
	}

	var parsed avResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %s decode: %v", ErrSourceUnavailable, s.Name(), err)
	}
	switch {
	case parsed.ErrorMessage != "":
		return nil, fmt.Errorf("%w: %s: %s", ErrSymbolNotFound, symbol, parsed.ErrorMessage)
	case parsed.Note != "":
		return nil, fmt.Errorf("%w: %s: %s", ErrSourceUnavailable, s.Name(), parsed.Note)
	case parsed.Information != "":
		return nil, fmt.Errorf("%w: %s: %s", ErrSourceUnavailable, s.Name(), parsed.Information)
	}

	series := parsed.Daily
	if s.AssetClass == model.AssetCrypto {
		series = parsed.Crypto
	}
	if series == nil {
		return nil, fmt.Errorf("%w: %s: no time series for %s", ErrSymbolNotFound, s.Name(), symbol)
	}

	r := model.NewDateRange(start, end)
	bars := make([]model.PriceBar, 0, len(series))
	for dateStr, v := range series {
		day, err := model.ParseDay(dateStr)
		if err != nil || !r.Contains(day) {
			continue
		}
		bar, err := v.toBar(symbol, day)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: bar %s: %v", ErrSourceUnavailable, s.Name(), dateStr, err)
		}
		bars = append(bars, bar)
	}
	return clampAndSort(bars, start, end), nil
}

// toBar rejects bars with a missing or non-positive price. Volume may be absent.
func (v avBar) toBar(symbol string, day time.Time) (model.PriceBar, error) {
	var (
		vals [5]decimal.Decimal
		err  error
	)
	for i, field := range []struct{ name, raw string }{
		{"open", v.Open}, {"high", v.High}, {"low", v.Low}, {"close", v.Close}, {"volume", v.Volume},
	} {
		if field.raw == "" {
			if field.name == "volume" {
				continue
			}
			return model.PriceBar{}, fmt.Errorf("missing %s", field.name)
		}
		if vals[i], err = decimal.NewFromString(field.raw); err != nil {
			return model.PriceBar{}, fmt.Errorf("%s: %w", field.name, err)
		}
		if i < 4 && !vals[i].IsPositive() {
			return model.PriceBar{}, fmt.Errorf("non-positive %s %s", field.name, field.raw)
		}
	}
	return model.PriceBar{
		Symbol:    symbol,
		TradeDate: day,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    model.RoundVolume(vals[4]),
	}, nil
}
