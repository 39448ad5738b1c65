package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"MarketLedger/internal/model"
)

const (
	binanceKlineLimit      = 1000
	binanceInvalidSymbol   = -1121
	binanceDailyInterval   = "1d"
	binanceRequestsPerSecs = 5
)

// BinanceSource implements Source using Binance spot daily klines.
type BinanceSource struct {
	api       *binance.Client
	Limiter   *rate.Limiter
	SymbolMap map[string]string // maps internal symbol to Binance pair
}

// NewBinanceSource creates a Binance kline source. Public market data needs no key;
// the key pair is accepted for accounts with raised limits.
func NewBinanceSource(apiKey, apiSecret, proxyURL string) *BinanceSource {
	cli := binance.NewClient(apiKey, apiSecret)
	cli.HTTPClient = newHTTPClient(proxyURL, DefaultTimeout)
	return &BinanceSource{
		api:     cli,
		Limiter: rate.NewLimiter(binanceRequestsPerSecs, 1),
		SymbolMap: map[string]string{
			"BTC": "BTCUSDT",
			"ETH": "ETHUSDT",
		},
	}
}

// SetBaseURL points the client at another endpoint (testnet, test server).
func (s *BinanceSource) SetBaseURL(u string) { s.api.BaseURL = u }

// SetHTTPClient replaces the underlying HTTP client.
func (s *BinanceSource) SetHTTPClient(c *http.Client) { s.api.HTTPClient = c }

func (s *BinanceSource) Name() string { return "binance" }

func (s *BinanceSource) pair(symbol string) string {
	if mapped, ok := s.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

func (s *BinanceSource) FetchRange(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceBar, error) {
	from := model.Day(start).UnixMilli()
	until := model.Day(end).AddDate(0, 0, 1).UnixMilli() - 1

	var bars []model.PriceBar
	for from <= until {
		if s.Limiter != nil {
			if err := s.Limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: binance: rate limiter: %v", ErrSourceUnavailable, err)
			}
		}
		klines, err := s.api.NewKlinesService().
			Symbol(s.pair(symbol)).
			Interval(binanceDailyInterval).
			StartTime(from).
			EndTime(until).
			Limit(binanceKlineLimit).
			Do(ctx)
		if err != nil {
			return nil, classifyBinance(symbol, err)
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			bar, err := klineToBar(symbol, k)
			if err != nil {
				return nil, fmt.Errorf("%w: binance: kline %d: %v", ErrSourceUnavailable, k.OpenTime, err)
			}
			bars = append(bars, bar)
		}
		if len(klines) < binanceKlineLimit {
			break
		}
		from = klines[len(klines)-1].OpenTime + int64(24*time.Hour/time.Millisecond)
	}
	return clampAndSort(bars, start, end), nil
}

func classifyBinance(symbol string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && apiErr.Code == binanceInvalidSymbol {
		return fmt.Errorf("%w: binance: %s: %s", ErrSymbolNotFound, symbol, apiErr.Message)
	}
	return fmt.Errorf("%w: binance: %v", ErrSourceUnavailable, err)
}

func klineToBar(symbol string, k *binance.Kline) (model.PriceBar, error) {
	var vals [5]decimal.Decimal
	for i, raw := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return model.PriceBar{}, err
		}
		vals[i] = d
	}
	return model.PriceBar{
		Symbol:    symbol,
		TradeDate: model.Day(time.UnixMilli(k.OpenTime)),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    model.RoundVolume(vals[4]),
	}, nil
}
