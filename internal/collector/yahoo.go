package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"MarketLedger/internal/model"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// YahooSource implements Source using the Yahoo Finance chart API.
type YahooSource struct {
	BaseURL   string
	Client    *http.Client
	Limiter   *rate.Limiter
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
}

// NewYahooSource creates a new Yahoo Finance source.
func NewYahooSource(proxyURL string, perSecond float64) *YahooSource {
	s := &YahooSource{
		BaseURL: yahooBaseURL,
		Client:  newHTTPClient(proxyURL, DefaultTimeout),
		SymbolMap: map[string]string{
			"BTC":    "BTC-USD",
			"ETH":    "ETH-USD",
			"SPX500": "^GSPC",
			"SPX":    "^GSPC",
		},
	}
	if perSecond > 0 {
		s.Limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return s
}

func (s *YahooSource) Name() string { return "yahoo" }

func (s *YahooSource) yahooSymbol(symbol string) string {
	if mapped, ok := s.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				GmtOffset int64 `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func at(vals []*float64, i int) (float64, bool) {
	if i >= len(vals) || vals[i] == nil {
		return 0, false
	}
	return *vals[i], true
}

func (s *YahooSource) FetchRange(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceBar, error) {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: yahoo: rate limiter: %v", ErrSourceUnavailable, err)
		}
	}

	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("period1", strconv.FormatInt(model.Day(start).Unix(), 10))
	// period2 is exclusive
	q.Set("period2", strconv.FormatInt(model.Day(end).AddDate(0, 0, 1).Unix(), 10))
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", s.BaseURL, url.PathEscape(s.yahooSymbol(symbol)), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: yahoo fetch: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: yahoo read body: %v", ErrSourceUnavailable, err)
	}

	var chart yahooChart
	decodeErr := json.Unmarshal(body, &chart)
	if decodeErr == nil && chart.Chart.Error != nil {
		if chart.Chart.Error.Code == "Not Found" || resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: yahoo: %s", ErrSymbolNotFound, chart.Chart.Error.Description)
		}
		return nil, fmt.Errorf("%w: yahoo api error: %s", ErrSourceUnavailable, chart.Chart.Error.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("yahoo", resp.StatusCode, body)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: yahoo decode: %v", ErrSourceUnavailable, decodeErr)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: yahoo: no result for %s", ErrSymbolNotFound, symbol)
	}

	result := chart.Chart.Result[0]
	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		return []model.PriceBar{}, nil // no trading days in range
	}
	quote := result.Indicators.Quote[0]
	bars := make([]model.PriceBar, 0, len(result.Timestamp))

	for i, ts := range result.Timestamp {
		o, ok1 := at(quote.Open, i)
		h, ok2 := at(quote.High, i)
		l, ok3 := at(quote.Low, i)
		c, ok4 := at(quote.Close, i)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue // skip null bars (holidays etc.)
		}
		v, _ := at(quote.Volume, i)
		bars = append(bars, model.PriceBar{
			Symbol:    symbol,
			TradeDate: model.Day(time.Unix(ts+result.Meta.GmtOffset, 0)),
			Open:      decimal.NewFromFloat(o),
			High:      decimal.NewFromFloat(h),
			Low:       decimal.NewFromFloat(l),
			Close:     decimal.NewFromFloat(c),
			Volume:    model.RoundVolume(decimal.NewFromFloat(v)),
		})
	}
	return clampAndSort(bars, start, end), nil
}
