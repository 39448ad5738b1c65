package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketLedger/internal/model"
)

func day(s string) time.Time {
	d, err := model.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

const avDaily = `{
  "Meta Data": {"2. Symbol": "MSFT"},
  "Time Series (Daily)": {
    "2024-01-05": {"1. open": "368.97", "2. high": "372.06", "3. low": "366.50", "4. close": "367.75", "5. volume": "20987000"},
    "2024-01-04": {"1. open": "370.67", "2. high": "373.10", "3. low": "367.17", "4. close": "367.94", "5. volume": "20901500"},
    "2024-01-03": {"1. open": "369.01", "2. high": "373.26", "3. low": "366.77", "4. close": "370.60", "5. volume": "23083500"},
    "2024-01-02": {"1. open": "373.86", "2. high": "375.90", "3. low": "366.77", "4. close": "370.87", "5. volume": "25258600"}
  }
}`

func TestAlphaVantage_FetchRange(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, avDaily)
	}))
	defer srv.Close()

	src := NewAlphaVantageSource("demo", model.AssetEquity, "", 0)
	src.BaseURL = srv.URL
	src.Now = func() time.Time { return day("2024-01-06") }

	bars, err := src.FetchRange(context.Background(), "MSFT", day("2024-01-03"), day("2024-01-04"))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "2024-01-03", bars[0].Key())
	assert.Equal(t, "2024-01-04", bars[1].Key())
	assert.Equal(t, "370.6", bars[0].Close.String())
	assert.Equal(t, int64(20901500), bars[1].Volume)
	assert.Contains(t, gotQuery, "function=TIME_SERIES_DAILY")
	assert.Contains(t, gotQuery, "outputsize=compact")
	assert.Contains(t, gotQuery, "apikey=demo")
}

func TestAlphaVantage_FullOutputForOldRanges(t *testing.T) {
	src := NewAlphaVantageSource("k", model.AssetEquity, "", 0)
	src.Now = func() time.Time { return day("2024-06-01") }
	assert.Contains(t, src.endpoint("KO", day("2005-01-01")), "outputsize=full")
}

func TestAlphaVantage_Crypto(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DIGITAL_CURRENCY_DAILY", r.URL.Query().Get("function"))
		assert.Equal(t, "USD", r.URL.Query().Get("market"))
		fmt.Fprint(w, `{"Time Series (Digital Currency Daily)": {
			"2024-01-01": {"1. open": "42280.23", "2. high": "44184.10", "3. low": "42180.77", "4. close": "44179.55", "5. volume": "27174.29903"}
		}}`)
	}))
	defer srv.Close()

	src := NewAlphaVantageSource("k", model.AssetCrypto, "", 0)
	src.BaseURL = srv.URL
	assert.Equal(t, "alphavantage_crypto", src.Name())

	bars, err := src.FetchRange(context.Background(), "BTC", day("2024-01-01"), day("2024-01-01"))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, int64(27174), bars[0].Volume)
}

func TestAlphaVantage_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"invalid symbol", http.StatusOK, `{"Error Message": "Invalid API call."}`, ErrSymbolNotFound},
		{"rate limit note", http.StatusOK, `{"Note": "Thank you for using Alpha Vantage!"}`, ErrSourceUnavailable},
		{"information", http.StatusOK, `{"Information": "premium endpoint"}`, ErrSourceUnavailable},
		{"server error", http.StatusBadGateway, `bad gateway`, ErrSourceUnavailable},
		{"garbage", http.StatusOK, `<html>`, ErrSourceUnavailable},
		{"empty close", http.StatusOK, `{"Time Series (Daily)": {"2024-01-02": {"1. open": "1", "2. high": "1", "3. low": "1", "4. close": "", "5. volume": "10"}}}`, ErrSourceUnavailable},
		{"zero close", http.StatusOK, `{"Time Series (Daily)": {"2024-01-02": {"1. open": "1", "2. high": "1", "3. low": "1", "4. close": "0.0000", "5. volume": "10"}}}`, ErrSourceUnavailable},
		{"unparsable open", http.StatusOK, `{"Time Series (Daily)": {"2024-01-02": {"1. open": "n/a", "2. high": "1", "3. low": "1", "4. close": "1", "5. volume": "10"}}}`, ErrSourceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			src := NewAlphaVantageSource("k", model.AssetEquity, "", 0)
			src.BaseURL = srv.URL
			_, err := src.FetchRange(context.Background(), "NOPE", day("2024-01-01"), day("2024-01-02"))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAlphaVantage_MissingVolumeIsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Time Series (Daily)": {"2024-01-02": {"1. open": "10", "2. high": "11", "3. low": "9", "4. close": "10.5"}}}`)
	}))
	defer srv.Close()

	src := NewAlphaVantageSource("k", model.AssetEquity, "", 0)
	src.BaseURL = srv.URL
	bars, err := src.FetchRange(context.Background(), "KO", day("2024-01-01"), day("2024-01-02"))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, int64(0), bars[0].Volume)
	assert.Equal(t, "10.5", bars[0].Close.String())
}

func TestAlphaVantage_MissingKey(t *testing.T) {
	src := NewAlphaVantageSource("", model.AssetEquity, "", 0)
	_, err := src.FetchRange(context.Background(), "MSFT", day("2024-01-01"), day("2024-01-02"))
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestYahoo_FetchRange(t *testing.T) {
	// 2024-01-02 and 2024-01-03 at 14:30 UTC, plus a null holiday row.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/BTC-USD", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.Equal(t, fmt.Sprint(day("2024-01-02").Unix()), r.URL.Query().Get("period1"))
		assert.Equal(t, fmt.Sprint(day("2024-01-05").Unix()), r.URL.Query().Get("period2"))
		fmt.Fprint(w, `{"chart": {"result": [{
			"meta": {"gmtoffset": 0},
			"timestamp": [1704205800, 1704292200, 1704378600],
			"indicators": {"quote": [{
				"open":   [100.5, null, 102.0],
				"high":   [101.5, null, 103.0],
				"low":    [99.5,  null, 101.0],
				"close":  [101.0, null, 102.5],
				"volume": [1500.4, null, null]
			}]}
		}], "error": null}}`)
	}))
	defer srv.Close()

	src := NewYahooSource("", 0)
	src.BaseURL = srv.URL
	bars, err := src.FetchRange(context.Background(), "BTC", day("2024-01-02"), day("2024-01-04"))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "2024-01-02", bars[0].Key())
	assert.Equal(t, "2024-01-04", bars[1].Key())
	assert.Equal(t, "BTC", bars[0].Symbol)
	assert.Equal(t, int64(1500), bars[0].Volume)
	assert.Equal(t, int64(0), bars[1].Volume)
	assert.Equal(t, "102.5", bars[1].Close.String())
}

func TestYahoo_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`)
	}))
	defer srv.Close()

	src := NewYahooSource("", 0)
	src.BaseURL = srv.URL
	_, err := src.FetchRange(context.Background(), "ZZZZ", day("2024-01-01"), day("2024-01-02"))
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestYahoo_EmptyRangeIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[{"meta":{"gmtoffset":-18000},"indicators":{"quote":[{}]}}],"error":null}}`)
	}))
	defer srv.Close()

	src := NewYahooSource("", 0)
	src.BaseURL = srv.URL
	bars, err := src.FetchRange(context.Background(), "MSFT", day("2024-01-06"), day("2024-01-07"))
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestYahoo_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	src := NewYahooSource("", 0)
	src.BaseURL = srv.URL
	_, err := src.FetchRange(context.Background(), "MSFT", day("2024-01-01"), day("2024-01-02"))
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestBinance_FetchRange(t *testing.T) {
	d1 := day("2024-01-01").UnixMilli()
	d2 := day("2024-01-02").UnixMilli()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `[
			[%d,"42283.58","44184.10","42180.77","44179.55","27174.29903",%d,"0",1,"0","0","0"],
			[%d,"44179.55","45879.63","44148.34","44946.91","65146.40661",%d,"0",1,"0","0","0"]
		]`, d1, d2-1, d2, d2+86399999)
	}))
	defer srv.Close()

	src := NewBinanceSource("", "", "")
	src.SetBaseURL(srv.URL)
	src.Limiter = nil

	bars, err := src.FetchRange(context.Background(), "BTC", day("2024-01-01"), day("2024-01-02"))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "2024-01-01", bars[0].Key())
	assert.Equal(t, "44946.91", bars[1].Close.String())
	assert.Equal(t, int64(65146), bars[1].Volume)
}

func TestBinance_InvalidSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
	}))
	defer srv.Close()

	src := NewBinanceSource("", "", "")
	src.SetBaseURL(srv.URL)
	src.Limiter = nil
	_, err := src.FetchRange(context.Background(), "NOPE", day("2024-01-01"), day("2024-01-02"))
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestRegistry_Bind(t *testing.T) {
	eq := &MockSource{SourceName: "alphavantage"}
	cr := &MockSource{SourceName: "yahoo"}
	reg := NewRegistry(eq, cr)

	err := reg.Bind(model.Universe{
		{Symbol: "MSFT", Source: "alphavantage", AssetClass: model.AssetEquity},
		{Symbol: "BTC", Source: "yahoo", AssetClass: model.AssetCrypto, ProviderSymbol: "BTC-USD"},
	})
	require.NoError(t, err)

	b, err := reg.Lookup("BTC")
	require.NoError(t, err)
	assert.Equal(t, "yahoo", b.Source.Name())
	assert.Equal(t, "BTC-USD", b.ProviderSymbol)

	b, err = reg.Lookup("MSFT")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", b.ProviderSymbol)

	_, err = reg.Lookup("KO")
	assert.Error(t, err)
}

func TestRegistry_BindErrors(t *testing.T) {
	reg := NewRegistry(&MockSource{})
	assert.Error(t, reg.Bind(model.Universe{{Symbol: "X", Source: "missing"}}))

	reg = NewRegistry(&MockSource{})
	assert.Error(t, reg.Bind(model.Universe{{Symbol: "X", Source: "mock"}, {Symbol: "X", Source: "mock"}}))
}

func TestMockSource_FailFirst(t *testing.T) {
	m := &MockSource{
		Bars:      map[string][]model.PriceBar{"A": GenerateMockBars("A", 100, day("2024-01-01"), 5)},
		FailFirst: map[string]int{"A": 1},
	}
	_, err := m.FetchRange(context.Background(), "A", day("2024-01-01"), day("2024-01-05"))
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	bars, err := m.FetchRange(context.Background(), "A", day("2024-01-02"), day("2024-01-03"))
	require.NoError(t, err)
	assert.Len(t, bars, 2)
	assert.Equal(t, 2, m.Calls("A"))
}
