package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketLedger/internal/collector"
	"MarketLedger/internal/metrics"
	"MarketLedger/internal/model"
	"MarketLedger/internal/store"
)

var jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func seeded(t *testing.T) *Service {
	t.Helper()
	gw := store.NewMemoryGateway()
	ctx := context.Background()
	_, err := gw.UpsertBars(ctx, "BTC", collector.GenerateMockBars("BTC", 42000, jan1, 30))
	require.NoError(t, err)
	_, err = gw.UpsertBars(ctx, "GLD", collector.GenerateMockBars("GLD", 190, jan1, 30))
	require.NoError(t, err)
	_, err = gw.UpsertBars(ctx, "NEW", collector.GenerateMockBars("NEW", 10, jan1.AddDate(0, 0, 29), 1))
	require.NoError(t, err)
	return NewService(gw, metrics.DefaultOptions())
}

func TestRisk_AllStoredSymbols(t *testing.T) {
	svc := seeded(t)
	r := model.NewDateRange(jan1, jan1.AddDate(0, 1, 0))

	report, err := svc.Risk(context.Background(), nil, r)
	require.NoError(t, err)
	require.Len(t, report.Metrics, 2)
	assert.Contains(t, report.Skipped, "NEW")
	assert.LessOrEqual(t, report.Metrics[0].MaxDrawdown, report.Metrics[1].MaxDrawdown)
	for _, m := range report.Metrics {
		assert.Equal(t, 30, m.Observations)
	}
}

func TestRisk_SelectedSymbols(t *testing.T) {
	svc := seeded(t)
	report, err := svc.Risk(context.Background(), []string{"GLD"}, model.NewDateRange(jan1, jan1.AddDate(0, 0, 9)))
	require.NoError(t, err)
	require.Len(t, report.Metrics, 1)
	assert.Equal(t, "GLD", report.Metrics[0].Symbol)
	assert.Equal(t, 10, report.Metrics[0].Observations)
}

func TestPerformance(t *testing.T) {
	svc := seeded(t)
	report, err := svc.Performance(context.Background(), []string{"BTC", "MISSING"}, model.NewDateRange(jan1, jan1.AddDate(0, 1, 0)))
	require.NoError(t, err)

	require.Len(t, report.Symbols, 1)
	btc := report.Symbols[0]
	assert.Equal(t, 1.0, btc.Series[0].Value)
	assert.InDelta(t, btc.Series[len(btc.Series)-1].Value-1, btc.TotalReturn, 1e-12)
	assert.Greater(t, btc.TotalReturn, 0.0)
	require.NotNil(t, btc.CalendarAnnualizedReturn)
	assert.Greater(t, *btc.CalendarAnnualizedReturn, btc.TotalReturn)
	assert.Contains(t, report.Skipped, "MISSING")
}
