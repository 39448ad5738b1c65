// Package app wires configuration into the concrete sources, gateway and services.
package app

import (
	"context"
	"fmt"

	"MarketLedger/internal/analysis"
	"MarketLedger/internal/collector"
	"MarketLedger/internal/config"
	"MarketLedger/internal/ingest"
	"MarketLedger/internal/logger"
	"MarketLedger/internal/metrics"
	"MarketLedger/internal/model"
	"MarketLedger/internal/notifier"
	"MarketLedger/internal/store"
)

// App holds the long-lived components built from one Config.
type App struct {
	Config       *config.Config
	Gateway      store.Gateway
	Registry     *collector.Registry
	Orchestrator *ingest.Orchestrator
	Analysis     *analysis.Service
	Notifier     *notifier.TelegramNotifier // nil when Telegram is not configured
}

// New builds every component. The caller owns Close.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	reg, err := BuildRegistry(cfg)
	if err != nil {
		return nil, err
	}
	gw, err := OpenGateway(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Gateway:  gw,
		Registry: reg,
		Orchestrator: ingest.New(reg, gw, ingest.Options{
			MaxAttempts: cfg.Ingest.MaxAttempts,
			BaseBackoff: cfg.Ingest.BaseBackoff,
			Concurrency: cfg.Ingest.Concurrency,
		}),
		Analysis: analysis.NewService(gw, MetricOptions(cfg)),
	}
	if cfg.TelegramEnabled() {
		a.Notifier = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
	}
	return a, nil
}

// Close releases the gateway.
func (a *App) Close() error {
	return a.Gateway.Close()
}

// Sources builds every supported price source from config.
func Sources(cfg *config.Config) []collector.Source {
	av := cfg.Sources.AlphaVantage
	binance := collector.NewBinanceSource(cfg.Sources.Binance.APIKey, cfg.Sources.Binance.APISecret, cfg.Proxy)
	if cfg.Sources.Binance.BaseURL != "" {
		binance.SetBaseURL(cfg.Sources.Binance.BaseURL)
	}
	return []collector.Source{
		collector.NewAlphaVantageSource(av.APIKey, model.AssetEquity, cfg.Proxy, av.RatePerSecond),
		collector.NewAlphaVantageSource(av.APIKey, model.AssetCrypto, cfg.Proxy, av.RatePerSecond),
		collector.NewYahooSource(cfg.Proxy, cfg.Sources.Yahoo.RatePerSecond),
		binance,
	}
}

// BuildRegistry binds the configured universe to its sources. An unknown
// source name fails here, before any network call.
func BuildRegistry(cfg *config.Config) (*collector.Registry, error) {
	reg := collector.NewRegistry(Sources(cfg)...)
	if err := reg.Bind(cfg.Symbols); err != nil {
		return nil, fmt.Errorf("bind symbols: %w", err)
	}
	for _, s := range cfg.Symbols {
		if s.Source == "alphavantage" && s.AssetClass == model.AssetCrypto {
			logger.Warn(context.Background(), "crypto symbol bound to the equity Alpha Vantage source, use alphavantage_crypto",
				"symbol", s.Symbol)
		}
	}
	return reg, nil
}

// OpenGateway opens the configured persistence backend.
func OpenGateway(ctx context.Context, cfg *config.Config) (store.Gateway, error) {
	dsn := cfg.Database.SQLitePath
	if cfg.Database.Backend == store.BackendPostgres {
		dsn = cfg.Database.URL
	}
	gw, err := store.Open(ctx, cfg.Database.Backend, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s gateway: %w", cfg.Database.Backend, err)
	}
	return gw, nil
}

// MetricOptions maps config onto the metric engine's options.
func MetricOptions(cfg *config.Config) metrics.Options {
	return metrics.Options{RiskFreeRate: cfg.Metrics.RiskFreeRate, TradingDays: cfg.Metrics.TradingDays}
}
