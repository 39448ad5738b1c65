package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"MarketLedger/internal/analysis"
	"MarketLedger/internal/api"
	"MarketLedger/internal/app"
	"MarketLedger/internal/config"
	"MarketLedger/internal/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	if err := logger.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = logger.Shutdown(ctx)
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "load config", err)
		return 1
	}

	// The API only reads, so source credentials are not required here.
	gw, err := app.OpenGateway(ctx, cfg)
	if err != nil {
		logger.ErrorWithErr(ctx, "open gateway", err)
		return 1
	}
	defer gw.Close()

	svc := analysis.NewService(gw, app.MetricOptions(cfg))
	handler := api.NewAPIHandler(svc, cfg.API.CacheTTL, slog.Default().With("service", api.ServiceName))
	srv := handler.NewServer(cfg.API.Addr)

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "api listening", "addr", cfg.API.Addr, "backend", cfg.Database.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.ErrorWithErr(ctx, "api server", err)
			return 1
		}
	case <-ctx.Done():
		logger.Info(context.Background(), "shutdown signal received, stopping api")
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithErr(shutdownCtx, "api shutdown", err)
		return 1
	}
	return 0
}
