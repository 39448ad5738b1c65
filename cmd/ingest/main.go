package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"MarketLedger/internal/app"
	"MarketLedger/internal/config"
	"MarketLedger/internal/ingest"
	"MarketLedger/internal/logger"
	"MarketLedger/internal/model"
	"MarketLedger/internal/scheduler"
)

func main() {
	os.Exit(run())
}

func run() int {
	mode := flag.String("mode", "once", "once: single ingestion run; daemon: scheduled runs with chat commands")
	start := flag.String("start", "", "backfill start date YYYY-MM-DD (default: configured history start)")
	end := flag.String("end", "", "backfill end date YYYY-MM-DD (default: last completed UTC day)")
	flag.Parse()

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
	logger.Info(ctx, "MarketLedger ingest starting", "mode", *mode)

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "load config", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		logger.ErrorWithErr(ctx, "config validation", err)
		return 1
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.ErrorWithErr(ctx, "init", err)
		return 1
	}
	defer a.Close()

	switch *mode {
	case "once":
		return runOnce(ctx, a, *start, *end)
	case "daemon":
		return runDaemon(ctx, a)
	default:
		logger.Error(ctx, "unknown mode", "mode", *mode)
		return 2
	}
}

// runOnce performs one ingestion pass. Any failed symbol makes the exit status non-zero.
func runOnce(ctx context.Context, a *app.App, startFlag, endFlag string) int {
	target, err := backfillRange(a.Config, startFlag, endFlag, time.Now())
	if err != nil {
		logger.ErrorWithErr(ctx, "backfill range", err)
		return 2
	}

	report, err := a.Orchestrator.Run(ctx, a.Config.Symbols, target)
	if a.Notifier != nil {
		var sendErr error
		if err != nil {
			sendErr = a.Notifier.NotifyAbort(ctx, err)
		} else {
			sendErr = a.Notifier.NotifyRun(ctx, report)
		}
		if sendErr != nil {
			logger.ErrorWithErr(ctx, "send run report", sendErr)
		}
	}
	if err != nil {
		logger.ErrorWithErr(ctx, "ingestion run aborted", err)
		return 1
	}
	if report.Failed() > 0 {
		logger.Warn(ctx, "ingestion finished with failures", "failed", report.Failed(), "run_id", report.RunID)
		return 1
	}
	logger.Info(ctx, "ingestion finished", "bars_written", report.BarsWritten(), "run_id", report.RunID)
	return 0
}

func backfillRange(cfg *config.Config, startFlag, endFlag string, now time.Time) (model.DateRange, error) {
	start, err := cfg.HistoryStartDate()
	if err != nil {
		return model.DateRange{}, err
	}
	if startFlag != "" {
		if start, err = model.ParseDay(startFlag); err != nil {
			return model.DateRange{}, fmt.Errorf("parse -start: %w", err)
		}
	}
	target := ingest.Target(start, now)
	if endFlag != "" {
		end, err := model.ParseDay(endFlag)
		if err != nil {
			return model.DateRange{}, fmt.Errorf("parse -end: %w", err)
		}
		target.End = end
	}
	if !target.Valid() {
		return model.DateRange{}, fmt.Errorf("empty backfill range %s", target)
	}
	return target, nil
}

// runDaemon runs the daily cron schedule until a shutdown signal arrives.
func runDaemon(ctx context.Context, a *app.App) int {
	start, err := a.Config.HistoryStartDate()
	if err != nil {
		logger.ErrorWithErr(ctx, "history start", err)
		return 1
	}

	var sender scheduler.Sender
	if a.Notifier != nil {
		sender = a.Notifier
	}
	sched := scheduler.NewScheduler(ctx, a.Orchestrator, a.Analysis, sender, a.Config.Symbols, start)
	if err := sched.RegisterAll(a.Config.Schedule.DailyCron); err != nil {
		logger.ErrorWithErr(ctx, "register cron tasks", err)
		return 1
	}
	sched.Start()
	defer sched.Stop()

	if a.Notifier != nil {
		go a.Notifier.StartPolling(ctx, sched.HandleCommand)
		logger.Info(ctx, "telegram polling started")
	}

	if os.Getenv("RUN_ON_START") == "true" {
		logger.Info(ctx, "RUN_ON_START enabled, executing ingestion now")
		go func() {
			if _, err := sched.RunNow(); err != nil {
				logger.ErrorWithErr(ctx, "startup run", err)
			}
		}()
	}

	logger.Info(ctx, "MarketLedger is running. Press Ctrl+C to stop.")
	<-ctx.Done()
	logger.Info(context.Background(), "shutdown signal received, stopping")
	return 0
}
