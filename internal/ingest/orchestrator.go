// Package ingest runs incremental ingestion: for every tracked symbol it finds
// the days missing from storage, fetches them from the bound source and upserts
// the result.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"MarketLedger/internal/collector"
	"MarketLedger/internal/gap"
	"MarketLedger/internal/logger"
	"MarketLedger/internal/model"
	"MarketLedger/internal/store"
)

// Options tunes retry and fan-out.
type Options struct {
	MaxAttempts int           // per missing range, including the first call
	BaseBackoff time.Duration // wait before retry i is BaseBackoff * 2^(i-1)
	Concurrency int           // symbols processed in parallel
}

// DefaultOptions returns 3 attempts, 1s base backoff and sequential processing.
func DefaultOptions() Options {
	return Options{MaxAttempts: 3, BaseBackoff: time.Second, Concurrency: 1}
}

// Orchestrator drives one ingestion run over the symbol universe.
type Orchestrator struct {
	Registry *collector.Registry
	Gateway  store.Gateway
	Opts     Options
	Now      func() time.Time
}

// New creates an orchestrator. Zero option fields fall back to DefaultOptions.
func New(reg *collector.Registry, gw store.Gateway, opts Options) *Orchestrator {
	def := DefaultOptions()
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = def.BaseBackoff
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	return &Orchestrator{Registry: reg, Gateway: gw, Opts: opts, Now: time.Now}
}

// Target returns the range from start through the last completed UTC day, the
// window both backfill and daily runs ask for.
func Target(start, now time.Time) model.DateRange {
	return model.NewDateRange(start, LastClosedDay(now))
}

// LastClosedDay is the UTC day before now. The current day's bar is still
// forming and is never ingested.
func LastClosedDay(now time.Time) time.Time {
	return model.Day(now).AddDate(0, 0, -1)
}

// Run ingests every symbol of universe over target. Per-symbol failures are
// recorded in the report and the run continues. A write failure aborts the run
// and is returned together with the partial report. target never extends past
// LastClosedDay.
func (o *Orchestrator) Run(ctx context.Context, universe model.Universe, target model.DateRange) (*model.RunReport, error) {
	lastClosed := LastClosedDay(o.Now())
	target = model.NewDateRange(target.Start, target.End)
	if target.End.After(lastClosed) {
		target.End = lastClosed
	}

	report := &model.RunReport{
		RunID:     uuid.NewString(),
		Target:    target,
		StartedAt: o.Now(),
		Results:   make([]model.SymbolResult, len(universe)),
	}
	op := logger.StartOperation(ctx, "ingest.run",
		"run_id", report.RunID, "symbols", len(universe), "target", target.String())
	ctx = op.Context()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Opts.Concurrency)
	for i, spec := range universe {
		i, spec := i, spec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				report.Results[i] = model.SymbolResult{
					Symbol: spec.Symbol, Source: spec.Source, Status: model.StatusFailed,
					Err: fmt.Sprintf("aborted: %v", err),
				}
				return nil
			}
			res, err := o.ingestSymbol(gctx, spec, target)
			report.Results[i] = res
			return err
		})
	}
	err := g.Wait()
	report.FinishedAt = o.Now()

	if err != nil {
		op.EndWithError(err, "bars_written", report.BarsWritten())
		return report, err
	}
	if err := ctx.Err(); err != nil {
		op.EndWithError(err)
		return report, err
	}
	if err := o.Gateway.RecordRun(ctx, report); err != nil {
		op.EndWithError(err)
		return report, asWriteFailure(err)
	}
	op.End("bars_written", report.BarsWritten(), "failed", report.Failed())
	return report, nil
}

// ingestSymbol only returns an error for write failures; everything else ends
// up in the SymbolResult.
func (o *Orchestrator) ingestSymbol(ctx context.Context, spec model.SymbolSpec, target model.DateRange) (model.SymbolResult, error) {
	res := model.SymbolResult{Symbol: spec.Symbol, Source: spec.Source}
	op := logger.StartOperation(ctx, "ingest.symbol", "symbol", spec.Symbol, "source", spec.Source)
	ctx = op.Context()

	fail := func(err error) (model.SymbolResult, error) {
		res.Status = model.StatusFailed
		res.Err = err.Error()
		op.EndWithError(err, "attempts", res.Attempts)
		return res, nil
	}

	binding, err := o.Registry.Lookup(spec.Symbol)
	if err != nil {
		return fail(err)
	}
	res.Source = binding.Source.Name()

	known, err := o.knownDates(ctx, spec.Symbol, target)
	if err != nil {
		return fail(err)
	}
	missing := gap.Missing(target, known)
	if len(missing) == 0 {
		res.Status = model.StatusUpToDate
		op.End("status", string(res.Status))
		return res, nil
	}
	logger.Debug(ctx, "missing ranges", "symbol", spec.Symbol, "ranges", len(missing), "days", gap.Count(missing))

	for _, r := range missing {
		bars, attempts, err := o.fetchWithRetry(ctx, binding, r)
		res.Attempts += attempts
		if errors.Is(err, collector.ErrSymbolNotFound) {
			res.Status = model.StatusSkipped
			res.Err = err.Error()
			logger.Warn(ctx, "symbol unknown to source, skipping", "symbol", spec.Symbol, "source", res.Source, "error", err)
			op.End("status", string(res.Status))
			return res, nil
		}
		if err != nil {
			return fail(err)
		}

		for i := range bars {
			bars[i].Symbol = spec.Symbol
		}
		n, err := o.Gateway.UpsertBars(ctx, spec.Symbol, bars)
		if err != nil {
			err = asWriteFailure(err)
			op.EndWithError(err)
			res.Status = model.StatusFailed
			res.Err = err.Error()
			return res, err
		}
		res.BarsWritten += n
		res.RangesFetched++

		if err := o.Gateway.RecordCoverage(ctx, spec.Symbol, r); err != nil {
			err = asWriteFailure(err)
			op.EndWithError(err)
			res.Status = model.StatusFailed
			res.Err = err.Error()
			return res, err
		}
	}

	res.Status = model.StatusOK
	op.End("status", string(res.Status), "bars_written", res.BarsWritten, "ranges", res.RangesFetched)
	return res, nil
}

// knownDates is the union of stored bar days and days an earlier fetch already covered.
func (o *Orchestrator) knownDates(ctx context.Context, symbol string, target model.DateRange) (model.DateSet, error) {
	known, err := o.Gateway.ExistingDates(ctx, symbol, target)
	if err != nil {
		return nil, fmt.Errorf("load stored dates for %s: %w", symbol, err)
	}
	covered, err := o.Gateway.CoveredDates(ctx, symbol, target)
	if err != nil {
		return nil, fmt.Errorf("load coverage for %s: %w", symbol, err)
	}
	known.Merge(covered)
	return known, nil
}

// fetchWithRetry retries anything except ErrSymbolNotFound with exponential backoff.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, b collector.Binding, r model.DateRange) ([]model.PriceBar, int, error) {
	var lastErr error
	for attempt := 1; attempt <= o.Opts.MaxAttempts; attempt++ {
		bars, err := b.Source.FetchRange(ctx, b.ProviderSymbol, r.Start, r.End)
		if err == nil {
			return bars, attempt, nil
		}
		if errors.Is(err, collector.ErrSymbolNotFound) {
			return nil, attempt, err
		}
		lastErr = err
		if attempt == o.Opts.MaxAttempts {
			break
		}

		backoff := o.Opts.BaseBackoff * time.Duration(1<<uint(attempt-1))
		logger.Warn(ctx, "fetch failed, retrying",
			"symbol", b.ProviderSymbol, "source", b.Source.Name(), "range", r.String(),
			"attempt", attempt, "max_attempts", o.Opts.MaxAttempts, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, o.Opts.MaxAttempts, fmt.Errorf("all %d attempts exhausted for %s %s: %w",
		o.Opts.MaxAttempts, b.ProviderSymbol, r, lastErr)
}

func asWriteFailure(err error) error {
	if errors.Is(err, store.ErrWriteFailure) {
		return err
	}
	return fmt.Errorf("%w: %v", store.ErrWriteFailure, err)
}
