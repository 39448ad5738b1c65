// Package store is the persistence gateway for price bars and ingestion bookkeeping.
package store

import (
	"context"
	"errors"

	"MarketLedger/internal/model"
)

// ErrWriteFailure wraps any failed write. The orchestrator aborts the run on it.
var ErrWriteFailure = errors.New("write failure")

// Gateway persists price bars keyed by (trade date, symbol) and the
// bookkeeping that makes ingestion incremental.
type Gateway interface {
	// UpsertBars inserts or overwrites bars for symbol in one transaction and
	// returns the number of rows written.
	UpsertBars(ctx context.Context, symbol string, bars []model.PriceBar) (int, error)
	// ExistingDates returns the days in r that already hold a bar for symbol.
	ExistingDates(ctx context.Context, symbol string, r model.DateRange) (model.DateSet, error)
	// Bars returns stored bars for symbol in r, ascending by date.
	Bars(ctx context.Context, symbol string, r model.DateRange) ([]model.PriceBar, error)
	// Symbols lists every symbol with at least one stored bar.
	Symbols(ctx context.Context) ([]string, error)

	// RecordCoverage marks every day in r as fetched for symbol, whether or not a bar came back.
	RecordCoverage(ctx context.Context, symbol string, r model.DateRange) error
	// CoveredDates returns the days in r previously marked by RecordCoverage.
	CoveredDates(ctx context.Context, symbol string, r model.DateRange) (model.DateSet, error)

	// RecordRun persists a finished run and its non-ok symbol results.
	RecordRun(ctx context.Context, report *model.RunReport) error
	Close() error
}
