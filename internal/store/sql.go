package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"MarketLedger/internal/logger"
	"MarketLedger/internal/model"
)

const (
	upsertBarSQL = `INSERT INTO price_bars
		(trade_date, symbol, open, high, low, close, volume, load_timestamp)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT (trade_date, symbol) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			load_timestamp = excluded.load_timestamp`

	insertCoverageSQL = `INSERT INTO fetch_coverage (symbol, trade_date) VALUES (?, ?)
		ON CONFLICT DO NOTHING`

	insertRunSQL = `INSERT INTO ingestion_runs
		(run_id, started_at, finished_at, target_start, target_end, symbols, failed, bars_written)
		VALUES (?,?,?,?,?,?,?,?)`

	insertFailureSQL = `INSERT INTO ingestion_failures
		(run_id, symbol, source, status, attempts, error)
		VALUES (?,?,?,?,?,?)`
)

// SQLGateway persists bars to SQLite or Postgres through database/sql.
type SQLGateway struct {
	db  *sql.DB
	d   dialect
	mu  sync.Mutex // serializes writes
	now func() time.Time
}

// NewSQLiteGateway opens (or creates) the SQLite database and runs migrations.
func NewSQLiteGateway(dbPath string) (*SQLGateway, error) {
	db, err := sql.Open(sqliteDialect.driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection keeps :memory: databases and the write mutex coherent
	db.SetMaxOpenConns(1)

	// WAL lets the API read while an ingestion run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	g := &SQLGateway{db: db, d: sqliteDialect, now: time.Now}
	if err := g.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info(context.Background(), "sqlite gateway opened", "path", dbPath)
	return g, nil
}

// NewPostgresGateway connects to Postgres (e.g. a Supabase connection string) and runs migrations.
func NewPostgresGateway(ctx context.Context, dsn string) (*SQLGateway, error) {
	db, err := sql.Open(postgresDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	g := &SQLGateway{db: db, d: postgresDialect, now: time.Now}
	if err := g.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info(ctx, "postgres gateway opened")
	return g, nil
}

// Dialect reports the backing database, "sqlite" or "postgres".
func (g *SQLGateway) Dialect() string { return g.d.name }

func (g *SQLGateway) migrate(ctx context.Context) error {
	for _, s := range g.d.schema {
		if _, err := g.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (g *SQLGateway) UpsertBars(ctx context.Context, symbol string, bars []model.PriceBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin upsert %s: %v", ErrWriteFailure, symbol, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, g.d.rebind(upsertBarSQL))
	if err != nil {
		return 0, fmt.Errorf("%w: prepare upsert %s: %v", ErrWriteFailure, symbol, err)
	}
	defer stmt.Close()

	loaded := g.now().Unix()
	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx,
			b.Key(), symbol, b.Open, b.High, b.Low, b.Close, b.Volume, loaded,
		); err != nil {
			return 0, fmt.Errorf("%w: upsert %s %s: %v", ErrWriteFailure, symbol, b.Key(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit upsert %s: %v", ErrWriteFailure, symbol, err)
	}
	return len(bars), nil
}

func (g *SQLGateway) ExistingDates(ctx context.Context, symbol string, r model.DateRange) (model.DateSet, error) {
	return g.dates(ctx, "price_bars", symbol, r)
}

func (g *SQLGateway) CoveredDates(ctx context.Context, symbol string, r model.DateRange) (model.DateSet, error) {
	return g.dates(ctx, "fetch_coverage", symbol, r)
}

func (g *SQLGateway) dates(ctx context.Context, table, symbol string, r model.DateRange) (model.DateSet, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE symbol = ? AND trade_date >= ? AND trade_date <= ?`,
		g.d.dateColumn, table)
	rows, err := g.db.QueryContext(ctx, g.d.rebind(q), symbol, model.DateKey(r.Start), model.DateKey(r.End))
	if err != nil {
		return nil, fmt.Errorf("query %s dates for %s: %w", table, symbol, err)
	}
	defer rows.Close()

	set := model.NewDateSet()
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan %s date: %w", table, err)
		}
		day, err := model.ParseDay(key)
		if err != nil {
			return nil, fmt.Errorf("parse %s date %q: %w", table, key, err)
		}
		set.Add(day)
	}
	return set, rows.Err()
}

func (g *SQLGateway) Bars(ctx context.Context, symbol string, r model.DateRange) ([]model.PriceBar, error) {
	q := fmt.Sprintf(`SELECT %s, open, high, low, close, volume, load_timestamp
		FROM price_bars
		WHERE symbol = ? AND trade_date >= ? AND trade_date <= ?
		ORDER BY trade_date`, g.d.dateColumn)
	rows, err := g.db.QueryContext(ctx, g.d.rebind(q), symbol, model.DateKey(r.Start), model.DateKey(r.End))
	if err != nil {
		return nil, fmt.Errorf("query bars for %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []model.PriceBar
	for rows.Next() {
		var (
			key    string
			loaded int64
			b      = model.PriceBar{Symbol: symbol}
		)
		if err := rows.Scan(&key, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &loaded); err != nil {
			return nil, fmt.Errorf("scan bar for %s: %w", symbol, err)
		}
		if b.TradeDate, err = model.ParseDay(key); err != nil {
			return nil, fmt.Errorf("parse bar date %q: %w", key, err)
		}
		b.LoadedAt = time.Unix(loaded, 0).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

func (g *SQLGateway) Symbols(ctx context.Context) ([]string, error) {
	rows, err := g.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM price_bars ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

func (g *SQLGateway) RecordCoverage(ctx context.Context, symbol string, r model.DateRange) error {
	if !r.Valid() {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin coverage %s: %v", ErrWriteFailure, symbol, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, g.d.rebind(insertCoverageSQL))
	if err != nil {
		return fmt.Errorf("%w: prepare coverage %s: %v", ErrWriteFailure, symbol, err)
	}
	defer stmt.Close()

	for day := r.Start; !day.After(r.End); day = day.AddDate(0, 0, 1) {
		if _, err := stmt.ExecContext(ctx, symbol, model.DateKey(day)); err != nil {
			return fmt.Errorf("%w: coverage %s %s: %v", ErrWriteFailure, symbol, model.DateKey(day), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit coverage %s: %v", ErrWriteFailure, symbol, err)
	}
	return nil
}

func (g *SQLGateway) RecordRun(ctx context.Context, report *model.RunReport) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin run %s: %v", ErrWriteFailure, report.RunID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, g.d.rebind(insertRunSQL),
		report.RunID, report.StartedAt.Unix(), report.FinishedAt.Unix(),
		model.DateKey(report.Target.Start), model.DateKey(report.Target.End),
		len(report.Results), report.Failed(), report.BarsWritten(),
	); err != nil {
		return fmt.Errorf("%w: insert run %s: %v", ErrWriteFailure, report.RunID, err)
	}

	for _, res := range report.Results {
		if res.Status == model.StatusOK || res.Status == model.StatusUpToDate {
			continue
		}
		if _, err := tx.ExecContext(ctx, g.d.rebind(insertFailureSQL),
			report.RunID, res.Symbol, res.Source, string(res.Status), res.Attempts, res.Err,
		); err != nil {
			return fmt.Errorf("%w: insert failure %s/%s: %v", ErrWriteFailure, report.RunID, res.Symbol, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit run %s: %v", ErrWriteFailure, report.RunID, err)
	}
	return nil
}

func (g *SQLGateway) Close() error {
	logger.Info(context.Background(), "closing gateway", "dialect", g.d.name)
	return g.db.Close()
}
