package store

import (
	"strconv"
	"strings"
)

// dialect captures the few places where SQLite and Postgres SQL differ.
type dialect struct {
	name       string
	driver     string
	dateColumn string // expression selecting trade_date as YYYY-MM-DD
	schema     []string
	numbered   bool // $1, $2 placeholders instead of ?
}

var sqliteDialect = dialect{
	name:       "sqlite",
	driver:     "sqlite",
	dateColumn: "trade_date",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS price_bars (
			trade_date     TEXT    NOT NULL,
			symbol         TEXT    NOT NULL,
			open           TEXT    NOT NULL,
			high           TEXT    NOT NULL,
			low            TEXT    NOT NULL,
			close          TEXT    NOT NULL,
			volume         INTEGER NOT NULL DEFAULT 0,
			load_timestamp INTEGER NOT NULL,
			PRIMARY KEY (trade_date, symbol)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_bars_symbol ON price_bars(symbol, trade_date)`,

		`CREATE TABLE IF NOT EXISTS fetch_coverage (
			symbol     TEXT NOT NULL,
			trade_date TEXT NOT NULL,
			PRIMARY KEY (symbol, trade_date)
		)`,

		`CREATE TABLE IF NOT EXISTS ingestion_runs (
			run_id       TEXT PRIMARY KEY,
			started_at   INTEGER NOT NULL,
			finished_at  INTEGER NOT NULL,
			target_start TEXT    NOT NULL,
			target_end   TEXT    NOT NULL,
			symbols      INTEGER NOT NULL,
			failed       INTEGER NOT NULL,
			bars_written INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS ingestion_failures (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id   TEXT    NOT NULL,
			symbol   TEXT    NOT NULL,
			source   TEXT,
			status   TEXT    NOT NULL,
			attempts INTEGER NOT NULL,
			error    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_failures_run ON ingestion_failures(run_id)`,
	},
}

var postgresDialect = dialect{
	name:       "postgres",
	driver:     "postgres",
	dateColumn: "to_char(trade_date, 'YYYY-MM-DD')",
	numbered:   true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS price_bars (
			trade_date     DATE           NOT NULL,
			symbol         TEXT           NOT NULL,
			open           NUMERIC(24, 8) NOT NULL,
			high           NUMERIC(24, 8) NOT NULL,
			low            NUMERIC(24, 8) NOT NULL,
			close          NUMERIC(24, 8) NOT NULL,
			volume         BIGINT         NOT NULL DEFAULT 0,
			load_timestamp BIGINT         NOT NULL,
			PRIMARY KEY (trade_date, symbol)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_bars_symbol ON price_bars(symbol, trade_date)`,

		`CREATE TABLE IF NOT EXISTS fetch_coverage (
			symbol     TEXT NOT NULL,
			trade_date DATE NOT NULL,
			PRIMARY KEY (symbol, trade_date)
		)`,

		`CREATE TABLE IF NOT EXISTS ingestion_runs (
			run_id       TEXT PRIMARY KEY,
			started_at   BIGINT  NOT NULL,
			finished_at  BIGINT  NOT NULL,
			target_start DATE    NOT NULL,
			target_end   DATE    NOT NULL,
			symbols      INTEGER NOT NULL,
			failed       INTEGER NOT NULL,
			bars_written INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS ingestion_failures (
			id       BIGSERIAL PRIMARY KEY,
			run_id   TEXT    NOT NULL,
			symbol   TEXT    NOT NULL,
			source   TEXT,
			status   TEXT    NOT NULL,
			attempts INTEGER NOT NULL,
			error    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_failures_run ON ingestion_failures(run_id)`,
	},
}

// rebind rewrites ? placeholders to $n for dialects that need it.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
