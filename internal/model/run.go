package model

import "time"

// SymbolStatus is the terminal state of one symbol within a run.
type SymbolStatus string

const (
	StatusOK       SymbolStatus = "ok"
	StatusUpToDate SymbolStatus = "up_to_date"
	StatusSkipped  SymbolStatus = "skipped" // symbol unknown to provider
	StatusFailed   SymbolStatus = "failed"
)

// SymbolResult records what happened to one symbol during a run.
type SymbolResult struct {
	Symbol        string       `json:"symbol"`
	Source        string       `json:"source"`
	Status        SymbolStatus `json:"status"`
	RangesFetched int          `json:"ranges_fetched"`
	BarsWritten   int          `json:"bars_written"`
	Attempts      int          `json:"attempts"`
	Err           string       `json:"error,omitempty"`
}

// RunReport summarizes one ingestion run.
type RunReport struct {
	RunID      string         `json:"run_id"`
	Target     DateRange      `json:"target"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Results    []SymbolResult `json:"results"`
}

// Failed counts symbols that failed terminally.
func (r *RunReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			n++
		}
	}
	return n
}

// BarsWritten sums written bars over all symbols.
func (r *RunReport) BarsWritten() int {
	n := 0
	for _, res := range r.Results {
		n += res.BarsWritten
	}
	return n
}

// OK reports whether no symbol failed.
func (r *RunReport) OK() bool {
	return r.Failed() == 0
}
