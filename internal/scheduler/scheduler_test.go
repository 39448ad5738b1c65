package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"MarketLedger/internal/analysis"
	"MarketLedger/internal/collector"
	"MarketLedger/internal/metrics"
	"MarketLedger/internal/model"
	"MarketLedger/internal/store"
)

type fakeRunner struct {
	mu      sync.Mutex
	targets []model.DateRange
	err     error
	block   chan struct{}
}

func (f *fakeRunner) Run(_ context.Context, u model.Universe, target model.DateRange) (*model.RunReport, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.targets = append(f.targets, target)
	f.mu.Unlock()
	report := &model.RunReport{RunID: "r1", Target: target}
	for _, s := range u {
		report.Results = append(report.Results, model.SymbolResult{Symbol: s.Symbol, Source: s.Source, Status: model.StatusOK, BarsWritten: 2})
	}
	return report, f.err
}

type fakeSender struct {
	mu     sync.Mutex
	runs   []*model.RunReport
	aborts []error
	notes  []string
}

func (f *fakeSender) NotifyRun(_ context.Context, r *model.RunReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, r)
	return nil
}

func (f *fakeSender) NotifyAbort(_ context.Context, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts = append(f.aborts, cause)
	return nil
}

func (f *fakeSender) Notify(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, text)
	return nil
}

func (f *fakeSender) counts() (runs, aborts, notes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs), len(f.aborts), len(f.notes)
}

var (
	start    = time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC)
	now      = time.Date(2024, 3, 1, 22, 30, 0, 0, time.UTC)
	universe = model.Universe{{Symbol: "MSFT", Source: "alphavantage", AssetClass: model.AssetEquity}}
)

func newTestScheduler(r Runner, s Sender, svc *analysis.Service) *Scheduler {
	sch := NewScheduler(context.Background(), r, svc, s, universe, start)
	sch.Now = func() time.Time { return now }
	return sch
}

func TestRunNow(t *testing.T) {
	runner := &fakeRunner{}
	sender := &fakeSender{}
	s := newTestScheduler(runner, sender, nil)

	report, err := s.RunNow()
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if got := runner.targets[0]; model.DateKey(got.Start) != "2005-01-01" || model.DateKey(got.End) != "2024-02-29" {
		t.Errorf("target = %v", got)
	}
	if s.LastRun() != report {
		t.Error("LastRun should return the latest report")
	}
	if runs, aborts, _ := sender.counts(); runs != 1 || aborts != 0 || sender.runs[0] != report {
		t.Errorf("notified runs = %d, aborts = %d", runs, aborts)
	}
}

func TestRunNow_Aborted(t *testing.T) {
	sender := &fakeSender{}
	runErr := errors.New("write failure: disk full")
	s := newTestScheduler(&fakeRunner{err: runErr}, sender, nil)

	if _, err := s.RunNow(); !errors.Is(err, runErr) {
		t.Fatalf("err = %v, want %v", err, runErr)
	}
	if runs, aborts, _ := sender.counts(); runs != 0 || aborts != 1 || sender.aborts[0] != runErr {
		t.Errorf("notified runs = %d, aborts = %d", runs, aborts)
	}
}

func TestRunNow_NoOverlap(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	s := newTestScheduler(runner, nil, nil)

	done := make(chan struct{})
	go func() {
		s.RunNow()
		close(done)
	}()
	// wait for the first run to take the lock
	deadline := time.Now().Add(2 * time.Second)
	for s.runMu.TryLock() {
		s.runMu.Unlock()
		if time.Now().After(deadline) {
			t.Fatal("first run never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := s.RunNow(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("err = %v, want ErrAlreadyRunning", err)
	}
	close(runner.block)
	<-done
}

func TestRegisterAll(t *testing.T) {
	s := newTestScheduler(&fakeRunner{}, nil, nil)
	if err := s.RegisterAll("0 30 22 * * *"); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	if len(s.Cron.Entries()) != 1 {
		t.Errorf("entries = %d", len(s.Cron.Entries()))
	}
	if err := s.RegisterAll("not a cron"); err == nil {
		t.Error("expected error for invalid expression")
	}
}

func TestHandleCommand(t *testing.T) {
	gw := store.NewMemoryGateway()
	_, err := gw.UpsertBars(context.Background(), "MSFT", collector.GenerateMockBars("MSFT", 400, now.AddDate(0, 0, -20), 20))
	if err != nil {
		t.Fatal(err)
	}
	s := newTestScheduler(&fakeRunner{}, nil, analysis.NewService(gw, metrics.DefaultOptions()))

	if reply := s.HandleCommand(context.Background(), "/status"); !strings.Contains(reply, "No ingestion run") {
		t.Errorf("/status before run = %q", reply)
	}
	if reply := s.HandleCommand(context.Background(), "/risk"); !strings.Contains(reply, "<b>MSFT</b>") {
		t.Errorf("/risk = %q", reply)
	}
	if reply := s.HandleCommand(context.Background(), "help"); !strings.Contains(reply, "/status") {
		t.Errorf("help = %q", reply)
	}
	if _, err := s.RunNow(); err != nil {
		t.Fatal(err)
	}
	if reply := s.HandleCommand(context.Background(), "/STATUS"); !strings.Contains(reply, "MSFT") {
		t.Errorf("/status after run = %q", reply)
	}
}
