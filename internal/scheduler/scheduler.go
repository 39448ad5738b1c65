package scheduler

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"MarketLedger/internal/analysis"
	"MarketLedger/internal/ingest"
	"MarketLedger/internal/logger"
	"MarketLedger/internal/model"
	"MarketLedger/internal/notifier"
)

// Runner executes one ingestion run. *ingest.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, universe model.Universe, target model.DateRange) (*model.RunReport, error)
}

// Sender delivers run notifications. *notifier.TelegramNotifier satisfies it.
type Sender interface {
	NotifyRun(ctx context.Context, report *model.RunReport) error
	NotifyAbort(ctx context.Context, cause error) error
	Notify(ctx context.Context, text string) error
}

// riskWindow is the lookback used by the /risk chat command.
const riskWindow = 365

// Scheduler triggers ingestion runs on a cron schedule and reports them.
type Scheduler struct {
	Cron         *cron.Cron
	Runner       Runner
	Analysis     *analysis.Service
	Notifier     Sender // nil disables notifications
	Universe     model.Universe
	HistoryStart time.Time
	Ctx          context.Context
	Now          func() time.Time

	runMu   sync.Mutex // held for the duration of a run
	stateMu sync.Mutex
	last    *model.RunReport
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, runner Runner, svc *analysis.Service, sender Sender, universe model.Universe, historyStart time.Time) *Scheduler {
	return &Scheduler{
		Cron:         cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		Runner:       runner,
		Analysis:     svc,
		Notifier:     sender,
		Universe:     universe,
		HistoryStart: historyStart,
		Ctx:          ctx,
		Now:          time.Now,
	}
}

// RegisterAll registers the daily ingestion task.
func (s *Scheduler) RegisterAll(dailyCron string) error {
	if _, err := s.Cron.AddFunc(dailyCron, s.dailyTask); err != nil {
		return fmt.Errorf("register daily task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	logger.Info(s.Ctx, "scheduler started", "entries", len(s.Cron.Entries()))
}

// Stop stops the cron scheduler and waits for a running task to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	logger.Info(s.Ctx, "scheduler stopped")
}

// ErrAlreadyRunning is returned by RunNow when a run is in progress.
var ErrAlreadyRunning = errors.New("ingestion run already in progress")

// RunNow executes one ingestion run from HistoryStart through yesterday and notifies the result.
func (s *Scheduler) RunNow() (*model.RunReport, error) {
	if !s.runMu.TryLock() {
		return nil, ErrAlreadyRunning
	}
	defer s.runMu.Unlock()

	report, err := s.Runner.Run(s.Ctx, s.Universe, ingest.Target(s.HistoryStart, s.Now()))
	if report != nil {
		s.stateMu.Lock()
		s.last = report
		s.stateMu.Unlock()
	}
	if err != nil {
		logger.ErrorWithErr(s.Ctx, "ingestion run aborted", err)
		s.notify(func(n Sender) error { return n.NotifyAbort(s.Ctx, err) })
		return report, err
	}
	s.notify(func(n Sender) error { return n.NotifyRun(s.Ctx, report) })
	return report, nil
}

// LastRun returns the most recent run report, or nil before the first run.
func (s *Scheduler) LastRun() *model.RunReport {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.last
}

func (s *Scheduler) dailyTask() {
	logger.Info(s.Ctx, "running daily ingestion")
	if _, err := s.RunNow(); errors.Is(err, ErrAlreadyRunning) {
		logger.Warn(s.Ctx, "previous ingestion still running, skipping")
	}
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	var verb string
	if fields := strings.Fields(command); len(fields) > 0 {
		verb = strings.ToLower(fields[0])
	}
	switch verb {
	case "/status":
		last := s.LastRun()
		if last == nil {
			return "No ingestion run since startup."
		}
		return notifier.FormatRunReport(last)
	case "/risk":
		if s.Analysis == nil {
			return "Risk view unavailable."
		}
		today := model.Day(s.Now())
		report, err := s.Analysis.Risk(ctx, s.Universe.Symbols(), model.NewDateRange(today.AddDate(0, 0, -riskWindow), today))
		if err != nil {
			return "❌ risk computation failed: " + html.EscapeString(err.Error())
		}
		return notifier.FormatRiskTable(report.Metrics)
	case "/run":
		go func() {
			if _, err := s.RunNow(); errors.Is(err, ErrAlreadyRunning) {
				s.notify(func(n Sender) error { return n.Notify(s.Ctx, "⏳ an ingestion run is already in progress") })
			}
		}()
		return "▶️ ingestion started"
	default:
		return "Commands:\n• /status last run summary\n• /risk 1y risk comparison\n• /run start ingestion now"
	}
}

func (s *Scheduler) notify(send func(Sender) error) {
	if s.Notifier == nil {
		return
	}
	if err := send(s.Notifier); err != nil {
		logger.ErrorWithErr(s.Ctx, "send notification", err)
	}
}
