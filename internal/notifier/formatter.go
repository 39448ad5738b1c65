package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"MarketLedger/internal/model"
)

// FormatRunReport formats an ingestion run summary into a Telegram message.
func FormatRunReport(r *model.RunReport) string {
	var b strings.Builder

	icon := "✅"
	if !r.OK() {
		icon = "❌"
	}
	b.WriteString(fmt.Sprintf("%s <b>MarketLedger ingestion</b> | %s\n\n", icon, model.DateKey(r.Target.End)))
	b.WriteString(fmt.Sprintf("Window: %s → %s\n", model.DateKey(r.Target.Start), model.DateKey(r.Target.End)))
	b.WriteString(fmt.Sprintf("Bars written: %s\n", humanize.Comma(int64(r.BarsWritten()))))
	b.WriteString(fmt.Sprintf("Duration: %s\n\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Second)))

	for _, res := range r.Results {
		line := fmt.Sprintf("  %s %s (%s)", statusIcon(res.Status), res.Symbol, res.Source)
		switch res.Status {
		case model.StatusOK:
			line += fmt.Sprintf(": +%s bars", humanize.Comma(int64(res.BarsWritten)))
		case model.StatusUpToDate:
			line += ": up to date"
		default:
			line += fmt.Sprintf(": %s after %d attempt(s)", html.EscapeString(res.Err), res.Attempts)
		}
		b.WriteString(line + "\n")
	}

	if n := r.Failed(); n > 0 {
		b.WriteString(fmt.Sprintf("\n%d of %d symbols failed", n, len(r.Results)))
	}
	return b.String()
}

// FormatAbort formats the notice for a run that stopped before finishing.
func FormatAbort(cause error) string {
	return "❌ <b>MarketLedger ingestion aborted</b>\n\n" + html.EscapeString(cause.Error())
}

func statusIcon(s model.SymbolStatus) string {
	switch s {
	case model.StatusOK:
		return "🟢"
	case model.StatusUpToDate:
		return "⚪"
	case model.StatusSkipped:
		return "🟡"
	default:
		return "🔴"
	}
}

// FormatRiskTable formats metric sets (already ordered by drawdown) for display.
func FormatRiskTable(sets []model.MetricSet) string {
	if len(sets) == 0 {
		return "No metrics available yet."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>Risk comparison</b> | %s → %s\n\n",
		model.DateKey(sets[0].Start), model.DateKey(sets[0].End)))
	for _, m := range sets {
		sharpe := "n/a"
		if m.SharpeRatio != nil {
			sharpe = humanize.FtoaWithDigits(*m.SharpeRatio, 2)
		}
		b.WriteString(fmt.Sprintf("<b>%s</b> vol %s | maxDD %s | ret %s | Sharpe %s | VaR95 %s | win %s\n",
			m.Symbol,
			pct(m.AnnualizedVolatility), pct(m.MaxDrawdown), pct(m.CumulativeReturn),
			sharpe, pct(m.ValueAtRisk95), pct(m.WinningDaysPct)))
	}
	return b.String()
}

func pct(v float64) string {
	return humanize.FtoaWithDigits(v*100, 2) + "%"
}
