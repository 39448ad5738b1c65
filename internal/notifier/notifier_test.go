package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"MarketLedger/internal/model"
)

func newTestNotifier(srv *httptest.Server) *TelegramNotifier {
	n := NewTelegramNotifier("TOKEN", "42", "")
	n.BaseURL = srv.URL
	n.Client = srv.Client()
	return n
}

func TestSend(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	if err := newTestNotifier(srv).Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["chat_id"] != "42" || got["text"] != "hello" || got["parse_mode"] != "HTML" || got["disable_web_page_preview"] != true {
		t.Errorf("payload = %v", got)
	}
}

func TestSendWithRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	if err := newTestNotifier(srv).SendWithRetry(context.Background(), "hi", 2); err != nil {
		t.Fatalf("SendWithRetry: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestSendWithRetry_Exhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := newTestNotifier(srv).SendWithRetry(context.Background(), "hi", 0)
	if err == nil || !strings.Contains(err.Error(), "retries exhausted") {
		t.Fatalf("err = %v", err)
	}
}

func TestSend_APIErrorDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities"}`)
	}))
	defer srv.Close()

	err := newTestNotifier(srv).Send(context.Background(), "<b>")
	if err == nil || !strings.Contains(err.Error(), "can't parse entities") {
		t.Fatalf("err = %v", err)
	}
}

// recordMessages serves sendMessage and captures every text it receives.
func recordMessages(t *testing.T) (*httptest.Server, func() []string) {
	t.Helper()
	var mu sync.Mutex
	var texts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		texts = append(texts, p.Text)
		mu.Unlock()
		fmt.Fprint(w, `{"ok":true}`)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), texts...)
	}
}

func TestNotifyRun(t *testing.T) {
	srv, texts := recordMessages(t)
	day := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	report := &model.RunReport{
		Target:  model.NewDateRange(day, day),
		Results: []model.SymbolResult{{Symbol: "MSFT", Source: "alphavantage", Status: model.StatusOK, BarsWritten: 1}},
	}

	if err := newTestNotifier(srv).NotifyRun(context.Background(), report); err != nil {
		t.Fatalf("NotifyRun: %v", err)
	}
	got := texts()
	if len(got) != 1 || !strings.Contains(got[0], "MSFT (alphavantage): +1 bars") {
		t.Errorf("messages = %q", got)
	}
}

func TestNotifyAbort_EscapesCause(t *testing.T) {
	srv, texts := recordMessages(t)
	cause := errors.New("write failure: status 502, body: <html><title>Bad Gateway</title>")

	if err := newTestNotifier(srv).NotifyAbort(context.Background(), cause); err != nil {
		t.Fatalf("NotifyAbort: %v", err)
	}
	got := texts()
	if len(got) != 1 {
		t.Fatalf("messages = %q", got)
	}
	if !strings.Contains(got[0], "<b>MarketLedger ingestion aborted</b>") {
		t.Errorf("missing header: %q", got[0])
	}
	if strings.Contains(got[0], "<html>") || !strings.Contains(got[0], "&lt;html&gt;&lt;title&gt;Bad Gateway") {
		t.Errorf("cause not escaped: %q", got[0])
	}
}

func TestStartPolling(t *testing.T) {
	replies := make(chan string, 1)
	var polled int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			if atomic.AddInt32(&polled, 1) == 1 {
				fmt.Fprint(w, `{"ok":true,"result":[
					{"update_id":7,"message":{"text":"/status","chat":{"id":99}}},
					{"update_id":8,"message":{"text":" /status ","chat":{"id":42}}}
				]}`)
				return
			}
			fmt.Fprint(w, `{"ok":true,"result":[]}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var p sendMessageRequest
			json.NewDecoder(r.Body).Decode(&p)
			replies <- p.Text
			fmt.Fprint(w, `{"ok":true}`)
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handled []string
	done := make(chan struct{})
	go func() {
		newTestNotifier(srv).StartPolling(ctx, func(_ context.Context, cmd string) string {
			handled = append(handled, cmd)
			return "ok: " + cmd
		})
		close(done)
	}()

	select {
	case reply := <-replies:
		if reply != "ok: /status" {
			t.Errorf("reply = %q", reply)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reply sent")
	}
	cancel()
	<-done

	if len(handled) != 1 {
		t.Errorf("handled %v, want only the configured chat's command", handled)
	}
}

func TestFormatRunReport(t *testing.T) {
	start := time.Date(2024, 1, 10, 22, 30, 0, 0, time.UTC)
	r := &model.RunReport{
		Target:     model.NewDateRange(time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC), start),
		StartedAt:  start,
		FinishedAt: start.Add(95 * time.Second),
		Results: []model.SymbolResult{
			{Symbol: "MSFT", Source: "alphavantage", Status: model.StatusOK, BarsWritten: 4812},
			{Symbol: "KO", Source: "alphavantage", Status: model.StatusUpToDate},
			{Symbol: "BTC", Source: "yahoo", Status: model.StatusFailed, Attempts: 3, Err: "status <503>"},
		},
	}
	msg := FormatRunReport(r)
	for _, want := range []string{
		"❌", "2005-01-01 → 2024-01-10", "Bars written: 4,812", "1m35s",
		"MSFT (alphavantage): +4,812 bars", "KO (alphavantage): up to date",
		"status &lt;503&gt; after 3 attempt(s)", "1 of 3 symbols failed",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("report missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatRiskTable(t *testing.T) {
	sharpe := 1.234
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	msg := FormatRiskTable([]model.MetricSet{
		{Symbol: "BTC", Start: day, End: day.AddDate(0, 1, 0), MaxDrawdown: -0.25, SharpeRatio: &sharpe},
		{Symbol: "GLD", Start: day, End: day.AddDate(0, 1, 0), MaxDrawdown: -0.05},
	})
	for _, want := range []string{"2024-01-01 → 2024-02-01", "<b>BTC</b>", "maxDD -25%", "Sharpe 1.23", "Sharpe n/a"} {
		if !strings.Contains(msg, want) {
			t.Errorf("table missing %q:\n%s", want, msg)
		}
	}
	if FormatRiskTable(nil) == "" {
		t.Error("empty table should still produce a message")
	}
}
