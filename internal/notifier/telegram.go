package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"MarketLedger/internal/logger"
	"MarketLedger/internal/model"
)

const (
	telegramAPI   = "https://api.telegram.org"
	notifyRetries = 3
)

// TelegramNotifier delivers ingestion reports to one Telegram chat.
type TelegramNotifier struct {
	BaseURL  string
	BotToken string
	ChatID   string
	Client   *http.Client
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

// apiResult is the envelope every Bot API method answers with.
type apiResult struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, chatID, proxyURL string) *TelegramNotifier {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &TelegramNotifier{
		BaseURL:  telegramAPI,
		BotToken: botToken,
		ChatID:   chatID,
		Client:   &http.Client{Timeout: 30 * time.Second, Transport: transport},
	}
}

func (t *TelegramNotifier) method(name string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.BaseURL, t.BotToken, name)
}

// NotifyRun posts the summary of a finished run.
func (t *TelegramNotifier) NotifyRun(ctx context.Context, report *model.RunReport) error {
	return t.SendWithRetry(ctx, FormatRunReport(report), notifyRetries)
}

// NotifyAbort posts a notice for a run that stopped on a storage failure.
func (t *TelegramNotifier) NotifyAbort(ctx context.Context, cause error) error {
	return t.SendWithRetry(ctx, FormatAbort(cause), notifyRetries)
}

// Notify posts a short status line. text must already be HTML-safe.
func (t *TelegramNotifier) Notify(ctx context.Context, text string) error {
	return t.SendWithRetry(ctx, text, notifyRetries)
}

// Send posts one HTML message to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                t.ChatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.method("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var res apiResult
	if err := json.Unmarshal(raw, &res); err != nil || !res.OK {
		if res.Description != "" {
			return fmt.Errorf("telegram sendMessage: status %d: %s", resp.StatusCode, res.Description)
		}
		return fmt.Errorf("telegram sendMessage: status %d, body: %s", resp.StatusCode, string(raw))
	}
	return nil
}

// SendWithRetry retries Send with exponential backoff, 1s doubling per attempt.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = t.Send(ctx, text)
		if lastErr == nil {
			return nil
		}
		if attempt == maxRetries {
			break
		}
		backoff := time.Second << uint(attempt)
		logger.Warn(ctx, "telegram send failed, retrying",
			"attempt", attempt+1, "max_attempts", maxRetries+1, "backoff", backoff, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("all %d retries exhausted: %w", maxRetries+1, lastErr)
}
