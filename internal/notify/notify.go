// Package notify implements core.INotifier. The default channel posts to
// Telegram's bot API, grounded on the teacher's HTTP client conventions
// (internal/exchange/base transport: timeout + context, no retry needed
// since a dropped notification is not safety-critical).
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"botsupervisor/internal/core"
)

// TelegramNotifier sends notifications via the Telegram Bot API.
type TelegramNotifier struct {
	botToken   string
	chatID     string
	httpClient *http.Client
	logger     core.ILogger
}

// NewTelegramNotifier builds a notifier posting to the given bot token and
// chat id.
func NewTelegramNotifier(botToken, chatID string, logger core.ILogger) *TelegramNotifier {
	return &TelegramNotifier{
		botToken:   botToken,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     logger,
	}
}

// Notify posts title and message as one Telegram text message. Failures
// are logged and swallowed: notification delivery never blocks or fails a
// strategy's work unit (spec.md §4.5 failure semantics apply to exchange
// calls; notifications are best-effort by the same principle).
func (n *TelegramNotifier) Notify(ctx context.Context, userID, title, message string) error {
	if n.botToken == "" || n.chatID == "" {
		return nil
	}

	text := fmt.Sprintf("*%s*\n%s", title, message)
	body, err := json.Marshal(map[string]string{
		"chat_id":    n.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("notify: encode payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Warn("telegram notify failed", "user", userID, "error", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.logger.Warn("telegram notify rejected", "user", userID, "status", resp.StatusCode)
	}
	return nil
}

// NoopNotifier discards every notification; used in tests and when no
// Telegram credentials are configured.
type NoopNotifier struct{}

func (NoopNotifier) Notify(ctx context.Context, userID, title, message string) error { return nil }

var (
	_ core.INotifier = (*TelegramNotifier)(nil)
	_ core.INotifier = NoopNotifier{}
)
