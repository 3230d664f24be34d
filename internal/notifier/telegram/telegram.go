package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/newthinker/tradewatch/internal/notifier"
)

const defaultAPIBase = "https://api.telegram.org"

// Telegram implements the Notifier interface for Telegram Bot API
type Telegram struct {
	botToken string
	chatID   string
	apiBase  string
	client   *resty.Client
}

// New creates a new Telegram notifier
func New(botToken, chatID string) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   resty.New().SetTimeout(10 * time.Second),
	}
}

func (t *Telegram) Name() string {
	return "telegram"
}

func (t *Telegram) Init(cfg notifier.Config) error {
	if token, ok := cfg.Params["bot_token"].(string); ok {
		t.botToken = token
	}
	if chatID, ok := cfg.Params["chat_id"].(string); ok {
		t.chatID = chatID
	}

	if t.botToken == "" {
		return fmt.Errorf("telegram: bot_token is required")
	}
	if t.chatID == "" {
		return fmt.Errorf("telegram: chat_id is required")
	}

	if t.apiBase == "" {
		t.apiBase = defaultAPIBase
	}
	if t.client == nil {
		t.client = resty.New().SetTimeout(10 * time.Second)
	}

	return nil
}

func (t *Telegram) Send(ctx context.Context, alert notifier.Alert) error {
	return t.sendMessage(ctx, formatAlert(alert))
}

func formatAlert(alert notifier.Alert) string {
	var sb strings.Builder

	emoji := "⚠️"
	switch strings.ToLower(alert.Severity) {
	case "critical":
		emoji = "🚨"
	case "info":
		emoji = "ℹ️"
	}

	sb.WriteString(fmt.Sprintf("%s *%s* %s\n", emoji, strings.ToUpper(alert.Severity), alert.Rule))
	if alert.Message != "" {
		sb.WriteString(alert.Message + "\n")
	}
	if alert.Metric != "" {
		sb.WriteString(fmt.Sprintf("📊 %s = %g\n", alert.Metric, alert.Value))
	}
	sb.WriteString(fmt.Sprintf("⏰ Time: %s", alert.FiredAt.Format("2006-01-02 15:04:05")))

	return sb.String()
}

type apiResult struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	var result apiResult
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"chat_id":    t.chatID,
			"text":       text,
			"parse_mode": "Markdown",
		}).
		SetError(&result).
		Post(fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken))
	if err != nil {
		return fmt.Errorf("telegram: failed to send message: %w", err)
	}

	if !resp.IsSuccess() {
		return fmt.Errorf("telegram: API error (status %d): %s", resp.StatusCode(), result.Description)
	}

	return nil
}
