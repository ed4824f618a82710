package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"polymirror/internal/storage"
)

// Notification 封装一次跟单结果的推送上下文。
type Notification struct {
	Outcome       storage.Outcome
	Target        string
	AdditionalMsg string
}

// Notifier 定义推送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 推送器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("outcome_id", note.Outcome.ID.String()).
		Str("status", note.Outcome.Status).
		Msg("结果已推送 (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	o := note.Outcome
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[polymirror %s]\n", o.Status))
	builder.WriteString(fmt.Sprintf("Time: %s UTC\n", o.Timestamp.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Market: %s\n", o.Market))
	builder.WriteString(fmt.Sprintf("Outcome: %s\n", o.OutcomeLabel))
	builder.WriteString(fmt.Sprintf("Side: %s %s USDC @ %s\n", o.Side, o.SizeBase.StringFixed(2), o.Price.StringFixed(4)))
	if o.OrderID != "" {
		builder.WriteString(fmt.Sprintf("Order: %s\n", o.OrderID))
	}
	if o.Reason != "" {
		builder.WriteString(fmt.Sprintf("Reason: %s\n", o.Reason))
	}
	if o.TxHash != "" {
		builder.WriteString(fmt.Sprintf("Source tx: %s\n", o.TxHash))
	}
	if note.Target != "" {
		builder.WriteString(fmt.Sprintf("Target: %s\n", note.Target))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
