package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fx-rate-alerts/internal/currency"
	"fx-rate-alerts/internal/rates"
)

// Event 封装告警上下文。
type Event struct {
	Currency      currency.Code   `json:"currency"`
	Direction     Direction       `json:"direction"`
	Message       string          `json:"message"`
	ObservedValue decimal.Decimal `json:"observedValue"`
	Threshold     decimal.Decimal `json:"threshold"`
	Bound         decimal.Decimal `json:"bound"`
	Mode          Mode            `json:"mode"`
	AsOf          time.Time       `json:"asOf"`
	Stale         bool            `json:"stale"`
	Change        *rates.Change   `json:"change,omitempty"`
}

// NewEvent assembles an event and renders its message.
func NewEvent(code currency.Code, cfg Config, d Decision, observed decimal.Decimal, asOf time.Time, stale bool, change *rates.Change) Event {
	ev := Event{
		Currency:      code,
		Direction:     d.Direction,
		ObservedValue: observed,
		Threshold:     cfg.Threshold,
		Bound:         d.Bound,
		Mode:          cfg.Mode,
		AsOf:          asOf,
		Stale:         stale,
		Change:        change,
	}
	ev.Message = renderSummary(ev)
	return ev
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Fanout delivers an event to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes events to the structured log.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

func (n *LogNotifier) Notify(ctx context.Context, ev Event) error {
	n.logger.Warn().
		Str("currency", ev.Currency.String()).
		Str("direction", string(ev.Direction)).
		Str("observed", ev.ObservedValue.String()).
		Str("bound", ev.Bound.String()).
		Bool("stale", ev.Stale).
		Msg(ev.Message)
	return nil
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
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
func (n *TelegramNotifier) Notify(ctx context.Context, ev Event) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(ev),
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

	n.logger.Info().
		Str("currency", ev.Currency.String()).
		Str("direction", string(ev.Direction)).
		Msg("告警已发送 (Telegram)")
	return nil
}

func renderSummary(ev Event) string {
	op := ">="
	if ev.Direction == Below {
		op = "<="
	}
	msg := fmt.Sprintf("%s %s %s %s (%s %s)", ev.Currency, ev.ObservedValue.StringFixed(2), op, ev.Bound.StringFixed(2), ev.Mode, ev.Threshold.StringFixed(2))
	if ev.Stale {
		msg += " [stale]"
	}
	return msg
}

func renderMessage(ev Event) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[FX Alert] %s\n", ev.Currency))
	builder.WriteString(fmt.Sprintf("As of: %s\n", ev.AsOf.Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Rate: %s (%s)\n", ev.ObservedValue.StringFixed(2), ev.Direction))
	builder.WriteString(fmt.Sprintf("Rule: %s threshold %s, bound %s\n", ev.Mode, ev.Threshold.StringFixed(2), ev.Bound.StringFixed(2)))
	if ev.Change != nil {
		builder.WriteString(fmt.Sprintf("Day change: %s (%s%%)\n", ev.Change.Absolute.StringFixed(2), ev.Change.Percent.StringFixed(2)))
	}
	if ev.Stale {
		builder.WriteString("Data: stale (served from cache)\n")
	}
	return builder.String()
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = Fanout(nil)
)
