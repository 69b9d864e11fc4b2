// Package telegram posts security alerts from the audit stream to a
// Telegram chat.
//
// AlertSink is an [adminauth.AuditSink]; wire it next to the primary sink
// with [adminauth.NewMultiSink]. It only forwards the event types it was
// configured with (account lockouts and code replays by default) and never
// includes codes or tokens.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/aurumvault/adminauth"
)

// DefaultEvents are forwarded when Config.Events is empty.
var DefaultEvents = []string{
	adminauth.AuditEventAccountLocked,
	adminauth.AuditEventOTPReplay,
}

// Config configures an AlertSink.
type Config struct {
	BotToken string
	ChatID   int64
	// Events lists the audit event types to forward.
	Events []string
	// APIEndpoint overrides tgbotapi.APIEndpoint ("https://api.telegram.org/bot%s/%s").
	APIEndpoint string
	// Timeout bounds each Bot API call. Defaults to 10s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// AlertSink forwards selected audit events to Telegram.
type AlertSink struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	events map[string]struct{}
	logger *slog.Logger
}

var _ adminauth.AuditSink = (*AlertSink)(nil)

// New connects to the Bot API (one getMe call) and returns an AlertSink.
func New(cfg Config) (*AlertSink, error) {
	if cfg.BotToken == "" || cfg.ChatID == 0 {
		return nil, errors.New("telegram: bot token and chat id are required")
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}

	events := cfg.Events
	if len(events) == 0 {
		events = DefaultEvents
	}
	set := make(map[string]struct{}, len(events))
	for _, ev := range events {
		set[ev] = struct{}{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &AlertSink{
		bot:    bot,
		chatID: cfg.ChatID,
		events: set,
		logger: logger,
	}, nil
}

// Emit sends an alert for event when its type is selected. Send failures
// are logged; the audit pipeline never blocks on them beyond the client
// timeout.
func (s *AlertSink) Emit(ctx context.Context, event adminauth.AuditEvent) {
	if s == nil {
		return
	}
	if _, ok := s.events[event.EventType]; !ok {
		return
	}

	msg := tgbotapi.NewMessage(s.chatID, FormatAlert(event))
	msg.DisableWebPagePreview = true
	if _, err := s.bot.Send(msg); err != nil {
		s.logger.WarnContext(ctx, "telegram alert failed", "event", event.EventType, "error", err)
	}
}

// FormatAlert renders event as a plain-text alert.
func FormatAlert(event adminauth.AuditEvent) string {
	var b strings.Builder
	switch event.EventType {
	case adminauth.AuditEventAccountLocked:
		b.WriteString("Admin account locked after repeated failed codes")
	case adminauth.AuditEventOTPReplay:
		b.WriteString("Reuse of an already used sign-in code")
	default:
		b.WriteString("Admin auth event: ")
		b.WriteString(event.EventType)
	}
	b.WriteByte('\n')

	line := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteByte('\n')
	}
	line("Email", event.Email)
	line("Until", event.Metadata["locked_until"])
	line("IP", event.IP)
	line("Request", event.RequestID)
	if !event.Timestamp.IsZero() {
		line("At", event.Timestamp.UTC().Format(time.RFC3339))
	}
	return strings.TrimRight(b.String(), "\n")
}
