// Package logger "delivers" one-time codes by writing them to a slog.Logger.
// It is for local development; engines in production mode refuse it.
package logger

import (
	"context"
	"log/slog"

	"github.com/aurumvault/adminauth"
)

type Notifier struct {
	log *slog.Logger
}

var (
	_ adminauth.Notifier            = (*Notifier)(nil)
	_ adminauth.DevelopmentNotifier = (*Notifier)(nil)
)

// New returns a Notifier writing to l, or slog.Default when l is nil.
func New(l *slog.Logger) *Notifier {
	if l == nil {
		l = slog.Default()
	}
	return &Notifier{log: l}
}

func (n *Notifier) Send(ctx context.Context, msg adminauth.OTPMessage) error {
	n.log.WarnContext(ctx, "otp generated (development notifier)",
		"to", msg.To,
		"code", msg.Code,
		"expires_in_minutes", msg.ExpiresInMinutes(),
	)
	return nil
}

// DevelopmentOnly marks the notifier as unsafe for production.
func (n *Notifier) DevelopmentOnly() bool { return true }
