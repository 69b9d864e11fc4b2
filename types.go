package adminauth

import (
	"context"
	"time"
)

// Session is an authenticated admin session as seen by callers.
type Session struct {
	// Token is the bearer credential handed to the client.
	Token     string
	ID        string
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
	Valid     bool
}

// OTPRequestResult is returned by a successful RequestOTP.
type OTPRequestResult struct {
	SentAt    time.Time
	ExpiresAt time.Time
}

// OTPMessage is everything a Notifier needs to deliver a code. Formatting
// the message body is the notifier's job.
type OTPMessage struct {
	To        string
	Code      string
	ExpiresIn time.Duration
}

// ExpiresInMinutes returns ExpiresIn rounded up to whole minutes, for display.
func (m OTPMessage) ExpiresInMinutes() int {
	if m.ExpiresIn <= 0 {
		return 0
	}
	return int((m.ExpiresIn + time.Minute - 1) / time.Minute)
}

// Notifier delivers one-time codes. Send must honour ctx cancellation; the
// engine bounds every call with Delivery.Timeout.
type Notifier interface {
	Send(ctx context.Context, msg OTPMessage) error
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(ctx context.Context, msg OTPMessage) error

func (f NotifierFunc) Send(ctx context.Context, msg OTPMessage) error {
	return f(ctx, msg)
}

// DevelopmentNotifier is implemented by notifiers that expose codes outside
// the recipient's inbox (for example by logging them). Such notifiers are
// refused when Security.ProductionMode is on.
type DevelopmentNotifier interface {
	DevelopmentOnly() bool
}

// OTPStatus is a read-only view of an email's throttle state, used by the
// sign-in UI to render countdowns.
type OTPStatus struct {
	Locked            bool
	LockoutUntil      time.Time
	CanRequest        bool
	NextRequestAt     time.Time
	RemainingAttempts int
	// PendingExpiresAt is zero when no usable code is outstanding.
	PendingExpiresAt time.Time
}
