package adminauth

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind is the caller-facing classification of a failed operation. The
// values are stable and safe to send to clients.
type ErrorKind string

const (
	KindInvalidEmail    ErrorKind = "INVALID_EMAIL"
	KindAccountLocked   ErrorKind = "ACCOUNT_LOCKED"
	KindOTPExpired      ErrorKind = "OTP_EXPIRED"
	KindOTPInvalid      ErrorKind = "OTP_INVALID"
	KindRateLimited     ErrorKind = "RATE_LIMITED"
	KindEmailSendFailed ErrorKind = "EMAIL_SEND_FAILED"
	KindSessionExpired  ErrorKind = "SESSION_EXPIRED"
)

var (
	// ErrInvalidEmail is returned for addresses that may not sign in. It does
	// not distinguish unknown addresses from malformed ones.
	ErrInvalidEmail = errors.New("email not authorized")
	// ErrAccountLocked is returned while a failed-attempt lockout is active.
	ErrAccountLocked = errors.New("account locked")
	// ErrOTPExpired is returned when no usable code is pending: none was
	// issued, it expired, it was superseded or it was already used.
	ErrOTPExpired = errors.New("otp expired")
	// ErrOTPInvalid is returned when the submitted code does not match.
	ErrOTPInvalid = errors.New("otp invalid")
	// ErrRateLimited is returned when the cooldown or hourly cap denies a request.
	ErrRateLimited = errors.New("otp requests rate limited")
	// ErrEmailSendFailed is returned when the notifier could not deliver the code.
	ErrEmailSendFailed = errors.New("otp delivery failed")
	// ErrSessionExpired is returned for a well-formed session past its expiry.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionInvalid covers malformed, forged, unknown and revoked tokens.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrSessionCreationFailed is returned when a verified login could not be
	// turned into a session.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrUnavailable wraps storage failures and unresolved write contention.
	ErrUnavailable = errors.New("auth backend unavailable")
	// ErrEngineNotReady is returned by methods called on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

var kindSentinels = map[ErrorKind]error{
	KindInvalidEmail:    ErrInvalidEmail,
	KindAccountLocked:   ErrAccountLocked,
	KindOTPExpired:      ErrOTPExpired,
	KindOTPInvalid:      ErrOTPInvalid,
	KindRateLimited:     ErrRateLimited,
	KindEmailSendFailed: ErrEmailSendFailed,
	KindSessionExpired:  ErrSessionExpired,
}

var kindMessages = map[ErrorKind]string{
	KindInvalidEmail:    "This email address is not authorized for admin access.",
	KindAccountLocked:   "Too many failed attempts. Try again later.",
	KindOTPExpired:      "The code has expired. Request a new one.",
	KindOTPInvalid:      "The code is incorrect.",
	KindRateLimited:     "Too many code requests. Wait before requesting another.",
	KindEmailSendFailed: "The code could not be sent. Try again.",
	KindSessionExpired:  "Your session has expired. Sign in again.",
}

// AuthError is returned by Engine operations that fail for a reason the
// caller should render. It unwraps to the sentinel for its Kind, so both
// errors.Is(err, ErrRateLimited) and errors.As(err, &authErr) work.
type AuthError struct {
	Kind ErrorKind
	// RemainingTime is how long until the operation may succeed again
	// (RATE_LIMITED, ACCOUNT_LOCKED).
	RemainingTime time.Duration
	// RemainingAttempts is set for OTP_INVALID.
	RemainingAttempts int
	// Until is the absolute time RemainingTime counts down to.
	Until time.Time

	cause error
}

func newAuthError(kind ErrorKind) *AuthError {
	return &AuthError{Kind: kind}
}

func (e *AuthError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := string(e.Kind)
	if sentinel, ok := kindSentinels[e.Kind]; ok {
		msg = sentinel.Error()
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap returns the kind sentinel and, when present, the underlying cause.
func (e *AuthError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if sentinel, ok := kindSentinels[e.Kind]; ok {
		out = append(out, sentinel)
	}
	if e.cause != nil {
		out = append(out, e.cause)
	}
	return out
}

// Message returns a user-facing sentence for the error kind.
func (e *AuthError) Message() string {
	if e == nil {
		return ""
	}
	return kindMessages[e.Kind]
}

// RemainingSeconds returns RemainingTime rounded up to whole seconds.
func (e *AuthError) RemainingSeconds() int64 {
	if e == nil || e.RemainingTime <= 0 {
		return 0
	}
	return int64((e.RemainingTime + time.Second - 1) / time.Second)
}

// KindOf returns the ErrorKind carried by err, or "" when err is not an
// *AuthError.
func KindOf(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
