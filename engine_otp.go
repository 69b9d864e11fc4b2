package adminauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aurumvault/adminauth/internal"
	"github.com/aurumvault/adminauth/internal/limiters"
	"github.com/aurumvault/adminauth/internal/stores"
)

// rollbackTimeout bounds the undo of a reservation after a failed delivery.
// It runs detached from the request context.
const rollbackTimeout = 5 * time.Second

// RequestOTP issues a new code for email and hands it to the notifier.
//
// It fails with INVALID_EMAIL for addresses outside the allow-list (without
// touching storage), RATE_LIMITED during a lockout, inside the cooldown or
// past the hourly cap, and EMAIL_SEND_FAILED when delivery
// fails. A failed delivery is rolled back so the caller may retry at once.
// A new code supersedes any code still pending for the address.
func (e *Engine) RequestOTP(ctx context.Context, email string) (*OTPRequestResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	email = NormalizeEmail(email)
	if !e.allow.Contains(email) {
		e.metricInc(MetricOTPRequestRejected)
		e.emitAudit(ctx, AuditEventOTPRequestDenied, false, email, "", ErrInvalidEmail, nil)
		return nil, newAuthError(KindInvalidEmail)
	}

	code, err := internal.NewOTP(e.config.OTP.Digits)
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}
	nonce, err := internal.NewNonce()
	if err != nil {
		return nil, fmt.Errorf("generate otp nonce: %w", err)
	}

	now := e.clock.Now()
	pending := &stores.PendingOTP{
		Email:     email,
		CodeHash:  internal.HashOTP(code),
		CreatedAt: now,
		ExpiresAt: now.Add(e.config.OTP.TTL),
		Nonce:     nonce,
	}

	var (
		prior    *stores.EmailState
		decision limiters.Decision
	)
	err = e.mutateState(ctx, email, now, func(state *stores.EmailState) (bool, error) {
		prior = state.Clone()
		e.policy.Expire(&state.Limits, now)
		decision = e.policy.CanRequest(&state.Limits, now)
		if !decision.Allowed {
			return false, nil
		}
		e.policy.RecordRequest(&state.Limits, now)
		state.Pending = pending
		return true, nil
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "otp reservation failed", "error", err)
		return nil, err
	}

	if !decision.Allowed {
		return nil, e.denyRequest(ctx, email, decision, now)
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.config.Delivery.Timeout)
	sendErr := e.notifier.Send(sendCtx, OTPMessage{
		To:        email,
		Code:      code,
		ExpiresIn: e.config.OTP.TTL,
	})
	cancel()

	if sendErr != nil {
		e.metricInc(MetricOTPDeliveryFailed)
		e.logger.WarnContext(ctx, "otp delivery failed", "error", sendErr)

		if rbErr := e.rollbackRequest(ctx, email, prior, nonce, now); rbErr != nil {
			e.metricInc(MetricOTPRollbackFailed)
			e.logger.ErrorContext(ctx, "otp rollback failed", "error", rbErr)
		}

		e.emitAudit(ctx, AuditEventOTPDeliveryFailed, false, email, "", ErrEmailSendFailed, nil)
		return nil, &AuthError{Kind: KindEmailSendFailed, cause: sendErr}
	}

	e.metricInc(MetricOTPRequested)
	e.emitAudit(ctx, AuditEventOTPRequested, true, email, "", nil, func() map[string]string {
		return map[string]string{
			"expires_at": pending.ExpiresAt.UTC().Format(time.RFC3339),
		}
	})

	return &OTPRequestResult{
		SentAt:    now,
		ExpiresAt: pending.ExpiresAt,
	}, nil
}

func (e *Engine) denyRequest(ctx context.Context, email string, d limiters.Decision, now time.Time) error {
	// A lockout is reported as RATE_LIMITED on this path; ACCOUNT_LOCKED is
	// reserved for verification.
	if d.Locked {
		e.metricInc(MetricLockedAttempt)
		e.emitAudit(ctx, AuditEventOTPRequestDenied, false, email, "", ErrAccountLocked, nil)
		return &AuthError{
			Kind:          KindRateLimited,
			RemainingTime: d.RetryAfter(now),
			Until:         d.NextAllowedAt,
		}
	}

	e.metricInc(MetricOTPRateLimited)
	e.emitRateLimit(ctx, "otp_request", email, func() map[string]string {
		return map[string]string{
			"reason":      string(d.Reason),
			"retry_after": strconv.FormatInt(int64(d.RetryAfter(now)/time.Second), 10),
		}
	})
	return &AuthError{
		Kind:          KindRateLimited,
		RemainingTime: d.RetryAfter(now),
		Until:         d.NextAllowedAt,
	}
}

// rollbackRequest undoes the reservation identified by nonce. When our code
// is still the pending one the previous code is restored; when a newer
// request has superseded it only our request timestamp is removed. Failure
// counts recorded in the meantime are kept.
func (e *Engine) rollbackRequest(
	ctx context.Context,
	email string,
	prior *stores.EmailState,
	nonce internal.Nonce,
	reservedAt time.Time,
) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	return e.mutateState(ctx, email, e.clock.Now(), func(state *stores.EmailState) (bool, error) {
		changed := false

		if state.Pending != nil && state.Pending.Nonce == nonce {
			state.Pending = nil
			if prior.Pending != nil {
				restored := *prior.Pending
				state.Pending = &restored
			}
			changed = true
		}

		times := state.Limits.RequestTimes
		for i, ts := range times {
			if ts.Equal(reservedAt) {
				state.Limits.RequestTimes = append(times[:i:i], times[i+1:]...)
				if len(state.Limits.RequestTimes) == 0 {
					state.Limits.RequestTimes = nil
				}
				changed = true
				break
			}
		}

		if state.Limits.LastRequestAt.Equal(reservedAt) {
			state.Limits.LastRequestAt = prior.Limits.LastRequestAt
			changed = true
		}

		return changed, nil
	})
}

type verifyOutcome int

const (
	verifyNone verifyOutcome = iota
	verifyLocked
	verifyExpired
	verifyReplay
	verifyMismatch
	verifyMismatchLocked
	verifyMatch
)

// VerifyOTP checks code against the pending code for email and, on success,
// starts a session.
//
// A lockout is checked before anything else and consumes no attempt. A
// missing, expired, superseded or already-used code yields OTP_EXPIRED. A
// wrong code (including a malformed one) counts as a failed attempt and
// yields OTP_INVALID with the attempts left, or ACCOUNT_LOCKED when it was
// the last allowed attempt.
func (e *Engine) VerifyOTP(ctx context.Context, email, code string) (*Session, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	email = NormalizeEmail(email)
	if !e.allow.Contains(email) {
		e.emitAudit(ctx, AuditEventOTPInvalid, false, email, "", ErrInvalidEmail, nil)
		return nil, newAuthError(KindInvalidEmail)
	}

	now := e.clock.Now()
	digest := internal.HashOTP(code)
	wellFormed := internal.IsNumericCode(code, e.config.OTP.Digits)

	var (
		outcome   verifyOutcome
		until     time.Time
		remaining int
	)
	err := e.mutateState(ctx, email, now, func(state *stores.EmailState) (bool, error) {
		outcome, until, remaining = verifyNone, time.Time{}, 0

		e.policy.Expire(&state.Limits, now)
		if e.policy.Locked(&state.Limits, now) {
			outcome, until = verifyLocked, state.Limits.LockoutUntil
			return false, nil
		}

		pending := state.Pending
		if pending == nil || pending.Expired(now) {
			outcome = verifyExpired
			return false, nil
		}
		if pending.Used {
			outcome = verifyReplay
			return false, nil
		}

		match := subtle.ConstantTimeCompare(digest[:], pending.CodeHash[:]) == 1
		if pending.Attempts < ^uint16(0) {
			pending.Attempts++
		}

		if !wellFormed || !match {
			locked, lockedUntil := e.policy.RecordFailure(&state.Limits, now)
			if locked {
				state.Pending = nil
				outcome, until = verifyMismatchLocked, lockedUntil
				return true, nil
			}
			outcome, remaining = verifyMismatch, e.policy.RemainingAttempts(&state.Limits)
			return true, nil
		}

		pending.Used = true
		e.policy.RecordSuccess(&state.Limits)
		outcome = verifyMatch
		return true, nil
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "otp verification failed", "error", err)
		return nil, err
	}

	switch outcome {
	case verifyLocked:
		e.metricInc(MetricLockedAttempt)
		e.emitAudit(ctx, AuditEventOTPInvalid, false, email, "", ErrAccountLocked, nil)
		return nil, lockedError(until, now)

	case verifyExpired:
		e.metricInc(MetricOTPExpired)
		e.emitAudit(ctx, AuditEventOTPExpired, false, email, "", ErrOTPExpired, nil)
		return nil, newAuthError(KindOTPExpired)

	case verifyReplay:
		e.metricInc(MetricOTPReplay)
		e.emitAudit(ctx, AuditEventOTPReplay, false, email, "", ErrOTPExpired, nil)
		return nil, newAuthError(KindOTPExpired)

	case verifyMismatch:
		e.metricInc(MetricOTPInvalid)
		e.emitAudit(ctx, AuditEventOTPInvalid, false, email, "", ErrOTPInvalid, func() map[string]string {
			return map[string]string{"remaining_attempts": strconv.Itoa(remaining)}
		})
		return nil, &AuthError{Kind: KindOTPInvalid, RemainingAttempts: remaining}

	case verifyMismatchLocked:
		e.metricInc(MetricOTPInvalid)
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, AuditEventAccountLocked, false, email, "", ErrAccountLocked, func() map[string]string {
			return map[string]string{"locked_until": until.UTC().Format(time.RFC3339)}
		})
		return nil, lockedError(until, now)

	case verifyMatch:
		e.metricInc(MetricOTPVerified)
		e.emitAudit(ctx, AuditEventOTPVerified, true, email, "", nil, nil)

		sess, err := e.createSession(ctx, email, now)
		if err != nil {
			e.emitAudit(ctx, AuditEventSessionCreated, false, email, "", ErrSessionCreationFailed, nil)
			e.logger.ErrorContext(ctx, "session creation failed", "error", err)
			return nil, fmt.Errorf("%w: %w", ErrSessionCreationFailed, err)
		}
		return sess, nil
	}

	return nil, errors.New("otp verification produced no outcome")
}

// Status reports the throttle state of email without changing it. Addresses
// outside the allow-list get a zero status that looks like a fresh address.
func (e *Engine) Status(ctx context.Context, email string) (OTPStatus, error) {
	if !e.ready() {
		return OTPStatus{}, ErrEngineNotReady
	}

	email = NormalizeEmail(email)
	if !e.allow.Contains(email) {
		return OTPStatus{
			CanRequest:        true,
			RemainingAttempts: e.policy.MaxFailedAttempts,
		}, nil
	}

	state, _, err := e.states.Load(ctx, email)
	if err != nil {
		return OTPStatus{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := e.clock.Now()
	limits := state.Limits.Clone()
	e.policy.Expire(&limits, now)
	decision := e.policy.CanRequest(&limits, now)

	status := OTPStatus{
		Locked:            decision.Locked,
		CanRequest:        decision.Allowed,
		RemainingAttempts: e.policy.RemainingAttempts(&limits),
	}
	if decision.Locked {
		status.LockoutUntil = decision.NextAllowedAt
	}
	if !decision.Allowed {
		status.NextRequestAt = decision.NextAllowedAt
	}
	if p := state.Pending; p != nil && !p.Used && !p.Expired(now) && !decision.Locked {
		status.PendingExpiresAt = p.ExpiresAt
	}
	return status, nil
}
