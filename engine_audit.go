package adminauth

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Audit event types.
const (
	AuditEventOTPRequested       = "otp_requested"
	AuditEventOTPRequestDenied   = "otp_request_denied"
	AuditEventOTPDeliveryFailed  = "otp_delivery_failed"
	AuditEventOTPVerified        = "otp_verified"
	AuditEventOTPInvalid         = "otp_invalid"
	AuditEventOTPExpired         = "otp_expired"
	AuditEventOTPReplay          = "otp_replay"
	AuditEventAccountLocked      = "account_locked"
	AuditEventSessionCreated     = "session_created"
	AuditEventSessionInvalidated = "session_invalidated"
	AuditEventRateLimitTriggered = "rate_limit_triggered"
)

// AuditErrorCode is the short error label recorded on failed events.
type AuditErrorCode string

const (
	auditErrInvalidEmail          AuditErrorCode = "invalid_email"
	auditErrAccountLocked         AuditErrorCode = "account_locked"
	auditErrOTPExpired            AuditErrorCode = "otp_expired"
	auditErrOTPInvalid            AuditErrorCode = "otp_invalid"
	auditErrRateLimited           AuditErrorCode = "rate_limited"
	auditErrDeliveryFailed        AuditErrorCode = "delivery_failed"
	auditErrSessionExpired        AuditErrorCode = "session_expired"
	auditErrSessionInvalid        AuditErrorCode = "session_invalid"
	auditErrSessionCreationFailed AuditErrorCode = "session_creation_failed"
	auditErrUnavailable           AuditErrorCode = "backend_unavailable"
	auditErrInternal              AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	email string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: e.clock.Now().UTC(),
		EventType: eventType,
		Email:     email,
		SessionID: sessionID,
		RequestID: RequestIDFromContext(ctx),
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	scope string,
	email string,
	metadataBuilder func() map[string]string,
) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, AuditEventRateLimitTriggered, false, email, "", ErrRateLimited, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidEmail):
		return auditErrInvalidEmail
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrOTPExpired):
		return auditErrOTPExpired
	case errors.Is(err, ErrOTPInvalid):
		return auditErrOTPInvalid
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrEmailSendFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrSessionInvalid):
		return auditErrSessionInvalid
	case errors.Is(err, ErrSessionCreationFailed):
		return auditErrSessionCreationFailed
	case errors.Is(err, ErrUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
