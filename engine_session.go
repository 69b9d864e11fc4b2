package adminauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aurumvault/adminauth/internal"
	"github.com/aurumvault/adminauth/jwt"
	"github.com/aurumvault/adminauth/session"
)

// createSession mints a session for an email that just verified a code.
// Times are truncated to whole seconds so the token exp claim and the stored
// record expire at the same instant.
func (e *Engine) createSession(ctx context.Context, email string, now time.Time) (*Session, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	issuedAt := now.Truncate(time.Second)
	expiresAt := issuedAt.Add(e.config.Session.TTL)
	id := sid.String()

	token, err := e.jwtManager.Create(id, email, issuedAt, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	record := &session.Session{
		SessionID: id,
		Email:     email,
		CreatedAt: issuedAt.Unix(),
		ExpiresAt: expiresAt.Unix(),
	}
	if err := e.sessions.Save(ctx, record, expiresAt.Sub(now)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, AuditEventSessionCreated, true, email, id, nil, func() map[string]string {
		return map[string]string{"expires_at": expiresAt.UTC().Format(time.RFC3339)}
	})

	return &Session{
		Token:     token,
		ID:        id,
		Email:     email,
		CreatedAt: issuedAt,
		ExpiresAt: expiresAt,
		Valid:     true,
	}, nil
}

// Session resolves token to its live session.
//
// It returns SESSION_EXPIRED for a genuine token at or past its expiry,
// ErrSessionInvalid for malformed, forged, unknown or revoked tokens, and
// ErrUnavailable when storage cannot be reached. It never modifies state.
func (e *Engine) Session(ctx context.Context, token string) (*Session, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if token == "" {
		return nil, ErrSessionInvalid
	}

	claims, err := e.jwtManager.Parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, newAuthError(KindSessionExpired)
		}
		return nil, ErrSessionInvalid
	}

	record, err := e.sessions.Get(ctx, claims.SID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrCorrupt):
			return nil, ErrSessionInvalid
		default:
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if record.Email != claims.Subject {
		return nil, ErrSessionInvalid
	}

	now := e.clock.Now()
	expiresAt := time.Unix(record.ExpiresAt, 0)
	if !now.Before(expiresAt) {
		return nil, newAuthError(KindSessionExpired)
	}

	return &Session{
		Token:     token,
		ID:        record.SessionID,
		Email:     record.Email,
		CreatedAt: time.Unix(record.CreatedAt, 0),
		ExpiresAt: expiresAt,
		Valid:     true,
	}, nil
}

// ValidateSession reports whether token names a live session. It is
// side-effect free and cheap enough to poll.
func (e *Engine) ValidateSession(ctx context.Context, token string) bool {
	var start time.Time
	if e != nil && e.metrics.LatencyEnabled() {
		start = time.Now()
	}

	_, err := e.Session(ctx, token)

	if !start.IsZero() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}

	switch {
	case err == nil:
		e.metricInc(MetricSessionValidated)
		return true
	case errors.Is(err, ErrSessionExpired):
		e.metricInc(MetricSessionExpired)
	default:
		e.metricInc(MetricSessionRejected)
	}
	return false
}

// InvalidateSession revokes the session behind token. Invalidating an
// unknown, expired or malformed token is a no-op.
func (e *Engine) InvalidateSession(ctx context.Context, token string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	claims, err := e.jwtManager.Parse(token)
	if err != nil {
		return nil
	}

	if err := e.sessions.Delete(ctx, claims.SID); err != nil {
		e.logger.ErrorContext(ctx, "session invalidation failed", "error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, AuditEventSessionInvalidated, true, claims.Subject, claims.SID, nil, nil)
	return nil
}
