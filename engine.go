package adminauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aurumvault/adminauth/internal/limiters"
	"github.com/aurumvault/adminauth/internal/stores"
	"github.com/aurumvault/adminauth/jwt"
	"github.com/aurumvault/adminauth/session"
	"github.com/aurumvault/adminauth/store"
)

// maxCASRetries bounds the optimistic retry loop on one email's state.
const maxCASRetries = 8

// Engine runs the admin sign-in flow: allow-list check, OTP issuance and
// verification, throttling, lockout and sessions. Build one with [New].
//
// An Engine is safe for concurrent use.
type Engine struct {
	config     Config
	clock      Clock
	logger     *slog.Logger
	allow      *AllowList
	policy     limiters.OTPPolicy
	kv         store.Store
	states     *stores.EmailStateStore
	sessions   *session.Store
	jwtManager *jwt.Manager
	notifier   Notifier
	audit      *auditDispatcher
	metrics    *Metrics
}

// Close drains and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
			LatencySum: map[MetricID]time.Duration{},
		}
	}
	return e.metrics.Snapshot()
}

// AllowListSize returns how many admin addresses are configured.
func (e *Engine) AllowListSize() int {
	if e == nil {
		return 0
	}
	return e.allow.Len()
}

// StorageBackend returns the configured backend name.
func (e *Engine) StorageBackend() string {
	if e == nil {
		return ""
	}
	return e.config.Storage.Backend
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports whether the storage backend is reachable.
func (e *Engine) Health(ctx context.Context) error {
	if e == nil || e.kv == nil {
		return ErrEngineNotReady
	}
	if p, ok := e.kv.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.states != nil && e.sessions != nil && e.jwtManager != nil
}

// mutateState runs fn on a copy of email's state and commits the result
// with compare-and-swap, retrying on contention. fn may run several times
// and must derive everything from the state it is given. When fn reports no
// change nothing is written.
func (e *Engine) mutateState(
	ctx context.Context,
	email string,
	now time.Time,
	fn func(state *stores.EmailState) (bool, error),
) error {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		current, raw, err := e.states.Load(ctx, email)
		if err != nil {
			if errors.Is(err, stores.ErrStateCorrupt) {
				e.metricInc(MetricStateCorrupt)
				e.logger.ErrorContext(ctx, "undecodable otp state; refusing to overwrite", "email", email, "error", err)
			}
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		next := current.Clone()
		changed, err := fn(next)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		ok, err := e.states.Swap(ctx, email, raw, next, next.TTL(now, e.policy.Window))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if ok {
			return nil
		}
		e.metricInc(MetricStoreContention)
	}
	return fmt.Errorf("%w: otp state contention", ErrUnavailable)
}

func lockedError(until, now time.Time) *AuthError {
	return &AuthError{
		Kind:          KindAccountLocked,
		RemainingTime: until.Sub(now),
		Until:         until,
	}
}
