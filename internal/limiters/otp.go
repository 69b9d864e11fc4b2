package limiters

import "time"

// Policy defaults.
const (
	DefaultCooldown             = time.Minute
	DefaultWindow               = time.Hour
	DefaultMaxRequestsPerWindow = 3
	DefaultMaxFailedAttempts    = 3
	DefaultLockoutDuration      = time.Hour

	// MaxTrackedRequests is the largest request history a record may hold,
	// and so the largest usable MaxRequestsPerWindow.
	MaxTrackedRequests = 1024
)

// DenyReason says which rule rejected an OTP request.
type DenyReason string

const (
	DenyNone     DenyReason = ""
	DenyLockout  DenyReason = "lockout"
	DenyCooldown DenyReason = "cooldown"
	DenyWindow   DenyReason = "window"
)

// RateLimitRecord is the per-email throttle state.
type RateLimitRecord struct {
	// RequestTimes holds OTP request times inside the trailing window, oldest first.
	RequestTimes  []time.Time
	LastRequestAt time.Time
	FailedCount   int
	// LockoutUntil is zero when no lockout has been triggered.
	LockoutUntil time.Time
}

// Empty reports whether the record carries no state worth persisting.
func (r *RateLimitRecord) Empty() bool {
	return r == nil || (len(r.RequestTimes) == 0 &&
		r.LastRequestAt.IsZero() &&
		r.FailedCount == 0 &&
		r.LockoutUntil.IsZero())
}

// Clone returns a deep copy.
func (r RateLimitRecord) Clone() RateLimitRecord {
	out := r
	if len(r.RequestTimes) > 0 {
		out.RequestTimes = append([]time.Time(nil), r.RequestTimes...)
	}
	return out
}

// OTPPolicy holds the throttle thresholds.
type OTPPolicy struct {
	Cooldown             time.Duration
	Window               time.Duration
	MaxRequestsPerWindow int
	MaxFailedAttempts    int
	LockoutDuration      time.Duration
}

// DefaultOTPPolicy returns 1 minute cooldown, 3 requests per sliding hour,
// and a 1 hour lockout after 3 failed verifications.
func DefaultOTPPolicy() OTPPolicy {
	return OTPPolicy{
		Cooldown:             DefaultCooldown,
		Window:               DefaultWindow,
		MaxRequestsPerWindow: DefaultMaxRequestsPerWindow,
		MaxFailedAttempts:    DefaultMaxFailedAttempts,
		LockoutDuration:      DefaultLockoutDuration,
	}
}

// Decision is the outcome of [OTPPolicy.CanRequest].
type Decision struct {
	Allowed       bool
	Locked        bool
	Reason        DenyReason
	NextAllowedAt time.Time
}

// RetryAfter returns how long the caller has to wait, or zero when allowed.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || d.NextAllowedAt.IsZero() {
		return 0
	}
	if wait := d.NextAllowedAt.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// Locked reports whether a lockout is active at now.
func (p OTPPolicy) Locked(rec *RateLimitRecord, now time.Time) bool {
	return rec != nil && !rec.LockoutUntil.IsZero() && now.Before(rec.LockoutUntil)
}

// Expire clears an elapsed lockout (and its counter) and prunes request
// times that fell out of the window.
func (p OTPPolicy) Expire(rec *RateLimitRecord, now time.Time) {
	if rec == nil {
		return
	}
	if !rec.LockoutUntil.IsZero() && !now.Before(rec.LockoutUntil) {
		rec.LockoutUntil = time.Time{}
		rec.FailedCount = 0
	}
	p.Prune(rec, now)
}

// Prune drops request times at or beyond Window in the past. The window is
// sliding: a request made at t stops counting at t+Window.
func (p OTPPolicy) Prune(rec *RateLimitRecord, now time.Time) {
	if rec == nil || len(rec.RequestTimes) == 0 {
		return
	}
	kept := rec.RequestTimes[:0]
	for _, ts := range rec.RequestTimes {
		if now.Sub(ts) < p.Window {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		rec.RequestTimes = nil
		return
	}
	rec.RequestTimes = kept
}

// CanRequest decides whether a new OTP may be issued at now. It does not
// modify rec.
func (p OTPPolicy) CanRequest(rec *RateLimitRecord, now time.Time) Decision {
	if rec == nil {
		return Decision{Allowed: true}
	}
	if p.Locked(rec, now) {
		return Decision{
			Locked:        true,
			Reason:        DenyLockout,
			NextAllowedAt: rec.LockoutUntil,
		}
	}

	var (
		next   time.Time
		reason DenyReason
	)
	if !rec.LastRequestAt.IsZero() && now.Sub(rec.LastRequestAt) < p.Cooldown {
		next = rec.LastRequestAt.Add(p.Cooldown)
		reason = DenyCooldown
	}

	inWindow := 0
	var oldest time.Time
	for _, ts := range rec.RequestTimes {
		if now.Sub(ts) >= p.Window {
			continue
		}
		if inWindow == 0 || ts.Before(oldest) {
			oldest = ts
		}
		inWindow++
	}
	if p.MaxRequestsPerWindow > 0 && inWindow >= p.MaxRequestsPerWindow {
		if freed := oldest.Add(p.Window); freed.After(next) {
			next = freed
			reason = DenyWindow
		}
	}

	if reason != DenyNone {
		return Decision{Reason: reason, NextAllowedAt: next}
	}
	return Decision{Allowed: true}
}

// RecordRequest appends now to the request history and prunes it. Without a
// request cap no history is kept; only LastRequestAt is updated.
func (p OTPPolicy) RecordRequest(rec *RateLimitRecord, now time.Time) {
	if p.MaxRequestsPerWindow <= 0 {
		rec.RequestTimes = nil
		rec.LastRequestAt = now
		return
	}
	p.Prune(rec, now)
	rec.RequestTimes = append(rec.RequestTimes, now)
	rec.LastRequestAt = now
}

// RecordFailure counts one failed verification. Reaching MaxFailedAttempts
// starts a lockout and resets the counter.
func (p OTPPolicy) RecordFailure(rec *RateLimitRecord, now time.Time) (bool, time.Time) {
	rec.FailedCount++
	if rec.FailedCount < p.MaxFailedAttempts {
		return false, time.Time{}
	}
	rec.LockoutUntil = now.Add(p.LockoutDuration)
	rec.FailedCount = 0
	return true, rec.LockoutUntil
}

// RecordSuccess clears the failure counter and any lockout.
func (p OTPPolicy) RecordSuccess(rec *RateLimitRecord) {
	rec.FailedCount = 0
	rec.LockoutUntil = time.Time{}
}

// RemainingAttempts returns how many wrong codes are left before lockout.
func (p OTPPolicy) RemainingAttempts(rec *RateLimitRecord) int {
	left := p.MaxFailedAttempts - rec.FailedCount
	if left < 0 {
		return 0
	}
	return left
}
