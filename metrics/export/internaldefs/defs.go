package internaldefs

import (
	"github.com/aurumvault/adminauth"
)

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   adminauth.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine histogram to its exported name.
type HistogramDef struct {
	ID   adminauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: adminauth.MetricOTPRequested, Name: "adminauth_otp_requested_total", Help: "One-time codes issued and delivered."},
	{ID: adminauth.MetricOTPRequestRejected, Name: "adminauth_otp_request_rejected_total", Help: "Code requests for addresses outside the allow-list."},
	{ID: adminauth.MetricOTPRateLimited, Name: "adminauth_otp_rate_limited_total", Help: "Code requests denied by the cooldown or hourly cap."},
	{ID: adminauth.MetricOTPDeliveryFailed, Name: "adminauth_otp_delivery_failed_total", Help: "Codes the notifier failed to deliver."},
	{ID: adminauth.MetricOTPRollbackFailed, Name: "adminauth_otp_rollback_failed_total", Help: "Failed rollbacks after a delivery failure."},
	{ID: adminauth.MetricOTPVerified, Name: "adminauth_otp_verified_total", Help: "Successful code verifications."},
	{ID: adminauth.MetricOTPInvalid, Name: "adminauth_otp_invalid_total", Help: "Verifications with a wrong code."},
	{ID: adminauth.MetricOTPExpired, Name: "adminauth_otp_expired_total", Help: "Verifications with no usable pending code."},
	{ID: adminauth.MetricOTPReplay, Name: "adminauth_otp_replay_total", Help: "Verifications of an already used code."},
	{ID: adminauth.MetricAccountLocked, Name: "adminauth_account_locked_total", Help: "Lockouts started by failed verifications."},
	{ID: adminauth.MetricLockedAttempt, Name: "adminauth_locked_attempt_total", Help: "Operations refused by an active lockout."},
	{ID: adminauth.MetricRateLimitHit, Name: "adminauth_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: adminauth.MetricSessionCreated, Name: "adminauth_session_created_total", Help: "Created sessions."},
	{ID: adminauth.MetricSessionValidated, Name: "adminauth_session_validated_total", Help: "Successful session validations."},
	{ID: adminauth.MetricSessionRejected, Name: "adminauth_session_rejected_total", Help: "Session validations of malformed, forged or revoked tokens."},
	{ID: adminauth.MetricSessionExpired, Name: "adminauth_session_expired_total", Help: "Session validations of expired tokens."},
	{ID: adminauth.MetricSessionInvalidated, Name: "adminauth_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: adminauth.MetricStoreContention, Name: "adminauth_store_contention_total", Help: "Compare-and-swap retries on per-email state."},
	{ID: adminauth.MetricStateCorrupt, Name: "adminauth_state_corrupt_total", Help: "Per-email state records that could not be decoded."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: adminauth.MetricValidateLatency, Name: "adminauth_validate_latency_seconds", Help: "ValidateSession latency."},
}

// AuditDroppedName is the counter for audit events dropped on a full buffer.
const AuditDroppedName = "adminauth_audit_dropped_total"

// Gauges read from the engine rather than from the metrics snapshot.
const (
	AllowListSizeName = "adminauth_allowlist_size"
	StoreUpName       = "adminauth_store_up"
)

// HistogramBounds are the upper bucket bounds in seconds, as rendered in the
// Prometheus le label.
var HistogramBounds = []string{
	"0.0005",
	"0.001",
	"0.0025",
	"0.005",
	"0.01",
	"0.025",
	"0.1",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array, zero-filling
// missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
