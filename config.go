package adminauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aurumvault/adminauth/internal"
	"github.com/aurumvault/adminauth/internal/limiters"
	"github.com/aurumvault/adminauth/jwt"
	"github.com/aurumvault/adminauth/store"
)

// Config holds every tunable of the Engine. Start from DefaultConfig and
// override fields; Build validates the result.
type Config struct {
	// AdminEmails is the allow-list, loaded once at build time.
	AdminEmails []string
	OTP         OTPConfig
	RateLimit   RateLimitConfig
	Session     SessionConfig
	Delivery    DeliveryConfig
	Storage     StorageConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
	Security    SecurityConfig
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls code shape and lifetime.
type OTPConfig struct {
	Digits int
	TTL    time.Duration
}

// RateLimitConfig controls request throttling and failed-attempt lockout.
type RateLimitConfig struct {
	// Cooldown is the minimum spacing between two requests for one email.
	Cooldown time.Duration
	// Window is the sliding window MaxRequestsPerWindow is counted over.
	Window               time.Duration
	MaxRequestsPerWindow int
	MaxFailedAttempts    int
	LockoutDuration      time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetime and token signing.
type SessionConfig struct {
	TTL           time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	// SigningKey is the HMAC secret (hs256) or Ed25519 private key.
	SigningKey []byte
	// PublicKey is the Ed25519 public key. Unused for hs256.
	PublicKey []byte
	Issuer    string
	Audience  string
}

// DeliveryConfig bounds notifier calls.
type DeliveryConfig struct {
	Timeout time.Duration
}

// StorageConfig selects where OTP, rate-limit and session state live.
// "memory" state is lost when the process exits; "redis" survives restarts
// and can be shared by several instances.
type StorageConfig struct {
	Backend   string
	KeyPrefix string
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// SecurityConfig holds deployment hardening switches.
type SecurityConfig struct {
	// ProductionMode rejects configurations that are only acceptable in
	// development: in-memory storage, disabled audit, logging notifiers.
	ProductionMode bool
}

// DefaultConfig returns the documented defaults: 6-digit codes valid for
// 5 minutes, 1 minute cooldown, 3 requests per sliding hour, 1 hour lockout
// after 3 failed verifications and 24 hour sessions.
//
// SigningKey is left empty and must be supplied.
func DefaultConfig() Config {
	policy := limiters.DefaultOTPPolicy()
	return Config{
		OTP: OTPConfig{
			Digits: 6,
			TTL:    5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Cooldown:             policy.Cooldown,
			Window:               policy.Window,
			MaxRequestsPerWindow: policy.MaxRequestsPerWindow,
			MaxFailedAttempts:    policy.MaxFailedAttempts,
			LockoutDuration:      policy.LockoutDuration,
		},
		Session: SessionConfig{
			TTL:           24 * time.Hour,
			SigningMethod: string(jwt.MethodHS256),
			Issuer:        "adminauth",
		},
		Delivery: DeliveryConfig{
			Timeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Backend:   store.BackendMemory,
			KeyPrefix: "adminauth",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.AdminEmails = append([]string(nil), cfg.AdminEmails...)
	out.Session.SigningKey = cloneBytes(cfg.Session.SigningKey)
	out.Session.PublicKey = cloneBytes(cfg.Session.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c *Config) otpPolicy() limiters.OTPPolicy {
	return limiters.OTPPolicy{
		Cooldown:             c.RateLimit.Cooldown,
		Window:               c.RateLimit.Window,
		MaxRequestsPerWindow: c.RateLimit.MaxRequestsPerWindow,
		MaxFailedAttempts:    c.RateLimit.MaxFailedAttempts,
		LockoutDuration:      c.RateLimit.LockoutDuration,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate returns the first configuration error found, or nil.
func (c *Config) Validate() error {
	// OTP
	if c.OTP.Digits < internal.MinOTPDigits || c.OTP.Digits > internal.MaxOTPDigits {
		return fmt.Errorf("OTP Digits must be between %d and %d", internal.MinOTPDigits, internal.MaxOTPDigits)
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.TTL > time.Hour {
		return errors.New("OTP TTL must be <= 1h")
	}

	// Rate limit
	if c.RateLimit.Cooldown < 0 {
		return errors.New("RateLimit Cooldown must be >= 0")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("RateLimit Window must be > 0")
	}
	if c.RateLimit.MaxRequestsPerWindow < 0 {
		return errors.New("RateLimit MaxRequestsPerWindow must be >= 0")
	}
	if c.RateLimit.MaxRequestsPerWindow > limiters.MaxTrackedRequests {
		return fmt.Errorf("RateLimit MaxRequestsPerWindow must be <= %d", limiters.MaxTrackedRequests)
	}
	if c.RateLimit.MaxFailedAttempts <= 0 {
		return errors.New("RateLimit MaxFailedAttempts must be > 0")
	}
	if c.RateLimit.LockoutDuration <= 0 {
		return errors.New("RateLimit LockoutDuration must be > 0")
	}

	// Session
	if c.Session.TTL < time.Second {
		return errors.New("Session TTL must be >= 1s")
	}
	switch jwt.SigningMethod(c.Session.SigningMethod) {
	case jwt.MethodHS256:
		if len(c.Session.SigningKey) < jwt.MinHS256KeyLen {
			return fmt.Errorf("Session SigningKey must be at least %d bytes for hs256", jwt.MinHS256KeyLen)
		}
	case jwt.MethodEd25519:
		if len(c.Session.PublicKey) == 0 || len(c.Session.SigningKey) == 0 {
			return errors.New("ed25519 requires SigningKey and PublicKey")
		}
	default:
		return errors.New("unsupported Session SigningMethod")
	}

	// Delivery
	if c.Delivery.Timeout <= 0 {
		return errors.New("Delivery Timeout must be > 0")
	}

	// Storage
	if c.Storage.Backend != store.BackendMemory && c.Storage.Backend != store.BackendRedis {
		return errors.New("Storage Backend must be 'memory' or 'redis'")
	}
	if strings.ContainsAny(c.Storage.KeyPrefix, " \t\n") {
		return errors.New("Storage KeyPrefix must not contain whitespace")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Security.ProductionMode {
		if c.Storage.Backend != store.BackendRedis {
			return errors.New("ProductionMode requires the redis storage backend")
		}
		if !c.Audit.Enabled {
			return errors.New("ProductionMode requires audit to be enabled")
		}
		if c.RateLimit.Cooldown <= 0 || c.RateLimit.MaxRequestsPerWindow <= 0 {
			return errors.New("ProductionMode requires request throttling")
		}
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning is a non-fatal configuration smell.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of Lint.
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (w LintWarnings) Codes() []string {
	out := make([]string, 0, len(w))
	for _, warning := range w {
		out = append(out, warning.Code)
	}
	return out
}

// Lint reports settings that pass Validate but weaken the flow.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if len(c.AdminEmails) == 0 {
		add("allowlist_empty", "no admin emails configured; nobody can sign in")
	}
	if c.Storage.Backend == store.BackendMemory {
		add("memory_backend", "memory storage loses pending codes, lockouts and sessions on restart")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", "security events are not recorded")
	}
	if c.OTP.TTL > 10*time.Minute {
		add("otp_ttl_long", "codes valid for more than 10 minutes widen the guessing window")
	}
	if c.Session.TTL > 24*time.Hour {
		add("session_ttl_long", "sessions longer than 24 hours")
	}
	if c.RateLimit.Cooldown <= 0 {
		add("cooldown_disabled", "no spacing between code requests")
	}
	if c.RateLimit.MaxRequestsPerWindow <= 0 {
		add("rate_limits_disabled", "no cap on code requests per window")
	}
	if c.RateLimit.MaxFailedAttempts > 5 {
		add("failed_attempts_high", "more than 5 guesses per lockout period")
	}
	if c.RateLimit.LockoutDuration < 15*time.Minute {
		add("lockout_short", "lockout shorter than 15 minutes")
	}
	if c.Delivery.Timeout > 30*time.Second {
		add("delivery_timeout_long", "requests may hang on a slow mail server")
	}

	return ws
}
