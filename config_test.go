package adminauth

import (
	"context"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/aurumvault/adminauth/store"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{name: "defaults with key", mutate: func(c *Config) {}, wantValid: true},
		{name: "otp digits too few", mutate: func(c *Config) { c.OTP.Digits = 5 }, wantValid: false},
		{name: "otp digits max", mutate: func(c *Config) { c.OTP.Digits = 10 }, wantValid: true},
		{name: "otp digits too many", mutate: func(c *Config) { c.OTP.Digits = 11 }, wantValid: false},
		{name: "otp ttl zero", mutate: func(c *Config) { c.OTP.TTL = 0 }, wantValid: false},
		{name: "otp ttl too long", mutate: func(c *Config) { c.OTP.TTL = 2 * time.Hour }, wantValid: false},
		{name: "cooldown disabled", mutate: func(c *Config) { c.RateLimit.Cooldown = 0 }, wantValid: true},
		{name: "cooldown negative", mutate: func(c *Config) { c.RateLimit.Cooldown = -time.Second }, wantValid: false},
		{name: "window zero", mutate: func(c *Config) { c.RateLimit.Window = 0 }, wantValid: false},
		{name: "request cap negative", mutate: func(c *Config) { c.RateLimit.MaxRequestsPerWindow = -1 }, wantValid: false},
		{name: "request cap at history limit", mutate: func(c *Config) { c.RateLimit.MaxRequestsPerWindow = 1024 }, wantValid: true},
		{name: "request cap above history limit", mutate: func(c *Config) { c.RateLimit.MaxRequestsPerWindow = 1025 }, wantValid: false},
		{name: "failed attempts zero", mutate: func(c *Config) { c.RateLimit.MaxFailedAttempts = 0 }, wantValid: false},
		{name: "lockout zero", mutate: func(c *Config) { c.RateLimit.LockoutDuration = 0 }, wantValid: false},
		{name: "session ttl sub-second", mutate: func(c *Config) { c.Session.TTL = 500 * time.Millisecond }, wantValid: false},
		{name: "signing key short", mutate: func(c *Config) { c.Session.SigningKey = []byte("short") }, wantValid: false},
		{name: "signing method unknown", mutate: func(c *Config) { c.Session.SigningMethod = "rs256" }, wantValid: false},
		{
			name: "ed25519 without public key",
			mutate: func(c *Config) {
				c.Session.SigningMethod = "ed25519"
				c.Session.PublicKey = nil
			},
			wantValid: false,
		},
		{name: "delivery timeout zero", mutate: func(c *Config) { c.Delivery.Timeout = 0 }, wantValid: false},
		{name: "backend unknown", mutate: func(c *Config) { c.Storage.Backend = "postgres" }, wantValid: false},
		{name: "backend redis", mutate: func(c *Config) { c.Storage.Backend = store.BackendRedis }, wantValid: true},
		{name: "key prefix whitespace", mutate: func(c *Config) { c.Storage.KeyPrefix = "admin auth" }, wantValid: false},
		{
			name: "audit buffer zero",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.OTP.Digits != 6 || cfg.OTP.TTL != 5*time.Minute {
		t.Fatalf("unexpected otp defaults %+v", cfg.OTP)
	}
	rl := cfg.RateLimit
	if rl.Cooldown != time.Minute || rl.Window != time.Hour || rl.MaxRequestsPerWindow != 3 ||
		rl.MaxFailedAttempts != 3 || rl.LockoutDuration != time.Hour {
		t.Fatalf("unexpected rate limit defaults %+v", rl)
	}
	if cfg.Session.TTL != 24*time.Hour {
		t.Fatalf("unexpected session ttl %v", cfg.Session.TTL)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("defaults without a signing key must not validate")
	}
}

func TestConfigProductionMode(t *testing.T) {
	prod := func() Config {
		cfg := testConfig()
		cfg.Security.ProductionMode = true
		cfg.Storage.Backend = store.BackendRedis
		cfg.Audit.Enabled = true
		return cfg
	}

	cfg := prod()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("production config should validate: %v", err)
	}

	for name, mutate := range map[string]func(*Config){
		"memory backend": func(c *Config) { c.Storage.Backend = store.BackendMemory },
		"audit disabled": func(c *Config) { c.Audit.Enabled = false },
		"no cooldown":    func(c *Config) { c.RateLimit.Cooldown = 0 },
		"no request cap": func(c *Config) { c.RateLimit.MaxRequestsPerWindow = 0 },
	} {
		cfg := prod()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected production validation error", name)
		}
	}
}

func TestBuildRejectsDevelopmentNotifierInProduction(t *testing.T) {
	cfg := testConfig()
	cfg.Security.ProductionMode = true
	cfg.Storage.Backend = store.BackendRedis
	cfg.Audit.Enabled = true

	_, err := New().
		WithConfig(cfg).
		WithStore(store.NewMemoryStore(nil)).
		WithNotifier(devNotifier{}).
		Build()
	if err == nil || !strings.Contains(err.Error(), "development-only") {
		t.Fatalf("expected development notifier rejection, got %v", err)
	}
}

func TestBuildRequiresNotifierAndRedisClient(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected error without notifier")
	}

	cfg := testConfig()
	cfg.Storage.Backend = store.BackendRedis
	if _, err := New().WithConfig(cfg).WithNotifier(&recordingNotifier{}).Build(); err == nil {
		t.Fatal("expected error for redis backend without client")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(testConfig()).WithNotifier(&recordingNotifier{})
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuildDoesNotAliasConfig(t *testing.T) {
	cfg := testConfig()
	engine, err := New().WithConfig(cfg).WithNotifier(&recordingNotifier{}).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	cfg.AdminEmails[0] = "changed@x.com"
	if !engine.allow.Contains(testAdmin) {
		t.Fatal("engine allow-list must not share memory with the caller's config")
	}
}

func TestConfigLint(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Backend = store.BackendRedis
	cfg.Audit.Enabled = true
	if ws := cfg.Lint(); len(ws) != 0 {
		t.Fatalf("expected no warnings, got %v", ws.Codes())
	}

	cfg.AdminEmails = nil
	cfg.Storage.Backend = store.BackendMemory
	cfg.Audit.Enabled = false
	cfg.OTP.TTL = 15 * time.Minute
	cfg.Session.TTL = 48 * time.Hour
	cfg.RateLimit.Cooldown = 0
	cfg.RateLimit.MaxRequestsPerWindow = 0
	cfg.RateLimit.MaxFailedAttempts = 10
	cfg.RateLimit.LockoutDuration = time.Minute
	cfg.Delivery.Timeout = time.Minute

	codes := cfg.Lint().Codes()
	for _, want := range []string{
		"allowlist_empty",
		"memory_backend",
		"audit_disabled",
		"otp_ttl_long",
		"session_ttl_long",
		"cooldown_disabled",
		"rate_limits_disabled",
		"failed_attempts_high",
		"lockout_short",
		"delivery_timeout_long",
	} {
		if !slices.Contains(codes, want) {
			t.Errorf("expected %s warning, got %v", want, codes)
		}
	}
}

type devNotifier struct{}

func (devNotifier) Send(context.Context, OTPMessage) error { return nil }
func (devNotifier) DevelopmentOnly() bool                  { return true }
