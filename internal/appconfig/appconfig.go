// Package appconfig loads adminauthd settings from a YAML file, an optional
// .env file and the process environment, in that order of precedence
// (environment wins).
package appconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aurumvault/adminauth"
)

// Notifier names accepted in Settings.Notifier.
const (
	NotifierSMTP = "smtp"
	NotifierLog  = "log"
)

type ServerSettings struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	Cookie          struct {
		Enabled bool   `yaml:"enabled"`
		Name    string `yaml:"name"`
		Secure  bool   `yaml:"secure"`
		Domain  string `yaml:"domain"`
	} `yaml:"cookie"`
}

type LogSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RedisSettings struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SMTPSettings struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	From        string `yaml:"from"`
	Subject     string `yaml:"subject"`
	ProductName string `yaml:"product_name"`
}

type TelegramSettings struct {
	BotToken string   `yaml:"bot_token"`
	ChatID   int64    `yaml:"chat_id"`
	Events   []string `yaml:"events"`
}

// Settings is the full process configuration.
type Settings struct {
	Server      ServerSettings   `yaml:"server"`
	Log         LogSettings      `yaml:"log"`
	AdminEmails []string         `yaml:"admin_emails"`
	Notifier    string           `yaml:"notifier"`
	SMTP        SMTPSettings     `yaml:"smtp"`
	Telegram    TelegramSettings `yaml:"telegram"`
	Redis       RedisSettings    `yaml:"redis"`

	OTP struct {
		Digits int           `yaml:"digits"`
		TTL    time.Duration `yaml:"ttl"`
	} `yaml:"otp"`
	RateLimit struct {
		Cooldown             time.Duration `yaml:"cooldown"`
		Window               time.Duration `yaml:"window"`
		MaxRequestsPerWindow int           `yaml:"max_requests_per_window"`
		MaxFailedAttempts    int           `yaml:"max_failed_attempts"`
		LockoutDuration      time.Duration `yaml:"lockout_duration"`
	} `yaml:"rate_limit"`
	Session struct {
		TTL        time.Duration `yaml:"ttl"`
		SigningKey string        `yaml:"signing_key"`
		Issuer     string        `yaml:"issuer"`
		Audience   string        `yaml:"audience"`
	} `yaml:"session"`
	Delivery struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"delivery"`
	Storage struct {
		Backend   string `yaml:"backend"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"storage"`
	Audit struct {
		Enabled    bool `yaml:"enabled"`
		BufferSize int  `yaml:"buffer_size"`
		DropIfFull bool `yaml:"drop_if_full"`
		// Stdout writes every audit event as a JSON line to standard output.
		Stdout bool `yaml:"stdout"`
	} `yaml:"audit"`
	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
	ProductionMode bool `yaml:"production_mode"`
}

// Defaults returns settings matching adminauth.DefaultConfig plus server
// defaults.
func Defaults() Settings {
	ec := adminauth.DefaultConfig()

	var s Settings
	s.Server.Addr = ":8080"
	s.Server.ShutdownTimeout = 15 * time.Second
	s.Server.Cookie.Enabled = true
	s.Server.Cookie.Secure = true
	s.Log.Level = "info"
	s.Log.Format = "json"
	s.Notifier = NotifierSMTP
	s.SMTP.Port = 587
	s.Redis.Addr = "127.0.0.1:6379"

	s.OTP.Digits = ec.OTP.Digits
	s.OTP.TTL = ec.OTP.TTL
	s.RateLimit.Cooldown = ec.RateLimit.Cooldown
	s.RateLimit.Window = ec.RateLimit.Window
	s.RateLimit.MaxRequestsPerWindow = ec.RateLimit.MaxRequestsPerWindow
	s.RateLimit.MaxFailedAttempts = ec.RateLimit.MaxFailedAttempts
	s.RateLimit.LockoutDuration = ec.RateLimit.LockoutDuration
	s.Session.TTL = ec.Session.TTL
	s.Session.Issuer = ec.Session.Issuer
	s.Session.Audience = ec.Session.Audience
	s.Delivery.Timeout = ec.Delivery.Timeout
	s.Storage.Backend = ec.Storage.Backend
	s.Storage.KeyPrefix = ec.Storage.KeyPrefix
	s.Audit.Enabled = ec.Audit.Enabled
	s.Audit.BufferSize = ec.Audit.BufferSize
	s.Audit.DropIfFull = ec.Audit.DropIfFull
	s.Metrics.Enabled = ec.Metrics.Enabled
	return s
}

// LoadOptions says where to read from. Empty paths are skipped.
type LoadOptions struct {
	ConfigPath string
	DotEnvPath string
}

// Load builds Settings from defaults, the YAML file, the .env file and the
// environment. A missing .env file is not an error; a missing config file is.
func Load(opts LoadOptions) (*Settings, error) {
	s := Defaults()

	if opts.ConfigPath != "" {
		raw, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(raw, &s); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", opts.ConfigPath, err)
		}
	}

	if opts.DotEnvPath != "" {
		if err := godotenv.Load(opts.DotEnvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", opts.DotEnvPath, err)
		}
	}

	if err := applyEnv(&s); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// validate checks the settings the engine does not see. Engine settings are
// checked by adminauth.Config.Validate at build time.
func (s *Settings) validate() error {
	switch s.Notifier {
	case NotifierSMTP, NotifierLog:
	default:
		return fmt.Errorf("notifier must be %q or %q, got %q", NotifierSMTP, NotifierLog, s.Notifier)
	}
	if s.Server.ShutdownTimeout <= 0 {
		return errors.New("server shutdown_timeout must be > 0")
	}
	if s.ProductionMode && s.Server.Cookie.Enabled && !s.Server.Cookie.Secure {
		return errors.New("production mode requires secure session cookies")
	}
	return nil
}

func decodeYAML(raw []byte, s *Settings) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// EngineConfig converts s to the engine configuration.
func (s *Settings) EngineConfig() adminauth.Config {
	cfg := adminauth.DefaultConfig()
	cfg.AdminEmails = append([]string(nil), s.AdminEmails...)
	cfg.OTP.Digits = s.OTP.Digits
	cfg.OTP.TTL = s.OTP.TTL
	cfg.RateLimit.Cooldown = s.RateLimit.Cooldown
	cfg.RateLimit.Window = s.RateLimit.Window
	cfg.RateLimit.MaxRequestsPerWindow = s.RateLimit.MaxRequestsPerWindow
	cfg.RateLimit.MaxFailedAttempts = s.RateLimit.MaxFailedAttempts
	cfg.RateLimit.LockoutDuration = s.RateLimit.LockoutDuration
	cfg.Session.TTL = s.Session.TTL
	cfg.Session.SigningKey = []byte(s.Session.SigningKey)
	cfg.Session.Issuer = s.Session.Issuer
	cfg.Session.Audience = s.Session.Audience
	cfg.Delivery.Timeout = s.Delivery.Timeout
	cfg.Storage.Backend = s.Storage.Backend
	cfg.Storage.KeyPrefix = s.Storage.KeyPrefix
	cfg.Audit.Enabled = s.Audit.Enabled
	cfg.Audit.BufferSize = s.Audit.BufferSize
	cfg.Audit.DropIfFull = s.Audit.DropIfFull
	cfg.Metrics.Enabled = s.Metrics.Enabled
	cfg.Security.ProductionMode = s.ProductionMode
	return cfg
}

// NewLogger returns a slog.Logger writing to w in the configured format and
// level.
func (s *Settings) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.Log.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(s.Log.Format) {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", s.Log.Format)
	}
}
