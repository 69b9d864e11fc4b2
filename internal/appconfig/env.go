package appconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnv overlays environment variables on s. Malformed values are
// reported together rather than silently ignored.
func applyEnv(s *Settings) error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	s.Server.Addr = getEnv("HTTP_ADDR", s.Server.Addr)
	s.Server.CORSOrigins = getEnvList("CORS_ORIGINS", s.Server.CORSOrigins)
	collect(getEnvBool("COOKIE_SECURE", &s.Server.Cookie.Secure))
	s.Log.Level = getEnv("LOG_LEVEL", s.Log.Level)
	s.Log.Format = getEnv("LOG_FORMAT", s.Log.Format)

	s.AdminEmails = getEnvList("ADMIN_EMAILS", s.AdminEmails)
	s.Notifier = getEnv("NOTIFIER", s.Notifier)

	collect(getEnvDuration("OTP_TTL", &s.OTP.TTL))
	collect(getEnvDuration("DELIVERY_TIMEOUT", &s.Delivery.Timeout))
	collect(getEnvDuration("SESSION_TTL", &s.Session.TTL))
	s.Session.SigningKey = getEnv("SESSION_SIGNING_KEY", s.Session.SigningKey)

	s.Storage.Backend = getEnv("STORAGE_BACKEND", s.Storage.Backend)
	s.Redis.Addr = getEnv("REDIS_ADDR", s.Redis.Addr)
	s.Redis.Password = getEnv("REDIS_PASSWORD", s.Redis.Password)
	collect(getEnvInt("REDIS_DB", &s.Redis.DB))

	s.SMTP.Host = getEnv("SMTP_HOST", s.SMTP.Host)
	collect(getEnvInt("SMTP_PORT", &s.SMTP.Port))
	s.SMTP.Username = getEnv("SMTP_USERNAME", s.SMTP.Username)
	s.SMTP.Password = getEnv("SMTP_PASSWORD", s.SMTP.Password)
	s.SMTP.From = getEnv("SMTP_FROM", s.SMTP.From)

	s.Telegram.BotToken = getEnv("TELEGRAM_BOT_TOKEN", s.Telegram.BotToken)
	collect(getEnvInt64("TELEGRAM_CHAT_ID", &s.Telegram.ChatID))

	collect(getEnvBool("PRODUCTION_MODE", &s.ProductionMode))

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvDuration(key string, dst *time.Duration) error {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", key, value)
	}
	*dst = d
	return nil
}

func getEnvInt(key string, dst *int) error {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, value)
	}
	*dst = i
	return nil
}

func getEnvInt64(key string, dst *int64) error {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: invalid int64 %q", key, value)
	}
	*dst = i
	return nil
}

func getEnvBool(key string, dst *bool) error {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%s: invalid boolean %q", key, value)
	}
	*dst = b
	return nil
}
