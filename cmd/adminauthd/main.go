// Command adminauthd serves the admin OTP sign-in API.
//
// Configuration is read from -config (YAML), then -env (dotenv), then the
// process environment. See internal/appconfig for the variable names.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/aurumvault/adminauth"
	"github.com/aurumvault/adminauth/internal/appconfig"
	"github.com/aurumvault/adminauth/internal/httpapi"
	"github.com/aurumvault/adminauth/metrics/export/prometheus"
	"github.com/aurumvault/adminauth/notify/logger"
	"github.com/aurumvault/adminauth/notify/smtp"
	"github.com/aurumvault/adminauth/notify/telegram"
	"github.com/aurumvault/adminauth/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		envPath    = flag.String("env", ".env", "path to dotenv file; missing file is ignored")
	)
	flag.Parse()

	if err := run(*configPath, *envPath); err != nil {
		fmt.Fprintf(os.Stderr, "adminauthd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, envPath string) error {
	settings, err := appconfig.Load(appconfig.LoadOptions{ConfigPath: configPath, DotEnvPath: envPath})
	if err != nil {
		return err
	}
	log, err := settings.NewLogger(os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	cfg := settings.EngineConfig()
	for _, w := range cfg.Lint() {
		log.Warn("config lint", "code", w.Code, "message", w.Message)
	}

	builder := adminauth.New().WithConfig(cfg).WithLogger(log)

	if cfg.Storage.Backend == store.BackendRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     settings.Redis.Addr,
			Password: settings.Redis.Password,
			DB:       settings.Redis.DB,
		})
		defer rdb.Close()
		builder = builder.WithRedis(rdb)
	} else {
		mem := store.NewMemoryStore(nil)
		builder = builder.WithStore(mem)
		log.Warn("using in-memory storage; pending codes, lockouts and sessions are lost on restart")

		sweepCtx, stopSweep := context.WithCancel(context.Background())
		defer stopSweep()
		go sweepExpired(sweepCtx, mem, time.Minute, log)
	}

	notifier, err := newNotifier(settings, log)
	if err != nil {
		return err
	}
	builder = builder.WithNotifier(notifier)

	sink, err := newAuditSink(settings, log)
	if err != nil {
		return err
	}
	if sink != nil {
		builder = builder.WithAuditSink(sink)
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("engine build: %w", err)
	}
	defer engine.Close()

	if settings.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	opts := httpapi.Options{
		Engine: engine,
		Logger: log,
		Cookie: httpapi.CookieConfig{
			Enabled: settings.Server.Cookie.Enabled,
			Name:    settings.Server.Cookie.Name,
			Secure:  settings.Server.Cookie.Secure,
			Domain:  settings.Server.Cookie.Domain,
		},
		CORSOrigins: settings.Server.CORSOrigins,
	}
	if settings.Metrics.Enabled {
		opts.Metrics = prometheus.NewPrometheusExporter(engine).Handler()
	}

	srv := &http.Server{
		Addr:    settings.Server.Addr,
		Handler: httpapi.NewRouter(opts),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			"addr", settings.Server.Addr,
			"storage", engine.StorageBackend(),
			"admins", engine.AllowListSize(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// sweepExpired drops expired keys from the in-memory store until ctx ends.
// Reads already ignore expired keys; this only bounds memory.
func sweepExpired(ctx context.Context, mem *store.MemoryStore, every time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := mem.Sweep(); n > 0 {
				log.Debug("swept expired keys", "removed", n)
			}
		}
	}
}

func newNotifier(s *appconfig.Settings, log *slog.Logger) (adminauth.Notifier, error) {
	switch s.Notifier {
	case appconfig.NotifierSMTP:
		return smtp.New(smtp.Config{
			Host:        s.SMTP.Host,
			Port:        s.SMTP.Port,
			Username:    s.SMTP.Username,
			Password:    s.SMTP.Password,
			From:        s.SMTP.From,
			Subject:     s.SMTP.Subject,
			ProductName: s.SMTP.ProductName,
		})
	case appconfig.NotifierLog:
		log.Warn("codes are written to the log; do not use outside development")
		return logger.New(log), nil
	default:
		return nil, fmt.Errorf("unknown notifier %q", s.Notifier)
	}
}

// newAuditSink returns nil when no sink is configured, leaving the engine
// default in place.
func newAuditSink(s *appconfig.Settings, log *slog.Logger) (adminauth.AuditSink, error) {
	var sinks []adminauth.AuditSink
	if s.Audit.Stdout {
		sinks = append(sinks, adminauth.NewJSONWriterSink(os.Stdout))
	}
	if s.Telegram.BotToken != "" {
		alerts, err := telegram.New(telegram.Config{
			BotToken: s.Telegram.BotToken,
			ChatID:   s.Telegram.ChatID,
			Events:   s.Telegram.Events,
			Logger:   log,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, alerts)
	}

	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	default:
		return adminauth.NewMultiSink(sinks...), nil
	}
}
