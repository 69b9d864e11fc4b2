package adminauth

import (
	"errors"
	"log/slog"

	"github.com/aurumvault/adminauth/internal/stores"
	"github.com/aurumvault/adminauth/jwt"
	"github.com/aurumvault/adminauth/session"
	"github.com/aurumvault/adminauth/store"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder may be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	kv     store.Store

	notifier  Notifier
	auditSink AuditSink
	clock     Clock
	logger    *slog.Logger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client used when Storage.Backend is "redis".
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore overrides Storage.Backend with a caller-provided store.
func (b *Builder) WithStore(kv store.Store) *Builder {
	b.kv = kv
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock replaces the wall clock. Tests use it to move time.
func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}
	if dev, ok := b.notifier.(DevelopmentNotifier); ok && dev.DevelopmentOnly() && cfg.Security.ProductionMode {
		return nil, errors.New("ProductionMode forbids development-only notifiers")
	}

	clock := b.clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	// -------- STORAGE --------
	kv := b.kv
	if kv == nil {
		switch cfg.Storage.Backend {
		case store.BackendRedis:
			if b.redis == nil {
				return nil, errors.New("redis storage backend requires a redis client")
			}
			kv = store.NewRedisStore(b.redis)
		default:
			kv = store.NewMemoryStore(clock.Now)
			logger.Warn("using in-memory storage; pending codes, lockouts and sessions are lost on restart")
		}
	}

	allow := NewAllowList(cfg.AdminEmails)
	if allow.Len() == 0 {
		logger.Warn("admin allow-list is empty; no one can sign in")
	}

	jm, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.Session.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Session.SigningKey),
		PublicKey:     cloneBytes(cfg.Session.PublicKey),
		Issuer:        cfg.Session.Issuer,
		Audience:      cfg.Session.Audience,
		Now:           clock.Now,
	})
	if err != nil {
		return nil, err
	}

	prefix := cfg.Storage.KeyPrefix
	engine := &Engine{
		config:     cfg,
		clock:      clock,
		logger:     logger,
		allow:      allow,
		policy:     cfg.otpPolicy(),
		kv:         kv,
		states:     stores.NewEmailStateStore(kv, prefix),
		sessions:   session.NewStore(kv, sessionPrefix(prefix)),
		jwtManager: jm,
		notifier:   b.notifier,
		audit:      newAuditDispatcher(cfg.Audit, b.auditSink, logger),
		metrics:    NewMetrics(cfg.Metrics),
	}

	b.built = true

	return engine, nil
}

func sessionPrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	return prefix + ":session"
}
