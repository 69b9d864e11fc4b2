//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/aurumvault/adminauth"
	"github.com/aurumvault/adminauth/store"
	"github.com/redis/go-redis/v9"
)

const (
	adminEmail = "admin@x.com"
	signingKey = "integration-signing-key-0123456789abcdef"
)

// mailbox collects delivered codes so tests can act as the recipient.
type mailbox struct {
	mu    sync.Mutex
	codes map[string][]string
}

func newMailbox() *mailbox {
	return &mailbox{codes: make(map[string][]string)}
}

func (m *mailbox) Send(_ context.Context, msg adminauth.OTPMessage) error {
	m.mu.Lock()
	m.codes[msg.To] = append(m.codes[msg.To], msg.Code)
	m.mu.Unlock()
	return nil
}

func (m *mailbox) last(t *testing.T, email string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	codes := m.codes[email]
	if len(codes) == 0 {
		t.Fatalf("no code delivered to %s", email)
	}
	return codes[len(codes)-1]
}

// newInstance builds an engine on rdb. Instances built on the same client and
// prefix share every piece of state, like replicas behind a load balancer.
func newInstance(t *testing.T, rdb redis.UniversalClient, box *mailbox, prefix string) *adminauth.Engine {
	t.Helper()

	cfg := adminauth.DefaultConfig()
	cfg.AdminEmails = []string{adminEmail, "ops@x.com"}
	cfg.Storage.Backend = store.BackendRedis
	cfg.Storage.KeyPrefix = prefix
	cfg.Session.SigningKey = []byte(signingKey)
	cfg.Audit.Enabled = false

	engine, err := adminauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithNotifier(box).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

// wrongCode returns a code of the same length that differs from code.
func wrongCode(code string) string {
	if strings.HasPrefix(code, "0") {
		return "1" + code[1:]
	}
	return "0" + code[1:]
}

func assertKind(t *testing.T, err error, sentinel error) {
	t.Helper()
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected %v, got %v", sentinel, err)
	}
}
