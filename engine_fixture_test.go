package adminauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aurumvault/adminauth/store"
	"github.com/redis/go-redis/v9"
)

const (
	testAdmin      = "admin@x.com"
	testSigningKey = "test-signing-key-0123456789abcdef"
)

var testT0 = time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []OTPMessage
	failures int
	err      error
}

var errTestDelivery = errors.New("smtp: connection refused")

func (n *recordingNotifier) Send(ctx context.Context, msg OTPMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failures > 0 {
		n.failures--
		return errTestDelivery
	}
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, msg)
	return nil
}

func (n *recordingNotifier) FailNext(count int) {
	n.mu.Lock()
	n.failures = count
	n.mu.Unlock()
}

func (n *recordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func (n *recordingNotifier) LastCode(t testing.TB) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.messages) == 0 {
		t.Fatal("no otp was delivered")
	}
	return n.messages[len(n.messages)-1].Code
}

type testHarness struct {
	engine   *Engine
	clock    *fakeClock
	notifier *recordingNotifier
	kv       store.Store
	mr       *miniredis.Miniredis
}

// advanceTo moves the engine clock (and miniredis TTLs) forward to
// testT0 + offset.
func (h *testHarness) advanceTo(offset time.Duration) {
	target := testT0.Add(offset)
	if h.mr != nil {
		if d := target.Sub(h.clock.Now()); d > 0 {
			h.mr.FastForward(d)
		}
	}
	h.clock.Set(target)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AdminEmails = []string{testAdmin, "second@x.com"}
	cfg.Session.SigningKey = []byte(testSigningKey)
	cfg.Audit.Enabled = false
	return cfg
}

type harnessOptions struct {
	redis  bool
	config func(*Config)
	sink   AuditSink
}

func newHarness(t testing.TB, opts harnessOptions) *testHarness {
	t.Helper()

	cfg := testConfig()
	if opts.config != nil {
		opts.config(&cfg)
	}
	if opts.sink != nil {
		cfg.Audit.Enabled = true
	}

	h := &testHarness{
		clock:    newFakeClock(testT0),
		notifier: &recordingNotifier{},
	}

	builder := New().
		WithNotifier(h.notifier).
		WithClock(h.clock).
		WithAuditSink(opts.sink)

	if opts.redis {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("miniredis start: %v", err)
		}
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() {
			_ = rdb.Close()
			mr.Close()
		})
		cfg.Storage.Backend = store.BackendRedis
		builder = builder.WithRedis(rdb)
		h.mr = mr
		h.kv = store.NewRedisStore(rdb)
	} else {
		h.kv = store.NewMemoryStore(h.clock.Now)
		builder = builder.WithStore(h.kv)
	}

	engine, err := builder.WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

// forEachBackend runs fn against the memory and the Redis backend.
func forEachBackend(t *testing.T, opts harnessOptions, fn func(t *testing.T, h *testHarness)) {
	t.Helper()
	for _, backend := range []string{store.BackendMemory, store.BackendRedis} {
		t.Run(backend, func(t *testing.T) {
			o := opts
			o.redis = backend == store.BackendRedis
			fn(t, newHarness(t, o))
		})
	}
}

func requireKind(t *testing.T, err error, kind ErrorKind) *AuthError {
	t.Helper()
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *AuthError of kind %s, got %v", kind, err)
	}
	if ae.Kind != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, ae.Kind, err)
	}
	return ae
}

func mustRequest(t *testing.T, h *testHarness, email string) string {
	t.Helper()
	if _, err := h.engine.RequestOTP(context.Background(), email); err != nil {
		t.Fatalf("RequestOTP(%s) failed: %v", email, err)
	}
	return h.notifier.LastCode(t)
}

func wrongCode(code string) string {
	b := []byte(code)
	b[0] = '0' + (b[0]-'0'+1)%10
	return string(b)
}

func waitForEvent(t *testing.T, sink *ChannelSink, eventType string) AuditEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sink.Events():
			if ev.EventType == eventType {
				return ev
			}
		case <-timeout:
			t.Fatalf("audit event %q not observed", eventType)
			return AuditEvent{}
		}
	}
}
