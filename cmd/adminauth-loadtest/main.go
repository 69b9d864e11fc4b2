// Command adminauth-loadtest drives full sign-in flows and session
// validation against a Redis-backed engine and prints latency percentiles.
//
// It also hammers a single address with parallel code requests and exits
// non-zero unless exactly one of them is granted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/aurumvault/adminauth"
	"github.com/aurumvault/adminauth/store"
)

// codeBox records the last code delivered to each address.
type codeBox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (b *codeBox) Send(_ context.Context, msg adminauth.OTPMessage) error {
	b.mu.Lock()
	b.codes[msg.To] = msg.Code
	b.mu.Unlock()
	return nil
}

func (b *codeBox) take(email string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	code, ok := b.codes[email]
	delete(b.codes, email)
	return code, ok
}

func main() {
	var (
		admins      = flag.Int("admins", 5000, "number of allow-listed addresses; each signs in once")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "session validations to run")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "adminauth-loadtest", "storage key prefix")
	)
	flag.Parse()

	if *admins <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "admins, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	emails := make([]string, *admins)
	for i := range emails {
		emails[i] = fmt.Sprintf("admin-%d@loadtest.local", i)
	}

	cfg := adminauth.DefaultConfig()
	cfg.AdminEmails = append([]string{contentionEmail}, emails...)
	cfg.Storage.Backend = store.BackendRedis
	cfg.Storage.KeyPrefix = *prefix
	cfg.Session.SigningKey = []byte("loadtest-signing-key-0123456789abcdef")
	cfg.Audit.Enabled = false

	box := &codeBox{codes: make(map[string]string, *admins)}
	engine, err := adminauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithNotifier(box).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	granted, contentionStats := runContentionPhase(ctx, engine, *concurrency)
	tokens := make([]string, len(emails))
	signinStats := runSignInPhase(ctx, engine, box, emails, tokens, *concurrency)
	validateStats := runValidatePhase(ctx, engine, tokens, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("contention", contentionStats)
	printStats("signin", signinStats)
	printStats("validate", validateStats)

	if granted != 1 {
		fmt.Fprintf(os.Stderr, "contention: %d requests granted for one address, want 1\n", granted)
		os.Exit(1)
	}
}

const contentionEmail = "contention@loadtest.local"

// runContentionPhase fires one request per worker at the same address at
// once. Failures other than RATE_LIMITED count as phase failures.
func runContentionPhase(ctx context.Context, engine *adminauth.Engine, concurrency int) (int64, phaseStats) {
	var (
		wg        sync.WaitGroup
		granted   int64
		failures  int64
		latencies = make([]time.Duration, 0, concurrency)
		mu        sync.Mutex
		start     = make(chan struct{})
	)

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			t0 := time.Now()
			_, err := engine.RequestOTP(ctx, contentionEmail)
			d := time.Since(t0)
			switch {
			case err == nil:
				atomic.AddInt64(&granted, 1)
			case !errors.Is(err, adminauth.ErrRateLimited):
				atomic.AddInt64(&failures, 1)
			}
			mu.Lock()
			latencies = append(latencies, d)
			mu.Unlock()
		}()
	}

	t0 := time.Now()
	close(start)
	wg.Wait()
	return granted, computeStats(time.Since(t0), latencies, failures)
}

// runSignInPhase requests and verifies one code per address, storing the
// resulting token at the same index.
func runSignInPhase(ctx context.Context, engine *adminauth.Engine, box *codeBox, emails, tokens []string, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, len(emails))
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(emails) {
					return
				}
				t0 := time.Now()
				sess, err := signIn(ctx, engine, box, emails[i])
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else {
					tokens[i] = sess.Token
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func signIn(ctx context.Context, engine *adminauth.Engine, box *codeBox, email string) (*adminauth.Session, error) {
	if _, err := engine.RequestOTP(ctx, email); err != nil {
		return nil, err
	}
	code, ok := box.take(email)
	if !ok {
		return nil, errors.New("no code delivered")
	}
	return engine.VerifyOTP(ctx, email, code)
}

func runValidatePhase(ctx context.Context, engine *adminauth.Engine, tokens []string, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				token := tokens[r.Intn(len(tokens))]
				t0 := time.Now()
				ok := engine.ValidateSession(ctx, token)
				d := time.Since(t0)
				if !ok {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
