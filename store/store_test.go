package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type backendCase struct {
	name    string
	store   Store
	advance func(time.Duration)
}

func newBackends(t *testing.T) []backendCase {
	t.Helper()

	var mu sync.Mutex
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	mem := NewMemoryStore(clock)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	return []backendCase{
		{
			name:  "memory",
			store: mem,
			advance: func(d time.Duration) {
				mu.Lock()
				now = now.Add(d)
				mu.Unlock()
			},
		},
		{
			name:    "redis",
			store:   NewRedisStore(rdb),
			advance: mr.FastForward,
		},
	}
}

func TestStoreGetSetDelete(t *testing.T) {
	for _, tc := range newBackends(t) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := tc.store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := tc.store.Set(ctx, "k", []byte("v1"), 0); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			got, err := tc.store.Get(ctx, "k")
			if err != nil || string(got) != "v1" {
				t.Fatalf("Get = %q, %v", got, err)
			}
			if err := tc.store.Delete(ctx, "k"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if err := tc.store.Delete(ctx, "k"); err != nil {
				t.Fatalf("second Delete failed: %v", err)
			}
			if _, err := tc.store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestStoreTTLExpiry(t *testing.T) {
	for _, tc := range newBackends(t) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()

			if err := tc.store.Set(ctx, "ttl", []byte("x"), time.Minute); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			tc.advance(59 * time.Second)
			if _, err := tc.store.Get(ctx, "ttl"); err != nil {
				t.Fatalf("expected key alive before ttl, got %v", err)
			}
			tc.advance(2 * time.Second)
			if _, err := tc.store.Get(ctx, "ttl"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected key expired, got %v", err)
			}
		})
	}
}

func TestStoreCompareAndSwap(t *testing.T) {
	for _, tc := range newBackends(t) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()

			ok, err := tc.store.CompareAndSwap(ctx, "cas", nil, []byte("a"), time.Hour)
			if err != nil || !ok {
				t.Fatalf("create-if-absent: ok=%v err=%v", ok, err)
			}
			ok, err = tc.store.CompareAndSwap(ctx, "cas", nil, []byte("b"), time.Hour)
			if err != nil || ok {
				t.Fatalf("create over existing must fail: ok=%v err=%v", ok, err)
			}
			ok, err = tc.store.CompareAndSwap(ctx, "cas", []byte("stale"), []byte("b"), time.Hour)
			if err != nil || ok {
				t.Fatalf("stale old must fail: ok=%v err=%v", ok, err)
			}
			ok, err = tc.store.CompareAndSwap(ctx, "cas", []byte("a"), []byte("b"), time.Hour)
			if err != nil || !ok {
				t.Fatalf("matching old must swap: ok=%v err=%v", ok, err)
			}
			got, _ := tc.store.Get(ctx, "cas")
			if string(got) != "b" {
				t.Fatalf("expected b, got %q", got)
			}
			ok, err = tc.store.CompareAndSwap(ctx, "cas", []byte("b"), nil, 0)
			if err != nil || !ok {
				t.Fatalf("delete via cas: ok=%v err=%v", ok, err)
			}
			if _, err := tc.store.Get(ctx, "cas"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected deleted key, got %v", err)
			}
		})
	}
}

func TestStoreCompareAndSwapSingleWinner(t *testing.T) {
	for _, tc := range newBackends(t) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			if err := tc.store.Set(ctx, "race", []byte("0"), 0); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			const workers = 32
			var wins atomic.Int32
			var wg sync.WaitGroup
			wg.Add(workers)
			for i := 0; i < workers; i++ {
				go func() {
					defer wg.Done()
					ok, err := tc.store.CompareAndSwap(ctx, "race", []byte("0"), []byte("1"), 0)
					if err != nil {
						t.Errorf("cas failed: %v", err)
						return
					}
					if ok {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()

			if wins.Load() != 1 {
				t.Fatalf("expected exactly one winner, got %d", wins.Load())
			}
		})
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	now := time.Unix(0, 0)
	mem := NewMemoryStore(func() time.Time { return now })
	ctx := context.Background()

	_ = mem.Set(ctx, "short", []byte("1"), time.Second)
	_ = mem.Set(ctx, "forever", []byte("2"), 0)

	now = now.Add(2 * time.Second)
	if removed := mem.Sweep(); removed != 1 {
		t.Fatalf("expected 1 swept entry, got %d", removed)
	}
	if mem.Len() != 1 {
		t.Fatalf("expected 1 live entry, got %d", mem.Len())
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	mem := NewMemoryStore(nil)
	ctx := context.Background()

	value := []byte("abc")
	_ = mem.Set(ctx, "k", value, 0)
	value[0] = 'z'

	got, _ := mem.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("stored value aliased caller slice: %q", got)
	}
	got[1] = 'z'
	again, _ := mem.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("returned value aliased stored slice: %q", again)
	}
}
