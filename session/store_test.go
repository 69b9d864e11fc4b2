package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aurumvault/adminauth/store"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewStore(store.NewRedisStore(rdb), "as"), mr
}

func testSession() *Session {
	return &Session{
		SessionID: "sid-1",
		Email:     "admin@example.com",
		CreatedAt: 1700000000,
		ExpiresAt: 1700086400,
	}
}

func TestEncodeDecodeKeepsFields(t *testing.T) {
	in := testSession()
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if data[0] != CurrentSchemaVersion {
		t.Fatalf("expected schema byte %d, got %d", CurrentSchemaVersion, data[0])
	}

	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out.Email != in.Email || out.CreatedAt != in.CreatedAt || out.ExpiresAt != in.ExpiresAt {
		t.Fatalf("decoded %+v, want %+v", out, in)
	}
}

func TestDecodeRejectsUnsupportedSchemaVersion(t *testing.T) {
	_, err := Decode([]byte{99})
	if err == nil || !strings.Contains(err.Error(), "unsupported session schema version") {
		t.Fatalf("expected unsupported schema version error, got %v", err)
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	data, _ := Encode(testSession())
	if _, err := Decode(append(data, 0)); err == nil {
		t.Fatal("expected trailing-bytes error")
	}
}

func TestStoreSaveGetDelete(t *testing.T) {
	s, mr := newSessionStoreTest(t)
	ctx := context.Background()
	sess := testSession()

	if err := s.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !mr.Exists("as:sid-1") {
		t.Fatal("expected record under prefixed key")
	}

	got, err := s.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.SessionID != "sid-1" || got.Email != sess.Email {
		t.Fatalf("unexpected record %+v", got)
	}

	if err := s.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRecordExpiresWithTTL(t *testing.T) {
	s, mr := newSessionStoreTest(t)
	ctx := context.Background()

	if err := s.Save(ctx, testSession(), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := s.Get(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired record, got %v", err)
	}
}

func TestStoreGetCorruptRecord(t *testing.T) {
	s, mr := newSessionStoreTest(t)
	if err := mr.Set("as:bad", "\x07junk"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := s.Get(context.Background(), "bad"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}
