package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/aurumvault/adminauth"
)

func TestSendLogsCode(t *testing.T) {
	var buf bytes.Buffer
	n := New(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := n.Send(context.Background(), adminauth.OTPMessage{To: "admin@x.com", Code: "123456", ExpiresIn: 5 * time.Minute})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if rec["to"] != "admin@x.com" || rec["code"] != "123456" || rec["expires_in_minutes"] != float64(5) {
		t.Fatalf("unexpected log record %v", rec)
	}
}

func TestRefusedInProductionMode(t *testing.T) {
	cfg := adminauth.DefaultConfig()
	cfg.AdminEmails = []string{"admin@x.com"}
	cfg.Session.SigningKey = []byte("logger-test-signing-key-0123456789")
	cfg.Storage.Backend = "redis"
	cfg.Security.ProductionMode = true

	if !New(nil).DevelopmentOnly() {
		t.Fatal("logger notifier must be development-only")
	}
	_, err := adminauth.New().WithConfig(cfg).WithNotifier(New(nil)).Build()
	if err == nil {
		t.Fatal("expected production build to refuse the logger notifier")
	}
}
