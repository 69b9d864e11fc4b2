package smtp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aurumvault/adminauth"
	"gopkg.in/gomail.v2"
)

type dialFunc func() (gomail.SendCloser, error)

func (f dialFunc) Dial() (gomail.SendCloser, error) { return f() }

type recordingConn struct {
	mu      sync.Mutex
	sent    []*gomail.Message
	sendErr error
	closed  chan struct{}
	once    sync.Once
}

func newRecordingConn() *recordingConn {
	return &recordingConn{closed: make(chan struct{})}
}

func (c *recordingConn) Send(from string, to []string, msg io.WriterTo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg.(*gomail.Message))
	return nil
}

func (c *recordingConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *recordingConn) Sent() []*gomail.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*gomail.Message(nil), c.sent...)
}

func dialTo(conn *recordingConn) Sender {
	return dialFunc(func() (gomail.SendCloser, error) { return conn, nil })
}

func testMessage() adminauth.OTPMessage {
	return adminauth.OTPMessage{To: "admin@x.com", Code: "042917", ExpiresIn: 5 * time.Minute}
}

func TestSendBuildsMessage(t *testing.T) {
	conn := newRecordingConn()
	n, err := NewWithSender(dialTo(conn), Config{From: "noreply@x.com", ProductName: "Vault"})
	if err != nil {
		t.Fatalf("NewWithSender failed: %v", err)
	}

	if err := n.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	sent := conn.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sent))
	}
	select {
	case <-conn.closed:
	default:
		t.Fatal("connection must be closed after sending")
	}

	m := sent[0]
	if got := m.GetHeader("To"); len(got) != 1 || got[0] != "admin@x.com" {
		t.Fatalf("unexpected To header %v", got)
	}
	if got := m.GetHeader("Subject"); len(got) != 1 || got[0] != DefaultSubject {
		t.Fatalf("unexpected Subject header %v", got)
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	body := buf.String()
	for _, want := range []string{"042917", "5 minutes", "Vault", "text/html"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in message:\n%s", want, body)
		}
	}
}

func TestSendWrapsDialError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	n, err := NewWithSender(dialFunc(func() (gomail.SendCloser, error) { return nil, cause }), Config{From: "noreply@x.com"})
	if err != nil {
		t.Fatalf("NewWithSender failed: %v", err)
	}
	if err := n.Send(context.Background(), testMessage()); !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestSendReportsServerRejection(t *testing.T) {
	conn := newRecordingConn()
	conn.sendErr = errors.New("535 authentication failed")
	n, err := NewWithSender(dialTo(conn), Config{From: "noreply@x.com"})
	if err != nil {
		t.Fatalf("NewWithSender failed: %v", err)
	}
	err = n.Send(context.Background(), testMessage())
	if err == nil || !strings.Contains(err.Error(), "535 authentication failed") {
		t.Fatalf("expected server rejection, got %v", err)
	}
}

func TestSendHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	n, err := NewWithSender(dialFunc(func() (gomail.SendCloser, error) {
		<-release
		return newRecordingConn(), nil
	}), Config{From: "noreply@x.com"})
	if err != nil {
		t.Fatalf("NewWithSender failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := n.Send(ctx, testMessage()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSendDropsMessageWhenDialOutlivesContext(t *testing.T) {
	conn := newRecordingConn()
	release := make(chan struct{})
	n, err := NewWithSender(dialFunc(func() (gomail.SendCloser, error) {
		<-release
		return conn, nil
	}), Config{From: "noreply@x.com"})
	if err != nil {
		t.Fatalf("NewWithSender failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := n.Send(ctx, testMessage()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	close(release)

	select {
	case <-conn.closed:
	case <-time.After(time.Second):
		t.Fatal("late connection was not closed")
	}
	if got := len(conn.Sent()); got != 0 {
		t.Fatalf("expected no message after the caller gave up, got %d", got)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Port: 587, From: "noreply@x.com"}); err == nil {
		t.Fatal("expected error without host")
	}
	if _, err := New(Config{Host: "smtp.x.com", Port: 587, From: "not an address"}); err == nil {
		t.Fatal("expected error for invalid from address")
	}
	if _, err := New(Config{Host: "smtp.x.com", Port: 587, From: "noreply@x.com"}); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}
