// Package smtp delivers one-time codes by email through gomail.
package smtp

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/aurumvault/adminauth"
	"gopkg.in/gomail.v2"
)

// DefaultSubject is used when Config.Subject is empty.
const DefaultSubject = "Your admin sign-in code"

// Config configures the SMTP relay.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
	// ProductName appears in the message body.
	ProductName string
}

// Sender opens an SMTP session. *gomail.Dialer implements it.
type Sender interface {
	Dial() (gomail.SendCloser, error)
}

// Notifier implements [adminauth.Notifier] over SMTP.
type Notifier struct {
	sender  Sender
	from    string
	subject string
	product string
}

var _ adminauth.Notifier = (*Notifier)(nil)

// New returns a Notifier dialing cfg.Host for every message.
func New(cfg Config) (*Notifier, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, errors.New("smtp: host and port are required")
	}
	return NewWithSender(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg)
}

// NewWithSender returns a Notifier that hands messages to sender.
func NewWithSender(sender Sender, cfg Config) (*Notifier, error) {
	if sender == nil {
		return nil, errors.New("smtp: nil sender")
	}
	if !adminauth.ValidEmailSyntax(cfg.From) {
		return nil, fmt.Errorf("smtp: invalid from address %q", cfg.From)
	}
	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	product := cfg.ProductName
	if product == "" {
		product = "Admin"
	}
	return &Notifier{
		sender:  sender,
		from:    cfg.From,
		subject: subject,
		product: product,
	}, nil
}

var htmlBody = template.Must(template.New("otp").Parse(`<p>Your {{.Product}} sign-in code is:</p>
<p style="font-size:24px;letter-spacing:4px"><strong>{{.Code}}</strong></p>
<p>It expires in {{.Minutes}} minute{{if ne .Minutes 1}}s{{end}}. If you did not request it, ignore this email.</p>
`))

type bodyData struct {
	Product string
	Code    string
	Minutes int
}

// Message builds the email for msg without sending it.
func (n *Notifier) Message(msg adminauth.OTPMessage) (*gomail.Message, error) {
	data := bodyData{Product: n.product, Code: msg.Code, Minutes: msg.ExpiresInMinutes()}

	var html strings.Builder
	if err := htmlBody.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("smtp: render body: %w", err)
	}
	plain := fmt.Sprintf("Your %s sign-in code is %s. It expires in %d minutes.\n", data.Product, data.Code, data.Minutes)

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", n.subject)
	m.SetBody("text/plain", plain)
	m.AddAlternative("text/html", html.String())
	return m, nil
}

// Send delivers msg. gomail has no context support: when ctx ends first,
// Send returns ctx.Err() and the session is finished in the background. A
// message is never handed to the server once ctx has ended, but a
// transfer already under way when it ends may still complete. The engine
// has rolled that code back by then, so it no longer verifies.
func (n *Notifier) Send(ctx context.Context, msg adminauth.OTPMessage) error {
	m, err := n.Message(msg)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- n.deliver(ctx, m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp: send otp email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Notifier) deliver(ctx context.Context, m *gomail.Message) error {
	conn, err := n.sender.Dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := ctx.Err(); err != nil {
		return err
	}
	return gomail.Send(conn, m)
}
