package email

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"
)

type Sender interface {
	Send(ctx context.Context, to string, subject string, body string) error
	ProviderID() string
}

// SMTPSender sends email via unauthenticated SMTP (Mailpit-compatible).
type SMTPSender struct {
	addr string
	from mail.Address
}

func NewSMTPSender(host string, port string, from string, fromName string) *SMTPSender {
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@tablebook.local"
	}
	return &SMTPSender{
		addr: net.JoinHostPort(strings.TrimSpace(host), strings.TrimSpace(port)),
		from: mail.Address{Name: strings.TrimSpace(fromName), Address: from},
	}
}

func (s *SMTPSender) ProviderID() string {
	return "smtp"
}

// Send honours ctx only before dialing; net/smtp has no context support.
func (s *SMTPSender) Send(ctx context.Context, to string, subject string, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := mail.ParseAddress(to); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	msg := buildMessage(s.from, to, subject, body, time.Now())
	return smtp.SendMail(s.addr, nil, s.from.Address, []string{to}, []byte(msg))
}

func buildMessage(from mail.Address, to, subject, body string, now time.Time) string {
	// Minimal RFC 5322 message; enough for Mailpit and most SMTP relays.
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nDate: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from.String(),
		to,
		mime.QEncoding.Encode("utf-8", subject),
		now.Format(time.RFC1123Z),
		strings.ReplaceAll(body, "\n", "\r\n"),
	)
}
