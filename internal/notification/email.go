package notification

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// EmailConfig is the SMTP relay used by Email.
type EmailConfig struct {
	Addr     string // host:port
	User     string
	Password string
	From     string
	To       []string
}

// Email sends one plain-text mail per alert.
type Email struct {
	cfg  EmailConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmail(cfg EmailConfig) *Email {
	return &Email{cfg: cfg, send: smtp.SendMail}
}

func (e *Email) Name() string { return "email" }

func (e *Email) Send(ctx context.Context, a Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if e.cfg.User != "" {
		host, _, err := net.SplitHostPort(e.cfg.Addr)
		if err != nil {
			return fmt.Errorf("email: smtp addr: %w", err)
		}
		auth = smtp.PlainAuth("", e.cfg.User, e.cfg.Password, host)
	}

	subject := a.Channel.Header() + " " + a.Operation
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(e.cfg.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", a.At.Format(time.RFC1123Z))
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(a.Message)
	msg.WriteString("\r\n")

	if err := e.send(e.cfg.Addr, auth, e.cfg.From, e.cfg.To, []byte(msg.String())); err != nil {
		return fmt.Errorf("email: send: %w", err)
	}
	return nil
}
