package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"time"

	"github.com/checkcalendar-api/internal/config"
)

type smtpMailer struct {
	host       string
	port       string
	from       mail.Address
	username   string
	password   string
	requireTLS bool

	connectTimeout  time.Duration
	greetingTimeout time.Duration
	socketTimeout   time.Duration
}

// NewSMTP returns a Mailer speaking SMTP with bounded connect, greeting and
// per-command socket timeouts.
func NewSMTP(cfg *config.Config) Mailer {
	return &smtpMailer{
		host:            cfg.SMTPHost,
		port:            cfg.SMTPPort,
		from:            mail.Address{Name: cfg.MailFromName, Address: cfg.MailFromAddress},
		username:        cfg.SMTPUsername,
		password:        cfg.SMTPPassword,
		requireTLS:      cfg.SMTPRequireTLS,
		connectTimeout:  cfg.SMTPConnectTimeout,
		greetingTimeout: cfg.SMTPGreetingTimeout,
		socketTimeout:   cfg.SMTPSocketTimeout,
	}
}

func (m *smtpMailer) SendEmail(ctx context.Context, msg Message) error {
	addr := net.JoinHostPort(m.host, m.port)
	slog.Debug("smtp delivery attempt", "to", msg.To, "addr", addr)

	dialer := &net.Dialer{Timeout: m.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp connect: %w", err)
	}
	// Unblock any pending read/write when the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.SetDeadline(time.Now().Add(m.greetingTimeout)); err != nil {
		conn.Close()
		return err
	}
	c, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer c.Close()

	step := func() error { return conn.SetDeadline(time.Now().Add(m.socketTimeout)) }

	if err := step(); err != nil {
		return err
	}
	if err := c.Hello("localhost"); err != nil {
		return fmt.Errorf("smtp hello: %w", err)
	}
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := step(); err != nil {
			return err
		}
		if err := c.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	} else if m.requireTLS {
		return errors.New("smtp: server does not offer STARTTLS")
	}
	if m.username != "" {
		if err := step(); err != nil {
			return err
		}
		if err := c.Auth(smtp.PlainAuth("", m.username, m.password, m.host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	body, err := buildMIME(m.from, msg)
	if err != nil {
		return err
	}
	if err := step(); err != nil {
		return err
	}
	if err := c.Mail(m.from.Address); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := step(); err != nil {
		return err
	}
	if err := c.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	if err := step(); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data end: %w", err)
	}
	if err := step(); err != nil {
		return err
	}
	if err := c.Quit(); err != nil {
		slog.Warn("smtp quit failed after delivery", "err", err)
	}
	slog.Info("smtp delivery successful", "to", msg.To)
	return nil
}

// buildMIME renders a multipart/alternative message.
func buildMIME(from mail.Address, msg Message) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from.String())
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mw.Boundary())

	parts := []struct{ contentType, body string }{
		{"text/plain; charset=UTF-8", msg.Text},
		{"text/html; charset=UTF-8", msg.HTML},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		qp := quotedprintable.NewWriter(pw)
		if _, err := qp.Write([]byte(p.body)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
