package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendGridHost = "https://api.sendgrid.com"

type sendGridMailer struct {
	request  rest.Request
	fromName string
	fromAddr string
}

// NewSendGrid returns a Mailer backed by the SendGrid v3 mail API. An empty
// host selects the public API endpoint.
func NewSendGrid(apiKey, host, fromName, fromAddr string) Mailer {
	if host == "" {
		host = sendGridHost
	}
	req := sendgrid.GetRequest(apiKey, "/v3/mail/send", host)
	req.Method = rest.Post
	return &sendGridMailer{
		request:  req,
		fromName: fromName,
		fromAddr: fromAddr,
	}
}

func (m *sendGridMailer) SendEmail(ctx context.Context, msg Message) error {
	from := mail.NewEmail(m.fromName, m.fromAddr)
	to := mail.NewEmail("", msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)

	// Client mutates its request body, so each send gets its own copy.
	client := &sendgrid.Client{Request: m.request}
	resp, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("sendgrid rejected message", "to", msg.To, "status", resp.StatusCode)
		return fmt.Errorf("sendgrid send: unexpected status %d", resp.StatusCode)
	}
	slog.Info("sendgrid delivery accepted", "to", msg.To, "status", resp.StatusCode)
	return nil
}
