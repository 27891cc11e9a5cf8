// Package notify sends transactional email.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/resend/resend-go/v2"
)

type Mailer struct {
	client *resend.Client
	from   string
	log    *slog.Logger
}

func NewMailer(apiKey, from string, log *slog.Logger) *Mailer {
	return &Mailer{client: resend.NewClient(apiKey), from: from, log: log}
}

// WithBaseURL points the mailer at another API host.
func (m *Mailer) WithBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse mailer base url: %w", err)
	}
	m.client.BaseURL = u
	return nil
}

func (m *Mailer) Send(ctx context.Context, to, subject, html string) error {
	if to == "" {
		return fmt.Errorf("send email: empty recipient")
	}
	resp, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	m.log.Info("email sent", "to", to, "subject", subject, "email_id", resp.Id)
	return nil
}

func (m *Mailer) SendReceipt(ctx context.Context, to string, credits int) error {
	return m.Send(ctx, to,
		"Thank you for your purchase - AI Image Generator",
		fmt.Sprintf("Thank you for your purchase. You have received %d credits.", credits),
	)
}

func (m *Mailer) SendVerification(ctx context.Context, to, link string) error {
	return m.Send(ctx, to,
		"Verify your email - AI Image Generator",
		fmt.Sprintf(`Please verify your email address by following <a href="%s">this link</a>.`, link),
	)
}
