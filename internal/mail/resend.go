package mail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

// ResendProvider sends through the Resend API.
type ResendProvider struct {
	client *resend.Client
	logger *slog.Logger
}

// NewResendProvider returns an unconfigured provider when apiKey is empty.
func NewResendProvider(apiKey string, logger *slog.Logger) *ResendProvider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &ResendProvider{logger: logger}
	if apiKey != "" {
		p.client = resend.NewClient(apiKey)
	}
	return p
}

func (p *ResendProvider) Name() string { return "resend" }

func (p *ResendProvider) Configured() bool { return p.client != nil }

func (p *ResendProvider) Send(ctx context.Context, req *Request) error {
	if p.client == nil {
		return fmt.Errorf("resend client not initialized")
	}
	params := &resend.SendEmailRequest{
		From:    req.From,
		To:      req.To,
		Subject: req.Subject,
		Html:    req.HTML,
		Text:    req.Text,
	}
	sent, err := p.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("resend send failed: %w", err)
	}
	p.logger.Info("email sent via resend", "email_id", sent.Id, "to", req.To, "subject", req.Subject)
	return nil
}
