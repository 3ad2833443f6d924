package mail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESClient is the part of the SES v2 client the provider uses.
type SESClient interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, opts ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESProvider sends through Amazon SES.
type SESProvider struct {
	client SESClient
	logger *slog.Logger
}

// NewSESProvider loads the default AWS credential chain for region. An empty
// region yields an unconfigured provider.
func NewSESProvider(ctx context.Context, region string, logger *slog.Logger) (*SESProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if region == "" {
		return &SESProvider{logger: logger}, nil
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESProviderWithClient(sesv2.NewFromConfig(cfg), logger), nil
}

// NewSESProviderWithClient wraps an existing client.
func NewSESProviderWithClient(client SESClient, logger *slog.Logger) *SESProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &SESProvider{client: client, logger: logger}
}

func (p *SESProvider) Name() string { return "ses" }

func (p *SESProvider) Configured() bool { return p.client != nil }

func (p *SESProvider) Send(ctx context.Context, req *Request) error {
	if p.client == nil {
		return fmt.Errorf("ses client not initialized")
	}
	var body types.Body
	if req.HTML != "" {
		body.Html = &types.Content{Data: aws.String(req.HTML), Charset: aws.String("UTF-8")}
	}
	if req.Text != "" {
		body.Text = &types.Content{Data: aws.String(req.Text), Charset: aws.String("UTF-8")}
	}
	out, err := p.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(req.From),
		Destination:      &types.Destination{ToAddresses: req.To},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(req.Subject), Charset: aws.String("UTF-8")},
				Body:    &body,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}
	p.logger.Info("email sent via ses", "message_id", aws.ToString(out.MessageId), "to", req.To, "subject", req.Subject)
	return nil
}
