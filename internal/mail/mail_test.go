package mail_test

import (
	"context"
	"errors"
	"html"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/opsalert/internal/event"
	"github.com/gyaneshwarpardhi/opsalert/internal/mail"
	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

type fakeProvider struct {
	name       string
	configured bool
	err        error
	sent       []*mail.Request
}

func (f *fakeProvider) Name() string     { return f.name }
func (f *fakeProvider) Configured() bool { return f.configured }
func (f *fakeProvider) Send(_ context.Context, r *mail.Request) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, r)
	return nil
}

func request() *mail.Request {
	return &mail.Request{From: "alerts@example.com", To: []string{"admin@example.com"}, Subject: "s", Text: "t"}
}

func TestRegistryFallsBackInOrder(t *testing.T) {
	primary := &fakeProvider{name: "resend", configured: true, err: errors.New("rate limited")}
	skipped := &fakeProvider{name: "ses"}
	last := &fakeProvider{name: "log", configured: true}

	reg := mail.NewRegistry(nil)
	reg.Register(last)
	reg.Register(skipped)
	reg.Register(primary)
	require.NoError(t, reg.SetOrder("resend", "ses", "log"))

	used, err := reg.Send(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "log", used)
	assert.Len(t, last.sent, 1)
	assert.Empty(t, skipped.sent)
}

func TestRegistryErrors(t *testing.T) {
	reg := mail.NewRegistry(nil)
	_, err := reg.Send(context.Background(), request())
	assert.ErrorIs(t, err, mail.ErrNoProvider)

	reg.Register(&fakeProvider{name: "a", configured: true, err: errors.New("boom a")})
	reg.Register(&fakeProvider{name: "b", configured: true, err: errors.New("boom b")})
	_, err = reg.Send(context.Background(), request())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom a")
	assert.Contains(t, err.Error(), "boom b")

	assert.Error(t, reg.SetOrder("missing"))
	_, err = reg.Send(context.Background(), &mail.Request{})
	assert.Error(t, err, "no recipients")
}

type fakeSES struct{ in *sesv2.SendEmailInput }

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	return &sesv2.SendEmailOutput{MessageId: aws.String("m-1")}, nil
}

func TestSESProviderBuildsSimpleMessage(t *testing.T) {
	client := &fakeSES{}
	p := mail.NewSESProviderWithClient(client, nil)
	require.True(t, p.Configured())
	req := request()
	req.HTML = "<p>t</p>"
	require.NoError(t, p.Send(context.Background(), req))

	assert.Equal(t, "alerts@example.com", aws.ToString(client.in.FromEmailAddress))
	assert.Equal(t, []string{"admin@example.com"}, client.in.Destination.ToAddresses)
	assert.Equal(t, "s", aws.ToString(client.in.Content.Simple.Subject.Data))
	assert.Equal(t, "t", aws.ToString(client.in.Content.Simple.Body.Text.Data))
	assert.Equal(t, "<p>t</p>", aws.ToString(client.in.Content.Simple.Body.Html.Data))

	unconfigured, err := mail.NewSESProvider(context.Background(), "", nil)
	require.NoError(t, err)
	assert.False(t, unconfigured.Configured())
	assert.False(t, mail.NewResendProvider("", nil).Configured())
}

func TestRenderTextAndHTMLCarrySameFacts(t *testing.T) {
	a, err := event.NewBusinessHighValueSale(event.HighValueSale{
		SalesUser:       user.User{ID: "u_sales", Name: "Sam Seller"},
		Client:          event.ClientRef{ID: "c1", Name: "Acme & Sons"},
		Sale:            event.SaleRef{ID: "s1"},
		SaleAmount:      75000,
		ProfitMargin:    31.5,
		IsRecordHigh:    true,
		ThresholdAmount: 10000,
	}, event.Meta{ID: "evt-1", OccurredAt: time.Date(2026, 4, 1, 10, 30, 0, 0, time.UTC)})
	require.NoError(t, err)
	to := user.User{ID: "u_admin", Name: "Ada", Email: "ada@example.com"}

	msg, err := mail.Render(a, to, "https://dash.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "business.high", msg.Template)
	assert.Equal(t, "[HIGH] "+a.Title(), msg.Subject)

	facts := mail.FactsFor(a, to, "https://dash.example.com/")
	assert.Equal(t, "https://dash.example.com/alerts/evt-1", facts.ActionURL)
	want := []string{facts.Heading, "Ada", a.Title(), facts.OccurredAt, facts.ActionURL}
	for _, d := range facts.Details {
		want = append(want, d.Label, d.Value)
	}
	for _, s := range want {
		assert.Contains(t, msg.Text, s)
		assert.Contains(t, msg.HTML, html.EscapeString(s))
	}
	assert.Contains(t, msg.Text, "client.name: Acme & Sons")
	assert.Contains(t, msg.HTML, "Acme &amp; Sons")
	assert.False(t, strings.Contains(msg.HTML, "Acme & Sons"))
}

func TestTemplateSelection(t *testing.T) {
	assert.Equal(t, "security.critical", mail.TemplateFor(event.CategorySecurity, event.SeverityCritical))
	assert.Equal(t, "useraction.low", mail.TemplateFor(event.CategoryUserAction, event.SeverityLow))
}

func TestDetailsFlattensAndSorts(t *testing.T) {
	got := mail.Details(map[string]any{
		"b":       1.5,
		"a":       map[string]any{"y": "v", "x": true},
		"empty":   "",
		"missing": nil,
		"list":    []any{"weekend", "duplicate"},
	})
	assert.Equal(t, []mail.Detail{
		{Label: "a.x", Value: "true"},
		{Label: "a.y", Value: "v"},
		{Label: "b", Value: "1.5"},
		{Label: "list", Value: "weekend, duplicate"},
	}, got)
}
