package mail

import (
	"context"
	"fmt"

	"github.com/gyaneshwarpardhi/opsalert/internal/event"
	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

// Mailer renders alert emails and sends them through a Registry.
type Mailer struct {
	registry     *Registry
	from         string
	dashboardURL string
}

func NewMailer(reg *Registry, from, dashboardURL string) *Mailer {
	return &Mailer{registry: reg, from: from, dashboardURL: dashboardURL}
}

// Send emails a about a to one recipient and returns the provider used.
func (m *Mailer) Send(ctx context.Context, to user.User, a event.Alert) (string, error) {
	if to.Email == "" {
		return "", fmt.Errorf("recipient %s has no email address", to.ID)
	}
	msg, err := Render(a, to, m.dashboardURL)
	if err != nil {
		return "", err
	}
	return m.registry.Send(ctx, &Request{
		From:    m.from,
		To:      []string{to.Email},
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
	})
}
